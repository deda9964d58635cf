// Package consensus implements leader election over a static weighted
// validator set, proposal broadcast, weighted voting, quorum detection,
// commit, and fork recovery via secure state transfer. The protocol is
// crash-fault tolerant, not Byzantine.
package consensus

import (
	"github.com/google/uuid"

	"github.com/BrunoAwdd/atlasDb/internal/blockchain"
	"github.com/BrunoAwdd/atlasDb/internal/codec"
)

// Choice is a voter's decision on a proposal.
type Choice uint8

const (
	Yes Choice = iota
	No
	Abstain
)

// RequestVoteMessage is broadcast by a Candidate soliciting leader-election
// votes after a follower's election timeout promotes it to Candidate.
type RequestVoteMessage struct {
	Term            uint64
	LastHeight      uint64
	LastBlockHash   codec.Hash
	CandidateId     string
	Signature       []byte
}

// RequestVoteResponse is a validator's reply to a RequestVoteMessage.
type RequestVoteResponse struct {
	Term        uint64
	VoteGranted bool
	VoterId     string
	Signature   []byte
}

// ProposalMessage carries a leader's candidate block.
// Content is the canonical JSON encoding of a *blockchain.Block produced by
// blockchain.MarshalBlock, kept as opaque bytes here so the consensus wire
// format doesn't need to know blockchain's JSON shape.
type ProposalMessage struct {
	Id         string
	ProposerId string
	Content    []byte
	ParentId   codec.Hash // prev block_hash
	Term       uint64
	Round      uint64
	Signature  []byte
	PublicKey  []byte
}

// NewProposalMessage wraps block for broadcast, generating a fresh
// correlation id with google/uuid, the same library the teacher's
// core/ai.go and core/cross_chain.go use for request correlation ids.
func NewProposalMessage(proposerId string, term, round uint64, block *blockchain.Block) (*ProposalMessage, error) {
	content, err := blockchain.MarshalBlock(block)
	if err != nil {
		return nil, err
	}
	return &ProposalMessage{
		Id:         uuid.NewString(),
		ProposerId: proposerId,
		Content:    content,
		ParentId:   block.Header.PrevHash,
		Term:       term,
		Round:      round,
	}, nil
}

func (m *ProposalMessage) Block() (*blockchain.Block, error) {
	return blockchain.UnmarshalBlock(m.Content)
}

// VoteMessage is a validator's signed vote on a proposal.
type VoteMessage struct {
	ProposalId string
	VoterId    string
	Vote       Choice
	Signature  []byte
	PublicKey  []byte
}

// HeartbeatMessage is the leader's periodic liveness broadcast.
type HeartbeatMessage struct {
	From      string
	Timestamp uint64
	Height    uint64
	Term      uint64
}

// CommitMessage carries a committed block hash plus the quorum of votes
// that committed it, so followers can apply without re-collecting votes
// themselves: a follower receiving Commit with proof of quorum applies it
// locally instead of re-running vote collection.
type CommitMessage struct {
	BlockHash codec.Hash
	Height    uint64
	Votes     []VoteMessage
}

// SyncRequest asks a peer for blocks after (height, blockHash) — the
// requester's believed tip, for fork recovery.
type SyncRequest struct {
	Height    uint64
	BlockHash codec.Hash
	RequestId string
}

// SyncResponse answers a SyncRequest: either the requested block range, or
// Rejected if the peer's local block at Height doesn't have BlockHash
// (requester must roll back further).
type SyncResponse struct {
	RequestId string
	Blocks    []*blockchain.Block
	Rejected  bool
}
