package consensus

import (
	"encoding/hex"
	"encoding/json"

	"github.com/BrunoAwdd/atlasDb/internal/blockchain"
	"github.com/BrunoAwdd/atlasDb/internal/codec"
)

// Pub/sub topic names, one per message kind, matching the teacher's
// core/network.go convention of routing gossip by topic string rather than
// a single multiplexed channel.
const (
	TopicRequestVote     = "atlasdb/consensus/request-vote"
	TopicRequestVoteResp = "atlasdb/consensus/request-vote-response"
	TopicProposal        = "atlasdb/consensus/proposal"
	TopicVote            = "atlasdb/consensus/vote"
	TopicHeartbeat       = "atlasdb/consensus/heartbeat"
	TopicCommit          = "atlasdb/consensus/commit"
	TopicSyncRequest     = "atlasdb/consensus/sync-request"
	TopicSyncResponse    = "atlasdb/consensus/sync-response"
)

// requestVoteBytes is the canonical signing input for a RequestVoteMessage:
// every field except Signature itself.
func requestVoteBytes(m *RequestVoteMessage) []byte {
	w := codec.NewWriter()
	w.U64(m.Term).U64(m.LastHeight).Hash(m.LastBlockHash).String(m.CandidateId)
	return w.Bytes()
}

func requestVoteResponseBytes(m *RequestVoteResponse) []byte {
	w := codec.NewWriter()
	w.U64(m.Term).Bool(m.VoteGranted).String(m.VoterId)
	return w.Bytes()
}

func proposalBytes(m *ProposalMessage) []byte {
	w := codec.NewWriter()
	w.String(m.Id).String(m.ProposerId).Blob(m.Content).Hash(m.ParentId).U64(m.Term).U64(m.Round)
	return w.Bytes()
}

func voteBytes(m *VoteMessage) []byte {
	w := codec.NewWriter()
	w.String(m.ProposalId).String(m.VoterId).U8(uint8(m.Vote))
	return w.Bytes()
}

// Wire encodings: JSON over the network, matching the teacher's own
// gossip payloads (core/network.go broadcasts json.Marshal'd envelopes)
// and blockchain.Store's choice of JSON for anything that isn't a
// hash/signature input.

type wireRequestVote struct {
	Term          uint64 `json:"term"`
	LastHeight    uint64 `json:"last_height"`
	LastBlockHash string `json:"last_block_hash"`
	CandidateId   string `json:"candidate_id"`
	Signature     string `json:"signature"`
}

func encodeRequestVote(m *RequestVoteMessage) ([]byte, error) {
	return json.Marshal(wireRequestVote{
		Term: m.Term, LastHeight: m.LastHeight, LastBlockHash: m.LastBlockHash.Hex(),
		CandidateId: m.CandidateId, Signature: hexStr(m.Signature),
	})
}

func decodeRequestVote(data []byte) (*RequestVoteMessage, error) {
	var w wireRequestVote
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, err
	}
	hash, err := codec.HashFromHex(w.LastBlockHash)
	if err != nil {
		return nil, err
	}
	sig, err := hexBytes(w.Signature)
	if err != nil {
		return nil, err
	}
	return &RequestVoteMessage{Term: w.Term, LastHeight: w.LastHeight, LastBlockHash: hash, CandidateId: w.CandidateId, Signature: sig}, nil
}

type wireRequestVoteResponse struct {
	Term        uint64 `json:"term"`
	VoteGranted bool   `json:"vote_granted"`
	VoterId     string `json:"voter_id"`
	Signature   string `json:"signature"`
}

func encodeRequestVoteResponse(m *RequestVoteResponse) ([]byte, error) {
	return json.Marshal(wireRequestVoteResponse{Term: m.Term, VoteGranted: m.VoteGranted, VoterId: m.VoterId, Signature: hexStr(m.Signature)})
}

func decodeRequestVoteResponse(data []byte) (*RequestVoteResponse, error) {
	var w wireRequestVoteResponse
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, err
	}
	sig, err := hexBytes(w.Signature)
	if err != nil {
		return nil, err
	}
	return &RequestVoteResponse{Term: w.Term, VoteGranted: w.VoteGranted, VoterId: w.VoterId, Signature: sig}, nil
}

type wireProposal struct {
	Id         string `json:"id"`
	ProposerId string `json:"proposer_id"`
	Content    string `json:"content"`
	ParentId   string `json:"parent_id"`
	Term       uint64 `json:"term"`
	Round      uint64 `json:"round"`
	Signature  string `json:"signature"`
}

func encodeProposal(m *ProposalMessage) ([]byte, error) {
	return json.Marshal(wireProposal{
		Id: m.Id, ProposerId: m.ProposerId, Content: hexStr(m.Content), ParentId: m.ParentId.Hex(),
		Term: m.Term, Round: m.Round, Signature: hexStr(m.Signature),
	})
}

func decodeProposal(data []byte) (*ProposalMessage, error) {
	var w wireProposal
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, err
	}
	content, err := hexBytes(w.Content)
	if err != nil {
		return nil, err
	}
	parent, err := codec.HashFromHex(w.ParentId)
	if err != nil {
		return nil, err
	}
	sig, err := hexBytes(w.Signature)
	if err != nil {
		return nil, err
	}
	return &ProposalMessage{Id: w.Id, ProposerId: w.ProposerId, Content: content, ParentId: parent, Term: w.Term, Round: w.Round, Signature: sig}, nil
}

type wireVote struct {
	ProposalId string `json:"proposal_id"`
	VoterId    string `json:"voter_id"`
	Vote       uint8  `json:"vote"`
	Signature  string `json:"signature"`
}

func encodeVote(m *VoteMessage) ([]byte, error) {
	return json.Marshal(wireVote{ProposalId: m.ProposalId, VoterId: m.VoterId, Vote: uint8(m.Vote), Signature: hexStr(m.Signature)})
}

func decodeVote(data []byte) (*VoteMessage, error) {
	var w wireVote
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, err
	}
	sig, err := hexBytes(w.Signature)
	if err != nil {
		return nil, err
	}
	return &VoteMessage{ProposalId: w.ProposalId, VoterId: w.VoterId, Vote: Choice(w.Vote), Signature: sig}, nil
}

type wireHeartbeat struct {
	From      string `json:"from"`
	Timestamp uint64 `json:"timestamp"`
	Height    uint64 `json:"height"`
	Term      uint64 `json:"term"`
}

func encodeHeartbeat(m *HeartbeatMessage) ([]byte, error) {
	return json.Marshal(wireHeartbeat{From: m.From, Timestamp: m.Timestamp, Height: m.Height, Term: m.Term})
}

func decodeHeartbeat(data []byte) (*HeartbeatMessage, error) {
	var w wireHeartbeat
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, err
	}
	return &HeartbeatMessage{From: w.From, Timestamp: w.Timestamp, Height: w.Height, Term: w.Term}, nil
}

type wireCommit struct {
	BlockHash string     `json:"block_hash"`
	Height    uint64     `json:"height"`
	Votes     []wireVote `json:"votes"`
}

func encodeCommit(m *CommitMessage) ([]byte, error) {
	w := wireCommit{BlockHash: m.BlockHash.Hex(), Height: m.Height}
	for _, v := range m.Votes {
		w.Votes = append(w.Votes, wireVote{ProposalId: v.ProposalId, VoterId: v.VoterId, Vote: uint8(v.Vote), Signature: hexStr(v.Signature)})
	}
	return json.Marshal(w)
}

func decodeCommit(data []byte) (*CommitMessage, error) {
	var w wireCommit
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, err
	}
	hash, err := codec.HashFromHex(w.BlockHash)
	if err != nil {
		return nil, err
	}
	m := &CommitMessage{BlockHash: hash, Height: w.Height}
	for _, v := range w.Votes {
		sig, err := hexBytes(v.Signature)
		if err != nil {
			return nil, err
		}
		m.Votes = append(m.Votes, VoteMessage{ProposalId: v.ProposalId, VoterId: v.VoterId, Vote: Choice(v.Vote), Signature: sig})
	}
	return m, nil
}

type wireSyncRequest struct {
	Height    uint64 `json:"height"`
	BlockHash string `json:"block_hash"`
	RequestId string `json:"request_id"`
}

func encodeSyncRequest(m *SyncRequest) ([]byte, error) {
	return json.Marshal(wireSyncRequest{Height: m.Height, BlockHash: m.BlockHash.Hex(), RequestId: m.RequestId})
}

// EncodeSyncRequest exposes the SyncRequest wire encoding to callers
// outside this package (the Orchestrator, which sends the request
// returned by RequestSync over transport.Node.SendTo directly rather
// than through Dispatch).
func EncodeSyncRequest(m *SyncRequest) ([]byte, error) { return encodeSyncRequest(m) }

func decodeSyncRequest(data []byte) (*SyncRequest, error) {
	var w wireSyncRequest
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, err
	}
	hash, err := codec.HashFromHex(w.BlockHash)
	if err != nil {
		return nil, err
	}
	return &SyncRequest{Height: w.Height, BlockHash: hash, RequestId: w.RequestId}, nil
}

type wireSyncResponse struct {
	RequestId string            `json:"request_id"`
	Blocks    [][]byte          `json:"blocks"`
	Rejected  bool              `json:"rejected"`
}

func encodeSyncResponse(m *SyncResponse) ([]byte, error) {
	w := wireSyncResponse{RequestId: m.RequestId, Rejected: m.Rejected}
	for _, b := range m.Blocks {
		data, err := blockchain.MarshalBlock(b)
		if err != nil {
			return nil, err
		}
		w.Blocks = append(w.Blocks, data)
	}
	return json.Marshal(w)
}

func decodeSyncResponse(data []byte) (*SyncResponse, error) {
	var w wireSyncResponse
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, err
	}
	resp := &SyncResponse{RequestId: w.RequestId, Rejected: w.Rejected}
	for _, b := range w.Blocks {
		block, err := blockchain.UnmarshalBlock(b)
		if err != nil {
			return nil, err
		}
		resp.Blocks = append(resp.Blocks, block)
	}
	return resp, nil
}

func hexStr(b []byte) string {
	return hex.EncodeToString(b)
}

func hexBytes(s string) ([]byte, error) {
	return hex.DecodeString(s)
}
