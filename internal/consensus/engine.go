package consensus

import (
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/BrunoAwdd/atlasDb/internal/blockchain"
	"github.com/BrunoAwdd/atlasDb/internal/codec"
	"github.com/BrunoAwdd/atlasDb/internal/ledger"
)

// Role is a node's position in the leader-per-term state machine.
type Role uint8

const (
	Follower Role = iota
	Candidate
	Leader
)

func (r Role) String() string {
	switch r {
	case Follower:
		return "follower"
	case Candidate:
		return "candidate"
	case Leader:
		return "leader"
	default:
		return "unknown"
	}
}

// Transport is the narrow capability the Consensus Engine needs from C2:
// broadcast to the whole validator set, or send directly to one peer (used
// for SyncRequest/SyncResponse). The concrete implementation lives in
// package transport.
type Transport interface {
	Broadcast(topic string, data []byte) error
	SendTo(peerId, topic string, data []byte) error
}

// Signer/Verify mirror package identity's capabilities without importing
// it, the same narrow-interface pattern used by internal/mempool and
// internal/blockchain.
type Signer interface {
	Sign(msg []byte) ([]byte, error)
}

type VerifyFunc func(pubKey, msg, sig []byte) bool

// PubKeyFunc recovers a validator's public key from its id (identity id is
// the hex-encoded pubkey; identity.PubKeyFromId satisfies this).
type PubKeyFunc func(id string) ([]byte, error)

// Mempool is the subset of mempool.Pool the Engine needs once a block
// commits.
type Mempool interface {
	MarkIncluded(txHashes []codec.Hash)
}

// GenesisFunc reseeds a fresh StateStore with the chain's genesis mints.
// Rollback (fork recovery) uses it to rebuild state from height 0 before
// replaying retained blocks — see DESIGN.md "Fork recovery rollback".
type GenesisFunc func(*ledger.StateStore) error

// EventKind distinguishes the two leadership transition events the
// Orchestrator subscribes to: a node becoming leader, or stepping down.
type EventKind uint8

const (
	EventBecameLeader EventKind = iota
	EventSteppedDown
)

type Event struct {
	Kind EventKind
	Term uint64
}

// Config parameterizes timers and the validator set.
type Config struct {
	NodeId             string
	Weights            Weights
	Quorum             QuorumPolicy
	ElectionTimeoutLo  time.Duration
	ElectionTimeoutHi  time.Duration
	HeartbeatInterval  time.Duration
	RoundTimeout       time.Duration
	MaxRoundFailures   int
	MaxTxPerBlock      int
}

func (c Config) withDefaults() Config {
	if c.ElectionTimeoutLo == 0 {
		c.ElectionTimeoutLo = 500 * time.Millisecond
	}
	if c.ElectionTimeoutHi == 0 {
		c.ElectionTimeoutHi = 1000 * time.Millisecond
	}
	if c.HeartbeatInterval == 0 {
		c.HeartbeatInterval = c.ElectionTimeoutLo / 3
	}
	if c.RoundTimeout == 0 {
		c.RoundTimeout = 2 * time.Second
	}
	if c.MaxRoundFailures == 0 {
		c.MaxRoundFailures = 3
	}
	if c.MaxTxPerBlock == 0 {
		c.MaxTxPerBlock = 2000
	}
	return c
}

// Engine runs leader election, proposal/vote handling, commit, and fork
// recovery for one node. All public methods are safe for concurrent use,
// but the Orchestrator invokes them from a single consensus-worker
// goroutine, so the lock is rarely contended — it exists for the same
// reason StateStore's does: defense in depth, not a performance-critical
// path.
type Engine struct {
	cfg       Config
	transport Transport
	signer    Signer
	verify    VerifyFunc
	pubKeyOf  PubKeyFunc
	assembler *blockchain.Assembler
	executor  *blockchain.Executor
	blocks    *blockchain.Store
	state     *ledger.StateStore
	aec       ledger.AECStore
	pool      Mempool
	genesis   GenesisFunc

	mu               sync.Mutex
	role             Role
	term             uint64
	round            uint64
	leaderId         string
	hasLeader        bool
	votesGranted     map[string]bool
	lastHeight       uint64
	lastBlockHash    codec.Hash
	electionDeadline time.Time
	roundDeadline    time.Time
	lastHeartbeatOut time.Time
	roundFailures    int

	currentProposal *ProposalMessage
	currentBlock    *blockchain.Block
	collectedVotes  map[string]VoteMessage
	acceptedRounds  map[acceptedRoundKey]string

	events chan Event
}

// acceptedRoundKey identifies one height's voting round within a term. A
// second, different proposal arriving for a key already bound to an
// accepted proposal id is a duplicate-leader or replay condition and must
// be rejected outright rather than overwriting the vote already cast.
type acceptedRoundKey struct {
	term   uint64
	round  uint64
	height uint64
}

// Deps bundles the Engine's collaborators.
type Deps struct {
	Transport Transport
	Signer    Signer
	Verify    VerifyFunc
	PubKeyOf  PubKeyFunc
	Assembler *blockchain.Assembler
	Executor  *blockchain.Executor
	Blocks    *blockchain.Store
	State     *ledger.StateStore
	AEC       ledger.AECStore
	Pool      Mempool
	Genesis   GenesisFunc
}

// NewEngine constructs an Engine in the Follower role, seeding its known
// tip from the persisted block store (or the zero tip, on a fresh node).
func NewEngine(cfg Config, d Deps) (*Engine, error) {
	cfg = cfg.withDefaults()
	height, hash, ok, err := d.Blocks.Tip()
	if err != nil {
		return nil, fmt.Errorf("consensus: read tip: %w", err)
	}
	e := &Engine{
		cfg:            cfg,
		transport:      d.Transport,
		signer:         d.Signer,
		verify:         d.Verify,
		pubKeyOf:       d.PubKeyOf,
		assembler:      d.Assembler,
		executor:       d.Executor,
		blocks:         d.Blocks,
		state:          d.State,
		aec:            d.AEC,
		pool:           d.Pool,
		genesis:        d.Genesis,
		role:           Follower,
		events:         make(chan Event, 8),
		acceptedRounds: make(map[acceptedRoundKey]string),
	}
	if ok {
		e.lastHeight = height
		e.lastBlockHash = hash
	}
	return e, nil
}

// Events is the bounded channel of leadership transitions the
// Orchestrator subscribes to. It is never closed; a send when the
// buffer is full is dropped rather than blocking the consensus worker —
// the Orchestrator is expected to drain it promptly, and a dropped
// transition is always inferable again from Role().
func (e *Engine) Events() <-chan Event { return e.events }

func (e *Engine) emit(ev Event) {
	select {
	case e.events <- ev:
	default:
	}
}

func (e *Engine) Role() Role {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.role
}

func (e *Engine) Term() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.term
}

func (e *Engine) IsLeader() bool { return e.Role() == Leader }

// Height returns the last committed block height this node knows of,
// for cluster-status surfaces.
func (e *Engine) Height() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastHeight
}

// LeaderId returns the node id of the currently known leader, or "" if
// none is known (e.g. mid-election).
func (e *Engine) LeaderId() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.hasLeader {
		return ""
	}
	return e.leaderId
}

// Round returns the current term's round counter, for the Orchestrator to
// notice a round timeout (which bumps the round without changing Height)
// and re-propose.
func (e *Engine) Round() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.round
}

// jitteredElection picks a randomized election timeout in
// [ElectionTimeoutLo, ElectionTimeoutHi) to avoid split votes.
func (e *Engine) jitteredElection(now time.Time) time.Time {
	span := e.cfg.ElectionTimeoutHi - e.cfg.ElectionTimeoutLo
	var d time.Duration
	if span > 0 {
		d = e.cfg.ElectionTimeoutLo + time.Duration(rand.Int63n(int64(span)))
	} else {
		d = e.cfg.ElectionTimeoutLo
	}
	return now.Add(d)
}

// Start seeds the first election deadline. Call once at node startup.
func (e *Engine) Start(now time.Time) {
	e.mu.Lock()
	e.electionDeadline = e.jitteredElection(now)
	e.mu.Unlock()
}

// Tick drives every timer-based transition. The Orchestrator calls this on
// every scheduler tick; it is cheap and idempotent when no deadline has
// elapsed.
func (e *Engine) Tick(now time.Time) error {
	e.mu.Lock()
	role := e.role
	electionDue := !e.electionDeadline.IsZero() && now.After(e.electionDeadline)
	roundDue := role == Leader && !e.roundDeadline.IsZero() && now.After(e.roundDeadline)
	heartbeatDue := role == Leader && now.Sub(e.lastHeartbeatOut) >= e.cfg.HeartbeatInterval
	e.mu.Unlock()

	switch role {
	case Follower, Candidate:
		if electionDue {
			return e.startElection(now)
		}
	case Leader:
		if heartbeatDue {
			if err := e.sendHeartbeat(now); err != nil {
				return err
			}
		}
		if roundDue {
			return e.handleRoundTimeout(now)
		}
	}
	return nil
}

// startElection begins a new term as Candidate. Called on election
// timeout from Follower or Candidate (a Candidate whose own election
// timed out without reaching quorum restarts with a fresh term, per the
// standard Raft-style retry-with-new-term rule).
func (e *Engine) startElection(now time.Time) error {
	e.mu.Lock()
	e.role = Candidate
	e.term++
	term := e.term
	e.hasLeader = false
	e.leaderId = ""
	e.votesGranted = map[string]bool{e.cfg.NodeId: true}
	e.electionDeadline = e.jitteredElection(now)
	lastHeight, lastHash := e.lastHeight, e.lastBlockHash
	e.mu.Unlock()

	msg := &RequestVoteMessage{
		Term:          term,
		LastHeight:    lastHeight,
		LastBlockHash: lastHash,
		CandidateId:   e.cfg.NodeId,
	}
	sig, err := e.signer.Sign(requestVoteBytes(msg))
	if err != nil {
		return err
	}
	msg.Signature = sig

	data, err := encodeRequestVote(msg)
	if err != nil {
		return err
	}
	return e.transport.Broadcast(TopicRequestVote, data)
}

// HandleRequestVote processes an inbound RequestVoteMessage and returns
// the response to send back to the candidate.
func (e *Engine) HandleRequestVote(msg *RequestVoteMessage) (*RequestVoteResponse, error) {
	pub, err := e.pubKeyOf(msg.CandidateId)
	if err != nil || !e.verify(pub, requestVoteBytes(msg), msg.Signature) {
		return nil, ErrInvalidSignature
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	grant := false
	if msg.CandidateId == e.cfg.NodeId && msg.Term == e.term && e.role == Candidate {
		// This node's own request: startElection already counts its self-vote.
		grant = true
	} else if msg.Term > e.term && msg.LastHeight >= e.lastHeight {
		e.term = msg.Term
		e.role = Follower
		e.hasLeader = false
		e.leaderId = ""
		e.electionDeadline = e.jitteredElection(time.Now())
		grant = true
	}

	resp := &RequestVoteResponse{Term: e.term, VoteGranted: grant, VoterId: e.cfg.NodeId}
	sig, err := e.signer.Sign(requestVoteResponseBytes(resp))
	if err != nil {
		return nil, err
	}
	resp.Signature = sig
	return resp, nil
}

// HandleRequestVoteResponse tallies a granted vote toward the Candidate's
// current election; on reaching quorum, transitions to Leader.
func (e *Engine) HandleRequestVoteResponse(resp *RequestVoteResponse) error {
	pub, err := e.pubKeyOf(resp.VoterId)
	if err != nil || !e.verify(pub, requestVoteResponseBytes(resp), resp.Signature) {
		return ErrInvalidSignature
	}

	e.mu.Lock()
	if e.role != Candidate || resp.Term != e.term || !resp.VoteGranted {
		e.mu.Unlock()
		return nil
	}
	e.votesGranted[resp.VoterId] = true
	var yesWeight uint64
	for voter := range e.votesGranted {
		yesWeight += e.cfg.Weights[voter]
	}
	total := e.cfg.Weights.Total()
	becameLeader := e.cfg.Quorum.Reached(yesWeight, total)
	term := e.term
	if becameLeader {
		e.role = Leader
		e.leaderId = e.cfg.NodeId
		e.hasLeader = true
		e.round = 0
		e.roundFailures = 0
		e.roundDeadline = time.Now().Add(e.cfg.RoundTimeout)
	}
	e.mu.Unlock()

	if becameLeader {
		e.emit(Event{Kind: EventBecameLeader, Term: term})
	}
	return nil
}

func (e *Engine) sendHeartbeat(now time.Time) error {
	e.mu.Lock()
	e.lastHeartbeatOut = now
	msg := HeartbeatMessage{From: e.cfg.NodeId, Timestamp: uint64(now.UnixMilli()), Height: e.lastHeight, Term: e.term}
	e.mu.Unlock()

	data, err := encodeHeartbeat(&msg)
	if err != nil {
		return err
	}
	return e.transport.Broadcast(TopicHeartbeat, data)
}

// HandleHeartbeat processes a leader's heartbeat: a higher term steps this
// node down to Follower; any heartbeat from the current term's leader
// resets the election deadline, which the heartbeat interval is tuned to
// stay well under.
func (e *Engine) HandleHeartbeat(msg *HeartbeatMessage) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if msg.Term < e.term {
		return
	}
	wasLeader := e.role == Leader
	if msg.Term > e.term {
		e.term = msg.Term
		e.role = Follower
	} else if e.role == Candidate {
		e.role = Follower
	}
	e.leaderId = msg.From
	e.hasLeader = true
	e.electionDeadline = e.jitteredElection(time.Now())
	if wasLeader && e.role != Leader {
		e.mu.Unlock()
		e.emit(Event{Kind: EventSteppedDown, Term: msg.Term})
		e.mu.Lock()
	}
}

// handleRoundTimeout fires when a leader fails to reach quorum within the
// round timeout: it increments the round within the term and retries;
// after MaxRoundFailures consecutive round failures it triggers a term
// change instead.
func (e *Engine) handleRoundTimeout(now time.Time) error {
	e.mu.Lock()
	e.roundFailures++
	e.currentProposal = nil
	e.currentBlock = nil
	e.collectedVotes = nil
	if e.roundFailures >= e.cfg.MaxRoundFailures {
		e.role = Follower
		e.hasLeader = false
		e.electionDeadline = e.jitteredElection(now)
		term := e.term
		e.mu.Unlock()
		e.emit(Event{Kind: EventSteppedDown, Term: term})
		return nil
	}
	e.round++
	e.roundDeadline = now.Add(e.cfg.RoundTimeout)
	e.mu.Unlock()
	return nil
}

// ProposeBlock assembles and broadcasts a new candidate block. Only valid
// while this node is Leader; the Orchestrator calls it after observing
// EventBecameLeader and again after every successful commit.
func (e *Engine) ProposeBlock(now uint64) (*ProposalMessage, error) {
	e.mu.Lock()
	if e.role != Leader {
		e.mu.Unlock()
		return nil, ErrUnknownProposer
	}
	term, round := e.term, e.round
	prevHeight, prevHash := e.lastHeight, e.lastBlockHash
	e.mu.Unlock()

	prevHeader := &blockchain.Header{Height: prevHeight, BlockHash: prevHash}
	block, err := e.assembler.Assemble(prevHeader, e.cfg.NodeId, round, now, e.state)
	if err != nil {
		return nil, err
	}

	msg, err := NewProposalMessage(e.cfg.NodeId, term, round, block)
	if err != nil {
		return nil, err
	}
	sig, err := e.signer.Sign(proposalBytes(msg))
	if err != nil {
		return nil, err
	}
	msg.Signature = sig

	selfVote := VoteMessage{ProposalId: msg.Id, VoterId: e.cfg.NodeId, Vote: Yes}
	selfVote.Signature, err = e.signer.Sign(voteBytes(&selfVote))
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	e.currentProposal = msg
	e.currentBlock = block
	e.collectedVotes = map[string]VoteMessage{e.cfg.NodeId: selfVote}
	e.roundDeadline = time.Now().Add(e.cfg.RoundTimeout)
	e.mu.Unlock()

	data, err := encodeProposal(msg)
	if err != nil {
		return nil, err
	}
	return msg, e.transport.Broadcast(TopicProposal, data)
}

// HandleProposal validates an inbound proposal and returns the Vote to
// broadcast (or send to the proposer).
func (e *Engine) HandleProposal(msg *ProposalMessage) (*VoteMessage, error) {
	e.mu.Lock()
	currentTerm := e.term
	leaderId := e.leaderId
	hasLeader := e.hasLeader
	prevHeight, prevHash := e.lastHeight, e.lastBlockHash
	e.mu.Unlock()

	vote := Choice(No)
	if msg.Term >= currentTerm && (!hasLeader || msg.ProposerId == leaderId) {
		block, err := msg.Block()
		if err == nil {
			key := acceptedRoundKey{term: msg.Term, round: msg.Round, height: block.Header.Height}
			e.mu.Lock()
			acceptedId, alreadyAccepted := e.acceptedRounds[key]
			e.mu.Unlock()
			duplicate := alreadyAccepted && acceptedId != msg.Id

			if !duplicate {
				pub, perr := e.pubKeyOf(msg.ProposerId)
				if perr == nil && e.verify(pub, proposalBytes(msg), msg.Signature) {
					prevHeader := &blockchain.Header{Height: prevHeight, BlockHash: prevHash}
					if rerr := e.executor.ReExecute(e.state, prevHeader, block); rerr == nil {
						vote = Yes
						e.mu.Lock()
						e.term = msg.Term
						e.role = Follower
						e.hasLeader = true
						e.leaderId = msg.ProposerId
						e.electionDeadline = e.jitteredElection(time.Now())
						e.currentProposal = msg
						e.currentBlock = block
						e.acceptedRounds[key] = msg.Id
						e.mu.Unlock()
					}
				}
			}
		}
	}

	voteMsg := &VoteMessage{ProposalId: msg.Id, VoterId: e.cfg.NodeId, Vote: vote}
	sig, err := e.signer.Sign(voteBytes(voteMsg))
	if err != nil {
		return nil, err
	}
	voteMsg.Signature = sig

	data, err := encodeVote(voteMsg)
	if err != nil {
		return nil, err
	}
	if err := e.transport.Broadcast(TopicVote, data); err != nil {
		return nil, err
	}
	return voteMsg, nil
}

// HandleVote tallies a vote toward the leader's current proposal; on
// reaching quorum, commits the block and broadcasts Commit.
func (e *Engine) HandleVote(msg *VoteMessage) error {
	pub, err := e.pubKeyOf(msg.VoterId)
	if err != nil || !e.verify(pub, voteBytes(msg), msg.Signature) {
		return ErrInvalidSignature
	}

	e.mu.Lock()
	if e.role != Leader || e.currentProposal == nil || e.currentProposal.Id != msg.ProposalId {
		e.mu.Unlock()
		return nil
	}
	if _, known := e.cfg.Weights[msg.VoterId]; !known {
		e.mu.Unlock()
		return ErrUnknownVoter
	}
	e.collectedVotes[msg.VoterId] = *msg

	var yesWeight uint64
	votes := make([]VoteMessage, 0, len(e.collectedVotes))
	for voter, v := range e.collectedVotes {
		votes = append(votes, v)
		if v.Vote == Yes {
			yesWeight += e.cfg.Weights[voter]
		}
	}
	total := e.cfg.Weights.Total()
	reached := e.cfg.Quorum.Reached(yesWeight, total)
	block := e.currentBlock
	e.mu.Unlock()

	if !reached {
		return nil
	}
	return e.commitAndBroadcast(block, votes)
}

func (e *Engine) commitAndBroadcast(block *blockchain.Block, votes []VoteMessage) error {
	if err := e.commitLocally(block); err != nil {
		return err
	}
	msg := CommitMessage{BlockHash: block.Header.BlockHash, Height: block.Header.Height, Votes: votes}
	data, err := encodeCommit(&msg)
	if err != nil {
		return err
	}
	return e.transport.Broadcast(TopicCommit, data)
}

// commitLocally installs block into the canonical state/AEC/block store
// and advances the Engine's known tip.
func (e *Engine) commitLocally(block *blockchain.Block) error {
	if err := blockchain.Commit(e.state, e.aec, block); err != nil {
		return err
	}
	if err := e.blocks.Put(block); err != nil {
		return err
	}
	if e.pool != nil {
		e.pool.MarkIncluded(block.TxHashes())
	}

	e.mu.Lock()
	e.lastHeight = block.Header.Height
	e.lastBlockHash = block.Header.BlockHash
	e.round = 0
	e.roundFailures = 0
	e.currentProposal = nil
	e.currentBlock = nil
	e.collectedVotes = nil
	for key := range e.acceptedRounds {
		if key.height <= block.Header.Height {
			delete(e.acceptedRounds, key)
		}
	}
	e.roundDeadline = time.Now().Add(e.cfg.RoundTimeout)
	e.mu.Unlock()
	return nil
}

// HandleCommit applies a quorum-proven commit on a follower. The follower
// must already hold the matching block from HandleProposal;
// if it doesn't (e.g. it missed the proposal), it returns ErrForkDetected
// so the Orchestrator can trigger a sync instead.
func (e *Engine) HandleCommit(msg *CommitMessage) error {
	var yesWeight uint64
	for _, v := range msg.Votes {
		pub, err := e.pubKeyOf(v.VoterId)
		if err != nil || !e.verify(pub, voteBytes(&v), v.Signature) {
			continue
		}
		if v.Vote == Yes {
			yesWeight += e.cfg.Weights[v.VoterId]
		}
	}
	if !e.cfg.Quorum.Reached(yesWeight, e.cfg.Weights.Total()) {
		return ErrNoQuorum
	}

	e.mu.Lock()
	block := e.currentBlock
	matches := block != nil && block.Header.BlockHash == msg.BlockHash
	e.mu.Unlock()
	if !matches {
		return ErrForkDetected
	}
	return e.commitLocally(block)
}
