package consensus

import (
	"fmt"

	"github.com/BrunoAwdd/atlasDb/internal/blockchain"
	"github.com/BrunoAwdd/atlasDb/internal/codec"
	"github.com/BrunoAwdd/atlasDb/internal/ledger"
)

// maxSyncBlocks bounds a single SyncResponse so a long-diverged peer can't
// force an unbounded in-memory block list; the requester re-requests from
// its new tip if it needs more.
const maxSyncBlocks = 500

// HandleSyncRequest answers a peer's SyncRequest: if the requester's
// believed (height, block_hash) matches this node's
// history, return every retained block after that height; otherwise
// Rejected, telling the requester to roll back further before asking
// again.
func (e *Engine) HandleSyncRequest(req *SyncRequest) (*SyncResponse, error) {
	if req.Height > 0 {
		at, err := e.blocks.Get(req.Height)
		if err != nil {
			return &SyncResponse{RequestId: req.RequestId, Rejected: true}, nil
		}
		if at.Header.BlockHash != req.BlockHash {
			return &SyncResponse{RequestId: req.RequestId, Rejected: true}, nil
		}
	}

	e.mu.Lock()
	tip := e.lastHeight
	e.mu.Unlock()

	resp := &SyncResponse{RequestId: req.RequestId}
	for h := req.Height + 1; h <= tip && len(resp.Blocks) < maxSyncBlocks; h++ {
		block, err := e.blocks.Get(h)
		if err != nil {
			return nil, fmt.Errorf("consensus: read block %d for sync: %w", h, err)
		}
		resp.Blocks = append(resp.Blocks, block)
	}
	return resp, nil
}

// RequestSync builds a SyncRequest describing this node's believed tip, for
// the Orchestrator to send to a peer once a mismatch is detected (e.g.
// HandleCommit returned ErrForkDetected, or this node's HandleHeartbeat
// observed a leader height it cannot reach by normal commit).
func (e *Engine) RequestSync(requestId string) *SyncRequest {
	e.mu.Lock()
	defer e.mu.Unlock()
	return &SyncRequest{Height: e.lastHeight, BlockHash: e.lastBlockHash, RequestId: requestId}
}

// ApplySyncResponse installs a peer's reply. A Rejected response means the
// peer couldn't find the requester's believed tip in its own history —
// the caller must walk further back (e.g. to height 0) and resend. A
// non-rejected response's blocks are assumed contiguous from
// requester_height+1; ApplySyncResponse re-executes each block (linkage,
// proposer signature, block hash, journal_root and state_root) rather
// than trusting the peer, consistent with every other code path in this
// package never trusting an unverified wire message.
func (e *Engine) ApplySyncResponse(resp *SyncResponse) error {
	if resp.Rejected || len(resp.Blocks) == 0 {
		return ErrSyncRejected
	}

	e.mu.Lock()
	prevHeight, prevHash := e.lastHeight, e.lastBlockHash
	e.mu.Unlock()

	prevHeader := &blockchain.Header{Height: prevHeight, BlockHash: prevHash}
	for _, block := range resp.Blocks {
		if err := e.executor.ReExecute(e.state, prevHeader, block); err != nil {
			return err
		}
		if err := blockchain.Commit(e.state, e.aec, block); err != nil {
			return err
		}
		if err := e.blocks.Put(block); err != nil {
			return err
		}
		if e.pool != nil {
			e.pool.MarkIncluded(block.TxHashes())
		}
		prevHeader = &block.Header
	}

	e.mu.Lock()
	e.lastHeight = prevHeader.Height
	e.lastBlockHash = prevHeader.BlockHash
	e.mu.Unlock()
	return nil
}

// Rollback discards every locally committed block above commonHeight and
// rebuilds state by replaying genesis through commonHeight's retained
// blocks: a node whose chain has diverged discards the divergent suffix
// and re-syncs from the last common ancestor.
//
// This reconstructs state by replay rather than by literally reversing the
// discarded journals with LedgerEntry.Reverse: Reverse produces a forward
// compensating entry for audit-trail purposes, it does not undo a nonce or
// LastEntryId, so chaining it backward through an arbitrary number of
// blocks would need its own separate bookkeeping. Replaying from genesis
// reuses the exact same state-transition code path ordinary block commit
// does and is guaranteed to reproduce the same state_root the original
// chain had at commonHeight. It costs an O(commonHeight) replay instead of
// an O(divergence) reversal, which is acceptable since fork recovery is
// already a rare, off-critical-path event.
func (e *Engine) Rollback(commonHeight uint64) error {
	rebuilt := ledger.NewStateStore(e.assembler.Chart)
	if e.genesis != nil {
		if err := e.genesis(rebuilt); err != nil {
			return fmt.Errorf("consensus: rollback genesis seed: %w", err)
		}
	}

	var tipHash codec.Hash
	for h := uint64(1); h <= commonHeight; h++ {
		block, err := e.blocks.Get(h)
		if err != nil {
			return fmt.Errorf("consensus: rollback read block %d: %w", h, err)
		}
		if err := blockchain.ReplayStateOnly(rebuilt, block); err != nil {
			return fmt.Errorf("consensus: rollback replay block %d: %w", h, err)
		}
		tipHash = block.Header.BlockHash
	}

	if err := e.blocks.DeleteFrom(commonHeight + 1); err != nil {
		return err
	}
	if err := e.blocks.RewriteTip(commonHeight, tipHash); err != nil {
		return err
	}

	e.state.ResetTo(rebuilt)

	e.mu.Lock()
	e.lastHeight = commonHeight
	e.lastBlockHash = tipHash
	e.role = Follower
	e.hasLeader = false
	e.currentProposal = nil
	e.currentBlock = nil
	e.collectedVotes = nil
	e.mu.Unlock()
	return nil
}
