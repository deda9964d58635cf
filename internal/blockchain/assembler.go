package blockchain

import (
	"github.com/BrunoAwdd/atlasDb/internal/codec"
	"github.com/BrunoAwdd/atlasDb/internal/ledger"
)

// Signer is the narrow capability the Assembler needs to authenticate a
// proposed block header — satisfied by identity.KeyPair. Depending on this
// interface rather than package identity avoids a blockchain->identity
// import for a single method.
type Signer interface {
	Sign(msg []byte) ([]byte, error)
}

// Mempool is the subset of mempool.Pool the Assembler drains from. A
// narrow local interface avoids a blockchain->mempool import cycle risk
// and keeps Assemble easy to unit test against a fake.
type Mempool interface {
	Select(n int) []*ledger.Transaction
}

// Assembler builds candidate blocks on the leader. MaxTxPerBlock bounds how
// many transactions one block may carry.
type Assembler struct {
	Chart         *ledger.Chart
	Assets        *ledger.AssetRegistry
	Pool          Mempool
	Signer        Signer
	MaxTxPerBlock int

	// DevRootMode defaults to DevRootOff (the real commitment). Only a
	// developer-mode config may set it to something else; see DevRootMode.
	DevRootMode DevRootMode
}

// Assemble drains up to MaxTxPerBlock transactions from the Mempool in
// priority order, executes each against a clone of state (never mutating
// the canonical store), drops any that fail admission against the
// provisional snapshot, computes journal_root and state_root over the
// surviving entries, and signs the resulting header.
//
// The caller (Consensus Engine) owns installing the returned block's
// journal into the canonical state/AEC store — that only happens once the
// block reaches quorum (see Commit).
func (a *Assembler) Assemble(prev *Header, proposer string, round, timestamp uint64, state *ledger.StateStore) (*Block, error) {
	height := prev.Height + 1
	clone := state.Clone()
	scratch := ledger.NewEngine(a.Chart, clone, a.Assets, nil)

	candidates := a.Pool.Select(a.MaxTxPerBlock)
	journal := make([]*ledger.LedgerEntry, 0, len(candidates))
	for _, tx := range candidates {
		entry, err := scratch.Build(tx, height, timestamp)
		if err != nil {
			// Admission failed against the *provisional* snapshot (e.g. a
			// sender whose earlier tx in this same batch already spent the
			// balance): skip it, leave it in the mempool for a later block.
			continue
		}
		if err := ledger.ApplyToState(clone, entry); err != nil {
			continue
		}
		journal = append(journal, entry)
	}

	header := Header{
		Height:      height,
		Round:       round,
		Proposer:    proposer,
		PrevHash:    prev.BlockHash,
		StateRoot:   computeStateRoot(a.DevRootMode, clone, height, prev.BlockHash),
		JournalRoot: JournalRoot(journal),
		Timestamp:   timestamp,
	}
	sig, err := a.Signer.Sign(header.canonicalBytes())
	if err != nil {
		return nil, err
	}
	header.Signature = sig
	header.ComputeHash()

	return &Block{Header: header, Journal: journal}, nil
}

// Commit installs block's journal into the canonical state and AEC store.
// It is called once by the leader after assembling (to produce its own
// view of the committed chain) and once by every follower after a Commit
// message carries proof of quorum. Applying an already-applied entry is
// guarded by the caller checking block height against the store's current
// tip — Commit itself does not re-check that, since by the time it is
// called the caller has already decided this block is next.
func Commit(state *ledger.StateStore, aec ledger.AECStore, block *Block) error {
	for _, entry := range block.Journal {
		if err := ledger.ApplyToState(state, entry); err != nil {
			return err
		}
		if err := aec.Append(entry); err != nil {
			return err
		}
	}
	return nil
}

// CommittedTxHashes is a convenience wrapper so callers that only have a
// Block (not a fresh journal slice) can feed Mempool.MarkIncluded.
func CommittedTxHashes(block *Block) []codec.Hash {
	return block.TxHashes()
}

// ReplayStateOnly applies block's journal to state without touching AEC
// storage — used by fork recovery to rebuild a state snapshot from a
// sequence of already-persisted blocks, whose entries are already present
// in AEC storage and must not be appended a second time.
func ReplayStateOnly(state *ledger.StateStore, block *Block) error {
	for _, entry := range block.Journal {
		if err := ledger.ApplyToState(state, entry); err != nil {
			return err
		}
	}
	return nil
}
