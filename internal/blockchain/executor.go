package blockchain

import (
	"github.com/BrunoAwdd/atlasDb/internal/ledger"
)

// Verifier is the narrow signature-checking capability Executor needs to
// confirm a proposer's header signature — satisfied by identity.Verify.
type Verifier func(pubKey, msg, sig []byte) bool

// Executor re-executes a proposed block on a follower and decides whether
// to vote Yes or No. It never mutates the
// canonical state/AEC store itself — that only happens via Commit once the
// block reaches quorum.
type Executor struct {
	Chart          *ledger.Chart
	Assets         *ledger.AssetRegistry
	Verify         Verifier
	ProposerPubKey func(proposerId string) ([]byte, error)

	// DevRootMode must match the cluster's Assembler.DevRootMode, or every
	// proposal will fail StateRootMismatch.
	DevRootMode DevRootMode
}

// ReExecute replays block's journal over a clone of the prior committed
// state, recomputing journal_root and state_root, and checks them, the
// header linkage, and the proposer's signature. A nil error means the
// follower should vote Yes; any returned error (JournalRootMismatch,
// StateRootMismatch, ProposerSignatureInvalid, or a linkage error) is the
// reason to vote No.
func (ex *Executor) ReExecute(prior *ledger.StateStore, prevHeader *Header, block *Block) error {
	if err := block.VerifyLinkage(prevHeader); err != nil {
		return err
	}

	pubKey, err := ex.ProposerPubKey(block.Header.Proposer)
	if err != nil {
		return ErrProposerSignatureInvalid
	}
	if !ex.Verify(pubKey, block.Header.canonicalBytes(), block.Header.Signature) {
		return ErrProposerSignatureInvalid
	}
	if err := block.VerifyHash(); err != nil {
		return err
	}

	clone := prior.Clone()
	for _, entry := range block.Journal {
		if err := ledger.ApplyToState(clone, entry); err != nil {
			return err
		}
	}

	if JournalRoot(block.Journal) != block.Header.JournalRoot {
		return ErrJournalRootMismatch
	}
	if computeStateRoot(ex.DevRootMode, clone, block.Header.Height, prevHeader.BlockHash) != block.Header.StateRoot {
		return ErrStateRootMismatch
	}
	return nil
}
