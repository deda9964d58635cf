// Package blockchain implements the Block Assembler/Executor: on the
// leader, drains the mempool, executes transactions against a provisional
// state snapshot, and assembles a signed block; on a follower, re-executes
// a proposed block's journal and verifies its declared roots before
// voting.
package blockchain

import (
	"github.com/BrunoAwdd/atlasDb/internal/codec"
	"github.com/BrunoAwdd/atlasDb/internal/ledger"
	"github.com/BrunoAwdd/atlasDb/internal/merkle"
)

// Header is a Block's consensus-visible metadata.
type Header struct {
	Height      uint64
	Round       uint64
	Proposer    string // node id (identity.KeyPair.Id()), not a ledger.Address
	PrevHash    codec.Hash
	StateRoot   codec.Hash
	JournalRoot codec.Hash
	Timestamp   uint64
	Signature   []byte
	BlockHash   codec.Hash
}

// canonicalBytes is every header field excluding Signature and BlockHash
// itself: block_hash is always recomputable from the header, excluding
// signature and block_hash, concatenated with the signature.
func (h *Header) canonicalBytes() []byte {
	w := codec.NewWriter()
	w.U64(h.Height)
	w.U64(h.Round)
	w.String(h.Proposer)
	w.Hash(h.PrevHash)
	w.Hash(h.StateRoot)
	w.Hash(h.JournalRoot)
	w.U64(h.Timestamp)
	return w.Bytes()
}

// ComputeHash sets and returns h.BlockHash from the header's canonical
// bytes concatenated with its (already assigned) Signature.
func (h *Header) ComputeHash() codec.Hash {
	h.BlockHash = codec.SumAll(h.canonicalBytes(), h.Signature)
	return h.BlockHash
}

// Block is a consensus-committed unit: a header plus its ordered journal of
// ledger entries.
type Block struct {
	Header  Header
	Journal []*ledger.LedgerEntry
}

// JournalRoot is the Merkle root of the serialized journal.
func JournalRoot(journal []*ledger.LedgerEntry) codec.Hash {
	leaves := make([][]byte, len(journal))
	for i, e := range journal {
		leaves[i] = e.Encode()
	}
	return merkle.Root(leaves)
}

// StateRoot is the Merkle root over a State Store's sorted account leaves,
// computed here rather than in package ledger so blockchain owns the
// protocol-visible commitment while ledger only exposes the leaves.
func StateRoot(state *ledger.StateStore) codec.Hash {
	return merkle.Root(state.SortedLeaves())
}

// DevRootMode selects which state_root construction a node uses. The zero
// value, DevRootOff, always computes the
// real Merkle commitment and is what every production deployment must use;
// DevRootZero/DevRootMock exist purely so a local single-node development
// cluster can skip real quorum formation without wiring up a full state
// tree, and must never be reachable from a production config (pkg/config
// rejects a non-empty DevMode outside of an explicit opt-in, see
// DESIGN.md).
type DevRootMode uint8

const (
	DevRootOff DevRootMode = iota
	DevRootZero
	DevRootMock
)

// computeStateRoot applies mode to choose between the real commitment and
// one of the two developer shortcuts. DevRootMock hashes H(height ‖
// prevHash ‖ "dev"): the *previous* block's hash, not the block being
// built, since the new block's own hash cannot be known before its header
// (which embeds state_root) is complete — using prevHash keeps the
// construction well-ordered while still varying per height.
func computeStateRoot(mode DevRootMode, clone *ledger.StateStore, height uint64, prevHash codec.Hash) codec.Hash {
	switch mode {
	case DevRootZero:
		return codec.Hash{}
	case DevRootMock:
		w := codec.NewWriter()
		w.U64(height)
		w.Hash(prevHash)
		w.String("dev")
		return codec.Sum(w.Bytes())
	default:
		return StateRoot(clone)
	}
}

// TxHashes returns the tx_hash of every journal entry, in order — used to
// mark included transactions in the Mempool once a block commits.
func (b *Block) TxHashes() []codec.Hash {
	out := make([]codec.Hash, len(b.Journal))
	for i, e := range b.Journal {
		out[i] = e.TxHash
	}
	return out
}

// VerifyLinkage checks height and hash continuity against prev: height =
// prev.height + 1, prev_hash = prev.block_hash.
func (b *Block) VerifyLinkage(prev *Header) error {
	if b.Header.Height != prev.Height+1 {
		return ErrBlockLinkage
	}
	if b.Header.PrevHash != prev.BlockHash {
		return ErrBlockLinkage
	}
	return nil
}

// VerifyHash recomputes BlockHash from the header's canonical bytes and
// stored Signature and checks it matches Header.BlockHash.
func (b *Block) VerifyHash() error {
	want := codec.SumAll(b.Header.canonicalBytes(), b.Header.Signature)
	if want != b.Header.BlockHash {
		return ErrBlockLinkage
	}
	return nil
}

// Genesis builds height-0's header: no predecessor, a zero prev_hash, and
// the state/journal roots of an already-seeded genesis state.
func Genesis(proposer string, state *ledger.StateStore, timestamp uint64) *Block {
	h := Header{
		Height:      0,
		Round:       0,
		Proposer:    proposer,
		PrevHash:    codec.Hash{},
		StateRoot:   StateRoot(state),
		JournalRoot: JournalRoot(nil),
		Timestamp:   timestamp,
	}
	return &Block{Header: h}
}
