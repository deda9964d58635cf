package blockchain

import (
	"testing"

	"github.com/BrunoAwdd/atlasDb/internal/codec"
	"github.com/BrunoAwdd/atlasDb/internal/ledger"
)

func newGenesisState(t *testing.T) (*ledger.StateStore, ledger.Address, ledger.Address, ledger.AssetId, *ledger.Chart, *ledger.AssetRegistry) {
	t.Helper()
	chart := ledger.NewChart()
	state := ledger.NewStateStore(chart)
	assets := ledger.NewAssetRegistry()
	asset := ledger.MustAssetId("wallet:mint/ATL")
	assets.Register(ledger.AssetMetadata{Id: asset, Name: "Atlas", Decimals: 6, Issuer: ledger.MustAddress("vault:issuance:main")})

	vault := ledger.MustAddress("vault:issuance:main")
	wallet := ledger.MustAddress("wallet:alice:main")

	engine := ledger.NewEngine(chart, state, assets, nil)
	if err := engine.GenesisMint(vault, asset, 1_000_000); err != nil {
		t.Fatalf("GenesisMint: %v", err)
	}
	return state, vault, wallet, asset, chart, assets
}

func TestGenesisBlockRoots(t *testing.T) {
	state, _, _, _, _, _ := newGenesisState(t)
	b := Genesis("node-a", state, 1000)
	if b.Header.Height != 0 {
		t.Fatalf("genesis height = %d, want 0", b.Header.Height)
	}
	if !b.Header.PrevHash.IsZero() {
		t.Fatalf("genesis prev_hash should be zero")
	}
	if b.Header.StateRoot != StateRoot(state) {
		t.Fatalf("genesis state_root mismatch")
	}
	if b.Header.JournalRoot != JournalRoot(nil) {
		t.Fatalf("genesis journal_root mismatch")
	}
}

func TestVerifyLinkage(t *testing.T) {
	prev := &Header{Height: 5, BlockHash: [32]byte{1}}
	ok := &Block{Header: Header{Height: 6, PrevHash: prev.BlockHash}}
	if err := ok.VerifyLinkage(prev); err != nil {
		t.Fatalf("VerifyLinkage: unexpected error %v", err)
	}

	badHeight := &Block{Header: Header{Height: 7, PrevHash: prev.BlockHash}}
	if err := badHeight.VerifyLinkage(prev); err != ErrBlockLinkage {
		t.Fatalf("err = %v, want ErrBlockLinkage", err)
	}

	badHash := &Block{Header: Header{Height: 6, PrevHash: [32]byte{9}}}
	if err := badHash.VerifyLinkage(prev); err != ErrBlockLinkage {
		t.Fatalf("err = %v, want ErrBlockLinkage", err)
	}
}

func TestVerifyHashDetectsTamper(t *testing.T) {
	h := &Header{Height: 1, Round: 0, Proposer: "node-a", Timestamp: 42}
	h.Signature = []byte("sig")
	h.ComputeHash()
	b := &Block{Header: *h}
	if err := b.VerifyHash(); err != nil {
		t.Fatalf("VerifyHash: unexpected error %v", err)
	}

	b.Header.Timestamp = 43
	if err := b.VerifyHash(); err != ErrBlockLinkage {
		t.Fatalf("err = %v, want ErrBlockLinkage after tamper", err)
	}
}

func TestComputeStateRootModes(t *testing.T) {
	state, _, _, _, _, _ := newGenesisState(t)
	prevHash := codec.Hash{7}

	if got := computeStateRoot(DevRootOff, state, 1, prevHash); got != StateRoot(state) {
		t.Fatalf("DevRootOff = %x, want real StateRoot", got)
	}

	if got := computeStateRoot(DevRootZero, state, 1, prevHash); got != (codec.Hash{}) {
		t.Fatalf("DevRootZero = %x, want zero hash", got)
	}

	mockA := computeStateRoot(DevRootMock, state, 5, prevHash)
	mockB := computeStateRoot(DevRootMock, state, 5, prevHash)
	if mockA != mockB {
		t.Fatalf("DevRootMock not deterministic: %x != %x", mockA, mockB)
	}
	if mockA == StateRoot(state) {
		t.Fatalf("DevRootMock should not equal the real root")
	}
	if mockA == (codec.Hash{}) {
		t.Fatalf("DevRootMock should not be zero")
	}

	mockDifferentHeight := computeStateRoot(DevRootMock, state, 6, prevHash)
	if mockDifferentHeight == mockA {
		t.Fatalf("DevRootMock should vary with height")
	}
}
