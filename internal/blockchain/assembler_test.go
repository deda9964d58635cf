package blockchain

import (
	"path/filepath"
	"testing"

	"github.com/BrunoAwdd/atlasDb/internal/aec"
	"github.com/BrunoAwdd/atlasDb/internal/identity"
	"github.com/BrunoAwdd/atlasDb/internal/ledger"
)

// fakeMempool returns a fixed list of candidate transactions once, then
// nothing — enough to exercise Assemble without depending on the real
// mempool package (Assembler only needs the narrow Mempool interface).
type fakeMempool struct {
	txs []*ledger.Transaction
}

func (f *fakeMempool) Select(n int) []*ledger.Transaction {
	if n > len(f.txs) {
		n = len(f.txs)
	}
	return f.txs[:n]
}

func signedTransfer(t *testing.T, kp *identity.KeyPair, from, to ledger.Address, asset ledger.AssetId, amount, nonce uint64) *ledger.Transaction {
	t.Helper()
	tx := &ledger.Transaction{
		ChainId: "atlasdb-test",
		Nature:  ledger.NatureTransfer,
		From:    from,
		To:      to,
		Amount:  amount,
		Asset:   asset,
		Nonce:   nonce,
		FeeAsset: asset,
	}
	tx.PublicKey = kp.PublicKeyBytes()
	sig, err := kp.Sign(tx.CanonicalBytes())
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	tx.Signature = sig
	return tx
}

func TestAssembleAndReExecute(t *testing.T) {
	state, vault, wallet, asset, chart, assets := newGenesisState(t)

	leaderKey, err := identity.Generate()
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	tx := signedTransfer(t, leaderKey, vault, wallet, asset, 1000, 1)

	assembler := &Assembler{Chart: chart, Assets: assets, Pool: &fakeMempool{txs: []*ledger.Transaction{tx}}, Signer: leaderKey, MaxTxPerBlock: 10}
	genesis := Genesis(leaderKey.Id(), state, 1000)

	block, err := assembler.Assemble(&genesis.Header, leaderKey.Id(), 0, 1001, state)
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	if len(block.Journal) != 1 {
		t.Fatalf("journal length = %d, want 1", len(block.Journal))
	}
	if block.Header.Height != 1 {
		t.Fatalf("height = %d, want 1", block.Header.Height)
	}
	// Assemble must not have mutated the canonical state.
	if state.Balance(vault, asset) != 1_000_000 {
		t.Fatalf("canonical vault balance mutated by Assemble")
	}

	executor := &Executor{
		Chart: chart, Assets: assets,
		Verify:         identity.Verify,
		ProposerPubKey: func(string) ([]byte, error) { return leaderKey.PublicKeyBytes(), nil },
	}
	if err := executor.ReExecute(state, &genesis.Header, block); err != nil {
		t.Fatalf("ReExecute: %v", err)
	}

	dir := t.TempDir()
	store, err := aec.Open(aec.Config{Dir: filepath.Join(dir, "aec")})
	if err != nil {
		t.Fatalf("aec.Open: %v", err)
	}
	if err := Commit(state, store, block); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if got := state.Balance(wallet, asset); got != 1000 {
		t.Fatalf("wallet balance after commit = %d, want 1000", got)
	}
	if got := state.Balance(vault, asset); got != 999_000 {
		t.Fatalf("vault balance after commit = %d, want 999000", got)
	}
}

func TestReExecuteRejectsTamperedSignature(t *testing.T) {
	state, vault, wallet, asset, chart, assets := newGenesisState(t)
	leaderKey, err := identity.Generate()
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	other, err := identity.Generate()
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	tx := signedTransfer(t, leaderKey, vault, wallet, asset, 500, 1)

	assembler := &Assembler{Chart: chart, Assets: assets, Pool: &fakeMempool{txs: []*ledger.Transaction{tx}}, Signer: leaderKey, MaxTxPerBlock: 10}
	genesis := Genesis(leaderKey.Id(), state, 1000)
	block, err := assembler.Assemble(&genesis.Header, leaderKey.Id(), 0, 1001, state)
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}

	executor := &Executor{
		Chart: chart, Assets: assets,
		Verify: identity.Verify,
		// Wrong proposer key: ReExecute must reject the signature.
		ProposerPubKey: func(string) ([]byte, error) { return other.PublicKeyBytes(), nil },
	}
	if err := executor.ReExecute(state, &genesis.Header, block); err != ErrProposerSignatureInvalid {
		t.Fatalf("err = %v, want ErrProposerSignatureInvalid", err)
	}
}

func TestReplayStateOnlyMatchesCommit(t *testing.T) {
	state, vault, wallet, asset, chart, assets := newGenesisState(t)
	leaderKey, err := identity.Generate()
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	tx := signedTransfer(t, leaderKey, vault, wallet, asset, 250, 1)
	assembler := &Assembler{Chart: chart, Assets: assets, Pool: &fakeMempool{txs: []*ledger.Transaction{tx}}, Signer: leaderKey, MaxTxPerBlock: 10}
	genesis := Genesis(leaderKey.Id(), state, 1000)
	block, err := assembler.Assemble(&genesis.Header, leaderKey.Id(), 0, 1001, state)
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}

	replica := state.Clone()
	if err := ReplayStateOnly(replica, block); err != nil {
		t.Fatalf("ReplayStateOnly: %v", err)
	}
	if StateRoot(replica) != block.Header.StateRoot {
		t.Fatalf("replayed state_root mismatch")
	}
}
