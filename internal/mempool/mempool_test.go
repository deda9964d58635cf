package mempool

import (
	"testing"
	"time"

	"github.com/BrunoAwdd/atlasDb/internal/codec"
	"github.com/BrunoAwdd/atlasDb/internal/ledger"
)

// allowAll is a Verifier stub that accepts every signature, so admission
// tests exercise pool logic rather than signature checking.
type allowAll struct{}

func (allowAll) Verify(pubKey, msg, sig []byte) bool { return true }

func newTestPool(t *testing.T) (*Pool, *ledger.StateStore) {
	t.Helper()
	chart := ledger.NewChart()
	state := ledger.NewStateStore(chart)
	alice := ledger.MustAddress("wallet:user:alice")
	atlas := ledger.MustAssetId("wallet:mint/ATLAS")
	state.SetAccount(alice, ledger.AccountState{Balances: map[ledger.AssetId]uint64{atlas: 1_000}, Nonce: 0})
	pool := New(Config{ChainId: "atlas-test"}, allowAll{}, state)
	return pool, state
}

func newTx(nonce, fee uint64) *ledger.Transaction {
	return &ledger.Transaction{
		ChainId:   "atlas-test",
		Nature:    ledger.NatureTransfer,
		From:      ledger.MustAddress("wallet:user:alice"),
		To:        ledger.MustAddress("wallet:user:bob"),
		Amount:    10,
		Asset:     ledger.MustAssetId("wallet:mint/ATLAS"),
		Nonce:     nonce,
		FeeAmount: fee,
		FeeAsset:  ledger.MustAssetId("wallet:mint/ATLAS"),
		PublicKey: []byte("pub"),
		Signature: []byte("sig"),
	}
}

func TestAddAcceptsValidTransaction(t *testing.T) {
	pool, _ := newTestPool(t)
	if err := pool.Add(newTx(1, 5)); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if pool.Size() != 1 {
		t.Fatalf("size=%d want 1", pool.Size())
	}
}

func TestAddRejectsDuplicateHash(t *testing.T) {
	pool, _ := newTestPool(t)
	tx := newTx(1, 5)
	if err := pool.Add(tx); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := pool.Add(tx); err != ErrAlreadyPresent {
		t.Fatalf("got %v want ErrAlreadyPresent", err)
	}
}

func TestAddRejectsNonceTooLow(t *testing.T) {
	pool, state := newTestPool(t)
	alice := ledger.MustAddress("wallet:user:alice")
	atlas := ledger.MustAssetId("wallet:mint/ATLAS")
	state.SetAccount(alice, ledger.AccountState{Balances: map[ledger.AssetId]uint64{atlas: 1_000}, Nonce: 5})

	if err := pool.Add(newTx(1, 5)); err != ErrNonceTooLow {
		t.Fatalf("got %v want ErrNonceTooLow", err)
	}
}

func TestAddReplaceByFee(t *testing.T) {
	pool, _ := newTestPool(t)
	low := newTx(1, 5)
	low.Memo, low.HasMemo = "low", true
	if err := pool.Add(low); err != nil {
		t.Fatalf("Add low: %v", err)
	}

	same := newTx(1, 5)
	same.Memo, same.HasMemo = "same-fee", true
	if err := pool.Add(same); err != ErrFeeTooLowToReplace {
		t.Fatalf("got %v want ErrFeeTooLowToReplace", err)
	}

	high := newTx(1, 50)
	high.Memo, high.HasMemo = "high", true
	if err := pool.Add(high); err != nil {
		t.Fatalf("Add high: %v", err)
	}
	if pool.Size() != 1 {
		t.Fatalf("size=%d want 1 (replacement must evict the original)", pool.Size())
	}

	selected := pool.Select(1)
	if len(selected) != 1 || selected[0].Memo != "high" {
		t.Fatalf("expected the replacement to remain pending, got %+v", selected)
	}
}

func TestAddRejectsUnderfunded(t *testing.T) {
	pool, state := newTestPool(t)
	alice := ledger.MustAddress("wallet:user:alice")
	atlas := ledger.MustAssetId("wallet:mint/ATLAS")
	state.SetAccount(alice, ledger.AccountState{Balances: map[ledger.AssetId]uint64{atlas: 0}, Nonce: 0})

	if err := pool.Add(newTx(1, 5)); err != ErrUnderfunded {
		t.Fatalf("got %v want ErrUnderfunded", err)
	}
}

func TestAddRejectsSenderCapExceeded(t *testing.T) {
	chart := ledger.NewChart()
	state := ledger.NewStateStore(chart)
	alice := ledger.MustAddress("wallet:user:alice")
	atlas := ledger.MustAssetId("wallet:mint/ATLAS")
	state.SetAccount(alice, ledger.AccountState{Balances: map[ledger.AssetId]uint64{atlas: 1_000_000}, Nonce: 0})
	pool := New(Config{ChainId: "atlas-test", MaxPerSender: 2}, allowAll{}, state)

	if err := pool.Add(newTx(1, 1)); err != nil {
		t.Fatalf("Add #1: %v", err)
	}
	if err := pool.Add(newTx(2, 1)); err != nil {
		t.Fatalf("Add #2: %v", err)
	}
	if err := pool.Add(newTx(3, 1)); err != ErrSenderCapExceeded {
		t.Fatalf("got %v want ErrSenderCapExceeded", err)
	}
}

func TestSelectOrdersByPriorityThenFIFO(t *testing.T) {
	chart := ledger.NewChart()
	state := ledger.NewStateStore(chart)
	alice := ledger.MustAddress("wallet:user:alice")
	atlas := ledger.MustAssetId("wallet:mint/ATLAS")
	state.SetAccount(alice, ledger.AccountState{Balances: map[ledger.AssetId]uint64{atlas: 1_000_000}, Nonce: 0})
	pool := New(Config{ChainId: "atlas-test"}, allowAll{}, state)

	first := newTx(1, 10)
	first.Memo, first.HasMemo = "first-equal-fee", true
	second := newTx(2, 10)
	second.Memo, second.HasMemo = "second-equal-fee", true
	third := newTx(3, 100)
	third.Memo, third.HasMemo = "highest-fee", true

	for _, tx := range []*ledger.Transaction{first, second, third} {
		if err := pool.Add(tx); err != nil {
			t.Fatalf("Add: %v", err)
		}
	}

	got := pool.Select(3)
	if len(got) != 3 {
		t.Fatalf("got %d entries want 3", len(got))
	}
	if got[0].Memo != "highest-fee" {
		t.Fatalf("expected highest-fee tx first, got %s", got[0].Memo)
	}
	if got[1].Memo != "first-equal-fee" || got[2].Memo != "second-equal-fee" {
		t.Fatalf("expected FIFO among equal-fee entries, got %s then %s", got[1].Memo, got[2].Memo)
	}
}

func TestMarkIncludedRemovesEntries(t *testing.T) {
	pool, _ := newTestPool(t)
	tx := newTx(1, 5)
	if err := pool.Add(tx); err != nil {
		t.Fatalf("Add: %v", err)
	}
	pool.MarkIncluded([]codec.Hash{tx.Hash()})
	if pool.Size() != 0 {
		t.Fatalf("size=%d want 0 after MarkIncluded", pool.Size())
	}
}

func TestExpireStaleDropsSupersededAndOldEntries(t *testing.T) {
	pool, state := newTestPool(t)
	tx := newTx(1, 5)
	if err := pool.Add(tx); err != nil {
		t.Fatalf("Add: %v", err)
	}

	alice := ledger.MustAddress("wallet:user:alice")
	atlas := ledger.MustAssetId("wallet:mint/ATLAS")
	state.SetAccount(alice, ledger.AccountState{Balances: map[ledger.AssetId]uint64{atlas: 1_000}, Nonce: 1})

	pool.ExpireStale(time.Now())
	if pool.Size() != 0 {
		t.Fatalf("size=%d want 0 after superseding nonce commits", pool.Size())
	}
}
