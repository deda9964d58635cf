package ledger

import "testing"

type memAEC struct {
	entries []*LedgerEntry
}

func (m *memAEC) Append(entry *LedgerEntry) error {
	m.entries = append(m.entries, entry)
	return nil
}

func newTestEngine() (*Engine, *memAEC) {
	chart := NewChart()
	state := NewStateStore(chart)
	assets := NewAssetRegistry()
	atlas := MustAssetId("wallet:mint/ATLAS")
	assets.Register(AssetMetadata{Id: atlas, Name: "Atlas", Decimals: 6})
	aec := &memAEC{}
	return NewEngine(chart, state, assets, aec), aec
}

func TestEngineSingleTransfer(t *testing.T) {
	en, _ := newTestEngine()
	vault := MustAddress("vault:issuance:main")
	alice := MustAddress("wallet:user:alice")
	atlas := MustAssetId("wallet:mint/ATLAS")

	if err := en.GenesisMint(vault, atlas, 1_000_000); err != nil {
		t.Fatalf("genesis mint: %v", err)
	}

	tx := &Transaction{
		ChainId: "atlas-test", Nature: NatureTransfer,
		From: vault, To: alice, Amount: 100, Asset: atlas, Nonce: 1,
	}
	entry, receipt, err := en.Execute(tx, 1, 1000)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if receipt.Status != StatusCommitted {
		t.Fatalf("status=%v want committed", receipt.Status)
	}
	if en.State().Balance(alice, atlas) != 100 {
		t.Fatalf("alice balance wrong")
	}
	if en.State().Balance(vault, atlas) != 999_900 {
		t.Fatalf("vault balance wrong")
	}
	if en.State().Get(vault).Nonce != 1 {
		t.Fatalf("nonce not bumped")
	}
	if len(entry.Legs) != 2 {
		t.Fatalf("expected 2 legs, got %d", len(entry.Legs))
	}
}

func TestEngineDoubleSpendSameNonceRejected(t *testing.T) {
	en, _ := newTestEngine()
	vault := MustAddress("vault:issuance:main")
	alice := MustAddress("wallet:user:alice")
	bob := MustAddress("wallet:user:bob")
	atlas := MustAssetId("wallet:mint/ATLAS")
	en.GenesisMint(vault, atlas, 1_000_000)

	fund := &Transaction{ChainId: "atlas-test", Nature: NatureTransfer, From: vault, To: alice, Amount: 1000, Asset: atlas, Nonce: 1}
	if _, _, err := en.Execute(fund, 1, 1000); err != nil {
		t.Fatalf("fund: %v", err)
	}

	tx1 := &Transaction{ChainId: "atlas-test", Nature: NatureTransfer, From: alice, To: bob, Amount: 50, Asset: atlas, Nonce: 1}
	tx2 := &Transaction{ChainId: "atlas-test", Nature: NatureTransfer, From: alice, To: bob, Amount: 50, Asset: atlas, Nonce: 1}

	if _, _, err := en.Execute(tx1, 2, 2000); err != nil {
		t.Fatalf("tx1: %v", err)
	}
	if _, _, err := en.Execute(tx2, 2, 2000); err == nil {
		t.Fatalf("expected nonce mismatch on replayed nonce")
	}
}

func TestEngineInsufficientBalance(t *testing.T) {
	en, _ := newTestEngine()
	bob := MustAddress("wallet:user:bob")
	alice := MustAddress("wallet:user:alice")
	atlas := MustAssetId("wallet:mint/ATLAS")

	tx := &Transaction{ChainId: "atlas-test", Nature: NatureTransfer, From: bob, To: alice, Amount: 1, Asset: atlas, Nonce: 1}
	if _, _, err := en.Execute(tx, 1, 1000); err != ErrInsufficientBalance {
		t.Fatalf("err=%v want ErrInsufficientBalance", err)
	}
}

func TestEngineUnknownAccountClass(t *testing.T) {
	en, _ := newTestEngine()
	atlas := MustAssetId("wallet:mint/ATLAS")
	tx := &Transaction{ChainId: "atlas-test", Nature: NatureTransfer, From: "junk", To: MustAddress("wallet:user:alice"), Amount: 1, Asset: atlas, Nonce: 1}
	if _, _, err := en.Execute(tx, 1, 1000); err != ErrUnknownAccountClass {
		t.Fatalf("err=%v want ErrUnknownAccountClass", err)
	}
}

func TestReversal(t *testing.T) {
	en, aec := newTestEngine()
	a := MustAddress("wallet:user:alice")
	b := MustAddress("wallet:user:bob")
	x := MustAssetId("wallet:mint/ATLAS")
	en.GenesisMint(a, x, 10)

	e1 := &LedgerEntry{Legs: []Leg{
		{Account: a, Asset: x, Kind: Debit, Amount: 10},
		{Account: b, Asset: x, Kind: Credit, Amount: 10},
	}}
	if err := en.State().ApplyJournal([]*LedgerEntry{e1}); err != nil {
		t.Fatalf("apply e1: %v", err)
	}
	if err := aec.Append(e1); err != nil {
		t.Fatalf("append e1: %v", err)
	}
	for _, acc := range e1.TouchedAccounts() {
		en.State().Touch(acc, e1.EntryId, e1.TxHash, false)
	}

	e2, err := en.ReverseEntry(e1, e1.TxHash, 2, 2000)
	if err != nil {
		t.Fatalf("reverse: %v", err)
	}
	if en.State().Balance(a, x) != 10 || en.State().Balance(b, x) != 0 {
		t.Fatalf("balances did not return to pre-e1 state")
	}
	if len(aec.entries) != 2 {
		t.Fatalf("expected both entries retained, got %d", len(aec.entries))
	}
	if aec.entries[1].EntryId != e2.EntryId {
		t.Fatalf("unexpected reversal entry recorded")
	}
}
