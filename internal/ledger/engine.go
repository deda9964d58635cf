package ledger

import (
	"github.com/BrunoAwdd/atlasDb/internal/codec"
)

// AECStore is the subset of Account Event Chain storage (C5) the
// Accounting Engine depends on. The concrete implementation lives in
// package aec; Engine only needs append, so it depends on
// this narrow interface rather than the package, avoiding an import cycle
// (aec depends on ledger's types, not the reverse).
type AECStore interface {
	Append(entry *LedgerEntry) error
}

// Well-known system sink addresses the engine's intrinsic natures post
// their offsetting leg to. These are ordinary addresses under the Chart —
// nothing privileges them beyond being where fee/burn/reward/slashing legs
// land.
var (
	FeeRevenueSink     = MustAddress("receita:fees:protocol")
	BurnEquitySink     = MustAddress("compensacao:burn:sink")
	RewardEquitySink   = MustAddress("compensacao:rewards:pool")
	SlashingExpenseSink = MustAddress("despesa:slashing:pool")
)

// Engine converts a validated Transaction into a balanced LedgerEntry and
// applies it atomically to the State Store and AEC Storage.
type Engine struct {
	chart    *Chart
	state    *StateStore
	assets   *AssetRegistry
	aec      AECStore
	maxMemo  int
}

func NewEngine(chart *Chart, state *StateStore, assets *AssetRegistry, aec AECStore) *Engine {
	return &Engine{chart: chart, state: state, assets: assets, aec: aec, maxMemo: maxMemoLen}
}

// Execute runs validation and application for tx against the current
// state, producing the LedgerEntry it applied. blockHeight and timestamp
// are leader-supplied and the only source of non-determinism permitted —
// Execute never reads the wall clock.
func (en *Engine) Execute(tx *Transaction, blockHeight, timestamp uint64) (*LedgerEntry, *Receipt, error) {
	entry, err := en.build(tx, blockHeight, timestamp)
	if err != nil {
		return nil, &Receipt{TxHash: tx.Hash(), Status: StatusRejected, Err: err.Error()}, err
	}

	if err := ApplyToState(en.state, entry); err != nil {
		return nil, &Receipt{TxHash: tx.Hash(), Status: StatusRejected, Err: err.Error()}, err
	}
	// AEC append failing here is a storage error: the state mutation above
	// already landed, and storage errors halt the node rather than roll
	// back an already-committed apply.
	if err := en.aec.Append(entry); err != nil {
		return nil, &Receipt{TxHash: tx.Hash(), Status: StatusRejected, Err: err.Error()}, err
	}

	receipt := &Receipt{
		TxHash:        tx.Hash(),
		Status:        StatusCommitted,
		LedgerEntryId: entry.EntryId,
		HasEntry:      true,
		Memo:          tx.Memo,
	}
	return entry, receipt, nil
}

// Build runs every validation and composition step without mutating state
// or AEC storage: classification, asset lookup, nonce/balance checks, leg
// composition, dual-entry verification, and entry-id computation with
// prev_for_account filled from the *current* (pre-apply) snapshot of
// en.state. It is exported so the Block Assembler/Executor can build
// candidate journal entries against a scratch state clone before anything
// is committed.
func (en *Engine) Build(tx *Transaction, blockHeight, timestamp uint64) (*LedgerEntry, error) {
	return en.build(tx, blockHeight, timestamp)
}

func (en *Engine) build(tx *Transaction, blockHeight, timestamp uint64) (*LedgerEntry, error) {
	if err := en.validateParties(tx); err != nil {
		return nil, err
	}
	if _, ok := en.assets.Get(tx.Asset); !ok {
		return nil, ErrAssetNotRegistered
	}

	fromState := en.state.Get(tx.From)
	nonceConsuming := tx.Nature == NatureTransfer || tx.Nature == NatureFee ||
		tx.Nature == NatureBurn || tx.Nature == NatureSlashing
	if nonceConsuming {
		if tx.Nonce != fromState.Nonce+1 {
			return nil, ErrNonceMismatch
		}
		if fromState.Balances[tx.Asset] < tx.Amount {
			return nil, ErrInsufficientBalance
		}
	}

	legs, err := en.composeLegs(tx)
	if err != nil {
		return nil, err
	}

	entry := &LedgerEntry{
		Legs:        legs,
		TxHash:      tx.Hash(),
		Memo:        tx.Memo,
		HasMemo:     tx.HasMemo,
		BlockHeight: blockHeight,
		Timestamp:   timestamp,
	}
	if nonceConsuming {
		entry.NonceBumpAccount = tx.From
		entry.HasNonceBump = true
	}
	if err := entry.VerifyBalanced(); err != nil {
		return nil, err
	}

	entry.PrevForAccount = make(map[Address]codec.Hash)
	for _, acc := range entry.TouchedAccounts() {
		st := en.state.Get(acc)
		if st.HasLastEntry {
			entry.PrevForAccount[acc] = st.LastEntryId
		}
	}
	entry.ComputeEntryId()
	return entry, nil
}

// ApplyToState applies entry's legs to state and updates every touched
// account's last-entry/last-tx pointers and (for the designated
// NonceBumpAccount) nonce, without touching AEC storage. It is the shared
// state-mutation step used both by Execute (which also appends to AEC) and
// by the Block Assembler/Executor, which applies already-built entries to a
// scratch clone while assembling a candidate block, and to the real state
// only once a block commits.
func ApplyToState(state *StateStore, entry *LedgerEntry) error {
	if err := state.ApplyJournal([]*LedgerEntry{entry}); err != nil {
		return err
	}
	for _, acc := range entry.TouchedAccounts() {
		bump := entry.HasNonceBump && acc == entry.NonceBumpAccount
		state.Touch(acc, entry.EntryId, entry.TxHash, bump)
	}
	return nil
}

func (en *Engine) validateParties(tx *Transaction) error {
	if err := en.chart.ValidateAddress(tx.From); err != nil {
		return ErrUnknownAccountClass
	}
	if err := en.chart.ValidateAddress(tx.To); err != nil {
		return ErrUnknownAccountClass
	}
	if tx.HasFeePayer {
		if err := en.chart.ValidateAddress(tx.FeePayer); err != nil {
			return ErrUnknownAccountClass
		}
	}
	return nil
}

// composeLegs implements the fixed leg templates for each transaction
// nature tag.
func (en *Engine) composeLegs(tx *Transaction) ([]Leg, error) {
	var legs []Leg
	switch tx.Nature {
	case NatureTransfer:
		legs = []Leg{
			{Account: tx.From, Asset: tx.Asset, Kind: Debit, Amount: tx.Amount},
			{Account: tx.To, Asset: tx.Asset, Kind: Credit, Amount: tx.Amount},
		}
	case NatureFee:
		legs = []Leg{
			{Account: tx.From, Asset: tx.Asset, Kind: Debit, Amount: tx.Amount},
			{Account: tx.To, Asset: tx.Asset, Kind: Credit, Amount: tx.Amount},
		}
	case NatureBurn:
		legs = []Leg{
			{Account: tx.From, Asset: tx.Asset, Kind: Debit, Amount: tx.Amount},
			{Account: BurnEquitySink, Asset: tx.Asset, Kind: Credit, Amount: tx.Amount},
		}
	case NatureStakingReward:
		legs = []Leg{
			{Account: RewardEquitySink, Asset: tx.Asset, Kind: Debit, Amount: tx.Amount},
			{Account: tx.To, Asset: tx.Asset, Kind: Credit, Amount: tx.Amount},
		}
	case NatureSlashing:
		legs = []Leg{
			{Account: tx.From, Asset: tx.Asset, Kind: Debit, Amount: tx.Amount},
			{Account: SlashingExpenseSink, Asset: tx.Asset, Kind: Credit, Amount: tx.Amount},
		}
	default:
		return nil, ErrUnknownNature
	}

	if tx.HasFeePayer && tx.FeeAmount > 0 {
		legs = append(legs,
			Leg{Account: tx.FeePayer, Asset: tx.FeeAsset, Kind: Debit, Amount: tx.FeeAmount},
			Leg{Account: FeeRevenueSink, Asset: tx.FeeAsset, Kind: Credit, Amount: tx.FeeAmount},
		)
	}
	return legs, nil
}

// GenesisMint credits addr's balance directly without a Transaction or AEC
// append, for seeding the initial vault/equity pair at chain genesis. It
// is the only state mutation path that bypasses Execute, and must only be
// called before the first block is produced.
func (en *Engine) GenesisMint(addr Address, asset AssetId, amount uint64) error {
	cls, err := en.chart.Classify(addr)
	if err != nil {
		return err
	}
	st := en.state.Get(addr)
	newBal, err := applyLeg(cls.Normal(), Credit, st.Balances[asset], amount)
	if err != nil {
		return err
	}
	st.Balances[asset] = newBal
	en.state.SetAccount(addr, st)
	return nil
}

// ReverseEntry builds and applies a compensating entry for a previously
// committed one: a new entry with swapped legs, the original is never
// edited. Reversal is purely state-mechanical (see
// DESIGN.md) — no separate authorization tag is checked here; callers that
// need governance gating enforce it before invoking ReverseEntry.
func (en *Engine) ReverseEntry(original *LedgerEntry, txHash codec.Hash, blockHeight, timestamp uint64) (*LedgerEntry, error) {
	rev := original.Reverse()
	rev.TxHash = txHash
	rev.BlockHeight = blockHeight
	rev.Timestamp = timestamp
	if err := rev.VerifyBalanced(); err != nil {
		return nil, err
	}
	rev.PrevForAccount = make(map[Address]codec.Hash)
	for _, acc := range rev.TouchedAccounts() {
		st := en.state.Get(acc)
		if st.HasLastEntry {
			rev.PrevForAccount[acc] = st.LastEntryId
		}
	}
	rev.ComputeEntryId()

	if err := ApplyToState(en.state, rev); err != nil {
		return nil, err
	}
	if err := en.aec.Append(rev); err != nil {
		return nil, err
	}
	return rev, nil
}

func (en *Engine) Chart() *Chart           { return en.chart }
func (en *Engine) State() *StateStore      { return en.state }
func (en *Engine) Assets() *AssetRegistry  { return en.assets }
