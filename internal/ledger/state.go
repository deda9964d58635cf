package ledger

import (
	"sort"
	"sync"

	"github.com/BrunoAwdd/atlasDb/internal/codec"
)

// AccountState is the per-address state the Executor mutates.
type AccountState struct {
	Balances    map[AssetId]uint64
	Nonce       uint64
	LastTxHash  codec.Hash
	HasLastTx   bool
	LastEntryId codec.Hash
	HasLastEntry bool
}

func zeroState() AccountState {
	return AccountState{Balances: make(map[AssetId]uint64)}
}

// clone returns a deep copy so callers holding a read snapshot never
// observe a later in-place mutation.
func (s AccountState) clone() AccountState {
	b := make(map[AssetId]uint64, len(s.Balances))
	for k, v := range s.Balances {
		b[k] = v
	}
	s.Balances = b
	return s
}

// StateStore maintains Address -> AccountState with atomic apply semantics.
// State has a single writer, the Executor; readers take a consistent
// snapshot reference and never block a writer.
type StateStore struct {
	mu       sync.RWMutex
	accounts map[Address]AccountState
	chart    *Chart
}

func NewStateStore(chart *Chart) *StateStore {
	return &StateStore{accounts: make(map[Address]AccountState), chart: chart}
}

// Get returns addr's state, or a zero-state if absent.
func (s *StateStore) Get(addr Address) AccountState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.accounts[addr]
	if !ok {
		return zeroState()
	}
	return st.clone()
}

// Balance is a convenience accessor over Get.
func (s *StateStore) Balance(addr Address, asset AssetId) uint64 {
	return s.Get(addr).Balances[asset]
}

// Snapshot returns a deep copy of the full account map, for the RPC
// service's full-state export.
func (s *StateStore) Snapshot() map[Address]AccountState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[Address]AccountState, len(s.accounts))
	for k, v := range s.accounts {
		out[k] = v.clone()
	}
	return out
}

// ApplyJournal applies every Leg of every LedgerEntry atomically: either the
// whole journal succeeds, or none of the state's accounts is touched. It
// does NOT verify VerifyBalanced or bump nonces for the
// transaction's sender — the caller (Accounting Engine) already does
// admission, dual-entry checking, entry-id computation, and nonce/
// last-entry bookkeeping; ApplyJournal's job is solely the balance
// mutation arithmetic.
func (s *StateStore) ApplyJournal(entries []*LedgerEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Stage mutations in a scratch copy so a mid-journal failure leaves the
	// live map untouched.
	touched := make(map[Address]AccountState)
	get := func(addr Address) AccountState {
		if st, ok := touched[addr]; ok {
			return st
		}
		if st, ok := s.accounts[addr]; ok {
			return st.clone()
		}
		return zeroState()
	}

	for _, e := range entries {
		for _, leg := range e.Legs {
			cls, err := s.chart.Classify(leg.Account)
			if err != nil {
				return err
			}
			st := get(leg.Account)
			bal := st.Balances[leg.Asset]
			newBal, err := applyLeg(cls.Normal(), leg.Kind, bal, leg.Amount)
			if err != nil {
				return err
			}
			st.Balances[leg.Asset] = newBal
			touched[leg.Account] = st
		}
	}

	for addr, st := range touched {
		s.accounts[addr] = st
	}
	return nil
}

// applyLeg computes the post-leg balance according to the account's natural
// side: a Debit on a debit-normal account increases it; a Debit on a
// credit-normal account decreases it, and symmetrically for Credit.
func applyLeg(normal Normal, kind LegKind, balance, amount uint64) (uint64, error) {
	increase := (kind == Debit && normal == DebitNormal) || (kind == Credit && normal == CreditNormal)
	if increase {
		sum := balance + amount
		if sum < balance {
			return 0, ErrBalanceOverflow
		}
		return sum, nil
	}
	if amount > balance {
		return 0, ErrInsufficientBalance
	}
	return balance - amount, nil
}

// Clone returns a new StateStore, sharing chart, seeded with a deep copy of
// every account. It is the provisional state snapshot the Block
// Assembler/Executor builds candidate blocks against and re-executes
// proposed journals on, without mutating the canonical store until a block
// actually commits.
func (s *StateStore) Clone() *StateStore {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := NewStateStore(s.chart)
	for addr, st := range s.accounts {
		out.accounts[addr] = st.clone()
	}
	return out
}

// ResetTo replaces s's entire account map with a deep copy of other's,
// keeping s's own pointer identity so every other component already
// holding a reference to s (Engine, RPC, Mempool) observes the
// replacement without re-wiring. Used only by fork recovery's rollback
// path to install a state rebuilt by replaying retained blocks from
// genesis through the common-ancestor height.
func (s *StateStore) ResetTo(other *StateStore) {
	other.mu.RLock()
	copyOf := make(map[Address]AccountState, len(other.accounts))
	for addr, st := range other.accounts {
		copyOf[addr] = st.clone()
	}
	other.mu.RUnlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts = copyOf
}

// SetAccount directly installs an account's state — used by genesis
// seeding, never by ordinary transaction processing. Fork-recovery
// rollback installs a rebuilt store through ResetTo instead.
func (s *StateStore) SetAccount(addr Address, st AccountState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts[addr] = st.clone()
}

// Touch records the entry/tx that last touched addr and, when bumpNonce is
// set, increments addr's nonce by one. Called by the Accounting Engine
// after ApplyJournal succeeds.
func (s *StateStore) Touch(addr Address, entryId, txHash codec.Hash, bumpNonce bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.accounts[addr]
	if !ok {
		st = zeroState()
	}
	st.LastEntryId = entryId
	st.HasLastEntry = true
	st.LastTxHash = txHash
	st.HasLastTx = true
	if bumpNonce {
		st.Nonce++
	}
	s.accounts[addr] = st
}

// SortedLeaves produces the sorted (address, encoded-state) pairs the
// state-root commitment is built from: sort addresses, hash each
// (address || canonical account state), Merkle-root the leaves.
// Computation of the root itself lives in the merkle package.
func (s *StateStore) SortedLeaves() [][]byte {
	s.mu.RLock()
	defer s.mu.RUnlock()

	addrs := make([]Address, 0, len(s.accounts))
	for a := range s.accounts {
		addrs = append(addrs, a)
	}
	sort.Slice(addrs, func(i, j int) bool { return addrs[i] < addrs[j] })

	leaves := make([][]byte, 0, len(addrs))
	for _, a := range addrs {
		leaves = append(leaves, encodeAccountLeaf(a, s.accounts[a]))
	}
	return leaves
}

func encodeAccountLeaf(addr Address, st AccountState) []byte {
	w := codec.NewWriter()
	w.String(addr.String())

	assets := make([]AssetId, 0, len(st.Balances))
	for a := range st.Balances {
		assets = append(assets, a)
	}
	sort.Slice(assets, func(i, j int) bool { return assets[i] < assets[j] })
	w.U64(uint64(len(assets)))
	for _, a := range assets {
		w.String(a.String())
		w.U64(st.Balances[a])
	}
	w.U64(st.Nonce)
	w.OptBlob(st.HasLastTx, st.LastTxHash[:])
	w.OptBlob(st.HasLastEntry, st.LastEntryId[:])
	return w.Bytes()
}
