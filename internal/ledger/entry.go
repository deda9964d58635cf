package ledger

import (
	"sort"

	"github.com/BrunoAwdd/atlasDb/internal/codec"
)

// LegKind is Debit or Credit.
type LegKind uint8

const (
	Debit LegKind = iota
	Credit
)

// Leg is one debit or credit component of a LedgerEntry.
type Leg struct {
	Account Address
	Asset   AssetId
	Kind    LegKind
	Amount  uint64 // spec names u128; see DESIGN.md "Balance/amount width"
}

func (l Leg) encode(w *codec.Writer) {
	w.String(l.Account.String())
	w.String(l.Asset.String())
	w.U8(uint8(l.Kind))
	w.U64(l.Amount)
}

func decodeLeg(r *codec.Reader) Leg {
	acc := r.String()
	asset := r.String()
	kind := LegKind(r.U8())
	amount := r.U64()
	return Leg{Account: Address(acc), Asset: AssetId(asset), Kind: kind, Amount: amount}
}

const maxMemoLen = 512

// LedgerEntry is an atomic double-entry accounting record.
type LedgerEntry struct {
	EntryId        codec.Hash
	Legs           []Leg
	TxHash         codec.Hash
	Memo           string
	HasMemo        bool
	BlockHeight    uint64
	Timestamp      uint64
	PrevForAccount map[Address]codec.Hash

	// NonceBumpAccount names the account whose nonce advances when this
	// entry is applied (the transaction's From, for the natures that
	// consume a nonce). It is bookkeeping metadata, not hash input: it is
	// fully determined by the Nature that produced the entry and is
	// excluded from CanonicalBytes for the same reason PrevForAccount is.
	NonceBumpAccount Address
	HasNonceBump     bool
}

// CanonicalBytes returns the byte-deterministic encoding that EntryId is
// hashed over: legs, then tx_hash, memo, block_height, timestamp.
// prev_for_account is populated after the id is computed and therefore
// deliberately excluded from the hash input.
func (e *LedgerEntry) CanonicalBytes() []byte {
	w := codec.NewWriter()
	w.U64(uint64(len(e.Legs)))
	for _, l := range e.Legs {
		l.encode(w)
	}
	w.Raw(e.TxHash[:])
	w.OptString(e.HasMemo, e.Memo)
	w.U64(e.BlockHeight)
	w.U64(e.Timestamp)
	return w.Bytes()
}

// ComputeEntryId hashes CanonicalBytes and sets EntryId, returning it.
func (e *LedgerEntry) ComputeEntryId() codec.Hash {
	e.EntryId = codec.Sum(e.CanonicalBytes())
	return e.EntryId
}

// TouchedAccounts returns the distinct accounts referenced by the entry's
// legs, in first-seen order — used both to fill PrevForAccount and to apply
// the journal to the State Store.
func (e *LedgerEntry) TouchedAccounts() []Address {
	seen := make(map[Address]bool, len(e.Legs))
	var out []Address
	for _, l := range e.Legs {
		if !seen[l.Account] {
			seen[l.Account] = true
			out = append(out, l.Account)
		}
	}
	return out
}

// VerifyBalanced checks the dual-entry invariant: for every AssetId present
// in the legs, sum(Debit) == sum(Credit).
func (e *LedgerEntry) VerifyBalanced() error {
	sums := make(map[AssetId]struct{ debit, credit uint64 })
	for _, l := range e.Legs {
		s := sums[l.Asset]
		switch l.Kind {
		case Debit:
			s.debit += l.Amount
		case Credit:
			s.credit += l.Amount
		}
		sums[l.Asset] = s
	}
	if len(e.Legs) < 2 {
		return ErrUnbalancedJournal
	}
	for _, s := range sums {
		if s.debit != s.credit {
			return ErrUnbalancedJournal
		}
	}
	return nil
}

// Reverse builds a new, unhashed LedgerEntry whose legs are the same as e's
// with Debit/Credit swapped. The caller must still
// assign TxHash/BlockHeight/Timestamp/PrevForAccount and compute a fresh
// EntryId — originals are never edited in place.
func (e *LedgerEntry) Reverse() *LedgerEntry {
	legs := make([]Leg, len(e.Legs))
	for i, l := range e.Legs {
		rl := l
		if l.Kind == Debit {
			rl.Kind = Credit
		} else {
			rl.Kind = Debit
		}
		legs[i] = rl
	}
	return &LedgerEntry{Legs: legs}
}

// Encode serializes the entry in full, including EntryId and
// PrevForAccount, for Account Event Chain storage. This is distinct
// from CanonicalBytes: CanonicalBytes is the hash preimage, Encode is the
// on-disk envelope and is never itself hashed.
func (e *LedgerEntry) Encode() []byte {
	w := codec.NewWriter()
	w.Hash(e.EntryId)
	w.U64(uint64(len(e.Legs)))
	for _, l := range e.Legs {
		l.encode(w)
	}
	w.Hash(e.TxHash)
	w.OptString(e.HasMemo, e.Memo)
	w.U64(e.BlockHeight)
	w.U64(e.Timestamp)

	accs := sortedAccounts(e.PrevForAccount)
	w.U64(uint64(len(accs)))
	for _, a := range accs {
		w.String(a.String())
		w.Hash(e.PrevForAccount[a])
	}
	w.OptString(e.HasNonceBump, e.NonceBumpAccount.String())
	return w.Bytes()
}

// DecodeLedgerEntry is the inverse of Encode.
func DecodeLedgerEntry(b []byte) (*LedgerEntry, error) {
	r := codec.NewReader(b)
	e := &LedgerEntry{}
	e.EntryId = r.Hash()
	n := r.U64()
	e.Legs = make([]Leg, 0, n)
	for i := uint64(0); i < n; i++ {
		e.Legs = append(e.Legs, decodeLeg(r))
	}
	e.TxHash = r.Hash()
	e.HasMemo, e.Memo = r.OptString()
	e.BlockHeight = r.U64()
	e.Timestamp = r.U64()

	pn := r.U64()
	if r.Err() != nil {
		return nil, r.Err()
	}
	if pn > 0 {
		e.PrevForAccount = make(map[Address]codec.Hash, pn)
		for i := uint64(0); i < pn; i++ {
			addr := Address(r.String())
			h := r.Hash()
			e.PrevForAccount[addr] = h
		}
	}
	var bumpAcc string
	e.HasNonceBump, bumpAcc = r.OptString()
	e.NonceBumpAccount = Address(bumpAcc)
	if r.Err() != nil {
		return nil, r.Err()
	}
	return e, nil
}

// sortedAccounts returns a's keys sorted lexically, used wherever a
// deterministic iteration order over PrevForAccount is needed (e.g.
// serializing for storage).
func sortedAccounts(m map[Address]codec.Hash) []Address {
	out := make([]Address, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
