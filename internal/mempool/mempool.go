// Package mempool implements a local, non-consensus-material admission
// queue of pending transactions, ordered by fee priority and deduplicated
// by hash and by (sender, nonce).
package mempool

import (
	"container/heap"
	"sync"
	"time"

	"github.com/BrunoAwdd/atlasDb/internal/codec"
	"github.com/BrunoAwdd/atlasDb/internal/ledger"
)

// Verifier is the narrow signature-checking capability the Mempool's
// stateless admission pass needs. The concrete implementation lives in
// package identity (the node's signing/verification capability);
// depending on this interface instead of the package keeps mempool free of
// any signing concern of its own.
type Verifier interface {
	Verify(pubKey, msg, sig []byte) bool
}

// Config bounds the pool's stateless/stateful admission rules and
// expiration policy.
type Config struct {
	ChainId         string
	MaxTxSize       int           // bytes; 0 selects the 16 KiB default
	MaxMemoLen      int           // bytes
	MaxPerSender    int           // pending transactions per sender
	MaxGlobal       int           // total pending transactions
	Expiry          time.Duration // T_expire: drop an unserved tx after this long
}

func (c Config) withDefaults() Config {
	if c.MaxTxSize == 0 {
		c.MaxTxSize = 16 << 10
	}
	if c.MaxMemoLen == 0 {
		c.MaxMemoLen = 512
	}
	if c.MaxPerSender == 0 {
		c.MaxPerSender = 64
	}
	if c.MaxGlobal == 0 {
		c.MaxGlobal = 50_000
	}
	if c.Expiry == 0 {
		c.Expiry = 2 * time.Minute
	}
	return c
}

// senderNonce is the secondary dedup/replace-by-fee key.
type senderNonce struct {
	from  ledger.Address
	nonce uint64
}

// entry is one admitted, still-pending transaction.
type entry struct {
	tx         *ledger.Transaction
	txHash     codec.Hash
	priority   uint64
	seq        uint64
	receivedAt time.Time
	heapIndex  int
}

func (e *entry) size() int { return len(e.tx.CanonicalBytes()) + len(e.tx.Signature) + len(e.tx.PublicKey) }

// priorityHeap orders entries by descending priority, then ascending
// sequence number (FIFO within equal priority).
type priorityHeap []*entry

func (h priorityHeap) Len() int { return len(h) }
func (h priorityHeap) Less(i, j int) bool {
	if h[i].priority != h[j].priority {
		return h[i].priority > h[j].priority
	}
	return h[i].seq < h[j].seq
}
func (h priorityHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].heapIndex = i
	h[j].heapIndex = j
}
func (h *priorityHeap) Push(x interface{}) {
	e := x.(*entry)
	e.heapIndex = len(*h)
	*h = append(*h, e)
}
func (h *priorityHeap) Pop() interface{} {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.heapIndex = -1
	*h = old[:n-1]
	return e
}

// Pool is the admission queue. It is safe for concurrent use: reads
// (Select, Size) and writes (Add, Remove, MarkIncluded) take the same
// short-held mutex, so all of them are serialized.
type Pool struct {
	cfg    Config
	verify Verifier
	state  *ledger.StateStore

	mu        sync.Mutex
	byHash    map[codec.Hash]*entry
	byAccount map[senderNonce]*entry
	perSender map[ledger.Address]int
	heap      priorityHeap
	nextSeq   uint64
}

func New(cfg Config, verify Verifier, state *ledger.StateStore) *Pool {
	return &Pool{
		cfg:       cfg.withDefaults(),
		verify:    verify,
		state:     state,
		byHash:    make(map[codec.Hash]*entry),
		byAccount: make(map[senderNonce]*entry),
		perSender: make(map[ledger.Address]int),
	}
}

// priorityOf implements the pool's ordering rule: fee_amount, scaled by
// gas_limit when the submitter supplied one.
func priorityOf(tx *ledger.Transaction) uint64 {
	if tx.HasGasLimit && tx.GasLimit > 0 {
		p := tx.FeeAmount * tx.GasLimit
		if tx.GasLimit != 0 && p/tx.GasLimit != tx.FeeAmount {
			return ^uint64(0) // overflow: treat as maximal priority rather than wrapping
		}
		return p
	}
	return tx.FeeAmount
}

// Add runs the stateless, then light-stateful, admission checks and
// inserts tx if it passes. A transaction sharing (from, nonce) with an
// already-pending one is accepted only if its fee is strictly higher
// (replace-by-fee), which evicts the prior entry.
func (p *Pool) Add(tx *ledger.Transaction) error {
	if err := tx.Validate(p.cfg.ChainId, p.cfg.MaxMemoLen); err != nil {
		return err
	}
	if !p.verify.Verify(tx.PublicKey, tx.CanonicalBytes(), tx.Signature) {
		return ErrInvalidSignature
	}
	if tx.HasFeePayer && tx.FeePayer != tx.From {
		if !p.verify.Verify(tx.FeePayerPubKey, tx.CanonicalBytes(), tx.FeePayerSignature) {
			return ErrInvalidSignature
		}
	}

	e := &entry{tx: tx, txHash: tx.Hash(), priority: priorityOf(tx), receivedAt: time.Now()}
	if p.cfg.MaxTxSize > 0 && e.size() > p.cfg.MaxTxSize {
		return ErrTooLarge
	}

	fromState := p.state.Get(tx.From)
	if tx.Nonce < fromState.Nonce+1 {
		return ErrNonceTooLow
	}
	maxFee := tx.FeeAmount
	if fromState.Balances[tx.FeeAsset] < maxFee {
		return ErrUnderfunded
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.byHash[e.txHash]; ok {
		return ErrAlreadyPresent
	}

	key := senderNonce{tx.From, tx.Nonce}
	if prior, ok := p.byAccount[key]; ok {
		if e.priority <= prior.priority {
			return ErrFeeTooLowToReplace
		}
		p.removeLocked(prior)
	} else {
		if p.perSender[tx.From] >= p.cfg.MaxPerSender {
			return ErrSenderCapExceeded
		}
		if len(p.byHash) >= p.cfg.MaxGlobal {
			if !p.evictLowestPriorityLocked(e.priority) {
				return ErrGlobalCapExceeded
			}
		}
	}

	e.seq = p.nextSeq
	p.nextSeq++
	p.byHash[e.txHash] = e
	p.byAccount[key] = e
	p.perSender[tx.From]++
	heap.Push(&p.heap, e)
	return nil
}

// evictLowestPriorityLocked drops the globally lowest-priority pending
// transaction if incoming outranks it: backpressure drops the
// lowest-priority entries rather than growing unbounded. Called with p.mu held.
func (p *Pool) evictLowestPriorityLocked(incoming uint64) bool {
	if len(p.heap) == 0 {
		return false
	}
	worst := p.heap[0]
	for _, e := range p.heap {
		if e.priority < worst.priority || (e.priority == worst.priority && e.seq > worst.seq) {
			worst = e
		}
	}
	if worst.priority >= incoming {
		return false
	}
	p.removeLocked(worst)
	return true
}

func (p *Pool) removeLocked(e *entry) {
	delete(p.byHash, e.txHash)
	delete(p.byAccount, senderNonce{e.tx.From, e.tx.Nonce})
	p.perSender[e.tx.From]--
	if p.perSender[e.tx.From] <= 0 {
		delete(p.perSender, e.tx.From)
	}
	if e.heapIndex >= 0 && e.heapIndex < len(p.heap) && p.heap[e.heapIndex] == e {
		heap.Remove(&p.heap, e.heapIndex)
	}
}

// Select returns up to n pending transactions in priority order without
// removing them; the leader drains the mempool by selecting, then marks
// included transactions once the block commits.
func (p *Pool) Select(n int) []*ledger.Transaction {
	p.mu.Lock()
	defer p.mu.Unlock()

	ordered := make(priorityHeap, len(p.heap))
	copy(ordered, p.heap)
	heap.Init(&ordered)

	if n <= 0 || n > len(ordered) {
		n = len(ordered)
	}
	out := make([]*ledger.Transaction, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, heap.Pop(&ordered).(*entry).tx)
	}
	return out
}

// Remove drops a transaction from the pool by hash, if present.
func (p *Pool) Remove(txHash codec.Hash) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if e, ok := p.byHash[txHash]; ok {
		p.removeLocked(e)
	}
}

// MarkIncluded removes every listed transaction hash — called once their
// containing block commits.
func (p *Pool) MarkIncluded(txHashes []codec.Hash) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, h := range txHashes {
		if e, ok := p.byHash[h]; ok {
			p.removeLocked(e)
		}
	}
}

// Size returns the number of pending transactions.
func (p *Pool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.byHash)
}

// ExpireStale drops every pending transaction whose (from, nonce) has
// already been superseded by committed state, or whose age exceeds
// cfg.Expiry. It must be called periodically by
// the Orchestrator's scheduler; the mempool does not run its own timer.
func (p *Pool) ExpireStale(now time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()

	var stale []*entry
	for _, e := range p.byHash {
		committedNonce := p.state.Get(e.tx.From).Nonce
		if e.tx.Nonce <= committedNonce {
			stale = append(stale, e)
			continue
		}
		if now.Sub(e.receivedAt) > p.cfg.Expiry {
			stale = append(stale, e)
		}
	}
	for _, e := range stale {
		p.removeLocked(e)
	}
}
