package aec

import (
	"sort"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/BrunoAwdd/atlasDb/internal/codec"
	"github.com/BrunoAwdd/atlasDb/internal/ledger"
)

// addrEntryKey identifies one account's view of one entry for the
// secondary (address, entry_id) lookup used by Load.
type addrEntryKey struct {
	addr  ledger.Address
	entry codec.Hash
}

// index is local, rebuildable metadata: it is not consensus material, and
// may be rebuilt at any time by replaying every segment. It holds three
// views over the same set of appended events:
//
//   - byTick:  (address, tick) -> Location, the primary index shape.
//   - byEntry: (address, entry_id) -> tick, so Load(addr, entryId) doesn't
//     require a linear scan.
//   - tail:    address -> latest tick, for Tail(addr).
//
// All three are plain in-memory maps; a bounded LRU (not this index) caches
// decoded record bytes to avoid re-reading closed segment files for hot
// accounts.
type index struct {
	mu      sync.RWMutex
	byTick  map[ledger.Address]map[uint64]Location
	byEntry map[addrEntryKey]uint64
	tail    map[ledger.Address]uint64
}

func newIndex() *index {
	return &index{
		byTick:  make(map[ledger.Address]map[uint64]Location),
		byEntry: make(map[addrEntryKey]uint64),
		tail:    make(map[ledger.Address]uint64),
	}
}

func (ix *index) record(addr ledger.Address, tick uint64, entryId codec.Hash, loc Location) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	byTick, ok := ix.byTick[addr]
	if !ok {
		byTick = make(map[uint64]Location)
		ix.byTick[addr] = byTick
	}
	byTick[tick] = loc
	ix.byEntry[addrEntryKey{addr, entryId}] = tick

	if cur, existed := ix.tail[addr]; !existed || tick > cur {
		ix.tail[addr] = tick
	}
}

func (ix *index) tailTick(addr ledger.Address) (uint64, bool) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	t, ok := ix.tail[addr]
	return t, ok
}

func (ix *index) locationByTick(addr ledger.Address, tick uint64) (Location, bool) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	m, ok := ix.byTick[addr]
	if !ok {
		return Location{}, false
	}
	loc, ok := m[tick]
	return loc, ok
}

// locationsInRange returns every recorded Location for addr whose tick
// falls within [from, to], ordered by ascending tick — the lookup behind
// Store.Stream's ranged byte-stream.
func (ix *index) locationsInRange(addr ledger.Address, from, to uint64) []Location {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	m, ok := ix.byTick[addr]
	if !ok {
		return nil
	}
	ticks := make([]uint64, 0, len(m))
	for t := range m {
		if t >= from && t <= to {
			ticks = append(ticks, t)
		}
	}
	sort.Slice(ticks, func(i, j int) bool { return ticks[i] < ticks[j] })
	out := make([]Location, len(ticks))
	for i, t := range ticks {
		out[i] = m[t]
	}
	return out
}

func (ix *index) locationByEntry(addr ledger.Address, entryId codec.Hash) (Location, bool) {
	ix.mu.RLock()
	tick, ok := ix.byEntry[addrEntryKey{addr, entryId}]
	if !ok {
		ix.mu.RUnlock()
		return Location{}, false
	}
	m := ix.byTick[addr]
	ix.mu.RUnlock()
	loc, ok := m[tick]
	return loc, ok
}

// recordCache is a bounded cache of decoded payload bytes keyed by
// (segmentId, offset), sparing repeated reads of closed segment files for
// accounts whose tails are visited frequently (balance queries, statement
// pagination).
type recordCache struct {
	cache *lru.Cache[recordKey, []byte]
}

type recordKey struct {
	segment string
	offset  int64
}

func newRecordCache(size int) *recordCache {
	c, err := lru.New[recordKey, []byte](size)
	if err != nil {
		// size <= 0 is a programmer error; golang-lru only errors on that.
		c, _ = lru.New[recordKey, []byte](1)
	}
	return &recordCache{cache: c}
}

func (rc *recordCache) get(loc Location) ([]byte, bool) {
	return rc.cache.Get(recordKey{segment: loc.SegmentId, offset: loc.Offset})
}

func (rc *recordCache) put(loc Location, payload []byte) {
	rc.cache.Add(recordKey{segment: loc.SegmentId, offset: loc.Offset}, payload)
}
