package aec

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/BrunoAwdd/atlasDb/internal/codec"
	"github.com/BrunoAwdd/atlasDb/internal/ledger"
)

// Config controls segment rotation and caching policy.
type Config struct {
	Dir            string
	MaxSegmentSize int64 // bytes; 0 selects the 64MiB default
	MaxSegmentTick int   // events; 0 selects the 100_000 default
	CacheSize      int   // decoded-record cache entries; 0 uses a small default
}

func (c Config) withDefaults() Config {
	if c.MaxSegmentSize == 0 {
		c.MaxSegmentSize = 64 << 20 // 64MiB
	}
	if c.MaxSegmentTick == 0 {
		c.MaxSegmentTick = 100_000
	}
	if c.CacheSize == 0 {
		c.CacheSize = 4096
	}
	return c
}

// Store implements Account Event Chain storage: a single append-only
// writer feeding rotating segment files, fronted by a rebuildable
// in-memory index and a bounded decoded-record cache. Writes are
// serialized by mu, matching the single-writer-per-active-segment rule —
// the Accounting Engine is itself single-threaded for the same reason,
// so this lock is never contended except with readers.
type Store struct {
	mu       sync.Mutex
	cfg      Config
	active   *segmentWriter
	nextTick uint64
	ix       *index
	cache    *recordCache
}

// Open creates or resumes a Store rooted at cfg.Dir. Existing closed
// segments are discovered and replayed into the index; an unclosed segment
// left behind by a prior crash is recovered by scanning it and truncating
// to its last valid record, then finalized in place; further appends go
// to a fresh segment.
func Open(cfg Config) (*Store, error) {
	cfg = cfg.withDefaults()
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("aec: mkdir: %w", err)
	}

	s := &Store{cfg: cfg, ix: newIndex(), cache: newRecordCache(cfg.CacheSize)}
	nextTick, err := s.recover()
	if err != nil {
		return nil, err
	}
	s.nextTick = nextTick

	w, err := openSegmentWriter(cfg.Dir, nextTick)
	if err != nil {
		return nil, err
	}
	s.active = w
	return s, nil
}

// Append writes entry's event record into the active segment once per
// touched account sharing the same physical bytes (the record is written a
// single time; the index gains one (address, tick) key per account), then
// rotates the segment if it has crossed its size or count threshold.
func (s *Store) Append(entry *ledger.LedgerEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	payload := entry.Encode()
	accounts := entry.TouchedAccounts()
	if len(accounts) == 0 {
		return fmt.Errorf("aec: entry %s touches no accounts", entry.EntryId.Hex())
	}

	loc, err := s.active.append(payload)
	if err != nil {
		return err
	}
	// One event record is written once; every touched account gets its own
	// tick pointing at that same location, since Tail/Load are scoped
	// per-address — the prev_for_account chain is per-account, not global.
	for _, acc := range accounts {
		tick := s.nextTick
		s.nextTick++
		s.ix.record(acc, tick, entry.EntryId, loc)
	}
	s.cache.put(loc, payload)

	if s.active.shouldClose(s.cfg.MaxSegmentSize, s.cfg.MaxSegmentTick) {
		return s.rotate()
	}
	return nil
}

// rotate must be called with s.mu held.
func (s *Store) rotate() error {
	endTick := s.nextTick
	if endTick > 0 {
		endTick--
	}
	if err := s.active.close(endTick); err != nil {
		return err
	}
	w, err := openSegmentWriter(s.cfg.Dir, s.nextTick)
	if err != nil {
		return err
	}
	s.active = w
	return nil
}

// Tail returns the most recently appended entry for addr.
func (s *Store) Tail(addr ledger.Address) (*ledger.LedgerEntry, error) {
	tick, ok := s.ix.tailTick(addr)
	if !ok {
		return nil, ErrNoSuchAccount
	}
	loc, ok := s.ix.locationByTick(addr, tick)
	if !ok {
		return nil, ErrNoSuchAccount
	}
	return s.load(loc)
}

// Load fetches the entry recorded for addr with the given entry id.
func (s *Store) Load(addr ledger.Address, entryId codec.Hash) (*ledger.LedgerEntry, error) {
	loc, ok := s.ix.locationByEntry(addr, entryId)
	if !ok {
		return nil, ErrNoSuchEntry
	}
	return s.load(loc)
}

// WalkBack returns up to limit entries for addr, most recent first,
// following PrevForAccount pointers from the tail — the per-account
// linked list. limit <= 0 means unbounded.
func (s *Store) WalkBack(addr ledger.Address, limit int) ([]*ledger.LedgerEntry, error) {
	cur, err := s.Tail(addr)
	if err != nil {
		if err == ErrNoSuchAccount {
			return nil, nil
		}
		return nil, err
	}

	var out []*ledger.LedgerEntry
	for cur != nil {
		out = append(out, cur)
		if limit > 0 && len(out) >= limit {
			break
		}
		prev, has := cur.PrevForAccount[addr]
		if !has {
			break
		}
		cur, err = s.Load(addr, prev)
		if err != nil {
			return out, fmt.Errorf("aec: broken chain for %s at %s: %w", addr, prev.Hex(), err)
		}
	}
	return out, nil
}

// Stream returns the raw, length-prefixed segment bytes recorded for addr
// with tick in [fromTick, toTick], concatenated in ascending tick order —
// zero-copy raw segment bytes covering the requested range, for bulk sync
// and audits. Unlike WalkBack/Load, this never deserializes a
// LedgerEntry: a bulk-sync peer or an external audit tool gets exactly
// the bytes the segment file holds, so it can replay or checksum them
// independently of this node's decoder.
func (s *Store) Stream(addr ledger.Address, fromTick, toTick uint64) (io.Reader, error) {
	locs := s.ix.locationsInRange(addr, fromTick, toTick)
	var buf bytes.Buffer
	for _, loc := range locs {
		raw, err := readRawRecordAt(s.cfg.Dir, loc.SegmentId, loc.Offset, loc.Length)
		if err != nil {
			return nil, err
		}
		buf.Write(raw)
	}
	return &buf, nil
}

func (s *Store) load(loc Location) (*ledger.LedgerEntry, error) {
	if payload, ok := s.cache.get(loc); ok {
		return ledger.DecodeLedgerEntry(payload)
	}
	payload, err := readEventAt(s.cfg.Dir, loc.SegmentId, loc.Offset, loc.Length)
	if err != nil {
		return nil, err
	}
	s.cache.put(loc, payload)
	return ledger.DecodeLedgerEntry(payload)
}

// Close finalizes the active segment so the workspace contains only
// closed, checksummed segments.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	endTick := s.nextTick
	if endTick > 0 {
		endTick--
	}
	return s.active.close(endTick)
}

// recover discovers every existing segment file, reindexing closed ones in
// startTick order. The single segment with the highest startTick may be
// the one an in-flight writer was appending to when the process died; it
// is checksum-verified and, if its trailer doesn't check out, truncated to
// its last complete record and finalized in place. It returns the tick at
// which a freshly opened active segment should start.
func (s *Store) recover() (uint64, error) {
	entries, err := os.ReadDir(s.cfg.Dir)
	if err != nil {
		return 0, fmt.Errorf("aec: read dir: %w", err)
	}

	type found struct {
		name      string
		startTick uint64
	}
	var segments []found
	for _, e := range entries {
		name := e.Name()
		if !strings.HasPrefix(name, "segment_") || !strings.HasSuffix(name, ".bin") {
			continue
		}
		start, ok := parseSegmentStart(name)
		if !ok {
			continue
		}
		segments = append(segments, found{name: name, startTick: start})
	}
	sort.Slice(segments, func(i, j int) bool { return segments[i].startTick < segments[j].startTick })

	nextTick := uint64(0)
	for i, seg := range segments {
		path := filepath.Join(s.cfg.Dir, seg.name)
		isLast := i == len(segments)-1

		_, lastGood, verr := verifySegment(path)
		if verr != nil {
			if !isLast {
				return 0, fmt.Errorf("aec: %s: %w", seg.name, verr)
			}
			// The last segment may be the one an active writer was
			// appending to at crash time: truncate to the last complete
			// record and finalize it in place.
			if err := os.Truncate(path, lastGood); err != nil {
				return 0, fmt.Errorf("aec: truncate %s: %w", seg.name, err)
			}
		}

		records, err := decodeRecords(path, int64(headerSize), lastGood)
		if err != nil {
			return 0, fmt.Errorf("aec: decode %s: %w", seg.name, err)
		}
		tick := seg.startTick
		endTick := seg.startTick
		for _, r := range records {
			for range r.entry.TouchedAccounts() {
				endTick = tick
				tick++
			}
		}
		s.indexRecords(seg.name, seg.startTick, records)

		if verr != nil {
			if err := finalizeOpenSegment(s.cfg.Dir, seg.name, endTick); err != nil {
				return 0, fmt.Errorf("aec: finalize %s: %w", seg.name, err)
			}
		}
		if tick > nextTick {
			nextTick = tick
		}
	}

	return nextTick, nil
}

// decodedRecord is one length-prefixed record read back from a segment
// file, paired with its on-disk location.
type decodedRecord struct {
	entry  *ledger.LedgerEntry
	offset int64
	length uint32
}

// decodeRecords reads and decodes every length-prefixed record in
// [from, to) of path.
func decodeRecords(path string, from, to int64) ([]decodedRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var out []decodedRecord
	offset := from
	for offset+lenPrefixSize <= to {
		lbuf := make([]byte, lenPrefixSize)
		if _, err := f.ReadAt(lbuf, offset); err != nil {
			break
		}
		n := int64(codec.NewReader(lbuf).U32())
		if offset+lenPrefixSize+n > to {
			break
		}
		payload := make([]byte, n)
		if _, err := f.ReadAt(payload, offset+lenPrefixSize); err != nil {
			break
		}
		entry, err := ledger.DecodeLedgerEntry(payload)
		if err != nil {
			return nil, fmt.Errorf("decode record at %d: %w", offset, err)
		}
		out = append(out, decodedRecord{entry: entry, offset: offset, length: uint32(n)})
		offset += lenPrefixSize + n
	}
	return out, nil
}

// indexRecords feeds decoded records into s.ix, assigning sequential ticks
// starting at startTick exactly as Append does at write time: one tick per
// touched account per record, all sharing that record's Location.
func (s *Store) indexRecords(segmentId string, startTick uint64, records []decodedRecord) {
	tick := startTick
	for _, r := range records {
		loc := Location{SegmentId: segmentId, Offset: r.offset, Length: r.length}
		for _, acc := range r.entry.TouchedAccounts() {
			s.ix.record(acc, tick, r.entry.EntryId, loc)
			tick++
		}
	}
}

// parseSegmentStart extracts the startTick encoded in a segment_*.bin file
// name (see segmentName).
func parseSegmentStart(name string) (start uint64, ok bool) {
	trimmed := strings.TrimSuffix(strings.TrimPrefix(name, "segment_"), ".bin")
	v, err := strconv.ParseUint(trimmed, 10, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}
