// Package aec implements Account Event Chain storage: a per-account
// linear hash chain of events, persisted in append-only segment files
// and indexed by a local KV index for random access.
package aec

import (
	"encoding/binary"
	"fmt"
	"os"

	"github.com/BrunoAwdd/atlasDb/internal/codec"
)

const (
	segmentMagic   uint32 = 0x41544C53 // "ATLS"
	segmentVersion uint16 = 1
	headerSize            = 4 + 2 + 8 + 8 // magic|version|start_tick|end_tick
	trailerSize           = codec.HashSize
	lenPrefixSize         = 4
)

// Location pinpoints one event record inside a segment file.
type Location struct {
	SegmentId string
	Offset    int64
	Length    uint32
}

// segmentName derives the single, never-renamed file name for the segment
// starting at startTick. Because the name never changes across a segment's
// life (active, closed, or recovered), index Locations recorded at append
// time stay valid forever — there is no rename step to invalidate them.
func segmentName(startTick uint64) string {
	return fmt.Sprintf("segment_%020d.bin", startTick)
}

// segmentWriter owns the single active segment file for one segment
// family. There is a single writer per active segment, and rotation must
// never let a reader observe a half-written record — every
// Append here writes the length prefix and payload in one buffered write
// followed by an explicit flush, so a concurrent reader of the file never
// sees a partial record (see readEventAt).
type segmentWriter struct {
	dir        string
	file       *os.File
	hasher     *codec.Hasher
	startTick  uint64
	byteCount  int64
	eventCount int
	name       string
}

func openSegmentWriter(dir string, startTick uint64) (*segmentWriter, error) {
	name := segmentName(startTick)
	path := dir + "/" + name
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return nil, fmt.Errorf("aec: open segment: %w", err)
	}

	w := &segmentWriter{dir: dir, file: f, hasher: codec.NewHasher(), startTick: startTick, name: name}

	hdr := make([]byte, headerSize)
	binary.LittleEndian.PutUint32(hdr[0:4], segmentMagic)
	binary.LittleEndian.PutUint16(hdr[4:6], segmentVersion)
	binary.LittleEndian.PutUint64(hdr[6:14], startTick)
	binary.LittleEndian.PutUint64(hdr[14:22], startTick) // end_tick patched on close
	if _, err := w.writeTracked(hdr); err != nil {
		f.Close()
		return nil, err
	}
	return w, nil
}

func (w *segmentWriter) writeTracked(b []byte) (int, error) {
	n, err := w.file.Write(b)
	if err != nil {
		return n, err
	}
	w.hasher.Write(b)
	w.byteCount += int64(n)
	return n, nil
}

// append writes one length-prefixed event record and returns its location.
// Tick assignment is the Store's responsibility since a single physical
// record can be shared by several accounts' ticks.
func (w *segmentWriter) append(payload []byte) (Location, error) {
	offset := w.byteCount
	lbuf := make([]byte, lenPrefixSize)
	binary.LittleEndian.PutUint32(lbuf, uint32(len(payload)))
	if _, err := w.writeTracked(lbuf); err != nil {
		return Location{}, err
	}
	if _, err := w.writeTracked(payload); err != nil {
		return Location{}, err
	}
	if err := w.file.Sync(); err != nil {
		return Location{}, err
	}
	w.eventCount++
	return Location{SegmentId: w.name, Offset: offset, Length: uint32(len(payload))}, nil
}

// shouldClose reports whether the active segment has crossed a
// size or event-count threshold: closure happens on whichever fires
// first.
func (w *segmentWriter) shouldClose(maxBytes int64, maxEvents int) bool {
	return (maxBytes > 0 && w.byteCount >= maxBytes) || (maxEvents > 0 && w.eventCount >= maxEvents)
}

// close finalizes the segment in place: it closes the file descriptor,
// then finalizeOpenSegment patches end_tick and appends the BLAKE3 trailer
// checksum over the patched header and every record. The file name never
// changes. endTick is the last tick the Store assigned to a record in this
// segment.
func (w *segmentWriter) close(endTick uint64) error {
	if err := w.file.Close(); err != nil {
		return err
	}
	return finalizeOpenSegment(w.dir, w.name, endTick)
}

func u64le(v uint64) []byte {
	b := make([]byte, 8)
	binary.LittleEndian.PutUint64(b, v)
	return b
}

// finalizeOpenSegment turns an unclosed segment into a properly closed one
// in place: patches end_tick and appends the BLAKE3 trailer over the
// patched contents. Used by segmentWriter.close on rotation/shutdown and by
// Store.recover for the last segment found without a valid trailer (after
// truncating it).
func finalizeOpenSegment(dir, name string, endTick uint64) error {
	path := dir + "/" + name
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("aec: read recovered segment: %w", err)
	}
	if len(raw) >= headerSize {
		copy(raw[14:22], u64le(endTick))
	}

	f, err := os.OpenFile(path, os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("aec: reopen recovered segment: %w", err)
	}
	defer f.Close()

	if _, err := f.WriteAt(u64le(endTick), 14); err != nil {
		return err
	}

	hasher := codec.NewHasher()
	hasher.Write(raw)
	var trailer codec.Hash
	copy(trailer[:], hasher.Sum(nil))
	if _, err := f.WriteAt(trailer[:], int64(len(raw))); err != nil {
		return err
	}
	return f.Sync()
}

// readEventAt opens segmentId under dir and reads the length-prefixed
// record at offset. Used by Store.Load/Stream for random access into any
// segment, open or closed.
func readEventAt(dir, segmentId string, offset int64, length uint32) ([]byte, error) {
	f, err := os.Open(dir + "/" + segmentId)
	if err != nil {
		return nil, fmt.Errorf("aec: open %s: %w", segmentId, err)
	}
	defer f.Close()

	lbuf := make([]byte, lenPrefixSize)
	if _, err := f.ReadAt(lbuf, offset); err != nil {
		return nil, fmt.Errorf("aec: read length prefix: %w", err)
	}
	n := binary.LittleEndian.Uint32(lbuf)
	if n != length {
		return nil, ErrIndexCorrupt
	}
	payload := make([]byte, n)
	if _, err := f.ReadAt(payload, offset+lenPrefixSize); err != nil {
		return nil, fmt.Errorf("aec: read payload: %w", err)
	}
	return payload, nil
}

// readRawRecordAt reads the length-prefixed record at offset verbatim —
// the 4-byte length prefix plus the payload, exactly as it sits on disk —
// for callers that want the raw segment bytes rather than a decoded
// payload (Store.Stream's bulk-sync/audit use).
func readRawRecordAt(dir, segmentId string, offset int64, length uint32) ([]byte, error) {
	f, err := os.Open(dir + "/" + segmentId)
	if err != nil {
		return nil, fmt.Errorf("aec: open %s: %w", segmentId, err)
	}
	defer f.Close()

	buf := make([]byte, lenPrefixSize+int(length))
	if _, err := f.ReadAt(buf, offset); err != nil {
		return nil, fmt.Errorf("aec: read raw record: %w", err)
	}
	return buf, nil
}

// verifySegment reads a segment end-to-end, validating its header and (if
// a trailer-sized tail is present) its BLAKE3 checksum. lastGoodOffset is
// the byte offset immediately following the last complete record — the
// safe truncation point if the trailer doesn't check out. It is the
// crash-recovery scan path run against the last segment on startup, and
// the general integrity check used by audits.
func verifySegment(path string) (events int, lastGoodOffset int64, err error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 0, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return 0, 0, err
	}
	size := info.Size()
	if size < int64(headerSize) {
		return 0, 0, fmt.Errorf("aec: %w: truncated header", ErrSegmentChecksumFail)
	}

	hdr := make([]byte, headerSize)
	if _, err := f.ReadAt(hdr, 0); err != nil {
		return 0, 0, err
	}
	if binary.LittleEndian.Uint32(hdr[0:4]) != segmentMagic {
		return 0, 0, fmt.Errorf("aec: %w: bad magic", ErrSegmentChecksumFail)
	}

	offset := int64(headerSize)
	hasher := codec.NewHasher()
	hasher.Write(hdr)
	count := 0
	lastGood := offset

	for offset+lenPrefixSize <= size {
		if offset == size-trailerSize {
			want := make([]byte, trailerSize)
			if _, err := f.ReadAt(want, offset); err == nil {
				var got codec.Hash
				copy(got[:], hasher.Sum(nil))
				if codec.HashFromBytes(want) == got {
					return count, lastGood, nil
				}
			}
		}
		lbuf := make([]byte, lenPrefixSize)
		if _, err := f.ReadAt(lbuf, offset); err != nil {
			break
		}
		n := binary.LittleEndian.Uint32(lbuf)
		recEnd := offset + lenPrefixSize + int64(n)
		if recEnd > size {
			break // unexpected EOF mid-record: truncate to lastGood
		}
		payload := make([]byte, n)
		if _, err := f.ReadAt(payload, offset+lenPrefixSize); err != nil {
			break
		}
		hasher.Write(lbuf)
		hasher.Write(payload)
		offset = recEnd
		lastGood = offset
		count++
	}

	// Only a segment whose last complete record is immediately followed by
	// a trailer-sized tail is checksum-verified; anything else (no trailer,
	// or a trailer that doesn't check out) is reported as unclosed/corrupt
	// via the returned error, leaving lastGood as the safe truncation point.
	if offset == size-trailerSize {
		want := make([]byte, trailerSize)
		if _, err := f.ReadAt(want, offset); err == nil {
			var got codec.Hash
			copy(got[:], hasher.Sum(nil))
			if codec.HashFromBytes(want) != got {
				return count, lastGood, fmt.Errorf("aec: %w", ErrSegmentChecksumFail)
			}
			return count, lastGood, nil
		}
	}

	return count, lastGood, fmt.Errorf("aec: %w: no valid trailer", ErrSegmentChecksumFail)
}
