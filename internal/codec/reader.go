package codec

import (
	"encoding/binary"
	"errors"
)

// ErrTruncated is returned by Reader methods when the underlying buffer
// does not contain enough bytes to satisfy the requested field.
var ErrTruncated = errors.New("codec: truncated input")

// Reader is the symmetric decoder for byte streams produced by Writer. It
// is used for on-disk/on-wire round-tripping of records whose hash is
// computed separately (via CanonicalBytes); Reader is not itself part of
// any hash computation.
type Reader struct {
	buf []byte
	pos int
	err error
}

func NewReader(b []byte) *Reader { return &Reader{buf: b} }

// Err returns the first error encountered, if any. Once set, all further
// reads are no-ops returning zero values.
func (r *Reader) Err() error { return r.err }

func (r *Reader) need(n int) bool {
	if r.err != nil {
		return false
	}
	if r.pos+n > len(r.buf) {
		r.err = ErrTruncated
		return false
	}
	return true
}

func (r *Reader) Raw(n int) []byte {
	if !r.need(n) {
		return nil
	}
	b := r.buf[r.pos : r.pos+n]
	r.pos += n
	return b
}

func (r *Reader) Blob() []byte {
	n := r.U32()
	if r.err != nil {
		return nil
	}
	return r.Raw(int(n))
}

func (r *Reader) String() string {
	b := r.Blob()
	if b == nil {
		return ""
	}
	return string(b)
}

func (r *Reader) U8() uint8 {
	b := r.Raw(1)
	if b == nil {
		return 0
	}
	return b[0]
}

func (r *Reader) U16() uint16 {
	b := r.Raw(2)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint16(b)
}

func (r *Reader) U32() uint32 {
	b := r.Raw(4)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint32(b)
}

func (r *Reader) U64() uint64 {
	b := r.Raw(8)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint64(b)
}

func (r *Reader) I64() int64 {
	return int64(r.U64())
}

func (r *Reader) Bool() bool {
	return r.U8() != 0
}

func (r *Reader) OptBlob() (bool, []byte) {
	present := r.Bool()
	if !present || r.err != nil {
		return false, nil
	}
	return true, r.Blob()
}

func (r *Reader) OptString() (bool, string) {
	present := r.Bool()
	if !present || r.err != nil {
		return false, ""
	}
	return true, r.String()
}

func (r *Reader) SortedStringMap() map[string][]byte {
	n := r.U64()
	if r.err != nil {
		return nil
	}
	m := make(map[string][]byte, n)
	for i := uint64(0); i < n; i++ {
		k := r.String()
		v := r.Blob()
		if r.err != nil {
			return nil
		}
		m[k] = v
	}
	return m
}

// Remaining reports whether unread bytes remain past pos.
func (r *Reader) Remaining() int {
	return len(r.buf) - r.pos
}

// Hash reads a fixed HashSize-byte digest.
func (r *Reader) Hash() Hash {
	b := r.Raw(HashSize)
	if b == nil {
		return Hash{}
	}
	return HashFromBytes(b)
}

// OptHash reads a tagged-optional digest.
func (r *Reader) OptHash() (bool, Hash) {
	present := r.Bool()
	if !present || r.err != nil {
		return false, Hash{}
	}
	return true, r.Hash()
}
