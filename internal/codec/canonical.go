// Package codec implements the single canonical encoder every hash and
// signature input in AtlasDB must pass through: fixed little-endian
// integers, maps emitted in sorted-key order, and tagged discriminants for
// optional fields. No protocol-visible hash is ever computed over
// encoding/json output, since json field order and whitespace are not
// byte-stable across encoders.
package codec

import (
	"bytes"
	"encoding/binary"
	"sort"
)

// Writer accumulates a canonical byte stream. Zero value is ready to use.
type Writer struct {
	buf bytes.Buffer
}

func NewWriter() *Writer { return &Writer{} }

func (w *Writer) Bytes() []byte { return w.buf.Bytes() }

// Raw appends b verbatim, with no length prefix. Use only for fixed-size
// fields (hashes, addresses) where the size is already fixed by the schema.
func (w *Writer) Raw(b []byte) *Writer {
	w.buf.Write(b)
	return w
}

// Blob writes a length-prefixed variable-size byte slice.
func (w *Writer) Blob(b []byte) *Writer {
	var lbuf [4]byte
	binary.LittleEndian.PutUint32(lbuf[:], uint32(len(b)))
	w.buf.Write(lbuf[:])
	w.buf.Write(b)
	return w
}

// String writes a length-prefixed UTF-8 string.
func (w *Writer) String(s string) *Writer {
	return w.Blob([]byte(s))
}

func (w *Writer) U8(v uint8) *Writer {
	w.buf.WriteByte(v)
	return w
}

func (w *Writer) U16(v uint16) *Writer {
	var b [2]byte
	binary.LittleEndian.PutUint16(b[:], v)
	w.buf.Write(b[:])
	return w
}

func (w *Writer) U64(v uint64) *Writer {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	w.buf.Write(b[:])
	return w
}

func (w *Writer) I64(v int64) *Writer {
	return w.U64(uint64(v))
}

// Bool writes a single-byte tagged discriminant: 1 for true, 0 for false.
func (w *Writer) Bool(v bool) *Writer {
	if v {
		return w.U8(1)
	}
	return w.U8(0)
}

// OptBlob writes a tagged-optional byte slice: a 1-byte presence
// discriminant followed by the blob when present.
func (w *Writer) OptBlob(present bool, b []byte) *Writer {
	w.Bool(present)
	if present {
		w.Blob(b)
	}
	return w
}

// OptString writes a tagged-optional string.
func (w *Writer) OptString(present bool, s string) *Writer {
	w.Bool(present)
	if present {
		w.String(s)
	}
	return w
}

// Hash writes a fixed HashSize-byte digest verbatim.
func (w *Writer) Hash(h Hash) *Writer {
	return w.Raw(h[:])
}

// OptHash writes a tagged-optional digest.
func (w *Writer) OptHash(present bool, h Hash) *Writer {
	w.Bool(present)
	if present {
		w.Hash(h)
	}
	return w
}

// SortedStringMap writes a map[string][]byte in ascending key order so the
// encoding is deterministic regardless of Go's randomized map iteration.
func (w *Writer) SortedStringMap(m map[string][]byte) *Writer {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	w.U64(uint64(len(keys)))
	for _, k := range keys {
		w.String(k)
		w.Blob(m[k])
	}
	return w
}
