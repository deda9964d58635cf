package blockchain

import (
	"testing"
)

func buildTestBlock(height uint64, prevHash [32]byte) *Block {
	h := Header{Height: height, Round: 0, Proposer: "node-a", PrevHash: prevHash, Timestamp: 100 + height}
	h.Signature = []byte{1, 2, 3}
	h.ComputeHash()
	return &Block{Header: h}
}

func TestStorePutGetTip(t *testing.T) {
	dir := t.TempDir()
	store, err := OpenStore(dir)
	if err != nil {
		t.Fatalf("OpenStore: %v", err)
	}

	if _, _, ok, err := store.Tip(); err != nil || ok {
		t.Fatalf("Tip on empty store: ok=%v err=%v", ok, err)
	}

	b1 := buildTestBlock(1, [32]byte{})
	if err := store.Put(b1); err != nil {
		t.Fatalf("Put(1): %v", err)
	}
	b2 := buildTestBlock(2, b1.Header.BlockHash)
	if err := store.Put(b2); err != nil {
		t.Fatalf("Put(2): %v", err)
	}

	height, hash, ok, err := store.Tip()
	if err != nil || !ok {
		t.Fatalf("Tip: ok=%v err=%v", ok, err)
	}
	if height != 2 || hash != b2.Header.BlockHash {
		t.Fatalf("tip = (%d, %x), want (2, %x)", height, hash, b2.Header.BlockHash)
	}

	got, err := store.Get(1)
	if err != nil {
		t.Fatalf("Get(1): %v", err)
	}
	if got.Header.BlockHash != b1.Header.BlockHash {
		t.Fatalf("Get(1) returned a different block")
	}
}

func TestStoreDeleteFromAndRewriteTip(t *testing.T) {
	dir := t.TempDir()
	store, err := OpenStore(dir)
	if err != nil {
		t.Fatalf("OpenStore: %v", err)
	}
	b1 := buildTestBlock(1, [32]byte{})
	b2 := buildTestBlock(2, b1.Header.BlockHash)
	b3 := buildTestBlock(3, b2.Header.BlockHash)
	for _, b := range []*Block{b1, b2, b3} {
		if err := store.Put(b); err != nil {
			t.Fatalf("Put(%d): %v", b.Header.Height, err)
		}
	}

	if err := store.DeleteFrom(2); err != nil {
		t.Fatalf("DeleteFrom: %v", err)
	}
	if _, err := store.Get(2); err == nil {
		t.Fatalf("Get(2) after DeleteFrom(2): expected error")
	}
	if _, err := store.Get(1); err != nil {
		t.Fatalf("Get(1) after DeleteFrom(2): unexpected error %v", err)
	}

	if err := store.RewriteTip(1, b1.Header.BlockHash); err != nil {
		t.Fatalf("RewriteTip: %v", err)
	}
	height, hash, ok, err := store.Tip()
	if err != nil || !ok || height != 1 || hash != b1.Header.BlockHash {
		t.Fatalf("tip after RewriteTip = (%d, %x, %v), want (1, %x, true)", height, hash, ok, b1.Header.BlockHash)
	}
}

func TestMarshalUnmarshalBlockRoundTrip(t *testing.T) {
	b := buildTestBlock(7, [32]byte{9})
	data, err := MarshalBlock(b)
	if err != nil {
		t.Fatalf("MarshalBlock: %v", err)
	}
	got, err := UnmarshalBlock(data)
	if err != nil {
		t.Fatalf("UnmarshalBlock: %v", err)
	}
	if got.Header.BlockHash != b.Header.BlockHash || got.Header.Height != b.Header.Height {
		t.Fatalf("round-tripped block mismatch: got %+v, want %+v", got.Header, b.Header)
	}
}
