package main

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadOrCreateKeyPairGeneratesAndPersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "node.key")

	kp1, err := loadOrCreateKeyPair(path)
	if err != nil {
		t.Fatalf("loadOrCreateKeyPair (create): %v", err)
	}

	kp2, err := loadOrCreateKeyPair(path)
	if err != nil {
		t.Fatalf("loadOrCreateKeyPair (reload): %v", err)
	}

	if kp1.Id() != kp2.Id() {
		t.Fatalf("reloaded keypair id = %q, want %q", kp2.Id(), kp1.Id())
	}
}

func TestLoadOrCreateKeyPairDefaultsPath(t *testing.T) {
	if _, err := loadOrCreateKeyPair(""); err != nil {
		t.Fatalf("loadOrCreateKeyPair(\"\"): %v", err)
	}
	t.Cleanup(func() {
		_ = os.Remove("./node.key")
	})
}
