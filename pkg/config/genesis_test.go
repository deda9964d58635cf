package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadGenesisManifest(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "genesis.yaml")
	contents := `
mints:
  - address: vault:issuance
    asset: wallet:mint/ATLAS
    amount: 1000000
validators:
  nodeA: /ip4/10.0.0.1/tcp/4001/p2p/12D3KooWA
  nodeB: /ip4/10.0.0.2/tcp/4001/p2p/12D3KooWB
weights:
  nodeA: 2
  nodeB: 1
`
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write manifest: %v", err)
	}

	m, err := LoadGenesisManifest(path)
	if err != nil {
		t.Fatalf("LoadGenesisManifest: %v", err)
	}
	if len(m.Mints) != 1 || m.Mints[0].Address != "vault:issuance" || m.Mints[0].Amount != 1_000_000 {
		t.Fatalf("unexpected mints: %+v", m.Mints)
	}
	if m.Validators["nodeA"] != "/ip4/10.0.0.1/tcp/4001/p2p/12D3KooWA" {
		t.Fatalf("unexpected validators: %+v", m.Validators)
	}
	if m.Weights["nodeA"] != 2 || m.Weights["nodeB"] != 1 {
		t.Fatalf("unexpected weights: %+v", m.Weights)
	}
}

func TestApplyGenesisManifestMergesOverExistingFields(t *testing.T) {
	cfg := &Config{}
	cfg.Network.ValidatorAddrs = map[string]string{"nodeA": "/already/set"}

	m := &GenesisManifest{
		Mints:      []GenesisMint{{Address: "vault:issuance", Asset: "wallet:mint/ATLAS", Amount: 500}},
		Validators: map[string]string{"nodeA": "/from/manifest", "nodeB": "/from/manifest/b"},
		Weights:    map[string]uint64{"nodeA": 3},
	}
	ApplyGenesisManifest(cfg, m)

	if len(cfg.Genesis.Mints) != 1 || cfg.Genesis.Mints[0].Amount != 500 {
		t.Fatalf("mints not applied: %+v", cfg.Genesis.Mints)
	}
	// Manifest values win for keys it supplies, merged alongside what was
	// already present rather than replacing the whole map.
	if cfg.Network.ValidatorAddrs["nodeA"] != "/from/manifest" {
		t.Fatalf("nodeA addr = %q, want manifest value", cfg.Network.ValidatorAddrs["nodeA"])
	}
	if cfg.Network.ValidatorAddrs["nodeB"] != "/from/manifest/b" {
		t.Fatalf("nodeB addr missing after merge")
	}
	if cfg.Consensus.Weights["nodeA"] != 3 {
		t.Fatalf("weight not applied")
	}
}

func TestLoadGenesisManifestMissingFile(t *testing.T) {
	if _, err := LoadGenesisManifest(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatalf("expected error for missing manifest file")
	}
}
