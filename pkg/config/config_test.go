package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
)

// resetViper gives each test a clean global viper instance; Load relies on
// viper's package-level singleton the same way the teacher's own config
// loader does, so tests must not leak settings between runs.
func resetViper(t *testing.T) {
	t.Helper()
	viper.Reset()
	t.Cleanup(viper.Reset)
}

func TestLoadAppliesDefaults(t *testing.T) {
	resetViper(t)
	cfg, err := Load("", nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Network.ListenAddr != "/ip4/0.0.0.0/tcp/4001" {
		t.Fatalf("ListenAddr = %q, want default", cfg.Network.ListenAddr)
	}
	if cfg.Consensus.MinVoters != 1 {
		t.Fatalf("MinVoters = %d, want 1", cfg.Consensus.MinVoters)
	}
	if cfg.RPC.Addr != ":8080" {
		t.Fatalf("RPC.Addr = %q, want :8080", cfg.RPC.Addr)
	}
}

func TestLoadReadsConfigFile(t *testing.T) {
	resetViper(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "node.yaml")
	contents := `
chain_id: atlas-test
network:
  listen_addr: /ip4/127.0.0.1/tcp/5001
consensus:
  quorum_fraction: 0.6
  min_voters: 2
`
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write config file: %v", err)
	}

	cfg, err := Load(path, nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ChainId != "atlas-test" {
		t.Fatalf("ChainId = %q, want atlas-test", cfg.ChainId)
	}
	if cfg.Network.ListenAddr != "/ip4/127.0.0.1/tcp/5001" {
		t.Fatalf("ListenAddr = %q, want overridden value", cfg.Network.ListenAddr)
	}
	if cfg.Consensus.MinVoters != 2 {
		t.Fatalf("MinVoters = %d, want 2 (overridden)", cfg.Consensus.MinVoters)
	}
	// Untouched by the file, still the default.
	if cfg.Storage.DataDir != "./data" {
		t.Fatalf("DataDir = %q, want default", cfg.Storage.DataDir)
	}
}

func TestLoadRejectsMissingConfigFile(t *testing.T) {
	resetViper(t)
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml"), nil); err == nil {
		t.Fatalf("expected error for missing config file")
	}
}

func TestLoadRejectsDevModeOutsideDevelopment(t *testing.T) {
	resetViper(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "node.yaml")
	contents := `
consensus:
  dev_mode: true
`
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write config file: %v", err)
	}
	if _, err := Load(path, nil); err == nil {
		t.Fatalf("expected Load to reject dev_mode without env: development")
	}
}

func TestLoadAllowsDevModeInDevelopment(t *testing.T) {
	resetViper(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "node.yaml")
	contents := `
env: development
consensus:
  dev_mode: true
`
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write config file: %v", err)
	}
	cfg, err := Load(path, nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !cfg.Consensus.DevMode {
		t.Fatalf("DevMode = false, want true")
	}
}

func TestLoadAppliesEnvOverride(t *testing.T) {
	resetViper(t)
	t.Setenv("ATLASDB_CHAIN_ID", "from-env")
	cfg, err := Load("", nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ChainId != "from-env" {
		t.Fatalf("ChainId = %q, want from-env", cfg.ChainId)
	}
}
