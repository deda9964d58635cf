package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// GenesisManifest is the standalone cluster-topology file a devnet or
// multi-validator deployment points the main node config at via
// `genesis.manifest_file`, grounded on the teacher's own split between a
// per-process viper-driven Config and a separate YAML cluster manifest
// (cmd/cli/devnet.go's `testnet start <config.yaml>`, which parses a list
// of node configs with the stdlib-adjacent gopkg.in/yaml.v3 decoder rather
// than through viper). AtlasDB keeps the same split: per-node runtime
// settings go through viper (config.go), while the shared genesis/
// validator-set facts that every node in a cluster must agree on byte-for-
// byte live in one manifest file decoded directly with yaml.v3.
type GenesisManifest struct {
	Mints      []GenesisMint     `yaml:"mints"`
	Validators map[string]string `yaml:"validators"` // node id -> dialable multiaddr
	Weights    map[string]uint64 `yaml:"weights"`
}

// LoadGenesisManifest reads and decodes a GenesisManifest from path.
func LoadGenesisManifest(path string) (*GenesisManifest, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read genesis manifest %s: %w", path, err)
	}
	var m GenesisManifest
	if err := yaml.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("config: parse genesis manifest %s: %w", path, err)
	}
	return &m, nil
}

// ApplyGenesisManifest merges a loaded manifest into cfg. A non-empty
// manifest Mints list replaces cfg's; manifest validator addresses and
// weights are written over cfg's maps key by key, so the manifest wins for
// every key it supplies and other keys already on cfg are kept. Fields the
// manifest leaves empty are not touched.
func ApplyGenesisManifest(cfg *Config, m *GenesisManifest) {
	if len(m.Mints) > 0 {
		cfg.Genesis.Mints = m.Mints
	}
	if len(m.Validators) > 0 {
		if cfg.Network.ValidatorAddrs == nil {
			cfg.Network.ValidatorAddrs = map[string]string{}
		}
		for id, addr := range m.Validators {
			cfg.Network.ValidatorAddrs[id] = addr
		}
	}
	if len(m.Weights) > 0 {
		if cfg.Consensus.Weights == nil {
			cfg.Consensus.Weights = map[string]uint64{}
		}
		for id, w := range m.Weights {
			cfg.Consensus.Weights[id] = w
		}
	}
}
