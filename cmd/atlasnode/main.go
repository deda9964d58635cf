// Command atlasnode runs a single AtlasDB validator: it bootstraps
// storage, the Accounting Engine, the Mempool, the Consensus Engine, the
// libp2p Transport, and the RPC service, then hands them to an
// Orchestrator until SIGINT/SIGTERM. Grounded on the teacher's
// cmd/cli/bootstrap_node.go (bootInit/bootStart/bootStop lifecycle) and
// cmd/synnergy/main.go's cobra root command, collapsed into one
// long-running daemon command rather than separate init/start/stop
// sub-commands, since a single validator process has no meaningful
// "initialised but not started" state of its own.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/BrunoAwdd/atlasDb/internal/aec"
	"github.com/BrunoAwdd/atlasDb/internal/blockchain"
	"github.com/BrunoAwdd/atlasDb/internal/consensus"
	"github.com/BrunoAwdd/atlasDb/internal/identity"
	"github.com/BrunoAwdd/atlasDb/internal/ledger"
	"github.com/BrunoAwdd/atlasDb/internal/mempool"
	"github.com/BrunoAwdd/atlasDb/internal/observability"
	"github.com/BrunoAwdd/atlasDb/internal/orchestrator"
	"github.com/BrunoAwdd/atlasDb/internal/rpc"
	"github.com/BrunoAwdd/atlasDb/internal/transport"
	"github.com/BrunoAwdd/atlasDb/pkg/config"
)

// Process exit codes.
const (
	exitOK               = 0
	exitConfigError      = 1
	exitConsensusHalted  = 2
	exitStorageCorrupted = 3
)

var (
	flagConfig   string
	flagListen   string
	flagDial     []string
	flagGRPCPort string
	flagKeyPair  string
	flagTestAuth bool
)

func main() {
	root := &cobra.Command{
		Use:   "atlasnode",
		Short: "Run an AtlasDB validator node",
		RunE:  run,
	}
	root.Flags().StringVar(&flagConfig, "config", "", "path to node config file (YAML)")
	root.Flags().StringVar(&flagListen, "listen", "", "libp2p listen multiaddr, overrides config")
	root.Flags().StringSliceVar(&flagDial, "dial", nil, "bootstrap peer multiaddrs, overrides config")
	root.Flags().StringVar(&flagGRPCPort, "grpc-port", "", "RPC listen address, overrides config")
	root.Flags().StringVar(&flagKeyPair, "keypair", "", "path to node identity key file, overrides config")
	root.Flags().BoolVar(&flagTestAuth, "test-auth", false, "run a self-contained sign/verify smoke test and exit")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitConfigError)
	}
}

func run(cmd *cobra.Command, _ []string) error {
	if flagTestAuth {
		if err := identity.SelfTest(); err != nil {
			fmt.Fprintln(os.Stderr, "atlasnode: auth self-test failed:", err)
			os.Exit(1)
		}
		fmt.Println("atlasnode: auth self-test passed")
		os.Exit(0)
	}

	cfg, err := config.Load(flagConfig, cmd)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitConfigError)
	}
	if flagDial != nil {
		cfg.Network.BootstrapPeers = flagDial
	}
	if cfg.Genesis.ManifestFile != "" {
		manifest, err := config.LoadGenesisManifest(cfg.Genesis.ManifestFile)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(exitConfigError)
		}
		config.ApplyGenesisManifest(cfg, manifest)
	}

	lv, err := logrus.ParseLevel(cfg.Logging.Level)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitConfigError)
	}
	logrus.SetLevel(lv)
	logrus.SetFormatter(&logrus.JSONFormatter{})

	kp, err := loadOrCreateKeyPair(cfg.KeyPairPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitConfigError)
	}
	cfg.NodeId = kp.Id()

	if err := os.MkdirAll(cfg.Storage.DataDir, 0o755); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitStorageCorrupted)
	}

	chart := ledger.NewChart()
	assets := ledger.NewAssetRegistry()
	state := ledger.NewStateStore(chart)

	genesis := func(s *ledger.StateStore) error {
		eng := ledger.NewEngine(chart, s, assets, nil)
		mints := cfg.Genesis.Mints
		if len(mints) == 0 {
			mints = []config.GenesisMint{{Address: "vault:issuance:main", Asset: "wallet:mint/ATLAS", Amount: 1_000_000}}
		}
		for _, m := range mints {
			addr, err := ledger.ParseAddress(m.Address)
			if err != nil {
				return fmt.Errorf("atlasnode: genesis mint address %q: %w", m.Address, err)
			}
			asset, err := ledger.ParseAssetId(m.Asset)
			if err != nil {
				return fmt.Errorf("atlasnode: genesis mint asset %q: %w", m.Asset, err)
			}
			if err := eng.GenesisMint(addr, asset, m.Amount); err != nil {
				return fmt.Errorf("atlasnode: genesis mint: %w", err)
			}
		}
		return nil
	}
	if err := genesis(state); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitConfigError)
	}

	blocks, err := blockchain.OpenStore(filepath.Join(cfg.Storage.DataDir, "blocks"))
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitStorageCorrupted)
	}
	aecStore, err := aec.Open(aec.Config{
		Dir:            filepath.Join(cfg.Storage.DataDir, "aec"),
		MaxSegmentSize: cfg.Storage.SegmentSizeBytes,
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitStorageCorrupted)
	}
	defer aecStore.Close()

	pool := mempool.New(mempool.Config{ChainId: cfg.ChainId}, identityVerifier{}, state)

	weights := consensus.Weights(cfg.Consensus.Weights)
	if len(weights) == 0 {
		weights = consensus.Weights{cfg.NodeId: 1}
	}

	devRootMode := blockchain.DevRootOff
	if cfg.Consensus.DevMode {
		devRootMode = blockchain.DevRootMock
		logrus.Warn("atlasnode: consensus.dev_mode is enabled, state_root is a deterministic stand-in, not a real commitment")
	}

	assembler := &blockchain.Assembler{
		Chart: chart, Assets: assets, Pool: pool, Signer: kp,
		MaxTxPerBlock: cfg.Consensus.MaxTxPerBlock,
		DevRootMode:   devRootMode,
	}
	executor := &blockchain.Executor{
		Chart: chart, Assets: assets, Verify: identity.Verify, ProposerPubKey: identity.PubKeyFromId,
		DevRootMode: devRootMode,
	}

	if flagListen != "" {
		cfg.Network.ListenAddr = flagListen
	}
	if flagGRPCPort != "" {
		cfg.RPC.Addr = flagGRPCPort
	}

	orch := orchestrator.New(orchestrator.Config{
		RPCAddr:     cfg.RPC.Addr,
		MetricsAddr: cfg.RPC.MetricsAddr,
	}, orchestrator.Deps{Pool: pool})

	node, err := transport.New(transport.Config{
		ListenAddr:     cfg.Network.ListenAddr,
		BootstrapPeers: cfg.Network.BootstrapPeers,
		DiscoveryTag:   cfg.Network.DiscoveryTag,
		ValidatorAddrs: cfg.Network.ValidatorAddrs,
	}, orch, []string{
		consensus.TopicRequestVote, consensus.TopicRequestVoteResp, consensus.TopicProposal,
		consensus.TopicVote, consensus.TopicHeartbeat, consensus.TopicCommit,
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitConfigError)
	}
	defer node.Close()

	engine, err := consensus.NewEngine(consensus.Config{
		NodeId:            cfg.NodeId,
		Weights:           weights,
		Quorum:            consensus.QuorumPolicy{QuorumFraction: cfg.Consensus.QuorumFraction, MinVoters: cfg.Consensus.MinVoters},
		ElectionTimeoutLo: time.Duration(cfg.Consensus.ElectionTimeoutLoMs) * time.Millisecond,
		ElectionTimeoutHi: time.Duration(cfg.Consensus.ElectionTimeoutHiMs) * time.Millisecond,
		HeartbeatInterval: time.Duration(cfg.Consensus.HeartbeatIntervalMs) * time.Millisecond,
		RoundTimeout:      time.Duration(cfg.Consensus.RoundTimeoutMs) * time.Millisecond,
		MaxRoundFailures:  cfg.Consensus.MaxRoundFailures,
		MaxTxPerBlock:     cfg.Consensus.MaxTxPerBlock,
	}, consensus.Deps{
		Transport: node,
		Signer:    kp,
		Verify:    identity.Verify,
		PubKeyOf:  identity.PubKeyFromId,
		Assembler: assembler,
		Executor:  executor,
		Blocks:    blocks,
		State:     state,
		AEC:       aecStore,
		Pool:      pool,
		Genesis:   genesis,
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitStorageCorrupted)
	}

	svc := rpc.New(rpc.Deps{
		Pool: pool, State: state, Chart: chart, Assets: assets, AEC: aecStore,
		Status: orchestrator.NewConsensusStatus(engine), ChainId: cfg.ChainId,
	})

	health, err := observability.New(engine, pool, node, cfg.Logging.File)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitConfigError)
	}
	defer health.Close()

	orch.Deps.Consensus = engine
	orch.Deps.Node = node
	orch.Deps.Service = svc
	orch.Deps.Health = health

	ctx, cancel := context.WithCancel(context.Background())
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigc
		logrus.Info("atlasnode: shutdown signal received")
		cancel()
	}()

	if err := orch.Run(ctx); err != nil {
		logrus.WithError(err).Error("atlasnode: consensus halted")
		os.Exit(exitConsensusHalted)
	}
	return nil
}

// loadOrCreateKeyPair reads a 32-byte secp256k1 scalar from path, or
// generates and persists a fresh one on first run.
func loadOrCreateKeyPair(path string) (*identity.KeyPair, error) {
	if path == "" {
		path = "./node.key"
	}
	if data, err := os.ReadFile(path); err == nil {
		return identity.FromPrivateKeyBytes(data)
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("atlasnode: read keypair %s: %w", path, err)
	}

	kp, err := identity.Generate()
	if err != nil {
		return nil, fmt.Errorf("atlasnode: generate keypair: %w", err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("atlasnode: mkdir keypair dir: %w", err)
		}
	}
	if err := os.WriteFile(path, kp.PrivateKeyBytes(), 0o600); err != nil {
		return nil, fmt.Errorf("atlasnode: write keypair %s: %w", path, err)
	}
	return kp, nil
}

// identityVerifier adapts package identity's Verify function to
// mempool.Verifier.
type identityVerifier struct{}

func (identityVerifier) Verify(pubKey, msg, sig []byte) bool { return identity.Verify(pubKey, msg, sig) }
