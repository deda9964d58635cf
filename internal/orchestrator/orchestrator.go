// Package orchestrator wires transport, consensus, the mempool, and RPC
// into a single event loop: it ticks the consensus Engine's timers,
// re-proposes blocks while Leader, drains fork-recovery work, and
// starts the RPC service on the first leadership win (stopping it at
// shutdown).
// Grounded on the
// teacher's BootstrapNode (core/bootstrap_node.go), which bundles
// networking with an optional replication service behind a single
// Start/Stop pair and a context.CancelFunc.
package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/BrunoAwdd/atlasDb/internal/consensus"
	"github.com/BrunoAwdd/atlasDb/internal/mempool"
	"github.com/BrunoAwdd/atlasDb/internal/observability"
	"github.com/BrunoAwdd/atlasDb/internal/rpc"
	"github.com/BrunoAwdd/atlasDb/internal/transport"
)

// Config parameterizes the scheduler's tick granularities.
type Config struct {
	TickInterval    time.Duration
	ExpireInterval  time.Duration
	MetricsInterval time.Duration
	RPCAddr         string
	MetricsAddr     string
}

func (c Config) withDefaults() Config {
	if c.TickInterval == 0 {
		c.TickInterval = 50 * time.Millisecond
	}
	if c.ExpireInterval == 0 {
		c.ExpireInterval = 5 * time.Second
	}
	if c.MetricsInterval == 0 {
		c.MetricsInterval = 10 * time.Second
	}
	return c
}

// Deps bundles every collaborator the Orchestrator drives.
type Deps struct {
	Consensus *consensus.Engine
	Pool      *mempool.Pool
	Node      *transport.Node
	Service   *rpc.Service
	Health    *observability.HealthLogger
}

// statusAdapter satisfies rpc.ConsensusStatus by wrapping *consensus.Engine,
// whose Role() returns the package's own Role type rather than a string
// (Role is exported and used directly in tests, so it keeps its own
// signature instead of being reshaped for this one caller).
type statusAdapter struct {
	engine *consensus.Engine
}

func (a statusAdapter) IsLeader() bool   { return a.engine.IsLeader() }
func (a statusAdapter) Role() string     { return a.engine.Role().String() }
func (a statusAdapter) Term() uint64     { return a.engine.Term() }
func (a statusAdapter) Height() uint64   { return a.engine.Height() }
func (a statusAdapter) LeaderId() string { return a.engine.LeaderId() }

// NewConsensusStatus adapts a *consensus.Engine to rpc.ConsensusStatus, for
// whoever constructs the rpc.Service (cmd/atlasnode's wiring) to pass as
// rpc.Deps.Status before handing the finished Service to New.
func NewConsensusStatus(e *consensus.Engine) rpc.ConsensusStatus { return statusAdapter{engine: e} }

// Orchestrator is the node's event loop. It implements transport.Router,
// so a Node can be constructed with it directly as the Dispatch target.
type Orchestrator struct {
	Cfg  Config
	Deps Deps

	rpcServer     *rpc.Server
	metricsServer interface{ Shutdown(context.Context) error }

	mu           sync.Mutex
	lastProposed [2]uint64 // [height, round] last proposed for
	syncInFlight bool
	rpcStarted   bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New constructs an Orchestrator. deps.Service, if set, must already have
// been built with NewConsensusStatus(deps.Consensus) as its rpc.Deps.Status.
// Call Run to start the event loop.
func New(cfg Config, deps Deps) *Orchestrator {
	cfg = cfg.withDefaults()
	return &Orchestrator{Cfg: cfg, Deps: deps, lastProposed: [2]uint64{^uint64(0), ^uint64(0)}}
}

// Dispatch implements transport.Router: every inbound gossip or direct
// message is handed to the consensus Engine, with fork detection routed
// into a background sync instead of surfacing as a Dispatch error.
func (o *Orchestrator) Dispatch(fromPeer, topic string, data []byte) error {
	err := o.Deps.Consensus.Dispatch(fromPeer, topic, data)
	if err == consensus.ErrForkDetected {
		o.triggerSync(fromPeer)
		return nil
	}
	return err
}

// triggerSync sends a SyncRequest to peer (or, if empty, any known peer),
// asking for blocks after this node's believed tip. It runs at most once
// concurrently; a second fork signal while a sync is already in flight is
// a no-op, since the in-flight request will eventually resolve or be
// retried on its own timeout.
func (o *Orchestrator) triggerSync(peer string) {
	o.mu.Lock()
	if o.syncInFlight {
		o.mu.Unlock()
		return
	}
	o.syncInFlight = true
	o.mu.Unlock()

	defer func() {
		o.mu.Lock()
		o.syncInFlight = false
		o.mu.Unlock()
	}()

	if peer == "" {
		known := o.Deps.Consensus.LeaderId()
		if known == "" {
			peers := o.Deps.Node.Peers()
			if len(peers) == 0 {
				return
			}
			peer = peers[0]
		} else {
			peer = known
		}
	}

	req := o.Deps.Consensus.RequestSync(uuid.NewString())
	data, err := consensus.EncodeSyncRequest(req)
	if err != nil {
		logrus.WithError(err).Error("orchestrator: encode sync request")
		return
	}
	if err := o.Deps.Node.SendTo(peer, consensus.TopicSyncRequest, data); err != nil {
		logrus.WithError(err).WithField("peer", peer).Warn("orchestrator: sync request send failed")
	}
}

// Run drives the scheduler until ctx is canceled: ticking consensus
// timers, re-proposing blocks while Leader, expiring stale mempool
// entries, collecting metrics, and reacting to leadership transitions.
// It blocks until shutdown completes.
func (o *Orchestrator) Run(ctx context.Context) error {
	o.ctx, o.cancel = context.WithCancel(ctx)
	o.Deps.Consensus.Start(time.Now())

	if o.Deps.Health != nil {
		o.metricsServer = o.Deps.Health.StartMetricsServer(o.Cfg.MetricsAddr)
		o.wg.Add(1)
		go func() {
			defer o.wg.Done()
			o.Deps.Health.RunMetricsCollector(o.ctx, o.Cfg.MetricsInterval)
		}()
	}

	tickTicker := time.NewTicker(o.Cfg.TickInterval)
	expireTicker := time.NewTicker(o.Cfg.ExpireInterval)
	defer tickTicker.Stop()
	defer expireTicker.Stop()

	for {
		select {
		case <-o.ctx.Done():
			return o.shutdown()

		case ev, ok := <-o.Deps.Consensus.Events():
			if !ok {
				continue
			}
			o.handleEvent(ev)

		case now := <-tickTicker.C:
			if err := o.Deps.Consensus.Tick(now); err != nil {
				logrus.WithError(err).Warn("orchestrator: consensus tick")
			}
			o.maybePropose(now)

		case now := <-expireTicker.C:
			if o.Deps.Pool != nil {
				o.Deps.Pool.ExpireStale(now)
			}
		}
	}
}

// handleEvent reacts to leadership transitions, starting the RPC server
// and issuing the first proposal on election.
func (o *Orchestrator) handleEvent(ev consensus.Event) {
	switch ev.Kind {
	case consensus.EventBecameLeader:
		o.startRPC()
		if _, err := o.Deps.Consensus.ProposeBlock(uint64(time.Now().UnixMilli())); err != nil {
			logrus.WithError(err).Warn("orchestrator: initial propose after election")
		} else {
			o.markProposed()
		}
	case consensus.EventSteppedDown:
		// Read endpoints stay up regardless of role; only
		// SubmitTransaction's leader check changes behavior, so the RPC
		// server itself is never torn down here.
		logrus.WithField("term", ev.Term).Info("orchestrator: stepped down")
	}
}

// maybePropose re-proposes a block whenever (height, round) has advanced
// since the last proposal: a round timeout bumps round without changing
// height, and a commit advances height and resets round to 0.
func (o *Orchestrator) maybePropose(now time.Time) {
	if !o.Deps.Consensus.IsLeader() {
		return
	}
	height, round := o.Deps.Consensus.Height(), o.Deps.Consensus.Round()

	o.mu.Lock()
	same := o.lastProposed[0] == height && o.lastProposed[1] == round
	o.mu.Unlock()
	if same {
		return
	}

	if _, err := o.Deps.Consensus.ProposeBlock(uint64(now.UnixMilli())); err != nil {
		logrus.WithError(err).Warn("orchestrator: propose block")
		return
	}
	o.mu.Lock()
	o.lastProposed = [2]uint64{height, round}
	o.mu.Unlock()
}

func (o *Orchestrator) markProposed() {
	o.mu.Lock()
	o.lastProposed = [2]uint64{o.Deps.Consensus.Height(), o.Deps.Consensus.Round()}
	o.mu.Unlock()
}

func (o *Orchestrator) startRPC() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.rpcStarted || o.Deps.Service == nil {
		return
	}
	o.rpcServer = rpc.NewServer(o.Cfg.RPCAddr, o.Deps.Service)
	o.rpcStarted = true
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		if err := o.rpcServer.Start(); err != nil {
			logrus.WithError(err).Error("orchestrator: rpc server")
		}
	}()
}

// Shutdown cancels the event loop and returns at once; Run itself waits
// for its internal goroutines before returning.
func (o *Orchestrator) Shutdown() {
	if o.cancel != nil {
		o.cancel()
	}
}

// shutdown tears down the RPC server and the metrics server, then waits
// for Run's goroutines.
func (o *Orchestrator) shutdown() error {
	var firstErr error
	o.mu.Lock()
	rpcServer := o.rpcServer
	o.mu.Unlock()
	if rpcServer != nil {
		if err := rpcServer.Stop(5 * time.Second); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("orchestrator: stop rpc server: %w", err)
		}
	}
	if o.metricsServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := o.metricsServer.Shutdown(ctx); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("orchestrator: stop metrics server: %w", err)
		}
	}
	o.wg.Wait()
	return firstErr
}
