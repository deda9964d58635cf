// Package observability implements node-local health logging and metrics,
// generalized from the teacher's core.HealthLogger
// (core/system_health_logging.go) from a ledger/coin/network-specific
// snapshot into AtlasDB's consensus/mempool/transport shape. Node-local
// logging and metrics are outside the consensus protocol itself, but the
// ambient logrus+prometheus stack is carried regardless.
package observability

import (
	"context"
	"net/http"
	"os"
	"runtime"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/BrunoAwdd/atlasDb/internal/consensus"
	"github.com/BrunoAwdd/atlasDb/internal/mempool"
	"github.com/BrunoAwdd/atlasDb/internal/transport"
)

// Snapshot captures a point-in-time view of node health, mirroring the
// teacher's Metrics struct (core/system_health_logging.go) adapted to
// AtlasDB's own state: block height/role/term instead of coin supply.
type Snapshot struct {
	Height        uint64 `json:"height"`
	Role          string `json:"role"`
	Term          uint64 `json:"term"`
	PendingTx     int    `json:"pending_tx"`
	PeerCount     int    `json:"peer_count"`
	MemAlloc      uint64 `json:"mem_alloc"`
	NumGoroutines int    `json:"goroutines"`
	Timestamp     int64  `json:"timestamp"`
}

// HealthLogger writes structured JSON logs and exposes Prometheus gauges
// for the node's consensus/mempool/transport state — ambient support
// tooling, not the protocol itself.
type HealthLogger struct {
	consensus *consensus.Engine
	pool      *mempool.Pool
	node      *transport.Node

	log  *logrus.Logger
	file *os.File
	mu   sync.Mutex

	registry        *prometheus.Registry
	heightGauge     prometheus.Gauge
	pendingTxGauge  prometheus.Gauge
	peerCountGauge  prometheus.Gauge
	memAllocGauge   prometheus.Gauge
	goroutinesGauge prometheus.Gauge
	errorCounter    prometheus.Counter
}

// New configures a HealthLogger writing JSON logs to path. Any of
// consensus/pool/node may be nil (e.g. a node still bootstrapping its
// consensus Engine); MetricsSnapshot degrades gracefully per field.
func New(c *consensus.Engine, pool *mempool.Pool, node *transport.Node, path string) (*HealthLogger, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	lg := logrus.New()
	lg.SetFormatter(&logrus.JSONFormatter{})
	lg.SetOutput(f)
	reg := prometheus.NewRegistry()

	h := &HealthLogger{consensus: c, pool: pool, node: node, log: lg, file: f, registry: reg}

	h.heightGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "atlasdb_block_height",
		Help: "Last committed block height known to this node",
	})
	h.pendingTxGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "atlasdb_pending_transactions",
		Help: "Number of transactions currently pending in the mempool",
	})
	h.peerCountGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "atlasdb_peer_count",
		Help: "Number of addressable validator peers",
	})
	h.memAllocGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "atlasdb_mem_alloc_bytes",
		Help: "Current heap allocation in bytes",
	})
	h.goroutinesGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "atlasdb_goroutines",
		Help: "Number of running goroutines",
	})
	h.errorCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "atlasdb_log_errors_total",
		Help: "Total number of error-level events logged",
	})

	reg.MustRegister(
		h.heightGauge,
		h.pendingTxGauge,
		h.peerCountGauge,
		h.memAllocGauge,
		h.goroutinesGauge,
		h.errorCounter,
	)

	return h, nil
}

// Close releases the underlying log file.
func (h *HealthLogger) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.file.Close()
}

// LogEvent records an arbitrary message at the given level.
func (h *HealthLogger) LogEvent(level logrus.Level, msg string, fields logrus.Fields) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if level >= logrus.ErrorLevel {
		h.errorCounter.Inc()
	}
	entry := h.log.WithFields(fields)
	entry.Log(level, msg)
}

// MetricsSnapshot gathers current node/runtime state.
func (h *HealthLogger) MetricsSnapshot() Snapshot {
	s := Snapshot{Timestamp: time.Now().Unix(), NumGoroutines: runtime.NumGoroutine()}

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)
	s.MemAlloc = mem.Alloc

	if h.consensus != nil {
		s.Height = h.consensus.Height()
		s.Role = h.consensus.Role().String()
		s.Term = h.consensus.Term()
	}
	if h.pool != nil {
		s.PendingTx = h.pool.Size()
	}
	if h.node != nil {
		s.PeerCount = len(h.node.Peers())
	}
	return s
}

// RecordMetrics snapshots current state into the Prometheus gauges and
// logs it at info level.
func (h *HealthLogger) RecordMetrics() {
	s := h.MetricsSnapshot()
	h.heightGauge.Set(float64(s.Height))
	h.pendingTxGauge.Set(float64(s.PendingTx))
	h.peerCountGauge.Set(float64(s.PeerCount))
	h.memAllocGauge.Set(float64(s.MemAlloc))
	h.goroutinesGauge.Set(float64(s.NumGoroutines))
	h.LogEvent(logrus.InfoLevel, "metrics recorded", logrus.Fields{
		"height": s.Height, "role": s.Role, "term": s.Term,
	})
}

// RunMetricsCollector periodically records metrics until ctx is canceled,
// generalized from core.HealthLogger.RunMetricsCollector's ticker shape.
func (h *HealthLogger) RunMetricsCollector(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			h.RecordMetrics()
		case <-ctx.Done():
			return
		}
	}
}

// StartMetricsServer exposes a Prometheus /metrics endpoint on addr.
func (h *HealthLogger) StartMetricsServer(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(h.registry, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			h.LogEvent(logrus.ErrorLevel, err.Error(), nil)
		}
	}()
	return srv
}

// ShutdownMetricsServer gracefully stops the metrics HTTP server.
func (h *HealthLogger) ShutdownMetricsServer(ctx context.Context, srv *http.Server) error {
	return srv.Shutdown(ctx)
}
