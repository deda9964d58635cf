package observability

import (
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus"
)

func newTestLogger(t *testing.T) *HealthLogger {
	t.Helper()
	path := filepath.Join(t.TempDir(), "atlasdb.log")
	h, err := New(nil, nil, nil, path)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { h.Close() })
	return h
}

func TestMetricsSnapshotDegradesGracefullyWithNilDeps(t *testing.T) {
	h := newTestLogger(t)

	s := h.MetricsSnapshot()
	if s.Height != 0 || s.Role != "" || s.Term != 0 {
		t.Fatalf("expected zero-value consensus fields with nil consensus, got %+v", s)
	}
	if s.PendingTx != 0 {
		t.Fatalf("expected zero PendingTx with nil pool, got %d", s.PendingTx)
	}
	if s.PeerCount != 0 {
		t.Fatalf("expected zero PeerCount with nil node, got %d", s.PeerCount)
	}
	if s.Timestamp == 0 {
		t.Fatalf("expected a non-zero Timestamp")
	}
}

func TestRecordMetricsDoesNotPanic(t *testing.T) {
	h := newTestLogger(t)
	h.RecordMetrics()
}

func TestLogEventIncrementsErrorCounterOnErrorLevel(t *testing.T) {
	h := newTestLogger(t)
	before := testutil.ToFloat64(h.errorCounter)
	h.LogEvent(logrus.ErrorLevel, "boom", logrus.Fields{"k": "v"})
	after := testutil.ToFloat64(h.errorCounter)
	if after != before+1 {
		t.Fatalf("error counter = %v, want %v", after, before+1)
	}
}

func TestLogEventDoesNotIncrementCounterOnInfoLevel(t *testing.T) {
	h := newTestLogger(t)
	before := testutil.ToFloat64(h.errorCounter)
	h.LogEvent(logrus.InfoLevel, "fyi", nil)
	after := testutil.ToFloat64(h.errorCounter)
	if after != before {
		t.Fatalf("error counter = %v, want unchanged %v", after, before)
	}
}
