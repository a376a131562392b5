package observability

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap/zapcore"
)

func TestMetricsCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.ObserveOutcome("troubleshoot")
	m.ObserveOutcome("troubleshoot")
	m.DegradedClassification()
	m.ClassifierError("unavailable")
	m.TicketConfirmation("created")
	m.SessionExpired()
	m.StatusRefresh("failed")
	m.StatusChanged()
	m.ObservePortCall("tracker", "create", time.Now())

	if got := testutil.ToFloat64(m.outcomes.WithLabelValues("troubleshoot")); got != 2 {
		t.Fatalf("outcomes = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.degraded); got != 1 {
		t.Fatalf("degraded = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.classifierErrors.WithLabelValues("unavailable")); got != 1 {
		t.Fatalf("classifier errors = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.ticketCreates.WithLabelValues("created")); got != 1 {
		t.Fatalf("ticket confirmations = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.sessionsExpired); got != 1 {
		t.Fatalf("sessions expired = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.statusRefreshes.WithLabelValues("failed")); got != 1 {
		t.Fatalf("status refreshes = %v, want 1", got)
	}
	if got := testutil.CollectAndCount(m.portLatency); got != 1 {
		t.Fatalf("port latency series = %d, want 1", got)
	}
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.ObserveOutcome("x")
	m.DegradedClassification()
	m.ClassifierError("x")
	m.TicketConfirmation("x")
	m.SessionExpired()
	m.StatusRefresh("x")
	m.StatusChanged()
	m.ObservePortCall("x", "y", time.Now())
}

func TestNewLoggerFallsBackToInfo(t *testing.T) {
	logger, err := NewLogger("chatty")
	if err != nil {
		t.Fatalf("NewLogger: %v", err)
	}
	if !logger.Core().Enabled(zapcore.InfoLevel) {
		t.Fatal("info level should be enabled")
	}
	if logger.Core().Enabled(zapcore.DebugLevel) {
		t.Fatal("debug level should be disabled for unknown level")
	}

	debug, err := NewLogger("debug")
	if err != nil {
		t.Fatalf("NewLogger(debug): %v", err)
	}
	if !debug.Core().Enabled(zapcore.DebugLevel) {
		t.Fatal("debug level should be enabled")
	}
}

func TestEndSpanWithNoopSpan(t *testing.T) {
	span := trace.SpanFromContext(context.Background())
	EndSpan(span, errors.New("boom"))
	EndSpan(span, nil)
	AddEvent(context.Background(), "noop")
}
