package observability

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsRecordCalls(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := NewMetrics(registry)

	metrics.CallStarted()
	metrics.CallStarted()
	metrics.CallEnded("completed", "handled", 42)

	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.CallsStarted))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.ActiveCalls))

	expected := `
		# HELP receptionist_calls_ended_total Total number of finalized calls by status and decision
		# TYPE receptionist_calls_ended_total counter
		receptionist_calls_ended_total{decision="handled",status="completed"} 1
	`
	require.NoError(t, testutil.CollectAndCompare(metrics.CallsEnded, strings.NewReader(expected)))
}

func TestMetricsToolsAndGuards(t *testing.T) {
	metrics := NewMetrics(prometheus.NewRegistry())

	metrics.ToolDecisionFailed()
	metrics.ToolDropped("unknown")
	metrics.ToolDropped("unknown")
	metrics.RecordToolExecution("search_contacts", "success", 0.02)
	metrics.GuardTriggered("loop_detected")

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.ToolDecisionFailures))
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.ToolsDropped.WithLabelValues("unknown")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.ToolExecutions.WithLabelValues("search_contacts", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.GuardTriggers.WithLabelValues("loop_detected")))
}

func TestNilMetricsAreSafe(t *testing.T) {
	var metrics *Metrics
	assert.NotPanics(t, func() {
		metrics.CallStarted()
		metrics.CallEnded("failed", "handled", 1)
		metrics.RecordTurn("reply", 0.1)
		metrics.RecordEngineRequest("reply", "error", 0.1)
		metrics.ToolDecisionFailed()
		metrics.AudioCacheLookup("hit")
		metrics.RecordHTTPRequest("POST", "/process-speech", "200", 0.1)
	})
}

func TestTracerWithoutEndpoint(t *testing.T) {
	tracer, shutdown := NewTracer(TraceConfig{})
	ctx, span := tracer.Start(context.Background(), "turn", "CA123")
	assert.NotNil(t, ctx)
	RecordError(span, errors.New("boom"))
	span.End()
	assert.NoError(t, shutdown(context.Background()))

	var nilTracer *Tracer
	_, span = nilTracer.Start(context.Background(), "turn", "CA123")
	assert.NotNil(t, span)
}
