// Package observability holds the Prometheus metrics and OpenTelemetry tracing
// used across the receptionist.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics collects the receptionist's Prometheus metrics.
//
// All recording methods are safe on a nil *Metrics so components can be built
// without instrumentation in tests.
//
// Usage:
//
//	metrics := observability.NewMetrics(prometheus.DefaultRegisterer)
//	metrics.CallStarted()
//	metrics.RecordEngineRequest("reply", "success", time.Since(start).Seconds())
type Metrics struct {
	// CallsStarted counts inbound calls answered
	CallsStarted prometheus.Counter

	// CallsEnded counts finalized calls.
	// Labels: status (completed|failed|busy|no-answer|canceled|stale), decision
	CallsEnded *prometheus.CounterVec

	// ActiveCalls is the number of live sessions on this instance
	ActiveCalls prometheus.Gauge

	// CallDuration measures call lifetime in seconds
	CallDuration prometheus.Histogram

	// TurnDuration measures one speech turn end to end.
	// Labels: result (reply|farewell|terminated|empty|missing)
	TurnDuration *prometheus.HistogramVec

	// EngineRequestDuration measures reasoning engine latency.
	// Labels: operation (decide|reply|outcome)
	EngineRequestDuration *prometheus.HistogramVec

	// EngineRequests counts reasoning engine calls.
	// Labels: operation, status (success|error)
	EngineRequests *prometheus.CounterVec

	// ToolDecisionFailures counts turns where action selection failed or timed out
	ToolDecisionFailures prometheus.Counter

	// ToolsDropped counts engine requests for unknown or invalid actions.
	// Labels: reason (unknown|invalid_args)
	ToolsDropped *prometheus.CounterVec

	// ToolExecutions counts dispatched actions.
	// Labels: tool, status (success|error)
	ToolExecutions *prometheus.CounterVec

	// ToolDuration measures action execution time in seconds.
	// Labels: tool
	ToolDuration *prometheus.HistogramVec

	// GuardTriggers counts reply guard interventions.
	// Labels: guard (fallback|sanitized|loop_detected|greeting)
	GuardTriggers *prometheus.CounterVec

	// AudioCache counts synthesized audio lookups.
	// Labels: result (hit|miss|error)
	AudioCache *prometheus.CounterVec

	// HTTPRequestDuration measures webhook and API latency.
	// Labels: method, path, status_code
	HTTPRequestDuration *prometheus.HistogramVec
}

// NewMetrics creates the metrics and registers them with reg
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		CallsStarted: factory.NewCounter(prometheus.CounterOpts{
			Name: "receptionist_calls_started_total",
			Help: "Total number of inbound calls answered",
		}),
		CallsEnded: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "receptionist_calls_ended_total",
			Help: "Total number of finalized calls by status and decision",
		}, []string{"status", "decision"}),
		ActiveCalls: factory.NewGauge(prometheus.GaugeOpts{
			Name: "receptionist_active_calls",
			Help: "Number of live call sessions",
		}),
		CallDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "receptionist_call_duration_seconds",
			Help:    "Duration of finalized calls in seconds",
			Buckets: []float64{10, 30, 60, 120, 300, 600, 1800},
		}),
		TurnDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "receptionist_turn_duration_seconds",
			Help:    "Duration of speech turns in seconds",
			Buckets: []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 20},
		}, []string{"result"}),
		EngineRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "receptionist_engine_request_duration_seconds",
			Help:    "Duration of reasoning engine requests in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
		}, []string{"operation"}),
		EngineRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "receptionist_engine_requests_total",
			Help: "Total number of reasoning engine requests by operation and status",
		}, []string{"operation", "status"}),
		ToolDecisionFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "receptionist_tool_decision_failures_total",
			Help: "Total number of turns where action selection failed",
		}),
		ToolsDropped: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "receptionist_tools_dropped_total",
			Help: "Total number of requested actions that were dropped",
		}, []string{"reason"}),
		ToolExecutions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "receptionist_tool_executions_total",
			Help: "Total number of executed actions by tool and status",
		}, []string{"tool", "status"}),
		ToolDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "receptionist_tool_duration_seconds",
			Help:    "Duration of action execution in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5},
		}, []string{"tool"}),
		GuardTriggers: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "receptionist_guard_triggers_total",
			Help: "Total number of reply guard interventions",
		}, []string{"guard"}),
		AudioCache: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "receptionist_audio_cache_total",
			Help: "Synthesized audio cache lookups by result",
		}, []string{"result"}),
		HTTPRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "receptionist_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 15},
		}, []string{"method", "path", "status_code"}),
	}
}

// CallStarted records an answered call
func (m *Metrics) CallStarted() {
	if m == nil {
		return
	}
	m.CallsStarted.Inc()
	m.ActiveCalls.Inc()
}

// CallEnded records a finalized call
func (m *Metrics) CallEnded(status, decision string, durationSeconds float64) {
	if m == nil {
		return
	}
	m.CallsEnded.WithLabelValues(status, decision).Inc()
	m.ActiveCalls.Dec()
	if durationSeconds > 0 {
		m.CallDuration.Observe(durationSeconds)
	}
}

// RecordTurn records one speech turn
func (m *Metrics) RecordTurn(result string, durationSeconds float64) {
	if m == nil {
		return
	}
	m.TurnDuration.WithLabelValues(result).Observe(durationSeconds)
}

// RecordEngineRequest records a reasoning engine call
func (m *Metrics) RecordEngineRequest(operation, status string, durationSeconds float64) {
	if m == nil {
		return
	}
	m.EngineRequests.WithLabelValues(operation, status).Inc()
	m.EngineRequestDuration.WithLabelValues(operation).Observe(durationSeconds)
}

// ToolDecisionFailed records a failed action selection
func (m *Metrics) ToolDecisionFailed() {
	if m == nil {
		return
	}
	m.ToolDecisionFailures.Inc()
}

// ToolDropped records a requested action that was not dispatched
func (m *Metrics) ToolDropped(reason string) {
	if m == nil {
		return
	}
	m.ToolsDropped.WithLabelValues(reason).Inc()
}

// RecordToolExecution records one executed action
func (m *Metrics) RecordToolExecution(tool, status string, durationSeconds float64) {
	if m == nil {
		return
	}
	m.ToolExecutions.WithLabelValues(tool, status).Inc()
	m.ToolDuration.WithLabelValues(tool).Observe(durationSeconds)
}

// GuardTriggered records a reply guard intervention
func (m *Metrics) GuardTriggered(guard string) {
	if m == nil {
		return
	}
	m.GuardTriggers.WithLabelValues(guard).Inc()
}

// AudioCacheLookup records a synthesized audio lookup
func (m *Metrics) AudioCacheLookup(result string) {
	if m == nil {
		return
	}
	m.AudioCache.WithLabelValues(result).Inc()
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, path, statusCode string, durationSeconds float64) {
	if m == nil {
		return
	}
	m.HTTPRequestDuration.WithLabelValues(method, path, statusCode).Observe(durationSeconds)
}
