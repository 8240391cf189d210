// Package observe provides application-wide observability primitives for
// the voice gateway: OpenTelemetry metrics, distributed tracing, structured
// logging, and HTTP middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can still
// be scraped via the standard /metrics endpoint. A package-level default
// [Metrics] instance ([DefaultMetrics]) is provided for convenience; tests
// should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all gateway metrics.
const meterName = "github.com/relaycall/voicegateway"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms ---

	// CallDuration tracks wall-clock call length, start event to bridge exit.
	CallDuration metric.Float64Histogram

	// RealtimeConnectDuration tracks time to establish a realtime session.
	RealtimeConnectDuration metric.Float64Histogram

	// ToolCallDuration tracks tool handler execution latency.
	ToolCallDuration metric.Float64Histogram

	// CalendarRequestDuration tracks calendar provider round-trip latency.
	CalendarRequestDuration metric.Float64Histogram

	// --- Counters ---

	// ProviderRequests counts external provider API calls. Use with
	// attributes: attribute.String("provider", ...), attribute.String("kind", ...),
	// attribute.String("status", ...).
	ProviderRequests metric.Int64Counter

	// ToolCalls counts tool invocations. Use with attributes:
	//   attribute.String("tool", ...), attribute.String("status", ...)
	ToolCalls metric.Int64Counter

	// CallsHandled counts calls that reached HandleCall, by business.
	CallsHandled metric.Int64Counter

	// EmergencyRedirects counts emergency DTMF and tool-triggered redirects.
	EmergencyRedirects metric.Int64Counter

	// NotificationsSent counts post-call email/SMS sends. Use with
	// attributes: attribute.String("channel", "email"|"sms"),
	// attribute.String("status", ...).
	NotificationsSent metric.Int64Counter

	// --- Error counters ---

	// ProviderErrors counts provider errors. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...)
	ProviderErrors metric.Int64Counter

	// --- Gauges ---

	// ActiveCalls tracks the number of calls currently bridging audio.
	ActiveCalls metric.Int64UpDownCounter

	// PacingQueueDepth is the gauge for queued outbound carrier frames
	// across active bridges. No code in this module records to it; the
	// pacer does not sample it.
	PacingQueueDepth metric.Int64UpDownCounter

	// CircuitBreakerOpen is the gauge for the number of open circuit
	// breakers across all fallback groups (calendar, LLM, email, SMS). No
	// code in this module records to it, so it does not reflect breaker
	// state.
	CircuitBreakerOpen metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with
	// attributes: attribute.String("method", ...), attribute.String("path", ...).
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) optimised
// for voice-call latencies (sub-second tool calls up to multi-minute calls).
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 300,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.CallDuration, err = m.Float64Histogram("voicegateway.call.duration",
		metric.WithDescription("Wall-clock call length, from stream start to bridge exit."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.RealtimeConnectDuration, err = m.Float64Histogram("voicegateway.realtime.connect.duration",
		metric.WithDescription("Latency of establishing a realtime session."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.ToolCallDuration, err = m.Float64Histogram("voicegateway.tool_call.duration",
		metric.WithDescription("Latency of tool handler execution."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.CalendarRequestDuration, err = m.Float64Histogram("voicegateway.calendar.request.duration",
		metric.WithDescription("Latency of calendar provider requests."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.ProviderRequests, err = m.Int64Counter("voicegateway.provider.requests",
		metric.WithDescription("Total external provider API requests by provider, kind, and status."),
	); err != nil {
		return nil, err
	}
	if met.ToolCalls, err = m.Int64Counter("voicegateway.tool.calls",
		metric.WithDescription("Total tool invocations by tool name and status."),
	); err != nil {
		return nil, err
	}
	if met.CallsHandled, err = m.Int64Counter("voicegateway.calls.handled",
		metric.WithDescription("Total calls routed to HandleCall, by business."),
	); err != nil {
		return nil, err
	}
	if met.EmergencyRedirects, err = m.Int64Counter("voicegateway.emergency.redirects",
		metric.WithDescription("Total emergency call redirects, by trigger (dtmf or tool)."),
	); err != nil {
		return nil, err
	}
	if met.NotificationsSent, err = m.Int64Counter("voicegateway.notifications.sent",
		metric.WithDescription("Total post-call notifications sent, by channel and status."),
	); err != nil {
		return nil, err
	}

	// Error counters.
	if met.ProviderErrors, err = m.Int64Counter("voicegateway.provider.errors",
		metric.WithDescription("Total provider errors by provider and kind."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveCalls, err = m.Int64UpDownCounter("voicegateway.active_calls",
		metric.WithDescription("Number of calls currently bridging audio."),
	); err != nil {
		return nil, err
	}
	if met.PacingQueueDepth, err = m.Int64UpDownCounter("voicegateway.pacing_queue.depth",
		metric.WithDescription("Queued outbound carrier frames across active bridges."),
	); err != nil {
		return nil, err
	}
	if met.CircuitBreakerOpen, err = m.Int64UpDownCounter("voicegateway.circuit_breaker.open",
		metric.WithDescription("Number of open circuit breakers across all fallback groups."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("voicegateway.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// defaultMetrics is the lazily-initialised package-level Metrics instance.
var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Subsequent calls return the same
// pointer. Panics if instrument creation fails (should not happen with the
// global provider).
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// Attr is a convenience alias for [attribute.String] to reduce verbosity at
// call sites.
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordProviderRequest is a convenience method that records a provider
// request counter increment with the standard attribute set.
func (m *Metrics) RecordProviderRequest(ctx context.Context, provider, kind, status string) {
	m.ProviderRequests.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
			attribute.String("status", status),
		),
	)
}

// RecordToolCall is a convenience method that records a tool invocation.
func (m *Metrics) RecordToolCall(ctx context.Context, tool, status string) {
	m.ToolCalls.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("tool", tool),
			attribute.String("status", status),
		),
	)
}

// RecordProviderError is a convenience method that records a provider error.
func (m *Metrics) RecordProviderError(ctx context.Context, provider, kind string) {
	m.ProviderErrors.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
		),
	)
}

// RecordNotification is a convenience method that records a post-call
// notification send on the given channel ("email" or "sms").
func (m *Metrics) RecordNotification(ctx context.Context, channel, status string) {
	m.NotificationsSent.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("channel", channel),
			attribute.String("status", status),
		),
	)
}
