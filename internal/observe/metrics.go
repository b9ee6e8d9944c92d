// Package observe provides application-wide observability primitives for
// Glyphwing: OpenTelemetry metrics, distributed tracing, structured logging,
// and HTTP middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can still be
// scraped via the standard /metrics endpoint. A package-level default
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

// meterName is the instrumentation scope name used for all Glyphwing metrics.
const meterName = "github.com/glyphwing/glyphwing"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms ---

	// HandshakeDuration tracks time from Handshake start to Connected state.
	HandshakeDuration metric.Float64Histogram

	// MixDuration tracks how long one mixer tick takes to produce a frame.
	MixDuration metric.Float64Histogram

	// --- Counters ---

	// PacketsSent counts RTP packets written to the datagram channel. Use with
	// attribute.String("guild_id", ...).
	PacketsSent metric.Int64Counter

	// PacketsDropped counts inbound RTP packets rejected or discarded before
	// reaching a speaker (bad payload type, decode failure, jitter overflow).
	// Use with attribute.String("reason", ...).
	PacketsDropped metric.Int64Counter

	// DecodeErrors counts Opus decode failures, by guild.
	DecodeErrors metric.Int64Counter

	// ReconnectAttempts counts every handshake retry the supervisor makes.
	// Use with attribute.String("guild_id", ...).
	ReconnectAttempts metric.Int64Counter

	// ReconnectExhausted counts times a guild's reconnect budget ran out.
	ReconnectExhausted metric.Int64Counter

	// MixerTicks counts completed mixer passes, whether or not they produced
	// audible output.
	MixerTicks metric.Int64Counter

	// --- Gauges ---

	// ActiveSessions tracks the number of live per-guild voice sessions.
	ActiveSessions metric.Int64UpDownCounter

	// ActiveSpeakers tracks the number of speakers currently registered
	// across all sessions.
	ActiveSpeakers metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) optimised
// for voice-pipeline latencies.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.HandshakeDuration, err = m.Float64Histogram("glyphwing.handshake.duration",
		metric.WithDescription("Time from handshake start to the connected state."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.MixDuration, err = m.Float64Histogram("glyphwing.mix.duration",
		metric.WithDescription("Time to produce one mixed output frame."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.PacketsSent, err = m.Int64Counter("glyphwing.packets.sent",
		metric.WithDescription("Total RTP packets written to the datagram channel."),
	); err != nil {
		return nil, err
	}
	if met.PacketsDropped, err = m.Int64Counter("glyphwing.packets.dropped",
		metric.WithDescription("Total inbound RTP packets discarded before reaching a speaker."),
	); err != nil {
		return nil, err
	}
	if met.DecodeErrors, err = m.Int64Counter("glyphwing.decode.errors",
		metric.WithDescription("Total Opus decode failures."),
	); err != nil {
		return nil, err
	}
	if met.ReconnectAttempts, err = m.Int64Counter("glyphwing.reconnect.attempts",
		metric.WithDescription("Total handshake retries made by the connection supervisor."),
	); err != nil {
		return nil, err
	}
	if met.ReconnectExhausted, err = m.Int64Counter("glyphwing.reconnect.exhausted",
		metric.WithDescription("Total times a guild's reconnect budget was exhausted."),
	); err != nil {
		return nil, err
	}
	if met.MixerTicks, err = m.Int64Counter("glyphwing.mixer.ticks",
		metric.WithDescription("Total completed mixer passes."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveSessions, err = m.Int64UpDownCounter("glyphwing.active_sessions",
		metric.WithDescription("Number of live per-guild voice sessions."),
	); err != nil {
		return nil, err
	}
	if met.ActiveSpeakers, err = m.Int64UpDownCounter("glyphwing.active_speakers",
		metric.WithDescription("Number of speakers currently registered across all sessions."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("glyphwing.http.request.duration",
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

// RecordPacketSent is a convenience method that increments the sent-packet
// counter for a guild.
func (m *Metrics) RecordPacketSent(ctx context.Context, guildID string) {
	m.PacketsSent.Add(ctx, 1,
		metric.WithAttributes(attribute.String("guild_id", guildID)),
	)
}

// RecordPacketDropped is a convenience method that increments the
// dropped-packet counter with a reason.
func (m *Metrics) RecordPacketDropped(ctx context.Context, reason string) {
	m.PacketsDropped.Add(ctx, 1,
		metric.WithAttributes(attribute.String("reason", reason)),
	)
}

// RecordDecodeError is a convenience method that increments the decode-error
// counter for a guild.
func (m *Metrics) RecordDecodeError(ctx context.Context, guildID string) {
	m.DecodeErrors.Add(ctx, 1,
		metric.WithAttributes(attribute.String("guild_id", guildID)),
	)
}

// RecordReconnectAttempt is a convenience method that increments the
// reconnect-attempt counter for a guild.
func (m *Metrics) RecordReconnectAttempt(ctx context.Context, guildID string) {
	m.ReconnectAttempts.Add(ctx, 1,
		metric.WithAttributes(attribute.String("guild_id", guildID)),
	)
}
