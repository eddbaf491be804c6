// Package observe provides application-wide observability primitives for
// Voxhound: OpenTelemetry metrics and the Prometheus exporter bridge.
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
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all Voxhound metrics.
const meterName = "github.com/voxhound/voxhound"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// ActiveSessions tracks the number of live voice sessions.
	ActiveSessions metric.Int64UpDownCounter

	// BoundSpeakers tracks the number of speakers currently bound to
	// recognizer slots across all sessions.
	BoundSpeakers metric.Int64UpDownCounter

	// TriggersFired counts recognized triggers. Use with attributes:
	//   attribute.String("language", ...), attribute.String("kind", ...)
	TriggersFired metric.Int64Counter

	// Playbacks counts clips submitted for playback.
	Playbacks metric.Int64Counter

	// LifecycleResets counts full registry resets by cause. Use with attribute:
	//   attribute.String("cause", ...)
	LifecycleResets metric.Int64Counter

	// FinalizeDuration tracks recognizer finalize latency per utterance.
	FinalizeDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) for
// recognizer finalize latencies.
var latencyBuckets = []float64{
	0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.ActiveSessions, err = m.Int64UpDownCounter("voxhound.active_sessions",
		metric.WithDescription("Number of live voice sessions."),
	); err != nil {
		return nil, err
	}
	if met.BoundSpeakers, err = m.Int64UpDownCounter("voxhound.bound_speakers",
		metric.WithDescription("Number of speakers bound to recognizer slots."),
	); err != nil {
		return nil, err
	}
	if met.TriggersFired, err = m.Int64Counter("voxhound.triggers.fired",
		metric.WithDescription("Total recognized triggers by language."),
	); err != nil {
		return nil, err
	}
	if met.Playbacks, err = m.Int64Counter("voxhound.playbacks",
		metric.WithDescription("Total clips submitted for playback."),
	); err != nil {
		return nil, err
	}
	if met.LifecycleResets, err = m.Int64Counter("voxhound.lifecycle.resets",
		metric.WithDescription("Total full registry resets by cause."),
	); err != nil {
		return nil, err
	}
	if met.FinalizeDuration, err = m.Float64Histogram("voxhound.finalize.duration",
		metric.WithDescription("Latency of recognizer finalization per utterance."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
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

// RecordTrigger records one recognized trigger.
func (m *Metrics) RecordTrigger(ctx context.Context, language string) {
	m.TriggersFired.Add(ctx, 1,
		metric.WithAttributes(attribute.String("language", language)),
	)
}

// RecordReset records one full registry reset.
func (m *Metrics) RecordReset(ctx context.Context, cause string) {
	m.LifecycleResets.Add(ctx, 1,
		metric.WithAttributes(attribute.String("cause", cause)),
	)
}

// RecordFinalize records the wall time of one finalize pass.
func (m *Metrics) RecordFinalize(ctx context.Context, d time.Duration) {
	m.FinalizeDuration.Record(ctx, d.Seconds())
}
