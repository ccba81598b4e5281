// Package observe provides the OpenTelemetry metric instruments used by the
// converter and an optional Prometheus textfile export for batch runs.
//
// Instruments are created from a [metric.MeterProvider]. Without an installed
// SDK provider the global provider is a no-op, so recording is always safe.
// Tests should use [NewMetrics] with their own provider.
package observe

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all metrics.
const meterName = "github.com/olakz-ops/export-chat-converter"

// Status attribute values for transcription requests.
const (
	StatusOK    = "ok"
	StatusError = "error"
)

// Metrics holds all metric instruments. All fields are safe for concurrent use.
type Metrics struct {
	// TranscriptionDuration tracks per-file transcription latency.
	TranscriptionDuration metric.Float64Histogram

	// TranscriptionRequests counts transcription calls. Use with attributes:
	//   attribute.String("model", ...), attribute.String("status", ...)
	TranscriptionRequests metric.Int64Counter

	// TranscriptionCost accumulates the estimated cost in USD.
	TranscriptionCost metric.Float64Counter

	// MessagesParsed counts logical messages reconstructed from exports.
	MessagesParsed metric.Int64Counter

	// AttachmentsDetected counts audio references. Use with attribute:
	//   attribute.Bool("matched", ...)
	AttachmentsDetected metric.Int64Counter
}

// latencyBuckets are histogram boundaries in seconds for hosted
// speech-to-text round trips.
var latencyBuckets = []float64{
	0.25, 0.5, 1, 2, 4, 8, 15, 30, 60, 120,
}

// NewMetrics creates a fully initialised [Metrics] using the given provider.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.TranscriptionDuration, err = m.Float64Histogram("wachat.transcription.duration",
		metric.WithDescription("Latency of a single audio transcription."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.TranscriptionRequests, err = m.Int64Counter("wachat.transcription.requests",
		metric.WithDescription("Transcription requests by model and status."),
	); err != nil {
		return nil, err
	}
	if met.TranscriptionCost, err = m.Float64Counter("wachat.transcription.cost",
		metric.WithDescription("Estimated transcription cost."),
		metric.WithUnit("USD"),
	); err != nil {
		return nil, err
	}
	if met.MessagesParsed, err = m.Int64Counter("wachat.messages.parsed",
		metric.WithDescription("Messages reconstructed from chat exports."),
	); err != nil {
		return nil, err
	}
	if met.AttachmentsDetected, err = m.Int64Counter("wachat.attachments.detected",
		metric.WithDescription("Audio attachment references found in messages."),
	); err != nil {
		return nil, err
	}

	return met, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level instance built on the global
// provider. Instruments created before [InitTextfile] installs a provider are
// delegated to it by the otel global package.
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

// RecordTranscription records one finished transcription request.
func (m *Metrics) RecordTranscription(ctx context.Context, model string, elapsed time.Duration, err error) {
	status := StatusOK
	if err != nil {
		status = StatusError
	}
	attrs := metric.WithAttributes(
		attribute.String("model", model),
		attribute.String("status", status),
	)
	m.TranscriptionRequests.Add(ctx, 1, attrs)
	m.TranscriptionDuration.Record(ctx, elapsed.Seconds(), attrs)
}
