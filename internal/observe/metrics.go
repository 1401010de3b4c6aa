// Package observe bridges the client's turn telemetry into OpenTelemetry
// metrics. A Prometheus exporter backed by a private registry is wired in by
// [InitProvider] so the debug listener can expose a standard /metrics
// endpoint without touching the global registry.
//
// [Metrics] implements [telemetry.StageSink], so handing it to the recorder
// via telemetry.WithSink feeds the per-stage histograms automatically each
// time a turn's latencies latch.
package observe

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/vocalis-go/vocalis/pkg/voice/telemetry"
)

// meterName is the instrumentation scope for all client metrics.
const meterName = "github.com/vocalis-go/vocalis"

// stageBuckets defines histogram bucket boundaries (in seconds) sized for
// voice pipeline stages.
var stageBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

// Metrics holds the OpenTelemetry instruments for a voice client. All fields
// are safe for concurrent use.
type Metrics struct {
	// STTDuration tracks server-reported transcription latency.
	STTDuration metric.Float64Histogram

	// LLMDuration tracks server-reported reply generation latency.
	LLMDuration metric.Float64Histogram

	// TTSDuration tracks server-reported synthesis latency.
	TTSDuration metric.Float64Histogram

	// TurnDuration tracks end-to-end turn latency.
	TurnDuration metric.Float64Histogram

	// Turns counts latched turns. Attribute: status (complete, partial).
	Turns metric.Int64Counter

	// TranscriptTurns counts committed transcript entries. Attribute: role.
	TranscriptTurns metric.Int64Counter

	// Disconnects counts session teardowns. Attribute: reason (clean, error).
	Disconnects metric.Int64Counter
}

// NewMetrics creates the instrument set on the given provider.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.STTDuration, err = m.Float64Histogram("vocalis.stt.duration",
		metric.WithDescription("Transcription latency reported by the server."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(stageBuckets...),
	); err != nil {
		return nil, err
	}
	if met.LLMDuration, err = m.Float64Histogram("vocalis.llm.duration",
		metric.WithDescription("Reply generation latency reported by the server."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(stageBuckets...),
	); err != nil {
		return nil, err
	}
	if met.TTSDuration, err = m.Float64Histogram("vocalis.tts.duration",
		metric.WithDescription("Speech synthesis latency reported by the server."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(stageBuckets...),
	); err != nil {
		return nil, err
	}
	if met.TurnDuration, err = m.Float64Histogram("vocalis.turn.duration",
		metric.WithDescription("End-to-end turn latency from end of speech to end of reply."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(stageBuckets...),
	); err != nil {
		return nil, err
	}

	if met.Turns, err = m.Int64Counter("vocalis.turns",
		metric.WithDescription("Latched turns by completeness of their stage timings."),
	); err != nil {
		return nil, err
	}
	if met.TranscriptTurns, err = m.Int64Counter("vocalis.transcript.turns",
		metric.WithDescription("Transcript entries committed by role."),
	); err != nil {
		return nil, err
	}
	if met.Disconnects, err = m.Int64Counter("vocalis.disconnects",
		metric.WithDescription("Session teardowns by reason."),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// RecordTurn implements [telemetry.StageSink]. Stages the server never
// reported are skipped rather than recorded as zero.
func (m *Metrics) RecordTurn(ctx context.Context, t telemetry.TurnMetrics) {
	if t.STTMS != nil {
		m.STTDuration.Record(ctx, float64(*t.STTMS)/1000)
	}
	if t.LLMMS != nil {
		m.LLMDuration.Record(ctx, float64(*t.LLMMS)/1000)
	}
	if t.TTSMS != nil {
		m.TTSDuration.Record(ctx, float64(*t.TTSMS)/1000)
	}
	if t.TotalMS != nil {
		m.TurnDuration.Record(ctx, float64(*t.TotalMS)/1000)
	}

	status := "partial"
	if t.Complete() {
		status = "complete"
	}
	m.Turns.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
}

// RecordTranscriptTurn counts a committed transcript entry.
func (m *Metrics) RecordTranscriptTurn(ctx context.Context, role string) {
	m.TranscriptTurns.Add(ctx, 1, metric.WithAttributes(attribute.String("role", role)))
}

// RecordDisconnect counts a session teardown.
func (m *Metrics) RecordDisconnect(ctx context.Context, reason string) {
	m.Disconnects.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}
