// Package telemetry collects diagnostic events from a voice session and
// derives per-turn latency metrics from them. It is a passive observer:
// recording never blocks, never fails, and never feeds back into the
// session. The log is bounded; once full, the oldest entries are discarded.
package telemetry

import (
	"context"
	"sync"
	"time"
)

// Event is one recorded diagnostic event. IDs are local, monotonic and
// independent of any server timestamp.
type Event struct {
	ID       int64          `json:"id"`
	Category string         `json:"category"`
	Name     string         `json:"event"`
	Data     map[string]any `json:"data,omitempty"`
	ServerTS *int64         `json:"server_ts,omitempty"`
	LocalTS  time.Time      `json:"local_ts"`
}

// TurnMetrics holds the authoritative stage timings of the most recently
// completed turn. Fields are nil until latched from a terminal transition
// and all nil while a turn is in progress.
type TurnMetrics struct {
	STTMS   *int64 `json:"stt_ms"`
	LLMMS   *int64 `json:"llm_ms"`
	TTSMS   *int64 `json:"tts_ms"`
	TotalMS *int64 `json:"turn_total_ms"`
}

// Complete reports whether every stage duration has been latched.
func (m TurnMetrics) Complete() bool {
	return m.STTMS != nil && m.LLMMS != nil && m.TTSMS != nil && m.TotalMS != nil
}

// StageSink receives latched turn metrics, typically to feed histograms.
// Implementations must be safe for concurrent use.
type StageSink interface {
	RecordTurn(ctx context.Context, m TurnMetrics)
}

// Transition events drive the metrics latch. The session records one event
// with this category/name pair for every voice-state change, carrying the
// keys below in its data payload.
const (
	CategoryState   = "state"
	EventTransition = "transition"

	KeyFrom        = "from"
	KeyTo          = "to"
	KeyTurnTotalMS = "turn_total_ms"
	KeySTTMS       = "stt_ms"
	KeyLLMMS       = "llm_ms"
	KeyTTSMS       = "tts_ms"
)

// DefaultCapacity is the default maximum number of retained events.
const DefaultCapacity = 500

// Recorder is the bounded event log plus the derived turn metrics.
type Recorder struct {
	mu      sync.Mutex
	max     int
	nextID  int64
	events  []Event
	enabled map[string]bool
	metrics TurnMetrics
	sink    StageSink
	now     func() time.Time
}

// Option configures a Recorder.
type Option func(*Recorder)

// WithCapacity bounds the event log. n <= 0 keeps the default.
func WithCapacity(n int) Option {
	return func(r *Recorder) {
		if n > 0 {
			r.max = n
		}
	}
}

// WithCategories pre-registers categories as enabled so the filter set is
// stable before the first event arrives.
func WithCategories(categories ...string) Option {
	return func(r *Recorder) {
		for _, c := range categories {
			if c != "" {
				r.enabled[c] = true
			}
		}
	}
}

// WithSink forwards latched turn metrics to sink.
func WithSink(sink StageSink) Option {
	return func(r *Recorder) {
		r.sink = sink
	}
}

// WithNow overrides the local timestamp source.
func WithNow(now func() time.Time) Option {
	return func(r *Recorder) {
		if now != nil {
			r.now = now
		}
	}
}

// NewRecorder builds a Recorder with the default capacity.
func NewRecorder(opts ...Option) *Recorder {
	r := &Recorder{
		max:     DefaultCapacity,
		enabled: make(map[string]bool),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Record appends one event. Unseen categories register as enabled so
// extensible server categories show up without configuration. Transition
// events additionally update the turn metrics: a transition to idle with a
// total duration latches all stage timings present in the payload; a
// transition to listening resets them for the new turn.
func (r *Recorder) Record(category, name string, data map[string]any, serverTS *int64) {
	if r == nil {
		return
	}

	var latched *TurnMetrics

	r.mu.Lock()
	if _, seen := r.enabled[category]; !seen {
		r.enabled[category] = true
	}

	r.nextID++
	ev := Event{
		ID:       r.nextID,
		Category: category,
		Name:     name,
		Data:     data,
		ServerTS: serverTS,
		LocalTS:  r.now(),
	}
	r.events = append(r.events, ev)
	if excess := len(r.events) - r.max; excess > 0 {
		r.events = r.events[excess:]
	}

	if category == CategoryState && name == EventTransition {
		switch to, _ := data[KeyTo].(string); to {
		case "listening":
			r.metrics = TurnMetrics{}
		case "idle":
			if total, ok := msValue(data[KeyTurnTotalMS]); ok {
				m := TurnMetrics{TotalMS: &total}
				if v, ok := msValue(data[KeySTTMS]); ok {
					m.STTMS = &v
				}
				if v, ok := msValue(data[KeyLLMMS]); ok {
					m.LLMMS = &v
				}
				if v, ok := msValue(data[KeyTTSMS]); ok {
					m.TTSMS = &v
				}
				r.metrics = m
				if r.sink != nil {
					snapshot := m
					latched = &snapshot
				}
			}
		}
	}
	sink := r.sink
	r.mu.Unlock()

	if latched != nil && sink != nil {
		sink.RecordTurn(context.Background(), *latched)
	}
}

// Events returns a copy of the full log, oldest first.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// FilteredEvents returns a copy of the log restricted to enabled categories,
// preserving insertion order.
func (r *Recorder) FilteredEvents() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, 0, len(r.events))
	for _, ev := range r.events {
		if r.enabled[ev.Category] {
			out = append(out, ev)
		}
	}
	return out
}

// Len reports the current log length.
func (r *Recorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

// SetCategoryEnabled toggles a category in the filter set.
func (r *Recorder) SetCategoryEnabled(category string, enabled bool) {
	if category == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.enabled[category] = enabled
}

// Categories returns the registered categories and their enabled flags.
func (r *Recorder) Categories() map[string]bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]bool, len(r.enabled))
	for c, on := range r.enabled {
		out[c] = on
	}
	return out
}

// Metrics returns the current turn metrics.
func (r *Recorder) Metrics() TurnMetrics {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.metrics
}

// Clear resets the log, the id counter and the metrics in one step. The
// category filter set is preserved.
func (r *Recorder) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
	r.nextID = 0
	r.metrics = TurnMetrics{}
}

func msValue(v any) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	case float64:
		return int64(n), true
	default:
		return 0, false
	}
}
