package audio

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/gen2brain/malgo"
)

// ErrDeviceUnavailable marks capture failures caused by a missing or denied
// input device. Sessions surface it as a user-visible error without touching
// the voice state.
var ErrDeviceUnavailable = errors.New("audio: capture device unavailable")

// CaptureConfig configures a MicCapture.
type CaptureConfig struct {
	// NativeSampleRate is the rate requested from the device. Defaults to
	// 48000, the common hardware native rate.
	NativeSampleRate int

	// TargetSampleRate is the protocol rate chunks are decimated to.
	// Defaults to 16000.
	TargetSampleRate int

	// ChunkSamples is the fixed chunk size at the target rate. Defaults
	// to 4096 (about 256 ms).
	ChunkSamples int

	// PeriodMS is the device callback period. Defaults to 20.
	PeriodMS int

	// ChunkBuffer is the capacity of the outgoing chunk channel. When the
	// consumer falls behind, chunks are dropped rather than blocking the
	// device callback. Defaults to 32.
	ChunkBuffer int

	// MaxUtteranceBytes bounds the per-utterance recording buffer.
	// 0 means unbounded.
	MaxUtteranceBytes int

	Logger *slog.Logger
}

func (c *CaptureConfig) applyDefaults() {
	if c.NativeSampleRate <= 0 {
		c.NativeSampleRate = 48000
	}
	if c.TargetSampleRate <= 0 {
		c.TargetSampleRate = 16000
	}
	if c.ChunkSamples <= 0 {
		c.ChunkSamples = 4096
	}
	if c.PeriodMS <= 0 {
		c.PeriodMS = 20
	}
	if c.ChunkBuffer <= 0 {
		c.ChunkBuffer = 32
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// MicCapture owns the microphone for one session: a dedicated low-latency
// device context delivering float frames at the native rate, decimated into
// fixed PCM16 chunks. Start and Stop may be called repeatedly; each Start
// begins a fresh utterance.
type MicCapture struct {
	cfg    CaptureConfig
	logger *slog.Logger

	chunks  chan []byte
	running atomic.Bool
	dropped atomic.Int64

	// mu guards the device lifecycle. The data callback never takes it,
	// so Stop cannot deadlock against an in-flight callback.
	mu     sync.Mutex
	mctx   *malgo.AllocatedContext
	device *malgo.Device

	// dataMu serializes the decimator between the device thread and
	// Stop's reset.
	dataMu sync.Mutex
	dec    *Decimator
	utt    *UtteranceBuffer
}

// NewMicCapture builds an idle capture pipeline. No device is touched until
// Start.
func NewMicCapture(cfg CaptureConfig) (*MicCapture, error) {
	cfg.applyDefaults()
	dec, err := NewDecimator(cfg.NativeSampleRate, cfg.TargetSampleRate, cfg.ChunkSamples)
	if err != nil {
		return nil, err
	}
	return &MicCapture{
		cfg:    cfg,
		logger: cfg.Logger,
		chunks: make(chan []byte, cfg.ChunkBuffer),
		dec:    dec,
		utt:    NewUtteranceBuffer(cfg.MaxUtteranceBytes),
	}, nil
}

// Start acquires the microphone and begins emitting chunks. A failure wraps
// ErrDeviceUnavailable; an already-running capture is a no-op.
func (c *MicCapture) Start(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running.Load() {
		return nil
	}

	contextConfig := malgo.ContextConfig{}
	contextConfig.ThreadPriority = malgo.ThreadPriorityRealtime

	mctx, err := malgo.InitContext(nil, contextConfig, nil)
	if err != nil {
		return fmt.Errorf("%w: init context: %v", ErrDeviceUnavailable, err)
	}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Format = malgo.FormatF32
	deviceConfig.Capture.Channels = 1
	deviceConfig.SampleRate = uint32(c.cfg.NativeSampleRate)
	deviceConfig.PeriodSizeInMilliseconds = uint32(c.cfg.PeriodMS)

	callbacks := malgo.DeviceCallbacks{
		Data: c.onFrames,
	}

	device, err := malgo.InitDevice(mctx.Context, deviceConfig, callbacks)
	if err != nil {
		mctx.Uninit()
		return fmt.Errorf("%w: init device: %v", ErrDeviceUnavailable, err)
	}
	if err := device.Start(); err != nil {
		device.Uninit()
		mctx.Uninit()
		return fmt.Errorf("%w: start device: %v", ErrDeviceUnavailable, err)
	}

	c.mctx = mctx
	c.device = device

	// Fresh utterance: drop stale buffered audio and any chunks still
	// queued from the previous one.
	c.dataMu.Lock()
	c.dec.Reset()
	c.dataMu.Unlock()
	c.utt.Reset()
	c.drainChunks()

	c.running.Store(true)
	c.logger.Debug("capture started",
		"native_rate", c.cfg.NativeSampleRate,
		"target_rate", c.cfg.TargetSampleRate,
		"chunk_samples", c.cfg.ChunkSamples)
	return nil
}

// onFrames runs on the device's real-time thread. It must never block: chunk
// delivery uses a non-blocking send and drops on backpressure.
func (c *MicCapture) onFrames(_, input []byte, _ uint32) {
	if !c.running.Load() {
		return
	}
	samples := floatsFromF32LE(input)

	c.dataMu.Lock()
	chunks := c.dec.Push(samples)
	c.dataMu.Unlock()

	for _, chunk := range chunks {
		c.utt.Append(chunk)
		select {
		case c.chunks <- chunk:
		default:
			c.dropped.Add(1)
		}
	}
}

// Stop releases the device and its context. Idempotent; safe on every exit
// path. The accumulated utterance survives until the next Start so the
// recording can still be assembled after capture ends.
func (c *MicCapture) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.running.Load() {
		return
	}
	c.running.Store(false)

	if c.device != nil {
		c.device.Stop()
		c.device.Uninit()
		c.device = nil
	}
	if c.mctx != nil {
		c.mctx.Uninit()
		c.mctx = nil
	}

	c.dataMu.Lock()
	c.dec.Reset()
	c.dataMu.Unlock()

	if n := c.dropped.Swap(0); n > 0 {
		c.logger.Warn("capture dropped chunks on backpressure", "count", n)
	}
	c.logger.Debug("capture stopped")
}

// Chunks is the one-way channel from the capture context to the session.
func (c *MicCapture) Chunks() <-chan []byte {
	return c.chunks
}

// Utterance returns a copy of the audio accumulated since the last Start.
func (c *MicCapture) Utterance() []byte {
	return c.utt.Bytes()
}

// Dropped reports chunks discarded because the consumer fell behind since
// the last Stop.
func (c *MicCapture) Dropped() int64 {
	return c.dropped.Load()
}

func (c *MicCapture) drainChunks() {
	for {
		select {
		case <-c.chunks:
		default:
			return
		}
	}
}
