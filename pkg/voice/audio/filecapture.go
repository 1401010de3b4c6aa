package audio

import (
	"context"
	"encoding/binary"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"
)

// FileCaptureConfig configures a FileCapture.
type FileCaptureConfig struct {
	// Path of the WAV file to replay. Mono and stereo PCM16 are accepted;
	// stereo is downmixed.
	Path string

	// TargetSampleRate is the protocol rate chunks are decimated to.
	// Defaults to 16000.
	TargetSampleRate int

	// ChunkSamples is the fixed chunk size at the target rate. Defaults
	// to 4096.
	ChunkSamples int

	// RealTime paces the replay at one chunk per chunk duration, like a
	// live microphone. Off, the file drains as fast as the consumer reads.
	RealTime bool

	// ChunkBuffer is the capacity of the outgoing chunk channel.
	// Defaults to 32.
	ChunkBuffer int

	// MaxUtteranceBytes bounds the per-utterance recording buffer.
	// 0 means unbounded.
	MaxUtteranceBytes int

	Logger *slog.Logger
}

func (c *FileCaptureConfig) applyDefaults() {
	if c.TargetSampleRate <= 0 {
		c.TargetSampleRate = 16000
	}
	if c.ChunkSamples <= 0 {
		c.ChunkSamples = 4096
	}
	if c.ChunkBuffer <= 0 {
		c.ChunkBuffer = 32
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// FileCapture replays a WAV file through the same decimation path a live
// microphone uses, for scripted sessions and headless environments. Each
// Start rereads the file and begins a fresh utterance; the tail is padded
// with silence so no audio is lost at EOF.
type FileCapture struct {
	cfg    FileCaptureConfig
	logger *slog.Logger

	chunks chan []byte
	utt    *UtteranceBuffer

	mu      sync.Mutex
	running bool
	stop    chan struct{}
	drained chan struct{}
}

// NewFileCapture builds an idle file capture. The file is not touched until
// Start.
func NewFileCapture(cfg FileCaptureConfig) (*FileCapture, error) {
	cfg.applyDefaults()
	if cfg.Path == "" {
		return nil, fmt.Errorf("audio: file capture needs a path")
	}
	return &FileCapture{
		cfg:    cfg,
		logger: cfg.Logger,
		chunks: make(chan []byte, cfg.ChunkBuffer),
		utt:    NewUtteranceBuffer(cfg.MaxUtteranceBytes),
	}, nil
}

// Start reads the file and begins emitting chunks. Failures wrap
// ErrDeviceUnavailable so sessions treat a bad file exactly like a missing
// microphone. An already-running capture is a no-op.
func (c *FileCapture) Start(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		return nil
	}

	raw, err := os.ReadFile(c.cfg.Path)
	if err != nil {
		return fmt.Errorf("%w: read %s: %v", ErrDeviceUnavailable, c.cfg.Path, err)
	}
	pcm, rate, channels, err := DecodeWAV(raw)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
	}
	switch channels {
	case 1:
	case 2:
		pcm = downmixStereo(pcm)
	default:
		return fmt.Errorf("%w: unsupported channel count %d", ErrDeviceUnavailable, channels)
	}

	dec, err := NewDecimator(rate, c.cfg.TargetSampleRate, c.cfg.ChunkSamples)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
	}

	c.utt.Reset()
	c.drainChunks()
	c.stop = make(chan struct{})
	c.drained = make(chan struct{})
	c.running = true

	go c.replay(dec, FloatsFromPCM16(pcm), c.stop, c.drained)

	c.logger.Debug("file capture started",
		"path", c.cfg.Path,
		"file_rate", rate,
		"target_rate", c.cfg.TargetSampleRate,
		"pcm_bytes", len(pcm))
	return nil
}

func (c *FileCapture) replay(dec *Decimator, samples []float32, stop, drained chan struct{}) {
	defer close(drained)

	chunks := dec.Push(samples)
	if tail := dec.Flush(); tail != nil {
		chunks = append(chunks, tail)
	}

	var pace <-chan time.Time
	if c.cfg.RealTime {
		interval := time.Duration(c.cfg.ChunkSamples) * time.Second / time.Duration(c.cfg.TargetSampleRate)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		pace = ticker.C
	}

	for _, chunk := range chunks {
		if pace != nil {
			select {
			case <-pace:
			case <-stop:
				return
			}
		}
		c.utt.Append(chunk)
		select {
		case c.chunks <- chunk:
		case <-stop:
			return
		}
	}
	c.logger.Debug("file replay drained", "path", c.cfg.Path, "chunks", len(chunks))
}

// Stop ends the replay and waits for the feeder to exit. Idempotent. The
// accumulated utterance survives until the next Start.
func (c *FileCapture) Stop() {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return
	}
	c.running = false
	close(c.stop)
	drained := c.drained
	c.mu.Unlock()
	<-drained
}

// Chunks is the one-way channel from the replay to the session.
func (c *FileCapture) Chunks() <-chan []byte {
	return c.chunks
}

// Utterance returns a copy of the audio accumulated since the last Start.
func (c *FileCapture) Utterance() []byte {
	return c.utt.Bytes()
}

// Drained is closed once the whole file has been fed (or the replay was
// stopped). Callers use it to know when to request the stop transition.
// Nil before the first Start.
func (c *FileCapture) Drained() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.drained
}

func (c *FileCapture) drainChunks() {
	for {
		select {
		case <-c.chunks:
		default:
			return
		}
	}
}

// downmixStereo averages interleaved stereo PCM16 frames into mono.
func downmixStereo(pcm []byte) []byte {
	frames := len(pcm) / 4
	out := make([]byte, frames*2)
	for i := 0; i < frames; i++ {
		left := int16(binary.LittleEndian.Uint16(pcm[i*4:]))
		right := int16(binary.LittleEndian.Uint16(pcm[i*4+2:]))
		mono := int16((int32(left) + int32(right)) / 2)
		binary.LittleEndian.PutUint16(out[i*2:], uint16(mono))
	}
	return out
}
