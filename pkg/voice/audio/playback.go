package audio

import (
	"bytes"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"
)

// SpeakerConfig configures a Speaker.
type SpeakerConfig struct {
	// SampleRate of the output context. Defaults to 16000, matching the
	// protocol payloads so most playback needs no resampling.
	SampleRate int

	// BufferSize is the device-side buffer length. Smaller means lower
	// latency at the cost of glitch risk. Defaults to 100ms.
	BufferSize time.Duration

	Logger *slog.Logger
}

// Speaker renders complete WAV payloads through the output device. Each Play
// replaces whatever was previously playing; Stop flushes immediately. The
// underlying output context is process-wide, so create one Speaker and share
// it across reconnects.
type Speaker struct {
	ctx        *oto.Context
	sampleRate int
	logger     *slog.Logger

	mu     sync.Mutex
	player *oto.Player
	closed bool
}

// NewSpeaker opens the output device.
func NewSpeaker(cfg SpeakerConfig) (*Speaker, error) {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 16000
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 100 * time.Millisecond
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	opts := &oto.NewContextOptions{
		SampleRate:   cfg.SampleRate,
		ChannelCount: 1,
		Format:       oto.FormatSignedInt16LE,
		BufferSize:   cfg.BufferSize,
	}
	otoCtx, ready, err := oto.NewContext(opts)
	if err != nil {
		return nil, fmt.Errorf("audio: open speaker: %w", err)
	}
	<-ready

	return &Speaker{
		ctx:        otoCtx,
		sampleRate: cfg.SampleRate,
		logger:     cfg.Logger,
	}, nil
}

// Play decodes a WAV payload and starts rendering it, replacing any payload
// still playing. The call returns once playback has started; errors cover
// decode and format problems only, playback itself is fire-and-forget.
func (s *Speaker) Play(wav []byte) error {
	pcm, rate, channels, err := DecodeWAV(wav)
	if err != nil {
		return err
	}
	if channels != 1 {
		return fmt.Errorf("audio: unsupported channel count %d", channels)
	}
	if rate != s.sampleRate {
		if pcm, err = ResamplePCM16(pcm, rate, s.sampleRate); err != nil {
			return err
		}
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return fmt.Errorf("audio: speaker closed")
	}
	prev := s.player
	s.player = nil
	s.mu.Unlock()
	stopPlayer(prev)

	player := s.ctx.NewPlayer(bytes.NewReader(pcm))

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		player.Close()
		return fmt.Errorf("audio: speaker closed")
	}
	s.player = player
	s.mu.Unlock()

	player.Play()
	go s.reap(player)

	s.logger.Debug("playback started",
		"bytes", len(pcm),
		"duration_ms", len(pcm)/2*1000/s.sampleRate)
	return nil
}

// reap closes the player once it drains, unless another payload replaced it
// first.
func (s *Speaker) reap(player *oto.Player) {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for range ticker.C {
		s.mu.Lock()
		current := s.player == player && !s.closed
		s.mu.Unlock()
		if !current {
			return
		}
		if !player.IsPlaying() {
			s.mu.Lock()
			if s.player == player {
				s.player = nil
			}
			s.mu.Unlock()
			player.Close()
			return
		}
	}
}

// Stop flushes the current payload immediately. Pending audio is discarded.
func (s *Speaker) Stop() {
	s.mu.Lock()
	player := s.player
	s.player = nil
	s.mu.Unlock()
	stopPlayer(player)
}

// Close stops playback and marks the speaker unusable. The output context
// itself cannot be released; that is a platform limitation.
func (s *Speaker) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	player := s.player
	s.player = nil
	s.mu.Unlock()
	stopPlayer(player)
	return nil
}

func stopPlayer(player *oto.Player) {
	if player == nil {
		return
	}
	player.Pause()
	player.Reset()
	player.Close()
}
