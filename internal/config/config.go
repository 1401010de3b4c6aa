// Package config provides the configuration schema and loader for the
// vocalis-chat CLI. Values resolve in precedence order: command-line flags
// over the YAML file over VOCALIS_* environment variables over defaults.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// LogLevel controls log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Level maps l onto the slog scale. Unknown levels map to info.
func (l LogLevel) Level() slog.Level {
	switch l {
	case LogDebug:
		return slog.LevelDebug
	case LogWarn:
		return slog.LevelWarn
	case LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// LogFormat selects the slog handler.
type LogFormat string

const (
	LogText LogFormat = "text"
	LogJSON LogFormat = "json"
)

// IsValid reports whether f is a recognised log format.
func (f LogFormat) IsValid() bool {
	return f == LogText || f == LogJSON
}

// InputMode selects where user audio comes from.
type InputMode string

const (
	// InputMic captures from the default microphone.
	InputMic InputMode = "mic"

	// InputFile replays a WAV file through the capture path.
	InputFile InputMode = "file"

	// InputNone runs without audio input; start requests fail with a
	// device error. Useful for inspecting threads and playback only.
	InputNone InputMode = "none"
)

// IsValid reports whether m is a recognised input mode.
func (m InputMode) IsValid() bool {
	switch m {
	case InputMic, InputFile, InputNone:
		return true
	}
	return false
}

// Config is the root configuration for the CLI. Load it with [Load] or start
// from [Default].
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Audio     AudioConfig     `yaml:"audio"`
	Session   SessionConfig   `yaml:"session"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Log       LogConfig       `yaml:"log"`
	Debug     DebugConfig     `yaml:"debug"`
}

// ServerConfig holds connection settings for the voice server.
type ServerConfig struct {
	// BaseURL is the server root (http, https, ws or wss). The websocket
	// and REST endpoints are both derived from it.
	BaseURL string `yaml:"base_url"`

	// HandshakeTimeout bounds dialing plus the wait for the server's
	// initial state frame.
	HandshakeTimeout time.Duration `yaml:"handshake_timeout"`

	// WriteTimeout bounds each outbound websocket write.
	WriteTimeout time.Duration `yaml:"write_timeout"`

	// PingInterval is the keepalive ping cadence. Zero disables pings.
	PingInterval time.Duration `yaml:"ping_interval"`
}

// AudioConfig holds capture and playback settings.
type AudioConfig struct {
	// Input selects the audio source.
	Input InputMode `yaml:"input"`

	// InputWAV is the file replayed when Input is "file".
	InputWAV string `yaml:"input_wav"`

	// NativeSampleRate is the rate requested from the microphone before
	// decimation to the protocol rate.
	NativeSampleRate int `yaml:"native_sample_rate"`

	// DisablePlayback mutes assistant speech; payloads still attach to
	// the transcript.
	DisablePlayback bool `yaml:"disable_playback"`

	// MaxUtteranceSeconds bounds the per-utterance recording buffer.
	// Zero keeps every chunk of the utterance.
	MaxUtteranceSeconds int `yaml:"max_utterance_seconds"`
}

// MaxUtteranceBytes converts the configured bound to bytes of mono PCM16 at
// the given sample rate. Zero means unbounded.
func (a AudioConfig) MaxUtteranceBytes(sampleRate int) int {
	if a.MaxUtteranceSeconds <= 0 {
		return 0
	}
	return a.MaxUtteranceSeconds * sampleRate * 2
}

// SessionConfig holds per-session settings.
type SessionConfig struct {
	// Voice picks the synthesis voice right after connect. Empty keeps
	// the server default.
	Voice string `yaml:"voice"`

	// ThreadID resumes an existing conversation thread.
	ThreadID string `yaml:"thread_id"`

	// EventBuffer is the session event channel capacity.
	EventBuffer int `yaml:"event_buffer"`
}

// TelemetryConfig holds debug event log settings.
type TelemetryConfig struct {
	// Capacity bounds the event log; the oldest entries are discarded.
	Capacity int `yaml:"capacity"`

	// Categories pre-registers debug categories as enabled.
	Categories []string `yaml:"categories"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  LogLevel  `yaml:"level"`
	Format LogFormat `yaml:"format"`
}

// DebugConfig holds the optional debug HTTP listener settings.
type DebugConfig struct {
	// ListenAddr enables the listener (metrics, health, event dump) when
	// non-empty, e.g. ":9190".
	ListenAddr string `yaml:"listen_addr"`
}

// Default returns the fully defaulted configuration.
func Default() Config {
	return Config{
		Server: ServerConfig{
			BaseURL:          "http://localhost:8040",
			HandshakeTimeout: 15 * time.Second,
			WriteTimeout:     10 * time.Second,
			PingInterval:     20 * time.Second,
		},
		Audio: AudioConfig{
			Input:            InputMic,
			NativeSampleRate: 48000,
		},
		Session: SessionConfig{
			EventBuffer: 256,
		},
		Telemetry: TelemetryConfig{
			Capacity: 500,
		},
		Log: LogConfig{
			Level:  LogInfo,
			Format: LogText,
		},
	}
}

// Validate checks that c contains a coherent set of values, returning a
// joined error listing every failure found.
func (c *Config) Validate() error {
	var errs []error

	if c.Server.BaseURL == "" {
		errs = append(errs, errors.New("server.base_url is required"))
	}
	if c.Server.HandshakeTimeout <= 0 {
		errs = append(errs, errors.New("server.handshake_timeout must be > 0"))
	}
	if c.Server.WriteTimeout <= 0 {
		errs = append(errs, errors.New("server.write_timeout must be > 0"))
	}
	if c.Server.PingInterval < 0 {
		errs = append(errs, errors.New("server.ping_interval must be >= 0"))
	}

	if !c.Audio.Input.IsValid() {
		errs = append(errs, fmt.Errorf("audio.input %q is invalid; valid values: mic, file, none", c.Audio.Input))
	}
	if c.Audio.Input == InputFile && c.Audio.InputWAV == "" {
		errs = append(errs, errors.New("audio.input_wav is required when audio.input is file"))
	}
	if c.Audio.NativeSampleRate <= 0 {
		errs = append(errs, errors.New("audio.native_sample_rate must be > 0"))
	}
	if c.Audio.MaxUtteranceSeconds < 0 {
		errs = append(errs, errors.New("audio.max_utterance_seconds must be >= 0"))
	}

	if c.Session.EventBuffer <= 0 {
		errs = append(errs, errors.New("session.event_buffer must be > 0"))
	}

	if c.Telemetry.Capacity <= 0 {
		errs = append(errs, errors.New("telemetry.capacity must be > 0"))
	}

	if !c.Log.Level.IsValid() {
		errs = append(errs, fmt.Errorf("log.level %q is invalid; valid values: debug, info, warn, error", c.Log.Level))
	}
	if !c.Log.Format.IsValid() {
		errs = append(errs, fmt.Errorf("log.format %q is invalid; valid values: text, json", c.Log.Format))
	}

	return errors.Join(errs...)
}
