package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"
)

func TestDefault_IsValid(t *testing.T) {
	t.Parallel()

	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate, got: %v", err)
	}
}

func TestLoadFromReader_OverlaysFile(t *testing.T) {
	t.Parallel()

	doc := `
server:
  base_url: wss://voice.example.com/api
  handshake_timeout: 5s
audio:
  input: file
  input_wav: testdata/hello.wav
  max_utterance_seconds: 30
session:
  voice: ember
telemetry:
  capacity: 50
  categories: [stt, tts]
log:
  level: debug
  format: json
debug:
  listen_addr: ":9190"
`
	cfg := Default()
	if err := LoadFromReader(strings.NewReader(doc), &cfg); err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}

	if cfg.Server.BaseURL != "wss://voice.example.com/api" {
		t.Errorf("base_url = %q", cfg.Server.BaseURL)
	}
	if cfg.Server.HandshakeTimeout != 5*time.Second {
		t.Errorf("handshake_timeout = %v, want 5s", cfg.Server.HandshakeTimeout)
	}
	// Fields the file does not mention keep their defaults.
	if cfg.Server.WriteTimeout != 10*time.Second {
		t.Errorf("write_timeout = %v, want default 10s", cfg.Server.WriteTimeout)
	}
	if cfg.Server.PingInterval != 20*time.Second {
		t.Errorf("ping_interval = %v, want default 20s", cfg.Server.PingInterval)
	}
	if cfg.Audio.Input != InputFile || cfg.Audio.InputWAV != "testdata/hello.wav" {
		t.Errorf("audio input = %q file %q", cfg.Audio.Input, cfg.Audio.InputWAV)
	}
	if cfg.Audio.NativeSampleRate != 48000 {
		t.Errorf("native_sample_rate = %d, want default 48000", cfg.Audio.NativeSampleRate)
	}
	if cfg.Audio.MaxUtteranceSeconds != 30 {
		t.Errorf("max_utterance_seconds = %d", cfg.Audio.MaxUtteranceSeconds)
	}
	if cfg.Session.Voice != "ember" || cfg.Session.EventBuffer != 256 {
		t.Errorf("session = %+v", cfg.Session)
	}
	if cfg.Telemetry.Capacity != 50 {
		t.Errorf("telemetry.capacity = %d", cfg.Telemetry.Capacity)
	}
	if len(cfg.Telemetry.Categories) != 2 || cfg.Telemetry.Categories[0] != "stt" {
		t.Errorf("telemetry.categories = %v", cfg.Telemetry.Categories)
	}
	if cfg.Log.Level != LogDebug || cfg.Log.Format != LogJSON {
		t.Errorf("log = %+v", cfg.Log)
	}
	if cfg.Debug.ListenAddr != ":9190" {
		t.Errorf("debug.listen_addr = %q", cfg.Debug.ListenAddr)
	}
}

func TestLoadFromReader_EmptyDocumentKeepsDefaults(t *testing.T) {
	t.Parallel()

	cfg := Default()
	if err := LoadFromReader(strings.NewReader(""), &cfg); err != nil {
		t.Fatalf("empty document should not fail: %v", err)
	}
	if !reflect.DeepEqual(cfg, Default()) {
		t.Errorf("config changed by empty document: %+v", cfg)
	}
}

func TestLoadFromReader_RejectsUnknownFields(t *testing.T) {
	t.Parallel()

	cfg := Default()
	err := LoadFromReader(strings.NewReader("server:\n  base_ur1: oops\n"), &cfg)
	if err == nil {
		t.Fatal("expected error for unknown field")
	}
	if !strings.Contains(err.Error(), "base_ur1") {
		t.Errorf("error should name the unknown field, got: %v", err)
	}
}

func TestValidate_ReportsEveryError(t *testing.T) {
	t.Parallel()

	doc := `
server:
  base_url: ""
  handshake_timeout: -1s
audio:
  input: tape
log:
  level: loud
`
	cfg := Default()
	if err := LoadFromReader(strings.NewReader(doc), &cfg); err != nil {
		t.Fatalf("decode: %v", err)
	}
	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation error")
	}
	for _, want := range []string{
		"server.base_url",
		"server.handshake_timeout",
		`audio.input "tape"`,
		`log.level "loud"`,
	} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error missing %q, got: %v", want, err)
		}
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "missing input wav in file mode",
			mutate:  func(c *Config) { c.Audio.Input = InputFile },
			wantErr: "audio.input_wav is required",
		},
		{
			name:    "zero write timeout",
			mutate:  func(c *Config) { c.Server.WriteTimeout = 0 },
			wantErr: "server.write_timeout",
		},
		{
			name:    "negative ping interval",
			mutate:  func(c *Config) { c.Server.PingInterval = -time.Second },
			wantErr: "server.ping_interval",
		},
		{
			name:    "zero sample rate",
			mutate:  func(c *Config) { c.Audio.NativeSampleRate = 0 },
			wantErr: "audio.native_sample_rate",
		},
		{
			name:    "negative utterance bound",
			mutate:  func(c *Config) { c.Audio.MaxUtteranceSeconds = -1 },
			wantErr: "audio.max_utterance_seconds",
		},
		{
			name:    "zero event buffer",
			mutate:  func(c *Config) { c.Session.EventBuffer = 0 },
			wantErr: "session.event_buffer",
		},
		{
			name:    "zero telemetry capacity",
			mutate:  func(c *Config) { c.Telemetry.Capacity = 0 },
			wantErr: "telemetry.capacity",
		},
		{
			name:    "bad log format",
			mutate:  func(c *Config) { c.Log.Format = "xml" },
			wantErr: "log.format",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %v, want mention of %q", err, tt.wantErr)
			}
		})
	}
}

func TestValidate_PingIntervalZeroAllowed(t *testing.T) {
	t.Parallel()

	cfg := Default()
	cfg.Server.PingInterval = 0
	if err := cfg.Validate(); err != nil {
		t.Fatalf("ping_interval 0 should be valid (disables pings): %v", err)
	}
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("VOCALIS_BASE_URL", "https://voice.example.com")
	t.Setenv("VOCALIS_HANDSHAKE_TIMEOUT", "3s")
	t.Setenv("VOCALIS_INPUT", "none")
	t.Setenv("VOCALIS_DISABLE_PLAYBACK", "true")
	t.Setenv("VOCALIS_VOICE", "sage")
	t.Setenv("VOCALIS_EVENT_BUFFER", "not-a-number") // malformed, must be ignored
	t.Setenv("VOCALIS_TELEMETRY_CATEGORIES", " stt, tts ,")
	t.Setenv("VOCALIS_LOG_LEVEL", "warn")

	cfg := Default()
	ApplyEnv(&cfg)

	if cfg.Server.BaseURL != "https://voice.example.com" {
		t.Errorf("base_url = %q", cfg.Server.BaseURL)
	}
	if cfg.Server.HandshakeTimeout != 3*time.Second {
		t.Errorf("handshake_timeout = %v", cfg.Server.HandshakeTimeout)
	}
	if cfg.Audio.Input != InputNone {
		t.Errorf("input = %q", cfg.Audio.Input)
	}
	if !cfg.Audio.DisablePlayback {
		t.Error("disable_playback should be true")
	}
	if cfg.Session.Voice != "sage" {
		t.Errorf("voice = %q", cfg.Session.Voice)
	}
	if cfg.Session.EventBuffer != 256 {
		t.Errorf("event_buffer = %d, malformed env should keep default", cfg.Session.EventBuffer)
	}
	if len(cfg.Telemetry.Categories) != 2 || cfg.Telemetry.Categories[1] != "tts" {
		t.Errorf("categories = %v", cfg.Telemetry.Categories)
	}
	if cfg.Log.Level != LogWarn {
		t.Errorf("log level = %q", cfg.Log.Level)
	}
}

func TestLoad_File(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "vocalis.yaml")
	if err := os.WriteFile(path, []byte("session:\n  thread_id: th_42\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg := Default()
	if err := Load(path, &cfg); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Session.ThreadID != "th_42" {
		t.Errorf("thread_id = %q", cfg.Session.ThreadID)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	t.Parallel()

	cfg := Default()
	err := Load(filepath.Join(t.TempDir(), "absent.yaml"), &cfg)
	if err == nil {
		t.Fatal("expected error for missing file")
	}
	if !strings.Contains(err.Error(), "open config") {
		t.Errorf("error = %v", err)
	}
}

func TestAudioConfig_MaxUtteranceBytes(t *testing.T) {
	t.Parallel()

	a := AudioConfig{MaxUtteranceSeconds: 30}
	if got := a.MaxUtteranceBytes(16000); got != 30*16000*2 {
		t.Errorf("MaxUtteranceBytes = %d, want %d", got, 30*16000*2)
	}
	a.MaxUtteranceSeconds = 0
	if got := a.MaxUtteranceBytes(16000); got != 0 {
		t.Errorf("unbounded MaxUtteranceBytes = %d, want 0", got)
	}
}

func TestLogLevel_Level(t *testing.T) {
	t.Parallel()

	tests := map[LogLevel]slog.Level{
		LogDebug:         slog.LevelDebug,
		LogInfo:          slog.LevelInfo,
		LogWarn:          slog.LevelWarn,
		LogError:         slog.LevelError,
		LogLevel("bogus"): slog.LevelInfo,
	}
	for in, want := range tests {
		if got := in.Level(); got != want {
			t.Errorf("Level(%q) = %v, want %v", in, got, want)
		}
	}
}
