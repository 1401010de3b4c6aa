package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Load reads a YAML configuration file into cfg, overlaying only the fields
// the file sets. Unknown fields are rejected so typos surface immediately.
func Load(path string, cfg *Config) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open config: %w", err)
	}
	defer f.Close()

	if err := LoadFromReader(f, cfg); err != nil {
		return fmt.Errorf("config %s: %w", path, err)
	}
	return nil
}

// LoadFromReader decodes YAML from r into cfg. An empty document leaves cfg
// untouched. The result is not validated here: callers compose defaults, env,
// file, and flag layers first and call Validate once at the end.
func LoadFromReader(r io.Reader, cfg *Config) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	if err := dec.Decode(cfg); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("decode: %w", err)
	}
	return nil
}

// ApplyEnv overlays VOCALIS_* environment variables onto cfg. Unset and
// malformed variables leave the current value in place.
func ApplyEnv(cfg *Config) {
	cfg.Server.BaseURL = envOr("VOCALIS_BASE_URL", cfg.Server.BaseURL)
	cfg.Server.HandshakeTimeout = envDurationOr("VOCALIS_HANDSHAKE_TIMEOUT", cfg.Server.HandshakeTimeout)
	cfg.Server.WriteTimeout = envDurationOr("VOCALIS_WRITE_TIMEOUT", cfg.Server.WriteTimeout)
	cfg.Server.PingInterval = envDurationOr("VOCALIS_PING_INTERVAL", cfg.Server.PingInterval)

	cfg.Audio.Input = InputMode(envOr("VOCALIS_INPUT", string(cfg.Audio.Input)))
	cfg.Audio.InputWAV = envOr("VOCALIS_INPUT_WAV", cfg.Audio.InputWAV)
	cfg.Audio.NativeSampleRate = envIntOr("VOCALIS_NATIVE_SAMPLE_RATE", cfg.Audio.NativeSampleRate)
	cfg.Audio.DisablePlayback = envBoolOr("VOCALIS_DISABLE_PLAYBACK", cfg.Audio.DisablePlayback)
	cfg.Audio.MaxUtteranceSeconds = envIntOr("VOCALIS_MAX_UTTERANCE_SECONDS", cfg.Audio.MaxUtteranceSeconds)

	cfg.Session.Voice = envOr("VOCALIS_VOICE", cfg.Session.Voice)
	cfg.Session.ThreadID = envOr("VOCALIS_THREAD_ID", cfg.Session.ThreadID)
	cfg.Session.EventBuffer = envIntOr("VOCALIS_EVENT_BUFFER", cfg.Session.EventBuffer)

	cfg.Telemetry.Capacity = envIntOr("VOCALIS_TELEMETRY_CAPACITY", cfg.Telemetry.Capacity)
	if cats := splitCSV(os.Getenv("VOCALIS_TELEMETRY_CATEGORIES")); len(cats) > 0 {
		cfg.Telemetry.Categories = cats
	}

	cfg.Log.Level = LogLevel(envOr("VOCALIS_LOG_LEVEL", string(cfg.Log.Level)))
	cfg.Log.Format = LogFormat(envOr("VOCALIS_LOG_FORMAT", string(cfg.Log.Format)))

	cfg.Debug.ListenAddr = envOr("VOCALIS_DEBUG_ADDR", cfg.Debug.ListenAddr)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func envBoolOr(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func envDurationOr(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
