// Command vocalis-chat is an interactive terminal client for a Vocalis voice
// server. It streams microphone audio (or a replayed WAV file) over the
// duplex websocket, plays assistant replies as they arrive, and exposes slash
// commands for turn control, transcripts, and telemetry.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/vocalis-go/vocalis/internal/config"
	"github.com/vocalis-go/vocalis/internal/debugsrv"
	"github.com/vocalis-go/vocalis/internal/observe"
	"github.com/vocalis-go/vocalis/pkg/voice/audio"
	"github.com/vocalis-go/vocalis/pkg/voice/protocol"
	vocalis "github.com/vocalis-go/vocalis/sdk"
)

// version is stamped by the release build.
var version = "dev"

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "vocalis-chat: load .env: %v\n", err)
		os.Exit(1)
	}
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "vocalis-chat: %v\n", err)
		os.Exit(1)
	}
}

// cliFlags holds flag values before they are layered onto the config. Only
// flags the user actually set override the file and environment.
type cliFlags struct {
	baseURL    string
	thread     string
	voice      string
	input      string
	inputWAV   string
	noPlayback bool
	debugAddr  string
	logLevel   string
	logFormat  string
}

func newRootCmd() *cobra.Command {
	var (
		configPath string
		flags      cliFlags
	)

	cmd := &cobra.Command{
		Use:   "vocalis-chat",
		Short: "Interactive voice chat against a Vocalis server",
		Long: `vocalis-chat opens a realtime voice session against a Vocalis server.

While listening, microphone audio is decimated to 16 kHz PCM and streamed
over the websocket; assistant replies play back as soon as their WAV
arrives. Type /help inside the session for the available slash commands.

Configuration resolves command-line flags over the YAML config file over
VOCALIS_* environment variables over built-in defaults.`,
		Args:          cobra.NoArgs,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := resolveConfig(configPath, cmd.Flags().Changed, flags)
			if err != nil {
				return err
			}
			return run(cmd.Context(), cfg)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to a YAML config file")
	cmd.Flags().StringVar(&flags.baseURL, "base-url", "", "server base URL (http(s):// or ws(s)://)")
	cmd.Flags().StringVar(&flags.thread, "thread", "", "thread id to resume")
	cmd.Flags().StringVar(&flags.voice, "voice", "", "voice to request at connect")
	cmd.Flags().StringVar(&flags.input, "input", "", "audio input: mic, file, or none")
	cmd.Flags().StringVar(&flags.inputWAV, "input-wav", "", "WAV file to stream instead of the microphone")
	cmd.Flags().BoolVar(&flags.noPlayback, "no-playback", false, "do not play assistant audio")
	cmd.Flags().StringVar(&flags.debugAddr, "debug-addr", "", "listen address for the local debug endpoint")
	cmd.Flags().StringVar(&flags.logLevel, "log-level", "", "log level: debug, info, warn, or error")
	cmd.Flags().StringVar(&flags.logFormat, "log-format", "", "log format: text or json")

	return cmd
}

// resolveConfig layers the configuration sources: defaults, then VOCALIS_*
// environment variables, then the config file, then explicit flags. The
// merged result is validated once. changed reports whether a flag was set on
// the command line.
func resolveConfig(path string, changed func(string) bool, flags cliFlags) (config.Config, error) {
	cfg := config.Default()
	config.ApplyEnv(&cfg)
	if path != "" {
		if err := config.Load(path, &cfg); err != nil {
			return cfg, err
		}
	}

	if changed("base-url") {
		cfg.Server.BaseURL = flags.baseURL
	}
	if changed("thread") {
		cfg.Session.ThreadID = flags.thread
	}
	if changed("voice") {
		cfg.Session.Voice = flags.voice
	}
	if changed("input") {
		cfg.Audio.Input = config.InputMode(flags.input)
	}
	if changed("input-wav") {
		cfg.Audio.InputWAV = flags.inputWAV
		// A bare --input-wav implies file input.
		if !changed("input") {
			cfg.Audio.Input = config.InputFile
		}
	}
	if changed("no-playback") {
		cfg.Audio.DisablePlayback = flags.noPlayback
	}
	if changed("debug-addr") {
		cfg.Debug.ListenAddr = flags.debugAddr
	}
	if changed("log-level") {
		cfg.Log.Level = config.LogLevel(flags.logLevel)
	}
	if changed("log-format") {
		cfg.Log.Format = config.LogFormat(flags.logFormat)
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func newLogger(cfg config.LogConfig) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.Level.Level()}
	if cfg.Format == config.LogJSON {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

func run(ctx context.Context, cfg config.Config) error {
	logger := newLogger(cfg.Log)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	provider, err := observe.InitProvider(observe.ProviderConfig{
		ServiceName:    "vocalis-chat",
		ServiceVersion: version,
	})
	if err != nil {
		return fmt.Errorf("init metrics: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := provider.Shutdown(shutdownCtx); err != nil {
			logger.Warn("metrics shutdown failed", "error", err)
		}
	}()

	metrics, err := observe.NewMetrics(provider.MeterProvider)
	if err != nil {
		return fmt.Errorf("create metrics: %w", err)
	}

	devices, err := openDevices(cfg, logger)
	if err != nil {
		return err
	}
	defer devices.Close()

	client := vocalis.NewClient(
		vocalis.WithBaseURL(cfg.Server.BaseURL),
		vocalis.WithLogger(logger),
		vocalis.WithHandshakeTimeout(cfg.Server.HandshakeTimeout),
		vocalis.WithWriteTimeout(cfg.Server.WriteTimeout),
		vocalis.WithPingInterval(cfg.Server.PingInterval),
		vocalis.WithEventBuffer(cfg.Session.EventBuffer),
		vocalis.WithTelemetryCapacity(cfg.Telemetry.Capacity),
		vocalis.WithTelemetryCategories(cfg.Telemetry.Categories...),
		vocalis.WithMetricsSink(metrics),
	)

	logger.Info("connecting", "base_url", cfg.Server.BaseURL, "input", string(cfg.Audio.Input))
	session, err := client.Connect(ctx, &vocalis.SessionConfig{
		ThreadID: cfg.Session.ThreadID,
		Voice:    cfg.Session.Voice,
		Capture:  devices.capture,
		Player:   devices.player,
	})
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer session.Close()

	if cfg.Session.ThreadID != "" {
		if _, err := client.LoadThreadHistory(ctx, session); err != nil {
			logger.Warn("thread history unavailable", "thread_id", cfg.Session.ThreadID, "error", err)
		}
	}

	if cfg.Debug.ListenAddr != "" {
		debug := debugsrv.New(debugsrv.Config{
			Addr:     cfg.Debug.ListenAddr,
			Recorder: session.Telemetry(),
			Metrics:  provider.Handler(),
			Logger:   logger,
		})
		if err := debug.Start(); err != nil {
			return fmt.Errorf("debug listener: %w", err)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := debug.Shutdown(shutdownCtx); err != nil {
				logger.Warn("debug listener shutdown failed", "error", err)
			}
		}()
	}

	r := &repl{
		client:      client,
		session:     session,
		metrics:     metrics,
		fileCapture: devices.file,
		in:          os.Stdin,
		out:         os.Stdout,
		errOut:      os.Stderr,
	}
	return r.run(ctx)
}

// sessionDevices bundles the audio endpoints wired into a session. Capture
// may be absent, in which case /start reports the device as unavailable; a
// missing player simply skips playback.
type sessionDevices struct {
	capture vocalis.Capture
	player  vocalis.Player
	file    *audio.FileCapture
	speaker *audio.Speaker
}

func (d *sessionDevices) Close() {
	if d.speaker != nil {
		_ = d.speaker.Close()
	}
}

func openDevices(cfg config.Config, logger *slog.Logger) (*sessionDevices, error) {
	d := &sessionDevices{}
	maxBytes := cfg.Audio.MaxUtteranceBytes(protocol.SampleRate)

	switch cfg.Audio.Input {
	case config.InputMic:
		mic, err := audio.NewMicCapture(audio.CaptureConfig{
			NativeSampleRate:  cfg.Audio.NativeSampleRate,
			MaxUtteranceBytes: maxBytes,
			Logger:            logger,
		})
		if err != nil {
			return nil, fmt.Errorf("microphone: %w", err)
		}
		d.capture = mic
	case config.InputFile:
		fc, err := audio.NewFileCapture(audio.FileCaptureConfig{
			Path:              cfg.Audio.InputWAV,
			RealTime:          true,
			MaxUtteranceBytes: maxBytes,
			Logger:            logger,
		})
		if err != nil {
			return nil, fmt.Errorf("input wav: %w", err)
		}
		d.capture = fc
		d.file = fc
	case config.InputNone:
	}

	if !cfg.Audio.DisablePlayback {
		speaker, err := audio.NewSpeaker(audio.SpeakerConfig{Logger: logger})
		if err != nil {
			logger.Warn("audio output unavailable, playback disabled", "error", err)
		} else {
			d.player = speaker
			d.speaker = speaker
		}
	}
	return d, nil
}
