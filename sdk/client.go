// Package vocalis is the client SDK for the Vocalis voice server. It owns the
// duplex websocket session (control JSON plus binary audio frames), microphone
// capture and downsampling, assistant speech playback, the server-confirmed
// turn state, the conversation transcript and a bounded debug telemetry log.
//
// A Client holds connection defaults; Connect opens one live Session. All
// Session methods are safe for concurrent use.
package vocalis

import (
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/vocalis-go/vocalis/pkg/voice/telemetry"
)

const (
	defaultConnectTimeout = 15 * time.Second
	defaultWriteTimeout   = 10 * time.Second
	defaultPingInterval   = 20 * time.Second
	defaultEventBuffer    = 256

	// outboundBuffer sizes the shared control/audio send queue. At ~256 ms
	// per chunk this is far more than a writer should ever fall behind.
	outboundBuffer = 64
)

// Client builds voice sessions against one server. It is safe for concurrent
// use; sessions it creates are independent.
type Client struct {
	baseURL    string
	httpClient *http.Client
	dialer     *websocket.Dialer
	logger     *slog.Logger

	handshakeTimeout time.Duration
	writeTimeout     time.Duration
	pingInterval     time.Duration
	eventBuffer      int

	telemetryCapacity   int
	telemetryCategories []string
	metricsSink         telemetry.StageSink
}

// NewClient creates a Client with the given options. WithBaseURL is required
// before any session or history call.
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		logger:           slog.Default(),
		handshakeTimeout: defaultConnectTimeout,
		writeTimeout:     defaultWriteTimeout,
		pingInterval:     defaultPingInterval,
		eventBuffer:      defaultEventBuffer,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.httpClient == nil {
		c.httpClient = newDefaultHTTPClient()
	}
	if c.dialer == nil {
		dialer := *websocket.DefaultDialer
		dialer.HandshakeTimeout = c.handshakeTimeout
		c.dialer = &dialer
	}
	return c
}

// serverEndpoint joins path onto the configured base URL and normalizes the
// scheme to http(s) for REST calls.
func (c *Client) serverEndpoint(path string) (string, error) {
	base, err := c.parseBaseURL()
	if err != nil {
		return "", err
	}
	switch base.Scheme {
	case "ws":
		base.Scheme = "http"
	case "wss":
		base.Scheme = "https"
	}
	joinEndpointPath(base, path)
	return base.String(), nil
}

// websocketEndpoint joins path onto the configured base URL and normalizes
// the scheme to ws(s) for session dialing.
func (c *Client) websocketEndpoint(path string) (string, error) {
	base, err := c.parseBaseURL()
	if err != nil {
		return "", err
	}
	switch base.Scheme {
	case "http":
		base.Scheme = "ws"
	case "https":
		base.Scheme = "wss"
	}
	joinEndpointPath(base, path)
	return base.String(), nil
}

func (c *Client) parseBaseURL() (*url.URL, error) {
	rawBaseURL := strings.TrimSpace(c.baseURL)
	if rawBaseURL == "" {
		return nil, NewInvalidRequestError("no server base URL configured (set WithBaseURL)")
	}

	base, err := url.Parse(rawBaseURL)
	if err != nil || strings.TrimSpace(base.Scheme) == "" || strings.TrimSpace(base.Host) == "" {
		return nil, NewInvalidRequestError("invalid server base URL")
	}
	if base.User != nil {
		return nil, NewInvalidRequestError("server base URL must not include credentials")
	}
	switch base.Scheme {
	case "http", "https", "ws", "wss":
	default:
		return nil, NewInvalidRequestError("server base URL must use http(s) or ws(s)")
	}

	base.RawQuery = ""
	base.Fragment = ""
	return base, nil
}

func joinEndpointPath(base *url.URL, path string) {
	cleanPath := "/" + strings.TrimLeft(path, "/")
	basePath := strings.TrimSuffix(base.Path, "/")
	if basePath == "" || basePath == "/" {
		base.Path = cleanPath
	} else {
		base.Path = basePath + cleanPath
	}
	base.RawPath = ""
}

func (c *Client) newRecorder() *telemetry.Recorder {
	opts := []telemetry.Option{
		telemetry.WithCapacity(c.telemetryCapacity),
	}
	if len(c.telemetryCategories) > 0 {
		opts = append(opts, telemetry.WithCategories(c.telemetryCategories...))
	}
	if c.metricsSink != nil {
		opts = append(opts, telemetry.WithSink(c.metricsSink))
	}
	return telemetry.NewRecorder(opts...)
}
