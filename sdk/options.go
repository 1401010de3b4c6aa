package vocalis

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/vocalis-go/vocalis/pkg/voice/telemetry"
)

// ClientOption is a function that configures a Client.
type ClientOption func(*Client)

// WithBaseURL sets the voice server base URL (http, https, ws or wss scheme).
// The websocket and REST endpoints are both derived from it.
func WithBaseURL(url string) ClientOption {
	return func(c *Client) {
		c.baseURL = url
	}
}

// WithHTTPClient sets a custom HTTP client for REST calls.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = client
	}
}

// WithDialer sets a custom websocket dialer.
func WithDialer(dialer *websocket.Dialer) ClientOption {
	return func(c *Client) {
		c.dialer = dialer
	}
}

// WithLogger sets the logger for the client and its sessions.
func WithLogger(l *slog.Logger) ClientOption {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithHandshakeTimeout bounds the connect handshake: dialing plus waiting for
// the server's initial state frame.
func WithHandshakeTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		c.handshakeTimeout = d
	}
}

// WithWriteTimeout bounds each outbound websocket write.
func WithWriteTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		c.writeTimeout = d
	}
}

// WithPingInterval sets how often sessions ping the server to keep the
// connection alive. Zero or negative disables client pings.
func WithPingInterval(d time.Duration) ClientOption {
	return func(c *Client) {
		c.pingInterval = d
	}
}

// WithEventBuffer sets the session event channel capacity.
func WithEventBuffer(n int) ClientOption {
	return func(c *Client) {
		if n > 0 {
			c.eventBuffer = n
		}
	}
}

// WithTelemetryCapacity sets the per-session debug event ring capacity.
func WithTelemetryCapacity(n int) ClientOption {
	return func(c *Client) {
		c.telemetryCapacity = n
	}
}

// WithTelemetryCategories pre-registers debug event categories so the filter
// set is populated before the first event arrives.
func WithTelemetryCategories(categories ...string) ClientOption {
	return func(c *Client) {
		c.telemetryCategories = categories
	}
}

// WithMetricsSink forwards latched per-turn stage timings to the given sink.
func WithMetricsSink(sink telemetry.StageSink) ClientOption {
	return func(c *Client) {
		c.metricsSink = sink
	}
}
