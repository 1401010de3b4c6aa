package vocalis

import (
	"errors"
	"fmt"
	"net/url"
)

// ErrSessionClosed is returned by session operations after Close.
var ErrSessionClosed = errors.New("voice session is closed")

// ErrorType categorizes session errors.
type ErrorType string

const (
	ErrInvalidRequest    ErrorType = "invalid_request_error"
	ErrDeviceUnavailable ErrorType = "device_unavailable"
	ErrTransport         ErrorType = "transport_error"
	ErrProtocol          ErrorType = "protocol_error"
	ErrPlayback          ErrorType = "playback_error"
	ErrServer            ErrorType = "server_error"
)

// Error represents a categorized session error.
type Error struct {
	Type    ErrorType `json:"type"`
	Message string    `json:"message"`
	Code    string    `json:"code,omitempty"`

	wrapped error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s: %s (code: %s)", e.Type, e.Message, e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying error for error wrapping.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.wrapped
}

// NewInvalidRequestError creates an invalid request error.
func NewInvalidRequestError(message string) *Error {
	return &Error{
		Type:    ErrInvalidRequest,
		Message: message,
	}
}

// NewDeviceUnavailableError creates an error for a capture device that could
// not be acquired (missing hardware, denied permission, backend failure).
func NewDeviceUnavailableError(message string, underlying error) *Error {
	return &Error{
		Type:    ErrDeviceUnavailable,
		Message: message,
		wrapped: underlying,
	}
}

// NewProtocolError creates an error for an undecodable or malformed server frame.
func NewProtocolError(message string) *Error {
	return &Error{
		Type:    ErrProtocol,
		Message: message,
	}
}

// NewPlaybackError creates an error for a failed assistant audio playback.
func NewPlaybackError(message string, underlying error) *Error {
	return &Error{
		Type:    ErrPlayback,
		Message: message,
		wrapped: underlying,
	}
}

// NewServerError creates an error carrying a server-reported failure.
func NewServerError(message, code string) *Error {
	return &Error{
		Type:    ErrServer,
		Message: message,
		Code:    code,
	}
}

// TransportError represents transport-level failures (DNS, timeouts,
// connection reset, TLS handshake, dropped websocket) while talking to the
// voice server.
//
// Use errors.As(err, &TransportError{}) to distinguish transport failures
// from categorized session errors (*Error).
type TransportError struct {
	Op  string
	URL string
	Err error
}

func (e *TransportError) Error() string {
	switch {
	case e == nil:
		return ""
	case e.Op != "" && e.URL != "":
		return fmt.Sprintf("transport error during %s %s: %v", e.Op, redactURLUserInfo(e.URL), e.Err)
	case e.Op != "":
		return fmt.Sprintf("transport error during %s: %v", e.Op, e.Err)
	default:
		return fmt.Sprintf("transport error: %v", e.Err)
	}
}

func (e *TransportError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func redactURLUserInfo(raw string) string {
	if raw == "" {
		return raw
	}
	parsed, err := url.Parse(raw)
	if err != nil || parsed == nil {
		return raw
	}
	parsed.User = nil
	return parsed.String()
}
