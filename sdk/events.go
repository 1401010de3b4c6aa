package vocalis

import (
	"encoding/json"

	"github.com/vocalis-go/vocalis/pkg/voice/state"
)

// SessionEvent is an event emitted by Session.Events(). Events carry the
// already-applied outcome; reading session state after receiving one is
// always consistent with it.
type SessionEvent interface {
	sessionEventType() string
}

// StateChangedEvent reports an applied voice-state transition.
type StateChangedEvent struct {
	From state.State
	To   state.State
}

func (e StateChangedEvent) sessionEventType() string { return "state_changed" }

// TranscriptPartialEvent carries an interim transcript of the current
// utterance. Partials are display-only and never enter the transcript.
type TranscriptPartialEvent struct {
	Text string
}

func (e TranscriptPartialEvent) sessionEventType() string { return "transcript_partial" }

// UserTurnEvent reports a committed user turn (final transcript).
type UserTurnEvent struct {
	Turn Turn
}

func (e UserTurnEvent) sessionEventType() string { return "user_turn" }

// AssistantTurnEvent reports a committed assistant turn (reply text, plus the
// synthesized audio when it has already arrived).
type AssistantTurnEvent struct {
	Turn Turn
}

func (e AssistantTurnEvent) sessionEventType() string { return "assistant_turn" }

// TurnCompleteEvent marks the end of a full exchange.
type TurnCompleteEvent struct{}

func (e TurnCompleteEvent) sessionEventType() string { return "turn_complete" }

// ServerErrorEvent carries a user-visible error reported by the server.
type ServerErrorEvent struct {
	Message string
}

func (e ServerErrorEvent) sessionEventType() string { return "server_error" }

// DebugEvent forwards one server diagnostic message. The same event is also
// recorded in the session telemetry log.
type DebugEvent struct {
	Category string
	Name     string
	Data     map[string]any
}

func (e DebugEvent) sessionEventType() string { return "debug" }

// UnknownEvent preserves a server message with an unrecognized type.
type UnknownEvent struct {
	Type string
	Raw  json.RawMessage
}

func (e UnknownEvent) sessionEventType() string { return e.Type }

// DisconnectedEvent reports that the transport dropped or closed. Err is nil
// for a clean shutdown. It is the last event before the channel closes.
type DisconnectedEvent struct {
	Err error
}

func (e DisconnectedEvent) sessionEventType() string { return "disconnected" }
