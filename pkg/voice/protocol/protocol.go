// Package protocol defines the wire messages exchanged over a voice session
// connection. One WebSocket carries two frame kinds: UTF-8 JSON text frames
// for control and events, and raw binary frames for audio. Client binary
// frames are PCM16 mono chunks at the fixed rate; server binary frames are
// complete WAV payloads, one per assistant turn.
//
// Server text messages are discriminated by their "type" field. Unknown
// types decode into [Unknown] so newer servers do not break older clients.
package protocol

import (
	"encoding/json"
	"fmt"
)

// SampleRate is the protocol-fixed audio rate for client chunks in Hz.
const SampleRate = 16000

// ChunkSamples is the number of samples in one client audio chunk
// (about 256 ms at the fixed rate).
const ChunkSamples = 4096

// Client → server control message types.
const (
	TypeStartListening = "start_listening"
	TypeStopListening  = "stop_listening"
	TypeCancel         = "cancel"
	TypeSetVoice       = "set_voice"
)

// Server → client message types.
const (
	TypeState        = "state"
	TypeSTTPartial   = "stt_partial"
	TypeSTTFinal     = "stt_final"
	TypeLLMComplete  = "llm_complete"
	TypeTurnComplete = "turn_complete"
	TypeError        = "error"
	TypeDebug        = "debug"
)

// Debug event categories. The set is extensible; these are the ones servers
// emit today plus the client-local ones.
const (
	CategorySTT      = "stt"
	CategoryLLM      = "llm"
	CategoryTTS      = "tts"
	CategoryAudio    = "audio"
	CategoryWS       = "ws"
	CategoryState    = "state"
	CategoryCapture  = "capture"
	CategoryPlayback = "playback"
)

// KnownCategories returns the debug categories defined by this protocol
// revision, in display order.
func KnownCategories() []string {
	return []string{
		CategorySTT,
		CategoryLLM,
		CategoryTTS,
		CategoryAudio,
		CategoryWS,
		CategoryState,
		CategoryCapture,
		CategoryPlayback,
	}
}

// ClientControl is a client → server control message.
type ClientControl struct {
	Type string `json:"type"`

	// Voice names the synthesis voice for set_voice. A null voice resets
	// the server default, so the field stays a pointer.
	Voice *string `json:"voice"`
}

// MarshalJSON omits the voice field for every message type except set_voice,
// where an explicit null is meaningful.
func (c ClientControl) MarshalJSON() ([]byte, error) {
	if c.Type == TypeSetVoice {
		type full ClientControl
		return json.Marshal(full(c))
	}
	return json.Marshal(struct {
		Type string `json:"type"`
	}{Type: c.Type})
}

// StartListening builds the control message requesting the listening state.
func StartListening() ClientControl {
	return ClientControl{Type: TypeStartListening}
}

// StopListening builds the control message ending the current utterance.
func StopListening() ClientControl {
	return ClientControl{Type: TypeStopListening}
}

// Cancel builds the control message aborting the current turn.
func Cancel() ClientControl {
	return ClientControl{Type: TypeCancel}
}

// SetVoice builds the control message selecting a synthesis voice.
// voice == nil resets the server default.
func SetVoice(voice *string) ClientControl {
	return ClientControl{Type: TypeSetVoice, Voice: voice}
}

// ServerMessage is the tagged union of everything a server can send on the
// text channel.
type ServerMessage interface {
	serverMessageType() string
}

// State announces a server-confirmed voice state. The first message on any
// connection is a State carrying the assigned (or resumed) thread id. The
// terminal transition of a turn (state == "idle") additionally carries the
// authoritative per-stage timings for the turn that just completed.
type State struct {
	State    string `json:"state"`
	ThreadID string `json:"thread_id,omitempty"`

	TurnTotalMS *int64 `json:"turn_total_ms,omitempty"`
	STTMS       *int64 `json:"stt_ms,omitempty"`
	LLMMS       *int64 `json:"llm_ms,omitempty"`
	TTSMS       *int64 `json:"tts_ms,omitempty"`
}

func (State) serverMessageType() string { return TypeState }

// STTPartial is an interim transcript of the in-progress utterance.
type STTPartial struct {
	Text string `json:"text"`
}

func (STTPartial) serverMessageType() string { return TypeSTTPartial }

// STTFinal is the final transcript of the user utterance; it closes the
// user half of the turn.
type STTFinal struct {
	Text string `json:"text"`
}

func (STTFinal) serverMessageType() string { return TypeSTTFinal }

// LLMComplete carries the generated assistant reply text.
type LLMComplete struct {
	Text string `json:"text"`
}

func (LLMComplete) serverMessageType() string { return TypeLLMComplete }

// TurnComplete marks the end of a full exchange.
type TurnComplete struct{}

func (TurnComplete) serverMessageType() string { return TypeTurnComplete }

// ServerError is a user-visible error reported by the server. It does not
// itself imply a state change; the server sends a compensating State when
// one is needed.
type ServerError struct {
	Message string `json:"message"`
}

func (ServerError) serverMessageType() string { return TypeError }

// Debug is a server-side diagnostic event for the telemetry log.
type Debug struct {
	Category string         `json:"category"`
	Event    string         `json:"event"`
	Data     map[string]any `json:"data,omitempty"`
	TS       *float64       `json:"ts,omitempty"`
}

func (Debug) serverMessageType() string { return TypeDebug }

// Unknown preserves a message with an unrecognized type. Raw holds the
// complete original frame.
type Unknown struct {
	Type string
	Raw  json.RawMessage
}

func (u Unknown) serverMessageType() string { return u.Type }

// DecodeError describes a frame that could not be decoded. The session logs
// it, drops the frame and keeps running.
type DecodeError struct {
	Code    string
	Message string
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("protocol: %s: %s", e.Code, e.Message)
}

func badFrame(code, format string, args ...any) *DecodeError {
	return &DecodeError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// DecodeServerMessage parses one server text frame. Known types return their
// typed struct; unknown but well-formed messages return [Unknown]; malformed
// frames return a [*DecodeError].
func DecodeServerMessage(data []byte) (ServerMessage, error) {
	var envelope struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, badFrame("invalid_json", "frame is not valid JSON: %v", err)
	}
	if envelope.Type == "" {
		return nil, badFrame("missing_type", "frame has no type field")
	}

	switch envelope.Type {
	case TypeState:
		var msg State
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, badFrame("invalid_payload", "bad state payload: %v", err)
		}
		if msg.State == "" {
			return nil, badFrame("invalid_payload", "state message has no state field")
		}
		return msg, nil
	case TypeSTTPartial:
		var msg STTPartial
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, badFrame("invalid_payload", "bad stt_partial payload: %v", err)
		}
		return msg, nil
	case TypeSTTFinal:
		var msg STTFinal
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, badFrame("invalid_payload", "bad stt_final payload: %v", err)
		}
		return msg, nil
	case TypeLLMComplete:
		var msg LLMComplete
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, badFrame("invalid_payload", "bad llm_complete payload: %v", err)
		}
		return msg, nil
	case TypeTurnComplete:
		return TurnComplete{}, nil
	case TypeError:
		var msg ServerError
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, badFrame("invalid_payload", "bad error payload: %v", err)
		}
		return msg, nil
	case TypeDebug:
		var msg Debug
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, badFrame("invalid_payload", "bad debug payload: %v", err)
		}
		if msg.Category == "" {
			msg.Category = CategoryWS
		}
		return msg, nil
	default:
		raw := make(json.RawMessage, len(data))
		copy(raw, data)
		return Unknown{Type: envelope.Type, Raw: raw}, nil
	}
}

// EncodeClientControl serializes a control message for the text channel.
func EncodeClientControl(msg ClientControl) ([]byte, error) {
	if msg.Type == "" {
		return nil, badFrame("missing_type", "control message has no type")
	}
	return json.Marshal(msg)
}
