package vocalis

import (
	"sync"
	"time"
)

// ConnState is the websocket connection state of a session, independent of
// the voice turn state.
type ConnState int

const (
	// ConnDisconnected means the session was closed deliberately.
	ConnDisconnected ConnState = iota
	// ConnConnecting means the dial/handshake is in flight.
	ConnConnecting
	// ConnConnected means the session is live.
	ConnConnected
	// ConnError means the transport dropped or failed.
	ConnError
)

var connStateNames = map[ConnState]string{
	ConnDisconnected: "disconnected",
	ConnConnecting:   "connecting",
	ConnConnected:    "connected",
	ConnError:        "error",
}

func (s ConnState) String() string {
	if name, ok := connStateNames[s]; ok {
		return name
	}
	return "unknown"
}

// Role identifies who produced a turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one committed conversation entry. User turns are created when the
// final transcript arrives; assistant turns when the reply text arrives.
type Turn struct {
	ID        string
	Role      Role
	Text      string
	Timestamp time.Time

	// Audio is the locally buffered recording for this turn, when one
	// exists: the captured utterance for user turns, the synthesized WAV
	// for assistant turns. Nil for turns loaded from thread history.
	Audio *AudioHandle
}

// AudioHandle owns one locally buffered WAV payload. Handles are released
// when the session closes or the owning turn is discarded; a released handle
// reads as empty.
type AudioHandle struct {
	ID string

	mu  sync.Mutex
	wav []byte
}

func newAudioHandle(id string, wav []byte) *AudioHandle {
	return &AudioHandle{ID: id, wav: wav}
}

// WAV returns a copy of the buffered payload, or nil once released.
func (h *AudioHandle) WAV() []byte {
	if h == nil {
		return nil
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.wav) == 0 {
		return nil
	}
	out := make([]byte, len(h.wav))
	copy(out, h.wav)
	return out
}

// Len reports the buffered payload size in bytes without copying.
func (h *AudioHandle) Len() int {
	if h == nil {
		return 0
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.wav)
}

// Release drops the buffered payload. Idempotent.
func (h *AudioHandle) Release() {
	if h == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.wav = nil
}
