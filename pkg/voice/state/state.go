// Package state models the turn-taking state shared between a voice session
// client and its server. Transitions are server-authoritative: the client
// requests them and applies whatever the server confirms. The reducer is a
// pure function so it can be tested without any transport.
package state

import "fmt"

// State is the voice turn state of a session.
type State int

const (
	// Idle means no turn is in progress.
	Idle State = iota
	// Listening means the client is capturing and streaming user audio.
	Listening
	// Processing means the server is transcribing and generating a reply.
	Processing
	// Speaking means the server is delivering synthesized speech.
	Speaking
)

var stateNames = map[State]string{
	Idle:       "idle",
	Listening:  "listening",
	Processing: "processing",
	Speaking:   "speaking",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Valid reports whether s is one of the four defined states.
func (s State) Valid() bool {
	_, ok := stateNames[s]
	return ok
}

// Parse converts a wire-level state name into a State.
func Parse(name string) (State, error) {
	switch name {
	case "idle":
		return Idle, nil
	case "listening":
		return Listening, nil
	case "processing":
		return Processing, nil
	case "speaking":
		return Speaking, nil
	default:
		return Idle, fmt.Errorf("unknown voice state %q", name)
	}
}

// EventKind discriminates reducer inputs.
type EventKind int

const (
	// EventServerState is a state value confirmed by the server.
	EventServerState EventKind = iota
	// EventCancel is a local cancel request. Always accepted.
	EventCancel
	// EventTransportLost is a dropped transport. Forces Idle.
	EventTransportLost
)

// Event is one reducer input.
type Event struct {
	Kind EventKind
	// Target is the server-confirmed state. Only read for EventServerState.
	Target State
}

// ServerState builds an event for a server-confirmed state.
func ServerState(target State) Event {
	return Event{Kind: EventServerState, Target: target}
}

// Cancel builds a local cancellation event.
func Cancel() Event {
	return Event{Kind: EventCancel}
}

// TransportLost builds a transport-drop event.
func TransportLost() Event {
	return Event{Kind: EventTransportLost}
}

// Reduce computes the next state for an event. Server-confirmed states are
// applied unconditionally (the server owns the machine); cancel and transport
// loss reset to Idle from anywhere.
func Reduce(current State, ev Event) State {
	switch ev.Kind {
	case EventServerState:
		if !ev.Target.Valid() {
			return current
		}
		return ev.Target
	case EventCancel, EventTransportLost:
		return Idle
	default:
		return current
	}
}

// CanRequestStart reports whether a start-listening request may be issued.
// Starting is only legal from Idle; requests from any other state are
// silently ignored by the session.
func CanRequestStart(s State) bool {
	return s == Idle
}

// CanRequestStop reports whether a stop-listening request may be issued.
// Stopping is only meaningful while Listening.
func CanRequestStop(s State) bool {
	return s == Listening
}

// Expected reports whether a server transition follows the canonical turn
// cycle (idle→listening→processing→speaking→idle, with any state allowed to
// fall back to idle). Unexpected transitions are still applied by callers;
// this exists so they can be logged.
func Expected(from, to State) bool {
	if to == Idle {
		return true
	}
	switch from {
	case Idle:
		return to == Listening
	case Listening:
		return to == Processing || to == Listening
	case Processing:
		return to == Speaking || to == Processing
	case Speaking:
		return to == Speaking
	default:
		return false
	}
}
