package state

import "testing"

func TestStringAndParseRoundTrip(t *testing.T) {
	t.Parallel()

	for _, s := range []State{Idle, Listening, Processing, Speaking} {
		got, err := Parse(s.String())
		if err != nil {
			t.Fatalf("Parse(%q): %v", s.String(), err)
		}
		if got != s {
			t.Fatalf("Parse(%q) = %v, want %v", s.String(), got, s)
		}
	}
}

func TestParseUnknown(t *testing.T) {
	t.Parallel()

	if _, err := Parse("paused"); err == nil {
		t.Fatal("Parse(\"paused\") should fail")
	}
	if _, err := Parse(""); err == nil {
		t.Fatal("Parse(\"\") should fail")
	}
}

func TestReduceServerStateWins(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		current State
		target  State
	}{
		{"idle to listening", Idle, Listening},
		{"listening to processing", Listening, Processing},
		{"processing to speaking", Processing, Speaking},
		{"speaking to idle", Speaking, Idle},
		{"listening straight to idle", Listening, Idle},
		{"out of order speaking to listening", Speaking, Listening},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Reduce(tc.current, ServerState(tc.target)); got != tc.target {
				t.Fatalf("Reduce(%v, ServerState(%v)) = %v, want %v", tc.current, tc.target, got, tc.target)
			}
		})
	}
}

func TestReduceInvalidServerStateIgnored(t *testing.T) {
	t.Parallel()

	if got := Reduce(Processing, ServerState(State(42))); got != Processing {
		t.Fatalf("invalid target changed state to %v", got)
	}
}

func TestReduceCancelAlwaysIdle(t *testing.T) {
	t.Parallel()

	for _, from := range []State{Idle, Listening, Processing, Speaking} {
		if got := Reduce(from, Cancel()); got != Idle {
			t.Fatalf("Reduce(%v, Cancel()) = %v, want idle", from, got)
		}
	}
}

func TestReduceTransportLostAlwaysIdle(t *testing.T) {
	t.Parallel()

	for _, from := range []State{Idle, Listening, Processing, Speaking} {
		if got := Reduce(from, TransportLost()); got != Idle {
			t.Fatalf("Reduce(%v, TransportLost()) = %v, want idle", from, got)
		}
	}
}

func TestRequestGates(t *testing.T) {
	t.Parallel()

	cases := []struct {
		state     State
		wantStart bool
		wantStop  bool
	}{
		{Idle, true, false},
		{Listening, false, true},
		{Processing, false, false},
		{Speaking, false, false},
	}
	for _, tc := range cases {
		if got := CanRequestStart(tc.state); got != tc.wantStart {
			t.Errorf("CanRequestStart(%v) = %v, want %v", tc.state, got, tc.wantStart)
		}
		if got := CanRequestStop(tc.state); got != tc.wantStop {
			t.Errorf("CanRequestStop(%v) = %v, want %v", tc.state, got, tc.wantStop)
		}
	}
}

func TestExpectedTransitions(t *testing.T) {
	t.Parallel()

	expected := []struct{ from, to State }{
		{Idle, Listening},
		{Listening, Processing},
		{Processing, Speaking},
		{Speaking, Idle},
		{Processing, Idle},
		{Listening, Idle},
	}
	for _, tc := range expected {
		if !Expected(tc.from, tc.to) {
			t.Errorf("Expected(%v, %v) = false, want true", tc.from, tc.to)
		}
	}

	unexpected := []struct{ from, to State }{
		{Idle, Processing},
		{Idle, Speaking},
		{Speaking, Listening},
		{Listening, Speaking},
	}
	for _, tc := range unexpected {
		if Expected(tc.from, tc.to) {
			t.Errorf("Expected(%v, %v) = true, want false", tc.from, tc.to)
		}
	}
}
