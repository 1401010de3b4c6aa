package vocalis

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/vocalis-go/vocalis/pkg/voice/state"
)

// newVoiceWebsocketTestServer runs a scripted voice server on /v1/voice and
// returns its ws:// URL. The handler owns the upgraded connection.
func newVoiceWebsocketTestServer(t *testing.T, handler func(conn *websocket.Conn, r *http.Request)) (string, func()) {
	t.Helper()

	upgrader := websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/voice" {
			http.NotFound(w, r)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		handler(conn, r)
	}))

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")
	return wsURL, server.Close
}

func writeServerJSON(t *testing.T, conn *websocket.Conn, frame map[string]any) {
	t.Helper()
	if err := conn.WriteJSON(frame); err != nil {
		t.Errorf("server write: %v", err)
	}
}

func stateFrame(name string) map[string]any {
	return map[string]any{"type": "state", "state": name}
}

// fakeCapture is a scriptable Capture. Chunks are fed with push; the
// utterance reads back everything pushed since the last Start.
type fakeCapture struct {
	startErr error

	mu        sync.Mutex
	started   int
	stopped   int
	running   bool
	utterance []byte

	chunks chan []byte
}

func newFakeCapture() *fakeCapture {
	return &fakeCapture{chunks: make(chan []byte, 32)}
}

func (c *fakeCapture) Start(ctx context.Context) error {
	if c.startErr != nil {
		return c.startErr
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		return nil
	}
	c.running = true
	c.started++
	c.utterance = nil
	return nil
}

func (c *fakeCapture) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.running {
		return
	}
	c.running = false
	c.stopped++
}

func (c *fakeCapture) Chunks() <-chan []byte {
	return c.chunks
}

func (c *fakeCapture) Utterance() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]byte, len(c.utterance))
	copy(out, c.utterance)
	return out
}

func (c *fakeCapture) push(chunk []byte) {
	c.mu.Lock()
	c.utterance = append(c.utterance, chunk...)
	c.mu.Unlock()
	c.chunks <- chunk
}

func (c *fakeCapture) startCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.started
}

func (c *fakeCapture) stopCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stopped
}

// fakePlayer records played payloads.
type fakePlayer struct {
	playErr error

	mu      sync.Mutex
	played  [][]byte
	stopped int
}

func (p *fakePlayer) Play(wav []byte) error {
	if p.playErr != nil {
		return p.playErr
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	payload := make([]byte, len(wav))
	copy(payload, wav)
	p.played = append(p.played, payload)
	return nil
}

func (p *fakePlayer) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopped++
}

func (p *fakePlayer) playedPayloads() [][]byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([][]byte, len(p.played))
	copy(out, p.played)
	return out
}

func (p *fakePlayer) stopCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stopped
}

func nextEvent(t *testing.T, events <-chan SessionEvent, timeout time.Duration) SessionEvent {
	t.Helper()
	select {
	case ev, ok := <-events:
		if !ok {
			t.Fatalf("event channel closed while waiting for event")
		}
		return ev
	case <-time.After(timeout):
		t.Fatalf("timed out waiting for session event")
	}
	return nil
}

// waitForState consumes events until a transition into target arrives,
// returning the events it skipped.
func waitForState(t *testing.T, events <-chan SessionEvent, target state.State, timeout time.Duration) []SessionEvent {
	t.Helper()
	deadline := time.After(timeout)
	var skipped []SessionEvent
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				t.Fatalf("event channel closed while waiting for state %v", target)
			}
			if change, isChange := ev.(StateChangedEvent); isChange && change.To == target {
				return skipped
			}
			skipped = append(skipped, ev)
		case <-deadline:
			t.Fatalf("timed out waiting for state %v", target)
		}
	}
}
