package debugsrv

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/vocalis-go/vocalis/pkg/voice/telemetry"
)

func TestServer_Healthz(t *testing.T) {
	t.Parallel()

	s := New(Config{Recorder: telemetry.NewRecorder()})

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/healthz", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"status":"ok"`) {
		t.Errorf("body = %q", rec.Body.String())
	}
}

func TestServer_EventsDump(t *testing.T) {
	t.Parallel()

	log := telemetry.NewRecorder()
	log.Record("ws", "connected", map[string]any{"endpoint": "ws://example"}, nil)
	log.Record("stt", "partial", nil, nil)
	log.Record("audio", "chunk_sent", nil, nil)
	log.Record(telemetry.CategoryState, telemetry.EventTransition, map[string]any{
		telemetry.KeyTo:          "idle",
		telemetry.KeyTurnTotalMS: int64(900),
	}, nil)
	log.SetCategoryEnabled("audio", false)

	s := New(Config{Recorder: log})

	var resp eventsResponse
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/debug/events", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}

	if resp.Count != 4 || len(resp.Events) != 4 {
		t.Errorf("count = %d, events = %d, want 4", resp.Count, len(resp.Events))
	}
	if on, ok := resp.Categories["audio"]; !ok || on {
		t.Errorf("categories = %v, want audio disabled", resp.Categories)
	}
	if resp.Metrics.TotalMS == nil || *resp.Metrics.TotalMS != 900 {
		t.Errorf("turn metrics = %+v, want total 900", resp.Metrics)
	}

	// The category filter applies only when asked for.
	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/debug/events?filtered=true", nil))
	resp = eventsResponse{}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode filtered: %v", err)
	}
	if resp.Count != 3 {
		t.Errorf("filtered count = %d, want 3", resp.Count)
	}
	for _, ev := range resp.Events {
		if ev.Category == "audio" {
			t.Errorf("filtered dump still contains audio event %d", ev.ID)
		}
	}
}

func TestServer_EventsWithoutRecorder(t *testing.T) {
	t.Parallel()

	s := New(Config{})

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/debug/events", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	var resp eventsResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Count != 0 || len(resp.Events) != 0 {
		t.Errorf("expected empty dump, got %+v", resp)
	}
}

func TestServer_MetricsRoute(t *testing.T) {
	t.Parallel()

	scrape := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("# scrape ok\n"))
	})

	s := New(Config{Recorder: telemetry.NewRecorder(), Metrics: scrape})
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "scrape ok") {
		t.Errorf("metrics route: status %d body %q", rec.Code, rec.Body.String())
	}

	// Without a metrics handler the route does not exist.
	bare := New(Config{Recorder: telemetry.NewRecorder()})
	rec = httptest.NewRecorder()
	bare.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("unconfigured metrics route: status %d, want 404", rec.Code)
	}
}

func TestServer_StartServesAndShutsDown(t *testing.T) {
	t.Parallel()

	s := New(Config{Addr: "127.0.0.1:0", Recorder: telemetry.NewRecorder()})
	if err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	addr := s.Addr()
	if addr == "" {
		t.Fatal("Addr is empty after Start")
	}

	client := &http.Client{Timeout: 2 * time.Second}
	resp, err := client.Get("http://" + addr + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d", resp.StatusCode)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.Shutdown(ctx); err != nil {
		t.Errorf("Shutdown: %v", err)
	}
}

func TestServer_ShutdownBeforeStart(t *testing.T) {
	t.Parallel()

	s := New(Config{})
	if err := s.Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown before Start: %v", err)
	}
}
