package api

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/humatest"

	"github.com/smazurov/gstgraph/internal/events"
	"github.com/smazurov/gstgraph/internal/framequeue"
	"github.com/smazurov/gstgraph/internal/graph"
	"github.com/smazurov/gstgraph/internal/logging"
	"github.com/smazurov/gstgraph/internal/media/mediatest"
	"github.com/smazurov/gstgraph/internal/session"
)

func newTestServer(t *testing.T) (*Server, humatest.TestAPI) {
	t.Helper()
	bus := events.New()
	reg := session.NewRegistry(session.Options{
		Framework:      mediatest.New(),
		Bus:            bus,
		Graph:          graph.Options{OutputDir: t.TempDir()},
		StopTimeout:    time.Second,
		OutputWait:     500 * time.Millisecond,
		OutputInterval: 10 * time.Millisecond,
		StatsInterval:  50 * time.Millisecond,
		BusPoll:        10 * time.Millisecond,
	})
	t.Cleanup(func() { _ = reg.Close(time.Second) })

	s := NewServer(Options{
		Registry:  reg,
		Bus:       bus,
		Framework: "fake",
		MetricsHandler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprintln(w, "gstgraph_up 1")
		}),
		FrameTimeout: 500 * time.Millisecond,
	})
	return s, humatest.Wrap(t, s.API())
}

func configBody(mutate func(map[string]any)) map[string]any {
	body := map[string]any{
		"source": map[string]any{
			"kind":    "pattern",
			"pattern": "ball",
		},
		"preview":   true,
		"persist":   false,
		"display":   false,
		"extension": "mp4",
	}
	if mutate != nil {
		mutate(body)
	}
	return body
}

func decode[T any](t *testing.T, resp *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(resp.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", resp.Body.String(), err)
	}
	return v
}

func TestHealthAndVersion(t *testing.T) {
	_, api := newTestServer(t)

	resp := api.Get("/api/health")
	if resp.Code != http.StatusOK {
		t.Fatalf("health status = %d", resp.Code)
	}
	if h := decode[map[string]any](t, resp); h["status"] != "ok" {
		t.Errorf("health body = %v", h)
	}

	resp = api.Get("/api/version")
	if resp.Code != http.StatusOK {
		t.Fatalf("version status = %d", resp.Code)
	}
	if v := decode[map[string]any](t, resp); v["framework"] != "fake" {
		t.Errorf("version framework = %v, want fake", v["framework"])
	}
}

func TestSessionCRUD(t *testing.T) {
	_, api := newTestServer(t)

	resp := api.Post("/api/sessions", map[string]any{"id": "operator"})
	if resp.Code != http.StatusCreated {
		t.Fatalf("create status = %d: %s", resp.Code, resp.Body.String())
	}
	snap := decode[session.Snapshot](t, resp)
	if snap.ID != "operator" || snap.Status != session.StatusCreated {
		t.Errorf("created = %s/%s, want operator/CREATED", snap.ID, snap.Status)
	}

	resp = api.Post("/api/sessions")
	if resp.Code != http.StatusCreated {
		t.Fatalf("create without body status = %d: %s", resp.Code, resp.Body.String())
	}
	if id := decode[session.Snapshot](t, resp).ID; len(id) != 8 {
		t.Errorf("generated id = %q, want 8 letters", id)
	}

	resp = api.Get("/api/sessions")
	if got := decode[map[string]any](t, resp)["count"]; got != float64(2) {
		t.Errorf("list count = %v, want 2", got)
	}

	if resp := api.Get("/api/sessions/operator"); resp.Code != http.StatusOK {
		t.Errorf("get status = %d", resp.Code)
	}
	if resp := api.Delete("/api/sessions/operator"); resp.Code != http.StatusOK {
		t.Errorf("delete status = %d", resp.Code)
	}
	if resp := api.Get("/api/sessions/operator"); resp.Code != http.StatusNotFound {
		t.Errorf("get after delete status = %d, want 404", resp.Code)
	}
	if resp := api.Delete("/api/sessions/operator"); resp.Code != http.StatusNotFound {
		t.Errorf("second delete status = %d, want 404", resp.Code)
	}
}

func TestConfigureSession(t *testing.T) {
	_, api := newTestServer(t)
	api.Post("/api/sessions", map[string]any{"id": "cfg"})

	tests := []struct {
		name   string
		mutate func(map[string]any)
		want   int
	}{
		{"valid", func(b map[string]any) { b["persist"] = true }, http.StatusOK},
		{"unknown pattern", func(b map[string]any) {
			b["source"] = map[string]any{"kind": "pattern", "pattern": "plaid"}
		}, http.StatusBadRequest},
		{"file without path", func(b map[string]any) {
			b["source"] = map[string]any{"kind": "file"}
		}, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := api.Put("/api/sessions/cfg/config", configBody(tt.mutate))
			if resp.Code != tt.want {
				t.Errorf("status = %d, want %d: %s", resp.Code, tt.want, resp.Body.String())
			}
		})
	}

	if resp := api.Put("/api/sessions/missing/config", configBody(nil)); resp.Code != http.StatusNotFound {
		t.Errorf("configure missing status = %d, want 404", resp.Code)
	}
}

func TestLifecycleAndFrames(t *testing.T) {
	_, api := newTestServer(t)
	api.Post("/api/sessions", map[string]any{"id": "live"})

	resp := api.Post("/api/sessions/live/start")
	if resp.Code != http.StatusOK {
		t.Fatalf("start status = %d: %s", resp.Code, resp.Body.String())
	}
	if st := decode[session.Snapshot](t, resp).Status; st != session.StatusPlaying {
		t.Errorf("status after start = %s", st)
	}

	if resp := api.Put("/api/sessions/live/config", configBody(nil)); resp.Code != http.StatusConflict {
		t.Errorf("configure while playing = %d, want 409", resp.Code)
	}

	resp = api.Get("/api/sessions/live/frame?timeout_ms=2000")
	if resp.Code != http.StatusOK {
		t.Fatalf("frame status = %d: %s", resp.Code, resp.Body.String())
	}
	if ct := resp.Header().Get("Content-Type"); ct != "image/jpeg" {
		t.Errorf("frame content type = %q", ct)
	}
	if resp.Header().Get("X-Frame-Seq") == "" {
		t.Error("missing X-Frame-Seq header")
	}
	if b := resp.Body.Bytes(); len(b) < 2 || b[0] != 0xFF || b[1] != 0xD8 {
		t.Error("frame body is not a JPEG")
	}

	resp = api.Get("/api/sessions/live/graph")
	if resp.Code != http.StatusOK {
		t.Fatalf("graph status = %d", resp.Code)
	}
	g := decode[map[string]any](t, resp)
	if desc, _ := g["description"].(string); !strings.Contains(desc, "tee") {
		t.Errorf("graph description = %q, want a tee", desc)
	}

	resp = api.Post("/api/sessions/live/stop")
	if resp.Code != http.StatusOK {
		t.Fatalf("stop status = %d: %s", resp.Code, resp.Body.String())
	}
	if st := decode[session.Snapshot](t, resp).Status; st != session.StatusStopped {
		t.Errorf("status after stop = %s", st)
	}

	resp = api.Post("/api/sessions/live/reset")
	if st := decode[session.Snapshot](t, resp).Status; st != session.StatusCreated {
		t.Errorf("status after reset = %s", st)
	}
}

func TestFrameErrors(t *testing.T) {
	_, api := newTestServer(t)
	api.Post("/api/sessions", map[string]any{"id": "idle"})
	api.Post("/api/sessions", map[string]any{
		"id": "blind",
		"config": configBody(func(b map[string]any) {
			b["preview"] = false
			b["persist"] = true
		}),
	})

	tests := []struct {
		path string
		want int
	}{
		{"/api/sessions/idle/frame?timeout_ms=20", http.StatusGatewayTimeout},
		{"/api/sessions/blind/frame?timeout_ms=20", http.StatusConflict},
		{"/api/sessions/nobody/frame", http.StatusNotFound},
		{"/api/sessions/idle/output", http.StatusNotFound},
	}
	for _, tt := range tests {
		if resp := api.Get(tt.path); resp.Code != tt.want {
			t.Errorf("GET %s = %d, want %d", tt.path, resp.Code, tt.want)
		}
	}
}

func TestPersistedOutputDownload(t *testing.T) {
	_, api := newTestServer(t)
	api.Post("/api/sessions", map[string]any{
		"id": "rec",
		"config": configBody(func(b map[string]any) {
			b["preview"] = false
			b["persist"] = true
		}),
	})

	if resp := api.Post("/api/sessions/rec/start"); resp.Code != http.StatusOK {
		t.Fatalf("start status = %d: %s", resp.Code, resp.Body.String())
	}
	time.Sleep(30 * time.Millisecond)
	resp := api.Post("/api/sessions/rec/stop")
	if resp.Code != http.StatusOK {
		t.Fatalf("stop status = %d: %s", resp.Code, resp.Body.String())
	}
	snap := decode[session.Snapshot](t, resp)
	if snap.Output == nil || !snap.Output.Available {
		t.Fatalf("output after stop = %+v, want available", snap.Output)
	}

	resp = api.Get("/api/sessions/rec/output")
	if resp.Code != http.StatusOK {
		t.Fatalf("output status = %d", resp.Code)
	}
	if ct := resp.Header().Get("Content-Type"); ct != "video/mp4" {
		t.Errorf("output content type = %q, want video/mp4", ct)
	}
	if !strings.HasSuffix(resp.Body.String(), "moov") {
		t.Error("downloaded file is not the finalized output")
	}
	if cd := resp.Header().Get("Content-Disposition"); !strings.Contains(cd, "rec_output.mp4") {
		t.Errorf("Content-Disposition = %q", cd)
	}

	if resp := api.Delete("/api/sessions/rec"); resp.Code != http.StatusOK {
		t.Fatalf("delete status = %d", resp.Code)
	}
	if _, err := os.Stat(snap.Output.Path); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("output file survived delete: %v", err)
	}
}

func TestDefaultsRoutes(t *testing.T) {
	_, api := newTestServer(t)

	resp := api.Get("/api/defaults")
	if resp.Code != http.StatusOK {
		t.Fatalf("defaults status = %d", resp.Code)
	}
	if cfg := decode[session.Config](t, resp); cfg.Source.Pattern != graph.DefaultPattern {
		t.Errorf("default pattern = %q", cfg.Source.Pattern)
	}

	resp = api.Put("/api/defaults", configBody(func(b map[string]any) {
		b["source"] = map[string]any{"kind": "pattern", "pattern": "smpte"}
	}))
	if resp.Code != http.StatusOK {
		t.Fatalf("update defaults status = %d: %s", resp.Code, resp.Body.String())
	}
	resp = api.Post("/api/sessions")
	if p := decode[session.Snapshot](t, resp).Config.Source.Pattern; p != "smpte" {
		t.Errorf("new session pattern = %q, want smpte", p)
	}

	resp = api.Put("/api/defaults", configBody(func(b map[string]any) {
		b["persist"] = true
		b["extension"] = "h264"
		b["source"] = map[string]any{"kind": "pattern", "pattern": "snowstorm"}
	}))
	if resp.Code != http.StatusBadRequest {
		t.Errorf("bad defaults status = %d, want 400", resp.Code)
	}
}

func TestLogRoutes(t *testing.T) {
	logging.Initialize(logging.Config{Level: "info", HistorySize: 50})
	_, api := newTestServer(t)

	logging.GetLogger("apitest").Info("first")
	logging.GetLogger("apitest").Warn("second")

	resp := api.Get("/api/logs?module=apitest&level=warn")
	if resp.Code != http.StatusOK {
		t.Fatalf("logs status = %d", resp.Code)
	}
	data := decode[struct {
		Entries []logging.Entry `json:"entries"`
		Count   int             `json:"count"`
	}](t, resp)
	if data.Count != 1 || data.Entries[0].Message != "second" {
		t.Errorf("filtered logs = %+v, want [second]", data.Entries)
	}

	if resp := api.Put("/api/logs/levels/apitest", map[string]any{"level": "debug"}); resp.Code != http.StatusOK {
		t.Fatalf("set level status = %d: %s", resp.Code, resp.Body.String())
	}
	levels := decode[struct {
		Levels map[string]string `json:"levels"`
	}](t, api.Get("/api/logs/levels"))
	if levels.Levels["apitest"] != "debug" {
		t.Errorf("levels = %v, want apitest=debug", levels.Levels)
	}
}

func TestMetricsAndCORS(t *testing.T) {
	s, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	if !strings.Contains(rec.Body.String(), "gstgraph_up 1") {
		t.Errorf("metrics body = %q", rec.Body.String())
	}

	req = httptest.NewRequest(http.MethodOptions, "/api/sessions", nil)
	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Errorf("preflight status = %d, want 204", rec.Code)
	}
	if got := rec.Header().Get("Access-Control-Expose-Headers"); !strings.Contains(got, "X-Frame-Seq") {
		t.Errorf("Access-Control-Expose-Headers = %q", got)
	}
}

func TestOperatorPage(t *testing.T) {
	s, _ := newTestServer(t)

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "app.js") {
		t.Errorf("GET / = %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/nothing", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("GET /api/nothing = %d, want 404", rec.Code)
	}
}

func TestMapSessionError(t *testing.T) {
	s, _ := newTestServer(t)

	tests := []struct {
		name string
		err  error
		want int
	}{
		{"configuration", fmt.Errorf("build: %w", &graph.ConfigurationError{Field: "pattern", Reason: "unknown"}), 400},
		{"not found", fmt.Errorf("%w: x", session.ErrNotFound), 404},
		{"busy", session.ErrBusy, 409},
		{"failed", fmt.Errorf("%w: boom", session.ErrSessionFailed), 409},
		{"frame timeout", framequeue.ErrTimeout, 504},
		{"deadline", context.DeadlineExceeded, 504},
		{"framework", &session.FrameworkError{Source: "enc", Message: "boom"}, 500},
		{"other", errors.New("disk on fire"), 500},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var se huma.StatusError
			if !errors.As(s.mapSessionError(tt.err), &se) {
				t.Fatal("not a huma.StatusError")
			}
			if se.GetStatus() != tt.want {
				t.Errorf("status = %d, want %d", se.GetStatus(), tt.want)
			}
		})
	}
}

func TestEventStream(t *testing.T) {
	s, api := newTestServer(t)
	api.Post("/api/sessions", map[string]any{"id": "ssetest"})

	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/api/events", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer resp.Body.Close()
	if !strings.Contains(resp.Header.Get("Content-Type"), "text/event-stream") {
		t.Fatalf("Content-Type = %q", resp.Header.Get("Content-Type"))
	}

	lines := make(chan string, 16)
	go func() {
		scanner := bufio.NewScanner(resp.Body)
		for scanner.Scan() {
			if line := scanner.Text(); strings.HasPrefix(line, "data:") {
				lines <- line
			}
		}
		close(lines)
	}()

	next := func() string {
		select {
		case line, ok := <-lines:
			if !ok {
				t.Fatal("stream closed")
			}
			return line
		case <-ctx.Done():
			t.Fatal("timed out waiting for an event")
		}
		return ""
	}

	if first := next(); !strings.Contains(first, `"ssetest"`) || !strings.Contains(first, `"CREATED"`) {
		t.Fatalf("first event = %s, want current status of ssetest", first)
	}

	api.Delete("/api/sessions/ssetest")
	for {
		line := next()
		if strings.Contains(line, `"ssetest"`) && !strings.Contains(line, `"to"`) {
			return
		}
	}
}
