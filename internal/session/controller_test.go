package session

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/smazurov/gstgraph/internal/events"
	"github.com/smazurov/gstgraph/internal/framequeue"
	"github.com/smazurov/gstgraph/internal/graph"
	"github.com/smazurov/gstgraph/internal/media"
	"github.com/smazurov/gstgraph/internal/media/mediatest"
)

func testOptions(t *testing.T, fw media.Framework, bus *events.Bus) Options {
	t.Helper()
	return Options{
		Framework:      fw,
		Bus:            bus,
		Graph:          graph.Options{OutputDir: t.TempDir()},
		StopTimeout:    time.Second,
		OutputWait:     500 * time.Millisecond,
		OutputInterval: 10 * time.Millisecond,
		StatsInterval:  20 * time.Millisecond,
		BusPoll:        10 * time.Millisecond,
	}
}

func newTestRegistry(t *testing.T, fw media.Framework, bus *events.Bus) *Registry {
	t.Helper()
	r := NewRegistry(testOptions(t, fw, bus))
	t.Cleanup(func() { _ = r.Close(time.Second) })
	return r
}

func newTestSession(t *testing.T, fw media.Framework, cfg Config) *Controller {
	t.Helper()
	r := newTestRegistry(t, fw, nil)
	c, err := r.Create()
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if err := c.Configure(cfg); err != nil {
		t.Fatalf("Configure() error = %v", err)
	}
	return c
}

func waitStatus(t *testing.T, c *Controller, want Status) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if c.Status() == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("status = %s, want %s", c.Status(), want)
}

func persistConfig() Config {
	cfg := DefaultConfig()
	cfg.Source.Pattern = "solid-color"
	cfg.Preview = false
	cfg.Persist = true
	cfg.Extension = "mp4"
	return cfg
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Source.Kind != graph.SourcePattern || cfg.Source.Pattern != "ball" {
		t.Errorf("source = %+v, want ball pattern", cfg.Source)
	}
	if cfg.Source.Motion != "wavy" || cfg.Source.AnimationMode != "frames" || cfg.Source.Flip {
		t.Errorf("ball options = %+v", cfg.Source)
	}
	if !cfg.Preview || cfg.Persist || cfg.Display {
		t.Errorf("branches = preview:%v persist:%v display:%v, want only preview", cfg.Preview, cfg.Persist, cfg.Display)
	}
	if cfg.Extension != "mp4" {
		t.Errorf("Extension = %q, want mp4", cfg.Extension)
	}
}

func TestConfigSpec(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		want []graph.BranchKind
	}{
		{"none", Config{}, nil},
		{"preview", Config{Preview: true}, []graph.BranchKind{graph.BranchPreview}},
		{"persist and display", Config{Persist: true, Display: true}, []graph.BranchKind{graph.BranchPersist, graph.BranchDisplay}},
		{"all", Config{Preview: true, Persist: true, Display: true}, []graph.BranchKind{graph.BranchPreview, graph.BranchPersist, graph.BranchDisplay}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			spec := tt.cfg.Spec()
			if len(spec.Branches) != len(tt.want) {
				t.Fatalf("got %d branches, want %d", len(spec.Branches), len(tt.want))
			}
			for i, b := range spec.Branches {
				if b.Kind != tt.want[i] {
					t.Errorf("branch %d = %s, want %s", i, b.Kind, tt.want[i])
				}
			}
		})
	}
}

func TestStartStopWithPreview(t *testing.T) {
	fw := mediatest.New()
	c := newTestSession(t, fw, DefaultConfig())

	if got := c.Status(); got != StatusCreated {
		t.Fatalf("initial status = %s, want CREATED", got)
	}
	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if got := c.Status(); got != StatusPlaying {
		t.Fatalf("status after Start = %s, want PLAYING", got)
	}

	frame, err := c.FetchFrame(context.Background(), time.Second)
	if err != nil {
		t.Fatalf("FetchFrame() error = %v", err)
	}
	if h, w, ch := frame.Image.Shape(); h != 48 || w != 64 || ch != 3 {
		t.Errorf("frame shape = (%d, %d, %d), want (48, 64, 3)", h, w, ch)
	}
	if frame.Seq == 0 {
		t.Error("frame sequence not set")
	}

	if err := c.Stop(context.Background()); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if got := c.Status(); got != StatusStopped {
		t.Fatalf("status after Stop = %s, want STOPPED", got)
	}
	if c.IsOutputAvailable() {
		t.Error("output available without a persist branch")
	}
	if got := c.OutputPath(); got != "" {
		t.Errorf("OutputPath() = %q, want empty", got)
	}
	if !fw.Last().Closed() {
		t.Error("pipeline not closed after stop")
	}

	n := c.Counters()
	if n.FramesIn == 0 || n.FramesOut != 1 {
		t.Errorf("counters = %+v, want frames in and exactly one frame out", n)
	}
}

func TestPersistEndToEnd(t *testing.T) {
	fw := mediatest.New()
	bus := events.New()
	r := newTestRegistry(t, fw, bus)

	var mu sync.Mutex
	var ready []events.OutputReadyEvent
	unsub := events.Subscribe(bus, func(e events.OutputReadyEvent) {
		mu.Lock()
		ready = append(ready, e)
		mu.Unlock()
	})
	defer unsub()

	c, err := r.Create()
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if err := c.Configure(persistConfig()); err != nil {
		t.Fatalf("Configure() error = %v", err)
	}
	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	time.Sleep(200 * time.Millisecond)
	if err := c.Stop(context.Background()); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}

	want := filepath.Join(r.opts.Graph.OutputDir, c.ID()+"_output.mp4")
	if got := c.OutputPath(); got != want {
		t.Errorf("OutputPath() = %q, want %q", got, want)
	}
	info, err := os.Stat(want)
	if err != nil {
		t.Fatalf("output file: %v", err)
	}
	if info.Size() <= 0 {
		t.Errorf("output size = %d, want > 0", info.Size())
	}
	if !c.IsOutputAvailable() {
		t.Error("IsOutputAvailable() = false after stop")
	}

	// A second stop must not finalize again.
	if err := c.Stop(context.Background()); err != nil {
		t.Fatalf("second Stop() error = %v", err)
	}
	time.Sleep(50 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	if len(ready) != 1 {
		t.Fatalf("got %d OutputReady events, want 1", len(ready))
	}
	if ready[0].Path != want || ready[0].Size != info.Size() {
		t.Errorf("OutputReady = %+v", ready[0])
	}
}

func TestStopIsNoopWhenIdle(t *testing.T) {
	fw := mediatest.New()
	c := newTestSession(t, fw, DefaultConfig())

	if err := c.Stop(context.Background()); err != nil {
		t.Fatalf("Stop() on CREATED error = %v", err)
	}
	if got := c.Status(); got != StatusCreated {
		t.Errorf("status = %s, want CREATED", got)
	}
	if n := len(fw.Pipelines()); n != 0 {
		t.Errorf("realized %d pipelines, want 0", n)
	}
}

func TestStartWhilePlayingRestarts(t *testing.T) {
	fw := mediatest.New()
	c := newTestSession(t, fw, DefaultConfig())

	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("first Start() error = %v", err)
	}
	first := fw.Last()
	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("second Start() error = %v", err)
	}

	if n := len(fw.Pipelines()); n != 2 {
		t.Fatalf("realized %d pipelines, want 2", n)
	}
	if !first.Closed() {
		t.Error("first pipeline still open after restart")
	}
	if fw.Last().Closed() {
		t.Error("second pipeline closed")
	}
	if got := c.Status(); got != StatusPlaying {
		t.Errorf("status = %s, want PLAYING", got)
	}
}

func TestFrameworkErrorRequiresReset(t *testing.T) {
	fw := mediatest.New()
	c := newTestSession(t, fw, persistConfig())

	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	p := fw.Last()
	p.Fail("Internal data stream error.", "streaming stopped, reason not-negotiated (-4)")
	waitStatus(t, c, StatusError)

	var fe *FrameworkError
	if !errors.As(c.Err(), &fe) {
		t.Fatalf("Err() = %v, want *FrameworkError", c.Err())
	}
	if fe.Category != media.CategoryNegotiation {
		t.Errorf("category = %s, want negotiation", fe.Category)
	}
	if !p.Closed() {
		t.Error("pipeline not torn down after error")
	}
	if c.IsOutputAvailable() {
		t.Error("output finalized after error")
	}

	if err := c.Start(context.Background()); !errors.Is(err, ErrSessionFailed) {
		t.Fatalf("Start() in ERROR = %v, want ErrSessionFailed", err)
	}
	if err := c.Stop(context.Background()); err != nil {
		t.Errorf("Stop() in ERROR = %v, want no-op", err)
	}

	if err := c.Reset(); err != nil {
		t.Fatalf("Reset() error = %v", err)
	}
	if got := c.Status(); got != StatusCreated {
		t.Fatalf("status after Reset = %s, want CREATED", got)
	}
	if c.Err() != nil {
		t.Errorf("Err() after Reset = %v", c.Err())
	}
	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start() after Reset error = %v", err)
	}
}

func TestErrorWhileStopping(t *testing.T) {
	fw := mediatest.New()
	fw.SwallowEOS = true
	c := newTestSession(t, fw, DefaultConfig())

	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	p := fw.Last()

	errc := make(chan error, 1)
	go func() { errc <- c.Stop(context.Background()) }()
	waitStatus(t, c, StatusStopping)
	p.Fail("Could not write to resource.", "")

	var fe *FrameworkError
	if err := <-errc; !errors.As(err, &fe) {
		t.Fatalf("Stop() = %v, want *FrameworkError", err)
	}
	if got := c.Status(); got != StatusError {
		t.Errorf("status = %s, want ERROR", got)
	}
}

func TestDrainTimeoutForcesStop(t *testing.T) {
	fw := mediatest.New()
	fw.SwallowEOS = true
	r := NewRegistry(func() Options {
		o := testOptions(t, fw, nil)
		o.StopTimeout = 100 * time.Millisecond
		return o
	}())
	t.Cleanup(func() { _ = r.Close(time.Second) })

	c, err := r.Create()
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if err := c.Configure(persistConfig()); err != nil {
		t.Fatalf("Configure() error = %v", err)
	}
	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	time.Sleep(50 * time.Millisecond)

	start := time.Now()
	if err := c.Stop(context.Background()); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if elapsed := time.Since(start); elapsed < 100*time.Millisecond {
		t.Errorf("Stop returned after %v, before the drain timeout", elapsed)
	}
	if got := c.Status(); got != StatusStopped {
		t.Fatalf("status = %s, want STOPPED", got)
	}
	if fw.Last().State() != media.StateNull {
		t.Errorf("pipeline state = %s, want NULL", fw.Last().State())
	}
	if !c.IsOutputAvailable() {
		t.Error("output not finalized after forced stop")
	}
}

func TestStopContextCancelled(t *testing.T) {
	fw := mediatest.New()
	fw.SwallowEOS = true
	c := newTestSession(t, fw, DefaultConfig())

	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := c.Stop(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Stop() = %v, want deadline exceeded", err)
	}
	if got := c.Status(); got != StatusStopping {
		t.Fatalf("status = %s, want STOPPING", got)
	}
	// The drain timer still completes the stop.
	waitStatus(t, c, StatusStopped)
}

func TestSourceFinished(t *testing.T) {
	fw := mediatest.New()
	cfg := DefaultConfig()
	cfg.Source.NumBuffers = 5
	c := newTestSession(t, fw, cfg)

	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	waitStatus(t, c, StatusStopped)
	if got := fw.Last().Produced(); got != 5 {
		t.Errorf("produced %d frames, want 5", got)
	}
}

func TestInformationalEventsKeepStatus(t *testing.T) {
	fw := mediatest.New()
	c := newTestSession(t, fw, DefaultConfig())

	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	p := fw.Last()
	p.Emit(media.Warning{Source: "x264enc0", Message: "slow"})
	p.Emit(media.Tag{Source: "qtdemux0", Tags: map[string]string{"codec": "H.264"}})
	p.Emit(media.StateChanged{Source: "queue0", Old: media.StatePaused, New: media.StatePlaying})

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		s := c.Snapshot()
		if s.BusEvents["warning"] >= 1 && s.BusEvents["tag"] >= 1 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	s := c.Snapshot()
	if s.Status != StatusPlaying {
		t.Errorf("status = %s, want PLAYING", s.Status)
	}
	if s.BusEvents["warning"] != 1 || s.BusEvents["tag"] != 1 {
		t.Errorf("bus events = %v, want one warning and one tag", s.BusEvents)
	}
	if s.BusEvents["state_changed"] == 0 {
		t.Errorf("bus events = %v, want state changes", s.BusEvents)
	}
}

func TestRealizeFailure(t *testing.T) {
	fw := mediatest.New()
	c := newTestSession(t, fw, DefaultConfig())
	fw.RealizeErr = errors.New(`no element "videotestsrc"`)

	err := c.Start(context.Background())
	var fe *FrameworkError
	if !errors.As(err, &fe) {
		t.Fatalf("Start() = %v, want *FrameworkError", err)
	}
	if fe.Category != media.CategoryCodec {
		t.Errorf("category = %s, want codec", fe.Category)
	}
	if got := c.Status(); got != StatusError {
		t.Errorf("status = %s, want ERROR", got)
	}
}

func TestConfigure(t *testing.T) {
	fw := mediatest.New()
	c := newTestSession(t, fw, DefaultConfig())

	bad := DefaultConfig()
	bad.Source.Pattern = "plaid"
	if err := c.Configure(bad); !graph.IsConfigurationError(err) {
		t.Fatalf("Configure(bad) = %v, want ConfigurationError", err)
	}
	if got := c.Config().Source.Pattern; got != "ball" {
		t.Errorf("pattern after rejected Configure = %q, want ball", got)
	}

	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := c.Configure(persistConfig()); !errors.Is(err, ErrBusy) {
		t.Fatalf("Configure() while playing = %v, want ErrBusy", err)
	}
	if err := c.Stop(context.Background()); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}

	if err := c.Configure(persistConfig()); err != nil {
		t.Fatalf("Configure() after stop error = %v", err)
	}
	if _, ok := c.Graph().Output(); !ok {
		t.Error("graph has no persist output after Configure")
	}
	if c.OutputPath() == "" {
		t.Error("OutputPath() empty for configured persist branch")
	}
}

func TestConversionErrorsSkipFrames(t *testing.T) {
	fw := mediatest.New()
	fw.Format = "NV12"
	c := newTestSession(t, fw, DefaultConfig())

	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	_, err := c.FetchFrame(context.Background(), 100*time.Millisecond)
	if !errors.Is(err, framequeue.ErrTimeout) {
		t.Fatalf("FetchFrame() = %v, want ErrTimeout", err)
	}
	if n := c.Counters(); n.ConversionErrors == 0 || n.FramesOut != 0 {
		t.Errorf("counters = %+v, want conversion errors and no frames out", n)
	}
	if got := c.Status(); got != StatusPlaying {
		t.Errorf("status = %s, want PLAYING", got)
	}
}

func TestStatusEvents(t *testing.T) {
	fw := mediatest.New()
	bus := events.New()
	r := newTestRegistry(t, fw, bus)

	var mu sync.Mutex
	seen := make(map[string]bool)
	unsub := events.Subscribe(bus, func(e events.SessionStatusChangedEvent) {
		mu.Lock()
		seen[e.From+">"+e.To] = true
		mu.Unlock()
	})
	defer unsub()

	c, err := r.Create()
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := c.Stop(context.Background()); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}

	want := []string{"CREATED>PLAYING", "PLAYING>STOPPING", "STOPPING>STOPPED"}
	deadline := time.Now().Add(time.Second)
	for {
		mu.Lock()
		missing := ""
		for _, w := range want {
			if !seen[w] {
				missing = w
				break
			}
		}
		mu.Unlock()
		if missing == "" {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("transition %s not published", missing)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestSnapshot(t *testing.T) {
	fw := mediatest.New()
	c := newTestSession(t, fw, persistConfig())

	s := c.Snapshot()
	if s.ID != c.ID() || s.Status != StatusCreated || s.StartedAt != nil || s.Output != nil {
		t.Errorf("snapshot before start = %+v", s)
	}

	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	s = c.Snapshot()
	if s.StartedAt == nil {
		t.Error("StartedAt not set after start")
	}
	if s.Output == nil || s.Output.Extension != "mp4" || s.Output.Available {
		t.Errorf("Output = %+v, want pending mp4", s.Output)
	}
}

func TestCloseStopsPipeline(t *testing.T) {
	fw := mediatest.New()
	c := newTestSession(t, fw, DefaultConfig())

	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := c.Close(context.Background()); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if !fw.Last().Closed() {
		t.Error("pipeline open after Close")
	}
	if err := c.Start(context.Background()); !errors.Is(err, ErrClosed) {
		t.Errorf("Start() after Close = %v, want ErrClosed", err)
	}
}
