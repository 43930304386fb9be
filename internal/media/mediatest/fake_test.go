package mediatest

import (
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/smazurov/gstgraph/internal/graph"
	"github.com/smazurov/gstgraph/internal/media"
)

func buildGraph(t *testing.T, dir string, branches ...graph.BranchSpec) *graph.Graph {
	t.Helper()
	g, err := graph.Build(graph.Spec{
		Source:   graph.SourceSpec{Kind: graph.SourcePattern},
		Branches: branches,
	}, graph.Options{SessionID: "fakefake", OutputDir: dir})
	if err != nil {
		t.Fatal(err)
	}
	return g
}

func waitFor(t *testing.T, p *Pipeline, want func(media.BusEvent) bool) media.BusEvent {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if ev := p.Pop(20 * time.Millisecond); ev != nil && want(ev) {
			return ev
		}
	}
	t.Fatal("event not seen")
	return nil
}

func TestPlayProducesSamplesAndFile(t *testing.T) {
	dir := t.TempDir()
	g := buildGraph(t, dir, graph.BranchSpec{Kind: graph.BranchPreview}, graph.BranchSpec{Kind: graph.BranchPersist})

	var samples atomic.Int32
	fw := New()
	pl, err := fw.Realize(g, func(s media.Sample) {
		if s.Format != "I420" || len(s.Data) != 64*48*3/2 {
			t.Errorf("sample %+v", s)
		}
		samples.Add(1)
	})
	if err != nil {
		t.Fatal(err)
	}
	p := pl.(*Pipeline)

	if err := p.SetState(media.StatePlaying); err != nil {
		t.Fatal(err)
	}
	waitFor(t, p, func(ev media.BusEvent) bool {
		sc, ok := ev.(media.StateChanged)
		return ok && sc.New == media.StatePlaying
	})
	time.Sleep(30 * time.Millisecond)

	if err := p.SendEOS(); err != nil {
		t.Fatal(err)
	}
	waitFor(t, p, func(ev media.BusEvent) bool { _, ok := ev.(media.EndOfStream); return ok })

	if samples.Load() == 0 {
		t.Error("no samples delivered")
	}
	if err := p.Close(); err != nil {
		t.Fatal(err)
	}
	fi, err := os.Stat(filepath.Join(dir, "fakefake_output.mp4"))
	if err != nil || fi.Size() == 0 {
		t.Errorf("output file: %v, %v", fi, err)
	}
}

func TestNumBuffersEndsStream(t *testing.T) {
	g, err := graph.Build(graph.Spec{
		Source: graph.SourceSpec{Kind: graph.SourcePattern, NumBuffers: 3},
	}, graph.Options{SessionID: "x"})
	if err != nil {
		t.Fatal(err)
	}
	pl, _ := New().Realize(g, nil)
	p := pl.(*Pipeline)
	p.SetState(media.StatePlaying)
	waitFor(t, p, func(ev media.BusEvent) bool { _, ok := ev.(media.EndOfStream); return ok })
	if p.Produced() != 3 {
		t.Errorf("produced %d, want 3", p.Produced())
	}
}

func TestFailAndSwallowEOS(t *testing.T) {
	fw := &Framework{SwallowEOS: true}
	pl, _ := fw.Realize(buildGraph(t, t.TempDir()), nil)
	p := pl.(*Pipeline)
	p.SetState(media.StatePlaying)
	p.SendEOS()
	p.Fail("Internal data stream error.", "reason not-negotiated")

	ev := waitFor(t, p, func(ev media.BusEvent) bool { _, ok := ev.(media.Error); return ok })
	if e := ev.(media.Error); e.Category != media.CategoryNegotiation {
		t.Errorf("category = %s", e.Category)
	}
}

func TestRealizeRejectsUnsealed(t *testing.T) {
	if _, err := New().Realize(nil, nil); err == nil {
		t.Error("expected error for nil graph")
	}
}
