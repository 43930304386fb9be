// Package mediatest provides an in-process media.Framework that behaves
// like a small GStreamer pipeline: preview sinks receive synthetic I420
// samples, filesinks receive bytes, and the bus reports state changes
// and end-of-stream.
package mediatest

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/smazurov/gstgraph/internal/graph"
	"github.com/smazurov/gstgraph/internal/media"
)

// Framework is a fake media.Framework. Zero values pick sensible defaults.
type Framework struct {
	Width         int
	Height        int
	Format        string
	FrameInterval time.Duration
	// EOSDelay postpones the EndOfStream event after SendEOS.
	EOSDelay time.Duration
	// SwallowEOS makes SendEOS never produce EndOfStream, as a stuck
	// muxer would.
	SwallowEOS bool
	// RealizeErr is returned from Realize when set.
	RealizeErr error

	mu        sync.Mutex
	pipelines []*Pipeline
}

// New returns a fake producing 64x48 I420 frames every 5ms.
func New() *Framework {
	return &Framework{}
}

func (f *Framework) Name() string { return "fake" }

// Realize accepts any sealed graph.
func (f *Framework) Realize(g *graph.Graph, onSample media.SampleHandler) (media.Pipeline, error) {
	if f.RealizeErr != nil {
		return nil, f.RealizeErr
	}
	if g == nil || !g.Sealed() {
		return nil, errors.New("graph is not sealed")
	}

	p := &Pipeline{
		fw:       f,
		graph:    g,
		onSample: onSample,
		events:   make(chan media.BusEvent, 1024),
		state:    media.StateNull,
		width:    orDefault(f.Width, 64),
		height:   orDefault(f.Height, 48),
		format:   f.Format,
		interval: f.FrameInterval,
	}
	if p.format == "" {
		p.format = "I420"
	}
	if p.interval <= 0 {
		p.interval = 5 * time.Millisecond
	}
	if root, ok := g.Root(); ok {
		if n, ok := root.Props["num-buffers"].(int); ok {
			p.numBuffers = n
		}
	}

	f.mu.Lock()
	f.pipelines = append(f.pipelines, p)
	f.mu.Unlock()
	return p, nil
}

// Pipelines returns every pipeline realized so far.
func (f *Framework) Pipelines() []*Pipeline {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*Pipeline(nil), f.pipelines...)
}

// Last returns the most recently realized pipeline.
func (f *Framework) Last() *Pipeline {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.pipelines) == 0 {
		return nil
	}
	return f.pipelines[len(f.pipelines)-1]
}

// Pipeline is a fake media.Pipeline.
type Pipeline struct {
	fw       *Framework
	graph    *graph.Graph
	onSample media.SampleHandler
	events   chan media.BusEvent

	width, height int
	format        string
	interval      time.Duration
	numBuffers    int

	mu       sync.Mutex
	state    media.State
	closed   bool
	eosSent  bool
	produced int
	out      *os.File
	stop     chan struct{}
	done     chan struct{}
	states   []media.State
}

func orDefault(v, d int) int {
	if v <= 0 {
		return d
	}
	return v
}

// SetState walks through the intermediate states like a real pipeline,
// posting a StateChanged for each step.
func (p *Pipeline) SetState(target media.State) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return media.ErrClosed
	}
	p.states = append(p.states, target)

	for p.state != target {
		next := p.state + 1
		if target < p.state {
			next = p.state - 1
		}
		if err := p.enter(next); err != nil {
			return err
		}
		p.emit(media.StateChanged{Source: "pipeline0", Old: p.state, New: next})
		p.state = next
	}
	return nil
}

// enter runs the side effects of moving into s. Callers hold p.mu.
func (p *Pipeline) enter(s media.State) error {
	switch {
	case s == media.StateReady && p.state == media.StateNull:
		return p.openOutput()
	case s == media.StatePlaying:
		p.startProducer()
	case s == media.StatePaused && p.state == media.StatePlaying:
		p.stopProducer()
	case s == media.StateNull:
		p.closeOutput()
	}
	return nil
}

func (p *Pipeline) openOutput() error {
	out, ok := p.graph.Output()
	if !ok {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(out.Path), 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	fh, err := os.Create(out.Path)
	if err != nil {
		return fmt.Errorf("open output: %w", err)
	}
	p.out = fh
	return nil
}

func (p *Pipeline) closeOutput() {
	if p.out != nil {
		p.out.Close()
		p.out = nil
	}
}

func (p *Pipeline) startProducer() {
	if p.stop != nil || p.eosSent {
		return
	}
	p.stop = make(chan struct{})
	p.done = make(chan struct{})
	go p.produce(p.stop, p.done)
}

func (p *Pipeline) stopProducer() {
	if p.stop == nil {
		return
	}
	close(p.stop)
	done := p.done
	p.stop, p.done = nil, nil
	// produce takes p.mu; release it while waiting.
	p.mu.Unlock()
	<-done
	p.mu.Lock()
}

func (p *Pipeline) produce(stop, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	frameSize := p.width*p.height + 2*(p.width/2)*(p.height/2)
	sinks := p.graph.PreviewSinks()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
		}

		p.mu.Lock()
		p.produced++
		n := p.produced
		if p.out != nil {
			p.out.Write(make([]byte, 64))
		}
		p.mu.Unlock()

		for _, sink := range sinks {
			if p.onSample == nil {
				break
			}
			data := make([]byte, frameSize)
			for i := range data[:p.width*p.height] {
				data[i] = byte(n + i)
			}
			for i := p.width * p.height; i < len(data); i++ {
				data[i] = 128
			}
			p.onSample(media.Sample{
				Sink:   sink,
				Width:  p.width,
				Height: p.height,
				Format: p.format,
				PTS:    time.Duration(n) * p.interval,
				Data:   data,
			})
		}

		if p.numBuffers > 0 && n >= p.numBuffers {
			p.finish()
			return
		}
	}
}

// SendEOS stops frame production and, unless the framework swallows it,
// posts EndOfStream after EOSDelay.
func (p *Pipeline) SendEOS() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return media.ErrClosed
	}
	p.stopProducer()
	p.mu.Unlock()

	if p.fw.SwallowEOS {
		return nil
	}
	if d := p.fw.EOSDelay; d > 0 {
		time.AfterFunc(d, p.finish)
		return nil
	}
	p.finish()
	return nil
}

// finish writes the file trailer and posts EndOfStream once.
func (p *Pipeline) finish() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.eosSent || p.closed {
		return
	}
	p.eosSent = true
	if p.out != nil {
		p.out.Write([]byte("moov"))
		p.out.Sync()
	}
	p.emit(media.EndOfStream{})
}

// Pop returns the next bus event or nil after timeout.
func (p *Pipeline) Pop(timeout time.Duration) media.BusEvent {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case ev := <-p.events:
		return ev
	case <-timer.C:
		return nil
	}
}

// Close moves to NULL and rejects further calls.
func (p *Pipeline) Close() error {
	if err := p.SetState(media.StateNull); err != nil && !errors.Is(err, media.ErrClosed) {
		return err
	}
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	return nil
}

// Emit posts ev on the bus as if an element had sent it.
func (p *Pipeline) Emit(ev media.BusEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.emit(ev)
}

// Fail posts a framework error.
func (p *Pipeline) Fail(message, debug string) {
	p.Emit(media.Error{
		Source:   "fake0",
		Message:  message,
		Debug:    debug,
		Category: media.Classify(message, debug),
	})
}

func (p *Pipeline) emit(ev media.BusEvent) {
	select {
	case p.events <- ev:
	default:
	}
}

// State reports the current pipeline state.
func (p *Pipeline) State() media.State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Requested lists every SetState target in call order.
func (p *Pipeline) Requested() []media.State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]media.State(nil), p.states...)
}

// Produced counts frame ticks since PLAYING.
func (p *Pipeline) Produced() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.produced
}

// Closed reports whether Close was called.
func (p *Pipeline) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// Graph returns the graph this pipeline was realized from.
func (p *Pipeline) Graph() *graph.Graph { return p.graph }
