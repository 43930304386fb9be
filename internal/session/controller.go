package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/smazurov/gstgraph/internal/events"
	"github.com/smazurov/gstgraph/internal/framequeue"
	"github.com/smazurov/gstgraph/internal/graph"
	"github.com/smazurov/gstgraph/internal/logging"
	"github.com/smazurov/gstgraph/internal/media"
)

// Options configures every controller created by a Registry.
type Options struct {
	// Framework realizes graphs (required).
	Framework media.Framework
	// Bus receives lifecycle events. Nil disables publishing.
	Bus *events.Bus
	// Graph carries the output directory, queue limits and encoder
	// settings. SessionID is filled per session.
	Graph graph.Options
	// QueueCapacity bounds the preview frame queue.
	QueueCapacity int
	// StopTimeout bounds how long STOPPING waits for end-of-stream
	// before the pipeline is forced to NULL.
	StopTimeout time.Duration
	// OutputWait bounds the polling for the persisted file after stop.
	OutputWait     time.Duration
	OutputInterval time.Duration
	// IntermediateInterval throttles the preview snapshot file. Zero
	// disables it.
	IntermediateInterval time.Duration
	// StatsInterval is the period of FrameStatsEvent while playing.
	StatsInterval time.Duration
	// BusPoll is the Pipeline.Pop timeout used by the bus pump.
	BusPoll time.Duration
}

// DefaultOptions returns the server defaults without a framework.
func DefaultOptions() Options {
	return Options{
		Graph:                graph.DefaultOptions(),
		QueueCapacity:        framequeue.DefaultCapacity,
		StopTimeout:          5 * time.Second,
		OutputWait:           2 * time.Second,
		OutputInterval:       50 * time.Millisecond,
		IntermediateInterval: time.Second,
		StatsInterval:        time.Second,
		BusPoll:              100 * time.Millisecond,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.Graph.OutputDir == "" {
		o.Graph.OutputDir = d.Graph.OutputDir
	}
	if o.QueueCapacity <= 0 {
		o.QueueCapacity = d.QueueCapacity
	}
	if o.StopTimeout <= 0 {
		o.StopTimeout = d.StopTimeout
	}
	if o.OutputWait <= 0 {
		o.OutputWait = d.OutputWait
	}
	if o.OutputInterval <= 0 {
		o.OutputInterval = d.OutputInterval
	}
	if o.StatsInterval <= 0 {
		o.StatsInterval = d.StatsInterval
	}
	if o.BusPoll <= 0 {
		o.BusPoll = d.BusPoll
	}
	return o
}

// Controller owns one session: its configuration, the current graph and
// pipeline, the frame queue and the lifecycle state machine.
type Controller struct {
	id     string
	opts   Options
	logger *slog.Logger
	frames *framequeue.Queue[Frame]
	inter  *intermediateWriter

	// opMu serializes Start, Stop, Reset and Configure.
	opMu sync.Mutex

	mailbox   chan any
	quit      chan struct{}
	done      chan struct{}
	closeOnce sync.Once

	framesIn   atomic.Uint64
	framesOut  atomic.Uint64
	convErrors atomic.Uint64

	// Guarded by mu. Written only by the dispatcher once it runs.
	mu        sync.RWMutex
	status    Status
	cfg       Config
	graph     *graph.Graph
	output    *Output
	lastErr   error
	createdAt time.Time
	startedAt time.Time
	busEvents map[string]uint64

	// Dispatcher-only.
	pipeline   media.Pipeline
	gen        uint64
	pumpStop   chan struct{}
	pumpDone   chan struct{}
	drainTimer *time.Timer
	settled    chan struct{}
	finalized  bool
}

func newController(id string, cfg Config, opts Options) (*Controller, error) {
	opts = opts.withDefaults()
	c := &Controller{
		id:        id,
		opts:      opts,
		logger:    logging.GetLogger("session").With("session_id", id),
		frames:    framequeue.New[Frame](opts.QueueCapacity),
		mailbox:   make(chan any, 64),
		quit:      make(chan struct{}),
		done:      make(chan struct{}),
		status:    StatusCreated,
		createdAt: time.Now(),
		busEvents: make(map[string]uint64),
	}
	if opts.IntermediateInterval > 0 {
		c.inter = newIntermediateWriter(graph.IntermediatePath(opts.Graph.OutputDir, id), opts.IntermediateInterval, c.logger)
	}

	g, err := graph.Build(cfg.Spec(), c.graphOptions())
	if err != nil {
		return nil, err
	}
	c.cfg, c.graph = cfg, g

	go c.run()
	return c, nil
}

// ID returns the session identifier.
func (c *Controller) ID() string { return c.id }

// Status returns the current lifecycle status.
func (c *Controller) Status() Status {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.status
}

// Config returns the active configuration.
func (c *Controller) Config() Config {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cfg
}

// Graph returns the sealed graph the next (or current) run uses.
func (c *Controller) Graph() *graph.Graph {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.graph
}

// Err returns the error that moved the session to ERROR, if any.
func (c *Controller) Err() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastErr
}

// Start builds and plays the configured graph. A running graph is
// stopped first. Start fails with ErrSessionFailed while in ERROR.
func (c *Controller) Start(ctx context.Context) error {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	switch st := c.Status(); {
	case st == StatusError:
		return fmt.Errorf("%w: %w", ErrSessionFailed, c.Err())
	case st.Active():
		c.logger.Info("Stopping previous run before start")
		if err := c.stop(ctx); err != nil {
			return fmt.Errorf("stop previous run: %w", err)
		}
	}
	return c.do(c.start)
}

// Stop sends end-of-stream and waits until the session leaves STOPPING.
// It is a no-op unless the session is playing or stopping.
func (c *Controller) Stop(ctx context.Context) error {
	c.opMu.Lock()
	defer c.opMu.Unlock()
	return c.stop(ctx)
}

func (c *Controller) stop(ctx context.Context) error {
	var settled chan struct{}
	err := c.do(func() error {
		switch c.status {
		case StatusPlaying:
			settled = c.beginStop()
		case StatusStopping:
			settled = c.settled
		}
		return nil
	})
	if err != nil || settled == nil {
		return err
	}

	select {
	case <-settled:
	case <-ctx.Done():
		return ctx.Err()
	}
	if c.Status() == StatusError {
		return c.Err()
	}
	return nil
}

// Reset tears down any pipeline without finalizing and returns the
// session to CREATED. It is the only way out of ERROR.
func (c *Controller) Reset() error {
	c.opMu.Lock()
	defer c.opMu.Unlock()
	return c.do(func() error {
		c.teardown()
		c.frames.Reset()
		c.resetCounters()
		c.mu.Lock()
		c.lastErr = nil
		c.output = nil
		c.startedAt = time.Time{}
		c.mu.Unlock()
		c.setStatus(StatusCreated, "reset")
		return nil
	})
}

// Configure validates cfg by building its graph and makes it the
// configuration of the next run. It is rejected while a run is active.
func (c *Controller) Configure(cfg Config) error {
	c.opMu.Lock()
	defer c.opMu.Unlock()
	return c.do(func() error {
		if c.status.Active() {
			return ErrBusy
		}
		g, err := graph.Build(cfg.Spec(), c.graphOptions())
		if err != nil {
			return err
		}
		c.mu.Lock()
		c.cfg, c.graph = cfg, g
		c.mu.Unlock()
		c.logger.Info("Session reconfigured", "source", cfg.Source.Kind, "preview", cfg.Preview, "persist", cfg.Persist, "display", cfg.Display)
		return nil
	})
}

// FetchFrame waits up to timeout for the next preview frame. It returns
// framequeue.ErrTimeout when none arrived.
func (c *Controller) FetchFrame(ctx context.Context, timeout time.Duration) (Frame, error) {
	f, err := c.frames.Pop(ctx, timeout)
	if err != nil {
		return Frame{}, err
	}
	c.framesOut.Add(1)
	return f, nil
}

// IsOutputAvailable reports whether the last run finalized its file.
func (c *Controller) IsOutputAvailable() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.output != nil && c.output.Available
}

// OutputPath returns the persisted file path of the last run, or of the
// configured graph before any run. It is empty without a persist branch.
func (c *Controller) OutputPath() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.output != nil {
		return c.output.Path
	}
	if c.graph != nil {
		if out, ok := c.graph.Output(); ok {
			return out.Path
		}
	}
	return ""
}

// Counters returns the frame counters of the current run.
func (c *Controller) Counters() Counters {
	return Counters{
		FramesIn:         c.framesIn.Load(),
		FramesOut:        c.framesOut.Load(),
		Dropped:          c.frames.Dropped(),
		ConversionErrors: c.convErrors.Load(),
		Queued:           c.frames.Len(),
	}
}

// Snapshot returns a copy of the session state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	s := Snapshot{
		ID:        c.id,
		Status:    c.status,
		Config:    c.cfg,
		Counters:  c.Counters(),
		CreatedAt: c.createdAt,
	}
	if c.output != nil {
		out := *c.output
		s.Output = &out
	}
	if !c.startedAt.IsZero() {
		t := c.startedAt
		s.StartedAt = &t
	}
	if c.lastErr != nil {
		s.LastError = c.lastErr.Error()
	}
	if len(c.busEvents) > 0 {
		s.BusEvents = make(map[string]uint64, len(c.busEvents))
		for k, v := range c.busEvents {
			s.BusEvents[k] = v
		}
	}
	return s
}

// Close stops the session gracefully within ctx, forces teardown of
// whatever is left and ends the dispatcher.
func (c *Controller) Close(ctx context.Context) error {
	var err error
	c.closeOnce.Do(func() {
		c.opMu.Lock()
		defer c.opMu.Unlock()
		if stopErr := c.stop(ctx); stopErr != nil {
			c.logger.Warn("Graceful stop failed during close", "error", stopErr)
			err = stopErr
		}
		_ = c.do(func() error {
			c.teardown()
			return nil
		})
		close(c.quit)
		<-c.done
		c.frames.Reset()
	})
	return err
}

// RemoveArtifacts deletes the session's persisted outputs and its
// intermediate preview file. It only runs once the session is closed.
func (c *Controller) RemoveArtifacts() (int, error) {
	select {
	case <-c.done:
	default:
		return 0, ErrBusy
	}
	n := c.removeFiles(c.outputGlob(), graph.IntermediatePath(c.opts.Graph.OutputDir, c.id))
	if n > 0 {
		c.logger.Info("Removed session artifacts", "count", n)
	}
	return n, nil
}

func (c *Controller) graphOptions() graph.Options {
	o := c.opts.Graph
	o.SessionID = c.id
	return o
}

func (c *Controller) resetCounters() {
	c.framesIn.Store(0)
	c.framesOut.Store(0)
	c.convErrors.Store(0)
}
