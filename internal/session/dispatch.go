package session

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/smazurov/gstgraph/internal/convert"
	"github.com/smazurov/gstgraph/internal/events"
	"github.com/smazurov/gstgraph/internal/graph"
	"github.com/smazurov/gstgraph/internal/media"
)

// Mailbox messages.
type (
	call struct {
		fn    func() error
		reply chan error
	}
	busMessage struct {
		gen uint64
		ev  media.BusEvent
	}
	drainTimeout struct {
		gen uint64
	}
)

// run is the dispatcher loop. It is the only writer of status.
func (c *Controller) run() {
	defer close(c.done)

	stats := time.NewTicker(c.opts.StatsInterval)
	defer stats.Stop()

	for {
		select {
		case <-c.quit:
			return
		case msg := <-c.mailbox:
			switch m := msg.(type) {
			case call:
				m.reply <- m.fn()
			case busMessage:
				if m.gen == c.gen {
					c.handleBus(m.ev)
				}
			case drainTimeout:
				if m.gen == c.gen && c.status == StatusStopping {
					c.logger.Warn("End-of-stream did not arrive, forcing pipeline to NULL", "timeout", c.opts.StopTimeout)
					c.finishStop("drain timeout")
				}
			}
		case <-stats.C:
			if c.status.Active() {
				c.publishStats()
			}
		}
	}
}

// do runs fn on the dispatcher and returns its result.
func (c *Controller) do(fn func() error) error {
	select {
	case <-c.done:
		return ErrClosed
	default:
	}

	reply := make(chan error, 1)
	select {
	case c.mailbox <- call{fn: fn, reply: reply}:
	case <-c.done:
		return ErrClosed
	}
	// The dispatcher may exit with the call still queued.
	select {
	case err := <-reply:
		return err
	case <-c.done:
		select {
		case err := <-reply:
			return err
		default:
			return ErrClosed
		}
	}
}

// post delivers msg unless stop or the dispatcher closes first.
func (c *Controller) post(msg any, stop <-chan struct{}) {
	select {
	case c.mailbox <- msg:
	case <-stop:
	case <-c.done:
	}
}

func (c *Controller) start() error {
	c.mu.RLock()
	g, cfg := c.graph, c.cfg
	c.mu.RUnlock()

	// Files left by an earlier run, whatever their extension, must not
	// count as this run's output.
	c.removeFiles(c.outputGlob())

	var out *Output
	if o, ok := g.Output(); ok {
		out = &Output{Path: o.Path, Extension: o.Extension}
	}

	c.frames.Reset()
	c.resetCounters()

	p, err := c.opts.Framework.Realize(g, c.onSample)
	if err != nil {
		return c.failStart(realizeError("realize", err))
	}

	c.gen++
	c.pipeline = p
	c.pumpStop = make(chan struct{})
	c.pumpDone = make(chan struct{})
	go c.pump(p, c.gen, c.pumpStop, c.pumpDone)

	if err := p.SetState(media.StatePlaying); err != nil {
		c.teardown()
		return c.failStart(realizeError("set state PLAYING", err))
	}

	c.finalized = false
	c.mu.Lock()
	c.output = out
	c.lastErr = nil
	c.startedAt = time.Now()
	c.busEvents = make(map[string]uint64)
	c.mu.Unlock()

	c.logger.Info("Session started",
		"framework", c.opts.Framework.Name(),
		"source", cfg.Source.Kind,
		"preview", cfg.Preview,
		"persist", cfg.Persist,
		"display", cfg.Display)
	c.setStatus(StatusPlaying, "start requested")
	return nil
}

// outputGlob matches every persisted file of the session.
func (c *Controller) outputGlob() string {
	return graph.OutputPath(c.opts.Graph.OutputDir, c.id, "*")
}

func (c *Controller) removeFiles(patterns ...string) int {
	removed := 0
	for _, pattern := range patterns {
		paths, err := filepath.Glob(pattern)
		if err != nil {
			c.logger.Warn("Invalid artifact pattern", "pattern", pattern, "error", err)
			continue
		}
		for _, path := range paths {
			if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
				c.logger.Warn("Failed to remove artifact", "path", path, "error", err)
				continue
			}
			removed++
		}
	}
	return removed
}

func (c *Controller) failStart(fe *FrameworkError) error {
	c.logger.Error("Failed to start pipeline", "error", fe, "category", fe.Category)
	c.mu.Lock()
	c.lastErr = fe
	c.mu.Unlock()
	c.setStatus(StatusError, fe.Message)
	c.publishError(fe)
	return fe
}

// beginStop sends end-of-stream and arms the drain timer. The returned
// channel closes when the session leaves STOPPING.
func (c *Controller) beginStop() chan struct{} {
	c.settled = make(chan struct{})
	c.setStatus(StatusStopping, "stop requested")

	if err := c.pipeline.SendEOS(); err != nil {
		c.logger.Warn("Failed to send end-of-stream, forcing stop", "error", err)
		settled := c.settled
		c.finishStop("end-of-stream rejected")
		return settled
	}

	gen, stop := c.gen, c.pumpStop
	c.drainTimer = time.AfterFunc(c.opts.StopTimeout, func() {
		c.post(drainTimeout{gen: gen}, stop)
	})
	return c.settled
}

// finishStop completes a run that ended without error.
func (c *Controller) finishStop(reason string) {
	c.teardown()
	c.finalize()
	c.setStatus(StatusStopped, reason)
	c.settle()
}

func (c *Controller) fail(fe *FrameworkError) {
	c.logger.Error("Pipeline error", "error", fe.Message, "source", fe.Source, "category", fe.Category, "debug", fe.Debug)
	c.teardown()
	c.mu.Lock()
	c.lastErr = fe
	c.mu.Unlock()
	c.setStatus(StatusError, fe.Message)
	c.publishError(fe)
	c.settle()
}

func (c *Controller) settle() {
	if c.settled != nil {
		close(c.settled)
		c.settled = nil
	}
}

// teardown forces the pipeline to NULL without waiting for drain.
func (c *Controller) teardown() {
	if c.drainTimer != nil {
		c.drainTimer.Stop()
		c.drainTimer = nil
	}
	if c.pipeline == nil {
		return
	}
	// Bus messages already queued for this pipeline are now stale.
	c.gen++
	close(c.pumpStop)
	<-c.pumpDone

	if err := c.pipeline.SetState(media.StateNull); err != nil && !errors.Is(err, media.ErrClosed) {
		c.logger.Warn("Failed to set pipeline to NULL", "error", err)
	}
	if err := c.pipeline.Close(); err != nil {
		c.logger.Warn("Failed to close pipeline", "error", err)
	}
	c.pipeline, c.pumpStop, c.pumpDone = nil, nil, nil
}

// finalize marks the persisted file available once per run.
func (c *Controller) finalize() {
	if c.finalized {
		return
	}
	c.finalized = true

	c.mu.RLock()
	out := c.output
	c.mu.RUnlock()
	if out == nil {
		return
	}

	info, err := waitForFile(out.Path, c.opts.OutputWait, c.opts.OutputInterval)
	if err != nil {
		c.logger.Warn("Persisted output not found", "path", out.Path, "error", err)
		return
	}

	c.mu.Lock()
	c.output.Available = true
	c.output.Size = info.Size()
	c.mu.Unlock()

	c.logger.Info("Output ready", "path", out.Path, "size", info.Size())
	c.opts.Bus.Publish(events.OutputReadyEvent{
		SessionID: c.id,
		Path:      out.Path,
		Size:      info.Size(),
		Timestamp: timestamp(),
	})
}

// waitForFile polls until path exists with a non-zero size.
func waitForFile(path string, wait, interval time.Duration) (os.FileInfo, error) {
	deadline := time.Now().Add(wait)
	for {
		info, err := os.Stat(path)
		if err == nil && info.Size() > 0 {
			return info, nil
		}
		if time.Now().After(deadline) {
			if err == nil {
				err = errors.New("file is empty")
			}
			return nil, fmt.Errorf("wait for %s: %w", path, err)
		}
		time.Sleep(interval)
	}
}

// pump forwards bus events of one pipeline into the mailbox.
func (c *Controller) pump(p media.Pipeline, gen uint64, stop, done chan struct{}) {
	defer close(done)
	for {
		select {
		case <-stop:
			return
		default:
		}
		if ev := p.Pop(c.opts.BusPoll); ev != nil {
			c.post(busMessage{gen: gen, ev: ev}, stop)
		}
	}
}

func (c *Controller) handleBus(ev media.BusEvent) {
	c.mu.Lock()
	c.busEvents[media.EventName(ev)]++
	c.mu.Unlock()

	switch e := ev.(type) {
	case media.EndOfStream:
		switch c.status {
		case StatusStopping:
			c.logger.Info("End-of-stream received")
			c.finishStop("end of stream")
		case StatusPlaying:
			c.logger.Info("Source finished")
			c.finishStop("source finished")
		}
	case media.Error:
		if c.status.Active() {
			c.fail(frameworkErrorFrom(e))
		}
	case media.Warning:
		c.logger.Warn("Pipeline warning", "source", e.Source, "message", e.Message, "debug", e.Debug)
		c.opts.Bus.Publish(events.PipelineWarningEvent{
			SessionID: c.id,
			Source:    e.Source,
			Message:   e.Message,
			Timestamp: timestamp(),
		})
	case media.StateChanged:
		c.logger.Debug("Element state changed", "source", e.Source, "old", e.Old, "new", e.New)
	case media.Tag:
		c.logger.Debug("Stream tags", "source", e.Source, "tags", e.Tags)
	}
}

// onSample runs on a framework streaming thread.
func (c *Controller) onSample(s media.Sample) {
	seq := c.framesIn.Add(1)
	format := convert.ParseFormat(s.Format)
	img, err := convert.ToRGB(s.Data, s.Width, s.Height, format)
	if err != nil {
		c.convErrors.Add(1)
		c.logger.Warn("Dropping frame", "sink", s.Sink, "format", s.Format, "error", err)
		return
	}
	if !c.frames.Push(Frame{Image: img, Seq: seq, PTS: s.PTS, Format: format}) {
		c.logger.Debug("Frame queue full, frame dropped", "seq", seq)
	}
	if s.TraceID != "" {
		c.logger.Debug("Sample queued", "trace_id", s.TraceID, "seq", seq, "pts", s.PTS)
	}
	if c.inter != nil {
		c.inter.offer(img)
	}
}

func (c *Controller) setStatus(to Status, reason string) {
	c.mu.Lock()
	from := c.status
	c.status = to
	c.mu.Unlock()
	if from == to {
		return
	}

	c.logger.Info("Session status changed", "from", from, "to", to, "reason", reason)
	c.opts.Bus.Publish(events.SessionStatusChangedEvent{
		SessionID: c.id,
		From:      string(from),
		To:        string(to),
		Reason:    reason,
		Timestamp: timestamp(),
	})
}

func (c *Controller) publishError(fe *FrameworkError) {
	c.opts.Bus.Publish(events.PipelineErrorEvent{
		SessionID: c.id,
		Source:    fe.Source,
		Message:   fe.Message,
		Debug:     fe.Debug,
		Category:  string(fe.Category),
		Timestamp: timestamp(),
	})
}

func (c *Controller) publishStats() {
	n := c.Counters()
	c.opts.Bus.Publish(events.FrameStatsEvent{
		SessionID:        c.id,
		FramesIn:         n.FramesIn,
		FramesOut:        n.FramesOut,
		Dropped:          n.Dropped,
		ConversionErrors: n.ConversionErrors,
		Timestamp:        timestamp(),
	})
}

func timestamp() string {
	return time.Now().UTC().Format(time.RFC3339)
}
