// Package collectors feeds the metrics package from the event bus.
package collectors

import (
	"log/slog"
	"sync"

	"github.com/smazurov/gstgraph/internal/events"
	"github.com/smazurov/gstgraph/internal/logging"
	"github.com/smazurov/gstgraph/internal/metrics"
)

// BusCollector translates session events into metric updates.
type BusCollector struct {
	bus      *events.Bus
	logger   *slog.Logger
	unsubs   []func()
	stopOnce sync.Once
}

// NewBusCollector creates a collector for bus.
func NewBusCollector(bus *events.Bus) *BusCollector {
	return &BusCollector{
		bus:    bus,
		logger: logging.GetLogger("metrics"),
	}
}

// Start subscribes to the bus.
func (c *BusCollector) Start() {
	c.unsubs = append(c.unsubs,
		events.Subscribe(c.bus, func(e events.SessionCreatedEvent) {
			metrics.SetSessionStatus(e.SessionID, "CREATED")
		}),
		events.Subscribe(c.bus, func(e events.SessionStatusChangedEvent) {
			metrics.SetSessionStatus(e.SessionID, e.To)
		}),
		events.Subscribe(c.bus, func(e events.SessionDeletedEvent) {
			metrics.DeleteSession(e.SessionID)
		}),
		events.Subscribe(c.bus, func(e events.FrameStatsEvent) {
			metrics.SetFrameStats(e.SessionID, metrics.FrameStats{
				In:               e.FramesIn,
				Out:              e.FramesOut,
				Dropped:          e.Dropped,
				ConversionErrors: e.ConversionErrors,
			})
		}),
		events.Subscribe(c.bus, func(e events.PipelineErrorEvent) {
			metrics.IncPipelineError(e.Category)
		}),
		events.Subscribe(c.bus, func(events.PipelineWarningEvent) {
			metrics.IncPipelineWarning()
		}),
		events.Subscribe(c.bus, func(e events.OutputReadyEvent) {
			metrics.ObserveOutput(e.Size)
		}),
	)
	c.logger.Debug("Metrics collector subscribed", "subscriptions", len(c.unsubs))
}

// Stop unsubscribes from the bus.
func (c *BusCollector) Stop() {
	c.stopOnce.Do(func() {
		for _, unsub := range c.unsubs {
			unsub()
		}
		c.unsubs = nil
	})
}
