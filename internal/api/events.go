package api

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/sse"

	"github.com/smazurov/gstgraph/internal/events"
)

// registerSSERoutes registers the session event stream.
func (s *Server) registerSSERoutes() {
	sse.Register(s.api, huma.Operation{
		OperationID: "events-stream",
		Method:      http.MethodGet,
		Path:        "/api/events",
		Summary:     "Server-Sent Events Stream",
		Description: "Real-time session lifecycle, output, error and frame counter events",
		Tags:        []string{"events"},
	}, map[string]any{
		"session-created":        events.SessionCreatedEvent{},
		"session-deleted":        events.SessionDeletedEvent{},
		"session-status-changed": events.SessionStatusChangedEvent{},
		"output-ready":           events.OutputReadyEvent{},
		"pipeline-error":         events.PipelineErrorEvent{},
		"pipeline-warning":       events.PipelineWarningEvent{},
		"frame-stats":            events.FrameStatsEvent{},
		"defaults-reloaded":      events.DefaultsReloadedEvent{},
	}, func(ctx context.Context, _ *struct{}, send sse.Sender) {
		eventCh := make(chan any, 32)

		unsubscribers := []func(){
			events.SubscribeToChannel[events.SessionCreatedEvent](s.eventBus, eventCh),
			events.SubscribeToChannel[events.SessionDeletedEvent](s.eventBus, eventCh),
			events.SubscribeToChannel[events.SessionStatusChangedEvent](s.eventBus, eventCh),
			events.SubscribeToChannel[events.OutputReadyEvent](s.eventBus, eventCh),
			events.SubscribeToChannel[events.PipelineErrorEvent](s.eventBus, eventCh),
			events.SubscribeToChannel[events.PipelineWarningEvent](s.eventBus, eventCh),
			events.SubscribeToChannel[events.FrameStatsEvent](s.eventBus, eventCh),
			events.SubscribeToChannel[events.DefaultsReloadedEvent](s.eventBus, eventCh),
		}
		defer func() {
			for _, unsub := range unsubscribers {
				unsub()
			}
		}()

		// Current state first, so a client that connects late is in sync.
		for _, c := range s.registry.List() {
			snap := c.Snapshot()
			if err := send.Data(events.SessionStatusChangedEvent{
				SessionID: snap.ID,
				To:        string(snap.Status),
				Reason:    "current status",
				Timestamp: snap.CreatedAt.UTC().Format(time.RFC3339),
			}); err != nil {
				return
			}
		}

		for {
			select {
			case <-ctx.Done():
				return
			case event := <-eventCh:
				if err := send.Data(event); err != nil {
					return
				}
			}
		}
	})
}
