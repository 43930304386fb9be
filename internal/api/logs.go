package api

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/sse"

	"github.com/smazurov/gstgraph/internal/api/models"
	"github.com/smazurov/gstgraph/internal/events"
	"github.com/smazurov/gstgraph/internal/logging"
)

// LogEvent converts a history entry for the event bus.
func LogEvent(e logging.Entry) events.LogEntryEvent {
	return events.LogEntryEvent{
		Seq:        e.Seq,
		Timestamp:  e.Timestamp.Format(time.RFC3339Nano),
		Level:      e.Level,
		Module:     e.Module,
		Message:    e.Message,
		Attributes: e.Attributes,
	}
}

func (s *Server) registerLogRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "get-logs",
		Method:      http.MethodGet,
		Path:        "/api/logs",
		Summary:     "Get Logs",
		Description: "Get recent log entries from the in-memory history",
		Tags:        []string{"logs"},
	}, func(ctx context.Context, input *models.LogsInput) (*models.LogsResponse, error) {
		var entries []logging.Entry
		if h := logging.GetHistory(); h != nil {
			entries = h.Filter(input.Level, input.Module)
		}
		if input.Limit > 0 && len(entries) > input.Limit {
			entries = entries[len(entries)-input.Limit:]
		}
		if entries == nil {
			entries = []logging.Entry{}
		}
		return &models.LogsResponse{
			Body: models.LogsData{Entries: entries, Count: len(entries)},
		}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "get-log-levels",
		Method:      http.MethodGet,
		Path:        "/api/logs/levels",
		Summary:     "Get Log Levels",
		Description: "Get the effective level of each module logger",
		Tags:        []string{"logs"},
	}, func(ctx context.Context, input *struct{}) (*models.LogLevelsResponse, error) {
		return &models.LogLevelsResponse{Body: models.LogLevelsData{Levels: logging.Levels()}}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "set-log-level",
		Method:      http.MethodPut,
		Path:        "/api/logs/levels/{module}",
		Summary:     "Set Log Level",
		Description: "Change one module's level at runtime",
		Tags:        []string{"logs"},
		Errors:      []int{400},
	}, func(ctx context.Context, input *models.SetLogLevelInput) (*models.LogLevelsResponse, error) {
		if err := logging.SetModuleLevel(input.Module, input.Body.Level); err != nil {
			return nil, huma.Error400BadRequest(err.Error(), err)
		}
		return &models.LogLevelsResponse{Body: models.LogLevelsData{Levels: logging.Levels()}}, nil
	})

	sse.Register(s.api, huma.Operation{
		OperationID: "logs-stream",
		Method:      http.MethodGet,
		Path:        "/api/logs/stream",
		Summary:     "Log Stream",
		Description: "Real-time log streaming via Server-Sent Events. Sends the history first, then new entries; seq orders both",
		Tags:        []string{"logs"},
	}, map[string]any{
		"message": events.LogEntryEvent{},
	}, func(ctx context.Context, _ *struct{}, send sse.Sender) {
		// Subscribe before replaying so nothing logged in between is lost.
		eventCh := make(chan any, 100)
		unsubscribe := events.SubscribeToChannel[events.LogEntryEvent](s.eventBus, eventCh)
		defer unsubscribe()

		var lastSeq uint64
		if h := logging.GetHistory(); h != nil {
			for _, e := range h.Tail(0) {
				if err := send.Data(LogEvent(e)); err != nil {
					return
				}
				lastSeq = e.Seq
			}
		}

		for {
			select {
			case <-ctx.Done():
				return
			case ev := <-eventCh:
				if le, ok := ev.(events.LogEntryEvent); ok && le.Seq != 0 && le.Seq <= lastSeq {
					continue
				}
				if err := send.Data(ev); err != nil {
					return
				}
			}
		}
	})
}
