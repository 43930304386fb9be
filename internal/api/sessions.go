package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/smazurov/gstgraph/internal/api/models"
	"github.com/smazurov/gstgraph/internal/framequeue"
	"github.com/smazurov/gstgraph/internal/graph"
	"github.com/smazurov/gstgraph/internal/session"
)

func (s *Server) registerSessionRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "list-sessions",
		Method:      http.MethodGet,
		Path:        "/api/sessions",
		Summary:     "List Sessions",
		Description: "List every live session with its status, configuration and frame counters",
		Tags:        []string{"sessions"},
	}, func(ctx context.Context, input *struct{}) (*models.SessionListResponse, error) {
		list := s.registry.List()
		snaps := make([]session.Snapshot, 0, len(list))
		for _, c := range list {
			snaps = append(snaps, c.Snapshot())
		}
		return &models.SessionListResponse{
			Body: models.SessionListData{Sessions: snaps, Count: len(snaps)},
		}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID:   "create-session",
		Method:        http.MethodPost,
		Path:          "/api/sessions",
		Summary:       "Create Session",
		Description:   "Create a session, or return the existing one when the id is taken",
		Tags:          []string{"sessions"},
		DefaultStatus: http.StatusCreated,
		Errors:        []int{400, 409},
	}, func(ctx context.Context, input *models.CreateSessionInput) (*models.SessionResponse, error) {
		var (
			id  string
			cfg *session.Config
		)
		if input.Body != nil {
			id, cfg = input.Body.ID, input.Body.Config
		}

		var (
			c   *session.Controller
			err error
		)
		if cfg != nil {
			c, err = s.registry.CreateWithConfig(id, *cfg)
		} else {
			c, err = s.registry.GetOrCreate(id)
		}
		if err != nil {
			return nil, s.mapSessionError(err)
		}
		return &models.SessionResponse{Body: c.Snapshot()}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "get-session",
		Method:      http.MethodGet,
		Path:        "/api/sessions/{id}",
		Summary:     "Get Session",
		Description: "Get the status, configuration, output and counters of a session",
		Tags:        []string{"sessions"},
		Errors:      []int{404},
	}, func(ctx context.Context, input *models.SessionPathInput) (*models.SessionResponse, error) {
		c, err := s.registry.Get(input.ID)
		if err != nil {
			return nil, s.mapSessionError(err)
		}
		return &models.SessionResponse{Body: c.Snapshot()}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "delete-session",
		Method:      http.MethodDelete,
		Path:        "/api/sessions/{id}",
		Summary:     "Delete Session",
		Description: "Stop the session's pipeline, forget the session and delete its output files",
		Tags:        []string{"sessions"},
		Errors:      []int{404},
	}, func(ctx context.Context, input *models.SessionPathInput) (*models.MessageResponse, error) {
		c, err := s.registry.Get(input.ID)
		if err != nil {
			return nil, s.mapSessionError(err)
		}
		if err := s.registry.Remove(ctx, input.ID); err != nil {
			if errors.Is(err, session.ErrNotFound) {
				return nil, s.mapSessionError(err)
			}
			// The session is gone either way; a failed drain is only logged.
			s.logger.Warn("Session did not stop cleanly", "session_id", input.ID, "error", err)
		}
		if _, err := c.RemoveArtifacts(); err != nil {
			s.logger.Warn("Failed to remove session artifacts", "session_id", input.ID, "error", err)
		}
		return &models.MessageResponse{Body: models.MessageData{Message: "Session deleted"}}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "configure-session",
		Method:      http.MethodPut,
		Path:        "/api/sessions/{id}/config",
		Summary:     "Configure Session",
		Description: "Replace the source and branch toggles. Rejected while the session is playing",
		Tags:        []string{"sessions"},
		Errors:      []int{400, 404, 409},
	}, func(ctx context.Context, input *models.ConfigureSessionInput) (*models.SessionResponse, error) {
		c, err := s.registry.Get(input.ID)
		if err != nil {
			return nil, s.mapSessionError(err)
		}
		if err := c.Configure(input.Body); err != nil {
			return nil, s.mapSessionError(err)
		}
		return &models.SessionResponse{Body: c.Snapshot()}, nil
	})

	s.registerCommand("start-session", "start", "Start Session",
		"Realize the configured graph and set it PLAYING. A playing session is stopped first",
		func(ctx context.Context, c *session.Controller) error { return c.Start(ctx) })

	s.registerCommand("stop-session", "stop", "Stop Session",
		"Send end-of-stream, wait for the pipeline to drain and finalize the persisted file",
		func(ctx context.Context, c *session.Controller) error { return c.Stop(ctx) })

	s.registerCommand("reset-session", "reset", "Reset Session",
		"Tear down any pipeline, clear queued frames and return to CREATED",
		func(_ context.Context, c *session.Controller) error { return c.Reset() })

	huma.Register(s.api, huma.Operation{
		OperationID: "get-session-graph",
		Method:      http.MethodGet,
		Path:        "/api/sessions/{id}/graph",
		Summary:     "Get Session Graph",
		Description: "Get the configured graph as nodes, links and a launch-string description",
		Tags:        []string{"sessions"},
		Errors:      []int{404},
	}, func(ctx context.Context, input *models.SessionPathInput) (*models.GraphResponse, error) {
		c, err := s.registry.Get(input.ID)
		if err != nil {
			return nil, s.mapSessionError(err)
		}
		g := c.Graph()
		data := models.GraphData{
			Description: graph.Describe(g),
			Nodes:       g.Nodes(),
			Links:       g.Links(),
		}
		if out, ok := g.Output(); ok {
			data.Output = &out
		}
		return &models.GraphResponse{Body: data}, nil
	})
}

// registerCommand registers POST /api/sessions/{id}/<verb>.
func (s *Server) registerCommand(opID, verb, summary, description string, run func(context.Context, *session.Controller) error) {
	huma.Register(s.api, huma.Operation{
		OperationID: opID,
		Method:      http.MethodPost,
		Path:        "/api/sessions/{id}/" + verb,
		Summary:     summary,
		Description: description,
		Tags:        []string{"sessions"},
		Errors:      []int{404, 409, 500},
	}, func(ctx context.Context, input *models.SessionPathInput) (*models.SessionResponse, error) {
		c, err := s.registry.Get(input.ID)
		if err != nil {
			return nil, s.mapSessionError(err)
		}
		if err := run(ctx, c); err != nil {
			return nil, s.mapSessionError(err)
		}
		return &models.SessionResponse{Body: c.Snapshot()}, nil
	})
}

// mapSessionError converts domain errors to huma status errors.
func (s *Server) mapSessionError(err error) error {
	var fwErr *session.FrameworkError
	switch {
	case graph.IsConfigurationError(err):
		return huma.Error400BadRequest(err.Error(), err)
	case errors.Is(err, session.ErrNotFound):
		return huma.Error404NotFound("session not found", err)
	case errors.Is(err, session.ErrBusy):
		return huma.Error409Conflict("session is playing; stop it first", err)
	case errors.Is(err, session.ErrSessionFailed):
		return huma.Error409Conflict("session is in ERROR; reset it first", err)
	case errors.Is(err, framequeue.ErrTimeout):
		return huma.NewError(http.StatusGatewayTimeout, "no frame available yet", err)
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return huma.NewError(http.StatusGatewayTimeout, "request ended before the session settled", err)
	case errors.As(err, &fwErr):
		return huma.Error500InternalServerError(fwErr.Error(), err)
	default:
		s.logger.Error("Unexpected session error", "error", err)
		return huma.Error500InternalServerError("internal server error", err)
	}
}
