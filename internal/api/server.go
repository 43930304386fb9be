// Package api serves the session operations over HTTP with huma.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humago"

	"github.com/smazurov/gstgraph/internal/api/models"
	"github.com/smazurov/gstgraph/internal/events"
	"github.com/smazurov/gstgraph/internal/logging"
	"github.com/smazurov/gstgraph/internal/session"
	"github.com/smazurov/gstgraph/internal/version"
	"github.com/smazurov/gstgraph/ui"
)

const (
	defaultFrameTimeout = time.Second
	defaultJPEGQuality  = 85
)

// Options configures the API server.
type Options struct {
	Registry       *session.Registry
	Bus            *events.Bus
	Framework      string        // reported by /api/version
	MetricsHandler http.Handler  // optional Prometheus handler served at /metrics
	FrameTimeout   time.Duration // default wait of GET .../frame
	JPEGQuality    int
	CORS           CORSConfig
}

// Server is the huma API server.
type Server struct {
	api        huma.API
	mux        *http.ServeMux
	httpServer *http.Server
	registry   *session.Registry
	eventBus   *events.Bus
	options    Options
	logger     *slog.Logger
}

// NewServer builds the API and registers every route.
func NewServer(opts Options) *Server {
	if opts.Registry == nil {
		panic("api: Options.Registry is required")
	}
	if opts.FrameTimeout <= 0 {
		opts.FrameTimeout = defaultFrameTimeout
	}
	if opts.JPEGQuality <= 0 {
		opts.JPEGQuality = defaultJPEGQuality
	}
	if opts.CORS.AllowOrigin == "" {
		opts.CORS = DefaultCORSConfig()
	}

	mux := http.NewServeMux()
	AddCORSHandler(mux, opts.CORS)

	config := huma.DefaultConfig("gstgraph API", version.String())
	config.Info.Description = "Live video graph sessions: preview frames, persisted output and lifecycle control"
	// Relative paths so the docs work behind any host.
	config.Servers = []*huma.Server{}

	api := humago.New(mux, config)
	api.UseMiddleware(NewCORSMiddleware(opts.CORS))
	api.UseMiddleware(HTTPLoggingMiddleware)

	s := &Server{
		api:      api,
		mux:      mux,
		registry: opts.Registry,
		eventBus: opts.Bus,
		options:  opts,
		logger:   logging.GetLogger("api"),
	}

	if opts.MetricsHandler != nil {
		mux.Handle("GET /metrics", opts.MetricsHandler)
	}

	s.registerRoutes()

	if uiHandler, err := ui.Handler(); err == nil {
		mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
			if strings.HasPrefix(r.URL.Path, "/api") {
				http.NotFound(w, r)
				return
			}
			uiHandler.ServeHTTP(w, r)
		})
	} else {
		s.logger.Warn("Operator page unavailable", "error", err)
	}
	return s
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// API returns the huma API instance.
func (s *Server) API() huma.API {
	return s.api
}

// Start serves on addr until Stop is called.
func (s *Server) Start(addr string) error {
	s.logger.Info("Starting API server", "addr", addr)
	s.logger.Info("OpenAPI documentation available", "url", "http://"+addr+"/docs")

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s.httpServer.ListenAndServe()
}

// Stop closes the listener and every open connection, including SSE
// streams that would otherwise keep a graceful shutdown waiting.
func (s *Server) Stop() error {
	s.logger.Info("Stopping API server")
	if s.httpServer != nil {
		return s.httpServer.Close()
	}
	return nil
}

func (s *Server) registerRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "health-check",
		Method:      http.MethodGet,
		Path:        "/api/health",
		Summary:     "Health",
		Description: "Check API health status",
		Tags:        []string{"health"},
	}, func(ctx context.Context, input *struct{}) (*models.HealthResponse, error) {
		return &models.HealthResponse{
			Body: models.HealthData{
				Status:   "ok",
				Message:  "API is healthy",
				Sessions: len(s.registry.List()),
			},
		}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "get-version",
		Method:      http.MethodGet,
		Path:        "/api/version",
		Summary:     "Version",
		Description: "Get application version information",
		Tags:        []string{"system"},
	}, func(ctx context.Context, input *struct{}) (*models.VersionResponse, error) {
		return &models.VersionResponse{Body: version.Get(s.options.Framework)}, nil
	})

	s.registerSessionRoutes()
	s.registerFrameRoutes()
	s.registerDefaultsRoutes()
	s.registerLogRoutes()
	s.registerSSERoutes()
}
