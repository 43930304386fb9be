package session

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/smazurov/gstgraph/internal/events"
	"github.com/smazurov/gstgraph/internal/graph"
	"github.com/smazurov/gstgraph/internal/logging"
)

const idLength = 8

// Registry holds the sessions of this process keyed by id.
type Registry struct {
	opts   Options
	logger *slog.Logger

	mu       sync.RWMutex
	sessions map[string]*Controller
	defaults Config
}

// NewRegistry returns an empty registry. opts.Framework is required.
func NewRegistry(opts Options) *Registry {
	if opts.Framework == nil {
		panic("session: Options.Framework is required")
	}
	return &Registry{
		opts:     opts.withDefaults(),
		logger:   logging.GetLogger("session"),
		sessions: make(map[string]*Controller),
		defaults: DefaultConfig(),
	}
}

// NewID returns a random 8-letter lowercase session id.
func NewID() string {
	u := uuid.New()
	id := make([]byte, idLength)
	for i := range id {
		id[i] = 'a' + u[i]%26
	}
	return string(id)
}

// Defaults returns the configuration given to new sessions.
func (r *Registry) Defaults() Config {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.defaults
}

// SetDefaults replaces the configuration for new sessions after checking
// it builds.
func (r *Registry) SetDefaults(cfg Config) error {
	opts := r.opts.Graph
	opts.SessionID = "defaults"
	if _, err := graph.Build(cfg.Spec(), opts); err != nil {
		return fmt.Errorf("invalid defaults: %w", err)
	}
	r.mu.Lock()
	r.defaults = cfg
	r.mu.Unlock()
	return nil
}

// Create starts a new session with the default configuration.
func (r *Registry) Create() (*Controller, error) {
	return r.GetOrCreate("")
}

// GetOrCreate returns the session for id, creating it on first access.
// An empty id always creates a session with a fresh id.
func (r *Registry) GetOrCreate(id string) (*Controller, error) {
	return r.getOrCreate(id, nil)
}

// CreateWithConfig is GetOrCreate with cfg in place of the defaults. An
// existing session is reconfigured, which fails with ErrBusy while it
// runs.
func (r *Registry) CreateWithConfig(id string, cfg Config) (*Controller, error) {
	return r.getOrCreate(id, &cfg)
}

func (r *Registry) getOrCreate(id string, cfg *Config) (*Controller, error) {
	if id != "" {
		if c, err := r.Get(id); err == nil {
			return c, reconfigure(c, cfg)
		}
	}

	r.mu.Lock()
	if id == "" {
		id = NewID()
		for r.sessions[id] != nil {
			id = NewID()
		}
	} else if c, ok := r.sessions[id]; ok {
		r.mu.Unlock()
		return c, reconfigure(c, cfg)
	}

	initial := r.defaults
	if cfg != nil {
		initial = *cfg
	}
	c, err := newController(id, initial, r.opts)
	if err != nil {
		r.mu.Unlock()
		return nil, err
	}
	r.sessions[id] = c
	r.mu.Unlock()

	r.logger.Info("Session created", "session_id", id)
	r.opts.Bus.Publish(events.SessionCreatedEvent{SessionID: id, Timestamp: timestamp()})
	return c, nil
}

func reconfigure(c *Controller, cfg *Config) error {
	if cfg == nil {
		return nil
	}
	return c.Configure(*cfg)
}

// Get returns the session for id or ErrNotFound.
func (r *Registry) Get(id string) (*Controller, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return c, nil
}

// List returns every session, oldest first.
func (r *Registry) List() []*Controller {
	r.mu.RLock()
	out := make([]*Controller, 0, len(r.sessions))
	for _, c := range r.sessions {
		out = append(out, c)
	}
	r.mu.RUnlock()

	slices.SortFunc(out, func(a, b *Controller) int {
		if n := a.createdAt.Compare(b.createdAt); n != 0 {
			return n
		}
		return cmp.Compare(a.id, b.id)
	})
	return out
}

// Remove stops and forgets the session.
func (r *Registry) Remove(ctx context.Context, id string) error {
	r.mu.Lock()
	c, ok := r.sessions[id]
	delete(r.sessions, id)
	r.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	err := c.Close(ctx)
	r.logger.Info("Session removed", "session_id", id)
	r.opts.Bus.Publish(events.SessionDeletedEvent{SessionID: id, Timestamp: timestamp()})
	return err
}

// Close removes every session. Each gets at most timeout to stop
// gracefully.
func (r *Registry) Close(timeout time.Duration) error {
	r.mu.RLock()
	ids := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	r.mu.RUnlock()

	var errs []error
	for _, id := range ids {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		if err := r.Remove(ctx, id); err != nil && !errors.Is(err, ErrNotFound) {
			errs = append(errs, fmt.Errorf("session %s: %w", id, err))
		}
		cancel()
	}
	return errors.Join(errs...)
}
