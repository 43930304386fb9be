package session

import (
	"errors"
	"fmt"

	"github.com/smazurov/gstgraph/internal/media"
)

var (
	// ErrSessionFailed is returned by Start while the session is in ERROR.
	ErrSessionFailed = errors.New("session failed, reset required")
	// ErrBusy rejects reconfiguration of a running session.
	ErrBusy = errors.New("session is running")
	// ErrNotFound is returned by the registry for unknown ids.
	ErrNotFound = errors.New("session not found")
	// ErrClosed is returned after the session was removed.
	ErrClosed = errors.New("session closed")
)

// FrameworkError is a fatal error reported by the media framework.
type FrameworkError struct {
	Source   string
	Message  string
	Debug    string
	Category media.ErrorCategory
}

func (e *FrameworkError) Error() string {
	if e.Source == "" {
		return fmt.Sprintf("%s error: %s", e.Category, e.Message)
	}
	return fmt.Sprintf("%s error from %s: %s", e.Category, e.Source, e.Message)
}

func frameworkErrorFrom(ev media.Error) *FrameworkError {
	return &FrameworkError{Source: ev.Source, Message: ev.Message, Debug: ev.Debug, Category: ev.Category}
}

// realizeError wraps a failure to build or start a pipeline.
func realizeError(stage string, err error) *FrameworkError {
	msg := err.Error()
	return &FrameworkError{
		Message:  fmt.Sprintf("%s: %s", stage, msg),
		Category: media.Classify(msg, ""),
	}
}
