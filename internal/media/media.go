// Package media defines what the session layer needs from a media
// framework: realizing a sealed graph, driving pipeline state, and
// reading bus events and preview samples.
package media

import (
	"errors"
	"time"

	"github.com/smazurov/gstgraph/internal/graph"
)

// State mirrors the framework pipeline states.
type State int

const (
	StateVoidPending State = iota
	StateNull
	StateReady
	StatePaused
	StatePlaying
)

func (s State) String() string {
	switch s {
	case StateNull:
		return "NULL"
	case StateReady:
		return "READY"
	case StatePaused:
		return "PAUSED"
	case StatePlaying:
		return "PLAYING"
	default:
		return "VOID_PENDING"
	}
}

// Sample is one raw frame pulled from a preview sink. Data is owned by
// the receiver.
type Sample struct {
	Sink    string
	Width   int
	Height  int
	Format  string
	PTS     time.Duration
	Data    []byte
	TraceID string
}

// SampleHandler is called from a framework streaming thread. It must
// not block.
type SampleHandler func(Sample)

// Framework turns sealed graphs into pipelines.
type Framework interface {
	// Name identifies the implementation in logs and the API.
	Name() string
	// Realize creates every element, sets properties and links them. A
	// failed link (caps negotiation) is returned as an error. The
	// pipeline is left in StateNull.
	Realize(g *graph.Graph, onSample SampleHandler) (Pipeline, error)
}

// Pipeline is a realized graph.
type Pipeline interface {
	SetState(State) error
	// SendEOS injects end-of-stream at the sources so sinks can finalize.
	SendEOS() error
	// Pop waits up to timeout for the next bus event. It returns nil on
	// timeout.
	Pop(timeout time.Duration) BusEvent
	// Close releases the pipeline. It sets StateNull first if needed.
	Close() error
}

// ErrClosed is returned by operations on a closed pipeline.
var ErrClosed = errors.New("pipeline closed")
