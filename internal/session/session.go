// Package session drives one live graph per operator session through
// its lifecycle and exposes the decoded preview frames.
//
// Every status change happens on a per-session dispatcher goroutine.
// Commands (start, stop, reset, configure) and framework bus events are
// messages on its mailbox, so a status is never written from a framework
// thread.
package session

import (
	"time"

	"github.com/smazurov/gstgraph/internal/convert"
	"github.com/smazurov/gstgraph/internal/graph"
)

// Status is the lifecycle state of a session.
type Status string

const (
	StatusCreated  Status = "CREATED"
	StatusPlaying  Status = "PLAYING"
	StatusStopping Status = "STOPPING"
	StatusStopped  Status = "STOPPED"
	StatusError    Status = "ERROR"
)

// Statuses lists every status, used for metrics labels.
var Statuses = []Status{StatusCreated, StatusPlaying, StatusStopping, StatusStopped, StatusError}

// Active reports whether a pipeline exists in this status.
func (s Status) Active() bool {
	return s == StatusPlaying || s == StatusStopping
}

// Config holds the operator's toggles.
type Config struct {
	Source    graph.SourceSpec `json:"source" toml:"source"`
	Preview   bool             `json:"preview" toml:"preview" doc:"Deliver decoded frames to the preview queue"`
	Persist   bool             `json:"persist" toml:"persist" doc:"Encode to a file under the output directory"`
	Extension string           `json:"extension,omitempty" toml:"extension" enum:"mp4,h264,jpg,jpeg,png" doc:"Persisted file type"`
	Display   bool             `json:"display" toml:"display" doc:"Show the stream on a local video sink"`
	Leaky     bool             `json:"leaky,omitempty" toml:"leaky" doc:"Let the display queue drop old buffers"`
}

// DefaultConfig is a bouncing ball previewed in the browser.
func DefaultConfig() Config {
	return Config{
		Source: graph.SourceSpec{
			Kind:          graph.SourcePattern,
			Pattern:       graph.DefaultPattern,
			Motion:        "wavy",
			AnimationMode: "frames",
		},
		Preview:   true,
		Extension: "mp4",
	}
}

// Spec turns the toggles into the builder's branch list.
func (c Config) Spec() graph.Spec {
	spec := graph.Spec{Source: c.Source}
	if c.Preview {
		spec.Branches = append(spec.Branches, graph.BranchSpec{Kind: graph.BranchPreview})
	}
	if c.Persist {
		spec.Branches = append(spec.Branches, graph.BranchSpec{Kind: graph.BranchPersist, Extension: c.Extension})
	}
	if c.Display {
		spec.Branches = append(spec.Branches, graph.BranchSpec{Kind: graph.BranchDisplay, Leaky: c.Leaky})
	}
	return spec
}

// Frame is one converted preview frame.
type Frame struct {
	Image  *convert.RGBImage
	Seq    uint64
	PTS    time.Duration
	Format convert.Format
}

// Output describes the persisted file of the last run.
type Output struct {
	Path      string `json:"path" example:"output/qzmfkrta_output.mp4"`
	Extension string `json:"extension" example:"mp4"`
	Available bool   `json:"available" doc:"The file was finalized and exists on disk"`
	Size      int64  `json:"size,omitempty" doc:"File size in bytes once available"`
}

// Counters are the frame counters of the current run.
type Counters struct {
	FramesIn         uint64 `json:"frames_in"`
	FramesOut        uint64 `json:"frames_out"`
	Dropped          uint64 `json:"dropped"`
	ConversionErrors uint64 `json:"conversion_errors"`
	Queued           int    `json:"queued"`
}

// Snapshot is a consistent copy of a session's state.
type Snapshot struct {
	ID        string            `json:"id" example:"qzmfkrta"`
	Status    Status            `json:"status" enum:"CREATED,PLAYING,STOPPING,STOPPED,ERROR"`
	Config    Config            `json:"config"`
	Output    *Output           `json:"output,omitempty"`
	Counters  Counters          `json:"counters"`
	BusEvents map[string]uint64 `json:"bus_events,omitempty" doc:"Bus messages seen, by kind"`
	CreatedAt time.Time         `json:"created_at"`
	StartedAt *time.Time        `json:"started_at,omitempty"`
	LastError string            `json:"last_error,omitempty"`
}
