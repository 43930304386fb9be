package events

// Event type constants for kelindar/event.
const (
	TypeSessionCreated uint32 = iota + 1
	TypeSessionDeleted
	TypeSessionStatusChanged
	TypeOutputReady
	TypePipelineError
	TypePipelineWarning
	TypeFrameStats
	TypeLogEntry
	TypeDefaultsReloaded
)

// Event interface required by kelindar/event.
type Event interface {
	Type() uint32
}

// SessionCreatedEvent is published when the registry creates a session.
type SessionCreatedEvent struct {
	SessionID string `json:"session_id" example:"qzmfkrta" doc:"Session identifier"`
	Timestamp string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

func (e SessionCreatedEvent) Type() uint32 { return TypeSessionCreated }

// SessionDeletedEvent is published after a session is torn down.
type SessionDeletedEvent struct {
	SessionID string `json:"session_id" example:"qzmfkrta" doc:"Session identifier"`
	Timestamp string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

func (e SessionDeletedEvent) Type() uint32 { return TypeSessionDeleted }

// SessionStatusChangedEvent reports a lifecycle transition.
type SessionStatusChangedEvent struct {
	SessionID string `json:"session_id" example:"qzmfkrta" doc:"Session identifier"`
	From      string `json:"from" example:"PLAYING" doc:"Previous status"`
	To        string `json:"to" example:"STOPPING" doc:"New status"`
	Reason    string `json:"reason,omitempty" example:"stop requested" doc:"What caused the transition"`
	Timestamp string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

func (e SessionStatusChangedEvent) Type() uint32 { return TypeSessionStatusChanged }

// OutputReadyEvent is published once a persisted file has been finalized.
type OutputReadyEvent struct {
	SessionID string `json:"session_id" example:"qzmfkrta" doc:"Session identifier"`
	Path      string `json:"path" example:"output/qzmfkrta_output.mp4" doc:"Output file path"`
	Size      int64  `json:"size" example:"1048576" doc:"File size in bytes"`
	Timestamp string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

func (e OutputReadyEvent) Type() uint32 { return TypeOutputReady }

// PipelineErrorEvent carries a fatal framework error.
type PipelineErrorEvent struct {
	SessionID string `json:"session_id" example:"qzmfkrta" doc:"Session identifier"`
	Source    string `json:"source" example:"filesrc0" doc:"Element that posted the error"`
	Message   string `json:"message" example:"Resource not found." doc:"Error message"`
	Debug     string `json:"debug,omitempty" doc:"Framework debug string"`
	Category  string `json:"category" example:"resource" doc:"Error category"`
	Timestamp string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

func (e PipelineErrorEvent) Type() uint32 { return TypePipelineError }

// PipelineWarningEvent carries a non-fatal framework warning.
type PipelineWarningEvent struct {
	SessionID string `json:"session_id" example:"qzmfkrta" doc:"Session identifier"`
	Source    string `json:"source" example:"x264enc0" doc:"Element that posted the warning"`
	Message   string `json:"message" doc:"Warning message"`
	Timestamp string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

func (e PipelineWarningEvent) Type() uint32 { return TypePipelineWarning }

// FrameStatsEvent is a periodic snapshot of a playing session's counters.
type FrameStatsEvent struct {
	SessionID        string `json:"session_id" example:"qzmfkrta" doc:"Session identifier"`
	FramesIn         uint64 `json:"frames_in" doc:"Samples received from preview sinks"`
	FramesOut        uint64 `json:"frames_out" doc:"Frames handed to consumers"`
	Dropped          uint64 `json:"dropped" doc:"Frames dropped because the queue was full"`
	ConversionErrors uint64 `json:"conversion_errors" doc:"Samples that could not be converted"`
	Timestamp        string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

func (e FrameStatsEvent) Type() uint32 { return TypeFrameStats }

// LogEntryEvent represents a log entry for SSE streaming.
type LogEntryEvent struct {
	Seq        uint64         `json:"seq" example:"42" doc:"Monotonic sequence number for deduplication"`
	Timestamp  string         `json:"timestamp" example:"2025-01-09T10:30:00.123Z" doc:"Log timestamp"`
	Level      string         `json:"level" example:"info" doc:"Log level"`
	Module     string         `json:"module" example:"session" doc:"Source module"`
	Message    string         `json:"message" doc:"Log message"`
	Attributes map[string]any `json:"attributes,omitempty" doc:"Structured log attributes"`
}

func (e LogEntryEvent) Type() uint32 { return TypeLogEntry }

// DefaultsReloadedEvent is published when the defaults file changes on disk.
type DefaultsReloadedEvent struct {
	Path      string `json:"path" example:"config.toml" doc:"Reloaded file"`
	Timestamp string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

func (e DefaultsReloadedEvent) Type() uint32 { return TypeDefaultsReloaded }
