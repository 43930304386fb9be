// Package models holds the request and response bodies of the HTTP API.
package models

import (
	"github.com/smazurov/gstgraph/internal/graph"
	"github.com/smazurov/gstgraph/internal/logging"
	"github.com/smazurov/gstgraph/internal/session"
	"github.com/smazurov/gstgraph/internal/version"
)

// Health check models
type HealthData struct {
	Status   string `json:"status" example:"ok" doc:"Service status"`
	Message  string `json:"message" example:"API is healthy" doc:"Status message"`
	Sessions int    `json:"sessions" example:"2" doc:"Number of live sessions"`
}

type HealthResponse struct {
	Body HealthData
}

type VersionResponse struct {
	Body version.Info
}

// Session models
type SessionPathInput struct {
	ID string `path:"id" minLength:"1" maxLength:"64" example:"qzmfkrta" doc:"Session identifier"`
}

type CreateSessionData struct {
	ID     string          `json:"id,omitempty" maxLength:"64" pattern:"^[a-z0-9_-]+$" example:"operator" doc:"Optional id; an existing session with this id is returned"`
	Config *session.Config `json:"config,omitempty" doc:"Initial configuration; the server defaults are used when omitted"`
}

type CreateSessionInput struct {
	Body *CreateSessionData `required:"false"`
}

type SessionResponse struct {
	Body session.Snapshot
}

type SessionListData struct {
	Sessions []session.Snapshot `json:"sessions" doc:"Live sessions, oldest first"`
	Count    int                `json:"count" example:"1" doc:"Number of sessions"`
}

type SessionListResponse struct {
	Body SessionListData
}

type ConfigureSessionInput struct {
	ID   string `path:"id" minLength:"1" maxLength:"64" example:"qzmfkrta" doc:"Session identifier"`
	Body session.Config
}

type MessageData struct {
	Message string `json:"message" example:"Session deleted" doc:"Result message"`
}

type MessageResponse struct {
	Body MessageData
}

// Graph models
type GraphData struct {
	Description string        `json:"description" example:"videotestsrc name=src ! videoconvert name=normalize ! ..." doc:"Launch-string rendering of the graph"`
	Nodes       []graph.Node  `json:"nodes" doc:"Elements in creation order"`
	Links       []graph.Link  `json:"links" doc:"Pad links between elements"`
	Output      *graph.Output `json:"output,omitempty" doc:"File written by the persist branch"`
}

type GraphResponse struct {
	Body GraphData
}

// Frame and output models
type FrameInput struct {
	ID        string `path:"id" minLength:"1" maxLength:"64" example:"qzmfkrta" doc:"Session identifier"`
	TimeoutMs int    `query:"timeout_ms" minimum:"0" maximum:"30000" example:"1000" doc:"How long to wait for a frame; 0 uses the server default"`
	Quality   int    `query:"quality" minimum:"0" maximum:"100" example:"85" doc:"JPEG quality; 0 uses the server default"`
}

type FrameResponse struct {
	ContentType string `header:"Content-Type"`
	Seq         string `header:"X-Frame-Seq" doc:"Sequence number of the frame within the run"`
	Size        string `header:"X-Frame-Size" doc:"Frame dimensions as WIDTHxHEIGHT"`
	Body        []byte
}

type OutputResponse struct {
	ContentType        string `header:"Content-Type"`
	ContentDisposition string `header:"Content-Disposition"`
	Body               []byte
}

// Defaults models
type DefaultsResponse struct {
	Body session.Config
}

type UpdateDefaultsInput struct {
	Body session.Config
}

// Log models
type LogsInput struct {
	Level  string `query:"level" enum:"debug,info,warn,error" example:"warn" doc:"Minimum level to return"`
	Module string `query:"module" example:"session" doc:"Only entries from this module"`
	Limit  int    `query:"limit" minimum:"0" maximum:"10000" example:"100" doc:"Return at most this many of the newest entries"`
}

type LogsData struct {
	Entries []logging.Entry `json:"entries" doc:"Log entries, oldest first"`
	Count   int             `json:"count" example:"100" doc:"Number of entries returned"`
}

type LogsResponse struct {
	Body LogsData
}

type LogLevelsResponse struct {
	Body LogLevelsData
}

type LogLevelsData struct {
	Levels map[string]string `json:"levels" doc:"Effective level per module"`
}

type SetLogLevelInput struct {
	Module string `path:"module" minLength:"1" example:"session" doc:"Logger module"`
	Body   struct {
		Level string `json:"level" enum:"debug,info,warn,error" example:"debug" doc:"New level"`
	}
}
