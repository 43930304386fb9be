// Package logging wires log/slog for gstgraph.
//
// Every package asks for a module logger once and keeps it:
//
//	var logger = logging.GetLogger("session")
//
// Records fan out to stdout (text or json), the systemd journal when
// journald is reachable, and an in-memory history that backs
// GET /api/logs and the log SSE stream. Module levels are held in
// slog.LevelVar values so Initialize and SetModuleLevel apply to loggers
// that were handed out earlier.
//
// TOML:
//
//	[logging]
//	level = "info"
//	format = "text"
//
//	[logging.modules]
//	gstreamer = "debug"
//	api = "warn"
//
// Journal output is tagged with SYSLOG_IDENTIFIER=gstgraph:
//
//	journalctl -t gstgraph MODULE=session SESSION_ID=abcdefgh
package logging
