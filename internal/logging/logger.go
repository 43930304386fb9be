package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
)

const defaultHistorySize = 1000

// Config is the [logging] table.
type Config struct {
	Level       string            `toml:"level"`
	Format      string            `toml:"format"`
	Modules     map[string]string `toml:"modules"`
	HistorySize int               `toml:"history_size"`
}

type moduleLogger struct {
	logger *slog.Logger
	level  *slog.LevelVar
	format string
}

var (
	mu          sync.RWMutex
	cfg         = Config{Level: "info", Format: "text"}
	initialized bool
	modules     = make(map[string]*moduleLogger)
	rootLevel   = &slog.LevelVar{}
	history     *History
	sink        Sink
	stdout      io.Writer = os.Stdout
)

// Initialize applies c to the root logger and every module logger handed
// out so far. It may be called again to reconfigure.
func Initialize(c Config) {
	mu.Lock()
	defer mu.Unlock()

	if c.Format == "" {
		c.Format = "text"
	}
	cfg = c
	initialized = true

	size := c.HistorySize
	if size <= 0 {
		size = defaultHistorySize
	}
	if history == nil || len(history.entries) != size {
		history = NewHistory(size)
	}

	rootLevel.Set(levelFor(""))
	for name, m := range modules {
		m.level.Set(levelFor(name))
		if m.format != c.Format {
			m.logger = slog.New(newHandler(c.Format, m.level)).With("module", name)
			m.format = c.Format
		}
	}
	slog.SetDefault(slog.New(newHandler(c.Format, rootLevel)))
}

// GetLogger returns the logger for module, creating it on first use.
func GetLogger(module string) *slog.Logger {
	mu.RLock()
	m, ok := modules[module]
	mu.RUnlock()
	if ok {
		return m.logger
	}

	mu.Lock()
	defer mu.Unlock()
	if m, ok := modules[module]; ok {
		return m.logger
	}

	level := &slog.LevelVar{}
	level.Set(levelFor(module))
	m = &moduleLogger{
		logger: slog.New(newHandler(cfg.Format, level)).With("module", module),
		level:  level,
		format: cfg.Format,
	}
	modules[module] = m
	return m.logger
}

// SetModuleLevel changes a module's level at runtime. Loggers already
// obtained from GetLogger pick up the change.
func SetModuleLevel(module, level string) error {
	parsed, ok := parseLevel(level)
	if !ok {
		return fmt.Errorf("unknown log level %q", level)
	}
	GetLogger(module)

	mu.Lock()
	defer mu.Unlock()
	modules[module].level.Set(parsed)
	if cfg.Modules == nil {
		cfg.Modules = make(map[string]string)
	}
	cfg.Modules[module] = level
	return nil
}

// Levels reports the effective level of every known module.
func Levels() map[string]string {
	mu.RLock()
	defer mu.RUnlock()
	out := make(map[string]string, len(modules))
	for name, m := range modules {
		out[name] = levelName(m.level.Level())
	}
	return out
}

// GetHistory returns the log history, or nil before Initialize.
func GetHistory() *History {
	mu.RLock()
	defer mu.RUnlock()
	return history
}

// SetSink installs fn to receive each new entry. nil removes it.
func SetSink(fn Sink) {
	mu.Lock()
	sink = fn
	mu.Unlock()
}

func currentHistory() (*History, Sink) {
	mu.RLock()
	defer mu.RUnlock()
	return history, sink
}

// levelFor resolves the configured level for module; "" means the root.
// Callers hold mu.
func levelFor(module string) slog.Level {
	level, ok := parseLevel(cfg.Level)
	if !ok || !initialized {
		level = slog.LevelInfo
	}
	if initialized && module != "" {
		if override, ok := parseLevel(cfg.Modules[module]); ok {
			level = override
		}
	}
	return level
}

func newHandler(format string, level slog.Leveler) slog.Handler {
	opts := &slog.HandlerOptions{Level: level}

	var handlers Fanout
	if stdoutAvailable() {
		if format == "json" {
			handlers = append(handlers, slog.NewJSONHandler(stdout, opts))
		} else {
			handlers = append(handlers, slog.NewTextHandler(stdout, opts))
		}
	}
	if JournalAvailable() {
		handlers = append(handlers, newJournalHandler(level))
	}
	handlers = append(handlers, newHistoryHandler(level))

	if len(handlers) == 1 {
		return handlers[0]
	}
	return handlers
}

// stdoutAvailable is false when stdout is /dev/null or closed.
func stdoutAvailable() bool {
	f, ok := stdout.(*os.File)
	if !ok {
		return stdout != nil
	}
	fi, err := f.Stat()
	if err != nil {
		return false
	}
	mode := fi.Mode()
	return mode&(os.ModeCharDevice|os.ModeNamedPipe|os.ModeSocket) != 0 || mode.IsRegular()
}

func parseLevel(level string) (slog.Level, bool) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug, true
	case "info":
		return slog.LevelInfo, true
	case "warn", "warning":
		return slog.LevelWarn, true
	case "error":
		return slog.LevelError, true
	default:
		return slog.LevelInfo, false
	}
}
