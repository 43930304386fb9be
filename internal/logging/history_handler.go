package logging

import (
	"context"
	"log/slog"
	"strings"
	"time"
)

// Sink receives every entry appended to the history. The api package
// installs one to forward entries to the event bus.
type Sink func(Entry)

// historyHandler records into whatever History and Sink are installed
// when the record is handled, so loggers created before Initialize
// still reach the history.
type historyHandler struct {
	level  slog.Leveler
	attrs  []scopedAttr
	groups []string
}

// scopedAttr remembers the groups that were open when the attr was added.
type scopedAttr struct {
	groups []string
	attr   slog.Attr
}

func newHistoryHandler(level slog.Leveler) *historyHandler {
	return &historyHandler{level: level}
}

func (h *historyHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *historyHandler) Handle(_ context.Context, r slog.Record) error {
	history, sink := currentHistory()
	if history == nil && sink == nil {
		return nil
	}

	entry := Entry{
		Timestamp:  r.Time,
		Level:      levelName(r.Level),
		Module:     "app",
		Message:    r.Message,
		Attributes: make(map[string]any),
	}
	collect := func(groups []string, a slog.Attr) {
		if a.Key == "module" && len(groups) == 0 {
			entry.Module = a.Value.String()
			return
		}
		flatten(entry.Attributes, groups, a)
	}
	for _, sa := range h.attrs {
		collect(sa.groups, sa.attr)
	}
	r.Attrs(func(a slog.Attr) bool {
		collect(h.groups, a)
		return true
	})
	if len(entry.Attributes) == 0 {
		entry.Attributes = nil
	}

	if history != nil {
		entry.Seq = history.Append(entry)
	}
	if sink != nil {
		sink(entry)
	}
	return nil
}

func (h *historyHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := *h
	next.attrs = append([]scopedAttr(nil), h.attrs...)
	for _, a := range attrs {
		next.attrs = append(next.attrs, scopedAttr{groups: h.groups, attr: a})
	}
	return &next
}

func (h *historyHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	next := *h
	next.groups = append(append([]string(nil), h.groups...), name)
	return &next
}

// flatten writes a into dst using dotted keys for groups.
func flatten(dst map[string]any, groups []string, a slog.Attr) {
	if a.Equal(slog.Attr{}) {
		return
	}
	key := a.Key
	if len(groups) > 0 {
		key = strings.Join(groups, ".") + "." + key
	}

	v := a.Value.Resolve()
	switch v.Kind() {
	case slog.KindGroup:
		sub := append(append([]string(nil), groups...), a.Key)
		for _, ga := range v.Group() {
			flatten(dst, sub, ga)
		}
	case slog.KindTime:
		dst[key] = v.Time().Format(time.RFC3339Nano)
	case slog.KindDuration:
		dst[key] = v.Duration().String()
	case slog.KindAny:
		if err, ok := v.Any().(error); ok {
			dst[key] = err.Error()
		} else {
			dst[key] = v.Any()
		}
	default:
		dst[key] = v.Any()
	}
}

func levelName(level slog.Level) string {
	switch {
	case level >= slog.LevelError:
		return "error"
	case level >= slog.LevelWarn:
		return "warn"
	case level >= slog.LevelInfo:
		return "info"
	default:
		return "debug"
	}
}
