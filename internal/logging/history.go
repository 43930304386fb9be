package logging

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// Entry is one record kept in the log history.
type Entry struct {
	Seq        uint64         `json:"seq"`
	Timestamp  time.Time      `json:"timestamp"`
	Level      string         `json:"level"`
	Module     string         `json:"module"`
	Message    string         `json:"message"`
	Attributes map[string]any `json:"attributes,omitempty"`
}

// String renders the entry as a single display line.
func (e Entry) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s [%s] [%s] %s",
		e.Timestamp.Format(time.RFC3339Nano), strings.ToUpper(e.Level), e.Module, e.Message)

	keys := make([]string, 0, len(e.Attributes))
	for k := range e.Attributes {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&sb, " %s=%v", k, e.Attributes[k])
	}
	return sb.String()
}

// History is a fixed-size ring of log entries. The oldest entry is
// overwritten once the ring is full.
type History struct {
	mu      sync.RWMutex
	entries []Entry
	next    int
	full    bool
	seq     uint64
}

// NewHistory returns a ring holding at most size entries.
func NewHistory(size int) *History {
	if size <= 0 {
		size = defaultHistorySize
	}
	return &History{entries: make([]Entry, size)}
}

// Append stores e under the next sequence number and returns that number.
func (h *History) Append(e Entry) uint64 {
	h.mu.Lock()
	h.seq++
	e.Seq = h.seq
	h.entries[h.next] = e
	h.next++
	if h.next == len(h.entries) {
		h.next = 0
		h.full = true
	}
	seq := h.seq
	h.mu.Unlock()
	return seq
}

// Len reports how many entries are stored.
func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.full {
		return len(h.entries)
	}
	return h.next
}

// Tail returns the newest n entries, oldest first. n <= 0 returns all.
func (h *History) Tail(n int) []Entry {
	h.mu.RLock()
	defer h.mu.RUnlock()

	var ordered []Entry
	if h.full {
		ordered = make([]Entry, 0, len(h.entries))
		ordered = append(ordered, h.entries[h.next:]...)
		ordered = append(ordered, h.entries[:h.next]...)
	} else {
		ordered = make([]Entry, h.next)
		copy(ordered, h.entries[:h.next])
	}

	if n > 0 && n < len(ordered) {
		ordered = ordered[len(ordered)-n:]
	}
	return ordered
}

// Filter returns stored entries at or above minLevel, optionally
// restricted to one module.
func (h *History) Filter(minLevel, module string) []Entry {
	threshold := levelRank(minLevel)
	var out []Entry
	for _, e := range h.Tail(0) {
		if levelRank(e.Level) < threshold {
			continue
		}
		if module != "" && e.Module != module {
			continue
		}
		out = append(out, e)
	}
	return out
}

func levelRank(level string) int {
	switch strings.ToLower(level) {
	case "error":
		return 3
	case "warn", "warning":
		return 2
	case "info":
		return 1
	default:
		return 0
	}
}
