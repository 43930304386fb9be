// Package metrics provides Prometheus metrics for sessions and their
// pipelines.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "gstgraph"

// Statuses a session can report, in lifecycle order.
var statuses = []string{"CREATED", "PLAYING", "STOPPING", "STOPPED", "ERROR"}

var (
	sessionStatus = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "session",
		Name:      "status",
		Help:      "1 for the current lifecycle status of a session",
	}, []string{"session_id", "status"})

	sessionTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "session",
		Name:      "transitions_total",
		Help:      "Lifecycle transitions by target status",
	}, []string{"status"})

	framesIn = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "frames",
		Name:      "in_total",
		Help:      "Samples received from preview sinks in the current run",
	}, []string{"session_id"})

	framesOut = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "frames",
		Name:      "out_total",
		Help:      "Frames handed to consumers in the current run",
	}, []string{"session_id"})

	framesDropped = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "frames",
		Name:      "dropped_total",
		Help:      "Frames dropped because the preview queue was full",
	}, []string{"session_id"})

	conversionErrors = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "frames",
		Name:      "conversion_errors_total",
		Help:      "Samples that could not be converted to RGB",
	}, []string{"session_id"})

	pipelineErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "pipeline",
		Name:      "errors_total",
		Help:      "Fatal pipeline errors by category",
	}, []string{"category"})

	pipelineWarnings = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "pipeline",
		Name:      "warnings_total",
		Help:      "Non-fatal pipeline warnings",
	})

	outputsReady = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "output",
		Name:      "finalized_total",
		Help:      "Persisted files finalized after stop",
	})

	outputBytes = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "output",
		Name:      "bytes_total",
		Help:      "Size of finalized persisted files",
	})

	// Current status per session, for the SSE snapshot and tests.
	statusCache   = make(map[string]string)
	statusCacheMu sync.RWMutex
)

// SetSessionStatus makes status the only non-zero status of a session
// and counts the transition.
func SetSessionStatus(sessionID, status string) {
	for _, s := range statuses {
		v := 0.0
		if s == status {
			v = 1
		}
		sessionStatus.WithLabelValues(sessionID, s).Set(v)
	}
	sessionTransitions.WithLabelValues(status).Inc()

	statusCacheMu.Lock()
	statusCache[sessionID] = status
	statusCacheMu.Unlock()
}

// FrameStats are the per-run frame counters of a session.
type FrameStats struct {
	In               uint64
	Out              uint64
	Dropped          uint64
	ConversionErrors uint64
}

// SetFrameStats records the latest counters of a session.
func SetFrameStats(sessionID string, s FrameStats) {
	framesIn.WithLabelValues(sessionID).Set(float64(s.In))
	framesOut.WithLabelValues(sessionID).Set(float64(s.Out))
	framesDropped.WithLabelValues(sessionID).Set(float64(s.Dropped))
	conversionErrors.WithLabelValues(sessionID).Set(float64(s.ConversionErrors))
}

// IncPipelineError counts a fatal error.
func IncPipelineError(category string) {
	if category == "" {
		category = "unknown"
	}
	pipelineErrors.WithLabelValues(category).Inc()
}

// IncPipelineWarning counts a warning.
func IncPipelineWarning() {
	pipelineWarnings.Inc()
}

// ObserveOutput counts a finalized file.
func ObserveOutput(size int64) {
	outputsReady.Inc()
	if size > 0 {
		outputBytes.Add(float64(size))
	}
}

// DeleteSession removes every per-session series.
func DeleteSession(sessionID string) {
	for _, s := range statuses {
		sessionStatus.DeleteLabelValues(sessionID, s)
	}
	framesIn.DeleteLabelValues(sessionID)
	framesOut.DeleteLabelValues(sessionID)
	framesDropped.DeleteLabelValues(sessionID)
	conversionErrors.DeleteLabelValues(sessionID)

	statusCacheMu.Lock()
	delete(statusCache, sessionID)
	statusCacheMu.Unlock()
}

// SessionStatus returns the last recorded status of a session.
func SessionStatus(sessionID string) (string, bool) {
	statusCacheMu.RLock()
	defer statusCacheMu.RUnlock()
	s, ok := statusCache[sessionID]
	return s, ok
}

// StatusCounts returns how many sessions are in each status.
func StatusCounts() map[string]int {
	statusCacheMu.RLock()
	defer statusCacheMu.RUnlock()
	out := make(map[string]int, len(statuses))
	for _, s := range statusCache {
		out[s]++
	}
	return out
}
