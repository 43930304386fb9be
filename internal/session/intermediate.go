package session

import (
	"fmt"
	"image/jpeg"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/smazurov/gstgraph/internal/convert"
)

// intermediateWriter keeps <id>_intermediate_output.jpg close to the
// live preview. offer never blocks; at most one write runs at a time and
// writes are at least interval apart.
type intermediateWriter struct {
	path     string
	interval time.Duration
	logger   *slog.Logger

	last    atomic.Int64
	busy    atomic.Bool
	written atomic.Uint64
}

func newIntermediateWriter(path string, interval time.Duration, logger *slog.Logger) *intermediateWriter {
	return &intermediateWriter{path: path, interval: interval, logger: logger}
}

func (w *intermediateWriter) offer(img *convert.RGBImage) {
	now := time.Now().UnixNano()
	if now-w.last.Load() < int64(w.interval) {
		return
	}
	if !w.busy.CompareAndSwap(false, true) {
		return
	}
	w.last.Store(now)

	go func() {
		defer w.busy.Store(false)
		if err := w.write(img); err != nil {
			w.logger.Warn("Failed to write intermediate preview", "path", w.path, "error", err)
			return
		}
		w.written.Add(1)
	}()
}

// write replaces the file atomically so readers never see a partial JPEG.
func (w *intermediateWriter) write(img *convert.RGBImage) error {
	if err := os.MkdirAll(filepath.Dir(w.path), 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(w.path), ".intermediate-*.jpg")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := jpeg.Encode(tmp, img, &jpeg.Options{Quality: 85}); err != nil {
		tmp.Close()
		return fmt.Errorf("encode jpeg: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	return os.Rename(tmp.Name(), w.path)
}

func (w *intermediateWriter) count() uint64 { return w.written.Load() }
