// Package cmd holds the subcommands that work without the HTTP server.
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/smazurov/gstgraph/internal/graph"
	"github.com/smazurov/gstgraph/internal/gstreamer"
	"github.com/smazurov/gstgraph/internal/media"
	"github.com/smazurov/gstgraph/internal/media/mediatest"
	"github.com/smazurov/gstgraph/internal/session"
)

// NewFramework returns the media framework called name: "gstreamer" or
// "fake", a synthetic framework that needs no GStreamer install.
func NewFramework(name string, traceSamples bool) (media.Framework, error) {
	switch name {
	case "", "gstreamer":
		fw, err := gstreamer.New()
		if err != nil {
			return nil, err
		}
		fw.TraceSamples = traceSamples
		return fw, nil
	case "fake":
		return mediatest.New(), nil
	default:
		return nil, fmt.Errorf("unknown framework %q (want gstreamer or fake)", name)
	}
}

// sessionFlags are the flags shared by commands that build a session
// graph. Only flags set on the command line override the config file.
type sessionFlags struct {
	configFile string
	pattern    string
	file       string
	numBuffers int
	width      int
	height     int
	live       bool
	preview    bool
	persist    bool
	display    bool
	extension  string
}

func (f *sessionFlags) register(cmd *cobra.Command) {
	fl := cmd.Flags()
	fl.StringVarP(&f.configFile, "config", "c", "config.toml", "Configuration file holding the [defaults] table")
	fl.StringVar(&f.pattern, "pattern", "", "Test pattern source (e.g. ball, smpte, snow)")
	fl.StringVar(&f.file, "file", "", "File source; the extension selects the decoder")
	fl.IntVar(&f.numBuffers, "num-buffers", 0, "Stop the pattern source after this many buffers")
	fl.IntVar(&f.width, "width", 0, "Output width hint")
	fl.IntVar(&f.height, "height", 0, "Output height hint")
	fl.BoolVar(&f.live, "live", false, "Produce pattern frames at the nominal framerate")
	fl.BoolVar(&f.preview, "preview", false, "Enable the preview branch")
	fl.BoolVar(&f.persist, "persist", false, "Enable the persist branch")
	fl.BoolVar(&f.display, "display", false, "Enable the display branch")
	fl.StringVar(&f.extension, "ext", "", "Persisted file type: mp4, h264, jpg or png")
}

// apply overrides cfg with every flag the user set.
func (f *sessionFlags) apply(cmd *cobra.Command, cfg *session.Config) {
	fl := cmd.Flags()
	if fl.Changed("pattern") {
		cfg.Source = graph.SourceSpec{Kind: graph.SourcePattern, Pattern: f.pattern}
	}
	if fl.Changed("file") {
		cfg.Source = graph.SourceSpec{Kind: graph.SourceFile, Path: f.file}
	}
	if fl.Changed("num-buffers") {
		cfg.Source.NumBuffers = f.numBuffers
	}
	if fl.Changed("width") {
		cfg.Source.Width = f.width
	}
	if fl.Changed("height") {
		cfg.Source.Height = f.height
	}
	if fl.Changed("live") {
		cfg.Source.Live = f.live
	}
	if fl.Changed("preview") {
		cfg.Preview = f.preview
	}
	if fl.Changed("persist") {
		cfg.Persist = f.persist
	}
	if fl.Changed("display") {
		cfg.Display = f.display
	}
	if fl.Changed("ext") {
		cfg.Extension = f.extension
	}
}
