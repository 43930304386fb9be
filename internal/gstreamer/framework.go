// Package gstreamer realizes graph.Graph values as GStreamer pipelines
// through go-gst.
package gstreamer

import (
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/tinyzimmer/go-gst/gst"
	"github.com/tinyzimmer/go-gst/gst/app"

	"github.com/smazurov/gstgraph/internal/graph"
	"github.com/smazurov/gstgraph/internal/logging"
	"github.com/smazurov/gstgraph/internal/media"
)

var initOnce sync.Once

// Framework is the go-gst implementation of media.Framework.
type Framework struct {
	// TraceSamples tags each sample with a uuid for debug logging.
	TraceSamples bool
}

// New initializes GStreamer and returns a Framework. It fails when the
// core elements cannot be created, which usually means GStreamer or its
// base plugins are not installed.
func New() (*Framework, error) {
	initOnce.Do(func() { gst.Init(nil) })

	probe, err := gst.NewElement("fakesrc")
	if err != nil {
		return nil, fmt.Errorf("gstreamer not available: %w", err)
	}
	probe.SetState(gst.StateNull)
	return &Framework{}, nil
}

func (f *Framework) Name() string { return "gstreamer" }

// Realize creates a pipeline for g. Elements are added and statically
// linked in graph order; dynamic links are completed from pad-added.
func (f *Framework) Realize(g *graph.Graph, onSample media.SampleHandler) (media.Pipeline, error) {
	if g == nil || !g.Sealed() {
		return nil, fmt.Errorf("realize: graph is not sealed")
	}
	logger := logging.GetLogger("gstreamer")

	pipeline, err := gst.NewPipeline("")
	if err != nil {
		return nil, fmt.Errorf("create pipeline: %w", err)
	}

	elements := make(map[string]*gst.Element)
	for _, n := range g.Nodes() {
		elem, err := gst.NewElementWithName(n.Factory, n.Name)
		if err != nil {
			return nil, fmt.Errorf("create %s (%s): %w", n.Name, n.Factory, err)
		}
		for key, value := range n.Props {
			if err := setProperty(elem, key, value); err != nil {
				return nil, fmt.Errorf("set %s.%s=%v: %w", n.Name, key, value, err)
			}
		}
		if err := pipeline.Add(elem); err != nil {
			return nil, fmt.Errorf("add %s: %w", n.Name, err)
		}
		elements[n.Name] = elem
	}

	for _, l := range g.Links() {
		src, sink := elements[l.From], elements[l.To]
		if l.Dynamic {
			linkOnPadAdded(src, sink, l.PadPrefix)
			continue
		}
		if err := src.Link(sink); err != nil {
			return nil, fmt.Errorf("link %s -> %s: %w", l.From, l.To, err)
		}
	}

	p := &Pipeline{pipeline: pipeline, bus: pipeline.GetPipelineBus()}
	for _, name := range g.PreviewSinks() {
		sink := app.SinkFromElement(elements[name])
		if sink == nil {
			return nil, fmt.Errorf("%s is not an appsink", name)
		}
		sinkName := name
		sink.SetCallbacks(&app.SinkCallbacks{
			NewSampleFunc: func(s *app.Sink) gst.FlowReturn {
				return f.onNewSample(s, sinkName, onSample)
			},
		})
	}

	logger.Debug("Pipeline realized",
		"pipeline", pipeline.GetName(),
		"elements", len(elements),
		"preview_sinks", len(g.PreviewSinks()))
	return p, nil
}

func setProperty(elem *gst.Element, key string, value any) error {
	switch v := value.(type) {
	case graph.Caps:
		return elem.SetProperty(key, gst.NewCapsFromString(string(v)))
	default:
		return elem.SetProperty(key, v)
	}
}

// linkOnPadAdded links src to sink once src exposes a pad whose name
// starts with prefix. Later matching pads are ignored.
func linkOnPadAdded(src, sink *gst.Element, prefix string) {
	logger := logging.GetLogger("gstreamer")
	src.Connect("pad-added", func(self *gst.Element, srcPad *gst.Pad) {
		name := srcPad.GetName()
		if prefix != "" && !strings.HasPrefix(name, prefix) {
			logger.Debug("Ignoring pad", "element", self.GetName(), "pad", name)
			return
		}
		sinkPad := sink.GetStaticPad("sink")
		if sinkPad == nil || sinkPad.IsLinked() {
			return
		}
		if ret := srcPad.Link(sinkPad); ret != gst.PadLinkOK {
			logger.Error("Failed to link dynamic pad",
				"element", self.GetName(), "pad", name, "sink", sink.GetName(), "ret", ret)
			return
		}
		logger.Debug("Linked dynamic pad", "element", self.GetName(), "pad", name, "sink", sink.GetName())
	})
}

// onNewSample copies the mapped buffer out of GStreamer and hands it to
// the session. Failures skip the frame instead of ending the stream.
func (f *Framework) onNewSample(sink *app.Sink, name string, onSample media.SampleHandler) gst.FlowReturn {
	sample := sink.PullSample()
	if sample == nil {
		return gst.FlowOK
	}
	buffer := sample.GetBuffer()
	if buffer == nil {
		return gst.FlowOK
	}

	width, height, format := sampleCaps(sample)
	mapInfo := buffer.Map(gst.MapRead)
	data := mapInfo.Bytes()
	frame := make([]byte, len(data))
	copy(frame, data)
	buffer.Unmap()

	if len(frame) == 0 || onSample == nil {
		return gst.FlowOK
	}

	s := media.Sample{
		Sink:   name,
		Width:  width,
		Height: height,
		Format: format,
		Data:   frame,
	}
	if f.TraceSamples {
		s.TraceID = uuid.New().String()
	}
	onSample(s)
	return gst.FlowOK
}

func sampleCaps(sample *gst.Sample) (width, height int, format string) {
	caps := sample.GetCaps()
	if caps == nil || caps.GetSize() == 0 {
		return 0, 0, ""
	}
	st := caps.GetStructureAt(0)
	if v, err := st.GetValue("width"); err == nil {
		width = toInt(v)
	}
	if v, err := st.GetValue("height"); err == nil {
		height = toInt(v)
	}
	if v, err := st.GetValue("format"); err == nil {
		format, _ = v.(string)
	}
	return width, height, format
}

func toInt(v any) int {
	switch n := v.(type) {
	case int:
		return n
	case int32:
		return int(n)
	case int64:
		return int(n)
	case uint:
		return int(n)
	case uint32:
		return int(n)
	}
	return 0
}
