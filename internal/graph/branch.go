package graph

import (
	"fmt"
	"path/filepath"
	"slices"
	"strings"
)

// BranchKind names a subgraph hung off the tee.
type BranchKind string

const (
	BranchPreview BranchKind = "preview"
	BranchPersist BranchKind = "persist"
	BranchDisplay BranchKind = "display"
)

// BranchKinds lists every kind in the order the server enables them.
var BranchKinds = []BranchKind{BranchPreview, BranchPersist, BranchDisplay}

// BranchSpec configures one branch.
type BranchSpec struct {
	Kind BranchKind `json:"kind" toml:"kind" enum:"preview,persist,display"`
	// Extension selects the persist encoder: mp4, h264, jpg, jpeg or png.
	Extension string `json:"extension,omitempty" toml:"extension"`
	// Leaky makes the display queue drop its oldest buffer instead of
	// blocking upstream.
	Leaky bool `json:"leaky,omitempty" toml:"leaky"`
}

// OutputExtensions lists accepted persist extensions.
var OutputExtensions = []string{"mp4", "h264", "jpg", "jpeg", "png"}

const queueLeakyDownstream = 2

// x264enc enum values.
const (
	x264PresetUltrafast = 1
	x264TuneZeroLatency = 4
)

type branchBuilder func(b *Builder, from Ref, spec BranchSpec) (Ref, error)

var branchTable = map[BranchKind]branchBuilder{
	BranchPreview: (*Builder).previewBranch,
	BranchPersist: (*Builder).persistBranch,
	BranchDisplay: (*Builder).displayBranch,
}

// Branch hangs a new branch off t and returns its sink.
func (b *Builder) Branch(t Tee, spec BranchSpec) (Ref, error) {
	if err := b.usable(); err != nil {
		return "", err
	}
	if n, ok := b.g.index[t.name]; !ok || n.Kind != KindTee {
		return "", configErr("tee", t.name, "not a tee of this graph")
	}
	build, ok := branchTable[spec.Kind]
	if !ok {
		return "", configErr("branch kind", spec.Kind, "expected preview, persist or display")
	}
	return build(b, Ref(t.name), spec)
}

func (b *Builder) queue(from Ref, branch BranchKind, leaky bool) Ref {
	props := map[string]any{
		"max-size-buffers": b.opts.Queue.MaxBuffers,
		"max-size-bytes":   b.opts.Queue.MaxBytes,
	}
	if leaky {
		props["leaky"] = queueLeakyDownstream
	}
	q := b.add(KindQueue, "queue", branch, props)
	b.link(from, q)
	return q
}

func (b *Builder) chain(from Ref, refs ...Ref) Ref {
	for _, r := range refs {
		b.link(from, r)
		from = r
	}
	return from
}

func (b *Builder) previewBranch(from Ref, _ BranchSpec) (Ref, error) {
	q := b.queue(from, BranchPreview, false)
	pin := b.add(KindFilter, "capsfilter", BranchPreview, map[string]any{"caps": rawCaps(0, 0)})
	sink := b.add(KindSink, "appsink", BranchPreview, map[string]any{
		"emit-signals": true,
		"drop":         true,
		"sync":         false,
	})
	return b.chain(q, pin, sink), nil
}

func (b *Builder) persistBranch(from Ref, spec BranchSpec) (Ref, error) {
	ext := strings.ToLower(strings.TrimPrefix(spec.Extension, "."))
	if ext == "" {
		ext = "mp4"
	}
	if !slices.Contains(OutputExtensions, ext) {
		return "", configErr("output extension", ext, "expected one of %s", strings.Join(OutputExtensions, ", "))
	}
	if b.g.output != nil {
		return "", configErr("persist branch", nil, "only one persist branch is allowed")
	}
	if b.opts.SessionID == "" {
		return "", configErr("session id", nil, "persist branch needs a session id for the output name")
	}

	q := b.queue(from, BranchPersist, false)
	var stages []Ref
	switch ext {
	case "mp4", "h264":
		ext = "mp4"
		stages = append(stages,
			b.add(KindEncoder, "x264enc", BranchPersist, map[string]any{
				"bitrate":      b.opts.Encoders.H264Bitrate,
				"speed-preset": x264PresetUltrafast,
				"tune":         x264TuneZeroLatency,
			}),
			b.add(KindFilter, "h264parse", BranchPersist, nil),
			b.add(KindMux, "mp4mux", BranchPersist, nil),
		)
	case "jpg", "jpeg":
		ext = "jpg"
		stages = append(stages, b.add(KindEncoder, "jpegenc", BranchPersist, map[string]any{
			"quality": b.opts.Encoders.JPEGQuality,
		}))
	case "png":
		stages = append(stages, b.add(KindEncoder, "pngenc", BranchPersist, map[string]any{
			"compression-level": b.opts.Encoders.PNGCompression,
		}))
	}

	path := OutputPath(b.opts.OutputDir, b.opts.SessionID, ext)
	sink := b.add(KindSink, "filesink", BranchPersist, map[string]any{
		"location": path,
		"async":    true,
	})
	stages = append(stages, sink)

	b.g.output = &Output{Path: path, Extension: ext}
	return b.chain(q, stages...), nil
}

func (b *Builder) displayBranch(from Ref, spec BranchSpec) (Ref, error) {
	q := b.queue(from, BranchDisplay, spec.Leaky)
	sink := b.add(KindSink, "autovideosink", BranchDisplay, map[string]any{"sync": false})
	return b.chain(q, sink), nil
}

// OutputPath returns <dir>/<sessionID>_output.<ext>.
func OutputPath(dir, sessionID, ext string) string {
	return filepath.Join(dir, fmt.Sprintf("%s_output.%s", sessionID, ext))
}

// IntermediatePath returns the preview snapshot path for a session.
func IntermediatePath(dir, sessionID string) string {
	return filepath.Join(dir, sessionID+"_intermediate_output.jpg")
}
