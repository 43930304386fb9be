package graph

import (
	"path/filepath"
	"slices"
	"strings"
)

// SourceKind selects how frames enter the graph.
type SourceKind string

const (
	SourcePattern SourceKind = "pattern"
	SourceFile    SourceKind = "file"
)

// SourceSpec configures the root of the graph.
type SourceSpec struct {
	Kind SourceKind `json:"kind" toml:"kind" enum:"pattern,file" doc:"Source kind"`

	// Pattern sources.
	Pattern       string `json:"pattern,omitempty" toml:"pattern" doc:"videotestsrc pattern name"`
	Flip          bool   `json:"flip,omitempty" toml:"flip" doc:"Flip the ball pattern"`
	Motion        string `json:"motion,omitempty" toml:"motion" doc:"Ball motion: wavy, sweep or hsweep"`
	AnimationMode string `json:"animation_mode,omitempty" toml:"animation_mode" doc:"Ball animation: frames, wall-time or running-time"`
	Live          bool   `json:"live,omitempty" toml:"live" doc:"Produce frames at the nominal framerate"`
	NumBuffers    int    `json:"num_buffers,omitempty" toml:"num_buffers" doc:"Stop after this many buffers (0 = unlimited)"`

	// File sources.
	Path string `json:"path,omitempty" toml:"path" doc:"Input file; extension selects the decoder"`

	// Size hints applied by the normalization stage.
	Width  int `json:"width,omitempty" toml:"width" doc:"Output width hint (even)"`
	Height int `json:"height,omitempty" toml:"height" doc:"Output height hint (even)"`
}

// Patterns lists videotestsrc pattern names; the index is the enum value.
var Patterns = []string{
	"smpte", "snow", "black", "white", "red", "green", "blue",
	"checkers-1", "checkers-2", "checkers-4", "checkers-8",
	"circular", "blink", "smpte75", "zone-plate", "gamut",
	"chroma-zone-plate", "solid-color", "ball", "smpte100",
	"bar", "pinwheel", "spokes", "gradient", "colors",
}

// Motions lists the ball pattern motion names in enum order.
var Motions = []string{"wavy", "sweep", "hsweep"}

// AnimationModes lists the ball pattern animation modes in enum order.
var AnimationModes = []string{"frames", "wall-time", "running-time"}

// DefaultPattern is used when a pattern source names none.
const DefaultPattern = "ball"

// InputExtensions lists the file extensions a file source can decode.
var InputExtensions = []string{"h264", "mp4", "jpg", "jpeg", "png"}

func enumIndex(table []string, name, field string) (int, error) {
	if name == "" {
		return 0, nil
	}
	i := slices.Index(table, strings.ToLower(name))
	if i < 0 {
		return 0, configErr(field, name, "expected one of %s", strings.Join(table, ", "))
	}
	return i, nil
}

// CreateSource adds the root source chain and returns its last node.
func (b *Builder) CreateSource(spec SourceSpec) (Ref, error) {
	if err := b.usable(); err != nil {
		return "", err
	}
	if b.root != "" {
		return "", configErr("source", nil, "graph already has a source")
	}
	if err := checkHint("width", spec.Width); err != nil {
		return "", err
	}
	if err := checkHint("height", spec.Height); err != nil {
		return "", err
	}

	var (
		last Ref
		err  error
	)
	switch spec.Kind {
	case SourcePattern:
		last, err = b.patternSource(spec)
	case SourceFile:
		last, err = b.fileSource(spec)
	default:
		return "", configErr("source kind", spec.Kind, "expected pattern or file")
	}
	if err != nil {
		return "", err
	}
	b.width, b.height = spec.Width, spec.Height
	return last, nil
}

func (b *Builder) patternSource(spec SourceSpec) (Ref, error) {
	name := spec.Pattern
	if name == "" {
		name = DefaultPattern
	}
	pattern, err := enumIndex(Patterns, name, "pattern")
	if err != nil {
		return "", err
	}
	motion, err := enumIndex(Motions, spec.Motion, "motion")
	if err != nil {
		return "", err
	}
	animation, err := enumIndex(AnimationModes, spec.AnimationMode, "animation mode")
	if err != nil {
		return "", err
	}
	if spec.NumBuffers < 0 {
		return "", configErr("num_buffers", spec.NumBuffers, "must not be negative")
	}

	props := map[string]any{"pattern": pattern}
	// Ball-only options; other patterns ignore them.
	if Patterns[pattern] == "ball" {
		props["flip"] = spec.Flip
		props["motion"] = motion
		props["animation-mode"] = animation
	}
	if spec.Live {
		props["is-live"] = true
	}
	if spec.NumBuffers > 0 {
		props["num-buffers"] = spec.NumBuffers
	}

	src := b.add(KindSource, "videotestsrc", "", props)
	b.root = src
	return src, nil
}

func (b *Builder) fileSource(spec SourceSpec) (Ref, error) {
	if spec.Path == "" {
		return "", configErr("path", nil, "file source needs a path")
	}
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(spec.Path)), ".")
	if !slices.Contains(InputExtensions, ext) {
		return "", configErr("input extension", ext, "expected one of %s", strings.Join(InputExtensions, ", "))
	}

	src := b.add(KindSource, "filesrc", "", map[string]any{"location": spec.Path})
	b.root = src

	switch ext {
	case "h264":
		parse := b.add(KindFilter, "h264parse", "", nil)
		dec := b.add(KindFilter, "avdec_h264", "", nil)
		b.link(src, parse)
		b.link(parse, dec)
		return dec, nil
	case "mp4":
		demux := b.add(KindFilter, "qtdemux", "", nil)
		dec := b.add(KindFilter, "avdec_h264", "", nil)
		b.link(src, demux)
		b.g.links = append(b.g.links, Link{From: string(demux), To: string(dec), Dynamic: true, PadPrefix: "video_"})
		return dec, nil
	case "jpg", "jpeg":
		dec := b.add(KindFilter, "jpegdec", "", nil)
		b.link(src, dec)
		return dec, nil
	default: // png
		dec := b.add(KindFilter, "pngdec", "", nil)
		b.link(src, dec)
		return dec, nil
	}
}

func checkHint(field string, v int) error {
	if v == 0 {
		return nil
	}
	if v < 0 || v%2 != 0 {
		return configErr(field, v, "must be a positive even number")
	}
	return nil
}
