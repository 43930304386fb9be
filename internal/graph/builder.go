package graph

import (
	"fmt"
)

// Ref names a node added by a Builder.
type Ref string

// Tee is the fan-out handle returned by FanOut.
type Tee struct {
	name string
}

// Name returns the tee node name.
func (t Tee) Name() string { return t.name }

// QueueLimits bounds each branch queue.
type QueueLimits struct {
	MaxBuffers uint `json:"max_buffers" toml:"max_buffers"`
	MaxBytes   uint `json:"max_bytes" toml:"max_bytes"`
}

// EncoderSettings holds encoder properties for the persist branch.
type EncoderSettings struct {
	H264Bitrate    uint `json:"h264_bitrate" toml:"h264_bitrate"`
	JPEGQuality    int  `json:"jpeg_quality" toml:"jpeg_quality"`
	PNGCompression uint `json:"png_compression" toml:"png_compression"`
}

// Options are the per-build parameters that do not come from the user's
// toggles.
type Options struct {
	SessionID string
	OutputDir string
	Queue     QueueLimits
	Encoders  EncoderSettings
}

// DefaultOptions returns the queue and encoder settings used when a
// field is left zero.
func DefaultOptions() Options {
	return Options{
		OutputDir: "output",
		Queue:     QueueLimits{MaxBuffers: 200, MaxBytes: 10485760},
		Encoders:  EncoderSettings{H264Bitrate: 2000, JPEGQuality: 85, PNGCompression: 9},
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.OutputDir == "" {
		o.OutputDir = d.OutputDir
	}
	if o.Queue.MaxBuffers == 0 {
		o.Queue.MaxBuffers = d.Queue.MaxBuffers
	}
	if o.Queue.MaxBytes == 0 {
		o.Queue.MaxBytes = d.Queue.MaxBytes
	}
	if o.Encoders.H264Bitrate == 0 {
		o.Encoders.H264Bitrate = d.Encoders.H264Bitrate
	}
	if o.Encoders.JPEGQuality == 0 {
		o.Encoders.JPEGQuality = d.Encoders.JPEGQuality
	}
	if o.Encoders.PNGCompression == 0 {
		o.Encoders.PNGCompression = d.Encoders.PNGCompression
	}
	return o
}

// Builder assembles a Graph step by step. It is not safe for concurrent use.
type Builder struct {
	opts       Options
	g          *Graph
	seq        map[string]int
	root       Ref
	normalized Ref
	tees       int
	width      int
	height     int
	sealed     *Graph
}

// NewBuilder returns an empty builder.
func NewBuilder(opts Options) *Builder {
	return &Builder{
		opts: opts.withDefaults(),
		g:    newGraph(),
		seq:  make(map[string]int),
	}
}

// Normalize appends the conversion stage that pins the canonical raw
// format and, when size hints were given, the output size. It may be
// called once per graph.
func (b *Builder) Normalize(from Ref) (Ref, error) {
	if err := b.usable(); err != nil {
		return "", err
	}
	if b.normalized != "" {
		return "", configErr("normalize", nil, "already applied")
	}
	if err := b.known(from); err != nil {
		return "", err
	}

	last := from
	conv := b.add(KindFilter, "videoconvert", "", nil)
	b.link(last, conv)
	last = conv

	if b.width > 0 || b.height > 0 {
		scale := b.add(KindFilter, "videoscale", "", nil)
		b.link(last, scale)
		last = scale
	}

	caps := b.add(KindFilter, "capsfilter", "", map[string]any{"caps": rawCaps(b.width, b.height)})
	b.link(last, caps)

	b.normalized = caps
	return caps, nil
}

// FanOut appends a tee after from.
func (b *Builder) FanOut(from Ref) (Tee, error) {
	if err := b.usable(); err != nil {
		return Tee{}, err
	}
	if err := b.known(from); err != nil {
		return Tee{}, err
	}
	if b.normalized == "" {
		return Tee{}, configErr("fan-out", nil, "normalize must run before fan-out")
	}
	if b.tees > 0 {
		return Tee{}, configErr("fan-out", nil, "graph already has a tee")
	}
	t := b.add(KindTee, "tee", "", nil)
	b.link(from, t)
	b.tees++
	return Tee{name: string(t)}, nil
}

// Seal validates the graph and freezes it. Later calls return the same
// Graph.
func (b *Builder) Seal() (*Graph, error) {
	if b.sealed != nil {
		return b.sealed, nil
	}
	if err := validate(b.g); err != nil {
		return nil, err
	}
	b.g.sealed = true
	b.sealed = b.g
	return b.sealed, nil
}

// Spec is the full toggle set for Build.
type Spec struct {
	Source   SourceSpec   `json:"source" toml:"source"`
	Branches []BranchSpec `json:"branches" toml:"branches"`
}

// Build runs source, normalize, fan-out and each branch in order and
// seals the result.
func Build(spec Spec, opts Options) (*Graph, error) {
	b := NewBuilder(opts)
	src, err := b.CreateSource(spec.Source)
	if err != nil {
		return nil, err
	}
	norm, err := b.Normalize(src)
	if err != nil {
		return nil, err
	}
	tee, err := b.FanOut(norm)
	if err != nil {
		return nil, err
	}
	for _, br := range spec.Branches {
		if _, err := b.Branch(tee, br); err != nil {
			return nil, err
		}
	}
	return b.Seal()
}

// add creates a node named <factory><n>.
func (b *Builder) add(kind NodeKind, factory string, branch BranchKind, props map[string]any) Ref {
	n := b.seq[factory]
	b.seq[factory] = n + 1
	node := &Node{
		Name:    fmt.Sprintf("%s%d", factory, n),
		Kind:    kind,
		Factory: factory,
		Branch:  branch,
		Props:   props,
	}
	b.g.nodes = append(b.g.nodes, node)
	b.g.index[node.Name] = node
	return Ref(node.Name)
}

func (b *Builder) link(from, to Ref) {
	b.g.links = append(b.g.links, Link{From: string(from), To: string(to)})
}

func (b *Builder) usable() error {
	if b.sealed != nil {
		return ErrSealed
	}
	return nil
}

func (b *Builder) known(r Ref) error {
	if _, ok := b.g.index[string(r)]; !ok {
		return configErr("node", string(r), "not part of this graph")
	}
	return nil
}

func rawCaps(width, height int) Caps {
	caps := "video/x-raw,format=" + CanonicalFormat
	if width > 0 {
		caps += fmt.Sprintf(",width=%d", width)
	}
	if height > 0 {
		caps += fmt.Sprintf(",height=%d", height)
	}
	return Caps(caps)
}
