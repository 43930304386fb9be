// Package graph describes media pipelines as framework-agnostic DAGs.
//
// A Builder assembles a source chain, a single normalization stage, one tee
// and any number of branches, then seals the result into an immutable
// Graph. Realizing a Graph is left to a media.Framework implementation.
package graph

import (
	"maps"
	"slices"
)

// NodeKind classifies a node's role in the graph.
type NodeKind string

const (
	KindSource  NodeKind = "source"
	KindFilter  NodeKind = "filter"
	KindTee     NodeKind = "tee"
	KindQueue   NodeKind = "queue"
	KindEncoder NodeKind = "encoder"
	KindMux     NodeKind = "mux"
	KindSink    NodeKind = "sink"
)

// Caps is a caps string property value, e.g. "video/x-raw,format=I420".
type Caps string

// CanonicalFormat is the raw format every branch receives after the
// normalization stage.
const CanonicalFormat = "I420"

// Node is one element of the graph. Props holds typed property values:
// bool, int, uint, string or Caps.
type Node struct {
	Name    string         `json:"name"`
	Kind    NodeKind       `json:"kind"`
	Factory string         `json:"factory"`
	Branch  BranchKind     `json:"branch,omitempty"`
	Props   map[string]any `json:"props,omitempty"`
}

// Link connects From's source pad to To's sink pad. Dynamic links are
// made when From exposes a pad at runtime whose name starts with
// PadPrefix.
type Link struct {
	From      string `json:"from"`
	To        string `json:"to"`
	Dynamic   bool   `json:"dynamic,omitempty"`
	PadPrefix string `json:"pad_prefix,omitempty"`
}

// Output describes the file a persist branch writes.
type Output struct {
	Path      string `json:"path"`
	Extension string `json:"extension"`
}

// Graph is a DAG of nodes. Once sealed it is never modified.
type Graph struct {
	nodes  []*Node
	index  map[string]*Node
	links  []Link
	output *Output
	sealed bool
}

func newGraph() *Graph {
	return &Graph{index: make(map[string]*Node)}
}

// Nodes returns copies of all nodes in insertion order.
func (g *Graph) Nodes() []Node {
	out := make([]Node, len(g.nodes))
	for i, n := range g.nodes {
		out[i] = n.clone()
	}
	return out
}

// Node returns a copy of the named node.
func (g *Graph) Node(name string) (Node, bool) {
	n, ok := g.index[name]
	if !ok {
		return Node{}, false
	}
	return n.clone(), true
}

// Links returns all links in insertion order.
func (g *Graph) Links() []Link {
	return slices.Clone(g.links)
}

// Root returns the source node with no upstream link.
func (g *Graph) Root() (Node, bool) {
	for _, n := range g.nodes {
		if _, has := g.Upstream(n.Name); !has {
			return n.clone(), true
		}
	}
	return Node{}, false
}

// Upstream returns the producer feeding name.
func (g *Graph) Upstream(name string) (string, bool) {
	for _, l := range g.links {
		if l.To == name {
			return l.From, true
		}
	}
	return "", false
}

// Downstream returns the consumers fed by name, in link order.
func (g *Graph) Downstream(name string) []string {
	var out []string
	for _, l := range g.links {
		if l.From == name {
			out = append(out, l.To)
		}
	}
	return out
}

// NodesOfKind returns copies of every node of kind k.
func (g *Graph) NodesOfKind(k NodeKind) []Node {
	var out []Node
	for _, n := range g.nodes {
		if n.Kind == k {
			out = append(out, n.clone())
		}
	}
	return out
}

// Branch returns the nodes belonging to branch kind b.
func (g *Graph) Branch(b BranchKind) []Node {
	var out []Node
	for _, n := range g.nodes {
		if n.Branch == b {
			out = append(out, n.clone())
		}
	}
	return out
}

// PreviewSinks lists the appsinks that deliver samples to the application.
func (g *Graph) PreviewSinks() []string {
	var out []string
	for _, n := range g.nodes {
		if n.Branch == BranchPreview && n.Kind == KindSink {
			out = append(out, n.Name)
		}
	}
	return out
}

// Output reports where the persist branch writes, if there is one.
func (g *Graph) Output() (Output, bool) {
	if g.output == nil {
		return Output{}, false
	}
	return *g.output, true
}

// Sealed reports whether the graph was returned by Seal.
func (g *Graph) Sealed() bool { return g.sealed }

func (n *Node) clone() Node {
	c := *n
	c.Props = maps.Clone(n.Props)
	return c
}
