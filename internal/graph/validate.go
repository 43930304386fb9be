package graph

import (
	"strings"
)

// validate checks the structural rules every sealed graph obeys: one
// root source, one upstream link per other node, fan-out only at tees,
// no cycles, and every preview sink fed by a canonical format pin.
func validate(g *Graph) error {
	if len(g.nodes) == 0 {
		return configErr("graph", nil, "no nodes")
	}

	upstream := make(map[string]int, len(g.nodes))
	downstream := make(map[string][]string, len(g.nodes))
	for _, l := range g.links {
		if _, ok := g.index[l.From]; !ok {
			return configErr("link", l.From, "unknown producer")
		}
		if _, ok := g.index[l.To]; !ok {
			return configErr("link", l.To, "unknown consumer")
		}
		upstream[l.To]++
		downstream[l.From] = append(downstream[l.From], l.To)
	}

	var root *Node
	for _, n := range g.nodes {
		switch upstream[n.Name] {
		case 0:
			if root != nil {
				return configErr("graph", n.Name, "second root node besides %s", root.Name)
			}
			root = n
		case 1:
		default:
			return configErr("node", n.Name, "has %d upstream links", upstream[n.Name])
		}
		if n.Kind != KindTee && len(downstream[n.Name]) > 1 {
			return configErr("node", n.Name, "only tees may feed more than one node")
		}
	}
	if root == nil {
		return configErr("graph", nil, "no root node")
	}
	if root.Kind != KindSource {
		return configErr("graph", root.Name, "root is a %s, not a source", root.Kind)
	}

	// With one root and one upstream link per node, any node on a cycle
	// is unreachable from the root.
	seen := map[string]bool{root.Name: true}
	stack := []string{root.Name}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, next := range downstream[cur] {
			if !seen[next] {
				seen[next] = true
				stack = append(stack, next)
			}
		}
	}
	for _, n := range g.nodes {
		if !seen[n.Name] {
			return configErr("graph", n.Name, "node is not reachable from the source (cycle or detached)")
		}
	}

	for _, n := range g.nodes {
		if n.Branch != BranchPreview || n.Kind != KindSink {
			continue
		}
		up, _ := g.Upstream(n.Name)
		if !pinsCanonical(g.index[up]) {
			return configErr("preview sink", n.Name, "must be fed by a %s format pin", CanonicalFormat)
		}
	}
	return nil
}

func pinsCanonical(n *Node) bool {
	if n == nil || n.Factory != "capsfilter" {
		return false
	}
	caps, ok := n.Props["caps"].(Caps)
	if !ok {
		return false
	}
	for _, field := range strings.Split(string(caps), ",") {
		if strings.TrimSpace(field) == "format="+CanonicalFormat {
			return true
		}
	}
	return false
}
