package graph

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
)

// Describe renders g as a gst-launch-1.0 pipeline description. Tee
// branches use the "name. ! ..." form.
func Describe(g *Graph) string {
	root, ok := g.Root()
	if !ok {
		return ""
	}
	var sb strings.Builder
	describeChain(&sb, g, root.Name)
	return sb.String()
}

func describeChain(sb *strings.Builder, g *Graph, name string) {
	for {
		n := g.index[name]
		sb.WriteString(describeElement(n))

		next := g.Downstream(name)
		if n.Kind == KindTee {
			for _, d := range next {
				fmt.Fprintf(sb, " %s. ! ", n.Name)
				describeChain(sb, g, d)
			}
			return
		}
		if len(next) == 0 {
			return
		}
		sb.WriteString(" ! ")
		name = next[0]
	}
}

func describeElement(n *Node) string {
	parts := []string{n.Factory, "name=" + n.Name}
	keys := make([]string, 0, len(n.Props))
	for k := range n.Props {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		parts = append(parts, k+"="+formatValue(n.Props[k]))
	}
	return strings.Join(parts, " ")
}

func formatValue(v any) string {
	switch val := v.(type) {
	case Caps:
		return strconv.Quote(string(val))
	case string:
		if val == "" || strings.ContainsAny(val, " \t!,=\"'") {
			return strconv.Quote(val)
		}
		return val
	case bool:
		return strconv.FormatBool(val)
	default:
		return fmt.Sprint(val)
	}
}
