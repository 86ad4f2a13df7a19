package ir

import (
	"fmt"
	"io"
	"strings"
)

func dotEscape(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return strings.ReplaceAll(s, `"`, `\"`)
}

func nodeLabel(n *Node, ssa bool) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Node %d\n%s", n.ID, n.Type)
	if n.Expression != nil {
		fmt.Fprintf(&b, "\n%s", n.Expression)
	}
	ops := n.IRs
	if ssa {
		ops = n.IRsSSA
	}
	if len(ops) > 0 {
		b.WriteString("\n\nIRs:")
		for _, op := range ops {
			b.WriteString("\n" + op.String())
		}
	}
	return dotEscape(b.String())
}

// WriteCFGDot writes f's control flow graph in Graphviz format. The true
// and false edges of conditional nodes are labelled.
func WriteCFGDot(w io.Writer, f *Function, ssa bool) error {
	var b strings.Builder
	b.WriteString("digraph {\n")
	for _, n := range f.Nodes {
		fmt.Fprintf(&b, "%d[label=\"%s\"];\n", n.ID, nodeLabel(n, ssa))
	}
	for _, n := range f.Nodes {
		for i, s := range n.Sons {
			switch {
			case n.Type.IsConditional() && len(n.Sons) == 2 && i == 0:
				fmt.Fprintf(&b, "%d->%d[label=\"True\"];\n", n.ID, s.ID)
			case n.Type.IsConditional() && len(n.Sons) == 2:
				fmt.Fprintf(&b, "%d->%d[label=\"False\"];\n", n.ID, s.ID)
			default:
				fmt.Fprintf(&b, "%d->%d;\n", n.ID, s.ID)
			}
		}
	}
	b.WriteString("}\n")
	_, err := io.WriteString(w, b.String())
	return err
}

// WriteDominatorDot writes f's dominator tree. f must have been converted
// to SSA.
func WriteDominatorDot(w io.Writer, f *Function) error {
	d := f.Dominance
	if d == nil {
		return fmt.Errorf("%s has no dominator information", f.CanonicalName())
	}
	var b strings.Builder
	b.WriteString("digraph {\n")
	for _, id := range d.Order {
		fmt.Fprintf(&b, "%d[label=\"%d %s\"];\n", id, id, f.Nodes[id].Type)
	}
	for _, id := range d.Order {
		for _, c := range d.Children[id] {
			fmt.Fprintf(&b, "%d->%d;\n", id, c)
		}
	}
	b.WriteString("}\n")
	_, err := io.WriteString(w, b.String())
	return err
}
