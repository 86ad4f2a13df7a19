package ir

import (
	"fmt"
	"io"
	"strings"
)

// Printer renders a program as indented text, one block per node.
type Printer struct {
	w      io.Writer
	indent int
	// SSA selects IRsSSA instead of IRs.
	SSA bool
}

func NewPrinter(w io.Writer, ssa bool) *Printer {
	return &Printer{w: w, SSA: ssa}
}

func (p *Printer) writeLine(format string, args ...any) {
	fmt.Fprintf(p.w, "%s%s\n", strings.Repeat("\t", p.indent), fmt.Sprintf(format, args...))
}

func (p *Printer) Print(prog *Program) {
	for _, c := range prog.Contracts {
		p.PrintContract(c)
	}
}

func (p *Printer) PrintContract(c *Contract) {
	p.writeLine("Contract %s", c.Name)
	p.indent++
	for _, f := range c.Modifiers {
		p.PrintFunction(f)
	}
	for _, f := range c.Functions {
		p.PrintFunction(f)
	}
	p.indent--
}

func (p *Printer) PrintFunction(f *Function) {
	kind := "Function"
	if f.IsModifier() {
		kind = "Modifier"
	}
	p.writeLine("%s %s", kind, f.CanonicalName())
	p.indent++
	defer func() { p.indent-- }()

	if f.Status != StatusComplete {
		p.writeLine("Status: %s (%v)", f.Status, f.Err)
		return
	}
	for _, n := range f.Nodes {
		p.writeLine("Node %d %s", n.ID, n.Type)
		p.indent++
		if n.Expression != nil {
			p.writeLine("Expression: %s", n.Expression)
		}
		ops := n.IRs
		label := "IRs"
		if p.SSA {
			ops, label = n.IRsSSA, "IRs SSA"
		}
		if len(ops) > 0 {
			p.writeLine("%s:", label)
			p.indent++
			for _, op := range ops {
				p.writeLine("%s", op)
			}
			p.indent--
		}
		p.indent--
	}
}

// Format returns the printed form of f.
func Format(f *Function, ssa bool) string {
	var b strings.Builder
	NewPrinter(&b, ssa).PrintFunction(f)
	return b.String()
}
