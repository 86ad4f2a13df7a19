package ast

import (
	"fmt"
	"strings"
)

func (i *Identifier) String() string { return i.Name }

func (l *Literal) String() string {
	switch l.Kind {
	case LiteralString:
		return fmt.Sprintf("%q", l.Value)
	case LiteralHex:
		return fmt.Sprintf("hex%q", l.Value)
	}
	if l.Subdenomination != "" {
		return l.Value + " " + l.Subdenomination
	}
	return l.Value
}

func (b *BinaryOp) String() string {
	return fmt.Sprintf("%s %s %s", b.Left, b.Op, b.Right)
}

func (u *UnaryOp) String() string {
	if u.Op == "delete" {
		return "delete " + u.X.String()
	}
	if u.Prefix {
		return u.Op + u.X.String()
	}
	return u.X.String() + u.Op
}

func (a *Assignment) String() string {
	return fmt.Sprintf("%s %s %s", a.LHS, a.Op, a.RHS)
}

func (ia *IndexAccess) String() string {
	if ia.Index == nil {
		return ia.Base.String() + "[]"
	}
	return fmt.Sprintf("%s[%s]", ia.Base, ia.Index)
}

func (m *MemberAccess) String() string {
	return m.Base.String() + "." + m.Member
}

func (c *FunctionCall) String() string {
	var b strings.Builder
	b.WriteString(c.Callee.String())

	var opts []string
	if c.Value != nil {
		opts = append(opts, "value: "+c.Value.String())
	}
	if c.Gas != nil {
		opts = append(opts, "gas: "+c.Gas.String())
	}
	if len(opts) > 0 {
		b.WriteString("{" + strings.Join(opts, ", ") + "}")
	}

	b.WriteString("(")
	if len(c.Names) == len(c.Args) && len(c.Names) > 0 {
		b.WriteString("{")
		for i, arg := range c.Args {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(c.Names[i] + ": " + arg.String())
		}
		b.WriteString("}")
	} else {
		b.WriteString(joinExprs(c.Args))
	}
	b.WriteString(")")
	return b.String()
}

func (t *TupleExpr) String() string {
	if t.IsArray {
		return "[" + joinExprs(t.Elems) + "]"
	}
	return "(" + joinExprs(t.Elems) + ")"
}

func (c *Conditional) String() string {
	return fmt.Sprintf("%s ? %s : %s", c.Cond, c.Then, c.Else)
}

func (n *NewExpr) String() string {
	return "new " + n.TypeName.String()
}

func (e *ElementaryTypeName) String() string {
	return e.TypeName.String()
}

func joinExprs(exprs []Expr) string {
	parts := make([]string, len(exprs))
	for i, e := range exprs {
		if e != nil {
			parts[i] = e.String()
		}
	}
	return strings.Join(parts, ", ")
}

func (b *Block) String() string {
	var sb strings.Builder
	if b.Unchecked {
		sb.WriteString("unchecked ")
	}
	sb.WriteString("{\n")
	for _, s := range b.Statements {
		sb.WriteString("  " + strings.ReplaceAll(s.String(), "\n", "\n  ") + "\n")
	}
	sb.WriteString("}")
	return sb.String()
}

func (s *VarDeclStmt) String() string {
	var decl string
	if len(s.Decls) == 1 && s.Decls[0] != nil {
		decl = s.Decls[0].String()
	} else {
		parts := make([]string, len(s.Decls))
		for i, d := range s.Decls {
			if d != nil {
				parts[i] = d.String()
			}
		}
		decl = "(" + strings.Join(parts, ", ") + ")"
	}
	if s.Value == nil {
		return decl + ";"
	}
	return decl + " = " + s.Value.String() + ";"
}

func (s *ExprStmt) String() string { return s.X.String() + ";" }

func (s *IfStmt) String() string {
	out := fmt.Sprintf("if (%s) %s", s.Cond, s.Then)
	if s.Else != nil {
		out += " else " + s.Else.String()
	}
	return out
}

func (s *WhileStmt) String() string {
	return fmt.Sprintf("while (%s) %s", s.Cond, s.Body)
}

func (s *DoWhileStmt) String() string {
	return fmt.Sprintf("do %s while (%s);", s.Body, s.Cond)
}

func (s *ForStmt) String() string {
	var init, cond, update string
	if s.Init != nil {
		init = strings.TrimSuffix(s.Init.String(), ";")
	}
	if s.Cond != nil {
		cond = s.Cond.String()
	}
	if s.Update != nil {
		update = s.Update.String()
	}
	return fmt.Sprintf("for (%s; %s; %s) %s", init, cond, update, s.Body)
}

func (s *ReturnStmt) String() string {
	if s.Value == nil {
		return "return;"
	}
	return "return " + s.Value.String() + ";"
}

func (*BreakStmt) String() string       { return "break;" }
func (*ContinueStmt) String() string    { return "continue;" }
func (*ThrowStmt) String() string       { return "throw;" }
func (*PlaceholderStmt) String() string { return "_;" }
func (*InlineAssembly) String() string  { return "assembly { ... }" }

func (s *RevertStmt) String() string {
	return fmt.Sprintf("revert %s(%s);", s.Error, joinExprs(s.Args))
}

func (s *EmitStmt) String() string {
	return fmt.Sprintf("emit %s(%s);", s.Event, joinExprs(s.Args))
}

func (v *VariableDecl) String() string {
	var b strings.Builder
	if v.Type != nil {
		b.WriteString(v.Type.String())
	}
	if v.Location != "" {
		b.WriteString(" " + v.Location)
	}
	if v.Name != "" {
		b.WriteString(" " + v.Name)
	}
	return strings.TrimSpace(b.String())
}

func (u *SourceUnit) String() string {
	parts := make([]string, len(u.Contracts))
	for i, c := range u.Contracts {
		parts[i] = c.String()
	}
	return strings.Join(parts, "\n\n")
}

func (c *Contract) String() string {
	var b strings.Builder
	if c.Abstract {
		b.WriteString("abstract ")
	}
	b.WriteString(string(c.Kind) + " " + c.Name)
	if len(c.Bases) > 0 {
		b.WriteString(" is " + strings.Join(c.Bases, ", "))
	}
	b.WriteString(" {\n")
	for _, v := range c.StateVariables {
		line := v.String()
		if v.Value != nil {
			line += " = " + v.Value.String()
		}
		b.WriteString("  " + line + ";\n")
	}
	for _, f := range c.Functions {
		b.WriteString("  " + strings.ReplaceAll(f.String(), "\n", "\n  ") + "\n")
	}
	b.WriteString("}")
	return b.String()
}

func (s *StructDecl) String() string {
	fields := make([]string, len(s.Fields))
	for i, f := range s.Fields {
		fields[i] = f.String() + ";"
	}
	return fmt.Sprintf("struct %s { %s }", s.Name, strings.Join(fields, " "))
}

func (e *EnumDecl) String() string {
	return fmt.Sprintf("enum %s { %s }", e.Name, strings.Join(e.Values, ", "))
}

func (e *EventDecl) String() string {
	return fmt.Sprintf("event %s(%s);", e.Name, joinDecls(e.Params))
}

func (f *Function) String() string {
	var b strings.Builder
	switch f.Kind {
	case KindConstructor, KindFallback, KindReceive:
		b.WriteString(string(f.Kind))
	case KindModifier:
		b.WriteString("modifier " + f.Name)
	default:
		b.WriteString("function " + f.Name)
	}
	b.WriteString("(" + joinDecls(f.Params) + ")")
	if f.Visibility != "" {
		b.WriteString(" " + f.Visibility)
	}
	if f.Mutability != "" && f.Mutability != "nonpayable" {
		b.WriteString(" " + f.Mutability)
	}
	for _, m := range f.Modifiers {
		b.WriteString(" " + m.Name)
		if len(m.Args) > 0 {
			b.WriteString("(" + joinExprs(m.Args) + ")")
		}
	}
	if len(f.Returns) > 0 {
		b.WriteString(" returns (" + joinDecls(f.Returns) + ")")
	}
	if f.Body == nil {
		b.WriteString(";")
		return b.String()
	}
	b.WriteString(" " + f.Body.String())
	return b.String()
}

func joinDecls(decls []*VariableDecl) string {
	parts := make([]string, len(decls))
	for i, d := range decls {
		parts[i] = d.String()
	}
	return strings.Join(parts, ", ")
}
