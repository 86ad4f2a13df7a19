package errors

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
)

// Reporter renders diagnostics against one source file.
type Reporter struct {
	filename string
	lines    []string
}

func NewReporter(filename, source string) *Reporter {
	return &Reporter{filename: filename, lines: strings.Split(source, "\n")}
}

// Format renders d as
//
//	error[E102]: undefined identifier 'balace'
//	   --> Bank.sol:4:9
//	    │
//	  4 │         balace[msg.sender] += amount;
//	    │         ^^^^^^
func (r *Reporter) Format(d Diagnostic) string {
	var b strings.Builder

	levelColor := levelColor(d.Level)
	dim := color.New(color.Faint).SprintFunc()
	bold := color.New(color.Bold).SprintFunc()

	if d.Code != "" {
		b.WriteString(fmt.Sprintf("%s[%s]: %s\n", levelColor(string(d.Level)), d.Code, d.Message))
	} else {
		b.WriteString(fmt.Sprintf("%s: %s\n", levelColor(string(d.Level)), d.Message))
	}

	width := max(3, len(fmt.Sprint(d.Position.Line+1)))
	indent := strings.Repeat(" ", width)

	if d.Position.Line > 0 {
		b.WriteString(fmt.Sprintf("%s %s %s:%d:%d\n", indent, dim("-->"), r.filename, d.Position.Line, d.Position.Column))
	} else {
		b.WriteString(fmt.Sprintf("%s %s %s\n", indent, dim("-->"), r.filename))
	}

	if line := d.Position.Line; line > 0 && line <= len(r.lines) {
		b.WriteString(fmt.Sprintf("%s %s\n", indent, dim("│")))
		b.WriteString(fmt.Sprintf("%s %s %s\n", bold(fmt.Sprintf("%*d", width, line)), dim("│"), r.lines[line-1]))

		length := d.Length
		if length <= 0 {
			length = 1
		}
		if rest := len(r.lines[line-1]) - d.Position.Column + 1; rest > 0 && length > rest {
			length = rest
		}
		marker := strings.Repeat(" ", max(0, d.Position.Column-1)) + levelColor(strings.Repeat("^", length))
		b.WriteString(fmt.Sprintf("%s %s %s\n", indent, dim("│"), marker))
	}

	cyan := color.New(color.FgCyan).SprintFunc()
	for _, s := range d.Suggestions {
		b.WriteString(fmt.Sprintf("%s %s: %s\n", indent, cyan("help"), s))
	}
	noteColor := color.New(color.FgBlue).SprintFunc()
	for _, n := range d.Notes {
		b.WriteString(fmt.Sprintf("%s %s %s %s\n", indent, dim("│"), noteColor("note:"), n))
	}
	if d.HelpText != "" {
		helpColor := color.New(color.FgGreen).SprintFunc()
		b.WriteString(fmt.Sprintf("%s %s %s %s\n", indent, dim("│"), helpColor("help:"), d.HelpText))
	}
	return b.String()
}

func levelColor(level Level) func(...interface{}) string {
	switch level {
	case Warning:
		return color.New(color.FgYellow, color.Bold).SprintFunc()
	case Note:
		return color.New(color.FgBlue, color.Bold).SprintFunc()
	default:
		return color.New(color.FgRed, color.Bold).SprintFunc()
	}
}
