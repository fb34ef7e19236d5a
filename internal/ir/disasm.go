package ir

import (
	"fmt"
	"io"
	"strings"
)

// Disassemble renders the tape range r of p, one instruction per line,
// indented by bracket depth. Comment instructions show their text.
func Disassemble(p *Program, r Range) string {
	var sb strings.Builder
	_ = WriteDisassembly(&sb, p, r)
	return sb.String()
}

// WriteDisassembly writes the disassembly of r to w.
func WriteDisassembly(w io.Writer, p *Program, r Range) error {
	depth := 0
	for pos := r.Start; pos < r.End; pos++ {
		in := p.Tape[pos]
		if in.Op.Closes() && depth > 0 {
			depth--
		}
		line := in.String()
		if in.Op == OpComment {
			line = fmt.Sprintf("%s %q", line, p.Comment(in))
		}
		if _, err := fmt.Fprintf(w, "%04d %s%s\n", pos, strings.Repeat("  ", depth), line); err != nil {
			return err
		}
		if in.Op.Opens() {
			depth++
		}
	}
	return nil
}
