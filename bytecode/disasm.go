package bytecode

import (
	"fmt"
	"strings"
)

// Disassemble returns a human-readable listing of fn's code array, one
// instruction per line. The REPL's `:code` command prints it; cmd/doji's
// `disasm` subcommand builds its tablewriter table from fn.Code directly
// instead. Disassemble itself stays dependency-free.
func Disassemble(fn *Function) string {
	var b strings.Builder
	fmt.Fprintf(&b, "; function %s/%d (%d locals, %d upvalues)\n", nameOr(fn.Name), fn.Arity, fn.NumLocals, len(fn.Upvalues))
	for i, instr := range fn.Code {
		op := instr.Op()
		if op.HasOperand() {
			fmt.Fprintf(&b, "%04d  %-12s %d\n", i, op, instr.Operand())
		} else {
			fmt.Fprintf(&b, "%04d  %-12s\n", i, op)
		}
	}
	for _, c := range fn.Constants {
		if c.Kind == ConstFunction {
			fmt.Fprintln(&b)
			b.WriteString(Disassemble(c.Fn))
		}
	}
	return b.String()
}

func nameOr(name string) string {
	if name == "" {
		return "<anonymous>"
	}
	return name
}
