package bytecode

import "fmt"

// Assembler builds a single Function's code array incrementally, with
// forward-jump label support. It is the shared primitive both the compiler
// package's codegen and hand-built test/CLI fixtures use to construct
// Functions without poking at Instruction encoding directly — the same
// role the teacher's codegen.Generator plays for the PROBE VM, adapted
// from register-destination emission to a stack-machine emitter.
type Assembler struct {
	Name      string
	Arity     int
	NumLocals int

	code      []Instruction
	constants []Constant
	constIdx  map[interface{}]int

	labels  map[string]int
	patches []patch
}

type patch struct {
	at    int
	label string
}

// NewAssembler creates an Assembler for a function with the given name and
// arity.
func NewAssembler(name string, arity int) *Assembler {
	return &Assembler{
		Name:      name,
		Arity:     arity,
		NumLocals: arity,
		constIdx:  make(map[interface{}]int),
		labels:    make(map[string]int),
	}
}

// Emit appends an instruction and returns its index.
func (a *Assembler) Emit(op Opcode, operand int32) int {
	a.code = append(a.code, Encode(op, operand))
	return len(a.code) - 1
}

// Label binds name to the current (next-to-be-emitted) instruction index.
func (a *Assembler) Label(name string) {
	a.labels[name] = len(a.code)
}

// EmitJump emits a JUMP-family opcode with a placeholder operand, to be
// patched to branch to label once it is bound.
func (a *Assembler) EmitJump(op Opcode, label string) int {
	at := a.Emit(op, 0)
	a.patches = append(a.patches, patch{at: at, label: label})
	return at
}

// AddConstant interns a constant (by value, for Int/Float/String) into the
// pool and returns its index. Function constants are never deduplicated
// since each is a distinct nested prototype.
func (a *Assembler) AddConstant(c Constant) int {
	if c.Kind != ConstFunction {
		key := constantKey(c)
		if idx, ok := a.constIdx[key]; ok {
			return idx
		}
		idx := len(a.constants)
		a.constants = append(a.constants, c)
		a.constIdx[key] = idx
		return idx
	}
	a.constants = append(a.constants, c)
	return len(a.constants) - 1
}

func constantKey(c Constant) interface{} {
	switch c.Kind {
	case ConstInt:
		return [2]interface{}{ConstInt, c.Int}
	case ConstFloat:
		return [2]interface{}{ConstFloat, c.Float}
	case ConstString:
		return [2]interface{}{ConstString, c.Str}
	default:
		return c
	}
}

// AllocLocal reserves and returns the next frame-relative slot index,
// bumping NumLocals if needed.
func (a *Assembler) AllocLocal() int {
	slot := a.NumLocals
	a.NumLocals++
	return slot
}

// Finish resolves all pending jump patches and returns the assembled
// Function. It is an error to call Finish with an unbound label reference.
func (a *Assembler) Finish() (*Function, error) {
	for _, p := range a.patches {
		target, ok := a.labels[p.label]
		if !ok {
			return nil, fmt.Errorf("bytecode: undefined label %q", p.label)
		}
		// JUMP's operand is relative to the instruction *after* the JUMP.
		rel := int32(target - (p.at + 1))
		a.code[p.at] = Encode(a.code[p.at].Op(), rel)
	}
	return &Function{
		Name:      a.Name,
		Arity:     a.Arity,
		Constants: a.constants,
		Code:      a.code,
		NumLocals: a.NumLocals,
	}, nil
}

// FinishWithUpvalues is Finish plus an explicit upvalue descriptor list,
// for functions produced by the compiler that capture outer variables.
func (a *Assembler) FinishWithUpvalues(upvalues []UpvalueDesc) (*Function, error) {
	fn, err := a.Finish()
	if err != nil {
		return nil, err
	}
	fn.Upvalues = upvalues
	return fn, nil
}

// Len returns the number of instructions emitted so far (useful for
// computing relative offsets outside of labels).
func (a *Assembler) Len() int { return len(a.code) }
