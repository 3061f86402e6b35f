package sim

import (
	"fmt"
	"math"
	"strings"
)

// Opcode tags the instruction variant.
type Opcode int

const (
	OpPrint Opcode = iota
	OpDeclare
	OpAdd
	OpSub
	OpSleep
	OpFor
	OpRead
	OpWrite
)

var opcodeNames = map[Opcode]string{
	OpPrint:   "PRINT",
	OpDeclare: "DECLARE",
	OpAdd:     "ADD",
	OpSub:     "SUBTRACT",
	OpSleep:   "SLEEP",
	OpFor:     "FOR",
	OpRead:    "READ",
	OpWrite:   "WRITE",
}

func (o Opcode) String() string {
	if name, ok := opcodeNames[o]; ok {
		return name
	}
	return fmt.Sprintf("Opcode(%d)", int(o))
}

const (
	// NumVariables is the size of the per-process variable table.
	NumVariables = 32
	// MaxForDepth bounds FOR nesting; the outermost loop is depth 1.
	MaxForDepth = 3
)

// Operand is either a variable reference or a 16-bit literal.
type Operand struct {
	IsVar   bool
	Var     uint8
	Literal uint16
}

// Lit returns a literal operand.
func Lit(v uint16) Operand { return Operand{Literal: v} }

// Var returns a variable-reference operand.
func Var(idx uint8) Operand { return Operand{IsVar: true, Var: idx} }

func (o Operand) String() string {
	if o.IsVar {
		return fmt.Sprintf("var%d", o.Var)
	}
	return fmt.Sprintf("%d", o.Literal)
}

// Instruction is one step of a process program. Op selects which fields are
// meaningful:
//
//	PRINT    Text, and A when PrintVar is set
//	DECLARE  Target, A (literal)
//	ADD/SUB  Target, A, B
//	SLEEP    Ticks
//	FOR      Body, Repeat
//	READ     Target, Addr
//	WRITE    Addr, A
type Instruction struct {
	Op       Opcode
	Text     string
	PrintVar bool
	Target   uint8
	A        Operand
	B        Operand
	Addr     uint16
	Ticks    uint8
	Body     []Instruction
	Repeat   int
}

// NewPrint returns a PRINT of a fixed message.
func NewPrint(text string) Instruction {
	return Instruction{Op: OpPrint, Text: text}
}

// NewPrintVar returns a PRINT that appends the value of a variable to text.
func NewPrintVar(text string, v uint8) Instruction {
	return Instruction{Op: OpPrint, Text: text, PrintVar: true, A: Var(v)}
}

// NewDeclare returns DECLARE(var, value).
func NewDeclare(v uint8, value uint16) Instruction {
	return Instruction{Op: OpDeclare, Target: v, A: Lit(value)}
}

// NewAdd returns ADD(target, a, b).
func NewAdd(target uint8, a, b Operand) Instruction {
	return Instruction{Op: OpAdd, Target: target, A: a, B: b}
}

// NewSub returns SUBTRACT(target, a, b).
func NewSub(target uint8, a, b Operand) Instruction {
	return Instruction{Op: OpSub, Target: target, A: a, B: b}
}

// NewSleep returns SLEEP(ticks).
func NewSleep(ticks uint8) Instruction {
	return Instruction{Op: OpSleep, Ticks: ticks}
}

// NewFor returns FOR([body], repeat).
func NewFor(body []Instruction, repeat int) Instruction {
	return Instruction{Op: OpFor, Body: body, Repeat: repeat}
}

// NewRead returns READ(var, addr).
func NewRead(v uint8, addr uint16) Instruction {
	return Instruction{Op: OpRead, Target: v, Addr: addr}
}

// NewWrite returns WRITE(addr, value).
func NewWrite(addr uint16, value Operand) Instruction {
	return Instruction{Op: OpWrite, Addr: addr, A: value}
}

// Cost returns the instruction's byte footprint in the process code region.
// A FOR costs one byte plus its body repeated.
func (in Instruction) Cost() int {
	switch in.Op {
	case OpPrint, OpSleep:
		return 1
	case OpDeclare, OpWrite:
		return 2
	case OpAdd, OpSub, OpRead:
		return 3
	case OpFor:
		return 1 + ProgramCost(in.Body)*in.Repeat
	default:
		panic(fmt.Sprintf("Cost: unknown opcode %d", in.Op))
	}
}

// ProgramCost sums Cost over a program.
func ProgramCost(prog []Instruction) int {
	total := 0
	for _, in := range prog {
		total += in.Cost()
	}
	return total
}

func (in Instruction) String() string {
	switch in.Op {
	case OpPrint:
		if in.PrintVar {
			return fmt.Sprintf("PRINT(%q + %s)", in.Text, in.A)
		}
		return fmt.Sprintf("PRINT(%q)", in.Text)
	case OpDeclare:
		return fmt.Sprintf("DECLARE(var%d, %s)", in.Target, in.A)
	case OpAdd, OpSub:
		return fmt.Sprintf("%s(var%d, %s, %s)", in.Op, in.Target, in.A, in.B)
	case OpSleep:
		return fmt.Sprintf("SLEEP(%d)", in.Ticks)
	case OpFor:
		parts := make([]string, len(in.Body))
		for i, b := range in.Body {
			parts[i] = b.String()
		}
		return fmt.Sprintf("FOR([%s], %d)", strings.Join(parts, ", "), in.Repeat)
	case OpRead:
		return fmt.Sprintf("READ(var%d, 0x%X)", in.Target, in.Addr)
	case OpWrite:
		return fmt.Sprintf("WRITE(0x%X, %s)", in.Addr, in.A)
	default:
		return in.Op.String()
	}
}

// ValidateProgram checks variable indices, opcodes and FOR nesting.
func ValidateProgram(prog []Instruction) error {
	return validateAt(prog, 0)
}

func validateAt(prog []Instruction, depth int) error {
	for i, in := range prog {
		if _, ok := opcodeNames[in.Op]; !ok {
			return fmt.Errorf("instruction %d: unknown opcode %d", i, in.Op)
		}
		for _, op := range []Operand{in.A, in.B} {
			if op.IsVar && int(op.Var) >= NumVariables {
				return fmt.Errorf("instruction %d: variable var%d out of range", i, op.Var)
			}
		}
		switch in.Op {
		case OpDeclare, OpAdd, OpSub, OpRead:
			if int(in.Target) >= NumVariables {
				return fmt.Errorf("instruction %d: variable var%d out of range", i, in.Target)
			}
		case OpFor:
			if depth+1 > MaxForDepth {
				return fmt.Errorf("instruction %d: FOR nesting exceeds %d", i, MaxForDepth)
			}
			if in.Repeat < 0 {
				return fmt.Errorf("instruction %d: negative FOR repeat %d", i, in.Repeat)
			}
			if err := validateAt(in.Body, depth+1); err != nil {
				return fmt.Errorf("instruction %d: %w", i, err)
			}
		}
	}
	return nil
}

// Unroll expands every FOR into its repeated body, yielding primitives only.
// The result preserves execution order.
func Unroll(prog []Instruction) []Instruction {
	out := make([]Instruction, 0, len(prog))
	for _, in := range prog {
		if in.Op != OpFor {
			out = append(out, in)
			continue
		}
		body := Unroll(in.Body)
		for r := 0; r < in.Repeat; r++ {
			out = append(out, body...)
		}
	}
	return out
}

// saturatingAdd clamps to the uint16 range.
func saturatingAdd(a, b uint16) uint16 {
	sum := uint32(a) + uint32(b)
	if sum > math.MaxUint16 {
		return math.MaxUint16
	}
	return uint16(sum)
}

// flooredSub clamps at zero.
func flooredSub(a, b uint16) uint16 {
	if b > a {
		return 0
	}
	return a - b
}
