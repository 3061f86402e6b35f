package workload

import (
	"fmt"
	"math/rand"

	"github.com/inference-sim/procsim/sim"
)

// opWeights sets the relative frequency of each opcode in synthesized programs.
var opWeights = []struct {
	op     sim.Opcode
	weight int
}{
	{sim.OpPrint, 3},
	{sim.OpDeclare, 3},
	{sim.OpAdd, 3},
	{sim.OpSub, 3},
	{sim.OpSleep, 1},
	{sim.OpFor, 1},
	{sim.OpRead, 2},
	{sim.OpWrite, 2},
}

const (
	maxLiteral  = 100 // ADD/SUB literal operands are drawn from [0, maxLiteral]
	maxSleep    = 10
	maxForBody  = 3
	maxForCount = 3
)

// HelloMessage is the text of a generated PRINT.
func HelloMessage(name string) string {
	return fmt.Sprintf("Hello world from %s!", name)
}

// CreateProgram synthesizes up to count top-level instructions whose total
// byte cost fits in memSize. An instruction that would overflow the remaining
// budget is replaced by a PRINT; generation stops when the budget is spent.
func CreateProgram(rng *rand.Rand, name string, count, memSize int) []sim.Instruction {
	prog := make([]sim.Instruction, 0, count)
	budget := memSize
	for len(prog) < count && budget > 0 {
		in := randomInstruction(rng, name, memSize, 0)
		if in.Cost() > budget {
			in = sim.NewPrint(HelloMessage(name))
		}
		prog = append(prog, in)
		budget -= in.Cost()
	}
	return prog
}

func pickOp(rng *rand.Rand, depth int) sim.Opcode {
	total := 0
	for _, w := range opWeights {
		if w.op == sim.OpFor && depth >= sim.MaxForDepth {
			continue
		}
		total += w.weight
	}
	r := rng.Intn(total)
	for _, w := range opWeights {
		if w.op == sim.OpFor && depth >= sim.MaxForDepth {
			continue
		}
		if r < w.weight {
			return w.op
		}
		r -= w.weight
	}
	panic("pickOp: weights exhausted")
}

func randomVar(rng *rand.Rand) uint8 {
	return uint8(rng.Intn(sim.NumVariables))
}

func randomOperand(rng *rand.Rand) sim.Operand {
	if rng.Intn(2) == 0 {
		return sim.Var(randomVar(rng))
	}
	return sim.Lit(uint16(rng.Intn(maxLiteral + 1)))
}

// randomAddr returns an even address inside [0, memSize).
func randomAddr(rng *rand.Rand, memSize int) uint16 {
	return uint16(rng.Intn(memSize/2) * 2)
}

// randomInstruction draws one instruction; depth is the enclosing FOR nesting.
func randomInstruction(rng *rand.Rand, name string, memSize, depth int) sim.Instruction {
	switch pickOp(rng, depth) {
	case sim.OpPrint:
		if rng.Intn(2) == 0 {
			return sim.NewPrint(HelloMessage(name))
		}
		return sim.NewPrintVar("Value from: ", randomVar(rng))
	case sim.OpDeclare:
		return sim.NewDeclare(randomVar(rng), uint16(rng.Intn(1<<16)))
	case sim.OpAdd:
		return sim.NewAdd(randomVar(rng), randomOperand(rng), randomOperand(rng))
	case sim.OpSub:
		return sim.NewSub(randomVar(rng), randomOperand(rng), randomOperand(rng))
	case sim.OpSleep:
		return sim.NewSleep(uint8(1 + rng.Intn(maxSleep)))
	case sim.OpFor:
		body := make([]sim.Instruction, 1+rng.Intn(maxForBody))
		for i := range body {
			body[i] = randomInstruction(rng, name, memSize, depth+1)
		}
		return sim.NewFor(body, 1+rng.Intn(maxForCount))
	case sim.OpRead:
		return sim.NewRead(randomVar(rng), randomAddr(rng, memSize))
	case sim.OpWrite:
		return sim.NewWrite(randomAddr(rng, memSize), randomOperand(rng))
	default:
		panic("randomInstruction: unhandled opcode")
	}
}
