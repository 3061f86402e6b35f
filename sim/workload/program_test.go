package workload

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inference-sim/procsim/sim"
)

// forDepth returns the deepest FOR nesting in prog.
func forDepth(prog []sim.Instruction) int {
	deepest := 0
	for _, in := range prog {
		if in.Op == sim.OpFor {
			deepest = max(deepest, 1+forDepth(in.Body))
		}
	}
	return deepest
}

func TestCreateProgram_HonorsByteBudget(t *testing.T) {
	for seed := int64(0); seed < 20; seed++ {
		for _, memSize := range []int{2, 64, 256, 4096} {
			rng := rand.New(rand.NewSource(seed))
			prog := CreateProgram(rng, "auto_proc_1", 1000, memSize)
			assert.LessOrEqual(t, sim.ProgramCost(prog), memSize, "seed %d size %d", seed, memSize)
			assert.LessOrEqual(t, len(prog), 1000)
		}
	}
}

func TestCreateProgram_LargeBudget_EmitsRequestedCount(t *testing.T) {
	prog := CreateProgram(rand.New(rand.NewSource(3)), "p", 20, 65536)
	assert.Len(t, prog, 20)
}

func TestCreateProgram_ProducesValidPrograms(t *testing.T) {
	// GIVEN many synthesized programs
	for seed := int64(0); seed < 50; seed++ {
		const memSize = 1024
		prog := CreateProgram(rand.New(rand.NewSource(seed)), "p", 200, memSize)

		// THEN they validate, nest at most MaxForDepth deep and address inside the window
		require.NoError(t, sim.ValidateProgram(prog))
		assert.LessOrEqual(t, forDepth(prog), sim.MaxForDepth)
		for _, in := range sim.Unroll(prog) {
			if in.Op == sim.OpRead || in.Op == sim.OpWrite {
				assert.Less(t, int(in.Addr), memSize)
				assert.Zero(t, in.Addr%2, "address 0x%X must be even", in.Addr)
			}
		}
	}
}

func TestCreateProgram_DeterministicForSeed(t *testing.T) {
	a := CreateProgram(rand.New(rand.NewSource(9)), "p", 100, 4096)
	b := CreateProgram(rand.New(rand.NewSource(9)), "p", 100, 4096)
	assert.Equal(t, a, b)
}

func TestCreateProgram_UsesEveryOpcode(t *testing.T) {
	prog := CreateProgram(rand.New(rand.NewSource(1)), "p", 2000, 65536)
	seen := map[sim.Opcode]bool{}
	var walk func([]sim.Instruction)
	walk = func(p []sim.Instruction) {
		for _, in := range p {
			seen[in.Op] = true
			walk(in.Body)
		}
	}
	walk(prog)
	for _, w := range opWeights {
		assert.True(t, seen[w.op], "opcode %s never generated", w.op)
	}
}
