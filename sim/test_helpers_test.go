package sim

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/inference-sim/procsim/sim/trace"
)

// testConfig is a small, unpaced machine: 16KB of 4KB frames.
func testConfig() Config {
	cfg := DefaultConfig()
	cfg.NumCPU = 1
	cfg.Scheduler = SchedulerRR
	cfg.QuantumCycles = 3
	cfg.MaxOverallMem = 16384
	cfg.MemPerFrame = 4096
	cfg.MinMemPerProc = 4096
	cfg.MaxMemPerProc = 4096
	cfg.TickMs = 0
	return cfg
}

// newTestScheduler builds a traced scheduler from testConfig after applying mutate.
func newTestScheduler(t *testing.T, mutate func(*Config), opts ...Option) (*Scheduler, *trace.SimulationTrace) {
	t.Helper()
	cfg := testConfig()
	if mutate != nil {
		mutate(&cfg)
	}
	st := trace.NewSimulationTrace(trace.TraceConfig{Level: trace.TraceLevelDecisions})
	s, err := NewScheduler(cfg, append([]Option{WithTrace(st)}, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.Stop(ctx)
	})
	return s, st
}

// printProgram returns n PRINT instructions.
func printProgram(name string, n int) []Instruction {
	prog := make([]Instruction, n)
	for i := range prog {
		prog[i] = NewPrint(fmt.Sprintf("Hello world from %s!", name))
	}
	return prog
}

// admitPrints admits a process of n PRINTs and returns its pid.
func admitPrints(t *testing.T, s *Scheduler, n, memSize int) int {
	t.Helper()
	pid := s.NextPID()
	name := fmt.Sprintf("p%d", pid)
	p, err := NewProcess(pid, name, memSize, printProgram(name, n))
	require.NoError(t, err)
	require.NoError(t, s.Admit(p))
	return pid
}

func waitIdle(t *testing.T, s *Scheduler) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, s.WaitIdle(ctx))
}

func stop(t *testing.T, s *Scheduler) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, s.Stop(ctx))
}
