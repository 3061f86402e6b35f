// Package workload synthesizes processes and feeds them to the scheduler.
package workload

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/inference-sim/procsim/sim"
)

// ErrGeneratorRunning is returned by Start on a running generator.
var ErrGeneratorRunning = errors.New("generator already running")

// defaultInterval paces an unpaced configuration so the loop does not spin.
const defaultInterval = time.Millisecond

// Generator emits a new process every BatchProcessFreq cycles while the
// scheduler has room for it. It runs independently of scheduler shutdown.
type Generator struct {
	sched    *sim.Scheduler
	clock    *sim.Clock
	sizes    IntSampler
	counts   IntSampler
	rng      *sim.PartitionedRNG
	interval time.Duration

	mu        sync.Mutex
	running   bool
	freq      int64
	lastBatch int64
	stopCh    chan struct{}
	done      chan struct{}
	generated int
	skipped   int
}

// NewGenerator builds a generator from the scheduler's configuration.
func NewGenerator(sched *sim.Scheduler) (*Generator, error) {
	cfg := sched.Config()
	sizes, err := NewPowerOfTwoSampler(cfg.MinMemPerProc, cfg.MaxMemPerProc)
	if err != nil {
		return nil, fmt.Errorf("memory sizes: %w", err)
	}
	counts, err := NewUniformSampler(cfg.MinIns, cfg.MaxIns)
	if err != nil {
		return nil, fmt.Errorf("instruction counts: %w", err)
	}
	interval := cfg.TickInterval()
	if interval <= 0 {
		interval = defaultInterval
	}
	return &Generator{
		sched:     sched,
		clock:     sched.Clock(),
		sizes:     sizes,
		counts:    counts,
		rng:       sim.NewPartitionedRNG(sim.NewSimulationKey(cfg.Seed)),
		interval:  interval,
		freq:      int64(cfg.BatchProcessFreq),
		lastBatch: -1,
	}, nil
}

// Start launches the generation loop with the given cadence in cycles.
func (g *Generator) Start(freq int) error {
	if freq < 1 {
		return fmt.Errorf("batch frequency must be positive, got %d", freq)
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.running {
		return ErrGeneratorRunning
	}
	g.running = true
	g.freq = int64(freq)
	g.stopCh = make(chan struct{})
	g.done = make(chan struct{})
	go g.loop(g.stopCh, g.done)
	logrus.Infof("[generator] started (every %d cycles)", freq)
	return nil
}

// Stop halts generation and waits for the loop to exit. Already admitted
// processes keep running.
func (g *Generator) Stop() {
	g.mu.Lock()
	if !g.running {
		g.mu.Unlock()
		return
	}
	g.running = false
	close(g.stopCh)
	done := g.done
	g.mu.Unlock()
	<-done
	generated, skipped := g.Counts()
	logrus.Infof("[generator] stopped (%d generated, %d skipped)", generated, skipped)
}

// IsRunning reports whether the loop is active.
func (g *Generator) IsRunning() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.running
}

// Counts returns how many processes were admitted and how many emissions
// were skipped for lack of memory.
func (g *Generator) Counts() (generated, skipped int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.generated, g.skipped
}

func (g *Generator) loop(stopCh <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(g.interval)
	defer ticker.Stop()
	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			g.tick()
		}
	}
}

// tick advances the clock by one idle tick and emits a process when the
// cycle count has crossed a new multiple of the cadence. Returns the admitted
// process, if any.
func (g *Generator) tick() *sim.Process {
	cycle := g.clock.Idle()
	g.mu.Lock()
	defer g.mu.Unlock()
	batch := cycle / g.freq
	if batch <= g.lastBatch {
		return nil
	}
	g.lastBatch = batch
	return g.emitLocked()
}

func (g *Generator) emitLocked() *sim.Process {
	wrng := g.rng.ForSubsystem(sim.SubsystemWorkload)
	memSize := g.sizes.Sample(wrng)
	if !g.sched.CanAdmit(memSize) {
		g.skipped++
		logrus.Debugf("[generator] skipped: no room for %dB", memSize)
		return nil
	}
	count := g.counts.Sample(wrng)
	pid := g.sched.NextPID()
	name := fmt.Sprintf("auto_proc_%d", pid)
	prog := CreateProgram(g.rng.ForSubsystem(sim.SubsystemProgram), name, count, memSize)
	p, err := sim.NewProcess(pid, name, memSize, prog)
	if err != nil {
		logrus.Errorf("[generator] synthesized invalid program for %s: %v", name, err)
		g.skipped++
		return nil
	}
	if err := g.sched.Admit(p); err != nil {
		logrus.Debugf("[generator] %v", err)
		g.skipped++
		return nil
	}
	g.generated++
	return p
}
