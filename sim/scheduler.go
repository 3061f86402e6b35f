package sim

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/inference-sim/procsim/sim/memory"
	"github.com/inference-sim/procsim/sim/trace"
)

// Memory is the memory manager surface the scheduler drives.
// *memory.Manager satisfies it.
type Memory interface {
	PageAccessor
	FrameCounter
	Register(pid int, name string, memSize int) error
	Free(pid int) error
	ProcessUsage(pid int) int
	Stats() memory.Stats
}

// Scheduler owns every admitted process and multiplexes them onto NumCPU
// core workers under FCFS or round-robin.
//
// Each pid lives in exactly one of ready, running or finished. All three,
// the core pool and the process table are guarded by mu. Lock order is
// mu → Process.mu → memory manager.
type Scheduler struct {
	cfg       Config
	quantum   int
	pacing    time.Duration
	mem       Memory
	clock     *Clock
	admission AdmissionPolicy
	trace     *trace.SimulationTrace

	mu       sync.Mutex
	cond     *sync.Cond
	procs    map[int]*Process
	ready    *ReadyQueue
	running  map[int]int // pid → core
	finished []int
	cores    *corePool
	started  bool
	stopping bool
	broken   bool
	stopCh   chan struct{}
	seq      int64

	halt    atomic.Bool
	wg      sync.WaitGroup
	nextPID atomic.Int64
}

// Option customizes a Scheduler at construction.
type Option func(*Scheduler)

// WithTrace records admission and dispatch decisions into st.
func WithTrace(st *trace.SimulationTrace) Option {
	return func(s *Scheduler) { s.trace = st }
}

// WithAdmissionPolicy overrides the policy named in Config.Admission.
func WithAdmissionPolicy(p AdmissionPolicy) Option {
	return func(s *Scheduler) { s.admission = p }
}

// WithMemory replaces the memory manager built from the config.
func WithMemory(m Memory) Option {
	return func(s *Scheduler) { s.mem = m }
}

// WithClock shares an existing clock.
func WithClock(c *Clock) Option {
	return func(s *Scheduler) { s.clock = c }
}

// NewScheduler validates cfg and returns a stopped scheduler.
func NewScheduler(cfg Config, opts ...Option) (*Scheduler, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	s := &Scheduler{
		cfg:     cfg,
		quantum: cfg.Quantum(),
		pacing:  cfg.TickInterval(),
		procs:   make(map[int]*Process),
		ready:   &ReadyQueue{},
		running: make(map[int]int),
		cores:   newCorePool(cfg.NumCPU),
	}
	s.cond = sync.NewCond(&s.mu)
	for _, opt := range opts {
		opt(s)
	}
	if s.mem == nil {
		s.mem = memory.NewManager(cfg.MaxOverallMem, cfg.MemPerFrame)
	}
	if s.clock == nil {
		s.clock = NewClock()
	}
	if s.admission == nil {
		s.admission = NewAdmissionPolicy(cfg.Admission)
	}
	return s, nil
}

// Config returns the configuration the scheduler was built with.
func (s *Scheduler) Config() Config { return s.cfg }

// Clock returns the shared cycle counter.
func (s *Scheduler) Clock() *Clock { return s.clock }

// Memory returns the memory manager.
func (s *Scheduler) Memory() Memory { return s.mem }

// NextPID returns a fresh process id. Ids start at 1 and are never reused.
func (s *Scheduler) NextPID() int {
	return int(s.nextPID.Add(1))
}

// CanAdmit reports whether a process of memSize bytes would pass admission now.
func (s *Scheduler) CanAdmit(memSize int) bool {
	if !IsPowerOfTwo(memSize) || memSize > s.cfg.MaxOverallMem {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	ok, _ := s.admission.Admit(memSize, s.mem)
	return ok
}

// Admit registers p with memory and appends it to the ready queue.
// Rejections return an *AdmissionError wrapping ErrAdmissionRejected.
func (s *Scheduler) Admit(p *Process) error {
	if p == nil {
		panic("Admit: process must not be nil")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	reason := ""
	switch {
	case !IsPowerOfTwo(p.MemSize):
		reason = fmt.Sprintf("memory size %d is not a power of two", p.MemSize)
	case p.MemSize > s.cfg.MaxOverallMem:
		reason = fmt.Sprintf("memory size %d exceeds physical memory %d", p.MemSize, s.cfg.MaxOverallMem)
	case s.procs[p.PID] != nil:
		reason = fmt.Sprintf("duplicate pid %d", p.PID)
	case s.liveNameLocked(p.Name):
		reason = fmt.Sprintf("duplicate name %q", p.Name)
	case p.State() != StateReady:
		reason = fmt.Sprintf("process is %s", p.State())
	}
	if reason == "" {
		if ok, why := s.admission.Admit(p.MemSize, s.mem); !ok {
			reason = why
		}
	}
	if reason == "" {
		if err := s.mem.Register(p.PID, p.Name, p.MemSize); err != nil {
			reason = err.Error()
		}
	}
	if s.trace != nil {
		s.trace.RecordAdmission(trace.AdmissionRecord{
			PID: p.PID, Name: p.Name, MemSize: p.MemSize, Clock: now, Admitted: reason == "", Reason: reason,
		})
	}
	if reason != "" {
		logrus.Debugf("[scheduler] rejected %s (pid %d): %s", p.Name, p.PID, reason)
		return &AdmissionError{PID: p.PID, Name: p.Name, Reason: reason}
	}

	p.mu.Lock()
	p.createdCycle = now
	p.mu.Unlock()
	s.procs[p.PID] = p
	s.ready.Enqueue(p.PID)
	s.cond.Broadcast()
	logrus.Debugf("[scheduler] admitted %s (pid %d, %dB, %d instructions)", p.Name, p.PID, p.MemSize, p.TotalInstructions())
	return nil
}

// liveNameLocked reports whether a ready or running process already uses name.
// Backing-store records are keyed by name, so live names must be unique.
func (s *Scheduler) liveNameLocked(name string) bool {
	for _, q := range s.procs {
		if q.Name == name && q.State() != StateFinished {
			return true
		}
	}
	return false
}

// Start launches one worker per core. A scheduler whose workers once failed
// to join cannot be restarted.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.broken {
		return fmt.Errorf("%w: scheduler cannot be restarted", ErrWorkerJoin)
	}
	if s.started {
		return ErrAlreadyRunning
	}
	s.started = true
	s.stopping = false
	s.halt.Store(false)
	s.stopCh = make(chan struct{})
	for i := 0; i < s.cfg.NumCPU; i++ {
		s.wg.Add(1)
		go s.coreWorker(s.stopCh)
	}
	logrus.Infof("[scheduler] started %d cores (%s, quantum %d)", s.cfg.NumCPU, s.cfg.Scheduler, s.quantum)
	return nil
}

// Stop signals the workers and waits for them until ctx expires. In-flight
// instructions complete and their processes return to the ready queue.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.started || s.stopping {
		s.mu.Unlock()
		return nil
	}
	s.stopping = true
	s.halt.Store(true)
	close(s.stopCh)
	s.cond.Broadcast()
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.mu.Lock()
		s.started = false
		s.mu.Unlock()
		logrus.Infof("[scheduler] stopped")
		return nil
	case <-ctx.Done():
		s.mu.Lock()
		s.broken = true
		s.mu.Unlock()
		logrus.Errorf("[scheduler] workers did not stop: %v", ctx.Err())
		return fmt.Errorf("%w: %w", ErrWorkerJoin, ctx.Err())
	}
}

// IsRunning reports whether workers are active and not stopping.
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.started && !s.stopping
}

func (s *Scheduler) coreWorker(stopCh <-chan struct{}) {
	defer s.wg.Done()
	for {
		p, core, seq, ok := s.acquire()
		if !ok {
			return
		}
		s.dispatch(p, core, seq, stopCh)
	}
}

// acquire blocks until a ready process and a free core exist, then claims
// both. Each fruitless wake-up is charged as one idle tick.
func (s *Scheduler) acquire() (*Process, int, int64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for !s.stopping && (s.ready.Len() == 0 || s.cores.freeCount() == 0) {
		s.cond.Wait()
		if !s.stopping && (s.ready.Len() == 0 || s.cores.freeCount() == 0) {
			s.clock.Idle()
		}
	}
	if s.stopping {
		return nil, -1, 0, false
	}
	pid, _ := s.ready.Dequeue()
	core := s.cores.claim()
	s.running[pid] = core
	p := s.procs[pid]
	p.markRunning(core)
	s.seq++
	logrus.Debugf("[scheduler] core %d took pid %d, ready %s", core, pid, s.ready)
	return p, core, s.seq, true
}

// dispatch runs p on core until it finishes, faults, exhausts its quantum or
// the scheduler stops.
func (s *Scheduler) dispatch(p *Process, core int, seq int64, stopCh <-chan struct{}) {
	start := s.clock.Now()
	executed := 0
	var fault error
	interrupted := false

	for !p.Done() {
		if s.quantum > 0 && executed >= s.quantum {
			break
		}
		res := p.Step(s.mem, core, s.clock.Now())
		executed++
		ticks := 1 + int64(res.SleepTicks) + int64(s.cfg.DelayPerExec)
		s.clock.Active(ticks)
		if res.Fault != nil {
			fault = res.Fault
			break
		}
		if s.halt.Load() {
			interrupted = true
			break
		}
		if s.pacing > 0 && !pace(s.pacing*time.Duration(ticks), stopCh) {
			interrupted = true
			break
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	end := s.clock.Now()
	outcome := trace.OutcomeRequeued
	switch {
	case fault != nil:
		outcome = trace.OutcomeFaulted
		logrus.Warnf("[scheduler] %s (pid %d) terminated on core %d: %v", p.Name, p.PID, core, fault)
		s.finishLocked(p, end, fault)
	case p.Done():
		outcome = trace.OutcomeFinished
		s.finishLocked(p, end, nil)
	default:
		if interrupted {
			outcome = trace.OutcomeStopped
		}
		p.markReady()
		s.ready.Enqueue(p.PID)
	}
	delete(s.running, p.PID)
	s.cores.release(core)
	if s.trace != nil {
		s.trace.RecordDispatch(trace.DispatchRecord{
			Seq: seq, PID: p.PID, Name: p.Name, Core: core, Executed: executed,
			StartClock: start, EndClock: end, Outcome: outcome,
		})
	}
	s.cond.Broadcast()
}

// finishLocked moves p to finished and releases its memory exactly once.
func (s *Scheduler) finishLocked(p *Process, cycle int64, fault error) {
	p.markFinished(cycle, fault)
	s.finished = append(s.finished, p.PID)
	if err := s.mem.Free(p.PID); err != nil {
		logrus.Errorf("[scheduler] releasing memory of %s (pid %d): %v", p.Name, p.PID, err)
	}
	logrus.Debugf("[scheduler] %s (pid %d) finished at cycle %d", p.Name, p.PID, cycle)
}

// pace sleeps for d unless stopCh closes first.
func pace(d time.Duration, stopCh <-chan struct{}) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-stopCh:
		return false
	}
}

// Snapshot is a consistent copy of the three process collections.
type Snapshot struct {
	Ready    []ProcessInfo // dispatch order
	Running  []ProcessInfo // by core id
	Finished []ProcessInfo // completion order
	Cycle    int64
}

// Snapshot copies the ready, running and finished collections atomically.
func (s *Scheduler) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := Snapshot{Cycle: s.clock.Now()}
	for _, pid := range s.ready.Items() {
		snap.Ready = append(snap.Ready, s.procs[pid].Info())
	}
	for pid := range s.running {
		snap.Running = append(snap.Running, s.procs[pid].Info())
	}
	sort.Slice(snap.Running, func(i, j int) bool { return snap.Running[i].Core < snap.Running[j].Core })
	for _, pid := range s.finished {
		snap.Finished = append(snap.Finished, s.procs[pid].Info())
	}
	return snap
}

// Process returns a snapshot of one process by pid.
func (s *Scheduler) Process(pid int) (ProcessInfo, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.procs[pid]
	if !ok {
		return ProcessInfo{}, false
	}
	return p.Info(), true
}

// ProcessByName returns a snapshot of the most recently admitted process
// with the given name.
func (s *Scheduler) ProcessByName(name string) (ProcessInfo, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var found *Process
	for _, p := range s.procs {
		if p.Name == name && (found == nil || p.PID > found.PID) {
			found = p
		}
	}
	if found == nil {
		return ProcessInfo{}, false
	}
	return found.Info(), true
}

// BusyCores returns the number of cores currently running a process.
func (s *Scheduler) BusyCores() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cores.busyCount()
}

// CoreCounts returns busy and idle core counts read under one lock, so they
// always sum to NumCPU.
func (s *Scheduler) CoreCounts() (busy, free int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cores.busyCount(), s.cores.freeCount()
}

// AvailableCores returns the number of idle cores.
func (s *Scheduler) AvailableCores() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cores.freeCount()
}

// CPUUtilization is the busy share of cores as a percentage, 0 when stopped.
func (s *Scheduler) CPUUtilization() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started || s.stopping {
		return 0
	}
	return 100 * float64(s.cores.busyCount()) / float64(s.cores.size())
}

// WaitIdle blocks until no process is ready or running, or ctx expires.
func (s *Scheduler) WaitIdle(ctx context.Context) error {
	ticker := time.NewTicker(time.Millisecond)
	defer ticker.Stop()
	for {
		s.mu.Lock()
		idle := s.ready.Len() == 0 && len(s.running) == 0
		s.mu.Unlock()
		if idle {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// VMStat combines memory statistics with the tick counters.
func (s *Scheduler) VMStat() VMStat {
	idle, active, total := s.clock.Ticks()
	return VMStat{Stats: s.mem.Stats(), IdleTicks: idle, ActiveTicks: active, TotalTicks: total}
}

// ProcessSMI reports CPU utilization and the memory held by each running process.
func (s *Scheduler) ProcessSMI() ProcessSMI {
	util := s.CPUUtilization()
	stats := s.mem.Stats()
	smi := ProcessSMI{
		CPUUtilization: util,
		UsedMemory:     stats.UsedMemory,
		TotalMemory:    stats.TotalMemory,
	}
	if stats.TotalMemory > 0 {
		smi.MemoryUtilization = 100 * float64(stats.UsedMemory) / float64(stats.TotalMemory)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for pid := range s.running {
		p := s.procs[pid]
		smi.Running = append(smi.Running, ProcessMemory{PID: pid, Name: p.Name, Bytes: s.mem.ProcessUsage(pid)})
	}
	sort.Slice(smi.Running, func(i, j int) bool { return smi.Running[i].PID < smi.Running[j].PID })
	return smi
}

// IsAdmissionRejected reports whether err is an admission rejection.
func IsAdmissionRejected(err error) bool {
	return errors.Is(err, ErrAdmissionRejected)
}
