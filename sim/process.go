// Defines the Process struct that models one simulated program: its code,
// variable table, data memory, state machine and execution log.

package sim

import (
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/inference-sim/procsim/sim/memory"
)

// ProcessState represents the lifecycle state of a process.
type ProcessState string

const (
	StateReady    ProcessState = "ready"
	StateRunning  ProcessState = "running"
	StateFinished ProcessState = "finished"
)

// legalTransitions lists the allowed state changes. Finished is terminal.
var legalTransitions = map[ProcessState]map[ProcessState]bool{
	StateReady:   {StateRunning: true},
	StateRunning: {StateReady: true, StateFinished: true},
}

// PageAccessor is the slice of the memory manager a process needs to execute.
type PageAccessor interface {
	AccessAddress(pid, addr int, write bool) (memory.Access, error)
}

// TimestampLayout formats wall-clock times in logs and listings.
const TimestampLayout = "01/02/2006, 03:04:05 PM"

// LogEntry is one line of a process's execution log.
type LogEntry struct {
	Time    time.Time
	Cycle   int64
	Core    int
	Message string
}

func (e LogEntry) String() string {
	return fmt.Sprintf("(%s) Core:%d %q", e.Time.Format(TimestampLayout), e.Core, e.Message)
}

// StepResult reports what one Step did.
type StepResult struct {
	Executed   Instruction
	SleepTicks int
	PageFaults int
	Fault      error // non-nil terminates the process
	Done       bool  // instruction pointer reached the end
}

type variable struct {
	value    uint16
	declared bool
}

// Process is a simulated program. PID, Name, MemSize and Program are fixed at
// construction; everything else is guarded by mu.
type Process struct {
	PID       int
	Name      string
	MemSize   int
	Program   []Instruction // as authored, FOR loops intact
	CreatedAt time.Time

	mu            sync.RWMutex
	state         ProcessState
	code          []Instruction // FOR loops unrolled
	offsets       []int         // byte offset of each code instruction
	ip            int
	vars          [NumVariables]variable
	data          map[uint16]uint16
	core          int
	createdCycle  int64
	finishedAt    time.Time
	finishedCycle int64
	fault         error
	logs          []LogEntry
	dispatches    int
}

// NewProcess validates the program, unrolls its loops and returns a Ready process.
func NewProcess(pid int, name string, memSize int, program []Instruction) (*Process, error) {
	if err := ValidateProgram(program); err != nil {
		return nil, fmt.Errorf("process %s: %w", name, err)
	}
	code := Unroll(program)
	offsets := make([]int, len(code))
	off := 0
	for i, in := range code {
		offsets[i] = off
		off += in.Cost()
	}
	return &Process{
		PID:       pid,
		Name:      name,
		MemSize:   memSize,
		Program:   program,
		CreatedAt: time.Now(),
		state:     StateReady,
		code:      code,
		offsets:   offsets,
		data:      make(map[uint16]uint16),
		core:      -1,
	}, nil
}

func (p *Process) String() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return fmt.Sprintf("Process: (PID: %d, Name: %s, State: %s, IP: %d/%d)", p.PID, p.Name, p.state, p.ip, len(p.code))
}

// TotalInstructions is the length of the unrolled program.
func (p *Process) TotalInstructions() int {
	return len(p.code)
}

// State returns the current lifecycle state.
func (p *Process) State() ProcessState {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.state
}

// Done reports whether every instruction has executed.
func (p *Process) Done() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.ip >= len(p.code)
}

// Variable returns the value of slot idx and whether it was declared.
// Undeclared slots read as zero.
func (p *Process) Variable(idx int) (uint16, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	v := p.vars[idx]
	return v.value, v.declared
}

// Word returns the 16-bit value stored at addr. Unwritten addresses read zero.
func (p *Process) Word(addr uint16) uint16 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.data[addr]
}

// Logs returns a copy of the execution log.
func (p *Process) Logs() []LogEntry {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]LogEntry(nil), p.logs...)
}

func (p *Process) transitionLocked(next ProcessState) {
	if !legalTransitions[p.state][next] {
		panic(fmt.Sprintf("process %d: illegal transition %s -> %s", p.PID, p.state, next))
	}
	p.state = next
}

func (p *Process) markRunning(core int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.transitionLocked(StateRunning)
	p.core = core
	p.dispatches++
}

func (p *Process) markReady() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.transitionLocked(StateReady)
	p.core = -1
}

func (p *Process) markFinished(cycle int64, fault error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.transitionLocked(StateFinished)
	p.finishedAt = time.Now()
	p.finishedCycle = cycle
	p.fault = fault
	p.core = -1
}

func (p *Process) read(op Operand) uint16 {
	if op.IsVar {
		return p.vars[op.Var].value
	}
	return op.Literal
}

func (p *Process) assign(idx uint8, v uint16) {
	p.vars[idx] = variable{value: v, declared: true}
}

// checkAddr enforces the [0, MemSize) window and 2-byte alignment.
func (p *Process) checkAddr(addr uint16) error {
	if int(addr) >= p.MemSize || addr%2 != 0 {
		return fmt.Errorf("%w: process %s accessed 0x%X (window 0x0-0x%X)", ErrOutOfRange, p.Name, addr, p.MemSize-1)
	}
	return nil
}

func (p *Process) touch(mem PageAccessor, addr int, write bool, res *StepResult) error {
	acc, err := mem.AccessAddress(p.PID, addr, write)
	if err != nil {
		return err
	}
	if acc.Fault {
		res.PageFaults++
		if acc.SwappedIn {
			logrus.Debugf("[process %s] page %d swapped in from the backing store", p.Name, acc.Page)
		}
		if acc.Evicted {
			logrus.Debugf("[process %s] page %d loaded into frame %d, evicted pid %d page %d",
				p.Name, acc.Page, acc.Frame, acc.EvictedPID, acc.EvictedPage)
		}
	}
	return nil
}

// Step executes the instruction at the pointer on the given core and advances
// the pointer. The code page holding the instruction is touched first, then
// any data page for READ/WRITE. Must only be called while Running.
func (p *Process) Step(mem PageAccessor, core int, cycle int64) StepResult {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state != StateRunning {
		panic(fmt.Sprintf("process %d: Step in state %s", p.PID, p.state))
	}
	if p.ip >= len(p.code) {
		return StepResult{Done: true}
	}

	in := p.code[p.ip]
	res := StepResult{Executed: in}
	p.ip++
	res.Done = p.ip >= len(p.code)

	codeAddr := min(p.offsets[p.ip-1], p.MemSize-1)
	if err := p.touch(mem, codeAddr, false, &res); err != nil {
		res.Fault = err
		return res
	}

	switch in.Op {
	case OpPrint:
		msg := in.Text
		if in.PrintVar {
			msg = fmt.Sprintf("%s%d", in.Text, p.read(in.A))
		}
		p.logs = append(p.logs, LogEntry{Time: time.Now(), Cycle: cycle, Core: core, Message: msg})
		logrus.Debugf("[process %s] core %d: %s", p.Name, core, msg)
	case OpDeclare:
		p.assign(in.Target, in.A.Literal)
	case OpAdd:
		p.assign(in.Target, saturatingAdd(p.read(in.A), p.read(in.B)))
	case OpSub:
		p.assign(in.Target, flooredSub(p.read(in.A), p.read(in.B)))
	case OpSleep:
		res.SleepTicks = int(in.Ticks)
	case OpRead, OpWrite:
		if err := p.checkAddr(in.Addr); err != nil {
			res.Fault = err
			return res
		}
		write := in.Op == OpWrite
		if err := p.touch(mem, int(in.Addr), write, &res); err != nil {
			res.Fault = err
			return res
		}
		if write {
			p.data[in.Addr] = p.read(in.A)
		} else {
			p.assign(in.Target, p.data[in.Addr])
		}
	default:
		panic(fmt.Sprintf("process %d: unexpected opcode %s in unrolled code", p.PID, in.Op))
	}
	return res
}

// ProcessInfo is a point-in-time copy of a process for reporting.
type ProcessInfo struct {
	PID                int
	Name               string
	State              ProcessState
	MemSize            int
	InstructionPointer int
	TotalInstructions  int
	Core               int // -1 unless Running
	Dispatches         int
	CreatedAt          time.Time
	CreatedCycle       int64
	FinishedAt         time.Time
	FinishedCycle      int64
	Fault              string
	Logs               []LogEntry
}

// Info returns a snapshot of the process.
func (p *Process) Info() ProcessInfo {
	p.mu.RLock()
	defer p.mu.RUnlock()
	info := ProcessInfo{
		PID:                p.PID,
		Name:               p.Name,
		State:              p.state,
		MemSize:            p.MemSize,
		InstructionPointer: p.ip,
		TotalInstructions:  len(p.code),
		Core:               p.core,
		Dispatches:         p.dispatches,
		CreatedAt:          p.CreatedAt,
		CreatedCycle:       p.createdCycle,
		FinishedAt:         p.finishedAt,
		FinishedCycle:      p.finishedCycle,
		Logs:               append([]LogEntry(nil), p.logs...),
	}
	if p.fault != nil {
		info.Fault = p.fault.Error()
	}
	return info
}
