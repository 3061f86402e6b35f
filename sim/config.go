package sim

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/inference-sim/procsim/sim/trace"
)

// Scheduling policy names accepted in Config.Scheduler.
const (
	SchedulerFCFS = "fcfs"
	SchedulerRR   = "rr"
)

// Admission policy names accepted in Config.Admission.
const (
	AdmissionFrames = "frames"
	AdmissionAlways = "always-admit"
)

// MaxProcessMemory is the largest footprint addressable by READ/WRITE.
const MaxProcessMemory = 1 << 16

// ValidSchedulers is the set of recognized scheduler names.
var ValidSchedulers = map[string]bool{SchedulerFCFS: true, SchedulerRR: true}

// ValidAdmissionPolicies is the set of recognized admission policy names.
// Shared by Validate() and NewAdmissionPolicy() to avoid duplication.
var ValidAdmissionPolicies = map[string]bool{"": true, AdmissionFrames: true, AdmissionAlways: true}

// Config is the immutable simulator configuration. It is built once at
// startup and passed by value into the Scheduler, Generator and memory manager.
// YAML keys match the classic key/value config file.
type Config struct {
	NumCPU           int    `yaml:"num-cpu"`            // number of cores (worker goroutines)
	Scheduler        string `yaml:"scheduler"`          // "fcfs" or "rr"
	QuantumCycles    int    `yaml:"quantum-cycles"`     // instructions per RR dispatch
	BatchProcessFreq int    `yaml:"batch-process-freq"` // generator cadence in cycles
	MinIns           int    `yaml:"min-ins"`            // min top-level instructions per generated process
	MaxIns           int    `yaml:"max-ins"`            // max top-level instructions per generated process
	DelayPerExec     int    `yaml:"delay-per-exec"`     // extra simulated cycles charged per instruction
	MaxOverallMem    int    `yaml:"max-overall-mem"`    // physical memory in bytes
	MemPerFrame      int    `yaml:"mem-per-frame"`      // frame size in bytes
	MinMemPerProc    int    `yaml:"min-mem-per-proc"`   // power of two
	MaxMemPerProc    int    `yaml:"max-mem-per-proc"`   // power of two

	Seed      int64  `yaml:"seed"`      // master seed for workload generation
	TickMs    int    `yaml:"tick-ms"`   // real time per simulated tick; 0 runs unpaced
	Admission string `yaml:"admission"` // "frames" (default) or "always-admit"
	Trace     string `yaml:"trace"`     // "none" (default) or "decisions"
}

// DefaultConfig returns the configuration used when no file is given.
func DefaultConfig() Config {
	return Config{
		NumCPU:           4,
		Scheduler:        SchedulerRR,
		QuantumCycles:    5,
		BatchProcessFreq: 1,
		MinIns:           1000,
		MaxIns:           2000,
		DelayPerExec:     0,
		MaxOverallMem:    16384,
		MemPerFrame:      16,
		MinMemPerProc:    4096,
		MaxMemPerProc:    4096,
		Seed:             42,
		TickMs:           1,
		Admission:        AdmissionFrames,
		Trace:            string(trace.TraceLevelNone),
	}
}

// LoadConfig reads a YAML configuration file on top of DefaultConfig.
// Unknown keys are rejected so typos surface as errors.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("reading config: %w", err)
	}
	cfg := DefaultConfig()
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("parsing config: %w", err)
	}
	return cfg, nil
}

// IsPowerOfTwo reports whether n is a positive power of two.
func IsPowerOfTwo(n int) bool {
	return n > 0 && n&(n-1) == 0
}

// TickInterval returns the real-time pacing per simulated tick.
func (c Config) TickInterval() time.Duration {
	return time.Duration(c.TickMs) * time.Millisecond
}

// Quantum returns the per-dispatch instruction budget; 0 means unlimited (FCFS).
func (c Config) Quantum() int {
	if c.Scheduler == SchedulerRR {
		return c.QuantumCycles
	}
	return 0
}

// Validate checks names and ranges.
func (c Config) Validate() error {
	if c.NumCPU < 1 || c.NumCPU > 128 {
		return fmt.Errorf("num-cpu must be in [1, 128], got %d", c.NumCPU)
	}
	if !ValidSchedulers[c.Scheduler] {
		return fmt.Errorf("unknown scheduler %q", c.Scheduler)
	}
	if c.Scheduler == SchedulerRR && c.QuantumCycles < 1 {
		return fmt.Errorf("quantum-cycles must be positive for rr, got %d", c.QuantumCycles)
	}
	if c.BatchProcessFreq < 1 {
		return fmt.Errorf("batch-process-freq must be positive, got %d", c.BatchProcessFreq)
	}
	if c.MinIns < 1 || c.MaxIns < c.MinIns {
		return fmt.Errorf("instruction range [%d, %d] is invalid", c.MinIns, c.MaxIns)
	}
	if c.DelayPerExec < 0 {
		return fmt.Errorf("delay-per-exec must be non-negative, got %d", c.DelayPerExec)
	}
	for _, f := range []struct {
		name string
		v    int
	}{
		{"max-overall-mem", c.MaxOverallMem},
		{"mem-per-frame", c.MemPerFrame},
		{"min-mem-per-proc", c.MinMemPerProc},
		{"max-mem-per-proc", c.MaxMemPerProc},
	} {
		if !IsPowerOfTwo(f.v) {
			return fmt.Errorf("%s must be a power of two, got %d", f.name, f.v)
		}
	}
	if c.MemPerFrame > c.MaxOverallMem {
		return fmt.Errorf("mem-per-frame %d exceeds max-overall-mem %d", c.MemPerFrame, c.MaxOverallMem)
	}
	if c.MinMemPerProc < 2 || c.MaxMemPerProc < c.MinMemPerProc {
		return fmt.Errorf("process memory range [%d, %d] is invalid", c.MinMemPerProc, c.MaxMemPerProc)
	}
	if c.MaxMemPerProc > MaxProcessMemory {
		return fmt.Errorf("max-mem-per-proc %d exceeds the 16-bit address space", c.MaxMemPerProc)
	}
	if c.MaxMemPerProc > c.MaxOverallMem {
		return fmt.Errorf("max-mem-per-proc %d exceeds max-overall-mem %d", c.MaxMemPerProc, c.MaxOverallMem)
	}
	if c.TickMs < 0 {
		return fmt.Errorf("tick-ms must be non-negative, got %d", c.TickMs)
	}
	if !ValidAdmissionPolicies[c.Admission] {
		return fmt.Errorf("unknown admission policy %q", c.Admission)
	}
	if !trace.IsValidTraceLevel(c.Trace) {
		return fmt.Errorf("unknown trace level %q", c.Trace)
	}
	return nil
}
