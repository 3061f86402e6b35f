package cmd

import (
	"fmt"

	"github.com/spf13/pflag"

	"github.com/inference-sim/procsim/sim"
)

// configFlags holds flag values that may override the config file.
type configFlags struct {
	numCPU    int
	scheduler string
	quantum   int
	batchFreq int
	delay     int
	seed      int64
	tickMs    int
	admission string
	trace     string
}

// register binds the override flags to fs with defaults from sim.DefaultConfig.
func (f *configFlags) register(fs *pflag.FlagSet) {
	d := sim.DefaultConfig()
	fs.IntVar(&f.numCPU, "num-cpu", d.NumCPU, "Number of simulated cores")
	fs.StringVar(&f.scheduler, "scheduler", d.Scheduler, "Scheduling policy (fcfs, rr)")
	fs.IntVar(&f.quantum, "quantum-cycles", d.QuantumCycles, "Instructions per round-robin dispatch")
	fs.IntVar(&f.batchFreq, "batch-process-freq", d.BatchProcessFreq, "Cycles between generated processes")
	fs.IntVar(&f.delay, "delay-per-exec", d.DelayPerExec, "Extra cycles charged per instruction")
	fs.Int64Var(&f.seed, "seed", d.Seed, "Seed for workload generation")
	fs.IntVar(&f.tickMs, "tick-ms", d.TickMs, "Real milliseconds per simulated tick (0 runs unpaced)")
	fs.StringVar(&f.admission, "admission", d.Admission, "Admission policy (frames, always-admit)")
	fs.StringVar(&f.trace, "trace", d.Trace, "Decision trace level (none, decisions)")
}

// resolveConfig loads path (or the defaults when empty), then applies every
// flag the user set explicitly, then validates.
func resolveConfig(path string, fs *pflag.FlagSet, f *configFlags) (sim.Config, error) {
	cfg := sim.DefaultConfig()
	if path != "" {
		loaded, err := sim.LoadConfig(path)
		if err != nil {
			return sim.Config{}, err
		}
		cfg = loaded
	}
	overrides := map[string]func(){
		"num-cpu":            func() { cfg.NumCPU = f.numCPU },
		"scheduler":          func() { cfg.Scheduler = f.scheduler },
		"quantum-cycles":     func() { cfg.QuantumCycles = f.quantum },
		"batch-process-freq": func() { cfg.BatchProcessFreq = f.batchFreq },
		"delay-per-exec":     func() { cfg.DelayPerExec = f.delay },
		"seed":               func() { cfg.Seed = f.seed },
		"tick-ms":            func() { cfg.TickMs = f.tickMs },
		"admission":          func() { cfg.Admission = f.admission },
		"trace":              func() { cfg.Trace = f.trace },
	}
	fs.Visit(func(fl *pflag.Flag) {
		if apply, ok := overrides[fl.Name]; ok {
			apply()
		}
	})
	if err := cfg.Validate(); err != nil {
		return sim.Config{}, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}
