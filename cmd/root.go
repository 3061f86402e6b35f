package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/inference-sim/procsim/sim"
	"github.com/inference-sim/procsim/sim/memory"
	"github.com/inference-sim/procsim/sim/trace"
	"github.com/inference-sim/procsim/sim/workload"
)

var (
	configPath       string        // YAML config file
	logLevel         string        // Log verbosity level
	duration         time.Duration // Wall-clock run length
	maxCycles        int64         // Stop once the clock reaches this cycle (0 = no limit)
	drain            bool          // Let admitted processes finish after generation stops
	stopTimeout      time.Duration // How long to wait for core workers to exit
	reportFile       string        // report-util output path
	backingStoreFile string        // Backing store dump path
	screenName       string        // Process to print in screen view after the run

	overrides configFlags
)

// rootCmd is the base command for the CLI
var rootCmd = &cobra.Command{
	Use:   "procsim",
	Short: "Multi-core process scheduler and demand-paging simulator",
}

// runCmd starts the cores and the generator, runs until a limit is reached,
// then prints the reports.
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the scheduler simulation",
	Run: func(cmd *cobra.Command, args []string) {
		setLogLevel()

		cfg, err := resolveConfig(configPath, cmd.Flags(), &overrides)
		if err != nil {
			logrus.Fatalf("%v", err)
		}
		logrus.Infof("Starting simulation: %d cores, %s scheduler, %dB memory in %dB frames",
			cfg.NumCPU, cfg.Scheduler, cfg.MaxOverallMem, cfg.MemPerFrame)

		var st *trace.SimulationTrace
		if trace.TraceLevel(cfg.Trace) == trace.TraceLevelDecisions {
			st = trace.NewSimulationTrace(trace.TraceConfig{Level: trace.TraceLevelDecisions})
		}
		mem := memory.NewManager(cfg.MaxOverallMem, cfg.MemPerFrame)
		sched, err := sim.NewScheduler(cfg, sim.WithMemory(mem), sim.WithTrace(st))
		if err != nil {
			logrus.Fatalf("%v", err)
		}
		gen, err := workload.NewGenerator(sched)
		if err != nil {
			logrus.Fatalf("%v", err)
		}

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		if err := sched.Start(); err != nil {
			logrus.Fatalf("%v", err)
		}
		if err := gen.Start(cfg.BatchProcessFreq); err != nil {
			logrus.Fatalf("%v", err)
		}

		waitForLimit(ctx, sched.Clock(), duration, maxCycles)
		gen.Stop()
		if drain {
			if err := sched.WaitIdle(ctx); err != nil {
				logrus.Warnf("Drain interrupted: %v", err)
			}
		}
		l := captureListing(sched)

		stopCtx, stopCancel := context.WithTimeout(context.Background(), stopTimeout)
		defer stopCancel()
		if err := sched.Stop(stopCtx); err != nil {
			logrus.Errorf("%v", err)
		}

		writeListing(os.Stdout, l)
		fmt.Println()
		sched.VMStat().Print(os.Stdout)
		fmt.Println()
		sched.ProcessSMI().Print(os.Stdout)
		if st != nil {
			fmt.Println()
			writeTraceSummary(os.Stdout, trace.Summarize(st))
		}
		if screenName != "" {
			info, ok := sched.ProcessByName(screenName)
			if !ok {
				logrus.Warnf("Process %s not found.", screenName)
			} else {
				fmt.Println()
				writeScreen(os.Stdout, info)
			}
		}

		if reportFile != "" {
			if err := writeReportFile(reportFile, l); err != nil {
				logrus.Errorf("%v", err)
			} else {
				logrus.Infof("Report generated at %s", reportFile)
			}
		}
		if backingStoreFile != "" {
			if err := writeBackingStoreFile(backingStoreFile, mem.BackingStore()); err != nil {
				logrus.Errorf("%v", err)
			}
		}

		generated, skipped := gen.Counts()
		logrus.Infof("Simulation complete: %d processes generated, %d skipped, %d cycles.",
			generated, skipped, sched.Clock().Now())
	},
}

// validateCmd checks a config file without running anything.
var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a configuration file and flag overrides",
	Run: func(cmd *cobra.Command, args []string) {
		setLogLevel()
		cfg, err := resolveConfig(configPath, cmd.Flags(), &overrides)
		if err != nil {
			logrus.Fatalf("%v", err)
		}
		fmt.Printf("Configuration OK: %d cores, %s scheduler, %d frames of %dB\n",
			cfg.NumCPU, cfg.Scheduler, cfg.MaxOverallMem/cfg.MemPerFrame, cfg.MemPerFrame)
	},
}

func setLogLevel() {
	level, err := logrus.ParseLevel(logLevel)
	if err != nil {
		logrus.Fatalf("Invalid log level: %s", logLevel)
	}
	logrus.SetLevel(level)
}

// waitForLimit blocks until ctx is cancelled, d elapses or the clock reaches
// maxCycle. Zero limits are ignored; with no limits it waits for ctx.
func waitForLimit(ctx context.Context, clock *sim.Clock, d time.Duration, maxCycle int64) {
	var deadline <-chan time.Time
	if d > 0 {
		timer := time.NewTimer(d)
		defer timer.Stop()
		deadline = timer.C
	}
	ticker := time.NewTicker(5 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-deadline:
			return
		case <-ticker.C:
			if maxCycle > 0 && clock.Now() >= maxCycle {
				return
			}
		}
	}
}

// Execute runs the CLI root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// init sets up CLI flags and subcommands
func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to YAML config file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log", "warn", "Log level (trace, debug, info, warn, error, fatal, panic)")
	overrides.register(rootCmd.PersistentFlags())

	runCmd.Flags().DurationVar(&duration, "duration", 5*time.Second, "Wall-clock run length (0 = until --cycles or interrupt)")
	runCmd.Flags().Int64Var(&maxCycles, "cycles", 0, "Stop once the clock reaches this cycle (0 = no limit)")
	runCmd.Flags().BoolVar(&drain, "drain", false, "After generation stops, wait for admitted processes to finish")
	runCmd.Flags().DurationVar(&stopTimeout, "stop-timeout", 5*time.Second, "Time allowed for core workers to exit")
	runCmd.Flags().StringVar(&reportFile, "report-file", "", "Write the process listing to this file (report-util)")
	runCmd.Flags().StringVar(&backingStoreFile, "backing-store", "", "Dump backing store records to this file")
	runCmd.Flags().StringVar(&screenName, "screen", "", "Print the screen view of this process after the run")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(validateCmd)
}
