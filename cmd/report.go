package cmd

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/inference-sim/procsim/sim"
	"github.com/inference-sim/procsim/sim/memory"
	"github.com/inference-sim/procsim/sim/trace"
)

const rule = "--------------------------------------"

// listing is everything the screen -ls view prints.
type listing struct {
	Utilization float64
	BusyCores   int
	FreeCores   int
	Snapshot    sim.Snapshot
}

func captureListing(s *sim.Scheduler) listing {
	busy, free := s.CoreCounts()
	return listing{
		Utilization: s.CPUUtilization(),
		BusyCores:   busy,
		FreeCores:   free,
		Snapshot:    s.Snapshot(),
	}
}

// writeListing prints CPU usage followed by the running and finished processes.
func writeListing(w io.Writer, l listing) {
	fmt.Fprintf(w, "CPU utilization: %.2f%%\n", l.Utilization)
	fmt.Fprintf(w, "Cores used: %d\n", l.BusyCores)
	fmt.Fprintf(w, "Cores available: %d\n", l.FreeCores)
	fmt.Fprintln(w)
	fmt.Fprintln(w, rule)
	fmt.Fprintln(w, "Running processes:")
	for _, p := range l.Snapshot.Running {
		fmt.Fprintf(w, "%-20s (%s)   Core: %d   %d / %d\n",
			p.Name, p.CreatedAt.Format(sim.TimestampLayout), p.Core, p.InstructionPointer, p.TotalInstructions)
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Finished processes:")
	for _, p := range l.Snapshot.Finished {
		status := "Finished"
		if p.Fault != "" {
			status = "Terminated"
		}
		fmt.Fprintf(w, "%-20s (%s)   %-10s %d / %d\n",
			p.Name, p.FinishedAt.Format(sim.TimestampLayout), status, p.InstructionPointer, p.TotalInstructions)
	}
	fmt.Fprintln(w, rule)
}

// writeScreen prints the attached-screen view of one process.
func writeScreen(w io.Writer, p sim.ProcessInfo) {
	fmt.Fprintf(w, "Process name: %s\n", p.Name)
	fmt.Fprintf(w, "ID: %d\n", p.PID)
	fmt.Fprintln(w, "Logs:")
	for _, e := range p.Logs {
		fmt.Fprintln(w, e.String())
	}
	fmt.Fprintln(w)
	switch {
	case p.Fault != "":
		fmt.Fprintf(w, "Process %s shut down due to %s.\n", p.Name, p.Fault)
	case p.State == sim.StateFinished:
		fmt.Fprintln(w, "Finished!")
	default:
		fmt.Fprintf(w, "Current instruction line: %d\n", p.InstructionPointer)
		fmt.Fprintf(w, "Lines of code: %d\n", p.TotalInstructions)
	}
}

// writeTraceSummary prints the aggregate of a decision trace.
func writeTraceSummary(w io.Writer, ts *trace.TraceSummary) {
	fmt.Fprintln(w, "=== Trace Summary ===")
	fmt.Fprintf(w, "Admission decisions: %d (admitted %d, rejected %d)\n", ts.TotalDecisions, ts.AdmittedCount, ts.RejectedCount)
	reasons := make([]string, 0, len(ts.RejectReasons))
	for r := range ts.RejectReasons {
		reasons = append(reasons, r)
	}
	sort.Strings(reasons)
	for _, r := range reasons {
		fmt.Fprintf(w, "  rejected %d× %s\n", ts.RejectReasons[r], r)
	}
	fmt.Fprintf(w, "Dispatches: %d (%d instructions, %.2f per dispatch)\n", ts.TotalDispatches, ts.InstructionsRun, ts.MeanPerDispatch)
	outcomes := make([]string, 0, len(ts.OutcomeCounts))
	for o := range ts.OutcomeCounts {
		outcomes = append(outcomes, o)
	}
	sort.Strings(outcomes)
	for _, o := range outcomes {
		fmt.Fprintf(w, "  %-9s %d\n", o, ts.OutcomeCounts[o])
	}
	cores := make([]int, 0, len(ts.CoreDistribution))
	for c := range ts.CoreDistribution {
		cores = append(cores, c)
	}
	sort.Ints(cores)
	parts := make([]string, len(cores))
	for i, c := range cores {
		parts[i] = fmt.Sprintf("core %d: %d", c, ts.CoreDistribution[c])
	}
	fmt.Fprintf(w, "Per-core dispatches: %s\n", strings.Join(parts, ", "))
}

// writeReportFile saves the screen -ls view to path (report-util).
func writeReportFile(path string, l listing) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating report file: %w", err)
	}
	writeListing(f, l)
	if err := f.Close(); err != nil {
		return fmt.Errorf("writing report file: %w", err)
	}
	return nil
}

// writeBackingStoreFile dumps the backing store records to path.
func writeBackingStoreFile(path string, bs *memory.BackingStore) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating backing store file: %w", err)
	}
	if _, err := bs.WriteTo(f); err != nil {
		f.Close()
		return fmt.Errorf("writing backing store file: %w", err)
	}
	return f.Close()
}
