// Tracks machine-wide counters reported by vmstat and process-smi.

package sim

import (
	"fmt"
	"io"

	"github.com/inference-sim/procsim/sim/memory"
)

// VMStat is a point-in-time view of memory and tick counters.
type VMStat struct {
	memory.Stats

	IdleTicks   int64
	ActiveTicks int64
	TotalTicks  int64
}

// ProcessMemory is one row of the process-smi table.
type ProcessMemory struct {
	PID   int
	Name  string
	Bytes int
}

// ProcessSMI summarizes CPU and memory use of the running processes.
type ProcessSMI struct {
	CPUUtilization    float64
	UsedMemory        int
	TotalMemory       int
	MemoryUtilization float64
	Running           []ProcessMemory
}

// Print writes a vmstat block to w.
func (v VMStat) Print(w io.Writer) {
	fmt.Fprintln(w, "=== vmstat ===")
	fmt.Fprintf(w, "%12d B total memory\n", v.TotalMemory)
	fmt.Fprintf(w, "%12d B used memory\n", v.UsedMemory)
	fmt.Fprintf(w, "%12d B free memory\n", v.FreeMemory)
	fmt.Fprintf(w, "%12d idle cpu ticks\n", v.IdleTicks)
	fmt.Fprintf(w, "%12d active cpu ticks\n", v.ActiveTicks)
	fmt.Fprintf(w, "%12d total cpu ticks\n", v.TotalTicks)
	fmt.Fprintf(w, "%12d num paged in\n", v.PagesPagedIn)
	fmt.Fprintf(w, "%12d num paged out\n", v.PagesPagedOut)
	fmt.Fprintf(w, "%12d page faults\n", v.PageFaults)
	fmt.Fprintf(w, "%12d residency hits\n", v.ResidencyHits)
	fmt.Fprintf(w, "%12d residency misses\n", v.ResidencyMisses)
}

// Print writes a process-smi block to w.
func (s ProcessSMI) Print(w io.Writer) {
	fmt.Fprintln(w, "-------------------------------------------")
	fmt.Fprintln(w, "| PROCESS-SMI V01.00 Driver Version: 01.00 |")
	fmt.Fprintln(w, "|             PAGING ALLOCATOR             |")
	fmt.Fprintln(w, "-------------------------------------------")
	fmt.Fprintf(w, "CPU-Util: %.2f%%\n", s.CPUUtilization)
	fmt.Fprintf(w, "Memory Usage: %dB / %dB\n", s.UsedMemory, s.TotalMemory)
	fmt.Fprintf(w, "Memory Util: %.2f%%\n", s.MemoryUtilization)
	fmt.Fprintln(w, "\n===========================================")
	fmt.Fprintln(w, "Running processes and memory usage:")
	fmt.Fprintln(w, "-------------------------------------------")
	for _, p := range s.Running {
		fmt.Fprintf(w, "%s (%dB)\n", p.Name, p.Bytes)
	}
	fmt.Fprintln(w, "-------------------------------------------")
}
