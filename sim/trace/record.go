// Package trace provides decision-trace recording for scheduler analysis.
// This package has no dependencies on sim/; it stores pure data types.
package trace

// Dispatch outcomes recorded when a core releases a process.
const (
	OutcomeRequeued = "requeued" // quantum expired, back to the ready tail
	OutcomeFinished = "finished" // instruction pointer reached the end
	OutcomeFaulted  = "faulted"  // terminated by a memory access violation
	OutcomeStopped  = "stopped"  // scheduler stop interrupted the dispatch
)

// AdmissionRecord captures a single admission decision.
type AdmissionRecord struct {
	PID      int
	Name     string
	MemSize  int
	Clock    int64
	Admitted bool
	Reason   string
}

// DispatchRecord captures one residency of a process on a core.
type DispatchRecord struct {
	Seq        int64 // dispatch order, assigned when the core is claimed
	PID        int
	Name       string
	Core       int
	Executed   int // instructions executed during this dispatch
	StartClock int64
	EndClock   int64
	Outcome    string
}
