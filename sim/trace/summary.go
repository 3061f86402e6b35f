package trace

// TraceSummary aggregates statistics from a SimulationTrace.
type TraceSummary struct {
	TotalDecisions   int
	AdmittedCount    int
	RejectedCount    int
	TotalDispatches  int
	InstructionsRun  int
	MeanPerDispatch  float64
	OutcomeCounts    map[string]int
	CoreDistribution map[int]int // core id → number of dispatches
	RejectReasons    map[string]int
}

// Summarize computes aggregate statistics from a SimulationTrace.
// Safe for nil or empty traces (returns zero-value fields).
func Summarize(st *SimulationTrace) *TraceSummary {
	summary := &TraceSummary{
		OutcomeCounts:    make(map[string]int),
		CoreDistribution: make(map[int]int),
		RejectReasons:    make(map[string]int),
	}
	if st == nil {
		return summary
	}

	admissions := st.Admissions()
	summary.TotalDecisions = len(admissions)
	for _, a := range admissions {
		if a.Admitted {
			summary.AdmittedCount++
		} else {
			summary.RejectedCount++
			summary.RejectReasons[a.Reason]++
		}
	}

	dispatches := st.Dispatches()
	summary.TotalDispatches = len(dispatches)
	for _, d := range dispatches {
		summary.OutcomeCounts[d.Outcome]++
		summary.CoreDistribution[d.Core]++
		summary.InstructionsRun += d.Executed
	}
	if len(dispatches) > 0 {
		summary.MeanPerDispatch = float64(summary.InstructionsRun) / float64(len(dispatches))
	}

	return summary
}
