package trace

import "sync"

// TraceLevel controls the verbosity of decision tracing.
type TraceLevel string

const (
	// TraceLevelNone disables tracing (zero overhead).
	TraceLevelNone TraceLevel = "none"
	// TraceLevelDecisions captures all admission and dispatch decisions.
	TraceLevelDecisions TraceLevel = "decisions"
)

// validTraceLevels maps accepted trace level strings.
var validTraceLevels = map[TraceLevel]bool{
	TraceLevelNone:      true,
	TraceLevelDecisions: true,
	"":                  true, // empty defaults to none
}

// IsValidTraceLevel returns true if the given level string is a recognized trace level.
func IsValidTraceLevel(level string) bool {
	return validTraceLevels[TraceLevel(level)]
}

// TraceConfig controls trace collection behavior.
type TraceConfig struct {
	Level TraceLevel
}

// SimulationTrace collects decision records during a run.
// Core workers record concurrently, so every access goes through mu.
type SimulationTrace struct {
	Config TraceConfig

	mu         sync.Mutex
	admissions []AdmissionRecord
	dispatches []DispatchRecord
}

// NewSimulationTrace creates a SimulationTrace ready for recording.
func NewSimulationTrace(config TraceConfig) *SimulationTrace {
	return &SimulationTrace{
		Config:     config,
		admissions: make([]AdmissionRecord, 0),
		dispatches: make([]DispatchRecord, 0),
	}
}

// RecordAdmission appends an admission decision record.
func (st *SimulationTrace) RecordAdmission(record AdmissionRecord) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.admissions = append(st.admissions, record)
}

// RecordDispatch appends a dispatch record.
func (st *SimulationTrace) RecordDispatch(record DispatchRecord) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.dispatches = append(st.dispatches, record)
}

// Admissions returns a copy of the admission records in recording order.
func (st *SimulationTrace) Admissions() []AdmissionRecord {
	st.mu.Lock()
	defer st.mu.Unlock()
	return append([]AdmissionRecord(nil), st.admissions...)
}

// Dispatches returns a copy of the dispatch records in recording order.
func (st *SimulationTrace) Dispatches() []DispatchRecord {
	st.mu.Lock()
	defer st.mu.Unlock()
	return append([]DispatchRecord(nil), st.dispatches...)
}

// DispatchesFor returns the dispatch records of one process in recording order.
func (st *SimulationTrace) DispatchesFor(pid int) []DispatchRecord {
	var out []DispatchRecord
	for _, d := range st.Dispatches() {
		if d.PID == pid {
			out = append(out, d)
		}
	}
	return out
}
