package trace

// TraceLevel controls the verbosity of dispatch tracing.
type TraceLevel string

const (
	// TraceLevelNone disables tracing (zero overhead).
	TraceLevelNone TraceLevel = "none"
	// TraceLevelEvents captures every dispatched event.
	TraceLevelEvents TraceLevel = "events"
)

// validTraceLevels maps accepted trace level strings.
var validTraceLevels = map[TraceLevel]bool{
	TraceLevelNone:   true,
	TraceLevelEvents: true,
	"":               true, // empty defaults to none
}

// IsValidTraceLevel returns true if the given level string is a recognized trace level.
func IsValidTraceLevel(level string) bool {
	return validTraceLevels[TraceLevel(level)]
}

// TraceConfig controls trace collection behavior.
type TraceConfig struct {
	Level TraceLevel
}

// SimulationTrace collects dispatch records during a run.
type SimulationTrace struct {
	Config     TraceConfig
	Dispatches []DispatchRecord
}

// NewSimulationTrace creates a SimulationTrace ready for recording.
func NewSimulationTrace(config TraceConfig) *SimulationTrace {
	return &SimulationTrace{
		Config:     config,
		Dispatches: make([]DispatchRecord, 0),
	}
}

// RecordDispatch appends a dispatch record. No-op unless the level is events.
func (st *SimulationTrace) RecordDispatch(record DispatchRecord) {
	if st.Config.Level != TraceLevelEvents {
		return
	}
	st.Dispatches = append(st.Dispatches, record)
}

// Equal reports whether two traces hold the same dispatch sequence.
func (st *SimulationTrace) Equal(other *SimulationTrace) bool {
	if st == nil || other == nil {
		return st == other
	}
	if len(st.Dispatches) != len(other.Dispatches) {
		return false
	}
	for i := range st.Dispatches {
		if st.Dispatches[i] != other.Dispatches[i] {
			return false
		}
	}
	return true
}
