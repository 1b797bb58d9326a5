package trace

// TraceSummary aggregates statistics from a SimulationTrace.
type TraceSummary struct {
	TotalDispatches    int
	UniqueTargets      int
	FirstClock         float64
	LastClock          float64
	KindDistribution   map[string]int // payload kind → count
	TargetDistribution map[string]int // actor id → count
}

// Summarize computes aggregate statistics from a SimulationTrace.
// Safe for nil or empty traces (returns zero-value fields).
func Summarize(st *SimulationTrace) *TraceSummary {
	summary := &TraceSummary{
		KindDistribution:   make(map[string]int),
		TargetDistribution: make(map[string]int),
	}
	if st == nil || len(st.Dispatches) == 0 {
		return summary
	}

	summary.TotalDispatches = len(st.Dispatches)
	summary.FirstClock = st.Dispatches[0].Clock
	summary.LastClock = st.Dispatches[len(st.Dispatches)-1].Clock
	for _, d := range st.Dispatches {
		summary.KindDistribution[d.Kind]++
		summary.TargetDistribution[d.Target]++
	}
	summary.UniqueTargets = len(summary.TargetDistribution)

	return summary
}
