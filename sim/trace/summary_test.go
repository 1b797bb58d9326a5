package trace

import "testing"

func TestSummarize_EmptyTrace_ZeroValues(t *testing.T) {
	// GIVEN an empty trace
	st := NewSimulationTrace(TraceConfig{Level: TraceLevelEvents})

	// WHEN summarized
	summary := Summarize(st)

	// THEN all counts are zero
	if summary.TotalDispatches != 0 {
		t.Errorf("expected 0 dispatches, got %d", summary.TotalDispatches)
	}
	if summary.UniqueTargets != 0 {
		t.Errorf("expected 0 unique targets, got %d", summary.UniqueTargets)
	}
	if len(summary.KindDistribution) != 0 || len(summary.TargetDistribution) != 0 {
		t.Error("expected empty distributions")
	}
}

func TestSummarize_NilTrace_ZeroValues(t *testing.T) {
	summary := Summarize(nil)
	if summary.TotalDispatches != 0 {
		t.Errorf("expected 0 dispatches, got %d", summary.TotalDispatches)
	}
}

func TestSummarize_PopulatedTrace_CorrectCounts(t *testing.T) {
	// GIVEN a trace with deliveries and timers on two actors
	st := NewSimulationTrace(TraceConfig{Level: TraceLevelEvents})
	st.RecordDispatch(DispatchRecord{Seq: 1, Clock: 0.0, Target: "network", Kind: "delivery:announcement"})
	st.RecordDispatch(DispatchRecord{Seq: 2, Clock: 0.05, Target: "node-0001", Kind: "announcement"})
	st.RecordDispatch(DispatchRecord{Seq: 3, Clock: 2.05, Target: "node-0001", Kind: "provider_observation_timeout"})

	// WHEN summarized
	summary := Summarize(st)

	// THEN counts and clock range match
	if summary.TotalDispatches != 3 {
		t.Errorf("expected 3 dispatches, got %d", summary.TotalDispatches)
	}
	if summary.UniqueTargets != 2 {
		t.Errorf("expected 2 unique targets, got %d", summary.UniqueTargets)
	}
	if summary.TargetDistribution["node-0001"] != 2 {
		t.Errorf("expected node-0001 count 2, got %d", summary.TargetDistribution["node-0001"])
	}
	if summary.KindDistribution["announcement"] != 1 {
		t.Errorf("expected 1 announcement, got %d", summary.KindDistribution["announcement"])
	}
	if summary.FirstClock != 0.0 || summary.LastClock != 2.05 {
		t.Errorf("expected clock range [0, 2.05], got [%v, %v]", summary.FirstClock, summary.LastClock)
	}
}
