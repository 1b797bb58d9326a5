package trace

import (
	"testing"
)

func TestSimulationTrace_RecordDispatch_AppendsRecord(t *testing.T) {
	// GIVEN a trace configured for events
	st := NewSimulationTrace(TraceConfig{Level: TraceLevelEvents})

	// WHEN a dispatch is recorded
	st.RecordDispatch(DispatchRecord{Seq: 7, Clock: 1.5, Target: "node-0003", Kind: "cells"})

	// THEN the trace contains one record with correct data
	if len(st.Dispatches) != 1 {
		t.Fatalf("expected 1 dispatch, got %d", len(st.Dispatches))
	}
	d := st.Dispatches[0]
	if d.Seq != 7 || d.Clock != 1.5 || d.Target != "node-0003" || d.Kind != "cells" {
		t.Errorf("unexpected record %+v", d)
	}
}

func TestSimulationTrace_LevelNone_RecordsNothing(t *testing.T) {
	st := NewSimulationTrace(TraceConfig{Level: TraceLevelNone})
	st.RecordDispatch(DispatchRecord{Seq: 1, Target: "network"})
	if len(st.Dispatches) != 0 {
		t.Errorf("expected no records at level none, got %d", len(st.Dispatches))
	}
}

func TestSimulationTrace_Equal(t *testing.T) {
	a := NewSimulationTrace(TraceConfig{Level: TraceLevelEvents})
	b := NewSimulationTrace(TraceConfig{Level: TraceLevelEvents})
	rec := DispatchRecord{Seq: 1, Clock: 0.1, Target: "network", Kind: "delivery:cells"}
	a.RecordDispatch(rec)
	b.RecordDispatch(rec)
	if !a.Equal(b) {
		t.Error("expected identical traces to be equal")
	}
	b.RecordDispatch(rec)
	if a.Equal(b) {
		t.Error("expected traces of different length to differ")
	}
}

func TestIsValidTraceLevel(t *testing.T) {
	tests := []struct {
		level string
		want  bool
	}{
		{"none", true},
		{"events", true},
		{"", true},
		{"decisions", false},
	}
	for _, tt := range tests {
		if got := IsValidTraceLevel(tt.level); got != tt.want {
			t.Errorf("IsValidTraceLevel(%q) = %v, want %v", tt.level, got, tt.want)
		}
	}
}
