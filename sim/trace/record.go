// Package trace records the dispatch order of a simulation run.
// This package has no dependencies on sim/; it stores pure data types.
package trace

// DispatchRecord captures a single dispatched event.
type DispatchRecord struct {
	Seq    uint64  // insertion sequence of the event
	Clock  float64 // dispatch time in seconds
	Target string
	Kind   string // payload kind, e.g. "request_timeout" or "delivery:cells"
}
