package transport

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sparse-blobpool/blobsim/sim"
	"github.com/sparse-blobpool/blobsim/sim/metrics"
	"github.com/sparse-blobpool/blobsim/sim/protocol"
)

// inbox records every payload it receives.
type inbox struct {
	sim.BaseActor
	got   []sim.Payload
	times []float64
}

func (a *inbox) HandleEvent(p sim.Payload) error {
	a.got = append(a.got, p)
	a.times = append(a.times, a.Now())
	return nil
}

func steadyTable() *LatencyTable {
	t := NewLatencyTable(LatencyParams{BaseMs: 50, JitterRatio: 0})
	t.Set(RegionNA, RegionNA, LatencyParams{BaseMs: 20, JitterRatio: 0})
	t.Set(RegionNA, RegionEU, LatencyParams{BaseMs: 45, JitterRatio: 0})
	return t
}

func noAQM(bw float64) Config {
	return Config{DefaultBandwidth: bw}
}

func TestTransport_Delay_BasePlusTransmission(t *testing.T) {
	s := sim.NewSimulator(1)
	tr := New(s, steadyTable(), noAQM(1000), nil)
	tr.Place("a", RegionNA, 0)
	tr.Place("b", RegionEU, 0)

	assert.InDelta(t, 0.045+0.5, tr.Delay("a", "b", 500), 1e-12)
}

func TestTransport_Delay_SlowerEndpointBounds(t *testing.T) {
	s := sim.NewSimulator(1)
	tr := New(s, steadyTable(), noAQM(1_000_000), nil)
	tr.Place("a", RegionNA, 0)
	tr.Place("b", RegionNA, 100)

	assert.InDelta(t, 0.020+2.0, tr.Delay("a", "b", 200), 1e-12)
	assert.InDelta(t, 0.020+2.0, tr.Delay("b", "a", 200), 1e-12)
}

func TestTransport_Delay_FallbackForUnknownPair(t *testing.T) {
	s := sim.NewSimulator(1)
	tr := New(s, steadyTable(), noAQM(1e12), nil)
	tr.Place("a", RegionAS, 0)
	tr.Place("b", RegionEU, 0)

	assert.InDelta(t, 0.050, tr.Delay("a", "b", 1), 1e-9)
}

func TestTransport_Delay_NeverNegative(t *testing.T) {
	s := sim.NewSimulator(3)
	table := NewLatencyTable(LatencyParams{BaseMs: 10, JitterRatio: 5})
	tr := New(s, table, noAQM(1e9), nil)
	for i := 0; i < 1000; i++ {
		assert.GreaterOrEqual(t, tr.Delay("a", "b", 10), 0.0)
	}
}

func TestTransport_Delay_SameSeedSameJitter(t *testing.T) {
	draw := func() []float64 {
		s := sim.NewSimulator(99)
		tr := New(s, DefaultLatencyTable(), noAQM(1e8), nil)
		tr.Place("a", RegionNA, 0)
		tr.Place("b", RegionAS, 0)
		out := make([]float64, 20)
		for i := range out {
			out[i] = tr.Delay("a", "b", 1000)
		}
		return out
	}
	assert.Equal(t, draw(), draw())
}

func TestTransport_HandleEvent_SchedulesDeliveryAndRecordsBandwidth(t *testing.T) {
	// GIVEN a transport and two registered actors
	s := sim.NewSimulator(1)
	clock := metrics.NewCollector(s, 2)
	clock.EnableCallLog()
	tr := New(s, steadyTable(), noAQM(1000), clock)
	tr.Place("a", RegionNA, 0)
	tr.Place("b", RegionNA, 0)
	sender := &inbox{BaseActor: sim.NewBaseActor("a", s)}
	receiver := &inbox{BaseActor: sim.NewBaseActor("b", s)}
	for _, a := range []sim.Actor{tr, sender, receiver} {
		require.NoError(t, s.Register(a))
	}

	// WHEN a sends a 72-byte body request to b
	msg := &protocol.GetPooledTransactions{Envelope: sim.Envelope{From: "a"}, RequestID: 1, Hashes: make([]protocol.TxHash, 2)}
	sender.Send("b", msg)
	require.NoError(t, s.Run(10))

	// THEN b receives it after base latency plus transmission time
	require.Len(t, receiver.got, 1)
	assert.Same(t, msg, receiver.got[0])
	assert.InDelta(t, 0.020+72.0/1000, receiver.times[0], 1e-12)
	assert.Equal(t, uint64(1), tr.Delivered())

	// THEN the bandwidth was recorded when the request was handled
	require.Len(t, clock.Calls(), 1)
	call := clock.Calls()[0]
	assert.Equal(t, metrics.CallBandwidth, call.Kind)
	assert.Equal(t, 72, call.Size)
	assert.Equal(t, protocol.KindGetPooledTransactions, call.MsgKind)
	assert.Equal(t, 0.0, call.Time)
}

func TestTransport_HandleEvent_RejectsNonDelivery(t *testing.T) {
	s := sim.NewSimulator(1)
	tr := New(s, steadyTable(), noAQM(1000), nil)
	err := tr.HandleEvent(sim.Timer{Kind: sim.TimerSlotTick})
	assert.Error(t, err)
}

func TestLatencyTable_Symmetric(t *testing.T) {
	table := DefaultLatencyTable()
	assert.Equal(t, table.Lookup(RegionNA, RegionAS), table.Lookup(RegionAS, RegionNA))
	assert.Equal(t, 90.0, table.Lookup(RegionAS, RegionNA).BaseMs)
	assert.Equal(t, FallbackLatency, table.Lookup("SA", RegionNA))
}

func TestLatencyTableFromConfig(t *testing.T) {
	ratio := 0.3
	table := LatencyTableFromConfig([]sim.LatencyConfig{
		{From: "NA", To: "EU", BaseMs: 40, JitterRatio: &ratio},
		{From: "EU", To: "EU", BaseMs: 10},
		{From: "AS", To: "AS", BaseMs: 120},
	})
	assert.Equal(t, LatencyParams{BaseMs: 40, JitterRatio: 0.3}, table.Lookup(RegionEU, RegionNA))
	assert.Equal(t, 0.05, table.Lookup(RegionEU, RegionEU).JitterRatio)
	assert.Equal(t, 0.15, table.Lookup(RegionAS, RegionAS).JitterRatio)
	assert.Equal(t, FallbackLatency, table.Lookup(RegionNA, RegionNA))

	assert.Equal(t, DefaultLatencyTable(), LatencyTableFromConfig(nil))
}

func TestDefaultJitterRatio(t *testing.T) {
	assert.Equal(t, 0.05, DefaultJitterRatio(29))
	assert.Equal(t, 0.10, DefaultJitterRatio(30))
	assert.Equal(t, 0.10, DefaultJitterRatio(79))
	assert.Equal(t, 0.15, DefaultJitterRatio(80))
}
