package sim

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sparse-blobpool/blobsim/sim/trace"
)

type ping struct {
	Envelope
	N int
}

func (ping) SizeBytes() int { return 8 }
func (ping) Kind() string   { return "ping" }

type dispatch struct {
	at      float64
	payload Payload
}

// recorder logs every payload it receives and runs an optional hook.
type recorder struct {
	BaseActor
	got  []dispatch
	hook func(r *recorder, p Payload) error
}

func newRecorder(id ActorID, s *Simulator) *recorder {
	return &recorder{BaseActor: NewBaseActor(id, s)}
}

func (r *recorder) HandleEvent(p Payload) error {
	r.got = append(r.got, dispatch{at: r.Now(), payload: p})
	if r.hook != nil {
		return r.hook(r, p)
	}
	return nil
}

func (r *recorder) times() []float64 {
	out := make([]float64, len(r.got))
	for i, d := range r.got {
		out[i] = d.at
	}
	return out
}

func TestSimulator_OrdersByTimestampPriorityAndSeq(t *testing.T) {
	// GIVEN events scheduled out of order, with ties on timestamp
	s := NewSimulator(1)
	r := newRecorder("a", s)
	require.NoError(t, s.Register(r))

	schedule := []struct {
		at       float64
		priority int
		n        int
	}{
		{2.0, PriorityTimer, 5},
		{1.0, PriorityTimer, 3},
		{1.0, PriorityMessage, 1},
		{0.5, PriorityTimer, 0},
		{1.0, PriorityMessage, 2},
		{1.0, PriorityTimer, 4},
	}
	for _, e := range schedule {
		require.NoError(t, s.Schedule(&Event{Timestamp: e.at, Priority: e.priority, Target: "a", Payload: ping{N: e.n}}))
	}

	// WHEN the run drains the queue
	require.NoError(t, s.Run(10))

	// THEN messages precede timers at equal time and insertion order breaks the rest
	var order []int
	for _, d := range r.got {
		order = append(order, d.payload.(ping).N)
	}
	assert.Equal(t, []int{0, 1, 2, 3, 4, 5}, order)
	assert.Equal(t, []float64{0.5, 1, 1, 1, 1, 2}, r.times())
	assert.Equal(t, uint64(6), s.EventsProcessed())
	assert.Equal(t, 0, s.Pending())
}

func TestSimulator_ScheduleRejectsPastAndNaN(t *testing.T) {
	s := NewSimulator(1)
	r := newRecorder("a", s)
	require.NoError(t, s.Register(r))
	require.NoError(t, s.Schedule(&Event{Timestamp: 3, Target: "a", Payload: ping{}}))
	require.NoError(t, s.Run(3))

	err := s.Schedule(&Event{Timestamp: 2.5, Target: "a", Payload: ping{}})
	assert.True(t, errors.Is(err, ErrOrderingViolation), "got %v", err)

	err = s.Schedule(&Event{Timestamp: math.NaN(), Target: "a", Payload: ping{}})
	assert.True(t, errors.Is(err, ErrInvalidSchedule), "got %v", err)

	// equal to the current time is allowed
	assert.NoError(t, s.Schedule(&Event{Timestamp: 3, Target: "a", Payload: ping{}}))
}

func TestScheduleTimer_InvalidDelays(t *testing.T) {
	tests := []struct {
		name  string
		delay float64
	}{
		{"negative", -0.1},
		{"NaN", math.NaN()},
		{"infinite", math.Inf(1)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewSimulator(1)
			r := newRecorder("a", s)
			err := r.ScheduleTimer(tt.delay, Timer{Kind: TimerRequestTimeout})
			assert.True(t, errors.Is(err, ErrInvalidSchedule), "got %v", err)
			assert.Equal(t, 0, s.Pending())
		})
	}
}

func TestSimulator_RunStopsAtUntil(t *testing.T) {
	// GIVEN events before, at and after the horizon
	s := NewSimulator(1)
	r := newRecorder("a", s)
	require.NoError(t, s.Register(r))
	for _, at := range []float64{1, 5, 7} {
		require.NoError(t, s.Schedule(&Event{Timestamp: at, Priority: PriorityTimer, Target: "a", Payload: Timer{Kind: TimerSlotTick}}))
	}

	// WHEN running to t=5
	require.NoError(t, s.Run(5))

	// THEN the event at the horizon ran and the later one stays queued
	assert.Equal(t, []float64{1, 5}, r.times())
	assert.Equal(t, 5.0, s.Now())
	assert.Equal(t, 1, s.Pending())

	// AND a later run resumes from there
	require.NoError(t, s.Run(100))
	assert.Equal(t, []float64{1, 5, 7}, r.times())
}

func TestSimulator_RunDrainsEverythingAtUntil(t *testing.T) {
	// GIVEN two events at the horizon, one of which schedules a zero-delay follow-up
	s := NewSimulator(1)
	r := newRecorder("a", s)
	r.hook = func(r *recorder, p Payload) error {
		if m, ok := p.(ping); ok && m.N == 1 {
			return r.ScheduleTimer(0, Timer{Kind: TimerAdversaryTick})
		}
		return nil
	}
	require.NoError(t, s.Register(r))
	require.NoError(t, s.Schedule(&Event{Timestamp: 5, Priority: PriorityMessage, Target: "a", Payload: ping{N: 1}}))
	require.NoError(t, s.Schedule(&Event{Timestamp: 5, Priority: PriorityMessage, Target: "a", Payload: ping{N: 2}}))
	require.NoError(t, s.Schedule(&Event{Timestamp: 7, Priority: PriorityMessage, Target: "a", Payload: ping{N: 3}}))

	// WHEN running to exactly t=5
	require.NoError(t, s.Run(5))

	// THEN both events and the follow-up ran while t=7 stays queued
	assert.Equal(t, []float64{5, 5, 5}, r.times())
	assert.Equal(t, ping{N: 1}, r.got[0].payload)
	assert.Equal(t, ping{N: 2}, r.got[1].payload)
	assert.Equal(t, Timer{Kind: TimerAdversaryTick}, r.got[2].payload)
	assert.Equal(t, 1, s.Pending())
	assert.Equal(t, uint64(3), s.EventsProcessed())
}

func TestSimulator_ClockIsMonotonic(t *testing.T) {
	// GIVEN an actor that keeps re-arming timers with varying delays
	s := NewSimulator(1)
	r := newRecorder("a", s)
	delays := []float64{0.3, 0, 1.2, 0.01, 0}
	r.hook = func(r *recorder, p Payload) error {
		if len(r.got) > len(delays) {
			return nil
		}
		return r.ScheduleTimer(delays[len(r.got)-1], Timer{Kind: TimerAdversaryTick})
	}
	require.NoError(t, s.Register(r))
	require.NoError(t, r.ScheduleTimer(0, Timer{Kind: TimerAdversaryTick}))

	require.NoError(t, s.Run(100))

	times := r.times()
	require.Len(t, times, len(delays)+1)
	for i := 1; i < len(times); i++ {
		assert.GreaterOrEqual(t, times[i], times[i-1])
	}
}

func TestSimulator_SendRoutesThroughTransport(t *testing.T) {
	// GIVEN a stand-in transport and a sender
	s := NewSimulator(1)
	net := newRecorder(TransportID, s)
	a := newRecorder("a", s)
	require.NoError(t, s.Register(net))
	require.NoError(t, s.Register(a))

	// WHEN the sender sends at time zero
	a.Send("b", ping{Envelope: Envelope{From: "a"}, N: 9})
	require.NoError(t, s.Run(1))

	// THEN the transport received a delivery request addressed to b
	require.Len(t, net.got, 1)
	d, ok := net.got[0].payload.(Delivery)
	require.True(t, ok)
	assert.Equal(t, ActorID("a"), d.From)
	assert.Equal(t, ActorID("b"), d.To)
	assert.Equal(t, ActorID("a"), d.Msg.Sender())
	assert.Equal(t, "delivery:ping", PayloadKind(d))
}

func TestSimulator_Registry(t *testing.T) {
	s := NewSimulator(1)
	require.NoError(t, s.Register(newRecorder("b", s)))
	require.NoError(t, s.Register(newRecorder("a", s)))

	err := s.Register(newRecorder("a", s))
	assert.True(t, errors.Is(err, ErrDuplicateActor))

	assert.Equal(t, []ActorID{"b", "a"}, s.ActorIDs())
	_, ok := s.Actor("a")
	assert.True(t, ok)
	_, ok = s.Actor("z")
	assert.False(t, ok)
}

func TestSimulator_UnknownTargetAborts(t *testing.T) {
	s := NewSimulator(1)
	require.NoError(t, s.Schedule(&Event{Timestamp: 1, Target: "ghost", Payload: ping{}}))
	err := s.Run(10)
	assert.True(t, errors.Is(err, ErrUnknownActor), "got %v", err)
}

func TestSimulator_HandlerErrorAborts(t *testing.T) {
	s := NewSimulator(1)
	r := newRecorder("a", s)
	r.hook = func(*recorder, Payload) error { return ErrInvalidSchedule }
	require.NoError(t, s.Register(r))
	require.NoError(t, s.Schedule(&Event{Timestamp: 1, Target: "a", Payload: ping{}}))
	require.NoError(t, s.Schedule(&Event{Timestamp: 2, Target: "a", Payload: ping{}}))

	err := s.Run(10)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidSchedule))
	assert.Len(t, r.got, 1)
	assert.Equal(t, uint64(0), s.EventsProcessed())
}

func TestSimulator_TraceRecordsDispatches(t *testing.T) {
	s := NewSimulator(1)
	s.SetTrace(trace.NewSimulationTrace(trace.TraceConfig{Level: trace.TraceLevelEvents}))
	r := newRecorder("a", s)
	require.NoError(t, s.Register(r))
	require.NoError(t, r.ScheduleTimer(2, Timer{Kind: TimerTxCleanup}))
	require.NoError(t, s.Schedule(&Event{Timestamp: 1, Target: "a", Payload: ping{}}))

	require.NoError(t, s.Run(10))

	got := s.Trace().Dispatches
	require.Len(t, got, 2)
	assert.Equal(t, trace.DispatchRecord{Seq: 2, Clock: 1, Target: "a", Kind: "ping"}, got[0])
	assert.Equal(t, trace.DispatchRecord{Seq: 1, Clock: 2, Target: "a", Kind: "tx_cleanup"}, got[1])
}

func TestTimerKind_String(t *testing.T) {
	assert.Equal(t, "request_timeout", TimerRequestTimeout.String())
	assert.Equal(t, "timer(99)", TimerKind(99).String())
}
