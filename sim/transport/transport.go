// Package transport turns delivery requests into delayed deliveries, applying
// regional latency, jitter, bandwidth-limited transmission and a per-link
// queue-management delay.
package transport

import (
	"fmt"
	"math/rand"

	"github.com/sirupsen/logrus"

	"github.com/sparse-blobpool/blobsim/sim"
	"github.com/sparse-blobpool/blobsim/sim/metrics"
)

// Config holds the transport parameters.
type Config struct {
	DefaultBandwidth float64 // bytes/second
	AQM              sim.AQMConfig
}

type link struct {
	from, to sim.ActorID
}

// Transport is the distinguished actor every delivery request goes through.
// It never drops a message.
type Transport struct {
	sim.BaseActor
	cfg       Config
	table     *LatencyTable
	regions   map[sim.ActorID]Region
	bandwidth map[sim.ActorID]float64
	links     map[link]*codel
	rng       *rand.Rand
	sink      metrics.Sink

	delivered uint64
}

// New creates a transport bound to s. It must still be registered.
func New(s *sim.Simulator, table *LatencyTable, cfg Config, sink metrics.Sink) *Transport {
	if sink == nil {
		sink = metrics.Nop{}
	}
	return &Transport{
		BaseActor: sim.NewBaseActor(sim.TransportID, s),
		cfg:       cfg,
		table:     table,
		regions:   make(map[sim.ActorID]Region),
		bandwidth: make(map[sim.ActorID]float64),
		links:     make(map[link]*codel),
		rng:       s.RNG().ForSubsystem(sim.SubsystemTransport),
		sink:      sink,
	}
}

// Place records an actor's region and bandwidth. Zero bandwidth uses the default.
func (t *Transport) Place(id sim.ActorID, region Region, bandwidth float64) {
	t.regions[id] = region
	if bandwidth > 0 {
		t.bandwidth[id] = bandwidth
	}
}

// Region returns the region of an actor.
func (t *Transport) Region(id sim.ActorID) Region {
	return t.regions[id]
}

// Delivered returns the number of messages scheduled for delivery.
func (t *Transport) Delivered() uint64 {
	return t.delivered
}

// HandleEvent implements sim.Actor. Only Delivery payloads are accepted.
func (t *Transport) HandleEvent(p sim.Payload) error {
	d, ok := p.(sim.Delivery)
	if !ok {
		return fmt.Errorf("transport received %s, want delivery", sim.PayloadKind(p))
	}
	size := d.Msg.SizeBytes()
	delay := t.Delay(d.From, d.To, size)

	t.sink.RecordBandwidth(d.From, d.To, d.Msg.Kind(), size)
	t.delivered++
	logrus.Debugf("transport %s -> %s %s %dB delay=%.6fs", d.From, d.To, d.Msg.Kind(), size, delay)

	return t.Simulator().Schedule(&sim.Event{
		Timestamp: t.Now() + delay,
		Priority:  sim.PriorityMessage,
		Target:    d.To,
		Payload:   d.Msg,
	})
}

// Delay computes the one-way delay of a message and advances the link's
// queue estimator. Each call draws fresh jitter.
func (t *Transport) Delay(from, to sim.ActorID, size int) float64 {
	params := t.table.Lookup(t.regions[from], t.regions[to])
	base := params.BaseMs / 1000
	jitter := t.rng.NormFloat64() * base * params.JitterRatio

	bw := t.bandwidthOf(from)
	if other := t.bandwidthOf(to); other < bw {
		bw = other
	}
	xmit := float64(size) / bw

	var aqm float64
	if t.cfg.AQM.Enabled {
		aqm = t.codelFor(from, to).delay(t.Now(), xmit)
	}

	delay := base + jitter + xmit + aqm
	if delay < 0 {
		return 0
	}
	return delay
}

func (t *Transport) bandwidthOf(id sim.ActorID) float64 {
	if bw, ok := t.bandwidth[id]; ok {
		return bw
	}
	return t.cfg.DefaultBandwidth
}

func (t *Transport) codelFor(from, to sim.ActorID) *codel {
	l := link{from, to}
	c, ok := t.links[l]
	if !ok {
		c = newCodel(t.cfg.AQM.Target, t.cfg.AQM.Interval)
		t.links[l] = c
	}
	return c
}
