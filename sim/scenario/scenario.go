// Package scenario assembles a runnable simulation from a configuration:
// transport, peer graph, nodes, block producer, metrics and optional
// adversaries, registered in a fixed order.
package scenario

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/sparse-blobpool/blobsim/sim"
	"github.com/sparse-blobpool/blobsim/sim/blobpool"
	"github.com/sparse-blobpool/blobsim/sim/metrics"
	"github.com/sparse-blobpool/blobsim/sim/node"
	"github.com/sparse-blobpool/blobsim/sim/producer"
	"github.com/sparse-blobpool/blobsim/sim/topology"
	"github.com/sparse-blobpool/blobsim/sim/trace"
	"github.com/sparse-blobpool/blobsim/sim/transport"
)

type options struct {
	sinks     []metrics.Sink
	behaviors map[sim.ActorID]node.Behavior
	graph     *topology.Graph
	resampler producer.Resampler
	trace     bool
	callLog   bool
}

// Option customizes Build.
type Option func(*options)

// WithSink adds a metrics sink next to the built-in collector.
func WithSink(s metrics.Sink) Option {
	return func(o *options) { o.sinks = append(o.sinks, s) }
}

// WithBehavior runs node id with behavior b instead of the honest one.
func WithBehavior(id sim.ActorID, b node.Behavior) Option {
	return func(o *options) { o.behaviors[id] = b }
}

// WithGraph uses g instead of generating a random mesh.
func WithGraph(g *topology.Graph) Option {
	return func(o *options) { o.graph = g }
}

// WithResampler installs the PROACTIVE resampling pass.
func WithResampler(r producer.Resampler) Option {
	return func(o *options) { o.resampler = r }
}

// WithTrace records every dispatched event.
func WithTrace() Option {
	return func(o *options) { o.trace = true }
}

// WithCallLog keeps the ordered log of metrics calls.
func WithCallLog() Option {
	return func(o *options) { o.callLog = true }
}

// Simulation is a fully wired run.
type Simulation struct {
	Config    sim.SimulationConfig
	Sim       *sim.Simulator
	Transport *transport.Transport
	Graph     *topology.Graph
	Nodes     []*node.Node
	Producer  *producer.BlockProducer
	Collector *metrics.Collector

	sink     metrics.Sink
	byID     map[sim.ActorID]*node.Node
	injected map[string]uint64 // next nonce per sender, for the workload
}

// Build validates cfg and registers transport, nodes and block producer in
// that order.
func Build(cfg sim.SimulationConfig, opts ...Option) (*Simulation, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	o := &options{behaviors: make(map[sim.ActorID]node.Behavior)}
	for _, opt := range opts {
		opt(o)
	}

	s := sim.NewSimulator(cfg.Seed)
	if o.trace {
		s.SetTrace(trace.NewSimulationTrace(trace.TraceConfig{Level: trace.TraceLevelEvents}))
	}

	graph := o.graph
	if graph == nil {
		graph = topology.FromConfig(cfg, s.RNG().ForSubsystem(sim.SubsystemTopology))
	}
	ids := graph.Nodes()

	collector := metrics.NewCollector(s, len(ids))
	if o.callLog {
		collector.EnableCallLog()
	}
	sink := metrics.Multi(append([]metrics.Sink{collector}, o.sinks...))

	sm := &Simulation{
		Config:    cfg,
		Sim:       s,
		Graph:     graph,
		Collector: collector,
		sink:      sink,
		byID:      make(map[sim.ActorID]*node.Node, len(ids)),
		injected:  make(map[string]uint64),
	}

	sm.Transport = transport.New(s, transport.LatencyTableFromConfig(cfg.Network.Latencies), transport.Config{
		DefaultBandwidth: cfg.Network.DefaultBandwidth,
		AQM:              cfg.Network.AQM,
	}, sink)
	if err := s.Register(sm.Transport); err != nil {
		return nil, err
	}

	nodeCfg := node.ConfigFrom(cfg)
	for _, id := range ids {
		n := node.New(id, s, nodeCfg, o.behaviors[id], sink)
		n.SetPeers(graph.Peers(id))
		sm.Transport.Place(id, transport.Region(graph.Region(id)), cfg.Network.Bandwidth[string(id)])
		if err := s.Register(n); err != nil {
			return nil, err
		}
		sm.Nodes = append(sm.Nodes, n)
		sm.byID[id] = n
	}
	for id := range o.behaviors {
		if _, ok := sm.byID[id]; !ok {
			return nil, fmt.Errorf("behavior for unknown node %s", id)
		}
	}

	prod, err := producer.New(s, producer.ConfigFrom(cfg, ids), sm, ids, sink)
	if err != nil {
		return nil, fmt.Errorf("building block producer: %w", err)
	}
	prod.SetResampler(o.resampler)
	if err := s.Register(prod); err != nil {
		return nil, err
	}
	if err := prod.Start(); err != nil {
		return nil, err
	}
	sm.Producer = prod

	logrus.Infof("built simulation: %d nodes, %d edges, seed %d, policy %s",
		len(ids), graph.EdgeCount(), cfg.Seed, cfg.Slot.InclusionPolicy)
	return sm, nil
}

// Pool implements producer.PoolSource.
func (sm *Simulation) Pool(id sim.ActorID) (*blobpool.Pool, bool) {
	n, ok := sm.byID[id]
	if !ok {
		return nil, false
	}
	return n.Pool(), true
}

// Node looks up a node by id.
func (sm *Simulation) Node(id sim.ActorID) (*node.Node, bool) {
	n, ok := sm.byID[id]
	return n, ok
}

// Sink returns the fan-out sink every actor reports to.
func (sm *Simulation) Sink() metrics.Sink {
	return sm.sink
}

// Run advances the simulation to the configured duration.
func (sm *Simulation) Run() error {
	return sm.RunUntil(sm.Config.Duration)
}

// RunUntil advances the simulation to until.
func (sm *Simulation) RunUntil(until float64) error {
	if err := sm.Sim.Run(until); err != nil {
		return fmt.Errorf("simulation aborted: %w", err)
	}
	return nil
}

// Results summarizes the collector.
func (sm *Simulation) Results() metrics.Results {
	return sm.Collector.Results()
}
