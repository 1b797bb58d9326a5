package sim

import (
	"hash/fnv"
	"math/rand"
)

// SimulationKey identifies a reproducible run. Two runs with the same key,
// configuration and peer graph dispatch the same events in the same order.
type SimulationKey int64

// NewSimulationKey creates a SimulationKey from a seed value.
func NewSimulationKey(seed int64) SimulationKey {
	return SimulationKey(seed)
}

// Random stream names. Each one is owned by a single concern.
const (
	// SubsystemWorkload drives transaction injection and uses the seed as is.
	SubsystemWorkload = "workload"
	// SubsystemTransport draws per-message latency jitter.
	SubsystemTransport = "transport"
	// SubsystemSampling picks the extra random columns of sampler requests.
	SubsystemSampling = "sampling"
	// SubsystemTopology builds the peer graph and region placement.
	SubsystemTopology = "topology"
	// SubsystemAdversary drives spam timing and other adversarial draws.
	SubsystemAdversary = "adversary"
)

// PartitionedRNG hands out one *rand.Rand per named stream. A stream is
// seeded with seed XOR fnv1a64(name), except the workload stream which takes
// the seed directly, so extra column picks on one node never move the
// latency jitter of a message elsewhere.
//
// Not safe for concurrent use; the event loop is single-threaded.
type PartitionedRNG struct {
	key        SimulationKey
	subsystems map[string]*rand.Rand
}

// NewPartitionedRNG creates a PartitionedRNG from a SimulationKey.
func NewPartitionedRNG(key SimulationKey) *PartitionedRNG {
	return &PartitionedRNG{
		key:        key,
		subsystems: make(map[string]*rand.Rand),
	}
}

// ForSubsystem returns the stream for name, creating it on first use.
// Later calls return the same instance.
func (p *PartitionedRNG) ForSubsystem(name string) *rand.Rand {
	if rng, ok := p.subsystems[name]; ok {
		return rng
	}
	seed := int64(p.key)
	if name != SubsystemWorkload {
		seed ^= fnv1a64(name)
	}
	rng := rand.New(rand.NewSource(seed))
	p.subsystems[name] = rng
	return rng
}

// Key returns the SimulationKey the streams derive from.
func (p *PartitionedRNG) Key() SimulationKey {
	return p.key
}

func fnv1a64(s string) int64 {
	h := fnv.New64a()
	h.Write([]byte(s))
	return int64(h.Sum64())
}
