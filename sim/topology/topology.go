// Package topology builds the peer graph handed to nodes before a run.
package topology

import (
	"fmt"
	"math/rand"

	"github.com/sparse-blobpool/blobsim/sim"
)

// DefaultRegion is used when no region weights are configured.
const DefaultRegion = "NA"

type edge struct {
	a, b sim.ActorID
}

func newEdge(a, b sim.ActorID) edge {
	if b < a {
		a, b = b, a
	}
	return edge{a, b}
}

// Graph is an undirected peer graph with a region per node. Peer lists keep
// connection order.
type Graph struct {
	nodes   []sim.ActorID
	regions map[sim.ActorID]string
	peers   map[sim.ActorID][]sim.ActorID
	edges   map[edge]struct{}
}

// New creates a graph over nodes with no edges. Nodes missing from regions
// are placed in DefaultRegion.
func New(nodes []sim.ActorID, regions map[sim.ActorID]string) *Graph {
	g := &Graph{
		nodes:   append([]sim.ActorID(nil), nodes...),
		regions: make(map[sim.ActorID]string, len(nodes)),
		peers:   make(map[sim.ActorID][]sim.ActorID, len(nodes)),
		edges:   make(map[edge]struct{}),
	}
	for _, id := range nodes {
		r, ok := regions[id]
		if !ok {
			r = DefaultRegion
		}
		g.regions[id] = r
	}
	return g
}

// NodeIDs returns the ids node-0000 .. node-(n-1).
func NodeIDs(n int) []sim.ActorID {
	ids := make([]sim.ActorID, n)
	for i := range ids {
		ids[i] = sim.ActorID(fmt.Sprintf("node-%04d", i))
	}
	return ids
}

// Nodes returns the node ids in construction order.
func (g *Graph) Nodes() []sim.ActorID {
	return g.nodes
}

// Region returns the region of a node.
func (g *Graph) Region(id sim.ActorID) string {
	return g.regions[id]
}

// Peers returns the neighbours of a node in connection order.
func (g *Graph) Peers(id sim.ActorID) []sim.ActorID {
	return g.peers[id]
}

// Connected reports whether a and b share an edge.
func (g *Graph) Connected(a, b sim.ActorID) bool {
	_, ok := g.edges[newEdge(a, b)]
	return ok
}

// Connect adds the edge a-b and reports whether it was new. Self loops are refused.
func (g *Graph) Connect(a, b sim.ActorID) bool {
	if a == b || g.Connected(a, b) {
		return false
	}
	g.edges[newEdge(a, b)] = struct{}{}
	g.peers[a] = append(g.peers[a], b)
	g.peers[b] = append(g.peers[b], a)
	return true
}

// EdgeCount returns the number of undirected edges.
func (g *Graph) EdgeCount() int {
	return len(g.edges)
}

// AssignRegions draws a region for each node from the weights.
func AssignRegions(nodes []sim.ActorID, weights []sim.RegionWeight, rng *rand.Rand) map[sim.ActorID]string {
	out := make(map[sim.ActorID]string, len(nodes))
	var total float64
	for _, w := range weights {
		total += w.Weight
	}
	for _, id := range nodes {
		out[id] = DefaultRegion
		if total <= 0 {
			continue
		}
		r := rng.Float64() * total
		acc := 0.0
		for _, w := range weights {
			acc += w.Weight
			if r < acc {
				out[id] = w.Region
				break
			}
		}
	}
	return out
}

// Random builds an approximately degree-regular random graph: each node in
// turn connects to random nodes that still have spare degree until it reaches
// degree or runs out of attempts.
func Random(nodes []sim.ActorID, degree int, weights []sim.RegionWeight, rng *rand.Rand) *Graph {
	g := New(nodes, AssignRegions(nodes, weights, rng))
	n := len(nodes)
	if degree >= n {
		degree = n - 1
	}
	for _, a := range nodes {
		for attempts := 0; len(g.peers[a]) < degree && attempts < 20*degree; attempts++ {
			b := nodes[rng.Intn(n)]
			if len(g.peers[b]) >= degree {
				continue
			}
			g.Connect(a, b)
		}
	}
	return g
}

// FromConfig builds the peer graph of a simulation config.
func FromConfig(c sim.SimulationConfig, rng *rand.Rand) *Graph {
	return Random(NodeIDs(c.Topology.NodeCount), c.Topology.MeshDegree, c.Topology.Regions, rng)
}
