package sim

import (
	"fmt"
	"math"
)

// SimulationConfig is the full configuration of a run, grouped by concern.
// DefaultConfig returns the reference values; LoadConfig overlays a YAML file.
type SimulationConfig struct {
	Seed     int64          `yaml:"seed"`
	Duration float64        `yaml:"duration"` // seconds of simulated time
	Topology TopologyConfig `yaml:"topology"`
	Protocol ProtocolConfig `yaml:"protocol"`
	Pool     PoolConfig     `yaml:"pool"`
	Slot     SlotConfig     `yaml:"slot"`
	Network  NetworkConfig  `yaml:"network"`
}

// TopologyConfig groups peer-graph generation parameters.
type TopologyConfig struct {
	NodeCount  int            `yaml:"node_count"`
	MeshDegree int            `yaml:"mesh_degree"`
	Regions    []RegionWeight `yaml:"regions"` // node placement weights
}

// RegionWeight assigns a share of nodes to a region.
type RegionWeight struct {
	Region string  `yaml:"region"`
	Weight float64 `yaml:"weight"`
}

// ProtocolConfig groups the provider/sampler protocol parameters.
type ProtocolConfig struct {
	ProviderProbability        float64 `yaml:"provider_probability"`         // p, role threshold
	MinProvidersBeforeSample   int     `yaml:"min_providers_before_sample"`  // fetch admission for samplers
	ExtraRandomColumns         int     `yaml:"extra_random_columns"`         // sampling noise width
	MaxColumnsPerRequest       int     `yaml:"max_columns_per_request"`      // per-request column cap
	CustodyColumns             int     `yaml:"custody_columns"`              // per-node custody width
	ProviderObservationTimeout float64 `yaml:"provider_observation_timeout"` // seconds
	RequestTimeout             float64 `yaml:"request_timeout"`              // seconds
	MaxFetchRetries            int     `yaml:"max_fetch_retries"`            // retries against other providers
	TxExpiration               float64 `yaml:"tx_expiration"`                // seconds
	InclusionCleanupDelay      float64 `yaml:"inclusion_cleanup_delay"`      // seconds
}

// PoolConfig groups blobpool capacity parameters.
type PoolConfig struct {
	MaxBytes         int64  `yaml:"blobpool_max_bytes"`
	MaxTxsPerSender  int    `yaml:"max_txs_per_sender"`
	PriceBumpPercent uint64 `yaml:"price_bump_percent"`
}

// SlotConfig groups block production parameters.
type SlotConfig struct {
	SlotDuration     float64  `yaml:"slot_duration"` // seconds
	MaxBlobsPerBlock int      `yaml:"max_blobs_per_block"`
	InclusionPolicy  string   `yaml:"inclusion_policy"`
	ProposerSchedule []string `yaml:"proposer_schedule"` // empty = every node in order
}

// NetworkConfig groups transport parameters.
type NetworkConfig struct {
	DefaultBandwidth float64            `yaml:"default_bandwidth"` // bytes/second
	Bandwidth        map[string]float64 `yaml:"bandwidth"`         // per-actor override, bytes/second
	Latencies        []LatencyConfig    `yaml:"latencies"`         // empty = built-in region table
	AQM              AQMConfig          `yaml:"aqm"`
}

// LatencyConfig is one symmetric entry of the region latency table.
// A nil JitterRatio derives the ratio from BaseMs.
type LatencyConfig struct {
	From        string   `yaml:"from"`
	To          string   `yaml:"to"`
	BaseMs      float64  `yaml:"base_ms"`
	JitterRatio *float64 `yaml:"jitter_ratio"`
}

// AQMConfig groups the per-link queueing-delay estimator parameters.
type AQMConfig struct {
	Enabled  bool    `yaml:"enabled"`
	Target   float64 `yaml:"target"`   // seconds
	Interval float64 `yaml:"interval"` // seconds
}

// Inclusion policy names.
const (
	InclusionConservative = "conservative"
	InclusionOptimistic   = "optimistic"
	InclusionProactive    = "proactive"
)

// ValidInclusionPolicies is the set of recognized inclusion policy names.
var ValidInclusionPolicies = map[string]bool{
	InclusionConservative: true,
	InclusionOptimistic:   true,
	InclusionProactive:    true,
}

// DefaultConfig returns the reference configuration.
func DefaultConfig() SimulationConfig {
	return SimulationConfig{
		Seed:     42,
		Duration: 600,
		Topology: TopologyConfig{
			NodeCount:  2000,
			MeshDegree: 50,
			Regions: []RegionWeight{
				{Region: "NA", Weight: 0.4},
				{Region: "EU", Weight: 0.4},
				{Region: "AS", Weight: 0.2},
			},
		},
		Protocol: ProtocolConfig{
			ProviderProbability:        0.15,
			MinProvidersBeforeSample:   2,
			ExtraRandomColumns:         1,
			MaxColumnsPerRequest:       16,
			CustodyColumns:             8,
			ProviderObservationTimeout: 2.0,
			RequestTimeout:             5.0,
			MaxFetchRetries:            1,
			TxExpiration:               300.0,
			InclusionCleanupDelay:      2.0,
		},
		Pool: PoolConfig{
			MaxBytes:         2 * 1024 * 1024 * 1024,
			MaxTxsPerSender:  16,
			PriceBumpPercent: 10,
		},
		Slot: SlotConfig{
			SlotDuration:     12.0,
			MaxBlobsPerBlock: 6,
			InclusionPolicy:  InclusionConservative,
		},
		Network: NetworkConfig{
			DefaultBandwidth: 100 * 1024 * 1024,
			AQM: AQMConfig{
				Enabled:  true,
				Target:   0.005,
				Interval: 0.100,
			},
		},
	}
}

// Validate checks ranges and policy names. It runs before any actor is built.
func (c *SimulationConfig) Validate() error {
	if !positiveFinite(c.Duration) {
		return fmt.Errorf("duration must be positive and finite, got %v", c.Duration)
	}
	if c.Topology.NodeCount <= 0 {
		return fmt.Errorf("node_count must be positive, got %d", c.Topology.NodeCount)
	}
	if c.Topology.MeshDegree < 0 {
		return fmt.Errorf("mesh_degree must be non-negative, got %d", c.Topology.MeshDegree)
	}
	for _, rw := range c.Topology.Regions {
		if rw.Weight < 0 {
			return fmt.Errorf("region %q weight must be non-negative, got %v", rw.Region, rw.Weight)
		}
	}

	p := c.Protocol
	if p.ProviderProbability < 0 || p.ProviderProbability > 1 || math.IsNaN(p.ProviderProbability) {
		return fmt.Errorf("provider_probability must be in [0, 1], got %v", p.ProviderProbability)
	}
	if p.MinProvidersBeforeSample < 0 {
		return fmt.Errorf("min_providers_before_sample must be non-negative, got %d", p.MinProvidersBeforeSample)
	}
	if p.ExtraRandomColumns < 0 {
		return fmt.Errorf("extra_random_columns must be non-negative, got %d", p.ExtraRandomColumns)
	}
	if p.CustodyColumns <= 0 || p.CustodyColumns > 128 {
		return fmt.Errorf("custody_columns must be in [1, 128], got %d", p.CustodyColumns)
	}
	if p.MaxColumnsPerRequest < p.CustodyColumns {
		return fmt.Errorf("max_columns_per_request (%d) must be at least custody_columns (%d)",
			p.MaxColumnsPerRequest, p.CustodyColumns)
	}
	if !positiveFinite(p.ProviderObservationTimeout) {
		return fmt.Errorf("provider_observation_timeout must be positive and finite, got %v", p.ProviderObservationTimeout)
	}
	if !positiveFinite(p.RequestTimeout) {
		return fmt.Errorf("request_timeout must be positive and finite, got %v", p.RequestTimeout)
	}
	if p.MaxFetchRetries < 0 {
		return fmt.Errorf("max_fetch_retries must be non-negative, got %d", p.MaxFetchRetries)
	}
	if !positiveFinite(p.TxExpiration) {
		return fmt.Errorf("tx_expiration must be positive and finite, got %v", p.TxExpiration)
	}
	if p.InclusionCleanupDelay < 0 || math.IsNaN(p.InclusionCleanupDelay) || math.IsInf(p.InclusionCleanupDelay, 0) {
		return fmt.Errorf("inclusion_cleanup_delay must be non-negative and finite, got %v", p.InclusionCleanupDelay)
	}

	if c.Pool.MaxBytes <= 0 {
		return fmt.Errorf("blobpool_max_bytes must be positive, got %d", c.Pool.MaxBytes)
	}
	if c.Pool.MaxTxsPerSender <= 0 {
		return fmt.Errorf("max_txs_per_sender must be positive, got %d", c.Pool.MaxTxsPerSender)
	}

	if !positiveFinite(c.Slot.SlotDuration) {
		return fmt.Errorf("slot_duration must be positive and finite, got %v", c.Slot.SlotDuration)
	}
	if c.Slot.MaxBlobsPerBlock <= 0 {
		return fmt.Errorf("max_blobs_per_block must be positive, got %d", c.Slot.MaxBlobsPerBlock)
	}
	if !ValidInclusionPolicies[c.Slot.InclusionPolicy] {
		return fmt.Errorf("unknown inclusion policy %q", c.Slot.InclusionPolicy)
	}

	if c.Network.DefaultBandwidth <= 0 {
		return fmt.Errorf("default_bandwidth must be positive, got %v", c.Network.DefaultBandwidth)
	}
	for id, bw := range c.Network.Bandwidth {
		if bw <= 0 {
			return fmt.Errorf("bandwidth for %q must be positive, got %v", id, bw)
		}
	}
	for _, l := range c.Network.Latencies {
		if l.BaseMs < 0 {
			return fmt.Errorf("latency %s-%s base_ms must be non-negative, got %v", l.From, l.To, l.BaseMs)
		}
		if l.JitterRatio != nil && *l.JitterRatio < 0 {
			return fmt.Errorf("latency %s-%s jitter_ratio must be non-negative, got %v", l.From, l.To, *l.JitterRatio)
		}
	}
	if c.Network.AQM.Enabled && (c.Network.AQM.Target <= 0 || c.Network.AQM.Interval <= 0) {
		return fmt.Errorf("aqm target and interval must be positive, got %v / %v",
			c.Network.AQM.Target, c.Network.AQM.Interval)
	}
	return nil
}

// positiveFinite rejects zero, negatives, NaN and infinities. Timer delays
// built from such values would never fire or would fire at once.
func positiveFinite(v float64) bool {
	return v > 0 && !math.IsNaN(v) && !math.IsInf(v, 0)
}
