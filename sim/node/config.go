package node

import (
	"github.com/sparse-blobpool/blobsim/sim"
	"github.com/sparse-blobpool/blobsim/sim/blobpool"
)

// SlotsPerEpoch is the number of slots sharing one role assignment epoch.
const SlotsPerEpoch = 32

// expirySweepsPerTTL controls how often the expiration sweep runs relative to
// the expiration age.
const expirySweepsPerTTL = 10

// Config holds the per-node protocol parameters.
type Config struct {
	ProviderProbability        float64
	MinProvidersBeforeSample   int
	ExtraRandomColumns         int
	MaxColumnsPerRequest       int
	CustodyColumns             int
	ProviderObservationTimeout float64
	RequestTimeout             float64
	MaxFetchRetries            int
	TxExpiration               float64
	InclusionCleanupDelay      float64
	SlotDuration               float64
	Pool                       blobpool.Config
}

// ConfigFrom extracts the node parameters of a simulation config.
func ConfigFrom(c sim.SimulationConfig) Config {
	return Config{
		ProviderProbability:        c.Protocol.ProviderProbability,
		MinProvidersBeforeSample:   c.Protocol.MinProvidersBeforeSample,
		ExtraRandomColumns:         c.Protocol.ExtraRandomColumns,
		MaxColumnsPerRequest:       c.Protocol.MaxColumnsPerRequest,
		CustodyColumns:             c.Protocol.CustodyColumns,
		ProviderObservationTimeout: c.Protocol.ProviderObservationTimeout,
		RequestTimeout:             c.Protocol.RequestTimeout,
		MaxFetchRetries:            c.Protocol.MaxFetchRetries,
		TxExpiration:               c.Protocol.TxExpiration,
		InclusionCleanupDelay:      c.Protocol.InclusionCleanupDelay,
		SlotDuration:               c.Slot.SlotDuration,
		Pool: blobpool.Config{
			MaxBytes:         c.Pool.MaxBytes,
			MaxTxsPerSender:  c.Pool.MaxTxsPerSender,
			PriceBumpPercent: c.Pool.PriceBumpPercent,
		},
	}
}
