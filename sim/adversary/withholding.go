// Package adversary holds misbehaving peers: node behaviors that deviate from
// the protocol and standalone actors that attack it.
package adversary

import (
	"github.com/sparse-blobpool/blobsim/sim/node"
	"github.com/sparse-blobpool/blobsim/sim/protocol"
)

// DefaultServedColumns is the column subset a Withholding node serves unless
// configured otherwise: the first half, enough for reconstruction but
// predictable to a prober.
var DefaultServedColumns = protocol.MaskRange(0, protocol.ReconstructionThreshold)

// Withholding behaves honestly except that cell requests are answered only
// for Served columns. It claims full availability like any provider, so
// samplers whose custody or extra columns fall outside Served see a partial
// response.
type Withholding struct {
	node.Honest
	Served protocol.CellMask
}

// NewWithholding creates a Withholding behavior serving DefaultServedColumns.
func NewWithholding() *Withholding {
	return &Withholding{Served: DefaultServedColumns}
}

func (w *Withholding) OnCellRequest(n *node.Node, msg *protocol.GetCells) error {
	n.Send(msg.Sender(), n.ServeCells(msg, w.Served))
	return nil
}
