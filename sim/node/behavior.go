package node

import (
	"github.com/sparse-blobpool/blobsim/sim/protocol"
)

// Behavior decides how a node reacts to inbound protocol messages. Adversarial
// variants embed Honest and override a subset of the handlers.
type Behavior interface {
	OnAnnouncement(n *Node, msg *protocol.Announcement) error
	OnBodyRequest(n *Node, msg *protocol.GetPooledTransactions) error
	OnCellRequest(n *Node, msg *protocol.GetCells) error
	OnBlock(n *Node, msg *protocol.BlockAnnouncement) error
}

// Honest follows the protocol.
type Honest struct{}

var _ Behavior = Honest{}

func (Honest) OnAnnouncement(n *Node, msg *protocol.Announcement) error {
	return n.ObserveAnnouncement(msg)
}

func (Honest) OnBodyRequest(n *Node, msg *protocol.GetPooledTransactions) error {
	n.Send(msg.Sender(), n.ServeBodies(msg))
	return nil
}

func (Honest) OnCellRequest(n *Node, msg *protocol.GetCells) error {
	n.Send(msg.Sender(), n.ServeCells(msg, protocol.AllColumns))
	return nil
}

func (Honest) OnBlock(n *Node, msg *protocol.BlockAnnouncement) error {
	return n.ApplyBlock(msg)
}
