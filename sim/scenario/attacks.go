package scenario

import (
	"fmt"

	"github.com/sparse-blobpool/blobsim/sim"
	"github.com/sparse-blobpool/blobsim/sim/adversary"
)

// AddSpammer registers a spammer connected to targets, or to every node when
// targets is empty, and starts it.
func (sm *Simulation) AddSpammer(id sim.ActorID, targets []sim.ActorID, cfg adversary.SpammerConfig) (*adversary.Spammer, error) {
	if len(targets) == 0 {
		targets = sm.Graph.Nodes()
	}
	sp := adversary.NewSpammer(id, sm.Sim, targets, cfg)
	if err := sm.Sim.Register(sp); err != nil {
		return nil, err
	}
	if err := sp.Start(); err != nil {
		return nil, err
	}
	return sp, nil
}

// AddPoisoner registers and starts a poisoner.
func (sm *Simulation) AddPoisoner(id sim.ActorID, cfg adversary.PoisonerConfig) (*adversary.Poisoner, error) {
	if _, ok := sm.byID[cfg.Victim]; !ok {
		return nil, fmt.Errorf("poisoner victim %s is not a node", cfg.Victim)
	}
	p := adversary.NewPoisoner(id, sm.Sim, cfg)
	if err := sm.Sim.Register(p); err != nil {
		return nil, err
	}
	if err := p.Start(); err != nil {
		return nil, err
	}
	return p, nil
}

// WithWithholders runs the given nodes with the Withholding behavior.
func WithWithholders(ids ...sim.ActorID) Option {
	return func(o *options) {
		for _, id := range ids {
			o.behaviors[id] = adversary.NewWithholding()
		}
	}
}
