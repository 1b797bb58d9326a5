package transport

// codel estimates the standing queue of one directed link and turns persistent
// excess over target into extra delay. It never drops.
//
// The link is modelled as a FIFO that serializes each message for its
// transmission time; sojourn is the backlog a new message finds on arrival.
type codel struct {
	target   float64
	interval float64

	busyUntil  float64 // time the link finishes its current backlog
	aboveSince float64 // start of the current above-target stretch
	belowSince float64 // start of the current below-target stretch while congested
	above      bool
	below      bool
	congested  bool
}

func newCodel(target, interval float64) *codel {
	return &codel{target: target, interval: interval}
}

// delay records a message of the given transmission time arriving at now and
// returns its queue-management delay.
func (c *codel) delay(now, xmit float64) float64 {
	if now-c.busyUntil > c.interval {
		c.reset()
	}

	sojourn := c.busyUntil - now
	if sojourn < 0 {
		sojourn = 0
	}
	start := now
	if c.busyUntil > start {
		start = c.busyUntil
	}
	c.busyUntil = start + xmit

	if sojourn < c.target {
		c.above = false
		if c.congested {
			if !c.below {
				c.below, c.belowSince = true, now
			} else if now-c.belowSince >= c.interval {
				c.congested, c.below = false, false
			}
		}
		return 0
	}

	c.below = false
	if !c.above {
		c.above, c.aboveSince = true, now
	} else if !c.congested && now-c.aboveSince >= c.interval {
		c.congested = true
	}
	if c.congested {
		return sojourn - c.target
	}
	return 0
}

func (c *codel) reset() {
	c.above, c.below, c.congested = false, false, false
}
