package room

import "sync"

// Countdown is the billed-duration clock for one room. It is a pure tick
// state machine: the room loop advances it once per second while the
// session is active and both parties are present. Elapsed seconds are
// monotonic, remaining never goes below zero, and OnExpire fires exactly
// once no matter how the final ticks race with pause/resume.
type Countdown struct {
	mu      sync.Mutex
	total   int64
	elapsed int64
	running bool
	expired bool

	// OnExpire runs on the ticking goroutine, after running has been
	// cleared. Must not call back into the Countdown.
	OnExpire func()
}

func NewCountdown() *Countdown {
	return &Countdown{}
}

// Start arms the clock with the paid total and any elapsed seconds already
// accrued (reconnect after a server restart). It does not run the clock;
// Resume does.
func (c *Countdown) Start(totalSeconds, elapsedSeconds int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.expired {
		return
	}
	c.total = totalSeconds
	if elapsedSeconds > c.elapsed {
		c.elapsed = elapsedSeconds
	}
	if c.elapsed > c.total {
		c.elapsed = c.total
	}
}

func (c *Countdown) Resume() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.expired || c.total == 0 {
		return
	}
	c.running = true
}

func (c *Countdown) Pause() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.running = false
}

// Tick advances the clock by one second when running. A paused or expired
// clock ignores ticks, so a pause/resume pair never re-credits time.
func (c *Countdown) Tick() {
	c.mu.Lock()
	if !c.running || c.expired {
		c.mu.Unlock()
		return
	}
	c.elapsed++
	if c.elapsed >= c.total {
		c.elapsed = c.total
		c.running = false
		c.expired = true
		cb := c.OnExpire
		c.mu.Unlock()
		if cb != nil {
			cb()
		}
		return
	}
	c.mu.Unlock()
}

func (c *Countdown) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

func (c *Countdown) Expired() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.expired
}

func (c *Countdown) Elapsed() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.elapsed
}

func (c *Countdown) Remaining() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.total <= c.elapsed {
		return 0
	}
	return c.total - c.elapsed
}

// Stop halts the clock for good. Used on teardown; later ticks and
// resumes are no-ops.
func (c *Countdown) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.running = false
	c.expired = true
}
