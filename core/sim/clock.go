package sim

import (
	"time"

	"github.com/kilianp07/gridsim/core/model"
)

// Clock is the simulated timeline. Only the engine advances it.
type Clock struct {
	now   time.Time
	step  time.Duration
	index int64
}

// NewClock returns a clock positioned at start. Ticks keep the location of
// start so time-of-day rules see simulated wall-clock time.
func NewClock(start time.Time, step time.Duration) *Clock {
	return &Clock{now: start, step: step}
}

// Now returns the current simulated time.
func (c *Clock) Now() time.Time { return c.now }

// Step returns the tick duration.
func (c *Clock) Step() time.Duration { return c.step }

// Advance moves the clock one tick forward and describes the new tick.
func (c *Clock) Advance() model.Tick {
	c.now = c.now.Add(c.step)
	c.index++
	return model.Tick{Index: c.index, Time: c.now, Duration: c.step}
}
