package timeline

// Clock is the monotonic logical sequence used to stamp notifications.
//
// Unlike the virtual master clock, Clock never moves backwards and is not
// affected by seeks or loops. Traces are totally ordered by it.
type Clock struct {
	seq int64
}

// NewClock creates a new clock starting at 0.
func NewClock() *Clock {
	return &Clock{}
}

// NewClockAt creates a clock starting at a specific sequence number.
// Used when a recorder resumes appending to an existing trace.
func NewClockAt(start int64) *Clock {
	return &Clock{seq: start}
}

// Next returns the next sequence number and increments the clock.
func (c *Clock) Next() int64 {
	c.seq++
	return c.seq
}

// Current returns the current sequence number without incrementing.
func (c *Clock) Current() int64 {
	return c.seq
}
