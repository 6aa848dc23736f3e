package indicator

// counter is the outstanding activity count. Not safe for concurrent use;
// the owning Indicator serializes access.
type counter struct {
	count int
}

// increment adds one and reports whether activity just started (0 -> 1).
func (c *counter) increment() bool {
	c.count++
	return c.count == 1
}

// decrement subtracts one and reports whether activity just stopped (1 -> 0).
// At zero it leaves the count alone and returns ErrUnbalancedDecrement.
func (c *counter) decrement() (bool, error) {
	if c.count == 0 {
		return false, ErrUnbalancedDecrement
	}
	c.count--
	return c.count == 0, nil
}
