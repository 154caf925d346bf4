package sigchan

// Chan is a non-blocking signal channel: it notifies that something happened
// without carrying data. Emitting while a signal is already pending coalesces
// into that pending signal.
type Chan struct {
	c chan struct{}
}

// New creates a signal channel with the given buffer size.
func New(bufferSize int) *Chan {
	return &Chan{
		c: make(chan struct{}, bufferSize),
	}
}

// Emit sends a signal without blocking. If the buffer is full the signal is
// dropped; the receiver is already due to wake up.
func (c *Chan) Emit() {
	select {
	case c.c <- struct{}{}:
	default:
	}
}

// C returns the receive side for use in select.
func (c *Chan) C() <-chan struct{} {
	return c.c
}
