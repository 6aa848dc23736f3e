package gpio

import "sync"

// FakeLED is a test double that records every value it is set to.
type FakeLED struct {
	mu sync.Mutex

	// Values contains every value passed to Set, in order.
	Values []bool

	// On is the current output.
	On bool

	// Closed tracks if Close was called.
	Closed bool

	// SetError, if set, will be returned by Set and the value is not applied.
	SetError error
}

// NewFakeLED creates a FakeLED that starts off.
func NewFakeLED() *FakeLED {
	return &FakeLED{}
}

// Set records the value.
func (f *FakeLED) Set(on bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.SetError != nil {
		return f.SetError
	}
	f.Values = append(f.Values, on)
	f.On = on
	return nil
}

// Close turns the fake off and marks it closed.
func (f *FakeLED) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.On = false
	f.Closed = true
	return nil
}

// Snapshot returns a copy of the recorded values and the current output.
func (f *FakeLED) Snapshot() ([]bool, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]bool(nil), f.Values...), f.On
}

// Reset clears recorded values.
func (f *FakeLED) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.Values = nil
	f.On = false
	f.Closed = false
	f.SetError = nil
}
