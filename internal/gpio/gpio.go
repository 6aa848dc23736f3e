// Package gpio drives the busy light with hardware abstraction.
// The real implementation uses the Linux GPIO character device.
// The fake implementation allows testing without hardware.
package gpio

// LED is a single on/off output.
type LED interface {
	// Set drives the output. true lights the LED.
	Set(on bool) error

	// Close turns the output off and releases GPIO resources.
	Close() error
}

// DefaultPin is the BCM pin the busy light is wired to.
const DefaultPin = 17
