// Package indicator tracks in-flight network activity and derives a single
// debounced "show busy indicator" signal from it.
// Callers bracket each operation with Increment and Decrement. The visible
// signal turns on only after activity has lasted ActivationDelay and turns off
// only after the counter has stayed at zero for CompletionDelay.
package indicator

import (
	"errors"
	"time"
)

// Default delays.
const (
	DefaultActivationDelay = time.Second
	DefaultCompletionDelay = 170 * time.Millisecond
)

// ErrUnbalancedDecrement is returned by Decrement when the activity count is
// already zero. The count stays at zero.
var ErrUnbalancedDecrement = errors.New("indicator: decrement without matching increment")

// Phase is the debounce scheduler state.
type Phase string

const (
	// PhaseIdle: no pending timer, signal off.
	PhaseIdle Phase = "IDLE"
	// PhaseAwaitingActivation: activity started, activation timer running, signal off.
	PhaseAwaitingActivation Phase = "AWAITING_ACTIVATION"
	// PhaseActive: signal on, no pending timer.
	PhaseActive Phase = "ACTIVE"
	// PhaseAwaitingCompletion: count back at zero, completion timer running, signal on.
	PhaseAwaitingCompletion Phase = "AWAITING_COMPLETION"
)

// Event is a change of the visible signal, delivered to watchers.
type Event struct {
	Timestamp time.Time
	Visible   bool
}

// Counts tracks how the debounce policy has behaved since construction.
type Counts struct {
	Shown          int // signal turned on
	Hidden         int // signal turned off
	Suppressed     int // episodes that ended before the activation delay
	Bridged        int // new activity arrived during the completion delay
	OverDecrements int // decrements rejected at zero
}

// Snapshot is a point-in-time copy of an Indicator's state.
type Snapshot struct {
	Enabled         bool
	Visible         bool
	Count           int
	Phase           Phase
	ActivationDelay time.Duration
	CompletionDelay time.Duration
	Counts          Counts
}
