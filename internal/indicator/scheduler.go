package indicator

import "time"

// effect is what a scheduler transition asks the indicator to do.
type effect int

const (
	effectNone effect = iota
	effectShow
	effectHide
	effectSuppress // activation timer cancelled, signal never shown
	effectBridge   // completion timer cancelled, signal stays on
)

// scheduler is the two-timer debounce state machine. It holds no lock of its
// own: every method runs under the owning Indicator's mutex, including fired,
// which the timer callback reaches through onFire.
type scheduler struct {
	clock  Clock
	phase  Phase
	timer  Timer
	gen    uint64 // identifies the armed timer; bumped on arm and cancel
	onFire func(gen uint64)
}

func newScheduler(clock Clock, onFire func(gen uint64)) scheduler {
	return scheduler{
		clock:  clock,
		phase:  PhaseIdle,
		onFire: onFire,
	}
}

// started handles the counter going from zero to nonzero.
func (s *scheduler) started(activationDelay time.Duration) effect {
	switch s.phase {
	case PhaseIdle:
		if activationDelay <= 0 {
			s.phase = PhaseActive
			return effectShow
		}
		s.arm(PhaseAwaitingActivation, activationDelay)
	case PhaseAwaitingCompletion:
		s.cancel()
		s.phase = PhaseActive
		return effectBridge
	}
	return effectNone
}

// stopped handles the counter returning to zero.
func (s *scheduler) stopped(completionDelay time.Duration) effect {
	switch s.phase {
	case PhaseAwaitingActivation:
		s.cancel()
		s.phase = PhaseIdle
		return effectSuppress
	case PhaseActive:
		if completionDelay <= 0 {
			s.phase = PhaseIdle
			return effectHide
		}
		s.arm(PhaseAwaitingCompletion, completionDelay)
	}
	return effectNone
}

// fired handles a timer callback. A callback whose generation is stale lost
// the race against a cancel and has no effect.
func (s *scheduler) fired(gen uint64) effect {
	if s.timer == nil || gen != s.gen {
		return effectNone
	}
	s.timer = nil

	switch s.phase {
	case PhaseAwaitingActivation:
		s.phase = PhaseActive
		return effectShow
	case PhaseAwaitingCompletion:
		s.phase = PhaseIdle
		return effectHide
	}
	return effectNone
}

// reset cancels any pending timer and settles on the phase matching visible.
func (s *scheduler) reset(visible bool) {
	s.cancel()
	if visible {
		s.phase = PhaseActive
	} else {
		s.phase = PhaseIdle
	}
}

// pending reports whether a timer is armed.
func (s *scheduler) pending() bool {
	return s.timer != nil
}

func (s *scheduler) arm(phase Phase, d time.Duration) {
	s.cancel()
	s.gen++
	gen := s.gen
	s.phase = phase
	s.timer = s.clock.AfterFunc(d, func() { s.onFire(gen) })
}

func (s *scheduler) cancel() {
	if s.timer == nil {
		return
	}
	s.timer.Stop()
	s.timer = nil
	s.gen++
}
