package indicator

import (
	"testing"
	"time"
)

func TestSchedulerTransitions(t *testing.T) {
	tests := []struct {
		name       string
		from       Phase
		armed      bool
		event      string
		delay      time.Duration
		wantEffect effect
		wantPhase  Phase
		wantArmed  bool
	}{
		{"idle start arms activation", PhaseIdle, false, "started", time.Second, effectNone, PhaseAwaitingActivation, true},
		{"idle start zero delay shows", PhaseIdle, false, "started", 0, effectShow, PhaseActive, false},
		{"awaiting activation stop suppresses", PhaseAwaitingActivation, true, "stopped", time.Second, effectSuppress, PhaseIdle, false},
		{"active stop arms completion", PhaseActive, false, "stopped", time.Second, effectNone, PhaseAwaitingCompletion, true},
		{"active stop zero delay hides", PhaseActive, false, "stopped", 0, effectHide, PhaseIdle, false},
		{"awaiting completion start bridges", PhaseAwaitingCompletion, true, "started", time.Second, effectBridge, PhaseActive, false},
		{"active start ignored", PhaseActive, false, "started", time.Second, effectNone, PhaseActive, false},
		{"idle stop ignored", PhaseIdle, false, "stopped", time.Second, effectNone, PhaseIdle, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clock := newManualClock()
			s := newScheduler(clock, func(uint64) {})
			if tt.armed {
				s.arm(tt.from, time.Second)
			}
			s.phase = tt.from

			var got effect
			switch tt.event {
			case "started":
				got = s.started(tt.delay)
			case "stopped":
				got = s.stopped(tt.delay)
			}

			if got != tt.wantEffect {
				t.Errorf("effect: got %v, want %v", got, tt.wantEffect)
			}
			if s.phase != tt.wantPhase {
				t.Errorf("phase: got %s, want %s", s.phase, tt.wantPhase)
			}
			if s.pending() != tt.wantArmed {
				t.Errorf("pending: got %v, want %v", s.pending(), tt.wantArmed)
			}
		})
	}
}

func TestSchedulerFiredRequiresCurrentGeneration(t *testing.T) {
	s := newScheduler(newManualClock(), func(uint64) {})
	s.arm(PhaseAwaitingActivation, time.Second)
	gen := s.gen

	if got := s.fired(gen - 1); got != effectNone {
		t.Errorf("stale generation: got %v, want none", got)
	}
	if got := s.fired(gen); got != effectShow {
		t.Errorf("current generation: got %v, want show", got)
	}
	if got := s.fired(gen); got != effectNone {
		t.Errorf("second fire: got %v, want none", got)
	}
	if s.phase != PhaseActive {
		t.Errorf("phase: got %s, want ACTIVE", s.phase)
	}
}

func TestSchedulerAtMostOneTimer(t *testing.T) {
	clock := newManualClock()
	s := newScheduler(clock, func(uint64) {})

	s.started(time.Second)
	s.stopped(time.Second)
	s.phase = PhaseActive
	s.stopped(time.Second)
	s.started(time.Second)
	s.stopped(time.Second)

	if n := clock.pending(); n != 1 {
		t.Errorf("pending timers: got %d, want 1", n)
	}
}

func TestSchedulerReset(t *testing.T) {
	clock := newManualClock()
	s := newScheduler(clock, func(uint64) {})
	s.arm(PhaseAwaitingCompletion, time.Second)

	s.reset(true)
	if s.phase != PhaseActive || s.pending() {
		t.Errorf("reset(true): phase %s pending %v", s.phase, s.pending())
	}
	if clock.pending() != 0 {
		t.Errorf("timer not stopped")
	}

	s.reset(false)
	if s.phase != PhaseIdle {
		t.Errorf("reset(false): phase %s", s.phase)
	}
}
