package indicator

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// watchBuffer is the per-watcher channel capacity. Watchers that fall this far
// behind lose events.
const watchBuffer = 16

// Indicator aggregates activity from any number of goroutines and publishes
// the debounced visible signal.
//
// All counter mutation, configuration and timer fires are serialized by one
// mutex. Handlers run after that mutex is released, in change order.
type Indicator struct {
	mu     sync.Mutex
	clock  Clock
	logger *slog.Logger

	counter counter
	sched   scheduler

	enabled         bool
	visible         bool
	activationDelay time.Duration
	completionDelay time.Duration

	action   func(bool) // set by SetActivityChangedAction
	platform func(bool) // used when action is nil

	watchers    map[uint64]chan Event
	nextWatcher uint64

	counts Counts
	out    notifier
}

// Option configures an Indicator at construction.
type Option func(*Indicator)

// WithClock replaces the wall clock used for the debounce timers.
func WithClock(c Clock) Option {
	return func(i *Indicator) { i.clock = c }
}

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(i *Indicator) { i.logger = l }
}

// WithPlatformAction sets the action driven when no activity changed action
// is registered, e.g. toggling an LED.
func WithPlatformAction(f func(visible bool)) Option {
	return func(i *Indicator) { i.platform = f }
}

// WithEnabled sets the initial enabled state. Indicators start disabled.
func WithEnabled(enabled bool) Option {
	return func(i *Indicator) { i.enabled = enabled }
}

// WithActivationDelay sets the initial activation delay.
func WithActivationDelay(d time.Duration) Option {
	return func(i *Indicator) { i.activationDelay = d }
}

// WithCompletionDelay sets the initial completion delay.
func WithCompletionDelay(d time.Duration) Option {
	return func(i *Indicator) { i.completionDelay = d }
}

// New creates an independent Indicator with zero activity and the signal off.
func New(opts ...Option) *Indicator {
	i := &Indicator{
		clock:           realClock{},
		logger:          slog.Default(),
		activationDelay: DefaultActivationDelay,
		completionDelay: DefaultCompletionDelay,
		watchers:        make(map[uint64]chan Event),
	}
	for _, opt := range opts {
		opt(i)
	}
	i.activationDelay = i.clampDelay("activation", i.activationDelay)
	i.completionDelay = i.clampDelay("completion", i.completionDelay)
	i.sched = newScheduler(i.clock, i.fire)
	i.out.logger = i.logger
	return i
}

var (
	defaultOnce      sync.Once
	defaultIndicator *Indicator
)

// Default returns the process-wide Indicator, creating it on first use.
func Default() *Indicator {
	defaultOnce.Do(func() {
		defaultIndicator = New()
	})
	return defaultIndicator
}

// SetEnabled turns the debounce logic on or off.
//
// Disabling cancels any pending timer and freezes the visible signal where it
// is. The count keeps tracking while disabled. Enabling reconciles the signal
// with the current count: pending activity arms the activation timer and a
// shown signal with no activity arms the completion timer.
func (i *Indicator) SetEnabled(enabled bool) {
	i.mu.Lock()
	if enabled == i.enabled {
		i.mu.Unlock()
		return
	}
	i.enabled = enabled
	i.sched.reset(i.visible)
	if enabled {
		switch {
		case i.counter.count > 0 && !i.visible:
			i.apply(i.sched.started(i.activationDelay))
		case i.counter.count == 0 && i.visible:
			i.apply(i.sched.stopped(i.completionDelay))
		}
	}
	i.logger.Debug("indicator enabled changed", "enabled", enabled, "count", i.counter.count, "visible", i.visible)
	i.mu.Unlock()
	i.out.drain()
}

// IsEnabled reports whether the debounce logic is live.
func (i *Indicator) IsEnabled() bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.enabled
}

// IsVisible reports the current debounced signal.
func (i *Indicator) IsVisible() bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.visible
}

// ActivationDelay returns the minimum activity duration before the signal
// turns on.
func (i *Indicator) ActivationDelay() time.Duration {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.activationDelay
}

// SetActivationDelay changes the activation delay. Negative values are
// clamped to zero. A timer already running keeps its original delay.
func (i *Indicator) SetActivationDelay(d time.Duration) {
	i.mu.Lock()
	i.activationDelay = i.clampDelay("activation", d)
	i.mu.Unlock()
}

// CompletionDelay returns the minimum idle duration before the signal turns
// off.
func (i *Indicator) CompletionDelay() time.Duration {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.completionDelay
}

// SetCompletionDelay changes the completion delay. Negative values are
// clamped to zero. A timer already running keeps its original delay.
func (i *Indicator) SetCompletionDelay(d time.Duration) {
	i.mu.Lock()
	i.completionDelay = i.clampDelay("completion", d)
	i.mu.Unlock()
}

// Count returns the outstanding activity count. Diagnostics only.
func (i *Indicator) Count() int {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.counter.count
}

// Increment records the start of an operation.
func (i *Indicator) Increment() {
	i.mu.Lock()
	if i.counter.increment() && i.enabled {
		i.apply(i.sched.started(i.activationDelay))
	}
	i.mu.Unlock()
	i.out.drain()
}

// Decrement records the end of an operation. Calling it with no outstanding
// activity returns ErrUnbalancedDecrement and leaves the count at zero.
func (i *Indicator) Decrement() error {
	i.mu.Lock()
	stopped, err := i.counter.decrement()
	if err != nil {
		i.counts.OverDecrements++
		i.mu.Unlock()
		i.logger.Warn("activity count decremented below zero, ignoring")
		return err
	}
	if stopped && i.enabled {
		i.apply(i.sched.stopped(i.completionDelay))
	}
	i.mu.Unlock()
	i.out.drain()
	return nil
}

// Begin increments and returns a func that decrements exactly once, however
// often it is called.
func (i *Indicator) Begin() (end func()) {
	i.Increment()
	var once sync.Once
	return func() {
		once.Do(func() {
			_ = i.Decrement()
		})
	}
}

// SetActivityChangedAction installs f as the only handler for visibility
// changes, replacing any previous one. Passing nil restores the platform
// action. The handler is chosen when a change happens, so a change already
// queued for delivery still goes to the handler that was installed then.
func (i *Indicator) SetActivityChangedAction(f func(visible bool)) {
	i.mu.Lock()
	i.action = f
	i.mu.Unlock()
}

// Subscribe returns a channel of visibility changes. The channel is closed
// when ctx is done. Events are dropped for watchers that do not keep up.
func (i *Indicator) Subscribe(ctx context.Context) <-chan Event {
	ch := make(chan Event, watchBuffer)

	i.mu.Lock()
	i.nextWatcher++
	id := i.nextWatcher
	i.watchers[id] = ch
	i.mu.Unlock()

	go func() {
		<-ctx.Done()
		i.mu.Lock()
		delete(i.watchers, id)
		close(ch)
		i.mu.Unlock()
	}()
	return ch
}

// Snapshot returns a copy of the current state.
func (i *Indicator) Snapshot() Snapshot {
	i.mu.Lock()
	defer i.mu.Unlock()
	return Snapshot{
		Enabled:         i.enabled,
		Visible:         i.visible,
		Count:           i.counter.count,
		Phase:           i.sched.phase,
		ActivationDelay: i.activationDelay,
		CompletionDelay: i.completionDelay,
		Counts:          i.counts,
	}
}

// fire is the timer callback. It runs in the timer's goroutine and takes the
// same lock as Increment and Decrement.
func (i *Indicator) fire(gen uint64) {
	i.mu.Lock()
	i.apply(i.sched.fired(gen))
	i.mu.Unlock()
	i.out.drain()
}

// apply carries out a scheduler effect. Caller holds mu.
func (i *Indicator) apply(e effect) {
	switch e {
	case effectShow:
		i.setVisible(true)
	case effectHide:
		i.setVisible(false)
	case effectSuppress:
		i.counts.Suppressed++
		i.logger.Debug("activity ended before activation delay")
	case effectBridge:
		i.counts.Bridged++
		i.logger.Debug("activity resumed within completion delay")
	}
}

// setVisible records a change and queues its notification. Caller holds mu.
func (i *Indicator) setVisible(visible bool) {
	if visible == i.visible {
		return
	}
	i.visible = visible
	if visible {
		i.counts.Shown++
	} else {
		i.counts.Hidden++
	}
	i.logger.Debug("indicator visibility changed", "visible", visible, "count", i.counter.count)

	ev := Event{Timestamp: i.clock.Now(), Visible: visible}
	for id, ch := range i.watchers {
		select {
		case ch <- ev:
		default:
			i.logger.Debug("visibility event dropped for slow watcher", "watcher", id)
		}
	}

	handler := i.action
	if handler == nil {
		handler = i.platform
	}
	if handler != nil {
		i.out.push(notification{handler: handler, visible: visible})
	}
}

func (i *Indicator) clampDelay(name string, d time.Duration) time.Duration {
	if d < 0 {
		i.logger.Warn("negative delay clamped to zero", "delay", name, "value", d)
		return 0
	}
	return d
}
