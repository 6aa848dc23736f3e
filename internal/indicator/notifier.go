package indicator

import (
	"log/slog"
	"sync"
)

type notification struct {
	handler func(bool)
	visible bool
}

// notifier delivers visibility changes outside the indicator mutex while
// keeping them in the order they happened. Whichever goroutine finds the
// queue idle drains it; others only enqueue.
type notifier struct {
	mu       sync.Mutex
	queue    []notification
	draining bool
	logger   *slog.Logger
}

func (n *notifier) push(nt notification) {
	n.mu.Lock()
	n.queue = append(n.queue, nt)
	n.mu.Unlock()
}

func (n *notifier) drain() {
	n.mu.Lock()
	if n.draining {
		n.mu.Unlock()
		return
	}
	n.draining = true
	for len(n.queue) > 0 {
		nt := n.queue[0]
		n.queue = n.queue[1:]
		n.mu.Unlock()
		n.deliver(nt)
		n.mu.Lock()
	}
	n.draining = false
	n.mu.Unlock()
}

func (n *notifier) deliver(nt notification) {
	defer func() {
		if r := recover(); r != nil {
			n.logger.Error("activity changed action panicked", "visible", nt.visible, "panic", r)
		}
	}()
	nt.handler(nt.visible)
}
