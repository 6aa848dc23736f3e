// Package status provides a thread-safe status tracker for the busylight daemon.
// It is read by the HTTP handlers and the heartbeat publisher.
package status

import (
	"sync"
	"time"

	"github.com/sweeney/busylight/internal/indicator"
)

// Config contains daemon configuration for display.
type Config struct {
	HeartbeatMs int64
	Broker      string
	HTTPAddr    string
	LEDPin      int // 0 when no LED is attached
}

// Snapshot is a point-in-time view of daemon state.
// It is a value type, safe to use after the lock is released.
type Snapshot struct {
	Indicator     indicator.Snapshot
	InstanceID    string
	StartTime     time.Time
	Now           time.Time
	MQTTConnected bool
	LastChange    time.Time // zero until the signal first changes
	Config        Config
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Tracker holds mutable daemon state behind an RWMutex.
type Tracker struct {
	mu   sync.RWMutex
	snap Snapshot
	now  func() time.Time
}

// NewTracker creates a Tracker with the given start time, instance ID and config.
func NewTracker(startTime time.Time, instanceID string, cfg Config) *Tracker {
	return &Tracker{
		snap: Snapshot{
			InstanceID: instanceID,
			StartTime:  startTime,
			Config:     cfg,
		},
		now: time.Now,
	}
}

// Update stores the latest indicator snapshot.
func (t *Tracker) Update(snap indicator.Snapshot) {
	t.mu.Lock()
	t.snap.Indicator = snap
	t.mu.Unlock()
}

// RecordChange stores the time of the latest visibility change.
func (t *Tracker) RecordChange(at time.Time) {
	t.mu.Lock()
	t.snap.LastChange = at
	t.mu.Unlock()
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the daemon state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	t.mu.RUnlock()
	s.Now = t.now()
	return s
}
