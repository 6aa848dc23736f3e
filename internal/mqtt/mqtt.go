// Package mqtt provides MQTT publishing with abstraction for testing.
package mqtt

import (
	"encoding/json"
	"time"

	"github.com/sweeney/busylight/internal/indicator"
)

// Topic is the MQTT topic for visibility changes.
const Topic = "busylight/indicator/events"

// TopicSystem is the MQTT topic for system lifecycle events.
const TopicSystem = "busylight/indicator/system"

// Visibility event names.
const (
	EventShown  = "SHOWN"
	EventHidden = "HIDDEN"
)

// Publisher publishes events to MQTT.
type Publisher interface {
	// Publish sends a visibility change to the broker.
	// Returns error if publishing fails (should not crash the process).
	Publish(event indicator.Event) error

	// PublishSystem sends a system lifecycle event to the broker.
	PublishSystem(event SystemEvent) error

	// Close disconnects from the broker.
	Close() error
}

// ConnectionStatus reports whether the MQTT connection is active.
type ConnectionStatus interface {
	IsConnected() bool
}

// SystemEvent represents a system lifecycle event (e.g., startup, shutdown, heartbeat).
type SystemEvent struct {
	Timestamp  time.Time
	Event      string // e.g., "STARTUP", "SHUTDOWN", "HEARTBEAT"
	Reason     string // e.g., "SIGTERM", "SIGINT" (shutdown only)
	RawPayload []byte // Pre-formatted JSON payload; if set, FormatSystemPayload returns it directly
	Retained   bool   // Whether the message should be retained by the broker
}

// Payload represents the MQTT message payload structure.
type Payload struct {
	Indicator IndicatorPayload `json:"indicator"`
}

// IndicatorPayload contains the visibility change details.
type IndicatorPayload struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	Visible   bool   `json:"visible"`
}

// EventName returns SHOWN or HIDDEN for a visibility change.
func EventName(event indicator.Event) string {
	if event.Visible {
		return EventShown
	}
	return EventHidden
}

// FormatPayload creates the JSON payload for a visibility change.
func FormatPayload(event indicator.Event) ([]byte, error) {
	payload := Payload{
		Indicator: IndicatorPayload{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			Event:     EventName(event),
			Visible:   event.Visible,
		},
	}
	return json.Marshal(payload)
}

// SystemPayload represents the MQTT message payload for system events.
// Used for simple events (LWT, RECONNECTED) that don't carry a full status snapshot.
type SystemPayload struct {
	System SystemPayloadInner `json:"system"`
}

// SystemPayloadInner contains the system event details.
type SystemPayloadInner struct {
	Timestamp string `json:"timestamp,omitempty"`
	Event     string `json:"event"`
	Reason    string `json:"reason,omitempty"`
}

// FormatSystemPayload creates the JSON payload for a system event.
// If event.RawPayload is set, it is returned directly (used for full status snapshots).
func FormatSystemPayload(event SystemEvent) ([]byte, error) {
	if event.RawPayload != nil {
		return event.RawPayload, nil
	}

	inner := SystemPayloadInner{
		Event:  event.Event,
		Reason: event.Reason,
	}
	if !event.Timestamp.IsZero() {
		inner.Timestamp = event.Timestamp.UTC().Format(time.RFC3339)
	}
	return json.Marshal(SystemPayload{System: inner})
}

// WillPayload is the last-will message the broker publishes on TopicSystem
// when the connection drops without a clean disconnect.
func WillPayload() []byte {
	data, _ := FormatSystemPayload(SystemEvent{Event: "OFFLINE", Reason: "CONNECTION_LOST"})
	return data
}
