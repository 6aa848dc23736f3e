package status

import (
	"encoding/json"
	"time"

	"github.com/sweeney/busylight/internal/indicator"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event         string     `json:"event,omitempty"`
	Reason        string     `json:"reason,omitempty"`
	Instance      string     `json:"instance"`
	Visible       bool       `json:"visible"`
	Enabled       bool       `json:"enabled"`
	Phase         string     `json:"phase"`
	ActivityCount int        `json:"activity_count"`
	LastChange    string     `json:"last_change,omitempty"`
	UptimeSeconds int64      `json:"uptime_seconds"`
	StartTime     string     `json:"start_time"`
	Timestamp     string     `json:"timestamp"`
	MQTT          MQTTStatus `json:"mqtt"`
	Counts        CountsJSON `json:"counts"`
	Config        ConfigJSON `json:"config"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
}

// CountsJSON is the JSON representation of indicator.Counts.
type CountsJSON struct {
	Shown          int `json:"shown"`
	Hidden         int `json:"hidden"`
	Suppressed     int `json:"suppressed"`
	Bridged        int `json:"bridged"`
	OverDecrements int `json:"over_decrements"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	ActivationDelayMs int64  `json:"activation_delay_ms"`
	CompletionDelayMs int64  `json:"completion_delay_ms"`
	HeartbeatMs       int64  `json:"heartbeat_ms"`
	Broker            string `json:"broker"`
	HTTPAddr          string `json:"http_addr"`
	LEDPin            int    `json:"led_pin,omitempty"`
}

// CountsFrom converts indicator counts for JSON output.
func CountsFrom(c indicator.Counts) CountsJSON {
	return CountsJSON{
		Shown:          c.Shown,
		Hidden:         c.Hidden,
		Suppressed:     c.Suppressed,
		Bridged:        c.Bridged,
		OverDecrements: c.OverDecrements,
	}
}

func buildInner(snap Snapshot) StatusInner {
	ind := snap.Indicator
	phase := string(ind.Phase)
	if phase == "" {
		phase = "UNKNOWN"
	}

	inner := StatusInner{
		Instance:      snap.InstanceID,
		Visible:       ind.Visible,
		Enabled:       ind.Enabled,
		Phase:         phase,
		ActivityCount: ind.Count,
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		MQTT:          MQTTStatus{Connected: snap.MQTTConnected, Broker: snap.Config.Broker},
		Counts:        CountsFrom(ind.Counts),
		Config: ConfigJSON{
			ActivationDelayMs: ind.ActivationDelay.Milliseconds(),
			CompletionDelayMs: ind.CompletionDelay.Milliseconds(),
			HeartbeatMs:       snap.Config.HeartbeatMs,
			Broker:            snap.Config.Broker,
			HTTPAddr:          snap.Config.HTTPAddr,
			LEDPin:            snap.Config.LEDPin,
		},
	}
	if !snap.LastChange.IsZero() {
		inner.LastChange = snap.LastChange.UTC().Format(time.RFC3339)
	}
	return inner
}

// FormatJSON returns the JSON status for the web endpoint (no event/reason).
func FormatJSON(snap Snapshot) []byte {
	data, _ := json.MarshalIndent(StatusJSON{Status: buildInner(snap)}, "", "  ")
	return data
}

// FormatStatusEvent returns the JSON status for an MQTT system event.
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := buildInner(snap)
	inner.Event = event
	inner.Reason = reason

	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}
