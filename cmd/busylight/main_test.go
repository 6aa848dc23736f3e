package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"os"
	"syscall"
	"testing"
	"time"

	"github.com/sweeney/busylight/internal/config"
	"github.com/sweeney/busylight/internal/gpio"
	"github.com/sweeney/busylight/internal/indicator"
	"github.com/sweeney/busylight/internal/mqtt"
	"github.com/sweeney/busylight/internal/status"
)

var testStart = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }

type harness struct {
	events    chan indicator.Event
	heartbeat chan time.Time
	sig       chan os.Signal
	pub       *mqtt.FakePublisher
	tracker   *status.Tracker
	ind       *indicator.Indicator
	errCh     chan error
}

// startLoop runs runLoop in a goroutine. Sends on the unbuffered event and
// heartbeat channels return once runLoop has taken the value, and runLoop
// finishes handling it before selecting again.
func startLoop(t *testing.T, ctx context.Context, pub *mqtt.FakePublisher) *harness {
	t.Helper()
	h := &harness{
		events:    make(chan indicator.Event),
		heartbeat: make(chan time.Time),
		sig:       make(chan os.Signal, 1),
		pub:       pub,
		tracker:   status.NewTracker(testStart, "test-instance", status.Config{Broker: "tcp://broker:1883"}),
		ind:       indicator.New(indicator.WithEnabled(true)),
		errCh:     make(chan error, 1),
	}

	l := loop{
		events:    h.events,
		ind:       h.ind,
		tracker:   h.tracker,
		heartbeat: h.heartbeat,
		sig:       h.sig,
	}
	if pub != nil {
		l.publisher = pub
		l.mqttStatus = pub
	}
	go func() {
		h.errCh <- runLoop(ctx, l)
	}()
	return h
}

func (h *harness) stop(t *testing.T, s os.Signal) {
	t.Helper()
	h.sig <- s
	select {
	case err := <-h.errCh:
		if err != nil {
			t.Fatalf("runLoop returned error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("runLoop did not return")
	}
}

func TestRunLoopShutdownOnly(t *testing.T) {
	pub := mqtt.NewFakePublisher()
	h := startLoop(t, context.Background(), pub)
	h.stop(t, syscall.SIGTERM)

	if len(pub.EventsSnapshot()) != 0 {
		t.Errorf("expected 0 visibility events, got %d", len(pub.EventsSnapshot()))
	}
	sys := pub.SystemEventsSnapshot()
	if len(sys) != 1 {
		t.Fatalf("expected 1 system event, got %d", len(sys))
	}
	if sys[0].Event != "SHUTDOWN" {
		t.Errorf("expected SHUTDOWN event, got %q", sys[0].Event)
	}
}

func TestRunLoopPublishesVisibilityChanges(t *testing.T) {
	pub := mqtt.NewFakePublisher()
	h := startLoop(t, context.Background(), pub)

	shown := indicator.Event{Timestamp: testStart.Add(time.Second), Visible: true}
	hidden := indicator.Event{Timestamp: testStart.Add(3 * time.Second), Visible: false}
	h.events <- shown
	h.events <- hidden
	h.stop(t, syscall.SIGTERM)

	got := pub.EventsSnapshot()
	if len(got) != 2 {
		t.Fatalf("expected 2 visibility events, got %d", len(got))
	}
	if !got[0].Visible || got[1].Visible {
		t.Errorf("expected shown then hidden, got %+v", got)
	}
	if !h.tracker.Snapshot().LastChange.Equal(hidden.Timestamp) {
		t.Errorf("LastChange: got %v, want %v", h.tracker.Snapshot().LastChange, hidden.Timestamp)
	}
}

func TestRunLoopPublishError(t *testing.T) {
	pub := mqtt.NewFakePublisher()
	pub.PublishError = errors.New("broker gone")
	h := startLoop(t, context.Background(), pub)

	h.events <- indicator.Event{Timestamp: testStart, Visible: true}
	h.stop(t, syscall.SIGTERM)

	if len(pub.SystemEventsSnapshot()) != 1 {
		t.Errorf("expected loop to survive publish error and publish SHUTDOWN")
	}
}

func TestRunLoopHeartbeat(t *testing.T) {
	pub := mqtt.NewFakePublisher()
	pub.Connected = true
	h := startLoop(t, context.Background(), pub)

	h.ind.Increment()
	h.heartbeat <- testStart.Add(15 * time.Minute)
	h.stop(t, syscall.SIGTERM)

	sys := pub.SystemEventsSnapshot()
	if len(sys) != 2 {
		t.Fatalf("expected HEARTBEAT and SHUTDOWN, got %d events", len(sys))
	}
	hb := sys[0]
	if hb.Event != "HEARTBEAT" {
		t.Fatalf("expected HEARTBEAT, got %q", hb.Event)
	}
	if hb.Retained {
		t.Error("expected HEARTBEAT not retained")
	}

	var sj status.StatusJSON
	if err := json.Unmarshal(hb.RawPayload, &sj); err != nil {
		t.Fatalf("decode heartbeat payload: %v", err)
	}
	if sj.Status.Event != "HEARTBEAT" {
		t.Errorf("payload event: got %q", sj.Status.Event)
	}
	if sj.Status.ActivityCount != 1 {
		t.Errorf("payload activity_count: got %d, want 1", sj.Status.ActivityCount)
	}
	if !sj.Status.MQTT.Connected {
		t.Error("expected payload mqtt.connected=true")
	}
	if sj.Status.Instance != "test-instance" {
		t.Errorf("payload instance: got %q", sj.Status.Instance)
	}
}

func TestRunLoopShutdownSignals(t *testing.T) {
	tests := []struct {
		sig  os.Signal
		want string
	}{
		{syscall.SIGINT, "SIGINT"},
		{syscall.SIGTERM, "SIGTERM"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			pub := mqtt.NewFakePublisher()
			h := startLoop(t, context.Background(), pub)
			h.stop(t, tt.sig)

			sys := pub.SystemEventsSnapshot()
			if len(sys) != 1 {
				t.Fatalf("expected 1 system event, got %d", len(sys))
			}
			if sys[0].Reason != tt.want {
				t.Errorf("reason: got %q, want %q", sys[0].Reason, tt.want)
			}
			if !sys[0].Retained {
				t.Error("expected Retained=true for SHUTDOWN")
			}
		})
	}
}

func TestRunLoopWithoutPublisher(t *testing.T) {
	h := startLoop(t, context.Background(), nil)
	h.events <- indicator.Event{Timestamp: testStart, Visible: true}
	h.heartbeat <- testStart
	h.stop(t, syscall.SIGTERM)

	if h.tracker.Snapshot().LastChange.IsZero() {
		t.Error("expected LastChange recorded without a publisher")
	}
}

func TestRunLoopContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	pub := mqtt.NewFakePublisher()
	h := startLoop(t, ctx, pub)
	cancel()

	select {
	case err := <-h.errCh:
		if err != nil {
			t.Fatalf("runLoop returned error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("runLoop did not return after cancel")
	}
	if len(pub.SystemEventsSnapshot()) != 0 {
		t.Error("expected no SHUTDOWN event on context cancel")
	}
}

func TestRunLoopEventsClosed(t *testing.T) {
	h := startLoop(t, context.Background(), mqtt.NewFakePublisher())
	close(h.events)

	select {
	case err := <-h.errCh:
		if err != nil {
			t.Fatalf("runLoop returned error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("runLoop did not return after events closed")
	}
}

func TestPublishSystemStartup(t *testing.T) {
	pub := mqtt.NewFakePublisher()
	tracker := status.NewTracker(testStart, "id", status.Config{})

	publishSystem(pub, pub, tracker, "STARTUP", "")

	sys := pub.SystemEventsSnapshot()
	if len(sys) != 1 || sys[0].Event != "STARTUP" || !sys[0].Retained {
		t.Fatalf("expected one retained STARTUP, got %+v", sys)
	}
	if len(sys[0].RawPayload) == 0 {
		t.Error("expected status payload on STARTUP")
	}
}

func TestPublishSystemNilPublisher(t *testing.T) {
	tracker := status.NewTracker(testStart, "id", status.Config{})
	publishSystem(nil, nil, tracker, "STARTUP", "")
}

func TestLEDAction(t *testing.T) {
	led := gpio.NewFakeLED()
	ind := indicator.New(
		indicator.WithEnabled(true),
		indicator.WithActivationDelay(0),
		indicator.WithCompletionDelay(0),
		indicator.WithPlatformAction(ledAction(led, discardLogger())),
	)

	ind.Increment()
	if err := ind.Decrement(); err != nil {
		t.Fatalf("Decrement: %v", err)
	}

	values, on := led.Snapshot()
	if len(values) != 2 || !values[0] || values[1] {
		t.Errorf("LED values: got %v, want [true false]", values)
	}
	if on {
		t.Error("expected LED off")
	}
}

func TestLEDActionLogsError(t *testing.T) {
	led := gpio.NewFakeLED()
	led.SetError = errors.New("line busy")
	ledAction(led, discardLogger())(true)

	if values, _ := led.Snapshot(); len(values) != 0 {
		t.Errorf("expected no values recorded, got %v", values)
	}
}

func TestDriveLED(t *testing.T) {
	led := gpio.NewFakeLED()

	if err := driveLED(context.Background(), led, true, time.Millisecond); err != nil {
		t.Fatalf("driveLED on: %v", err)
	}
	if err := driveLED(context.Background(), led, false, time.Hour); err != nil {
		t.Fatalf("driveLED off: %v", err)
	}

	values, _ := led.Snapshot()
	if len(values) != 2 || !values[0] || values[1] {
		t.Errorf("LED values: got %v, want [true false]", values)
	}
}

func TestDriveLEDStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	done := make(chan error, 1)
	go func() { done <- driveLED(ctx, gpio.NewFakeLED(), true, time.Hour) }()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("driveLED: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("driveLED ignored cancelled context")
	}
}

func TestDriveLEDError(t *testing.T) {
	led := gpio.NewFakeLED()
	led.SetError = errors.New("line busy")

	if err := driveLED(context.Background(), led, true, time.Hour); err == nil {
		t.Fatal("expected error")
	}
}

func TestApplyFlagsOnlyChanged(t *testing.T) {
	cmd := newRootCmd()
	if err := cmd.ParseFlags([]string{"--broker", "tcp://other:1883", "--disabled", "--led-pin", "22"}); err != nil {
		t.Fatalf("parse flags: %v", err)
	}

	var f flags
	f.broker, _ = cmd.Flags().GetString("broker")
	f.disabled, _ = cmd.Flags().GetBool("disabled")
	f.ledPin, _ = cmd.Flags().GetInt("led-pin")

	cfg := config.Default()
	cfg.HTTP.Addr = ":9000"
	applyFlags(&cfg, cmd, f)

	if cfg.MQTT.Broker != "tcp://other:1883" {
		t.Errorf("broker: got %q", cfg.MQTT.Broker)
	}
	if cfg.Indicator.Enabled {
		t.Error("expected indicator disabled")
	}
	if !cfg.LED.Enabled || cfg.LED.Pin != 22 {
		t.Errorf("led: got enabled=%v pin=%d", cfg.LED.Enabled, cfg.LED.Pin)
	}
	if cfg.HTTP.Addr != ":9000" {
		t.Errorf("http addr overwritten by unset flag: got %q", cfg.HTTP.Addr)
	}
}

func TestLEDCommandRejectsBadArg(t *testing.T) {
	cmd := newRootCmd()
	cmd.SetArgs([]string{"led", "blink"})
	cmd.SetOut(discardWriter{})
	cmd.SetErr(discardWriter{})

	if err := cmd.Execute(); err == nil {
		t.Fatal("expected error for invalid led argument")
	}
}

func TestSignalName(t *testing.T) {
	if got := signalName(syscall.SIGINT); got != "SIGINT" {
		t.Errorf("SIGINT: got %q", got)
	}
	if got := signalName(syscall.SIGHUP); got != "UNKNOWN" {
		t.Errorf("SIGHUP: got %q", got)
	}
}
