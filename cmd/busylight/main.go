// Command busylight drives a debounced network activity light and publishes
// its state to MQTT.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/sweeney/busylight/internal/config"
	"github.com/sweeney/busylight/internal/gpio"
	"github.com/sweeney/busylight/internal/indicator"
	"github.com/sweeney/busylight/internal/logging"
	"github.com/sweeney/busylight/internal/metrics"
	"github.com/sweeney/busylight/internal/mqtt"
	"github.com/sweeney/busylight/internal/status"
	"github.com/sweeney/busylight/internal/web"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// flags holds command line overrides. Only flags the user set are applied.
type flags struct {
	configPath string
	envFile    string
	broker     string
	httpAddr   string
	ledPin     int
	logLevel   string
	heartbeat  time.Duration
	disabled   bool
}

func newRootCmd() *cobra.Command {
	var f flags

	serve := &cobra.Command{
		Use:   "serve",
		Short: "Run the busylight daemon",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd, f)
			if err != nil {
				return err
			}
			return serveDaemon(cmd.Context(), cfg)
		},
	}

	root := &cobra.Command{
		Use:          "busylight",
		Short:        "Debounced network activity light",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE:         serve.RunE,
	}

	pf := root.PersistentFlags()
	pf.StringVarP(&f.configPath, "config", "c", "", "YAML config file")
	pf.StringVar(&f.envFile, "env-file", config.DefaultEnvFile, "Environment file (ignored if missing)")
	pf.StringVar(&f.broker, "broker", "", "MQTT broker address (empty disables MQTT)")
	pf.StringVar(&f.httpAddr, "http", "", "HTTP status address (empty disables)")
	pf.IntVar(&f.ledPin, "led-pin", gpio.DefaultPin, "BCM pin number for the busy LED")
	pf.StringVar(&f.logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	pf.DurationVar(&f.heartbeat, "heartbeat", 0, "Heartbeat interval (0 to disable)")
	pf.BoolVar(&f.disabled, "disabled", false, "Start with debouncing disabled")

	root.AddCommand(serve, newLEDCmd(&f))
	return root
}

func newLEDCmd(f *flags) *cobra.Command {
	var hold time.Duration
	cmd := &cobra.Command{
		Use:       "led on|off",
		Short:     "Drive the busy LED directly and exit",
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{"on", "off"},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, *f)
			if err != nil {
				return err
			}
			led, err := gpio.NewRealLED(cfg.LED.Chip, cfg.LED.Pin, cfg.LED.ActiveLow)
			if err != nil {
				return fmt.Errorf("init led: %w", err)
			}
			defer led.Close()
			return driveLED(cmd.Context(), led, args[0] == "on", hold)
		},
	}
	cmd.Flags().DurationVar(&hold, "for", 3*time.Second, "How long to hold the LED on")
	return cmd
}

// driveLED sets the LED and, when switching it on, holds it until hold
// elapses or ctx is done.
func driveLED(ctx context.Context, led gpio.LED, on bool, hold time.Duration) error {
	if err := led.Set(on); err != nil {
		return fmt.Errorf("set led: %w", err)
	}
	fmt.Printf("LED: %s\n", stateString(on))
	if !on {
		return nil
	}
	select {
	case <-time.After(hold):
	case <-ctx.Done():
	}
	return nil
}

func loadConfig(cmd *cobra.Command, f flags) (config.Config, error) {
	cfg, err := config.Load(f.configPath, f.envFile)
	if err != nil {
		return config.Config{}, fmt.Errorf("load config: %w", err)
	}
	applyFlags(&cfg, cmd, f)
	if err := cfg.Validate(); err != nil {
		return config.Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func applyFlags(cfg *config.Config, cmd *cobra.Command, f flags) {
	changed := cmd.Flags().Changed
	if changed("broker") {
		cfg.MQTT.Broker = f.broker
	}
	if changed("http") {
		cfg.HTTP.Addr = f.httpAddr
	}
	if changed("led-pin") {
		cfg.LED.Pin = f.ledPin
		cfg.LED.Enabled = true
	}
	if changed("log-level") {
		cfg.Log.Level = f.logLevel
	}
	if changed("heartbeat") {
		cfg.Heartbeat = f.heartbeat
	}
	if changed("disabled") {
		cfg.Indicator.Enabled = !f.disabled
	}
}

func serveDaemon(ctx context.Context, cfg config.Config) error {
	logger, logCloser, err := logging.New(cfg.Log)
	if err != nil {
		return fmt.Errorf("init logging: %w", err)
	}
	defer logCloser.Close()
	slog.SetDefault(logger)

	opts := []indicator.Option{
		indicator.WithLogger(logger.With("component", "indicator")),
		indicator.WithEnabled(cfg.Indicator.Enabled),
		indicator.WithActivationDelay(cfg.Indicator.ActivationDelay),
		indicator.WithCompletionDelay(cfg.Indicator.CompletionDelay),
	}

	ledPin := 0
	if cfg.LED.Enabled {
		led, err := gpio.NewRealLED(cfg.LED.Chip, cfg.LED.Pin, cfg.LED.ActiveLow)
		if err != nil {
			return fmt.Errorf("init led: %w", err)
		}
		defer led.Close()
		ledPin = cfg.LED.Pin
		opts = append(opts, indicator.WithPlatformAction(ledAction(led, logger)))
	}
	ind := indicator.New(opts...)

	var (
		publisher  mqtt.Publisher
		mqttStatus mqtt.ConnectionStatus
	)
	if cfg.MQTT.Broker != "" {
		p, err := mqtt.NewRealPublisher(mqtt.Options{
			Broker:     cfg.MQTT.Broker,
			ClientID:   cfg.MQTT.ClientID,
			Username:   cfg.MQTT.Username,
			Password:   cfg.MQTT.Password,
			BufferSize: cfg.MQTT.BufferSize,
		})
		if err != nil {
			return fmt.Errorf("init mqtt: %w", err)
		}
		defer p.Close()
		publisher, mqttStatus = p, p
	}

	// Status tracker exists before STARTUP so the snapshot is available.
	tracker := status.NewTracker(time.Now(), uuid.NewString(), status.Config{
		HeartbeatMs: cfg.Heartbeat.Milliseconds(),
		Broker:      cfg.MQTT.Broker,
		HTTPAddr:    cfg.HTTP.Addr,
		LEDPin:      ledPin,
	})
	tracker.Update(ind.Snapshot())
	publishSystem(publisher, mqttStatus, tracker, "STARTUP", "")

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)

	if cfg.HTTP.Addr != "" {
		srv := web.New(cfg.HTTP.Addr, tracker, ind, metrics.New(ind).Handler(), logger.With("component", "web"))
		g.Go(func() error {
			slog.Info("http status server listening", "addr", cfg.HTTP.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("http server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
			defer done()
			return srv.Shutdown(shutdownCtx)
		})
	}

	var heartbeat <-chan time.Time
	if cfg.Heartbeat > 0 {
		ticker := time.NewTicker(cfg.Heartbeat)
		defer ticker.Stop()
		heartbeat = ticker.C
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	slog.Info("started",
		"enabled", cfg.Indicator.Enabled,
		"activation_delay", cfg.Indicator.ActivationDelay,
		"completion_delay", cfg.Indicator.CompletionDelay,
		"broker", cfg.MQTT.Broker,
		"heartbeat", cfg.Heartbeat,
	)

	events := ind.Subscribe(gctx)
	g.Go(func() error {
		defer cancel()
		return runLoop(gctx, loop{
			events:     events,
			ind:        ind,
			publisher:  publisher,
			mqttStatus: mqttStatus,
			tracker:    tracker,
			heartbeat:  heartbeat,
			sig:        sigCh,
		})
	})

	return g.Wait()
}

// ledAction adapts an LED to the indicator's platform action.
func ledAction(led gpio.LED, logger *slog.Logger) func(bool) {
	return func(visible bool) {
		if err := led.Set(visible); err != nil {
			logger.Error("led write failed", "visible", visible, "err", err)
		}
	}
}

// loop holds the inputs of runLoop. publisher, mqttStatus and heartbeat may be nil.
type loop struct {
	events     <-chan indicator.Event
	ind        *indicator.Indicator
	publisher  mqtt.Publisher
	mqttStatus mqtt.ConnectionStatus
	tracker    *status.Tracker
	heartbeat  <-chan time.Time
	sig        <-chan os.Signal
}

func runLoop(ctx context.Context, l loop) error {
	for {
		select {
		case s := <-l.sig:
			slog.Info("shutting down", "signal", s)
			l.tracker.Update(l.ind.Snapshot())
			publishSystem(l.publisher, l.mqttStatus, l.tracker, "SHUTDOWN", signalName(s))
			return nil

		case <-ctx.Done():
			return nil

		case ev, ok := <-l.events:
			if !ok {
				return nil
			}
			slog.Info("visibility changed", "event", mqtt.EventName(ev), "count", l.ind.Count())
			l.tracker.RecordChange(ev.Timestamp)
			l.tracker.Update(l.ind.Snapshot())
			if l.publisher != nil {
				if err := l.publisher.Publish(ev); err != nil {
					// Don't crash on publish failure
					slog.Error("publish error", "err", err)
				}
			}

		case <-l.heartbeat:
			snap := l.ind.Snapshot()
			slog.Info("heartbeat",
				"count", snap.Count,
				"visible", snap.Visible,
				"shown", snap.Counts.Shown,
				"suppressed", snap.Counts.Suppressed,
				"bridged", snap.Counts.Bridged,
			)
			l.tracker.Update(snap)
			publishSystem(l.publisher, l.mqttStatus, l.tracker, "HEARTBEAT", "")
		}
	}
}

// publishSystem sends a lifecycle event carrying the full status snapshot.
// It is a no-op without a publisher.
func publishSystem(publisher mqtt.Publisher, mqttStatus mqtt.ConnectionStatus, tracker *status.Tracker, event, reason string) {
	if publisher == nil {
		return
	}
	if mqttStatus != nil {
		tracker.SetMQTTConnected(mqttStatus.IsConnected())
	}
	snap := tracker.Snapshot()
	ev := mqtt.SystemEvent{
		Timestamp:  snap.Now,
		Event:      event,
		Reason:     reason,
		Retained:   event != "HEARTBEAT",
		RawPayload: status.FormatStatusEvent(snap, event, reason),
	}
	if err := publisher.PublishSystem(ev); err != nil {
		slog.Error("failed to publish system event", "event", event, "err", err)
		return
	}
	slog.Info("published system event", "event", event)
}

func signalName(s os.Signal) string {
	switch s {
	case syscall.SIGINT:
		return "SIGINT"
	case syscall.SIGTERM:
		return "SIGTERM"
	}
	return "UNKNOWN"
}

func stateString(on bool) string {
	if on {
		return "ON"
	}
	return "OFF"
}
