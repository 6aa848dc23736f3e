// Package config loads busylight daemon settings from a YAML file, an
// optional env file and BUSYLIGHT_* environment variables, in that order.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/sweeney/busylight/internal/gpio"
	"github.com/sweeney/busylight/internal/indicator"
)

// DefaultEnvFile is read if present; missing is not an error.
const DefaultEnvFile = "/run/busylight.env"

// Config is the daemon configuration.
type Config struct {
	Indicator IndicatorConfig `yaml:"indicator"`
	LED       LEDConfig       `yaml:"led"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	HTTP      HTTPConfig      `yaml:"http"`
	Log       LogConfig       `yaml:"log"`
	Heartbeat time.Duration   `yaml:"heartbeat"`
}

// IndicatorConfig holds the debounce settings.
type IndicatorConfig struct {
	Enabled         bool          `yaml:"enabled"`
	ActivationDelay time.Duration `yaml:"activation_delay"`
	CompletionDelay time.Duration `yaml:"completion_delay"`
}

// LEDConfig selects the GPIO line driving the busy light.
type LEDConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Chip      string `yaml:"chip"`
	Pin       int    `yaml:"pin"`
	ActiveLow bool   `yaml:"active_low"`
}

// MQTTConfig holds the broker connection.
type MQTTConfig struct {
	Broker     string `yaml:"broker"` // empty disables MQTT
	ClientID   string `yaml:"client_id"`
	Username   string `yaml:"username"`
	Password   string `yaml:"password"`
	BufferSize int    `yaml:"buffer_size"`
}

// HTTPConfig holds the status server address.
type HTTPConfig struct {
	Addr string `yaml:"addr"` // empty disables HTTP
}

// LogConfig controls logging output.
type LogConfig struct {
	Level      string `yaml:"level"` // debug, info, warn, error
	File       string `yaml:"file"`  // empty logs to stderr
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Indicator: IndicatorConfig{
			Enabled:         true,
			ActivationDelay: indicator.DefaultActivationDelay,
			CompletionDelay: indicator.DefaultCompletionDelay,
		},
		LED: LEDConfig{
			Chip: "gpiochip0",
			Pin:  gpio.DefaultPin,
		},
		MQTT: MQTTConfig{
			BufferSize: 100,
		},
		HTTP: HTTPConfig{
			Addr: ":8080",
		},
		Log: LogConfig{
			Level:      "info",
			MaxSizeMB:  5,
			MaxBackups: 3,
			MaxAgeDays: 7,
		},
		Heartbeat: 15 * time.Minute,
	}
}

// Load reads path (if non-empty) over the defaults, then applies envFile
// (if it exists) and the process environment.
func Load(path, envFile string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if envFile != "" {
		// Load does not override variables already set in the environment.
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("load env file %s: %w", envFile, err)
		}
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return Config{}, err
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Environment variable names.
const (
	EnvEnabled         = "BUSYLIGHT_ENABLED"
	EnvActivationDelay = "BUSYLIGHT_ACTIVATION_DELAY"
	EnvCompletionDelay = "BUSYLIGHT_COMPLETION_DELAY"
	EnvBroker          = "BUSYLIGHT_MQTT_BROKER"
	EnvMQTTUsername    = "BUSYLIGHT_MQTT_USERNAME"
	EnvMQTTPassword    = "BUSYLIGHT_MQTT_PASSWORD"
	EnvHTTPAddr        = "BUSYLIGHT_HTTP_ADDR"
	EnvLEDPin          = "BUSYLIGHT_LED_PIN"
	EnvLogLevel        = "BUSYLIGHT_LOG_LEVEL"
)

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup(EnvEnabled); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvEnabled, err)
		}
		c.Indicator.Enabled = b
	}
	if v, ok := lookup(EnvActivationDelay); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvActivationDelay, err)
		}
		c.Indicator.ActivationDelay = d
	}
	if v, ok := lookup(EnvCompletionDelay); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvCompletionDelay, err)
		}
		c.Indicator.CompletionDelay = d
	}
	if v, ok := lookup(EnvLEDPin); ok {
		pin, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvLEDPin, err)
		}
		c.LED.Pin = pin
		c.LED.Enabled = true
	}
	if v, ok := lookup(EnvBroker); ok {
		c.MQTT.Broker = v
	}
	if v, ok := lookup(EnvMQTTUsername); ok {
		c.MQTT.Username = v
	}
	if v, ok := lookup(EnvMQTTPassword); ok {
		c.MQTT.Password = v
	}
	if v, ok := lookup(EnvHTTPAddr); ok {
		c.HTTP.Addr = v
	}
	if v, ok := lookup(EnvLogLevel); ok {
		c.Log.Level = v
	}
	return nil
}

// Validate rejects settings the daemon cannot run with.
func (c Config) Validate() error {
	var errs []error
	if c.Indicator.ActivationDelay < 0 {
		errs = append(errs, fmt.Errorf("indicator.activation_delay must not be negative, got %v", c.Indicator.ActivationDelay))
	}
	if c.Indicator.CompletionDelay < 0 {
		errs = append(errs, fmt.Errorf("indicator.completion_delay must not be negative, got %v", c.Indicator.CompletionDelay))
	}
	if c.LED.Enabled && c.LED.Pin < 0 {
		errs = append(errs, fmt.Errorf("led.pin must not be negative, got %d", c.LED.Pin))
	}
	if c.Heartbeat < 0 {
		errs = append(errs, fmt.Errorf("heartbeat must not be negative, got %v", c.Heartbeat))
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("log.level must be one of debug, info, warn, error, got %q", c.Log.Level))
	}
	return errors.Join(errs...)
}
