// Package config loads harness settings from the environment.
//
// An optional .env file is loaded first; variables already set in the
// process environment win over the file. Every variable is prefixed TBSA_.
// Command-line flags override whatever Load returns.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/roach88/tbsa/internal/fault"
	"github.com/roach88/tbsa/internal/interrupt"
)

// Environment variable names.
const (
	EnvTarget         = "TBSA_TARGET"
	EnvDB             = "TBSA_DB"
	EnvLogLevel       = "TBSA_LOG_LEVEL"
	EnvLogFormat      = "TBSA_LOG_FORMAT"
	EnvSpinBudget     = "TBSA_SPIN_BUDGET"
	EnvPendingTimeout = "TBSA_PENDING_TIMEOUT"
	EnvDelivery       = "TBSA_DELIVERY"
	EnvSigningKey     = "TBSA_SIGNING_KEY"
)

// Delivery modes.
const (
	DeliveryAsync = "async"
	DeliverySync  = "sync"
)

// Config holds harness settings.
type Config struct {
	TargetPath     string
	DBPath         string
	LogLevel       string
	LogFormat      string
	SpinBudget     int
	PendingTimeout time.Duration
	Delivery       string
	SigningKey     string
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		LogLevel:       "warn",
		LogFormat:      "console",
		SpinBudget:     fault.DefaultMaxSpins,
		PendingTimeout: fault.DefaultTimeout,
		Delivery:       DeliveryAsync,
	}
}

// Load reads envFile if it exists, then the process environment.
// An empty envFile means ".env".
func Load(envFile string) (Config, error) {
	if envFile == "" {
		envFile = ".env"
	}
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("failed to load %s: %w", envFile, err)
	}
	return FromEnv(os.Getenv)
}

// FromEnv builds a Config from a variable lookup.
func FromEnv(getenv func(string) string) (Config, error) {
	cfg := Default()

	if v := getenv(EnvTarget); v != "" {
		cfg.TargetPath = v
	}
	if v := getenv(EnvDB); v != "" {
		cfg.DBPath = v
	}
	if v := getenv(EnvLogLevel); v != "" {
		cfg.LogLevel = strings.ToLower(v)
	}
	if v := getenv(EnvLogFormat); v != "" {
		cfg.LogFormat = strings.ToLower(v)
	}
	if v := getenv(EnvSpinBudget); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, fmt.Errorf("%s: %w", EnvSpinBudget, err)
		}
		cfg.SpinBudget = n
	}
	if v := getenv(EnvPendingTimeout); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return Config{}, fmt.Errorf("%s: %w", EnvPendingTimeout, err)
		}
		cfg.PendingTimeout = d
	}
	if v := getenv(EnvDelivery); v != "" {
		cfg.Delivery = strings.ToLower(v)
	}
	if v := getenv(EnvSigningKey); v != "" {
		cfg.SigningKey = v
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects settings the harness cannot run with.
func (c Config) Validate() error {
	if c.SpinBudget <= 0 {
		return fmt.Errorf("spin budget must be positive, got %d", c.SpinBudget)
	}
	if c.PendingTimeout <= 0 {
		return fmt.Errorf("pending timeout must be positive, got %s", c.PendingTimeout)
	}
	if _, err := ParseDelivery(c.Delivery); err != nil {
		return err
	}
	switch c.LogFormat {
	case "console", "json":
	default:
		return fmt.Errorf("unknown log format %q (valid: console, json)", c.LogFormat)
	}
	return nil
}

// Budget returns the pending-wait budget.
func (c Config) Budget() fault.Budget {
	return fault.Budget{MaxSpins: c.SpinBudget, Timeout: c.PendingTimeout}
}

// DeliveryMode returns the exception delivery mode.
func (c Config) DeliveryMode() interrupt.Delivery {
	d, _ := ParseDelivery(c.Delivery)
	return d
}

// ParseDelivery maps a delivery name onto its mode.
func ParseDelivery(name string) (interrupt.Delivery, error) {
	switch name {
	case DeliveryAsync:
		return interrupt.DeliverAsync, nil
	case DeliverySync:
		return interrupt.DeliverSync, nil
	default:
		return 0, fmt.Errorf("unknown delivery mode %q (valid: async, sync)", name)
	}
}
