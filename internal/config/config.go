// Package config provides configuration types and loading for the
// controller. All tunable thresholds live here rather than as literals.
package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// #region config

// Config is the root configuration struct, populated from HD4_-prefixed
// environment variables.
type Config struct {
	// Collaborator endpoints
	ClassifierAddr    string        `envconfig:"CLASSIFIER_ADDR" default:"localhost:50061"`
	ClassifierTimeout time.Duration `envconfig:"CLASSIFIER_TIMEOUT" default:"2s"`
	DBPath            string        `envconfig:"DB_PATH" default:"hd4_controller.db"`

	// Decide thresholds
	EscalationThreshold float64 `envconfig:"ESCALATION_THRESHOLD" default:"0.7"`
	IntensityThreshold  float64 `envconfig:"INTENSITY_THRESHOLD" default:"1.0"`

	// Hawkes point-process parameters
	HawkesMu    float64 `envconfig:"HAWKES_MU" default:"0.1"`
	HawkesBeta  float64 `envconfig:"HAWKES_BETA" default:"1.0"`
	HawkesAlpha float64 `envconfig:"HAWKES_ALPHA" default:"0.5"`

	// Cycle budget: overruns are diagnostics, never fatal
	CycleBudget time.Duration `envconfig:"CYCLE_BUDGET" default:"5ms"`

	// Router slot table size
	RouterSlots uint32 `envconfig:"ROUTER_SLOTS" default:"1024"`

	// Background correlation executor capacity
	ExecutorWorkers int `envconfig:"EXECUTOR_WORKERS" default:"4"`
	ExecutorQueue   int `envconfig:"EXECUTOR_QUEUE" default:"64"`

	// FireEvent publication. Empty brokers → in-process bus only.
	KafkaBrokers string `envconfig:"KAFKA_BROKERS" default:""`
	KafkaTopic   string `envconfig:"KAFKA_TOPIC" default:"hd4.fire-events"`
}

// #endregion config

// #region load

// Load reads configuration from the environment on top of defaults.
func Load() (Config, error) {
	var cfg Config
	if err := envconfig.Process("HD4", &cfg); err != nil {
		return Config{}, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Default returns the built-in defaults without touching the environment.
func Default() Config {
	return Config{
		ClassifierAddr:      "localhost:50061",
		ClassifierTimeout:   2 * time.Second,
		DBPath:              "hd4_controller.db",
		EscalationThreshold: 0.7,
		IntensityThreshold:  1.0,
		HawkesMu:            0.1,
		HawkesBeta:          1.0,
		HawkesAlpha:         0.5,
		CycleBudget:         5 * time.Millisecond,
		RouterSlots:         1024,
		ExecutorWorkers:     4,
		ExecutorQueue:       64,
		KafkaTopic:          "hd4.fire-events",
	}
}

// Validate rejects configurations the pipeline cannot run with.
func (c Config) Validate() error {
	if c.EscalationThreshold <= 0 || c.EscalationThreshold >= 1 {
		return fmt.Errorf("escalation threshold %v outside (0,1)", c.EscalationThreshold)
	}
	if c.IntensityThreshold <= 0 {
		return fmt.Errorf("intensity threshold %v must be positive", c.IntensityThreshold)
	}
	if c.HawkesMu < 0 || c.HawkesBeta <= 0 || c.HawkesAlpha < 0 {
		return fmt.Errorf("hawkes params mu=%v beta=%v alpha=%v invalid", c.HawkesMu, c.HawkesBeta, c.HawkesAlpha)
	}
	if c.ExecutorWorkers <= 0 {
		return fmt.Errorf("executor workers %d must be positive", c.ExecutorWorkers)
	}
	return nil
}

// #endregion load
