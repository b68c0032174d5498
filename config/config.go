/*
Package config loads server configuration from environment variables.

PURPOSE:
  Central place for every tunable knob of the server binary. Values come
  from the environment (optionally seeded by a .env file via godotenv)
  with viper handling defaults and type coercion.

PRECEDENCE:
  real environment > .env file > defaults below
*/
package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/jokken79/yukyu-ledger/ledger"
)

// Config holds the server configuration.
type Config struct {
	Port         string
	DatabasePath string

	// Entitlement policy knobs.
	RetentionYears      int
	ExpiryWarningDays   int
	ComplianceThreshold ledger.Days
	ObligationFloor     ledger.Days
	DefaultPolicy       ledger.DeductionPolicy

	// Expiration sweep scheduling.
	SweepInterval time.Duration
	SweepEnabled  bool
}

// Load reads configuration from the environment. A .env file in the
// working directory is honored when present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	viper.SetDefault("PORT", "8080")
	viper.SetDefault("DATABASE_PATH", "./data/yukyu.db")
	viper.SetDefault("RETENTION_YEARS", ledger.DefaultRetentionYears)
	viper.SetDefault("EXPIRY_WARNING_DAYS", ledger.DefaultExpiryWarningDays)
	viper.SetDefault("COMPLIANCE_THRESHOLD", "5")
	viper.SetDefault("OBLIGATION_FLOOR", "10")
	viper.SetDefault("DEFAULT_POLICY", string(ledger.OldestFirst))
	viper.SetDefault("SWEEP_INTERVAL", "24h")
	viper.SetDefault("SWEEP_ENABLED", true)
	viper.AutomaticEnv()

	threshold, err := ledger.ParseDays(viper.GetString("COMPLIANCE_THRESHOLD"))
	if err != nil {
		return nil, fmt.Errorf("invalid COMPLIANCE_THRESHOLD: %w", err)
	}
	floor, err := ledger.ParseDays(viper.GetString("OBLIGATION_FLOOR"))
	if err != nil {
		return nil, fmt.Errorf("invalid OBLIGATION_FLOOR: %w", err)
	}

	policy := ledger.DeductionPolicy(viper.GetString("DEFAULT_POLICY"))
	if !policy.Valid() {
		return nil, fmt.Errorf("invalid DEFAULT_POLICY %q", policy)
	}

	sweepInterval, err := time.ParseDuration(viper.GetString("SWEEP_INTERVAL"))
	if err != nil {
		return nil, fmt.Errorf("invalid SWEEP_INTERVAL: %w", err)
	}

	return &Config{
		Port:                viper.GetString("PORT"),
		DatabasePath:        viper.GetString("DATABASE_PATH"),
		RetentionYears:      viper.GetInt("RETENTION_YEARS"),
		ExpiryWarningDays:   viper.GetInt("EXPIRY_WARNING_DAYS"),
		ComplianceThreshold: threshold,
		ObligationFloor:     floor,
		DefaultPolicy:       policy,
		SweepInterval:       sweepInterval,
		SweepEnabled:        viper.GetBool("SWEEP_ENABLED"),
	}, nil
}

// Ledger converts the policy knobs into a ledger engine config.
func (c *Config) Ledger() ledger.Config {
	return ledger.Config{
		RetentionYears:      c.RetentionYears,
		ExpiryWarningDays:   c.ExpiryWarningDays,
		ComplianceThreshold: c.ComplianceThreshold,
		ObligationFloor:     c.ObligationFloor,
		DefaultPolicy:       c.DefaultPolicy,
	}
}
