// Package app assembles the topup process: configuration, the journal, the
// web and Telegram surfaces and the session janitor.
package app

import (
	"fmt"
	"time"

	coreconfig "github.com/m3rciful/topup/core/config"
	"github.com/m3rciful/topup/core/database"
	"github.com/m3rciful/topup/internal/catalog"
	"github.com/m3rciful/topup/internal/payment"
)

// PaymentConfig tunes the simulated payment call.
type PaymentConfig struct {
	CallDelayMS      int     `yaml:"call_delay_ms" envconfig:"PAYMENT_CALL_DELAY_MS"`
	RedirectDelayMS  int     `yaml:"redirect_delay_ms" envconfig:"PAYMENT_REDIRECT_DELAY_MS"`
	SuccessThreshold float64 `yaml:"success_threshold" envconfig:"PAYMENT_SUCCESS_THRESHOLD"`
}

// CallDelay returns the configured call duration.
func (p PaymentConfig) CallDelay() time.Duration {
	return time.Duration(p.CallDelayMS) * time.Millisecond
}

// RedirectDelay returns the configured delay before returning to the list.
func (p PaymentConfig) RedirectDelay() time.Duration {
	return time.Duration(p.RedirectDelayMS) * time.Millisecond
}

// Config is the full process configuration.
type Config struct {
	coreconfig.Config `yaml:",inline"`

	Journal   database.Config    `yaml:"journal"`
	Payment   PaymentConfig      `yaml:"payment"`
	Operators []catalog.Operator `yaml:"operators" ignored:"true"`
}

// CoreConfig exposes the shared core configuration to the runner.
func (c *Config) CoreConfig() *coreconfig.Config {
	if c == nil {
		return nil
	}
	return &c.Config
}

// Load reads path and the environment, then validates and fills defaults.
func Load(path string) (*Config, error) {
	var cfg Config
	cfg.Payment.SuccessThreshold = -1
	if err := coreconfig.Decode(path, &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Normalize(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Normalize validates every section.
func (c *Config) Normalize() error {
	if err := coreconfig.Normalize(&c.Config); err != nil {
		return err
	}
	if err := c.Journal.Normalize(); err != nil {
		return fmt.Errorf("journal: %w", err)
	}
	if err := c.Payment.normalize(); err != nil {
		return err
	}
	if _, err := c.Catalog(); err != nil {
		return fmt.Errorf("operators: %w", err)
	}
	return nil
}

// Catalog builds the operator catalog, falling back to the defaults.
func (c *Config) Catalog() (*catalog.Catalog, error) {
	if len(c.Operators) == 0 {
		return catalog.MustDefault(), nil
	}
	return catalog.New(c.Operators)
}

// A negative threshold marks "unset" so that 0 (never succeed) stays valid.
func (p *PaymentConfig) normalize() error {
	if p.CallDelayMS < 0 || p.RedirectDelayMS < 0 {
		return fmt.Errorf("payment: delays must be >= 0")
	}
	if p.CallDelayMS == 0 {
		p.CallDelayMS = int(payment.DefaultCallDelay / time.Millisecond)
	}
	if p.RedirectDelayMS == 0 {
		p.RedirectDelayMS = int(payment.DefaultRedirectDelay / time.Millisecond)
	}
	switch {
	case p.SuccessThreshold < 0:
		p.SuccessThreshold = payment.DefaultSuccessThreshold
	case p.SuccessThreshold > 1:
		return fmt.Errorf("payment: success_threshold must be within [0, 1]")
	}
	return nil
}
