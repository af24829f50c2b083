package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// TelegramConfig holds Telegram bot settings. An empty token disables the bot.
type TelegramConfig struct {
	Token   string `yaml:"token" envconfig:"BOT_TOKEN"`
	AdminID int64  `yaml:"admin_id" envconfig:"TELEGRAM_ADMIN_ID"`
	RunMode string `yaml:"run_mode" envconfig:"TELEGRAM_RUN_MODE"`
	// LongPollTimeoutSeconds defines long polling timeout; 0 -> default
	LongPollTimeoutSeconds int `yaml:"longpoll_timeout_seconds" envconfig:"TELEGRAM_LONGPOLL_TIMEOUT_SECONDS"`
}

// Enabled reports whether a bot token was configured.
func (t TelegramConfig) Enabled() bool {
	return strings.TrimSpace(t.Token) != ""
}

// WebhookConfig specifies webhook settings.
type WebhookConfig struct {
	URL    string `yaml:"url" envconfig:"WEBHOOK_URL"`
	Listen string `yaml:"listen" envconfig:"WEBHOOK_LISTEN"`
	Port   int    `yaml:"port" envconfig:"WEBHOOK_PORT"`
}

// HTTPConfig controls the browser and JSON surface.
type HTTPConfig struct {
	Listen                 string  `yaml:"listen" envconfig:"HTTP_LISTEN"`
	SessionTTLSeconds      int     `yaml:"session_ttl_seconds" envconfig:"HTTP_SESSION_TTL_SECONDS"`
	SweepIntervalSeconds   int     `yaml:"sweep_interval_seconds" envconfig:"HTTP_SWEEP_INTERVAL_SECONDS"`
	SubmitRPS              float64 `yaml:"submit_rps" envconfig:"HTTP_SUBMIT_RPS"`
	SubmitBurst            int     `yaml:"submit_burst" envconfig:"HTTP_SUBMIT_BURST"`
	ShutdownTimeoutSeconds int     `yaml:"shutdown_timeout_seconds" envconfig:"HTTP_SHUTDOWN_TIMEOUT_SECONDS"`
}

// LoggingConfig defines logging related configuration.
type LoggingConfig struct {
	Level       string `yaml:"level" envconfig:"LOG_LEVEL"`
	Format      string `yaml:"format" envconfig:"LOG_FORMAT"`
	KeysOrder   string `yaml:"keys_order"`
	DebugSample string `yaml:"debug_sample" envconfig:"LOG_DEBUG_SAMPLE"`
	Dir         string `yaml:"dir" envconfig:"LOG_DIR"`
	File        string `yaml:"file" envconfig:"LOG_FILE"`
	// Profile is "dev" or "prod"; dev switches the default format to kv.
	Profile string `yaml:"profile" envconfig:"LOG_PROFILE"`
}

const (
	// RunModeWebhook selects webhook mode for Telegram updates.
	RunModeWebhook = "webhook"
	// RunModeLongpoll selects long-polling mode for Telegram updates.
	RunModeLongpoll = "longpoll"
)

const (
	UpdateCallback    = "callback"
	UpdateMessage     = "message"
	UpdateInlineQuery = "inline_query"
)

// RateLimitConfig throttles Telegram updates per user.
// ExcludeUpdates lists update kinds that bypass the limiter: callback, message, inline_query.
type RateLimitConfig struct {
	IntervalMS     int      `yaml:"interval_ms" envconfig:"RATE_LIMIT_INTERVAL_MS"`
	Burst          int      `yaml:"burst" envconfig:"RATE_LIMIT_BURST"`
	ExcludeUpdates []string `yaml:"exclude_updates" envconfig:"RATE_LIMIT_EXCLUDE_UPDATES"`
}

// Config aggregates the configuration that belongs to the reusable core.
type Config struct {
	Telegram  TelegramConfig  `yaml:"telegram"`
	Webhook   WebhookConfig   `yaml:"webhook"`
	HTTP      HTTPConfig      `yaml:"http"`
	Logging   LoggingConfig   `yaml:"logging"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
}

// HTTP defaults applied by Normalize.
const (
	DefaultHTTPListen           = ":8080"
	DefaultSessionTTLSeconds    = 900
	DefaultSweepIntervalSeconds = 60
	DefaultSubmitRPS            = 1.0
	DefaultSubmitBurst          = 5
	DefaultShutdownSeconds      = 10
)

// Decode fills dst from the YAML file at path and then from the environment.
// A missing file is not an error: the environment alone is used.
func Decode(path string, dst any) error {
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, dst); err != nil {
			return fmt.Errorf("failed to parse YAML config: %w", err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := envconfig.Process("", dst); err != nil {
		return fmt.Errorf("failed to process env: %w", err)
	}
	return nil
}

// Load reads the core configuration from a YAML file and environment variables.
func Load(path string) (*Config, error) {
	var cfg Config
	if err := Decode(path, &cfg); err != nil {
		return nil, err
	}
	if err := Normalize(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Normalize validates the configuration and fills defaults.
func Normalize(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("nil config")
	}
	if err := normalizeHTTP(&cfg.HTTP); err != nil {
		return err
	}
	if cfg.Telegram.Enabled() {
		if err := normalizeTelegram(cfg); err != nil {
			return err
		}
	}
	return normalizeRateLimit(&cfg.RateLimit)
}

func normalizeHTTP(h *HTTPConfig) error {
	h.Listen = strings.TrimSpace(h.Listen)
	if h.Listen == "" {
		h.Listen = DefaultHTTPListen
	}
	if h.SessionTTLSeconds < 0 || h.SweepIntervalSeconds < 0 || h.SubmitBurst < 0 || h.SubmitRPS < 0 {
		return fmt.Errorf("http: ttl, sweep interval, submit rate and burst must be >= 0")
	}
	if h.SessionTTLSeconds == 0 {
		h.SessionTTLSeconds = DefaultSessionTTLSeconds
	}
	if h.SweepIntervalSeconds == 0 {
		h.SweepIntervalSeconds = DefaultSweepIntervalSeconds
	}
	if h.SubmitRPS == 0 {
		h.SubmitRPS = DefaultSubmitRPS
	}
	if h.SubmitBurst == 0 {
		h.SubmitBurst = DefaultSubmitBurst
	}
	if h.ShutdownTimeoutSeconds <= 0 {
		h.ShutdownTimeoutSeconds = DefaultShutdownSeconds
	}
	return nil
}

func normalizeTelegram(cfg *Config) error {
	rm := strings.ToLower(strings.TrimSpace(cfg.Telegram.RunMode))
	switch rm {
	case "", "polling":
		rm = RunModeLongpoll
	}
	switch rm {
	case RunModeWebhook:
		if strings.TrimSpace(cfg.Webhook.URL) == "" {
			return fmt.Errorf("webhook.url is required when telegram.run_mode is 'webhook'")
		}
		if strings.TrimSpace(cfg.Webhook.Listen) == "" {
			return fmt.Errorf("webhook.listen is required when telegram.run_mode is 'webhook'")
		}
		if cfg.Webhook.Port <= 0 {
			return fmt.Errorf("webhook.port must be > 0 when telegram.run_mode is 'webhook'")
		}
	case RunModeLongpoll:
		if cfg.Telegram.LongPollTimeoutSeconds < 0 {
			return fmt.Errorf("telegram.longpoll_timeout_seconds must be >= 0")
		}
	default:
		return fmt.Errorf("invalid telegram.run_mode %q; allowed: webhook, longpoll", cfg.Telegram.RunMode)
	}
	cfg.Telegram.RunMode = rm
	return nil
}

func normalizeRateLimit(rl *RateLimitConfig) error {
	if rl.Burst <= 0 {
		rl.Burst = 1
	}
	out := rl.ExcludeUpdates[:0]
	for _, v := range rl.ExcludeUpdates {
		key := strings.ToLower(strings.TrimSpace(v))
		switch key {
		case "":
			continue
		case UpdateCallback, UpdateMessage, UpdateInlineQuery:
			out = append(out, key)
		default:
			return fmt.Errorf("invalid rate_limit.exclude_updates value %q; allowed: callback, message, inline_query", v)
		}
	}
	rl.ExcludeUpdates = out
	return nil
}
