// Package config loads server settings from the environment.
package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds everything the server needs. All fields come from
// LUNCHFUND_* environment variables; a local .env file is loaded first
// when present.
type Config struct {
	Port   int    `envconfig:"PORT" default:"8080"`
	DBPath string `envconfig:"DB_PATH" default:"./data/lunchfund.db"`

	// Rotation
	TargetBuyers  int    `envconfig:"TARGET_BUYERS" default:"4"`
	SelectionCron string `envconfig:"SELECTION_CRON" default:"0 11 * * 1-5"`

	// Notifications. Telegram is optional; without a token events go to
	// the log only.
	TelegramToken  string        `envconfig:"TELEGRAM_TOKEN"`
	TelegramChatID int64         `envconfig:"TELEGRAM_CHAT_ID"`
	NotifyInterval time.Duration `envconfig:"NOTIFY_INTERVAL" default:"5s"`

	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`
}

// Load reads LUNCHFUND_* variables into a Config.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("LUNCHFUND", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if cfg.TargetBuyers <= 0 {
		return nil, fmt.Errorf("target buyers must be positive, got %d", cfg.TargetBuyers)
	}
	return &cfg, nil
}
