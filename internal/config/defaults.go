package config

import (
	"time"

	"github.com/spf13/viper"
)

// SetDefaults 设置所有配置项的默认值
func SetDefaults() {
	d := DefaultConfig()

	// Telegram 配置
	viper.SetDefault("telegram.token", "")
	viper.SetDefault("telegram.base_url", d.Telegram.BaseURL)
	viper.SetDefault("telegram.poll_timeout", d.Telegram.PollTimeout)
	viper.SetDefault("admin_id", 0)

	// Relay 配置
	viper.SetDefault("relay.workers", d.Relay.Workers)
	viper.SetDefault("relay.max_retries", d.Relay.MaxRetries)
	viper.SetDefault("relay.retry_delay", d.Relay.RetryDelay)
	viper.SetDefault("relay.min_interval", d.Relay.MinInterval)
	viper.SetDefault("relay.retention", d.Relay.Retention)
	viper.SetDefault("relay.dedup_window", d.Relay.DedupWindow)
	viper.SetDefault("relay.rate_state_idle", d.Relay.RateStateIdle)
	viper.SetDefault("relay.poll_error_delay", d.Relay.PollErrorDelay)
	viper.SetDefault("relay.shutdown_grace", d.Relay.ShutdownGrace)

	// Janitor 配置
	viper.SetDefault("janitor.interval", d.Janitor.Interval)

	// Bans 配置
	viper.SetDefault("bans.driver", d.Bans.Driver)
	viper.SetDefault("bans.path", d.Bans.Path)
	viper.SetDefault("bans.db_path", d.Bans.DBPath)
	viper.SetDefault("bans.watch", d.Bans.Watch)

	// Log 配置
	viper.SetDefault("log.enabled", d.Log.Enabled)
	viper.SetDefault("log.level", d.Log.Level)
	viper.SetDefault("log.format", d.Log.Format)
	viper.SetDefault("log.file", d.Log.File)

	// Status 配置
	viper.SetDefault("status.enabled", d.Status.Enabled)
	viper.SetDefault("status.host", d.Status.Host)
	viper.SetDefault("status.port", d.Status.Port)
}

// DefaultConfig 返回默认配置，也用于 config init 生成模板
func DefaultConfig() *Config {
	return &Config{
		Telegram: TelegramConfig{
			BaseURL:     "https://api.telegram.org",
			PollTimeout: 30 * time.Second,
		},
		Relay: RelayConfig{
			Workers:        4,
			MaxRetries:     3,
			RetryDelay:     5 * time.Second,
			MinInterval:    time.Second,
			Retention:      24 * time.Hour,
			DedupWindow:    time.Hour,
			RateStateIdle:  24 * time.Hour,
			PollErrorDelay: 5 * time.Second,
			ShutdownGrace:  10 * time.Second,
		},
		Janitor: JanitorConfig{
			Interval: time.Hour,
		},
		Bans: BansConfig{
			Driver: "file",
			Path:   "~/.tgrelay/banned.txt",
			DBPath: "~/.tgrelay/data.db",
			Watch:  true,
		},
		Log: LogConfig{
			Enabled: true,
			Level:   "info",
			Format:  "console",
		},
		Status: StatusConfig{
			Enabled: false,
			Host:    "127.0.0.1",
			Port:    8089,
		},
	}
}
