package config

import "strings"

const (
	DefaultMaxPosts           = 15
	DefaultMaxChannelsPerPost = 90
)

// ApplyDefaults fills zero values in place. Explicit values are never touched.
func ApplyDefaults(cfg *Config) {
	if cfg == nil {
		return
	}
	if strings.TrimSpace(cfg.Telegram.PollTimeout) == "" {
		cfg.Telegram.PollTimeout = "10s"
	}
	if cfg.Telegram.RatePerSec == 0 {
		cfg.Telegram.RatePerSec = 25
	}
	if cfg.Telegram.Breaker.Failures == 0 {
		cfg.Telegram.Breaker.Failures = 5
	}
	if strings.TrimSpace(cfg.Telegram.Breaker.OpenTimeout) == "" {
		cfg.Telegram.Breaker.OpenTimeout = "30s"
	}
	if cfg.Telegram.Breaker.HalfOpenMax == 0 {
		cfg.Telegram.Breaker.HalfOpenMax = 1
	}

	if strings.TrimSpace(cfg.Logging.Level) == "" {
		cfg.Logging.Level = "info"
	}
	if strings.TrimSpace(cfg.Logging.Chat.MinLevel) == "" {
		cfg.Logging.Chat.MinLevel = "warn"
	}
	if cfg.Logging.Chat.RatePerSec == 0 {
		cfg.Logging.Chat.RatePerSec = 1
	}

	if strings.TrimSpace(cfg.Scheduler.Timezone) == "" {
		cfg.Scheduler.Timezone = "UTC"
	}
	if strings.TrimSpace(cfg.Scheduler.JobTimeout) == "" {
		cfg.Scheduler.JobTimeout = "2m"
	}

	if cfg.TaskEngine.Workers == 0 {
		cfg.TaskEngine.Workers = 4
	}
	if cfg.TaskEngine.QueueSize == 0 {
		cfg.TaskEngine.QueueSize = 256
	}
	if cfg.TaskEngine.HistorySize == 0 {
		cfg.TaskEngine.HistorySize = 200
	}

	if cfg.Dispatch.Concurrency == 0 {
		cfg.Dispatch.Concurrency = 8
	}
	if strings.TrimSpace(cfg.Dispatch.SendTimeout) == "" {
		cfg.Dispatch.SendTimeout = "30s"
	}

	if cfg.Notifier.RatePerSec == 0 {
		cfg.Notifier.RatePerSec = 5
	}

	if cfg.Limits.MaxPosts == 0 {
		cfg.Limits.MaxPosts = DefaultMaxPosts
	}
	if cfg.Limits.MaxChannelsPerPost == 0 {
		cfg.Limits.MaxChannelsPerPost = DefaultMaxChannelsPerPost
	}

	if strings.TrimSpace(cfg.Storage.Driver) == "" {
		cfg.Storage.Driver = "sqlite"
	}
	if cfg.Storage.Driver == "sqlite" && strings.TrimSpace(cfg.Storage.Path) == "" {
		cfg.Storage.Path = "./postbot.db"
	}
	if strings.TrimSpace(cfg.Storage.BusyTimeout) == "" {
		cfg.Storage.BusyTimeout = "5s"
	}
}
