package config

// Config is the on-disk configuration (JSON or YAML).
//
// All durations are Go duration strings (e.g. "500ms", "10s", "1m").
// Omitted sections fall back to the defaults applied by ApplyDefaults.
type Config struct {
	Telegram   TelegramConfig   `json:"telegram"`
	Logging    LoggingConfig    `json:"logging"`
	Scheduler  SchedulerConfig  `json:"scheduler"`
	TaskEngine TaskEngineConfig `json:"task_engine"`
	Dispatch   DispatchConfig   `json:"dispatch"`
	Notifier   NotifierConfig   `json:"notifier"`
	Limits     LimitsConfig     `json:"limits"`
	Storage    StorageConfig    `json:"storage"`
}

type TelegramConfig struct {
	Token    string  `json:"token" validate:"required"`
	AdminIDs []int64 `json:"admin_ids" validate:"required,min=1,dive,gt=0"`
	// LogChat receives WARN+ log lines when logging.chat is enabled.
	LogChat int64 `json:"log_chat,omitempty"`
	// PollTimeout is the long-poll timeout (default "10s").
	PollTimeout string `json:"poll_timeout,omitempty"`
	// RatePerSec caps outgoing API calls across all chats.
	RatePerSec int           `json:"rate_per_sec,omitempty" validate:"gte=0"`
	Breaker    BreakerConfig `json:"breaker"`
}

// BreakerConfig tunes the circuit breaker around Telegram API calls.
//
// Defaults:
//   - failures: 5 consecutive transport failures trip the breaker
//   - open_timeout: "30s"
//   - half_open_max: 1
type BreakerConfig struct {
	Failures    int    `json:"failures,omitempty" validate:"gte=0"`
	OpenTimeout string `json:"open_timeout,omitempty"`
	HalfOpenMax int    `json:"half_open_max,omitempty" validate:"gte=0"`
}

type LoggingConfig struct {
	Level   string      `json:"level" validate:"omitempty,oneof=trace debug info warn warning error TRACE DEBUG INFO WARN WARNING ERROR"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
	Chat    LoggingChat `json:"chat"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

type LoggingChat struct {
	Enabled    bool   `json:"enabled"`
	MinLevel   string `json:"min_level"`
	RatePerSec int    `json:"rate_per_sec" validate:"gte=0"`
}

type SchedulerConfig struct {
	// Timezone is an IANA name. Schedules fire at wall-clock times in this zone.
	Timezone string `json:"timezone,omitempty"`
	// JobTimeout bounds a single send or delete job (default "2m").
	JobTimeout string `json:"job_timeout,omitempty"`
}

// TaskEngineConfig controls the worker pool that runs fired jobs.
//
// Defaults (when fields are omitted/zero):
//   - workers: 4
//   - queue_size: 256
//   - default_timeout: "0s" (disabled)
//   - max_queue_delay: "0s" (disabled)
//   - history_size: 200
type TaskEngineConfig struct {
	Workers        int    `json:"workers,omitempty" validate:"gte=0,lte=64"`
	QueueSize      int    `json:"queue_size,omitempty" validate:"gte=0"`
	DefaultTimeout string `json:"default_timeout,omitempty"`
	MaxQueueDelay  string `json:"max_queue_delay,omitempty"`
	HistorySize    int    `json:"history_size,omitempty" validate:"gte=0"`
}

// DispatchConfig controls fan-out of one fire to its channels.
type DispatchConfig struct {
	Concurrency int    `json:"concurrency,omitempty" validate:"gte=0,lte=90"`
	SendTimeout string `json:"send_timeout,omitempty"`
}

// NotifierConfig controls admin report delivery.
type NotifierConfig struct {
	RatePerSec int `json:"rate_per_sec,omitempty" validate:"gte=0"`
}

type LimitsConfig struct {
	MaxPosts           int `json:"max_posts,omitempty" validate:"gte=0"`
	MaxChannelsPerPost int `json:"max_channels_per_post,omitempty" validate:"gte=0"`
}

// StorageConfig selects the repository backend.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./postbot.db" }
//	"storage": { "driver": "postgres", "dsn": "postgres://bot@localhost/postbot" }
type StorageConfig struct {
	Driver      string `json:"driver" validate:"omitempty,oneof=sqlite postgres"`
	Path        string `json:"path,omitempty"`
	DSN         string `json:"dsn,omitempty" validate:"required_if=Driver postgres"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // sqlite only
}
