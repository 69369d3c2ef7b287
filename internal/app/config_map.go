package app

import (
	"fmt"
	"strings"
	"time"

	"postbot/internal/config"
	"postbot/internal/notifier"
	"postbot/internal/posting"
	"postbot/internal/storage"
	"postbot/internal/task/engine"
	telegram "postbot/internal/transport/telegram/adapter"
	logx "postbot/pkg/logx"
)

func mapAdapterConfig(cfg *config.Config) (telegram.Config, error) {
	poll, err := config.ParseDurationOrDefault("telegram.poll_timeout", cfg.Telegram.PollTimeout, 10*time.Second)
	if err != nil {
		return telegram.Config{}, err
	}
	open, err := config.ParseDurationOrDefault("telegram.breaker.open_timeout", cfg.Telegram.Breaker.OpenTimeout, 30*time.Second)
	if err != nil {
		return telegram.Config{}, err
	}
	return telegram.Config{
		Token:       cfg.Telegram.Token,
		PollTimeout: poll,
		RatePerSec:  cfg.Telegram.RatePerSec,
		Breaker: telegram.BreakerConfig{
			Failures:    cfg.Telegram.Breaker.Failures,
			OpenTimeout: open,
			HalfOpenMax: cfg.Telegram.Breaker.HalfOpenMax,
		},
	}, nil
}

// mapLogConfig routes chat logging to telegram.log_chat, falling back to the
// first admin so enabling logging.chat alone is enough.
func mapLogConfig(cfg *config.Config) logx.Config {
	chatID := cfg.Telegram.LogChat
	if chatID == 0 && len(cfg.Telegram.AdminIDs) > 0 {
		chatID = cfg.Telegram.AdminIDs[0]
	}
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
		Chat: logx.ChatConfig{
			Enabled:    cfg.Logging.Chat.Enabled,
			ChatID:     chatID,
			MinLevel:   cfg.Logging.Chat.MinLevel,
			RatePerSec: cfg.Logging.Chat.RatePerSec,
		},
	}
}

func mapStorageConfig(cfg *config.Config) (storage.Config, error) {
	sc := cfg.Storage
	driver := strings.ToLower(strings.TrimSpace(sc.Driver))
	switch driver {
	case "", "sqlite", "sqlite3":
		path := strings.TrimSpace(sc.Path)
		if path == "" {
			path = "./postbot.db"
		}
		busy, err := config.ParseDurationOrDefault("storage.busy_timeout", sc.BusyTimeout, 5*time.Second)
		if err != nil {
			return storage.Config{}, err
		}
		return storage.Config{Driver: "sqlite", Path: path, BusyTimeout: busy}, nil
	case "postgres", "postgresql", "pgx":
		dsn := strings.TrimSpace(sc.DSN)
		if dsn == "" {
			return storage.Config{}, fmt.Errorf("storage.dsn is required when storage.driver=%s", driver)
		}
		return storage.Config{Driver: "postgres", DSN: dsn}, nil
	default:
		return storage.Config{}, fmt.Errorf("unknown storage.driver: %s", sc.Driver)
	}
}

func mapTaskEngineConfig(cfg *config.Config) (engine.Config, error) {
	te := cfg.TaskEngine
	defTimeout, err := config.ParseDurationField("task_engine.default_timeout", te.DefaultTimeout)
	if err != nil {
		return engine.Config{}, err
	}
	maxDelay, err := config.ParseDurationField("task_engine.max_queue_delay", te.MaxQueueDelay)
	if err != nil {
		return engine.Config{}, err
	}
	workers := te.Workers
	if workers <= 0 {
		workers = 4
	}
	queue := te.QueueSize
	if queue <= 0 {
		queue = 256
	}
	history := te.HistorySize
	if history <= 0 {
		history = 200
	}
	// Scheduled sends and deletes have nowhere else to run.
	return engine.Config{
		Enabled:        true,
		Workers:        workers,
		QueueSize:      queue,
		DefaultTimeout: defTimeout,
		MaxQueueDelay:  maxDelay,
		HistorySize:    history,
	}, nil
}

func mapPostingConfig(cfg *config.Config) (posting.Config, error) {
	send, err := config.ParseDurationOrDefault("dispatch.send_timeout", cfg.Dispatch.SendTimeout, 30*time.Second)
	if err != nil {
		return posting.Config{}, err
	}
	job, err := config.ParseDurationOrDefault("scheduler.job_timeout", cfg.Scheduler.JobTimeout, 2*time.Minute)
	if err != nil {
		return posting.Config{}, err
	}
	return posting.Config{
		Concurrency:        cfg.Dispatch.Concurrency,
		SendTimeout:        send,
		JobTimeout:         job,
		MaxPosts:           cfg.Limits.MaxPosts,
		MaxChannelsPerPost: cfg.Limits.MaxChannelsPerPost,
	}, nil
}

func mapNotifierConfig(cfg *config.Config) notifier.Config {
	return notifier.Config{
		Admins:     append([]int64(nil), cfg.Telegram.AdminIDs...),
		RatePerSec: cfg.Notifier.RatePerSec,
	}
}

// restartOnly reports telegram fields that are fixed once polling started.
func restartOnly(oldCfg, newCfg *config.Config) []string {
	var out []string
	ot, nt := oldCfg.Telegram, newCfg.Telegram
	if ot.Token != nt.Token {
		out = append(out, "telegram.token")
	}
	if strings.TrimSpace(ot.PollTimeout) != strings.TrimSpace(nt.PollTimeout) {
		out = append(out, "telegram.poll_timeout")
	}
	if ot.Breaker != nt.Breaker {
		out = append(out, "telegram.breaker")
	}
	return out
}
