package config

import (
	"fmt"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

const envPrefix = "POSTBOT"

// envOverrides are read from POSTBOT_* variables. The short names
// (BOT_TOKEN, ADMIN_ID, TIMEZONE) are accepted without the prefix too.
// Nil pointers mean "not set".
type envOverrides struct {
	Token    *string `envconfig:"BOT_TOKEN"`
	AdminIDs []int64 `envconfig:"ADMIN_ID"`
	LogChat  *int64  `envconfig:"LOG_CHAT"`
	Timezone *string `envconfig:"TIMEZONE"`
	LogLevel *string `envconfig:"LOG_LEVEL"`

	StorageDriver *string `envconfig:"STORAGE_DRIVER"`
	StoragePath   *string `envconfig:"STORAGE_PATH"`
	StorageDSN    *string `envconfig:"STORAGE_DSN"`
}

// LoadDotEnv loads .env from the working directory if present.
// Existing environment variables win.
func LoadDotEnv() {
	_ = godotenv.Load()
}

// ApplyEnv overlays environment variables on cfg.
func ApplyEnv(cfg *Config) error {
	var env envOverrides
	if err := envconfig.Process(envPrefix, &env); err != nil {
		return fmt.Errorf("env overrides: %w", err)
	}
	if env.Token != nil {
		cfg.Telegram.Token = *env.Token
	}
	if len(env.AdminIDs) > 0 {
		cfg.Telegram.AdminIDs = append([]int64(nil), env.AdminIDs...)
	}
	if env.LogChat != nil {
		cfg.Telegram.LogChat = *env.LogChat
	}
	if env.Timezone != nil {
		cfg.Scheduler.Timezone = *env.Timezone
	}
	if env.LogLevel != nil {
		cfg.Logging.Level = *env.LogLevel
	}
	if env.StorageDriver != nil {
		cfg.Storage.Driver = *env.StorageDriver
	}
	if env.StoragePath != nil {
		cfg.Storage.Path = *env.StoragePath
	}
	if env.StorageDSN != nil {
		cfg.Storage.DSN = *env.StorageDSN
	}
	return nil
}
