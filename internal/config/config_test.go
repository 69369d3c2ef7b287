package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, []byte(body), 0o600))
	return p
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{"BOT_TOKEN", "ADMIN_ID", "TIMEZONE", "POSTBOT_BOT_TOKEN", "POSTBOT_ADMIN_ID", "POSTBOT_TIMEZONE", "POSTBOT_LOG_LEVEL", "POSTBOT_STORAGE_DRIVER", "POSTBOT_STORAGE_DSN", "POSTBOT_STORAGE_PATH", "POSTBOT_LOG_CHAT"} {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}
}

func TestLoadYAMLAppliesDefaults(t *testing.T) {
	clearEnv(t)
	p := writeFile(t, "config.yaml", `
telegram:
  token: "abc"
  admin_ids: [42]
scheduler:
  timezone: Europe/Berlin
`)
	cfg, err := NewConfigManager(p).Load()
	require.NoError(t, err)

	assert.Equal(t, "Europe/Berlin", cfg.Scheduler.Timezone)
	assert.Equal(t, DefaultMaxPosts, cfg.Limits.MaxPosts)
	assert.Equal(t, DefaultMaxChannelsPerPost, cfg.Limits.MaxChannelsPerPost)
	assert.Equal(t, "sqlite", cfg.Storage.Driver)
	assert.Equal(t, "./postbot.db", cfg.Storage.Path)
	assert.Equal(t, 4, cfg.TaskEngine.Workers)
}

func TestParseRejectsUnknownAndTrailing(t *testing.T) {
	clearEnv(t)
	tests := []struct {
		name string
		file string
		body string
	}{
		{"unknown field", "c.json", `{"telegram":{"token":"x","admin_ids":[1]},"plugins":{}}`},
		{"trailing data", "c.json", `{"telegram":{"token":"x","admin_ids":[1]}} {}`},
		{"unknown yaml field", "c.yml", "telegram:\n  token: x\n  owner_user_ids: [1]\n"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewConfigManager(writeFile(t, tt.file, tt.body)).Parse()
			if err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}

func TestEnvOverridesFile(t *testing.T) {
	clearEnv(t)
	t.Setenv("BOT_TOKEN", "from-env")
	t.Setenv("ADMIN_ID", "7,8")
	t.Setenv("POSTBOT_TIMEZONE", "Asia/Jakarta")

	p := writeFile(t, "config.json", `{"telegram":{"token":"from-file","admin_ids":[1]}}`)
	cfg, err := NewConfigManager(p).Load()
	require.NoError(t, err)

	assert.Equal(t, "from-env", cfg.Telegram.Token)
	assert.Equal(t, []int64{7, 8}, cfg.Telegram.AdminIDs)
	assert.Equal(t, "Asia/Jakarta", cfg.Scheduler.Timezone)
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		c := &Config{Telegram: TelegramConfig{Token: "t", AdminIDs: []int64{1}}}
		ApplyDefaults(c)
		return c
	}
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"ok", func(*Config) {}, ""},
		{"missing token", func(c *Config) { c.Telegram.Token = "" }, "Telegram.Token"},
		{"no admins", func(c *Config) { c.Telegram.AdminIDs = nil }, "Telegram.AdminIDs"},
		{"bad timezone", func(c *Config) { c.Scheduler.Timezone = "Mars/Olympus" }, "scheduler.timezone"},
		{"bad duration", func(c *Config) { c.Dispatch.SendTimeout = "soon" }, "dispatch.send_timeout"},
		{"postgres needs dsn", func(c *Config) { c.Storage.Driver = "postgres" }, "Storage.DSN"},
		{"bad driver", func(c *Config) { c.Storage.Driver = "mongo" }, "Storage.Driver"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			c := base()
			tt.mutate(c)
			err := Validate(c)
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("err = %v, want mention of %q", err, tt.wantErr)
			}
		})
	}
}

func TestSummarizeConfigChange(t *testing.T) {
	t.Parallel()
	a := &Config{Telegram: TelegramConfig{Token: "t", AdminIDs: []int64{1}}}
	ApplyDefaults(a)
	b := *a
	b.Telegram.AdminIDs = []int64{1, 2}
	b.Scheduler.Timezone = "Europe/Paris"
	b.Storage.Path = "/var/lib/postbot.db"

	changed, _ := SummarizeConfigChange(a, &b)
	assert.Equal(t, []string{"scheduler", "storage", "telegram"}, changed)
	assert.Equal(t, []string{"storage"}, RestartRequired(changed))
}

func TestPublishKeepsNewest(t *testing.T) {
	t.Parallel()
	m := NewConfigManager("unused")
	first, second, third := &Config{}, &Config{}, &Config{}
	m.publish(first)
	m.publish(second)
	m.publish(third)
	select {
	case got := <-m.Updates():
		if got != third {
			t.Fatalf("expected newest config")
		}
	default:
		t.Fatalf("nothing published")
	}
	select {
	case <-m.Updates():
		t.Fatalf("superseded config delivered")
	default:
	}
}

func TestWatchPublishesValidChange(t *testing.T) {
	clearEnv(t)
	p := writeFile(t, "config.json", `{"telegram":{"token":"t","admin_ids":[1]}}`)
	m := NewConfigManager(p)
	_, err := m.Load()
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = m.Watch(ctx) }()

	// give the watcher time to register
	time.Sleep(200 * time.Millisecond)
	require.NoError(t, os.WriteFile(p, []byte(`{"telegram":{"token":"t","admin_ids":[1,2]}}`), 0o600))

	select {
	case cfg := <-m.Updates():
		assert.Equal(t, []int64{1, 2}, cfg.Telegram.AdminIDs)
		assert.Same(t, cfg, m.Get())
	case <-time.After(5 * time.Second):
		t.Fatal("no config published")
	}
}
