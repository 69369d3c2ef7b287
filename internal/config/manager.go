package config

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"io"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	logx "postbot/pkg/logx"
)

const (
	reloadDebounce  = 250 * time.Millisecond
	validateTimeout = 5 * time.Second
	rewatchMin      = 250 * time.Millisecond
	rewatchMax      = 5 * time.Second
)

// ConfigManager owns the config file. Load commits the first config; Watch
// commits every later valid edit and hands the newest one to Updates.
type ConfigManager struct {
	path string
	log  logx.Logger

	mu        sync.RWMutex
	cfg       *Config
	committed uint64

	validator func(ctx context.Context, cfg *Config) error
	// updates holds at most the newest unconsumed config
	updates chan *Config
}

func NewConfigManager(path string) *ConfigManager {
	return &ConfigManager{path: path, updates: make(chan *Config, 1)}
}

func (m *ConfigManager) SetLogger(log logx.Logger) { m.log = log }

// SetValidator adds a check Watch runs after Validate and before commit.
func (m *ConfigManager) SetValidator(fn func(ctx context.Context, cfg *Config) error) {
	m.validator = fn
}

// Updates yields committed reloads. A slow reader only ever sees the newest.
func (m *ConfigManager) Updates() <-chan *Config { return m.updates }

func (m *ConfigManager) Get() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cfg
}

// Parse reads the file, overlays env and fills defaults. It does not validate.
func (m *ConfigManager) Parse() (*Config, error) {
	b, err := os.ReadFile(m.path)
	if err != nil {
		return nil, err
	}
	cfg, err := decode(m.path, b)
	if err != nil {
		return nil, err
	}
	if err := ApplyEnv(cfg); err != nil {
		return nil, err
	}
	ApplyDefaults(cfg)
	return cfg, nil
}

// decode accepts YAML or JSON by extension and rejects unknown keys and
// trailing documents.
func decode(path string, b []byte) (*Config, error) {
	format := "json"
	if isYAML(path) {
		jb, err := yamlToJSON(b)
		if err != nil {
			return nil, err
		}
		b, format = jb, "yaml"
	}

	var cfg Config
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("%s config: %w", format, err)
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		if err == nil {
			return nil, fmt.Errorf("%s config: trailing data", format)
		}
		return nil, err
	}
	return &cfg, nil
}

// Load parses, validates and commits the config.
func (m *ConfigManager) Load() (*Config, error) {
	cfg, err := m.Parse()
	if err != nil {
		return nil, err
	}
	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	m.commit(cfg, fingerprint(cfg))
	return cfg, nil
}

func (m *ConfigManager) commit(cfg *Config, fp uint64) {
	m.mu.Lock()
	m.cfg, m.committed = cfg, fp
	m.mu.Unlock()
}

// fingerprint identifies a config by content, so the several write events
// of one editor save publish once.
func fingerprint(cfg *Config) uint64 {
	b, err := json.Marshal(cfg)
	if err != nil {
		return 0
	}
	h := fnv.New64a()
	_, _ = h.Write(b)
	return h.Sum64()
}

// publish replaces any unconsumed config with cfg. Watch is the only writer.
func (m *ConfigManager) publish(cfg *Config) {
	for {
		select {
		case m.updates <- cfg:
			return
		default:
		}
		select {
		case stale := <-m.updates:
			m.log.Debug("config update superseded", logx.Bool("had_pending", stale != nil))
		default:
		}
	}
}

// reload runs once per debounced burst of file events.
func (m *ConfigManager) reload(ctx context.Context) {
	log := m.log.With(logx.String("path", m.path))
	cfg, err := m.Parse()
	if err != nil {
		log.Warn("config parse failed", logx.Err(err))
		return
	}
	fp := fingerprint(cfg)
	m.mu.RLock()
	same := fp != 0 && fp == m.committed
	m.mu.RUnlock()
	if same {
		log.Debug("config unchanged")
		return
	}
	if err := Validate(cfg); err != nil {
		log.Warn("config rejected", logx.Err(err))
		return
	}
	if m.validator != nil {
		vctx, cancel := context.WithTimeout(ctx, validateTimeout)
		err := m.validator(vctx, cfg)
		cancel()
		if err != nil {
			log.Warn("config rejected by hook", logx.Err(err))
			return
		}
	}
	m.commit(cfg, fp)
	m.publish(cfg)
	log.Info("config reloaded", logx.String("fingerprint", fmt.Sprintf("%x", fp)))
}

// Watch reloads on edits of the config file until ctx is done. The
// directory is watched so atomic-rename saves are seen. A broken watcher
// is rebuilt after a jittered, doubling pause.
func (m *ConfigManager) Watch(ctx context.Context) error {
	pause := rewatchMin
	for ctx.Err() == nil {
		healthy, reason := m.watch(ctx)
		if ctx.Err() != nil {
			break
		}
		if healthy {
			pause = rewatchMin
		}
		wait := pause + rand.N(pause/2+1)
		m.log.Warn("config watcher restarting", logx.String("reason", reason), logx.Duration("backoff", wait))
		pause = min(pause*2, rewatchMax)
		select {
		case <-ctx.Done():
		case <-time.After(wait):
		}
	}
	return nil
}

// watch runs one fsnotify watcher. healthy reports whether it got as far as
// watching the directory.
func (m *ConfigManager) watch(ctx context.Context) (healthy bool, reason string) {
	dir, file := filepath.Dir(m.path), filepath.Base(m.path)
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return false, "init: " + err.Error()
	}
	defer w.Close()
	if err := w.Add(dir); err != nil {
		return false, "add: " + err.Error()
	}
	m.log.Debug("config watcher started", logx.String("dir", dir), logx.String("file", file))

	var settle <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return true, "stopped"
		case <-settle:
			settle = nil
			m.reload(ctx)
		case ev, ok := <-w.Events:
			if !ok {
				return true, "events closed"
			}
			if strings.EqualFold(filepath.Base(ev.Name), file) && ev.Op != 0 {
				settle = time.After(reloadDebounce)
			}
		case err, ok := <-w.Errors:
			if !ok {
				return true, "errors closed"
			}
			if err == nil {
				continue
			}
			if errors.Is(err, fsnotify.ErrEventOverflow) {
				m.log.Warn("config watch overflow; forcing reload", logx.Err(err))
				settle = time.After(reloadDebounce)
				continue
			}
			m.log.Warn("config watch error", logx.Err(err))
			if strings.Contains(strings.ToLower(err.Error()), "closed") {
				return true, "watcher closed"
			}
		}
	}
}
