package app

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"postbot/internal/admin"
	"postbot/internal/config"
	"postbot/internal/eventbus"
	"postbot/internal/notifier"
	"postbot/internal/posting"
	rtsup "postbot/internal/runtime/supervisor"
	"postbot/internal/storage"
	"postbot/internal/task/engine"
	"postbot/internal/task/scheduler"
	kit "postbot/internal/transport"
	telegram "postbot/internal/transport/telegram/adapter"
	"postbot/internal/transport/telegram/router"
	logx "postbot/pkg/logx"
)

var errAdapterNotReady = errors.New("telegram adapter not ready")

// App wires every component together and owns their lifecycle.
type App struct {
	cfgm *config.ConfigManager
	sup  *rtsup.Supervisor

	log  logx.Logger
	logs *logx.Service
	bus  eventbus.Bus

	store   *storage.Store
	adapter *telegram.Adapter
	engine  *engine.Service
	sched   *scheduler.Service
	notif   *notifier.Service
	posts   *posting.Service
	cmdm    *router.CommandManager

	updates chan kit.Update
}

// New loads the config and builds the component graph. Nothing runs until
// Start is called, but storage is opened and migrated here.
func New(ctx context.Context, cfgPath string) (*App, error) {
	config.LoadDotEnv()
	cfgm := config.NewConfigManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	adCfg, err := mapAdapterConfig(cfg)
	if err != nil {
		return nil, err
	}
	// Chat logging goes through the adapter, which itself needs the logger.
	var adRef atomic.Pointer[telegram.Adapter]
	logSvc, log := logx.New(mapLogConfig(cfg), func(ctx context.Context, chatID int64, text string) error {
		ad := adRef.Load()
		if ad == nil {
			return errAdapterNotReady
		}
		_, err := ad.SendText(ctx, kit.ChatTarget{ChatID: chatID}, text, nil)
		return err
	})
	ad, err := telegram.New(adCfg, log.With(logx.String("comp", "telegram")))
	if err != nil {
		_ = logSvc.Close()
		return nil, err
	}
	adRef.Store(ad)

	bus := eventbus.New()

	sc, err := mapStorageConfig(cfg)
	if err != nil {
		_ = logSvc.Close()
		return nil, err
	}
	store, err := storage.Open(ctx, sc, log.With(logx.String("comp", "storage")))
	if err != nil {
		_ = logSvc.Close()
		return nil, err
	}
	log.Info("storage ready", logx.String("driver", sc.Driver))

	engCfg, err := mapTaskEngineConfig(cfg)
	if err != nil {
		_ = store.Close()
		_ = logSvc.Close()
		return nil, err
	}
	engineSvc := engine.New(engCfg, log.With(logx.String("comp", "taskengine")), bus)
	schedSvc := scheduler.New(scheduler.Config{Timezone: cfg.Scheduler.Timezone}, engineSvc,
		log.With(logx.String("comp", "scheduler")))

	notifSvc := notifier.New(mapNotifierConfig(cfg), ad, log, bus, schedSvc.Location)

	pcfg, err := mapPostingConfig(cfg)
	if err != nil {
		_ = store.Close()
		_ = logSvc.Close()
		return nil, err
	}
	postSvc := posting.New(posting.Deps{
		Repo:     store,
		Registry: schedSvc,
		Gateway:  ad,
		Reporter: notifSvc,
		Bus:      bus,
		Log:      log,
	}, pcfg)

	cmdm := router.NewCommandManager(log.With(logx.String("comp", "commands")), ad, cfg.Telegram.AdminIDs)
	h := admin.New(postSvc, log, schedSvc.Location)
	cmdm.SetRegistry(h.Commands(), h.Callbacks())
	cmdm.SetFallback(h.Capture)

	return &App{
		cfgm:    cfgm,
		log:     log.With(logx.String("comp", "app")),
		logs:    logSvc,
		bus:     bus,
		store:   store,
		adapter: ad,
		engine:  engineSvc,
		sched:   schedSvc,
		notif:   notifSvc,
		posts:   postSvc,
		cmdm:    cmdm,
		updates: make(chan kit.Update, 256),
	}, nil
}

// Done is closed when the app supervisor context is canceled (fatal error or Stop()).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor (if any).
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = rtsup.NewSupervisor(ctx, rtsup.WithLogger(a.log), rtsup.WithCancelOnError(true))

	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error {
		_, err := mapAdapterConfig(cfg)
		if err == nil {
			_, err = mapTaskEngineConfig(cfg)
		}
		if err == nil {
			_, err = mapPostingConfig(cfg)
		}
		if err == nil {
			_, err = mapStorageConfig(cfg)
		}
		return err
	})

	a.engine.Start(a.sup.Context())
	a.sched.Start(a.sup.Context())
	if err := a.posts.StartAll(a.sup.Context()); err != nil {
		return err
	}

	if err := a.adapter.Start(a.sup.Context(), a.updates); err != nil {
		return err
	}
	a.sup.Go("commands.dispatch", func(c context.Context) error {
		return a.cmdm.DispatchLoop(c, a.updates)
	})

	events, unsub := a.bus.Subscribe(128)
	a.sup.Go0("eventbus.log", func(c context.Context) {
		defer unsub()
		for {
			select {
			case <-c.Done():
				return
			case e, ok := <-events:
				if !ok {
					return
				}
				a.log.Debug("event", logx.String("type", e.Type), logx.Time("time", e.Time))
			}
		}
	})

	a.sup.Go0("config.reload", func(c context.Context) {
		last := a.cfgm.Get()
		for {
			select {
			case <-c.Done():
				return
			case next := <-a.cfgm.Updates():
				a.applyConfig(c, last, next)
				last = next
			}
		}
	})

	a.sup.Go("config.watch", func(c context.Context) error {
		return a.cfgm.Watch(c)
	})

	if ok, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		a.log.Warn("systemd notify failed", logx.Err(err))
	} else if ok {
		a.log.Debug("systemd notified ready")
	}
	a.log.Info("app started", logx.String("timezone", a.sched.Location().String()))
	return nil
}

// applyConfig pushes a validated config into the running components.
func (a *App) applyConfig(ctx context.Context, oldCfg, newCfg *config.Config) {
	sections, attrs := config.SummarizeConfigChange(oldCfg, newCfg)
	if len(sections) == 0 {
		a.log.Info("config reloaded (no changes)")
		return
	}
	_, _ = daemon.SdNotify(false, daemon.SdNotifyReloading)
	defer func() { _, _ = daemon.SdNotify(false, daemon.SdNotifyReady) }()

	a.logs.Apply(mapLogConfig(newCfg))
	a.cmdm.SetOwners(newCfg.Telegram.AdminIDs)
	a.notif.Apply(mapNotifierConfig(newCfg))
	a.adapter.SetRate(newCfg.Telegram.RatePerSec)

	if engCfg, err := mapTaskEngineConfig(newCfg); err != nil {
		a.log.Warn("invalid task_engine config; keeping previous", logx.Err(err))
	} else {
		a.engine.Apply(ctx, engCfg)
	}
	if pcfg, err := mapPostingConfig(newCfg); err != nil {
		a.log.Warn("invalid posting config; keeping previous", logx.Err(err))
	} else {
		a.posts.Apply(pcfg)
	}

	if oldCfg.Scheduler.Timezone != newCfg.Scheduler.Timezone {
		// Weekly schedules follow the registry's location, so no re-arm is needed.
		a.sched.Apply(scheduler.Config{Timezone: newCfg.Scheduler.Timezone})
	}

	restart := append(config.RestartRequired(sections), restartOnly(oldCfg, newCfg)...)
	if len(restart) > 0 {
		a.log.Warn("some changes need a restart to take effect", logx.String("fields", strings.Join(restart, ",")))
	}
	a.bus.Publish(eventbus.Event{Type: eventbus.ConfigReloaded, Data: sections})
	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	a.log.Info("config reloaded", fields...)
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return a.close()
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))
	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)

	a.sup.Cancel()

	step := func(name string, limit time.Duration, fn func(context.Context) error) {
		runStep(ctx, a.log, name, limit, fn)
	}
	// Scheduler first so no job fires into a stopping engine.
	step("scheduler", 2*time.Second, func(c context.Context) error { a.sched.Stop(c); return nil })
	step("taskengine", 5*time.Second, func(c context.Context) error { a.engine.Stop(c); return nil })
	step("adapter", 2*time.Second, func(c context.Context) error { return a.adapter.Stop(c) })
	step("supervisor", 2*time.Second, func(c context.Context) error { return a.sup.Wait(c) })

	a.log.Info("stopped", logx.Uint64("bus_dropped", eventbus.Dropped(a.bus)))
	return a.close()
}

func (a *App) close() error {
	var errs []error
	if a.store != nil {
		errs = append(errs, a.store.Close())
	}
	if a.logs != nil {
		errs = append(errs, a.logs.Close())
	}
	return errors.Join(errs...)
}
