package posting

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"postbot/internal/eventbus"
	"postbot/internal/model"
	"postbot/internal/storage"
	"postbot/internal/task/scheduler"
	"postbot/internal/transport"
	logx "postbot/pkg/logx"
)

// Deps are the collaborators of a Service. Reporter and Bus are optional.
type Deps struct {
	Repo     Repository
	Registry Registry
	Gateway  transport.Gateway
	Reporter Reporter
	Bus      eventbus.Bus
	Log      logx.Logger
	Now      func() time.Time
}

// Service is the entry point of the posting layer: arming jobs at start-up,
// rescheduling after admin edits, and manual fires.
type Service struct {
	repo Repository
	reg  Registry
	gw   transport.Gateway
	log  logx.Logger

	cfg atomic.Pointer[Config]

	dispatch *Dispatcher
	tracker  *Tracker
}

func New(deps Deps, cfg Config) *Service {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	log := deps.Log.With(logx.String("comp", "posting"))
	s := &Service{repo: deps.Repo, reg: deps.Registry, gw: deps.Gateway, log: log}
	s.Apply(cfg)

	s.tracker = &Tracker{
		repo: deps.Repo,
		gw:   deps.Gateway,
		reg:  deps.Registry,
		rep:  deps.Reporter,
		bus:  deps.Bus,
		log:  log.With(logx.String("part", "retention")),
		cfg:  s.config,
		now:  deps.Now,

		retryDelay: 5 * time.Second,
	}
	s.dispatch = &Dispatcher{
		repo:    deps.Repo,
		gw:      deps.Gateway,
		rep:     deps.Reporter,
		bus:     deps.Bus,
		tracker: s.tracker,
		log:     log.With(logx.String("part", "dispatch")),
		cfg:     s.config,
		now:     deps.Now,
	}
	return s
}

// Apply swaps the runtime config. Jobs already armed keep their timeout.
func (s *Service) Apply(cfg Config) {
	c := cfg.withDefaults()
	s.cfg.Store(&c)
}

func (s *Service) config() Config { return *s.cfg.Load() }

// StartAll arms the send job of every active post with an enabled schedule
// and re-arms the delete jobs of pending deliveries. Calling it again only
// replaces the existing entries.
func (s *Service) StartAll(ctx context.Context) error {
	posts, err := s.repo.ListPosts(ctx, true)
	if err != nil {
		return fmt.Errorf("list active posts: %w", err)
	}
	armed := 0
	for _, p := range posts {
		ok, err := s.arm(ctx, p)
		if err != nil {
			s.log.Warn("send job not armed", logx.Int64("post_id", p.ID), logx.Err(err))
			continue
		}
		if ok {
			armed++
		}
	}

	pending, err := s.repo.ListPendingWithDeadline(ctx)
	if err != nil {
		return fmt.Errorf("list pending deliveries: %w", err)
	}
	for _, d := range pending {
		if err := s.tracker.Arm(d); err != nil {
			s.log.Warn("delete job not armed", logx.Int64("delivery_id", d.ID), logx.Err(err))
		}
	}
	s.log.Info("posting jobs armed", logx.Int("send_jobs", armed), logx.Int("delete_jobs", len(pending)))
	return nil
}

// Reschedule cancels the send job of the post and re-arms it from the stored
// schedule. It is a no-op for missing or inactive posts and for disabled
// schedules, apart from the cancellation.
func (s *Service) Reschedule(ctx context.Context, postID int64) error {
	s.RemoveJobs(postID)
	p, err := s.repo.GetPost(ctx, postID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("load post %d: %w", postID, err)
	}
	if !p.Active {
		return nil
	}
	_, err = s.arm(ctx, p)
	return err
}

func (s *Service) arm(ctx context.Context, p model.Post) (bool, error) {
	sched, err := s.repo.GetSchedule(ctx, p.ID)
	if errors.Is(err, storage.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("load schedule %d: %w", p.ID, err)
	}
	if !sched.Enabled || sched.Days.Empty() {
		return false, nil
	}
	postID := p.ID
	w := scheduler.NewWeekly(sched.Hour, sched.Minute, sched.Days, nil)
	err = s.reg.ScheduleRecurring(scheduler.SendJob(postID), w, s.config().JobTimeout, func(ctx context.Context) error {
		return s.sendJob(ctx, postID)
	})
	if err != nil {
		return false, fmt.Errorf("arm post %d: %w", postID, err)
	}
	return true, nil
}

func (s *Service) sendJob(ctx context.Context, postID int64) error {
	_, err := s.dispatch.Fire(ctx, postID, false)
	if errors.Is(err, ErrAborted) {
		return nil
	}
	return err
}

// RemoveJobs cancels the send job of the post. Delete jobs stay armed so
// messages already published still expire.
func (s *Service) RemoveJobs(postID int64) bool {
	return s.reg.Cancel(scheduler.SendJob(postID))
}

// TriggerManual fires the post now, even when its schedule is disabled.
func (s *Service) TriggerManual(ctx context.Context, postID int64) (SendResult, error) {
	return s.dispatch.Fire(ctx, postID, true)
}

// DeleteAllNow removes every message of the post still awaiting retention.
func (s *Service) DeleteAllNow(ctx context.Context, postID int64) (ManualDeletion, error) {
	return s.tracker.DeleteAllNow(ctx, postID)
}

// Jobs is the registry view for diagnostics.
func (s *Service) Jobs() scheduler.Snapshot { return s.reg.Snapshot() }
