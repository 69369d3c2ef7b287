package notifier

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"postbot/internal/eventbus"
	"postbot/internal/posting"
	kit "postbot/internal/transport"
	logx "postbot/pkg/logx"
	"postbot/pkg/tgui"
)

var ErrNoAdmins = errors.New("notifier: no admin chats configured")

const sendTimeout = 10 * time.Second

// Service implements posting.Reporter on top of a messaging gateway.
//
// It is safe for concurrent use.
type Service struct {
	mu sync.Mutex

	log logx.Logger
	gw  kit.Gateway
	bus eventbus.Bus
	loc func() *time.Location
	now func() time.Time

	cfg     Config
	limiter *rate.Limiter
}

var _ posting.Reporter = (*Service)(nil)

// New builds the reporter. loc supplies the zone report times are shown in
// and may be nil for Local.
func New(cfg Config, gw kit.Gateway, log logx.Logger, bus eventbus.Bus, loc func() *time.Location) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	if loc == nil {
		loc = func() *time.Location { return time.Local }
	}
	s := &Service{
		gw:  gw,
		log: log.With(logx.String("comp", "notifier")),
		bus: bus,
		loc: loc,
		now: time.Now,
	}
	s.applyLocked(cfg)
	return s
}

func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	s.applyLocked(cfg)
	s.mu.Unlock()
}

func (s *Service) applyLocked(cfg Config) {
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = 5
	}
	cfg.Admins = slices.Compact(slices.Sorted(slices.Values(cfg.Admins)))
	s.cfg = cfg
	// burst = rate per sec, so a single report to a few admins never waits
	if s.limiter == nil {
		s.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec)
		return
	}
	s.limiter.SetLimit(rate.Limit(cfg.RatePerSec))
	s.limiter.SetBurst(cfg.RatePerSec)
}

func (s *Service) snapshot() (Config, *rate.Limiter) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg, s.limiter
}

// broadcast sends msg to every admin and returns the refs of the copies that
// went out. A failure for one admin does not stop the others.
func (s *Service) broadcast(ctx context.Context, kind string, postID int64, msg tgui.Message) ([]kit.MessageRef, error) {
	cfg, lim := s.snapshot()
	if len(cfg.Admins) == 0 {
		return nil, ErrNoAdmins
	}

	var (
		refs []kit.MessageRef
		errs []error
	)
	for _, chatID := range cfg.Admins {
		if err := lim.Wait(ctx); err != nil {
			errs = append(errs, err)
			break
		}
		cctx, cancel := context.WithTimeout(ctx, sendTimeout)
		ref, err := msg.Send(cctx, s.gw, kit.ChatTarget{ChatID: chatID})
		cancel()
		s.publish(kind, postID, chatID, err)
		if err != nil {
			s.log.Warn("report not delivered", logx.String("kind", kind), logx.Int64("chat_id", chatID), logx.Err(err))
			errs = append(errs, fmt.Errorf("admin %d: %w", chatID, err))
			continue
		}
		refs = append(refs, ref)
	}
	return refs, errors.Join(errs...)
}

// cleanup removes earlier report messages. Failures are logged only: the
// messages may already be gone or too old to delete.
func (s *Service) cleanup(ctx context.Context, refs []kit.MessageRef) {
	_, lim := s.snapshot()
	for _, ref := range refs {
		if err := lim.Wait(ctx); err != nil {
			return
		}
		cctx, cancel := context.WithTimeout(ctx, sendTimeout)
		err := s.gw.Delete(cctx, ref)
		cancel()
		if err != nil {
			s.log.Debug("old report not deleted", logx.Int64("chat_id", ref.ChatID), logx.Int("message_id", ref.MessageID), logx.Err(err))
		}
	}
}

func (s *Service) publish(kind string, postID, chatID int64, err error) {
	if s.bus == nil {
		return
	}
	ev := NotificationEvent{Kind: kind, PostID: postID, ChatID: chatID, At: s.now()}
	typ := eventbus.ReportSent
	if err != nil {
		typ = eventbus.ReportFailed
		ev.Error = err.Error()
	}
	s.bus.Publish(eventbus.Event{Type: typ, Time: ev.At, Data: ev})
}
