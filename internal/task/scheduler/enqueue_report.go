package scheduler

import (
	"errors"
	"time"

	"postbot/internal/task/engine"
	logx "postbot/pkg/logx"
)

const enqueueWarnThrottle = 5 * time.Second

// reportEnqueueError logs a failed hand-off to the executor at most once per
// job every few seconds. Overlap skips are routine and stay at debug.
func (s *Service) reportEnqueueError(id JobID, err error) {
	if err == nil {
		return
	}
	if errors.Is(err, engine.ErrOverlapSkip) {
		s.log.Debug("job fire skipped; previous run still active", logx.String("job", id.String()))
		return
	}

	now := time.Now()
	s.enqMu.Lock()
	last := s.lastEnqWarn[id]
	if !last.IsZero() && now.Sub(last) < enqueueWarnThrottle {
		s.enqMu.Unlock()
		return
	}
	s.lastEnqWarn[id] = now
	s.enqMu.Unlock()

	s.log.Warn("job failed to enqueue", logx.String("job", id.String()), logx.Err(err))
}
