package scheduler

import (
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"postbot/internal/task/engine"
	logx "postbot/pkg/logx"
)

var (
	ErrInvalidJob = errors.New("invalid job")
)

// ScheduleRecurring registers fn on sched under id, replacing any recurring
// or one-shot entry with the same id. Fires of one id never overlap.
func (s *Service) ScheduleRecurring(id JobID, sched cron.Schedule, timeout time.Duration, fn Job) error {
	if id.Kind == 0 || sched == nil || fn == nil {
		return ErrInvalidJob
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.removeRecurringLocked(id)
	s.removeOnce(id)

	d := &recurringDef{id: id, sched: sched, timeout: timeout, job: fn, state: &engine.RunState{}}
	s.defs[id] = d
	if s.c == nil {
		return nil
	}
	s.addCronLocked(d)
	if s.log.Enabled(logx.LevelDebug) {
		s.log.Debug("recurring job armed",
			logx.String("job", id.String()),
			logx.String("spec", describe(sched)),
			logx.String("next", s.previewNextLocked(sched, 3)),
		)
	}
	return nil
}

// ScheduleOnce arms fn to run at at, replacing any entry with the same id.
// A time in the past fires as soon as the registry is running.
func (s *Service) ScheduleOnce(id JobID, at time.Time, timeout time.Duration, fn Job) error {
	if id.Kind == 0 || at.IsZero() || fn == nil {
		return ErrInvalidJob
	}
	s.mu.Lock()
	s.removeRecurringLocked(id)
	s.mu.Unlock()

	s.tmu.Lock()
	defer s.tmu.Unlock()
	if old := s.once[id]; old != nil && old.timer != nil {
		old.timer.Stop()
	}
	s.onceSeq++
	d := &onceDef{id: id, at: at, timeout: timeout, job: fn, ver: s.onceSeq}
	s.once[id] = d
	if s.running {
		s.armOnceLocked(d)
	}
	s.log.Debug("one-shot job armed", logx.String("job", id.String()), logx.Time("at", at))
	return nil
}

// Cancel removes the entry. It reports whether anything was registered.
func (s *Service) Cancel(id JobID) bool {
	s.mu.Lock()
	removed := s.removeRecurringLocked(id)
	s.mu.Unlock()
	if s.removeOnce(id) {
		removed = true
	}
	if removed {
		s.log.Debug("job cancelled", logx.String("job", id.String()))
	}
	return removed
}

// CancelWhere removes every entry whose id matches and returns the count.
func (s *Service) CancelWhere(match func(JobID) bool) int {
	var ids []JobID
	s.mu.Lock()
	for id := range s.defs {
		if match(id) {
			ids = append(ids, id)
		}
	}
	s.mu.Unlock()
	s.tmu.Lock()
	for id := range s.once {
		if match(id) {
			ids = append(ids, id)
		}
	}
	s.tmu.Unlock()

	n := 0
	for _, id := range ids {
		if s.Cancel(id) {
			n++
		}
	}
	return n
}

func (s *Service) Exists(id JobID) bool {
	s.mu.Lock()
	_, ok := s.defs[id]
	s.mu.Unlock()
	if ok {
		return true
	}
	s.tmu.Lock()
	_, ok = s.once[id]
	s.tmu.Unlock()
	return ok
}

// Next returns the next fire instant of id.
func (s *Service) Next(id JobID) (time.Time, bool) {
	s.mu.Lock()
	if d, ok := s.defs[id]; ok {
		next := s.nextLocked(d)
		s.mu.Unlock()
		return next, true
	}
	s.mu.Unlock()

	s.tmu.Lock()
	defer s.tmu.Unlock()
	if d, ok := s.once[id]; ok {
		return d.at, true
	}
	return time.Time{}, false
}

// Snapshot lists every entry ordered by next fire time.
func (s *Service) Snapshot() Snapshot {
	s.mu.Lock()
	snap := Snapshot{Timezone: s.loc.String(), Running: s.c != nil}
	for _, d := range s.defs {
		it := EntryInfo{ID: d.id, Recurring: true, Spec: describe(d.sched), Timeout: d.timeout, Next: s.nextLocked(d)}
		if s.c != nil && d.entryID != 0 {
			it.Prev = s.c.Entry(d.entryID).Prev
		}
		snap.Entries = append(snap.Entries, it)
	}
	s.mu.Unlock()

	s.tmu.Lock()
	for _, d := range s.once {
		snap.Entries = append(snap.Entries, EntryInfo{ID: d.id, Spec: "once", Timeout: d.timeout, Next: d.at})
	}
	s.tmu.Unlock()

	sort.Slice(snap.Entries, func(i, j int) bool {
		a, b := snap.Entries[i], snap.Entries[j]
		if !a.Next.Equal(b.Next) {
			return a.Next.Before(b.Next)
		}
		return a.ID.String() < b.ID.String()
	})
	return snap
}

func (s *Service) nextLocked(d *recurringDef) time.Time {
	if s.c != nil && d.entryID != 0 {
		if next := s.c.Entry(d.entryID).Next; !next.IsZero() {
			return next
		}
	}
	return d.sched.Next(time.Now().In(s.loc))
}

func (s *Service) removeRecurringLocked(id JobID) bool {
	d, ok := s.defs[id]
	if !ok {
		return false
	}
	if s.c != nil && d.entryID != 0 {
		s.c.Remove(d.entryID)
	}
	delete(s.defs, id)
	return true
}

func (s *Service) removeOnce(id JobID) bool {
	s.tmu.Lock()
	defer s.tmu.Unlock()
	d, ok := s.once[id]
	if !ok {
		return false
	}
	if d.timer != nil {
		d.timer.Stop()
	}
	delete(s.once, id)
	return true
}

func (s *Service) addCronLocked(d *recurringDef) {
	d.entryID = s.c.Schedule(d.sched, cron.FuncJob(func() {
		err := s.enqueue(d.id, d.timeout, d.job, engine.TaskOptions{Overlap: engine.OverlapSkipIfRunning}, d.state)
		s.reportEnqueueError(d.id, err)
	}))
}

// armOnceLocked starts d's timer. Call with tmu held.
func (s *Service) armOnceLocked(d *onceDef) {
	id, ver := d.id, d.ver
	d.timer = time.AfterFunc(max(time.Until(d.at), 0), func() { s.fireOnce(id, ver) })
}

const (
	onceRetryBase = 250 * time.Millisecond
	onceRetryMax  = 30 * time.Second
)

// fireOnce ignores callbacks from replaced or cancelled timers. A hand-off
// the executor cannot take right now keeps the entry and retries it later,
// so one-shot jobs are never lost to a full queue.
func (s *Service) fireOnce(id JobID, ver uint64) {
	s.tmu.Lock()
	defer s.tmu.Unlock()
	d := s.once[id]
	if d == nil || d.ver != ver || !s.running {
		return
	}

	err := s.enqueue(id, d.timeout, d.job, engine.TaskOptions{KeepStale: true}, nil)
	if !retryEnqueue(err) {
		delete(s.once, id)
		s.reportEnqueueError(id, err)
		return
	}
	d.retries++
	delay := min(onceRetryBase<<min(d.retries-1, 7), onceRetryMax)
	d.timer = time.AfterFunc(delay, func() { s.fireOnce(id, ver) })
	if d.retries == 1 || d.retries%20 == 0 {
		s.log.Warn("one-shot job deferred",
			logx.String("job", id.String()),
			logx.Int("retries", d.retries),
			logx.Duration("delay", delay),
			logx.Err(err),
		)
	}
}

func retryEnqueue(err error) bool {
	return errors.Is(err, engine.ErrQueueFull) || errors.Is(err, engine.ErrStopping) || errors.Is(err, engine.ErrStopped)
}

func (s *Service) enqueue(id JobID, timeout time.Duration, job Job, opt engine.TaskOptions, state *engine.RunState) error {
	if s.exec == nil {
		return nil
	}
	return s.exec.Enqueue(engine.Task{
		Name:    id.String(),
		Timeout: timeout,
		Run:     job,
		Opt:     opt,
		State:   state,
	})
}

func (s *Service) previewNextLocked(sched cron.Schedule, n int) string {
	t := time.Now().In(s.loc)
	parts := make([]string, 0, n)
	for i := 0; i < n; i++ {
		t = sched.Next(t)
		if t.IsZero() {
			break
		}
		parts = append(parts, t.Format("2006-01-02 15:04 MST"))
	}
	return strings.Join(parts, ", ")
}

func describe(sched cron.Schedule) string {
	if w, ok := sched.(Weekly); ok {
		return w.CronSpec()
	}
	return "custom"
}
