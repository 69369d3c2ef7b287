package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/robfig/cron/v3"

	"postbot/internal/model"
	"postbot/internal/task/engine"
	logx "postbot/pkg/logx"
)

type inlineExec struct {
	ran chan string
}

func (e *inlineExec) Enqueue(t engine.Task) error {
	go func() {
		_ = t.Run(context.Background())
		e.ran <- t.Name
	}()
	return nil
}

func newTestService(t *testing.T) (*Service, *inlineExec) {
	t.Helper()
	exec := &inlineExec{ran: make(chan string, 16)}
	s := New(Config{Timezone: "UTC"}, exec, logx.Nop())
	s.Start(context.Background())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		s.Stop(ctx)
	})
	return s, exec
}

func nop(context.Context) error { return nil }

func mustLoc(t *testing.T, name string) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation(name)
	if err != nil {
		t.Skipf("tzdata for %s unavailable: %v", name, err)
	}
	return loc
}

func TestWeeklyNext(t *testing.T) {
	t.Parallel()
	w := NewWeekly(9, 0, model.WeekdaysOf(1, 3), time.UTC) // Mon, Wed
	// 2024-03-04 is a Monday
	from := time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC)
	want := []time.Time{
		time.Date(2024, 3, 6, 9, 0, 0, 0, time.UTC),
		time.Date(2024, 3, 11, 9, 0, 0, 0, time.UTC),
		time.Date(2024, 3, 13, 9, 0, 0, 0, time.UTC),
	}
	at := from
	for i, exp := range want {
		at = w.Next(at)
		if !at.Equal(exp) {
			t.Fatalf("fire %d = %v, want %v", i, at, exp)
		}
	}

	if got := (Weekly{Hour: 9}).Next(from); !got.IsZero() {
		t.Fatalf("empty day set should never fire, got %v", got)
	}
}

func TestWeeklyMatchesCronSpec(t *testing.T) {
	t.Parallel()
	tests := []Weekly{
		{Hour: 9, Minute: 15, Days: model.WeekdaysOf(1, 3, 7)},
		{Hour: 0, Minute: 0, Days: model.AllWeekdays},
		{Hour: 23, Minute: 59, Days: model.WeekdaysOf(6)},
	}
	for _, w := range tests {
		w := w
		t.Run(w.CronSpec(), func(t *testing.T) {
			t.Parallel()
			ref, err := cron.ParseStandard("CRON_TZ=UTC " + w.CronSpec())
			if err != nil {
				t.Fatalf("ParseStandard(%q): %v", w.CronSpec(), err)
			}
			a := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
			b := a
			for i := 0; i < 30; i++ {
				a, b = w.Next(a), ref.Next(b)
				if !a.Equal(b) {
					t.Fatalf("fire %d: weekly=%v cron=%v", i, a, b)
				}
			}
		})
	}
}

func TestWeeklyDSTGap(t *testing.T) {
	t.Parallel()
	ny := mustLoc(t, "America/New_York")
	w := NewWeekly(2, 30, model.AllWeekdays, ny)

	// 2024-03-10 02:30 does not exist in New York
	from := time.Date(2024, 3, 9, 12, 0, 0, 0, ny)
	first := w.Next(from)
	if y, m, d := first.Date(); y != 2024 || m != time.March || d != 10 {
		t.Fatalf("gap day fire = %v, want a fire on 2024-03-10", first)
	}
	second := w.Next(first)
	if _, _, d := second.Date(); d != 11 || second.Hour() != 2 || second.Minute() != 30 {
		t.Fatalf("day after gap = %v, want 2024-03-11 02:30", second)
	}
}

func TestWeeklyDSTRepeatedHourFiresOnce(t *testing.T) {
	t.Parallel()
	ny := mustLoc(t, "America/New_York")
	w := NewWeekly(1, 30, model.AllWeekdays, ny)

	// 2024-11-03 01:30 happens twice; the EDT instant comes first
	from := time.Date(2024, 11, 2, 12, 0, 0, 0, ny)
	first := w.Next(from)
	if want := time.Date(2024, 11, 3, 5, 30, 0, 0, time.UTC); !first.Equal(want) {
		t.Fatalf("first = %v, want %v", first.UTC(), want)
	}
	second := w.Next(first)
	if want := time.Date(2024, 11, 4, 6, 30, 0, 0, time.UTC); !second.Equal(want) {
		t.Fatalf("second = %v, want %v (repeated hour fired twice?)", second.UTC(), want)
	}
}

func TestWeeklyFollowsRunnerLocation(t *testing.T) {
	t.Parallel()
	jkt := mustLoc(t, "Asia/Jakarta")
	w := NewWeekly(9, 0, model.AllWeekdays, nil)
	got := w.Next(time.Date(2024, 3, 4, 0, 0, 0, 0, jkt))
	if got.Location() != jkt || got.Hour() != 9 {
		t.Fatalf("Next = %v, want 09:00 in Asia/Jakarta", got)
	}
}

func TestParseJobID(t *testing.T) {
	t.Parallel()
	tests := []struct {
		raw  string
		want JobID
		err  bool
	}{
		{raw: "send:12", want: SendJob(12)},
		{raw: "delete:12:-1001:77", want: DeleteJob(12, -1001, 77)},
		{raw: "delete:12:-1001", err: true},
		{raw: "send:x", err: true},
		{raw: "purge:1", err: true},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.raw, func(t *testing.T) {
			t.Parallel()
			got, err := ParseJobID(tt.raw)
			if tt.err {
				if err == nil {
					t.Fatalf("expected error, got %+v", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseJobID: %v", err)
			}
			if got != tt.want || got.String() != tt.raw {
				t.Fatalf("got %+v (%s), want %+v", got, got, tt.want)
			}
		})
	}
}

func TestScheduleRecurringReplaces(t *testing.T) {
	t.Parallel()
	s, _ := newTestService(t)
	id := SendJob(1)
	for _, hour := range []int{9, 10} {
		if err := s.ScheduleRecurring(id, NewWeekly(hour, 0, model.AllWeekdays, nil), 0, nop); err != nil {
			t.Fatalf("ScheduleRecurring: %v", err)
		}
	}
	snap := s.Snapshot()
	if len(snap.Entries) != 1 {
		t.Fatalf("entries = %d, want 1", len(snap.Entries))
	}
	if next, ok := s.Next(id); !ok || next.Hour() != 10 {
		t.Fatalf("Next = %v %v, want 10:00", next, ok)
	}
	if err := s.ScheduleRecurring(id, nil, 0, nop); err == nil {
		t.Fatal("expected error for nil schedule")
	}
}

func TestScheduleOncePastDueFiresImmediately(t *testing.T) {
	t.Parallel()
	s, exec := newTestService(t)
	id := DeleteJob(1, -100, 5)
	if err := s.ScheduleOnce(id, time.Now().Add(-time.Hour), 0, nop); err != nil {
		t.Fatalf("ScheduleOnce: %v", err)
	}
	select {
	case name := <-exec.ran:
		if name != id.String() {
			t.Fatalf("ran %q, want %q", name, id)
		}
	case <-time.After(time.Second):
		t.Fatal("past-due job did not fire")
	}
	if s.Exists(id) {
		t.Fatal("fired one-shot should leave the registry")
	}
}

func TestScheduleOnceBeforeStartArmsOnStart(t *testing.T) {
	t.Parallel()
	exec := &inlineExec{ran: make(chan string, 4)}
	s := New(Config{Timezone: "UTC"}, exec, logx.Nop())
	id := DeleteJob(2, -100, 9)
	if err := s.ScheduleOnce(id, time.Now().Add(-time.Minute), 0, nop); err != nil {
		t.Fatalf("ScheduleOnce: %v", err)
	}
	select {
	case <-exec.ran:
		t.Fatal("fired before Start")
	case <-time.After(100 * time.Millisecond):
	}
	s.Start(context.Background())
	defer s.Stop(context.Background())
	select {
	case <-exec.ran:
	case <-time.After(time.Second):
		t.Fatal("job not armed by Start")
	}
}

func TestScheduleOnceReplaceAndCancel(t *testing.T) {
	t.Parallel()
	s, exec := newTestService(t)
	id := DeleteJob(3, -100, 1)
	fired := make(chan string, 4)

	_ = s.ScheduleOnce(id, time.Now().Add(50*time.Millisecond), 0, func(context.Context) error { fired <- "old"; return nil })
	_ = s.ScheduleOnce(id, time.Now().Add(80*time.Millisecond), 0, func(context.Context) error { fired <- "new"; return nil })
	select {
	case got := <-fired:
		if got != "new" {
			t.Fatalf("replaced job fired: %s", got)
		}
	case <-time.After(time.Second):
		t.Fatal("replacement did not fire")
	}
	<-exec.ran

	other := DeleteJob(3, -100, 2)
	_ = s.ScheduleOnce(other, time.Now().Add(100*time.Millisecond), 0, nop)
	if !s.Cancel(other) {
		t.Fatal("Cancel should report an existing entry")
	}
	if s.Cancel(other) {
		t.Fatal("second Cancel should report nothing removed")
	}
	select {
	case name := <-exec.ran:
		t.Fatalf("cancelled job ran: %s", name)
	case <-time.After(250 * time.Millisecond):
	}
}

func TestCancelWhere(t *testing.T) {
	t.Parallel()
	s, _ := newTestService(t)
	later := time.Now().Add(time.Hour)
	_ = s.ScheduleRecurring(SendJob(1), NewWeekly(9, 0, model.AllWeekdays, nil), 0, nop)
	_ = s.ScheduleRecurring(SendJob(2), NewWeekly(9, 0, model.AllWeekdays, nil), 0, nop)
	_ = s.ScheduleOnce(DeleteJob(1, -1, 1), later, 0, nop)
	_ = s.ScheduleOnce(DeleteJob(1, -1, 2), later, 0, nop)

	n := s.CancelWhere(func(id JobID) bool { return id.PostID == 1 })
	if n != 3 {
		t.Fatalf("cancelled %d, want 3", n)
	}
	if !s.Exists(SendJob(2)) || s.Exists(SendJob(1)) {
		t.Fatal("wrong entries removed")
	}
}

func TestApplyTimezoneRearms(t *testing.T) {
	t.Parallel()
	jkt := mustLoc(t, "Asia/Jakarta")
	s, _ := newTestService(t)
	id := SendJob(7)
	_ = s.ScheduleRecurring(id, NewWeekly(9, 0, model.AllWeekdays, nil), 0, nop)

	s.Apply(Config{Timezone: "Asia/Jakarta"})
	next, ok := s.Next(id)
	if !ok {
		t.Fatal("entry lost on timezone change")
	}
	if next.In(jkt).Hour() != 9 {
		t.Fatalf("Next = %v, want 09:00 Jakarta", next.In(jkt))
	}
	if s.Location().String() != "Asia/Jakarta" {
		t.Fatalf("Location = %v", s.Location())
	}
}

func TestScheduleOnceSurvivesFullQueue(t *testing.T) {
	t.Parallel()
	eng := engine.New(engine.Config{Enabled: true, Workers: 1, QueueSize: 2, MaxQueueDelay: time.Millisecond}, logx.Nop(), nil)
	eng.Start(context.Background())
	s := New(Config{Timezone: "UTC"}, eng, logx.Nop())
	s.Start(context.Background())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		s.Stop(ctx)
		eng.Stop(ctx)
	})

	const jobs = 120
	var ran atomic.Int32
	due := time.Now()
	for i := 0; i < jobs; i++ {
		job := func(context.Context) error {
			time.Sleep(time.Millisecond)
			ran.Add(1)
			return nil
		}
		if err := s.ScheduleOnce(DeleteJob(9, -100, i), due, 0, job); err != nil {
			t.Fatalf("ScheduleOnce: %v", err)
		}
	}

	deadline := time.Now().Add(15 * time.Second)
	for ran.Load() < jobs && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if got := ran.Load(); got != jobs {
		t.Fatalf("ran %d of %d one-shot jobs", got, jobs)
	}
	if n := len(s.Snapshot().Entries); n != 0 {
		t.Fatalf("%d entries left after every job ran", n)
	}
	if eng.Snapshot().DroppedStale != 0 {
		t.Fatal("one-shot job dropped as stale")
	}
}
