package scheduler

import (
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"postbot/internal/model"
)

// Weekly fires at Hour:Minute local time on each selected ISO weekday.
//
// A wall time skipped by a DST jump fires at the normalized instant
// time.Date yields. A repeated wall time fires once, at its first
// occurrence. Each selected date fires exactly once.
type Weekly struct {
	Hour   int
	Minute int
	Days   model.Weekdays
	// Loc pins the zone. Nil means the zone of the time passed to Next,
	// which for a cron runner is its configured location.
	Loc *time.Location
}

var _ cron.Schedule = Weekly{}

func NewWeekly(hour, minute int, days model.Weekdays, loc *time.Location) Weekly {
	return Weekly{Hour: hour, Minute: minute, Days: days, Loc: loc}
}

// Next returns the first fire instant strictly after t, or the zero time
// when no weekday is selected.
func (w Weekly) Next(t time.Time) time.Time {
	if w.Days.Empty() {
		return time.Time{}
	}
	loc := w.Loc
	if loc == nil {
		loc = t.Location()
	}
	y, m, d := t.In(loc).Date()
	// the same weekday recurs within 7 days; 8 covers "today already passed"
	for i := 0; i <= 7; i++ {
		noon := time.Date(y, m, d+i, 12, 0, 0, 0, loc)
		if !w.Days.Contains(noon.Weekday()) {
			continue
		}
		ny, nm, nd := noon.Date()
		if at := w.firstInstant(ny, nm, nd, loc); at.After(t) {
			return at
		}
	}
	return time.Time{}
}

// firstInstant resolves the wall clock on the given date to the earliest
// matching instant, or to time.Date's normalization inside a gap.
func (w Weekly) firstInstant(y int, m time.Month, d int, loc *time.Location) time.Time {
	base := time.Date(y, m, d, w.Hour, w.Minute, 0, 0, loc)
	wall := time.Date(y, m, d, w.Hour, w.Minute, 0, 0, time.UTC)

	var best time.Time
	for _, probe := range []time.Time{base.Add(-12 * time.Hour), base, base.Add(12 * time.Hour)} {
		_, off := probe.Zone()
		inst := wall.Add(-time.Duration(off) * time.Second).In(loc)
		iy, im, id := inst.Date()
		if iy != y || im != m || id != d || inst.Hour() != w.Hour || inst.Minute() != w.Minute {
			continue
		}
		if best.IsZero() || inst.Before(best) {
			best = inst
		}
	}
	if best.IsZero() {
		return base
	}
	return best
}

// CronSpec renders the equivalent five-field cron expression.
func (w Weekly) CronSpec() string {
	dow := "*"
	if w.Days&model.AllWeekdays != model.AllWeekdays {
		days := w.Days.Days()
		parts := make([]string, 0, len(days))
		for _, iso := range days {
			parts = append(parts, fmt.Sprint(model.CronWeekday(iso)))
		}
		dow = strings.Join(parts, ",")
	}
	return fmt.Sprintf("%d %d * * %s", w.Minute, w.Hour, dow)
}

func (w Weekly) String() string {
	return fmt.Sprintf("%02d:%02d on %s", w.Hour, w.Minute, w.Days)
}
