package admin

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"postbot/internal/model"
	"postbot/internal/posting"
	"postbot/internal/task/scheduler"
	"postbot/pkg/tgui"
)

var dayAbbr = [...]string{1: "Mon", 2: "Tue", 3: "Wed", 4: "Thu", 5: "Fri", 6: "Sat", 7: "Sun"}

func dayNames(w model.Weekdays) string {
	if w&model.AllWeekdays == model.AllWeekdays {
		return "every day"
	}
	days := w.Days()
	if len(days) == 0 {
		return "none"
	}
	names := make([]string, len(days))
	for i, d := range days {
		names[i] = dayAbbr[d]
	}
	return strings.Join(names, ", ")
}

func retentionText(hours int) string {
	if hours == 0 {
		return "keep forever"
	}
	return strconv.Itoa(hours) + "h"
}

func renderPosts(posts []model.Post) tgui.Message {
	b := tgui.New().Title("📝", "Posts")
	if len(posts) == 0 {
		return b.Line("no posts yet; forward a message to me to create one").Build()
	}
	kb := tgui.NewInline()
	for _, p := range posts {
		state := "active"
		if !p.Active {
			state = "inactive"
		}
		b.RawLine(tgui.JoinH(" ",
			tgui.Code("#"+strconv.FormatInt(p.ID, 10)),
			tgui.B(p.Name),
			tgui.I(string(p.Kind)+", "+state),
		))
		if data, err := tgui.Data("post", "show", strconv.FormatInt(p.ID, 10)); err == nil {
			kb.Row(tgui.Btn(tgui.TruncRunes("#"+strconv.FormatInt(p.ID, 10)+" "+p.Name, 32), data))
		}
	}
	return b.Inline(kb).Build()
}

func renderPostDetail(det posting.PostDetail, loc *time.Location) tgui.Message {
	p, s := det.Post, det.Schedule
	b := tgui.New().
		Title("📝", fmt.Sprintf("#%d %s", p.ID, p.Name)).
		KV("Kind", string(p.Kind)).
		KV("Active", onOff(p.Active)).
		KV("Time", s.Clock()+" "+loc.String()).
		KV("Days", dayNames(s.Days)).
		KV("Retention", retentionText(s.RetentionHours)).
		KV("Enabled", onOff(s.Enabled)).
		KV("Pin", onOff(s.Pin)).
		KV("Forward original", onOff(s.PreferForward)).
		KV("Pending deletions", strconv.Itoa(det.Pending))
	if det.Armed {
		b.KV("Next send", det.NextFire.In(loc).Format("Mon 02/01/2006 15:04"))
	} else {
		b.KV("Next send", "not scheduled")
	}
	if len(det.Channels) == 0 {
		b.Blank().Line("no channels assigned; use /assign")
	} else {
		b.Blank().RawLine(tgui.B(fmt.Sprintf("Channels (%d):", len(det.Channels))))
		for _, c := range det.Channels {
			b.Line(fmt.Sprintf("• %s (%d)", c.Label(), c.ChatID))
		}
	}

	id := strconv.FormatInt(p.ID, 10)
	kb := tgui.NewInline()
	resend, err1 := tgui.Data("post", "resend", id)
	purge, err2 := tgui.Data("post", "purge", id)
	if err1 == nil && err2 == nil {
		kb.Row(tgui.Btn("📤 Send now", resend), tgui.Btn("🗑 Delete from all", purge))
	}
	return b.Inline(kb).Build()
}

func renderChannels(chans []model.Channel) tgui.Message {
	b := tgui.New().Title("📺", "Channels")
	if len(chans) == 0 {
		return b.Line("no channels yet; use /addchannel").Build()
	}
	for _, c := range chans {
		b.RawLine(tgui.JoinH(" ", tgui.Code(strconv.FormatInt(c.ChatID, 10)), tgui.Esc(c.Label())))
	}
	return b.Build()
}

func renderJobs(snap scheduler.Snapshot, loc *time.Location) tgui.Message {
	state := "stopped"
	if snap.Running {
		state = "running"
	}
	b := tgui.New().
		Title("⏱", "Jobs").
		KV("Timezone", snap.Timezone).
		KV("Runner", state)
	if len(snap.Entries) == 0 {
		return b.Line("no jobs armed").Build()
	}
	// delete jobs are folded into one line; there can be one per channel
	var (
		deletes    int
		nextDelete time.Time
	)
	b.Blank()
	for _, e := range snap.Entries {
		if e.ID.Kind == scheduler.JobDelete {
			deletes++
			if nextDelete.IsZero() || (!e.Next.IsZero() && e.Next.Before(nextDelete)) {
				nextDelete = e.Next
			}
			continue
		}
		line := e.ID.String() + " → " + formatNext(e.Next, loc)
		if e.Spec != "" {
			line += " (" + e.Spec + ")"
		}
		b.Line(line)
	}
	if deletes > 0 {
		b.Line(fmt.Sprintf("%d delete job(s), next %s", deletes, formatNext(nextDelete, loc)))
	}
	return b.Build()
}

func formatNext(t time.Time, loc *time.Location) string {
	if t.IsZero() {
		return "-"
	}
	return t.In(loc).Format("02/01 15:04")
}
