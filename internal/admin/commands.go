package admin

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"postbot/internal/model"
	"postbot/internal/posting"
	"postbot/internal/transport/telegram/router"
	"postbot/pkg/tgui"
)

func (h *Handler) cmdPosts(ctx context.Context, req *router.Request) error {
	posts, err := h.posts.ListPosts(ctx, false)
	if err != nil {
		h.replyErr(ctx, req, err)
		return err
	}
	h.reply(ctx, req, renderPosts(posts))
	return nil
}

func (h *Handler) cmdPost(ctx context.Context, req *router.Request) error {
	id, err := postArg(req, "/post <id>")
	if err != nil {
		h.replyErr(ctx, req, err)
		return nil
	}
	return h.showPost(ctx, req, id)
}

func (h *Handler) showPost(ctx context.Context, req *router.Request, id int64) error {
	det, err := h.posts.PostDetail(ctx, id)
	if err != nil {
		h.replyErr(ctx, req, err)
		return nil
	}
	h.reply(ctx, req, renderPostDetail(det, h.loc()))
	return nil
}

func (h *Handler) cmdSend(ctx context.Context, req *router.Request) error {
	id, err := postArg(req, "/send <id>")
	if err != nil {
		h.replyErr(ctx, req, err)
		return nil
	}
	return h.send(ctx, req, id)
}

func (h *Handler) send(ctx context.Context, req *router.Request, id int64) error {
	res, err := h.posts.TriggerManual(ctx, id)
	if err != nil {
		h.replyErr(ctx, req, err)
		return nil
	}
	h.replyText(ctx, req, "sent "+res.PostName+": "+strconv.Itoa(res.Succeeded)+"/"+strconv.Itoa(res.Total)+" channels")
	return nil
}

func (h *Handler) cmdSchedule(ctx context.Context, req *router.Request) error {
	const u = "/schedule <id> <HH:MM> [days 1,3,5|all] [retention hours]"
	if len(req.Args) < 2 {
		h.replyErr(ctx, req, usage(u))
		return nil
	}
	id, err := parseID(req.Args[0])
	if err != nil {
		h.replyErr(ctx, req, err)
		return nil
	}
	hour, minute, err := model.ParseClock(req.Args[1])
	if err != nil {
		h.replyErr(ctx, req, invalid(err))
		return nil
	}
	var (
		days      model.Weekdays
		retention = -1
	)
	if len(req.Args) > 2 {
		if days, err = parseDays(req.Args[2]); err != nil {
			h.replyErr(ctx, req, invalid(err))
			return nil
		}
	}
	if len(req.Args) > 3 {
		n, err := strconv.Atoi(strings.TrimSuffix(strings.ToLower(req.Args[3]), "h"))
		if err != nil || n < 0 || n > model.MaxRetention {
			h.replyErr(ctx, req, invalid(errors.New("retention must be 0 to 48 hours")))
			return nil
		}
		retention = n
	}

	sched, err := h.posts.UpdateSchedule(ctx, id, func(s *model.Schedule) {
		s.Hour, s.Minute = hour, minute
		if days != 0 {
			s.Days = days
		}
		if retention >= 0 {
			s.RetentionHours = retention
		}
	})
	if err != nil {
		h.replyErr(ctx, req, err)
		return nil
	}
	h.reply(ctx, req, tgui.New().
		Title("🕐", "Schedule saved").
		KV("Time", sched.Clock()).
		KV("Days", dayNames(sched.Days)).
		KV("Retention", retentionText(sched.RetentionHours)).
		Build())
	return nil
}

func parseDays(s string) (model.Weekdays, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "all", "daily", "*":
		return model.AllWeekdays, nil
	case "weekdays":
		return model.WeekdaysOf(1, 2, 3, 4, 5), nil
	case "weekend":
		return model.WeekdaysOf(6, 7), nil
	}
	return model.ParseWeekdays(s)
}

func (h *Handler) cmdToggle(ctx context.Context, req *router.Request) error {
	const u = "/toggle <id> enabled|pin|forward"
	if len(req.Args) != 2 {
		h.replyErr(ctx, req, usage(u))
		return nil
	}
	id, err := parseID(req.Args[0])
	if err != nil {
		h.replyErr(ctx, req, err)
		return nil
	}
	var flip func(*model.Schedule) bool
	switch strings.ToLower(req.Args[1]) {
	case "enabled", "enable", "on":
		flip = func(s *model.Schedule) bool { s.Enabled = !s.Enabled; return s.Enabled }
	case "pin":
		flip = func(s *model.Schedule) bool { s.Pin = !s.Pin; return s.Pin }
	case "forward", "fwd":
		flip = func(s *model.Schedule) bool { s.PreferForward = !s.PreferForward; return s.PreferForward }
	default:
		h.replyErr(ctx, req, usage(u))
		return nil
	}
	var now bool
	if _, err := h.posts.UpdateSchedule(ctx, id, func(s *model.Schedule) { now = flip(s) }); err != nil {
		h.replyErr(ctx, req, err)
		return nil
	}
	h.replyText(ctx, req, strings.ToLower(req.Args[1])+": "+onOff(now))
	return nil
}

func (h *Handler) cmdAssign(ctx context.Context, req *router.Request) error {
	const u = "/assign <id> <chat...>"
	if len(req.Args) < 2 {
		h.replyErr(ctx, req, usage(u))
		return nil
	}
	id, err := parseID(req.Args[0])
	if err != nil {
		h.replyErr(ctx, req, err)
		return nil
	}
	chatIDs := make([]int64, 0, len(req.Args)-1)
	for _, raw := range req.Args[1:] {
		c, err := h.resolveChannel(ctx, req, raw)
		if err != nil {
			h.replyErr(ctx, req, err)
			return nil
		}
		chatIDs = append(chatIDs, c.ChatID)
	}
	ids, err := h.posts.AssignChannels(ctx, id, chatIDs)
	if err != nil {
		h.replyErr(ctx, req, err)
		return nil
	}
	h.replyText(ctx, req, "post #"+strconv.FormatInt(id, 10)+" now targets "+strconv.Itoa(len(ids))+" channel(s)")
	return nil
}

func (h *Handler) cmdChannels(ctx context.Context, req *router.Request) error {
	chans, err := h.posts.ListChannels(ctx)
	if err != nil {
		h.replyErr(ctx, req, err)
		return err
	}
	h.reply(ctx, req, renderChannels(chans))
	return nil
}

func (h *Handler) cmdAddChannel(ctx context.Context, req *router.Request) error {
	if len(req.Args) == 0 {
		h.replyErr(ctx, req, usage("/addchannel <@handle|t.me/handle|-100id> [name]"))
		return nil
	}
	c, err := h.resolveChannel(ctx, req, req.Args[0])
	if err != nil {
		h.replyErr(ctx, req, err)
		return nil
	}
	if name := strings.TrimSpace(strings.Join(req.Args[1:], " ")); name != "" {
		c.Name = name
	}
	c, err = h.posts.AddChannel(ctx, c)
	if err != nil {
		h.replyErr(ctx, req, err)
		return nil
	}
	h.replyText(ctx, req, "channel added: "+c.Label()+" ("+strconv.FormatInt(c.ChatID, 10)+")")
	return nil
}

func (h *Handler) cmdRemoveChannel(ctx context.Context, req *router.Request) error {
	if len(req.Args) != 1 {
		h.replyErr(ctx, req, usage("/rmchannel <chat>"))
		return nil
	}
	c, err := h.resolveChannel(ctx, req, req.Args[0])
	if err != nil {
		h.replyErr(ctx, req, err)
		return nil
	}
	if err := h.posts.RemoveChannel(ctx, c.ChatID); err != nil {
		h.replyErr(ctx, req, err)
		return nil
	}
	h.replyText(ctx, req, "channel removed: "+strconv.FormatInt(c.ChatID, 10))
	return nil
}

func (h *Handler) cmdActivate(ctx context.Context, req *router.Request) error {
	id, err := postArg(req, "/activate <id>")
	if err == nil {
		err = h.posts.ActivatePost(ctx, id)
	}
	if err != nil {
		h.replyErr(ctx, req, err)
		return nil
	}
	h.replyText(ctx, req, "post #"+strconv.FormatInt(id, 10)+" is active")
	return nil
}

func (h *Handler) cmdDeletePost(ctx context.Context, req *router.Request) error {
	const u = "/delpost <id> [hard]"
	id, err := postArg(req, u)
	if err != nil {
		h.replyErr(ctx, req, err)
		return nil
	}
	hard := len(req.Args) > 1 && strings.EqualFold(req.Args[1], "hard")
	if hard {
		err = h.posts.DeletePost(ctx, id)
	} else {
		err = h.posts.DeactivatePost(ctx, id)
	}
	if err != nil {
		h.replyErr(ctx, req, err)
		return nil
	}
	if hard {
		h.replyText(ctx, req, "post #"+strconv.FormatInt(id, 10)+" deleted")
	} else {
		h.replyText(ctx, req, "post #"+strconv.FormatInt(id, 10)+" deactivated; pending messages still expire")
	}
	return nil
}

func (h *Handler) cmdPurge(ctx context.Context, req *router.Request) error {
	id, err := postArg(req, "/purge <id>")
	if err != nil {
		h.replyErr(ctx, req, err)
		return nil
	}
	return h.purge(ctx, req, id)
}

func (h *Handler) purge(ctx context.Context, req *router.Request, id int64) error {
	md, err := h.posts.DeleteAllNow(ctx, id)
	if err != nil {
		h.replyErr(ctx, req, err)
		return nil
	}
	if md.Total == 0 {
		h.replyText(ctx, req, "nothing pending for post #"+strconv.FormatInt(id, 10))
	}
	// the full summary arrives as a manual deletion report
	return nil
}

func (h *Handler) cmdJobs(ctx context.Context, req *router.Request) error {
	h.reply(ctx, req, renderJobs(h.posts.Jobs(), h.loc()))
	return nil
}

func (h *Handler) cbResend(ctx context.Context, req *router.Request, payload string) error {
	id, err := parseID(payload)
	if err != nil {
		return err
	}
	return h.send(ctx, req, id)
}

func (h *Handler) cbPurge(ctx context.Context, req *router.Request, payload string) error {
	id, err := parseID(payload)
	if err != nil {
		return err
	}
	return h.purge(ctx, req, id)
}

func (h *Handler) cbShow(ctx context.Context, req *router.Request, payload string) error {
	id, err := parseID(payload)
	if err != nil {
		return err
	}
	return h.showPost(ctx, req, id)
}

func invalid(err error) error {
	return fmt.Errorf("%w: %v", posting.ErrInvalid, err)
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}
