package admin

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"postbot/internal/model"
	"postbot/internal/posting"
	"postbot/internal/task/scheduler"
	kit "postbot/internal/transport"
	"postbot/internal/transport/telegram/router"
	logx "postbot/pkg/logx"
	"postbot/pkg/tgui"
)

// Posts is the slice of posting.Service the admin surface drives.
type Posts interface {
	CreatePost(ctx context.Context, p model.Post) (model.Post, error)
	UpdateSchedule(ctx context.Context, postID int64, edit func(*model.Schedule)) (model.Schedule, error)
	AssignChannels(ctx context.Context, postID int64, chatIDs []int64) ([]int64, error)
	AddChannel(ctx context.Context, c model.Channel) (model.Channel, error)
	RemoveChannel(ctx context.Context, chatID int64) error
	ActivatePost(ctx context.Context, postID int64) error
	DeactivatePost(ctx context.Context, postID int64) error
	DeletePost(ctx context.Context, postID int64) error
	ListPosts(ctx context.Context, activeOnly bool) ([]model.Post, error)
	ListChannels(ctx context.Context) ([]model.Channel, error)
	PostDetail(ctx context.Context, postID int64) (posting.PostDetail, error)
	TriggerManual(ctx context.Context, postID int64) (posting.SendResult, error)
	DeleteAllNow(ctx context.Context, postID int64) (posting.ManualDeletion, error)
	Jobs() scheduler.Snapshot
}

var _ Posts = (*posting.Service)(nil)

// Handler owns the admin commands. Handlers reply to the chat themselves
// and only return errors the router should log.
type Handler struct {
	posts Posts
	log   logx.Logger
	loc   func() *time.Location
}

func New(posts Posts, log logx.Logger, loc func() *time.Location) *Handler {
	if log.IsZero() {
		log = logx.Nop()
	}
	if loc == nil {
		loc = func() *time.Location { return time.Local }
	}
	return &Handler{posts: posts, log: log.With(logx.String("comp", "admin")), loc: loc}
}

const slowTimeout = 2 * time.Minute

func (h *Handler) Commands() []router.Command {
	return []router.Command{
		{Route: "posts", Aliases: []string{"list"}, Description: "list stored posts", Usage: "/posts", Handle: h.cmdPosts},
		{Route: "post", Description: "show one post", Usage: "/post <id>", Handle: h.cmdPost},
		{Route: "send", Description: "send a post now", Usage: "/send <id>", Timeout: slowTimeout, Handle: h.cmdSend},
		{
			Route:       "schedule",
			Description: "set send time, days and retention",
			Usage:       "/schedule <id> <HH:MM> [days 1,3,5|all] [retention hours 0-48]",
			Handle:      h.cmdSchedule,
		},
		{Route: "toggle", Description: "flip enabled, pin or forward", Usage: "/toggle <id> enabled|pin|forward", Handle: h.cmdToggle},
		{Route: "assign", Description: "set the channels of a post", Usage: "/assign <id> <chat...>", Handle: h.cmdAssign},
		{Route: "channels", Description: "list registered channels", Usage: "/channels", Handle: h.cmdChannels},
		{Route: "addchannel", Description: "register a channel", Usage: "/addchannel <@handle|t.me/handle|-100id> [name]", Handle: h.cmdAddChannel},
		{Route: "rmchannel", Description: "remove a channel", Usage: "/rmchannel <chat>", Handle: h.cmdRemoveChannel},
		{Route: "activate", Description: "reactivate a post", Usage: "/activate <id>", Handle: h.cmdActivate},
		{Route: "delpost", Description: "deactivate a post, or purge it with hard", Usage: "/delpost <id> [hard]", Handle: h.cmdDeletePost},
		{Route: "purge", Description: "delete a post's messages from every channel now", Usage: "/purge <id>", Timeout: slowTimeout, Handle: h.cmdPurge},
		{Route: "jobs", Description: "list armed jobs", Usage: "/jobs", Handle: h.cmdJobs},
	}
}

func (h *Handler) Callbacks() []router.CallbackRoute {
	return []router.CallbackRoute{
		{Group: "post", Action: "resend", Description: "resend from a report", Timeout: slowTimeout, Handle: h.cbResend},
		{Group: "post", Action: "purge", Description: "delete from all channels", Timeout: slowTimeout, Handle: h.cbPurge},
		{Group: "post", Action: "show", Description: "post details", Handle: h.cbShow},
	}
}

// reply sends an HTML message. Send errors are only logged: the admin chat
// is the one place to report them.
func (h *Handler) reply(ctx context.Context, req *router.Request, msg tgui.Message) {
	if _, err := msg.Send(ctx, req.Adapter, req.Chat); err != nil {
		req.Logger.Warn("reply failed", logx.Err(err))
	}
}

func (h *Handler) replyText(ctx context.Context, req *router.Request, text string) {
	h.reply(ctx, req, tgui.New().Line(text).Build())
}

// replyErr renders err for the admin. Unexpected errors are logged too.
func (h *Handler) replyErr(ctx context.Context, req *router.Request, err error) {
	switch {
	case errors.Is(err, posting.ErrNotFound),
		errors.Is(err, posting.ErrLimit),
		errors.Is(err, posting.ErrInvalid),
		errors.Is(err, posting.ErrPermission),
		errors.Is(err, posting.ErrAborted),
		errors.Is(err, ErrBadChannelRef),
		errors.Is(err, errUsage):
	default:
		req.Logger.Warn("admin command failed", logx.Err(err))
	}
	h.reply(ctx, req, tgui.New().Line("⚠️ "+err.Error()).Build())
}

var errUsage = errors.New("usage")

func usage(u string) error { return fmt.Errorf("%w: %s", errUsage, u) }

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimPrefix(strings.TrimSpace(s), "#"), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: bad post id %q", posting.ErrInvalid, s)
	}
	return id, nil
}

// postArg parses the leading post id argument.
func postArg(req *router.Request, u string) (int64, error) {
	if len(req.Args) == 0 {
		return 0, usage(u)
	}
	return parseID(req.Args[0])
}

// resolveChannel maps a channel argument to a chat id. Handles are matched
// against registered channels first and then looked up through the adapter.
func (h *Handler) resolveChannel(ctx context.Context, req *router.Request, raw string) (model.Channel, error) {
	ref, err := ParseChannelRef(raw)
	if err != nil {
		return model.Channel{}, err
	}
	if ref.Handle == "" {
		return model.Channel{ChatID: ref.ChatID}, nil
	}
	chans, err := h.posts.ListChannels(ctx)
	if err != nil {
		return model.Channel{}, err
	}
	for _, c := range chans {
		if strings.EqualFold(strings.TrimPrefix(c.Handle, "@"), ref.Handle) {
			return c, nil
		}
	}
	res, ok := req.Adapter.(kit.ChatResolver)
	if !ok {
		return model.Channel{}, fmt.Errorf("%w: %s is not registered", posting.ErrNotFound, ref)
	}
	info, err := res.ResolveChat(ctx, ref.String())
	if err != nil {
		return model.Channel{}, fmt.Errorf("%w: %s: %v", posting.ErrNotFound, ref, err)
	}
	return model.Channel{ChatID: info.ID, Name: info.Title, Handle: info.Username}, nil
}
