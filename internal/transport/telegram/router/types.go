package router

import (
	"context"
	"time"

	kit "postbot/internal/transport"
	logx "postbot/pkg/logx"
)

type Access int

const (
	AccessOwnerOnly Access = iota
	AccessEveryone
)

type Command struct {
	// Route is a space-separated command path, e.g. "post" or "post show".
	Route       string
	Aliases     []string // root-level aliases, e.g. ["p"]
	Description string
	Usage       string
	Access      Access

	Timeout time.Duration // optional per-command override
	Handle  HandlerFunc
}

type CallbackHandlerFunc func(ctx context.Context, req *Request, payload string) error

// CallbackRoute handles inline button data of the form "group:action:payload".
type CallbackRoute struct {
	Group       string
	Action      string
	Description string
	Access      Access
	Timeout     time.Duration
	Handle      CallbackHandlerFunc
}

type Request struct {
	Update  kit.Update
	Chat    kit.ChatTarget
	FromID  int64
	Path    []string // matched command path tokens (for message updates)
	Command string   // route or callback key
	Args    []string
	Payload string // callback payload (raw string)
	ReqID   string

	Adapter kit.Adapter
	Logger  logx.Logger
}

// Reply sends an HTML message back to the chat the request came from.
func (r *Request) Reply(ctx context.Context, text string, markup any) (kit.MessageRef, error) {
	return r.Adapter.SendText(ctx, r.Chat, text, &kit.SendOptions{
		ParseMode:          "HTML",
		DisablePreview:     true,
		ReplyMarkupAdapter: markup,
	})
}
