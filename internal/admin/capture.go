package admin

import (
	"context"
	"strconv"
	"strings"
	"time"

	"postbot/internal/model"
	kit "postbot/internal/transport"
	"postbot/internal/transport/telegram/router"
	"postbot/pkg/tgui"
)

const maxNameRunes = 48

// Capture is the fallback for owner messages in private chat: any message
// with content becomes a new post with the default schedule.
func (h *Handler) Capture(ctx context.Context, req *router.Request) error {
	msg := req.Update.Message
	if msg == nil || msg.Content == nil {
		return nil
	}
	p, ok := postFromContent(msg, h.now())
	if !ok {
		h.replyText(ctx, req, "this message type cannot be stored as a post")
		return nil
	}
	p.OwnerID = req.FromID

	p, err := h.posts.CreatePost(ctx, p)
	if err != nil {
		h.replyErr(ctx, req, err)
		return nil
	}
	id := strconv.FormatInt(p.ID, 10)
	h.reply(ctx, req, tgui.New().
		Title("✅", "Post created").
		KV("ID", id).
		KV("Name", p.Name).
		KV("Kind", string(p.Kind)).
		Blank().
		Line("Next: /assign "+id+" <channels>, then /schedule "+id+" <HH:MM>").
		Build())
	return nil
}

func (h *Handler) now() time.Time { return time.Now().In(h.loc()) }

// postFromContent builds an unsaved post. The origin is the forwarded
// source when known, else the message in the owner's chat.
func postFromContent(msg *kit.Message, now time.Time) (model.Post, bool) {
	c := msg.Content
	kind, ok := contentKind(c.Media)
	if !ok {
		return model.Post{}, false
	}
	p := model.Post{
		Name:            postName(c.Text, kind, now),
		Kind:            kind,
		Text:            c.Text,
		MediaRef:        c.FileID,
		OriginChatID:    msg.ChatID,
		OriginMessageID: msg.ID,
	}
	if c.OriginChatID != 0 && c.OriginMessageID != 0 {
		p.OriginChatID, p.OriginMessageID = c.OriginChatID, c.OriginMessageID
	}
	if kind == model.KindText && strings.TrimSpace(p.Text) == "" {
		return model.Post{}, false
	}
	return p, true
}

func contentKind(m kit.MediaKind) (model.ContentKind, bool) {
	switch m {
	case "":
		return model.KindText, true
	case kit.MediaPhoto:
		return model.KindPhoto, true
	case kit.MediaVideo:
		return model.KindVideo, true
	case kit.MediaAudio:
		return model.KindAudio, true
	case kit.MediaDocument:
		return model.KindDocument, true
	case kit.MediaAnimation:
		return model.KindAnimation, true
	case kit.MediaSticker:
		return model.KindSticker, true
	case kit.MediaVoice:
		return model.KindVoice, true
	default:
		return "", false
	}
}

// postName is the first non-blank line of the text, or the kind and the
// capture time when there is none.
func postName(text string, kind model.ContentKind, now time.Time) string {
	for _, line := range strings.Split(text, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			return tgui.TruncRunes(line, maxNameRunes)
		}
	}
	return string(kind) + " " + now.Format("02/01 15:04")
}
