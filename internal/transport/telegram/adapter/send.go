package adapter

import (
	"context"
	"fmt"
	"strconv"

	tele "gopkg.in/telebot.v4"

	kit "postbot/internal/transport"
)

func stored(ref kit.MessageRef) tele.StoredMessage {
	return tele.StoredMessage{MessageID: strconv.Itoa(ref.MessageID), ChatID: ref.ChatID}
}

func sendOptions(to kit.ChatTarget, opt *kit.SendOptions, withMarkup bool) *tele.SendOptions {
	if opt == nil {
		opt = &kit.SendOptions{}
	}
	so := &tele.SendOptions{
		ParseMode:             opt.ParseMode,
		DisableWebPagePreview: opt.DisablePreview,
		DisableNotification:   opt.Silent,
		ThreadID:              to.ThreadID,
	}
	if withMarkup {
		if rm, ok := opt.ReplyMarkupAdapter.(*tele.ReplyMarkup); ok {
			so.ReplyMarkup = rm
		}
	}
	return so
}

// SendText splits long text and returns the ref of the first chunk. Markup
// goes on the first chunk only.
func (a *Adapter) SendText(ctx context.Context, to kit.ChatTarget, text string, opt *kit.SendOptions) (kit.MessageRef, error) {
	parseMode := ""
	if opt != nil {
		parseMode = opt.ParseMode
	}
	chunks := splitTelegramText(text, telegramTextLimit, parseMode)
	chat := &tele.Chat{ID: to.ChatID}

	var first kit.MessageRef
	for i, chunk := range chunks {
		so := sendOptions(to, opt, i == 0)
		msg, err := call(ctx, a, "send", func() (*tele.Message, error) {
			return a.bot.Send(chat, chunk, so)
		})
		if err != nil {
			return first, err
		}
		if i == 0 {
			first = kit.MessageRef{ChatID: to.ChatID, ThreadID: to.ThreadID, MessageID: msg.ID}
		}
	}
	return first, nil
}

func (a *Adapter) SendMedia(ctx context.Context, to kit.ChatTarget, kind kit.MediaKind, fileID, caption string, opt *kit.SendOptions) (kit.MessageRef, error) {
	what, err := mediaPayload(kind, fileID, caption)
	if err != nil {
		return kit.MessageRef{}, err
	}
	so := sendOptions(to, opt, true)
	msg, err := call(ctx, a, "send_media", func() (*tele.Message, error) {
		return a.bot.Send(&tele.Chat{ID: to.ChatID}, what, so)
	})
	if err != nil {
		return kit.MessageRef{}, err
	}
	return kit.MessageRef{ChatID: to.ChatID, ThreadID: to.ThreadID, MessageID: msg.ID}, nil
}

// mediaPayload builds the telebot sendable. Stickers carry no caption.
func mediaPayload(kind kit.MediaKind, fileID, caption string) (tele.Sendable, error) {
	if fileID == "" {
		return nil, fmt.Errorf("empty file id for %s", kind)
	}
	f := tele.File{FileID: fileID}
	switch kind {
	case kit.MediaPhoto:
		return &tele.Photo{File: f, Caption: caption}, nil
	case kit.MediaVideo:
		return &tele.Video{File: f, Caption: caption}, nil
	case kit.MediaAudio:
		return &tele.Audio{File: f, Caption: caption}, nil
	case kit.MediaDocument:
		return &tele.Document{File: f, Caption: caption}, nil
	case kit.MediaAnimation:
		return &tele.Animation{File: f, Caption: caption}, nil
	case kit.MediaVoice:
		return &tele.Voice{File: f, Caption: caption}, nil
	case kit.MediaSticker:
		return &tele.Sticker{File: f}, nil
	default:
		return nil, fmt.Errorf("unsupported media kind %q", kind)
	}
}

func (a *Adapter) Forward(ctx context.Context, from kit.MessageRef, to kit.ChatTarget) (kit.MessageRef, error) {
	so := &tele.SendOptions{ThreadID: to.ThreadID}
	msg, err := call(ctx, a, "forward", func() (*tele.Message, error) {
		return a.bot.Forward(&tele.Chat{ID: to.ChatID}, stored(from), so)
	})
	if err != nil {
		return kit.MessageRef{}, err
	}
	return kit.MessageRef{ChatID: to.ChatID, ThreadID: to.ThreadID, MessageID: msg.ID}, nil
}

func (a *Adapter) Pin(ctx context.Context, ref kit.MessageRef, silent bool) error {
	var opts []any
	if silent {
		opts = append(opts, tele.Silent)
	}
	_, err := call(ctx, a, "pin", func() (struct{}, error) {
		return struct{}{}, a.bot.Pin(stored(ref), opts...)
	})
	return err
}

func (a *Adapter) Delete(ctx context.Context, ref kit.MessageRef) error {
	_, err := call(ctx, a, "delete", func() (struct{}, error) {
		return struct{}{}, a.bot.Delete(stored(ref))
	})
	return err
}

func (a *Adapter) ChatMember(ctx context.Context, chatID, userID int64) (kit.Member, error) {
	cm, err := call(ctx, a, "chat_member", func() (*tele.ChatMember, error) {
		return a.bot.ChatMemberOf(&tele.Chat{ID: chatID}, &tele.User{ID: userID})
	})
	if err != nil {
		return kit.Member{}, err
	}
	return memberOf(cm), nil
}

func memberOf(cm *tele.ChatMember) kit.Member {
	if cm == nil {
		return kit.Member{}
	}
	m := kit.Member{Role: string(cm.Role)}
	switch cm.Role {
	case tele.Creator:
		m.IsAdmin, m.CanPost, m.CanDelete, m.CanPin = true, true, true, true
	case tele.Administrator:
		m.IsAdmin = true
		m.CanPost = cm.CanPostMessages
		m.CanDelete = cm.CanDeleteMessages
		m.CanPin = cm.CanPinMessages
	}
	return m
}

// EditText edits the first chunk in place and sends any overflow as new messages.
func (a *Adapter) EditText(ctx context.Context, ref kit.MessageRef, text string, opt *kit.SendOptions) error {
	parseMode := ""
	if opt != nil {
		parseMode = opt.ParseMode
	}
	chunks := splitTelegramText(text, telegramTextLimit, parseMode)
	so := sendOptions(ref.Target(), opt, true)
	so.ThreadID = 0
	if _, err := call(ctx, a, "edit", func() (*tele.Message, error) {
		return a.bot.Edit(stored(ref), chunks[0], so)
	}); err != nil {
		return err
	}
	for _, chunk := range chunks[1:] {
		if _, err := a.SendText(ctx, ref.Target(), chunk, &kit.SendOptions{ParseMode: parseMode}); err != nil {
			return err
		}
	}
	return nil
}

func (a *Adapter) AnswerCallback(ctx context.Context, callbackID string, text string) error {
	_, err := call(ctx, a, "answer_callback", func() (struct{}, error) {
		return struct{}{}, a.bot.Respond(&tele.Callback{ID: callbackID}, &tele.CallbackResponse{Text: text})
	})
	return err
}

var _ kit.ChatResolver = (*Adapter)(nil)

// ResolveChat looks a chat up by "@handle" or numeric id. The bot must be
// able to see the chat.
func (a *Adapter) ResolveChat(ctx context.Context, ref string) (kit.ChatInfo, error) {
	chat, err := call(ctx, a, "get_chat", func() (*tele.Chat, error) {
		if id, perr := strconv.ParseInt(ref, 10, 64); perr == nil {
			return a.bot.ChatByID(id)
		}
		return a.bot.ChatByUsername(ref)
	})
	if err != nil {
		return kit.ChatInfo{}, err
	}
	if chat == nil {
		return kit.ChatInfo{}, fmt.Errorf("chat %s not found", ref)
	}
	return kit.ChatInfo{ID: chat.ID, Title: chat.Title, Username: chat.Username}, nil
}
