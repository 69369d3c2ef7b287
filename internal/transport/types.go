package transport

import "context"

type UpdateKind string

const (
	UpdateMessage  UpdateKind = "message"
	UpdateCallback UpdateKind = "callback"
)

type Update struct {
	Kind     UpdateKind
	Message  *Message
	Callback *Callback
}

type Message struct {
	ID           int
	ChatID       int64
	ThreadID     int // telegram forum topic thread id (0 if none)
	FromID       int64
	FromUsername string
	Text         string
	Private      bool

	// Content is set for any message that can become a post.
	Content *Content
}

// Content is the reusable payload of an incoming message.
type Content struct {
	Media   MediaKind // empty for plain text
	FileID  string
	Text    string // message text or media caption
	Forward bool

	// Origin is where the message can be forwarded from.
	OriginChatID    int64
	OriginMessageID int
}

type Callback struct {
	ID        string
	FromID    int64
	ChatID    int64
	ThreadID  int
	MessageID int
	Data      string
}

type ChatTarget struct {
	ChatID   int64
	ThreadID int
}

type MessageRef struct {
	ChatID    int64
	ThreadID  int
	MessageID int
}

func (r MessageRef) Target() ChatTarget {
	return ChatTarget{ChatID: r.ChatID, ThreadID: r.ThreadID}
}

type SendOptions struct {
	ParseMode          string
	DisablePreview     bool
	Silent             bool
	ReplyMarkupAdapter any // adapter-specific markup (Telegram: *telebot.ReplyMarkup)
}

type MediaKind string

const (
	MediaPhoto     MediaKind = "photo"
	MediaVideo     MediaKind = "video"
	MediaAudio     MediaKind = "audio"
	MediaDocument  MediaKind = "document"
	MediaAnimation MediaKind = "animation"
	MediaSticker   MediaKind = "sticker"
	MediaVoice     MediaKind = "voice"
)

// Member is the bot-relevant view of a chat membership.
type Member struct {
	Role      string
	IsAdmin   bool
	CanPost   bool
	CanDelete bool
	CanPin    bool
}

// Gateway is the outbound messaging capability. Every call may fail with a
// transport or permission error; callers record such errors per operation.
type Gateway interface {
	SendText(ctx context.Context, to ChatTarget, text string, opt *SendOptions) (MessageRef, error)
	SendMedia(ctx context.Context, to ChatTarget, kind MediaKind, fileID, caption string, opt *SendOptions) (MessageRef, error)
	Forward(ctx context.Context, from MessageRef, to ChatTarget) (MessageRef, error)
	Pin(ctx context.Context, ref MessageRef, silent bool) error
	Delete(ctx context.Context, ref MessageRef) error
	ChatMember(ctx context.Context, chatID, userID int64) (Member, error)
	SelfID() int64
}

type Adapter interface {
	Gateway

	Start(ctx context.Context, out chan<- Update) error
	Stop(ctx context.Context) error

	EditText(ctx context.Context, ref MessageRef, text string, opt *SendOptions) error
	AnswerCallback(ctx context.Context, callbackID string, text string) error
}

// BotCommand represents a single bot command menu entry.
type BotCommand struct {
	Command     string
	Description string
}

// CommandMenuUpdater is an optional interface that adapters can implement
// to update platform-specific bot command menus (e.g. Telegram /menu list).
type CommandMenuUpdater interface {
	UpdateMenuCommands(ctx context.Context, cmds []BotCommand) error
}

// ChatInfo is the public identity of a chat.
type ChatInfo struct {
	ID       int64
	Title    string
	Username string
}

// ChatResolver is an optional interface for adapters that can look up a chat
// by numeric id or by "@handle".
type ChatResolver interface {
	ResolveChat(ctx context.Context, ref string) (ChatInfo, error)
}
