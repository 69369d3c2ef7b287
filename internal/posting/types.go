package posting

import (
	"fmt"
	"time"

	"postbot/internal/config"
	"postbot/internal/model"
)

type Config struct {
	Concurrency        int
	SendTimeout        time.Duration
	JobTimeout         time.Duration
	MaxPosts           int
	MaxChannelsPerPost int
}

func (c Config) withDefaults() Config {
	if c.Concurrency <= 0 {
		c.Concurrency = 8
	}
	if c.SendTimeout <= 0 {
		c.SendTimeout = 30 * time.Second
	}
	if c.MaxPosts <= 0 {
		c.MaxPosts = config.DefaultMaxPosts
	}
	if c.MaxChannelsPerPost <= 0 {
		c.MaxChannelsPerPost = config.DefaultMaxChannelsPerPost
	}
	return c
}

// ChannelOutcome is the result of publishing to one channel.
type ChannelOutcome struct {
	ChatID    int64
	Label     string
	MessageID int
	Forwarded bool
	Err       string
	PinErr    string
}

func (o ChannelOutcome) OK() bool { return o.Err == "" }

// SendResult aggregates one fire across every assigned channel.
type SendResult struct {
	PostID    int64
	PostName  string
	FiredAt   time.Time
	Manual    bool
	Retention time.Duration
	Total     int
	Succeeded int
	Failed    int
	Outcomes  []ChannelOutcome
}

func (r SendResult) Occurrence() model.Occurrence {
	return model.NewOccurrence(r.PostID, r.FiredAt)
}

// FailureReasons returns up to limit "channel: error" lines and how many
// more were left out.
func (r SendResult) FailureReasons(limit int) ([]string, int) {
	var all []string
	for _, o := range r.Outcomes {
		if !o.OK() {
			all = append(all, fmt.Sprintf("%s: %s", o.Label, o.Err))
		}
	}
	return CapReasons(all, limit)
}

// CapReasons keeps the first limit entries and counts the rest.
func CapReasons(reasons []string, limit int) ([]string, int) {
	if limit < 0 || len(reasons) <= limit {
		return reasons, 0
	}
	return reasons[:limit], len(reasons) - limit
}

// DeleteTarget names exactly one published message to remove.
type DeleteTarget struct {
	PostID    int64
	FiredAt   time.Time
	ChannelID int64
	MessageID int
}

func (t DeleteTarget) Occurrence() model.Occurrence {
	return model.NewOccurrence(t.PostID, t.FiredAt)
}

func targetOf(d model.Delivery) DeleteTarget {
	return DeleteTarget{PostID: d.PostID, FiredAt: d.FiredAt, ChannelID: d.ChannelID, MessageID: d.MessageID}
}

// ManualDeletion summarizes a delete-all-now run over every pending message
// of a post.
type ManualDeletion struct {
	PostID      int64
	PostName    string
	Occurrences int
	Total       int
	Deleted     int
	Failed      int
	Reasons     []string
	At          time.Time
}

// PostDetail is the admin view of one post.
type PostDetail struct {
	Post     model.Post
	Schedule model.Schedule
	Channels []model.Channel
	Armed    bool
	NextFire time.Time
	Pending  int
}
