package notifier

import "time"

// Config controls admin report delivery.
type Config struct {
	Admins     []int64
	RatePerSec int
}

// MaxReasons is how many failure reasons a report lists before folding the
// rest into a count.
const MaxReasons = 5

// NotificationEvent is published on the event bus for every report message.
type NotificationEvent struct {
	Kind   string    `json:"kind"`
	PostID int64     `json:"post_id"`
	ChatID int64     `json:"chat_id"`
	At     time.Time `json:"at"`
	Error  string    `json:"error,omitempty"`
}
