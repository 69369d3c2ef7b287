package model

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Post is a reusable payload captured from a forwarded message.
type Post struct {
	ID              int64
	Name            string      `validate:"required,max=128"`
	Kind            ContentKind `validate:"required"`
	Text            string      `validate:"max=4096"`
	MediaRef        string
	OriginChatID    int64
	OriginMessageID int
	Active          bool
	OwnerID         int64
	CreatedAt       time.Time
}

// HasOrigin reports whether the original message can be reforwarded.
func (p Post) HasOrigin() bool {
	return p.OriginChatID != 0 && p.OriginMessageID != 0
}

func (p Post) Validate() error {
	if err := validate.Struct(p); err != nil {
		return fmt.Errorf("post: %w", err)
	}
	if !p.Kind.Valid() {
		return fmt.Errorf("post: unknown content kind %q", p.Kind)
	}
	if p.Kind != KindText && strings.TrimSpace(p.MediaRef) == "" && !p.HasOrigin() {
		return fmt.Errorf("post: %s content needs a media reference or an origin message", p.Kind)
	}
	return nil
}

// Schedule is the weekly recurrence and presentation config of one post.
type Schedule struct {
	PostID         int64    `validate:"required"`
	Hour           int      `validate:"gte=0,lte=23"`
	Minute         int      `validate:"gte=0,lte=59"`
	Days           Weekdays `validate:"required"`
	RetentionHours int      `validate:"gte=0,lte=48"`
	Enabled        bool
	Pin            bool
	PreferForward  bool
}

const (
	DefaultHour      = 9
	DefaultRetention = 24
	MaxRetention     = 48
)

// DefaultSchedule mirrors what a freshly captured post gets.
func DefaultSchedule(postID int64) Schedule {
	return Schedule{
		PostID:         postID,
		Hour:           DefaultHour,
		Days:           AllWeekdays,
		RetentionHours: DefaultRetention,
		Enabled:        true,
		PreferForward:  true,
	}
}

func (s Schedule) Validate() error {
	if err := validate.Struct(s); err != nil {
		return fmt.Errorf("schedule: %w", err)
	}
	if s.Days.Empty() {
		return fmt.Errorf("schedule: %w", ErrNoWeekdays)
	}
	return nil
}

// Retention is zero when messages are kept forever.
func (s Schedule) Retention() time.Duration {
	return time.Duration(s.RetentionHours) * time.Hour
}

// Clock renders the send time as HH:MM.
func (s Schedule) Clock() string {
	return fmt.Sprintf("%02d:%02d", s.Hour, s.Minute)
}

// ParseClock parses "HH:MM".
func ParseClock(s string) (hour, minute int, err error) {
	s = strings.TrimSpace(s)
	parts := strings.Split(s, ":")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("invalid time %q, expected HH:MM", s)
	}
	hour, err = strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, 0, fmt.Errorf("invalid hour in %q", s)
	}
	minute, err = strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("invalid minute in %q", s)
	}
	return hour, minute, nil
}

// Channel is a publish target.
type Channel struct {
	ChatID int64 `validate:"required"`
	Name   string
	Handle string
}

// Label is a short human name for reports.
func (c Channel) Label() string {
	switch {
	case c.Name != "":
		return c.Name
	case c.Handle != "":
		return "@" + strings.TrimPrefix(c.Handle, "@")
	default:
		return fmt.Sprint(c.ChatID)
	}
}
