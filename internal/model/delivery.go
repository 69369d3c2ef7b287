package model

import (
	"fmt"
	"time"
)

// Occurrence identifies one firing of a post's schedule.
type Occurrence struct {
	PostID  int64
	FiredAt time.Time
}

// NewOccurrence truncates the instant to the millisecond precision used in storage.
func NewOccurrence(postID int64, firedAt time.Time) Occurrence {
	return Occurrence{PostID: postID, FiredAt: time.UnixMilli(firedAt.UnixMilli())}
}

func (o Occurrence) String() string {
	return fmt.Sprintf("%d@%d", o.PostID, o.FiredAt.UnixMilli())
}

type DeliveryStatus string

const (
	DeliveryPending DeliveryStatus = "pending"
	DeliveryDeleted DeliveryStatus = "deleted"
	DeliveryFailed  DeliveryStatus = "failed"
)

// Delivery records one message published to one channel for an occurrence.
type Delivery struct {
	ID         int64
	PostID     int64
	FiredAt    time.Time
	ChannelID  int64
	MessageID  int
	Status     DeliveryStatus
	DeleteAt   time.Time // zero when retention is disabled
	ResolvedAt time.Time
	Error      string
}

func (d Delivery) Occurrence() Occurrence {
	return NewOccurrence(d.PostID, d.FiredAt)
}

func (d Delivery) Pending() bool { return d.Status == DeliveryPending }

// DeletionStats aggregates deletion outcomes for one occurrence.
type DeletionStats struct {
	PostID    int64
	FiredAt   time.Time
	PostName  string
	Total     int
	Deleted   int
	Failed    int
	Reasons   []string
	Notified  bool
	UpdatedAt time.Time
}

func (s DeletionStats) Occurrence() Occurrence {
	return NewOccurrence(s.PostID, s.FiredAt)
}

// ReportMessage is an admin-facing send report awaiting cleanup.
type ReportMessage struct {
	PostID    int64
	FiredAt   time.Time
	ChatID    int64
	MessageID int
}
