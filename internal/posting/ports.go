package posting

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	"postbot/internal/model"
	"postbot/internal/storage"
	"postbot/internal/task/scheduler"
	"postbot/internal/transport"
)

// Repository is the persistence the posting layer needs. *storage.Store
// satisfies it.
type Repository interface {
	CreatePost(ctx context.Context, p *model.Post) error
	GetPost(ctx context.Context, id int64) (model.Post, error)
	UpdatePost(ctx context.Context, p model.Post) error
	SetPostActive(ctx context.Context, id int64, active bool) error
	ListPosts(ctx context.Context, activeOnly bool) ([]model.Post, error)
	CountActivePosts(ctx context.Context) (int, error)
	DeletePost(ctx context.Context, id int64) error

	UpsertSchedule(ctx context.Context, sc model.Schedule) error
	GetSchedule(ctx context.Context, postID int64) (model.Schedule, error)

	UpsertChannel(ctx context.Context, c model.Channel) error
	GetChannel(ctx context.Context, chatID int64) (model.Channel, error)
	ListChannels(ctx context.Context) ([]model.Channel, error)
	DeleteChannel(ctx context.Context, chatID int64) error

	ReplaceAssignments(ctx context.Context, postID int64, chatIDs []int64) error
	ListAssignments(ctx context.Context, postID int64) ([]int64, error)
	ListAssignedChannels(ctx context.Context, postID int64) ([]model.Channel, error)

	InsertDelivery(ctx context.Context, d *model.Delivery) error
	GetDelivery(ctx context.Context, occ model.Occurrence, chatID int64, messageID int) (model.Delivery, error)
	ListPendingByPost(ctx context.Context, postID int64) ([]model.Delivery, error)
	ListPendingWithDeadline(ctx context.Context) ([]model.Delivery, error)
	CountPending(ctx context.Context, occ model.Occurrence) (int, error)

	ResolveDeletion(ctx context.Context, d model.Delivery, o storage.DeletionOutcome) (bool, error)
	GetDeletionStats(ctx context.Context, occ model.Occurrence) (model.DeletionStats, error)
	AcquireCompleted(ctx context.Context, occ model.Occurrence) (bool, error)
	AcquireNotified(ctx context.Context, occ model.Occurrence, postName string) (bool, error)

	PutReportMessage(ctx context.Context, m model.ReportMessage) error
	ListReportMessages(ctx context.Context, occ model.Occurrence) ([]model.ReportMessage, error)
	DeleteReportMessages(ctx context.Context, occ model.Occurrence) error
}

var _ Repository = (*storage.Store)(nil)

// Registry arms send and delete jobs. *scheduler.Service satisfies it.
type Registry interface {
	ScheduleRecurring(id scheduler.JobID, sched cron.Schedule, timeout time.Duration, fn scheduler.Job) error
	ScheduleOnce(id scheduler.JobID, at time.Time, timeout time.Duration, fn scheduler.Job) error
	Cancel(id scheduler.JobID) bool
	CancelWhere(match func(scheduler.JobID) bool) int
	Exists(id scheduler.JobID) bool
	Next(id scheduler.JobID) (time.Time, bool)
	Snapshot() scheduler.Snapshot
}

var _ Registry = (*scheduler.Service)(nil)

// Reporter tells the admins what happened.
type Reporter interface {
	ReportSend(ctx context.Context, res SendResult) ([]transport.MessageRef, error)
	ReportDeletionComplete(ctx context.Context, stats model.DeletionStats, reports []model.ReportMessage) error
	ReportManualDeletion(ctx context.Context, md ManualDeletion, reports []model.ReportMessage) error
}
