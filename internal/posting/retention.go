package posting

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"postbot/internal/eventbus"
	"postbot/internal/model"
	"postbot/internal/storage"
	"postbot/internal/task/scheduler"
	"postbot/internal/transport"
	logx "postbot/pkg/logx"
)

// Tracker removes published messages when their retention expires and
// reports each fire exactly once, after its last pending message resolved.
type Tracker struct {
	repo Repository
	gw   transport.Gateway
	reg  Registry
	rep  Reporter
	bus  eventbus.Bus
	log  logx.Logger
	cfg  func() Config
	now  func() time.Time

	retryDelay time.Duration
}

// Arm schedules the delete job of a pending delivery. A deadline in the past
// fires right away.
func (t *Tracker) Arm(d model.Delivery) error {
	if d.DeleteAt.IsZero() || !d.Pending() {
		return nil
	}
	target := targetOf(d)
	id := scheduler.DeleteJob(d.PostID, d.ChannelID, d.MessageID)
	return t.reg.ScheduleOnce(id, d.DeleteAt, t.cfg().JobTimeout, func(ctx context.Context) error {
		return t.OnDeletionFired(ctx, target)
	})
}

// OnDeletionFired deletes one message and folds the outcome into the stats
// of its fire. Duplicate or stale callbacks are ignored. Deletion failures
// are recorded, never retried.
func (t *Tracker) OnDeletionFired(ctx context.Context, target DeleteTarget) error {
	occ := target.Occurrence()
	log := t.log.With(
		logx.Int64("post_id", target.PostID),
		logx.Int64("chat_id", target.ChannelID),
		logx.Int("message_id", target.MessageID),
	)

	del, err := t.repo.GetDelivery(ctx, occ, target.ChannelID, target.MessageID)
	if errors.Is(err, storage.ErrNotFound) {
		log.Debug("deletion target gone")
		return nil
	}
	if err != nil {
		return fmt.Errorf("load delivery: %w", err)
	}
	if !del.Pending() {
		log.Debug("deletion already resolved", logx.String("status", string(del.Status)))
		return nil
	}

	counted, deleted, err := t.resolve(ctx, del)
	if err != nil || !counted {
		return err
	}
	log.Debug("retention deletion resolved", logx.Bool("deleted", deleted))
	return t.maybeComplete(ctx, occ)
}

// maxRecordAttempts bounds the re-armed record retries of one deletion.
const maxRecordAttempts = 5

// resolve deletes the message and records the outcome. Only the caller that
// moves the delivery out of pending counts it. A failed record is retried
// with the outcome already known, so the message is never deleted twice.
func (t *Tracker) resolve(ctx context.Context, del model.Delivery) (counted, deleted bool, err error) {
	status, reason := model.DeliveryDeleted, ""
	ref := transport.MessageRef{ChatID: del.ChannelID, MessageID: del.MessageID}
	if derr := t.gw.Delete(ctx, ref); derr != nil {
		status = model.DeliveryFailed
		reason = fmt.Sprintf("%s: %v", t.channelLabel(ctx, del.ChannelID), derr)
	}

	won, err := t.record(ctx, del, status, reason)
	if err != nil {
		t.retryRecord(del, status, reason, 1)
		return false, false, err
	}
	return won, won && status == model.DeliveryDeleted, nil
}

func (t *Tracker) record(ctx context.Context, del model.Delivery, status model.DeliveryStatus, reason string) (bool, error) {
	// a cancelled job context must not leave the row pending forever
	wctx := context.WithoutCancel(ctx)
	return t.repo.ResolveDeletion(wctx, del, storage.DeletionOutcome{
		PostName: t.postName(wctx, del.PostID),
		Status:   status,
		Reason:   reason,
		At:       t.now(),
	})
}

// retryRecord re-arms the delete job of del as a record-only job. The
// transaction of a failed record rolled back, so the delivery is still
// pending and its fire cannot complete until one attempt lands.
func (t *Tracker) retryRecord(del model.Delivery, status model.DeliveryStatus, reason string, attempt int) {
	log := t.log.With(logx.Int64("delivery_id", del.ID), logx.Int("attempt", attempt))
	if attempt > maxRecordAttempts {
		log.Error("deletion outcome lost; delivery stays pending")
		return
	}
	id := scheduler.DeleteJob(del.PostID, del.ChannelID, del.MessageID)
	at := time.Now().Add(time.Duration(attempt) * t.retryDelay)
	err := t.reg.ScheduleOnce(id, at, t.cfg().JobTimeout, func(ctx context.Context) error {
		won, err := t.record(ctx, del, status, reason)
		if err != nil {
			t.retryRecord(del, status, reason, attempt+1)
			return err
		}
		if !won {
			return nil
		}
		return t.maybeComplete(ctx, del.Occurrence())
	})
	if err != nil {
		log.Error("deletion record retry not armed", logx.Err(err))
		return
	}
	log.Warn("deletion record retry armed", logx.Time("at", at))
}

// maybeComplete sends the completion report once every delivery of the fire
// is resolved and counted, and this caller wins the notified latch.
func (t *Tracker) maybeComplete(ctx context.Context, occ model.Occurrence) error {
	ctx = context.WithoutCancel(ctx)
	won, err := t.repo.AcquireCompleted(ctx, occ)
	if err != nil {
		return fmt.Errorf("acquire completed: %w", err)
	}
	if !won {
		return nil
	}

	stats, err := t.repo.GetDeletionStats(ctx, occ)
	if err != nil {
		return fmt.Errorf("load deletion stats: %w", err)
	}
	reports, err := t.repo.ListReportMessages(ctx, occ)
	if err != nil {
		t.log.Warn("report messages not loaded", logx.String("occurrence", occ.String()), logx.Err(err))
	}
	if t.rep != nil {
		if err := t.rep.ReportDeletionComplete(ctx, stats, reports); err != nil {
			t.log.Warn("deletion report incomplete", logx.String("occurrence", occ.String()), logx.Err(err))
		}
	}
	if err := t.repo.DeleteReportMessages(ctx, occ); err != nil {
		t.log.Warn("report messages not dropped", logx.String("occurrence", occ.String()), logx.Err(err))
	}

	t.log.Info("retention completed",
		logx.Int64("post_id", occ.PostID),
		logx.Int("total", stats.Total),
		logx.Int("deleted", stats.Deleted),
		logx.Int("failed", stats.Failed),
	)
	if t.bus != nil {
		t.bus.Publish(eventbus.Event{Type: eventbus.RetentionCompleted, Data: stats})
	}
	return nil
}

// DeleteAllNow resolves every pending message of the post immediately and
// sends one manual deletion report. The automatic report of each touched
// fire is suppressed.
func (t *Tracker) DeleteAllNow(ctx context.Context, postID int64) (ManualDeletion, error) {
	md := ManualDeletion{PostID: postID, PostName: t.postName(ctx, postID), At: t.now()}
	pending, err := t.repo.ListPendingByPost(ctx, postID)
	if err != nil {
		return md, fmt.Errorf("list pending: %w", err)
	}
	t.reg.CancelWhere(func(id scheduler.JobID) bool {
		return id.Kind == scheduler.JobDelete && id.PostID == postID
	})
	if len(pending) == 0 {
		return md, nil
	}

	type outcome struct {
		counted, deleted bool
		err              error
	}
	outs := make([]outcome, len(pending))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(t.cfg().Concurrency)
	for i, del := range pending {
		g.Go(func() error {
			o := &outs[i]
			o.counted, o.deleted, o.err = t.resolve(gctx, del)
			return nil
		})
	}
	_ = g.Wait()

	touched := map[model.Occurrence]bool{}
	for i, o := range outs {
		if o.err != nil {
			t.log.Warn("manual deletion not recorded", logx.Int64("delivery_id", pending[i].ID), logx.Err(o.err))
		}
		if !o.counted {
			continue
		}
		touched[pending[i].Occurrence()] = true
		md.Total++
		if o.deleted {
			md.Deleted++
		} else {
			md.Failed++
		}
	}
	md.Occurrences = len(touched)

	reports := t.claimOccurrences(ctx, &md, touched)
	if t.rep != nil && md.Total > 0 {
		if err := t.rep.ReportManualDeletion(ctx, md, reports); err != nil {
			t.log.Warn("manual deletion report incomplete", logx.Int64("post_id", postID), logx.Err(err))
		}
	}
	t.log.Info("manual deletion finished",
		logx.Int64("post_id", postID),
		logx.Int("total", md.Total),
		logx.Int("deleted", md.Deleted),
		logx.Int("failed", md.Failed),
	)
	return md, nil
}

// claimOccurrences latches each touched fire that has nothing pending, so
// its automatic report never goes out, and collects the failure reasons and
// report messages of the claimed fires.
func (t *Tracker) claimOccurrences(ctx context.Context, md *ManualDeletion, touched map[model.Occurrence]bool) []model.ReportMessage {
	ctx = context.WithoutCancel(ctx)
	var reports []model.ReportMessage
	for occ := range touched {
		if n, err := t.repo.CountPending(ctx, occ); err != nil || n > 0 {
			continue
		}
		won, err := t.repo.AcquireNotified(ctx, occ, md.PostName)
		if err != nil || !won {
			continue
		}
		if stats, err := t.repo.GetDeletionStats(ctx, occ); err == nil {
			md.Reasons = append(md.Reasons, stats.Reasons...)
		}
		if rs, err := t.repo.ListReportMessages(ctx, occ); err == nil {
			reports = append(reports, rs...)
		}
		if err := t.repo.DeleteReportMessages(ctx, occ); err != nil {
			t.log.Warn("report messages not dropped", logx.String("occurrence", occ.String()), logx.Err(err))
		}
	}
	return reports
}

func (t *Tracker) postName(ctx context.Context, postID int64) string {
	if p, err := t.repo.GetPost(ctx, postID); err == nil {
		return p.Name
	}
	return fmt.Sprintf("#%d", postID)
}

func (t *Tracker) channelLabel(ctx context.Context, chatID int64) string {
	if c, err := t.repo.GetChannel(ctx, chatID); err == nil {
		return c.Label()
	}
	return fmt.Sprint(chatID)
}
