package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"postbot/internal/model"
)

const reasonSep = "\n"

// DeletionOutcome is one resolved deletion to fold into an occurrence's stats.
type DeletionOutcome struct {
	PostName string
	Status   model.DeliveryStatus
	Reason   string
	At       time.Time
}

// ResolveDeletion moves a pending delivery to the outcome's status and folds
// the outcome into the stats of its occurrence in one transaction. It reports
// false, and records nothing, when the delivery was already resolved.
func (s *Store) ResolveDeletion(ctx context.Context, d model.Delivery, o DeletionOutcome) (bool, error) {
	reason := strings.ReplaceAll(strings.TrimSpace(o.Reason), reasonSep, " ")
	if o.At.IsZero() {
		o.At = time.Now()
	}
	deleted, failed := 0, 1
	if o.Status == model.DeliveryDeleted {
		deleted, failed = 1, 0
	}
	fired := toMillis(d.FiredAt)

	won := false
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		res, err := s.exec(ctx, tx,
			`UPDATE deliveries SET status = ?, error = ?, resolved_at = ? WHERE id = ? AND status = ?`,
			string(o.Status), reason, toMillis(o.At), d.ID, string(model.DeliveryPending))
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil || n != 1 {
			return err
		}
		won = true

		var total int
		if err := s.queryRow(ctx, tx,
			`SELECT COUNT(*) FROM deliveries WHERE post_id = ? AND fired_at = ?`,
			d.PostID, fired).Scan(&total); err != nil {
			return err
		}
		_, err = s.exec(ctx, tx,
			`INSERT INTO deletion_stats(post_id, fired_at, post_name, total, deleted, failed, reasons, notified, updated_at)
			 VALUES(?,?,?,?,?,?,?,?,?)
			 ON CONFLICT(post_id, fired_at) DO UPDATE SET
			   post_name = excluded.post_name,
			   total = excluded.total,
			   deleted = deletion_stats.deleted + excluded.deleted,
			   failed = deletion_stats.failed + excluded.failed,
			   reasons = CASE
			     WHEN excluded.reasons = '' THEN deletion_stats.reasons
			     WHEN deletion_stats.reasons = '' THEN excluded.reasons
			     ELSE deletion_stats.reasons || ? || excluded.reasons END,
			   updated_at = excluded.updated_at`,
			d.PostID, fired, o.PostName, total, deleted, failed, reason, false, toMillis(o.At), reasonSep,
		)
		return err
	})
	if err != nil {
		return false, fmt.Errorf("resolve deletion %d: %w", d.ID, err)
	}
	return won, nil
}

func (s *Store) GetDeletionStats(ctx context.Context, occ model.Occurrence) (model.DeletionStats, error) {
	var (
		st             model.DeletionStats
		fired, updated int64
		reasons        string
	)
	err := s.queryRow(ctx, s.db,
		`SELECT post_id, fired_at, post_name, total, deleted, failed, reasons, notified, updated_at
		 FROM deletion_stats WHERE post_id = ? AND fired_at = ?`,
		occ.PostID, toMillis(occ.FiredAt),
	).Scan(&st.PostID, &fired, &st.PostName, &st.Total, &st.Deleted, &st.Failed, &reasons, &st.Notified, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return model.DeletionStats{}, ErrNotFound
	}
	if err != nil {
		return model.DeletionStats{}, err
	}
	st.FiredAt = fromMillis(fired)
	st.UpdatedAt = fromMillis(updated)
	if reasons != "" {
		st.Reasons = strings.Split(reasons, reasonSep)
	}
	return st, nil
}

// AcquireNotified flips the occurrence's notified flag. Exactly one caller
// ever gets true. A missing stats row is created first.
func (s *Store) AcquireNotified(ctx context.Context, occ model.Occurrence, postName string) (bool, error) {
	fired := toMillis(occ.FiredAt)
	_, err := s.exec(ctx, s.db,
		`INSERT INTO deletion_stats(post_id, fired_at, post_name, total, deleted, failed, reasons, notified, updated_at)
		 VALUES(?,?,?,0,0,0,'',?,?) ON CONFLICT(post_id, fired_at) DO NOTHING`,
		occ.PostID, fired, postName, false, time.Now().UnixMilli())
	if err != nil {
		return false, fmt.Errorf("acquire notified: %w", err)
	}
	res, err := s.exec(ctx, s.db,
		`UPDATE deletion_stats SET notified = ? WHERE post_id = ? AND fired_at = ? AND notified = ?`,
		true, occ.PostID, fired, false)
	if err != nil {
		return false, fmt.Errorf("acquire notified: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// AcquireCompleted flips the notified flag of an occurrence whose every
// delivery is resolved and counted. Exactly one caller gets true, and only
// once the stats cover all deliveries.
func (s *Store) AcquireCompleted(ctx context.Context, occ model.Occurrence) (bool, error) {
	fired := toMillis(occ.FiredAt)
	res, err := s.exec(ctx, s.db,
		`UPDATE deletion_stats SET notified = ?
		 WHERE post_id = ? AND fired_at = ? AND notified = ?
		   AND total > 0 AND deleted + failed >= total
		   AND NOT EXISTS (SELECT 1 FROM deliveries
		     WHERE deliveries.post_id = ? AND deliveries.fired_at = ? AND deliveries.status = ?)`,
		true, occ.PostID, fired, false, occ.PostID, fired, string(model.DeliveryPending))
	if err != nil {
		return false, fmt.Errorf("acquire completed: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (s *Store) PutReportMessage(ctx context.Context, m model.ReportMessage) error {
	_, err := s.exec(ctx, s.db,
		`INSERT INTO report_messages(post_id, fired_at, chat_id, message_id) VALUES(?,?,?,?)
		 ON CONFLICT(post_id, fired_at, chat_id, message_id) DO NOTHING`,
		m.PostID, toMillis(m.FiredAt), m.ChatID, m.MessageID)
	if err != nil {
		return fmt.Errorf("put report message: %w", err)
	}
	return nil
}

func (s *Store) ListReportMessages(ctx context.Context, occ model.Occurrence) ([]model.ReportMessage, error) {
	rows, err := s.query(ctx, s.db,
		`SELECT post_id, fired_at, chat_id, message_id FROM report_messages
		 WHERE post_id = ? AND fired_at = ? ORDER BY chat_id, message_id`,
		occ.PostID, toMillis(occ.FiredAt))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.ReportMessage
	for rows.Next() {
		var (
			m     model.ReportMessage
			fired int64
		)
		if err := rows.Scan(&m.PostID, &fired, &m.ChatID, &m.MessageID); err != nil {
			return nil, err
		}
		m.FiredAt = fromMillis(fired)
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *Store) DeleteReportMessages(ctx context.Context, occ model.Occurrence) error {
	_, err := s.exec(ctx, s.db, `DELETE FROM report_messages WHERE post_id = ? AND fired_at = ?`,
		occ.PostID, toMillis(occ.FiredAt))
	return err
}
