package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"postbot/internal/model"
)

const deliveryColumns = `id, post_id, fired_at, chat_id, message_id, status, delete_at, resolved_at, error`

func scanDelivery(row interface{ Scan(...any) error }) (model.Delivery, error) {
	var (
		d                         model.Delivery
		status                    string
		fired, deleteAt, resolved int64
	)
	if err := row.Scan(&d.ID, &d.PostID, &fired, &d.ChannelID, &d.MessageID, &status, &deleteAt, &resolved, &d.Error); err != nil {
		return model.Delivery{}, err
	}
	d.Status = model.DeliveryStatus(status)
	d.FiredAt = fromMillis(fired)
	d.DeleteAt = fromMillis(deleteAt)
	d.ResolvedAt = fromMillis(resolved)
	return d, nil
}

// InsertDelivery records a sent message and sets d.ID.
func (s *Store) InsertDelivery(ctx context.Context, d *model.Delivery) error {
	if d.Status == "" {
		d.Status = model.DeliveryPending
	}
	err := s.queryRow(ctx, s.db,
		`INSERT INTO deliveries(post_id, fired_at, chat_id, message_id, status, delete_at, resolved_at, error)
		 VALUES(?,?,?,?,?,?,?,?) RETURNING id`,
		d.PostID, toMillis(d.FiredAt), d.ChannelID, d.MessageID, string(d.Status), toMillis(d.DeleteAt), toMillis(d.ResolvedAt), d.Error,
	).Scan(&d.ID)
	if err != nil {
		return fmt.Errorf("insert delivery: %w", err)
	}
	return nil
}

func (s *Store) GetDelivery(ctx context.Context, occ model.Occurrence, chatID int64, messageID int) (model.Delivery, error) {
	d, err := scanDelivery(s.queryRow(ctx, s.db,
		`SELECT `+deliveryColumns+` FROM deliveries WHERE post_id = ? AND fired_at = ? AND chat_id = ? AND message_id = ?`,
		occ.PostID, toMillis(occ.FiredAt), chatID, messageID))
	if errors.Is(err, sql.ErrNoRows) {
		return model.Delivery{}, ErrNotFound
	}
	return d, err
}

// ListPendingByPost returns every pending delivery of the post across occurrences.
func (s *Store) ListPendingByPost(ctx context.Context, postID int64) ([]model.Delivery, error) {
	return s.listDeliveries(ctx,
		`SELECT `+deliveryColumns+` FROM deliveries WHERE post_id = ? AND status = ? ORDER BY fired_at, chat_id`,
		postID, string(model.DeliveryPending))
}

// ListPendingWithDeadline returns pending deliveries that have a deletion time.
func (s *Store) ListPendingWithDeadline(ctx context.Context) ([]model.Delivery, error) {
	return s.listDeliveries(ctx,
		`SELECT `+deliveryColumns+` FROM deliveries WHERE status = ? AND delete_at > 0 ORDER BY delete_at`,
		string(model.DeliveryPending))
}

func (s *Store) CountPending(ctx context.Context, occ model.Occurrence) (int, error) {
	var n int
	err := s.queryRow(ctx, s.db,
		`SELECT COUNT(*) FROM deliveries WHERE post_id = ? AND fired_at = ? AND status = ?`,
		occ.PostID, toMillis(occ.FiredAt), string(model.DeliveryPending)).Scan(&n)
	return n, err
}

func (s *Store) listDeliveries(ctx context.Context, q string, args ...any) ([]model.Delivery, error) {
	rows, err := s.query(ctx, s.db, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Delivery
	for rows.Next() {
		d, err := scanDelivery(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}
