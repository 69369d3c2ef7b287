package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"postbot/internal/model"
)

const postColumns = `id, name, kind, text, media_ref, origin_chat_id, origin_message_id, active, owner_id, created_at`

func scanPost(row interface{ Scan(...any) error }) (model.Post, error) {
	var (
		p       model.Post
		kind    string
		created int64
	)
	err := row.Scan(&p.ID, &p.Name, &kind, &p.Text, &p.MediaRef, &p.OriginChatID, &p.OriginMessageID, &p.Active, &p.OwnerID, &created)
	if err != nil {
		return model.Post{}, err
	}
	p.Kind = model.ContentKind(kind)
	p.CreatedAt = fromMillis(created)
	return p, nil
}

// CreatePost inserts p and sets p.ID.
func (s *Store) CreatePost(ctx context.Context, p *model.Post) error {
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now()
	}
	err := s.queryRow(ctx, s.db,
		`INSERT INTO posts(name, kind, text, media_ref, origin_chat_id, origin_message_id, active, owner_id, created_at)
		 VALUES(?,?,?,?,?,?,?,?,?) RETURNING id`,
		p.Name, string(p.Kind), p.Text, p.MediaRef, p.OriginChatID, p.OriginMessageID, p.Active, p.OwnerID, toMillis(p.CreatedAt),
	).Scan(&p.ID)
	if err != nil {
		return fmt.Errorf("create post: %w", err)
	}
	return nil
}

func (s *Store) GetPost(ctx context.Context, id int64) (model.Post, error) {
	p, err := scanPost(s.queryRow(ctx, s.db, `SELECT `+postColumns+` FROM posts WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return model.Post{}, ErrNotFound
	}
	return p, err
}

func (s *Store) UpdatePost(ctx context.Context, p model.Post) error {
	res, err := s.exec(ctx, s.db,
		`UPDATE posts SET name = ?, kind = ?, text = ?, media_ref = ?, origin_chat_id = ?, origin_message_id = ?, active = ?, owner_id = ?
		 WHERE id = ?`,
		p.Name, string(p.Kind), p.Text, p.MediaRef, p.OriginChatID, p.OriginMessageID, p.Active, p.OwnerID, p.ID,
	)
	if err != nil {
		return fmt.Errorf("update post: %w", err)
	}
	return requireRow(res)
}

func (s *Store) SetPostActive(ctx context.Context, id int64, active bool) error {
	res, err := s.exec(ctx, s.db, `UPDATE posts SET active = ? WHERE id = ?`, active, id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

// ListPosts returns posts ordered by id.
func (s *Store) ListPosts(ctx context.Context, activeOnly bool) ([]model.Post, error) {
	q := `SELECT ` + postColumns + ` FROM posts`
	var args []any
	if activeOnly {
		q += ` WHERE active = ?`
		args = append(args, true)
	}
	rows, err := s.query(ctx, s.db, q+` ORDER BY id`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Post
	for rows.Next() {
		p, err := scanPost(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *Store) CountActivePosts(ctx context.Context) (int, error) {
	var n int
	err := s.queryRow(ctx, s.db, `SELECT COUNT(*) FROM posts WHERE active = ?`, true).Scan(&n)
	return n, err
}

// DeletePost removes the post and everything hanging off it.
func (s *Store) DeletePost(ctx context.Context, id int64) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		for _, table := range []string{"assignments", "schedules", "deliveries", "deletion_stats", "report_messages"} {
			if _, err := s.exec(ctx, tx, `DELETE FROM `+table+` WHERE post_id = ?`, id); err != nil {
				return fmt.Errorf("delete %s: %w", table, err)
			}
		}
		res, err := s.exec(ctx, tx, `DELETE FROM posts WHERE id = ?`, id)
		if err != nil {
			return err
		}
		return requireRow(res)
	})
}

func (s *Store) UpsertSchedule(ctx context.Context, sc model.Schedule) error {
	_, err := s.exec(ctx, s.db,
		`INSERT INTO schedules(post_id, hour, minute, days, retention_hours, enabled, pin, prefer_forward)
		 VALUES(?,?,?,?,?,?,?,?)
		 ON CONFLICT(post_id) DO UPDATE SET hour = excluded.hour, minute = excluded.minute, days = excluded.days,
		   retention_hours = excluded.retention_hours, enabled = excluded.enabled, pin = excluded.pin,
		   prefer_forward = excluded.prefer_forward`,
		sc.PostID, sc.Hour, sc.Minute, int(sc.Days), sc.RetentionHours, sc.Enabled, sc.Pin, sc.PreferForward,
	)
	if err != nil {
		return fmt.Errorf("upsert schedule: %w", err)
	}
	return nil
}

func (s *Store) GetSchedule(ctx context.Context, postID int64) (model.Schedule, error) {
	var (
		sc   model.Schedule
		days int
	)
	err := s.queryRow(ctx, s.db,
		`SELECT post_id, hour, minute, days, retention_hours, enabled, pin, prefer_forward FROM schedules WHERE post_id = ?`, postID,
	).Scan(&sc.PostID, &sc.Hour, &sc.Minute, &days, &sc.RetentionHours, &sc.Enabled, &sc.Pin, &sc.PreferForward)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Schedule{}, ErrNotFound
	}
	if err != nil {
		return model.Schedule{}, err
	}
	sc.Days = model.Weekdays(days)
	return sc, nil
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
