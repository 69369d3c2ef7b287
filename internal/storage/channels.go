package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"postbot/internal/model"
)

func (s *Store) UpsertChannel(ctx context.Context, c model.Channel) error {
	_, err := s.exec(ctx, s.db,
		`INSERT INTO channels(chat_id, name, handle) VALUES(?,?,?)
		 ON CONFLICT(chat_id) DO UPDATE SET name = excluded.name, handle = excluded.handle`,
		c.ChatID, c.Name, c.Handle,
	)
	if err != nil {
		return fmt.Errorf("upsert channel: %w", err)
	}
	return nil
}

func (s *Store) GetChannel(ctx context.Context, chatID int64) (model.Channel, error) {
	var c model.Channel
	err := s.queryRow(ctx, s.db, `SELECT chat_id, name, handle FROM channels WHERE chat_id = ?`, chatID).
		Scan(&c.ChatID, &c.Name, &c.Handle)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Channel{}, ErrNotFound
	}
	return c, err
}

func (s *Store) ListChannels(ctx context.Context) ([]model.Channel, error) {
	return s.listChannels(ctx, `SELECT chat_id, name, handle FROM channels ORDER BY chat_id`)
}

// DeleteChannel removes the channel and its assignments.
func (s *Store) DeleteChannel(ctx context.Context, chatID int64) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := s.exec(ctx, tx, `DELETE FROM assignments WHERE chat_id = ?`, chatID); err != nil {
			return err
		}
		res, err := s.exec(ctx, tx, `DELETE FROM channels WHERE chat_id = ?`, chatID)
		if err != nil {
			return err
		}
		return requireRow(res)
	})
}

// ReplaceAssignments sets the post's channel set to exactly chatIDs.
func (s *Store) ReplaceAssignments(ctx context.Context, postID int64, chatIDs []int64) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := s.exec(ctx, tx, `DELETE FROM assignments WHERE post_id = ?`, postID); err != nil {
			return err
		}
		for _, id := range chatIDs {
			_, err := s.exec(ctx, tx,
				`INSERT INTO assignments(post_id, chat_id) VALUES(?,?) ON CONFLICT(post_id, chat_id) DO NOTHING`, postID, id)
			if err != nil {
				return fmt.Errorf("assign %d: %w", id, err)
			}
		}
		return nil
	})
}

// ListAssignments returns the assigned chat ids, ascending.
func (s *Store) ListAssignments(ctx context.Context, postID int64) ([]int64, error) {
	rows, err := s.query(ctx, s.db, `SELECT chat_id FROM assignments WHERE post_id = ? ORDER BY chat_id`, postID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// ListAssignedChannels joins assignments with known channels.
func (s *Store) ListAssignedChannels(ctx context.Context, postID int64) ([]model.Channel, error) {
	return s.listChannels(ctx,
		`SELECT c.chat_id, c.name, c.handle FROM assignments a
		 JOIN channels c ON c.chat_id = a.chat_id
		 WHERE a.post_id = ? ORDER BY c.chat_id`, postID)
}

func (s *Store) listChannels(ctx context.Context, q string, args ...any) ([]model.Channel, error) {
	rows, err := s.query(ctx, s.db, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Channel
	for rows.Next() {
		var c model.Channel
		if err := rows.Scan(&c.ChatID, &c.Name, &c.Handle); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
