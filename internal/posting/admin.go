package posting

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"postbot/internal/model"
	"postbot/internal/storage"
	"postbot/internal/task/scheduler"
)

// CreatePost stores a captured post with the default schedule and arms it.
func (s *Service) CreatePost(ctx context.Context, p model.Post) (model.Post, error) {
	p.Active = true
	if err := p.Validate(); err != nil {
		return model.Post{}, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	n, err := s.repo.CountActivePosts(ctx)
	if err != nil {
		return model.Post{}, fmt.Errorf("count posts: %w", err)
	}
	if limit := s.config().MaxPosts; n >= limit {
		return model.Post{}, fmt.Errorf("%w: at most %d active posts", ErrLimit, limit)
	}
	if err := s.repo.CreatePost(ctx, &p); err != nil {
		return model.Post{}, fmt.Errorf("create post: %w", err)
	}
	if err := s.repo.UpsertSchedule(ctx, model.DefaultSchedule(p.ID)); err != nil {
		return p, fmt.Errorf("create schedule: %w", err)
	}
	if err := s.Reschedule(ctx, p.ID); err != nil {
		return p, err
	}
	s.log.Info("post created", logxPost(p)...)
	return p, nil
}

// UpdateSchedule applies edit to the stored schedule, validates the result
// and re-arms the send job.
func (s *Service) UpdateSchedule(ctx context.Context, postID int64, edit func(*model.Schedule)) (model.Schedule, error) {
	if _, err := s.post(ctx, postID); err != nil {
		return model.Schedule{}, err
	}
	sched, err := s.repo.GetSchedule(ctx, postID)
	if errors.Is(err, storage.ErrNotFound) {
		sched = model.DefaultSchedule(postID)
	} else if err != nil {
		return model.Schedule{}, fmt.Errorf("load schedule: %w", err)
	}
	edit(&sched)
	sched.PostID = postID
	if err := sched.Validate(); err != nil {
		return model.Schedule{}, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if err := s.repo.UpsertSchedule(ctx, sched); err != nil {
		return model.Schedule{}, fmt.Errorf("save schedule: %w", err)
	}
	return sched, s.Reschedule(ctx, postID)
}

// AssignChannels replaces the channel set of the post. Every channel must be
// registered first.
func (s *Service) AssignChannels(ctx context.Context, postID int64, chatIDs []int64) ([]int64, error) {
	if _, err := s.post(ctx, postID); err != nil {
		return nil, err
	}
	ids := slices.Clone(chatIDs)
	slices.Sort(ids)
	ids = slices.Compact(ids)
	if limit := s.config().MaxChannelsPerPost; len(ids) > limit {
		return nil, fmt.Errorf("%w: at most %d channels per post", ErrLimit, limit)
	}
	for _, id := range ids {
		if _, err := s.repo.GetChannel(ctx, id); errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("%w: channel %d is not registered", ErrNotFound, id)
		} else if err != nil {
			return nil, fmt.Errorf("load channel %d: %w", id, err)
		}
	}
	if err := s.repo.ReplaceAssignments(ctx, postID, ids); err != nil {
		return nil, fmt.Errorf("save assignments: %w", err)
	}
	return ids, nil
}

// AddChannel registers a channel after checking the bot can post there.
func (s *Service) AddChannel(ctx context.Context, c model.Channel) (model.Channel, error) {
	if c.ChatID == 0 {
		return model.Channel{}, fmt.Errorf("%w: channel id is required", ErrInvalid)
	}
	m, err := s.gw.ChatMember(ctx, c.ChatID, s.gw.SelfID())
	if err != nil {
		return model.Channel{}, fmt.Errorf("%w: cannot read bot membership in %d: %v", ErrPermission, c.ChatID, err)
	}
	if !m.IsAdmin || !m.CanPost {
		return model.Channel{}, fmt.Errorf("%w: bot must be an admin allowed to post in %d", ErrPermission, c.ChatID)
	}
	if err := s.repo.UpsertChannel(ctx, c); err != nil {
		return model.Channel{}, fmt.Errorf("save channel: %w", err)
	}
	if !m.CanDelete {
		s.log.Warn("bot cannot delete messages in channel; retention will fail there", logxChannel(c)...)
	}
	return c, nil
}

// RemoveChannel drops the channel and its assignments.
func (s *Service) RemoveChannel(ctx context.Context, chatID int64) error {
	err := s.repo.DeleteChannel(ctx, chatID)
	if errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("%w: channel %d", ErrNotFound, chatID)
	}
	return err
}

func (s *Service) ActivatePost(ctx context.Context, postID int64) error {
	p, err := s.post(ctx, postID)
	if err != nil {
		return err
	}
	if p.Active {
		return nil
	}
	n, err := s.repo.CountActivePosts(ctx)
	if err != nil {
		return fmt.Errorf("count posts: %w", err)
	}
	if limit := s.config().MaxPosts; n >= limit {
		return fmt.Errorf("%w: at most %d active posts", ErrLimit, limit)
	}
	if err := s.repo.SetPostActive(ctx, postID, true); err != nil {
		return fmt.Errorf("activate post: %w", err)
	}
	return s.Reschedule(ctx, postID)
}

// DeactivatePost is the soft delete: the post stays stored and its pending
// messages still expire, but it never fires again.
func (s *Service) DeactivatePost(ctx context.Context, postID int64) error {
	if _, err := s.post(ctx, postID); err != nil {
		return err
	}
	if err := s.repo.SetPostActive(ctx, postID, false); err != nil {
		return fmt.Errorf("deactivate post: %w", err)
	}
	s.RemoveJobs(postID)
	return nil
}

// DeletePost removes the post with everything attached to it, including
// armed delete jobs. Published messages are left in place.
func (s *Service) DeletePost(ctx context.Context, postID int64) error {
	if _, err := s.post(ctx, postID); err != nil {
		return err
	}
	s.reg.CancelWhere(func(id scheduler.JobID) bool { return id.PostID == postID })
	if err := s.repo.DeletePost(ctx, postID); err != nil {
		return fmt.Errorf("delete post: %w", err)
	}
	return nil
}

func (s *Service) ListPosts(ctx context.Context, activeOnly bool) ([]model.Post, error) {
	return s.repo.ListPosts(ctx, activeOnly)
}

func (s *Service) ListChannels(ctx context.Context) ([]model.Channel, error) {
	return s.repo.ListChannels(ctx)
}

func (s *Service) PostDetail(ctx context.Context, postID int64) (PostDetail, error) {
	p, err := s.post(ctx, postID)
	if err != nil {
		return PostDetail{}, err
	}
	det := PostDetail{Post: p}
	if det.Schedule, err = s.repo.GetSchedule(ctx, postID); errors.Is(err, storage.ErrNotFound) {
		det.Schedule = model.DefaultSchedule(postID)
		det.Schedule.Enabled = false
	} else if err != nil {
		return PostDetail{}, fmt.Errorf("load schedule: %w", err)
	}
	if det.Channels, err = s.repo.ListAssignedChannels(ctx, postID); err != nil {
		return PostDetail{}, fmt.Errorf("load channels: %w", err)
	}
	pending, err := s.repo.ListPendingByPost(ctx, postID)
	if err != nil {
		return PostDetail{}, fmt.Errorf("load pending: %w", err)
	}
	det.Pending = len(pending)
	det.NextFire, det.Armed = s.reg.Next(scheduler.SendJob(postID))
	return det, nil
}

func (s *Service) post(ctx context.Context, postID int64) (model.Post, error) {
	p, err := s.repo.GetPost(ctx, postID)
	if errors.Is(err, storage.ErrNotFound) {
		return model.Post{}, fmt.Errorf("%w: post %d", ErrNotFound, postID)
	}
	if err != nil {
		return model.Post{}, fmt.Errorf("load post %d: %w", postID, err)
	}
	return p, nil
}
