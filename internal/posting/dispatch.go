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
	"postbot/internal/transport"
	logx "postbot/pkg/logx"
)

// Dispatcher publishes a post to all of its channels.
type Dispatcher struct {
	repo    Repository
	gw      transport.Gateway
	rep     Reporter
	bus     eventbus.Bus
	tracker *Tracker
	log     logx.Logger
	cfg     func() Config
	now     func() time.Time
}

// Fire publishes the post once. A per-channel failure never affects the
// other channels; it is recorded in the result. Fire returns ErrAborted when
// there is nothing to publish, and sends no report in that case.
func (d *Dispatcher) Fire(ctx context.Context, postID int64, manual bool) (SendResult, error) {
	log := d.log.With(logx.Int64("post_id", postID), logx.Bool("manual", manual))
	cfg := d.cfg()

	post, sched, channels, err := d.load(ctx, postID, manual)
	if err != nil {
		if errors.Is(err, ErrAborted) {
			log.Info("fire aborted", logx.Err(err))
		}
		return SendResult{}, err
	}

	firedAt := model.NewOccurrence(post.ID, d.now()).FiredAt
	res := SendResult{
		PostID:    post.ID,
		PostName:  post.Name,
		FiredAt:   firedAt,
		Manual:    manual,
		Retention: sched.Retention(),
		Total:     len(channels),
		Outcomes:  make([]ChannelOutcome, len(channels)),
	}
	deliveries := make([]*model.Delivery, len(channels))

	// each goroutine owns one index of Outcomes and deliveries
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.Concurrency)
	for i, ch := range channels {
		g.Go(func() error {
			res.Outcomes[i], deliveries[i] = d.publish(gctx, cfg, post, sched, ch, firedAt)
			return nil
		})
	}
	_ = g.Wait()

	for i, o := range res.Outcomes {
		if !o.OK() {
			res.Failed++
			continue
		}
		res.Succeeded++
		if dl := deliveries[i]; dl != nil && !dl.DeleteAt.IsZero() {
			if err := d.tracker.Arm(*dl); err != nil {
				log.Warn("delete job not armed", logx.Int64("chat_id", dl.ChannelID), logx.Err(err))
			}
		}
	}
	log.Info("post fired",
		logx.String("post", post.Name),
		logx.Int("total", res.Total),
		logx.Int("ok", res.Succeeded),
		logx.Int("failed", res.Failed),
	)

	d.report(ctx, log, res)
	if d.bus != nil {
		d.bus.Publish(eventbus.Event{Type: eventbus.PostSent, Data: res})
	}
	return res, nil
}

func (d *Dispatcher) load(ctx context.Context, postID int64, manual bool) (model.Post, model.Schedule, []model.Channel, error) {
	post, err := d.repo.GetPost(ctx, postID)
	if errors.Is(err, storage.ErrNotFound) {
		return model.Post{}, model.Schedule{}, nil, fmt.Errorf("%w: post %d not found", ErrAborted, postID)
	}
	if err != nil {
		return model.Post{}, model.Schedule{}, nil, fmt.Errorf("load post %d: %w", postID, err)
	}
	if !post.Active {
		return model.Post{}, model.Schedule{}, nil, fmt.Errorf("%w: post %d is inactive", ErrAborted, postID)
	}

	channels, err := d.repo.ListAssignedChannels(ctx, postID)
	if err != nil {
		return model.Post{}, model.Schedule{}, nil, fmt.Errorf("load channels %d: %w", postID, err)
	}
	if len(channels) == 0 {
		return model.Post{}, model.Schedule{}, nil, fmt.Errorf("%w: post %d has no channels", ErrAborted, postID)
	}

	sched, err := d.repo.GetSchedule(ctx, postID)
	if errors.Is(err, storage.ErrNotFound) {
		return model.Post{}, model.Schedule{}, nil, fmt.Errorf("%w: post %d has no schedule", ErrAborted, postID)
	}
	if err != nil {
		return model.Post{}, model.Schedule{}, nil, fmt.Errorf("load schedule %d: %w", postID, err)
	}
	if !sched.Enabled && !manual {
		return model.Post{}, model.Schedule{}, nil, fmt.Errorf("%w: schedule of post %d is disabled", ErrAborted, postID)
	}
	return post, sched, channels, nil
}

// publish sends to one channel, pins when asked, and records the delivery.
func (d *Dispatcher) publish(ctx context.Context, cfg Config, post model.Post, sched model.Schedule, ch model.Channel, firedAt time.Time) (ChannelOutcome, *model.Delivery) {
	out := ChannelOutcome{ChatID: ch.ChatID, Label: ch.Label()}
	log := d.log.With(logx.Int64("post_id", post.ID), logx.Int64("chat_id", ch.ChatID))

	sctx, cancel := context.WithTimeout(ctx, cfg.SendTimeout)
	defer cancel()

	ref, forwarded, err := d.deliver(sctx, post, sched, ch)
	if err != nil {
		out.Err = err.Error()
		log.Warn("channel send failed", logx.Err(err))
		return out, nil
	}
	out.MessageID, out.Forwarded = ref.MessageID, forwarded

	if sched.Pin {
		if err := d.gw.Pin(sctx, ref, true); err != nil {
			out.PinErr = err.Error()
			log.Warn("pin failed", logx.Int("message_id", ref.MessageID), logx.Err(err))
		}
	}

	dl := &model.Delivery{
		PostID:    post.ID,
		FiredAt:   firedAt,
		ChannelID: ch.ChatID,
		MessageID: ref.MessageID,
		Status:    model.DeliveryPending,
	}
	if r := sched.Retention(); r > 0 {
		dl.DeleteAt = firedAt.Add(r)
	}
	// the send already happened; a lost row only costs the retention
	if err := d.repo.InsertDelivery(context.WithoutCancel(ctx), dl); err != nil {
		log.Error("delivery not recorded", logx.Int("message_id", ref.MessageID), logx.Err(err))
		return out, nil
	}
	return out, dl
}

// deliver reforwards the origin message when preferred and falls back to
// sending a copy of the stored content.
func (d *Dispatcher) deliver(ctx context.Context, post model.Post, sched model.Schedule, ch model.Channel) (transport.MessageRef, bool, error) {
	to := transport.ChatTarget{ChatID: ch.ChatID}
	var fwdErr error
	if sched.PreferForward && post.HasOrigin() {
		origin := transport.MessageRef{ChatID: post.OriginChatID, MessageID: post.OriginMessageID}
		ref, err := d.gw.Forward(ctx, origin, to)
		if err == nil {
			return ref, true, nil
		}
		fwdErr = err
	}

	ref, err := d.sendCopy(ctx, post, to)
	if err != nil && fwdErr != nil {
		return transport.MessageRef{}, false, fmt.Errorf("forward: %v; send: %w", fwdErr, err)
	}
	return ref, false, err
}

func (d *Dispatcher) sendCopy(ctx context.Context, post model.Post, to transport.ChatTarget) (transport.MessageRef, error) {
	switch post.Kind {
	case model.KindText:
		return d.gw.SendText(ctx, to, post.Text, nil)
	case model.KindPhoto, model.KindVideo, model.KindAudio, model.KindDocument,
		model.KindAnimation, model.KindSticker, model.KindVoice:
		caption := post.Text
		if !post.Kind.HasCaption() {
			caption = ""
		}
		return d.gw.SendMedia(ctx, to, mediaKind(post.Kind), post.MediaRef, caption, nil)
	default:
		return transport.MessageRef{}, fmt.Errorf("unsupported content kind %q", post.Kind)
	}
}

func mediaKind(k model.ContentKind) transport.MediaKind {
	switch k {
	case model.KindPhoto:
		return transport.MediaPhoto
	case model.KindVideo:
		return transport.MediaVideo
	case model.KindAudio:
		return transport.MediaAudio
	case model.KindDocument:
		return transport.MediaDocument
	case model.KindAnimation:
		return transport.MediaAnimation
	case model.KindSticker:
		return transport.MediaSticker
	case model.KindVoice:
		return transport.MediaVoice
	default:
		return ""
	}
}

// report sends the summary and keeps every admin copy for later cleanup.
func (d *Dispatcher) report(ctx context.Context, log logx.Logger, res SendResult) {
	if d.rep == nil {
		return
	}
	refs, err := d.rep.ReportSend(ctx, res)
	if err != nil {
		log.Warn("send report incomplete", logx.Err(err))
	}
	for _, ref := range refs {
		m := model.ReportMessage{PostID: res.PostID, FiredAt: res.FiredAt, ChatID: ref.ChatID, MessageID: ref.MessageID}
		if err := d.repo.PutReportMessage(ctx, m); err != nil {
			log.Warn("report message not stored", logx.Int64("chat_id", ref.ChatID), logx.Err(err))
		}
	}
}
