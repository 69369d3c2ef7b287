package admin

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"postbot/internal/model"
	"postbot/internal/posting"
	"postbot/internal/task/scheduler"
	kit "postbot/internal/transport"
	"postbot/internal/transport/telegram/router"
	logx "postbot/pkg/logx"
)

func TestParseChannelRef(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in      string
		want    ChannelRef
		wantErr bool
	}{
		{in: "@my_channel", want: ChannelRef{Handle: "my_channel"}},
		{in: "t.me/news_room", want: ChannelRef{Handle: "news_room"}},
		{in: "https://t.me/news_room/", want: ChannelRef{Handle: "news_room"}},
		{in: " -1001234567890 ", want: ChannelRef{ChatID: -1001234567890}},
		{in: "12345", wantErr: true},
		{in: "@ab", wantErr: true},
		{in: "https://example.com/x", wantErr: true},
		{in: "", wantErr: true},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()
			got, err := ParseChannelRef(tt.in)
			if tt.wantErr {
				if !errors.Is(err, ErrBadChannelRef) {
					t.Fatalf("want ErrBadChannelRef, got %v (%+v)", err, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Fatalf("got %+v want %+v", got, tt.want)
			}
		})
	}
}

func TestPostFromContent(t *testing.T) {
	t.Parallel()
	now := time.Date(2024, 6, 3, 9, 30, 0, 0, time.UTC)

	msg := &kit.Message{ID: 11, ChatID: 500, Content: &kit.Content{
		Media: kit.MediaPhoto, FileID: "F1", Text: "\n  Summer sale  \nsecond line",
		Forward: true, OriginChatID: -100777, OriginMessageID: 42,
	}}
	p, ok := postFromContent(msg, now)
	if !ok {
		t.Fatalf("photo not captured")
	}
	if p.Name != "Summer sale" || p.Kind != model.KindPhoto || p.MediaRef != "F1" {
		t.Fatalf("post=%+v", p)
	}
	if p.OriginChatID != -100777 || p.OriginMessageID != 42 {
		t.Fatalf("origin=%d/%d", p.OriginChatID, p.OriginMessageID)
	}

	msg = &kit.Message{ID: 12, ChatID: 500, Content: &kit.Content{Media: kit.MediaSticker, FileID: "S1"}}
	p, ok = postFromContent(msg, now)
	if !ok || p.Name != "sticker 03/06 09:30" {
		t.Fatalf("sticker post=%+v ok=%v", p, ok)
	}
	if p.OriginChatID != 500 || p.OriginMessageID != 12 {
		t.Fatalf("origin should be the owner chat, got %d/%d", p.OriginChatID, p.OriginMessageID)
	}

	if _, ok := postFromContent(&kit.Message{Content: &kit.Content{Text: "   "}}, now); ok {
		t.Fatalf("blank text must not become a post")
	}
}

func TestDayNames(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in   model.Weekdays
		want string
	}{
		{model.AllWeekdays, "every day"},
		{model.WeekdaysOf(1, 3, 5), "Mon, Wed, Fri"},
		{model.WeekdaysOf(7), "Sun"},
		{0, "none"},
	}
	for _, tt := range tests {
		if got := dayNames(tt.in); got != tt.want {
			t.Fatalf("dayNames(%v)=%q want %q", tt.in, got, tt.want)
		}
	}
}

type fakeAdapter struct {
	mu    sync.Mutex
	texts []string
}

func (f *fakeAdapter) SendText(_ context.Context, to kit.ChatTarget, text string, _ *kit.SendOptions) (kit.MessageRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.texts = append(f.texts, text)
	return kit.MessageRef{ChatID: to.ChatID, MessageID: len(f.texts)}, nil
}
func (f *fakeAdapter) SendMedia(context.Context, kit.ChatTarget, kit.MediaKind, string, string, *kit.SendOptions) (kit.MessageRef, error) {
	return kit.MessageRef{}, nil
}
func (f *fakeAdapter) Forward(context.Context, kit.MessageRef, kit.ChatTarget) (kit.MessageRef, error) {
	return kit.MessageRef{}, nil
}
func (f *fakeAdapter) Pin(context.Context, kit.MessageRef, bool) error { return nil }
func (f *fakeAdapter) Delete(context.Context, kit.MessageRef) error    { return nil }
func (f *fakeAdapter) ChatMember(context.Context, int64, int64) (kit.Member, error) {
	return kit.Member{}, nil
}
func (f *fakeAdapter) SelfID() int64                                  { return 1 }
func (f *fakeAdapter) Start(context.Context, chan<- kit.Update) error { return nil }
func (f *fakeAdapter) Stop(context.Context) error                     { return nil }
func (f *fakeAdapter) EditText(context.Context, kit.MessageRef, string, *kit.SendOptions) error {
	return nil
}
func (f *fakeAdapter) AnswerCallback(context.Context, string, string) error { return nil }

func (f *fakeAdapter) ResolveChat(_ context.Context, ref string) (kit.ChatInfo, error) {
	if ref == "@news_room" {
		return kit.ChatInfo{ID: -100555, Title: "News Room", Username: "news_room"}, nil
	}
	return kit.ChatInfo{}, errors.New("chat not found")
}

func (f *fakeAdapter) last() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.texts) == 0 {
		return ""
	}
	return f.texts[len(f.texts)-1]
}

// fakePosts records calls; unset behavior returns zero values.
type fakePosts struct {
	mu       sync.Mutex
	sched    model.Schedule
	assigned []int64
	added    []model.Channel
	channels []model.Channel
	created  []model.Post
	deact    []int64
	deleted  []int64
	fired    []int64
	purged   []int64
	err      error
}

func (f *fakePosts) CreatePost(_ context.Context, p model.Post) (model.Post, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return model.Post{}, f.err
	}
	p.ID = int64(len(f.created) + 1)
	f.created = append(f.created, p)
	return p, nil
}

func (f *fakePosts) UpdateSchedule(_ context.Context, postID int64, edit func(*model.Schedule)) (model.Schedule, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return model.Schedule{}, f.err
	}
	if f.sched.PostID != postID {
		f.sched = model.DefaultSchedule(postID)
	}
	edit(&f.sched)
	return f.sched, nil
}

func (f *fakePosts) AssignChannels(_ context.Context, _ int64, chatIDs []int64) ([]int64, error) {
	f.assigned = chatIDs
	return chatIDs, f.err
}

func (f *fakePosts) AddChannel(_ context.Context, c model.Channel) (model.Channel, error) {
	f.added = append(f.added, c)
	return c, f.err
}

func (f *fakePosts) RemoveChannel(context.Context, int64) error { return f.err }
func (f *fakePosts) ActivatePost(context.Context, int64) error  { return f.err }

func (f *fakePosts) DeactivatePost(_ context.Context, id int64) error {
	f.deact = append(f.deact, id)
	return f.err
}

func (f *fakePosts) DeletePost(_ context.Context, id int64) error {
	f.deleted = append(f.deleted, id)
	return f.err
}

func (f *fakePosts) ListPosts(context.Context, bool) ([]model.Post, error) { return f.created, f.err }
func (f *fakePosts) ListChannels(context.Context) ([]model.Channel, error) { return f.channels, f.err }

func (f *fakePosts) PostDetail(_ context.Context, id int64) (posting.PostDetail, error) {
	if f.err != nil {
		return posting.PostDetail{}, f.err
	}
	return posting.PostDetail{Post: model.Post{ID: id, Name: "p"}, Schedule: model.DefaultSchedule(id)}, nil
}

func (f *fakePosts) TriggerManual(_ context.Context, id int64) (posting.SendResult, error) {
	f.fired = append(f.fired, id)
	return posting.SendResult{PostID: id, PostName: "p", Total: 2, Succeeded: 2}, f.err
}

func (f *fakePosts) DeleteAllNow(_ context.Context, id int64) (posting.ManualDeletion, error) {
	f.purged = append(f.purged, id)
	return posting.ManualDeletion{PostID: id}, f.err
}

func (f *fakePosts) Jobs() scheduler.Snapshot {
	return scheduler.Snapshot{Timezone: "UTC", Running: true, Entries: []scheduler.EntryInfo{
		{ID: scheduler.SendJob(1), Recurring: true, Spec: "CRON_TZ=UTC 0 9 * * *"},
		{ID: scheduler.DeleteJob(1, -1001, 5)},
		{ID: scheduler.DeleteJob(1, -1002, 6)},
	}}
}

func newTestHandler(posts *fakePosts) (*Handler, *fakeAdapter) {
	return New(posts, logx.Nop(), func() *time.Location { return time.UTC }), &fakeAdapter{}
}

func request(ad *fakeAdapter, args ...string) *router.Request {
	return &router.Request{
		Chat:    kit.ChatTarget{ChatID: 10},
		FromID:  10,
		Args:    args,
		Adapter: ad,
		Logger:  logx.Nop(),
	}
}

func TestScheduleCommand(t *testing.T) {
	t.Parallel()
	posts := &fakePosts{}
	h, ad := newTestHandler(posts)
	ctx := context.Background()

	if err := h.cmdSchedule(ctx, request(ad, "3", "18:45", "1,3,5", "12h")); err != nil {
		t.Fatalf("schedule: %v", err)
	}
	s := posts.sched
	if s.PostID != 3 || s.Hour != 18 || s.Minute != 45 || s.Days != model.WeekdaysOf(1, 3, 5) || s.RetentionHours != 12 {
		t.Fatalf("schedule=%+v", s)
	}
	if !strings.Contains(ad.last(), "Mon, Wed, Fri") {
		t.Fatalf("reply=%q", ad.last())
	}

	_ = h.cmdSchedule(ctx, request(ad, "3", "7:05"))
	if posts.sched.Days != model.WeekdaysOf(1, 3, 5) || posts.sched.Hour != 7 {
		t.Fatalf("time-only edit must keep days: %+v", posts.sched)
	}

	_ = h.cmdSchedule(ctx, request(ad, "3", "25:00"))
	if !strings.Contains(ad.last(), "invalid") {
		t.Fatalf("bad clock reply=%q", ad.last())
	}
	_ = h.cmdSchedule(ctx, request(ad, "3", "10:00", "all", "49"))
	if !strings.Contains(ad.last(), "retention") {
		t.Fatalf("bad retention reply=%q", ad.last())
	}
}

func TestToggleCommand(t *testing.T) {
	t.Parallel()
	posts := &fakePosts{}
	h, ad := newTestHandler(posts)

	_ = h.cmdToggle(context.Background(), request(ad, "2", "pin"))
	if !posts.sched.Pin || ad.last() != "pin: on" {
		t.Fatalf("pin=%v reply=%q", posts.sched.Pin, ad.last())
	}
	_ = h.cmdToggle(context.Background(), request(ad, "2", "enabled"))
	if posts.sched.Enabled || ad.last() != "enabled: off" {
		t.Fatalf("enabled=%v reply=%q", posts.sched.Enabled, ad.last())
	}
	_ = h.cmdToggle(context.Background(), request(ad, "2", "bogus"))
	if !strings.Contains(ad.last(), "usage") {
		t.Fatalf("reply=%q", ad.last())
	}
}

func TestAssignResolvesHandles(t *testing.T) {
	t.Parallel()
	posts := &fakePosts{channels: []model.Channel{{ChatID: -100111, Handle: "known"}}}
	h, ad := newTestHandler(posts)

	_ = h.cmdAssign(context.Background(), request(ad, "4", "@Known", "t.me/news_room", "-100999"))
	want := []int64{-100111, -100555, -100999}
	if len(posts.assigned) != len(want) {
		t.Fatalf("assigned=%v", posts.assigned)
	}
	for i := range want {
		if posts.assigned[i] != want[i] {
			t.Fatalf("assigned=%v want %v", posts.assigned, want)
		}
	}

	_ = h.cmdAssign(context.Background(), request(ad, "4", "@missing_one"))
	if !strings.Contains(ad.last(), "not found") {
		t.Fatalf("reply=%q", ad.last())
	}
}

func TestAddChannelUsesResolvedTitle(t *testing.T) {
	t.Parallel()
	posts := &fakePosts{}
	h, ad := newTestHandler(posts)

	_ = h.cmdAddChannel(context.Background(), request(ad, "@news_room"))
	_ = h.cmdAddChannel(context.Background(), request(ad, "-100222", "Deals", "Daily"))
	if len(posts.added) != 2 {
		t.Fatalf("added=%+v", posts.added)
	}
	if posts.added[0].Name != "News Room" || posts.added[0].ChatID != -100555 {
		t.Fatalf("first=%+v", posts.added[0])
	}
	if posts.added[1].Name != "Deals Daily" {
		t.Fatalf("second=%+v", posts.added[1])
	}

	posts.err = posting.ErrPermission
	_ = h.cmdAddChannel(context.Background(), request(ad, "-100333"))
	if !strings.Contains(ad.last(), "rights") {
		t.Fatalf("reply=%q", ad.last())
	}
}

func TestDeletePostSoftAndHard(t *testing.T) {
	t.Parallel()
	posts := &fakePosts{}
	h, ad := newTestHandler(posts)

	_ = h.cmdDeletePost(context.Background(), request(ad, "5"))
	_ = h.cmdDeletePost(context.Background(), request(ad, "6", "hard"))
	if len(posts.deact) != 1 || posts.deact[0] != 5 {
		t.Fatalf("deactivated=%v", posts.deact)
	}
	if len(posts.deleted) != 1 || posts.deleted[0] != 6 {
		t.Fatalf("deleted=%v", posts.deleted)
	}
}

func TestReportCallbacks(t *testing.T) {
	t.Parallel()
	posts := &fakePosts{}
	h, ad := newTestHandler(posts)
	ctx := context.Background()

	if err := h.cbResend(ctx, request(ad), "8"); err != nil {
		t.Fatalf("resend: %v", err)
	}
	if err := h.cbPurge(ctx, request(ad), "8"); err != nil {
		t.Fatalf("purge: %v", err)
	}
	if len(posts.fired) != 1 || len(posts.purged) != 1 {
		t.Fatalf("fired=%v purged=%v", posts.fired, posts.purged)
	}
	if err := h.cbResend(ctx, request(ad), "x"); err == nil {
		t.Fatalf("bad payload must fail")
	}
}

func TestCaptureCreatesPost(t *testing.T) {
	t.Parallel()
	posts := &fakePosts{}
	h, ad := newTestHandler(posts)

	req := request(ad)
	req.Update = kit.Update{Kind: kit.UpdateMessage, Message: &kit.Message{
		ID: 3, ChatID: 10, FromID: 10, Private: true,
		Content: &kit.Content{Text: "Morning digest\nbody"},
	}}
	if err := h.Capture(context.Background(), req); err != nil {
		t.Fatalf("capture: %v", err)
	}
	if len(posts.created) != 1 || posts.created[0].Name != "Morning digest" || posts.created[0].OwnerID != 10 {
		t.Fatalf("created=%+v", posts.created)
	}
	if !strings.Contains(ad.last(), "Post created") {
		t.Fatalf("reply=%q", ad.last())
	}

	posts.err = posting.ErrLimit
	_ = h.Capture(context.Background(), req)
	if !strings.Contains(ad.last(), "limit") {
		t.Fatalf("reply=%q", ad.last())
	}
}

func TestJobsFoldsDeleteJobs(t *testing.T) {
	t.Parallel()
	posts := &fakePosts{}
	h, ad := newTestHandler(posts)

	_ = h.cmdJobs(context.Background(), request(ad))
	out := ad.last()
	if !strings.Contains(out, "2 delete job(s)") || !strings.Contains(out, "CRON_TZ=UTC 0 9 * * *") {
		t.Fatalf("jobs=%q", out)
	}
}
