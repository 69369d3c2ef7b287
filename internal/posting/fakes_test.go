package posting

import (
	"context"
	"errors"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/stretchr/testify/require"

	"postbot/internal/model"
	"postbot/internal/storage"
	"postbot/internal/task/scheduler"
	"postbot/internal/transport"
	logx "postbot/pkg/logx"
)

var errGatewayDown = errors.New("chat not found")

type fakeGateway struct {
	mu       sync.Mutex
	nextID   int
	sent     map[int64]int
	forwards int
	deleted  []transport.MessageRef
	failSend map[int64]bool
	failDel  map[int64]bool
	failFwd  bool
	failPin  bool
	pinned   int
	member   transport.Member
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		nextID:   100,
		sent:     map[int64]int{},
		failSend: map[int64]bool{},
		failDel:  map[int64]bool{},
		member:   transport.Member{Role: "administrator", IsAdmin: true, CanPost: true, CanDelete: true},
	}
}

func (g *fakeGateway) send(to transport.ChatTarget) (transport.MessageRef, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.failSend[to.ChatID] {
		return transport.MessageRef{}, errGatewayDown
	}
	g.nextID++
	g.sent[to.ChatID]++
	return transport.MessageRef{ChatID: to.ChatID, MessageID: g.nextID}, nil
}

func (g *fakeGateway) SendText(_ context.Context, to transport.ChatTarget, _ string, _ *transport.SendOptions) (transport.MessageRef, error) {
	return g.send(to)
}

func (g *fakeGateway) SendMedia(_ context.Context, to transport.ChatTarget, _ transport.MediaKind, _, _ string, _ *transport.SendOptions) (transport.MessageRef, error) {
	return g.send(to)
}

func (g *fakeGateway) Forward(_ context.Context, _ transport.MessageRef, to transport.ChatTarget) (transport.MessageRef, error) {
	g.mu.Lock()
	fail := g.failFwd
	if !fail {
		g.forwards++
	}
	g.mu.Unlock()
	if fail {
		return transport.MessageRef{}, errors.New("message can't be forwarded")
	}
	return g.send(to)
}

func (g *fakeGateway) Pin(context.Context, transport.MessageRef, bool) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.failPin {
		return errors.New("not enough rights to manage pinned messages")
	}
	g.pinned++
	return nil
}

func (g *fakeGateway) Delete(_ context.Context, ref transport.MessageRef) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.failDel[ref.ChatID] {
		return errors.New("message can't be deleted")
	}
	g.deleted = append(g.deleted, ref)
	return nil
}

func (g *fakeGateway) ChatMember(context.Context, int64, int64) (transport.Member, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.member, nil
}

func (g *fakeGateway) SelfID() int64 { return 42 }

func (g *fakeGateway) deletedCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.deleted)
}

type armed struct {
	at time.Time
	fn scheduler.Job
}

// fakeRegistry keeps jobs without timers; tests fire them by hand.
type fakeRegistry struct {
	mu        sync.Mutex
	recurring map[scheduler.JobID]cron.Schedule
	once      map[scheduler.JobID]armed
	now       time.Time
}

func newFakeRegistry(now time.Time) *fakeRegistry {
	return &fakeRegistry{recurring: map[scheduler.JobID]cron.Schedule{}, once: map[scheduler.JobID]armed{}, now: now}
}

func (r *fakeRegistry) ScheduleRecurring(id scheduler.JobID, sched cron.Schedule, _ time.Duration, _ scheduler.Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.once, id)
	r.recurring[id] = sched
	return nil
}

func (r *fakeRegistry) ScheduleOnce(id scheduler.JobID, at time.Time, _ time.Duration, fn scheduler.Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.recurring, id)
	r.once[id] = armed{at: at, fn: fn}
	return nil
}

func (r *fakeRegistry) Cancel(id scheduler.JobID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, a := r.recurring[id]
	_, b := r.once[id]
	delete(r.recurring, id)
	delete(r.once, id)
	return a || b
}

func (r *fakeRegistry) CancelWhere(match func(scheduler.JobID) bool) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for id := range r.recurring {
		if match(id) {
			delete(r.recurring, id)
			n++
		}
	}
	for id := range r.once {
		if match(id) {
			delete(r.once, id)
			n++
		}
	}
	return n
}

func (r *fakeRegistry) Exists(id scheduler.JobID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, a := r.recurring[id]
	_, b := r.once[id]
	return a || b
}

func (r *fakeRegistry) Next(id scheduler.JobID) (time.Time, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.recurring[id]; ok {
		return s.Next(r.now), true
	}
	if o, ok := r.once[id]; ok {
		return o.at, true
	}
	return time.Time{}, false
}

func (r *fakeRegistry) Snapshot() scheduler.Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	var snap scheduler.Snapshot
	for id := range r.recurring {
		snap.Entries = append(snap.Entries, scheduler.EntryInfo{ID: id, Recurring: true})
	}
	for id, o := range r.once {
		snap.Entries = append(snap.Entries, scheduler.EntryInfo{ID: id, Next: o.at})
	}
	return snap
}

// deleteJobs returns the armed delete jobs ordered by channel.
func (r *fakeRegistry) deleteJobs() []scheduler.JobID {
	r.mu.Lock()
	defer r.mu.Unlock()
	var ids []scheduler.JobID
	for id := range r.once {
		if id.Kind == scheduler.JobDelete {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].ChannelID < ids[j].ChannelID })
	return ids
}

func (r *fakeRegistry) job(id scheduler.JobID) scheduler.Job {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.once[id].fn
}

type fakeReporter struct {
	mu        sync.Mutex
	sends     []SendResult
	completes []model.DeletionStats
	cleaned   [][]model.ReportMessage
	manual    []ManualDeletion
	nextID    int
}

func (r *fakeReporter) ReportSend(_ context.Context, res SendResult) ([]transport.MessageRef, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sends = append(r.sends, res)
	r.nextID++
	return []transport.MessageRef{{ChatID: 7, MessageID: 9000 + r.nextID}}, nil
}

func (r *fakeReporter) ReportDeletionComplete(_ context.Context, st model.DeletionStats, reports []model.ReportMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.completes = append(r.completes, st)
	r.cleaned = append(r.cleaned, reports)
	return nil
}

func (r *fakeReporter) ReportManualDeletion(_ context.Context, md ManualDeletion, reports []model.ReportMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.manual = append(r.manual, md)
	r.cleaned = append(r.cleaned, reports)
	return nil
}

type fixture struct {
	svc   *Service
	store *storage.Store
	gw    *fakeGateway
	reg   *fakeRegistry
	rep   *fakeReporter
	now   time.Time
}

// flakyRepo fails the next failResolve deletion records.
type flakyRepo struct {
	Repository
	failResolve atomic.Int32
}

func (r *flakyRepo) ResolveDeletion(ctx context.Context, d model.Delivery, o storage.DeletionOutcome) (bool, error) {
	if r.failResolve.Add(-1) >= 0 {
		return false, errors.New("database is locked")
	}
	return r.Repository.ResolveDeletion(ctx, d, o)
}

func newFixture(t *testing.T, wrap ...func(Repository) Repository) *fixture {
	t.Helper()
	st, err := storage.Open(context.Background(), storage.Config{Driver: "sqlite", Path: ":memory:"}, logx.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	var repo Repository = st
	for _, w := range wrap {
		repo = w(repo)
	}

	now := time.Date(2024, 6, 3, 9, 0, 0, 0, time.UTC)
	f := &fixture{store: st, gw: newFakeGateway(), reg: newFakeRegistry(now), rep: &fakeReporter{}, now: now}
	f.svc = New(Deps{
		Repo:     repo,
		Registry: f.reg,
		Gateway:  f.gw,
		Reporter: f.rep,
		Log:      logx.Nop(),
		Now:      func() time.Time { return now },
	}, Config{Concurrency: 4})
	return f
}

// postWithChannels creates a text post assigned to the given channels.
func (f *fixture) postWithChannels(t *testing.T, name string, chatIDs ...int64) model.Post {
	t.Helper()
	ctx := context.Background()
	p, err := f.svc.CreatePost(ctx, model.Post{Name: name, Kind: model.KindText, Text: "hi " + name, OwnerID: 1})
	require.NoError(t, err)
	for _, id := range chatIDs {
		_, err := f.svc.AddChannel(ctx, model.Channel{ChatID: id, Name: "ch" + strconv.FormatInt(id, 10)})
		require.NoError(t, err)
	}
	_, err = f.svc.AssignChannels(ctx, p.ID, chatIDs)
	require.NoError(t, err)
	return p
}
