package storage

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"postbot/internal/model"
	logx "postbot/pkg/logx"
)

// setupTestDB opens an in-memory SQLite store with migrations applied.
func setupTestDB(t *testing.T) *Store {
	t.Helper()
	st, err := Open(context.Background(), Config{Driver: "sqlite", Path: ":memory:"}, logx.Nop())
	require.NoError(t, err, "open test store")
	t.Cleanup(func() { require.NoError(t, st.Close()) })
	return st
}

func createPost(t *testing.T, st *Store, name string) model.Post {
	t.Helper()
	p := model.Post{Name: name, Kind: model.KindText, Text: "hello " + name, Active: true, OwnerID: 1}
	require.NoError(t, st.CreatePost(context.Background(), &p))
	require.NotZero(t, p.ID)
	return p
}

func TestRebind(t *testing.T) {
	t.Parallel()
	pg := &Store{dialect: DialectPostgres}
	lite := &Store{dialect: DialectSQLite}
	q := `UPDATE x SET a = ? WHERE b = ? AND c = ?`
	assert.Equal(t, `UPDATE x SET a = $1 WHERE b = $2 AND c = $3`, pg.rebind(q))
	assert.Equal(t, q, lite.rebind(q))
}

func TestMigrateIsIdempotent(t *testing.T) {
	st := setupTestDB(t)
	require.NoError(t, st.migrate())
}

func TestPostAndScheduleRoundTrip(t *testing.T) {
	st := setupTestDB(t)
	ctx := context.Background()

	p := createPost(t, st, "morning")
	got, err := st.GetPost(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "morning", got.Name)
	assert.Equal(t, model.KindText, got.Kind)
	assert.True(t, got.Active)

	sc := model.DefaultSchedule(p.ID)
	sc.Days = model.WeekdaysOf(1, 3, 5)
	sc.Hour, sc.Minute = 7, 30
	require.NoError(t, st.UpsertSchedule(ctx, sc))

	sc.Pin = true
	require.NoError(t, st.UpsertSchedule(ctx, sc))

	loaded, err := st.GetSchedule(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, sc, loaded)

	_, err = st.GetSchedule(ctx, 999)
	assert.ErrorIs(t, err, ErrNotFound)

	n, err := st.CountActivePosts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	require.NoError(t, st.SetPostActive(ctx, p.ID, false))
	active, err := st.ListPosts(ctx, true)
	require.NoError(t, err)
	assert.Empty(t, active)
}

func TestAssignmentsReplace(t *testing.T) {
	st := setupTestDB(t)
	ctx := context.Background()
	p := createPost(t, st, "a")

	for _, c := range []model.Channel{{ChatID: -1001, Name: "A"}, {ChatID: -1002, Name: "B"}, {ChatID: -1003, Name: "C"}} {
		require.NoError(t, st.UpsertChannel(ctx, c))
	}

	require.NoError(t, st.ReplaceAssignments(ctx, p.ID, []int64{-1001, -1003}))
	require.NoError(t, st.ReplaceAssignments(ctx, p.ID, []int64{-1002, -1001, -1001}))

	ids, err := st.ListAssignments(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, []int64{-1002, -1001}, ids)

	require.NoError(t, st.DeleteChannel(ctx, -1002))
	chans, err := st.ListAssignedChannels(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, chans, 1)
	assert.Equal(t, "A", chans[0].Name)

	assert.ErrorIs(t, st.DeleteChannel(ctx, -1002), ErrNotFound)
}

func TestResolveDeletionCountsOnce(t *testing.T) {
	st := setupTestDB(t)
	ctx := context.Background()
	p := createPost(t, st, "r")
	fired := time.Date(2026, 3, 2, 9, 0, 0, 123456789, time.UTC)
	occ := model.NewOccurrence(p.ID, fired)

	d := model.Delivery{PostID: p.ID, FiredAt: occ.FiredAt, ChannelID: -1001, MessageID: 55, DeleteAt: fired.Add(2 * time.Hour)}
	require.NoError(t, st.InsertDelivery(ctx, &d))

	got, err := st.GetDelivery(ctx, occ, -1001, 55)
	require.NoError(t, err)
	assert.True(t, got.Pending())
	assert.Equal(t, occ.FiredAt, got.FiredAt)

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := st.ResolveDeletion(ctx, d, DeletionOutcome{PostName: "r", Status: model.DeliveryDeleted})
			assert.NoError(t, err)
			if ok {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, wins)

	pending, err := st.CountPending(ctx, occ)
	require.NoError(t, err)
	assert.Zero(t, pending)

	stats, err := st.GetDeletionStats(ctx, occ)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Total)
	assert.Equal(t, 1, stats.Deleted, "losers record nothing")
	assert.Zero(t, stats.Failed)
}

func TestResolveDeletionStatsAndLatches(t *testing.T) {
	st := setupTestDB(t)
	ctx := context.Background()
	p := createPost(t, st, "p")
	occ := model.NewOccurrence(p.ID, time.Now())

	ds := make([]model.Delivery, 3)
	for i := range ds {
		ds[i] = model.Delivery{PostID: p.ID, FiredAt: occ.FiredAt, ChannelID: int64(-1001 - i), MessageID: 10 + i}
		require.NoError(t, st.InsertDelivery(ctx, &ds[i]))
	}

	_, err := st.ResolveDeletion(ctx, ds[0], DeletionOutcome{PostName: "p", Status: model.DeliveryDeleted})
	require.NoError(t, err)
	_, err = st.ResolveDeletion(ctx, ds[1], DeletionOutcome{PostName: "p", Status: model.DeliveryFailed, Reason: "A: message not found"})
	require.NoError(t, err)

	early, err := st.AcquireCompleted(ctx, occ)
	require.NoError(t, err)
	assert.False(t, early, "one delivery still pending")

	_, err = st.ResolveDeletion(ctx, ds[2], DeletionOutcome{PostName: "p", Status: model.DeliveryFailed, Reason: "B: forbidden"})
	require.NoError(t, err)

	stats, err := st.GetDeletionStats(ctx, occ)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Total)
	assert.Equal(t, 1, stats.Deleted)
	assert.Equal(t, 2, stats.Failed)
	assert.Equal(t, []string{"A: message not found", "B: forbidden"}, stats.Reasons)

	first, err := st.AcquireCompleted(ctx, occ)
	require.NoError(t, err)
	second, err := st.AcquireCompleted(ctx, occ)
	require.NoError(t, err)
	assert.True(t, first)
	assert.False(t, second)

	again, err := st.AcquireNotified(ctx, occ, "p")
	require.NoError(t, err)
	assert.False(t, again, "completed latch already taken")

	fresh := model.NewOccurrence(p.ID+100, time.Now())
	ok, err := st.AcquireCompleted(ctx, fresh)
	require.NoError(t, err)
	assert.False(t, ok, "no stats row means nothing to complete")
	ok, err = st.AcquireNotified(ctx, fresh, "q")
	require.NoError(t, err)
	assert.True(t, ok, "missing stats row is created and acquired")
}

func TestReportMessages(t *testing.T) {
	st := setupTestDB(t)
	ctx := context.Background()
	occ := model.NewOccurrence(3, time.Now())

	for _, m := range []model.ReportMessage{
		{PostID: 3, FiredAt: occ.FiredAt, ChatID: 20, MessageID: 2},
		{PostID: 3, FiredAt: occ.FiredAt, ChatID: 10, MessageID: 1},
		{PostID: 3, FiredAt: occ.FiredAt, ChatID: 10, MessageID: 1},
	} {
		require.NoError(t, st.PutReportMessage(ctx, m))
	}
	msgs, err := st.ListReportMessages(ctx, occ)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, int64(10), msgs[0].ChatID)

	require.NoError(t, st.DeleteReportMessages(ctx, occ))
	msgs, err = st.ListReportMessages(ctx, occ)
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestDeletePostCascades(t *testing.T) {
	st := setupTestDB(t)
	ctx := context.Background()
	p := createPost(t, st, "gone")
	require.NoError(t, st.UpsertSchedule(ctx, model.DefaultSchedule(p.ID)))
	require.NoError(t, st.ReplaceAssignments(ctx, p.ID, []int64{-1}))
	d := model.Delivery{PostID: p.ID, FiredAt: time.Now(), ChannelID: -1, MessageID: 1}
	require.NoError(t, st.InsertDelivery(ctx, &d))

	require.NoError(t, st.DeletePost(ctx, p.ID))

	_, err := st.GetPost(ctx, p.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	pending, err := st.ListPendingByPost(ctx, p.ID)
	require.NoError(t, err)
	assert.Empty(t, pending)
}
