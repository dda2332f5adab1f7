package supervisor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rushteam/bookrank/core"
	"github.com/rushteam/bookrank/store"
	"github.com/rushteam/bookrank/taste"
)

var testNow = time.Date(2026, 5, 4, 8, 0, 0, 0, time.UTC)

type activitySource struct {
	mu       sync.Mutex
	activity map[int64]core.UserActivity
	failing  map[int64]bool
	reviews  []core.ReviewWithKeywords
	users    []int64
}

func (a *activitySource) GetUserActivity(_ context.Context, userID int64) (core.UserActivity, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.failing[userID] {
		return core.UserActivity{}, errors.New("activity unavailable")
	}
	return a.activity[userID], nil
}

func (a *activitySource) GetRecentReviews(_ context.Context, userIDs []int64, since time.Time) ([]core.ReviewWithKeywords, error) {
	want := make(map[int64]bool, len(userIDs))
	for _, id := range userIDs {
		want[id] = true
	}
	var out []core.ReviewWithKeywords
	for _, r := range a.reviews {
		if want[r.UserID] && !r.CreatedAt.Before(since) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (a *activitySource) ListActiveUsers(context.Context) ([]int64, error) {
	return a.users, nil
}

func bookmarks(genres ...string) core.UserActivity {
	items := make([]core.ReviewActivity, 0, len(genres))
	for i, g := range genres {
		items = append(items, core.ReviewActivity{ReviewID: int64(i + 1), Genre: g, OccurredAt: testNow})
	}
	return core.UserActivity{Bookmarked: items}
}

func newEngine(t *testing.T, src taste.ActivitySource) *taste.Engine {
	t.Helper()
	kv := store.NewMemoryStore(store.WithClock(func() time.Time { return testNow }))
	t.Cleanup(func() { _ = kv.Close() })
	c, err := taste.NewCache(kv, taste.DefaultConfig(), time.Minute)
	require.NoError(t, err)
	t.Cleanup(c.Close)
	return taste.NewEngine(src, c, taste.DefaultConfig(), zerolog.Nop(), taste.WithClock(func() time.Time { return testNow }))
}

func TestBatchPasses_EndToEnd(t *testing.T) {
	src := &activitySource{
		activity: map[int64]core.UserActivity{
			1: bookmarks("fantasy"),
			2: bookmarks("fantasy", "romance"),
			3: bookmarks("horror"),
		},
		failing: map[int64]bool{5: true},
		reviews: []core.ReviewWithKeywords{
			{ReviewID: 10, UserID: 2, Keywords: []string{"dragons"}, CreatedAt: testNow.Add(-time.Hour)},
			{ReviewID: 11, UserID: 2, Keywords: []string{"dragons"}, CreatedAt: testNow.Add(-2 * time.Hour)},
		},
		users: []int64{1, 2, 3, 4, 5},
	}
	engine := newEngine(t, src)
	ctx := context.Background()

	profile := NewTasteProfileService(engine, BatchConfig{Parallelism: 2}, zerolog.Nop())
	rep, err := profile.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(5), rep.Success)

	similar, err := engine.SimilarUsers(ctx, 1)
	require.NoError(t, err)
	require.Len(t, similar, 1)
	assert.Equal(t, int64(2), similar[0].UserID)

	circles := NewReviewCircleService(engine, nil, BatchConfig{Parallelism: 2}, zerolog.Nop())
	rep, err = circles.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), rep.Success)
	assert.Equal(t, int64(3), rep.Skipped)
	assert.Zero(t, rep.Failure)

	circle, err := engine.ReviewCircle(ctx, 1, core.Window24h)
	require.NoError(t, err)
	require.Len(t, circle.Topics, 1)
	assert.Equal(t, "dragons", circle.Topics[0].Keyword)
	assert.Equal(t, 2, circle.Topics[0].ReviewCount)
}

func TestTasteProfile_UserWithExpiredActivityLeavesPopulation(t *testing.T) {
	src := &activitySource{
		activity: map[int64]core.UserActivity{
			1: bookmarks("fantasy"),
			2: bookmarks("fantasy"),
		},
		users: []int64{1, 2},
	}
	engine := newEngine(t, src)
	ctx := context.Background()
	profile := NewTasteProfileService(engine, BatchConfig{Parallelism: 2}, zerolog.Nop())

	_, err := profile.RunOnce(ctx)
	require.NoError(t, err)
	similar, err := engine.SimilarUsers(ctx, 1)
	require.NoError(t, err)
	require.Len(t, similar, 1)

	src.mu.Lock()
	src.activity[2] = core.UserActivity{}
	src.mu.Unlock()

	_, err = profile.RunOnce(ctx)
	require.NoError(t, err)

	similar, err = engine.SimilarUsers(ctx, 1)
	require.NoError(t, err)
	assert.Empty(t, similar)
	similar, err = engine.SimilarUsers(ctx, 2)
	require.NoError(t, err)
	assert.Empty(t, similar)
}

// fakeEngine 只实现计数，用于验证失败隔离。
type fakeEngine struct {
	mu        sync.Mutex
	users     []int64
	failUsers map[int64]bool
	refreshed []int64
}

func (f *fakeEngine) ActiveUsers(context.Context) ([]int64, error) { return f.users, nil }

func (f *fakeEngine) RefreshVector(_ context.Context, userID int64) (core.UserTasteVector, error) {
	if f.failUsers[userID] {
		return core.UserTasteVector{}, errors.New("boom")
	}
	return core.UserTasteVector{UserID: userID, Features: map[string]float64{"genre:x": 1}}, nil
}

func (f *fakeEngine) Vectors(context.Context, []int64) []core.UserTasteVector { return nil }

func (f *fakeEngine) RefreshSimilarUsers(_ context.Context, userID int64, _ []core.UserTasteVector) ([]core.SimilarUser, error) {
	f.mu.Lock()
	f.refreshed = append(f.refreshed, userID)
	f.mu.Unlock()
	if f.failUsers[userID] {
		return nil, errors.New("boom")
	}
	return nil, nil
}

func (f *fakeEngine) SimilarUsers(_ context.Context, userID int64) ([]core.SimilarUser, error) {
	if f.failUsers[userID] {
		return nil, errors.New("boom")
	}
	return []core.SimilarUser{{UserID: userID + 100, SimilarityScore: 0.5}}, nil
}

func (f *fakeEngine) RefreshReviewCircle(_ context.Context, userID int64, w core.Window) (core.ReviewCircle, error) {
	return core.ReviewCircle{UserID: userID, Window: w}, nil
}

func TestTasteProfileService_FailuresDoNotAbortPass(t *testing.T) {
	f := &fakeEngine{users: []int64{1, 2, 3, 4}, failUsers: map[int64]bool{2: true}}
	svc := NewTasteProfileService(f, BatchConfig{Parallelism: 3, RateLimit: 1000, Burst: 4}, zerolog.Nop())

	rep, err := svc.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(3), rep.Success)
	assert.Equal(t, int64(1), rep.Failure)
	assert.ElementsMatch(t, []int64{1, 2, 3, 4}, f.refreshed)
}

func TestReviewCircleService_CountsFailures(t *testing.T) {
	f := &fakeEngine{users: []int64{1, 2, 3}, failUsers: map[int64]bool{3: true}}
	svc := NewReviewCircleService(f, []core.Window{core.Window7d}, BatchConfig{}, zerolog.Nop())

	rep, err := svc.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2), rep.Success)
	assert.Equal(t, int64(1), rep.Failure)
}

func TestServiceStopsOnCancel(t *testing.T) {
	f := &fakeEngine{users: []int64{1}}
	svc := NewReviewCircleService(f, nil, BatchConfig{Interval: time.Hour, RunOnStartup: true}, zerolog.Nop())
	assert.Equal(t, "review-circle-service", svc.String())

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := svc.Serve(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestTree_RunsBatchServices(t *testing.T) {
	f := &fakeEngine{users: []int64{1, 2}}
	tree := NewTree(zerolog.Nop(), TreeConfig{ShutdownTimeout: time.Second})
	tree.AddBatchService(NewTasteProfileService(f, BatchConfig{Interval: time.Hour, RunOnStartup: true}, zerolog.Nop()))

	ctx, cancel := context.WithCancel(context.Background())
	done := tree.ServeBackground(ctx)
	require.Eventually(t, func() bool {
		f.mu.Lock()
		defer f.mu.Unlock()
		return len(f.refreshed) == 2
	}, time.Second, 10*time.Millisecond)
	cancel()
	<-done
}
