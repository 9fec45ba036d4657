package fortune

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"horoscope/internal/localstore"
	"horoscope/internal/models"
)

var testLoc = time.FixedZone("UTC+9", 9*60*60)

type fakeTimer struct {
	at      time.Time
	f       func()
	stopped bool
	fired   bool
}

type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
}

func newFakeClock(now time.Time) *fakeClock {
	return &fakeClock{now: now}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{at: c.now.Add(d), f: f}
	c.timers = append(c.timers, t)
	return &fakeTimerHandle{clock: c, t: t}
}

type fakeTimerHandle struct {
	clock *fakeClock
	t     *fakeTimer
}

func (h *fakeTimerHandle) Stop() bool {
	h.clock.mu.Lock()
	defer h.clock.mu.Unlock()
	active := !h.t.stopped && !h.t.fired
	h.t.stopped = true
	return active
}

// Advance moves time forward and runs every timer that came due.
func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	var due []*fakeTimer
	for _, t := range c.timers {
		if !t.stopped && !t.fired && !t.at.After(c.now) {
			t.fired = true
			due = append(due, t)
		}
	}
	c.mu.Unlock()

	for _, t := range due {
		t.f()
	}
}

// Jump moves time without running timers, like a suspended laptop.
func (c *fakeClock) Jump(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func (c *fakeClock) active() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, t := range c.timers {
		if !t.stopped && !t.fired {
			n++
		}
	}
	return n
}

type fakeFetcher struct {
	calls atomic.Int32
	fn    func(ctx context.Context, n int32) (models.Horoscope, error)
}

func (f *fakeFetcher) Random(ctx context.Context, _ int64) (models.Horoscope, error) {
	n := f.calls.Add(1)
	return f.fn(ctx, n)
}

// sequence returns record n on the n-th call.
func sequence() *fakeFetcher {
	return &fakeFetcher{fn: func(_ context.Context, n int32) (models.Horoscope, error) {
		return models.Horoscope{ID: int64(n), Level: models.LevelFair, Description: "fortune"}, nil
	}}
}

type harness struct {
	gate    *Gate
	clock   *fakeClock
	store   *localstore.Memory
	fetcher *fakeFetcher
}

func newHarness(t *testing.T, fetcher *fakeFetcher, start time.Time, opts ...Option) *harness {
	t.Helper()
	clock := newFakeClock(start)
	store := localstore.NewMemory(localstore.WithNow(clock.Now))
	opts = append([]Option{WithClock(clock), WithLocation(testLoc)}, opts...)
	g := New(fetcher, store, opts...)
	t.Cleanup(g.Close)
	return &harness{gate: g, clock: clock, store: store, fetcher: fetcher}
}

func day(hour, min, sec int) time.Time {
	return time.Date(2026, time.March, 14, hour, min, sec, 0, testLoc)
}

func TestRequestFortuneCachesForTheDay(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, sequence(), day(9, 0, 0))
	require.NoError(t, h.gate.Start(ctx))
	assert.False(t, h.gate.HasToday(ctx))
	assert.False(t, h.gate.VisitedToday(ctx))

	got, err := h.gate.RequestFortune(ctx, RequestOptions{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.ID)

	assert.True(t, h.gate.HasToday(ctx))
	assert.True(t, h.gate.VisitedToday(ctx))

	raw, ok, err := h.store.Get(ctx, "fortune_2026-03-14")
	require.NoError(t, err)
	require.True(t, ok)
	var entry cacheEntry
	require.NoError(t, json.Unmarshal(raw, &entry))
	assert.Equal(t, got, entry.Data)
	assert.Equal(t, day(9, 0, 0).UnixMilli(), entry.CreatedAt)

	again, err := h.gate.RequestFortune(ctx, RequestOptions{})
	require.NoError(t, err)
	assert.Equal(t, got, again)
	assert.Equal(t, int32(1), h.fetcher.calls.Load())

	st := h.gate.State()
	require.NotNil(t, st.Value)
	assert.Equal(t, got, *st.Value)
	assert.False(t, st.Loading)
	assert.NoError(t, st.Err)
	assert.Equal(t, "2026-03-14", st.DateKey)
}

func TestVisitMarkerExpiresAtMidnight(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, sequence(), day(23, 0, 0))
	require.NoError(t, h.gate.Start(ctx))

	_, err := h.gate.RequestFortune(ctx, RequestOptions{})
	require.NoError(t, err)
	require.True(t, h.gate.VisitedToday(ctx))

	h.clock.Jump(time.Hour)
	_, ok, err := h.store.Get(ctx, VisitKey)
	require.NoError(t, err)
	assert.False(t, ok, "marker expires at the next local midnight")
}

func TestConcurrentRequestsShareOneFetch(t *testing.T) {
	ctx := context.Background()
	started := make(chan struct{})
	release := make(chan struct{})
	fetcher := &fakeFetcher{fn: func(_ context.Context, n int32) (models.Horoscope, error) {
		close(started)
		<-release
		return models.Horoscope{ID: 42, Level: models.LevelLucky, Description: "shared"}, nil
	}}
	h := newHarness(t, fetcher, day(12, 0, 0))
	require.NoError(t, h.gate.Start(ctx))

	const callers = 8
	results := make(chan models.Horoscope, callers)
	var wg sync.WaitGroup
	for range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := h.gate.RequestFortune(ctx, RequestOptions{})
			assert.NoError(t, err)
			results <- got
		}()
	}

	<-started
	assert.True(t, h.gate.State().Loading)
	close(release)
	wg.Wait()
	close(results)

	for got := range results {
		assert.Equal(t, int64(42), got.ID)
	}
	assert.Equal(t, int32(1), fetcher.calls.Load())
	assert.False(t, h.gate.State().Loading)
}

func TestMidnightRollover(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, sequence(), day(23, 59, 59))
	require.NoError(t, h.gate.Start(ctx))

	_, err := h.gate.RequestFortune(ctx, RequestOptions{})
	require.NoError(t, err)

	h.clock.Advance(time.Second)
	assert.NotNil(t, h.gate.State().Value, "timer waits out the buffer past midnight")

	h.clock.Advance(RolloverBuffer)
	st := h.gate.State()
	assert.Nil(t, st.Value)
	assert.NoError(t, st.Err)
	assert.Equal(t, "2026-03-15", st.DateKey)
	assert.False(t, h.gate.HasToday(ctx))

	_, ok, err := h.store.Get(ctx, "fortune_2026-03-14")
	require.NoError(t, err)
	assert.True(t, ok, "rollover leaves the previous day's entry in place")

	got, err := h.gate.RequestFortune(ctx, RequestOptions{})
	require.NoError(t, err)
	assert.Equal(t, int64(2), got.ID)
	assert.Equal(t, int32(2), h.fetcher.calls.Load())

	assert.Equal(t, 1, h.clock.active(), "exactly one timer armed for the next midnight")
	h.clock.Advance(24 * time.Hour)
	assert.Equal(t, "2026-03-16", h.gate.State().DateKey)
	assert.Equal(t, 1, h.clock.active())
}

func TestDateChangeWithoutTimer(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, sequence(), day(22, 0, 0))
	require.NoError(t, h.gate.Start(ctx))

	_, err := h.gate.RequestFortune(ctx, RequestOptions{})
	require.NoError(t, err)

	h.clock.Jump(3 * time.Hour)
	got, err := h.gate.RequestFortune(ctx, RequestOptions{})
	require.NoError(t, err)
	assert.Equal(t, int64(2), got.ID, "a new day is detected on request even if the timer has not fired")
	assert.Equal(t, "2026-03-15", h.gate.State().DateKey)
	assert.Equal(t, 1, h.clock.active())
}

func TestClearTodayCache(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, sequence(), day(10, 0, 0))
	require.NoError(t, h.gate.Start(ctx))

	_, err := h.gate.RequestFortune(ctx, RequestOptions{})
	require.NoError(t, err)

	require.NoError(t, h.gate.ClearTodayCache(ctx))
	require.NoError(t, h.gate.ClearTodayCache(ctx), "clearing twice is fine")
	assert.False(t, h.gate.HasToday(ctx))
	assert.False(t, h.gate.VisitedToday(ctx))
	assert.Nil(t, h.gate.State().Value)

	got, err := h.gate.RequestFortune(ctx, RequestOptions{})
	require.NoError(t, err)
	assert.Equal(t, int64(2), got.ID)
	assert.Equal(t, int32(2), h.fetcher.calls.Load())
}

func TestForceRefetches(t *testing.T) {
	ctx := context.Background()
	fail := false
	fetcher := &fakeFetcher{fn: func(_ context.Context, n int32) (models.Horoscope, error) {
		if fail {
			return models.Horoscope{}, ErrUnavailable
		}
		return models.Horoscope{ID: int64(n), Level: models.LevelFair, Description: "fortune"}, nil
	}}
	h := newHarness(t, fetcher, day(10, 0, 0))
	require.NoError(t, h.gate.Start(ctx))

	_, err := h.gate.RequestFortune(ctx, RequestOptions{})
	require.NoError(t, err)

	got, err := h.gate.RequestFortune(ctx, RequestOptions{Force: true})
	require.NoError(t, err)
	assert.Equal(t, int64(2), got.ID)
	assert.Equal(t, int32(2), fetcher.calls.Load())

	fail = true
	_, err = h.gate.RequestFortune(ctx, RequestOptions{Force: true})
	require.ErrorIs(t, err, ErrUnavailable)

	raw, ok, err := h.store.Get(ctx, CacheKey("2026-03-14"))
	require.NoError(t, err)
	require.True(t, ok)
	var entry cacheEntry
	require.NoError(t, json.Unmarshal(raw, &entry))
	assert.Equal(t, int64(2), entry.Data.ID, "a failed forced fetch leaves the cache alone")

	st := h.gate.State()
	require.NotNil(t, st.Value)
	assert.Equal(t, int64(2), st.Value.ID)
	assert.ErrorIs(t, st.Err, ErrUnavailable)
}

func TestFailureWritesNothing(t *testing.T) {
	ctx := context.Background()
	fetcher := &fakeFetcher{fn: func(_ context.Context, n int32) (models.Horoscope, error) {
		if n == 1 {
			return models.Horoscope{}, ErrNotFound
		}
		return models.Horoscope{ID: 9, Level: models.LevelUnlucky, Description: "rain"}, nil
	}}
	h := newHarness(t, fetcher, day(10, 0, 0))
	require.NoError(t, h.gate.Start(ctx))

	_, err := h.gate.RequestFortune(ctx, RequestOptions{})
	require.ErrorIs(t, err, ErrNotFound)
	assert.False(t, h.gate.HasToday(ctx))
	assert.False(t, h.gate.VisitedToday(ctx))
	assert.ErrorIs(t, h.gate.State().Err, ErrNotFound)
	assert.Nil(t, h.gate.State().Value)

	got, err := h.gate.RequestFortune(ctx, RequestOptions{})
	require.NoError(t, err, "a failure leaves the gate open for a retry")
	assert.Equal(t, int64(9), got.ID)
	assert.NoError(t, h.gate.State().Err)
}

func TestFetchTimeout(t *testing.T) {
	ctx := context.Background()
	fetcher := &fakeFetcher{fn: func(ctx context.Context, _ int32) (models.Horoscope, error) {
		<-ctx.Done()
		return models.Horoscope{}, ctx.Err()
	}}
	h := newHarness(t, fetcher, day(10, 0, 0), WithTimeout(20*time.Millisecond))
	require.NoError(t, h.gate.Start(ctx))

	_, err := h.gate.RequestFortune(ctx, RequestOptions{})
	require.ErrorIs(t, err, ErrTimeout)
	assert.False(t, h.gate.HasToday(ctx))
}

func TestSuccessAtDeadlineIsCached(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock(day(10, 0, 0))
	store, err := localstore.OpenSQLite(":memory:", localstore.WithNow(clock.Now))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	fetcher := &fakeFetcher{fn: func(ctx context.Context, _ int32) (models.Horoscope, error) {
		<-ctx.Done()
		return models.Horoscope{ID: 7, Level: models.LevelLucky, Description: "just in time"}, nil
	}}
	g := New(fetcher, store, WithClock(clock), WithLocation(testLoc), WithTimeout(20*time.Millisecond))
	t.Cleanup(g.Close)
	require.NoError(t, g.Start(ctx))

	got, err := g.RequestFortune(ctx, RequestOptions{})
	require.NoError(t, err)
	assert.Equal(t, int64(7), got.ID)
	assert.True(t, g.HasToday(ctx))
	assert.True(t, g.VisitedToday(ctx))

	raw, ok, err := store.Get(ctx, CacheKey("2026-03-14"))
	require.NoError(t, err)
	require.True(t, ok)
	var entry cacheEntry
	require.NoError(t, json.Unmarshal(raw, &entry))
	assert.Equal(t, got, entry.Data)
}

func TestUnknownFetchErrorIsUnavailable(t *testing.T) {
	ctx := context.Background()
	fetcher := &fakeFetcher{fn: func(context.Context, int32) (models.Horoscope, error) {
		return models.Horoscope{}, errors.New("connection reset")
	}}
	h := newHarness(t, fetcher, day(10, 0, 0))

	_, err := h.gate.RequestFortune(ctx, RequestOptions{})
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestCancelledCallerDoesNotFailOthers(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	fetcher := &fakeFetcher{fn: func(ctx context.Context, _ int32) (models.Horoscope, error) {
		close(started)
		select {
		case <-release:
			return models.Horoscope{ID: 5, Level: models.LevelLucky, Description: "patience"}, nil
		case <-ctx.Done():
			return models.Horoscope{}, ctx.Err()
		}
	}}
	h := newHarness(t, fetcher, day(10, 0, 0))
	require.NoError(t, h.gate.Start(context.Background()))

	firstCtx, cancelFirst := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := h.gate.RequestFortune(firstCtx, RequestOptions{})
		firstErr <- err
	}()
	<-started

	second := make(chan models.Horoscope, 1)
	go func() {
		got, err := h.gate.RequestFortune(context.Background(), RequestOptions{})
		assert.NoError(t, err)
		second <- got
	}()

	cancelFirst()
	assert.ErrorIs(t, <-firstErr, context.Canceled)

	close(release)
	assert.Equal(t, int64(5), (<-second).ID)
	assert.True(t, h.gate.HasToday(context.Background()))
	assert.Equal(t, int32(1), fetcher.calls.Load())
}

func TestStartPrunesAndAdopts(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, sequence(), day(8, 0, 0))

	cached := models.Horoscope{ID: 77, Level: models.LevelVeryLucky, Description: "already drawn"}
	raw, err := json.Marshal(cacheEntry{Data: cached, CreatedAt: day(7, 0, 0).UnixMilli()})
	require.NoError(t, err)
	require.NoError(t, h.store.Set(ctx, CacheKey("2026-03-14"), raw, 0))
	require.NoError(t, h.store.Set(ctx, CacheKey("2026-03-12"), raw, 0))
	require.NoError(t, h.store.Set(ctx, CacheKey("2025-12-31"), raw, 0))
	require.NoError(t, h.store.Set(ctx, "unrelated", []byte("x"), 0))

	require.NoError(t, h.gate.Start(ctx))

	keys, err := h.store.Keys(ctx, CacheKeyPrefix)
	require.NoError(t, err)
	assert.Equal(t, []string{"fortune_2026-03-14"}, keys)
	_, ok, err := h.store.Get(ctx, "unrelated")
	require.NoError(t, err)
	assert.True(t, ok, "pruning only touches fortune entries")

	st := h.gate.State()
	require.NotNil(t, st.Value)
	assert.Equal(t, cached, *st.Value)
	assert.True(t, h.gate.VisitedToday(ctx), "adopting refreshes the marker")

	got, err := h.gate.RequestFortune(ctx, RequestOptions{})
	require.NoError(t, err)
	assert.Equal(t, cached, got)
	assert.Zero(t, h.fetcher.calls.Load())
}

func TestCacheReadOnRequestWithoutStart(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, sequence(), day(8, 0, 0))

	cached := models.Horoscope{ID: 3, Level: models.LevelFair, Description: "from disk"}
	raw, err := json.Marshal(cacheEntry{Data: cached})
	require.NoError(t, err)
	require.NoError(t, h.store.Set(ctx, CacheKey("2026-03-14"), raw, 0))

	got, err := h.gate.RequestFortune(ctx, RequestOptions{})
	require.NoError(t, err)
	assert.Equal(t, cached, got)
	assert.Zero(t, h.fetcher.calls.Load())
}

func TestVisitedMarkerAloneStillFetches(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, sequence(), day(8, 0, 0))
	require.NoError(t, h.store.Set(ctx, VisitKey, []byte("2026-03-14"), time.Hour))
	require.NoError(t, h.gate.Start(ctx))
	assert.True(t, h.gate.VisitedToday(ctx))
	assert.False(t, h.gate.HasToday(ctx))

	_, err := h.gate.RequestFortune(ctx, RequestOptions{})
	require.NoError(t, err)
	assert.Equal(t, int32(1), h.fetcher.calls.Load())
}

func TestUnreadableCacheEntryIsDiscarded(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, sequence(), day(8, 0, 0))
	require.NoError(t, h.store.Set(ctx, CacheKey("2026-03-14"), []byte("{broken"), 0))
	require.NoError(t, h.gate.Start(ctx))

	assert.Nil(t, h.gate.State().Value)
	assert.False(t, h.gate.HasToday(ctx))

	_, err := h.gate.RequestFortune(ctx, RequestOptions{})
	require.NoError(t, err)
	assert.Equal(t, int32(1), h.fetcher.calls.Load())
}

func TestCachedValueIsASnapshot(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, sequence(), day(8, 0, 0))
	require.NoError(t, h.gate.Start(ctx))

	got, err := h.gate.RequestFortune(ctx, RequestOptions{})
	require.NoError(t, err)

	got.Description = "edited by an admin"
	st := h.gate.State()
	st.Value.Note = "edited through state"

	again, err := h.gate.RequestFortune(ctx, RequestOptions{})
	require.NoError(t, err)
	assert.Equal(t, "fortune", again.Description)
	assert.Empty(t, again.Note)
}

func TestObserverSeesLoadingThenValue(t *testing.T) {
	ctx := context.Background()
	var (
		mu     sync.Mutex
		states []State
	)
	h := newHarness(t, sequence(), day(8, 0, 0), WithObserver(func(st State) {
		mu.Lock()
		defer mu.Unlock()
		states = append(states, st)
	}))
	require.NoError(t, h.gate.Start(ctx))

	_, err := h.gate.RequestFortune(ctx, RequestOptions{})
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	require.GreaterOrEqual(t, len(states), 3)
	loading := states[len(states)-2]
	done := states[len(states)-1]
	assert.True(t, loading.Loading)
	assert.Nil(t, loading.Value)
	assert.False(t, done.Loading)
	require.NotNil(t, done.Value)
	assert.Equal(t, int64(1), done.Value.ID)
}

func TestCloseStopsTimerAndRequests(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, sequence(), day(8, 0, 0))
	require.NoError(t, h.gate.Start(ctx))
	require.Equal(t, 1, h.clock.active())

	h.gate.Close()
	assert.Equal(t, 0, h.clock.active())

	_, err := h.gate.RequestFortune(ctx, RequestOptions{})
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, h.gate.Start(ctx), ErrClosed)
}
