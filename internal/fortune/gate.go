// Package fortune gates the daily fortune: one draw per local calendar day,
// cached locally and reset at midnight.
package fortune

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"horoscope/internal/client"
	"horoscope/internal/models"
)

const (
	// CacheKeyPrefix prefixes every per-day cache entry.
	CacheKeyPrefix = "fortune_"
	// VisitKey holds the visited-today marker.
	VisitKey = "daily_visit"
	// RolloverBuffer delays the midnight timer so it never fires early.
	RolloverBuffer = 200 * time.Millisecond
	// DefaultTimeout bounds a single fetch.
	DefaultTimeout = 10 * time.Second
)

// Fetch failures share the client's taxonomy so callers can use errors.Is
// against either package.
var (
	ErrNotFound    = client.ErrNotFound
	ErrUnavailable = client.ErrUnavailable
	ErrTimeout     = client.ErrTimeout
	ErrClosed      = errors.New("fortune gate closed")
)

// Fetcher draws a random horoscope.
type Fetcher interface {
	Random(ctx context.Context, excludeID int64) (models.Horoscope, error)
}

// Store is the local persisted key/value store.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Remove(ctx context.Context, key string) error
	Keys(ctx context.Context, prefix string) ([]string, error)
}

// State is what the presentation layer renders.
type State struct {
	Value   *models.Horoscope
	Loading bool
	Err     error
	DateKey string
}

// RequestOptions tunes a single RequestFortune call.
type RequestOptions struct {
	// Force draws a new fortune even when today's is cached.
	Force bool
}

// cacheEntry is the persisted form of a day's fortune.
type cacheEntry struct {
	Data      models.Horoscope `json:"data"`
	CreatedAt int64            `json:"createdAt"`
}

// CacheKey returns the store key for dateKey.
func CacheKey(dateKey string) string {
	return CacheKeyPrefix + dateKey
}

// Gate decides whether today's fortune is served from cache or fetched.
type Gate struct {
	fetcher  Fetcher
	store    Store
	clock    Clock
	loc      *time.Location
	log      zerolog.Logger
	timeout  time.Duration
	observer func(State)

	flights singleflight.Group

	mu       sync.Mutex
	dateKey  string
	value    *models.Horoscope
	err      error
	inflight int
	gen      uint64
	timer    Timer
	started  bool
	closed   bool
}

// Option configures a Gate.
type Option func(*Gate)

// WithClock replaces the system clock.
func WithClock(c Clock) Option {
	return func(g *Gate) { g.clock = c }
}

// WithLocation sets the time zone that defines a calendar day.
func WithLocation(loc *time.Location) Option {
	return func(g *Gate) { g.loc = loc }
}

// WithLogger sets the logger.
func WithLogger(log zerolog.Logger) Option {
	return func(g *Gate) { g.log = log }
}

// WithTimeout bounds each fetch.
func WithTimeout(d time.Duration) Option {
	return func(g *Gate) { g.timeout = d }
}

// WithObserver registers fn to receive every state change. It may be called
// from any goroutine and must not call back into the Gate synchronously.
func WithObserver(fn func(State)) Option {
	return func(g *Gate) { g.observer = fn }
}

// New creates a Gate. Call Start before use and Close when done.
func New(fetcher Fetcher, store Store, opts ...Option) *Gate {
	g := &Gate{
		fetcher: fetcher,
		store:   store,
		clock:   systemClock{},
		loc:     time.Local,
		log:     zerolog.Nop(),
		timeout: DefaultTimeout,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Start prunes cache entries from other days, adopts today's entry if one
// exists and arms the midnight timer.
func (g *Gate) Start(ctx context.Context) error {
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return ErrClosed
	}
	if g.started {
		g.mu.Unlock()
		return nil
	}
	g.started = true
	g.dateKey = DateKey(g.clock.Now(), g.loc)

	g.pruneLocked(ctx)
	if h, ok := g.readCacheLocked(ctx, g.dateKey); ok {
		g.value = &h
		g.markVisitedLocked(ctx)
	}
	g.scheduleLocked()
	st := g.stateLocked()
	g.mu.Unlock()

	g.notify(st)
	return nil
}

// State returns a snapshot of the current state.
func (g *Gate) State() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.stateLocked()
}

// RequestFortune returns today's fortune, fetching it at most once per day.
// Concurrent callers share one fetch. A cancelled ctx abandons only this
// caller's wait; the fetch itself runs on until its own timeout.
func (g *Gate) RequestFortune(ctx context.Context, opts RequestOptions) (models.Horoscope, error) {
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return models.Horoscope{}, ErrClosed
	}
	changed := g.syncDateLocked()
	key := g.dateKey

	if !opts.Force {
		if g.value != nil {
			h := *g.value
			st := g.stateLocked()
			g.mu.Unlock()
			if changed {
				g.notify(st)
			}
			return h, nil
		}
		if h, ok := g.readCacheLocked(ctx, key); ok {
			g.value = &h
			g.err = nil
			g.markVisitedLocked(ctx)
			st := g.stateLocked()
			g.mu.Unlock()
			g.notify(st)
			return h, nil
		}
	} else {
		g.flights.Forget(key)
	}
	gen := g.gen
	g.mu.Unlock()

	if changed {
		g.notify(g.State())
	}

	ch := g.flights.DoChan(key, func() (any, error) {
		return g.fetch(ctx, key, gen, opts.Force)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return models.Horoscope{}, res.Err
		}
		return res.Val.(models.Horoscope), nil
	case <-ctx.Done():
		return models.Horoscope{}, ctx.Err()
	}
}

// fetch runs one flight for key. Only the flight writes the cache and state,
// so waiters that gave up do not lose the result for later callers.
func (g *Gate) fetch(callerCtx context.Context, key string, gen uint64, force bool) (models.Horoscope, error) {
	g.mu.Lock()
	// A flight that finished between the caller's check and DoChan already
	// filled the value.
	if !force && g.gen == gen && g.dateKey == key && g.value != nil {
		h := *g.value
		g.mu.Unlock()
		return h, nil
	}
	g.inflight++
	if g.gen == gen {
		g.err = nil
	}
	st := g.stateLocked()
	g.mu.Unlock()
	g.notify(st)

	ctx, cancel := context.WithTimeout(context.WithoutCancel(callerCtx), g.timeout)
	defer cancel()

	h, err := g.fetcher.Random(ctx, 0)
	if err != nil {
		err = classify(ctx, err)
	}

	g.mu.Lock()
	g.inflight--
	current := g.gen == gen && g.dateKey == key && !g.closed
	if current {
		if err != nil {
			g.err = err
		} else {
			// The fetch deadline may already have passed.
			g.writeCacheLocked(context.WithoutCancel(callerCtx), key, h)
			g.value = &h
			g.err = nil
		}
	}
	st = g.stateLocked()
	g.mu.Unlock()
	g.notify(st)

	if err != nil {
		g.log.Warn().Err(err).Str("date", key).Msg("fortune fetch failed")
		return models.Horoscope{}, err
	}
	if !current {
		g.log.Debug().Str("date", key).Msg("fortune arrived after reset; not cached")
	}
	return h, nil
}

// HasToday reports whether today's fortune is cached. It has no side effects.
func (g *Gate) HasToday(ctx context.Context) bool {
	key := DateKey(g.clock.Now(), g.loc)
	_, ok, err := g.store.Get(ctx, CacheKey(key))
	if err != nil {
		g.log.Warn().Err(err).Msg("failed to read fortune cache")
		return false
	}
	return ok
}

// VisitedToday reports whether the visited marker is set for today.
// It is informational only and never suppresses a fetch.
func (g *Gate) VisitedToday(ctx context.Context) bool {
	key := DateKey(g.clock.Now(), g.loc)
	raw, ok, err := g.store.Get(ctx, VisitKey)
	if err != nil {
		g.log.Warn().Err(err).Msg("failed to read visit marker")
		return false
	}
	return ok && string(raw) == key
}

// ClearTodayCache forgets today's fortune so the next request fetches anew.
// It is idempotent.
func (g *Gate) ClearTodayCache(ctx context.Context) error {
	g.mu.Lock()
	g.syncDateLocked()
	key := g.dateKey
	if key == "" {
		key = DateKey(g.clock.Now(), g.loc)
	}

	var errs []error
	if err := g.store.Remove(ctx, CacheKey(key)); err != nil {
		errs = append(errs, err)
	}
	if err := g.store.Remove(ctx, VisitKey); err != nil {
		errs = append(errs, err)
	}
	g.value = nil
	g.err = nil
	g.gen++
	g.flights.Forget(key)
	st := g.stateLocked()
	g.mu.Unlock()

	g.notify(st)
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("failed to clear today's fortune: %w", err)
	}
	return nil
}

// Close stops the midnight timer. Further requests fail with ErrClosed.
func (g *Gate) Close() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.closed = true
	if g.timer != nil {
		g.timer.Stop()
		g.timer = nil
	}
}

// rollover runs from the midnight timer.
func (g *Gate) rollover() {
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return
	}
	g.timer = nil
	changed := g.syncDateLocked()
	if g.timer == nil {
		g.scheduleLocked()
	}
	st := g.stateLocked()
	g.mu.Unlock()

	if changed {
		g.log.Info().Str("date", st.DateKey).Msg("new fortune day")
		g.notify(st)
	}
}

// syncDateLocked resets the exposed state when the calendar day has moved
// on, whether or not the timer has fired yet. Reports whether it did.
func (g *Gate) syncDateLocked() bool {
	key := DateKey(g.clock.Now(), g.loc)
	if key == g.dateKey {
		return false
	}
	first := g.dateKey == ""
	g.dateKey = key
	g.value = nil
	g.err = nil
	g.gen++
	if g.started {
		if g.timer != nil {
			g.timer.Stop()
		}
		g.scheduleLocked()
	}
	return !first
}

func (g *Gate) scheduleLocked() {
	now := g.clock.Now()
	g.timer = g.clock.AfterFunc(UntilMidnight(now, g.loc)+RolloverBuffer, g.rollover)
}

func (g *Gate) stateLocked() State {
	st := State{
		Loading: g.inflight > 0,
		Err:     g.err,
		DateKey: g.dateKey,
	}
	if g.value != nil {
		v := *g.value
		st.Value = &v
	}
	return st
}

func (g *Gate) notify(st State) {
	if g.observer != nil {
		g.observer(st)
	}
}

// pruneLocked removes cache entries for every day but today.
func (g *Gate) pruneLocked(ctx context.Context) {
	keys, err := g.store.Keys(ctx, CacheKeyPrefix)
	if err != nil {
		g.log.Warn().Err(err).Msg("failed to list cached fortunes")
		return
	}
	keep := CacheKey(g.dateKey)
	for _, k := range keys {
		if k == keep {
			continue
		}
		if err := g.store.Remove(ctx, k); err != nil {
			g.log.Warn().Err(err).Str("key", k).Msg("failed to prune cached fortune")
		}
	}
}

func (g *Gate) readCacheLocked(ctx context.Context, key string) (models.Horoscope, bool) {
	raw, ok, err := g.store.Get(ctx, CacheKey(key))
	if err != nil {
		g.log.Warn().Err(err).Msg("failed to read fortune cache")
		return models.Horoscope{}, false
	}
	if !ok {
		return models.Horoscope{}, false
	}

	var entry cacheEntry
	if err := json.Unmarshal(raw, &entry); err != nil || entry.Data.ID == 0 {
		g.log.Warn().Err(err).Str("date", key).Msg("discarding unreadable fortune cache entry")
		_ = g.store.Remove(ctx, CacheKey(key))
		return models.Horoscope{}, false
	}
	return entry.Data, true
}

func (g *Gate) writeCacheLocked(ctx context.Context, key string, h models.Horoscope) {
	raw, err := json.Marshal(cacheEntry{Data: h, CreatedAt: g.clock.Now().UnixMilli()})
	if err != nil {
		g.log.Warn().Err(err).Msg("failed to encode fortune cache entry")
		return
	}
	if err := g.store.Set(ctx, CacheKey(key), raw, 0); err != nil {
		g.log.Warn().Err(err).Str("date", key).Msg("failed to cache fortune")
		return
	}
	g.markVisitedLocked(ctx)
}

// markVisitedLocked sets the visited marker to expire at the next midnight.
func (g *Gate) markVisitedLocked(ctx context.Context) {
	ttl := UntilMidnight(g.clock.Now(), g.loc)
	if err := g.store.Set(ctx, VisitKey, []byte(g.dateKey), ttl); err != nil {
		g.log.Warn().Err(err).Msg("failed to set visit marker")
	}
}

// classify maps a fetch error onto the gate's taxonomy.
func classify(ctx context.Context, err error) error {
	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrUnavailable), errors.Is(err, ErrTimeout):
		return err
	case errors.Is(err, context.DeadlineExceeded), errors.Is(ctx.Err(), context.DeadlineExceeded):
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	default:
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
}
