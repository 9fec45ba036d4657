// Package selector picks one horoscope uniformly at random from the eligible set.
//
// A pick is two reads: count the eligible rows, then fetch the row at a
// uniformly drawn offset in id order. When the store can run both reads in a
// single snapshot it does so; otherwise a row deleted between the two reads
// surfaces as ErrNotFound, which callers should treat as retryable.
package selector

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"

	"github.com/rs/zerolog"

	"horoscope/internal/db"
	"horoscope/internal/models"
)

var (
	// ErrNotFound is returned when there is no eligible horoscope.
	ErrNotFound = errors.New("no eligible horoscope")
	// ErrUnavailable is returned when the store fails at either read.
	ErrUnavailable = errors.New("horoscope store unavailable")
)

// Store is the read surface the selector needs. It is the same type db's
// snapshot hands out, so Snapshotter callbacks take a Store.
type Store = db.HoroscopeReader

// Snapshotter is implemented by stores that can run several reads against one
// consistent view.
type Snapshotter interface {
	Snapshot(ctx context.Context, fn func(Store) error) error
}

// Selector returns uniformly chosen horoscopes.
type Selector struct {
	store Store
	intN  func(n int) int
	log   zerolog.Logger
}

// Option configures a Selector.
type Option func(*Selector)

// WithIntN replaces the random source. intN must return a value in [0, n).
func WithIntN(intN func(n int) int) Option {
	return func(s *Selector) { s.intN = intN }
}

// WithLogger sets the logger.
func WithLogger(log zerolog.Logger) Option {
	return func(s *Selector) { s.log = log }
}

// New creates a selector over store.
func New(store Store, opts ...Option) *Selector {
	s := &Selector{
		store: store,
		intN:  rand.IntN,
		log:   zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Pick returns one horoscope chosen uniformly from all horoscopes except
// excludeID. An excludeID of zero or less excludes nothing.
func (s *Selector) Pick(ctx context.Context, excludeID int64) (models.Horoscope, error) {
	if excludeID < 0 {
		excludeID = 0
	}

	snap, ok := s.store.(Snapshotter)
	if !ok {
		return s.pick(ctx, s.store, excludeID)
	}

	var picked models.Horoscope
	err := snap.Snapshot(ctx, func(r Store) error {
		var err error
		picked, err = s.pick(ctx, r, excludeID)
		return err
	})
	if err != nil {
		return models.Horoscope{}, classify(err)
	}
	return picked, nil
}

func (s *Selector) pick(ctx context.Context, store Store, excludeID int64) (models.Horoscope, error) {
	count, err := store.CountHoroscopes(ctx, excludeID)
	if err != nil {
		return models.Horoscope{}, fmt.Errorf("%w: count: %w", ErrUnavailable, err)
	}
	if count <= 0 {
		return models.Horoscope{}, ErrNotFound
	}

	offset := s.intN(count)
	h, err := store.HoroscopeAt(ctx, offset, excludeID)
	if err != nil {
		if errors.Is(err, db.ErrHoroscopeNotFound) {
			s.log.Debug().Int("count", count).Int("offset", offset).Msg("eligible set shrank between count and fetch")
			return models.Horoscope{}, ErrNotFound
		}
		return models.Horoscope{}, fmt.Errorf("%w: fetch: %w", ErrUnavailable, err)
	}
	return h, nil
}

// classify maps snapshot errors that did not come from pick itself.
func classify(err error) error {
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrUnavailable, err)
}
