package db

import "errors"

// Domain-level database error sentinels.
var (
	// ErrHoroscopeNotFound is returned when no row matches an id or offset.
	ErrHoroscopeNotFound = errors.New("horoscope not found")
)
