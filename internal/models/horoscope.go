package models

import (
	"strconv"
	"time"
)

// Level is the luck tier of a horoscope, from 1 (best) to 5 (worst).
type Level int

// Level constants
const (
	LevelVeryLucky Level = 1
	LevelLucky     Level = 2
	LevelFair      Level = 3
	LevelNotGreat  Level = 4
	LevelUnlucky   Level = 5
)

// Badge variants used when rendering a level.
const (
	VariantGreen  = "green"
	VariantBlue   = "blue"
	VariantYellow = "yellow"
	VariantOrange = "orange"
	VariantRed    = "red"
)

type levelInfo struct {
	label   string
	variant string
}

var levels = map[Level]levelInfo{
	LevelVeryLucky: {"Very lucky", VariantGreen},
	LevelLucky:     {"Lucky", VariantBlue},
	LevelFair:      {"Fair", VariantYellow},
	LevelNotGreat:  {"Not great", VariantOrange},
	LevelUnlucky:   {"Unlucky", VariantRed},
}

// Levels returns every valid level in ascending order.
func Levels() []Level {
	return []Level{LevelVeryLucky, LevelLucky, LevelFair, LevelNotGreat, LevelUnlucky}
}

// Valid reports whether the level is one of the five known tiers.
func (l Level) Valid() bool {
	_, ok := levels[l]
	return ok
}

// Label returns the display label. Unknown levels render their number.
func (l Level) Label() string {
	if info, ok := levels[l]; ok {
		return info.label
	}
	return strconv.Itoa(int(l))
}

// Variant returns the badge color for the level, yellow for unknown levels.
func (l Level) Variant() string {
	if info, ok := levels[l]; ok {
		return info.variant
	}
	return VariantYellow
}

// Horoscope is a single fortune message in the pool.
type Horoscope struct {
	ID          int64     `json:"id"`
	Level       Level     `json:"level"`
	Description string    `json:"description"`
	Note        string    `json:"note"`
	CreatedAt   time.Time `json:"created_at,omitzero"`
	UpdatedAt   time.Time `json:"updated_at,omitzero"`
}

// HoroscopeInput holds the fields an admin supplies when creating a horoscope.
type HoroscopeInput struct {
	Level       int    `json:"level" yaml:"level"`
	Description string `json:"description" yaml:"description"`
	Note        string `json:"note" yaml:"note"`
}

// HoroscopeUpdate is a partial update. Nil fields are left unchanged.
type HoroscopeUpdate struct {
	Level       *int    `json:"level"`
	Description *string `json:"description"`
	Note        *string `json:"note"`
}

// Apply returns the input that results from applying the update to h.
func (u HoroscopeUpdate) Apply(h Horoscope) HoroscopeInput {
	in := HoroscopeInput{
		Level:       int(h.Level),
		Description: h.Description,
		Note:        h.Note,
	}
	if u.Level != nil {
		in.Level = *u.Level
	}
	if u.Description != nil {
		in.Description = *u.Description
	}
	if u.Note != nil {
		in.Note = *u.Note
	}
	return in
}
