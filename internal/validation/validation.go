package validation

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"horoscope/internal/models"
)

// Length limits for horoscope text fields, in characters.
const (
	MaxDescriptionLength = 2000
	MaxNoteLength        = 1000
)

// ValidationError describes the first field that failed validation.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// NormalizeHoroscope trims surrounding whitespace from the text fields.
func NormalizeHoroscope(in models.HoroscopeInput) models.HoroscopeInput {
	in.Description = strings.TrimSpace(in.Description)
	in.Note = strings.TrimSpace(in.Note)
	return in
}

// ValidateHoroscope checks a normalized input against the record invariants:
// a level in [1,5] and a non-empty description.
func ValidateHoroscope(in models.HoroscopeInput) error {
	if !models.Level(in.Level).Valid() {
		return &ValidationError{Field: "level", Message: "level must be between 1 and 5"}
	}
	if in.Description == "" {
		return &ValidationError{Field: "description", Message: "description is required"}
	}
	if utf8.RuneCountInString(in.Description) > MaxDescriptionLength {
		return &ValidationError{
			Field:   "description",
			Message: fmt.Sprintf("description must be at most %d characters", MaxDescriptionLength),
		}
	}
	if utf8.RuneCountInString(in.Note) > MaxNoteLength {
		return &ValidationError{
			Field:   "note",
			Message: fmt.Sprintf("note must be at most %d characters", MaxNoteLength),
		}
	}
	return nil
}

// PrepareHoroscope normalizes and validates in one step.
func PrepareHoroscope(in models.HoroscopeInput) (models.HoroscopeInput, error) {
	in = NormalizeHoroscope(in)
	return in, ValidateHoroscope(in)
}
