package validation

import (
	"errors"
	"strings"
	"testing"

	"horoscope/internal/models"
)

func TestValidateHoroscope(t *testing.T) {
	tests := []struct {
		name      string
		in        models.HoroscopeInput
		wantField string
	}{
		{"valid", models.HoroscopeInput{Level: 1, Description: "good things ahead"}, ""},
		{"valid with note", models.HoroscopeInput{Level: 5, Description: "stay inside", Note: "really"}, ""},
		{"level zero", models.HoroscopeInput{Level: 0, Description: "x"}, "level"},
		{"level six", models.HoroscopeInput{Level: 6, Description: "x"}, "level"},
		{"negative level", models.HoroscopeInput{Level: -3, Description: "x"}, "level"},
		{"empty description", models.HoroscopeInput{Level: 2, Description: ""}, "description"},
		{"description too long", models.HoroscopeInput{Level: 2, Description: strings.Repeat("a", MaxDescriptionLength+1)}, "description"},
		{"description at limit", models.HoroscopeInput{Level: 2, Description: strings.Repeat("a", MaxDescriptionLength)}, ""},
		{"multibyte counted as runes", models.HoroscopeInput{Level: 2, Description: strings.Repeat("ดี", MaxDescriptionLength/2)}, ""},
		{"note too long", models.HoroscopeInput{Level: 2, Description: "x", Note: strings.Repeat("n", MaxNoteLength+1)}, "note"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateHoroscope(tt.in)
			if tt.wantField == "" {
				if err != nil {
					t.Fatalf("ValidateHoroscope() error = %v, want nil", err)
				}
				return
			}
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("ValidateHoroscope() error = %v, want *ValidationError", err)
			}
			if verr.Field != tt.wantField {
				t.Errorf("ValidationError.Field = %q, want %q", verr.Field, tt.wantField)
			}
		})
	}
}

func TestPrepareHoroscopeTrims(t *testing.T) {
	in, err := PrepareHoroscope(models.HoroscopeInput{Level: 3, Description: "  calm  ", Note: "\tnone\n"})
	if err != nil {
		t.Fatalf("PrepareHoroscope() error = %v", err)
	}
	if in.Description != "calm" || in.Note != "none" {
		t.Errorf("PrepareHoroscope() = %+v, want trimmed fields", in)
	}

	_, err = PrepareHoroscope(models.HoroscopeInput{Level: 3, Description: "   "})
	var verr *ValidationError
	if !errors.As(err, &verr) || verr.Field != "description" {
		t.Errorf("PrepareHoroscope(blank) error = %v, want description error", err)
	}
}
