package api

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v3"
	"github.com/rs/zerolog"

	"horoscope/internal/metrics"
	"horoscope/internal/models"
	"horoscope/internal/selector"
)

// Picker returns one uniformly chosen horoscope.
type Picker interface {
	Pick(ctx context.Context, excludeID int64) (models.Horoscope, error)
}

// FortuneHandler serves the random fortune endpoint.
type FortuneHandler struct {
	picker Picker
	log    zerolog.Logger
}

// NewFortuneHandler creates a new fortune handler.
func NewFortuneHandler(picker Picker, log zerolog.Logger) *FortuneHandler {
	return &FortuneHandler{picker: picker, log: log}
}

// fortuneResponse is the wire body of a random fortune.
type fortuneResponse struct {
	ID          int64        `json:"id"`
	Level       models.Level `json:"level"`
	Description string       `json:"description"`
	Note        string       `json:"note"`
}

// Random returns one horoscope chosen uniformly, optionally excluding one id.
// The body is the bare record, not the API envelope.
func (h *FortuneHandler) Random(c fiber.Ctx) error {
	var excludeID int64
	if raw := c.Query("exclude"); raw != "" && raw != "0" {
		id, ok := parseID(raw)
		if !ok {
			return jsonError(c, fiber.StatusBadRequest, "exclude must be a positive integer")
		}
		excludeID = id
	}

	picked, err := h.picker.Pick(c.Context(), excludeID)
	if err != nil {
		if errors.Is(err, selector.ErrNotFound) {
			metrics.RecordDraw(metrics.OutcomeNotFound)
			return jsonError(c, fiber.StatusNotFound, "no horoscope available")
		}
		metrics.RecordDraw(metrics.OutcomeUnavailable)
		h.log.Error().Err(err).Int64("exclude", excludeID).Msg("random horoscope failed")
		return jsonError(c, fiber.StatusServiceUnavailable, "horoscopes are temporarily unavailable")
	}

	metrics.RecordDraw(metrics.OutcomeOK)
	c.Set(fiber.HeaderCacheControl, "no-store")
	return c.JSON(fortuneResponse{
		ID:          picked.ID,
		Level:       picked.Level,
		Description: picked.Description,
		Note:        picked.Note,
	})
}
