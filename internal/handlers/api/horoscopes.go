package api

import (
	"encoding/json"
	"errors"

	"github.com/gofiber/fiber/v3"
	"github.com/rs/zerolog"

	"horoscope/internal/db"
	"horoscope/internal/models"
	"horoscope/internal/validation"
)

// HoroscopeHandler handles horoscope CRUD operations via JSON API.
type HoroscopeHandler struct {
	store db.HoroscopeStore
	log   zerolog.Logger
}

// NewHoroscopeHandler creates a new API horoscope handler.
func NewHoroscopeHandler(store db.HoroscopeStore, log zerolog.Logger) *HoroscopeHandler {
	return &HoroscopeHandler{store: store, log: log}
}

// List returns all horoscopes, optionally filtered by search query.
func (h *HoroscopeHandler) List(c fiber.Ctx) error {
	horoscopes, err := h.store.ListHoroscopes(c.Context(), c.Query("q", ""))
	if err != nil {
		h.log.Error().Err(err).Msg("failed to list horoscopes")
		return jsonError(c, fiber.StatusInternalServerError, "failed to fetch horoscopes")
	}

	return jsonSuccess(c, horoscopes)
}

// Get returns a single horoscope by ID.
func (h *HoroscopeHandler) Get(c fiber.Ctx) error {
	id, ok := parseID(c.Params("id"))
	if !ok {
		return jsonError(c, fiber.StatusBadRequest, "invalid horoscope id")
	}

	horoscope, err := h.store.GetHoroscopeByID(c.Context(), id)
	if err != nil {
		if errors.Is(err, db.ErrHoroscopeNotFound) {
			return jsonError(c, fiber.StatusNotFound, "horoscope not found")
		}
		h.log.Error().Err(err).Int64("id", id).Msg("failed to fetch horoscope")
		return jsonError(c, fiber.StatusInternalServerError, "failed to fetch horoscope")
	}

	return jsonSuccess(c, horoscope)
}

// Create creates a new horoscope.
func (h *HoroscopeHandler) Create(c fiber.Ctx) error {
	var body models.HoroscopeInput
	if err := json.Unmarshal(c.Body(), &body); err != nil {
		return jsonError(c, fiber.StatusBadRequest, "invalid request body")
	}

	in, err := validation.PrepareHoroscope(body)
	if err != nil {
		var verr *validation.ValidationError
		if errors.As(err, &verr) {
			return jsonValidationError(c, verr)
		}
		return jsonError(c, fiber.StatusBadRequest, err.Error())
	}

	horoscope, err := h.store.CreateHoroscope(c.Context(), in)
	if err != nil {
		h.log.Error().Err(err).Msg("failed to create horoscope")
		return jsonError(c, fiber.StatusInternalServerError, "failed to create horoscope")
	}

	h.log.Info().Int64("id", horoscope.ID).Int("level", int(horoscope.Level)).Msg("horoscope created")
	c.Status(fiber.StatusCreated)
	return jsonSuccess(c, horoscope)
}

// Update applies a partial update to a horoscope.
func (h *HoroscopeHandler) Update(c fiber.Ctx) error {
	id, ok := parseID(c.Params("id"))
	if !ok {
		return jsonError(c, fiber.StatusBadRequest, "invalid horoscope id")
	}

	var body models.HoroscopeUpdate
	if err := json.Unmarshal(c.Body(), &body); err != nil {
		return jsonError(c, fiber.StatusBadRequest, "invalid request body")
	}

	existing, err := h.store.GetHoroscopeByID(c.Context(), id)
	if err != nil {
		if errors.Is(err, db.ErrHoroscopeNotFound) {
			return jsonError(c, fiber.StatusNotFound, "horoscope not found")
		}
		h.log.Error().Err(err).Int64("id", id).Msg("failed to fetch horoscope for update")
		return jsonError(c, fiber.StatusInternalServerError, "failed to update horoscope")
	}

	in, err := validation.PrepareHoroscope(body.Apply(existing))
	if err != nil {
		var verr *validation.ValidationError
		if errors.As(err, &verr) {
			return jsonValidationError(c, verr)
		}
		return jsonError(c, fiber.StatusBadRequest, err.Error())
	}

	updated, err := h.store.UpdateHoroscope(c.Context(), id, in)
	if err != nil {
		if errors.Is(err, db.ErrHoroscopeNotFound) {
			return jsonError(c, fiber.StatusNotFound, "horoscope not found")
		}
		h.log.Error().Err(err).Int64("id", id).Msg("failed to update horoscope")
		return jsonError(c, fiber.StatusInternalServerError, "failed to update horoscope")
	}

	return jsonSuccess(c, updated)
}

// Delete deletes a horoscope.
func (h *HoroscopeHandler) Delete(c fiber.Ctx) error {
	id, ok := parseID(c.Params("id"))
	if !ok {
		return jsonError(c, fiber.StatusBadRequest, "invalid horoscope id")
	}

	if err := h.store.DeleteHoroscope(c.Context(), id); err != nil {
		if errors.Is(err, db.ErrHoroscopeNotFound) {
			return jsonError(c, fiber.StatusNotFound, "horoscope not found")
		}
		h.log.Error().Err(err).Int64("id", id).Msg("failed to delete horoscope")
		return jsonError(c, fiber.StatusInternalServerError, "failed to delete horoscope")
	}

	h.log.Info().Int64("id", id).Msg("horoscope deleted")
	return jsonSuccess(c, fiber.Map{"id": id})
}
