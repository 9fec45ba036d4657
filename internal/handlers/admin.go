package handlers

import (
	"errors"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v3"
	"github.com/rs/zerolog"

	"horoscope/internal/config"
	"horoscope/internal/db"
	"horoscope/internal/middleware"
	"horoscope/internal/models"
	"horoscope/internal/validation"
)

// levelBadgeClasses maps a level variant to its badge styling.
var levelBadgeClasses = map[string]string{
	"green":  "bg-emerald-100 text-emerald-700 dark:bg-emerald-900/50 dark:text-emerald-300",
	"blue":   "bg-sky-100 text-sky-700 dark:bg-sky-900/50 dark:text-sky-300",
	"yellow": "bg-amber-100 text-amber-700 dark:bg-amber-900/50 dark:text-amber-300",
	"orange": "bg-orange-100 text-orange-700 dark:bg-orange-900/50 dark:text-orange-300",
	"red":    "bg-rose-100 text-rose-700 dark:bg-rose-900/50 dark:text-rose-300",
}

// levelRow is one line of the per-level totals table.
type levelRow struct {
	Level models.Level
	Label string
	Badge string
	Count int
}

// horoscopeRow is a horoscope decorated for display.
type horoscopeRow struct {
	models.Horoscope
	Label string
	Badge string
}

// AdminHandler serves the horoscope management pages.
type AdminHandler struct {
	store db.HoroscopeStore
	cfg   *config.Config
	log   zerolog.Logger
}

// NewAdminHandler creates a new admin handler.
func NewAdminHandler(store db.HoroscopeStore, cfg *config.Config, log zerolog.Logger) *AdminHandler {
	return &AdminHandler{store: store, cfg: cfg, log: log}
}

func badgeFor(level models.Level) string {
	return levelBadgeClasses[level.Variant()]
}

// Index renders the management page with optional search.
func (h *AdminHandler) Index(c fiber.Ctx) error {
	return h.render(c, fiber.StatusOK, nil, models.HoroscopeInput{})
}

// render draws the admin page, carrying a failed form submission back to the user.
func (h *AdminHandler) render(c fiber.Ctx, status int, formErr error, form models.HoroscopeInput) error {
	search := strings.TrimSpace(c.Query("q", ""))

	all, err := h.store.ListHoroscopes(c.Context(), "")
	if err != nil {
		h.log.Error().Err(err).Msg("failed to list horoscopes")
		return fiber.NewError(fiber.StatusServiceUnavailable, "horoscopes are temporarily unavailable")
	}

	matched := all
	if search != "" {
		matched, err = h.store.ListHoroscopes(c.Context(), search)
		if err != nil {
			h.log.Error().Err(err).Str("q", search).Msg("failed to search horoscopes")
			return fiber.NewError(fiber.StatusServiceUnavailable, "horoscopes are temporarily unavailable")
		}
	}

	counts := make(map[models.Level]int)
	for _, hs := range all {
		counts[hs.Level]++
	}
	rows := make([]horoscopeRow, len(matched))
	for i, hs := range matched {
		rows[i] = horoscopeRow{Horoscope: hs, Label: hs.Level.Label(), Badge: badgeFor(hs.Level)}
	}

	totals := make([]levelRow, 0, len(models.Levels()))
	for _, level := range models.Levels() {
		totals = append(totals, levelRow{
			Level: level,
			Label: level.Label(),
			Badge: badgeFor(level),
			Count: counts[level],
		})
	}

	data := fiber.Map{
		"Title":      "Manage horoscopes",
		"Horoscopes": rows,
		"Totals":     totals,
		"Total":      len(all),
		"Matched":    len(rows),
		"Search":     search,
		"Levels":     models.Levels(),
		"Identity":   middleware.CurrentIdentity(c),
		"Form":       form,
	}
	if formErr != nil {
		data["Error"] = formErr.Error()
	}

	if c.Get("HX-Request") == "true" {
		return c.Status(status).Render("partials/admin_list", data, "")
	}

	return c.Status(status).Render("admin", MergeBranding(data, h.cfg))
}

// formInput reads a horoscope from a submitted form.
func formInput(c fiber.Ctx) (models.HoroscopeInput, error) {
	in := models.HoroscopeInput{
		Description: c.FormValue("description"),
		Note:        c.FormValue("note"),
	}
	level, err := strconv.Atoi(strings.TrimSpace(c.FormValue("level")))
	if err != nil {
		return in, &validation.ValidationError{Field: "level", Message: "level must be a number"}
	}
	in.Level = level
	return in, nil
}

// Create adds a horoscope from the admin form.
func (h *AdminHandler) Create(c fiber.Ctx) error {
	in, err := formInput(c)
	if err == nil {
		in, err = validation.PrepareHoroscope(in)
	}
	if err != nil {
		return h.render(c, fiber.StatusUnprocessableEntity, err, in)
	}

	created, err := h.store.CreateHoroscope(c.Context(), in)
	if err != nil {
		h.log.Error().Err(err).Msg("failed to create horoscope")
		return fiber.NewError(fiber.StatusServiceUnavailable, "failed to save horoscope")
	}

	h.log.Info().Int64("id", created.ID).Msg("horoscope created from admin page")
	return c.Redirect().To("/admin")
}

// Update replaces a horoscope's fields from the admin form.
func (h *AdminHandler) Update(c fiber.Ctx) error {
	id, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil || id <= 0 {
		return fiber.NewError(fiber.StatusBadRequest, "invalid horoscope id")
	}

	in, err := formInput(c)
	if err == nil {
		in, err = validation.PrepareHoroscope(in)
	}
	if err != nil {
		return h.render(c, fiber.StatusUnprocessableEntity, err, in)
	}

	if _, err := h.store.UpdateHoroscope(c.Context(), id, in); err != nil {
		if errors.Is(err, db.ErrHoroscopeNotFound) {
			return fiber.NewError(fiber.StatusNotFound, "horoscope not found")
		}
		h.log.Error().Err(err).Int64("id", id).Msg("failed to update horoscope")
		return fiber.NewError(fiber.StatusServiceUnavailable, "failed to save horoscope")
	}

	return c.Redirect().To("/admin")
}

// Delete removes a horoscope.
func (h *AdminHandler) Delete(c fiber.Ctx) error {
	id, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil || id <= 0 {
		return fiber.NewError(fiber.StatusBadRequest, "invalid horoscope id")
	}

	if err := h.store.DeleteHoroscope(c.Context(), id); err != nil {
		if errors.Is(err, db.ErrHoroscopeNotFound) {
			return fiber.NewError(fiber.StatusNotFound, "horoscope not found")
		}
		h.log.Error().Err(err).Int64("id", id).Msg("failed to delete horoscope")
		return fiber.NewError(fiber.StatusServiceUnavailable, "failed to delete horoscope")
	}

	h.log.Info().Int64("id", id).Msg("horoscope deleted from admin page")
	return c.Redirect().To("/admin")
}
