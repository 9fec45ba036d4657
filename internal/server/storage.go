package server

import (
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/storage/redis/v3"

	"horoscope/internal/config"
)

// NewStorage returns the shared session and rate-limit storage, or nil to
// keep both in process memory.
func NewStorage(cfg *config.Config) fiber.Storage {
	if cfg.RedisURL == "" {
		return nil
	}
	return redis.New(redis.Config{
		URL:   cfg.RedisURL,
		Reset: false,
	})
}
