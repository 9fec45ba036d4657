package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"horoscope/internal/config"
	"horoscope/internal/db"
	"horoscope/internal/logging"
	"horoscope/internal/metrics"
	"horoscope/internal/models"
	"horoscope/internal/selector"
	"horoscope/internal/server"
	"horoscope/internal/validation"
)

func main() {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		boot := logging.New("", "")
		boot.Fatal().Err(err).Msg("failed to load config")
	}
	log := logging.New(cfg.Env, cfg.LogLevel)

	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}

	database, err := db.New(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer database.Close()

	if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
		log.Fatal().Err(err).Msg("failed to run migrations")
	}
	log.Info().Msg("migrations completed")

	if err := seed(ctx, database, cfg.SeedFile, log); err != nil {
		log.Fatal().Err(err).Str("file", cfg.SeedFile).Msg("failed to seed horoscopes")
	}

	metrics.Init(database, log)

	srv := server.New(cfg, log, server.WithStorage(server.NewStorage(cfg)))
	deps := server.Deps{
		Store:  database,
		Picker: selector.New(database, selector.WithLogger(log)),
		Pinger: database,
	}
	if err := srv.RegisterRoutes(ctx, deps); err != nil {
		log.Fatal().Err(err).Msg("failed to register routes")
	}

	go func() {
		if err := srv.Start(); err != nil {
			log.Error().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server")
	if err := srv.Shutdown(10 * time.Second); err != nil {
		log.Fatal().Err(err).Msg("server forced to shutdown")
	}
	log.Info().Msg("server exited")
}

type seeder interface {
	SeedHoroscopes(ctx context.Context, inputs []models.HoroscopeInput) (int, error)
}

// seed loads the optional seed file into an empty table.
func seed(ctx context.Context, database seeder, path string, log zerolog.Logger) error {
	file, err := config.LoadSeedFile(path)
	if err != nil || file == nil {
		return err
	}

	inputs := make([]models.HoroscopeInput, 0, len(file.Horoscopes))
	for i, in := range file.Horoscopes {
		prepared, err := validation.PrepareHoroscope(in)
		if err != nil {
			log.Warn().Err(err).Int("index", i).Msg("skipping invalid seed entry")
			continue
		}
		inputs = append(inputs, prepared)
	}

	n, err := database.SeedHoroscopes(ctx, inputs)
	if err != nil {
		return err
	}
	if n > 0 {
		log.Info().Int("count", n).Msg("seeded horoscopes")
	}
	return nil
}
