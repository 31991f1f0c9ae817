package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/barberflow/booking-engine/internal/booking"
	"github.com/barberflow/booking-engine/internal/config"
	"github.com/barberflow/booking-engine/internal/db"
	redisclient "github.com/barberflow/booking-engine/internal/redis"
)

// The completion worker sweeps confirmed appointments whose end time has
// passed and marks them completed, mirroring the source of truth a front
// desk would keep by hand.
func main() {
	logger := zerolog.New(os.Stdout).With().Timestamp().Str("service", "completion-worker").Logger()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("config load error")
	}

	logger.Info().Str("env", cfg.Env).Dur("interval", cfg.WorkerInterval).Msg("completion-worker starting up")

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN)
	cancelPg()
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres connection error")
	}
	defer pgPool.Close()
	logger.Info().Msg("connected to Postgres")

	rdb, err := redisclient.NewClient(cfg.RedisAddr, cfg.RedisUsername, cfg.RedisPassword)
	if err != nil {
		logger.Fatal().Err(err).Msg("redis connection error")
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			logger.Warn().Err(err).Msg("error closing redis")
		}
	}()
	logger.Info().Msg("connected to Redis")

	repo := booking.NewPgRepository(pgPool)
	locker := redisclient.NewScheduleLocker(rdb, cfg.LockTTL, cfg.LockWait)
	engine := booking.NewEngine(repo, locker, cfg, logger)

	// Run once at startup
	runOnce(rootCtx, engine, logger)

	ticker := time.NewTicker(cfg.WorkerInterval)
	defer ticker.Stop()

	for {
		select {
		case <-rootCtx.Done():
			logger.Info().Msg("shutdown signal received, stopping completion worker")
			return
		case <-ticker.C:
			runOnce(rootCtx, engine, logger)
		}
	}
}

func runOnce(ctx context.Context, engine *booking.Engine, logger zerolog.Logger) {
	runCtx, cancel := context.WithTimeout(ctx, 20*time.Second)
	defer cancel()

	start := time.Now()
	if err := engine.CompleteFinished(runCtx, start); err != nil {
		logger.Error().Err(err).Msg("completion run error")
		return
	}
	logger.Info().Dur("took", time.Since(start)).Msg("completion run complete")
}
