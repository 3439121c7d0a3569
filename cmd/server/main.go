package main

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/clinicore/subscription-engine/internal/analytics"
	"github.com/clinicore/subscription-engine/internal/httpapi"
	"github.com/clinicore/subscription-engine/internal/storage"
	"github.com/clinicore/subscription-engine/internal/subscription"
	"github.com/clinicore/subscription-engine/internal/sweeper"
	"github.com/clinicore/subscription-engine/pkg/config"
	"github.com/clinicore/subscription-engine/pkg/httpserver"
	"github.com/clinicore/subscription-engine/pkg/logger"
	"github.com/clinicore/subscription-engine/pkg/pg"
	"github.com/clinicore/subscription-engine/pkg/redis"
	"github.com/clinicore/subscription-engine/pkg/schedule"
)

const serviceName = "subscription-engine"

// appConfig holds engine-specific settings; infra packages carry their own.
type appConfig struct {
	SweepHour     int           `env:"TRIAL_SWEEP_HOUR" envDefault:"3"`
	SweepMinute   int           `env:"TRIAL_SWEEP_MINUTE" envDefault:"0"`
	SweepTimezone string        `env:"TRIAL_SWEEP_TZ" envDefault:"UTC"`
	SweepLockTTL  time.Duration `env:"TRIAL_SWEEP_LOCK_TTL" envDefault:"10m"`
}

func main() {
	var (
		logCfg   logger.Config
		pgCfg    pg.Config
		redisCfg redis.Config
		httpCfg  httpserver.Config
		appCfg   appConfig
	)
	config.MustLoad(&logCfg)
	config.MustLoad(&pgCfg)
	config.MustLoad(&redisCfg)
	config.MustLoad(&httpCfg)
	config.MustLoad(&appCfg)

	log := logger.New(logCfg, logger.WithAttr(slog.String("service", serviceName)))
	slog.SetDefault(log)

	if err := run(log, pgCfg, redisCfg, httpCfg, appCfg); err != nil {
		log.Error("service stopped with error", logger.Error(err))
		os.Exit(1)
	}
}

func run(log *slog.Logger, pgCfg pg.Config, redisCfg redis.Config, httpCfg httpserver.Config, appCfg appConfig) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := pg.Connect(ctx, pgCfg)
	if err != nil {
		return err
	}
	defer pool.Close()

	if err := pg.Migrate(ctx, pool, pgCfg, log); err != nil {
		return err
	}

	redisClient, err := redis.Connect(ctx, redisCfg)
	if err != nil {
		return err
	}
	defer redisClient.Close()

	svc := subscription.New(
		storage.New(pool),
		analytics.NewReader(pool),
		subscription.WithLogger(log),
	)

	sweep := sweeper.New(svc,
		sweeper.WithLock(sweeper.NewRedisLock(redisClient), appCfg.SweepLockTTL),
		sweeper.WithLogger(log.With(logger.Component("sweeper"))),
	)

	loc, err := time.LoadLocation(appCfg.SweepTimezone)
	if err != nil {
		return err
	}
	runner, err := schedule.NewRunner(
		schedule.Daily(appCfg.SweepHour, appCfg.SweepMinute, loc),
		func(ctx context.Context) {
			if _, err := sweep.Run(ctx); err != nil {
				log.ErrorContext(ctx, "scheduled trial sweep failed", logger.Error(err))
			}
		},
		schedule.WithLogger(log.With(logger.Component("schedule"))),
	)
	if err != nil {
		return err
	}

	go func() {
		// Stops via ctx when the HTTP server shuts down.
		_ = runner.Start(ctx)
	}()

	router := httpapi.Router(httpapi.Options{
		Service: svc,
		Sweep:   sweep,
		Logger:  log,
		Probes:  []func(context.Context) error{pg.Healthcheck(pool), redis.Healthcheck(redisClient)},
	})

	return httpserver.New(httpCfg, log).Run(ctx, router)
}
