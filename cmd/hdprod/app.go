package main

import (
	"context"
	"errors"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/gyeh/hdprod/internal/apperr"
	"github.com/gyeh/hdprod/internal/db"
	"github.com/gyeh/hdprod/internal/exitcode"
	"github.com/gyeh/hdprod/internal/ingest"
	"github.com/gyeh/hdprod/internal/logging"
	"github.com/gyeh/hdprod/internal/model"
	"github.com/gyeh/hdprod/internal/production"
	"github.com/gyeh/hdprod/internal/registry"
	"github.com/gyeh/hdprod/internal/report"
	"github.com/gyeh/hdprod/internal/tariff"
	"github.com/gyeh/hdprod/internal/tariffcache"
	"github.com/gyeh/hdprod/internal/timeline"
)

// app is the set of services a command runs against.
type app struct {
	log      zerolog.Logger
	pool     *pgxpool.Pool
	store    *db.Store
	rdb      *redis.Client
	cache    *tariffcache.Cache // nil without --redis
	registry *registry.Service
	catalog  *tariff.Catalog
	resolver *tariff.Resolver
	prod     *production.Service
	report   *report.Service
	timeline *timeline.Service
}

func newLogger() zerolog.Logger {
	lvl, err := cfg.Level()
	log := logging.Setup(cfg.LogFormat, lvl)
	if err != nil {
		log.Error().Err(err).Msg("config validation failed")
		os.Exit(exitcode.UsageError)
	}
	return log
}

// openApp connects to Postgres, and to Redis when configured, and builds
// the services. It exits the process on connection failure.
func openApp(ctx context.Context, log zerolog.Logger) *app {
	if err := cfg.ValidateDSN(); err != nil {
		log.Error().Err(err).Msg("config validation failed")
		os.Exit(exitcode.UsageError)
	}

	pool, err := db.NewPool(ctx, cfg.DSN)
	if err != nil {
		log.Error().Err(err).Msg("database connection failed")
		os.Exit(exitcode.DBConnError)
	}

	a := &app{log: log, pool: pool, store: db.NewStore(pool, log)}
	var src tariff.Source = a.store
	if cfg.RedisAddr != "" {
		a.rdb, err = tariffcache.Connect(ctx, cfg.RedisAddr)
		if err != nil {
			pool.Close()
			log.Error().Err(err).Str("addr", cfg.RedisAddr).Msg("redis connection failed")
			os.Exit(exitcode.DBConnError)
		}
		a.cache = tariffcache.New(a.rdb, a.store, cfg.CacheTTL, log)
		src = a.cache
	}

	a.registry = registry.NewService(a.store, log)
	a.catalog = tariff.NewCatalog(a.store, log)
	if a.cache != nil {
		a.catalog.WithInvalidator(a.cache)
	}
	a.resolver = tariff.NewResolver(src, log)
	a.prod = production.NewService(a.store, a.resolver, model.SystemClock{}, log)
	a.report = report.NewService(a.store, log)
	a.timeline = timeline.NewService(a.store, model.SystemClock{}, log)
	return a
}

// invalidator returns the cache as a tariff.Invalidator, or nil.
func (a *app) invalidator() tariff.Invalidator {
	if a.cache == nil {
		return nil
	}
	return a.cache
}

func (a *app) Close() {
	if a.rdb != nil {
		_ = a.rdb.Close()
	}
	a.pool.Close()
}

func actor() model.Actor {
	return model.Actor(cfg.Actor)
}

// exitCode maps a service error onto a process exit code.
func exitCode(err error) int {
	var pe *ingest.PipelineError
	switch {
	case errors.As(err, &pe):
		switch pe.Phase {
		case "preflight":
			return exitcode.ValidationError
		case "stage":
			return exitcode.CopyError
		default:
			return exitcode.TransformError
		}
	case apperr.IsValidation(err):
		return exitcode.ValidationError
	case apperr.IsNotFound(err):
		return exitcode.NotFound
	case apperr.IsConflict(err):
		return exitcode.Conflict
	default:
		return exitcode.TransformError
	}
}

// fail logs err and exits with its mapped code.
func fail(log zerolog.Logger, err error, msg string) {
	log.Error().Err(err).Msg(msg)
	os.Exit(exitCode(err))
}
