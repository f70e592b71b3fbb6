// Package bootstrap wires the configured store, cache, metrics and
// application service for the command binaries.
package bootstrap

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"chequebook/internal/app"
	"chequebook/internal/cache"
	"chequebook/internal/config"
	"chequebook/internal/core"
	"chequebook/internal/db"
	"chequebook/internal/migration"
	"chequebook/internal/metrics"
	"chequebook/internal/store/memory"
	"chequebook/internal/store/postgres"
)

// devBranch is the only branch of a fresh memory store.
var devBranch = core.Branch{Code: "DEV", Name: "Development", RoutingNumber: "000000001"}

// Runtime is a wired application. Close releases its connections.
type Runtime struct {
	Service app.ApplicationService
	Metrics *metrics.Metrics
	Store   core.Store

	closers []func()
}

// Options adjusts Build.
type Options struct {
	// Migrate applies the embedded migrations before the pool is opened.
	Migrate bool
}

// Build opens the store selected by cfg.Store.Driver and the optional Redis
// branch cache.
func Build(ctx context.Context, cfg *config.Config, log *zap.Logger, opts Options) (*Runtime, error) {
	rt := &Runtime{Metrics: metrics.New()}

	switch cfg.Store.Driver {
	case "memory":
		s := memory.New()
		s.AddBranch(devBranch)
		rt.Store = s
		log.Warn("Using the in-memory store; the ledger is lost on exit")

	case "postgres":
		if opts.Migrate {
			if err := migrate(cfg.Database.URL, log); err != nil {
				return nil, err
			}
		}
		pool, err := db.NewPool(ctx, cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("database: %w", err)
		}
		rt.closers = append(rt.closers, pool.Close)
		rt.Store = postgres.New(pool, postgres.WithLedgerLockKey(cfg.Database.LedgerLockKey))
		log.Info("Connected to PostgreSQL", zap.Int32("max_conns", cfg.Database.MaxConns))

	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}

	var client *redis.Client
	if cfg.RedisEnabled() {
		c, err := cache.NewRedisClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			// Branch lookups fall back to the store.
			log.Warn("Branch cache disabled", zap.Error(err))
		} else {
			client = c
			rt.closers = append(rt.closers, func() { _ = c.Close() })
			log.Info("Branch cache enabled", zap.String("addr", cfg.Redis.Addr))
		}
	}
	branches := cache.NewBranchCache(client, rt.Store,
		cache.WithTTL(cfg.Redis.BranchTTL),
		cache.WithLogger(log),
	)

	rt.Service = app.NewAppService(app.Deps{
		Store:         rt.Store,
		Branches:      branches,
		Metrics:       rt.Metrics,
		Retry:         cfg.Retry,
		Logger:        log,
		MaxBatchUnits: cfg.Print.MaxBatchUnits,
	})
	return rt, nil
}

func migrate(databaseURL string, log *zap.Logger) error {
	m, err := migration.New(databaseURL, log)
	if err != nil {
		return err
	}
	defer m.Close()
	return m.Up()
}

// Close releases connections in reverse order of opening.
func (rt *Runtime) Close() {
	for i := len(rt.closers) - 1; i >= 0; i-- {
		rt.closers[i]()
	}
}
