package cli

import (
	"context"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"learner-progress-service/internal/app"
	"learner-progress-service/internal/backup"
	"learner-progress-service/internal/catalog"
	"learner-progress-service/internal/config"
	"learner-progress-service/internal/infra/memory"
	redisstore "learner-progress-service/internal/infra/redis"
	"learner-progress-service/internal/infra/sqlite"
	"learner-progress-service/internal/validate"
)

// runtime bundles the loaded configuration and the service built from it.
type runtime struct {
	cfg     config.Config
	log     *slog.Logger
	service *app.ProgressService
	closers []func() error
}

func (r *runtime) Close() {
	for i := len(r.closers) - 1; i >= 0; i-- {
		if err := r.closers[i](); err != nil {
			r.log.Warn("close failed", "error", err)
		}
	}
}

// loadRuntime reads config, opens storage and loads the learner's progress.
func loadRuntime(ctx context.Context, configPath string) (*runtime, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	logger := newLogger(cfg)
	rt := &runtime{cfg: cfg, log: logger}

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		rt.closers = append(rt.closers, redisClient.Close)
	}

	kv, err := openStore(ctx, cfg, redisClient, rt)
	if err != nil {
		rt.Close()
		return nil, err
	}

	loader := catalog.NewFileLoader(cfg.Catalog.Path)
	catalogTTL := config.TTLDuration(cfg.Catalog.TTL, 10*time.Minute)
	var catalogRepo app.CatalogRepository
	if redisClient != nil {
		catalogRepo = redisstore.NewCatalogRepository(redisClient, loader, cfg.Storage.KeyPrefix, catalogTTL)
	} else {
		catalogRepo = memory.NewCatalogRepository(loader, catalogTTL)
	}

	v := validate.New()
	rt.service = app.NewProgressService(app.Deps{
		Store:     kv,
		Catalog:   catalogRepo,
		Validator: v,
		Codec:     backup.NewCodec(v, cfg.Backup.MaxPayloadBytes, time.Now),
		Logger:    logger,
	})
	warning, err := rt.service.Load(ctx)
	if err != nil {
		rt.Close()
		return nil, err
	}
	if warning != "" {
		logger.Warn("progress loaded with warning", "warning", warning)
	}
	return rt, nil
}

func openStore(ctx context.Context, cfg config.Config, client *redis.Client, rt *runtime) (app.KeyValueStore, error) {
	switch cfg.Storage.Driver {
	case config.DriverSQLite:
		db, err := sqlite.Open(ctx, cfg.Storage.SQLitePath)
		if err != nil {
			return nil, err
		}
		rt.closers = append(rt.closers, db.Close)
		return sqlite.NewKVStore(db, cfg.Storage.QuotaBytes), nil
	case config.DriverRedis:
		if client == nil {
			return nil, errors.New("redis storage requires redis.addr")
		}
		if err := client.Ping(ctx).Err(); err != nil {
			return nil, errors.Wrap(err, "ping redis")
		}
		ttl := config.TTLDuration(cfg.Redis.TTL, 0)
		return redisstore.NewKVStore(client, cfg.Storage.KeyPrefix, ttl, cfg.Storage.QuotaBytes), nil
	default:
		return memory.NewKVStore(cfg.Storage.QuotaBytes), nil
	}
}

// openSQLite connects without migrating, for the migrate command.
func openSQLite(ctx context.Context, cfg config.Config) (*sqlx.DB, error) {
	if cfg.Storage.SQLitePath == "" {
		return nil, errors.New("sqlite path not configured")
	}
	return sqlite.Connect(ctx, cfg.Storage.SQLitePath)
}
