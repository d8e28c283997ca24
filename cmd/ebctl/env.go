package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/hibiken/asynq"

	"github.com/estatebook/estatebook/internal/app"
	"github.com/estatebook/estatebook/internal/platform/cache"
	"github.com/estatebook/estatebook/internal/platform/db"
)

// env resolves configuration and connections lazily so that argument errors
// surface before anything is dialled.
type env struct {
	loadConfig func() (*app.Config, error)
	logger     *slog.Logger
}

func defaultEnv() *env {
	return &env{
		loadConfig: app.LoadConfig,
		logger:     slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo})),
	}
}

func (e *env) config() (*app.Config, error) {
	return e.loadConfig()
}

// services opens PostgreSQL and Redis and builds the domain layer. The
// returned func releases both connections.
func (e *env) services(ctx context.Context) (*app.Services, func(), error) {
	cfg, err := e.config()
	if err != nil {
		return nil, nil, err
	}
	pool, err := db.New(ctx, cfg.PGDSN, db.PoolOptions{MaxConns: 4})
	if err != nil {
		return nil, nil, err
	}
	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		pool.Close()
		return nil, nil, err
	}
	closeAll := func() {
		_ = redisClient.Close()
		pool.Close()
	}
	svc, err := app.BuildServices(cfg, pool, redisClient, nil, false)
	if err != nil {
		closeAll()
		return nil, nil, err
	}
	return svc, closeAll, nil
}

func (e *env) redisOpts() (asynq.RedisClientOpt, error) {
	cfg, err := e.config()
	if err != nil {
		return asynq.RedisClientOpt{}, err
	}
	return asynq.RedisClientOpt{Addr: cfg.RedisAddr}, nil
}
