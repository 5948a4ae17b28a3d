package main

import (
	"context"
	"log"
	"time"

	redis "github.com/redis/go-redis/v9"

	"github.com/yourusername/dashboard-gate/internal/audit"
	"github.com/yourusername/dashboard-gate/internal/auth"
	"github.com/yourusername/dashboard-gate/internal/config"
	"github.com/yourusername/dashboard-gate/internal/ratelimit"
)

// redisDeps は REDIS_URL の有無で切り替わる部品をまとめたものです。
type redisDeps struct {
	limiter  ratelimit.Limiter
	recorder auth.AttemptRecorder
	events   audit.EventReader
	closers  []func() error
}

func (d *redisDeps) Close() {
	for i := len(d.closers) - 1; i >= 0; i-- {
		if err := d.closers[i](); err != nil {
			log.Printf("close: %v", err)
		}
	}
}

// emptyEvents は監査ログが無効な場合に使う空の EventReader です。
type emptyEvents struct{}

func (emptyEvents) Recent(context.Context, int) ([]audit.Event, error) {
	return []audit.Event{}, nil
}

func throttlePolicy(cfg *config.Config) ratelimit.Policy {
	return ratelimit.Policy{
		MaxAttempts:  cfg.LoginMaxAttempts,
		Window:       time.Duration(cfg.LoginWindowMinutes) * time.Minute,
		LockDuration: time.Duration(cfg.LoginLockMinutes) * time.Minute,
	}
}

func setupRedisDeps(cfg *config.Config, logger *log.Logger) (*redisDeps, error) {
	policy := throttlePolicy(cfg)

	// Redis 未設定ならインメモリで動かし、監査ログは無効にする
	if cfg.RedisURL == "" {
		logger.Printf("REDIS_URL is not set; using in-memory login throttling and disabling the audit log")
		return &redisDeps{
			limiter: ratelimit.NewMemory(policy),
			events:  emptyEvents{},
		}, nil
	}

	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, err
	}
	redisClient := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		redisClient.Close()
		return nil, err
	}

	store := audit.NewStore(redisClient, cfg.AuditRetention)
	manager, err := audit.NewManager(cfg.RedisURL, store, logger)
	if err != nil {
		redisClient.Close()
		return nil, err
	}
	manager.StartWorkers()

	return &redisDeps{
		limiter:  ratelimit.NewRedis(redisClient, policy),
		recorder: manager,
		events:   store,
		closers:  []func() error{redisClient.Close, manager.Shutdown},
	}, nil
}
