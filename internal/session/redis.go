package session

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"

	"github.com/Aamir1055/BrokerEye-sub005/pkg/config"
)

// RedisStore keeps the session in Redis so several CLI hosts or dashboard
// workers can share one login
type RedisStore struct {
	client *redis.Client
	logger *logrus.Entry
	prefix string
	ttl    time.Duration
}

// NewRedisStore connects to Redis and verifies the connection
func NewRedisStore(cfg *config.RedisConfig, sessCfg *config.SessionConfig, logger *logrus.Logger) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		PoolTimeout:  4 * time.Second,
		IdleTimeout:  5 * time.Minute,
		MaxRetries:   2,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ping Redis: %w", err)
	}

	return &RedisStore{
		client: client,
		logger: logger.WithField("component", "session-redis"),
		prefix: sessCfg.KeyPrefix,
		ttl:    sessCfg.TTL,
	}, nil
}

// Close closes the Redis connection
func (rs *RedisStore) Close() error {
	return rs.client.Close()
}

// Get returns the value stored under key
func (rs *RedisStore) Get(ctx context.Context, key string) (string, error) {
	v, err := rs.client.Get(ctx, rs.prefix+key).Result()
	if err == redis.Nil {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to get session key %s: %w", key, err)
	}
	return v, nil
}

// Set stores value under key with the configured TTL
func (rs *RedisStore) Set(ctx context.Context, key, value string) error {
	if err := rs.client.Set(ctx, rs.prefix+key, value, rs.ttl).Err(); err != nil {
		return fmt.Errorf("failed to set session key %s: %w", key, err)
	}
	return nil
}

// Delete removes keys
func (rs *RedisStore) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}

	prefixed := make([]string, len(keys))
	for i, k := range keys {
		prefixed[i] = rs.prefix + k
	}
	if err := rs.client.Del(ctx, prefixed...).Err(); err != nil {
		return fmt.Errorf("failed to delete session keys: %w", err)
	}

	rs.logger.WithField("keys", len(keys)).Debug("Deleted session keys")
	return nil
}
