package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// Store implements domain.CacheStore on a Redis client. Every operation is
// bounded by opTimeout so a down cache degrades redirects instead of
// stalling them.
type Store struct {
	client    *redis.Client
	logger    *slog.Logger
	opTimeout time.Duration
}

func NewStore(client *redis.Client, logger *slog.Logger, opTimeout time.Duration) *Store {
	if opTimeout <= 0 {
		opTimeout = 500 * time.Millisecond
	}
	return &Store{
		client:    client,
		logger:    logger,
		opTimeout: opTimeout,
	}
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()

	val, err := s.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			// Cache miss is not an error
			return nil, nil
		}
		s.logger.Error("Failed to get from cache", "key", key, "error", err)
		return nil, fmt.Errorf("cache get failed: %w", err)
	}
	return val, nil
}

func (s *Store) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()

	if err := s.client.Set(ctx, key, value, ttl).Err(); err != nil {
		s.logger.Error("Failed to set cache", "key", key, "error", err)
		return fmt.Errorf("cache set failed: %w", err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, key string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()

	deleted, err := s.client.Del(ctx, key).Result()
	if err != nil {
		s.logger.Error("Failed to delete from cache", "key", key, "error", err)
		return false, fmt.Errorf("cache delete failed: %w", err)
	}
	return deleted > 0, nil
}

func (s *Store) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()

	if err := s.client.Ping(ctx).Err(); err != nil {
		s.logger.Error("Failed to ping Redis", "error", err)
		return fmt.Errorf("redis ping failed: %w", err)
	}
	return nil
}
