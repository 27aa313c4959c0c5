package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/abirakhuli/Diabetic-Retinopathy-Detection-System/internal/domain"
)

// ErrCacheMiss is returned when no analysis is cached for an image hash.
var ErrCacheMiss = errors.New("analysis not cached")

// ResultCache short-circuits repeat screenings of the same image bytes.
type ResultCache interface {
	Get(ctx context.Context, sha256hex string) (*domain.Analysis, error)
	Set(ctx context.Context, sha256hex string, a *domain.Analysis) error
	Close() error
}

type redisCache struct {
	client *redis.Client
	ttl    time.Duration
	log    *zap.Logger
}

func NewRedisCache(addr, password string, ttl time.Duration, log *zap.Logger) ResultCache {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		log.Warn("Redis is unreachable, cache will degrade to misses", zap.Error(err))
	}

	return &redisCache{client: client, ttl: ttl, log: log}
}

func cacheKey(sha256hex string) string {
	return "analysis:sha256:" + sha256hex
}

func (c *redisCache) Get(ctx context.Context, sha256hex string) (*domain.Analysis, error) {
	data, err := c.client.Get(ctx, cacheKey(sha256hex)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("cache get: %w", err)
	}

	var a domain.Analysis
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("decode cached analysis: %w", err)
	}
	return &a, nil
}

func (c *redisCache) Set(ctx context.Context, sha256hex string, a *domain.Analysis) error {
	data, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("encode analysis: %w", err)
	}

	if err := c.client.Set(ctx, cacheKey(sha256hex), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("cache set: %w", err)
	}
	return nil
}

func (c *redisCache) Close() error {
	return c.client.Close()
}
