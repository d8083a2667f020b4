package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mkutlay/feedsync/internal/config"
	"github.com/mkutlay/feedsync/internal/feed"
	"github.com/mkutlay/feedsync/internal/utils"
	"github.com/redis/go-redis/v9"
)

// RedisStore keeps validators in Redis, surviving process restarts.
type RedisStore struct {
	client *redis.Client
	prefix string
}

func NewRedisStore(cfg *config.Config) (*RedisStore, error) {
	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	client := redis.NewClient(opt)

	// Test the connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisStore{
		client: client,
		prefix: cfg.RedisPrefix,
	}, nil
}

func (r *RedisStore) Close() error {
	return r.client.Close()
}

func (r *RedisStore) key(url string) string {
	return r.prefix + "validators:" + utils.Hash(url)
}

func (r *RedisStore) GetValidators(ctx context.Context, url string) (feed.Validators, error) {
	var v feed.Validators
	data, err := r.client.Get(ctx, r.key(url)).Bytes()
	if err == redis.Nil {
		return v, nil
	}
	if err != nil {
		return v, fmt.Errorf("redis get error: %w", err)
	}
	if err := json.Unmarshal(data, &v); err != nil {
		return feed.Validators{}, fmt.Errorf("decode validators: %w", err)
	}
	return v, nil
}

func (r *RedisStore) SetValidators(ctx context.Context, url string, v feed.Validators, ttl time.Duration) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode validators: %w", err)
	}
	return r.client.Set(ctx, r.key(url), data, ttl).Err()
}

func (r *RedisStore) Clear(ctx context.Context) error {
	iter := r.client.Scan(ctx, 0, r.prefix+"*", 0).Iterator()
	var keys []string

	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}

	if err := iter.Err(); err != nil {
		return fmt.Errorf("error scanning keys: %w", err)
	}

	if len(keys) > 0 {
		if err := r.client.Del(ctx, keys...).Err(); err != nil {
			return fmt.Errorf("error deleting keys: %w", err)
		}
	}

	return nil
}
