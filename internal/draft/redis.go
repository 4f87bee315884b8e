package draft

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/starford/contextpad/internal/apperr"
	"github.com/starford/contextpad/internal/models"
)

// Redis implements Store under one fixed key.
type Redis struct {
	client   *redis.Client
	key      string
	maxBytes int64
}

// NewRedis connects to redisURL and checks the connection.
func NewRedis(redisURL, prefix string, maxBytes int64) (*Redis, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("draft: parse redis url: %w", err)
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("draft: connect to redis: %w", err)
	}
	return NewRedisWithClient(client, prefix, maxBytes), nil
}

// NewRedisWithClient creates a store from an existing client.
func NewRedisWithClient(client *redis.Client, prefix string, maxBytes int64) *Redis {
	return &Redis{client: client, key: prefix + SlotKey, maxBytes: maxBytes}
}

// Key returns the Redis key of the slot.
func (r *Redis) Key() string {
	return r.key
}

func (r *Redis) Save(ctx context.Context, doc models.Document) error {
	data, err := encode(doc, r.maxBytes)
	if err != nil {
		return err
	}
	if err := r.client.Set(ctx, r.key, data, 0).Err(); err != nil {
		return fmt.Errorf("draft: redis set: %w: %v", apperr.ErrStorage, err)
	}
	return nil
}

func (r *Redis) Load(ctx context.Context) (*models.Document, error) {
	data, err := r.client.Get(ctx, r.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("draft: load: %w", apperr.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("draft: redis get: %w: %v", apperr.ErrStorage, err)
	}
	return decode(data)
}

func (r *Redis) Clear(ctx context.Context) error {
	if err := r.client.Del(ctx, r.key).Err(); err != nil {
		return fmt.Errorf("draft: redis del: %w: %v", apperr.ErrStorage, err)
	}
	return nil
}

// Close closes the Redis connection.
func (r *Redis) Close() error {
	return r.client.Close()
}
