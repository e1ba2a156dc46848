package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"

	"github.com/blip0/blip0/pkg/config"
	"github.com/blip0/blip0/pkg/log"
)

// ErrNotFound is returned when a key is absent from the cache.
var ErrNotFound = errors.New("cache: key not found")

// scanBatch is the SCAN page size for pattern operations. Keeps pattern
// deletes from blocking the store on large keyspaces.
const scanBatch = 100

// Client is the process-wide handle to the cache store. It owns the
// connection pool; construct one at startup and share it.
type Client struct {
	rdb    *redis.Client
	logger zerolog.Logger
}

// New opens the connection pool and verifies connectivity.
func New(cfg config.RedisConfig) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &Client{
		rdb:    rdb,
		logger: log.WithComponent("cache"),
	}, nil
}

// NewFromRedis wraps an existing redis client. Used by tests.
func NewFromRedis(rdb *redis.Client) *Client {
	return &Client{rdb: rdb, logger: log.WithComponent("cache")}
}

// Close releases all pooled connections.
func (c *Client) Close() error {
	return c.rdb.Close()
}

// encode turns a value into bytes: strings and byte slices pass through,
// everything else is JSON.
func encode(value interface{}) (interface{}, error) {
	switch v := value.(type) {
	case string, []byte:
		return v, nil
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("failed to encode cache value: %w", err)
		}
		return b, nil
	}
}

// Get returns the raw value at key, or ErrNotFound.
func (c *Client) Get(ctx context.Context, key string) ([]byte, error) {
	b, err := c.rdb.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	if err != nil {
		c.logger.Error().Err(err).Str("key", key).Msg("cache get failed")
		return nil, err
	}
	return b, nil
}

// GetJSON decodes the value at key into dst, or returns ErrNotFound.
func (c *Client) GetJSON(ctx context.Context, key string, dst interface{}) error {
	b, err := c.Get(ctx, key)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, dst)
}

// Set stores value at key with the given TTL (0 keeps the key forever).
func (c *Client) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	v, err := encode(value)
	if err != nil {
		return err
	}
	if err := c.rdb.Set(ctx, key, v, ttl).Err(); err != nil {
		c.logger.Error().Err(err).Str("key", key).Msg("cache set failed")
		return err
	}
	return nil
}

// SetNX stores value only if the key is absent; reports whether it stored.
func (c *Client) SetNX(ctx context.Context, key string, value interface{}, ttl time.Duration) (bool, error) {
	v, err := encode(value)
	if err != nil {
		return false, err
	}
	stored, err := c.rdb.SetNX(ctx, key, v, ttl).Result()
	if err != nil {
		c.logger.Error().Err(err).Str("key", key).Msg("cache setnx failed")
		return false, err
	}
	return stored, nil
}

// SetXX stores value only if the key already exists; reports whether it stored.
func (c *Client) SetXX(ctx context.Context, key string, value interface{}, ttl time.Duration) (bool, error) {
	v, err := encode(value)
	if err != nil {
		return false, err
	}
	stored, err := c.rdb.SetXX(ctx, key, v, ttl).Result()
	if err != nil {
		c.logger.Error().Err(err).Str("key", key).Msg("cache setxx failed")
		return false, err
	}
	return stored, nil
}

// Delete removes keys and returns how many existed.
func (c *Client) Delete(ctx context.Context, keys ...string) (int64, error) {
	if len(keys) == 0 {
		return 0, nil
	}
	n, err := c.rdb.Del(ctx, keys...).Result()
	if err != nil {
		c.logger.Error().Err(err).Strs("keys", keys).Msg("cache delete failed")
		return 0, err
	}
	return n, nil
}

// Exists returns how many of the given keys exist.
func (c *Client) Exists(ctx context.Context, keys ...string) (int64, error) {
	n, err := c.rdb.Exists(ctx, keys...).Result()
	if err != nil {
		return 0, err
	}
	return n, nil
}

// Expire sets a TTL on key; reports whether the key existed.
func (c *Client) Expire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := c.rdb.Expire(ctx, key, ttl).Result()
	if err != nil {
		return false, err
	}
	return ok, nil
}

// SAdd adds members to the set at key.
func (c *Client) SAdd(ctx context.Context, key string, members ...interface{}) error {
	if err := c.rdb.SAdd(ctx, key, members...).Err(); err != nil {
		c.logger.Error().Err(err).Str("key", key).Msg("cache sadd failed")
		return err
	}
	return nil
}

// SRem removes members from the set at key.
func (c *Client) SRem(ctx context.Context, key string, members ...interface{}) error {
	if err := c.rdb.SRem(ctx, key, members...).Err(); err != nil {
		c.logger.Error().Err(err).Str("key", key).Msg("cache srem failed")
		return err
	}
	return nil
}

// SMembers returns all members of the set at key.
func (c *Client) SMembers(ctx context.Context, key string) ([]string, error) {
	members, err := c.rdb.SMembers(ctx, key).Result()
	if err != nil {
		return nil, err
	}
	return members, nil
}

// LPush prepends values to the list at key.
func (c *Client) LPush(ctx context.Context, key string, values ...interface{}) error {
	return c.rdb.LPush(ctx, key, values...).Err()
}

// LRange returns list elements in [start, stop].
func (c *Client) LRange(ctx context.Context, key string, start, stop int64) ([]string, error) {
	return c.rdb.LRange(ctx, key, start, stop).Result()
}

// DeletePattern deletes all keys matching the glob pattern using a cursor
// scan, and returns how many were deleted.
func (c *Client) DeletePattern(ctx context.Context, pattern string) (int64, error) {
	var deleted int64
	var cursor uint64
	for {
		keys, next, err := c.rdb.Scan(ctx, cursor, pattern, scanBatch).Result()
		if err != nil {
			c.logger.Error().Err(err).Str("pattern", pattern).Msg("cache scan failed")
			return deleted, err
		}
		if len(keys) > 0 {
			n, err := c.rdb.Del(ctx, keys...).Result()
			if err != nil {
				return deleted, err
			}
			deleted += n
		}
		cursor = next
		if cursor == 0 {
			return deleted, nil
		}
	}
}

// KeysPattern returns all keys matching the glob pattern using the same
// scan discipline as DeletePattern.
func (c *Client) KeysPattern(ctx context.Context, pattern string) ([]string, error) {
	var keys []string
	var cursor uint64
	for {
		batch, next, err := c.rdb.Scan(ctx, cursor, pattern, scanBatch).Result()
		if err != nil {
			return nil, err
		}
		keys = append(keys, batch...)
		cursor = next
		if cursor == 0 {
			return keys, nil
		}
	}
}

// Pipeline runs fn against a buffered pipeline. When transactional is true
// the buffered commands execute atomically (MULTI/EXEC) on return.
func (c *Client) Pipeline(ctx context.Context, transactional bool, fn func(redis.Pipeliner) error) error {
	var pipe redis.Pipeliner
	if transactional {
		pipe = c.rdb.TxPipeline()
	} else {
		pipe = c.rdb.Pipeline()
	}
	if err := fn(pipe); err != nil {
		pipe.Discard()
		return err
	}
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		c.logger.Error().Err(err).Msg("cache pipeline exec failed")
		return err
	}
	return nil
}

// Subscribe returns a subscription handle for the given channels. The
// caller closes it when done.
func (c *Client) Subscribe(ctx context.Context, channels ...string) *redis.PubSub {
	return c.rdb.Subscribe(ctx, channels...)
}

// Publish sends a message on channel and returns the receiver count.
func (c *Client) Publish(ctx context.Context, channel string, message interface{}) (int64, error) {
	v, err := encode(message)
	if err != nil {
		return 0, err
	}
	n, err := c.rdb.Publish(ctx, channel, v).Result()
	if err != nil {
		c.logger.Error().Err(err).Str("channel", channel).Msg("publish failed")
		return 0, err
	}
	return n, nil
}
