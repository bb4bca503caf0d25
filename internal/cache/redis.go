package cache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// RedisConfig holds connection settings for Redis.
type RedisConfig struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
}

// NewRedisClient connects to Redis and verifies the connection.
func NewRedisClient(ctx context.Context, cfg RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     20,
		MinIdleConns: 5,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, err
	}
	return client, nil
}

// getOrSetScript stores ARGV[1] only when the key is absent and returns
// whatever value the key holds afterwards, so concurrent fillers agree on
// one snapshot.
var getOrSetScript = redis.NewScript(`
	local current = redis.call("GET", KEYS[1])
	if current then
		return current
	end
	if tonumber(ARGV[2]) > 0 then
		redis.call("SET", KEYS[1], ARGV[1], "PX", ARGV[2])
	else
		redis.call("SET", KEYS[1], ARGV[1])
	end
	return ARGV[1]
`)

// RedisCache implements Cache on a shared Redis instance. Keys are
// namespaced with the configured prefix.
type RedisCache struct {
	client    *redis.Client
	keyPrefix string
	fills     singleflight.Group
}

// NewRedisCache wraps an existing client.
func NewRedisCache(client *redis.Client, keyPrefix string, log *zap.Logger) *RedisCache {
	if keyPrefix == "" {
		keyPrefix = "stockledger:"
	}
	log.Info("redis cache ready", zap.String("component", "RedisCache"), zap.String("prefix", keyPrefix))
	return &RedisCache{client: client, keyPrefix: keyPrefix}
}

func (c *RedisCache) key(k string) string {
	return c.keyPrefix + k
}

// Get retrieves a value by key.
func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := c.client.Get(ctx, c.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrCacheMiss
	}
	return data, err
}

// Set stores a value with the given TTL.
func (c *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return c.client.Set(ctx, c.key(key), value, ttl).Err()
}

// Delete removes the given keys.
func (c *RedisCache) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = c.key(k)
	}
	return c.client.Del(ctx, full...).Err()
}

// Exists checks if a key exists.
func (c *RedisCache) Exists(ctx context.Context, key string) (bool, error) {
	n, err := c.client.Exists(ctx, c.key(key)).Result()
	return n > 0, err
}

// GetOrSet retrieves a value or computes and stores it if missing.
func (c *RedisCache) GetOrSet(ctx context.Context, key string, ttl time.Duration, fn func() ([]byte, error)) ([]byte, error) {
	if value, err := c.Get(ctx, key); err == nil {
		return value, nil
	} else if err != ErrCacheMiss {
		return nil, err
	}

	// Fills are shared within the instance; the script settles races between instances.
	v, err, _ := c.fills.Do(key, func() (interface{}, error) {
		value, err := fn()
		if err != nil {
			return nil, err
		}
		stored, err := getOrSetScript.Run(ctx, c.client, []string{c.key(key)}, value, ttl.Milliseconds()).Text()
		if err != nil {
			return nil, err
		}
		return []byte(stored), nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]byte), nil
}

// Close is a no-op; the client is owned by the caller.
func (c *RedisCache) Close() error {
	return nil
}

var _ Cache = (*RedisCache)(nil)
