package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"

	"escrow-market/pkg/config"
)

var RedisClient *redis.Client

// ErrMiss is returned when a key does not exist.
var ErrMiss = errors.New("cache miss")

// Initialize Redis connection
func Initialize(cfg *config.Config) error {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.GetRedisURL(),
		Password:     cfg.Redis.Password,
		DB:           cfg.Redis.Database,
		PoolSize:     cfg.Redis.PoolSize,
		DialTimeout:  10 * time.Second,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
		IdleTimeout:  60 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Test connection
	if _, err := client.Ping(ctx).Result(); err != nil {
		client.Close()
		return fmt.Errorf("failed to connect to Redis: %w", err)
	}

	RedisClient = client
	logrus.Info("Redis connected successfully")
	return nil
}

// Enabled reports whether Initialize succeeded.
func Enabled() bool {
	return RedisClient != nil
}

// Cache keys constants
const (
	KeyCollection = "asset:collection:%s" // asset:collection:<asset>
	KeyLoginNonce = "auth:nonce:%s"       // auth:nonce:<wallet>
	KeyRateLimit  = "ratelimit:%s"        // ratelimit:<ip or wallet>

	// ChannelEvents carries every committed market event as JSON.
	ChannelEvents = "escrow-market:events"
)

// Cache expiration times
const (
	ExpireCollection = 10 * time.Minute
	ExpireLoginNonce = 5 * time.Minute
)

// Set stores a value in Redis with expiration
func Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	jsonValue, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal value: %w", err)
	}

	if err := RedisClient.Set(ctx, key, jsonValue, expiration).Err(); err != nil {
		return fmt.Errorf("failed to set key %s: %w", key, err)
	}
	return nil
}

// Get retrieves a value from Redis
func Get(ctx context.Context, key string, dest interface{}) error {
	val, err := RedisClient.Get(ctx, key).Bytes()
	if err != nil {
		if err == redis.Nil {
			return ErrMiss
		}
		return fmt.Errorf("failed to get key %s: %w", key, err)
	}

	if err := json.Unmarshal(val, dest); err != nil {
		return fmt.Errorf("failed to unmarshal value for key %s: %w", key, err)
	}
	return nil
}

// Take retrieves and deletes a value in one step
func Take(ctx context.Context, key string, dest interface{}) error {
	val, err := RedisClient.GetDel(ctx, key).Bytes()
	if err != nil {
		if err == redis.Nil {
			return ErrMiss
		}
		return fmt.Errorf("failed to take key %s: %w", key, err)
	}

	if err := json.Unmarshal(val, dest); err != nil {
		return fmt.Errorf("failed to unmarshal value for key %s: %w", key, err)
	}
	return nil
}

// Delete removes a key from Redis
func Delete(ctx context.Context, key string) error {
	if err := RedisClient.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("failed to delete key %s: %w", key, err)
	}
	return nil
}

// Increment atomically increments a key, starting its expiry on creation
func Increment(ctx context.Context, key string, expiration time.Duration) (int64, error) {
	n, err := RedisClient.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to increment key %s: %w", key, err)
	}
	if n == 1 {
		if err := RedisClient.Expire(ctx, key, expiration).Err(); err != nil {
			return 0, fmt.Errorf("failed to set expiration for key %s: %w", key, err)
		}
	}
	return n, nil
}

// TTL returns the remaining lifetime of a key
func TTL(ctx context.Context, key string) (time.Duration, error) {
	d, err := RedisClient.TTL(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to read ttl of %s: %w", key, err)
	}
	return d, nil
}

// Publish publishes a message to a channel
func Publish(ctx context.Context, channel string, message interface{}) error {
	jsonMessage, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	if err := RedisClient.Publish(ctx, channel, jsonMessage).Err(); err != nil {
		return fmt.Errorf("failed to publish message to channel %s: %w", channel, err)
	}
	return nil
}

// Subscribe subscribes to Redis channels
func Subscribe(ctx context.Context, channels ...string) *redis.PubSub {
	return RedisClient.Subscribe(ctx, channels...)
}

// Close closes the Redis connection
func Close() error {
	if RedisClient != nil {
		return RedisClient.Close()
	}
	return nil
}

// HealthCheck checks if Redis is healthy
func HealthCheck() error {
	if RedisClient == nil {
		return fmt.Errorf("Redis client not initialized")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := RedisClient.Ping(ctx).Result(); err != nil {
		return fmt.Errorf("Redis ping failed: %w", err)
	}
	return nil
}
