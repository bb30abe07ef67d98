package redis

import (
	"context"
	"time"

	v9 "github.com/redis/go-redis/v9"
	"github.com/serkee5559/coin-portal/pkg/errors"
	"github.com/serkee5559/coin-portal/pkg/logger"
)

type client struct {
	logger  logger.Interface
	config  *Config
	cmdable v9.Cmdable
	closer  *v9.Client
}

// NewClient creates a new Redis client with the provided logger and configuration.
func NewClient(logger logger.Interface, config *Config) Client {
	return &client{
		logger: logger,
		config: config,
	}
}

func (c *client) Connect(ctx context.Context) error {
	if c.config == nil {
		return errors.NewErrorDetails("Redis config is nil", string(errors.RedisConfigError), "connect")
	}
	if c.config.Addr == "" {
		return errors.NewErrorDetails("Redis address is empty", string(errors.RedisConfigError), "connect")
	}
	if c.config.ConnectTimeout <= 0 {
		return errors.NewErrorDetails("Invalid Redis connect timeout", string(errors.RedisConfigError), "connect")
	}
	if c.config.PoolSize <= 0 {
		return errors.NewErrorDetails("Invalid Redis pool size", string(errors.RedisConfigError), "connect")
	}

	rdb := v9.NewClient(&v9.Options{
		Addr:            c.config.Addr,
		Username:        c.config.Username,
		Password:        c.config.Password,
		DB:              c.config.DB,
		DialTimeout:     c.config.ConnectTimeout,
		MaxRetries:      c.config.MaxRetries,
		MinRetryBackoff: c.config.MinRetryBackoff,
		MaxRetryBackoff: c.config.MaxRetryBackoff,
		PoolSize:        c.config.PoolSize,
		MinIdleConns:    c.config.MinIdleConns,
		PoolTimeout:     c.config.PoolTimeout,
	})

	if err := rdb.Ping(ctx).Err(); err != nil {
		return errors.NewErrorDetails(err.Error(), string(errors.RedisConnectionError), "connect")
	}

	c.cmdable = rdb
	c.closer = rdb
	c.logger.InfoContext(ctx, "redis connected", logger.Field{
		Key:   "addr",
		Value: c.config.Addr,
	})
	return nil
}

func (c *client) Disconnect(ctx context.Context) error {
	if c.closer == nil {
		return nil
	}
	return c.closer.Close()
}

func (c *client) Ping(ctx context.Context) error {
	if c.cmdable == nil {
		return errors.NewErrorDetails("Redis client is not connected", string(errors.RedisConnectionError), "ping")
	}
	return c.cmdable.Ping(ctx).Err()
}

func (c *client) Get(ctx context.Context, key string) (string, error) {
	val, err := c.cmdable.Get(ctx, c.config.PrefixKey+key).Result()
	if err == v9.Nil {
		return "", nil
	}
	if err != nil {
		return "", errors.NewErrorDetails(err.Error(), string(errors.RedisGetError), key)
	}
	return val, nil
}

func (c *client) Set(ctx context.Context, key string, value any, expiration time.Duration) error {
	if expiration <= 0 {
		expiration = c.config.DefaultTTL
	}
	if err := c.cmdable.Set(ctx, c.config.PrefixKey+key, value, expiration).Err(); err != nil {
		return errors.NewErrorDetails(err.Error(), string(errors.RedisSetError), key)
	}
	return nil
}

func (c *client) Del(ctx context.Context, keys ...string) (int64, error) {
	prefixed := make([]string, len(keys))
	for i, key := range keys {
		prefixed[i] = c.config.PrefixKey + key
	}
	return c.cmdable.Del(ctx, prefixed...).Result()
}
