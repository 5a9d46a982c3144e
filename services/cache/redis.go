package cachesvc

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/pkg/errors"

	"github.com/trezcool/vitrine/core"
	"github.com/trezcool/vitrine/core/page"
)

const keyPrefix = "vitrine:"

// RedisCache is a page.Cache over redis. Entries expire after the configured TTL.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

var _ page.Cache = (*RedisCache)(nil)

// NewRedisCache connects to the server of conf and checks it answers.
func NewRedisCache(ctx context.Context, conf core.RedisConfig) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     conf.Addr,
		Password: conf.Password,
		DB:       conf.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, errors.Wrap(err, "pinging redis")
	}
	return &RedisCache{client: client, ttl: conf.TTL}, nil
}

func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := c.client.Get(ctx, keyPrefix+key).Bytes()
	if err == redis.Nil {
		return nil, page.ErrCacheMiss
	}
	return val, errors.Wrapf(err, "redis get %s", key)
}

func (c *RedisCache) Set(ctx context.Context, key string, val []byte) error {
	return errors.Wrapf(c.client.Set(ctx, keyPrefix+key, val, c.ttl).Err(), "redis set %s", key)
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}
