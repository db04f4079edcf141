package redis

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// Config 用于初始化 Redis
type Config struct {
	Addr     string
	Password string
	DB       int
	PoolSize int
}

// Open connects and pings once; the caller owns and closes the client.
func Open(ctx context.Context, c Config) (*redis.Client, error) {
	if c.Addr == "" {
		return nil, errors.New("redis addr is empty")
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     c.Addr,
		Password: c.Password,
		DB:       c.DB,
		PoolSize: c.PoolSize,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, errors.Wrapf(err, "ping redis %s", c.Addr)
	}
	return rdb, nil
}
