package conn

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"
)

const _defaultRedisAddr = "localhost:6379"

type RedisOption struct {
	Addr         string
	Password     string
	DB           int
	PoolSize     int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// OpenRedis creates a client and pings it before returning.
func OpenRedis(ctx context.Context, opt RedisOption) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         valueOr(opt.Addr, _defaultRedisAddr),
		Password:     opt.Password,
		DB:           opt.DB,
		PoolSize:     opt.PoolSize,
		DialTimeout:  opt.DialTimeout,
		ReadTimeout:  opt.ReadTimeout,
		WriteTimeout: opt.WriteTimeout,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, errors.Wrap(err, "ping redis").With("addr", valueOr(opt.Addr, _defaultRedisAddr))
	}
	logs.Infof("redis connected, addr: %s, db: %d", valueOr(opt.Addr, _defaultRedisAddr), opt.DB)
	return client, nil
}
