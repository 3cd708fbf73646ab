package kv

import (
	"context"
	"errors"
	"fmt"
	"time"

	koeerrors "github.com/harunnryd/koe/internal/errors"

	"github.com/redis/go-redis/v9"
)

type RedisOptions struct {
	Addr        string
	Password    string
	DB          int
	DialTimeout time.Duration
	Prefix      string
}

// Redis stores values as plain string keys under a prefix, so several koe
// instances can share one set of statistics.
type Redis struct {
	client *redis.Client
	prefix string
}

// NewRedis connects and pings the server.
func NewRedis(ctx context.Context, opts RedisOptions) (*Redis, error) {
	client := redis.NewClient(&redis.Options{
		Addr:        opts.Addr,
		Password:    opts.Password,
		DB:          opts.DB,
		DialTimeout: opts.DialTimeout,
	})

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout(opts.DialTimeout))
	defer cancel()
	if _, err := client.Ping(pingCtx).Result(); err != nil {
		client.Close()
		return nil, koeerrors.WrapWithCategory(err, fmt.Sprintf("connect redis %s", opts.Addr), koeerrors.ErrTransient)
	}
	return &Redis{client: client, prefix: opts.Prefix}, nil
}

func pingTimeout(dial time.Duration) time.Duration {
	if dial <= 0 {
		return 5 * time.Second
	}
	return dial
}

func (r *Redis) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := r.client.Get(ctx, r.prefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

func (r *Redis) Set(ctx context.Context, key, value string) error {
	return r.client.Set(ctx, r.prefix+key, value, 0).Err()
}

func (r *Redis) Close() error {
	return r.client.Close()
}
