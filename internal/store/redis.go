package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

const defaultRedisPrefix = "prism"

// RedisOptions configures the Redis backend.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
}

// Redis stores each document as a JSON string under "<prefix>:<collection>:<id>".
type Redis struct {
	rdb    *goredis.Client
	prefix string
}

// OpenRedis connects and pings the server.
func OpenRedis(ctx context.Context, opts RedisOptions) (*Redis, error) {
	addr := strings.TrimSpace(opts.Addr)
	if addr == "" {
		return nil, errors.New("redis address is required")
	}

	prefix := strings.TrimSpace(opts.Prefix)
	if prefix == "" {
		prefix = defaultRedisPrefix
	}

	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		Password:    opts.Password,
		DB:          opts.DB,
		DialTimeout: 5 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return &Redis{rdb: rdb, prefix: prefix}, nil
}

func (r *Redis) key(collection, id string) string {
	return r.prefix + ":" + collection + ":" + id
}

func (r *Redis) Get(ctx context.Context, collection, id string) (Document, error) {
	if err := validKey(collection, id); err != nil {
		return nil, err
	}

	data, err := r.rdb.Get(ctx, r.key(collection, id)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis get %s/%s: %w", collection, id, err)
	}
	return decode(data)
}

func (r *Redis) Set(ctx context.Context, collection, id string, doc Document) error {
	if err := validKey(collection, id); err != nil {
		return err
	}
	data, err := encode(doc)
	if err != nil {
		return err
	}
	if err := r.rdb.Set(ctx, r.key(collection, id), data, 0).Err(); err != nil {
		return fmt.Errorf("redis set %s/%s: %w", collection, id, err)
	}
	return nil
}

func (r *Redis) Delete(ctx context.Context, collection, id string) error {
	if err := validKey(collection, id); err != nil {
		return err
	}
	if err := r.rdb.Del(ctx, r.key(collection, id)).Err(); err != nil {
		return fmt.Errorf("redis del %s/%s: %w", collection, id, err)
	}
	return nil
}

func (r *Redis) Close() error { return r.rdb.Close() }
