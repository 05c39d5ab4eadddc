package store

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/larriantoniy/tg_session_web/internal/domain"
)

const DefaultIndexKey = "tg_session_web:credentials"

// RedisIndex держит sorted set имён файлов со временем выдачи в качестве score.
type RedisIndex struct {
	rdb *redis.Client
	key string
}

func NewRedisIndex(ctx context.Context, addr, password string, db int, key string) (*RedisIndex, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping %s: %w", addr, err)
	}
	if key == "" {
		key = DefaultIndexKey
	}
	return &RedisIndex{rdb: rdb, key: key}, nil
}

func (r *RedisIndex) Record(ctx context.Context, ref domain.CredentialRef) error {
	return r.rdb.ZAdd(ctx, r.key, redis.Z{
		Score:  float64(ref.IssuedAt.Unix()),
		Member: ref.Filename,
	}).Err()
}

func (r *RedisIndex) Recent(ctx context.Context, limit int) ([]domain.CredentialRef, error) {
	stop := int64(-1)
	if limit > 0 {
		stop = int64(limit - 1)
	}
	names, err := r.rdb.ZRevRange(ctx, r.key, 0, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("zrevrange %s: %w", r.key, err)
	}
	out := make([]domain.CredentialRef, 0, len(names))
	for _, name := range names {
		if ref, ok := domain.ParseCredentialFilename(name); ok {
			out = append(out, ref)
		}
	}
	return out, nil
}

func (r *RedisIndex) Close() error {
	return r.rdb.Close()
}
