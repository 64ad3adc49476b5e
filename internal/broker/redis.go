package broker

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
	r "github.com/redis/go-redis/v9"
)

// Redis adapts a go-redis client to the Broker interface. All operations
// map 1:1 onto Redis commands; the only composite is ZPopDue, which is a
// range-by-score followed by a pipelined removal.
type Redis struct{ rdb *r.Client }

func NewRedis(rdb *r.Client) *Redis { return &Redis{rdb} }

func (b *Redis) Ping(ctx context.Context) error {
	return b.rdb.Ping(ctx).Err()
}

func (b *Redis) Push(ctx context.Context, queue, val string) error {
	return b.rdb.LPush(ctx, queue, val).Err()
}

func (b *Redis) BlockPop(ctx context.Context, timeout time.Duration, queues ...string) (string, string, error) {
	res, err := b.rdb.BRPop(ctx, timeout, queues...).Result()
	if err == r.Nil {
		return "", "", ErrNotFound
	}
	if err != nil {
		return "", "", err
	}
	if len(res) != 2 {
		return "", "", errors.Errorf("brpop: unexpected reply of %d elements", len(res))
	}
	return res[0], res[1], nil
}

func (b *Redis) Len(ctx context.Context, queue string) (int64, error) {
	return b.rdb.LLen(ctx, queue).Result()
}

func (b *Redis) Remove(ctx context.Context, queue, val string) (int64, error) {
	return b.rdb.LRem(ctx, queue, 0, val).Result()
}

func (b *Redis) List(ctx context.Context, queue string) ([]string, error) {
	return b.rdb.LRange(ctx, queue, 0, -1).Result()
}

func (b *Redis) Get(ctx context.Context, key string) (string, error) {
	v, err := b.rdb.Get(ctx, key).Result()
	if err == r.Nil {
		return "", ErrNotFound
	}
	return v, err
}

func (b *Redis) Set(ctx context.Context, key, val string, ttl time.Duration) error {
	return b.rdb.Set(ctx, key, val, ttl).Err()
}

func (b *Redis) SetNX(ctx context.Context, key, val string, ttl time.Duration) (bool, error) {
	return b.rdb.SetNX(ctx, key, val, ttl).Result()
}

func (b *Redis) Del(ctx context.Context, keys ...string) error {
	return b.rdb.Del(ctx, keys...).Err()
}

func (b *Redis) Incr(ctx context.Context, key string) (int64, error) {
	return b.rdb.Incr(ctx, key).Result()
}

func (b *Redis) Expire(ctx context.Context, key string, ttl time.Duration) error {
	return b.rdb.Expire(ctx, key, ttl).Err()
}

func (b *Redis) Keys(ctx context.Context, pattern string) ([]string, error) {
	return b.rdb.Keys(ctx, pattern).Result()
}

func (b *Redis) HSet(ctx context.Context, key string, fields map[string]string) error {
	flat := make([]interface{}, 0, len(fields)*2)
	for k, v := range fields {
		flat = append(flat, k, v)
	}
	return b.rdb.HSet(ctx, key, flat...).Err()
}

func (b *Redis) HGet(ctx context.Context, key, field string) (string, error) {
	v, err := b.rdb.HGet(ctx, key, field).Result()
	if err == r.Nil {
		return "", ErrNotFound
	}
	return v, err
}

func (b *Redis) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	return b.rdb.HGetAll(ctx, key).Result()
}

func (b *Redis) ZAdd(ctx context.Context, key string, score float64, member string) error {
	return b.rdb.ZAdd(ctx, key, r.Z{Score: score, Member: member}).Err()
}

func (b *Redis) ZPopDue(ctx context.Context, key string, max float64, limit int64) ([]string, error) {
	members, err := b.rdb.ZRangeByScore(ctx, key, &r.ZRangeBy{
		Min: "-inf", Max: fmt.Sprintf("%f", max), Offset: 0, Count: limit,
	}).Result()
	if err != nil || len(members) == 0 {
		return nil, err
	}
	pipe := b.rdb.TxPipeline()
	for _, m := range members {
		pipe.ZRem(ctx, key, m)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, err
	}
	return members, nil
}

func (b *Redis) ZCard(ctx context.Context, key string) (int64, error) {
	return b.rdb.ZCard(ctx, key).Result()
}
