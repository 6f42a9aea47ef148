package repository

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"mdshare/internal/domain"
)

// Each owner is one hash: used_bytes, limit_bytes, created_at, updated_at
// (unix seconds). Every mutation runs server-side in a script, so Redis
// serializes same-owner commits the way row locks do in Postgres.
const redisQuotaPrefix = "quota:"

var ensureQuotaScript = redis.NewScript(`
redis.call('HSETNX', KEYS[1], 'limit_bytes', ARGV[1])
redis.call('HSETNX', KEYS[1], 'used_bytes', '0')
redis.call('HSETNX', KEYS[1], 'created_at', ARGV[2])
redis.call('HSETNX', KEYS[1], 'updated_at', ARGV[2])
return redis.call('HMGET', KEYS[1], 'used_bytes', 'limit_bytes', 'created_at', 'updated_at')
`)

var commitQuotaScript = redis.NewScript(`
redis.call('HSETNX', KEYS[1], 'limit_bytes', ARGV[2])
redis.call('HSETNX', KEYS[1], 'created_at', ARGV[3])
local used = redis.call('HINCRBY', KEYS[1], 'used_bytes', ARGV[1])
if used < 0 then
  redis.call('HSET', KEYS[1], 'used_bytes', '0')
end
redis.call('HSET', KEYS[1], 'updated_at', ARGV[3])
return redis.call('HMGET', KEYS[1], 'used_bytes', 'limit_bytes', 'created_at', 'updated_at')
`)

type RedisQuotaRepository struct {
	client       *redis.Client
	defaultLimit int64
	now          func() time.Time
}

func NewRedisQuotaRepository(client *redis.Client, defaultLimit int64) *RedisQuotaRepository {
	if defaultLimit <= 0 {
		defaultLimit = domain.DefaultQuotaLimit
	}
	return &RedisQuotaRepository{client: client, defaultLimit: defaultLimit, now: time.Now}
}

func (r *RedisQuotaRepository) key(ownerID string) string {
	return redisQuotaPrefix + ownerID
}

func (r *RedisQuotaRepository) GetQuota(ctx context.Context, ownerID string) (*domain.StorageQuota, error) {
	res, err := ensureQuotaScript.Run(ctx, r.client,
		[]string{r.key(ownerID)},
		r.defaultLimit, r.now().Unix(),
	).Slice()
	if err != nil {
		return nil, fmt.Errorf("failed to get quota: %w", err)
	}
	return parseQuotaFields(ownerID, res)
}

func (r *RedisQuotaRepository) UpdateUsedSpace(ctx context.Context, ownerID string, deltaBytes int64) (*domain.StorageQuota, error) {
	res, err := commitQuotaScript.Run(ctx, r.client,
		[]string{r.key(ownerID)},
		deltaBytes, r.defaultLimit, r.now().Unix(),
	).Slice()
	if err != nil {
		return nil, fmt.Errorf("failed to update used space: %w", err)
	}
	return parseQuotaFields(ownerID, res)
}

func (r *RedisQuotaRepository) UpdateQuotaLimit(ctx context.Context, ownerID string, newLimit int64) error {
	now := r.now().Unix()
	key := r.key(ownerID)

	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSetNX(ctx, key, "used_bytes", 0)
		pipe.HSetNX(ctx, key, "created_at", now)
		pipe.HSet(ctx, key, "limit_bytes", newLimit, "updated_at", now)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to update quota limit: %w", err)
	}
	return nil
}

func (r *RedisQuotaRepository) SetUsedSpace(ctx context.Context, ownerID string, usedBytes int64) error {
	if usedBytes < 0 {
		usedBytes = 0
	}
	now := r.now().Unix()
	key := r.key(ownerID)

	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSetNX(ctx, key, "limit_bytes", r.defaultLimit)
		pipe.HSetNX(ctx, key, "created_at", now)
		pipe.HSet(ctx, key, "used_bytes", usedBytes, "updated_at", now)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to set used space: %w", err)
	}
	return nil
}

func parseQuotaFields(ownerID string, fields []interface{}) (*domain.StorageQuota, error) {
	if len(fields) != 4 {
		return nil, fmt.Errorf("unexpected quota reply of %d fields", len(fields))
	}

	values := make([]int64, len(fields))
	for i, f := range fields {
		s, ok := f.(string)
		if !ok {
			return nil, fmt.Errorf("quota field %d missing for owner %s", i, ownerID)
		}
		v, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("malformed quota field %d for owner %s: %w", i, ownerID, err)
		}
		values[i] = v
	}

	return &domain.StorageQuota{
		OwnerID:    ownerID,
		UsedBytes:  values[0],
		LimitBytes: values[1],
		CreatedAt:  time.Unix(values[2], 0).UTC(),
		UpdatedAt:  time.Unix(values[3], 0).UTC(),
	}, nil
}
