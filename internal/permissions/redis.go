package permissions

import (
	"context"
	"encoding/json"
	"sort"

	"github.com/go-redis/redis/v8"
	"github.com/pkg/errors"
)

const (
	redisKeyPrefix    = "permission:"
	redisOriginPrefix = "permission-origin:"
)

// RedisStore persists permission records as JSON values in Redis, with a
// per-origin set as the secondary index.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore creates a Store backed by the given Redis client.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) Get(ctx context.Context, key string) (PermissionRequest, error) {
	raw, err := s.client.Get(ctx, redisKeyPrefix+key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return PermissionRequest{}, ErrNotFound
		}
		return PermissionRequest{}, errors.Wrap(err, "getting permission from redis")
	}

	var rec PermissionRequest
	if err := json.Unmarshal(raw, &rec); err != nil {
		return PermissionRequest{}, errors.Wrap(err, "decoding permission record")
	}
	return rec, nil
}

func (s *RedisStore) Put(ctx context.Context, req PermissionRequest) error {
	if err := req.Validate(); err != nil {
		return err
	}

	raw, err := json.Marshal(req)
	if err != nil {
		return errors.Wrap(err, "encoding permission record")
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, redisKeyPrefix+req.Key, raw, 0)
	pipe.SAdd(ctx, redisOriginPrefix+req.Origin, req.Key)
	if _, err := pipe.Exec(ctx); err != nil {
		return errors.Wrap(err, "writing permission to redis")
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, key string) error {
	rec, err := s.Get(ctx, key)
	if err != nil {
		return err
	}

	pipe := s.client.TxPipeline()
	pipe.Del(ctx, redisKeyPrefix+key)
	pipe.SRem(ctx, redisOriginPrefix+rec.Origin, key)
	if _, err := pipe.Exec(ctx); err != nil {
		return errors.Wrap(err, "deleting permission from redis")
	}
	return nil
}

func (s *RedisStore) ListByOrigin(ctx context.Context, origin string) ([]PermissionRequest, error) {
	keys, err := s.client.SMembers(ctx, redisOriginPrefix+origin).Result()
	if err != nil {
		return nil, errors.Wrap(err, "listing origin index")
	}
	sort.Strings(keys)

	var out []PermissionRequest
	for _, key := range keys {
		rec, err := s.Get(ctx, key)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				// Index entry outlived the record; skip it.
				continue
			}
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}
