package blockstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/redis/go-redis/v9"

	"github.com/geolink/internal/model"
)

// RedisStore keeps artifacts under <prefix>block:<key> and tracks the key
// set in <prefix>keys, so several workers can share one partition.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore wraps an existing client
func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	return &RedisStore{client: client, prefix: prefix}
}

// OpenRedis connects to addr and verifies the connection
func OpenRedis(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ping redis at %s: %w", addr, err)
	}
	return client, nil
}

func (s *RedisStore) blockKey(key string) string { return s.prefix + "block:" + key }
func (s *RedisStore) keysKey() string            { return s.prefix + "keys" }
func (s *RedisStore) manifestKey() string        { return s.prefix + "manifest" }

// Put implements Store
func (s *RedisStore) Put(ctx context.Context, b *model.Block) error {
	data, err := Encode(b)
	if err != nil {
		return err
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, s.blockKey(b.Key), data, 0)
	pipe.SAdd(ctx, s.keysKey(), b.Key)
	_, err = pipe.Exec(ctx)
	return err
}

// Get implements Store
func (s *RedisStore) Get(ctx context.Context, key string) (*model.Block, error) {
	data, err := s.client.Get(ctx, s.blockKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return Decode(data)
}

// Keys implements Store
func (s *RedisStore) Keys(ctx context.Context) ([]string, error) {
	keys, err := s.client.SMembers(ctx, s.keysKey()).Result()
	if err != nil {
		return nil, err
	}
	sort.Strings(keys)
	return keys, nil
}

// PutManifest implements Store
func (s *RedisStore) PutManifest(ctx context.Context, m Manifest) error {
	data, err := json.Marshal(m)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, s.manifestKey(), data, 0).Err()
}

// Manifest implements Store
func (s *RedisStore) Manifest(ctx context.Context) (Manifest, error) {
	var m Manifest
	data, err := s.client.Get(ctx, s.manifestKey()).Bytes()
	if errors.Is(err, redis.Nil) {
		return m, ErrNotFound
	}
	if err != nil {
		return m, err
	}
	if err := json.Unmarshal(data, &m); err != nil {
		return m, fmt.Errorf("failed to parse manifest: %w", err)
	}
	return m, nil
}
