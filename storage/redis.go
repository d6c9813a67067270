package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
)

// RedisStorage is a Redis-backed implementation of the Store interface.
// Each document lives under "<namespace><collection>:<id>".
type RedisStorage struct {
	client    *redis.Client
	namespace string
}

// RedisOptions extends redis.Options with additional configuration.
type RedisOptions struct {
	Addr         string
	Password     string
	DB           int
	PoolSize     int
	MinIdleConns int
	IdleTimeout  time.Duration
	Namespace    string
}

// NewRedisStorage creates a new RedisStorage instance with configurable options.
func NewRedisStorage(opts RedisOptions) (*RedisStorage, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         opts.Addr,
		Password:     opts.Password,
		DB:           opts.DB,
		PoolSize:     opts.PoolSize,
		MinIdleConns: opts.MinIdleConns,
		IdleTimeout:  opts.IdleTimeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := client.Ping(ctx).Result(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %v", err)
	}

	return &RedisStorage{client: client, namespace: opts.Namespace}, nil
}

// Client exposes the underlying connection so other components can share it.
func (s *RedisStorage) Client() *redis.Client {
	return s.client
}

func (s *RedisStorage) key(collection, id string) string {
	return s.namespace + collection + ":" + id
}

// Create stores a new document, refusing to overwrite.
func (s *RedisStorage) Create(ctx context.Context, collection, id string, doc interface{}) error {
	return withContextError(ctx, func() error {
		data, err := json.Marshal(doc)
		if err != nil {
			return fmt.Errorf("failed to marshal %s/%s: %v", collection, id, err)
		}
		key := s.key(collection, id)
		ok, err := s.client.SetNX(ctx, key, data, 0).Result()
		if err != nil {
			return fmt.Errorf("failed to set %s in Redis: %v", key, err)
		}
		if !ok {
			return fmt.Errorf("%w: key=%s", ErrAlreadyExists, key)
		}
		return nil
	})
}

// Put stores or replaces a document.
func (s *RedisStorage) Put(ctx context.Context, collection, id string, doc interface{}) error {
	return withContextError(ctx, func() error {
		data, err := json.Marshal(doc)
		if err != nil {
			return fmt.Errorf("failed to marshal %s/%s: %v", collection, id, err)
		}
		key := s.key(collection, id)
		if err := s.client.Set(ctx, key, data, 0).Err(); err != nil {
			return fmt.Errorf("failed to set %s in Redis: %v", key, err)
		}
		return nil
	})
}

// Update merges fields into a stored document. Read and write are separate
// round trips, so concurrent updates are last-write-wins.
func (s *RedisStorage) Update(ctx context.Context, collection, id string, fields map[string]interface{}) error {
	return withContextError(ctx, func() error {
		data, err := s.Get(ctx, collection, id)
		if err != nil {
			return err
		}
		merged, err := mergeFields(data, fields)
		if err != nil {
			return fmt.Errorf("failed to update %s/%s: %v", collection, id, err)
		}
		key := s.key(collection, id)
		if err := s.client.Set(ctx, key, merged, 0).Err(); err != nil {
			return fmt.Errorf("failed to set %s in Redis: %v", key, err)
		}
		return nil
	})
}

// Delete removes a document.
func (s *RedisStorage) Delete(ctx context.Context, collection, id string) error {
	return withContextError(ctx, func() error {
		key := s.key(collection, id)
		n, err := s.client.Del(ctx, key).Result()
		if err != nil {
			return fmt.Errorf("failed to delete %s from Redis: %v", key, err)
		}
		if n == 0 {
			return fmt.Errorf("%w: key=%s", ErrNotFound, key)
		}
		return nil
	})
}

// Get retrieves a document.
func (s *RedisStorage) Get(ctx context.Context, collection, id string) ([]byte, error) {
	return withContext(ctx, func() ([]byte, error) {
		key := s.key(collection, id)
		data, err := s.client.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("%w: key=%s", ErrNotFound, key)
		} else if err != nil {
			return nil, fmt.Errorf("failed to get %s from Redis: %v", key, err)
		}
		return data, nil
	})
}

// Find scans the collection's keys and filters documents client-side.
func (s *RedisStorage) Find(ctx context.Context, collection string, filters ...Filter) ([][]byte, error) {
	return withContext(ctx, func() ([][]byte, error) {
		prefix := s.key(collection, "")
		var keys []string
		iter := s.client.Scan(ctx, 0, prefix+"*", 100).Iterator()
		for iter.Next(ctx) {
			keys = append(keys, iter.Val())
		}
		if err := iter.Err(); err != nil {
			return nil, fmt.Errorf("failed to scan %s keys: %v", collection, err)
		}
		if len(keys) == 0 {
			return nil, nil
		}
		sort.Slice(keys, func(i, j int) bool {
			return lessID(strings.TrimPrefix(keys[i], prefix), strings.TrimPrefix(keys[j], prefix))
		})

		values, err := s.client.MGet(ctx, keys...).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to load %s documents: %v", collection, err)
		}

		var out [][]byte
		for i, v := range values {
			str, ok := v.(string)
			if !ok {
				continue // deleted between SCAN and MGET
			}
			data := []byte(str)
			match, err := matches(data, filters)
			if err != nil {
				return nil, fmt.Errorf("failed to filter %s: %v", keys[i], err)
			}
			if match {
				out = append(out, data)
			}
		}
		return out, nil
	})
}

// FlushNamespace deletes every key under the storage namespace.
func (s *RedisStorage) FlushNamespace(ctx context.Context) error {
	return withContextError(ctx, func() error {
		if s.namespace == "" {
			return errors.New("refusing to flush without a namespace")
		}
		iter := s.client.Scan(ctx, 0, s.namespace+"*", 100).Iterator()
		pipe := s.client.Pipeline()
		n := 0
		for iter.Next(ctx) {
			pipe.Del(ctx, iter.Val())
			n++
		}
		if err := iter.Err(); err != nil {
			return fmt.Errorf("failed to scan namespace keys: %v", err)
		}
		if n == 0 {
			return nil
		}
		if _, err := pipe.Exec(ctx); err != nil {
			return fmt.Errorf("failed to execute pipeline for deletion: %v", err)
		}
		return nil
	})
}

// Close closes the Redis client connection.
func (s *RedisStorage) Close() error {
	return s.client.Close()
}
