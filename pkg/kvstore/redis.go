// Copyright 2025 UMH Systems GmbH
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package kvstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

const (
	// scanCount is the COUNT hint passed to every SCAN call
	scanCount = 1000
	// deleteChunkSize bounds the number of keys in a single DEL
	deleteChunkSize = 1000
)

// RedisOptions configures RedisStore.
// If MasterName is set, Addrs are sentinel addresses and a failover client is used.
// Otherwise only Addrs[0] is used.
type RedisOptions struct {
	Addrs        []string
	MasterName   string
	Password     string
	DB           int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type RedisStore struct {
	client *redis.Client
}

// NewRedisStore creates the client. It does not connect; use Ping to check availability.
func NewRedisStore(opts RedisOptions) (*RedisStore, error) {
	if len(opts.Addrs) == 0 {
		return nil, errors.New("at least one redis address is required")
	}
	if opts.DialTimeout == 0 {
		opts.DialTimeout = 5 * time.Second
	}
	if opts.ReadTimeout == 0 {
		opts.ReadTimeout = 5 * time.Second
	}
	if opts.WriteTimeout == 0 {
		opts.WriteTimeout = 5 * time.Second
	}

	var client *redis.Client
	if opts.MasterName != "" {
		failOverOptions := redis.FailoverOptions{
			MasterName:       opts.MasterName,
			SentinelAddrs:    opts.Addrs,
			SentinelPassword: opts.Password,
			Password:         opts.Password,
			DB:               opts.DB,
			DialTimeout:      opts.DialTimeout,
			ReadTimeout:      opts.ReadTimeout,
			WriteTimeout:     opts.WriteTimeout,
		}
		zap.S().Debugw("Initializing redis failover client", "master", opts.MasterName, "sentinels", opts.Addrs, "db", opts.DB)
		client = redis.NewFailoverClient(&failOverOptions)
	} else {
		zap.S().Debugw("Initializing redis client", "addr", opts.Addrs[0], "db", opts.DB)
		client = redis.NewClient(&redis.Options{
			Addr:         opts.Addrs[0],
			Password:     opts.Password,
			DB:           opts.DB,
			DialTimeout:  opts.DialTimeout,
			ReadTimeout:  opts.ReadTimeout,
			WriteTimeout: opts.WriteTimeout,
		})
	}
	return &RedisStore{client: client}, nil
}

func (r *RedisStore) Get(ctx context.Context, key string) ([]byte, error) {
	value, err := r.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrKeyNotFound
		}
		return nil, wrapRedisError("get", err)
	}
	return value, nil
}

func (r *RedisStore) SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl < 0 {
		ttl = 0
	}
	if err := r.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return wrapRedisError("set", err)
	}
	return nil
}

func (r *RedisStore) Delete(ctx context.Context, key string) (int64, error) {
	n, err := r.client.Del(ctx, key).Result()
	if err != nil {
		return 0, wrapRedisError("del", err)
	}
	return n, nil
}

func (r *RedisStore) DeleteMany(ctx context.Context, keys []string) (int64, error) {
	var deleted int64
	for start := 0; start < len(keys); start += deleteChunkSize {
		end := start + deleteChunkSize
		if end > len(keys) {
			end = len(keys)
		}
		n, err := r.client.Del(ctx, keys[start:end]...).Result()
		if err != nil {
			return deleted, wrapRedisError("del", err)
		}
		deleted += n
	}
	return deleted, nil
}

// Scan walks the keyspace with SCAN so a large database never blocks the server.
// SCAN may report a key more than once; duplicates are removed.
func (r *RedisStore) Scan(ctx context.Context, pattern string, limit int) ([]string, error) {
	var cursor uint64
	seen := make(map[string]struct{})
	keys := make([]string, 0)
	for {
		batch, next, err := r.client.Scan(ctx, cursor, pattern, scanCount).Result()
		if err != nil {
			return keys, wrapRedisError("scan", err)
		}
		for _, key := range batch {
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			keys = append(keys, key)
			if limit > 0 && len(keys) >= limit {
				return keys, nil
			}
		}
		cursor = next
		if cursor == 0 {
			return keys, nil
		}
	}
}

func (r *RedisStore) TTLRemaining(ctx context.Context, key string) (time.Duration, error) {
	ttl, err := r.client.TTL(ctx, key).Result()
	if err != nil {
		return 0, wrapRedisError("ttl", err)
	}
	// go-redis reports the raw -2 (missing) and -1 (no expiry) replies as nanoseconds
	switch ttl {
	case -2:
		return 0, ErrKeyNotFound
	case -1:
		return NoTTL, nil
	}
	return ttl, nil
}

func (r *RedisStore) Ping(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return wrapRedisError("ping", err)
	}
	return nil
}

func (r *RedisStore) Close() error {
	return r.client.Close()
}

func wrapRedisError(op string, err error) error {
	if isConnectionError(err) {
		return fmt.Errorf("%w: redis %s: %w", ErrStoreUnavailable, op, err)
	}
	return fmt.Errorf("redis %s: %w", op, err)
}

func isConnectionError(err error) bool {
	if errors.Is(err, redis.ErrClosed) || errors.Is(err, io.EOF) || errors.Is(err, syscall.ECONNREFUSED) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}
