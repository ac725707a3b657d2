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

// Package kvstore is the thin contract over the key-value store that holds log entries,
// their indexes and cached analyses. Keys expire on their own; there is no background sweep.
package kvstore

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrKeyNotFound is returned by Get and TTLRemaining for absent (or expired) keys
	ErrKeyNotFound = errors.New("key not found")
	// ErrStoreUnavailable wraps connection failures. Callers may retry.
	ErrStoreUnavailable = errors.New("key-value store unavailable")
)

// NoTTL is returned by TTLRemaining for keys without an expiry
const NoTTL time.Duration = -1

// Store is safe for concurrent use. Patterns are glob-style with '*' as the only
// wildcard; a backslash makes the next character literal.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	// SetWithTTL stores value under key. A ttl <= 0 means the key never expires.
	SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// Delete returns the number of keys removed (0 or 1)
	Delete(ctx context.Context, key string) (int64, error)
	// DeleteMany returns the number of keys removed
	DeleteMany(ctx context.Context, keys []string) (int64, error)
	// Scan returns keys matching pattern in no particular order. A limit <= 0 means no limit.
	Scan(ctx context.Context, pattern string, limit int) ([]string, error)
	TTLRemaining(ctx context.Context, key string) (time.Duration, error)
	Ping(ctx context.Context) error
	Close() error
}
