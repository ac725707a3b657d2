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

// Package logstore persists log entries with bounded retention, keeps their tag and group
// indexes, and answers filtered queries by combining index lookups with predicate checks
// on the fetched entries.
//
// Nothing here takes an in-process lock. Every call stands alone and relies on the
// key-value store's per-key atomicity.
package logstore

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	lru "github.com/hashicorp/golang-lru"
	"github.com/komfyrvakt/komfyrvakt/pkg/datamodel"
	"github.com/komfyrvakt/komfyrvakt/pkg/kvstore"
	"go.uber.org/zap"
	"golang.org/x/exp/maps"
)

const (
	DefaultKeyPrefix       = "komfyrvakt"
	DefaultRetentionHours  = 48
	DefaultDecodeCacheSize = 4096
)

type Config struct {
	// KeyPrefix namespaces every key this service writes
	KeyPrefix      string
	RetentionHours int
	// StorageName is reported by Stats, e.g. "redis"
	StorageName string
	// DecodeCacheSize is the number of decoded entries kept in memory.
	// Entries are immutable, so a cached decode is valid for as long as the key exists.
	DecodeCacheSize int
	// Now is used for server-assigned timestamps. Defaults to time.Now.
	Now func() time.Time
}

type Stats struct {
	TotalLogs      int    `json:"total_logs"`
	Storage        string `json:"storage"`
	RetentionHours int    `json:"retention_hours"`
}

type Service struct {
	store          kvstore.Store
	keys           Keys
	index          *IndexMaintainer
	decoded        *lru.ARCCache
	retentionHours int
	storageName    string
	now            func() time.Time
}

func NewService(store kvstore.Store, cfg Config) (*Service, error) {
	if store == nil {
		return nil, errors.New("store is required")
	}
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = DefaultKeyPrefix
	}
	if cfg.RetentionHours <= 0 {
		cfg.RetentionHours = DefaultRetentionHours
	}
	if cfg.DecodeCacheSize <= 0 {
		cfg.DecodeCacheSize = DefaultDecodeCacheSize
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	decoded, err := lru.NewARC(cfg.DecodeCacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create decode cache: %w", err)
	}

	keys := NewKeys(cfg.KeyPrefix)
	return &Service{
		store:          store,
		keys:           keys,
		index:          NewIndexMaintainer(store, keys),
		decoded:        decoded,
		retentionHours: cfg.RetentionHours,
		storageName:    cfg.StorageName,
		now:            cfg.Now,
	}, nil
}

// Retention is the lifetime of every primary and index key written from now on
func (s *Service) Retention() time.Duration {
	return time.Duration(s.retentionHours) * time.Hour
}

// Ingest stores one entry and indexes it. If the primary write fails, the call fails.
// Index failures are logged and swallowed.
func (s *Service) Ingest(ctx context.Context, entry datamodel.LogEntry) (datamodel.StoredLogEntry, error) {
	if err := entry.Validate(); err != nil {
		return datamodel.StoredLogEntry{}, err
	}
	return s.store1(ctx, entry)
}

// IngestBatch validates every entry before storing any of them, then stores them in input order.
// When a primary write fails, the entries stored so far are returned together with the error.
func (s *Service) IngestBatch(ctx context.Context, entries []datamodel.LogEntry) ([]datamodel.StoredLogEntry, error) {
	for i, entry := range entries {
		if err := entry.Validate(); err != nil {
			return nil, fmt.Errorf("entry %d: %w", i, err)
		}
	}

	stored := make([]datamodel.StoredLogEntry, 0, len(entries))
	for i, entry := range entries {
		result, err := s.store1(ctx, entry)
		if err != nil {
			return stored, fmt.Errorf("entry %d: %w", i, err)
		}
		stored = append(stored, result)
	}
	return stored, nil
}

func (s *Service) store1(ctx context.Context, entry datamodel.LogEntry) (datamodel.StoredLogEntry, error) {
	now := s.now()
	ts := now
	if entry.Timestamp != nil {
		ts = *entry.Timestamp
	}
	stored := entry.Store(GenerateID(ts), now)

	raw, err := Encode(stored)
	if err != nil {
		return datamodel.StoredLogEntry{}, err
	}

	ttl := s.Retention()
	if err = s.store.SetWithTTL(ctx, s.keys.Log(stored.ID), raw, ttl); err != nil {
		ingestFailuresTotal.Inc()
		return datamodel.StoredLogEntry{}, fmt.Errorf("failed to store log entry: %w", err)
	}
	s.decoded.Add(stored.ID, stored)
	ingestedTotal.WithLabelValues(stored.Level.String()).Inc()

	if err = s.index.OnWrite(ctx, stored, ttl); err != nil {
		// No rollback: the entry is still found by unfiltered queries
		zap.S().Warnw("Log entry stored without complete index", "id", stored.ID, "error", err)
	}
	return stored, nil
}

// Get returns ErrNotFound when the id is unknown or expired
func (s *Service) Get(ctx context.Context, id string) (datamodel.StoredLogEntry, error) {
	raw, err := s.store.Get(ctx, s.keys.Log(id))
	if err != nil {
		if errors.Is(err, kvstore.ErrKeyNotFound) {
			return datamodel.StoredLogEntry{}, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return datamodel.StoredLogEntry{}, err
	}
	if cached, ok := s.decoded.Get(id); ok {
		return cached.(datamodel.StoredLogEntry), nil
	}
	entry, err := Decode(raw)
	if err != nil {
		return datamodel.StoredLogEntry{}, err
	}
	s.decoded.Add(id, entry)
	return entry, nil
}

// Delete removes a single entry and its index keys. The entry must still exist: without a
// snapshot the index keys cannot be derived and a full index scan is not done for single deletes.
func (s *Service) Delete(ctx context.Context, id string) error {
	snapshot, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if _, err = s.store.Delete(ctx, s.keys.Log(id)); err != nil {
		return err
	}
	s.decoded.Remove(id)
	if _, err = s.index.OnDelete(ctx, snapshot); err != nil {
		zap.S().Warnw("Index keys left behind after delete, they expire with the retention", "id", id, "error", err)
	}
	return nil
}

// Groups lists the distinct groups that have index keys, sorted
func (s *Service) Groups(ctx context.Context) ([]string, error) {
	indexKeys, err := s.store.Scan(ctx, s.keys.GroupIndexPattern(), 0)
	if err != nil {
		return nil, err
	}
	groups := make(map[string]struct{})
	for _, key := range indexKeys {
		if group, ok := s.keys.GroupFromIndexKey(key); ok && group != "" {
			groups[group] = struct{}{}
		}
	}
	result := maps.Keys(groups)
	sort.Strings(result)
	return result, nil
}

func (s *Service) Stats(ctx context.Context) (Stats, error) {
	logKeys, err := s.store.Scan(ctx, s.keys.LogPattern(), 0)
	if err != nil {
		return Stats{}, err
	}
	return Stats{
		TotalLogs:      len(logKeys),
		Storage:        s.storageName,
		RetentionHours: s.retentionHours,
	}, nil
}

// fetch loads an entry for the query and purge paths. Absent or unreadable entries are
// reported as (false, nil): orphaned index keys and TTL races are expected.
func (s *Service) fetch(ctx context.Context, id string) (datamodel.StoredLogEntry, bool, error) {
	entry, err := s.Get(ctx, id)
	if err == nil {
		return entry, true, nil
	}
	if errors.Is(err, ErrNotFound) {
		zap.S().Debugw("Skipping unresolvable index hit", "id", id)
		return datamodel.StoredLogEntry{}, false, nil
	}
	if errors.Is(err, kvstore.ErrStoreUnavailable) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return datamodel.StoredLogEntry{}, false, err
	}
	zap.S().Warnw("Skipping unreadable log entry", "id", id, "error", err)
	return datamodel.StoredLogEntry{}, false, nil
}
