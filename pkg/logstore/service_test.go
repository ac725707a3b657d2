package logstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/komfyrvakt/komfyrvakt/pkg/datamodel"
	"github.com/komfyrvakt/komfyrvakt/pkg/kvstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var baseTime = time.Date(2025, 11, 12, 20, 0, 0, 0, time.UTC)

func newTestService(t *testing.T, store kvstore.Store) *Service {
	t.Helper()
	s, err := NewService(store, Config{KeyPrefix: "test", RetentionHours: 48, StorageName: "memory"})
	require.NoError(t, err)
	return s
}

func at(minutes int) *time.Time {
	ts := baseTime.Add(time.Duration(minutes) * time.Minute)
	return &ts
}

func level(l datamodel.Level) *datamodel.Level {
	return &l
}

// failingIndexStore rejects index writes and passes everything else through
type failingIndexStore struct {
	*kvstore.MemoryStore
}

func (f failingIndexStore) SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if strings.Contains(key, ":index:") {
		return fmt.Errorf("%w: connection reset", kvstore.ErrStoreUnavailable)
	}
	return f.MemoryStore.SetWithTTL(ctx, key, value, ttl)
}

// failingPrimaryStore rejects primary writes after the first allowed ones
type failingPrimaryStore struct {
	*kvstore.MemoryStore
	allowed int
}

func (f *failingPrimaryStore) SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if strings.Contains(key, ":logs:") {
		if f.allowed == 0 {
			return fmt.Errorf("%w: connection refused", kvstore.ErrStoreUnavailable)
		}
		f.allowed--
	}
	return f.MemoryStore.SetWithTTL(ctx, key, value, ttl)
}

func TestIngestWritesPrimaryAndIndexes(t *testing.T) {
	ctx := context.Background()
	store := kvstore.NewMemoryStore()
	s := newTestService(t, store)

	stored, err := s.Ingest(ctx, datamodel.LogEntry{
		Message:   "Temperature too high",
		Level:     datamodel.LevelWarning,
		Group:     "r1:fridge1",
		Tags:      []string{"temperature", "alert", "alert"},
		Data:      map[string]datamodel.Value{"temperature": datamodel.Number(8.5)},
		Timestamp: at(15),
	})
	require.NoError(t, err)

	assert.Regexp(t, idFormat, stored.ID)
	assert.Equal(t, []string{"temperature", "alert"}, stored.Tags)
	assert.True(t, at(15).Equal(stored.Timestamp))

	for _, key := range []string{
		s.keys.Log(stored.ID),
		s.keys.TagIndex("temperature", stored.ID),
		s.keys.TagIndex("alert", stored.ID),
		s.keys.GroupIndex("r1:fridge1", stored.ID),
	} {
		ttl, err := store.TTLRemaining(ctx, key)
		require.NoError(t, err, key)
		assert.True(t, ttl > 47*time.Hour && ttl <= 48*time.Hour, "key %s has ttl %s", key, ttl)
	}

	got, err := s.Get(ctx, stored.ID)
	require.NoError(t, err)
	assert.Equal(t, stored.Message, got.Message)
	assert.Equal(t, datamodel.LevelWarning, got.Level)
}

func TestIngestDefaults(t *testing.T) {
	ctx := context.Background()
	s := newTestService(t, kvstore.NewMemoryStore())
	s.now = func() time.Time { return baseTime }

	stored, err := s.Ingest(ctx, datamodel.LogEntry{Message: "hello"})
	require.NoError(t, err)
	assert.Equal(t, datamodel.LevelInfo, stored.Level)
	assert.True(t, baseTime.Equal(stored.Timestamp))
	assert.Equal(t, []string{}, stored.Tags)
	assert.Contains(t, stored.ID, "_20251112200000_")
}

func TestIngestValidation(t *testing.T) {
	ctx := context.Background()
	store := kvstore.NewMemoryStore()
	s := newTestService(t, store)

	_, err := s.Ingest(ctx, datamodel.LogEntry{Message: "  "})
	assert.ErrorIs(t, err, datamodel.ErrValidation)

	_, err = s.Ingest(ctx, datamodel.LogEntry{Message: "m", Tags: []string{""}})
	assert.ErrorIs(t, err, datamodel.ErrValidation)

	keys, err := store.Scan(ctx, "*", 0)
	require.NoError(t, err)
	assert.Empty(t, keys, "rejected entries must not write anything")
}

func TestIngestPartialIndexFailure(t *testing.T) {
	ctx := context.Background()
	store := failingIndexStore{kvstore.NewMemoryStore()}
	s := newTestService(t, store)

	stored, err := s.Ingest(ctx, datamodel.LogEntry{Message: "m", Group: "r1", Tags: []string{"a"}, Timestamp: at(0)})
	require.NoError(t, err, "index failures must not fail the ingest")

	_, err = s.Get(ctx, stored.ID)
	require.NoError(t, err)

	// still reachable through the unfiltered scan
	results, err := s.Query(ctx, datamodel.NewFilter())
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, stored.ID, results[0].ID)

	// but not through the missing indexes
	filter := datamodel.NewFilter()
	filter.Group = "r1"
	results, err = s.Query(ctx, filter)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestIndexMaintainerReportsPartialFailure(t *testing.T) {
	store := failingIndexStore{kvstore.NewMemoryStore()}
	im := NewIndexMaintainer(store, NewKeys("test"))

	err := im.OnWrite(context.Background(), datamodel.StoredLogEntry{ID: "log_1", Group: "r1", Tags: []string{"a", "b"}}, time.Hour)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrPartialIndexFailure)
	assert.ErrorIs(t, err, kvstore.ErrStoreUnavailable)
}

func TestIngestBatch(t *testing.T) {
	ctx := context.Background()
	s := newTestService(t, kvstore.NewMemoryStore())

	_, err := s.IngestBatch(ctx, []datamodel.LogEntry{{Message: "ok"}, {Message: ""}})
	assert.ErrorIs(t, err, datamodel.ErrValidation)
	stats, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, stats.TotalLogs, "a single invalid entry rejects the whole batch")

	stored, err := s.IngestBatch(ctx, []datamodel.LogEntry{{Message: "one"}, {Message: "two"}})
	require.NoError(t, err)
	require.Len(t, stored, 2)
	assert.Equal(t, "one", stored[0].Message)
	assert.Equal(t, "two", stored[1].Message)
}

func TestIngestBatchPrimaryFailure(t *testing.T) {
	ctx := context.Background()
	s := newTestService(t, &failingPrimaryStore{MemoryStore: kvstore.NewMemoryStore(), allowed: 1})

	stored, err := s.IngestBatch(ctx, []datamodel.LogEntry{{Message: "one"}, {Message: "two"}, {Message: "three"}})
	assert.ErrorIs(t, err, kvstore.ErrStoreUnavailable)
	require.Len(t, stored, 1)
	assert.Equal(t, "one", stored[0].Message)
}

func TestGetNotFound(t *testing.T) {
	s := newTestService(t, kvstore.NewMemoryStore())
	_, err := s.Get(context.Background(), "log_20250101000000_deadbeef")
	assert.ErrorIs(t, err, ErrNotFound)
}

func seed(t *testing.T, s *Service) map[string]datamodel.StoredLogEntry {
	t.Helper()
	entries := map[string]datamodel.LogEntry{
		"r1-info":      {Message: "door opened", Level: datamodel.LevelInfo, Group: "r1", Tags: []string{"door"}, Timestamp: at(1), Source: "door-1"},
		"r1f1-warning": {Message: "temp high", Level: datamodel.LevelWarning, Group: "r1:fridge1", Tags: []string{"temperature", "alert"}, Timestamp: at(2), Source: "sensor-1"},
		"r1f2-error":   {Message: "compressor failed", Level: datamodel.LevelError, Group: "r1:fridge2", Tags: []string{"compressor"}, Timestamp: at(3), Source: "sensor-2"},
		"r10-critical": {Message: "power lost", Level: datamodel.LevelCritical, Group: "r10", Tags: []string{"power", "alert"}, Timestamp: at(4), Source: "ups"},
		"nogroup":      {Message: "debug ping", Level: datamodel.LevelDebug, Tags: []string{"ping"}, Timestamp: at(5)},
	}
	stored := make(map[string]datamodel.StoredLogEntry, len(entries))
	for name, entry := range entries {
		result, err := s.Ingest(context.Background(), entry)
		require.NoError(t, err)
		stored[name] = result
	}
	return stored
}

func messages(entries []datamodel.StoredLogEntry) []string {
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.Message)
	}
	return out
}

func TestQuery(t *testing.T) {
	ctx := context.Background()
	s := newTestService(t, kvstore.NewMemoryStore())
	seed(t, s)

	testCases := []struct {
		name     string
		mutate   func(f *datamodel.Filter)
		expected []string
	}{
		{
			name:     "unfiltered newest first",
			mutate:   func(f *datamodel.Filter) {},
			expected: []string{"debug ping", "power lost", "compressor failed", "temp high", "door opened"},
		},
		{
			name:     "exact group excludes children and siblings",
			mutate:   func(f *datamodel.Filter) { f.Group = "r1" },
			expected: []string{"door opened"},
		},
		{
			name:     "wildcard group",
			mutate:   func(f *datamodel.Filter) { f.Group = "r1:*" },
			expected: []string{"compressor failed", "temp high"},
		},
		{
			name:     "bare prefix wildcard includes siblings",
			mutate:   func(f *datamodel.Filter) { f.Group = "r1*" },
			expected: []string{"power lost", "compressor failed", "temp high", "door opened"},
		},
		{
			name:     "tags are or-ed",
			mutate:   func(f *datamodel.Filter) { f.Tags = []string{"alert", "door"} },
			expected: []string{"power lost", "temp high", "door opened"},
		},
		{
			name:     "group takes precedence and tags still apply",
			mutate:   func(f *datamodel.Filter) { f.Group = "r1*"; f.Tags = []string{"alert"} },
			expected: []string{"power lost", "temp high"},
		},
		{
			name:     "min level",
			mutate:   func(f *datamodel.Filter) { f.MinLevel = level(datamodel.LevelError) },
			expected: []string{"power lost", "compressor failed"},
		},
		{
			name:     "inclusive time window",
			mutate:   func(f *datamodel.Filter) { f.Since = at(2); f.Until = at(4) },
			expected: []string{"power lost", "compressor failed", "temp high"},
		},
		{
			name:     "source",
			mutate:   func(f *datamodel.Filter) { f.Source = "ups" },
			expected: []string{"power lost"},
		},
		{
			name:     "limit",
			mutate:   func(f *datamodel.Filter) { f.Group = "r1*"; f.Limit = 2 },
			expected: []string{"power lost", "compressor failed"},
		},
		{
			name:     "unknown group",
			mutate:   func(f *datamodel.Filter) { f.Group = "nowhere" },
			expected: []string{},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			filter := datamodel.NewFilter()
			tc.mutate(&filter)
			require.NoError(t, filter.Validate())

			results, err := s.Query(ctx, filter)
			require.NoError(t, err)
			assert.Equal(t, tc.expected, messages(results))
		})
	}
}

func TestQueryTiesBreakByID(t *testing.T) {
	ctx := context.Background()
	s := newTestService(t, kvstore.NewMemoryStore())

	for i := 0; i < 5; i++ {
		_, err := s.Ingest(ctx, datamodel.LogEntry{Message: fmt.Sprintf("m%d", i), Group: "g", Timestamp: at(0)})
		require.NoError(t, err)
	}

	filter := datamodel.NewFilter()
	filter.Group = "g"
	first, err := s.Query(ctx, filter)
	require.NoError(t, err)
	require.Len(t, first, 5)
	for i := 1; i < len(first); i++ {
		assert.Greater(t, first[i-1].ID, first[i].ID)
	}

	second, err := s.Query(ctx, filter)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestQueryToleratesOrphanedIndexKeys(t *testing.T) {
	ctx := context.Background()
	store := kvstore.NewMemoryStore()
	s := newTestService(t, store)
	stored := seed(t, s)

	// primary expired but index key survived
	_, err := store.Delete(ctx, s.keys.Log(stored["r1-info"].ID))
	require.NoError(t, err)
	s.decoded.Purge()
	// index key pointing at garbage
	require.NoError(t, store.SetWithTTL(ctx, s.keys.Log("log_20251112200000_badbad00"), []byte("{"), time.Hour))
	require.NoError(t, store.SetWithTTL(ctx, s.keys.GroupIndex("r1", "log_20251112200000_badbad00"), []byte("x"), time.Hour))

	filter := datamodel.NewFilter()
	filter.Group = "r1*"
	results, err := s.Query(ctx, filter)
	require.NoError(t, err)
	assert.Equal(t, []string{"power lost", "compressor failed", "temp high"}, messages(results))
}

func TestQueryBoundedScan(t *testing.T) {
	ctx := context.Background()
	s := newTestService(t, kvstore.NewMemoryStore())

	for i := 0; i < 10; i++ {
		_, err := s.Ingest(ctx, datamodel.LogEntry{Message: fmt.Sprintf("m%d", i), Timestamp: at(i)})
		require.NoError(t, err)
	}

	filter := datamodel.NewFilter()
	filter.Limit = 2
	filter.MinLevel = level(datamodel.LevelError)
	results, err := s.Query(ctx, filter)
	require.NoError(t, err)
	assert.Empty(t, results)

	// only limit*2 primary keys are considered without an index dimension, the newest ones
	filter = datamodel.NewFilter()
	filter.Limit = 3
	filter.Since = at(0)
	results, err = s.Query(ctx, filter)
	require.NoError(t, err)
	assert.Equal(t, []string{"m9", "m8", "m7"}, messages(results))

	// residual filters only see the scanned window
	filter.Until = at(3)
	results, err = s.Query(ctx, filter)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestQueryUnfilteredReturnsNewest(t *testing.T) {
	ctx := context.Background()
	s := newTestService(t, kvstore.NewMemoryStore())

	var newest datamodel.StoredLogEntry
	for i := 0; i < 250; i++ {
		stored, err := s.Ingest(ctx, datamodel.LogEntry{Message: fmt.Sprintf("m%d", i), Timestamp: at(i)})
		require.NoError(t, err)
		newest = stored
	}

	results, err := s.Query(ctx, datamodel.NewFilter())
	require.NoError(t, err)
	require.Len(t, results, datamodel.DefaultLimit)
	assert.Equal(t, newest.ID, results[0].ID)
	assert.Equal(t, "m150", results[len(results)-1].Message)
}

func TestDelete(t *testing.T) {
	ctx := context.Background()
	store := kvstore.NewMemoryStore()
	s := newTestService(t, store)
	stored := seed(t, s)

	victim := stored["r1f1-warning"]
	require.NoError(t, s.Delete(ctx, victim.ID))

	_, err := s.Get(ctx, victim.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	for _, key := range []string{s.keys.TagIndex("alert", victim.ID), s.keys.GroupIndex("r1:fridge1", victim.ID)} {
		_, err = store.Get(ctx, key)
		assert.ErrorIs(t, err, kvstore.ErrKeyNotFound, key)
	}

	assert.ErrorIs(t, s.Delete(ctx, victim.ID), ErrNotFound)
}

func TestGroupsAndStats(t *testing.T) {
	ctx := context.Background()
	s := newTestService(t, kvstore.NewMemoryStore())

	groups, err := s.Groups(ctx)
	require.NoError(t, err)
	assert.Empty(t, groups)

	seed(t, s)
	_, err = s.Ingest(ctx, datamodel.LogEntry{Message: "again", Group: "r1"})
	require.NoError(t, err)

	groups, err = s.Groups(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"r1", "r10", "r1:fridge1", "r1:fridge2"}, groups)

	stats, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, Stats{TotalLogs: 6, Storage: "memory", RetentionHours: 48}, stats)
}

func TestPurgeExactGroup(t *testing.T) {
	ctx := context.Background()
	store := kvstore.NewMemoryStore()
	s := newTestService(t, store)
	stored := seed(t, s)

	result, err := s.Purge(ctx, PurgeGroup("r1"))
	require.NoError(t, err)
	assert.Equal(t, int64(1), result.Purged)
	// one group key and one tag key
	assert.Equal(t, int64(2), result.IndexesCleared)
	assert.Equal(t, "group", result.Scope)

	_, err = s.Get(ctx, stored["r1-info"].ID)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = store.Get(ctx, s.keys.TagIndex("door", stored["r1-info"].ID))
	assert.ErrorIs(t, err, kvstore.ErrKeyNotFound)

	// children survive an exact purge
	_, err = s.Get(ctx, stored["r1f1-warning"].ID)
	assert.NoError(t, err)

	groups, err := s.Groups(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"r10", "r1:fridge1", "r1:fridge2"}, groups)
}

func TestPurgeWildcardGroup(t *testing.T) {
	ctx := context.Background()
	store := kvstore.NewMemoryStore()
	s := newTestService(t, store)
	stored := seed(t, s)

	result, err := s.Purge(ctx, PurgeGroup("r1:*"))
	require.NoError(t, err)
	assert.Equal(t, int64(2), result.Purged)
	// two group keys, three tag keys
	assert.Equal(t, int64(5), result.IndexesCleared)

	// the "alert" tag of r10 is untouched
	_, err = store.Get(ctx, s.keys.TagIndex("alert", stored["r10-critical"].ID))
	assert.NoError(t, err)

	filter := datamodel.NewFilter()
	filter.Tags = []string{"alert"}
	results, err := s.Query(ctx, filter)
	require.NoError(t, err)
	assert.Equal(t, []string{"power lost"}, messages(results))
}

func TestPurgeAll(t *testing.T) {
	ctx := context.Background()
	store := kvstore.NewMemoryStore()
	s := newTestService(t, store)
	seed(t, s)
	require.NoError(t, store.SetWithTTL(ctx, "test:ai:analysis:x", []byte("cached"), time.Hour))

	result, err := s.Purge(ctx, PurgeAll())
	require.NoError(t, err)
	assert.Equal(t, int64(5), result.Purged)
	// 7 tag keys and 4 group keys
	assert.Equal(t, int64(11), result.IndexesCleared)
	assert.Equal(t, "all", result.Scope)

	stats, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, stats.TotalLogs)

	// keys outside the log and index namespaces are not touched here
	_, err = store.Get(ctx, "test:ai:analysis:x")
	assert.NoError(t, err)

	result, err = s.Purge(ctx, PurgeAll())
	require.NoError(t, err)
	assert.Equal(t, int64(0), result.Purged)
}

func TestPurgeScopeValidation(t *testing.T) {
	s := newTestService(t, kvstore.NewMemoryStore())

	_, err := s.Purge(context.Background(), PurgeScope{})
	assert.ErrorIs(t, err, datamodel.ErrValidation)

	_, err = s.Purge(context.Background(), PurgeGroup("a*b"))
	assert.ErrorIs(t, err, datamodel.ErrValidation)

	result, err := s.Purge(context.Background(), PurgeGroup("unknown"))
	require.NoError(t, err)
	assert.Equal(t, int64(0), result.Purged)
}

func TestQueryStoreUnavailable(t *testing.T) {
	store := kvstore.NewMemoryStore()
	s := newTestService(t, unavailableScanStore{store})

	_, err := s.Query(context.Background(), datamodel.NewFilter())
	assert.True(t, errors.Is(err, kvstore.ErrStoreUnavailable))
}

type unavailableScanStore struct {
	*kvstore.MemoryStore
}

func (unavailableScanStore) Scan(context.Context, string, int) ([]string, error) {
	return nil, kvstore.ErrStoreUnavailable
}
