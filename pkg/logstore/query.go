package logstore

import (
	"context"
	"sort"
	"time"

	"github.com/komfyrvakt/komfyrvakt/pkg/datamodel"
	"go.uber.org/zap"
)

const dimensionScan = "scan"

// Query returns the entries matching filter, newest first, at most filter.Limit of them.
// The filter is expected to have passed Validate.
//
// A group filter selects candidates through the group index, otherwise tags select through
// the union of their tag indexes. Without either, a bounded scan over primary keys is used
// which only considers limit*2 keys. Matches outside those keys are not returned. The memory
// store hands out the newest keys first, Redis SCAN in no particular order.
func (s *Service) Query(ctx context.Context, filter datamodel.Filter) ([]datamodel.StoredLogEntry, error) {
	start := time.Now()
	if filter.Limit <= 0 {
		filter.Limit = datamodel.DefaultLimit
	}

	ids, dimension, err := s.candidates(ctx, filter)
	if err != nil {
		return nil, err
	}

	results := make([]datamodel.StoredLogEntry, 0, len(ids))
	for _, id := range ids {
		entry, ok, err := s.fetch(ctx, id)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		// the index key may be stale or belong to an extended group
		if !filter.MatchesGroup(entry.Group) || !filter.MatchesResidual(entry) {
			continue
		}
		results = append(results, entry)
	}

	sortNewestFirst(results)
	if len(results) > filter.Limit {
		results = results[:filter.Limit]
	}

	queryDuration.WithLabelValues(dimension).Observe(time.Since(start).Seconds())
	zap.S().Debugw("Query finished", "dimension", dimension, "candidates", len(ids), "results", len(results))
	return results, nil
}

func (s *Service) candidates(ctx context.Context, filter datamodel.Filter) ([]string, string, error) {
	switch {
	case filter.Group != "":
		ids, err := s.groupCandidates(ctx, filter)
		return ids, dimensionGroup, err
	case len(filter.Tags) > 0:
		ids, err := s.tagCandidates(ctx, filter.Tags)
		return ids, dimensionTag, err
	default:
		logKeys, err := s.store.Scan(ctx, s.keys.LogPattern(), filter.Limit*2)
		if err != nil {
			return nil, dimensionScan, err
		}
		ids := make([]string, 0, len(logKeys))
		for _, key := range logKeys {
			if id, ok := s.keys.IDFromLogKey(key); ok {
				ids = append(ids, id)
			}
		}
		return ids, dimensionScan, nil
	}
}

func (s *Service) groupCandidates(ctx context.Context, filter datamodel.Filter) ([]string, error) {
	set, err := s.index.Lookup(ctx, s.groupPattern(filter), s.groupMatcher(filter))
	if err != nil {
		return nil, err
	}
	return sortedIDs(set), nil
}

func (s *Service) tagCandidates(ctx context.Context, tags []string) ([]string, error) {
	union := make(map[string]struct{})
	for _, tag := range tags {
		tag := tag
		set, err := s.index.Lookup(ctx, s.keys.TagPattern(tag), func(key string) bool {
			found, ok := s.keys.TagFromIndexKey(key)
			return ok && found == tag
		})
		if err != nil {
			return nil, err
		}
		for id := range set {
			union[id] = struct{}{}
		}
	}
	return sortedIDs(union), nil
}

func (s *Service) groupPattern(filter datamodel.Filter) string {
	if filter.IsGroupPrefix() {
		return s.keys.GroupPattern(filter.GroupPrefix(), true)
	}
	return s.keys.GroupPattern(filter.Group, false)
}

// groupMatcher rejects index keys the glob matched for another group, e.g. "r1:fridge1"
// when asking for exactly "r1", or "r1" when asking for "r1:*"
func (s *Service) groupMatcher(filter datamodel.Filter) func(key string) bool {
	return func(key string) bool {
		found, ok := s.keys.GroupFromIndexKey(key)
		return ok && filter.MatchesGroup(found)
	}
}

func sortedIDs(set map[string]struct{}) []string {
	ids := make([]string, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// sortNewestFirst orders by timestamp descending. Equal timestamps fall back to the id,
// also descending, so repeated queries return a stable order.
func sortNewestFirst(entries []datamodel.StoredLogEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		if !entries[i].Timestamp.Equal(entries[j].Timestamp) {
			return entries[i].Timestamp.After(entries[j].Timestamp)
		}
		return entries[i].ID > entries[j].ID
	})
}
