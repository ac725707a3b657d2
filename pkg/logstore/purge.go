package logstore

import (
	"context"
	"fmt"

	"github.com/komfyrvakt/komfyrvakt/pkg/datamodel"
	"go.uber.org/zap"
)

const (
	scopeAll   = "all"
	scopeGroup = "group"
)

// PurgeScope selects what Purge removes. The zero value removes nothing.
type PurgeScope struct {
	All   bool
	Group string
}

func PurgeAll() PurgeScope {
	return PurgeScope{All: true}
}

// PurgeGroup removes one group exactly, or every group with the given prefix when it ends with '*'
func PurgeGroup(group string) PurgeScope {
	return PurgeScope{Group: group}
}

type PurgeResult struct {
	Scope          string `json:"scope"`
	Group          string `json:"group,omitempty"`
	Purged         int64  `json:"purged"`
	IndexesCleared int64  `json:"indexes_cleared"`
}

// Purge deletes entries and their index keys. It is not atomic: entries written concurrently
// may survive or lose some index keys, and a failure part way leaves orphans that expire
// with the retention.
func (s *Service) Purge(ctx context.Context, scope PurgeScope) (PurgeResult, error) {
	switch {
	case scope.All:
		return s.purgeAll(ctx)
	case scope.Group != "":
		filter := datamodel.Filter{Group: scope.Group, Limit: datamodel.DefaultLimit}
		if err := filter.Validate(); err != nil {
			return PurgeResult{}, err
		}
		return s.purgeGroup(ctx, filter)
	default:
		return PurgeResult{}, datamodel.NewValidationError("group", "either a group or all must be selected")
	}
}

func (s *Service) purgeAll(ctx context.Context) (PurgeResult, error) {
	result := PurgeResult{Scope: scopeAll}

	logKeys, err := s.store.Scan(ctx, s.keys.LogPattern(), 0)
	if err != nil {
		return result, err
	}
	if result.Purged, err = s.store.DeleteMany(ctx, logKeys); err != nil {
		return result, fmt.Errorf("failed to delete log entries: %w", err)
	}
	s.decoded.Purge()

	indexKeys, err := s.store.Scan(ctx, s.keys.IndexPattern(), 0)
	if err != nil {
		return result, err
	}
	if result.IndexesCleared, err = s.store.DeleteMany(ctx, indexKeys); err != nil {
		return result, fmt.Errorf("failed to delete index keys: %w", err)
	}

	purgedTotal.WithLabelValues(scopeAll).Add(float64(result.Purged))
	zap.S().Infow("Purged all log entries", "purged", result.Purged, "indexesCleared", result.IndexesCleared)
	return result, nil
}

func (s *Service) purgeGroup(ctx context.Context, filter datamodel.Filter) (PurgeResult, error) {
	result := PurgeResult{Scope: scopeGroup, Group: filter.Group}

	groupKeys, err := s.store.Scan(ctx, s.groupPattern(filter), 0)
	if err != nil {
		return result, err
	}

	ids := make(map[string]struct{}, len(groupKeys))
	doomedIndexKeys := make([]string, 0, len(groupKeys))
	logKeys := make([]string, 0, len(groupKeys))
	accept := s.groupMatcher(filter)
	for _, key := range groupKeys {
		if !accept(key) {
			continue
		}
		id := IDFromIndexKey(key)
		if _, seen := ids[id]; !seen {
			ids[id] = struct{}{}
			logKeys = append(logKeys, s.keys.Log(id))
		}
		doomedIndexKeys = append(doomedIndexKeys, key)
	}
	if len(ids) == 0 {
		return result, nil
	}

	if result.Purged, err = s.store.DeleteMany(ctx, logKeys); err != nil {
		return result, fmt.Errorf("failed to delete log entries: %w", err)
	}
	for id := range ids {
		s.decoded.Remove(id)
	}

	cleared, err := s.store.DeleteMany(ctx, doomedIndexKeys)
	if err != nil {
		return result, fmt.Errorf("failed to delete group index keys: %w", err)
	}
	result.IndexesCleared += cleared

	// Tag keys of the purged ids have no snapshot to derive them from
	cleared, err = s.index.OnDeleteByScan(ctx, s.keys.TagIndexPattern(), ids)
	if err != nil {
		return result, fmt.Errorf("failed to delete tag index keys: %w", err)
	}
	result.IndexesCleared += cleared

	purgedTotal.WithLabelValues(scopeGroup).Add(float64(result.Purged))
	zap.S().Infow("Purged log group", "group", filter.Group, "purged", result.Purged, "indexesCleared", result.IndexesCleared)
	return result, nil
}
