package logstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/komfyrvakt/komfyrvakt/pkg/datamodel"
	"github.com/komfyrvakt/komfyrvakt/pkg/kvstore"
	"go.uber.org/zap"
)

// IndexMaintainer keeps the tag and group indexes next to the primary records.
// Index writes are not atomic with the primary write or with each other; a failure leaves
// the entry reachable by full scan only.
type IndexMaintainer struct {
	store kvstore.Store
	keys  Keys
}

func NewIndexMaintainer(store kvstore.Store, keys Keys) *IndexMaintainer {
	return &IndexMaintainer{store: store, keys: keys}
}

// keysFor lists every index key derivable from an entry
func (im *IndexMaintainer) keysFor(entry datamodel.StoredLogEntry) []string {
	keys := make([]string, 0, len(entry.Tags)+1)
	for _, tag := range entry.Tags {
		keys = append(keys, im.keys.TagIndex(tag, entry.ID))
	}
	if entry.Group != "" {
		keys = append(keys, im.keys.GroupIndex(entry.Group, entry.ID))
	}
	return keys
}

// OnWrite creates one index key per tag and one for the group, all expiring with the primary.
// Every key is attempted; the returned error wraps ErrPartialIndexFailure and joins the failures.
func (im *IndexMaintainer) OnWrite(ctx context.Context, entry datamodel.StoredLogEntry, ttl time.Duration) error {
	var errs []error
	value := []byte(entry.ID)

	for _, tag := range entry.Tags {
		if err := im.store.SetWithTTL(ctx, im.keys.TagIndex(tag, entry.ID), value, ttl); err != nil {
			indexWriteFailuresTotal.WithLabelValues(dimensionTag).Inc()
			errs = append(errs, fmt.Errorf("tag %q: %w", tag, err))
		}
	}
	if entry.Group != "" {
		if err := im.store.SetWithTTL(ctx, im.keys.GroupIndex(entry.Group, entry.ID), value, ttl); err != nil {
			indexWriteFailuresTotal.WithLabelValues(dimensionGroup).Inc()
			errs = append(errs, fmt.Errorf("group %q: %w", entry.Group, err))
		}
	}

	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w for %s: %w", ErrPartialIndexFailure, entry.ID, errors.Join(errs...))
}

// OnDelete removes the index keys derivable from snapshot
func (im *IndexMaintainer) OnDelete(ctx context.Context, snapshot datamodel.StoredLogEntry) (int64, error) {
	keys := im.keysFor(snapshot)
	if len(keys) == 0 {
		return 0, nil
	}
	return im.store.DeleteMany(ctx, keys)
}

// OnDeleteByScan removes index keys of the given ids without a snapshot. It scans every key
// matching pattern, so it is O(index size) and only meant for bulk purge.
func (im *IndexMaintainer) OnDeleteByScan(ctx context.Context, pattern string, ids map[string]struct{}) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	indexKeys, err := im.store.Scan(ctx, pattern, 0)
	if err != nil {
		return 0, err
	}

	doomed := make([]string, 0)
	for _, key := range indexKeys {
		if _, ok := ids[IDFromIndexKey(key)]; ok {
			doomed = append(doomed, key)
		}
	}
	zap.S().Debugw("Removing index keys by scan", "scanned", len(indexKeys), "matched", len(doomed))
	if len(doomed) == 0 {
		return 0, nil
	}
	return im.store.DeleteMany(ctx, doomed)
}

// Lookup resolves the ids referenced by index keys matching pattern. accept filters keys whose
// value segment does not belong to the requested tag or group.
func (im *IndexMaintainer) Lookup(ctx context.Context, pattern string, accept func(key string) bool) (map[string]struct{}, error) {
	indexKeys, err := im.store.Scan(ctx, pattern, 0)
	if err != nil {
		return nil, err
	}
	ids := make(map[string]struct{}, len(indexKeys))
	for _, key := range indexKeys {
		if accept != nil && !accept(key) {
			continue
		}
		ids[IDFromIndexKey(key)] = struct{}{}
	}
	return ids, nil
}
