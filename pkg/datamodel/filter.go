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

package datamodel

import (
	"strings"
	"time"
)

const (
	// DefaultLimit is used when a query does not specify a limit
	DefaultLimit = 100
	// MaxLimit is the hard ceiling for a single query
	MaxLimit = 1000
)

// Filter selects stored log entries.
// Since and Until are both inclusive.
type Filter struct {
	// Group matches exactly, or as a prefix when it ends with GroupWildcard
	Group string
	// Tags are OR-ed: an entry matches if it carries at least one of them
	Tags     []string
	MinLevel *Level
	Since    *time.Time
	Until    *time.Time
	Source   string
	Limit    int
}

// NewFilter returns an empty filter with the default limit
func NewFilter() Filter {
	return Filter{Limit: DefaultLimit}
}

// Validate is the boundary check for filters. The query engine assumes it passed.
func (f Filter) Validate() error {
	if f.Limit < 1 || f.Limit > MaxLimit {
		return NewValidationError("limit", "must be between 1 and 1000")
	}
	if f.MinLevel != nil && !f.MinLevel.Valid() {
		return NewValidationError("level", "unknown level")
	}
	if f.Since != nil && f.Until != nil && f.Since.After(*f.Until) {
		return NewValidationError("since", "must not be after until")
	}
	if strings.Contains(strings.TrimSuffix(f.Group, GroupWildcard), GroupWildcard) {
		return NewValidationError("group", "'*' is only allowed as the last character")
	}
	for _, tag := range f.Tags {
		if tag == "" || strings.Contains(tag, GroupWildcard) {
			return NewValidationError("tags", "tags must be non-empty and must not contain '*'")
		}
	}
	return nil
}

// IsGroupPrefix reports whether the group filter is a prefix match
func (f Filter) IsGroupPrefix() bool {
	return strings.HasSuffix(f.Group, GroupWildcard)
}

// GroupPrefix returns the group filter without its wildcard marker
func (f Filter) GroupPrefix() string {
	return strings.TrimSuffix(f.Group, GroupWildcard)
}

// MatchesGroup reports whether group satisfies the group filter
func (f Filter) MatchesGroup(group string) bool {
	if f.Group == "" {
		return true
	}
	if f.IsGroupPrefix() {
		return strings.HasPrefix(group, f.GroupPrefix())
	}
	return group == f.Group
}

// MatchesResidual applies the predicates that the indexes cannot answer, in this order:
// minimum level, time window, source, and (if requested) at least one tag.
func (f Filter) MatchesResidual(e StoredLogEntry) bool {
	if f.MinLevel != nil && !e.Level.AtLeast(*f.MinLevel) {
		return false
	}
	if f.Since != nil && e.Timestamp.Before(*f.Since) {
		return false
	}
	if f.Until != nil && e.Timestamp.After(*f.Until) {
		return false
	}
	if f.Source != "" && e.Source != f.Source {
		return false
	}
	if len(f.Tags) > 0 && !e.HasAnyTag(f.Tags) {
		return false
	}
	return true
}
