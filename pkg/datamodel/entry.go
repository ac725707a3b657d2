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

// GroupSeparator delimits the levels of a hierarchical group, e.g. "restaurant-a:fridge-1"
const GroupSeparator = ":"

// GroupWildcard at the end of a group filter turns it into a prefix match
const GroupWildcard = "*"

// LogEntry is a log entry as received from a client.
//
// Example:
//
//	{
//	  "message": "Temperature too high",
//	  "level": "warning",
//	  "group": "restaurant-a:fridge-1",
//	  "tags": ["temperature", "alert"],
//	  "data": {"temperature": 8.5, "threshold": 6.0},
//	  "timestamp": "2025-11-12T20:15:30Z",
//	  "source": "sensor-temp-001"
//	}
type LogEntry struct {
	Message   string           `json:"message"`
	Level     Level            `json:"level,omitempty"`
	Group     string           `json:"group,omitempty"`
	Tags      []string         `json:"tags,omitempty"`
	Data      map[string]Value `json:"data,omitempty"`
	Timestamp *time.Time       `json:"timestamp,omitempty"`
	Source    string           `json:"source,omitempty"`
}

// StoredLogEntry is a LogEntry after ingestion. It is immutable.
type StoredLogEntry struct {
	ID        string           `json:"id"`
	Message   string           `json:"message"`
	Level     Level            `json:"level"`
	Group     string           `json:"group,omitempty"`
	Tags      []string         `json:"tags"`
	Data      map[string]Value `json:"data,omitempty"`
	Timestamp time.Time        `json:"timestamp"`
	Source    string           `json:"source,omitempty"`
}

// Validate checks the fields a client is responsible for
func (e LogEntry) Validate() error {
	if strings.TrimSpace(e.Message) == "" {
		return NewValidationError("message", "must not be empty")
	}
	if e.Level != LevelUnset && !e.Level.Valid() {
		return NewValidationError("level", "unknown level")
	}
	if strings.Contains(e.Group, GroupWildcard) {
		return NewValidationError("group", "must not contain '*'")
	}
	for _, tag := range e.Tags {
		if tag == "" {
			return NewValidationError("tags", "must not contain empty tags")
		}
		if strings.Contains(tag, GroupWildcard) {
			return NewValidationError("tags", "must not contain '*'")
		}
	}
	return nil
}

// Store turns the entry into its stored form. Missing timestamps are set to now,
// the level defaults to info, duplicate tags are dropped (first occurrence wins)
// and empty collections are normalised so they survive an encode/decode cycle.
func (e LogEntry) Store(id string, now time.Time) StoredLogEntry {
	ts := now
	if e.Timestamp != nil {
		ts = *e.Timestamp
	}

	tags := make([]string, 0, len(e.Tags))
	seen := make(map[string]struct{}, len(e.Tags))
	for _, tag := range e.Tags {
		if _, ok := seen[tag]; ok {
			continue
		}
		seen[tag] = struct{}{}
		tags = append(tags, tag)
	}

	var data map[string]Value
	if len(e.Data) > 0 {
		data = make(map[string]Value, len(e.Data))
		for k, v := range e.Data {
			data[k] = v
		}
	}

	return StoredLogEntry{
		ID:        id,
		Message:   e.Message,
		Level:     e.Level.OrDefault(),
		Group:     e.Group,
		Tags:      tags,
		Data:      data,
		Timestamp: ts.UTC(),
		Source:    e.Source,
	}
}

// HasTag reports whether the entry carries tag
func (e StoredLogEntry) HasTag(tag string) bool {
	for _, t := range e.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// HasAnyTag reports whether the entry carries at least one of tags
func (e StoredLogEntry) HasAnyTag(tags []string) bool {
	for _, tag := range tags {
		if e.HasTag(tag) {
			return true
		}
	}
	return false
}
