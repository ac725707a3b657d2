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
	"fmt"
	"strings"
)

// Level is the severity of a log entry.
// The declared order is the ordinal order used by minimum-level filters.
type Level int

const (
	// LevelUnset is the zero value. It is replaced by LevelInfo on ingestion.
	LevelUnset Level = iota
	// LevelDebug is for diagnostic noise
	LevelDebug
	// LevelInfo is the default level
	LevelInfo
	// LevelWarning means something looks off but nothing failed yet
	LevelWarning
	// LevelError means an operation failed
	LevelError
	// LevelCritical means the system (or a part of it) is unusable
	LevelCritical
)

var levelNames = map[Level]string{
	LevelDebug:    "debug",
	LevelInfo:     "info",
	LevelWarning:  "warning",
	LevelError:    "error",
	LevelCritical: "critical",
}

// Levels returns all valid levels in ascending order
func Levels() []Level {
	return []Level{LevelDebug, LevelInfo, LevelWarning, LevelError, LevelCritical}
}

// ParseLevel converts a level name (case-insensitive) into a Level
func ParseLevel(s string) (Level, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	valid := make([]string, 0, len(levelNames))
	for _, level := range Levels() {
		if levelNames[level] == name {
			return level, nil
		}
		valid = append(valid, levelNames[level])
	}
	return LevelUnset, fmt.Errorf("unknown log level %q, expected one of %s", s, strings.Join(valid, ", "))
}

func (l Level) String() string {
	return levelNames[l]
}

// Valid reports whether l is one of the declared levels
func (l Level) Valid() bool {
	_, ok := levelNames[l]
	return ok
}

// AtLeast reports whether l is equal to or more severe than minimum
func (l Level) AtLeast(minimum Level) bool {
	return l >= minimum
}

// OrDefault returns LevelInfo for an unset level
func (l Level) OrDefault() Level {
	if l == LevelUnset {
		return LevelInfo
	}
	return l
}

func (l Level) MarshalText() ([]byte, error) {
	if !l.Valid() {
		return nil, fmt.Errorf("cannot marshal invalid log level %d", int(l))
	}
	return []byte(l.String()), nil
}

func (l *Level) UnmarshalText(text []byte) error {
	parsed, err := ParseLevel(string(text))
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}
