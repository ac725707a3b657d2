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

package logstore

import (
	"encoding/hex"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/komfyrvakt/komfyrvakt/pkg/datamodel"
)

// idTimeLayout keeps ids lexically sortable by creation second
const idTimeLayout = "20060102150405"

// GenerateID returns "log_<YYYYMMDDHHMMSS>_<8 hex>". The random suffix comes from a v4 UUID,
// which keeps concurrent writers in the same second apart. Ids are not used for ordering;
// the timestamp field is.
func GenerateID(ts time.Time) string {
	u := uuid.New()
	return "log_" + ts.UTC().Format(idTimeLayout) + "_" + hex.EncodeToString(u[:4])
}

// Encode serialises a stored entry. The output is deterministic: struct fields keep their
// declared order and data keys are sorted by the encoder.
func Encode(entry datamodel.StoredLogEntry) ([]byte, error) {
	raw, err := json.Marshal(entry)
	if err != nil {
		return nil, fmt.Errorf("encode log entry %s: %w", entry.ID, err)
	}
	return raw, nil
}

// Decode is the inverse of Encode
func Decode(raw []byte) (datamodel.StoredLogEntry, error) {
	var entry datamodel.StoredLogEntry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return datamodel.StoredLogEntry{}, fmt.Errorf("decode log entry: %w", err)
	}
	if entry.Tags == nil {
		entry.Tags = []string{}
	}
	return entry, nil
}
