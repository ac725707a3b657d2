package logstore

import (
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/komfyrvakt/komfyrvakt/pkg/datamodel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var idFormat = regexp.MustCompile(`^log_\d{14}_[0-9a-f]{8}$`)

func TestGenerateID(t *testing.T) {
	ts := time.Date(2025, 11, 12, 20, 15, 30, 0, time.UTC)
	id := GenerateID(ts)

	assert.Regexp(t, idFormat, id)
	assert.Contains(t, id, "_20251112201530_")
	assert.NotContains(t, id, ":")
}

func TestGenerateIDConcurrentUniqueness(t *testing.T) {
	ts := time.Date(2025, 11, 12, 20, 15, 30, 0, time.UTC)

	const writers = 8
	const perWriter = 500
	ids := make(chan string, writers*perWriter)

	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perWriter; j++ {
				ids <- GenerateID(ts)
			}
		}()
	}
	wg.Wait()
	close(ids)

	seen := make(map[string]struct{}, writers*perWriter)
	for id := range ids {
		seen[id] = struct{}{}
	}
	assert.Len(t, seen, writers*perWriter)
}

func TestCodecRoundTrip(t *testing.T) {
	entry := datamodel.StoredLogEntry{
		ID:      "log_20251112201530_0a1b2c3d",
		Message: "Temperature too high",
		Level:   datamodel.LevelWarning,
		Group:   "restaurant-a:fridge-1",
		Tags:    []string{"temperature", "alert"},
		Data: map[string]datamodel.Value{
			"temperature": datamodel.Number(8.5),
			"unit":        datamodel.Text("C"),
			"door_open":   datamodel.Bool(false),
			"note":        datamodel.Null(),
		},
		Timestamp: time.Date(2025, 11, 12, 20, 15, 30, 0, time.UTC),
		Source:    "sensor-temp-001",
	}

	raw, err := Encode(entry)
	require.NoError(t, err)

	again, err := Encode(entry)
	require.NoError(t, err)
	assert.Equal(t, raw, again, "encoding must be deterministic")

	decoded, err := Decode(raw)
	require.NoError(t, err)
	assert.Equal(t, entry.ID, decoded.ID)
	assert.Equal(t, entry.Level, decoded.Level)
	assert.Equal(t, entry.Tags, decoded.Tags)
	assert.Equal(t, entry.Data, decoded.Data)
	assert.True(t, entry.Timestamp.Equal(decoded.Timestamp))
	assert.Equal(t, entry.Source, decoded.Source)
}

func TestCodecEmptyCollections(t *testing.T) {
	entry := datamodel.LogEntry{Message: "hello"}.Store("log_20251112201530_00000000", time.Now())

	raw, err := Encode(entry)
	require.NoError(t, err)
	decoded, err := Decode(raw)
	require.NoError(t, err)

	assert.Equal(t, []string{}, decoded.Tags)
	assert.Nil(t, decoded.Data)
	assert.Equal(t, datamodel.LevelInfo, decoded.Level)
}

func TestDecodeRejectsGarbage(t *testing.T) {
	_, err := Decode([]byte("not json"))
	assert.Error(t, err)

	_, err = Decode([]byte(`{"id":"x","message":"m","level":"loud","timestamp":"2025-11-12T20:15:30Z"}`))
	assert.Error(t, err)
}
