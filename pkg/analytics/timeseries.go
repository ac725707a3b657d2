package analytics

import (
	"sort"
	"time"

	"github.com/komfyrvakt/komfyrvakt/pkg/datamodel"
	"golang.org/x/exp/maps"
	"gonum.org/v1/gonum/stat"
)

// DefaultBucketMinutes is used when no positive bucket width is given
const DefaultBucketMinutes = 5

// Bucket holds the entries whose timestamp falls into [Timestamp, Timestamp+width)
type Bucket struct {
	Timestamp time.Time               `json:"timestamp"`
	LogCount  int                     `json:"log_count"`
	Levels    map[string]int          `json:"levels"`
	Data      map[string]NumericStats `json:"data"`
}

type TimeSeriesSummary struct {
	Intervals      []Bucket `json:"intervals"`
	TotalIntervals int      `json:"total_intervals"`
	// FieldsTracked is the sorted union of numeric fields over all buckets
	FieldsTracked []string `json:"fields_tracked"`
	// Trends is the least-squares slope of each field's bucket average, per minute.
	// Fields present in fewer than two buckets have no trend.
	Trends map[string]float64 `json:"trends,omitempty"`
}

// TimeSeries buckets entries by UTC timestamp truncated to a multiple of bucketMinutes.
// Only non-empty buckets are returned, in ascending order. Numeric statistics only take
// number values into account, whatever kind the field has overall.
func TimeSeries(entries []datamodel.StoredLogEntry, bucketMinutes int) []Bucket {
	if bucketMinutes <= 0 {
		bucketMinutes = DefaultBucketMinutes
	}
	width := time.Duration(bucketMinutes) * time.Minute

	type accumulator struct {
		bucket Bucket
		values map[string][]float64
	}
	byStart := make(map[time.Time]*accumulator)

	for _, entry := range entries {
		start := entry.Timestamp.UTC().Truncate(width)
		acc, ok := byStart[start]
		if !ok {
			acc = &accumulator{
				bucket: Bucket{Timestamp: start, Levels: make(map[string]int)},
				values: make(map[string][]float64),
			}
			byStart[start] = acc
		}
		acc.bucket.LogCount++
		acc.bucket.Levels[entry.Level.String()]++
		for field, value := range entry.Data {
			if n, ok := value.AsNumber(); ok {
				acc.values[field] = append(acc.values[field], n)
			}
		}
	}

	buckets := make([]Bucket, 0, len(byStart))
	for _, acc := range byStart {
		acc.bucket.Data = make(map[string]NumericStats, len(acc.values))
		for field, values := range acc.values {
			acc.bucket.Data[field] = newNumericStats(values)
		}
		buckets = append(buckets, acc.bucket)
	}
	sort.Slice(buckets, func(i, j int) bool {
		return buckets[i].Timestamp.Before(buckets[j].Timestamp)
	})
	return buckets
}

// Summarize wraps buckets with the tracked field names and per-field trends
func Summarize(buckets []Bucket) TimeSeriesSummary {
	if buckets == nil {
		buckets = []Bucket{}
	}

	type series struct {
		x []float64
		y []float64
	}
	perField := make(map[string]*series)
	for _, b := range buckets {
		for field, ns := range b.Data {
			s, ok := perField[field]
			if !ok {
				s = &series{}
				perField[field] = s
			}
			s.x = append(s.x, b.Timestamp.Sub(buckets[0].Timestamp).Minutes())
			s.y = append(s.y, ns.Avg)
		}
	}

	fields := maps.Keys(perField)
	sort.Strings(fields)

	var trends map[string]float64
	for _, field := range fields {
		s := perField[field]
		if len(s.x) < 2 {
			continue
		}
		if trends == nil {
			trends = make(map[string]float64)
		}
		_, beta := stat.LinearRegression(s.x, s.y, nil, false)
		trends[field] = beta
	}

	return TimeSeriesSummary{
		Intervals:      buckets,
		TotalIntervals: len(buckets),
		FieldsTracked:  fields,
		Trends:         trends,
	}
}
