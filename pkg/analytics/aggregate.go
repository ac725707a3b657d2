// Package analytics summarises sets of log entries: counts per level and tag, statistics
// per data field, and time-bucketed series. The Analyzer combines these with a generated
// insight report and caches the result.
package analytics

import (
	"sort"

	"github.com/komfyrvakt/komfyrvakt/pkg/datamodel"
	"golang.org/x/exp/maps"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// NumericStats summarises the numeric values of one field
type NumericStats struct {
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
	Avg   float64 `json:"avg"`
	Count int     `json:"count"`
}

func newNumericStats(values []float64) NumericStats {
	return NumericStats{
		Min:   floats.Min(values),
		Max:   floats.Max(values),
		Avg:   stat.Mean(values, nil),
		Count: len(values),
	}
}

// FieldStats describes one data field across entries. Kind is the kind of the first non-null
// value seen; values of any other kind are counted in Ignored and otherwise left out.
// Only the block matching Kind is populated.
type FieldStats struct {
	Kind    datamodel.Kind `json:"type"`
	Count   int            `json:"count"`
	Nulls   int            `json:"nulls"`
	Ignored int            `json:"ignored"`

	Min          *float64 `json:"min,omitempty"`
	Max          *float64 `json:"max,omitempty"`
	Avg          *float64 `json:"avg,omitempty"`
	UniqueValues []string `json:"unique_values,omitempty"`
	TrueCount    *int     `json:"true_count,omitempty"`
	FalseCount   *int     `json:"false_count,omitempty"`

	numbers []float64
	texts   map[string]struct{}
	trues   int
	falses  int
}

type Aggregation struct {
	TotalLogs int `json:"total_logs"`
	// LevelCounts is keyed by level name
	LevelCounts map[string]int         `json:"level_counts"`
	TagCounts   map[string]int         `json:"tag_counts"`
	DataFields  map[string]*FieldStats `json:"data_fields"`
}

// Aggregate is pure and independent of entry order, except for which kind a mixed field gets
func Aggregate(entries []datamodel.StoredLogEntry) Aggregation {
	agg := Aggregation{
		TotalLogs:   len(entries),
		LevelCounts: make(map[string]int),
		TagCounts:   make(map[string]int),
		DataFields:  make(map[string]*FieldStats),
	}

	for _, entry := range entries {
		agg.LevelCounts[entry.Level.String()]++
		for _, tag := range entry.Tags {
			agg.TagCounts[tag]++
		}
		for field, value := range entry.Data {
			fs, ok := agg.DataFields[field]
			if !ok {
				fs = &FieldStats{Kind: datamodel.KindNull}
				agg.DataFields[field] = fs
			}
			fs.add(value)
		}
	}

	for _, fs := range agg.DataFields {
		fs.finish()
	}
	return agg
}

func (fs *FieldStats) add(v datamodel.Value) {
	if v.Kind() == datamodel.KindNull {
		fs.Nulls++
		return
	}
	if fs.Kind == datamodel.KindNull {
		fs.Kind = v.Kind()
	}
	if v.Kind() != fs.Kind {
		fs.Ignored++
		return
	}

	fs.Count++
	switch fs.Kind {
	case datamodel.KindNumber:
		n, _ := v.AsNumber()
		fs.numbers = append(fs.numbers, n)
	case datamodel.KindText:
		s, _ := v.AsText()
		if fs.texts == nil {
			fs.texts = make(map[string]struct{})
		}
		fs.texts[s] = struct{}{}
	case datamodel.KindBool:
		if b, _ := v.AsBool(); b {
			fs.trues++
		} else {
			fs.falses++
		}
	}
}

func (fs *FieldStats) finish() {
	switch fs.Kind {
	case datamodel.KindNumber:
		if len(fs.numbers) > 0 {
			numeric := newNumericStats(fs.numbers)
			fs.Min, fs.Max, fs.Avg = &numeric.Min, &numeric.Max, &numeric.Avg
		}
	case datamodel.KindText:
		fs.UniqueValues = maps.Keys(fs.texts)
		sort.Strings(fs.UniqueValues)
	case datamodel.KindBool:
		trues, falses := fs.trues, fs.falses
		fs.TrueCount = &trues
		fs.FalseCount = &falses
	}
	fs.numbers = nil
	fs.texts = nil
}
