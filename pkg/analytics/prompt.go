package analytics

import (
	"fmt"
	"sort"
	"strings"

	"github.com/komfyrvakt/komfyrvakt/pkg/datamodel"
	"golang.org/x/exp/maps"
)

const (
	promptIntervals   = 20
	promptSamples     = 10
	promptTemperature = 0.3
	intervalLayout    = "2006-01-02 15:04:05"
)

const promptHeader = `You are analyzing system logs with time series data. Return a JSON object:

{
  "summary": "Brief 1-2 sentence overview of system health based on trends",
  "severity": "normal|warning|critical",
  "findings": [
    {"title": "Finding name", "description": "Details with temporal context", "severity": "info|warning|critical"}
  ],
  "recommendations": [
    {"action": "What to do", "priority": "low|medium|high"}
  ]
}
`

const promptFooter = `
Focus on:
1. Temporal trends (increasing/decreasing patterns)
2. Anomalies in time series
3. Correlation between fields
4. Rate of change

Return ONLY valid JSON. Be specific about time-based patterns.`

// BuildPrompt renders the analysis request. entries must be sorted newest first.
func BuildPrompt(agg Aggregation, ts TimeSeriesSummary, entries []datamodel.StoredLogEntry) string {
	var b strings.Builder
	b.WriteString(promptHeader)

	b.WriteString("\nAnalysis Data:\n")
	fmt.Fprintf(&b, "- Total logs: %d\n", agg.TotalLogs)
	fmt.Fprintf(&b, "- Time range: %d intervals tracked\n", ts.TotalIntervals)
	fmt.Fprintf(&b, "- Fields monitored: %s\n", strings.Join(ts.FieldsTracked, ", "))
	fmt.Fprintf(&b, "- Log levels: %s\n", formatCounts(agg.LevelCounts))
	if len(ts.Trends) > 0 {
		fields := maps.Keys(ts.Trends)
		sort.Strings(fields)
		trends := make([]string, 0, len(fields))
		for _, field := range fields {
			trends = append(trends, fmt.Sprintf("%s %+.3f/min", field, ts.Trends[field]))
		}
		fmt.Fprintf(&b, "- Trends: %s\n", strings.Join(trends, ", "))
	}

	intervals := ts.Intervals
	if len(intervals) > promptIntervals {
		intervals = intervals[len(intervals)-promptIntervals:]
	}
	if len(intervals) > 0 {
		fmt.Fprintf(&b, "\nTime Series Data (last %d intervals):\n", len(intervals))
		for _, interval := range intervals {
			fmt.Fprintf(&b, "\n%s: %d logs", interval.Timestamp.UTC().Format(intervalLayout), interval.LogCount)
			fields := maps.Keys(interval.Data)
			sort.Strings(fields)
			for _, field := range fields {
				fmt.Fprintf(&b, " | %s: %.2f", field, interval.Data[field].Avg)
			}
		}
		b.WriteString("\n")
	}

	recent := entries
	if len(recent) > promptSamples {
		recent = recent[:promptSamples]
	}
	b.WriteString("\nRecent log samples:\n")
	for _, entry := range recent {
		b.WriteString(sampleLine(entry))
		b.WriteString("\n")
	}

	b.WriteString(promptFooter)
	return b.String()
}

func sampleLine(entry datamodel.StoredLogEntry) string {
	line := fmt.Sprintf("[%s] %s", strings.ToUpper(entry.Level.String()), entry.Message)
	if len(entry.Data) == 0 {
		return line
	}
	keys := maps.Keys(entry.Data)
	sort.Strings(keys)
	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, k+": "+entry.Data[k].String())
	}
	return line + " | {" + strings.Join(pairs, ", ") + "}"
}

func formatCounts(counts map[string]int) string {
	keys := maps.Keys(counts)
	sort.Strings(keys)
	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, fmt.Sprintf("%s: %d", k, counts[k]))
	}
	return "{" + strings.Join(pairs, ", ") + "}"
}
