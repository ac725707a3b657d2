// Package insight turns a prompt about aggregated log data into a structured report
// using an external text generator.
package insight

import (
	"context"
	"errors"
	"regexp"
	"strings"

	"github.com/goccy/go-json"
)

// ErrInsightUnavailable means no report could be generated. Callers substitute Unavailable.
var ErrInsightUnavailable = errors.New("insight generation unavailable")

// Generator produces free text for a prompt. Implementations must honour ctx cancellation.
type Generator interface {
	Generate(ctx context.Context, prompt string, temperature float64) (string, error)
}

const (
	SeverityNormal   = "normal"
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityCritical = "critical"
)

const fallbackSummaryRunes = 200

type Finding struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Severity    string `json:"severity"`
}

type Recommendation struct {
	Action   string `json:"action"`
	Priority string `json:"priority"`
}

// Report is the structured result of an analysis
type Report struct {
	Summary         string           `json:"summary"`
	Severity        string           `json:"severity"`
	Findings        []Finding        `json:"findings"`
	Recommendations []Recommendation `json:"recommendations"`
}

var (
	fenceWithLanguage = regexp.MustCompile("```\\w+\\n")
	manyNewlines      = regexp.MustCompile(`\n{3,}`)
)

// StripCodeMarkers removes markdown code fences, keeping their content
func StripCodeMarkers(text string) string {
	text = fenceWithLanguage.ReplaceAllString(text, "")
	text = strings.ReplaceAll(text, "```", "")
	text = manyNewlines.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}

// ParseReport never fails. Text that is not a JSON report is wrapped into a warning report
// carrying the raw text as its only finding.
func ParseReport(raw string) Report {
	cleaned := StripCodeMarkers(raw)

	var report Report
	if err := json.Unmarshal([]byte(cleaned), &report); err == nil && report.Summary != "" {
		return report.normalize()
	}

	return Report{
		Summary:  truncateRunes(cleaned, fallbackSummaryRunes),
		Severity: SeverityWarning,
		Findings: []Finding{
			{Title: "Analysis", Description: cleaned, Severity: SeverityInfo},
		},
		Recommendations: []Recommendation{},
	}
}

// Unavailable is the placeholder report used when generation failed or is not configured
func Unavailable(reason string) Report {
	return Report{
		Summary:         "AI analysis unavailable: " + reason,
		Severity:        SeverityWarning,
		Findings:        []Finding{},
		Recommendations: []Recommendation{},
	}
}

// normalize fills missing fields. A report severity other than normal, warning or critical
// becomes warning.
func (r Report) normalize() Report {
	switch severity := strings.ToLower(strings.TrimSpace(r.Severity)); severity {
	case "":
		r.Severity = SeverityNormal
	case SeverityNormal, SeverityWarning, SeverityCritical:
		r.Severity = severity
	default:
		r.Severity = SeverityWarning
	}
	if r.Findings == nil {
		r.Findings = []Finding{}
	}
	if r.Recommendations == nil {
		r.Recommendations = []Recommendation{}
	}
	return r
}

func truncateRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
