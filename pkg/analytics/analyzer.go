package analytics

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/EagleChen/mapmutex"
	"github.com/goccy/go-json"
	"github.com/komfyrvakt/komfyrvakt/internal"
	"github.com/komfyrvakt/komfyrvakt/pkg/datamodel"
	"github.com/komfyrvakt/komfyrvakt/pkg/insight"
	"github.com/komfyrvakt/komfyrvakt/pkg/kvstore"
	"go.uber.org/zap"
)

const (
	// AnalyzeLimit caps the number of entries one analysis looks at
	AnalyzeLimit = 1000

	NoLogsMessage        = "No logs found to analyze in this group."
	NotConfiguredMessage = "AI analysis not configured. Set GEMINI_API_KEY to enable AI insights."

	cacheHourLayout = "2006010215"
	allGroups       = "all"
)

// Querier is the read side of the log store
type Querier interface {
	Query(ctx context.Context, filter datamodel.Filter) ([]datamodel.StoredLogEntry, error)
}

type Config struct {
	KeyPrefix string
	// Timeout bounds a single insight generation
	Timeout       time.Duration
	BucketMinutes int
	Now           func() time.Time
}

type Analysis struct {
	Timestamp    time.Time         `json:"timestamp"`
	Group        string            `json:"group"`
	Aggregation  Aggregation       `json:"aggregation"`
	TimeSeries   TimeSeriesSummary `json:"time_series"`
	Insights     insight.Report    `json:"ai_insights"`
	AnalyzedLogs int               `json:"analyzed_logs"`
}

type AnalysisResult struct {
	Cached   bool     `json:"cached"`
	Analysis Analysis `json:"analysis"`
}

// Analyzer produces analyses of a group. Complete analyses are cached per group and hour, so
// repeated requests within the same hour are served without calling the generator.
type Analyzer struct {
	querier       Querier
	generator     insight.Generator
	cache         *internal.TieredCache
	inflight      *mapmutex.Mutex
	keyPrefix     string
	timeout       time.Duration
	bucketMinutes int
	now           func() time.Time
}

// NewAnalyzer accepts a nil generator, in which case analyses carry NotConfiguredMessage
func NewAnalyzer(querier Querier, generator insight.Generator, cache *internal.TieredCache, cfg Config) *Analyzer {
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = "komfyrvakt"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = internal.ThirtySeconds
	}
	if cfg.BucketMinutes <= 0 {
		cfg.BucketMinutes = DefaultBucketMinutes
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Analyzer{
		querier:       querier,
		generator:     generator,
		cache:         cache,
		// 300 attempts, at most 100ms apart
		inflight:      mapmutex.NewCustomizedMapMutex(300, 1e8, 10, 1.1, 0.2),
		keyPrefix:     cfg.KeyPrefix,
		timeout:       cfg.Timeout,
		bucketMinutes: cfg.BucketMinutes,
		now:           cfg.Now,
	}
}

func (a *Analyzer) cacheKey(kind string, group string, hour string) string {
	scope := group
	if scope == "" {
		scope = allGroups
	}
	return fmt.Sprintf("%s:ai:%s:%s:%s", a.keyPrefix, kind, internal.AsXXHashString(scope), hour)
}

// Analyze summarises up to AnalyzeLimit of the newest entries of group ("" for all groups,
// a trailing '*' for a prefix). With useCache false a new analysis is always generated.
func (a *Analyzer) Analyze(ctx context.Context, group string, useCache bool) (AnalysisResult, error) {
	filter := datamodel.NewFilter()
	filter.Group = group
	filter.Limit = AnalyzeLimit
	if err := filter.Validate(); err != nil {
		return AnalysisResult{}, err
	}

	now := a.now().UTC()
	hour := now.Format(cacheHourLayout)
	analysisKey := a.cacheKey("analysis", group, hour)

	if a.inflight.TryLock(analysisKey) {
		defer a.inflight.Unlock(analysisKey)
	} else {
		zap.S().Debugw("Gave up waiting for a running analysis", "group", group, "key", analysisKey)
	}

	if useCache {
		if cached, ok := a.cachedAnalysis(ctx, analysisKey); ok {
			analysisCacheHits.Inc()
			zap.S().Debugw("Serving cached analysis", "group", group, "key", analysisKey)
			return AnalysisResult{Cached: true, Analysis: cached}, nil
		}
		analysisCacheMisses.Inc()
	}

	entries, err := a.querier.Query(ctx, filter)
	if err != nil {
		return AnalysisResult{}, fmt.Errorf("failed to query logs for analysis: %w", err)
	}

	analysis := Analysis{
		Timestamp:    now,
		Group:        group,
		Aggregation:  Aggregate(entries),
		AnalyzedLogs: len(entries),
	}

	if len(entries) == 0 {
		analysis.TimeSeries = Summarize(nil)
		analysis.Insights = placeholder(NoLogsMessage, insight.SeverityNormal)
		return AnalysisResult{Analysis: analysis}, nil
	}

	analysis.TimeSeries = a.timeSeries(ctx, group, hour, entries, useCache)

	if a.generator == nil {
		analysis.Insights = placeholder(NotConfiguredMessage, insight.SeverityInfo)
		return AnalysisResult{Analysis: analysis}, nil
	}

	report, ok := a.generate(ctx, BuildPrompt(analysis.Aggregation, analysis.TimeSeries, entries))
	analysis.Insights = report
	if !ok {
		// a placeholder must not hide a working generator for the rest of the hour
		return AnalysisResult{Analysis: analysis}, nil
	}

	raw, err := json.Marshal(analysis)
	if err != nil {
		zap.S().Warnw("Failed to encode analysis for cache", "group", group, "error", err)
	} else if err = a.cache.SetTiered(ctx, analysisKey, raw, internal.AnalysisCacheExpiration); err != nil {
		zap.S().Warnw("Failed to cache analysis", "group", group, "key", analysisKey, "error", err)
	}
	zap.S().Infow("Generated analysis", "group", group, "analyzedLogs", analysis.AnalyzedLogs)
	return AnalysisResult{Analysis: analysis}, nil
}

func (a *Analyzer) cachedAnalysis(ctx context.Context, key string) (Analysis, bool) {
	raw, ok := a.cache.GetTiered(ctx, key)
	if !ok {
		return Analysis{}, false
	}
	var analysis Analysis
	if err := json.Unmarshal(raw, &analysis); err != nil {
		zap.S().Warnw("Ignoring unreadable cached analysis", "key", key, "error", err)
		return Analysis{}, false
	}
	return analysis, true
}

func (a *Analyzer) timeSeries(ctx context.Context, group string, hour string, entries []datamodel.StoredLogEntry, useCache bool) TimeSeriesSummary {
	key := a.cacheKey("timeseries", group, hour)
	if useCache {
		if raw, ok := a.cache.GetTiered(ctx, key); ok {
			var summary TimeSeriesSummary
			if err := json.Unmarshal(raw, &summary); err == nil {
				return summary
			}
		}
	}

	summary := Summarize(TimeSeries(entries, a.bucketMinutes))
	raw, err := json.Marshal(summary)
	if err == nil {
		err = a.cache.SetTiered(ctx, key, raw, internal.TimeSeriesCacheExpiration)
	}
	if err != nil {
		zap.S().Warnw("Failed to cache time series", "group", group, "key", key, "error", err)
	}
	return summary
}

// generate reports false when the returned report is a placeholder
func (a *Analyzer) generate(ctx context.Context, prompt string) (insight.Report, bool) {
	genCtx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	start := time.Now()
	text, err := a.generator.Generate(genCtx, prompt, promptTemperature)
	insightDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		insightFailuresTotal.Inc()
		reason := err.Error()
		if errors.Is(err, context.DeadlineExceeded) {
			reason = fmt.Sprintf("timed out after %s", a.timeout)
		}
		zap.S().Warnw("Insight generation failed", "error", err)
		return insight.Unavailable(reason), false
	}
	return insight.ParseReport(text), true
}

// InvalidateAll drops every cached analysis and time series
func (a *Analyzer) InvalidateAll(ctx context.Context) (int64, error) {
	return a.cache.InvalidatePattern(ctx, kvstore.EscapePattern(a.keyPrefix+":ai:")+"*")
}

func placeholder(summary string, severity string) insight.Report {
	return insight.Report{
		Summary:         summary,
		Severity:        severity,
		Findings:        []insight.Finding{},
		Recommendations: []insight.Recommendation{},
	}
}
