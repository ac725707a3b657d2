package main

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-contrib/gzip"
	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"
	"github.com/komfyrvakt/komfyrvakt/internal"
	"github.com/komfyrvakt/komfyrvakt/pkg/analytics"
	"github.com/komfyrvakt/komfyrvakt/pkg/datamodel"
	"github.com/komfyrvakt/komfyrvakt/pkg/kvstore"
	"github.com/komfyrvakt/komfyrvakt/pkg/logstore"
	"go.uber.org/zap"
)

const serviceName = "Komfyrvakt"

type api struct {
	store    kvstore.Store
	service  *logstore.Service
	analyzer *analytics.Analyzer
	apiKey   string
	version  string
}

// SetupRestAPI builds the router. Everything below /api except the info and health
// routes requires the API key.
func SetupRestAPI(a *api) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()

	// Add a ginzap middleware, which:
	//   - Logs all requests, like a combined access and error log.
	//   - Logs to stdout.
	//   - RFC3339 with UTC time format.
	router.Use(ginzap.Ginzap(zap.L(), time.RFC3339, true))

	// Logs all panic to error log
	//   - stack means whether output the stack info.
	router.Use(ginzap.RecoveryWithZap(zap.L(), true))
	router.Use(gzip.Gzip(gzip.DefaultCompression))

	router.GET("/api", a.getInfo)
	router.GET("/api/health", a.getHealth)

	v1 := router.Group("/api", apiKeyAuth(a.apiKey))
	{
		v1.POST("/logs", a.postLog)
		v1.POST("/logs/batch", a.postLogBatch)
		v1.GET("/logs", a.getLogs)
		v1.GET("/logs/:id", a.getLog)
		v1.DELETE("/logs/:id", a.deleteLog)
		v1.GET("/groups", a.getGroups)
		v1.GET("/stats", a.getStats)
		v1.DELETE("/purge", a.purge)
		v1.POST("/analyze", a.analyze)
	}
	return router
}

func apiKeyAuth(expected string) gin.HandlerFunc {
	return func(c *gin.Context) {
		scheme, key, found := strings.Cut(c.GetHeader("Authorization"), " ")
		if !found || !strings.EqualFold(scheme, "Bearer") {
			abortUnauthorized(c, "Invalid authentication scheme. Use: Authorization: Bearer {api_key}")
			return
		}
		key = strings.TrimSpace(key)
		if !strings.HasPrefix(key, apiKeyPrefix) || subtle.ConstantTimeCompare([]byte(key), []byte(expected)) != 1 {
			abortUnauthorized(c, "Invalid API key")
			return
		}
		c.Next()
	}
}

func (a *api) getInfo(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"service":     serviceName,
		"version":     a.version,
		"description": "Simple logging service with AI analytics",
	})
}

func (a *api) getHealth(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), internal.FiveSeconds)
	defer cancel()
	if err := a.store.Ping(ctx); err != nil {
		zap.S().Warnw("Health check failed", "error", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "service": serviceName})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "healthy", "service": serviceName})
}

func bindJSON(c *gin.Context, target any) bool {
	raw, err := c.GetRawData()
	if err != nil {
		handleInvalidInputError(c, "body", "could not be read")
		return false
	}
	if err = json.Unmarshal(raw, target); err != nil {
		handleInvalidInputError(c, "body", internal.SanitizeString(err.Error()))
		return false
	}
	return true
}

func (a *api) postLog(c *gin.Context) {
	var entry datamodel.LogEntry
	if !bindJSON(c, &entry) {
		return
	}
	stored, err := a.service.Ingest(c.Request.Context(), entry)
	if err != nil {
		handleError(c, err, nil)
		return
	}
	c.JSON(http.StatusOK, stored)
}

func (a *api) postLogBatch(c *gin.Context) {
	var entries []datamodel.LogEntry
	if !bindJSON(c, &entries) {
		return
	}
	stored, err := a.service.IngestBatch(c.Request.Context(), entries)
	if err != nil {
		handleError(c, err, gin.H{"ingested": len(stored), "logs": stored})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":   "success",
		"ingested": len(stored),
		"logs":     stored,
	})
}

// parseFilter reads group, tags (comma separated), level, since, until (RFC3339), source and limit
func parseFilter(c *gin.Context) (datamodel.Filter, error) {
	filter := datamodel.NewFilter()
	filter.Group = c.Query("group")
	filter.Source = c.Query("source")

	if tags := c.Query("tags"); tags != "" {
		filter.Tags = splitList(tags)
	}
	if raw := c.Query("level"); raw != "" {
		level, err := datamodel.ParseLevel(raw)
		if err != nil {
			return filter, datamodel.NewValidationError("level", err.Error())
		}
		filter.MinLevel = &level
	}
	for name, target := range map[string]**time.Time{"since": &filter.Since, "until": &filter.Until} {
		raw := c.Query(name)
		if raw == "" {
			continue
		}
		ts, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return filter, datamodel.NewValidationError(name, "must be an RFC3339 timestamp")
		}
		*target = &ts
	}
	if raw := c.Query("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil {
			return filter, datamodel.NewValidationError("limit", "must be a number")
		}
		filter.Limit = limit
	}
	return filter, filter.Validate()
}

func (a *api) getLogs(c *gin.Context) {
	filter, err := parseFilter(c)
	if err != nil {
		handleError(c, err, nil)
		return
	}
	entries, err := a.service.Query(c.Request.Context(), filter)
	if err != nil {
		handleError(c, err, nil)
		return
	}
	c.JSON(http.StatusOK, entries)
}

func (a *api) getLog(c *gin.Context) {
	entry, err := a.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		handleError(c, err, nil)
		return
	}
	c.JSON(http.StatusOK, entry)
}

func (a *api) deleteLog(c *gin.Context) {
	id := c.Param("id")
	if err := a.service.Delete(c.Request.Context(), id); err != nil {
		handleError(c, err, nil)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "deleted": id})
}

func (a *api) getGroups(c *gin.Context) {
	groups, err := a.service.Groups(c.Request.Context())
	if err != nil {
		handleError(c, err, nil)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status": "success",
		"groups": groups,
		"count":  len(groups),
	})
}

func (a *api) getStats(c *gin.Context) {
	stats, err := a.service.Stats(c.Request.Context())
	if err != nil {
		handleError(c, err, nil)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "stats": stats})
}

// purge removes one group (exact or '*'-suffixed) or, without a group parameter, everything
func (a *api) purge(c *gin.Context) {
	scope := logstore.PurgeAll()
	if group := c.Query("group"); group != "" {
		scope = logstore.PurgeGroup(group)
	}

	result, err := a.service.Purge(c.Request.Context(), scope)
	if err != nil {
		handleError(c, err, nil)
		return
	}
	if _, err = a.analyzer.InvalidateAll(c.Request.Context()); err != nil {
		zap.S().Warnw("Failed to invalidate cached analyses after purge", "error", err)
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "result": result})
}

func (a *api) analyze(c *gin.Context) {
	refresh := false
	if raw := c.Query("refresh"); raw != "" {
		var err error
		if refresh, err = strconv.ParseBool(raw); err != nil {
			handleInvalidInputError(c, "refresh", "must be a boolean")
			return
		}
	}

	result, err := a.analyzer.Analyze(c.Request.Context(), c.Query("group"), !refresh)
	if err != nil {
		handleError(c, err, nil)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":   "success",
		"cached":   result.Cached,
		"analysis": result.Analysis,
	})
}
