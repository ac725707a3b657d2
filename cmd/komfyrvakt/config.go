package main

import (
	"crypto/rand"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cristalhq/base64"
	"github.com/united-manufacturing-hub/umh-utils/env"
)

const (
	apiKeyPrefix = "kmf_"

	backendRedis  = "redis"
	backendMemory = "memory"
)

type config struct {
	LogLevel string

	StoreBackend    string
	RedisAddrs      []string
	RedisPassword   string
	RedisDB         int
	RedisMasterName string

	KeyPrefix      string
	RetentionHours int

	APIKey          string
	APIKeyGenerated bool

	GeminiAPIKey   string
	GeminiModel    string
	GeminiBaseURL  string
	InsightTimeout time.Duration

	HTTPPort        int
	MetricsPort     int
	HealthcheckPort int
	EnableFgtrace   bool
}

// loadConfig reads the environment. A missing API key is replaced by a generated one,
// which is logged once at startup.
func loadConfig() (config, error) {
	var cfg config
	var errs []error
	collect := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}

	var err error
	cfg.LogLevel, err = env.GetAsString("LOGGING_LEVEL", false, "PRODUCTION")
	collect(err)

	cfg.StoreBackend, err = env.GetAsString("STORE_BACKEND", false, backendRedis)
	collect(err)
	redisURI, err := env.GetAsString("REDIS_URI", false, "localhost:6379")
	collect(err)
	cfg.RedisAddrs = splitList(redisURI)
	cfg.RedisPassword, err = env.GetAsString("REDIS_PASSWORD", false, "")
	collect(err)
	cfg.RedisDB, err = env.GetAsInt("REDIS_DB", false, 0)
	collect(err)
	cfg.RedisMasterName, err = env.GetAsString("REDIS_MASTER_NAME", false, "")
	collect(err)

	cfg.KeyPrefix, err = env.GetAsString("KEY_PREFIX", false, "komfyrvakt")
	collect(err)
	cfg.RetentionHours, err = env.GetAsInt("LOG_RETENTION_HOURS", false, 48)
	collect(err)

	cfg.APIKey, err = env.GetAsString("KOMFYRVAKT_API_KEY", false, "")
	collect(err)

	cfg.GeminiAPIKey, err = env.GetAsString("GEMINI_API_KEY", false, "")
	collect(err)
	cfg.GeminiModel, err = env.GetAsString("GEMINI_MODEL", false, "gemini-2.0-flash-lite")
	collect(err)
	cfg.GeminiBaseURL, err = env.GetAsString("GEMINI_BASE_URL", false, "")
	collect(err)
	insightTimeoutSeconds, err := env.GetAsInt("INSIGHT_TIMEOUT_SECONDS", false, 30)
	collect(err)
	cfg.InsightTimeout = time.Duration(insightTimeoutSeconds) * time.Second

	cfg.HTTPPort, err = env.GetAsInt("HTTP_PORT", false, 8080)
	collect(err)
	cfg.MetricsPort, err = env.GetAsInt("METRICS_PORT", false, 2112)
	collect(err)
	cfg.HealthcheckPort, err = env.GetAsInt("HEALTHCHECK_PORT", false, 8086)
	collect(err)
	cfg.EnableFgtrace, err = env.GetAsBool("DEBUG_ENABLE_FGTRACE", false, false)
	collect(err)

	if len(errs) > 0 {
		return config{}, errors.Join(errs...)
	}
	if err = cfg.validate(); err != nil {
		return config{}, err
	}

	if cfg.APIKey == "" {
		if cfg.APIKey, err = generateAPIKey(); err != nil {
			return config{}, err
		}
		cfg.APIKeyGenerated = true
	}
	return cfg, nil
}

func (c config) validate() error {
	switch c.StoreBackend {
	case backendRedis:
		if len(c.RedisAddrs) == 0 {
			return errors.New("REDIS_URI must name at least one address")
		}
	case backendMemory:
	default:
		return fmt.Errorf("STORE_BACKEND must be %q or %q, got %q", backendRedis, backendMemory, c.StoreBackend)
	}
	if c.RetentionHours <= 0 {
		return fmt.Errorf("LOG_RETENTION_HOURS must be positive, got %d", c.RetentionHours)
	}
	if c.APIKey != "" && !strings.HasPrefix(c.APIKey, apiKeyPrefix) {
		return fmt.Errorf("KOMFYRVAKT_API_KEY must start with %q", apiKeyPrefix)
	}
	if c.InsightTimeout <= 0 {
		return errors.New("INSIGHT_TIMEOUT_SECONDS must be positive")
	}
	return nil
}

func generateAPIKey() (string, error) {
	random := make([]byte, 24)
	if _, err := rand.Read(random); err != nil {
		return "", fmt.Errorf("failed to generate API key: %w", err)
	}
	return apiKeyPrefix + base64.URLEncoding.EncodeToString(random), nil
}

func splitList(s string) []string {
	out := make([]string, 0)
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
