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

package main

/*
Incoming REST call --> http.go
Each handler parses its parameters, calls the log service or the analyzer and renders the result.
Neither keeps state between calls, everything lives in the key-value store.
*/

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/heptiolabs/healthcheck"
	"github.com/komfyrvakt/komfyrvakt/internal"
	"github.com/komfyrvakt/komfyrvakt/pkg/analytics"
	"github.com/komfyrvakt/komfyrvakt/pkg/insight"
	"github.com/komfyrvakt/komfyrvakt/pkg/kvstore"
	"github.com/komfyrvakt/komfyrvakt/pkg/logstore"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/united-manufacturing-hub/umh-utils/logger"
	"go.uber.org/zap"
)

var buildtime string

func main() {
	cfg, err := loadConfig()
	if err != nil {
		// logging is not configured yet
		_ = logger.New("PRODUCTION")
		zap.S().Fatalf("Invalid configuration: %s", err)
	}
	_ = logger.New(cfg.LogLevel)
	zap.S().Infof("This is komfyrvakt build date: %s", buildtime)

	if cfg.APIKeyGenerated {
		zap.S().Warnw("KOMFYRVAKT_API_KEY is not set, generated a key for this run", "apiKey", cfg.APIKey)
	}

	InitPrometheus(cfg.MetricsPort)
	fgtraceServer := internal.InitFgtrace(cfg.EnableFgtrace, ":1337")

	store, err := connectStore(cfg)
	if err != nil {
		zap.S().Fatalf("Failed to connect to the key-value store: %s", err)
	}

	service, err := logstore.NewService(store, logstore.Config{
		KeyPrefix:      cfg.KeyPrefix,
		RetentionHours: cfg.RetentionHours,
		StorageName:    cfg.StoreBackend,
	})
	if err != nil {
		zap.S().Fatalf("Failed to create log service: %s", err)
	}

	var generator insight.Generator
	if gemini := insight.NewGeminiClient(insight.GeminiConfig{
		APIKey:  cfg.GeminiAPIKey,
		Model:   cfg.GeminiModel,
		BaseURL: cfg.GeminiBaseURL,
	}); gemini != nil {
		generator = gemini
		zap.S().Infow("AI insights enabled", "model", cfg.GeminiModel)
	} else {
		zap.S().Warnf("No GEMINI_API_KEY found, AI insights disabled")
	}

	analyzer := analytics.NewAnalyzer(service, generator, internal.NewTieredCache(store, internal.TenSeconds), analytics.Config{
		KeyPrefix: cfg.KeyPrefix,
		Timeout:   cfg.InsightTimeout,
	})

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           SetupRestAPI(&api{store: store, service: service, analyzer: analyzer, apiKey: cfg.APIKey, version: buildtime}),
		ReadHeaderTimeout: internal.TenSeconds,
	}

	shutdown := internal.NewGracefulShutdown(func(ctx context.Context) error {
		var errs []error
		if err := server.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("http server: %w", err))
		}
		if fgtraceServer != nil {
			if err := fgtraceServer.Shutdown(ctx); err != nil {
				errs = append(errs, fmt.Errorf("fgtrace server: %w", err))
			}
		}
		if err := store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("store: %w", err))
		}
		return errors.Join(errs...)
	}, internal.ThirtySeconds)

	InitHealthCheck(cfg.HealthcheckPort, store, shutdown)

	go func() {
		zap.S().Infow("Starting REST API", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zap.S().Errorf("Failed to serve REST API: %s", err)
			shutdown.Shutdown()
		}
	}()

	if err = shutdown.Wait(); err != nil {
		os.Exit(1)
	}
}

// connectStore retries the initial ping with exponential backoff, the store may still be starting
func connectStore(cfg config) (kvstore.Store, error) {
	if cfg.StoreBackend == backendMemory {
		zap.S().Warnf("Using the in-memory store, logs are lost on restart")
		return kvstore.NewMemoryStore(), nil
	}

	store, err := kvstore.NewRedisStore(kvstore.RedisOptions{
		Addrs:      cfg.RedisAddrs,
		MasterName: cfg.RedisMasterName,
		Password:   cfg.RedisPassword,
		DB:         cfg.RedisDB,
	})
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	err = internal.RetryBackedOff(ctx, 10, internal.OneSecond, internal.ThirtySeconds, func(ctx context.Context) error {
		pingErr := store.Ping(ctx)
		if pingErr != nil {
			zap.S().Warnw("Key-value store not reachable yet", "addrs", cfg.RedisAddrs, "error", pingErr)
		}
		return pingErr
	})
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	zap.S().Infow("Connected to key-value store", "addrs", cfg.RedisAddrs)
	return store, nil
}

func InitPrometheus(port int) {
	metricsPath := "/metrics"
	metricsPort := fmt.Sprintf(":%d", port)
	zap.S().Debugf("Setting up metrics %s %v", metricsPath, metricsPort)

	mux := http.NewServeMux()
	mux.Handle(metricsPath, promhttp.Handler())
	go func() {
		/* #nosec G114 */
		err := http.ListenAndServe(metricsPort, mux)
		if err != nil {
			zap.S().Errorf("Error starting metrics: %s", err)
		}
	}()
}

func InitHealthCheck(port int, store kvstore.Store, shutdown internal.GracefulShutdownHandler) {
	zap.S().Debugf("Setting up healthcheck")

	health := healthcheck.NewHandler()
	health.AddLivenessCheck("goroutine-threshold", healthcheck.GoroutineCountCheck(10000))
	health.AddReadinessCheck("store", func() error {
		ctx, cancel := context.WithTimeout(context.Background(), internal.FiveSeconds)
		defer cancel()
		return store.Ping(ctx)
	})
	health.AddReadinessCheck("shutdown", func() error {
		if shutdown.ShuttingDown() {
			return errors.New("shutting down")
		}
		return nil
	})
	go func() {
		/* #nosec G114 */
		err := http.ListenAndServe(fmt.Sprintf("0.0.0.0:%d", port), health)
		if err != nil {
			zap.S().Errorf("Error starting healthcheck: %s", err)
		}
	}()
}
