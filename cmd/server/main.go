package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/johnrirwin/skinlens/internal/analysis"
	"github.com/johnrirwin/skinlens/internal/auth"
	"github.com/johnrirwin/skinlens/internal/cache"
	"github.com/johnrirwin/skinlens/internal/config"
	"github.com/johnrirwin/skinlens/internal/database"
	"github.com/johnrirwin/skinlens/internal/facecheck"
	"github.com/johnrirwin/skinlens/internal/httpapi"
	"github.com/johnrirwin/skinlens/internal/inference"
	"github.com/johnrirwin/skinlens/internal/logging"
	"github.com/johnrirwin/skinlens/internal/reports"
	"github.com/johnrirwin/skinlens/internal/sessions"
)

func main() {
	cfg := config.Load()
	logger := logging.NewWithWriter(os.Stderr, logging.ParseLevel(cfg.Logging.Level), cfg.Logging.Format)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	client := inference.NewClient(inference.Config{
		BaseURL:        cfg.Inference.BaseURL,
		AnalyzeTimeout: cfg.Inference.AnalyzeTimeout,
		HealthTimeout:  cfg.Inference.HealthTimeout,
		UserAgent:      cfg.Inference.UserAgent,
	}, logger)
	logger.Info("Using inference service", logging.WithFields(map[string]interface{}{
		"url":             client.BaseURL(),
		"analyze_timeout": client.AnalyzeTimeout().String(),
	}))

	// Shared Redis connection, opened only when a backend asks for it
	var redisClient *redis.Client
	if cfg.Cache.Backend == "redis" || cfg.Reports.Backend == "redis" {
		var err error
		redisClient, err = openRedis(ctx, cfg.Cache.RedisAddr)
		if err != nil {
			logger.Error("Failed to connect to Redis, falling back to memory backends", logging.WithField("error", err.Error()))
		} else {
			logger.Info("Connected to Redis", logging.WithField("addr", cfg.Cache.RedisAddr))
			defer redisClient.Close()
		}
	}

	// Health probe cache
	var healthCache cache.Cache
	if cfg.Cache.Backend == "redis" && redisClient != nil {
		healthCache = cache.NewRedisWithClient(redisClient, "skinlens:cache:", cfg.Cache.TTL)
	} else {
		memory := cache.NewMemory(cfg.Cache.TTL)
		defer memory.Stop()
		healthCache = memory
	}
	health := cache.NewHealthStatus(healthCache, client, logger)

	// Report store
	var (
		store    reports.Store
		sqlStore *database.ReportStore
	)
	switch {
	case cfg.Reports.Backend == "redis" && redisClient != nil:
		store = reports.NewRedisStore(redisClient, "")
	case cfg.Reports.Backend == "database":
		db, err := database.New(database.Config{
			Driver:   cfg.Database.Driver,
			Host:     cfg.Database.Host,
			Port:     cfg.Database.Port,
			User:     cfg.Database.User,
			Password: cfg.Database.Password,
			Database: cfg.Database.Database,
			SSLMode:  cfg.Database.SSLMode,
			Path:     cfg.Database.Path,
		})
		if err != nil {
			logger.Error("Failed to open report database", logging.WithField("error", err.Error()))
			os.Exit(1)
		}
		defer db.Close()

		if err := db.Migrate(ctx); err != nil {
			logger.Error("Failed to run migrations", logging.WithField("error", err.Error()))
			os.Exit(1)
		}
		sqlStore = database.NewReportStore(db)
		store = sqlStore
		logger.Info("Using database report store", logging.WithField("driver", db.Driver()))
	default:
		store = reports.NewMemoryStore()
	}
	if len(cfg.Reports.EncryptionKey) > 0 {
		encrypted, err := reports.NewEncryptedStore(store, cfg.Reports.EncryptionKey)
		if err != nil {
			logger.Error("Invalid report encryption key", logging.WithField("error", err.Error()))
			os.Exit(1)
		}
		store = encrypted
		logger.Info("Report encryption at rest enabled")
	}

	// Optional face pre-check
	var faces analysis.FaceChecker
	if cfg.FaceCheck.Enabled {
		detector, err := facecheck.NewAWSDetector(ctx, cfg.FaceCheck.AWSRegion)
		if err != nil {
			logger.Warn("Face pre-check disabled", logging.WithField("error", err.Error()))
		} else {
			faces = facecheck.NewService(detector, facecheck.Config{
				MinConfidence: cfg.FaceCheck.MinConfidence,
				MinAreaRatio:  cfg.FaceCheck.MinAreaRatio,
				Timeout:       cfg.FaceCheck.Timeout,
			}, logger)
			logger.Info("Face pre-check enabled", logging.WithField("region", cfg.FaceCheck.AWSRegion))
		}
	}

	registry := sessions.NewRegistry(cfg.Server.SessionTTL, func(id string) *analysis.Session {
		return analysis.NewSession(client, reports.NewStoreSink(store, id, cfg.Reports.TTL), analysis.Options{
			ID:            id,
			MaxImageBytes: cfg.Inference.MaxImageBytes,
			FaceChecker:   faces,
			Logger:        logger,
		})
	}, logger)
	go registry.Run(ctx, time.Minute)

	authSvc := auth.NewService(cfg.Auth, cfg.Server.TokenTTL, logger)

	httpServer := httpapi.New(registry, store, health, authSvc, httpapi.Config{
		CORSOrigin:       cfg.Server.CORSOrigin,
		SessionRateLimit: cfg.Server.SessionRateLimit,
		MaxUploadBytes:   cfg.Inference.MaxImageBytes,
		TrustedProxies:   cfg.Server.TrustedProxies,
	}, logger)

	go maintain(ctx, httpServer, sqlStore, logger)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		logger.Info("Shutting down...")
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", logging.WithField("error", err.Error()))
		}
	}()

	if err := httpServer.Start(cfg.Server.HTTPAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("HTTP server error", logging.WithField("error", err.Error()))
		os.Exit(1)
	}
}

func openRedis(ctx context.Context, addr string) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}
	return client, nil
}

// maintain prunes idle rate limit entries and expired database reports.
func maintain(ctx context.Context, httpServer *httpapi.Server, sqlStore *database.ReportStore, logger *logging.Logger) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			httpServer.PruneClients(10 * time.Minute)

			if sqlStore == nil {
				continue
			}
			removed, err := sqlStore.DeleteExpired(ctx)
			if err != nil {
				logger.Warn("Failed to purge expired reports", logging.WithField("error", err.Error()))
			} else if removed > 0 {
				logger.Debug("Purged expired reports", logging.WithField("count", removed))
			}
		}
	}
}
