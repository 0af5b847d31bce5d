package server

import (
	"context"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/nicktill/clusterwatch/pkg/api"
	"github.com/nicktill/clusterwatch/pkg/config"
	"github.com/nicktill/clusterwatch/pkg/export"
	"github.com/nicktill/clusterwatch/pkg/generator"
	"github.com/nicktill/clusterwatch/pkg/httpx"
	"github.com/nicktill/clusterwatch/pkg/metricsvc"
	"github.com/nicktill/clusterwatch/pkg/reader"
	"github.com/nicktill/clusterwatch/pkg/server/monitor"
	"github.com/nicktill/clusterwatch/pkg/storage"
	"github.com/nicktill/clusterwatch/pkg/storage/badger"
	"github.com/nicktill/clusterwatch/pkg/storage/filestore"
	"github.com/nicktill/clusterwatch/pkg/storage/memory"
	"github.com/nicktill/clusterwatch/pkg/storage/redis"
	"github.com/nicktill/clusterwatch/pkg/windowstore"
)

// App holds the wired pipeline and its HTTP surface.
type App struct {
	Config      *config.Config
	Logger      *zap.Logger
	Repo        storage.Repository
	Regenerator *windowstore.Regenerator
	Reader      *reader.Reader
	Service     *metricsvc.Service
	Hub         *api.Hub

	RegenMonitor *monitor.RegenerationMonitor
	// StorageMonitor is nil for backends without a local data directory
	StorageMonitor *monitor.StorageMonitor

	handler       *api.Handler
	exportHandler *export.Handler
	requests      *httpx.RequestMetrics
}

// OpenRepository opens the configured storage backend.
func OpenRepository(ctx context.Context, cfg config.StorageConfig, logger *zap.Logger) (storage.Repository, error) {
	switch cfg.Backend {
	case config.BackendMemory:
		logger.Info("using in-memory storage (data is lost on restart)")
		return memory.New(), nil

	case config.BackendBadger:
		if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
		logger.Info("initializing BadgerDB storage",
			zap.String("data_dir", cfg.DataDir), zap.Int64("max_memory_mb", cfg.MaxMemoryMB))
		return badger.New(badger.Config{
			Path:        cfg.DataDir,
			MaxMemoryMB: cfg.MaxMemoryMB,
			Logger:      logger.Named("badger"),
		})

	case config.BackendFile:
		logger.Info("initializing file storage", zap.String("data_dir", cfg.DataDir))
		return filestore.New(cfg.DataDir, logger.Named("filestore"))

	case config.BackendRedis:
		logger.Info("connecting to redis storage", zap.String("addr", cfg.RedisAddr), zap.Int("db", cfg.RedisDB))
		return redis.New(ctx, redis.Config{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})

	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}

// NewApp opens storage and wires the pipeline. Close releases the repository.
func NewApp(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	repo, err := OpenRepository(ctx, cfg.Storage, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	return NewAppWithRepository(cfg, repo, logger), nil
}

// NewAppWithRepository wires the pipeline over an already open repository.
func NewAppWithRepository(cfg *config.Config, repo storage.Repository, logger *zap.Logger) *App {
	if logger == nil {
		logger = zap.NewNop()
	}

	regen := windowstore.New(windowstore.Config{
		Generator:  generator.New(generator.Config{SpanDays: cfg.Generator.SpanDays}, nil),
		Repository: repo,
		Clock:      func() time.Time { return time.Now().UTC() },
		Logger:     logger.Named("windowstore"),
	})
	rd := reader.New(repo, reader.Options{
		CacheTTL: cfg.Reader.CacheTTL,
		Logger:   logger.Named("reader"),
	})
	svc := metricsvc.New(rd, logger.Named("metricsvc"))
	hub := api.NewHub(logger.Named("ws"))

	// Drop cached windows before telling clients new data exists
	regen.OnRegenerated(func(res windowstore.Result) { rd.Invalidate(res.EntityID) })
	regen.OnRegenerated(hub.NotifyRegenerated)

	app := &App{
		Config:        cfg,
		Logger:        logger,
		Repo:          repo,
		Regenerator:   regen,
		Reader:        rd,
		Service:       svc,
		Hub:           hub,
		RegenMonitor:  monitor.NewRegenerationMonitor(2 * cfg.Regeneration.Interval),
		handler:       api.NewHandler(svc, regen, repo, logger.Named("api")),
		exportHandler: export.NewHandler(svc, logger.Named("export")),
		requests:      httpx.NewRequestMetrics(),
	}

	regen.OnRegenerated(func(windowstore.Result) { app.RegenMonitor.RecordEntityRegenerated() })

	switch cfg.Storage.Backend {
	case config.BackendBadger, config.BackendFile:
		app.StorageMonitor = monitor.NewStorageMonitor(cfg.Storage.DataDir, cfg.Storage.MaxStorageGB*1024*1024*1024)
	}

	return app
}

// Close releases the repository
func (a *App) Close() error {
	return a.Repo.Close()
}
