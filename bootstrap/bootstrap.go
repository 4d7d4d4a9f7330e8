// Package bootstrap wires the portal's collaborators from configuration.
package bootstrap

import (
	"context"
	"fmt"
	"time"

	"audioportal/cache"
	"audioportal/config"
	"audioportal/core/events"
	"audioportal/core/portal"
	"audioportal/core/transcribe"
	"audioportal/db"
	"audioportal/logger"
	"audioportal/repository"
	"audioportal/storage"

	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"
)

// App holds every long-lived dependency of the process.
type App struct {
	Config      *config.Config
	DB          *gorm.DB
	Repo        repository.AudioRepository
	Blobs       storage.BlobStore
	Transcriber transcribe.Transcriber
	Redis       *redis.Client // nil when the cache is disabled
	Cache       *cache.TranscriptionCache
	Hub         *events.Hub
	Service     *portal.Service
}

// New connects to the record database, the blob store and (optionally) Redis,
// and starts the event hub. Close releases everything.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	app := &App{Config: cfg}

	gdb, err := db.Open(cfg)
	if err != nil {
		return nil, err
	}
	app.DB = gdb
	if err := db.Migrate(gdb); err != nil {
		app.Close()
		return nil, err
	}
	app.Repo = repository.NewGormAudioRepository(gdb)

	if app.Blobs, err = NewBlobStore(ctx, cfg); err != nil {
		app.Close()
		return nil, err
	}
	if app.Transcriber, err = transcribe.New(cfg); err != nil {
		app.Close()
		return nil, err
	}

	var transcriptionCache portal.TranscriptionCache
	if cfg.RedisHost != "" {
		client, err := cache.NewRedisClient(cfg)
		if err != nil {
			// The cache is an optimisation; run without it.
			logger.Warn("Redis unavailable, transcription cache disabled", logger.ErrorField(err))
		} else {
			app.Redis = client
			app.Cache = cache.NewTranscriptionCache(client, cfg.TranscriptionCacheTTL)
			transcriptionCache = app.Cache
			logger.Info("Successfully connected to Redis",
				logger.String("host", cfg.RedisHost), logger.Int("db", cfg.RedisDB))
		}
	}

	app.Hub = events.NewHub()
	go app.Hub.Run()

	app.Service = portal.NewService(portal.Deps{
		Repo:          app.Repo,
		Blobs:         app.Blobs,
		Transcriber:   app.Transcriber,
		Cache:         transcriptionCache,
		Notifier:      app.Hub,
		MaxUploadSize: cfg.MaxUploadSize,
		InFlightGrace: cfg.TranscriptionTimeout + time.Minute,
	})
	return app, nil
}

// NewBlobStore picks the backend named by cfg.BlobBackend.
func NewBlobStore(ctx context.Context, cfg *config.Config) (storage.BlobStore, error) {
	switch cfg.BlobBackend {
	case "", "fs":
		return storage.NewLocalStore(cfg.UploadDir)
	case "minio":
		return storage.NewMinioStore(ctx, cfg)
	default:
		return nil, fmt.Errorf("unsupported BLOB_BACKEND %q", cfg.BlobBackend)
	}
}

func (a *App) Close() {
	if a.Hub != nil {
		a.Hub.Stop()
	}
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			logger.Warn("Error closing Redis connection", logger.ErrorField(err))
		}
	}
	if err := db.Close(a.DB); err != nil {
		logger.Warn("Error closing database", logger.ErrorField(err))
	}
}
