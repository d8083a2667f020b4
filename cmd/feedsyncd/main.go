package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/mkutlay/feedsync/internal/api"
	"github.com/mkutlay/feedsync/internal/backup"
	"github.com/mkutlay/feedsync/internal/cache"
	"github.com/mkutlay/feedsync/internal/config"
	"github.com/mkutlay/feedsync/internal/feed"
	"github.com/mkutlay/feedsync/internal/logger"
	"github.com/mkutlay/feedsync/internal/middleware"
	"github.com/mkutlay/feedsync/internal/models"
	"github.com/mkutlay/feedsync/internal/notify"
	"github.com/mkutlay/feedsync/internal/repo"
	"github.com/mkutlay/feedsync/internal/store"
	"github.com/mkutlay/feedsync/internal/syncer"
)

const networkProbeAddr = "1.1.1.1:53"

func main() {
	// Load and validate configuration
	cfg := config.Load()

	// Initialize logger
	if err := logger.Init(logger.Config{
		Level:  cfg.LogLevel,
		Output: cfg.LogFile,
		Pretty: cfg.Env == "development",
	}); err != nil {
		panic(err)
	}

	log := logger.Get()
	log.Info().Msg("Starting feedsync...")

	// Open the content database
	db, err := store.Open(cfg.DBPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.DBPath).Msg("Failed to open database")
	}
	defer db.Close()

	announcements := store.NewAnnouncementStore(db)
	posts := store.NewBlogPostStore(db)
	feedRepo := repo.New(announcements, posts)

	// Validator cache: Redis when configured, in-process otherwise
	var validatorCache cache.Store
	if cfg.RedisURL != "" {
		redisStore, err := cache.NewRedisStore(cfg)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize Redis cache")
		}
		validatorCache = redisStore
	} else {
		log.Info().Msg("Redis not configured, using in-process validator cache")
		validatorCache = cache.NewMemoryStore()
	}
	defer func() {
		if err := validatorCache.Close(); err != nil {
			log.Error().Err(err).Msg("Error closing validator cache")
		}
	}()

	fetcher := feed.NewFetcher(cfg.FetchTimeout)
	parser := feed.NewParser()

	// Notifications are gated twice: the endpoint must be configured
	// and delivery must be enabled at runtime.
	var dispatcher syncer.Dispatcher
	if cfg.NotifyURL != "" {
		dispatcher = notify.NewDispatcher(cfg.NotifyURL, func(ctx context.Context) bool {
			return cfg.NotifyEnabled
		})
	}

	scheduler := syncer.NewScheduler(cfg.SyncInterval, dispatcher, syncer.NetworkConstraint(networkProbeAddr))
	scheduler.Register(syncer.NewPipeline[models.Announcement](
		models.TypeAnnouncement, cfg.AnnouncementsURL, fetcher, parser, announcements, validatorCache, cfg.CacheTTL))
	scheduler.Register(syncer.NewPipeline[models.BlogPost](
		models.TypeBlogPost, cfg.BlogURL, fetcher, parser, posts, validatorCache, cfg.CacheTTL))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	scheduler.Start(ctx)

	// Optional snapshot backup to S3-compatible storage
	exporter, err := backup.New(ctx, backup.Config{
		Endpoint:  cfg.S3Endpoint,
		AccessKey: cfg.S3AccessKey,
		SecretKey: cfg.S3SecretKey,
		Bucket:    cfg.S3Bucket,
		Interval:  cfg.BackupInterval,
	}, announcements, posts)
	switch {
	case errors.Is(err, backup.ErrDisabled):
		log.Info().Msg("Snapshot backup not configured, skipping")
	case err != nil:
		log.Fatal().Err(err).Msg("Failed to initialize snapshot backup")
	default:
		go exporter.Run(ctx)
	}

	// Create Fiber app with custom config
	app := fiber.New(fiber.Config{
		ReadTimeout:  cfg.HTTPTimeout,
		IdleTimeout:  120 * time.Second,
		ErrorHandler: middleware.ErrorHandler,
	})

	// Setup API routes
	api.SetupRoutes(app, api.NewHandlers(feedRepo, scheduler, validatorCache), cfg)

	// Start server in a goroutine
	go func() {
		log.Info().Str("port", cfg.Port).Msg("Starting server")
		if err := app.Listen(":" + cfg.Port); err != nil {
			log.Fatal().Err(err).Msg("Server error")
		}
	}()

	// Wait for interrupt signal to gracefully shut down
	<-ctx.Done()
	log.Info().Msg("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	scheduler.Stop()

	log.Info().Msg("Server exited properly")
}
