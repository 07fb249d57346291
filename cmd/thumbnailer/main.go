package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/wb-go/wbf/retry"
	"github.com/wb-go/wbf/zlog"

	"github.com/aliskhannn/thumbnailer/internal/api/handlers/image"
	"github.com/aliskhannn/thumbnailer/internal/api/router"
	"github.com/aliskhannn/thumbnailer/internal/api/server"
	"github.com/aliskhannn/thumbnailer/internal/config"
	"github.com/aliskhannn/thumbnailer/internal/consumer"
	"github.com/aliskhannn/thumbnailer/internal/processor"
	"github.com/aliskhannn/thumbnailer/internal/service/upload"
	"github.com/aliskhannn/thumbnailer/internal/worker"
)

func main() {
	// Context & signals: used for graceful shutdown on system interrupts.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize logger and load application configuration.
	zlog.Init()

	path := os.Getenv("CONFIG_PATH")
	if path == "" {
		path = "./config/config.yml"
	}
	cfg := config.MustLoad(path)

	// Retry strategy for queue, status and audit calls.
	strategy := retry.Strategy{
		Attempts: cfg.Retry.Attempts,
		Delay:    cfg.Retry.Delay,
		Backoff:  cfg.Retry.Backoff,
	}

	var cl closers
	defer cl.closeAll()

	blobs, err := newBlobStore(ctx, cfg.Storage)
	if err != nil {
		zlog.Logger.Fatal().Err(err).Msg("failed to connect to storage")
	}

	statuses, audit, err := newRecords(ctx, cfg.Records, &cl)
	if err != nil {
		zlog.Logger.Fatal().Err(err).Msg("failed to set up status store and audit log")
	}

	source, publisher, err := newQueue(ctx, cfg, strategy, &cl)
	if err != nil {
		zlog.Logger.Fatal().Err(err).Msg("failed to set up job queue")
	}

	var wg sync.WaitGroup

	if cfg.Worker.Enabled {
		thumbs := processor.New(processor.Options{
			Width:        cfg.Thumbnail.Width,
			Height:       cfg.Thumbnail.Height,
			Mode:         cfg.Thumbnail.Mode,
			Engine:       cfg.Thumbnail.Engine,
			JPEGQuality:  cfg.Thumbnail.JPEGQuality,
			MaxPixels:    cfg.Thumbnail.MaxPixels,
			Watermark:    cfg.Thumbnail.Watermark,
			UploadPrefix: cfg.Thumbnail.UploadPrefix,
			ThumbPrefix:  cfg.Thumbnail.ThumbPrefix,
		})

		w := worker.New(blobs, statuses, audit, thumbs, worker.Options{
			FetchTimeout: cfg.Worker.FetchTimeout,
			StoreTimeout: cfg.Worker.StoreTimeout,
			Retry:        strategy,
		})

		c := consumer.New(source, w, strategy, consumer.Options{
			Concurrency: cfg.Worker.Concurrency,
			AckTimeout:  cfg.Worker.AckTimeout,
		})

		// Start the consumer loops in a separate goroutine.
		wg.Add(1)
		go c.Run(ctx, &wg)
	}

	var s *http.Server
	if cfg.Server.Enabled {
		svc := upload.NewService(blobs, statuses, audit, publisher, upload.Options{
			Bucket:       cfg.Storage.BucketName,
			UploadPrefix: cfg.Thumbnail.UploadPrefix,
			MaxSize:      cfg.Server.MaxUploadSize,
		})

		r := router.Setup(image.NewHandler(svc))
		s = server.New(cfg.Server.HTTPPort, r)

		go func() {
			if err := s.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				zlog.Logger.Fatal().Err(err).Msg("failed to start server")
			}
		}()
	}

	// Block until context is canceled (SIGINT/SIGTERM).
	<-ctx.Done()
	zlog.Logger.Info().Msg("context done")

	// Wait for in-flight jobs to settle.
	wg.Wait()

	if s != nil {
		// Graceful shutdown with timeout for HTTP server.
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		zlog.Logger.Info().Msg("shutting down server")
		if err := s.Shutdown(shutdownCtx); err != nil {
			zlog.Logger.Error().Err(err).Msg("failed to shutdown server")
		}
		if errors.Is(shutdownCtx.Err(), context.DeadlineExceeded) {
			zlog.Logger.Info().Msg("timeout exceeded, forcing shutdown")
		}
	}
}
