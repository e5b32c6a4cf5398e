// docshelf server
//
// Serves the library assets (manifest included) from local disk or S3 and
// runs one browsing session over them: tree state, previews and search as
// JSON, with change notifications over SSE. With BUILDER_WATCH=true and
// local storage the manifest is rebuilt on library changes and reloaded.
package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/docshelf/docshelf/internal/api"
	"github.com/docshelf/docshelf/internal/browser"
	"github.com/docshelf/docshelf/internal/builder"
	"github.com/docshelf/docshelf/internal/config"
	"github.com/docshelf/docshelf/internal/events"
	"github.com/docshelf/docshelf/internal/fetch"
	"github.com/docshelf/docshelf/internal/logging"
	"github.com/docshelf/docshelf/internal/metrics"
	"github.com/docshelf/docshelf/internal/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		// Can't use structured logging yet
		panic("configuration error: " + err.Error())
	}

	if err := logging.Init(logging.Config{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
	}); err != nil {
		panic("logging init error: " + err.Error())
	}
	defer logging.Sync()

	logging.Info("docshelf server starting...",
		zap.String("listen", cfg.ListenAddr),
		zap.String("metrics", cfg.MetricsAddr),
		zap.String("storage", cfg.StorageBackend))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	backend, err := storage.New(ctx, cfg)
	if err != nil {
		logging.Fatal("storage init failed", zap.Error(err))
	}
	defer backend.Close()

	broadcaster := events.NewBroadcaster(64)
	session := browser.New(fetch.NewBackendFetcher(backend), browser.Options{
		PublicOrigin: cfg.PublicOrigin,
		Events:       broadcaster,
	})
	defer session.Close()

	var b *builder.Builder
	if cfg.BuilderWatch && backend.Type() == "local" {
		b = builder.New(builder.Config{
			AssetsDir: cfg.AssetsDir(),
			Converter: builder.NewSofficeConverter(cfg.SofficePath, cfg.ConvertTimeout),
		})
		if _, err := b.Build(ctx); err != nil {
			logging.Error("initial manifest build failed", zap.Error(err))
		}
	}

	// A missing manifest is a visible library error, not a startup failure.
	if err := session.Load(ctx); err != nil {
		logging.Warn("initial library load failed", zap.Error(err))
	}

	srv := api.NewServer(backend, session, broadcaster)
	httpServer := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	metricsServer := &http.Server{
		Addr:    cfg.MetricsAddr,
		Handler: metrics.Handler(),
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logging.Info("metrics server listening", zap.String("addr", cfg.MetricsAddr))
		if err := metricsServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		logging.Info("server listening (HTTP)", zap.String("addr", cfg.ListenAddr))
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	if b != nil {
		g.Go(func() error {
			return b.Watch(gctx, cfg.WatchDebounce, func(res builder.Result, err error) {
				if err != nil {
					logging.Error("manifest rebuild failed", zap.Error(err))
					return
				}
				if err := session.Reload(gctx); err != nil {
					logging.Warn("library reload failed", zap.Error(err))
				}
			})
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		logging.Info("shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		// Open event streams end once their subscriptions close.
		broadcaster.Close()
		httpServer.Shutdown(shutdownCtx)
		metricsServer.Shutdown(shutdownCtx)
		return nil
	})

	if err := g.Wait(); err != nil {
		logging.Fatal("server error", zap.Error(err))
	}
}
