package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hashicorp/go-metrics"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/dgnsrekt/reviewsync/internal/config"
	"github.com/dgnsrekt/reviewsync/internal/server"
	"github.com/dgnsrekt/reviewsync/internal/store"
	"github.com/dgnsrekt/reviewsync/internal/ws"
)

func main() {
	os.Exit(run())
}

func run() int {
	// Setup logger
	logger, err := zap.NewDevelopment()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		return 1
	}
	defer logger.Sync()

	// Load config
	cfg, err := config.LoadServerConfig()
	if err != nil {
		logger.Error("failed to load config", zap.Error(err))
		return 1
	}

	logger.Info("configuration loaded",
		zap.String("port", cfg.Port),
		zap.String("fixturePath", cfg.FixturePath),
		zap.Bool("fixtureWatch", cfg.FixtureWatch),
		zap.Bool("wsEnabled", cfg.WSEnabled),
		zap.String("compression", cfg.Compression),
		zap.Bool("metricsEnabled", cfg.MetricsEnabled),
	)

	// Metrics
	var sink *metrics.InmemSink
	if cfg.MetricsEnabled {
		sink = metrics.NewInmemSink(10*time.Second, time.Minute)
		metricsCfg := metrics.DefaultConfig("reviewsync-server")
		metricsCfg.EnableHostname = false
		metricsCfg.EnableRuntimeMetrics = false
		if _, err := metrics.NewGlobal(metricsCfg, sink); err != nil {
			logger.Error("failed to init metrics", zap.Error(err))
			return 1
		}
	}

	// Load fixture
	start := time.Now()
	mem, err := server.OpenStore(cfg.FixturePath, logger)
	if err != nil {
		logger.Error("failed to load fixture", zap.Error(err))
		return 1
	}
	st := store.NewReloadableStore(mem)
	defer st.Close()

	logger.Info("fixture loaded",
		zap.Duration("duration", time.Since(start)),
		zap.Strings("reviewRequests", st.ReviewRequestIDs()),
	)

	// Create context for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	// WebSocket components (optional)
	var hub *ws.Hub
	var notify func([]string)
	if cfg.WSEnabled {
		hub = ws.NewHub("updates", logger)
		g.Go(func() error {
			hub.Run(gctx)
			return nil
		})

		publisher, err := ws.NewPublisher(hub, func(id, entries string) ([]byte, error) {
			return server.BuildUpdatePayload(st, id, entries)
		}, logger)
		if err != nil {
			logger.Error("failed to create publisher", zap.Error(err))
			return 1
		}
		g.Go(func() error {
			publisher.Run(gctx)
			return nil
		})
		notify = publisher.Notify

		logger.Info("WebSocket push enabled")
	}

	reload := server.NewReloadManager(st, cfg.FixturePath, cfg.ReloadDebounce, notify, logger)
	if cfg.FixtureWatch {
		g.Go(func() error {
			return reload.Watch(gctx)
		})
	}

	srv, err := server.NewServer(st, hub, sink, reload, cfg, logger)
	if err != nil {
		logger.Error("failed to create server", zap.Error(err))
		return 1
	}
	defer srv.Close()

	// Setup HTTP server
	httpServer := &http.Server{
		Addr:        ":" + cfg.Port,
		Handler:     server.NewRouter(srv, logger),
		ReadTimeout: 30 * time.Second,
	}

	g.Go(func() error {
		logger.Info("starting server", zap.String("addr", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down server...")

		// Graceful HTTP server shutdown
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("server stopped with error", zap.Error(err))
		return 1
	}

	logger.Info("server stopped")
	return 0
}
