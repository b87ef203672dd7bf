package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"codeberg.org/graphmirror/graphmirror/pkg/api"
	"codeberg.org/graphmirror/graphmirror/pkg/config"
	"codeberg.org/graphmirror/graphmirror/pkg/graph"
	"codeberg.org/graphmirror/graphmirror/pkg/report"
	"codeberg.org/graphmirror/graphmirror/pkg/store"
	"codeberg.org/graphmirror/graphmirror/pkg/sync"
)

func main() {
	configPath := flag.String("config", "/etc/graphmirror/config.yaml", "Path to config")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		if os.IsNotExist(err) {
			cfg = config.DefaultConfig()
		} else {
			panic(err)
		}
	}

	logger := initLogger(cfg.Logging)
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := store.Open(&cfg.Database, logger)
	if err != nil {
		logger.Fatal("Store init failed", zap.Error(err))
	}
	defer st.Close()

	if err := st.Migrate(ctx); err != nil {
		logger.Fatal("Schema migration failed", zap.Error(err))
	}

	client := graph.NewClient(ctx, &graph.Config{
		TenantID:     cfg.Graph.TenantID,
		ClientID:     cfg.Graph.ClientID,
		ClientSecret: cfg.Graph.ClientSecret,
		BaseURL:      cfg.Graph.BaseURL,
		Retries:      cfg.Sync.RetryAttempts,
	}, logger)

	syncer := sync.NewSyncer(client, st, logger,
		sync.WithWorkers(cfg.Sync.Workers),
		sync.WithLookupBatch(cfg.Sync.LookupBatch))

	go syncer.Start(ctx, cfg.Sync.Resources, cfg.Sync.Interval, cfg.Sync.RunOnStart)

	runner := report.NewRunner(st, logger)
	mailer := report.NewMailer(cfg.SMTP)

	mux := http.NewServeMux()
	api.SetupRoutes(mux, ctx, st, syncer, runner, mailer, cfg.Export, logger)

	srv := &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 60 * time.Second, // page=all exports stream whole tables
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logger.Info("Starting HTTP server", zap.String("addr", cfg.Server.Address))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down...")

	sCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(sCtx); err != nil {
		logger.Error("Server shutdown failed", zap.Error(err))
	}

	logger.Info("Shutdown complete")
}

func initLogger(c config.LoggingConfig) *zap.Logger {
	lvl, _ := zapcore.ParseLevel(c.Level)
	cfg := zap.NewProductionConfig()
	if c.Format == "console" {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	l, _ := cfg.Build()
	return l
}
