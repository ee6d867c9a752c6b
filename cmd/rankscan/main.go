// Package main wires together the rank scan service binary.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	pubsubv2 "cloud.google.com/go/pubsub/v2"
	gcsclient "cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/serpwatch/rankscan/internal/api"
	gcsarchive "github.com/serpwatch/rankscan/internal/archive/gcs"
	localarchive "github.com/serpwatch/rankscan/internal/archive/local"
	memoryarchive "github.com/serpwatch/rankscan/internal/archive/memory"
	"github.com/serpwatch/rankscan/internal/clock/system"
	"github.com/serpwatch/rankscan/internal/config"
	"github.com/serpwatch/rankscan/internal/id/uuid"
	"github.com/serpwatch/rankscan/internal/logging"
	"github.com/serpwatch/rankscan/internal/notify"
	memorypublisher "github.com/serpwatch/rankscan/internal/publisher/memory"
	pubsubpublisher "github.com/serpwatch/rankscan/internal/publisher/pubsub"
	"github.com/serpwatch/rankscan/internal/rank"
	"github.com/serpwatch/rankscan/internal/scan"
	"github.com/serpwatch/rankscan/internal/scheduler"
	"github.com/serpwatch/rankscan/internal/serp"
	memorystorage "github.com/serpwatch/rankscan/internal/storage/memory"
	"github.com/serpwatch/rankscan/internal/storage/postgres"
)

func main() {
	cfgPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
		os.Exit(1)
	}
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		if syncErr := logger.Sync(); syncErr != nil {
			fmt.Fprintf(os.Stderr, "logger sync failed: %v\n", syncErr)
		}
	}()
	zap.ReplaceGlobals(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var (
		repo  rank.KeywordRepository
		ready api.ReadyCheck
	)
	if cfg.DB.DSN != "" {
		store, err := postgres.NewKeywordStore(ctx, postgres.Config{
			DSN:             cfg.DB.DSN,
			MaxConns:        cfg.DB.MaxConns,
			MinConns:        cfg.DB.MinConns,
			MaxConnLifetime: time.Duration(cfg.DB.LifetimeMins) * time.Minute,
		})
		if err != nil {
			logger.Fatal("postgres init failed", zap.Error(err))
		}
		defer store.Close()
		repo = store
		ready = store.Ping
	} else {
		logger.Warn("db.dsn not set, using in-memory keyword store")
		repo = memorystorage.NewKeywordStore()
	}

	lookup := serp.NewClient(serp.Config{
		BaseURL:  cfg.Provider.BaseURL,
		APIKey:   cfg.Provider.APIKey,
		EngineID: cfg.Provider.EngineID,
		Depth:    cfg.Provider.Depth,
		Timeout:  cfg.ProviderTimeout(),
	}, logger.Named("serp"))

	retry := rank.NewRetryPolicy(
		cfg.Scan.MaxRetries,
		time.Duration(cfg.Scan.BackoffInitialMs)*time.Millisecond,
		time.Duration(cfg.Scan.BackoffMaxMs)*time.Millisecond,
	)

	var opts []scan.Option
	if cfg.PubSub.TopicName != "" {
		if cfg.PubSub.ProjectID != "" {
			client, err := pubsubv2.NewClient(ctx, cfg.PubSub.ProjectID)
			if err != nil {
				logger.Fatal("pubsub init failed", zap.Error(err))
			}
			defer func() {
				if closeErr := client.Close(); closeErr != nil {
					logger.Warn("pubsub client close failed", zap.Error(closeErr))
				}
			}()
			opts = append(opts, scan.WithPublisher(pubsubpublisher.New(client.Publisher(cfg.PubSub.TopicName))))
		} else {
			logger.Warn("pubsub.project_id not set, run summaries stay in-process")
			opts = append(opts, scan.WithPublisher(memorypublisher.New()))
		}
	}

	switch cfg.Archive.Provider {
	case "gcs":
		client, err := gcsclient.NewClient(ctx)
		if err != nil {
			logger.Fatal("gcs init failed", zap.Error(err))
		}
		archive, err := gcsarchive.New(client, gcsarchive.Config{Bucket: cfg.Archive.GCSBucket})
		if err != nil {
			logger.Fatal("gcs archive init failed", zap.Error(err))
		}
		opts = append(opts, scan.WithArchive(archive))
	case "local":
		archive, err := localarchive.New(localarchive.Config{BaseDir: cfg.Archive.BaseDir})
		if err != nil {
			logger.Fatal("local archive init failed", zap.Error(err))
		}
		opts = append(opts, scan.WithArchive(archive))
	case "memory":
		opts = append(opts, scan.WithArchive(memoryarchive.New()))
	}

	if cfg.SMTP.To != "" {
		notifier, err := notify.NewEmailNotifier(notify.Config{
			Host:     cfg.SMTP.Host,
			Port:     cfg.SMTP.Port,
			Username: cfg.SMTP.Username,
			Password: cfg.SMTP.Password,
			From:     cfg.SMTP.From,
			To:       cfg.SMTP.To,
		}, logger.Named("notify"))
		if err != nil {
			logger.Fatal("email notifier init failed", zap.Error(err))
		}
		opts = append(opts, scan.WithNotifier(notifier))
	} else {
		opts = append(opts, scan.WithNotifier(notify.NewNoop()))
	}

	coordinator := scan.New(
		repo,
		lookup,
		retry,
		system.New(),
		uuid.New(),
		scan.Config{
			Concurrency:   cfg.Scan.Concurrency,
			Window:        cfg.Window(),
			ScanDayWindow: cfg.ScanDayWindow(),
			Topic:         cfg.PubSub.TopicName,
			ArchivePrefix: cfg.Archive.Prefix,
		},
		logger.Named("scan"),
		opts...,
	)

	apiServer := api.NewServer(coordinator, ready, cfg, logger.Named("api"))
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	var sched *scheduler.Service
	if cfg.Scheduler.Enabled {
		sched = scheduler.New(cfg.Scheduler.Schedule, coordinator, logger.Named("scheduler"))
		if err := sched.Start(); err != nil {
			logger.Fatal("scheduler start failed", zap.Error(err))
		}
	}

	go func() {
		logger.Info("http server started", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown initiated")

	if sched != nil {
		sched.Stop()
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
	}
	logger.Info("shutdown complete")
}
