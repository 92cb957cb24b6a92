// Package main wires together the logo service binary.
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

	gcpubsub "cloud.google.com/go/pubsub"
	gcstorage "cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/finbrand/logo-crawler/internal/api"
	"github.com/finbrand/logo-crawler/internal/clock/system"
	"github.com/finbrand/logo-crawler/internal/config"
	"github.com/finbrand/logo-crawler/internal/dispatcher"
	"github.com/finbrand/logo-crawler/internal/fetcher/logodev"
	"github.com/finbrand/logo-crawler/internal/fetcher/website"
	"github.com/finbrand/logo-crawler/internal/id/uuid"
	"github.com/finbrand/logo-crawler/internal/image"
	filejobs "github.com/finbrand/logo-crawler/internal/jobstore/file"
	memoryjobs "github.com/finbrand/logo-crawler/internal/jobstore/memory"
	postgresjobs "github.com/finbrand/logo-crawler/internal/jobstore/postgres"
	"github.com/finbrand/logo-crawler/internal/logging"
	"github.com/finbrand/logo-crawler/internal/logo"
	"github.com/finbrand/logo-crawler/internal/metaapi"
	"github.com/finbrand/logo-crawler/internal/metrics"
	"github.com/finbrand/logo-crawler/internal/orchestrator"
	memorypublisher "github.com/finbrand/logo-crawler/internal/publisher/memory"
	pubsubpublisher "github.com/finbrand/logo-crawler/internal/publisher/pubsub"
	queuememory "github.com/finbrand/logo-crawler/internal/queue/memory"
	"github.com/finbrand/logo-crawler/internal/quota"
	"github.com/finbrand/logo-crawler/internal/recorder"
	gcsstorage "github.com/finbrand/logo-crawler/internal/storage/gcs"
	localstorage "github.com/finbrand/logo-crawler/internal/storage/local"
	memorystorage "github.com/finbrand/logo-crawler/internal/storage/memory"
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

	metrics.Init()

	clock := system.New()
	idGen := uuid.NewUUIDGenerator()

	dataAPI := metaapi.New(metaapi.Config{
		BaseURL: cfg.MetaAPI.BaseURL,
		Schema:  cfg.MetaAPI.Schema,
		Timeout: time.Duration(cfg.MetaAPI.TimeoutSec) * time.Second,
	}, logger.Named("metaapi"))
	gate := quota.New(dataAPI, clock, cfg.LogoDev.QuotaMax, logger.Named("quota"))
	rec := recorder.New(dataAPI, logger.Named("recorder"))

	blobStore, err := buildBlobStore(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("blob store init failed", zap.Error(err))
	}
	jobStore, err := buildJobStore(ctx, cfg)
	if err != nil {
		logger.Fatal("job store init failed", zap.Error(err))
	}
	pub, err := buildPublisher(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("publisher init failed", zap.Error(err))
	}

	websiteFetcher := website.New(website.Config{
		BaseURL: cfg.Website.BaseURL,
		Selectors: cfg.Website.Selectors,
		Retry: logo.RetryPolicy{
			MaxAttempts: cfg.Website.MaxAttempts,
			BaseTimeout: cfg.RetryBase(),
			Growth:      cfg.Website.TimeoutGrowth,
		},
		DownloadTimeout: time.Duration(cfg.Website.DownloadTimeoutSec) * time.Second,
		StaticProbe:     cfg.Website.StaticProbe,
	}, logger.Named("website"))

	logoDevFetcher := logodev.New(logodev.Config{
		Endpoint:  cfg.LogoDev.Endpoint,
		Token:     cfg.LogoDev.Token,
		Timeout:   time.Duration(cfg.LogoDev.TimeoutSec) * time.Second,
		QuotaName: cfg.LogoDev.QuotaName,
	}, gate, logger.Named("logodev"))

	converter := image.NewConverter(image.Config{
		Sizes:       cfg.Image.Sizes,
		WebPQuality: cfg.Image.WebPQuality,
	}, logger.Named("image"))

	orch := orchestrator.New(
		websiteFetcher,
		logoDevFetcher,
		converter,
		blobStore,
		rec,
		jobStore,
		pub,
		clock,
		orchestrator.Config{
			Budget: cfg.AcquireBudget(),
			Topic:  cfg.PubSub.TopicName,
		},
		logger.Named("orchestrator"),
	)

	q := queuememory.NewQueue(cfg.Crawler.QueueDepth)
	dispatch := dispatcher.New(q, orch, cfg.Crawler.Concurrency, logger.Named("dispatcher"))

	apiServer := api.NewServer(orch, rec, converter, jobStore, dispatch, idGen, clock, cfg, logger.Named("api"))

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("dispatcher started", zap.Int("workers", cfg.Crawler.Concurrency))
		dispatch.Run(ctx)
	}()

	go func() {
		logger.Info("http server started", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
	}
	q.Close()
	logger.Info("shutdown complete")
}

func buildBlobStore(ctx context.Context, cfg config.Config, logger *zap.Logger) (logo.BlobStore, error) {
	switch cfg.Storage.Provider {
	case "gcs":
		client, err := gcstorage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("gcs client: %w", err)
		}
		return gcsstorage.New(client, gcsstorage.Config{Bucket: cfg.Storage.GCSBucket})
	case "local":
		return localstorage.New(localstorage.Config{BaseDir: cfg.Storage.LocalDir})
	case "memory", "":
		logger.Warn("using in-memory blob store, artifacts will not survive restarts")
		return memorystorage.NewBlobStore(), nil
	default:
		return nil, fmt.Errorf("unknown storage provider %q", cfg.Storage.Provider)
	}
}

func buildJobStore(ctx context.Context, cfg config.Config) (logo.JobStore, error) {
	switch cfg.Jobs.Store {
	case "file", "":
		return filejobs.NewStore(cfg.Jobs.Dir)
	case "postgres":
		return postgresjobs.NewStore(ctx, postgresjobs.Config{DSN: cfg.Jobs.DSN})
	case "memory":
		return memoryjobs.NewStore(), nil
	default:
		return nil, fmt.Errorf("unknown jobs store %q", cfg.Jobs.Store)
	}
}

func buildPublisher(ctx context.Context, cfg config.Config, logger *zap.Logger) (logo.Publisher, error) {
	if cfg.PubSub.ProjectID == "" || cfg.PubSub.TopicName == "" {
		logger.Info("pubsub not configured, completion events stay in memory")
		return memorypublisher.New(), nil
	}
	client, err := gcpubsub.NewClient(ctx, cfg.PubSub.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("pubsub client: %w", err)
	}
	return pubsubpublisher.New(client), nil
}
