// Package server assembles the application from its configured parts and
// owns startup and shutdown ordering.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"cloud.google.com/go/storage"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/batchops/batchwatch/internal/api"
	"github.com/batchops/batchwatch/internal/archive"
	"github.com/batchops/batchwatch/internal/batch"
	"github.com/batchops/batchwatch/internal/bus"
	"github.com/batchops/batchwatch/internal/clock/system"
	"github.com/batchops/batchwatch/internal/config"
	"github.com/batchops/batchwatch/internal/lifecycle"
	"github.com/batchops/batchwatch/internal/logging"
	"github.com/batchops/batchwatch/internal/metrics"
	"github.com/batchops/batchwatch/internal/monitor"
	memoryprovider "github.com/batchops/batchwatch/internal/provider/memory"
	"github.com/batchops/batchwatch/internal/provider/openai"
	"github.com/batchops/batchwatch/internal/publisher"
	memorypublisher "github.com/batchops/batchwatch/internal/publisher/memory"
	gcppublisher "github.com/batchops/batchwatch/internal/publisher/pubsub"
	"github.com/batchops/batchwatch/internal/relay"
	blobstorage "github.com/batchops/batchwatch/internal/storage"
	gcsstorage "github.com/batchops/batchwatch/internal/storage/gcs"
	localstorage "github.com/batchops/batchwatch/internal/storage/local"
	memorystorage "github.com/batchops/batchwatch/internal/storage/memory"
	"github.com/batchops/batchwatch/internal/store"
	pgstore "github.com/batchops/batchwatch/internal/store/postgres"
)

const httpShutdownTimeout = 10 * time.Second

// App contains the assembled application.
type App struct {
	cfg         config.Config
	logger      *zap.Logger
	coordinator *lifecycle.Coordinator
	apiServer   *api.Server
	monitor     *monitor.Monitor

	gcsClient   *storage.Client
	pub         publisher.Publisher
	completions store.Completions
}

// Build wires the application dependencies from configuration.
func Build(ctx context.Context, cfg config.Config) (*App, error) {
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return nil, fmt.Errorf("logger init failed: %w", err)
	}
	zap.ReplaceGlobals(logger)
	logger.Info("building application", zap.Int("port", cfg.Server.Port),
		zap.String("provider", cfg.Provider.Kind))

	app := &App{cfg: cfg, logger: logger}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	collector, err := metrics.NewCollector(registry)
	if err != nil {
		return nil, fmt.Errorf("metrics init failed: %w", err)
	}

	prov, err := app.setupProvider()
	if err != nil {
		return nil, err
	}

	// Inner bus carries the raw success/failure payloads; the outer bus
	// carries normalized completions for downstream consumers.
	innerBus := bus.New()
	outerBus := bus.New()

	relay.NewBusRelay(outerBus, logging.ForComponent(logger, "relay")).Attach(innerBus)

	if err := app.setupArchive(ctx, prov, outerBus); err != nil {
		return nil, err
	}
	if err := app.setupCompletionStore(ctx, outerBus); err != nil {
		return nil, err
	}
	if err := app.setupPublisher(ctx, outerBus); err != nil {
		return nil, err
	}

	app.coordinator = lifecycle.NewCoordinator(logging.ForComponent(logger, "lifecycle"))
	submit, mon := monitor.Init(
		prov,
		innerBus,
		app.coordinator,
		system.New(),
		collector,
		logging.ForComponent(logger, "monitor"),
		monitor.Config{
			Interval:    cfg.PollInterval(),
			Description: cfg.Monitor.JobDescription,
		},
	)
	app.monitor = mon

	app.apiServer = api.NewServer(submit, mon.Registry(), registry,
		logging.ForComponent(logger, "api"), cfg)

	return app, nil
}

func (a *App) setupProvider() (batch.Provider, error) {
	switch a.cfg.Provider.Kind {
	case "memory":
		a.logger.Info("using in-memory batch provider")
		return memoryprovider.New(), nil
	default:
		client, err := openai.New(openai.Config{
			BaseURL:          a.cfg.Provider.BaseURL,
			APIKey:           a.cfg.Provider.APIKey,
			Endpoint:         a.cfg.Provider.Endpoint,
			CompletionWindow: a.cfg.Provider.CompletionWindow,
			Timeout:          a.cfg.ProviderTimeout(),
			MaxRPS:           a.cfg.Provider.MaxRPS,
		}, logging.ForComponent(a.logger, "provider"))
		if err != nil {
			return nil, fmt.Errorf("provider init failed: %w", err)
		}
		a.logger.Info("using openai batch provider", zap.String("base_url", a.cfg.Provider.BaseURL))
		return client, nil
	}
}

func (a *App) setupArchive(ctx context.Context, prov batch.Provider, outerBus *bus.Bus) error {
	var blobStore blobstorage.BlobStore
	switch a.cfg.Archive.Kind {
	case "gcs":
		client, err := storage.NewClient(ctx)
		if err != nil {
			return fmt.Errorf("gcs client init failed: %w", err)
		}
		a.gcsClient = client
		blobStore, err = gcsstorage.New(client, gcsstorage.Config{Bucket: a.cfg.Archive.GCSBucket})
		if err != nil {
			return fmt.Errorf("gcs blob store init failed: %w", err)
		}
		a.logger.Info("archiving results to GCS", zap.String("bucket", a.cfg.Archive.GCSBucket))
	case "local":
		var err error
		blobStore, err = localstorage.New(localstorage.Config{BaseDir: a.cfg.Archive.LocalDir})
		if err != nil {
			return fmt.Errorf("local blob store init failed: %w", err)
		}
		a.logger.Info("archiving results locally", zap.String("dir", a.cfg.Archive.LocalDir))
	case "memory":
		blobStore = memorystorage.NewBlobStore()
		a.logger.Info("archiving results in memory")
	default:
		a.logger.Info("result archiving disabled")
		return nil
	}

	archiver := archive.New(prov, blobStore, logging.ForComponent(a.logger, "archive"),
		archive.Config{Prefix: a.cfg.Archive.Prefix})
	archiver.Attach(outerBus)
	return nil
}

func (a *App) setupCompletionStore(ctx context.Context, outerBus *bus.Bus) error {
	switch a.cfg.DB.Kind {
	case "postgres":
		completions, err := pgstore.New(ctx, pgstore.Config{
			DSN:   a.cfg.DB.DSN,
			Table: a.cfg.DB.Table,
		})
		if err != nil {
			return fmt.Errorf("completion store init failed: %w", err)
		}
		a.completions = completions
		a.logger.Info("recording completions to postgres", zap.String("table", a.cfg.DB.Table))
	default:
		a.completions = store.NoOpCompletions{}
		a.logger.Info("completion history disabled")
		return nil
	}

	recorder := store.NewRecorder(a.completions, logging.ForComponent(a.logger, "store"))
	recorder.Attach(outerBus)
	return nil
}

func (a *App) setupPublisher(ctx context.Context, outerBus *bus.Bus) error {
	if !a.cfg.PubSub.Enabled {
		a.pub = memorypublisher.New()
		a.logger.Info("pubsub disabled, completions stay in process")
		return nil
	}
	pub, err := gcppublisher.New(ctx, a.cfg.PubSub.ProjectID)
	if err != nil {
		return fmt.Errorf("pubsub init failed: %w", err)
	}
	a.pub = pub
	a.logger.Info("publishing completions to pubsub",
		zap.String("project", a.cfg.PubSub.ProjectID),
		zap.String("topic", a.cfg.PubSub.TopicName))

	relay.NewPublisherRelay(a.pub, a.cfg.PubSub.TopicName,
		logging.ForComponent(a.logger, "relay")).Attach(outerBus)
	return nil
}

// Run starts the HTTP server and blocks until the context is canceled or a
// termination signal arrives, then shuts everything down in order.
func (a *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           a.apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		a.logger.Info("http server started", zap.Int("port", a.cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("http server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	a.logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), httpShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("http server shutdown error", zap.Error(err))
	}

	// Stop the monitor loop before closing the sinks it publishes into.
	a.coordinator.RequestShutdown()
	awaitCtx, awaitCancel := context.WithTimeout(context.Background(), a.cfg.ShutdownGrace()+5*time.Second)
	defer awaitCancel()
	if err := a.coordinator.AwaitShutdown(awaitCtx, a.cfg.ShutdownGrace()); err != nil {
		a.logger.Warn("monitor shutdown incomplete", zap.Error(err))
	}

	return a.Close()
}

// Close releases external clients. Safe to call once after Run returns.
func (a *App) Close() error {
	if a.pub != nil {
		if err := a.pub.Close(); err != nil {
			a.logger.Warn("publisher close failed", zap.Error(err))
		}
	}
	if a.completions != nil {
		a.completions.Close()
	}
	if a.gcsClient != nil {
		if err := a.gcsClient.Close(); err != nil {
			a.logger.Warn("gcs client close failed", zap.Error(err))
		}
	}
	a.logger.Info("shutdown complete")
	return nil
}
