package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/your-org/facegate/internal/api"
	"github.com/your-org/facegate/internal/api/handlers"
	"github.com/your-org/facegate/internal/api/ws"
	"github.com/your-org/facegate/internal/config"
	"github.com/your-org/facegate/internal/enroll"
	"github.com/your-org/facegate/internal/models"
	"github.com/your-org/facegate/internal/observability"
	"github.com/your-org/facegate/internal/queue"
	"github.com/your-org/facegate/internal/storage"
	"github.com/your-org/facegate/internal/vision"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	observability.SetupLogger(cfg.Logging.Level, cfg.Logging.Format)

	slog.Info("starting facegate API service", "port", cfg.Server.Port, "database", cfg.Database.Driver)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, err := storage.OpenRecordStore(ctx, cfg.Database)
	if err != nil {
		slog.Error("open record store", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	deps := map[string]handlers.Pinger{"database": store}

	var objects storage.ObjectStore
	if cfg.MinIO.Endpoint != "" {
		minioStore, err := storage.NewMinIOStore(cfg.MinIO)
		if err != nil {
			slog.Error("connect to minio", "error", err)
			os.Exit(1)
		}
		if err := minioStore.EnsureBucket(ctx); err != nil {
			slog.Warn("ensure minio bucket", "error", err)
		}
		objects = minioStore
		deps["minio"] = minioStore
	} else {
		slog.Warn("minio not configured, thumbnails kept in memory")
		objects = storage.NewMemoryStore()
	}

	hub := ws.NewHub(cfg.Matching.Threshold)
	go hub.Run(ctx)

	// With NATS, events go through the EVENTS stream so worker outcomes reach
	// the hub too; without it the service feeds the hub directly.
	var notifier enroll.Notifier = hub
	if cfg.NATS.URL != "" {
		producer, err := queue.NewProducer(cfg.NATS.URL)
		if err != nil {
			slog.Error("connect to nats", "error", err)
			os.Exit(1)
		}
		defer producer.Close()

		if err := producer.EnsureStreams(ctx); err != nil {
			slog.Warn("ensure nats streams", "error", err)
		}
		notifier = producer
		deps["nats"] = producer

		consumer, err := queue.NewConsumer(cfg.NATS.URL)
		if err != nil {
			slog.Error("create event consumer", "error", err)
			os.Exit(1)
		}
		defer consumer.Close()

		err = consumer.ConsumeEvents(ctx, "api-events-"+cfg.Station.ID, func(ctx context.Context, msg jetstream.Msg) error {
			var ev models.Event
			if err := json.Unmarshal(msg.Data(), &ev); err != nil {
				slog.Error("unmarshal event", "error", err)
				return nil
			}
			return hub.Notify(ctx, ev)
		})
		if err != nil {
			slog.Warn("start event consumer", "error", err)
		}
	}

	// Models load in the background; until then face operations answer 503.
	readiness := vision.Pending()
	go func() {
		loaded := vision.Load(cfg.Vision, cfg.Matching.DescriptorLength)
		p, err := loaded.Provider()
		readiness.Set(p, loaded.Err())
		if err != nil {
			slog.Warn("face operations unavailable", "error", err)
		}
	}()
	defer vision.ShutdownONNXRuntime()
	defer readiness.Close()

	svc := enroll.NewService(enroll.Options{
		Store:     store,
		Objects:   objects,
		Readiness: readiness,
		Matching:  cfg.Matching,
		Notifier:  notifier,
	})

	router := api.NewRouter(api.RouterConfig{
		APIKey:    cfg.Server.APIKey,
		Service:   svc,
		Hub:       hub,
		Readiness: readiness,
		Deps:      deps,
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("API server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down API server...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", "error", err)
	}

	slog.Info("API server stopped")
}
