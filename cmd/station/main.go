package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/your-org/facegate/internal/capture"
	"github.com/your-org/facegate/internal/config"
	"github.com/your-org/facegate/internal/models"
	"github.com/your-org/facegate/internal/observability"
	"github.com/your-org/facegate/internal/queue"
	"github.com/your-org/facegate/internal/station"
	"github.com/your-org/facegate/internal/storage"
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
	slog.Info("starting facegate station", "station", cfg.Station.ID, "device", cfg.Camera.Device)

	if cfg.NATS.URL == "" || cfg.MinIO.Endpoint == "" {
		slog.Error("station needs nats.url and minio.endpoint")
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	minioStore, err := storage.NewMinIOStore(cfg.MinIO)
	if err != nil {
		slog.Error("connect to minio", "error", err)
		os.Exit(1)
	}
	if err := minioStore.EnsureBucket(ctx); err != nil {
		slog.Warn("ensure minio bucket", "error", err)
	}

	producer, err := queue.NewProducer(cfg.NATS.URL)
	if err != nil {
		slog.Error("connect to nats", "error", err)
		os.Exit(1)
	}
	defer producer.Close()

	if err := producer.EnsureStreams(ctx); err != nil {
		slog.Warn("ensure nats streams", "error", err)
	}

	st := station.New(cfg.Station.ID, capture.NewCamera(cfg.Camera), minioStore, producer, capture.StillOptions{
		TargetWidth:  cfg.Matching.VerifyWidth,
		ReadyTimeout: cfg.Matching.ReadyTimeout,
	})
	if err := st.Start(ctx); err != nil {
		slog.Error("start camera", "error", err)
		os.Exit(1)
	}
	defer st.Stop()

	// NATS delivers one subscription's messages in order, so commands for
	// this station never overlap.
	sub, err := producer.SubscribeCommands(st.ID(), func(cmd models.StationCommand) {
		slog.Info("received command", "kind", cmd.Kind, "identity", cmd.Identity)
		if _, err := st.Handle(ctx, cmd); err != nil {
			slog.Error("handle command", "error", err, "kind", cmd.Kind)
		}
	})
	if err != nil {
		slog.Error("subscribe to control", "error", err)
		os.Exit(1)
	}
	defer sub.Unsubscribe()

	if cfg.Station.CaptureRetention > 0 {
		slog.Info("capture cleanup enabled", "retention", cfg.Station.CaptureRetention)
		go func() {
			ticker := time.NewTicker(60 * time.Second)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					if _, err := st.Prune(ctx, minioStore, cfg.Station.CaptureRetention); err != nil {
						slog.Warn("cleanup captures", "error", err)
					}
				}
			}
		}()
	}

	go func() {
		addr := fmt.Sprintf(":%d", cfg.Station.MetricsPort)
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(`{"status":"ok"}`))
		})
		slog.Info("station metrics listening", "addr", addr)
		if err := http.ListenAndServe(addr, mux); err != nil {
			slog.Error("metrics server error", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down station...")
	cancel()
	slog.Info("station stopped")
}
