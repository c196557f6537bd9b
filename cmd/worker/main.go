package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/your-org/facegate/internal/capture"
	"github.com/your-org/facegate/internal/config"
	"github.com/your-org/facegate/internal/enroll"
	"github.com/your-org/facegate/internal/observability"
	"github.com/your-org/facegate/internal/queue"
	"github.com/your-org/facegate/internal/storage"
	"github.com/your-org/facegate/internal/vision"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to config file")
	metricsAddr := flag.String("metrics-addr", ":8082", "metrics listen address")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	observability.SetupLogger(cfg.Logging.Level, cfg.Logging.Format)

	slog.Info("starting facegate verification worker",
		"workers", cfg.Vision.WorkerCount,
		"cpu_cores", runtime.NumCPU(),
	)
	if cfg.NATS.URL == "" || cfg.MinIO.Endpoint == "" {
		slog.Error("worker needs nats.url and minio.endpoint")
		os.Exit(1)
	}

	// The worker has nothing to do without models, so a load failure is fatal.
	readiness := vision.Load(cfg.Vision, cfg.Matching.DescriptorLength)
	if !readiness.Ready() {
		slog.Error("init vision provider", "error", readiness.Err())
		os.Exit(1)
	}
	defer vision.ShutdownONNXRuntime()
	defer readiness.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, err := storage.OpenRecordStore(ctx, cfg.Database)
	if err != nil {
		slog.Error("open record store", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	minioStore, err := storage.NewMinIOStore(cfg.MinIO)
	if err != nil {
		slog.Error("connect to minio", "error", err)
		os.Exit(1)
	}

	producer, err := queue.NewProducer(cfg.NATS.URL)
	if err != nil {
		slog.Error("connect to nats producer", "error", err)
		os.Exit(1)
	}
	defer producer.Close()

	if err := producer.EnsureStreams(ctx); err != nil {
		slog.Warn("ensure nats streams", "error", err)
	}

	svc := enroll.NewService(enroll.Options{
		Store:     store,
		Objects:   minioStore,
		Readiness: readiness,
		Matching:  cfg.Matching,
		Notifier:  producer,
	})

	slog.Info("verification service initialized", "threshold", svc.Threshold())

	consumer, err := queue.NewConsumer(cfg.NATS.URL)
	if err != nil {
		slog.Error("create consumer", "error", err)
		os.Exit(1)
	}
	defer consumer.Close()

	err = consumer.ConsumeCaptures(ctx, "verify-workers", func(ctx context.Context, msg jetstream.Msg) error {
		task, err := queue.DecodeCapture(msg.Data())
		if err != nil {
			slog.Error("bad capture task", "error", err)
			return nil // Don't retry malformed tasks
		}

		data, err := minioStore.GetObject(ctx, task.FrameRef)
		if err != nil {
			return fmt.Errorf("load frame %s: %w", task.FrameRef, err)
		}
		img, err := capture.Decode(data)
		if err != nil {
			slog.Error("decode frame", "task_id", task.ID, "error", err)
			return nil
		}

		if _, err := svc.Process(ctx, task, img); err != nil {
			return fmt.Errorf("process task %s: %w", task.ID, err)
		}
		return nil
	}, cfg.Vision.WorkerCount)
	if err != nil {
		slog.Error("start capture consumer", "error", err)
		os.Exit(1)
	}

	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(`{"status":"ok"}`))
		})
		slog.Info("worker metrics listening", "addr", *metricsAddr)
		if err := http.ListenAndServe(*metricsAddr, mux); err != nil {
			slog.Error("metrics server error", "error", err)
		}
	}()

	// Periodically report queue depth
	go func() {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				depth, err := producer.QueueDepth(ctx)
				if err == nil {
					observability.QueueDepth.Set(float64(depth))
				}
			}
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down worker...")
	cancel()
	time.Sleep(2 * time.Second)
	slog.Info("worker stopped")
}
