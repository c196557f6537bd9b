package cli

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"os"

	"github.com/your-org/facegate/internal/capture"
	"github.com/your-org/facegate/internal/config"
	"github.com/your-org/facegate/internal/enroll"
	"github.com/your-org/facegate/internal/observability"
	"github.com/your-org/facegate/internal/storage"
	"github.com/your-org/facegate/internal/vision"
)

// app is the set of collaborators one command run needs.
type app struct {
	cfg       *config.Config
	store     storage.RecordStore
	objects   storage.ObjectStore
	readiness *vision.Readiness
	svc       *enroll.Service
	session   string
}

// openApp loads config and connects the record store. Face models are only
// loaded when withModels is set, since listing and deleting do not need them.
func openApp(ctx context.Context, withModels bool) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	// Logs go to stderr so stdout stays clean for results.
	observability.SetupLogger(cfg.Logging.Level, "text")

	store, err := storage.OpenRecordStore(ctx, cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("open record store: %w", err)
	}

	a := &app{
		cfg:     cfg,
		store:   store,
		session: fmt.Sprintf("facectl-%d", os.Getpid()),
	}

	if cfg.MinIO.Endpoint != "" {
		minioStore, err := storage.NewMinIOStore(cfg.MinIO)
		if err != nil {
			store.Close()
			return nil, fmt.Errorf("connect to minio: %w", err)
		}
		a.objects = minioStore
	}

	if withModels {
		a.readiness = vision.Load(cfg.Vision, cfg.Matching.DescriptorLength)
		if !a.readiness.Ready() {
			a.close()
			return nil, fmt.Errorf("load face models: %w", a.readiness.Err())
		}
	} else {
		a.readiness = vision.Pending()
	}

	a.svc = enroll.NewService(enroll.Options{
		Store:     store,
		Objects:   a.objects,
		Readiness: a.readiness,
		Matching:  cfg.Matching,
	})
	return a, nil
}

func (a *app) close() {
	if a.readiness != nil && a.readiness.Ready() {
		a.readiness.Close()
		vision.ShutdownONNXRuntime()
	}
	a.store.Close()
}

// loadImage reads path, or grabs a still from the configured camera when
// path is empty.
func (a *app) loadImage(ctx context.Context, path string) (image.Image, error) {
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read image: %w", err)
		}
		return capture.Decode(data)
	}

	cam := capture.NewCamera(a.cfg.Camera)
	src, err := cam.Start(ctx)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := cam.Stop(); err != nil {
			slog.Debug("stop camera", "error", err)
		}
	}()
	return capture.Still(ctx, src, capture.StillOptions{ReadyTimeout: a.cfg.Matching.ReadyTimeout})
}
