package station

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/your-org/facegate/internal/capture"
	"github.com/your-org/facegate/internal/models"
	"github.com/your-org/facegate/internal/observability"
	"github.com/your-org/facegate/internal/storage"
)

const captureQuality = 90

// Publisher queues capture tasks for the workers.
type Publisher interface {
	PublishCapture(ctx context.Context, task models.CaptureTask) error
}

// Station owns one camera and turns control commands into capture tasks.
type Station struct {
	id        string
	camera    capture.Camera
	objects   storage.ObjectStore
	publisher Publisher
	still     capture.StillOptions

	// mu serializes commands for this station.
	mu sync.Mutex

	srcMu  sync.RWMutex
	source capture.Source

	now func() time.Time
}

func New(id string, camera capture.Camera, objects storage.ObjectStore, publisher Publisher, still capture.StillOptions) *Station {
	return &Station{
		id:        id,
		camera:    camera,
		objects:   objects,
		publisher: publisher,
		still:     still,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func (s *Station) ID() string { return s.id }

// Start opens the camera, retrying with backoff (2s, 4s, 8s).
func (s *Station) Start(ctx context.Context) error {
	const maxRetries = 3

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			delay := time.Duration(1<<uint(attempt)) * time.Second
			slog.Warn("retrying camera start", "station", s.id, "attempt", attempt, "delay", delay, "error", lastErr)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}

		src, err := s.camera.Start(ctx)
		if err == nil {
			s.srcMu.Lock()
			s.source = src
			s.srcMu.Unlock()
			slog.Info("camera started", "station", s.id)
			return nil
		}
		lastErr = err
	}
	return fmt.Errorf("start camera after %d attempts: %w", maxRetries+1, lastErr)
}

// Stop releases the camera.
func (s *Station) Stop() error {
	s.srcMu.Lock()
	s.source = nil
	s.srcMu.Unlock()
	return s.camera.Stop()
}

// Handle captures a still for cmd, stores it and queues the task.
func (s *Station) Handle(ctx context.Context, cmd models.StationCommand) (*models.CaptureTask, error) {
	switch cmd.Kind {
	case models.TaskVerify:
		if cmd.Identity == "" {
			return nil, fmt.Errorf("verify command without identity")
		}
	case models.TaskIdentify:
	default:
		return nil, fmt.Errorf("unknown command %q", cmd.Kind)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	task, err := s.capture(ctx, cmd)
	result := "ok"
	if err != nil {
		result = "error"
	}
	observability.CapturesTaken.WithLabelValues(s.id, result).Inc()
	return task, err
}

func (s *Station) capture(ctx context.Context, cmd models.StationCommand) (*models.CaptureTask, error) {
	s.srcMu.RLock()
	src := s.source
	s.srcMu.RUnlock()

	frame, err := capture.Still(ctx, src, s.still)
	if err != nil {
		return nil, err
	}
	data, err := capture.EncodeJPEG(frame, captureQuality)
	if err != nil {
		return nil, err
	}

	now := s.now()
	task := models.CaptureTask{
		ID:         uuid.New(),
		StationID:  s.id,
		Kind:       cmd.Kind,
		Identity:   cmd.Identity,
		Width:      frame.Bounds().Dx(),
		Height:     frame.Bounds().Dy(),
		CapturedAt: now,
	}
	task.FrameRef = storage.CaptureKey(s.id, CaptureName(now, task.ID))

	if err := s.objects.PutObject(ctx, task.FrameRef, data, "image/jpeg"); err != nil {
		return nil, fmt.Errorf("upload capture: %w", err)
	}
	if err := s.publisher.PublishCapture(ctx, task); err != nil {
		return nil, err
	}

	slog.Info("capture queued",
		"station", s.id,
		"task_id", task.ID,
		"kind", task.Kind,
		"identity", task.Identity,
		"size", image.Pt(task.Width, task.Height).String(),
	)
	return &task, nil
}

// CaptureName orders captures by time when listed lexically.
func CaptureName(t time.Time, id uuid.UUID) string {
	return t.UTC().Format("20060102T150405.000000000") + "-" + id.String()
}

// Prune keeps the newest retention captures of this station and deletes the
// rest. It returns the number of objects deleted.
func (s *Station) Prune(ctx context.Context, store storage.PrunableStore, retention int) (int, error) {
	if retention <= 0 {
		return 0, nil
	}
	keys, err := store.ListObjects(ctx, storage.CapturePrefix(s.id))
	if err != nil {
		return 0, fmt.Errorf("list captures: %w", err)
	}
	if len(keys) <= retention {
		return 0, nil
	}
	toDelete := keys[:len(keys)-retention]
	if err := store.DeleteObjects(ctx, toDelete); err != nil {
		return 0, fmt.Errorf("delete captures: %w", err)
	}
	slog.Info("cleanup: deleted old captures", "station", s.id, "deleted", len(toDelete), "remaining", retention)
	return len(toDelete), nil
}
