package vision

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/your-org/facegate/internal/config"
	"github.com/your-org/facegate/internal/observability"
)

// ONNXProvider chains the RetinaFace detector and a recognition model.
// Sessions share tensors, so calls are serialized.
type ONNXProvider struct {
	mu       sync.Mutex
	detector *Detector
	embedder *Embedder
}

func NewONNXProvider(cfg config.VisionConfig, descriptorLen int) (*ONNXProvider, error) {
	detPath := filepath.Join(cfg.ModelsDir, cfg.DetectorModel)
	embPath := filepath.Join(cfg.ModelsDir, cfg.EmbedderModel)

	slog.Info("loading detection model", "path", detPath)
	det, err := NewDetector(detPath, float32(cfg.DetectionThreshold), nil)
	if err != nil {
		return nil, fmt.Errorf("load detector: %w", err)
	}

	slog.Info("loading embedding model", "path", embPath, "dim", descriptorLen)
	emb, err := NewEmbedder(EmbedderSpec{
		ModelPath:  embPath,
		InputName:  cfg.EmbedderInput,
		OutputName: cfg.EmbedderOutput,
		Dim:        descriptorLen,
	}, nil)
	if err != nil {
		det.Close()
		return nil, fmt.Errorf("load embedder: %w", err)
	}

	return &ONNXProvider{detector: det, embedder: emb}, nil
}

// DetectSingleFace picks the highest-confidence face, breaking ties by area.
func (p *ONNXProvider) DetectSingleFace(ctx context.Context, img image.Image) (*Face, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	start := time.Now()
	boxes, err := p.detector.Detect(img)
	if err != nil {
		return nil, fmt.Errorf("detect: %w", err)
	}
	observability.InferenceDuration.WithLabelValues("detect").Observe(time.Since(start).Seconds())

	best, ok := mostProminent(boxes)
	if !ok {
		return nil, nil
	}

	crop := cropFace(img, best.rect().Add(img.Bounds().Min))
	if crop == nil {
		return nil, nil
	}

	start = time.Now()
	desc, err := p.embedder.Extract(crop)
	if err != nil {
		return nil, fmt.Errorf("embed: %w", err)
	}
	observability.InferenceDuration.WithLabelValues("embed").Observe(time.Since(start).Seconds())

	return &Face{
		Descriptor: desc,
		Box:        best.rect().Add(img.Bounds().Min),
		Confidence: best.Confidence,
	}, nil
}

func mostProminent(boxes []faceBox) (faceBox, bool) {
	if len(boxes) == 0 {
		return faceBox{}, false
	}
	best := boxes[0]
	for _, b := range boxes[1:] {
		if b.Confidence > best.Confidence || (b.Confidence == best.Confidence && b.area() > best.area()) {
			best = b
		}
	}
	return best, true
}

func (p *ONNXProvider) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.detector.Close()
	p.embedder.Close()
}

// ONNXLibPath returns the configured runtime library or the platform default.
func ONNXLibPath(configured string) string {
	if configured != "" {
		return configured
	}
	switch runtime.GOOS {
	case "windows":
		return "onnxruntime.dll"
	case "darwin":
		return "libonnxruntime.dylib"
	default:
		return "libonnxruntime.so"
	}
}

var ortOnce sync.Once
var ortErr error

func initONNXRuntime(libPath string) error {
	ortOnce.Do(func() {
		ort.SetSharedLibraryPath(libPath)
		ortErr = ort.InitializeEnvironment()
	})
	return ortErr
}

// ShutdownONNXRuntime releases the global runtime environment.
func ShutdownONNXRuntime() {
	if ort.IsInitialized() {
		_ = ort.DestroyEnvironment()
	}
}
