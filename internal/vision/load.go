package vision

import (
	"fmt"
	"log/slog"

	"github.com/your-org/facegate/internal/config"
)

// Load builds the configured provider. Failure is reported through the
// returned Readiness rather than aborting, so callers can still serve
// requests that do not need face models.
func Load(cfg config.VisionConfig, descriptorLen int) *Readiness {
	p, err := open(cfg, descriptorLen)
	if err != nil {
		slog.Warn("face models unavailable", "provider", cfg.Provider, "error", err)
		return NewReadiness(nil, err)
	}
	slog.Info("face models ready", "provider", cfg.Provider, "descriptor_length", descriptorLen)
	return NewReadiness(p, nil)
}

func open(cfg config.VisionConfig, descriptorLen int) (Provider, error) {
	switch cfg.Provider {
	case "onnx":
		if err := initONNXRuntime(ONNXLibPath(cfg.ONNXLibPath)); err != nil {
			return nil, fmt.Errorf("init onnx runtime: %w", err)
		}
		return NewONNXProvider(cfg, descriptorLen)
	case "dlib":
		return newDlibProvider(cfg.ModelsDir, descriptorLen)
	default:
		return nil, fmt.Errorf("unknown vision provider %q", cfg.Provider)
	}
}
