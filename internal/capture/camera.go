package capture

import "github.com/your-org/facegate/internal/config"

// NewCamera builds the default ffmpeg-backed camera from config.
func NewCamera(cfg config.CameraConfig) Camera {
	return &FFmpegCamera{
		Binary:      cfg.FFmpegPath,
		Device:      cfg.Device,
		InputFormat: cfg.InputFormat,
		FPS:         cfg.FPS,
	}
}
