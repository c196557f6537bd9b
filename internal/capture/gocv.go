//go:build gocv

package capture

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"strconv"
	"sync"

	"gocv.io/x/gocv"
)

// GoCVCamera captures directly from an OpenCV device. Build with -tags gocv.
type GoCVCamera struct {
	Device string // device index ("0") or a file/stream path

	mu sync.Mutex
	vc *gocv.VideoCapture
}

func (c *GoCVCamera) Start(ctx context.Context) (Source, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.vc != nil {
		return &gocvSource{cam: c}, nil
	}

	var device interface{} = c.Device
	if idx, err := strconv.Atoi(c.Device); err == nil {
		device = idx
	}
	vc, err := gocv.OpenVideoCapture(device)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCameraUnavailable, err)
	}
	if !vc.IsOpened() {
		_ = vc.Close()
		return nil, ErrCameraUnavailable
	}
	c.vc = vc
	slog.Info("camera started", "device", c.Device, "backend", "gocv")
	return &gocvSource{cam: c}, nil
}

func (c *GoCVCamera) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.vc == nil {
		return nil
	}
	err := c.vc.Close()
	c.vc = nil
	return err
}

type gocvSource struct {
	cam *GoCVCamera
}

func (s *gocvSource) Ready() bool {
	w, h := s.Dimensions()
	return w > 0 && h > 0
}

func (s *gocvSource) Dimensions() (int, int) {
	s.cam.mu.Lock()
	defer s.cam.mu.Unlock()
	if s.cam.vc == nil {
		return 0, 0
	}
	return int(s.cam.vc.Get(gocv.VideoCaptureFrameWidth)), int(s.cam.vc.Get(gocv.VideoCaptureFrameHeight))
}

func (s *gocvSource) CurrentFrame(ctx context.Context) (image.Image, error) {
	s.cam.mu.Lock()
	defer s.cam.mu.Unlock()
	if s.cam.vc == nil {
		return nil, ErrCameraUnavailable
	}

	mat := gocv.NewMat()
	defer mat.Close()
	if ok := s.cam.vc.Read(&mat); !ok || mat.Empty() {
		return nil, ErrEmptyFrame
	}
	img, err := mat.ToImage()
	if err != nil {
		return nil, fmt.Errorf("convert frame: %w", err)
	}
	return img, nil
}
