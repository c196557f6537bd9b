package capture

import (
	"context"
	"errors"
	"fmt"
	"image"
	"time"

	"golang.org/x/image/draw"
)

var (
	ErrCameraUnavailable = errors.New("camera unavailable")
	ErrEmptyFrame        = errors.New("empty frame")
	ErrImageTooLarge     = errors.New("image too large")
)

// DefaultReadyTimeout bounds how long Still waits for a source to report
// usable dimensions.
const DefaultReadyTimeout = 5 * time.Second

const readyPollInterval = 50 * time.Millisecond

// Source is a running video feed.
type Source interface {
	// Ready reports whether a frame with known dimensions is available.
	Ready() bool
	Dimensions() (width, height int)
	CurrentFrame(ctx context.Context) (image.Image, error)
}

// Camera opens a Source. Stop releases the device.
type Camera interface {
	Start(ctx context.Context) (Source, error)
	Stop() error
}

// WaitReady polls src until it is ready or timeout elapses. It never fails:
// callers check the dimensions afterwards.
func WaitReady(ctx context.Context, src Source, timeout time.Duration) {
	if src.Ready() {
		return
	}
	if timeout <= 0 {
		timeout = DefaultReadyTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(readyPollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if src.Ready() {
				return
			}
		}
	}
}

type StillOptions struct {
	// TargetWidth downscales the frame to this width keeping the aspect
	// ratio. Zero keeps the native size; frames are never upscaled.
	TargetWidth  int
	ReadyTimeout time.Duration
}

// Still grabs the current frame of src. It does not start or stop the feed.
func Still(ctx context.Context, src Source, opts StillOptions) (image.Image, error) {
	if src == nil {
		return nil, ErrCameraUnavailable
	}

	WaitReady(ctx, src, opts.ReadyTimeout)

	w, h := src.Dimensions()
	if w <= 0 || h <= 0 {
		return nil, ErrEmptyFrame
	}

	frame, err := src.CurrentFrame(ctx)
	if err != nil {
		return nil, fmt.Errorf("read frame: %w", err)
	}
	if frame == nil || frame.Bounds().Empty() {
		return nil, ErrEmptyFrame
	}

	return Downscale(frame, opts.TargetWidth), nil
}

// Downscale resizes img to width, preserving aspect ratio. Images already
// at or below width are returned unchanged.
func Downscale(img image.Image, width int) image.Image {
	b := img.Bounds()
	if width <= 0 || b.Dx() <= width {
		return img
	}
	height := b.Dy() * width / b.Dx()
	if height < 1 {
		height = 1
	}
	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, b, draw.Over, nil)
	return dst
}
