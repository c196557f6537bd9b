package capture

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"log/slog"
	"os/exec"
	"strconv"
	"strings"
	"sync"
)

const maxFrameBytes = 10 * 1024 * 1024

// FFmpegCamera reads a local device or network stream through ffmpeg and
// keeps the most recent frame.
type FFmpegCamera struct {
	Binary      string // defaults to "ffmpeg"
	Device      string // /dev/video0, rtsp://..., http://...
	InputFormat string // e.g. v4l2, avfoundation; empty lets ffmpeg probe
	FPS         int

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
	latest *frameBuffer
}

// Start launches ffmpeg. It returns immediately; the returned Source turns
// ready once the first frame has been decoded.
func (c *FFmpegCamera) Start(ctx context.Context) (Source, error) {
	if c.Device == "" {
		return nil, ErrCameraUnavailable
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil {
		return c.latest, nil
	}

	bin := c.Binary
	if bin == "" {
		bin = "ffmpeg"
	}
	if _, err := exec.LookPath(bin); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCameraUnavailable, err)
	}

	ctx, cancel := context.WithCancel(ctx)
	cmd := exec.CommandContext(ctx, bin, c.args()...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("ffmpeg stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("ffmpeg stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		cancel()
		return nil, fmt.Errorf("%w: start ffmpeg: %v", ErrCameraUnavailable, err)
	}

	go func() {
		scanner := bufio.NewScanner(stderr)
		for scanner.Scan() {
			slog.Warn("ffmpeg stderr", "device", c.Device, "output", scanner.Text())
		}
	}()

	buf := &frameBuffer{}
	done := make(chan struct{})
	go func() {
		defer close(done)
		err := readJPEGFrames(ctx, stdout, buf.store)
		if err != nil && ctx.Err() == nil {
			slog.Error("camera stream ended", "device", c.Device, "error", err)
		}
		_ = cmd.Wait()

		// Clear state so the next Start relaunches ffmpeg.
		c.mu.Lock()
		if c.done == done {
			c.cancel, c.done = nil, nil
		}
		c.mu.Unlock()
		cancel()
	}()

	c.cancel = cancel
	c.done = done
	c.latest = buf
	slog.Info("camera started", "device", c.Device, "fps", c.FPS)
	return buf, nil
}

func (c *FFmpegCamera) args() []string {
	args := []string{"-hide_banner", "-loglevel", "warning"}

	switch {
	case strings.HasPrefix(c.Device, "rtsp://"), strings.HasPrefix(c.Device, "rtsps://"):
		args = append(args, "-rtsp_transport", "tcp", "-timeout", "5000000")
	case strings.HasPrefix(c.Device, "http://"), strings.HasPrefix(c.Device, "https://"):
		args = append(args, "-reconnect", "1", "-reconnect_streamed", "1", "-reconnect_delay_max", "5")
	}
	if c.InputFormat != "" {
		args = append(args, "-f", c.InputFormat)
	}

	fps := c.FPS
	if fps <= 0 {
		fps = 5
	}
	return append(args,
		"-i", c.Device,
		"-vf", "fps="+strconv.Itoa(fps),
		"-f", "image2pipe",
		"-vcodec", "mjpeg",
		"-q:v", "3",
		"pipe:1",
	)
}

// Running reports whether an ffmpeg process is attached.
func (c *FFmpegCamera) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cancel != nil
}

// Stop terminates ffmpeg and waits for the reader to exit.
func (c *FFmpegCamera) Stop() error {
	c.mu.Lock()
	cancel, done := c.cancel, c.done
	c.cancel, c.done = nil, nil
	c.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()
	<-done
	slog.Info("camera stopped", "device", c.Device)
	return nil
}

// frameBuffer holds the last JPEG frame and decodes it lazily.
type frameBuffer struct {
	mu            sync.RWMutex
	jpeg          []byte
	width, height int
}

func (f *frameBuffer) store(data []byte) error {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("decode frame header: %w", err)
	}
	f.mu.Lock()
	f.jpeg = data
	f.width, f.height = cfg.Width, cfg.Height
	f.mu.Unlock()
	return nil
}

func (f *frameBuffer) Ready() bool {
	w, h := f.Dimensions()
	return w > 0 && h > 0
}

func (f *frameBuffer) Dimensions() (int, int) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.width, f.height
}

func (f *frameBuffer) CurrentFrame(ctx context.Context) (image.Image, error) {
	f.mu.RLock()
	data := f.jpeg
	f.mu.RUnlock()
	if len(data) == 0 {
		return nil, ErrEmptyFrame
	}
	return Decode(data)
}

// readJPEGFrames splits a concatenated MJPEG stream into frames.
func readJPEGFrames(ctx context.Context, r io.Reader, callback func([]byte) error) error {
	reader := bufio.NewReaderSize(r, 512*1024)
	framesRead := 0

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		if err := findJPEGStart(reader); err != nil {
			if errors.Is(err, io.EOF) {
				if framesRead > 0 {
					return nil
				}
				return errors.New("no frames received from ffmpeg")
			}
			return err
		}

		frame, err := readUntilJPEGEnd(reader)
		if err != nil {
			if errors.Is(err, io.EOF) && framesRead > 0 {
				return nil
			}
			return err
		}

		framesRead++
		if err := callback(frame); err != nil {
			slog.Warn("frame callback error", "error", err)
		}
	}
}

func findJPEGStart(r *bufio.Reader) error {
	for {
		b, err := r.ReadByte()
		if err != nil {
			return err
		}
		if b != 0xFF {
			continue
		}
		b, err = r.ReadByte()
		if err != nil {
			return err
		}
		if b == 0xD8 {
			return nil
		}
	}
}

func readUntilJPEGEnd(r *bufio.Reader) ([]byte, error) {
	data := []byte{0xFF, 0xD8}
	for {
		b, err := r.ReadByte()
		if err != nil {
			return nil, err
		}
		data = append(data, b)

		if b == 0xFF {
			next, err := r.ReadByte()
			if err != nil {
				return nil, err
			}
			data = append(data, next)
			if next == 0xD9 {
				return data, nil
			}
		}

		if len(data) > maxFrameBytes {
			return nil, fmt.Errorf("jpeg frame too large: %d bytes", len(data))
		}
	}
}
