package capture

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"hash/crc32"
	"image"
	"image/color"
	"image/png"
	"os/exec"
	"sync/atomic"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
)

func solid(w, h int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: 200, G: 120, B: 80, A: 255})
		}
	}
	return img
}

// lateSource becomes ready after a number of Ready polls.
type lateSource struct {
	polls   atomic.Int32
	readyAt int32
	img     image.Image
}

func (s *lateSource) Ready() bool { return s.polls.Add(1) >= s.readyAt }

func (s *lateSource) Dimensions() (int, int) {
	if s.polls.Load() < s.readyAt || s.img == nil {
		return 0, 0
	}
	return s.img.Bounds().Dx(), s.img.Bounds().Dy()
}

func (s *lateSource) CurrentFrame(ctx context.Context) (image.Image, error) {
	return s.img, nil
}

func TestStill(t *testing.T) {
	ctx := context.Background()

	Convey("Given no source", t, func() {
		_, err := Still(ctx, nil, StillOptions{})

		Convey("Then the camera is unavailable", func() {
			So(errors.Is(err, ErrCameraUnavailable), ShouldBeTrue)
		})
	})

	Convey("Given a source that becomes ready after a few polls", t, func() {
		src := &lateSource{readyAt: 3, img: solid(1280, 720)}

		Convey("When a still is taken with a target width", func() {
			img, err := Still(ctx, src, StillOptions{TargetWidth: 640, ReadyTimeout: time.Second})

			Convey("Then the frame is downscaled preserving aspect ratio", func() {
				So(err, ShouldBeNil)
				So(img.Bounds().Dx(), ShouldEqual, 640)
				So(img.Bounds().Dy(), ShouldEqual, 360)
			})
		})
	})

	Convey("Given a source that never reports dimensions", t, func() {
		src := &lateSource{readyAt: 1 << 30, img: solid(10, 10)}

		Convey("When the readiness wait times out", func() {
			start := time.Now()
			_, err := Still(ctx, src, StillOptions{ReadyTimeout: 120 * time.Millisecond})

			Convey("Then the capture fails with an empty frame after the wait", func() {
				So(errors.Is(err, ErrEmptyFrame), ShouldBeTrue)
				So(time.Since(start) >= 100*time.Millisecond, ShouldBeTrue)
			})
		})
	})

	Convey("Given a small static image", t, func() {
		src := NewImageSource(solid(320, 240))

		Convey("Then it is never upscaled", func() {
			img, err := Still(ctx, src, StillOptions{TargetWidth: 480})
			So(err, ShouldBeNil)
			So(img.Bounds().Dx(), ShouldEqual, 320)
		})

		Convey("Then a zero target width keeps the native size", func() {
			img, err := Still(ctx, src, StillOptions{})
			So(err, ShouldBeNil)
			So(img.Bounds().Dx(), ShouldEqual, 320)
			So(img.Bounds().Dy(), ShouldEqual, 240)
		})
	})

	Convey("Given an image source without an image", t, func() {
		_, err := Still(ctx, NewImageSource(nil), StillOptions{ReadyTimeout: 60 * time.Millisecond})

		Convey("Then the frame is empty", func() {
			So(errors.Is(err, ErrEmptyFrame), ShouldBeTrue)
		})
	})
}

func TestThumbnail(t *testing.T) {
	Convey("Given a frame and a face box", t, func() {
		img := solid(640, 480)

		Convey("When a thumbnail is made", func() {
			data, err := Thumbnail(img, image.Rect(600, 400, 700, 520), 128, 75)

			Convey("Then it is a square JPEG of the requested size", func() {
				So(err, ShouldBeNil)
				thumb, err := Decode(data)
				So(err, ShouldBeNil)
				So(thumb.Bounds().Dx(), ShouldEqual, 128)
				So(thumb.Bounds().Dy(), ShouldEqual, 128)
			})
		})

		Convey("When the box is empty", func() {
			data, err := Thumbnail(img, image.Rectangle{}, 64, 75)

			Convey("Then the center is used", func() {
				So(err, ShouldBeNil)
				So(len(data), ShouldBeGreaterThan, 0)
			})
		})
	})

	Convey("Given a box at the frame edge", t, func() {
		r := squareAround(image.Rect(600, 400, 640, 480), image.Rect(0, 0, 640, 480))

		Convey("Then the square stays inside the frame", func() {
			So(r.In(image.Rect(0, 0, 640, 480)), ShouldBeTrue)
			So(r.Dx(), ShouldEqual, r.Dy())
			So(r.Dx(), ShouldEqual, 80)
		})
	})
}

func TestReadJPEGFrames(t *testing.T) {
	Convey("Given a concatenated MJPEG stream", t, func() {
		a, err := EncodeJPEG(solid(16, 8), 80)
		So(err, ShouldBeNil)
		b, err := EncodeJPEG(solid(8, 16), 80)
		So(err, ShouldBeNil)
		stream := bytes.NewReader(append(append([]byte{0x00, 0x01}, a...), b...))

		buf := &frameBuffer{}
		var frames int
		err = readJPEGFrames(context.Background(), stream, func(data []byte) error {
			frames++
			return buf.store(data)
		})

		Convey("Then each frame is split out and the latest one kept", func() {
			So(err, ShouldBeNil)
			So(frames, ShouldEqual, 2)
			w, h := buf.Dimensions()
			So(w, ShouldEqual, 8)
			So(h, ShouldEqual, 16)
			So(buf.Ready(), ShouldBeTrue)

			img, err := buf.CurrentFrame(context.Background())
			So(err, ShouldBeNil)
			So(img.Bounds().Dx(), ShouldEqual, 8)
		})
	})

	Convey("Given a stream with no frames", t, func() {
		err := readJPEGFrames(context.Background(), bytes.NewReader([]byte{1, 2, 3}), func([]byte) error { return nil })

		Convey("Then an error is returned", func() {
			So(err, ShouldNotBeNil)
		})
	})
}

func TestFFmpegCameraWithoutDevice(t *testing.T) {
	Convey("Given a camera with no device configured", t, func() {
		cam := &FFmpegCamera{}
		_, err := cam.Start(context.Background())

		Convey("Then it is unavailable", func() {
			So(errors.Is(err, ErrCameraUnavailable), ShouldBeTrue)
			So(cam.Stop(), ShouldBeNil)
		})
	})
}

func TestFFmpegCameraRestartsAfterExit(t *testing.T) {
	bin, err := exec.LookPath("true")
	if err != nil {
		t.Skip("no true binary on PATH")
	}

	Convey("Given a camera whose process exits on its own", t, func() {
		cam := &FFmpegCamera{Binary: bin, Device: "/dev/video9"}
		first, err := cam.Start(context.Background())
		So(err, ShouldBeNil)

		deadline := time.Now().Add(2 * time.Second)
		for cam.Running() && time.Now().Before(deadline) {
			time.Sleep(10 * time.Millisecond)
		}

		Convey("Then it is no longer running", func() {
			So(cam.Running(), ShouldBeFalse)
			So(first.Ready(), ShouldBeFalse)
		})

		Convey("Then Start launches a fresh process", func() {
			second, err := cam.Start(context.Background())
			So(err, ShouldBeNil)
			So(second, ShouldNotPointTo, first)
			So(cam.Stop(), ShouldBeNil)
		})
	})
}

// pngHeader is a PNG that declares w x h grayscale pixels but carries no
// image data, enough for DecodeConfig.
func pngHeader(w, h uint32) []byte {
	var buf bytes.Buffer
	buf.WriteString("\x89PNG\r\n\x1a\n")

	ihdr := make([]byte, 13)
	binary.BigEndian.PutUint32(ihdr[0:], w)
	binary.BigEndian.PutUint32(ihdr[4:], h)
	ihdr[8] = 8 // bit depth; color type, compression, filter, interlace stay 0

	chunk := append([]byte("IHDR"), ihdr...)
	_ = binary.Write(&buf, binary.BigEndian, uint32(len(ihdr)))
	buf.Write(chunk)
	_ = binary.Write(&buf, binary.BigEndian, crc32.ChecksumIEEE(chunk))
	return buf.Bytes()
}

func TestDecode(t *testing.T) {
	Convey("Given an encoded PNG within the pixel budget", t, func() {
		var buf bytes.Buffer
		So(png.Encode(&buf, solid(40, 30)), ShouldBeNil)

		Convey("Then it decodes at its own size", func() {
			img, err := Decode(buf.Bytes())
			So(err, ShouldBeNil)
			So(img.Bounds().Dx(), ShouldEqual, 40)
			So(img.Bounds().Dy(), ShouldEqual, 30)
		})
	})

	Convey("Given a small upload declaring 16000x16000 pixels", t, func() {
		data := pngHeader(16000, 16000)

		Convey("Then it is rejected before any pixels are allocated", func() {
			_, err := Decode(data)
			So(errors.Is(err, ErrImageTooLarge), ShouldBeTrue)
		})
	})

	Convey("Given an image exactly at the budget", t, func() {
		data := pngHeader(8000, 5000)

		Convey("Then the size check lets it through to decoding", func() {
			_, err := Decode(data)
			So(errors.Is(err, ErrImageTooLarge), ShouldBeFalse)
			So(err, ShouldNotBeNil) // the header carries no pixel data
		})
	})

	Convey("Given no data", t, func() {
		_, err := Decode(nil)
		So(errors.Is(err, ErrEmptyFrame), ShouldBeTrue)
	})
}
