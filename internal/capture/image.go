package capture

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

// MaxPixels bounds the decoded size of an image. Compressed size says
// little about it, so Decode checks the declared dimensions first.
const MaxPixels = 40_000_000

// Decode decodes a JPEG, PNG, BMP or WebP image of at most MaxPixels.
func Decode(data []byte) (image.Image, error) {
	if len(data) == 0 {
		return nil, ErrEmptyFrame
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, ErrEmptyFrame
	}
	if int64(cfg.Width)*int64(cfg.Height) > MaxPixels {
		return nil, fmt.Errorf("%w: %dx%d exceeds %d pixels", ErrImageTooLarge, cfg.Width, cfg.Height, MaxPixels)
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	return img, nil
}

func EncodeJPEG(img image.Image, quality int) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}

// Thumbnail crops the square region around box, scales it to size x size and
// encodes it as JPEG. An empty box crops the center of img.
func Thumbnail(img image.Image, box image.Rectangle, size, quality int) ([]byte, error) {
	b := img.Bounds()
	if b.Empty() {
		return nil, ErrEmptyFrame
	}

	region := squareAround(box.Intersect(b), b)
	dst := image.NewRGBA(image.Rect(0, 0, size, size))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, region, draw.Src, nil)
	return EncodeJPEG(dst, quality)
}

// squareAround expands box to a square clamped to bounds.
func squareAround(box, bounds image.Rectangle) image.Rectangle {
	if box.Empty() {
		side := min(bounds.Dx(), bounds.Dy())
		c := image.Pt(bounds.Min.X+bounds.Dx()/2, bounds.Min.Y+bounds.Dy()/2)
		box = image.Rect(c.X-side/2, c.Y-side/2, c.X-side/2+side, c.Y-side/2+side)
		return box.Intersect(bounds)
	}
	side := max(box.Dx(), box.Dy())
	side = min(side, bounds.Dx(), bounds.Dy())
	c := image.Pt(box.Min.X+box.Dx()/2, box.Min.Y+box.Dy()/2)
	x0 := clamp(c.X-side/2, bounds.Min.X, bounds.Max.X-side)
	y0 := clamp(c.Y-side/2, bounds.Min.Y, bounds.Max.Y-side)
	return image.Rect(x0, y0, x0+side, y0+side)
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// ImageSource serves a fixed image, e.g. an uploaded photo.
type ImageSource struct {
	img image.Image
}

func NewImageSource(img image.Image) *ImageSource {
	return &ImageSource{img: img}
}

func (s *ImageSource) Ready() bool {
	return s.img != nil && !s.img.Bounds().Empty()
}

func (s *ImageSource) Dimensions() (int, int) {
	if s.img == nil {
		return 0, 0
	}
	return s.img.Bounds().Dx(), s.img.Bounds().Dy()
}

func (s *ImageSource) CurrentFrame(ctx context.Context) (image.Image, error) {
	if s.img == nil {
		return nil, ErrEmptyFrame
	}
	return s.img, nil
}
