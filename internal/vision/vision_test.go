package vision

import (
	"context"
	"errors"
	"image"
	"image/color"
	"math"
	"testing"

	"github.com/your-org/facegate/internal/config"
)

func TestNMS(t *testing.T) {
	boxes := []faceBox{
		{X1: 0, Y1: 0, X2: 10, Y2: 10, Confidence: 0.7},
		{X1: 1, Y1: 1, X2: 11, Y2: 11, Confidence: 0.9},
		{X1: 50, Y1: 50, X2: 60, Y2: 60, Confidence: 0.6},
	}
	kept := nms(boxes, 0.4)
	if len(kept) != 2 {
		t.Fatalf("nms kept %d boxes, want 2", len(kept))
	}
	if kept[0].Confidence != 0.9 || kept[1].Confidence != 0.6 {
		t.Errorf("nms kept %+v", kept)
	}
}

func TestIOU(t *testing.T) {
	a := faceBox{X1: 0, Y1: 0, X2: 10, Y2: 10}
	tests := []struct {
		name string
		b    faceBox
		want float32
	}{
		{"identical", a, 1},
		{"disjoint", faceBox{X1: 20, Y1: 20, X2: 30, Y2: 30}, 0},
		{"half", faceBox{X1: 5, Y1: 0, X2: 15, Y2: 10}, 50.0 / 150.0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := iou(a, tt.b); math.Abs(float64(got-tt.want)) > 1e-6 {
				t.Errorf("iou = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestMostProminent(t *testing.T) {
	if _, ok := mostProminent(nil); ok {
		t.Fatal("expected no face for empty input")
	}
	best, ok := mostProminent([]faceBox{
		{X2: 10, Y2: 10, Confidence: 0.8},
		{X2: 40, Y2: 40, Confidence: 0.8},
		{X2: 5, Y2: 5, Confidence: 0.7},
	})
	if !ok || best.X2 != 40 {
		t.Errorf("mostProminent = %+v, want the larger of the equal-confidence boxes", best)
	}
}

func TestCropFace(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 100, 100))
	crop := cropFace(img, image.Rect(10, 10, 60, 60))
	if crop == nil {
		t.Fatal("cropFace returned nil")
	}
	if crop.Bounds().Dx() != 60 || crop.Bounds().Dy() != 60 {
		t.Errorf("crop size = %v, want 60x60 with padding", crop.Bounds())
	}
	if cropFace(img, image.Rect(200, 200, 300, 300)) != nil {
		t.Error("box outside the image should yield nil")
	}
}

func TestToCHW(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	for y := 0; y < 4; y++ {
		for x := 0; x < 4; x++ {
			img.Set(x, y, color.RGBA{R: 255, G: 0, B: 128, A: 255})
		}
	}
	data := toCHW(img, 2, 2, channelNorm{mean: 0, std: 1})
	if len(data) != 12 {
		t.Fatalf("len = %d, want 12", len(data))
	}
	near := func(got, want float32) bool { return math.Abs(float64(got-want)) <= 1 }
	if !near(data[0], 255) || !near(data[4], 0) || !near(data[8], 128) {
		t.Errorf("planes = R %v G %v B %v", data[0], data[4], data[8])
	}
}

func TestNormalize(t *testing.T) {
	v := []float32{3, 4}
	normalize(v)
	if math.Abs(float64(v[0])-0.6) > 1e-6 || math.Abs(float64(v[1])-0.8) > 1e-6 {
		t.Errorf("normalize = %v", v)
	}
	zero := []float32{0, 0}
	normalize(zero)
	if zero[0] != 0 {
		t.Error("zero vector must stay zero")
	}
}

type stubProvider struct{ closed bool }

func (s *stubProvider) DetectSingleFace(context.Context, image.Image) (*Face, error) {
	return nil, nil
}

func (s *stubProvider) Close() { s.closed = true }

func TestReadiness(t *testing.T) {
	r := Pending()
	if r.Ready() {
		t.Fatal("pending readiness must not be ready")
	}
	if _, err := r.Provider(); !errors.Is(err, ErrModelsNotReady) {
		t.Fatalf("Provider() error = %v", err)
	}

	loadErr := errors.New("model file missing")
	r.Set(nil, loadErr)
	_, err := r.Provider()
	if !errors.Is(err, ErrModelsNotReady) || !errors.Is(err, loadErr) {
		t.Fatalf("Provider() error = %v, want both sentinel and cause", err)
	}

	stub := &stubProvider{}
	r.Set(stub, nil)
	if !r.Ready() {
		t.Fatal("expected ready")
	}
	if p, err := r.Provider(); err != nil || p != stub {
		t.Fatalf("Provider() = %v, %v", p, err)
	}

	r.Close()
	if !stub.closed || r.Ready() {
		t.Error("Close must release the provider")
	}
}

func TestLoadUnknownProvider(t *testing.T) {
	r := NewReadiness(open(config.VisionConfig{Provider: "nope"}, 128))
	if r.Ready() {
		t.Fatal("unknown provider must not be ready")
	}
}
