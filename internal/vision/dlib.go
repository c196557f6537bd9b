//go:build dlib

package vision

import (
	"context"
	"fmt"
	"image"
	"sync"

	face "github.com/Kagami/go-face"

	"github.com/your-org/facegate/internal/biometric"
	"github.com/your-org/facegate/internal/capture"
)

// dlibDescriptorLength is fixed by the dlib ResNet model.
const dlibDescriptorLength = 128

// DlibProvider wraps the dlib face recognizer. Build with -tags dlib.
type DlibProvider struct {
	mu  sync.Mutex
	rec *face.Recognizer
}

func newDlibProvider(modelsDir string, descriptorLen int) (Provider, error) {
	if descriptorLen != dlibDescriptorLength {
		return nil, fmt.Errorf("%w: dlib produces %d values, configured %d",
			biometric.ErrDescriptorLengthMismatch, dlibDescriptorLength, descriptorLen)
	}
	rec, err := face.NewRecognizer(modelsDir)
	if err != nil {
		return nil, fmt.Errorf("load dlib recognizer: %w", err)
	}
	return &DlibProvider{rec: rec}, nil
}

func (p *DlibProvider) DetectSingleFace(ctx context.Context, img image.Image) (*Face, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := capture.EncodeJPEG(img, 95)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	faces, err := p.rec.Recognize(data)
	p.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("recognize: %w", err)
	}
	if len(faces) == 0 {
		return nil, nil
	}

	best := faces[0]
	for _, f := range faces[1:] {
		if f.Rectangle.Dx()*f.Rectangle.Dy() > best.Rectangle.Dx()*best.Rectangle.Dy() {
			best = f
		}
	}

	desc := make(biometric.Descriptor, len(best.Descriptor))
	copy(desc, best.Descriptor[:])
	return &Face{
		Descriptor: desc,
		Box:        best.Rectangle.Add(img.Bounds().Min),
		Confidence: 1,
	}, nil
}

func (p *DlibProvider) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.rec.Close()
}
