package vision

import (
	"context"
	"errors"
	"image"
	"log/slog"
	"sync"

	"github.com/your-org/facegate/internal/biometric"
)

var (
	ErrNoFaceDetected = errors.New("no face detected")
	ErrModelsNotReady = errors.New("face models not ready")
)

// Face is the single most prominent face found in an image.
type Face struct {
	Descriptor biometric.Descriptor
	Box        image.Rectangle
	Confidence float32
}

// Provider turns an image into at most one face descriptor. A nil Face with
// a nil error means no face was found.
type Provider interface {
	DetectSingleFace(ctx context.Context, img image.Image) (*Face, error)
	Close()
}

// Readiness is the outcome of loading a Provider. Services hold it instead
// of consulting a global flag.
type Readiness struct {
	mu       sync.RWMutex
	provider Provider
	err      error
}

func NewReadiness(p Provider, err error) *Readiness {
	if p == nil && err == nil {
		err = ErrModelsNotReady
	}
	return &Readiness{provider: p, err: err}
}

// Pending returns a Readiness that is not ready until Set is called.
func Pending() *Readiness {
	return &Readiness{err: ErrModelsNotReady}
}

// Set records the result of a background load.
func (r *Readiness) Set(p Provider, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p == nil && err == nil {
		err = ErrModelsNotReady
	}
	r.provider, r.err = p, err
}

func (r *Readiness) Ready() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.provider != nil
}

// Provider returns the loaded provider, or an error wrapping
// ErrModelsNotReady.
func (r *Readiness) Provider() (Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.provider == nil {
		if r.err != nil && !errors.Is(r.err, ErrModelsNotReady) {
			return nil, errors.Join(ErrModelsNotReady, r.err)
		}
		return nil, ErrModelsNotReady
	}
	return r.provider, nil
}

// Err is the load error, if any.
func (r *Readiness) Err() error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.err
}

func (r *Readiness) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.provider != nil {
		r.provider.Close()
		r.provider = nil
		r.err = ErrModelsNotReady
	}
	slog.Debug("vision provider closed")
}
