package vision

import (
	"fmt"
	"image"
	"math"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/your-org/facegate/internal/biometric"
)

// EmbedderSpec describes a recognition model with a 112x112 RGB input.
type EmbedderSpec struct {
	ModelPath  string
	InputName  string
	OutputName string
	Dim        int
}

// Embedder produces L2-normalized face descriptors.
type Embedder struct {
	session      *ort.AdvancedSession
	inputTensor  *ort.Tensor[float32]
	outputTensor *ort.Tensor[float32]
	inputW       int
	inputH       int
	dim          int
}

func NewEmbedder(spec EmbedderSpec, opts *ort.SessionOptions) (*Embedder, error) {
	inputW, inputH := 112, 112

	inputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(1, 3, int64(inputH), int64(inputW)))
	if err != nil {
		return nil, fmt.Errorf("create input tensor: %w", err)
	}
	outputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(1, int64(spec.Dim)))
	if err != nil {
		inputTensor.Destroy()
		return nil, fmt.Errorf("create output tensor: %w", err)
	}

	session, err := ort.NewAdvancedSession(spec.ModelPath,
		[]string{spec.InputName}, []string{spec.OutputName},
		[]ort.Value{inputTensor}, []ort.Value{outputTensor},
		opts,
	)
	if err != nil {
		inputTensor.Destroy()
		outputTensor.Destroy()
		return nil, fmt.Errorf("create embedder session: %w", err)
	}

	return &Embedder{
		session:      session,
		inputTensor:  inputTensor,
		outputTensor: outputTensor,
		inputW:       inputW,
		inputH:       inputH,
		dim:          spec.Dim,
	}, nil
}

// Extract runs the model on an aligned face crop.
func (e *Embedder) Extract(face image.Image) (biometric.Descriptor, error) {
	copy(e.inputTensor.GetData(), toCHW(face, e.inputW, e.inputH, embeddingNorm))

	if err := e.session.Run(); err != nil {
		return nil, fmt.Errorf("run embedding: %w", err)
	}

	out := make(biometric.Descriptor, e.dim)
	copy(out, e.outputTensor.GetData())
	normalize(out)
	return out, nil
}

func (e *Embedder) Dim() int {
	return e.dim
}

func (e *Embedder) Close() {
	if e.session != nil {
		e.session.Destroy()
	}
	if e.inputTensor != nil {
		e.inputTensor.Destroy()
	}
	if e.outputTensor != nil {
		e.outputTensor.Destroy()
	}
}

// normalize scales v to unit length in place.
func normalize(v []float32) {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	norm := float32(math.Sqrt(sum))
	if norm > 0 {
		for i := range v {
			v[i] /= norm
		}
	}
}
