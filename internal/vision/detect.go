package vision

import (
	"fmt"
	"image"
	"sort"

	ort "github.com/yalue/onnxruntime_go"
)

// faceBox is one raw detector hit in original image coordinates.
type faceBox struct {
	X1, Y1, X2, Y2 float32
	Confidence     float32
}

func (b faceBox) rect() image.Rectangle {
	return image.Rect(int(b.X1), int(b.Y1), int(b.X2), int(b.Y2))
}

func (b faceBox) area() float32 {
	return (b.X2 - b.X1) * (b.Y2 - b.Y1)
}

// Detector runs RetinaFace (det_10g) face detection.
type Detector struct {
	session       *ort.AdvancedSession
	inputTensor   *ort.Tensor[float32]
	outputTensors []*ort.Tensor[float32]
	threshold     float32
	inputW        int
	inputH        int
}

var strides = []int{8, 16, 32}

const anchorsPerStride = 2

// NewDetector loads the RetinaFace model. opts may be nil.
func NewDetector(modelPath string, threshold float32, opts *ort.SessionOptions) (*Detector, error) {
	inputW, inputH := 640, 640

	inputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(1, 3, int64(inputH), int64(inputW)))
	if err != nil {
		return nil, fmt.Errorf("create input tensor: %w", err)
	}

	// Outputs per stride, no batch dimension: scores [N,1] then boxes [N,4]
	// where N = (640/stride)^2 * anchors.
	type outputSpec struct {
		name  string
		shape ort.Shape
	}
	outputs := []outputSpec{
		{"448", ort.NewShape(12800, 1)},
		{"471", ort.NewShape(3200, 1)},
		{"494", ort.NewShape(800, 1)},
		{"451", ort.NewShape(12800, 4)},
		{"474", ort.NewShape(3200, 4)},
		{"497", ort.NewShape(800, 4)},
	}

	names := make([]string, len(outputs))
	tensors := make([]*ort.Tensor[float32], len(outputs))
	values := make([]ort.Value, len(outputs))
	destroy := func() {
		inputTensor.Destroy()
		for _, t := range tensors {
			if t != nil {
				t.Destroy()
			}
		}
	}

	for i, spec := range outputs {
		t, err := ort.NewEmptyTensor[float32](spec.shape)
		if err != nil {
			destroy()
			return nil, fmt.Errorf("create output tensor %s: %w", spec.name, err)
		}
		names[i], tensors[i], values[i] = spec.name, t, t
	}

	session, err := ort.NewAdvancedSession(modelPath,
		[]string{"input.1"}, names,
		[]ort.Value{inputTensor}, values,
		opts,
	)
	if err != nil {
		destroy()
		return nil, fmt.Errorf("create detector session: %w", err)
	}

	return &Detector{
		session:       session,
		inputTensor:   inputTensor,
		outputTensors: tensors,
		threshold:     threshold,
		inputW:        inputW,
		inputH:        inputH,
	}, nil
}

// Detect runs detection on img and returns boxes after suppression,
// highest confidence first.
func (d *Detector) Detect(img image.Image) ([]faceBox, error) {
	b := img.Bounds()
	copy(d.inputTensor.GetData(), toCHW(img, d.inputW, d.inputH, detectionNorm))

	if err := d.session.Run(); err != nil {
		return nil, fmt.Errorf("run detection: %w", err)
	}
	return nms(d.decode(b.Dx(), b.Dy()), 0.4), nil
}

// decode turns anchor offsets into boxes scaled back to origW x origH.
func (d *Detector) decode(origW, origH int) []faceBox {
	var boxes []faceBox
	scaleW := float32(origW) / float32(d.inputW)
	scaleH := float32(origH) / float32(d.inputH)

	for si, stride := range strides {
		scores := d.outputTensors[si].GetData()
		deltas := d.outputTensors[si+len(strides)].GetData()
		st := float32(stride)

		idx := 0
		for cy := 0; cy < d.inputH/stride; cy++ {
			for cx := 0; cx < d.inputW/stride; cx++ {
				for a := 0; a < anchorsPerStride; a++ {
					if score := scores[idx]; score >= d.threshold {
						ax, ay := float32(cx)*st, float32(cy)*st
						boxes = append(boxes, faceBox{
							X1:         clampF((ax-deltas[idx*4+0]*st)*scaleW, 0, float32(origW)),
							Y1:         clampF((ay-deltas[idx*4+1]*st)*scaleH, 0, float32(origH)),
							X2:         clampF((ax+deltas[idx*4+2]*st)*scaleW, 0, float32(origW)),
							Y2:         clampF((ay+deltas[idx*4+3]*st)*scaleH, 0, float32(origH)),
							Confidence: score,
						})
					}
					idx++
				}
			}
		}
	}
	return boxes
}

func (d *Detector) Close() {
	if d.session != nil {
		d.session.Destroy()
	}
	if d.inputTensor != nil {
		d.inputTensor.Destroy()
	}
	for _, t := range d.outputTensors {
		if t != nil {
			t.Destroy()
		}
	}
}

// nms keeps the highest-confidence box of every overlapping group.
func nms(boxes []faceBox, iouThreshold float32) []faceBox {
	sort.SliceStable(boxes, func(i, j int) bool {
		return boxes[i].Confidence > boxes[j].Confidence
	})

	var kept []faceBox
	for _, b := range boxes {
		suppressed := false
		for _, k := range kept {
			if iou(k, b) > iouThreshold {
				suppressed = true
				break
			}
		}
		if !suppressed {
			kept = append(kept, b)
		}
	}
	return kept
}

func iou(a, b faceBox) float32 {
	x1, y1 := max(a.X1, b.X1), max(a.Y1, b.Y1)
	x2, y2 := min(a.X2, b.X2), min(a.Y2, b.Y2)
	inter := max(0, x2-x1) * max(0, y2-y1)
	union := a.area() + b.area() - inter
	if union <= 0 {
		return 0
	}
	return inter / union
}

func clampF(v, lo, hi float32) float32 {
	return min(max(v, lo), hi)
}
