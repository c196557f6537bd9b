package biometric

import (
	"errors"
	"fmt"
	"math"
)

// DefaultThreshold is the distance below which two descriptors are treated
// as the same person.
const DefaultThreshold = 0.52

// DefaultDescriptorLength is the descriptor size produced by the bundled
// recognition models.
const DefaultDescriptorLength = 128

var (
	ErrDescriptorLengthMismatch = errors.New("descriptor length mismatch")
	ErrNonFiniteDescriptor      = errors.New("descriptor has non-finite values")
)

// Descriptor is a fixed-length face embedding.
type Descriptor []float32

// Present reports whether the descriptor carries any values.
func (d Descriptor) Present() bool {
	return len(d) > 0
}

// Finite reports whether every value is a real number.
func (d Descriptor) Finite() bool {
	for _, v := range d {
		if !finite(v) {
			return false
		}
	}
	return true
}

func finite(v float32) bool {
	f := float64(v)
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

type Decision string

const (
	Match        Decision = "MATCH"
	NoMatch      Decision = "NO_MATCH"
	Undetermined Decision = "UNDETERMINED"
)

// ComparisonResult is the outcome of a single verify or identify call.
// Distance is meaningless when Decision is Undetermined. Identity is only
// set by IdentifyBest.
type ComparisonResult struct {
	Distance float64  `json:"distance"`
	Decision Decision `json:"decision"`
	Identity string   `json:"identity,omitempty"`
}

func undetermined() ComparisonResult {
	return ComparisonResult{Decision: Undetermined}
}

// Determined reports whether a distance was actually computed.
func (r ComparisonResult) Determined() bool {
	return r.Decision != Undetermined
}

// Candidate is a stored identity considered during identification.
type Candidate struct {
	Identity   string
	Descriptor Descriptor
}

// Distance returns the Euclidean distance between a and b. NaN or infinite
// components are an error rather than a distance.
func Distance(a, b Descriptor) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("%w: %d != %d", ErrDescriptorLengthMismatch, len(a), len(b))
	}
	var sum float64
	for i := range a {
		if !finite(a[i]) || !finite(b[i]) {
			return 0, fmt.Errorf("%w: at index %d", ErrNonFiniteDescriptor, i)
		}
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return math.Sqrt(sum), nil
}

type Matcher struct {
	Threshold float64
}

func NewMatcher(threshold float64) *Matcher {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return &Matcher{Threshold: threshold}
}

func (m *Matcher) decide(distance float64) Decision {
	if distance < m.Threshold {
		return Match
	}
	return NoMatch
}

// VerifyAgainst compares a live descriptor with one stored descriptor.
// A missing descriptor on either side yields Undetermined.
func (m *Matcher) VerifyAgainst(live, stored Descriptor) (ComparisonResult, error) {
	if !live.Present() || !stored.Present() {
		return undetermined(), nil
	}
	dist, err := Distance(live, stored)
	if err != nil {
		return ComparisonResult{}, err
	}
	return ComparisonResult{Distance: dist, Decision: m.decide(dist)}, nil
}

// IdentifyBest scans candidates linearly and returns the closest one.
// Candidates without a descriptor are skipped. On equal distances the
// candidate seen first wins.
func (m *Matcher) IdentifyBest(live Descriptor, candidates []Candidate) (ComparisonResult, error) {
	if !live.Present() {
		return undetermined(), nil
	}

	best := undetermined()
	found := false
	for _, c := range candidates {
		if !c.Descriptor.Present() {
			continue
		}
		dist, err := Distance(live, c.Descriptor)
		if err != nil {
			return ComparisonResult{}, fmt.Errorf("candidate %q: %w", c.Identity, err)
		}
		if !found || dist < best.Distance {
			best = ComparisonResult{Distance: dist, Identity: c.Identity}
			found = true
		}
	}
	if !found {
		return undetermined(), nil
	}
	best.Decision = m.decide(best.Distance)
	return best, nil
}
