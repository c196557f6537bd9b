package models

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/your-org/facegate/internal/biometric"
)

const MaxIdentityLength = 128

var ErrInvalidRecord = errors.New("invalid record")

// RecordFlags are status bits carried on an enrollment record.
type RecordFlags struct {
	Verified  bool `json:"verified"`
	Suspended bool `json:"suspended"`
}

// Or returns the union of f and other.
func (f RecordFlags) Or(other RecordFlags) RecordFlags {
	return RecordFlags{
		Verified:  f.Verified || other.Verified,
		Suspended: f.Suspended || other.Suspended,
	}
}

// EnrollmentRecord is the persisted unit keyed by Identity.
// Descriptor is nil when the enrollment image contained no detectable face.
type EnrollmentRecord struct {
	Identity     string               `json:"identity"`
	Descriptor   biometric.Descriptor `json:"descriptor,omitempty"`
	FullName     string               `json:"full_name"`
	Phone        string               `json:"phone,omitempty"`
	Address      string               `json:"address,omitempty"`
	ThumbnailKey string               `json:"thumbnail_key,omitempty"`
	EnrolledBy   string               `json:"enrolled_by,omitempty"`
	Flags        RecordFlags          `json:"flags"`
	EnrolledAt   time.Time            `json:"enrolled_at"`
}

// HasDescriptor reports whether the record can take part in matching.
func (r *EnrollmentRecord) HasDescriptor() bool {
	return r != nil && r.Descriptor.Present()
}

// Candidate projects the record for the matcher.
func (r *EnrollmentRecord) Candidate() biometric.Candidate {
	return biometric.Candidate{Identity: r.Identity, Descriptor: r.Descriptor}
}

// Normalize trims the free-text fields in place.
func (r *EnrollmentRecord) Normalize() {
	r.Identity = strings.TrimSpace(r.Identity)
	r.FullName = strings.TrimSpace(r.FullName)
	r.Phone = strings.TrimSpace(r.Phone)
	r.Address = strings.TrimSpace(r.Address)
	r.EnrolledBy = strings.TrimSpace(r.EnrolledBy)
}

// Validate checks the record against the schema. descriptorLen of zero
// skips the length check.
func (r *EnrollmentRecord) Validate(descriptorLen int) error {
	if r.Identity == "" {
		return fmt.Errorf("%w: identity is required", ErrInvalidRecord)
	}
	if len(r.Identity) > MaxIdentityLength {
		return fmt.Errorf("%w: identity longer than %d characters", ErrInvalidRecord, MaxIdentityLength)
	}
	if strings.ContainsAny(r.Identity, "/\\") {
		return fmt.Errorf("%w: identity must not contain path separators", ErrInvalidRecord)
	}
	if r.FullName == "" {
		return fmt.Errorf("%w: full name is required", ErrInvalidRecord)
	}
	if descriptorLen > 0 && r.Descriptor.Present() && len(r.Descriptor) != descriptorLen {
		return fmt.Errorf("%w: got %d, want %d", biometric.ErrDescriptorLengthMismatch, len(r.Descriptor), descriptorLen)
	}
	if !r.Descriptor.Finite() {
		return biometric.ErrNonFiniteDescriptor
	}
	return nil
}

// EnrollMode selects how a new enrollment is combined with an existing
// record for the same identity.
type EnrollMode string

const (
	// EnrollReplace overwrites every field of an existing record.
	EnrollReplace EnrollMode = "replace"
	// EnrollMergeFlags overwrites every field except the status flags,
	// which are OR-ed with the stored ones.
	EnrollMergeFlags EnrollMode = "merge_flags"
)

// ParseEnrollMode maps user input to a mode. An empty string selects
// EnrollReplace.
func ParseEnrollMode(s string) (EnrollMode, error) {
	switch EnrollMode(strings.ToLower(strings.TrimSpace(s))) {
	case "", EnrollReplace:
		return EnrollReplace, nil
	case EnrollMergeFlags:
		return EnrollMergeFlags, nil
	default:
		return "", fmt.Errorf("unknown enroll mode %q", s)
	}
}

// Combine produces the record to store when next is enrolled on top of
// existing (which may be nil).
func (m EnrollMode) Combine(existing, next *EnrollmentRecord) *EnrollmentRecord {
	out := *next
	if m == EnrollMergeFlags && existing != nil {
		out.Flags = existing.Flags.Or(next.Flags)
	}
	return &out
}
