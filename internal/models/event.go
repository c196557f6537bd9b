package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/your-org/facegate/internal/biometric"
)

type TaskKind string

const (
	TaskVerify   TaskKind = "verify"
	TaskIdentify TaskKind = "identify"
)

// CaptureTask is the message a station publishes to NATS for worker processing.
type CaptureTask struct {
	ID         uuid.UUID `json:"id"`
	StationID  string    `json:"station_id"`
	Kind       TaskKind  `json:"kind"`
	Identity   string    `json:"identity,omitempty"` // claimed identity for verify
	FrameRef   string    `json:"frame_ref"`          // MinIO object key
	Width      int       `json:"width"`
	Height     int       `json:"height"`
	CapturedAt time.Time `json:"captured_at"`
}

// Outcome reasons attached to undetermined results.
const (
	ReasonRecordNotFound     = "record_not_found"
	ReasonNoFaceDetected     = "no_face_detected"
	ReasonNoStoredDescriptor = "no_stored_descriptor"
	ReasonNoCandidates       = "no_candidates"
)

// Outcome is the result of a verify or identify operation as surfaced to
// callers and subscribers. It is never persisted.
type Outcome struct {
	ID        uuid.UUID                  `json:"id"`
	Kind      TaskKind                   `json:"kind"`
	Session   string                     `json:"session,omitempty"`
	Claimed   string                     `json:"claimed,omitempty"`
	Result    biometric.ComparisonResult `json:"result"`
	Reason    string                     `json:"reason,omitempty"`
	FullName  string                     `json:"full_name,omitempty"`
	TaskID    *uuid.UUID                 `json:"task_id,omitempty"`
	Timestamp time.Time                  `json:"timestamp"`
}

type EventType string

const (
	EventEnrolled     EventType = "record_enrolled"
	EventDeleted      EventType = "record_deleted"
	EventVerification EventType = "verification"
)

// Event is published to subscribers after a state change or a decision.
type Event struct {
	Type      EventType `json:"type"`
	Identity  string    `json:"identity,omitempty"`
	Outcome   *Outcome  `json:"outcome,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// StationCommand is sent on a station's control subject.
type StationCommand struct {
	Kind     TaskKind `json:"kind"`
	Identity string   `json:"identity,omitempty"`
}
