package dto

import (
	"github.com/google/uuid"

	"github.com/your-org/facegate/internal/models"
)

type OutcomeResponse struct {
	ID       uuid.UUID  `json:"id"`
	Kind     string     `json:"kind"`
	Session  string     `json:"session,omitempty"`
	Claimed  string     `json:"claimed,omitempty"`
	Decision string     `json:"decision"`
	Distance *float64   `json:"distance,omitempty"`
	Identity string     `json:"identity,omitempty"`
	FullName string     `json:"full_name,omitempty"`
	Reason   string     `json:"reason,omitempty"`
	TaskID   *uuid.UUID `json:"task_id,omitempty"`
	// Threshold is the cut-off the decision was made against.
	Threshold float64 `json:"threshold"`
	Timestamp string  `json:"timestamp"`
}

// NewOutcomeResponse renders out. Distance is omitted for undetermined
// results.
func NewOutcomeResponse(out *models.Outcome, threshold float64) OutcomeResponse {
	resp := OutcomeResponse{
		ID:        out.ID,
		Kind:      string(out.Kind),
		Session:   out.Session,
		Claimed:   out.Claimed,
		Decision:  string(out.Result.Decision),
		Identity:  out.Result.Identity,
		FullName:  out.FullName,
		Reason:    out.Reason,
		TaskID:    out.TaskID,
		Threshold: threshold,
		Timestamp: out.Timestamp.UTC().Format(timeLayout),
	}
	if out.Result.Determined() {
		d := out.Result.Distance
		resp.Distance = &d
	}
	return resp
}

// WSEvent is a WebSocket message for real-time event delivery.
type WSEvent struct {
	Type      string           `json:"type"` // record_enrolled, record_deleted, verification
	Identity  string           `json:"identity,omitempty"`
	Session   string           `json:"session,omitempty"`
	Outcome   *OutcomeResponse `json:"outcome,omitempty"`
	Timestamp string           `json:"timestamp"`
}

// NewWSEvent renders ev for WebSocket clients.
func NewWSEvent(ev models.Event, threshold float64) WSEvent {
	msg := WSEvent{
		Type:      string(ev.Type),
		Identity:  ev.Identity,
		Timestamp: ev.Timestamp.UTC().Format(timeLayout),
	}
	if ev.Outcome != nil {
		o := NewOutcomeResponse(ev.Outcome, threshold)
		msg.Outcome = &o
		msg.Session = ev.Outcome.Session
	}
	return msg
}
