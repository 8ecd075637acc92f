package domain

import (
	"time"

	"github.com/google/uuid"
)

// CallStatus is the lifecycle state of a call
// Transitions only move forward: pending -> active -> ended
type CallStatus string

const (
	CallStatusPending CallStatus = "pending" // created, waiting for both sides to join
	CallStatusActive  CallStatus = "active"  // both coordinator and inspector joined
	CallStatusEnded   CallStatus = "ended"   // terminal
)

// CanTransition reports whether moving from s to next is legal.
// A pending call may be ended without ever becoming active (cancelled before
// the counterpart joins); ended is terminal.
func (s CallStatus) CanTransition(next CallStatus) bool {
	switch s {
	case CallStatusPending:
		return next == CallStatusActive || next == CallStatusEnded
	case CallStatusActive:
		return next == CallStatusEnded
	default:
		return false
	}
}

// Location is a GPS snapshot reported by the inspector's device.
// Accuracy and timestamp are pass-through values from the device.
type Location struct {
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	Accuracy  float64   `json:"accuracy"`
	Timestamp time.Time `json:"timestamp"`
}

// Call represents a remote-inspection call session
// Maps to the CockroachDB calls table
type Call struct {
	CallID              uuid.UUID      `json:"call_id" db:"call_id"`
	CoordinatorID       uuid.UUID      `json:"coordinator_id" db:"coordinator_id"`
	InspectorID         uuid.UUID      `json:"inspector_id" db:"inspector_id"`
	InspectionReference string         `json:"inspection_reference,omitempty" db:"inspection_reference"`
	Status              CallStatus     `json:"status" db:"status"`
	StartedAt           time.Time      `json:"started_at" db:"started_at"`
	EndedAt             *time.Time     `json:"ended_at,omitempty" db:"ended_at"`
	InspectorLocation   *Location      `json:"inspector_location,omitempty" db:"inspector_location"`
	Metadata            map[string]any `json:"metadata,omitempty" db:"metadata"`
}

// ParticipantRole returns the role userID holds on this call, or "" if the
// user is not a participant.
func (c *Call) ParticipantRole(userID uuid.UUID) Role {
	switch userID {
	case c.CoordinatorID:
		return RoleCoordinator
	case c.InspectorID:
		return RoleInspector
	default:
		return ""
	}
}

// Counterpart returns the other participant of the call. ok is false when
// userID is not a participant.
func (c *Call) Counterpart(userID uuid.UUID) (uuid.UUID, bool) {
	switch userID {
	case c.CoordinatorID:
		return c.InspectorID, true
	case c.InspectorID:
		return c.CoordinatorID, true
	default:
		return uuid.Nil, false
	}
}
