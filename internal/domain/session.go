package domain

import (
	"time"
)

// Phase describes where the presence state machine is in its lifecycle.
// The restore path is an explicit transition: a persisted session is loaded
// as PhaseRestoring and either confirmed against the server or cleared.
type Phase int

const (
	// PhaseIdle means no active presence session.
	PhaseIdle Phase = iota
	// PhaseRestoring means a persisted session was loaded and is being
	// confirmed against the server.
	PhaseRestoring
	// PhaseConfirmed means the server has confirmed the session.
	PhaseConfirmed
)

// String returns a human-readable phase name.
func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseRestoring:
		return "restoring"
	case PhaseConfirmed:
		return "confirmed"
	default:
		return "unknown"
	}
}

// Session is the persisted presence session, durable across agent restarts.
type Session struct {
	Venue       Venue     `json:"venue"`
	CheckedInAt time.Time `json:"checked_in_at"`
}

// Snapshot is a point-in-time copy of the full presence state. The roster
// slice is owned by the snapshot; callers may read it freely.
type Snapshot struct {
	Venue     *Venue     `json:"venue"`
	Roster    []Attendee `json:"roster"`
	CheckedIn bool       `json:"checked_in"`
	Phase     Phase      `json:"-"`
}
