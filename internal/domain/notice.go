package domain

import (
	"time"
)

// NoticeKind classifies user-facing notices surfaced by the agent.
type NoticeKind string

const (
	// NoticeInfo is an informational message.
	NoticeInfo NoticeKind = "info"
	// NoticeWarning is a recoverable problem the user may retry.
	NoticeWarning NoticeKind = "warning"
	// NoticeForcedEnd reports a server-initiated end of the presence session.
	NoticeForcedEnd NoticeKind = "forced_end"
)

// Notice is a user-facing message produced by the state machine. Notices are
// queued for whatever UI shell fronts the agent.
type Notice struct {
	ID        string     `json:"id"`
	Kind      NoticeKind `json:"kind"`
	Message   string     `json:"message"`
	CreatedAt time.Time  `json:"created_at"`
}
