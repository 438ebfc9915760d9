package domain

import (
	"time"
)

// SessionStatus is the lifecycle state of a capture session.
type SessionStatus string

const (
	SessionActive    SessionStatus = "active"
	SessionCompleted SessionStatus = "completed"
	SessionAbandoned SessionStatus = "abandoned"
)

// Valid reports whether s is a known session status.
func (s SessionStatus) Valid() bool {
	switch s {
	case SessionActive, SessionCompleted, SessionAbandoned:
		return true
	}
	return false
}

// Session represents one capture batch. TabCount is fixed at creation time
// (the number of tabs in the originating request) and never changes;
// ProcessedTabs is a running counter maintained as items are triaged.
type Session struct {
	ID            string        `json:"id"`
	UserID        string        `json:"user_id"`
	StartedAt     time.Time     `json:"startedAt"`
	CapturedAt    time.Time     `json:"capturedAt"`
	CompletedAt   *time.Time    `json:"completedAt,omitempty"`
	Status        SessionStatus `json:"status"`
	TabCount      int           `json:"tabCount"`
	ProcessedTabs int           `json:"processedTabs"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
}
