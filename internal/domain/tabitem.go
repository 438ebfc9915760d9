package domain

import (
	"time"
)

// TabStatus is the triage state of a captured tab.
//
// unread is the initial state. Any status is reachable from any other;
// the store does not enforce a transition diagram. Entering read or delete
// marks the item processed, returning to unread or keep unmarks it.
type TabStatus string

const (
	TabUnread TabStatus = "unread"
	TabKeep   TabStatus = "keep"
	TabRead   TabStatus = "read"
	TabDelete TabStatus = "delete"
)

// Valid reports whether s is a known triage status.
func (s TabStatus) Valid() bool {
	switch s {
	case TabUnread, TabKeep, TabRead, TabDelete:
		return true
	}
	return false
}

// Processed reports whether s counts as processed, i.e. whether a tab item
// in this status carries a processedAt timestamp.
func (s TabStatus) Processed() bool {
	return s == TabRead || s == TabDelete
}

// TabItem represents one captured browser tab. Every item belongs to exactly
// one session and one user. Deletion of a row is an administrative action;
// the delete status is a soft marker, not removal.
type TabItem struct {
	ID          string     `json:"id"`
	UserID      string     `json:"user_id"`
	SessionID   string     `json:"sessionId"`
	URL         string     `json:"url"`
	Title       string     `json:"title"`
	Favicon     string     `json:"favicon,omitempty"`
	Position    int        `json:"position"`
	Status      TabStatus  `json:"status"`
	CapturedAt  time.Time  `json:"capturedAt"`
	ProcessedAt *time.Time `json:"processedAt,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}
