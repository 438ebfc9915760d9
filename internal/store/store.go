// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/tabsdeclutter/tabs-declutter/internal/domain"
)

// ErrNotFound is returned when a record does not exist or is not owned by
// the requesting user. Handlers must not distinguish the two cases.
var ErrNotFound = errors.New("record not found")

// Repository defines the interface for persisting users, capture sessions
// and tab items.
type Repository interface {
	// CreateUser inserts a new user record.
	CreateUser(ctx context.Context, user *domain.User) error

	// GetUser retrieves a user by ID.
	GetUser(ctx context.Context, userID string) (*domain.User, error)

	// GetUserByAPIKey resolves a bearer API credential to its user.
	GetUserByAPIKey(ctx context.Context, apiKey string) (*domain.User, error)

	// GetUserBySessionToken resolves an authenticated-session token to its
	// user. Expired tokens resolve to ErrNotFound.
	GetUserBySessionToken(ctx context.Context, token string) (*domain.User, error)

	// GetFirstUser returns the oldest user record. Development fallback only.
	GetFirstUser(ctx context.Context) (*domain.User, error)

	// CreateAuthSession binds a session token to a user. Token issuance is
	// owned by the external auth collaborator; this is its write path.
	CreateAuthSession(ctx context.Context, token, userID string, expiresAt time.Time) error

	// CreateSession inserts one capture session. TabCount is fixed here and
	// never updated afterwards.
	CreateSession(ctx context.Context, session *domain.Session) error

	// GetSession retrieves a session owned by userID.
	GetSession(ctx context.Context, userID, sessionID string) (*domain.Session, error)

	// ListSessions returns the user's sessions, newest first.
	ListSessions(ctx context.Context, userID string) ([]*domain.Session, error)

	// UpdateSessionStatus moves a session through its lifecycle. Entering
	// completed or abandoned stamps completedAt; returning to active clears it.
	UpdateSessionStatus(ctx context.Context, userID, sessionID string, status domain.SessionStatus) (*domain.Session, error)

	// CreateTabItem inserts one captured tab linked to a session and user.
	CreateTabItem(ctx context.Context, item *domain.TabItem) error

	// GetTabItem retrieves a tab item owned by userID.
	GetTabItem(ctx context.Context, userID, tabItemID string) (*domain.TabItem, error)

	// ListTabItems returns a session's tab items in capture order.
	ListTabItems(ctx context.Context, userID, sessionID string) ([]*domain.TabItem, error)

	// UpdateTabStatus applies a triage transition. Entering read or delete
	// sets processedAt, entering unread or keep clears it. The owning
	// session's processed-tab counter is recomputed in the same transaction.
	// Last write wins; there is no optimistic-concurrency check.
	UpdateTabStatus(ctx context.Context, userID, tabItemID string, status domain.TabStatus) (*domain.TabItem, error)

	// DeleteTabItem removes a tab item row. Administrative action, distinct
	// from the soft delete triage status.
	DeleteTabItem(ctx context.Context, userID, tabItemID string) error

	// Ping verifies database connectivity.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}
