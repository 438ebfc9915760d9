package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/tabsdeclutter/tabs-declutter/internal/domain"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Repository using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite creates a new SQLite-backed repository.
func NewSQLite(dbPath string) (Repository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// Open database with WAL mode for better concurrency.
	dsn := dbPath + "?_journal=WAL&_sync=NORMAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	PRAGMA busy_timeout = 5000;
	CREATE TABLE IF NOT EXISTS users (
		user_id TEXT PRIMARY KEY,
		email TEXT NOT NULL,
		first_name TEXT,
		last_name TEXT,
		api_key TEXT UNIQUE,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS auth_sessions (
		token TEXT PRIMARY KEY,
		user_id TEXT NOT NULL REFERENCES users(user_id),
		expires_at INTEGER NOT NULL,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_auth_sessions_user ON auth_sessions(user_id);

	CREATE TABLE IF NOT EXISTS sessions (
		session_id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL REFERENCES users(user_id),
		started_at INTEGER NOT NULL,
		captured_at INTEGER NOT NULL,
		completed_at INTEGER,
		status TEXT NOT NULL DEFAULT 'active',
		tab_count INTEGER NOT NULL,
		processed_tabs INTEGER NOT NULL DEFAULT 0,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_sessions_user_started ON sessions(user_id, started_at);

	CREATE TABLE IF NOT EXISTS tab_items (
		tab_id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL REFERENCES users(user_id),
		session_id TEXT NOT NULL REFERENCES sessions(session_id),
		url TEXT NOT NULL CHECK (url <> ''),
		title TEXT NOT NULL CHECK (title <> ''),
		favicon TEXT,
		position INTEGER NOT NULL DEFAULT 0,
		status TEXT NOT NULL DEFAULT 'unread',
		captured_at INTEGER NOT NULL,
		processed_at INTEGER,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_tab_items_session ON tab_items(session_id, position);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}

const userColumns = `user_id, email, first_name, last_name, api_key, created_at, updated_at`

func scanUser(row *sql.Row) (*domain.User, error) {
	var user domain.User
	var firstName, lastName, apiKey sql.NullString
	var createdAt, updatedAt int64

	err := row.Scan(
		&user.UserID, &user.Email, &firstName, &lastName, &apiKey,
		&createdAt, &updatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan user row: %w", err)
	}

	user.FirstName = firstName.String
	user.LastName = lastName.String
	user.APIKey = apiKey.String
	user.CreatedAt = time.Unix(createdAt, 0)
	user.UpdatedAt = time.Unix(updatedAt, 0)
	return &user, nil
}

// CreateUser inserts a new user record.
func (s *SQLiteStore) CreateUser(ctx context.Context, user *domain.User) error {
	query := `
	INSERT INTO users (user_id, email, first_name, last_name, api_key, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?)`

	_, err := s.db.ExecContext(ctx, query,
		user.UserID, user.Email,
		nullable(user.FirstName), nullable(user.LastName), nullable(user.APIKey),
		user.CreatedAt.Unix(), user.UpdatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

// GetUser retrieves a user by ID.
func (s *SQLiteStore) GetUser(ctx context.Context, userID string) (*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE user_id = ?`
	return scanUser(s.db.QueryRowContext(ctx, query, userID))
}

// GetUserByAPIKey resolves a bearer API credential to its user.
func (s *SQLiteStore) GetUserByAPIKey(ctx context.Context, apiKey string) (*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE api_key = ?`
	return scanUser(s.db.QueryRowContext(ctx, query, apiKey))
}

// GetUserBySessionToken resolves a session token to its user.
func (s *SQLiteStore) GetUserBySessionToken(ctx context.Context, token string) (*domain.User, error) {
	query := `
	SELECT ` + userColumns + ` FROM users
	WHERE user_id = (SELECT user_id FROM auth_sessions WHERE token = ? AND expires_at > ?)`
	return scanUser(s.db.QueryRowContext(ctx, query, token, time.Now().Unix()))
}

// GetFirstUser returns the oldest user record.
func (s *SQLiteStore) GetFirstUser(ctx context.Context) (*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users ORDER BY created_at, user_id LIMIT 1`
	return scanUser(s.db.QueryRowContext(ctx, query))
}

// CreateAuthSession binds a session token to a user.
func (s *SQLiteStore) CreateAuthSession(ctx context.Context, token, userID string, expiresAt time.Time) error {
	query := `INSERT INTO auth_sessions (token, user_id, expires_at, created_at) VALUES (?, ?, ?, ?)`
	if _, err := s.db.ExecContext(ctx, query, token, userID, expiresAt.Unix(), time.Now().Unix()); err != nil {
		return fmt.Errorf("insert auth session: %w", err)
	}
	return nil
}

const sessionColumns = `session_id, user_id, started_at, captured_at, completed_at,
	status, tab_count, processed_tabs, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*domain.Session, error) {
	var sess domain.Session
	var completedAt sql.NullInt64
	var startedAt, capturedAt, createdAt, updatedAt int64

	err := row.Scan(
		&sess.ID, &sess.UserID, &startedAt, &capturedAt, &completedAt,
		&sess.Status, &sess.TabCount, &sess.ProcessedTabs, &createdAt, &updatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan session row: %w", err)
	}

	sess.StartedAt = time.Unix(startedAt, 0)
	sess.CapturedAt = time.Unix(capturedAt, 0)
	if completedAt.Valid {
		ts := time.Unix(completedAt.Int64, 0)
		sess.CompletedAt = &ts
	}
	sess.CreatedAt = time.Unix(createdAt, 0)
	sess.UpdatedAt = time.Unix(updatedAt, 0)
	return &sess, nil
}

// CreateSession inserts one capture session.
func (s *SQLiteStore) CreateSession(ctx context.Context, session *domain.Session) error {
	query := `
	INSERT INTO sessions (session_id, user_id, started_at, captured_at, completed_at,
		status, tab_count, processed_tabs, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	var completedAt any
	if session.CompletedAt != nil {
		completedAt = session.CompletedAt.Unix()
	}

	_, err := s.db.ExecContext(ctx, query,
		session.ID, session.UserID,
		session.StartedAt.Unix(), session.CapturedAt.Unix(), completedAt,
		session.Status, session.TabCount, session.ProcessedTabs,
		session.CreatedAt.Unix(), session.UpdatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

// GetSession retrieves a session owned by userID.
func (s *SQLiteStore) GetSession(ctx context.Context, userID, sessionID string) (*domain.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions WHERE session_id = ? AND user_id = ?`
	return scanSession(s.db.QueryRowContext(ctx, query, sessionID, userID))
}

// ListSessions returns the user's sessions, newest first.
func (s *SQLiteStore) ListSessions(ctx context.Context, userID string) ([]*domain.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions WHERE user_id = ? ORDER BY started_at DESC, session_id`

	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer closeRows(rows, "sessions")

	var sessions []*domain.Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}
	return sessions, nil
}

// UpdateSessionStatus moves a session through its lifecycle.
func (s *SQLiteStore) UpdateSessionStatus(ctx context.Context, userID, sessionID string, status domain.SessionStatus) (*domain.Session, error) {
	now := time.Now()
	var completedAt any
	if status != domain.SessionActive {
		completedAt = now.Unix()
	}

	query := `UPDATE sessions SET status = ?, completed_at = ?, updated_at = ? WHERE session_id = ? AND user_id = ?`
	result, err := s.db.ExecContext(ctx, query, status, completedAt, now.Unix(), sessionID, userID)
	if err != nil {
		return nil, fmt.Errorf("update session status: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return nil, ErrNotFound
	}

	return s.GetSession(ctx, userID, sessionID)
}

const tabItemColumns = `tab_id, user_id, session_id, url, title, favicon, position,
	status, captured_at, processed_at, created_at, updated_at`

func scanTabItem(row rowScanner) (*domain.TabItem, error) {
	var item domain.TabItem
	var favicon sql.NullString
	var processedAt sql.NullInt64
	var capturedAt, createdAt, updatedAt int64

	err := row.Scan(
		&item.ID, &item.UserID, &item.SessionID, &item.URL, &item.Title,
		&favicon, &item.Position, &item.Status,
		&capturedAt, &processedAt, &createdAt, &updatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan tab item row: %w", err)
	}

	item.Favicon = favicon.String
	item.CapturedAt = time.Unix(capturedAt, 0)
	if processedAt.Valid {
		ts := time.Unix(processedAt.Int64, 0)
		item.ProcessedAt = &ts
	}
	item.CreatedAt = time.Unix(createdAt, 0)
	item.UpdatedAt = time.Unix(updatedAt, 0)
	return &item, nil
}

// CreateTabItem inserts one captured tab.
func (s *SQLiteStore) CreateTabItem(ctx context.Context, item *domain.TabItem) error {
	query := `
	INSERT INTO tab_items (tab_id, user_id, session_id, url, title, favicon, position,
		status, captured_at, processed_at, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	var processedAt any
	if item.ProcessedAt != nil {
		processedAt = item.ProcessedAt.Unix()
	}

	_, err := s.db.ExecContext(ctx, query,
		item.ID, item.UserID, item.SessionID, item.URL, item.Title,
		nullable(item.Favicon), item.Position, item.Status,
		item.CapturedAt.Unix(), processedAt,
		item.CreatedAt.Unix(), item.UpdatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("insert tab item: %w", err)
	}
	return nil
}

// GetTabItem retrieves a tab item owned by userID.
func (s *SQLiteStore) GetTabItem(ctx context.Context, userID, tabItemID string) (*domain.TabItem, error) {
	query := `SELECT ` + tabItemColumns + ` FROM tab_items WHERE tab_id = ? AND user_id = ?`
	return scanTabItem(s.db.QueryRowContext(ctx, query, tabItemID, userID))
}

// ListTabItems returns a session's tab items in capture order.
func (s *SQLiteStore) ListTabItems(ctx context.Context, userID, sessionID string) ([]*domain.TabItem, error) {
	query := `SELECT ` + tabItemColumns + ` FROM tab_items
	WHERE session_id = ? AND user_id = ? ORDER BY position, created_at, tab_id`

	rows, err := s.db.QueryContext(ctx, query, sessionID, userID)
	if err != nil {
		return nil, fmt.Errorf("query tab items: %w", err)
	}
	defer closeRows(rows, "tab items")

	var items []*domain.TabItem
	for rows.Next() {
		item, err := scanTabItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tab items: %w", err)
	}
	return items, nil
}

// UpdateTabStatus applies a triage transition and refreshes the owning
// session's processed-tab counter in one transaction.
func (s *SQLiteStore) UpdateTabStatus(ctx context.Context, userID, tabItemID string, status domain.TabStatus) (*domain.TabItem, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	now := time.Now()
	var processedAt any
	if status.Processed() {
		processedAt = now.Unix()
	}

	result, err := tx.ExecContext(ctx,
		`UPDATE tab_items SET status = ?, processed_at = ?, updated_at = ? WHERE tab_id = ? AND user_id = ?`,
		status, processedAt, now.Unix(), tabItemID, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("update tab status: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return nil, ErrNotFound
	}

	item, err := scanTabItem(tx.QueryRowContext(ctx,
		`SELECT `+tabItemColumns+` FROM tab_items WHERE tab_id = ?`, tabItemID))
	if err != nil {
		return nil, err
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE sessions SET
			processed_tabs = (SELECT COUNT(*) FROM tab_items WHERE session_id = ? AND processed_at IS NOT NULL),
			updated_at = ?
		WHERE session_id = ?`,
		item.SessionID, now.Unix(), item.SessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("update processed tab count: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}
	return item, nil
}

// DeleteTabItem removes a tab item row.
func (s *SQLiteStore) DeleteTabItem(ctx context.Context, userID, tabItemID string) error {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM tab_items WHERE tab_id = ? AND user_id = ?`, tabItemID, userID)
	if err != nil {
		return fmt.Errorf("delete tab item: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func closeRows(rows *sql.Rows, what string) {
	if err := rows.Close(); err != nil {
		slog.Warn("failed to close rows", "rows", what, "error", err)
	}
}
