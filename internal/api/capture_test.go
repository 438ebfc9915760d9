package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/tabsdeclutter/tabs-declutter/internal/domain"
	"github.com/tabsdeclutter/tabs-declutter/internal/identity"
	"github.com/tabsdeclutter/tabs-declutter/internal/store"
)

type fakeRepo struct {
	mu       sync.Mutex
	users    map[string]*domain.User
	sessions map[string]*domain.Session
	items    map[string]*domain.TabItem

	failSessionCreate bool
	failItemURLs      map[string]error
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		users:        make(map[string]*domain.User),
		sessions:     make(map[string]*domain.Session),
		items:        make(map[string]*domain.TabItem),
		failItemURLs: make(map[string]error),
	}
}

func (f *fakeRepo) CreateUser(_ context.Context, user *domain.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u := *user
	f.users[user.UserID] = &u
	return nil
}

func (f *fakeRepo) GetUser(_ context.Context, userID string) (*domain.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	user, ok := f.users[userID]
	if !ok {
		return nil, store.ErrNotFound
	}
	u := *user
	return &u, nil
}

func (f *fakeRepo) GetUserByAPIKey(_ context.Context, apiKey string) (*domain.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, user := range f.users {
		if user.APIKey != "" && user.APIKey == apiKey {
			u := *user
			return &u, nil
		}
	}
	return nil, store.ErrNotFound
}

func (f *fakeRepo) GetUserBySessionToken(_ context.Context, _ string) (*domain.User, error) {
	return nil, store.ErrNotFound
}

func (f *fakeRepo) GetFirstUser(_ context.Context) (*domain.User, error) {
	return nil, store.ErrNotFound
}

func (f *fakeRepo) CreateAuthSession(_ context.Context, _, _ string, _ time.Time) error {
	return nil
}

func (f *fakeRepo) CreateSession(_ context.Context, session *domain.Session) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failSessionCreate {
		return fmt.Errorf("session insert failed")
	}
	s := *session
	f.sessions[session.ID] = &s
	return nil
}

func (f *fakeRepo) GetSession(_ context.Context, userID, sessionID string) (*domain.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	sess, ok := f.sessions[sessionID]
	if !ok || sess.UserID != userID {
		return nil, store.ErrNotFound
	}
	s := *sess
	return &s, nil
}

func (f *fakeRepo) ListSessions(_ context.Context, userID string) ([]*domain.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*domain.Session
	for _, sess := range f.sessions {
		if sess.UserID == userID {
			s := *sess
			out = append(out, &s)
		}
	}
	return out, nil
}

func (f *fakeRepo) UpdateSessionStatus(_ context.Context, userID, sessionID string, status domain.SessionStatus) (*domain.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	sess, ok := f.sessions[sessionID]
	if !ok || sess.UserID != userID {
		return nil, store.ErrNotFound
	}
	sess.Status = status
	if status == domain.SessionActive {
		sess.CompletedAt = nil
	} else {
		now := time.Now()
		sess.CompletedAt = &now
	}
	s := *sess
	return &s, nil
}

func (f *fakeRepo) CreateTabItem(_ context.Context, item *domain.TabItem) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.failItemURLs[item.URL]; ok {
		return err
	}
	it := *item
	f.items[item.ID] = &it
	return nil
}

func (f *fakeRepo) GetTabItem(_ context.Context, userID, tabItemID string) (*domain.TabItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	item, ok := f.items[tabItemID]
	if !ok || item.UserID != userID {
		return nil, store.ErrNotFound
	}
	it := *item
	return &it, nil
}

func (f *fakeRepo) ListTabItems(_ context.Context, userID, sessionID string) ([]*domain.TabItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*domain.TabItem
	for _, item := range f.items {
		if item.UserID == userID && item.SessionID == sessionID {
			it := *item
			out = append(out, &it)
		}
	}
	return out, nil
}

func (f *fakeRepo) UpdateTabStatus(_ context.Context, userID, tabItemID string, status domain.TabStatus) (*domain.TabItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	item, ok := f.items[tabItemID]
	if !ok || item.UserID != userID {
		return nil, store.ErrNotFound
	}
	item.Status = status
	if status.Processed() {
		now := time.Now()
		item.ProcessedAt = &now
	} else {
		item.ProcessedAt = nil
	}
	it := *item
	return &it, nil
}

func (f *fakeRepo) DeleteTabItem(_ context.Context, userID, tabItemID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	item, ok := f.items[tabItemID]
	if !ok || item.UserID != userID {
		return store.ErrNotFound
	}
	delete(f.items, tabItemID)
	return nil
}

func (f *fakeRepo) Ping(_ context.Context) error { return nil }
func (f *fakeRepo) Close() error                 { return nil }

func (f *fakeRepo) sessionCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sessions)
}

func (f *fakeRepo) itemCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.items)
}

func testUser() *domain.User {
	return &domain.User{UserID: "user-1", Email: "u@example.com", APIKey: "key-1"}
}

func captureRequestBody(t *testing.T, tabs ...map[string]any) *bytes.Buffer {
	t.Helper()
	body, err := json.Marshal(map[string]any{"tabs": tabs})
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	return bytes.NewBuffer(body)
}

func doCapture(t *testing.T, repo *fakeRepo, user *domain.User, body *bytes.Buffer) *httptest.ResponseRecorder {
	t.Helper()
	h := NewCaptureHandler(NewHandler(repo))
	req := httptest.NewRequest(http.MethodPost, "/captureTabs", body)
	if user != nil {
		req = req.WithContext(identity.WithUser(req.Context(), user))
	}
	w := httptest.NewRecorder()
	h.CaptureTabs(w, req)
	return w
}

func TestCaptureTabsEmptyBatch(t *testing.T) {
	repo := newFakeRepo()
	w := doCapture(t, repo, testUser(), bytes.NewBufferString(`{"tabs":[]}`))

	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", w.Code)
	}
	if repo.sessionCount() != 0 {
		t.Errorf("Expected no session created, got %d", repo.sessionCount())
	}
}

func TestCaptureTabsMissingBatch(t *testing.T) {
	repo := newFakeRepo()
	w := doCapture(t, repo, testUser(), bytes.NewBufferString(`{}`))

	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", w.Code)
	}
}

func TestCaptureTabsUnauthenticated(t *testing.T) {
	repo := newFakeRepo()
	w := doCapture(t, repo, nil, captureRequestBody(t, map[string]any{"url": "https://a.com"}))

	if w.Code != http.StatusUnauthorized {
		t.Errorf("Expected status 401, got %d", w.Code)
	}
	if repo.sessionCount() != 0 {
		t.Errorf("Expected no session created, got %d", repo.sessionCount())
	}
}

func TestCaptureTabsSuccess(t *testing.T) {
	repo := newFakeRepo()
	body := captureRequestBody(t,
		map[string]any{"url": "https://a.com", "title": "A"},
		map[string]any{"url": "https://b.com"},
	)
	w := doCapture(t, repo, testUser(), body)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp CaptureResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}

	if !resp.Success {
		t.Error("Expected success=true")
	}
	if resp.TabsCaptured != 2 {
		t.Errorf("Expected 2 tabs captured, got %d", resp.TabsCaptured)
	}
	if len(resp.Errors) != 0 {
		t.Errorf("Expected no errors, got %v", resp.Errors)
	}

	sess, err := repo.GetSession(context.Background(), "user-1", resp.SessionID)
	if err != nil {
		t.Fatalf("Session not found: %v", err)
	}
	if sess.TabCount != 2 {
		t.Errorf("Expected tabCount 2, got %d", sess.TabCount)
	}
	if sess.Status != domain.SessionActive {
		t.Errorf("Expected active session, got %q", sess.Status)
	}
	if !sess.StartedAt.Equal(sess.CapturedAt) {
		t.Error("Expected startedAt and capturedAt stamped with the same instant")
	}

	// Missing title defaults to the placeholder.
	for _, item := range resp.Tabs {
		if item.URL == "https://b.com" && item.Title != UntitledTab {
			t.Errorf("Expected defaulted title %q, got %q", UntitledTab, item.Title)
		}
		if item.Status != domain.TabUnread {
			t.Errorf("Expected unread status, got %q", item.Status)
		}
		if item.ProcessedAt != nil {
			t.Error("Expected nil processedAt on freshly captured item")
		}
	}
}

func TestCaptureTabsPartialFailure(t *testing.T) {
	repo := newFakeRepo()
	repo.failItemURLs["https://b.com"] = fmt.Errorf("UNIQUE constraint failed: tab_items.url")

	body := captureRequestBody(t,
		map[string]any{"url": "https://a.com", "title": "A"},
		map[string]any{"url": "https://b.com", "title": "B"},
		map[string]any{"url": "https://c.com", "title": "C"},
	)
	w := doCapture(t, repo, testUser(), body)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp CaptureResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}

	if !resp.Success {
		t.Error("Expected success=true for partial failure")
	}
	if resp.TabsCaptured != 2 {
		t.Errorf("Expected 2 tabs captured, got %d", resp.TabsCaptured)
	}
	if len(resp.Errors) != 1 {
		t.Fatalf("Expected 1 error, got %d", len(resp.Errors))
	}
	if resp.Errors[0].URL != "https://b.com" {
		t.Errorf("Expected error keyed by failing url, got %q", resp.Errors[0].URL)
	}

	// Exactly one session, tabCount still reflects the full input length.
	if repo.sessionCount() != 1 {
		t.Fatalf("Expected exactly 1 session, got %d", repo.sessionCount())
	}
	sess, err := repo.GetSession(context.Background(), "user-1", resp.SessionID)
	if err != nil {
		t.Fatalf("Session not found: %v", err)
	}
	if sess.TabCount != 3 {
		t.Errorf("Expected tabCount 3, got %d", sess.TabCount)
	}
	if repo.itemCount() != 2 {
		t.Errorf("Expected 2 stored items, got %d", repo.itemCount())
	}
}

func TestCaptureTabsInvalidURLRecordedPerItem(t *testing.T) {
	repo := newFakeRepo()
	body := captureRequestBody(t,
		map[string]any{"url": "https://a.com", "title": "A"},
		map[string]any{"url": 123, "title": "numeric url"},
		map[string]any{"title": "no url at all"},
	)
	w := doCapture(t, repo, testUser(), body)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp CaptureResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}

	if resp.TabsCaptured != 1 {
		t.Errorf("Expected 1 tab captured, got %d", resp.TabsCaptured)
	}
	if len(resp.Errors) != 2 {
		t.Errorf("Expected 2 per-item errors, got %d", len(resp.Errors))
	}
}

func TestCaptureTabsNonObjectElement(t *testing.T) {
	repo := newFakeRepo()
	body := bytes.NewBufferString(`{"tabs":["https://a.com",{"url":"https://b.com","title":"B"}]}`)
	w := doCapture(t, repo, testUser(), body)

	// A bare string in the array is not a batch error; it degrades to a
	// per-item failure like any other malformed entry.
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp CaptureResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if resp.TabsCaptured != 1 {
		t.Errorf("Expected 1 tab captured, got %d", resp.TabsCaptured)
	}
	if len(resp.Errors) != 1 {
		t.Fatalf("Expected 1 per-item error, got %d", len(resp.Errors))
	}
	if resp.Errors[0].Error != "Missing or invalid url" {
		t.Errorf("Unexpected error message %q", resp.Errors[0].Error)
	}
}

func TestCaptureTabsSessionCreateFailureIsFatal(t *testing.T) {
	repo := newFakeRepo()
	repo.failSessionCreate = true

	w := doCapture(t, repo, testUser(), captureRequestBody(t, map[string]any{"url": "https://a.com"}))

	if w.Code != http.StatusInternalServerError {
		t.Errorf("Expected status 500, got %d", w.Code)
	}
	if repo.itemCount() != 0 {
		t.Errorf("Expected no items created, got %d", repo.itemCount())
	}

	var resp map[string]any
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if success, _ := resp["success"].(bool); success {
		t.Error("Expected success=false")
	}
}
