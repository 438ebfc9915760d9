package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/tabsdeclutter/tabs-declutter/internal/domain"
	"github.com/tabsdeclutter/tabs-declutter/internal/identity"
	"github.com/tabsdeclutter/tabs-declutter/internal/shared"
)

// CaptureHandler handles batch tab capture from the browser extension.
type CaptureHandler struct {
	*Handler
}

// NewCaptureHandler creates a new capture handler.
func NewCaptureHandler(base *Handler) *CaptureHandler {
	return &CaptureHandler{Handler: base}
}

// RegisterRoutes registers the capture route.
func (h *CaptureHandler) RegisterRoutes(r chi.Router) {
	r.Post("/captureTabs", h.CaptureTabs)
}

// TabInput is one submitted tab. Wrong-typed fields are tolerated and left
// empty so a single bad entry becomes a per-item error instead of failing
// the whole batch.
type TabInput struct {
	URL     string
	Title   string
	Favicon string
}

// UnmarshalJSON accepts any JSON value for each field and keeps only strings.
// A non-object element leaves every field empty, so it surfaces as a per-item
// "Missing or invalid url" error rather than rejecting the batch.
func (t *TabInput) UnmarshalJSON(data []byte) error {
	var aux struct {
		URL        any `json:"url"`
		Title      any `json:"title"`
		FavIconURL any `json:"favIconUrl"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			return nil
		}
		return err
	}
	if s, ok := aux.URL.(string); ok {
		t.URL = s
	}
	if s, ok := aux.Title.(string); ok {
		t.Title = s
	}
	if s, ok := aux.FavIconURL.(string); ok {
		t.Favicon = s
	}
	return nil
}

// CaptureRequest is the body of POST /captureTabs.
type CaptureRequest struct {
	Tabs []TabInput `json:"tabs"`
}

// CaptureError reports one tab that could not be stored.
type CaptureError struct {
	URL   string `json:"url"`
	Error string `json:"error"`
}

// CaptureResponse is the success body of POST /captureTabs.
type CaptureResponse struct {
	Success      bool              `json:"success"`
	SessionID    string            `json:"sessionId"`
	TabsCaptured int               `json:"tabsCaptured"`
	Tabs         []*domain.TabItem `json:"tabs"`
	Errors       []CaptureError    `json:"errors,omitempty"`
}

// UntitledTab is stored when a submitted tab has no title.
const UntitledTab = "Untitled"

// CaptureTabs creates one session plus one tab item per submitted tab.
//
// The batch is best-effort: a failed item is recorded in the errors list and
// does not roll back the session or any other item. Only session creation
// itself, or an unresolvable user, fails the whole request. Repeating a
// batch creates a new session and duplicate items; there is no
// deduplication by URL.
func (h *CaptureHandler) CaptureTabs(w http.ResponseWriter, r *http.Request) {
	var req CaptureRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.Tabs) == 0 {
		Error(w, http.StatusBadRequest, "Invalid request: tabs array is required and must not be empty")
		return
	}

	user := identity.UserFromContext(r.Context())
	if user == nil {
		Error(w, http.StatusUnauthorized, "No user found. Please sign up at least one user in the app first.")
		return
	}

	ctx := r.Context()
	now := time.Now()

	session := &domain.Session{
		ID:         uuid.NewString(),
		UserID:     user.UserID,
		StartedAt:  now,
		CapturedAt: now,
		Status:     domain.SessionActive,
		TabCount:   len(req.Tabs),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := h.repo.CreateSession(ctx, session); err != nil {
		slog.Error("Failed to create capture session", "error", err, "user_id", user.UserID)
		Error(w, http.StatusInternalServerError, "Failed to capture tabs")
		return
	}

	// Per-item creation runs concurrently; the response waits for every
	// attempt to settle. Slots are indexed so capture order is preserved.
	items := make([]*domain.TabItem, len(req.Tabs))
	itemErrs := make([]*CaptureError, len(req.Tabs))

	var wg sync.WaitGroup
	for i, tab := range req.Tabs {
		wg.Add(1)
		go func(i int, tab TabInput) {
			defer wg.Done()

			if tab.URL == "" {
				itemErrs[i] = &CaptureError{URL: tab.URL, Error: "Missing or invalid url"}
				return
			}

			title := tab.Title
			if title == "" {
				title = UntitledTab
			}

			item := &domain.TabItem{
				ID:         uuid.NewString(),
				UserID:     user.UserID,
				SessionID:  session.ID,
				URL:        tab.URL,
				Title:      title,
				Favicon:    tab.Favicon,
				Position:   i,
				Status:     domain.TabUnread,
				CapturedAt: now,
				CreatedAt:  now,
				UpdatedAt:  now,
			}
			if err := h.repo.CreateTabItem(ctx, item); err != nil {
				slog.Warn("Failed to create tab item", "url", tab.URL, "session_id", session.ID, "error", err)
				itemErrs[i] = &CaptureError{URL: tab.URL, Error: itemErrorMessage(err)}
				return
			}
			items[i] = item
		}(i, tab)
	}
	wg.Wait()

	resp := CaptureResponse{
		Success:   true,
		SessionID: session.ID,
		Tabs:      make([]*domain.TabItem, 0, len(req.Tabs)),
	}
	for i := range req.Tabs {
		if items[i] != nil {
			resp.Tabs = append(resp.Tabs, items[i])
		}
		if itemErrs[i] != nil {
			resp.Errors = append(resp.Errors, *itemErrs[i])
		}
	}
	resp.TabsCaptured = len(resp.Tabs)

	slog.Info("Captured tab batch",
		"session_id", session.ID,
		"user_id", user.UserID,
		"tab_count", session.TabCount,
		"created", resp.TabsCaptured,
		"errors", len(resp.Errors),
	)
	JSON(w, http.StatusOK, resp)
}

// itemErrorMessage maps storage failures to the per-item error string. Raw
// SQLite error text is not useful to the extension, so the known classes are
// translated.
func itemErrorMessage(err error) string {
	switch {
	case shared.IsSQLiteConstraintError(err):
		return "Invalid tab data"
	case shared.IsSQLiteConflictError(err):
		return "Storage busy, try again"
	default:
		return err.Error()
	}
}
