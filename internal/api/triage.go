package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/tabsdeclutter/tabs-declutter/internal/domain"
	"github.com/tabsdeclutter/tabs-declutter/internal/identity"
	"github.com/tabsdeclutter/tabs-declutter/internal/store"
)

// TriageHandler handles the viewer-facing session and tab item endpoints.
type TriageHandler struct {
	*Handler
}

// NewTriageHandler creates a new triage handler.
func NewTriageHandler(base *Handler) *TriageHandler {
	return &TriageHandler{Handler: base}
}

// RegisterRoutes registers the /api routes.
func (h *TriageHandler) RegisterRoutes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Get("/me", h.GetMe)
		r.Get("/sessions", h.ListSessions)
		r.Get("/sessions/{sessionID}", h.GetSession)
		r.Get("/sessions/{sessionID}/tabs", h.ListSessionTabs)
		r.Patch("/sessions/{sessionID}", h.UpdateSession)
		r.Patch("/tabItems/{tabItemID}", h.UpdateTabStatus)
		r.Delete("/tabItems/{tabItemID}", h.DeleteTabItem)
	})
}

// requireUser returns the acting user or writes a 401.
func requireUser(w http.ResponseWriter, r *http.Request) *domain.User {
	user := identity.UserFromContext(r.Context())
	if user == nil {
		Error(w, http.StatusUnauthorized, "No active session found. Please sign in.")
	}
	return user
}

// GetMe returns the current user's information.
func (h *TriageHandler) GetMe(w http.ResponseWriter, r *http.Request) {
	user := requireUser(w, r)
	if user == nil {
		return
	}
	JSON(w, http.StatusOK, user)
}

// ListSessions returns the user's capture sessions, newest first.
func (h *TriageHandler) ListSessions(w http.ResponseWriter, r *http.Request) {
	user := requireUser(w, r)
	if user == nil {
		return
	}

	sessions, err := h.repo.ListSessions(r.Context(), user.UserID)
	if err != nil {
		slog.Error("Failed to list sessions", "error", err, "user_id", user.UserID)
		Error(w, http.StatusInternalServerError, "Failed to list sessions")
		return
	}
	if sessions == nil {
		sessions = []*domain.Session{}
	}
	JSON(w, http.StatusOK, map[string]interface{}{"sessions": sessions})
}

// GetSession returns one capture session.
func (h *TriageHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	user := requireUser(w, r)
	if user == nil {
		return
	}

	session, err := h.repo.GetSession(r.Context(), user.UserID, chi.URLParam(r, "sessionID"))
	if errors.Is(err, store.ErrNotFound) {
		Error(w, http.StatusNotFound, "Session not found")
		return
	}
	if err != nil {
		slog.Error("Failed to get session", "error", err, "user_id", user.UserID)
		Error(w, http.StatusInternalServerError, "Failed to get session")
		return
	}
	JSON(w, http.StatusOK, session)
}

// ListSessionTabs returns the tab items of one session in capture order.
func (h *TriageHandler) ListSessionTabs(w http.ResponseWriter, r *http.Request) {
	user := requireUser(w, r)
	if user == nil {
		return
	}

	sessionID := chi.URLParam(r, "sessionID")
	if _, err := h.repo.GetSession(r.Context(), user.UserID, sessionID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			Error(w, http.StatusNotFound, "Session not found")
			return
		}
		slog.Error("Failed to get session", "error", err, "user_id", user.UserID)
		Error(w, http.StatusInternalServerError, "Failed to list tabs")
		return
	}

	items, err := h.repo.ListTabItems(r.Context(), user.UserID, sessionID)
	if err != nil {
		slog.Error("Failed to list tab items", "error", err, "session_id", sessionID)
		Error(w, http.StatusInternalServerError, "Failed to list tabs")
		return
	}
	if items == nil {
		items = []*domain.TabItem{}
	}
	JSON(w, http.StatusOK, map[string]interface{}{"tabs": items})
}

// UpdateSessionRequest is the body of PATCH /api/sessions/{id}.
type UpdateSessionRequest struct {
	Status domain.SessionStatus `json:"status"`
}

// UpdateSession moves a session through its lifecycle (complete/abandon/reopen).
func (h *TriageHandler) UpdateSession(w http.ResponseWriter, r *http.Request) {
	user := requireUser(w, r)
	if user == nil {
		return
	}

	var req UpdateSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || !req.Status.Valid() {
		Error(w, http.StatusBadRequest, "Invalid status: must be one of active, completed, abandoned")
		return
	}

	session, err := h.repo.UpdateSessionStatus(r.Context(), user.UserID, chi.URLParam(r, "sessionID"), req.Status)
	if errors.Is(err, store.ErrNotFound) {
		Error(w, http.StatusNotFound, "Session not found")
		return
	}
	if err != nil {
		slog.Error("Failed to update session status", "error", err, "user_id", user.UserID)
		Error(w, http.StatusInternalServerError, "Failed to update session")
		return
	}
	JSON(w, http.StatusOK, session)
}

// UpdateTabStatusRequest is the body of PATCH /api/tabItems/{id}.
type UpdateTabStatusRequest struct {
	Status domain.TabStatus `json:"status"`
}

// UpdateTabStatus applies a triage transition to one tab item.
//
// Any status is reachable from any other. Entering read or delete stamps
// processedAt; entering unread or keep clears it. Concurrent updates are
// last-write-wins.
func (h *TriageHandler) UpdateTabStatus(w http.ResponseWriter, r *http.Request) {
	user := requireUser(w, r)
	if user == nil {
		return
	}

	var req UpdateTabStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || !req.Status.Valid() {
		Error(w, http.StatusBadRequest, "Invalid status: must be one of unread, keep, read, delete")
		return
	}

	item, err := h.repo.UpdateTabStatus(r.Context(), user.UserID, chi.URLParam(r, "tabItemID"), req.Status)
	if errors.Is(err, store.ErrNotFound) {
		Error(w, http.StatusNotFound, "Tab item not found")
		return
	}
	if err != nil {
		slog.Error("Failed to update tab status", "error", err, "user_id", user.UserID)
		Error(w, http.StatusInternalServerError, "Failed to update tab")
		return
	}
	JSON(w, http.StatusOK, item)
}

// DeleteTabItem removes a tab item row. This is the administrative removal
// path; the "delete" triage status never removes rows.
func (h *TriageHandler) DeleteTabItem(w http.ResponseWriter, r *http.Request) {
	user := requireUser(w, r)
	if user == nil {
		return
	}

	err := h.repo.DeleteTabItem(r.Context(), user.UserID, chi.URLParam(r, "tabItemID"))
	if errors.Is(err, store.ErrNotFound) {
		Error(w, http.StatusNotFound, "Tab item not found")
		return
	}
	if err != nil {
		slog.Error("Failed to delete tab item", "error", err, "user_id", user.UserID)
		Error(w, http.StatusInternalServerError, "Failed to delete tab")
		return
	}
	JSON(w, http.StatusOK, map[string]interface{}{"success": true})
}
