package collector

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestClientCaptureTabs(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/captureTabs" {
			t.Errorf("Unexpected path %q", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer key-1" {
			t.Errorf("Unexpected Authorization header %q", got)
		}

		var req struct {
			Tabs []struct {
				URL   string `json:"url"`
				Title string `json:"title"`
			} `json:"tabs"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("Failed to decode request: %v", err)
		}
		if len(req.Tabs) != 2 {
			t.Errorf("Expected 2 tabs, got %d", len(req.Tabs))
		}

		_ = json.NewEncoder(w).Encode(map[string]any{
			"success":      true,
			"sessionId":    "sess-1",
			"tabsCaptured": 2,
		})
	}))
	defer srv.Close()

	client := NewClient(srv.URL+"/", "key-1")
	result, err := client.CaptureTabs(context.Background(), []Tab{
		{URL: "https://a.com", Title: "A"},
		{URL: "https://b.com", Title: "B"},
	})
	if err != nil {
		t.Fatalf("CaptureTabs failed: %v", err)
	}
	if result.SessionID != "sess-1" || result.TabsCaptured != 2 {
		t.Errorf("Unexpected result: %+v", result)
	}
}

func TestClientAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"success":false,"error":"No user found. Please sign up at least one user in the app first."}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "bad-key")
	_, err := client.CaptureTabs(context.Background(), []Tab{{URL: "https://a.com"}})

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("Expected APIError, got %v", err)
	}
	if apiErr.StatusCode != http.StatusUnauthorized {
		t.Errorf("Expected status 401, got %d", apiErr.StatusCode)
	}
	if apiErr.Message != "No user found. Please sign up at least one user in the app first." {
		t.Errorf("Unexpected message %q", apiErr.Message)
	}
}

func TestClientMalformedErrorBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("<html>upstream exploded</html>"))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "key-1")
	_, err := client.CaptureTabs(context.Background(), []Tab{{URL: "https://a.com"}})

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("Expected APIError, got %v", err)
	}
	if apiErr.Message != "request failed with status 502" {
		t.Errorf("Unexpected coerced message %q", apiErr.Message)
	}
}

func TestClientTransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // connection refused from here on

	client := NewClient(srv.URL, "key-1")
	_, err := client.CaptureTabs(context.Background(), []Tab{{URL: "https://a.com"}})

	if !errors.Is(err, ErrTransport) {
		t.Fatalf("Expected ErrTransport, got %v", err)
	}
}

func TestClientUnsuccessfulBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"success":false,"error":"Failed to capture tabs"}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "key-1")
	_, err := client.CaptureTabs(context.Background(), []Tab{{URL: "https://a.com"}})

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("Expected APIError for success=false body, got %v", err)
	}
	if apiErr.Message != "Failed to capture tabs" {
		t.Errorf("Unexpected message %q", apiErr.Message)
	}
}
