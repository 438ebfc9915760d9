package collector

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// ErrTransport marks network-level failures, reported distinctly from a
// well-formed error response body.
var ErrTransport = errors.New("network error")

// APIError is a non-success response from the backend.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
}

// ItemError is one per-tab failure reported by the backend.
type ItemError struct {
	URL   string `json:"url"`
	Error string `json:"error"`
}

// CaptureResult is the backend's success response to a capture batch.
type CaptureResult struct {
	Success      bool        `json:"success"`
	SessionID    string      `json:"sessionId"`
	TabsCaptured int         `json:"tabsCaptured"`
	Errors       []ItemError `json:"errors"`
}

// Client submits capture batches to the backend.
type Client struct {
	apiURL string
	apiKey string
	http   *http.Client
}

// NewClient creates a backend client. apiURL is the server base address.
func NewClient(apiURL, apiKey string) *Client {
	return &Client{
		apiURL: strings.TrimRight(apiURL, "/"),
		apiKey: apiKey,
		http:   &http.Client{Timeout: 30 * time.Second},
	}
}

type captureRequest struct {
	Tabs []captureTab `json:"tabs"`
}

type captureTab struct {
	URL   string `json:"url"`
	Title string `json:"title"`
}

// CaptureTabs POSTs one batch to /captureTabs and decodes the result.
// Network failures are wrapped with ErrTransport; error bodies that are not
// valid JSON are coerced into a generic message rather than failing the
// error path itself.
func (c *Client) CaptureTabs(ctx context.Context, tabs []Tab) (*CaptureResult, error) {
	reqBody := captureRequest{Tabs: make([]captureTab, len(tabs))}
	for i, t := range tabs {
		reqBody.Tabs[i] = captureTab{URL: t.URL, Title: t.Title}
	}

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("encode capture request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL+"/captureTabs", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build capture request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", ErrTransport, err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &APIError{StatusCode: resp.StatusCode, Message: errorMessage(body, resp.StatusCode)}
	}

	var result CaptureResult
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("decode capture response: %w", err)
	}
	if !result.Success {
		return nil, &APIError{StatusCode: resp.StatusCode, Message: errorMessage(body, resp.StatusCode)}
	}
	return &result, nil
}

// errorMessage extracts a human-readable message from an error body.
func errorMessage(body []byte, status int) string {
	var parsed struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &parsed); err == nil {
		if parsed.Message != "" {
			return parsed.Message
		}
		if parsed.Error != "" {
			return parsed.Error
		}
	}
	return fmt.Sprintf("request failed with status %d", status)
}
