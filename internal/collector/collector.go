// Package collector gathers open-tab metadata from a running browser and
// submits it to the Tabs Declutter backend as one capture batch.
package collector

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// Mode selects which open tabs a capture includes.
type Mode string

const (
	// ModeAll captures every eligible open tab.
	ModeAll Mode = "all"
	// ModeCurrent captures only the most recently active tab.
	ModeCurrent Mode = "current"
)

// Tab is one open browser tab as reported by the source.
type Tab struct {
	URL   string
	Title string
}

// ErrNoEligibleTabs is returned when every open tab was filtered out before
// any network call was attempted.
var ErrNoEligibleTabs = errors.New("no valid tabs to capture")

// UntitledTab replaces a missing tab title before transmission.
const UntitledTab = "Untitled"

// DefaultInternalPrefixes lists the internal-page URL prefixes of the
// Chromium browser family. Tabs whose URL starts with any of these are never
// captured. Override via collector configuration.
var DefaultInternalPrefixes = []string{
	"chrome://",
	"edge://",
	"brave://",
	"about:",
	"chrome-extension://",
	"moz-extension://",
	"vivaldi://",
	"opera://",
}

// Eligible reports whether a tab URL may be captured.
func Eligible(url string, internalPrefixes []string) bool {
	if url == "" {
		return false
	}
	for _, prefix := range internalPrefixes {
		if strings.HasPrefix(url, prefix) {
			return false
		}
	}
	return true
}

// Filter drops internal-page tabs and defaults missing titles, preserving
// order. Duplicate URLs are allowed; deduplication is deliberately not
// performed.
func Filter(tabs []Tab, internalPrefixes []string) []Tab {
	out := make([]Tab, 0, len(tabs))
	for _, tab := range tabs {
		if !Eligible(tab.URL, internalPrefixes) {
			continue
		}
		if tab.Title == "" {
			tab.Title = UntitledTab
		}
		out = append(out, tab)
	}
	return out
}

// Source enumerates the currently open tabs.
type Source interface {
	ListTabs(ctx context.Context) ([]Tab, error)
}

// Submitter sends one capture batch to the backend.
type Submitter interface {
	CaptureTabs(ctx context.Context, tabs []Tab) (*CaptureResult, error)
}

// Recorder persists the last-capture summary for display purposes. It is
// the collector's only local side effect.
type Recorder interface {
	Record(at time.Time, count int) error
}

// Collector wires a tab source to the backend client.
type Collector struct {
	source   Source
	client   Submitter
	state    Recorder
	prefixes []string
}

// New creates a Collector. A nil state recorder disables local bookkeeping.
func New(source Source, client Submitter, state Recorder, internalPrefixes []string) *Collector {
	if internalPrefixes == nil {
		internalPrefixes = DefaultInternalPrefixes
	}
	return &Collector{source: source, client: client, state: state, prefixes: internalPrefixes}
}

// Result summarizes one capture run.
type Result struct {
	SessionID string
	Submitted int
	Captured  int
	Errors    []ItemError
}

// Partial reports whether some, but not all, submitted tabs were stored.
func (r *Result) Partial() bool {
	return len(r.Errors) > 0 && r.Captured > 0
}

// Failed reports whether the server stored none of the submitted tabs. The
// HTTP exchange itself succeeded; every item was rejected individually.
func (r *Result) Failed() bool {
	return len(r.Errors) > 0 && r.Captured == 0
}

// Run gathers tabs, filters them, and submits the batch.
//
// If filtering leaves nothing, Run fails with ErrNoEligibleTabs before any
// network call. A response carrying per-item errors is still a success;
// callers distinguish partial from total capture via the Result.
func (c *Collector) Run(ctx context.Context, mode Mode) (*Result, error) {
	tabs, err := c.source.ListTabs(ctx)
	if err != nil {
		return nil, fmt.Errorf("list open tabs: %w", err)
	}
	if mode == ModeCurrent && len(tabs) > 0 {
		tabs = tabs[:1]
	}

	batch := Filter(tabs, c.prefixes)
	if len(batch) == 0 {
		return nil, ErrNoEligibleTabs
	}

	resp, err := c.client.CaptureTabs(ctx, batch)
	if err != nil {
		return nil, err
	}

	if c.state != nil {
		if err := c.state.Record(time.Now(), resp.TabsCaptured); err != nil {
			slog.Warn("Failed to record last capture", "error", err)
		}
	}

	return &Result{
		SessionID: resp.SessionID,
		Submitted: len(batch),
		Captured:  resp.TabsCaptured,
		Errors:    resp.Errors,
	}, nil
}
