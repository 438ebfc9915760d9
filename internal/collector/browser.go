package collector

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"
)

// BrowserSource enumerates open tabs of a running Chromium over the DevTools
// protocol. The browser must be started with remote debugging enabled.
type BrowserSource struct {
	cdpURL string
}

// NewBrowserSource creates a source for the given CDP HTTP endpoint,
// e.g. "http://127.0.0.1:9222".
func NewBrowserSource(cdpURL string) *BrowserSource {
	return &BrowserSource{cdpURL: cdpURL}
}

// ListTabs returns every page target currently open in the browser. The
// DevTools target list is ordered most recently active first, which is what
// current-tab capture relies on.
func (s *BrowserSource) ListTabs(ctx context.Context) ([]Tab, error) {
	allocCtx, allocCancel := chromedp.NewRemoteAllocator(ctx, s.cdpURL)
	defer allocCancel()

	browserCtx, cancel := chromedp.NewContext(allocCtx)
	defer cancel()

	if err := chromedp.Run(browserCtx); err != nil {
		return nil, fmt.Errorf("connect to browser at %s: %w", s.cdpURL, err)
	}

	targets, err := chromedp.Targets(browserCtx)
	if err != nil {
		return nil, fmt.Errorf("enumerate browser targets: %w", err)
	}

	tabs := pageTargets(targets)
	slog.Debug("Enumerated browser tabs", "targets", len(targets), "pages", len(tabs))
	return tabs, nil
}

// pageTargets keeps only page targets; service workers, extensions and
// devtools targets are not tabs.
func pageTargets(infos []*target.Info) []Tab {
	tabs := make([]Tab, 0, len(infos))
	for _, t := range infos {
		if t.Type != "page" {
			continue
		}
		tabs = append(tabs, Tab{URL: t.URL, Title: t.Title})
	}
	return tabs
}
