package collector

import (
	"testing"

	"github.com/chromedp/cdproto/target"
)

func TestPageTargets(t *testing.T) {
	infos := []*target.Info{
		{Type: "page", URL: "https://a.com", Title: "A"},
		{Type: "service_worker", URL: "https://a.com/sw.js"},
		{Type: "page", URL: "chrome://newtab/", Title: "New Tab"},
		{Type: "background_page", URL: "chrome-extension://abc/bg.html"},
		{Type: "page", URL: "https://b.com"},
	}

	tabs := pageTargets(infos)

	if len(tabs) != 3 {
		t.Fatalf("Expected 3 page targets, got %d: %v", len(tabs), tabs)
	}
	// Internal pages are kept here; filtering is the collector's job.
	if tabs[1].URL != "chrome://newtab/" {
		t.Errorf("Expected internal page preserved at source level, got %q", tabs[1].URL)
	}
	if tabs[0].Title != "A" || tabs[2].Title != "" {
		t.Errorf("Unexpected titles: %v", tabs)
	}
}
