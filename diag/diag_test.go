package diag

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/skimkit/skim/site"
	"github.com/skimkit/skim/tap"
)

// brokenPager fails every call, simulating a crashed/detached page.
type brokenPager struct{}

func (brokenPager) PageURL(context.Context) (string, error)      { return "", errors.New("gone") }
func (brokenPager) PageTitle(context.Context) (string, error)    { return "", errors.New("gone") }
func (brokenPager) Excerpt(context.Context, int) (string, error) { return "", errors.New("gone") }
func (brokenPager) Screenshot(context.Context, string) error     { return errors.New("gone") }

type okPager struct{ screenshots []string }

func (okPager) PageURL(context.Context) (string, error)      { return "https://e.com/s", nil }
func (okPager) PageTitle(context.Context) (string, error)    { return "results", nil }
func (okPager) Excerpt(context.Context, int) (string, error) { return "page body text", nil }
func (p *okPager) Screenshot(_ context.Context, path string) error {
	p.screenshots = append(p.screenshots, path)
	return os.WriteFile(path, []byte("png"), 0o644)
}

func TestCapture_OffTier(t *testing.T) {
	got := Capture(context.Background(), Input{ID: "n1", Reason: "x"}, Off, "")
	if got != nil {
		t.Errorf("off tier: got %+v, want nil", got)
	}
}

func TestCapture_MinimalNeverTouchesPage(t *testing.T) {
	b := Capture(context.Background(), Input{
		ID:     "n1",
		Reason: site.ReasonModalTimeout,
		Page:   brokenPager{},
	}, Minimal, "")

	if b == nil {
		t.Fatal("minimal tier returned nil")
	}
	if b.PageURL != "" || b.PageExcerpt != "" {
		t.Errorf("minimal tier accessed the page: %+v", b)
	}
}

func TestCapture_StandardSurvivesBrokenPage(t *testing.T) {
	b := Capture(context.Background(), Input{
		ID: "n1", Reason: "x", Page: brokenPager{},
	}, Standard, "")

	if b == nil {
		t.Fatal("standard tier returned nil on broken page")
	}
	if b.PageURL != "" || b.PageTitle != "" || b.PageExcerpt != "" {
		t.Errorf("broken page should blank fields: %+v", b)
	}
}

func TestCapture_FullTier(t *testing.T) {
	dir := t.TempDir()
	p := &okPager{}
	b := Capture(context.Background(), Input{
		ID: "n1", Reason: "x", Page: p,
	}, Full, dir)

	if b.PageURL != "https://e.com/s" || b.PageTitle != "results" {
		t.Errorf("page fields: %+v", b)
	}
	if b.ScreenshotPath == "" || len(p.screenshots) != 1 {
		t.Errorf("screenshot not captured: %+v", b)
	}
}

func TestCapture_TapState(t *testing.T) {
	tp := tap.NewWithRoutes(nopSource{}, nil, func(site.Parsed) string { return "" }, nil)
	b := Capture(context.Background(), Input{ID: "n1", Tap: tp}, Minimal, "")
	if b.TapHasFeed || b.TapHasComments || b.TapCommentCount != 0 {
		t.Errorf("empty tap state: %+v", b)
	}
}

type nopSource struct{}

func (nopSource) ListenResponses(func(tap.Response)) func() { return func() {} }

func TestSave_LayoutAndNoOverwrite(t *testing.T) {
	base := t.TempDir()
	in := Input{ID: "n/1", Reason: "x", Site: "xhs", Keyword: "topic/a"}

	p1 := Save(Capture(context.Background(), in, Minimal, ""), base, nil)
	p2 := Save(Capture(context.Background(), in, Minimal, ""), base, nil)

	if p1 == "" || p2 == "" {
		t.Fatalf("Save failed: %q %q", p1, p2)
	}
	if p1 == p2 {
		t.Errorf("second save overwrote the first: %s", p1)
	}
	wantDir := filepath.Join(base, "xhs", "topic_a")
	if filepath.Dir(p1) != wantDir {
		t.Errorf("bundle dir: got %s, want %s", filepath.Dir(p1), wantDir)
	}

	data, err := os.ReadFile(p1)
	if err != nil {
		t.Fatal(err)
	}
	var loaded Bundle
	if err := json.Unmarshal(data, &loaded); err != nil {
		t.Fatalf("saved bundle not valid JSON: %v", err)
	}
	if loaded.ID != "n/1" || loaded.Site != "xhs" {
		t.Errorf("round trip: %+v", loaded)
	}
}

func TestSave_NilAndEmptyBase(t *testing.T) {
	if got := Save(nil, t.TempDir(), nil); got != "" {
		t.Errorf("Save(nil): got %q", got)
	}
	b := Capture(context.Background(), Input{ID: "x"}, Minimal, "")
	if got := Save(b, "", nil); got != "" {
		t.Errorf("Save with empty base: got %q", got)
	}
}
