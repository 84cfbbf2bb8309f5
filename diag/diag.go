// Package diag captures best-effort snapshots of page and tap state when a
// detail fetch fails. Bundles exist purely for post-hoc debugging: capture
// never influences control flow, never raises, and costs nothing at the
// "off" tier.
package diag

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/skimkit/skim/site"
	"github.com/skimkit/skim/tap"
)

// Verbosity tiers, strictly additive in cost.
type Verbosity string

const (
	Off      Verbosity = "off"      // no capture at all
	Minimal  Verbosity = "minimal"  // tap state + timings, no page access
	Standard Verbosity = "standard" // + page URL/title/text excerpt
	Full     Verbosity = "full"     // + screenshot
)

// Pager is the minimal page surface diag needs for the standard and full
// tiers. Every method may fail; failures only blank the field.
type Pager interface {
	PageURL(ctx context.Context) (string, error)
	PageTitle(ctx context.Context) (string, error)
	Excerpt(ctx context.Context, maxLen int) (string, error)
	Screenshot(ctx context.Context, path string) error
}

// Bundle is one failure snapshot.
type Bundle struct {
	ID      string `json:"id"`
	Reason  string `json:"reason"`
	Site    string `json:"site"`
	Keyword string `json:"keyword"`

	PageURL     string `json:"page_url,omitempty"`
	PageTitle   string `json:"page_title,omitempty"`
	PageExcerpt string `json:"page_excerpt,omitempty"`

	TapHasFeed      bool `json:"tap_has_feed"`
	TapHasComments  bool `json:"tap_has_comments"`
	TapCommentCount int  `json:"tap_comment_count"`

	PhaseTimings map[string]float64 `json:"phase_timings,omitempty"`
	TotalElapsed float64            `json:"total_elapsed"`
	HealthScore  float64            `json:"health_score"`

	AdapterExtras  map[string]any `json:"adapter_extras,omitempty"`
	ScreenshotPath string         `json:"screenshot_path,omitempty"`
	Timestamp      time.Time      `json:"timestamp"`
}

// Input collects everything Capture may inspect. Page, Tap, and Adapter
// are all optional.
type Input struct {
	Page    Pager
	Tap     *tap.Tap
	Adapter site.Adapter

	ID      string
	Reason  string
	Site    string
	Keyword string

	PhaseTimings map[string]float64
	TotalElapsed float64
	HealthScore  float64
}

const excerptLen = 2000

// Capture builds a failure bundle at the given tier. Every step is guarded
// independently: a crashed or detached page can blank fields but never
// propagate an error. Returns nil at the off tier.
func Capture(ctx context.Context, in Input, v Verbosity, screenshotDir string) *Bundle {
	if v == Off || v == "" {
		return nil
	}

	b := &Bundle{
		ID:           in.ID,
		Reason:       in.Reason,
		Site:         in.Site,
		Keyword:      in.Keyword,
		PhaseTimings: in.PhaseTimings,
		TotalElapsed: in.TotalElapsed,
		HealthScore:  in.HealthScore,
		Timestamp:    time.Now(),
	}

	if in.Tap != nil {
		b.TapHasFeed = in.Tap.Feed(in.ID) != nil
		comments := in.Tap.Comments(in.ID)
		b.TapHasComments = len(comments) > 0
		b.TapCommentCount = len(comments)
	}

	if (v == Standard || v == Full) && in.Page != nil {
		if u, err := in.Page.PageURL(ctx); err == nil {
			b.PageURL = u
		}
		if title, err := in.Page.PageTitle(ctx); err == nil {
			b.PageTitle = title
		}
		if excerpt, err := in.Page.Excerpt(ctx, excerptLen); err == nil {
			b.PageExcerpt = excerpt
		}
	}

	if v == Full && in.Page != nil && screenshotDir != "" {
		if err := os.MkdirAll(screenshotDir, 0o755); err == nil {
			path := filepath.Join(screenshotDir,
				fmt.Sprintf("fail_%s_%s.png", timestampSlug(b.Timestamp), safeID(in.ID)))
			if err := in.Page.Screenshot(ctx, path); err == nil {
				b.ScreenshotPath = path
			}
		}
	}

	if d, ok := in.Adapter.(site.Diagnoser); ok {
		if extras := d.FailureDiagnostics(ctx, in.ID); len(extras) > 0 {
			b.AdapterExtras = extras
		}
	}

	return b
}

// Save writes the bundle under baseDir/<site>/<keyword>/, one file per
// failure, never overwriting. Returns the path, or "" on any failure.
func Save(b *Bundle, baseDir string, logger *slog.Logger) string {
	if b == nil || baseDir == "" {
		return ""
	}
	if logger == nil {
		logger = slog.Default()
	}

	siteName := b.Site
	if siteName == "" {
		siteName = "unknown"
	}
	keyword := b.Keyword
	if keyword == "" {
		keyword = "unknown"
	}
	dir := filepath.Join(baseDir, safeID(siteName), safeID(keyword))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		logger.Debug("diag: mkdir failed", "dir", dir, "error", err)
		return ""
	}

	stem := fmt.Sprintf("%s_%s", timestampSlug(b.Timestamp), safeID(b.ID))
	path := filepath.Join(dir, stem+".json")
	for n := 1; ; n++ {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			break
		}
		path = filepath.Join(dir, fmt.Sprintf("%s_%d.json", stem, n))
	}

	data, err := json.MarshalIndent(b, "", "  ")
	if err != nil {
		logger.Debug("diag: marshal failed", "error", err)
		return ""
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		logger.Debug("diag: write failed", "path", path, "error", err)
		return ""
	}
	return path
}

// timestampSlug formats a capture time with millisecond suffix so rapid
// consecutive failures get distinct file names.
func timestampSlug(t time.Time) string {
	return t.Format("20060102_150405") + fmt.Sprintf("_%03d", t.Nanosecond()/1e6)
}

func safeID(s string) string {
	s = strings.NewReplacer("/", "_", "\\", "_", " ", "_").Replace(s)
	if len(s) > 50 {
		s = s[:50]
	}
	if s == "" {
		return "unknown"
	}
	return s
}
