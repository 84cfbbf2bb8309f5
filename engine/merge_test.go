package engine

import (
	"strconv"
	"strings"
	"testing"

	"github.com/skimkit/skim/site"
)

func mergeOrchestrator(cfg Config) *Orchestrator {
	cfg.defaults()
	return &Orchestrator{cfg: cfg, adapter: &fakeAdapter{}}
}

func TestBuildRecord_PassiveWins(t *testing.T) {
	o := mergeOrchestrator(Config{})
	card := site.Candidate{ID: "p1", Title: "card title", Author: "card author"}
	feed := &site.Detail{
		Title: "api title", Content: "api content", Author: "api author",
		Likes: "100", Comments: "20", Date: "2026-01-02",
	}
	dom := site.Detail{
		Title: "dom title", Content: "dom content", Likes: "999", Comments: "999",
	}

	rec := o.buildRecord(card, feed, dom, nil, nil, "", true)
	if rec.Source != site.SourcePassive {
		t.Fatalf("source = %q", rec.Source)
	}
	if rec.Title != "api title" || rec.Content != "api content" || rec.Likes != "100" {
		t.Errorf("api payload did not win: %+v", rec)
	}
}

func TestBuildRecord_DomFillsGaps(t *testing.T) {
	o := mergeOrchestrator(Config{})
	card := site.Candidate{ID: "p1", TimeText: "3 days ago"}
	feed := &site.Detail{Content: "api content", Likes: "0", Comments: ""}
	dom := site.Detail{Likes: "420", Comments: "17", Date: "2026-01-02", Author: "dom author"}

	rec := o.buildRecord(card, feed, dom, nil, nil, "", true)
	if rec.Likes != "420" {
		t.Errorf("likes = %q, want dom value over zero api", rec.Likes)
	}
	if rec.Comments != "17" {
		t.Errorf("comments = %q, want dom value over empty api", rec.Comments)
	}
	if rec.Author != "dom author" {
		t.Errorf("author = %q", rec.Author)
	}
	if rec.Date != "2026-01-02" {
		t.Errorf("date = %q, want dom before card text", rec.Date)
	}
}

func TestBuildRecord_FallbackFromDOM(t *testing.T) {
	o := mergeOrchestrator(Config{})
	card := site.Candidate{ID: "p1", Title: "card title", LikesFromCard: "88"}
	dom := site.Detail{Content: "dom content", Comments: "4", Tags: []string{"tag1"}}

	rec := o.buildRecord(card, nil, dom, nil, nil, "", true)
	if rec.Source != site.SourceFallback {
		t.Fatalf("source = %q", rec.Source)
	}
	if rec.Content != "dom content" || rec.Title != "card title" || rec.Likes != "88" {
		t.Errorf("fallback merge wrong: %+v", rec)
	}
	if rec.CardOnly {
		t.Error("fallback with content marked card-only")
	}
}

func TestBuildRecord_EmptyContentDemotes(t *testing.T) {
	o := mergeOrchestrator(Config{})
	card := site.Candidate{ID: "p1"}

	rec := o.buildRecord(card, nil, site.Detail{}, nil, nil, "", true)
	if !rec.CardOnly || rec.CardOnlyReason != site.ReasonEmptyContent {
		t.Errorf("loaded+empty: reason = %q, want empty-content", rec.CardOnlyReason)
	}
	if rec.Source != site.SourceCardOnly {
		t.Errorf("source = %q, want card-only", rec.Source)
	}

	rec = o.buildRecord(card, nil, site.Detail{}, nil, nil, "", false)
	if rec.CardOnlyReason != site.ReasonModalTimeout {
		t.Errorf("never-rendered: reason = %q, want modal-timeout", rec.CardOnlyReason)
	}
}

func TestBuildRecord_CommentPrecedenceAndCap(t *testing.T) {
	o := mergeOrchestrator(Config{MaxComments: 3})

	api := make([]site.Comment, 5)
	for i := range api {
		api[i] = site.Comment{ID: "api" + strconv.Itoa(i), Text: "t"}
	}
	dom := []site.Comment{{ID: "dom0", Text: "t"}}
	feed := &site.Detail{Content: "x"}

	rec := o.buildRecord(site.Candidate{ID: "p1"}, feed, site.Detail{}, api, dom, "", true)
	if len(rec.Top) != 3 {
		t.Fatalf("top = %d, want capped at 3", len(rec.Top))
	}
	if rec.Top[0].ID != "api0" {
		t.Errorf("top[0] = %q, want intercepted comments preferred", rec.Top[0].ID)
	}

	rec = o.buildRecord(site.Candidate{ID: "p1"}, feed, site.Detail{}, nil, dom, "", true)
	if len(rec.Top) != 1 || rec.Top[0].ID != "dom0" {
		t.Errorf("top = %+v, want dom comments when no interception", rec.Top)
	}
}

func TestBuildRecord_MarkdownContent(t *testing.T) {
	o := mergeOrchestrator(Config{ContentMarkdown: true})
	feed := &site.Detail{Content: "<p>hello <strong>world</strong></p>"}

	rec := o.buildRecord(site.Candidate{ID: "p1"}, feed, site.Detail{}, nil, nil, "", true)
	if !strings.Contains(rec.Content, "**world**") || strings.Contains(rec.Content, "<p>") {
		t.Errorf("content = %q, want markdown", rec.Content)
	}
}

func TestBuildRecord_ScreenshotLeavesCoverAlone(t *testing.T) {
	o := mergeOrchestrator(Config{})
	feed := &site.Detail{Content: "x"}

	rec := o.buildRecord(site.Candidate{ID: "p1"}, feed, site.Detail{}, nil, nil, "/shots/p1.png", true)
	if rec.Screenshot != "/shots/p1.png" {
		t.Errorf("screenshot = %q", rec.Screenshot)
	}
	// A local file path is not a cover URL; a post without a cover stays
	// without one.
	if rec.CoverURL != "" {
		t.Errorf("cover = %q, want empty", rec.CoverURL)
	}

	feed.CoverURL = "https://cdn.example/p1.jpg"
	rec = o.buildRecord(site.Candidate{ID: "p1"}, feed, site.Detail{}, nil, nil, "/shots/p1.png", true)
	if rec.CoverURL != "https://cdn.example/p1.jpg" {
		t.Errorf("cover = %q, want intercepted value kept", rec.CoverURL)
	}
}
