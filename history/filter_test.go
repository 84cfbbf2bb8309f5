package history

import (
	"strconv"
	"testing"

	"github.com/skimkit/skim/site"
)

func parseInt(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}

func TestShouldRefetch(t *testing.T) {
	entries := map[string]Entry{
		"seen-stable":   {Likes: 100, Comments: 5},
		"seen-doubled":  {Likes: 100, Comments: 5},
		"seen-abs-jump": {Likes: 300, Comments: 5},
		"no-baseline":   {Likes: 0, Comments: 0},
	}

	tests := []struct {
		name         string
		card         site.Candidate
		wantFetch    bool
		wantTrending bool
	}{
		{"unseen", site.Candidate{ID: "new", LikesFromCard: "10"}, true, false},
		{"seen unchanged", site.Candidate{ID: "seen-stable", LikesFromCard: "105"}, false, false},
		{"seen doubled", site.Candidate{ID: "seen-doubled", LikesFromCard: "200"}, true, true},
		{"seen abs spike", site.Candidate{ID: "seen-abs-jump", LikesFromCard: "355"}, true, true},
		{"zero baseline", site.Candidate{ID: "no-baseline", LikesFromCard: "5000"}, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fetch, trending := ShouldRefetch(tt.card, entries, parseInt,
				DefaultLikesMultiplier, DefaultLikesAbsThreshold)
			if fetch != tt.wantFetch || trending != tt.wantTrending {
				t.Errorf("got (%v, %v), want (%v, %v)",
					fetch, trending, tt.wantFetch, tt.wantTrending)
			}
		})
	}
}

func TestFilterCandidates(t *testing.T) {
	entries := map[string]Entry{
		"stable": {Likes: 100},
	}
	cards := []site.Candidate{
		{ID: "fresh", LikesFromCard: "10"},
		{ID: "stable", LikesFromCard: "101"},
		{ID: "", Title: "no identity"},
		{ID: "fresh", LikesFromCard: "10"}, // duplicate within the page
	}
	sessionSeen := map[string]bool{}

	fetch, skipped := FilterCandidates(cards, sessionSeen, entries, parseInt)

	if len(fetch) != 1 || fetch[0].ID != "fresh" {
		t.Fatalf("fetch: got %v, want [fresh]", fetch)
	}
	if len(skipped) != 1 || skipped[0].ID != "stable" {
		t.Fatalf("skipped: got %v, want [stable]", skipped)
	}
	if !skipped[0].SkipDetail {
		t.Error("skipped card should carry SkipDetail")
	}
	if !sessionSeen["stable"] {
		t.Error("skipped identity should enter sessionSeen")
	}
}

func TestFilterCandidates_SessionDedup(t *testing.T) {
	sessionSeen := map[string]bool{"done": true}
	cards := []site.Candidate{{ID: "done"}, {ID: "new"}}

	fetch, skipped := FilterCandidates(cards, sessionSeen, nil, parseInt)
	if len(fetch) != 1 || fetch[0].ID != "new" {
		t.Errorf("fetch: got %v, want [new]", fetch)
	}
	if len(skipped) != 0 {
		t.Errorf("skipped: got %v, want none", skipped)
	}
}

func TestFilterCandidates_NilHistory(t *testing.T) {
	// nil history disables the seen check entirely.
	fetch, skipped := FilterCandidates(
		[]site.Candidate{{ID: "a"}, {ID: "b"}}, map[string]bool{}, nil, parseInt)
	if len(fetch) != 2 || len(skipped) != 0 {
		t.Errorf("got fetch=%d skipped=%d, want 2/0", len(fetch), len(skipped))
	}
}
