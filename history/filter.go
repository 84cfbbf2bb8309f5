package history

import (
	"github.com/skimkit/skim/site"
)

// Refetch thresholds: a seen post is fetched again when its likes at least
// doubled, or grew by 50 in absolute terms. Tuned empirically; see
// ShouldRefetch.
const (
	DefaultLikesMultiplier   = 2.0
	DefaultLikesAbsThreshold = 50
)

// ShouldRefetch decides whether a candidate's detail is worth opening
// given the persisted baseline. parse converts the card's engagement
// string to an integer (adapter owned).
//
// Returns (fetch, trending):
//   - unseen identity: (true, false): always fetch new posts
//   - seen with zero stored likes: (false, false): no usable baseline
//     (legacy-migrated entry), nothing to compare against
//   - seen with a spike past either threshold: (true, true)
//   - seen and stable: (false, false)
func ShouldRefetch(c site.Candidate, entries map[string]Entry, parse func(string) int,
	multiplier float64, absThreshold int) (bool, bool) {

	old, seen := entries[c.ID]
	if !seen {
		return true, false
	}
	if old.Likes == 0 {
		return false, false
	}

	newLikes := parse(c.LikesFromCard)
	if float64(newLikes) >= float64(old.Likes)*multiplier ||
		newLikes-old.Likes >= absThreshold {
		return true, true
	}
	return false, false
}

// FilterCandidates partitions one page of candidates into cards to fetch
// and cards skipped as already seen. Candidates without an identity, or
// already handled in this session, are dropped entirely. Skipped cards are
// returned (flagged SkipDetail) so they still show up in reports, and their
// identities are added to sessionSeen so later pages do not resurface them.
// A nil entries map disables the history check: everything unseen in the
// session is fetched.
func FilterCandidates(cards []site.Candidate, sessionSeen map[string]bool,
	entries map[string]Entry, parse func(string) int) (fetch, skipped []site.Candidate) {

	for _, c := range cards {
		if c.ID == "" || sessionSeen[c.ID] {
			continue
		}
		if entries != nil {
			doFetch, trending := ShouldRefetch(c, entries, parse,
				DefaultLikesMultiplier, DefaultLikesAbsThreshold)
			c.Trending = trending
			if !doFetch {
				sessionSeen[c.ID] = true
				c.SkipDetail = true
				skipped = append(skipped, c)
				continue
			}
		}
		fetch = append(fetch, c)
	}
	return fetch, skipped
}
