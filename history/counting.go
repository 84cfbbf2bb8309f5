package history

import (
	"time"

	"github.com/skimkit/skim/site"
)

// skipReasons are card-only reasons for records whose detail fetch was
// never attempted. They appear in reports but not in fetch totals.
var skipReasons = map[string]bool{
	site.ReasonSeen:    true,
	site.ReasonSkipped: true,
}

// FetchCount counts records whose detail fetch was actually attempted,
// successful or not.
func FetchCount(records []*site.Record) int {
	n := 0
	for _, r := range records {
		if r.CardOnly && skipReasons[r.CardOnlyReason] {
			continue
		}
		n++
	}
	return n
}

// GrindCount counts records valid for grind mode: successfully fetched and
// published within the last maxAgeDays. Records with an unknown timestamp
// get the benefit of the doubt. Millisecond timestamps are normalized.
func GrindCount(records []*site.Record, maxAgeDays int) int {
	cutoff := time.Now().Unix() - int64(maxAgeDays)*86400
	n := 0
	for _, r := range records {
		if r.CardOnly {
			continue
		}
		ts := r.Timestamp
		if ts > 1e12 {
			ts /= 1000
		}
		if ts <= 0 || ts >= cutoff {
			n++
		}
	}
	return n
}

// CountForLimit counts records toward the run's item limit in the
// configured mode.
func CountForLimit(records []*site.Record, grind bool, maxAgeDays int) int {
	if grind {
		return GrindCount(records, maxAgeDays)
	}
	return FetchCount(records)
}
