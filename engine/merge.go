package engine

import (
	"github.com/skimkit/skim/extract"
	"github.com/skimkit/skim/site"
)

// buildRecord reconciles the intercepted feed payload with the document
// extraction into one Record. Precedence: an intercepted payload wins
// wholesale; document values fill only what the payload left blank, except
// engagement counts, where a concrete document value beats a zero payload
// value (interception sometimes lands before counters populate).
func (o *Orchestrator) buildRecord(card site.Candidate, feed *site.Detail, dom site.Detail, apiComments, domComments []site.Comment, shot string, detailLoaded bool) *site.Record {
	top := apiComments
	if len(top) == 0 {
		top = domComments
	}
	if len(top) > o.cfg.MaxComments {
		top = top[:o.cfg.MaxComments]
	}

	var rec *site.Record
	if feed != nil {
		rec = o.fromFeed(card, feed, dom)
	} else {
		rec = o.fromDOM(card, dom, detailLoaded)
	}

	rec.Top = top
	rec.Trending = card.Trending
	if shot != "" {
		rec.Screenshot = shot
	}
	rec.Content = o.renderContent(rec.Content)
	return rec
}

// fromFeed builds a passive record, backfilled from the document.
func (o *Orchestrator) fromFeed(card site.Candidate, feed *site.Detail, dom site.Detail) *site.Record {
	url := card.URL
	if url == "" {
		url = o.adapter.CanonicalURL(card.ID)
	}
	rec := &site.Record{
		ID:        card.ID,
		URL:       url,
		Title:     feed.Title,
		Content:   feed.Content,
		Author:    feed.Author,
		Likes:     feed.Likes,
		Comments:  feed.Comments,
		Collects:  feed.Collects,
		Shares:    feed.Shares,
		Date:      feed.Date,
		Tags:      feed.Tags,
		CoverURL:  feed.CoverURL,
		VideoURL:  feed.VideoURL,
		ImageURLs: feed.ImageURLs,
		Timestamp: feed.Timestamp,
		Source:    site.SourcePassive,
	}

	if rec.Title == "" {
		rec.Title = firstNonEmpty(dom.Title, card.Title)
	}
	if rec.Content == "" {
		rec.Content = dom.Content
	}
	if rec.Author == "" {
		rec.Author = firstNonEmpty(dom.Author, card.Author)
	}
	if rec.Date == "" {
		rec.Date = firstNonEmpty(dom.Date, card.TimeText)
	}
	rec.Likes = preferConcrete(rec.Likes, dom.Likes)
	rec.Comments = preferConcrete(rec.Comments, dom.Comments)
	rec.Collects = preferConcrete(rec.Collects, dom.Collects)
	if rec.Timestamp == 0 {
		rec.Timestamp = dom.Timestamp
	}
	return rec
}

// fromDOM builds a fallback record from document extraction and card data.
// An empty content body demotes it to card-only with a reason that encodes
// whether the detail view ever rendered.
func (o *Orchestrator) fromDOM(card site.Candidate, dom site.Detail, detailLoaded bool) *site.Record {
	rec := site.FromCandidate(card, o.adapter)
	rec.Source = site.SourceFallback
	rec.Title = firstNonEmpty(card.Title, dom.Title)
	rec.Content = dom.Content
	rec.Author = firstNonEmpty(card.Author, dom.Author)
	rec.Likes = firstNonEmpty(dom.Likes, card.LikesFromCard, "0")
	rec.Comments = firstNonEmpty(dom.Comments, "0")
	rec.Collects = dom.Collects
	rec.Shares = dom.Shares
	rec.Date = firstNonEmpty(dom.Date, card.TimeText)
	rec.Tags = dom.Tags
	rec.CoverURL = dom.CoverURL
	rec.VideoURL = dom.VideoURL
	rec.ImageURLs = dom.ImageURLs
	rec.Timestamp = dom.Timestamp

	if rec.Content == "" {
		rec.Source = site.SourceCardOnly
		rec.CardOnly = true
		if detailLoaded {
			rec.CardOnlyReason = site.ReasonEmptyContent
		} else {
			rec.CardOnlyReason = site.ReasonModalTimeout
		}
	}
	return rec
}

// renderContent optionally converts HTML-bearing content to markdown.
// Plain text passes through unchanged either way.
func (o *Orchestrator) renderContent(content string) string {
	if content == "" || !o.cfg.ContentMarkdown {
		return content
	}
	return extract.Markdown(content)
}

// preferConcrete keeps the intercepted value unless it is missing or a
// bare zero while the document shows something.
func preferConcrete(api, dom string) string {
	if (api == "" || api == "0") && dom != "" {
		return dom
	}
	return api
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
