// Package tap intercepts the API responses a page's own scripts trigger
// and buffers the parsed payloads for the engine to claim. It costs zero
// extra network requests: routing and parsing are adapter-driven, the tap
// only listens.
//
// Buffers are bounded and keyed by post identity. The listener callback
// runs on the event source's goroutine; WaitFor blocks the engine's
// control thread on a notification channel instead of busy polling.
package tap

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/skimkit/skim/site"
)

// MaxBufferSize caps each buffer (feed, comments) to prevent unclaimed
// data from growing without bound.
const MaxBufferSize = 100

// Response is one observed network response.
type Response struct {
	URL    string
	Status int
	Body   []byte
}

// Source is the host page's outbound response stream. Implementations
// invoke the handler once per response, from their own goroutine, until
// the returned stop function is called.
type Source interface {
	ListenResponses(h func(Response)) (stop func())
}

// identityQueryKeys is the fallback for comment payloads whose parser
// could not name the post: first non-empty value among these response-URL
// query parameters wins.
var identityQueryKeys = []string{"note_id", "aweme_id", "item_id"}

// Tap buffers parsed passive payloads keyed by post identity.
type Tap struct {
	src      Source
	routes   []site.Route
	identify func(site.Parsed) string
	logger   *slog.Logger

	mu       sync.Mutex
	feed     map[string]*site.Detail
	comments map[string][]site.Comment
	stamps   map[string]time.Time
	stop     func()

	notify chan struct{}
}

// New creates a Tap routing responses from src through the adapter's
// declared routes. Call Start to attach the listener.
func New(src Source, adapter site.Adapter, logger *slog.Logger) *Tap {
	return NewWithRoutes(src, adapter.APIRoutes(), adapter.IdentityFromAPI, logger)
}

// NewWithRoutes creates a Tap with an explicit route table and identity
// function, bypassing the adapter.
func NewWithRoutes(src Source, routes []site.Route, identify func(site.Parsed) string,
	logger *slog.Logger) *Tap {

	if logger == nil {
		logger = slog.Default()
	}
	return &Tap{
		src:      src,
		routes:   routes,
		identify: identify,
		logger:   logger,
		feed:     make(map[string]*site.Detail),
		comments: make(map[string][]site.Comment),
		stamps:   make(map[string]time.Time),
		notify:   make(chan struct{}, 1),
	}
}

// Start attaches the response listener. Idempotent.
func (t *Tap) Start() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stop != nil {
		return
	}
	t.stop = t.src.ListenResponses(t.onResponse)
	t.logger.Debug("tap: started")
}

// Stop detaches the listener. Idempotent; safe to defer.
func (t *Tap) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stop == nil {
		return
	}
	t.stop()
	t.stop = nil
	t.logger.Debug("tap: stopped")
}

// Feed returns a copy of the captured feed payload for id, or nil.
func (t *Tap) Feed(id string) *site.Detail {
	t.mu.Lock()
	defer t.mu.Unlock()
	d, ok := t.feed[id]
	if !ok {
		return nil
	}
	cp := *d
	cp.Tags = append([]string(nil), d.Tags...)
	cp.ImageURLs = append([]string(nil), d.ImageURLs...)
	return &cp
}

// Comments returns a copy of the captured comments for id.
func (t *Tap) Comments(id string) []site.Comment {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]site.Comment(nil), t.comments[id]...)
}

// Clear evicts both buffers for id. The engine calls it before each fetch
// attempt so a retry never reads the previous attempt's data.
func (t *Tap) Clear(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.feed, id)
	delete(t.comments, id)
	delete(t.stamps, id)
}

// IsStale reports whether the captured data for id is older than maxAge.
// Unknown identities are not stale.
func (t *Tap) IsStale(id string, maxAge time.Duration) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	ts, ok := t.stamps[id]
	if !ok {
		return false
	}
	return time.Since(ts) > maxAge
}

// WaitResult is what WaitFor observed by its deadline.
type WaitResult struct {
	Feed     *site.Detail
	Comments []site.Comment
	TimedOut bool
	Elapsed  time.Duration
}

// WaitFor blocks until the requested payloads for id are buffered, the
// timeout passes, or ctx is done. On timeout it returns whatever partial
// data exists, after one final check to catch a last-moment delivery.
func (t *Tap) WaitFor(ctx context.Context, id string,
	needFeed, needComments bool, timeout time.Duration) WaitResult {

	return t.wait(ctx, timeout, func() (WaitResult, bool) {
		return t.check(id, needFeed, needComments)
	})
}

// WaitForAny blocks until either payload for id is buffered, the timeout
// passes, or ctx is done. Right after a detail render the page decides
// which payload lands first; whichever arrives ends the wait, and both
// buffers are reported.
func (t *Tap) WaitForAny(ctx context.Context, id string, timeout time.Duration) WaitResult {
	return t.wait(ctx, timeout, func() (WaitResult, bool) {
		res := WaitResult{Feed: t.Feed(id), Comments: t.Comments(id)}
		return res, res.Feed != nil || len(res.Comments) > 0
	})
}

func (t *Tap) wait(ctx context.Context, timeout time.Duration,
	check func() (WaitResult, bool)) WaitResult {

	start := time.Now()
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		if res, ok := check(); ok {
			res.Elapsed = time.Since(start)
			return res
		}
		select {
		case <-t.notify:
		case <-timer.C:
			res, _ := check()
			res.TimedOut = true
			res.Elapsed = time.Since(start)
			return res
		case <-ctx.Done():
			res, _ := check()
			res.TimedOut = true
			res.Elapsed = time.Since(start)
			return res
		}
	}
}

// check reads the buffers once. ok is true when every requested condition
// is satisfied.
func (t *Tap) check(id string, needFeed, needComments bool) (WaitResult, bool) {
	var res WaitResult
	if needFeed {
		res.Feed = t.Feed(id)
	}
	if needComments {
		res.Comments = t.Comments(id)
	}
	feedOK := !needFeed || res.Feed != nil
	commentsOK := !needComments || len(res.Comments) > 0
	return res, feedOK && commentsOK
}

// onResponse routes one observed response. Runs on the source goroutine;
// never panics out, never blocks on consumers.
func (t *Tap) onResponse(r Response) {
	for _, route := range t.routes {
		if !containsPattern(r.URL, route.Pattern) {
			continue
		}
		t.handle(r, route.Parse)
		return
	}
}

func (t *Tap) handle(r Response, parse site.RouteParser) {
	if r.Status != 200 {
		return
	}
	if !isJSONObject(r.Body) {
		return
	}

	parsed, err := parse(r.Body)
	if err != nil {
		t.logger.Debug("tap: parse error", "url", r.URL, "error", err)
		return
	}
	if parsed.Empty() {
		return
	}

	id := t.identify(parsed)
	if id == "" && parsed.Kind == site.KindComments {
		id = identityFromURL(r.URL)
	}
	if id == "" {
		t.logger.Debug("tap: no identity in payload", "kind", parsed.Kind, "url", r.URL)
		return
	}

	now := time.Now()
	t.mu.Lock()
	switch parsed.Kind {
	case site.KindFeed:
		if _, exists := t.feed[id]; !exists && len(t.feed) >= MaxBufferSize {
			t.evictOldest(t.feed)
		}
		t.feed[id] = parsed.Feed
		t.stamps[id] = now
		t.logger.Debug("tap: captured feed", "id", id)
	case site.KindComments:
		if _, exists := t.comments[id]; !exists && len(t.comments) >= MaxBufferSize {
			t.evictOldestComments()
		}
		t.comments[id] = mergeComments(t.comments[id], parsed.Comments)
		if _, ok := t.stamps[id]; !ok {
			t.stamps[id] = now
		}
		t.logger.Debug("tap: captured comments", "id", id, "count", len(parsed.Comments))
	}
	t.mu.Unlock()

	select {
	case t.notify <- struct{}{}:
	default:
	}
}

// evictOldest removes the entry with the oldest capture timestamp from the
// feed buffer. Caller holds the lock.
func (t *Tap) evictOldest(buf map[string]*site.Detail) {
	oldest := ""
	var oldestAt time.Time
	for id := range buf {
		at, ok := t.stamps[id]
		if oldest == "" || (ok && at.Before(oldestAt)) {
			oldest, oldestAt = id, at
		}
	}
	if oldest != "" {
		delete(buf, oldest)
		delete(t.stamps, oldest)
	}
}

// evictOldestComments mirrors evictOldest for the comments buffer.
func (t *Tap) evictOldestComments() {
	oldest := ""
	var oldestAt time.Time
	for id := range t.comments {
		at, ok := t.stamps[id]
		if oldest == "" || (ok && at.Before(oldestAt)) {
			oldest, oldestAt = id, at
		}
	}
	if oldest != "" {
		delete(t.comments, oldest)
		delete(t.stamps, oldest)
	}
}

// mergeComments appends incoming comments, deduplicating on comment ID.
// Comments without an ID have no identity to dedup on and are always
// appended.
func mergeComments(existing, incoming []site.Comment) []site.Comment {
	seen := make(map[string]bool, len(existing))
	for _, c := range existing {
		if c.ID != "" {
			seen[c.ID] = true
		}
	}
	for _, c := range incoming {
		if c.ID != "" {
			if seen[c.ID] {
				continue
			}
			seen[c.ID] = true
		}
		existing = append(existing, c)
	}
	return existing
}

func containsPattern(u, pattern string) bool {
	return pattern != "" && strings.Contains(u, pattern)
}

// isJSONObject reports whether body is a JSON object (not an array or
// scalar). Non-JSON bodies are dropped silently per the routing contract.
func isJSONObject(body []byte) bool {
	trimmed := bytes.TrimLeft(body, " \t\r\n")
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return false
	}
	return json.Valid(body)
}

// identityFromURL pulls the post identity out of the response URL's query
// string, first non-empty value among the known keys.
func identityFromURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	q := u.Query()
	for _, key := range identityQueryKeys {
		for _, v := range q[key] {
			if v != "" {
				return v
			}
		}
	}
	return ""
}
