// Package site defines the contract between the scraping engine and
// site-specific adapters. The engine never touches selectors, URLs, or API
// endpoints directly: every site interaction goes through the Adapter
// interface, and every intercepted API response goes through the adapter's
// declared routes. Site variants are concrete implementations selected at
// construction, not runtime duck typing.
package site

import (
	"context"
	"time"
)

// RouteKind classifies what an API route parser produced.
type RouteKind string

const (
	KindFeed     RouteKind = "feed"     // one post payload
	KindComments RouteKind = "comments" // a batch of comments
)

// Parsed is the result of running a route parser over a response body.
// A feed parse sets Feed; a comments parse sets Comments. Both empty means
// the response carried nothing usable and is dropped.
type Parsed struct {
	Kind     RouteKind
	Feed     *Detail
	Comments []Comment
}

// Empty reports whether the parse produced no usable payload.
func (p Parsed) Empty() bool {
	return p.Feed == nil && len(p.Comments) == 0
}

// RouteParser decodes one intercepted response body. body is the raw JSON
// object; parsers return a zero Parsed (or an error) for payloads they
// cannot use.
type RouteParser func(body []byte) (Parsed, error)

// Route binds a URL substring pattern to a parser. Routes are matched in
// declaration order; the first pattern contained in the response URL wins.
type Route struct {
	Pattern string
	Parse   RouteParser
}

// Adapter is the capability surface a site implementation provides. All
// methods operate on the page the adapter was constructed around. Methods
// that drive the UI take a context and honor its deadline; extraction
// methods are best-effort and return zero values rather than failing the
// run.
type Adapter interface {
	// Name is the short site tag ("xhs", "douyin") used in telemetry and
	// diagnostic paths.
	Name() string

	// BaseURL is the site entry point the session opens first.
	BaseURL() string

	// Search navigates to search results for keyword and returns the
	// resulting listing URL (used later for desync recovery).
	Search(ctx context.Context, keyword string) (string, error)

	// ApplyFilters applies sort/time filters on the listing page.
	ApplyFilters(ctx context.Context, sort, window string) error

	// ExtractCandidates reads the currently visible result cards. Every
	// candidate must carry a non-empty ID.
	ExtractCandidates(ctx context.Context) ([]Candidate, error)

	// Paginate advances the listing (scroll or next-page) so a subsequent
	// ExtractCandidates sees fresh cards.
	Paginate(ctx context.Context) error

	// Navigate loads an arbitrary URL on the adapter's page. The engine
	// uses it to recover the listing after a UI desync.
	Navigate(ctx context.Context, url string) error

	// OpenDetail opens the detail view for a card. ok=false with a nil
	// error means the card's link could not be located (a zero-cost miss,
	// not a failure).
	OpenDetail(ctx context.Context, c Candidate) (ok bool, err error)

	// WaitForDetail blocks until detail content is visibly rendered or the
	// timeout passes.
	WaitForDetail(ctx context.Context, c Candidate, timeout time.Duration) bool

	// ExtractDetail reads post fields from the rendered detail view.
	ExtractDetail(ctx context.Context, c Candidate) (Detail, error)

	// ExtractComments reads up to max comments from the detail view.
	ExtractComments(ctx context.Context, max int) ([]Comment, error)

	// CloseDetail dismisses the detail view. After it returns the listing
	// must be usable again (cards extractable, scroll state not corrupted).
	CloseDetail(ctx context.Context, c Candidate) error

	// TakeScreenshot captures the detail view into dir and returns the
	// file path, or "" when capture failed.
	TakeScreenshot(ctx context.Context, c Candidate, dir string) (string, error)

	// APIRoutes declares the passive interception routes, in match order.
	APIRoutes() []Route

	// IdentityFromAPI extracts the post identity from a parsed payload.
	// Empty string means the adapter could not determine it; for comment
	// payloads the tap then falls back to URL query parameters.
	IdentityFromAPI(p Parsed) string

	// HasBlockOverlay reports whether a bot-detection wall is showing.
	HasBlockOverlay(ctx context.Context) bool

	// DismissBlockOverlay tries to close the wall. Reports success.
	DismissBlockOverlay(ctx context.Context) bool

	// HasAuthEvidence reports whether the page shows signs of an expired
	// session (login prompt, auth redirect).
	HasAuthEvidence(ctx context.Context) bool

	// ParseEngagement converts a site-formatted engagement string to an
	// integer ("1.2万" -> 12000). Unparseable input yields 0.
	ParseEngagement(s string) int

	// CanonicalURL builds the canonical post URL for an identity.
	CanonicalURL(id string) string

	// LaunchArgs are extra Chrome flags this site needs.
	LaunchArgs() []string

	// Locale is the browser locale for this site ("zh-CN").
	Locale() string

	// SessionCookieName is the cookie whose presence indicates a live
	// session.
	SessionCookieName() string
}

// Diagnoser is an optional adapter capability: extra site-specific
// diagnostics attached to failure bundles. Checked by type assertion.
type Diagnoser interface {
	FailureDiagnostics(ctx context.Context, id string) map[string]any
}
