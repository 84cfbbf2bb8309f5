package site

// Candidate is one listing-page entry: a post the search surface showed us
// but whose detail we have not opened yet. Adapters produce Candidates from
// the result grid; the engine annotates the filtering flags but never
// changes the identity.
type Candidate struct {
	ID            string // unique post identifier, required
	URL           string
	Title         string
	Author        string
	LikesFromCard string // raw engagement string as displayed on the card
	TimeText      string // raw display date from the card

	// Filtering annotations, set by the candidate filter.
	Trending   bool // previously seen, engagement spiked enough to refetch
	SkipDetail bool // seen and stable: surface the card, skip the detail fetch
}

// Detail holds the structured fields of one post as extracted either from
// an intercepted API payload or from the rendered document. Engagement
// counts stay strings: display formats are site-specific ("1.2万") and
// parsing them is the adapter's job.
type Detail struct {
	ID        string
	Title     string
	Content   string
	Author    string
	Likes     string
	Comments  string
	Collects  string
	Shares    string
	Date      string
	Tags      []string
	CoverURL  string
	VideoURL  string
	ImageURLs []string
	Timestamp int64 // publish time, unix seconds, 0 = unknown
}

// Comment is one comment under a post.
type Comment struct {
	ID     string `json:"id"`
	Author string `json:"author,omitempty"`
	Text   string `json:"text"`
	Likes  string `json:"likes,omitempty"`
}

// Provenance tags for Record.Source.
const (
	SourcePassive  = "passive"   // built from an intercepted API payload
	SourceFallback = "fallback"  // built from document extraction
	SourceCardOnly = "card-only" // no detail obtained, listing fields only
)

// Card-only reason codes.
const (
	ReasonLinkNotFound = "link-not-found" // detail view could not be opened
	ReasonEmptyContent = "empty-content"  // detail rendered but yielded no text
	ReasonModalTimeout = "modal-timeout"  // detail never rendered
	ReasonCaptcha      = "captcha"        // block overlay prevented the fetch
	ReasonSeen         = "seen"           // skipped by the history check
	ReasonSkipped      = "skipped"        // skipped by session-level policy
)

// Record is the finalized output unit for one post. It is created once per
// candidate per run and immutable after being appended to the run output.
type Record struct {
	ID        string    `json:"id"`
	URL       string    `json:"url"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	Author    string    `json:"author"`
	Likes     string    `json:"likes"`
	Comments  string    `json:"comments"`
	Collects  string    `json:"collects,omitempty"`
	Shares    string    `json:"shares,omitempty"`
	Date      string    `json:"date"`
	Tags      []string  `json:"tags,omitempty"`
	CoverURL  string    `json:"cover_url,omitempty"`
	VideoURL  string    `json:"video_url,omitempty"`
	ImageURLs []string  `json:"image_urls,omitempty"`
	Top       []Comment `json:"top_comments,omitempty"`

	Screenshot string `json:"screenshot,omitempty"`
	Timestamp  int64  `json:"timestamp,omitempty"`

	Source         string `json:"source"` // passive | fallback | card-only
	CardOnly       bool   `json:"card_only,omitempty"`
	CardOnlyReason string `json:"card_only_reason,omitempty"`
	Trending       bool   `json:"trending,omitempty"`
	Keyword        string `json:"keyword,omitempty"`
}

// FromCandidate builds a card-only Record carrying the listing-level fields.
// The canonical URL is rebuilt when the card did not provide one.
func FromCandidate(c Candidate, a Adapter) *Record {
	url := c.URL
	if url == "" {
		url = a.CanonicalURL(c.ID)
	}
	return &Record{
		ID:       c.ID,
		URL:      url,
		Title:    c.Title,
		Author:   c.Author,
		Likes:    orZero(c.LikesFromCard),
		Comments: "0",
		Date:     c.TimeText,
		Trending: c.Trending,
		Source:   SourceCardOnly,
	}
}

func orZero(s string) string {
	if s == "" {
		return "0"
	}
	return s
}
