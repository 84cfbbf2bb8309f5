// Package engine drives the hybrid fetch strategy: UI-driven detail opens
// reconciled against passively intercepted API responses, under a health
// feedback loop that adapts pacing and decides when a session is done.
//
// The engine owns one logical control thread. The only concurrent
// structure it touches is the response tap, whose listener runs on the
// browser event goroutine; everything else (health window, session seen
// set, run counters) is confined to Run's goroutine.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/skimkit/skim/diag"
	"github.com/skimkit/skim/health"
	"github.com/skimkit/skim/history"
	"github.com/skimkit/skim/pace"
	"github.com/skimkit/skim/site"
	"github.com/skimkit/skim/tap"
	"github.com/skimkit/skim/telemetry"
)

// Pacer inserts a human-plausible delay between UI actions. The engine
// treats it as an opaque primitive.
type Pacer interface {
	Pace(ctx context.Context, low, high time.Duration)
}

// Stop reasons reported in telemetry and logs.
const (
	StopMaxPages   = "max-pages"
	StopMaxRecords = "max-records"
	StopEmptyPages = "empty-pages"
	StopHealth     = "health-stop"
	StopCanceled   = "canceled"
)

// Config tunes one search run.
type Config struct {
	Keyword        string
	MaxPages       int    // page budget; default 20 (tripled in grind mode)
	Sort           string // site-specific sort label
	AnalysisWindow string // site-specific time window label

	MaxRecords  int // item limit, 0 = unlimited
	MaxComments int // per-post comment cap, default 10

	// Grind mode: only successfully fetched posts inside the recency
	// window count toward MaxRecords.
	Grind      bool
	MaxAgeDays int // default 99999

	// History enables the seen/trending filter; nil fetches everything.
	History map[string]history.Entry

	ScreenshotDir string

	// ContentMarkdown renders merged content as markdown when the
	// extracted payload carries HTML.
	ContentMarkdown bool

	// Waits and pacing bounds.
	DetailWait   time.Duration // detail render wait, default 8s
	FeedWait     time.Duration // tap wait for feed, default 1200ms
	CommentsWait time.Duration // tap wait for comments, default 800ms
	SettleMin    time.Duration // post-open settle, default 1500ms
	SettleMax    time.Duration // default 3s
	PaceMin      time.Duration // between-card delay, default 2s
	PaceMax      time.Duration // default 5s
	BackoffMin   time.Duration // between-card delay when degraded, default 4s
	BackoffMax   time.Duration // default 8s

	DiagVerbosity diag.Verbosity // default off
	DiagDir       string
}

func (c *Config) defaults() {
	if c.MaxPages <= 0 {
		c.MaxPages = 20
	}
	if c.MaxComments <= 0 {
		c.MaxComments = 10
	}
	if c.MaxAgeDays <= 0 {
		c.MaxAgeDays = 99999
	}
	if c.DetailWait <= 0 {
		c.DetailWait = 8 * time.Second
	}
	if c.FeedWait <= 0 {
		c.FeedWait = 1200 * time.Millisecond
	}
	if c.CommentsWait <= 0 {
		c.CommentsWait = 800 * time.Millisecond
	}
	if c.SettleMin <= 0 {
		c.SettleMin = 1500 * time.Millisecond
	}
	if c.SettleMax <= 0 {
		c.SettleMax = 3 * time.Second
	}
	if c.PaceMin <= 0 {
		c.PaceMin = 2 * time.Second
	}
	if c.PaceMax <= 0 {
		c.PaceMax = 5 * time.Second
	}
	if c.BackoffMin <= 0 {
		c.BackoffMin = 4 * time.Second
	}
	if c.BackoffMax <= 0 {
		c.BackoffMax = 8 * time.Second
	}
	if c.DiagVerbosity == "" {
		c.DiagVerbosity = diag.Off
	}
}

// Options are the collaborators an Orchestrator is wired with.
type Options struct {
	Adapter site.Adapter // required
	Source  tap.Source   // required: the page's response stream
	Pacer   Pacer        // default pace.Human{}
	Page    diag.Pager   // optional: enables standard/full diagnostics
	Events  *telemetry.Logger
	Logger  *slog.Logger
}

// Snapshot is a point-in-time view of a run, safe to read from other
// goroutines (the status endpoint).
type Snapshot struct {
	Keyword     string  `json:"keyword"`
	Page        int     `json:"page"`
	Records     int     `json:"records"`
	Fetched     int     `json:"fetched"`
	Skipped     int     `json:"skipped"`
	CardOnly    int     `json:"card_only"`
	Failed      int     `json:"failed"`
	HealthScore float64 `json:"health_score"`
	CaptchaMode bool    `json:"captcha_mode"`
	Running     bool    `json:"running"`
	StopReason  string  `json:"stop_reason,omitempty"`
}

// Orchestrator runs the hybrid strategy for one keyword.
type Orchestrator struct {
	cfg     Config
	adapter site.Adapter
	tap     *tap.Tap
	health  *health.Monitor
	pacer   Pacer
	page    diag.Pager
	events  *telemetry.Logger
	logger  *slog.Logger

	mu   sync.Mutex
	snap Snapshot
}

// New wires an Orchestrator. Adapter and Source are required.
func New(cfg Config, opts Options) (*Orchestrator, error) {
	if opts.Adapter == nil {
		return nil, fmt.Errorf("engine: adapter is required")
	}
	if opts.Source == nil {
		return nil, fmt.Errorf("engine: response source is required")
	}
	cfg.defaults()

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	pacer := opts.Pacer
	if pacer == nil {
		pacer = pace.Human{Logger: logger}
	}

	return &Orchestrator{
		cfg:     cfg,
		adapter: opts.Adapter,
		tap:     tap.New(opts.Source, opts.Adapter, logger),
		health:  health.NewMonitor(),
		pacer:   pacer,
		page:    opts.Page,
		events:  opts.Events,
		logger:  logger.With("site", opts.Adapter.Name(), "keyword", cfg.Keyword),
		snap:    Snapshot{Keyword: cfg.Keyword},
	}, nil
}

// Snapshot returns the current run state.
func (o *Orchestrator) Snapshot() Snapshot {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.snap
}

func (o *Orchestrator) updateSnap(f func(*Snapshot)) {
	o.mu.Lock()
	f(&o.snap)
	o.snap.HealthScore = o.health.Stats().Score
	o.mu.Unlock()
}

// runState is the mutable state of one Run, confined to Run's goroutine.
type runState struct {
	records     []*site.Record
	sessionSeen map[string]bool
	searchURL   string
	startAt     time.Time

	emptyPages          int
	consecutiveCaptchas int
	consecutiveFailures int
	captchaMode         bool

	skipped       int
	failed        int
	cardOnly      int
	passiveCount  int
	fallbackCount int
	recordIndex   int
	healthEvents  map[string]int
	pagesSeen     int
	stopReason    string
}

// Run executes the search. It returns every Record produced, including
// card-only ones, in production order. The error is non-nil only when the
// initial search navigation fails; per-candidate failures are absorbed
// into card-only records and the health signal.
func (o *Orchestrator) Run(ctx context.Context) ([]*site.Record, error) {
	maxPages := o.cfg.MaxPages
	if o.cfg.Grind {
		maxPages *= 3
	}

	o.tap.Start()
	defer o.tap.Stop()

	o.updateSnap(func(s *Snapshot) { s.Running = true })
	defer o.updateSnap(func(s *Snapshot) { s.Running = false })

	searchURL, err := o.adapter.Search(ctx, o.cfg.Keyword)
	if err != nil {
		return nil, fmt.Errorf("engine: search %q: %w", o.cfg.Keyword, err)
	}
	if err := o.adapter.ApplyFilters(ctx, o.cfg.Sort, o.cfg.AnalysisWindow); err != nil {
		o.logger.Warn("engine: apply filters failed", "error", err)
	}

	run := &runState{
		sessionSeen:  make(map[string]bool),
		searchURL:    searchURL,
		startAt:      time.Now(),
		stopReason:   StopMaxPages,
		healthEvents: make(map[string]int),
	}

	if o.events != nil {
		o.events.LogSearchStart(telemetry.SearchStart{
			Strategy: "hybrid",
			Config: map[string]any{
				"max_pages":   maxPages,
				"max_records": o.cfg.MaxRecords,
				"sort":        o.cfg.Sort,
				"grind":       o.cfg.Grind,
			},
		})
	}

	o.logger.Info("engine: run started", "max_pages", maxPages)

pages:
	for pageNum := 0; pageNum < maxPages; pageNum++ {
		run.pagesSeen = pageNum + 1
		o.updateSnap(func(s *Snapshot) { s.Page = pageNum })

		if ctx.Err() != nil {
			run.stopReason = StopCanceled
			break
		}
		if o.health.ShouldStop() {
			run.stopReason = StopHealth
			o.logger.Warn("engine: health hard-stop",
				"score", o.health.Stats().Score, "records", len(run.records))
			break
		}

		cards, err := o.adapter.ExtractCandidates(ctx)
		if err != nil {
			o.logger.Warn("engine: candidate extraction failed", "error", err)
		}

		fetchCards, skippedCards := history.FilterCandidates(
			cards, run.sessionSeen, o.cfg.History, o.adapter.ParseEngagement)
		run.skipped += len(skippedCards)

		if o.events != nil && len(skippedCards) > 0 {
			o.events.LogCardsSkipped(telemetry.CardsSkipped{
				PageNum: pageNum, Count: len(skippedCards), Reason: "seen",
			})
		}
		for _, sc := range skippedCards {
			rec := site.FromCandidate(sc, o.adapter)
			rec.CardOnly = true
			rec.CardOnlyReason = site.ReasonSeen
			rec.Keyword = o.cfg.Keyword
			run.records = append(run.records, rec)
		}

		if len(fetchCards) == 0 {
			run.emptyPages++
			if run.emptyPages >= 2 {
				run.stopReason = StopEmptyPages
				break
			}
			if pageNum < maxPages-1 {
				o.paginate(ctx)
			}
			continue
		}
		run.emptyPages = 0

		for i, card := range fetchCards {
			if o.cfg.MaxRecords > 0 {
				n := history.CountForLimit(run.records, o.cfg.Grind, o.cfg.MaxAgeDays)
				if n >= o.cfg.MaxRecords {
					run.stopReason = StopMaxRecords
					break pages
				}
			}
			if o.health.ShouldStop() {
				run.stopReason = StopHealth
				o.logger.Warn("engine: health hard-stop mid-page")
				break pages
			}
			if ctx.Err() != nil {
				run.stopReason = StopCanceled
				break pages
			}

			o.handleCandidate(ctx, run, card, i, pageNum, len(cards), len(fetchCards))
		}

		if pageNum < maxPages-1 {
			o.paginate(ctx)
		}
	}

	o.finishRun(run)
	return run.records, nil
}

// paginate advances the listing, best-effort.
func (o *Orchestrator) paginate(ctx context.Context) {
	if err := o.adapter.Paginate(ctx); err != nil {
		o.logger.Warn("engine: paginate failed", "error", err)
	}
	o.pacer.Pace(ctx, 2*time.Second, 4*time.Second)
}

func (o *Orchestrator) finishRun(run *runState) {
	fetched := history.FetchCount(run.records)
	if o.events != nil {
		o.events.LogSearchEnd(telemetry.SearchEnd{
			StopReason:    run.stopReason,
			PagesScrolled: run.pagesSeen,
			Fetched:       fetched,
			Skipped:       run.skipped,
			CardOnly:      run.cardOnly,
			Failed:        run.failed,
			PassiveCount:  run.passiveCount,
			FallbackCount: run.fallbackCount,
			HealthFinal:   o.health.Stats().Score,
			HealthEvents:  run.healthEvents,
			Duration:      time.Since(run.startAt).Seconds(),
		})
	}
	o.updateSnap(func(s *Snapshot) { s.StopReason = run.stopReason })
	o.logger.Info("engine: run finished",
		"fetched", fetched,
		"skipped", run.skipped,
		"card_only", run.cardOnly,
		"stop", run.stopReason,
		"health", o.health.Stats())
}
