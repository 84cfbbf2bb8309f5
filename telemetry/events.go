// Package telemetry emits one JSON object per line for every notable step
// of a fetch run. The stream is the run's flight recorder: dashboards and
// post-mortems consume it, the engine never reads it back. All writes are
// best-effort: a broken sink degrades to log warnings, never to errors.
package telemetry

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// base carries the fields stamped onto every event.
type base struct {
	Event   string  `json:"event"`
	TS      float64 `json:"ts"`
	RunID   string  `json:"run_id"`
	Keyword string  `json:"keyword"`
	Site    string  `json:"site,omitempty"`
}

// SearchStart opens a keyword search.
type SearchStart struct {
	base
	SearchTerm string         `json:"search_term"`
	Strategy   string         `json:"strategy"`
	Config     map[string]any `json:"config,omitempty"`
}

// CardAttempt precedes one detail fetch.
type CardAttempt struct {
	base
	ID                  string  `json:"id"`
	Title               string  `json:"title"`
	CardIndex           int     `json:"card_index"`
	PageNum             int     `json:"page_num"`
	CardsOnPage         int     `json:"cards_on_page"`
	CardsNew            int     `json:"cards_new"`
	CardsSkipped        int     `json:"cards_skipped"`
	HealthScore         float64 `json:"health_score"`
	ConsecutiveFailures int     `json:"consecutive_failures"`
	CaptchaMode         bool    `json:"captcha_mode"`
}

// CardResult closes one detail fetch.
type CardResult struct {
	base
	ID                  string  `json:"id"`
	DataSource          string  `json:"data_source"`
	ContentLen          int     `json:"content_len"`
	CommentsCount       int     `json:"comments_count"`
	HasImages           bool    `json:"has_images"`
	HasVideo            bool    `json:"has_video"`
	Captcha             bool    `json:"captcha"`
	CardOnly            bool    `json:"card_only"`
	CardOnlyReason      string  `json:"card_only_reason,omitempty"`
	HealthScore         float64 `json:"health_score"`
	HealthEvent         string  `json:"health_event"`
	DelayUsed           float64 `json:"delay_used"`
	FetchDuration       float64 `json:"fetch_duration"`
	ElapsedRun          float64 `json:"elapsed_run"`
	RecordIndex         int     `json:"record_index"`
	ConsecutiveFailures int     `json:"consecutive_failures"`
}

// CardsSkipped reports a batch of candidates skipped on one page.
type CardsSkipped struct {
	base
	PageNum int    `json:"page_num"`
	Count   int    `json:"count"`
	Reason  string `json:"reason"`
}

// SearchEnd closes a keyword search.
type SearchEnd struct {
	base
	StopReason    string         `json:"stop_reason"`
	PagesScrolled int            `json:"pages_scrolled"`
	Fetched       int            `json:"fetched"`
	Skipped       int            `json:"skipped"`
	CardOnly      int            `json:"card_only"`
	Failed        int            `json:"failed"`
	PassiveCount  int            `json:"passive_count"`
	FallbackCount int            `json:"fallback_count"`
	HealthFinal   float64        `json:"health_final"`
	HealthEvents  map[string]int `json:"health_events,omitempty"`
	Duration      float64        `json:"duration"`
}

// RunEnd closes a whole run across keywords.
type RunEnd struct {
	base
	SearchTerms  []string `json:"search_terms"`
	TotalFetched int      `json:"total_fetched"`
	TotalSkipped int      `json:"total_skipped"`
	TotalFailed  int      `json:"total_failed"`
	Duration     float64  `json:"duration"`
	Status       string   `json:"status"`
}

// Logger writes events for one keyword of one run to an append-mode JSONL
// file. Methods never return errors; a sink that failed to open swallows
// events.
type Logger struct {
	mu      sync.Mutex
	f       *os.File
	runID   string
	keyword string
	site    string
	slog    *slog.Logger

	store *Store // optional SQLite mirror
}

// Option configures a Logger.
type Option func(*Logger)

// WithSite tags every event with a site name.
func WithSite(site string) Option {
	return func(l *Logger) { l.site = site }
}

// WithStore mirrors every event into a SQLite archive.
func WithStore(s *Store) Option {
	return func(l *Logger) { l.store = s }
}

// New opens the event sink for one run+keyword under dir. Open failures
// are logged and produce a Logger that drops events.
func New(runID, keyword, dir string, logger *slog.Logger, opts ...Option) *Logger {
	if logger == nil {
		logger = slog.Default()
	}
	l := &Logger{runID: runID, keyword: keyword, slog: logger}
	for _, o := range opts {
		o(l)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		logger.Warn("telemetry: mkdir failed", "dir", dir, "error", err)
		return l
	}
	name := fmt.Sprintf("%s_%s.jsonl", safeName(keyword), runID)
	f, err := os.OpenFile(filepath.Join(dir, name),
		os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		logger.Warn("telemetry: open failed", "file", name, "error", err)
		return l
	}
	l.f = f
	return l
}

// Close flushes and closes the sink. Safe on a dropped sink.
func (l *Logger) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.f != nil {
		l.f.Close()
		l.f = nil
	}
}

func (l *Logger) stamp(event string) base {
	return base{
		Event:   event,
		TS:      float64(time.Now().UnixNano()) / 1e9,
		RunID:   l.runID,
		Keyword: l.keyword,
		Site:    l.site,
	}
}

func (l *Logger) write(event string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		l.slog.Warn("telemetry: marshal failed", "event", event, "error", err)
		return
	}

	l.mu.Lock()
	if l.f != nil {
		if _, err := l.f.Write(append(data, '\n')); err != nil {
			l.slog.Warn("telemetry: write failed", "event", event, "error", err)
		}
	}
	l.mu.Unlock()

	if l.store != nil {
		l.store.Record(l.runID, l.keyword, event, data)
	}
}

// LogSearchStart emits a search_start event.
func (l *Logger) LogSearchStart(e SearchStart) {
	e.base = l.stamp("search_start")
	e.SearchTerm = l.keyword
	l.write("search_start", e)
}

// LogCardAttempt emits a card_attempt event.
func (l *Logger) LogCardAttempt(e CardAttempt) {
	e.base = l.stamp("card_attempt")
	l.write("card_attempt", e)
}

// LogCardResult emits a card_result event.
func (l *Logger) LogCardResult(e CardResult) {
	e.base = l.stamp("card_result")
	l.write("card_result", e)
}

// LogCardsSkipped emits a cards_skipped event.
func (l *Logger) LogCardsSkipped(e CardsSkipped) {
	e.base = l.stamp("cards_skipped")
	l.write("cards_skipped", e)
}

// LogSearchEnd emits a search_end event.
func (l *Logger) LogSearchEnd(e SearchEnd) {
	e.base = l.stamp("search_end")
	l.write("search_end", e)
}

// LogRunEnd emits a run_end event.
func (l *Logger) LogRunEnd(e RunEnd) {
	e.base = l.stamp("run_end")
	l.write("run_end", e)
}

func safeName(s string) string {
	s = strings.NewReplacer("/", "_", "\\", "_").Replace(s)
	if s == "" {
		return "run"
	}
	return s
}
