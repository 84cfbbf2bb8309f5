// Command skim runs keyword searches against a registered site adapter
// using the hybrid passive-interception strategy.
//
// Usage:
//
//	skim -config skim.yaml                 # run every configured keyword
//	skim -config skim.yaml -keyword tea    # run a single keyword
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	_ "modernc.org/sqlite"

	"github.com/skimkit/skim/browser"
	"github.com/skimkit/skim/config"
	"github.com/skimkit/skim/dbopen"
	"github.com/skimkit/skim/diag"
	"github.com/skimkit/skim/engine"
	"github.com/skimkit/skim/history"
	"github.com/skimkit/skim/idgen"
	"github.com/skimkit/skim/site"
	"github.com/skimkit/skim/status"
	"github.com/skimkit/skim/telemetry"
)

func main() {
	configPath := flag.String("config", "", "path to skim.yaml config file")
	keyword := flag.String("keyword", "", "run a single keyword instead of the configured list")
	logLevel := flag.String("log-level", "", "log level override: debug, info, warn, error")
	flag.Parse()

	if *configPath == "" {
		fmt.Fprintln(os.Stderr, "usage: skim -config <file> [-keyword <kw>]")
		os.Exit(1)
	}

	cfg, err := config.LoadFile(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if *keyword != "" {
		cfg.Keywords = []string{*keyword}
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: parseLevel(cfg.LogLevel),
	}))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, logger, cfg); err != nil {
		logger.Error("skim: fatal", "error", err)
		os.Exit(1)
	}
}

func parseLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func run(ctx context.Context, logger *slog.Logger, cfg *config.Config) error {
	runID := idgen.New()
	startAt := time.Now()
	logger = logger.With("run_id", runID)

	// Metadata-only adapter instance, before Chrome exists.
	meta, err := site.Open(cfg.Site, nil, logger)
	if err != nil {
		return err
	}

	var store *telemetry.Store
	if cfg.Telemetry.SQLitePath != "" {
		db, err := dbopen.Open(cfg.Telemetry.SQLitePath,
			dbopen.WithMkdirAll(), dbopen.WithSchema(telemetry.Schema))
		if err != nil {
			return err
		}
		defer db.Close()
		store = telemetry.NewStore(db, logger)
		if err := store.Cleanup(ctx, cfg.Telemetry.RetentionDays); err != nil {
			logger.Warn("skim: telemetry cleanup failed", "error", err)
		}
	}

	var statusSrv *status.Server
	if cfg.StatusAddr != "" {
		statusSrv = status.NewServer(cfg.StatusAddr, runID, logger)
		statusSrv.Start()
		defer func() {
			shCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			defer cancel()
			statusSrv.Shutdown(shCtx)
		}()
	}

	mgr := browser.NewManager(browser.Config{
		RemoteURL:        cfg.Browser.Remote,
		Headless:         cfg.Browser.Headless,
		UserDataDir:      cfg.Browser.UserDataDir,
		Locale:           meta.Locale(),
		ExtraFlags:       meta.LaunchArgs(),
		ResourceBlocking: cfg.Browser.ResourceBlocking,
		Logger:           logger,
	})
	if _, err := mgr.Start(ctx); err != nil {
		return err
	}
	defer mgr.Close()

	pg, err := mgr.NewPage(ctx)
	if err != nil {
		return err
	}
	defer pg.Close()

	if cfg.Browser.CookiesFile != "" {
		if err := pg.LoadCookies(cfg.Browser.CookiesFile); err != nil {
			logger.Warn("skim: cookie load failed", "error", err)
		}
	}
	if err := pg.Navigate(ctx, meta.BaseURL()); err != nil {
		return err
	}

	adapter, err := site.Open(cfg.Site, pg.Rod(), logger)
	if err != nil {
		return err
	}
	if ok, err := pg.HasCookie(adapter.SessionCookieName()); err == nil && !ok {
		logger.Warn("skim: session cookie missing, login may be required",
			"cookie", adapter.SessionCookieName())
	}

	var entries map[string]history.Entry
	if cfg.HistoryFile != "" {
		if entries, err = history.Load(cfg.HistoryFile); err != nil {
			return err
		}
		logger.Info("skim: history loaded", "entries", len(entries))
	}

	var (
		totalFetched int
		totalSkipped int
		totalFailed  int
		runStatus    = "ok"
	)

	for _, kw := range cfg.Keywords {
		if ctx.Err() != nil {
			runStatus = "canceled"
			break
		}

		records, err := runKeyword(ctx, logger, cfg, kw, runID, adapter, pg, entries, store, statusSrv)
		if err != nil {
			logger.Error("skim: keyword run failed", "keyword", kw, "error", err)
			runStatus = "partial"
			continue
		}
		totalFetched += history.FetchCount(records)
		for _, rec := range records {
			if rec.CardOnly {
				if rec.CardOnlyReason == site.ReasonSeen {
					totalSkipped++
				} else {
					totalFailed++
				}
			}
		}
	}

	if cfg.HistoryFile != "" && entries != nil {
		if err := history.Save(cfg.HistoryFile, entries); err != nil {
			logger.Error("skim: history save failed", "error", err)
		}
	}
	if cfg.Browser.CookiesFile != "" {
		if err := pg.SaveCookies(cfg.Browser.CookiesFile); err != nil {
			logger.Warn("skim: cookie save failed", "error", err)
		}
	}

	runLog := telemetry.New(runID, "", cfg.Telemetry.Dir, logger,
		telemetry.WithSite(cfg.Site), telemetry.WithStore(store))
	runLog.LogRunEnd(telemetry.RunEnd{
		SearchTerms:  cfg.Keywords,
		TotalFetched: totalFetched,
		TotalSkipped: totalSkipped,
		TotalFailed:  totalFailed,
		Duration:     time.Since(startAt).Seconds(),
		Status:       runStatus,
	})
	runLog.Close()

	logger.Info("skim: run complete",
		"status", runStatus,
		"fetched", totalFetched,
		"skipped", totalSkipped,
		"failed", totalFailed,
		"duration", time.Since(startAt).Round(time.Second))
	return nil
}

func runKeyword(ctx context.Context, logger *slog.Logger, cfg *config.Config,
	kw, runID string, adapter site.Adapter, pg *browser.Page,
	entries map[string]history.Entry, store *telemetry.Store,
	statusSrv *status.Server) ([]*site.Record, error) {

	var opts []telemetry.Option
	opts = append(opts, telemetry.WithSite(cfg.Site))
	if store != nil {
		opts = append(opts, telemetry.WithStore(store))
	}
	events := telemetry.New(runID, kw, cfg.Telemetry.Dir, logger, opts...)
	defer events.Close()

	eng, err := engine.New(engine.Config{
		Keyword:        kw,
		MaxPages:       cfg.Limits.MaxPages,
		Sort:           cfg.Sort,
		AnalysisWindow: cfg.Window,
		MaxRecords:     cfg.Limits.MaxRecords,
		MaxComments:    cfg.Limits.MaxComments,
		Grind:          cfg.Limits.Grind,
		MaxAgeDays:     cfg.Limits.MaxAgeDays,
		History:        entries,
		ScreenshotDir:  cfg.Browser.ScreenshotDir,
		PaceMin:        cfg.Pacing.Min,
		PaceMax:        cfg.Pacing.Max,
		BackoffMin:     cfg.Pacing.BackoffMin,
		BackoffMax:     cfg.Pacing.BackoffMax,
		DiagVerbosity:  diag.Verbosity(cfg.Diagnostics.Verbosity),
		DiagDir:        cfg.Diagnostics.Dir,
	}, engine.Options{
		Adapter: adapter,
		Source:  pg,
		Page:    pg,
		Events:  events,
		Logger:  logger,
	})
	if err != nil {
		return nil, err
	}

	if statusSrv != nil {
		statusSrv.SetCurrent(eng)
	}

	records, err := eng.Run(ctx)
	if err != nil {
		return nil, err
	}

	if err := writeRecords(cfg, kw, runID, records); err != nil {
		logger.Error("skim: write records failed", "keyword", kw, "error", err)
	}
	updateHistory(entries, adapter, records)
	return records, nil
}

// writeRecords dumps the run output as one JSON file per keyword.
func writeRecords(cfg *config.Config, kw, runID string, records []*site.Record) error {
	if err := os.MkdirAll(cfg.OutputDir, 0o755); err != nil {
		return fmt.Errorf("skim: output dir: %w", err)
	}
	name := fmt.Sprintf("%s_%s_%s.json", cfg.Site, safeName(kw), runID)
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("skim: marshal records: %w", err)
	}
	return os.WriteFile(filepath.Join(cfg.OutputDir, name), data, 0o644)
}

// updateHistory folds successfully fetched records back into the history
// baseline so the next run can skip stable posts.
func updateHistory(entries map[string]history.Entry, adapter site.Adapter, records []*site.Record) {
	if entries == nil {
		return
	}
	now := time.Now().Format(time.RFC3339)
	for _, rec := range records {
		if rec.CardOnly || rec.ID == "" {
			continue
		}
		entries[rec.ID] = history.Entry{
			Likes:    adapter.ParseEngagement(rec.Likes),
			Comments: adapter.ParseEngagement(rec.Comments),
			TS:       now,
		}
	}
}

func safeName(s string) string {
	return strings.NewReplacer("/", "_", "\\", "_", " ", "_").Replace(s)
}
