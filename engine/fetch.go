package engine

import (
	"context"
	"time"

	"github.com/skimkit/skim/diag"
	"github.com/skimkit/skim/health"
	"github.com/skimkit/skim/site"
	"github.com/skimkit/skim/telemetry"
)

// instantFailureCutoff separates a UI desync (the click silently landed
// nowhere, the attempt "finished" immediately) from a real failed fetch
// that burned wall time.
const instantFailureCutoff = 100 * time.Millisecond

// fetchOutcome is everything handleCandidate needs to classify one
// detail attempt.
type fetchOutcome struct {
	record       *site.Record
	captcha      bool
	detailLoaded bool
	timings      map[string]float64
}

// handleCandidate runs one candidate end to end: detail fetch (or
// captcha-mode skip), failure classification, health recording, recovery,
// pacing and telemetry.
func (o *Orchestrator) handleCandidate(ctx context.Context, run *runState, card site.Candidate, idx, pageNum, cardsOnPage, cardsNew int) {
	if o.events != nil {
		o.events.LogCardAttempt(telemetry.CardAttempt{
			ID:                  card.ID,
			Title:               card.Title,
			CardIndex:           idx,
			PageNum:             pageNum,
			CardsOnPage:         cardsOnPage,
			CardsNew:            cardsNew,
			CardsSkipped:        cardsOnPage - cardsNew,
			HealthScore:         o.health.Stats().Score,
			ConsecutiveFailures: run.consecutiveFailures,
			CaptchaMode:         run.captchaMode,
		})
	}

	start := time.Now()
	var out fetchOutcome
	if run.captchaMode {
		// Detail opens are suspected to be burned; keep the card data,
		// keep feeding the health window so the run ends on evidence.
		rec := site.FromCandidate(card, o.adapter)
		rec.CardOnly = true
		rec.CardOnlyReason = site.ReasonCaptcha
		out = fetchOutcome{record: rec, captcha: true}
	} else {
		out = o.fetchDetail(ctx, run, card)
	}
	elapsed := time.Since(start)

	rec := out.record
	rec.Keyword = o.cfg.Keyword

	var ev health.Event
	switch {
	case out.captcha:
		run.consecutiveCaptchas++
		run.consecutiveFailures++
		run.failed++
		rec.CardOnly = true
		rec.CardOnlyReason = site.ReasonCaptcha
		ev = health.EventCaptcha
		if run.consecutiveCaptchas >= 2 && !run.captchaMode {
			run.captchaMode = true
			o.logger.Warn("engine: entering captcha mode",
				"consecutive_captchas", run.consecutiveCaptchas)
		}
		o.capture(ctx, card, site.ReasonCaptcha, out.timings, elapsed)

	case rec.Content == "" && rec.Source != site.SourcePassive:
		reason := rec.CardOnlyReason
		if reason == "" {
			reason = site.ReasonEmptyContent
		}
		rec.CardOnly = true
		rec.CardOnlyReason = reason
		run.consecutiveCaptchas = 0
		ev = health.EventEmpty

		instant := elapsed < instantFailureCutoff &&
			(reason == site.ReasonLinkNotFound || reason == site.ReasonModalTimeout)
		if instant {
			// The click and the page disagree about what happened; the
			// listing may be stale. Re-land on the search results before
			// the next attempt instead of charging a failure streak.
			o.logger.Info("engine: instant failure, re-navigating",
				"id", card.ID, "reason", reason)
			if err := o.adapter.Navigate(ctx, run.searchURL); err != nil {
				o.logger.Warn("engine: recovery navigate failed", "error", err)
			}
			o.pacer.Pace(ctx, 2*time.Second, 4*time.Second)
		} else {
			run.consecutiveFailures++
			run.failed++
		}
		o.capture(ctx, card, reason, out.timings, elapsed)

	default:
		run.consecutiveCaptchas = 0
		run.consecutiveFailures = 0
		ev = health.EventOK
	}

	o.health.Record(ev)
	run.healthEvents[string(ev)]++
	if rec.CardOnly {
		run.cardOnly++
	}
	switch rec.Source {
	case site.SourcePassive:
		run.passiveCount++
	case site.SourceFallback:
		run.fallbackCount++
	}

	// A long failure streak without captcha evidence is the signature of
	// an expired login: pages load, content never comes. Ask the adapter
	// before the health window writes it off as mere emptiness.
	if run.consecutiveFailures >= 5 && ev != health.EventOK {
		if o.adapter.HasAuthEvidence(ctx) {
			o.logger.Warn("engine: auth evidence after failure streak",
				"streak", run.consecutiveFailures)
			o.health.Record(health.EventAuthExpired)
			run.healthEvents[string(health.EventAuthExpired)]++
		} else {
			// No evidence yet; the streak itself still counts as a second
			// empty against the window.
			o.health.Record(health.EventEmpty)
			run.healthEvents[string(health.EventEmpty)]++
		}
	}

	run.records = append(run.records, rec)
	run.sessionSeen[card.ID] = true
	run.recordIndex++

	o.updateSnap(func(s *Snapshot) {
		s.Records = len(run.records)
		s.Fetched = run.recordIndex - run.cardOnly
		s.Skipped = run.skipped
		s.CardOnly = run.cardOnly
		s.Failed = run.failed
		s.CaptchaMode = run.captchaMode
	})

	delayStart := time.Now()
	lo, hi := o.cfg.PaceMin, o.cfg.PaceMax
	if o.health.ShouldBackoff() {
		lo, hi = o.cfg.BackoffMin, o.cfg.BackoffMax
	}
	o.pacer.Pace(ctx, lo, hi)

	if o.events != nil {
		o.events.LogCardResult(telemetry.CardResult{
			ID:                  card.ID,
			DataSource:          rec.Source,
			ContentLen:          len(rec.Content),
			CommentsCount:       len(rec.Top),
			HasImages:           len(rec.ImageURLs) > 0,
			HasVideo:            rec.VideoURL != "",
			Captcha:             out.captcha,
			CardOnly:            rec.CardOnly,
			CardOnlyReason:      rec.CardOnlyReason,
			HealthScore:         o.health.Stats().Score,
			HealthEvent:         string(ev),
			DelayUsed:           time.Since(delayStart).Seconds(),
			FetchDuration:       elapsed.Seconds(),
			ElapsedRun:          time.Since(run.startAt).Seconds(),
			RecordIndex:         run.recordIndex - 1,
			ConsecutiveFailures: run.consecutiveFailures,
		})
	}
}

// fetchDetail opens one candidate's detail view and reconciles what the
// tap intercepted with what the DOM shows. It never returns an error:
// every failure collapses into a card-only record plus a captcha verdict.
func (o *Orchestrator) fetchDetail(ctx context.Context, run *runState, card site.Candidate) fetchOutcome {
	o.tap.Clear(card.ID)

	timings := make(map[string]float64)
	phase := func(name string, since time.Time) {
		timings[name] = time.Since(since).Seconds()
	}

	t := time.Now()
	opened, err := o.adapter.OpenDetail(ctx, card)
	phase("open", t)
	if err != nil {
		sig, _ := site.SignalOf(err)
		captcha := sig == site.SignalCaptcha || o.adapter.HasBlockOverlay(ctx)
		o.logger.Warn("engine: open detail failed",
			"id", card.ID, "error", err, "captcha", captcha)
		o.closeDetailQuiet(ctx, card)
		if err := o.adapter.Navigate(ctx, run.searchURL); err != nil {
			o.logger.Warn("engine: navigate back failed", "error", err)
		}

		rec := site.FromCandidate(card, o.adapter)
		rec.CardOnly = true
		if sig == site.SignalTransient {
			rec.CardOnlyReason = site.ReasonModalTimeout
		} else {
			rec.CardOnlyReason = site.ReasonEmptyContent
		}
		return fetchOutcome{record: rec, captcha: captcha, timings: timings}
	}
	if !opened {
		rec := site.FromCandidate(card, o.adapter)
		rec.CardOnly = true
		rec.CardOnlyReason = site.ReasonLinkNotFound
		return fetchOutcome{record: rec, timings: timings}
	}

	o.pacer.Pace(ctx, o.cfg.SettleMin, o.cfg.SettleMax)

	captcha := false
	if o.adapter.HasBlockOverlay(ctx) {
		o.logger.Warn("engine: block overlay on detail", "id", card.ID)
		if !o.adapter.DismissBlockOverlay(ctx) {
			o.logger.Warn("engine: overlay would not dismiss", "id", card.ID)
		}
		o.pacer.Pace(ctx, time.Second, 2*time.Second)
		captcha = o.adapter.HasBlockOverlay(ctx)
	}

	t = time.Now()
	detailLoaded := o.adapter.WaitForDetail(ctx, card, o.cfg.DetailWait)
	phase("render_wait", t)
	o.pacer.Pace(ctx, 500*time.Millisecond, time.Second)

	// The interception usually lands during the render wait; give it a
	// short bounded grace period if not. Either payload ends the wait: a
	// comments-only delivery still spares the document comment pass.
	t = time.Now()
	feed := o.tap.Feed(card.ID)
	comments := o.tap.Comments(card.ID)
	if feed == nil && len(comments) == 0 {
		res := o.tap.WaitForAny(ctx, card.ID, o.cfg.FeedWait)
		feed, comments = res.Feed, res.Comments
	}
	if feed != nil && len(comments) == 0 {
		res := o.tap.WaitFor(ctx, card.ID, false, true, o.cfg.CommentsWait)
		comments = res.Comments
	}
	phase("tap_wait", t)

	// The DOM pass always runs: it backstops missing interception and
	// fills fields the intercepted payload does not carry.
	t = time.Now()
	domDetail, err := o.adapter.ExtractDetail(ctx, card)
	if err != nil {
		o.logger.Debug("engine: dom extract failed", "id", card.ID, "error", err)
	}
	var domComments []site.Comment
	if len(comments) == 0 {
		if domComments, err = o.adapter.ExtractComments(ctx, o.cfg.MaxComments); err != nil {
			o.logger.Debug("engine: dom comments failed", "id", card.ID, "error", err)
		}
	}
	phase("dom_extract", t)

	var shot string
	if o.cfg.ScreenshotDir != "" {
		if shot, err = o.adapter.TakeScreenshot(ctx, card, o.cfg.ScreenshotDir); err != nil {
			o.logger.Debug("engine: screenshot failed", "id", card.ID, "error", err)
		}
	}

	o.closeDetailQuiet(ctx, card)

	rec := o.buildRecord(card, feed, domDetail, comments, domComments, shot, detailLoaded)
	return fetchOutcome{
		record:       rec,
		captcha:      captcha,
		detailLoaded: detailLoaded,
		timings:      timings,
	}
}

func (o *Orchestrator) closeDetailQuiet(ctx context.Context, card site.Candidate) {
	if err := o.adapter.CloseDetail(ctx, card); err != nil {
		o.logger.Debug("engine: close detail failed", "id", card.ID, "error", err)
	}
}

// capture writes a diagnostic bundle for a failed attempt.
func (o *Orchestrator) capture(ctx context.Context, card site.Candidate, reason string, timings map[string]float64, elapsed time.Duration) {
	b := diag.Capture(ctx, diag.Input{
		Page:         o.page,
		Tap:          o.tap,
		Adapter:      o.adapter,
		ID:           card.ID,
		Reason:       reason,
		Site:         o.adapter.Name(),
		Keyword:      o.cfg.Keyword,
		PhaseTimings: timings,
		TotalElapsed: elapsed.Seconds(),
		HealthScore:  o.health.Stats().Score,
	}, o.cfg.DiagVerbosity, o.cfg.ScreenshotDir)
	if b == nil {
		return
	}
	diag.Save(b, o.cfg.DiagDir, o.logger)
}
