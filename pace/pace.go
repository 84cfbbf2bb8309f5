// Package pace generates human-plausible delays between UI actions.
// Uniform timing is a bot fingerprint; delays here follow a log-normal
// distribution (mostly quick, occasionally slow) with a small chance of a
// longer "distraction" pause.
package pace

import (
	"context"
	"log/slog"
	"math"
	"math/rand/v2"
	"time"
)

// Human is a context-aware pacer. The zero value is ready to use.
type Human struct {
	// Sigma controls spread: 0.2 tight (page-load waits), 0.3 moderate
	// (UI interactions, the default), 0.5 wide (reading pauses).
	Sigma float64

	// Distraction is the probability of adding a 2-6s pause. Default 0.08.
	Distraction float64

	Logger *slog.Logger
}

// Pace sleeps for a log-normal duration centered between low and high,
// clamped to [low/2, high*2]. It returns early when ctx is done.
func (h Human) Pace(ctx context.Context, low, high time.Duration) {
	d := h.duration(low, high)
	if d <= 0 {
		return
	}
	if h.Logger != nil {
		h.Logger.Debug("pace", "delay", d.Round(100*time.Millisecond))
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}

func (h Human) duration(low, high time.Duration) time.Duration {
	if high < low {
		low, high = high, low
	}
	if low <= 0 {
		low = 50 * time.Millisecond
	}
	if high < low {
		high = low
	}

	sigma := h.Sigma
	if sigma <= 0 {
		sigma = 0.3
	}
	distraction := h.Distraction
	if distraction <= 0 {
		distraction = 0.08
	}

	mid := (low + high).Seconds() / 2
	if mid <= 0 {
		mid = 0.001
	}
	secs := math.Exp(math.Log(mid) + rand.NormFloat64()*sigma)
	secs = math.Max(low.Seconds()/2, math.Min(secs, high.Seconds()*2))
	if rand.Float64() < distraction {
		secs += 2 + rand.Float64()*4
	}
	return time.Duration(secs * float64(time.Second))
}

// ScrollCount returns how many scroll gestures to use for one pagination,
// jittered so page advances do not look mechanical.
func ScrollCount() int {
	return 2 + rand.IntN(3)
}
