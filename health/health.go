// Package health tracks a rolling window of fetch outcomes and turns it
// into a single session trust score. The engine reads the score to widen
// delays when the session degrades and to hard-stop when it is dead.
package health

import (
	"math"
	"time"
)

// Event classifies one fetch outcome.
type Event string

const (
	EventOK          Event = "ok"
	EventCaptcha     Event = "captcha"
	EventTimeout     Event = "timeout"
	EventEmpty       Event = "empty"
	EventAuthExpired Event = "auth_expired"
)

// Signed contribution of each event to the score. Unknown events weigh 0.
var weights = map[Event]float64{
	EventOK:          1.0,
	EventCaptcha:     -0.5,
	EventTimeout:     -0.3,
	EventEmpty:       -0.1,
	EventAuthExpired: -1.0,
}

// DefaultWindow is the event window capacity used by NewMonitor.
const DefaultWindow = 20

type entry struct {
	at time.Time
	ev Event
}

// Monitor is a fixed-capacity rolling scorer. It is not safe for
// concurrent use; the engine owns it from its single control thread.
type Monitor struct {
	events []entry
	window int
}

// NewMonitor creates a Monitor with the default window of 20 events.
func NewMonitor() *Monitor { return NewMonitorWindow(DefaultWindow) }

// NewMonitorWindow creates a Monitor holding at most window events.
func NewMonitorWindow(window int) *Monitor {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Monitor{window: window}
}

// Record appends one event, evicting the oldest when the window is full.
func (m *Monitor) Record(ev Event) {
	if len(m.events) >= m.window {
		copy(m.events, m.events[1:])
		m.events = m.events[:len(m.events)-1]
	}
	m.events = append(m.events, entry{at: time.Now(), ev: ev})
}

// Len returns the number of events currently held.
func (m *Monitor) Len() int { return len(m.events) }

// Score maps the window to [0, 1]: 1.0 is a fully healthy session, 0.0 a
// dead one. Events in the newer half of the window count double, so a
// recovering session regains trust quickly while recent trouble still
// drags. An empty window scores 1.0.
func (m *Monitor) Score() float64 {
	n := len(m.events)
	if n == 0 {
		return 1.0
	}

	mid := n / 2
	var total, possible float64
	for i, e := range m.events {
		recency := 1.0
		if i >= mid {
			recency = 2.0
		}
		total += weights[e.ev] * recency
		possible += recency // as if every event were "ok"
	}
	if possible == 0 {
		return 1.0
	}

	// total ranges over [-possible, +possible]; map linearly to [0, 1].
	raw := (total + possible) / (2 * possible)
	return math.Max(0, math.Min(1, raw))
}

// ShouldStop reports a dead session: three or more auth-expired events in
// the window, or score below 0.3. Auth expiry is a hard trigger because it
// does not self-heal with backoff.
func (m *Monitor) ShouldStop() bool {
	auth := 0
	for _, e := range m.events {
		if e.ev == EventAuthExpired {
			auth++
		}
	}
	if auth >= 3 {
		return true
	}
	return m.Score() < 0.3
}

// ShouldBackoff reports a degraded session (score below 0.6). The caller
// should widen its pacing bounds.
func (m *Monitor) ShouldBackoff() bool {
	return m.Score() < 0.6
}

// Stats summarizes the window for logging.
type Stats struct {
	Score  float64       `json:"score"`
	Events map[Event]int `json:"events"`
	Total  int           `json:"total"`
}

// Stats returns per-event counts and the rounded score.
func (m *Monitor) Stats() Stats {
	counts := make(map[Event]int)
	for _, e := range m.events {
		counts[e.ev]++
	}
	return Stats{
		Score:  math.Round(m.Score()*100) / 100,
		Events: counts,
		Total:  len(m.events),
	}
}
