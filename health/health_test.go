package health

import "testing"

func TestScore_EmptyWindow(t *testing.T) {
	m := NewMonitor()
	if got := m.Score(); got != 1.0 {
		t.Errorf("Score on empty window: got %v, want 1.0", got)
	}
	if m.ShouldStop() {
		t.Error("ShouldStop on empty window: got true, want false")
	}
	if m.ShouldBackoff() {
		t.Error("ShouldBackoff on empty window: got true, want false")
	}
}

func TestScore_AllOK(t *testing.T) {
	for _, n := range []int{1, 5, 20, 50} {
		m := NewMonitor()
		for i := 0; i < n; i++ {
			m.Record(EventOK)
		}
		if got := m.Score(); got < 0.9 {
			t.Errorf("Score after %d ok events: got %v, want >= 0.9", n, got)
		}
	}
}

func TestScore_AllCaptcha(t *testing.T) {
	m := NewMonitor()
	for i := 0; i < 5; i++ {
		m.Record(EventCaptcha)
	}
	if got := m.Score(); got >= 0.6 {
		t.Errorf("Score after 5 captchas: got %v, want < 0.6", got)
	}
	if !m.ShouldBackoff() {
		t.Error("ShouldBackoff after 5 captchas: got false, want true")
	}
}

func TestScore_InRange(t *testing.T) {
	sequences := [][]Event{
		{EventOK, EventCaptcha, EventAuthExpired, EventTimeout, EventEmpty},
		{EventAuthExpired, EventAuthExpired, EventAuthExpired, EventAuthExpired},
		{EventOK},
		{Event("bogus"), EventOK},
	}
	for _, seq := range sequences {
		m := NewMonitor()
		for _, ev := range seq {
			m.Record(ev)
			if s := m.Score(); s < 0 || s > 1 {
				t.Fatalf("Score out of range after %v: %v", seq, s)
			}
		}
	}
}

func TestScore_RecencyWeighting(t *testing.T) {
	// Recent failures hurt more than old ones.
	recent := NewMonitor()
	for i := 0; i < 5; i++ {
		recent.Record(EventOK)
	}
	for i := 0; i < 5; i++ {
		recent.Record(EventCaptcha)
	}

	old := NewMonitor()
	for i := 0; i < 5; i++ {
		old.Record(EventCaptcha)
	}
	for i := 0; i < 5; i++ {
		old.Record(EventOK)
	}

	if recent.Score() >= old.Score() {
		t.Errorf("recent failures should score lower: recent=%v old=%v",
			recent.Score(), old.Score())
	}
}

func TestShouldStop_AuthExpired(t *testing.T) {
	m := NewMonitor()
	m.Record(EventOK)
	m.Record(EventAuthExpired)
	m.Record(EventOK)
	m.Record(EventAuthExpired)
	if m.ShouldStop() {
		t.Error("ShouldStop with 2 auth_expired: got true, want false")
	}
	m.Record(EventAuthExpired)
	if !m.ShouldStop() {
		t.Error("ShouldStop with 3 auth_expired: got false, want true")
	}
}

func TestWindow_Capacity(t *testing.T) {
	m := NewMonitorWindow(5)
	for i := 0; i < 10; i++ {
		m.Record(EventOK)
	}
	if got := m.Len(); got != 5 {
		t.Errorf("Len after 10 inserts into window 5: got %d, want 5", got)
	}

	// Old auth_expired events must fall out of the window.
	m = NewMonitorWindow(5)
	for i := 0; i < 3; i++ {
		m.Record(EventAuthExpired)
	}
	for i := 0; i < 5; i++ {
		m.Record(EventOK)
	}
	if m.ShouldStop() {
		t.Error("ShouldStop after auth events evicted: got true, want false")
	}
}

func TestStats(t *testing.T) {
	m := NewMonitor()
	m.Record(EventOK)
	m.Record(EventOK)
	m.Record(EventCaptcha)

	s := m.Stats()
	if s.Total != 3 {
		t.Errorf("Stats.Total: got %d, want 3", s.Total)
	}
	if s.Events[EventOK] != 2 || s.Events[EventCaptcha] != 1 {
		t.Errorf("Stats.Events: got %v", s.Events)
	}
	if s.Score < 0 || s.Score > 1 {
		t.Errorf("Stats.Score out of range: %v", s.Score)
	}
}
