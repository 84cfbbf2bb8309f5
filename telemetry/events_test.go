package telemetry

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func readEvents(t *testing.T, path string) []map[string]any {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open events: %v", err)
	}
	defer f.Close()

	var out []map[string]any
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var m map[string]any
		if err := json.Unmarshal(sc.Bytes(), &m); err != nil {
			t.Fatalf("bad event line %q: %v", sc.Text(), err)
		}
		out = append(out, m)
	}
	return out
}

func TestLogger_WritesJSONL(t *testing.T) {
	dir := t.TempDir()
	l := New("run1", "tea", dir, nil, WithSite("fakesite"))

	l.LogSearchStart(SearchStart{Strategy: "hybrid"})
	l.LogCardAttempt(CardAttempt{ID: "a", CardIndex: 0, PageNum: 0})
	l.LogCardResult(CardResult{ID: "a", DataSource: "passive", ContentLen: 42})
	l.LogSearchEnd(SearchEnd{StopReason: "max-pages", Fetched: 1})
	l.Close()

	events := readEvents(t, filepath.Join(dir, "tea_run1.jsonl"))
	if len(events) != 4 {
		t.Fatalf("events = %d, want 4", len(events))
	}

	wantOrder := []string{"search_start", "card_attempt", "card_result", "search_end"}
	for i, want := range wantOrder {
		if got := events[i]["event"]; got != want {
			t.Errorf("event[%d] = %v, want %q", i, got, want)
		}
	}

	first := events[0]
	if first["run_id"] != "run1" || first["keyword"] != "tea" || first["site"] != "fakesite" {
		t.Errorf("stamp fields wrong: %v", first)
	}
	if first["search_term"] != "tea" {
		t.Errorf("search_term = %v, want keyword echoed", first["search_term"])
	}
	if ts, ok := first["ts"].(float64); !ok || ts <= 0 {
		t.Errorf("ts = %v, want positive float", first["ts"])
	}
	if events[2]["content_len"] != float64(42) {
		t.Errorf("content_len = %v", events[2]["content_len"])
	}
}

func TestLogger_AppendsAcrossInstances(t *testing.T) {
	dir := t.TempDir()

	l1 := New("run1", "tea", dir, nil)
	l1.LogSearchStart(SearchStart{})
	l1.Close()

	l2 := New("run1", "tea", dir, nil)
	l2.LogSearchEnd(SearchEnd{StopReason: "canceled"})
	l2.Close()

	events := readEvents(t, filepath.Join(dir, "tea_run1.jsonl"))
	if len(events) != 2 {
		t.Fatalf("events = %d, want 2 (append mode)", len(events))
	}
}

func TestLogger_BrokenSinkDropsEvents(t *testing.T) {
	// A file where the directory should be forces the open to fail; the
	// logger must swallow events instead of panicking.
	dir := t.TempDir()
	blocked := filepath.Join(dir, "not-a-dir")
	if err := os.WriteFile(blocked, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	l := New("run1", "tea", filepath.Join(blocked, "sub"), nil)
	l.LogSearchStart(SearchStart{})
	l.LogRunEnd(RunEnd{Status: "ok"})
	l.Close()
}

func TestLogger_KeywordSanitizedInFilename(t *testing.T) {
	dir := t.TempDir()
	l := New("run1", "a/b", dir, nil)
	l.LogSearchStart(SearchStart{})
	l.Close()

	if _, err := os.Stat(filepath.Join(dir, "a_b_run1.jsonl")); err != nil {
		t.Errorf("sanitized file missing: %v", err)
	}
}
