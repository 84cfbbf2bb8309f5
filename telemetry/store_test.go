package telemetry

import (
	"context"
	"testing"

	_ "modernc.org/sqlite"

	"github.com/skimkit/skim/dbopen"
)

func TestStore_RecordAndCount(t *testing.T) {
	db := dbopen.OpenMemory(t, dbopen.WithSchema(Schema))
	s := NewStore(db, nil)

	s.Record("run1", "tea", "card_result", []byte(`{"id":"a"}`))
	s.Record("run1", "tea", "card_result", []byte(`{"id":"b"}`))
	s.Record("run2", "tea", "card_result", []byte(`{"id":"c"}`))

	n, err := s.CountEvents(context.Background(), "run1", "card_result")
	if err != nil {
		t.Fatalf("CountEvents: %v", err)
	}
	if n != 2 {
		t.Errorf("count = %d, want 2", n)
	}
}

func TestStore_MirrorsLoggerEvents(t *testing.T) {
	db := dbopen.OpenMemory(t, dbopen.WithSchema(Schema))
	s := NewStore(db, nil)

	l := New("run1", "tea", t.TempDir(), nil, WithStore(s))
	l.LogSearchStart(SearchStart{})
	l.LogSearchEnd(SearchEnd{StopReason: "max-pages"})
	l.Close()

	for _, event := range []string{"search_start", "search_end"} {
		n, err := s.CountEvents(context.Background(), "run1", event)
		if err != nil {
			t.Fatalf("CountEvents(%s): %v", event, err)
		}
		if n != 1 {
			t.Errorf("%s count = %d, want 1", event, n)
		}
	}
}

func TestStore_Cleanup(t *testing.T) {
	db := dbopen.OpenMemory(t, dbopen.WithSchema(Schema))
	s := NewStore(db, nil)

	s.Record("run1", "tea", "card_result", []byte(`{}`))
	if _, err := db.Exec(`UPDATE fetch_events SET created_at = created_at - 40*86400`); err != nil {
		t.Fatal(err)
	}
	s.Record("run1", "tea", "card_result", []byte(`{}`))

	if err := s.Cleanup(context.Background(), 30); err != nil {
		t.Fatalf("Cleanup: %v", err)
	}
	n, err := s.CountEvents(context.Background(), "run1", "card_result")
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("count after cleanup = %d, want 1", n)
	}
}
