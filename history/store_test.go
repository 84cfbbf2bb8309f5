package history

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func TestLoad_MissingFile(t *testing.T) {
	got, err := Load(filepath.Join(t.TempDir(), "nope.json"))
	if err != nil {
		t.Fatalf("Load missing file: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("Load missing file: got %d entries, want 0", len(got))
	}
}

func TestSaveLoad_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "history.json")
	want := map[string]Entry{
		"a1": {Likes: 120, Comments: 8, TS: "2026-08-01T10:00:00Z"},
		"b2": {Likes: 0, Comments: 0},
		"c3": {Likes: 999999, Comments: 12345, TS: "2026-08-29T00:00:00Z"},
	}

	if err := Save(path, want); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("round trip mismatch:\n got %v\nwant %v", got, want)
	}
}

func TestLoad_LegacyArrayFormat(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.json")
	if err := os.WriteFile(path, []byte(`["a1","b2","",  "c3"]`), 0o644); err != nil {
		t.Fatal(err)
	}

	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load legacy: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("legacy entries: got %d, want 3", len(got))
	}
	for _, id := range []string{"a1", "b2", "c3"} {
		e, ok := got[id]
		if !ok {
			t.Errorf("legacy entry %q missing", id)
			continue
		}
		if e.Likes != 0 || e.Comments != 0 {
			t.Errorf("legacy entry %q: got %+v, want zero baseline", id, e)
		}
	}
}

func TestLoad_Garbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.json")
	if err := os.WriteFile(path, []byte(`{{{not json`), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("Load garbage: got nil error, want parse error")
	}
}

func TestSave_NoPartialFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "history.json")
	if err := Save(path, map[string]Entry{"x": {Likes: 1}}); err != nil {
		t.Fatalf("Save: %v", err)
	}

	files, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(files) != 1 || files[0].Name() != "history.json" {
		t.Errorf("directory after Save: got %v, want only history.json", files)
	}
}
