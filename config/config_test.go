package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, `
site: fakesite
keywords: [tea, coffee]
sort: popularity
limits:
  max_pages: 5
  max_records: 30
  grind: true
  max_age_days: 7
browser:
  headless: true
  resource_blocking: [images, fonts]
diagnostics:
  verbosity: standard
  dir: ./failures
status_addr: ":8077"
`)

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if cfg.Site != "fakesite" {
		t.Errorf("site = %q", cfg.Site)
	}
	if len(cfg.Keywords) != 2 || cfg.Keywords[1] != "coffee" {
		t.Errorf("keywords = %v", cfg.Keywords)
	}
	if cfg.Limits.MaxPages != 5 || !cfg.Limits.Grind || cfg.Limits.MaxAgeDays != 7 {
		t.Errorf("limits = %+v", cfg.Limits)
	}
	if cfg.Diagnostics.Verbosity != "standard" {
		t.Errorf("verbosity = %q", cfg.Diagnostics.Verbosity)
	}
	if len(cfg.Browser.ResourceBlocking) != 2 {
		t.Errorf("resource_blocking = %v", cfg.Browser.ResourceBlocking)
	}
}

func TestLoadFile_Defaults(t *testing.T) {
	cfg, err := LoadFile(writeConfig(t, "site: fakesite\nkeywords: [tea]\n"))
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if cfg.Limits.MaxPages != 20 {
		t.Errorf("max_pages default = %d, want 20", cfg.Limits.MaxPages)
	}
	if cfg.Limits.MaxComments != 10 {
		t.Errorf("max_comments default = %d, want 10", cfg.Limits.MaxComments)
	}
	if cfg.Pacing.Min != 2*time.Second || cfg.Pacing.BackoffMax != 8*time.Second {
		t.Errorf("pacing defaults = %+v", cfg.Pacing)
	}
	if cfg.Diagnostics.Verbosity != "off" {
		t.Errorf("verbosity default = %q", cfg.Diagnostics.Verbosity)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("log_level default = %q", cfg.LogLevel)
	}
}

func TestLoadFile_Invalid(t *testing.T) {
	cases := []struct {
		name string
		body string
	}{
		{"missing site", "keywords: [tea]\n"},
		{"missing keywords", "site: fakesite\n"},
		{"bad verbosity", "site: fakesite\nkeywords: [tea]\ndiagnostics:\n  verbosity: chatty\n"},
		{"garbage yaml", "site: [unclosed\n"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := LoadFile(writeConfig(t, tc.body)); err == nil {
				t.Error("expected error, got nil")
			}
		})
	}
}
