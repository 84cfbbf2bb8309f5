// Package history persists per-post engagement baselines across runs and
// decides which candidates are worth re-fetching. The engine consults it
// through the candidate filter; writing updated baselines back after a run
// is the caller's responsibility.
package history

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Entry is the persisted baseline for one post identity.
type Entry struct {
	Likes    int    `json:"likes"`
	Comments int    `json:"comments"`
	TS       string `json:"ts,omitempty"`
}

// Load reads a history file into an identity -> Entry map. A missing file
// yields an empty map. The legacy format, a bare JSON array of identity
// strings, is upgraded transparently to zero-baseline entries.
func Load(path string) (map[string]Entry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]Entry{}, nil
		}
		return nil, fmt.Errorf("history: read %s: %w", path, err)
	}

	entries := make(map[string]Entry)
	if err := json.Unmarshal(data, &entries); err == nil {
		delete(entries, "")
		return entries, nil
	}

	var legacy []string
	if err := json.Unmarshal(data, &legacy); err != nil {
		return nil, fmt.Errorf("history: parse %s: %w", path, err)
	}
	for _, id := range legacy {
		if id == "" {
			continue
		}
		entries[id] = Entry{}
	}
	return entries, nil
}

// Save writes the history map atomically: marshal to a temp file in the
// target directory, fsync, then rename over the destination. A crash mid
// save never leaves a partial file.
func Save(path string, entries map[string]Entry) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("history: mkdir %s: %w", dir, err)
	}

	data, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("history: marshal: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".history-*.json")
	if err != nil {
		return fmt.Errorf("history: temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op after successful rename

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("history: write temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("history: sync temp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("history: close temp: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("history: rename: %w", err)
	}
	return nil
}
