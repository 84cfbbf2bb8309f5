package site

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/go-rod/rod"
)

// Factory builds an adapter bound to an already-open page. The page is
// expected to be on (or navigable to) the site's base URL.
//
// Factories must tolerate a nil page at construction time: callers open
// the adapter once with a nil page to read launch metadata (LaunchArgs,
// Locale, BaseURL) before Chrome exists, then again with the real page.
// Only the metadata methods may be called on a nil-page instance.
type Factory func(page *rod.Page, logger *slog.Logger) (Adapter, error)

var (
	registryMu sync.RWMutex
	registry   = make(map[string]Factory)
)

// Register makes an adapter available under name. It is intended to be
// called from an adapter package's init, database/sql-driver style.
// Registering the same name twice panics.
func Register(name string, f Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if f == nil {
		panic("site: Register factory is nil")
	}
	if _, dup := registry[name]; dup {
		panic("site: Register called twice for " + name)
	}
	registry[name] = f
}

// Open constructs the adapter registered under name.
func Open(name string, page *rod.Page, logger *slog.Logger) (Adapter, error) {
	registryMu.RLock()
	f, ok := registry[name]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("site: unknown site %q (registered: %v)", name, Names())
	}
	return f(page, logger)
}

// Names lists the registered site names, sorted.
func Names() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for n := range registry {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
