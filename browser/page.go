package browser

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"

	"github.com/skimkit/skim/extract"
	"github.com/skimkit/skim/tap"
)

// Page wraps a Rod page with stealth applied and resource blocking active.
// It is the surface both the response tap (ListenResponses) and the
// diagnostic capture (PageURL, PageTitle, Excerpt, Screenshot) hang off.
type Page struct {
	page   *rod.Page
	logger *slog.Logger
}

// NewPage opens a stealth page on the managed browser.
func (m *Manager) NewPage(ctx context.Context) (*Page, error) {
	b := m.Browser()
	if b == nil {
		return nil, fmt.Errorf("browser: no active browser")
	}

	page, err := stealth.Page(b)
	if err != nil {
		return nil, fmt.Errorf("browser: create page: %w", err)
	}

	if len(m.cfg.ResourceBlocking) > 0 {
		if err := applyResourceBlocking(page, m.cfg.ResourceBlocking); err != nil {
			m.cfg.Logger.Warn("browser: resource blocking failed", "error", err)
		}
	}

	return &Page{page: page, logger: m.cfg.Logger}, nil
}

// Rod exposes the underlying Rod page for adapters.
func (p *Page) Rod() *rod.Page { return p.page }

// Navigate loads url and waits for the load event, bounded by ctx.
func (p *Page) Navigate(ctx context.Context, url string) error {
	navCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := p.page.Context(navCtx).Navigate(url); err != nil {
		return fmt.Errorf("browser: navigate %s: %w", url, err)
	}
	if err := p.page.Context(navCtx).WaitLoad(); err != nil {
		p.logger.Warn("browser: wait load timeout", "url", url, "error", err)
	}
	return nil
}

// Close closes the page.
func (p *Page) Close() error {
	if p.page != nil {
		return p.page.Close()
	}
	return nil
}

// ListenResponses streams every network response on this page to h, body
// included, until the returned stop function is called. Bodies that cannot
// be fetched (redirects, evicted from the buffer, binary streams) are
// delivered empty so URL-level consumers still see the response.
func (p *Page) ListenResponses(h func(tap.Response)) func() {
	ctx, cancel := context.WithCancel(context.Background())
	page := p.page.Context(ctx)

	go page.EachEvent(func(e *proto.NetworkResponseReceived) {
		if e.Response == nil {
			return
		}
		var body []byte
		res, err := proto.NetworkGetResponseBody{RequestID: e.RequestID}.Call(page)
		if err == nil {
			body = []byte(res.Body)
		} else if ctx.Err() == nil {
			p.logger.Debug("browser: response body unavailable",
				"url", e.Response.URL, "error", err)
		}
		h(tap.Response{
			URL:    e.Response.URL,
			Status: int(e.Response.Status),
			Body:   body,
		})
	})()

	return cancel
}

// PageURL reports the page's current URL.
func (p *Page) PageURL(ctx context.Context) (string, error) {
	info, err := p.page.Context(ctx).Info()
	if err != nil {
		return "", fmt.Errorf("browser: page info: %w", err)
	}
	return info.URL, nil
}

// PageTitle reports the page's current title.
func (p *Page) PageTitle(ctx context.Context) (string, error) {
	info, err := p.page.Context(ctx).Info()
	if err != nil {
		return "", fmt.Errorf("browser: page info: %w", err)
	}
	return info.Title, nil
}

// Excerpt returns up to maxLen characters of the page's visible text.
func (p *Page) Excerpt(ctx context.Context, maxLen int) (string, error) {
	res, err := p.page.Context(ctx).Eval(`() => document.documentElement.outerHTML`)
	if err != nil {
		return "", fmt.Errorf("browser: get DOM: %w", err)
	}
	text, err := extract.Text(res.Value.Str())
	if err != nil {
		return "", fmt.Errorf("browser: extract text: %w", err)
	}
	return extract.Excerpt(text, maxLen), nil
}

// Screenshot captures the viewport as PNG into path.
func (p *Page) Screenshot(ctx context.Context, path string) error {
	data, err := p.page.Context(ctx).Screenshot(false, nil)
	if err != nil {
		return fmt.Errorf("browser: screenshot: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("browser: screenshot dir: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("browser: write screenshot: %w", err)
	}
	return nil
}
