package browser

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-rod/rod/lib/proto"
)

// SaveCookies writes the page's current cookies to path as JSON. The login
// session survives restarts through this file when no persistent profile
// is configured.
func (p *Page) SaveCookies(path string) error {
	cookies, err := p.page.Cookies(nil)
	if err != nil {
		return fmt.Errorf("browser: get cookies: %w", err)
	}
	data, err := json.MarshalIndent(cookies, "", "  ")
	if err != nil {
		return fmt.Errorf("browser: marshal cookies: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("browser: cookie dir: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("browser: write cookies: %w", err)
	}
	return nil
}

// LoadCookies restores cookies previously written by SaveCookies. A missing
// file is not an error; the caller proceeds to a fresh login.
func (p *Page) LoadCookies(path string) error {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("browser: read cookies: %w", err)
	}

	var cookies []*proto.NetworkCookie
	if err := json.Unmarshal(data, &cookies); err != nil {
		return fmt.Errorf("browser: parse cookies %s: %w", path, err)
	}

	params := make([]*proto.NetworkCookieParam, 0, len(cookies))
	for _, c := range cookies {
		params = append(params, &proto.NetworkCookieParam{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Expires:  c.Expires,
			HTTPOnly: c.HTTPOnly,
			Secure:   c.Secure,
			SameSite: c.SameSite,
		})
	}
	if err := p.page.SetCookies(params); err != nil {
		return fmt.Errorf("browser: set cookies: %w", err)
	}
	return nil
}

// HasCookie reports whether a cookie with the given name is present. Site
// adapters name their session cookie; its absence means login is required.
func (p *Page) HasCookie(name string) (bool, error) {
	cookies, err := p.page.Cookies(nil)
	if err != nil {
		return false, fmt.Errorf("browser: get cookies: %w", err)
	}
	for _, c := range cookies {
		if c.Name == name {
			return true, nil
		}
	}
	return false, nil
}
