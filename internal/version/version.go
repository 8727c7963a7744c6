// Package version checks for newer nao releases.
package version

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/tidwall/gjson"
	"golang.org/x/mod/semver"
)

// DisableEnvVar turns the startup check off when set to any non-empty value.
const DisableEnvVar = "NAO_NO_UPDATE_CHECK"

// DefaultTTL is how long a check result is reused.
const DefaultTTL = 24 * time.Hour

// Result describes the outcome of one check.
type Result struct {
	Current         string    `json:"current"`
	Latest          string    `json:"latest,omitempty"`
	URL             string    `json:"url,omitempty"`
	UpdateAvailable bool      `json:"update_available"`
	CheckedAt       time.Time `json:"checked_at"`
}

// Checker queries a release endpoint returning {"tag_name": ..., "html_url": ...}.
type Checker struct {
	URL       string
	Client    *http.Client
	CachePath string        // empty disables caching
	TTL       time.Duration // zero means DefaultTTL
	Now       func() time.Time
}

// NewChecker returns a Checker caching under ~/.nao.
func NewChecker(url string) *Checker {
	c := &Checker{
		URL:    url,
		Client: &http.Client{Timeout: 3 * time.Second},
	}
	if home, err := os.UserHomeDir(); err == nil {
		c.CachePath = filepath.Join(home, ".nao", "update-check.json")
	}
	return c
}

// Normalize returns v in canonical "vMAJOR.MINOR.PATCH" form, or "" when v is
// not a semantic version.
func Normalize(v string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		return ""
	}
	if !strings.HasPrefix(v, "v") {
		v = "v" + v
	}
	if !semver.IsValid(v) {
		return ""
	}
	return semver.Canonical(v)
}

// IsNewer reports whether latest is a strictly newer semantic version than current.
func IsNewer(current, latest string) bool {
	c, l := Normalize(current), Normalize(latest)
	if c == "" || l == "" {
		return false
	}
	return semver.Compare(l, c) > 0
}

// Check compares current against the latest release. Unreleased builds
// ("dev" or any non-semver string) are never checked.
func (c *Checker) Check(ctx context.Context, current string) (Result, error) {
	res := Result{Current: current}
	if Normalize(current) == "" {
		return res, nil
	}

	now := c.now()
	if cached, ok := c.readCache(); ok && now.Sub(cached.CheckedAt) < c.ttl() && cached.Current == current {
		return cached, nil
	}

	latest, url, err := c.fetchLatest(ctx)
	if err != nil {
		return res, err
	}
	res.Latest = latest
	res.URL = url
	res.UpdateAvailable = IsNewer(current, latest)
	res.CheckedAt = now
	c.writeCache(res)
	return res, nil
}

// Latest returns the latest published tag without consulting the cache.
func (c *Checker) Latest(ctx context.Context) (tag, url string, err error) {
	return c.fetchLatest(ctx)
}

func (c *Checker) fetchLatest(ctx context.Context) (string, string, error) {
	if c.URL == "" {
		return "", "", fmt.Errorf("no release URL configured")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.URL, nil)
	if err != nil {
		return "", "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	client := c.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", "", fmt.Errorf("fetch latest release: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", "", fmt.Errorf("fetch latest release: HTTP %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", "", fmt.Errorf("read release info: %w", err)
	}
	if !gjson.ValidBytes(body) {
		return "", "", fmt.Errorf("parse release info: invalid JSON")
	}
	release := gjson.GetManyBytes(body, "tag_name", "html_url")
	tag, htmlURL := release[0].String(), release[1].String()
	if Normalize(tag) == "" {
		return "", "", fmt.Errorf("release tag %q is not a semantic version", tag)
	}
	return tag, htmlURL, nil
}

func (c *Checker) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now()
}

func (c *Checker) ttl() time.Duration {
	if c.TTL > 0 {
		return c.TTL
	}
	return DefaultTTL
}

func (c *Checker) readCache() (Result, bool) {
	if c.CachePath == "" {
		return Result{}, false
	}
	data, err := os.ReadFile(c.CachePath)
	if err != nil {
		return Result{}, false
	}
	var res Result
	if err := json.Unmarshal(data, &res); err != nil {
		return Result{}, false
	}
	return res, true
}

func (c *Checker) writeCache(res Result) {
	if c.CachePath == "" {
		return
	}
	if err := os.MkdirAll(filepath.Dir(c.CachePath), 0755); err != nil {
		return
	}
	data, err := json.Marshal(res)
	if err != nil {
		return
	}
	_ = os.WriteFile(c.CachePath, data, 0644)
}

// Notify runs a check and prints a one-line notice to w when a newer release
// exists. Failures are logged at debug level and never returned.
func (c *Checker) Notify(ctx context.Context, current string, w io.Writer, logger *log.Logger) {
	if strings.TrimSpace(os.Getenv(DisableEnvVar)) != "" {
		return
	}
	res, err := c.Check(ctx, current)
	if err != nil {
		if logger != nil {
			logger.Debug("update check failed", "err", err)
		}
		return
	}
	if res.UpdateAvailable && w != nil {
		fmt.Fprintf(w, "A new version of nao is available: %s → %s. Run `nao upgrade` to update.\n", current, res.Latest)
	}
}
