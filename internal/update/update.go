// Package update checks whether a newer pgup release is available.
package update

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/mod/semver"

	"github.com/pthm/pgup/internal/version"
)

const (
	// DefaultURL is the GitHub API endpoint for the latest release.
	DefaultURL = "https://api.github.com/repos/pthm/pgup/releases/latest"

	cacheTTL  = 24 * time.Hour
	cacheFile = "update-check.json"
)

// Info contains update check results
type Info struct {
	LatestVersion   string    `json:"latest_version"`
	CurrentVersion  string    `json:"current_version"`
	CheckedAt       time.Time `json:"checked_at"`
	UpdateAvailable bool      `json:"update_available"`
	ReleaseURL      string    `json:"release_url,omitempty"`
}

// githubRelease represents the GitHub API response
type githubRelease struct {
	TagName string `json:"tag_name"`
	HTMLURL string `json:"html_url"`
}

// Checker fetches the latest release, caching the answer for a day.
type Checker struct {
	// URL is the release endpoint. Defaults to DefaultURL.
	URL string
	// Client defaults to a client with a 5 second timeout.
	Client *http.Client
	// CacheDir defaults to $XDG_CACHE_HOME/pgup or ~/.cache/pgup.
	CacheDir string
	// Current is the running version. Defaults to version.Version.
	Current string
}

// CheckWithCache checks for updates with the default Checker.
func CheckWithCache(ctx context.Context) (*Info, error) {
	return (&Checker{}).CheckWithCache(ctx)
}

// CheckWithCache checks for updates using cache when available
func (c *Checker) CheckWithCache(ctx context.Context) (*Info, error) {
	current := c.current()

	info, err := c.loadCache()
	if err == nil && time.Since(info.CheckedAt) < cacheTTL {
		info.CurrentVersion = current
		info.UpdateAvailable = compareVersions(current, info.LatestVersion) < 0
		return info, nil
	}

	info, err = c.Check(ctx)
	if err != nil {
		return nil, err
	}

	_ = c.saveCache(info)

	return info, nil
}

// Check fetches the latest release without consulting the cache.
func (c *Checker) Check(ctx context.Context) (*Info, error) {
	url := c.URL
	if url == "" {
		url = DefaultURL
	}
	client := c.Client
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	current := c.current()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/vnd.github.v3+json")
	req.Header.Set("User-Agent", "pgup/"+current)

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("GitHub API returned status %d", resp.StatusCode)
	}

	var release githubRelease
	if err := json.NewDecoder(resp.Body).Decode(&release); err != nil {
		return nil, err
	}

	latest := strings.TrimPrefix(release.TagName, "v")
	return &Info{
		LatestVersion:   latest,
		CurrentVersion:  current,
		CheckedAt:       time.Now(),
		UpdateAvailable: compareVersions(current, latest) < 0,
		ReleaseURL:      release.HTMLURL,
	}, nil
}

func (c *Checker) current() string {
	if c.Current != "" {
		return c.Current
	}
	return version.Version
}

func (c *Checker) cacheDir() (string, error) {
	if c.CacheDir != "" {
		return c.CacheDir, nil
	}
	cacheHome := os.Getenv("XDG_CACHE_HOME")
	if cacheHome == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		cacheHome = filepath.Join(home, ".cache")
	}
	return filepath.Join(cacheHome, "pgup"), nil
}

func (c *Checker) loadCache() (*Info, error) {
	dir, err := c.cacheDir()
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(filepath.Join(dir, cacheFile))
	if err != nil {
		return nil, err
	}

	var info Info
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, err
	}

	return &info, nil
}

func (c *Checker) saveCache(info *Info) error {
	dir, err := c.cacheDir()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(info, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(filepath.Join(dir, cacheFile), data, 0o644)
}

// compareVersions compares two semver strings, with or without a leading v.
// Returns -1 if a < b, 0 if a == b, 1 if a > b. A dev build is newer than
// any release.
func compareVersions(a, b string) int {
	a = strings.TrimPrefix(a, "v")
	b = strings.TrimPrefix(b, "v")

	switch {
	case a == b:
		return 0
	case a == "dev":
		return 1
	case b == "dev":
		return -1
	}
	return semver.Compare("v"+a, "v"+b)
}
