package update

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompareVersions(t *testing.T) {
	tests := []struct {
		name string
		a    string
		b    string
		want int
	}{
		// Basic comparisons
		{name: "1.0.0 < 1.0.1", a: "1.0.0", b: "1.0.1", want: -1},
		{name: "1.0.1 > 1.0.0", a: "1.0.1", b: "1.0.0", want: 1},
		{name: "1.0.0 == 1.0.0", a: "1.0.0", b: "1.0.0", want: 0},

		// With v prefix
		{name: "v1.0.0 < 1.0.1", a: "v1.0.0", b: "1.0.1", want: -1},
		{name: "v1.0.0 == v1.0.0", a: "v1.0.0", b: "v1.0.0", want: 0},

		// Minor and major version changes
		{name: "1.0.0 < 1.1.0", a: "1.0.0", b: "1.1.0", want: -1},
		{name: "2.0.0 > 1.9.9", a: "2.0.0", b: "1.9.9", want: 1},

		// dev version handling
		{name: "dev > 1.0.0", a: "dev", b: "1.0.0", want: 1},
		{name: "1.0.0 < dev", a: "1.0.0", b: "dev", want: -1},

		// Pre-releases sort before their release
		{name: "1.0.0-beta < 1.0.0", a: "1.0.0-beta", b: "1.0.0", want: -1},
		{name: "1.0.0-beta < 1.0.1", a: "1.0.0-beta", b: "1.0.1", want: -1},

		// Numeric, not lexical
		{name: "0.10.0 > 0.9.0", a: "0.10.0", b: "0.9.0", want: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, compareVersions(tt.a, tt.b))
		})
	}
}

func releaseServer(t *testing.T, tag string, hits *int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(hits, 1)
		assert.Equal(t, "pgup/1.0.0", r.Header.Get("User-Agent"))
		_ = json.NewEncoder(w).Encode(githubRelease{TagName: tag, HTMLURL: "https://example.test/" + tag})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestChecker_Check(t *testing.T) {
	var hits int32
	srv := releaseServer(t, "v1.2.0", &hits)

	c := &Checker{URL: srv.URL, CacheDir: t.TempDir(), Current: "1.0.0"}
	info, err := c.Check(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "1.2.0", info.LatestVersion)
	assert.Equal(t, "1.0.0", info.CurrentVersion)
	assert.True(t, info.UpdateAvailable)
	assert.Equal(t, "https://example.test/v1.2.0", info.ReleaseURL)
}

func TestChecker_CheckWithCache(t *testing.T) {
	var hits int32
	srv := releaseServer(t, "v1.0.0", &hits)
	dir := t.TempDir()

	c := &Checker{URL: srv.URL, CacheDir: dir, Current: "1.0.0"}
	info, err := c.CheckWithCache(context.Background())
	require.NoError(t, err)
	assert.False(t, info.UpdateAvailable)
	assert.FileExists(t, filepath.Join(dir, cacheFile))

	// Served from cache.
	_, err = c.CheckWithCache(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))
}

func TestChecker_ExpiredCache(t *testing.T) {
	var hits int32
	srv := releaseServer(t, "v2.0.0", &hits)
	dir := t.TempDir()

	stale, err := json.Marshal(Info{LatestVersion: "1.0.0", CheckedAt: time.Now().Add(-48 * time.Hour)})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, cacheFile), stale, 0o644))

	c := &Checker{URL: srv.URL, CacheDir: dir, Current: "1.0.0"}
	info, err := c.CheckWithCache(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "2.0.0", info.LatestVersion)
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))
}

func TestChecker_BadStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	t.Cleanup(srv.Close)

	_, err := (&Checker{URL: srv.URL, CacheDir: t.TempDir()}).Check(context.Background())
	assert.EqualError(t, err, "GitHub API returned status 403")
}

func TestCacheDir(t *testing.T) {
	t.Setenv("XDG_CACHE_HOME", "/tmp/xdg")
	dir, err := (&Checker{}).cacheDir()
	require.NoError(t, err)
	assert.Equal(t, "/tmp/xdg/pgup", dir)
}
