package modules

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/webaudit/webaudit/core"
)

func TestExposedFilesDetectsGitConfig(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/.git/config", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "[core]\n\trepositoryformatversion = 0\n")
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	cfg := testModuleConfig(t)
	m := NewExposedFiles()
	require.NoError(t, m.Initialize(cfg))

	result, err := m.Run(context.Background(), newTestContext(t, srv.URL, cfg, nil))
	require.NoError(t, err)
	require.NotEmpty(t, result.Findings)

	f := result.Findings[0]
	assert.Equal(t, "Git repository exposed", f.Title)
	assert.Equal(t, core.SeverityCritical, f.Severity)
	assert.Equal(t, srv.URL+"/.git/config", f.Evidence["url"])
}

func TestExposedFilesIgnoresCatchAll(t *testing.T) {
	// A server that answers 200 with the same page for everything must
	// not produce exposure findings for marker-gated paths.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "<html><body>welcome to our site</body></html>")
	}))
	defer srv.Close()

	cfg := testModuleConfig(t)
	m := NewExposedFiles()
	require.NoError(t, m.Initialize(cfg))

	result, err := m.Run(context.Background(), newTestContext(t, srv.URL, cfg, nil))
	require.NoError(t, err)
	for _, f := range result.Findings {
		assert.Equal(t, "Directory metadata exposed", f.Title,
			"only the markerless probe may fire against a catch-all server")
	}
}

func TestExposedFilesNothingExposed(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	cfg := testModuleConfig(t)
	m := NewExposedFiles()
	require.NoError(t, m.Initialize(cfg))

	result, err := m.Run(context.Background(), newTestContext(t, srv.URL, cfg, nil))
	require.NoError(t, err)
	assert.Empty(t, result.Findings)
}

func TestExposedFilesConcurrentChecksStableOrder(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/.env", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "SECRET_KEY=abc")
	})
	mux.HandleFunc("/.git/config", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "[core]\n")
	})
	mux.HandleFunc("/backup.sql", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "INSERT INTO users VALUES (1)")
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	cfg := testModuleConfig(t)
	cfg.Scan.ConcurrentRequests = 4

	run := func() []string {
		m := NewExposedFiles()
		require.NoError(t, m.Initialize(cfg))
		result, err := m.Run(context.Background(), newTestContext(t, srv.URL, cfg, nil))
		require.NoError(t, err)
		urls := make([]string, len(result.Findings))
		for i, f := range result.Findings {
			urls[i] = f.Evidence["url"]
		}
		return urls
	}

	first := run()
	require.Len(t, first, 3, "every exposed file is found with concurrent probes")
	assert.Equal(t, []string{
		srv.URL + "/.env",
		srv.URL + "/.git/config",
		srv.URL + "/backup.sql",
	}, first)
	assert.Equal(t, first, run(), "finding order does not depend on probe interleaving")
}

func TestExposedFilesFlagsAdminPages(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	cfg := testModuleConfig(t)
	pages := []*core.CrawledPage{
		{URL: srv.URL + "/admin/users", Status: 200},
		{URL: srv.URL + "/products", Status: 200},
	}

	m := NewExposedFiles()
	require.NoError(t, m.Initialize(cfg))

	result, err := m.Run(context.Background(), newTestContext(t, srv.URL, cfg, pages))
	require.NoError(t, err)
	require.Len(t, result.Findings, 1)
	assert.Equal(t, "Management interface reachable", result.Findings[0].Title)
	assert.Equal(t, srv.URL+"/admin/users", result.Findings[0].Evidence["url"])
}
