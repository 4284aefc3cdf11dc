package modules

import (
	"context"
	"fmt"
	"html"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/webaudit/webaudit/core"
)

func TestReflectedXSSDetectsUnencodedEcho(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/search", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprintf(w, "<html><body>Results for %s</body></html>", r.URL.Query().Get("q"))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	cfg := testModuleConfig(t)
	page := &core.CrawledPage{URL: srv.URL + "/search?q=shoes", Status: 200}

	m := NewReflectedXSS()
	require.NoError(t, m.Initialize(cfg))

	result, err := m.Run(context.Background(), newTestContext(t, srv.URL, cfg, []*core.CrawledPage{page}))
	require.NoError(t, err)
	require.NotEmpty(t, result.Findings)

	f := result.Findings[0]
	assert.Equal(t, core.SeverityHigh, f.Severity)
	assert.Equal(t, "q", f.Evidence["param"])
	assert.NotEmpty(t, f.Evidence["payload"])
}

func TestReflectedXSSIgnoresEncodedEcho(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/search", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprintf(w, "<html><body>Results for %s</body></html>", html.EscapeString(r.URL.Query().Get("q")))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	cfg := testModuleConfig(t)
	page := &core.CrawledPage{URL: srv.URL + "/search?q=shoes", Status: 200}

	m := NewReflectedXSS()
	require.NoError(t, m.Initialize(cfg))

	result, err := m.Run(context.Background(), newTestContext(t, srv.URL, cfg, []*core.CrawledPage{page}))
	require.NoError(t, err)
	assert.Empty(t, result.Findings, "properly encoded output is not a finding")
}

func TestReflectedXSSProbesGetForms(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/find", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprintf(w, "<html><body>%s</body></html>", r.URL.Query().Get("term"))
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, "<html><body>home</body></html>")
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	cfg := testModuleConfig(t)
	page := &core.CrawledPage{
		URL:    srv.URL + "/",
		Status: 200,
		Forms: []core.Form{{
			Action: srv.URL + "/find",
			Method: "GET",
			Fields: []core.FormField{{Name: "term", Type: "text"}},
		}},
	}

	m := NewReflectedXSS()
	require.NoError(t, m.Initialize(cfg))

	result, err := m.Run(context.Background(), newTestContext(t, srv.URL, cfg, []*core.CrawledPage{page}))
	require.NoError(t, err)
	require.NotEmpty(t, result.Findings)
	assert.Equal(t, "term", result.Findings[0].Evidence["field"])
}
