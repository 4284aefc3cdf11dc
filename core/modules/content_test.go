package modules

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/webaudit/webaudit/core"
)

func TestPerformanceFlagsSlowAndHeavyPages(t *testing.T) {
	cfg := testModuleConfig(t)
	big := make([]byte, 2<<20)
	pages := []*core.CrawledPage{
		{URL: "https://example.com/slow", Status: 200, FetchTime: 4 * time.Second, Headers: http.Header{}},
		{URL: "https://example.com/heavy", Status: 200, Body: big, Headers: http.Header{}},
	}

	m := NewPerformance()
	require.NoError(t, m.Initialize(cfg))

	result, err := m.Run(context.Background(), newTestContext(t, "https://example.com", cfg, pages))
	require.NoError(t, err)

	titles := findingTitles(result.Findings)
	assert.Contains(t, titles, "Slow page response")
	assert.Contains(t, titles, "Oversized page payload")
	assert.Contains(t, titles, "Response served without compression")
}

func TestPerformanceQuietOnHealthyPage(t *testing.T) {
	cfg := testModuleConfig(t)
	h := http.Header{}
	h.Set("Cache-Control", "max-age=3600")
	h.Set("Content-Encoding", "gzip")
	pages := []*core.CrawledPage{
		{URL: "https://example.com/", Status: 200, FetchTime: 80 * time.Millisecond, Body: []byte("small"), Headers: h},
	}

	m := NewPerformance()
	require.NoError(t, m.Initialize(cfg))

	result, err := m.Run(context.Background(), newTestContext(t, "https://example.com", cfg, pages))
	require.NoError(t, err)
	assert.Empty(t, result.Findings)
}

func TestSEOChecks(t *testing.T) {
	cfg := testModuleConfig(t)
	body := `<html><head></head><body><h1>One</h1><h1>Two</h1></body></html>`
	pages := []*core.CrawledPage{
		{URL: "https://example.com/", Status: 200, Body: []byte(body)},
	}

	m := NewSEO()
	require.NoError(t, m.Initialize(cfg))

	result, err := m.Run(context.Background(), newTestContext(t, "https://example.com", cfg, pages))
	require.NoError(t, err)

	titles := findingTitles(result.Findings)
	assert.Contains(t, titles, "Missing page title")
	assert.Contains(t, titles, "Missing meta description")
	assert.Contains(t, titles, "Multiple top-level headings")
}

func TestSEOQuietOnWellFormedPage(t *testing.T) {
	cfg := testModuleConfig(t)
	body := `<html><head>
		<title>Products</title>
		<meta name="description" content="Our product catalog">
	</head><body><h1>Products</h1></body></html>`
	pages := []*core.CrawledPage{
		{URL: "https://example.com/products", Status: 200, Body: []byte(body)},
	}

	m := NewSEO()
	require.NoError(t, m.Initialize(cfg))

	result, err := m.Run(context.Background(), newTestContext(t, "https://example.com", cfg, pages))
	require.NoError(t, err)
	assert.Empty(t, result.Findings)
}

func TestAccessibilityChecks(t *testing.T) {
	cfg := testModuleConfig(t)
	body := `<html><head></head><body>
		<img src="logo.png">
		<img src="banner.png" alt="Spring sale">
		<form><input type="text" name="email"></form>
		<a href="/next"></a>
	</body></html>`
	pages := []*core.CrawledPage{
		{URL: "https://example.com/", Status: 200, Body: []byte(body)},
	}

	m := NewAccessibility()
	require.NoError(t, m.Initialize(cfg))

	result, err := m.Run(context.Background(), newTestContext(t, "https://example.com", cfg, pages))
	require.NoError(t, err)

	byTitle := make(map[string]core.Finding)
	for _, f := range result.Findings {
		byTitle[f.Title] = f
	}

	assert.Contains(t, byTitle, "Document language not declared")
	require.Contains(t, byTitle, "Images without alternative text")
	assert.Equal(t, "1", byTitle["Images without alternative text"].Evidence["count"])
	assert.Contains(t, byTitle, "Form inputs without labels")
	assert.Contains(t, byTitle, "Links without accessible text")
}

func TestAccessibilityQuietOnAccessiblePage(t *testing.T) {
	cfg := testModuleConfig(t)
	body := `<html lang="en"><head></head><body>
		<img src="logo.png" alt="Logo">
		<form>
			<label for="email">Email</label>
			<input type="text" name="email" id="email">
		</form>
		<a href="/next">Next page</a>
	</body></html>`
	pages := []*core.CrawledPage{
		{URL: "https://example.com/", Status: 200, Body: []byte(body)},
	}

	m := NewAccessibility()
	require.NoError(t, m.Initialize(cfg))

	result, err := m.Run(context.Background(), newTestContext(t, "https://example.com", cfg, pages))
	require.NoError(t, err)
	assert.Empty(t, result.Findings)
}

func TestCatalogRegistersAllModules(t *testing.T) {
	registry := core.NewRegistry(nil)
	RegisterAll(registry)

	names := registry.Names()
	assert.Equal(t, []string{"headers", "exposure", "sqli", "xss", "redirect", "perf", "seo", "a11y"}, names)

	for _, name := range names {
		m, ok := registry.Get(name)
		require.True(t, ok)
		assert.NotEmpty(t, m.Category())
	}
}
