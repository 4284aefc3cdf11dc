package modules

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/webaudit/webaudit/core"
)

func headerPage(url string, headers http.Header) *core.CrawledPage {
	return &core.CrawledPage{URL: url, Status: 200, Headers: headers}
}

func findingTitles(findings []core.Finding) []string {
	titles := make([]string, len(findings))
	for i, f := range findings {
		titles[i] = f.Title
	}
	return titles
}

func TestSecurityHeadersMissing(t *testing.T) {
	cfg := testModuleConfig(t)
	page := headerPage("https://example.com/", http.Header{})

	m := NewSecurityHeaders()
	require.NoError(t, m.Initialize(cfg))

	result, err := m.Run(context.Background(), newTestContext(t, "https://example.com", cfg, []*core.CrawledPage{page}))
	require.NoError(t, err)

	titles := findingTitles(result.Findings)
	assert.Contains(t, titles, "Missing Content-Security-Policy header")
	assert.Contains(t, titles, "Missing X-Content-Type-Options header")
	assert.Contains(t, titles, "Missing X-Frame-Options header")
	assert.Contains(t, titles, "Missing Strict-Transport-Security header")
}

func TestSecurityHeadersNoHSTSOnPlainHTTP(t *testing.T) {
	cfg := testModuleConfig(t)
	page := headerPage("http://example.com/", http.Header{})

	m := NewSecurityHeaders()
	require.NoError(t, m.Initialize(cfg))

	result, err := m.Run(context.Background(), newTestContext(t, "http://example.com", cfg, []*core.CrawledPage{page}))
	require.NoError(t, err)
	assert.NotContains(t, findingTitles(result.Findings), "Missing Strict-Transport-Security header")
}

func TestSecurityHeadersAllPresent(t *testing.T) {
	cfg := testModuleConfig(t)
	h := http.Header{}
	h.Set("Content-Security-Policy", "default-src 'self'")
	h.Set("X-Content-Type-Options", "nosniff")
	h.Set("X-Frame-Options", "DENY")
	h.Set("Strict-Transport-Security", "max-age=63072000")
	page := headerPage("https://example.com/", h)

	m := NewSecurityHeaders()
	require.NoError(t, m.Initialize(cfg))

	result, err := m.Run(context.Background(), newTestContext(t, "https://example.com", cfg, []*core.CrawledPage{page}))
	require.NoError(t, err)
	assert.Empty(t, result.Findings)
}

func TestSecurityHeadersVersionDisclosure(t *testing.T) {
	cfg := testModuleConfig(t)
	h := http.Header{}
	h.Set("Content-Security-Policy", "default-src 'self'")
	h.Set("X-Content-Type-Options", "nosniff")
	h.Set("X-Frame-Options", "DENY")
	h.Set("Strict-Transport-Security", "max-age=63072000")
	h.Set("Server", "nginx/1.18.0")
	page := headerPage("https://example.com/", h)

	m := NewSecurityHeaders()
	require.NoError(t, m.Initialize(cfg))

	result, err := m.Run(context.Background(), newTestContext(t, "https://example.com", cfg, []*core.CrawledPage{page}))
	require.NoError(t, err)
	require.Len(t, result.Findings, 1)
	assert.Equal(t, "Version disclosure in Server header", result.Findings[0].Title)
	assert.Equal(t, "nginx/1.18.0", result.Findings[0].Evidence["value"])
}

func TestSecurityHeadersCookieFlags(t *testing.T) {
	cfg := testModuleConfig(t)
	h := http.Header{}
	h.Set("Content-Security-Policy", "default-src 'self'")
	h.Set("X-Content-Type-Options", "nosniff")
	h.Set("X-Frame-Options", "DENY")
	h.Set("Strict-Transport-Security", "max-age=63072000")
	h.Add("Set-Cookie", "session=abc123; Path=/")
	page := headerPage("https://example.com/", h)

	m := NewSecurityHeaders()
	require.NoError(t, m.Initialize(cfg))

	result, err := m.Run(context.Background(), newTestContext(t, "https://example.com", cfg, []*core.CrawledPage{page}))
	require.NoError(t, err)

	titles := findingTitles(result.Findings)
	assert.Contains(t, titles, "Cookie without Secure flag")
	assert.Contains(t, titles, "Cookie without HttpOnly flag")
}

func TestSecurityHeadersReportedOncePerScan(t *testing.T) {
	cfg := testModuleConfig(t)
	pages := []*core.CrawledPage{
		headerPage("https://example.com/", http.Header{}),
		headerPage("https://example.com/other", http.Header{}),
	}

	m := NewSecurityHeaders()
	require.NoError(t, m.Initialize(cfg))

	result, err := m.Run(context.Background(), newTestContext(t, "https://example.com", cfg, pages))
	require.NoError(t, err)

	count := 0
	for _, title := range findingTitles(result.Findings) {
		if title == "Missing Content-Security-Policy header" {
			count++
		}
	}
	assert.Equal(t, 1, count)
}
