package utils

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeURL(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "https://example.com/page", "https://example.com/page"},
		{"adds root path", "https://example.com", "https://example.com/"},
		{"strips fragment", "https://example.com/page#section", "https://example.com/page"},
		{"strips default https port", "https://example.com:443/page", "https://example.com/page"},
		{"strips default http port", "http://example.com:80/page", "http://example.com/page"},
		{"keeps custom port", "https://example.com:8443/page", "https://example.com:8443/page"},
		{"lowercases host", "https://EXAMPLE.com/Page", "https://example.com/Page"},
		{"sorts query", "https://example.com/p?b=2&a=1", "https://example.com/p?a=1&b=2"},
		{"strips tracking params", "https://example.com/p?utm_source=x&id=5&fbclid=y", "https://example.com/p?id=5"},
		{"rejects javascript", "javascript:void(0)", ""},
		{"rejects mailto", "mailto:a@example.com", ""},
		{"rejects tel", "tel:+123456", ""},
		{"rejects data", "data:text/html,hi", ""},
		{"rejects bare fragment", "#", ""},
		{"rejects empty", "", ""},
		{"rejects ftp", "ftp://example.com/file", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeURL(tt.in))
		})
	}
}

func TestNormalizeURLIdempotent(t *testing.T) {
	raw := "https://Example.com:443/page?b=2&a=1&utm_source=mail#top"
	once := NormalizeURL(raw)
	require.NotEmpty(t, once)
	assert.Equal(t, once, NormalizeURL(once))
}

func TestResolveURL(t *testing.T) {
	base, err := url.Parse("https://example.com/dir/page.html")
	require.NoError(t, err)

	assert.Equal(t, "https://example.com/other", ResolveURL("/other", base))
	assert.Equal(t, "https://example.com/dir/sibling", ResolveURL("sibling", base))
	assert.Equal(t, "https://other.com/x", ResolveURL("https://other.com/x", base))
}

func TestRemoveDuplicates(t *testing.T) {
	got := RemoveDuplicates([]string{"a", "b", "a", "c", "b"})
	assert.Equal(t, []string{"a", "b", "c"}, got)
}

func TestSortedKeys(t *testing.T) {
	keys := SortedKeys(map[string]string{"b": "2", "a": "1", "c": "3"})
	assert.Equal(t, []string{"a", "b", "c"}, keys)
}

func TestIsBlacklisted(t *testing.T) {
	assert.False(t, IsBlacklisted("https://example.com", nil))
	assert.True(t, IsBlacklisted("https://10.0.0.5/admin", []string{"10.0.0."}))
	assert.False(t, IsBlacklisted("https://example.com", []string{"10.0.0."}))
}

func TestIsWhitelisted(t *testing.T) {
	assert.True(t, IsWhitelisted("https://anything.net", nil))
	assert.True(t, IsWhitelisted("https://example.com/x", []string{"example.com"}))
	assert.True(t, IsWhitelisted("https://app.example.com/x", []string{"example.com"}))
	assert.False(t, IsWhitelisted("https://evil.com", []string{"example.com"}))
}
