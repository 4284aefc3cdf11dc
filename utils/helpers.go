package utils

import (
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// trackingParams are stripped during URL normalization so analytics noise
// does not create duplicate page identities.
var trackingParams = []string{
	"utm_source", "utm_medium", "utm_campaign", "utm_term", "utm_content",
	"fbclid", "gclid", "msclkid", "dclid", "mc_cid", "mc_eid",
}

// NormalizeURL canonicalizes a URL into its identity form:
// scheme + host + path + sorted query. Fragments, tracking parameters and
// default ports are dropped. Returns "" for URLs that cannot be fetched.
func NormalizeURL(rawURL string) string {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" || rawURL == "#" {
		return ""
	}

	lower := strings.ToLower(rawURL)
	if strings.HasPrefix(lower, "javascript:") ||
		strings.HasPrefix(lower, "mailto:") ||
		strings.HasPrefix(lower, "tel:") ||
		strings.HasPrefix(lower, "data:") {
		return ""
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	if parsed.Scheme != "" && parsed.Scheme != "http" && parsed.Scheme != "https" {
		return ""
	}

	parsed.Fragment = ""
	parsed.Host = strings.ToLower(parsed.Host)
	if (parsed.Scheme == "http" && strings.HasSuffix(parsed.Host, ":80")) ||
		(parsed.Scheme == "https" && strings.HasSuffix(parsed.Host, ":443")) {
		parsed.Host = parsed.Host[:strings.LastIndex(parsed.Host, ":")]
	}
	if parsed.Path == "" {
		parsed.Path = "/"
	}

	query := parsed.Query()
	for _, param := range trackingParams {
		query.Del(param)
	}
	// url.Values.Encode sorts keys, which gives the sorted-query identity.
	parsed.RawQuery = query.Encode()

	return parsed.String()
}

// ResolveURL resolves a possibly-relative reference against a base URL.
func ResolveURL(ref string, base *url.URL) string {
	ref = strings.TrimSpace(ref)
	if ref == "" || strings.HasPrefix(ref, "#") {
		return ""
	}
	parsed, err := url.Parse(ref)
	if err != nil {
		return ""
	}
	return base.ResolveReference(parsed).String()
}

// GetHostname extracts the hostname from a URL, with underscores substituted
// for dots so it is safe for use in filenames.
func GetHostname(urlStr string) string {
	parsed, err := url.Parse(urlStr)
	if err != nil || parsed.Hostname() == "" {
		trimmed := strings.TrimPrefix(strings.TrimPrefix(urlStr, "https://"), "http://")
		if slash := strings.Index(trimmed, "/"); slash != -1 {
			trimmed = trimmed[:slash]
		}
		return strings.ReplaceAll(trimmed, ".", "_")
	}
	return strings.ReplaceAll(parsed.Hostname(), ".", "_")
}

// StringInSlice checks if a string exists in a slice.
func StringInSlice(str string, list []string) bool {
	for _, item := range list {
		if item == str {
			return true
		}
	}
	return false
}

// RemoveDuplicates removes duplicates from a string slice, preserving order.
func RemoveDuplicates(slice []string) []string {
	seen := make(map[string]bool)
	result := []string{}

	for _, item := range slice {
		if !seen[item] {
			seen[item] = true
			result = append(result, item)
		}
	}

	return result
}

// SortedKeys returns the keys of a string map in sorted order.
func SortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// FileExists checks if a file exists and is not a directory.
func FileExists(filename string) bool {
	info, err := os.Stat(filename)
	if err != nil {
		return false
	}
	return !info.IsDir()
}

// EnsureDir creates a directory if it doesn't exist.
func EnsureDir(dir string) error {
	return os.MkdirAll(dir, 0755)
}

// WriteToFile writes data to a file, creating parent directories as needed.
func WriteToFile(path string, data []byte) error {
	if err := EnsureDir(filepath.Dir(path)); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// IsBlacklisted checks if the target's host matches a blacklist entry.
func IsBlacklisted(target string, blacklistedIPs []string) bool {
	if len(blacklistedIPs) == 0 {
		return false
	}

	parsed, err := url.Parse(target)
	if err != nil {
		return false
	}

	hostname := parsed.Hostname()
	for _, blocked := range blacklistedIPs {
		if strings.Contains(hostname, blocked) {
			return true
		}
	}

	return false
}

// IsWhitelisted checks if the target's host matches the whitelist. An empty
// whitelist allows everything.
func IsWhitelisted(target string, whitelistedDomains []string) bool {
	if len(whitelistedDomains) == 0 {
		return true
	}

	parsed, err := url.Parse(target)
	if err != nil {
		return false
	}

	hostname := parsed.Hostname()
	for _, domain := range whitelistedDomains {
		if hostname == domain || strings.HasSuffix(hostname, "."+domain) {
			return true
		}
	}

	return false
}
