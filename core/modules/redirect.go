package modules

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/webaudit/webaudit/core"
	"github.com/webaudit/webaudit/utils"
)

// redirectParams are query parameter names that commonly drive redirects.
var redirectParams = []string{
	"redirect", "redirect_uri", "return", "returnurl", "url", "next", "continue", "goto", "dest",
}

// redirectTarget is the external origin injected into redirect parameters.
// It does not need to resolve; only the Location header matters.
const redirectTarget = "https://evil.example.net/landing"

// OpenRedirect injects an external URL into redirect-style query
// parameters and reports endpoints that echo it into a Location header.
type OpenRedirect struct{}

func NewOpenRedirect() *OpenRedirect {
	return &OpenRedirect{}
}

func (m *OpenRedirect) Name() string                       { return "redirect" }
func (m *OpenRedirect) Category() string                   { return "redirect" }
func (m *OpenRedirect) Initialize(cfg *utils.Config) error { return nil }

func (m *OpenRedirect) Run(ctx context.Context, tc *core.TestContext) (*core.ModuleResult, error) {
	result := &core.ModuleResult{
		Module:    m.Name(),
		Category:  m.Category(),
		StartedAt: time.Now(),
	}

	tested := make(map[string]bool)
	for _, page := range tc.Pages {
		if page.Error != "" {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		parsed, err := url.Parse(page.URL)
		if err != nil {
			continue
		}
		for _, param := range sortedParams(parsed.Query()) {
			if !isRedirectParam(param) {
				continue
			}
			key := parsed.Path + "?" + param
			if tested[key] {
				continue
			}
			tested[key] = true

			if f := m.probe(ctx, tc, parsed, param); f != nil {
				result.Findings = append(result.Findings, *f)
			}
		}
	}

	result.EndedAt = time.Now()
	return result, nil
}

// probe replaces the parameter with an external URL and checks whether the
// server redirects there.
func (m *OpenRedirect) probe(ctx context.Context, tc *core.TestContext, pageURL *url.URL, param string) *core.Finding {
	q := pageURL.Query()
	q.Set(param, redirectTarget)
	probe := *pageURL
	probe.RawQuery = q.Encode()

	res, err := tc.Fetcher.Get(ctx, probe.String())
	if err != nil {
		return nil
	}
	// With redirect following enabled the transport lands on the injected
	// origin; without it the Location header carries it.
	location := res.Headers.Get("Location")
	if !strings.HasPrefix(location, redirectTarget) && !strings.HasPrefix(res.FinalURL, redirectTarget) {
		return nil
	}
	if location == "" {
		location = res.FinalURL
	}

	return &core.Finding{
		Title:       "Open redirect",
		Severity:    core.SeverityMedium,
		Description: fmt.Sprintf("Parameter %q redirects visitors to an attacker-chosen origin.", param),
		Module:      m.Name(),
		Tag:         "CWE-601",
		Evidence: map[string]string{
			"url":      pageURL.String(),
			"param":    param,
			"payload":  redirectTarget,
			"location": location,
		},
	}
}

func isRedirectParam(param string) bool {
	lower := strings.ToLower(param)
	for _, candidate := range redirectParams {
		if strings.Contains(lower, candidate) {
			return true
		}
	}
	return false
}
