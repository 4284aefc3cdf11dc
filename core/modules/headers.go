package modules

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/webaudit/webaudit/core"
	"github.com/webaudit/webaudit/utils"
)

// SecurityHeaders passively audits response headers on every crawled page.
// It sends no requests of its own.
type SecurityHeaders struct{}

func NewSecurityHeaders() *SecurityHeaders {
	return &SecurityHeaders{}
}

func (m *SecurityHeaders) Name() string                       { return "headers" }
func (m *SecurityHeaders) Category() string                   { return "headers" }
func (m *SecurityHeaders) Initialize(cfg *utils.Config) error { return nil }

func (m *SecurityHeaders) Run(ctx context.Context, tc *core.TestContext) (*core.ModuleResult, error) {
	result := &core.ModuleResult{
		Module:    m.Name(),
		Category:  m.Category(),
		StartedAt: time.Now(),
	}

	// Missing-header findings are reported once, against the first page
	// that exhibits them, to keep the report readable.
	reported := make(map[string]bool)

	for _, page := range tc.Pages {
		if page.Error != "" || page.Headers == nil {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		for _, f := range m.checkPage(page, strings.HasPrefix(page.URL, "https://")) {
			if reported[f.Title] {
				continue
			}
			reported[f.Title] = true
			result.Findings = append(result.Findings, f)
		}
	}

	result.EndedAt = time.Now()
	return result, nil
}

func (m *SecurityHeaders) checkPage(page *core.CrawledPage, isTLS bool) []core.Finding {
	var findings []core.Finding

	missing := func(header string, severity core.Severity, description string) {
		if page.Headers.Get(header) == "" {
			findings = append(findings, core.Finding{
				Title:       "Missing " + header + " header",
				Severity:    severity,
				Description: description,
				Module:      m.Name(),
				Tag:         "CWE-693",
				Evidence:    map[string]string{"url": page.URL},
			})
		}
	}

	missing("Content-Security-Policy", core.SeverityMedium,
		"Without a Content-Security-Policy the browser will execute any injected script.")
	missing("X-Content-Type-Options", core.SeverityLow,
		"Responses can be MIME-sniffed into executable types.")
	missing("X-Frame-Options", core.SeverityLow,
		"Pages can be framed by other origins, enabling clickjacking.")
	if isTLS {
		missing("Strict-Transport-Security", core.SeverityMedium,
			"Browsers will not force future connections onto HTTPS.")
	}

	for _, header := range []string{"Server", "X-Powered-By", "X-AspNet-Version"} {
		if value := page.Headers.Get(header); value != "" && strings.ContainsAny(value, "0123456789") {
			findings = append(findings, core.Finding{
				Title:       "Version disclosure in " + header + " header",
				Severity:    core.SeverityInfo,
				Description: fmt.Sprintf("The %s header leaks software version information.", header),
				Module:      m.Name(),
				Tag:         "CWE-200",
				Evidence:    map[string]string{"url": page.URL, "header": header, "value": value},
			})
		}
	}

	for _, cookie := range page.Headers.Values("Set-Cookie") {
		lower := strings.ToLower(cookie)
		name := cookie
		if i := strings.Index(cookie, "="); i > 0 {
			name = cookie[:i]
		}
		if isTLS && !strings.Contains(lower, "secure") {
			findings = append(findings, core.Finding{
				Title:       "Cookie without Secure flag",
				Severity:    core.SeverityMedium,
				Description: fmt.Sprintf("Cookie %q can be sent over plaintext HTTP.", name),
				Module:      m.Name(),
				Tag:         "CWE-614",
				Evidence:    map[string]string{"url": page.URL, "cookie": name},
			})
		}
		if !strings.Contains(lower, "httponly") {
			findings = append(findings, core.Finding{
				Title:       "Cookie without HttpOnly flag",
				Severity:    core.SeverityLow,
				Description: fmt.Sprintf("Cookie %q is readable from page scripts.", name),
				Module:      m.Name(),
				Tag:         "CWE-1004",
				Evidence:    map[string]string{"url": page.URL, "cookie": name},
			})
		}
	}

	return findings
}
