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

// xssMarker is a unique token wrapped in markup that must never survive
// proper output encoding. Reflection of the raw form signals XSS.
const xssMarker = "wast9k2"

var xssPayloads = []string{
	`<script>alert('` + xssMarker + `')</script>`,
	`"><img src=x onerror=alert('` + xssMarker + `')>`,
	`'><svg onload=alert('` + xssMarker + `')>`,
}

// ReflectedXSS injects marker payloads into query parameters and form
// fields and looks for unencoded reflection in the response.
type ReflectedXSS struct {
	maxProbes int
}

func NewReflectedXSS() *ReflectedXSS {
	return &ReflectedXSS{}
}

func (m *ReflectedXSS) Name() string     { return "xss" }
func (m *ReflectedXSS) Category() string { return "xss" }

func (m *ReflectedXSS) Initialize(cfg *utils.Config) error {
	m.maxProbes = cfg.Detection.MaxProbesPerPage
	if m.maxProbes < 1 {
		m.maxProbes = 10
	}
	return nil
}

func (m *ReflectedXSS) Run(ctx context.Context, tc *core.TestContext) (*core.ModuleResult, error) {
	result := &core.ModuleResult{
		Module:    m.Name(),
		Category:  m.Category(),
		StartedAt: time.Now(),
	}

	for _, page := range tc.Pages {
		if page.Error != "" {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		result.Findings = append(result.Findings, m.testPage(ctx, tc, page)...)
	}

	result.EndedAt = time.Now()
	return result, nil
}

func (m *ReflectedXSS) testPage(ctx context.Context, tc *core.TestContext, page *core.CrawledPage) []core.Finding {
	parsed, err := url.Parse(page.URL)
	if err != nil {
		return nil
	}

	var findings []core.Finding
	probes := 0

	for _, param := range sortedParams(parsed.Query()) {
		for _, payload := range xssPayloads {
			if probes >= m.maxProbes {
				return findings
			}
			probes++

			q := parsed.Query()
			q.Set(param, payload)
			probe := *parsed
			probe.RawQuery = q.Encode()

			res, err := tc.Fetcher.Get(ctx, probe.String())
			if err != nil {
				continue
			}
			if reflectsPayload(string(res.Body), payload) {
				findings = append(findings, core.Finding{
					Title:       "Reflected cross-site scripting",
					Severity:    core.SeverityHigh,
					Description: fmt.Sprintf("Parameter %q reflects injected markup without encoding.", param),
					Module:      m.Name(),
					Tag:         "CWE-79",
					Evidence: map[string]string{
						"url":     page.URL,
						"param":   param,
						"payload": payload,
					},
				})
				break
			}
		}
	}

	// GET forms feed straight back into query parameters.
	for _, form := range page.Forms {
		if form.Method != "GET" {
			continue
		}
		for _, field := range injectableFields(form) {
			if probes >= m.maxProbes {
				return findings
			}
			probes++

			action, err := url.Parse(form.Action)
			if err != nil {
				continue
			}
			values := url.Values{}
			values.Set(field, xssPayloads[0])
			action.RawQuery = values.Encode()

			res, err := tc.Fetcher.Get(ctx, action.String())
			if err != nil {
				continue
			}
			if reflectsPayload(string(res.Body), xssPayloads[0]) {
				findings = append(findings, core.Finding{
					Title:       "Reflected cross-site scripting in form field",
					Severity:    core.SeverityHigh,
					Description: fmt.Sprintf("Form field %q reflects injected markup without encoding.", field),
					Module:      m.Name(),
					Tag:         "CWE-79",
					Evidence: map[string]string{
						"page":    page.URL,
						"action":  form.Action,
						"field":   field,
						"payload": xssPayloads[0],
					},
				})
			}
		}
	}

	return findings
}

// reflectsPayload checks that the exact unencoded payload appears in the
// body. An HTML-encoded echo of the marker is safe and does not count.
func reflectsPayload(body, payload string) bool {
	return strings.Contains(body, payload)
}
