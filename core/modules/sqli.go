package modules

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"sort"
	"time"

	"github.com/webaudit/webaudit/core"
	"github.com/webaudit/webaudit/utils"
)

// sqlErrorPatterns match database error leakage in responses.
var sqlErrorPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(sql syntax.*error|syntax error.*sql)`),
	regexp.MustCompile(`(?i)(mysql.*error|warning.*mysql)`),
	regexp.MustCompile(`(?i)ORA-[0-9]{5}`),
	regexp.MustCompile(`(?i)PostgreSQL.*ERROR`),
	regexp.MustCompile(`(?i)Driver.*SQL[-_ ]*Server`),
	regexp.MustCompile(`(?i)Unclosed quotation mark`),
	regexp.MustCompile(`(?i)quoted string not properly terminated`),
}

// errorPayloads are cheap single-quote style probes for error-based
// detection.
var errorPayloads = []string{
	`'`,
	`"`,
	`'--`,
	`' OR '1'='1`,
}

// timePayloads instruct common databases to pause before responding. A
// response that slows down by the configured threshold after injection is
// strong evidence of injection.
var timePayloads = []string{
	`' AND SLEEP(%d)--`,
	`'; WAITFOR DELAY '0:0:%d'--`,
	`' AND pg_sleep(%d)--`,
}

// SQLInjection probes discovered forms and parameterized URLs with
// error-based and time-based payloads.
type SQLInjection struct {
	threshold time.Duration
	sleepSecs int
	baselines int
	maxProbes int
}

func NewSQLInjection() *SQLInjection {
	return &SQLInjection{}
}

func (m *SQLInjection) Name() string     { return "sqli" }
func (m *SQLInjection) Category() string { return "injection" }

// Exclusive keeps other modules from running alongside the timing probes.
func (m *SQLInjection) Exclusive() bool { return true }

func (m *SQLInjection) Initialize(cfg *utils.Config) error {
	m.threshold = time.Duration(cfg.Detection.TimeDelayThreshold) * time.Millisecond
	if m.threshold <= 0 {
		return fmt.Errorf("time delay threshold must be positive, got %v", m.threshold)
	}
	// Ask the database to sleep comfortably past the threshold.
	m.sleepSecs = int(m.threshold/time.Second) + 2
	m.baselines = cfg.Detection.BaselineSamples
	if m.baselines < 1 {
		m.baselines = 3
	}
	m.maxProbes = cfg.Detection.MaxProbesPerPage
	if m.maxProbes < 1 {
		m.maxProbes = 10
	}
	return nil
}

func (m *SQLInjection) Run(ctx context.Context, tc *core.TestContext) (*core.ModuleResult, error) {
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

		findings := m.testQueryParams(ctx, tc, page.URL)
		result.Findings = append(result.Findings, findings...)

		for _, form := range page.Forms {
			findings := m.testForm(ctx, tc, page.URL, form)
			result.Findings = append(result.Findings, findings...)
		}
	}

	result.EndedAt = time.Now()
	return result, nil
}

// testQueryParams injects error payloads into each existing query
// parameter of the page URL.
func (m *SQLInjection) testQueryParams(ctx context.Context, tc *core.TestContext, pageURL string) []core.Finding {
	parsed, err := url.Parse(pageURL)
	if err != nil || len(parsed.Query()) == 0 {
		return nil
	}

	var findings []core.Finding
	probes := 0
	params := sortedParams(parsed.Query())
	for _, param := range params {
		for _, payload := range errorPayloads {
			if probes >= m.maxProbes {
				return findings
			}
			probes++

			q := parsed.Query()
			q.Set(param, q.Get(param)+payload)
			probe := *parsed
			probe.RawQuery = q.Encode()

			res, err := tc.Fetcher.Get(ctx, probe.String())
			if err != nil {
				continue
			}
			if pattern := matchSQLError(string(res.Body)); pattern != "" {
				findings = append(findings, core.Finding{
					Title:       "SQL error disclosure",
					Severity:    core.SeverityHigh,
					Description: fmt.Sprintf("Parameter %q reflects a database error when injected.", param),
					Module:      m.Name(),
					Tag:         "CWE-89",
					Evidence: map[string]string{
						"url":     pageURL,
						"param":   param,
						"payload": payload,
						"pattern": pattern,
					},
				})
				break
			}
		}
	}
	return findings
}

// testForm submits error and time-based payloads through each text field
// of the form. Time-based detection compares probe latency against a
// baseline of clean submissions.
func (m *SQLInjection) testForm(ctx context.Context, tc *core.TestContext, pageURL string, form core.Form) []core.Finding {
	fields := injectableFields(form)
	if len(fields) == 0 {
		return nil
	}

	var findings []core.Finding
	baseline := m.measureBaseline(ctx, tc, form, fields)

	probes := 0
	for _, field := range fields {
		if probes >= m.maxProbes {
			break
		}

		// Error-based first: one cheap probe per field.
		res, _, err := m.submit(ctx, tc, form, fields, field, errorPayloads[0])
		probes++
		if err == nil {
			if pattern := matchSQLError(string(res.Body)); pattern != "" {
				findings = append(findings, core.Finding{
					Title:       "SQL error disclosure in form field",
					Severity:    core.SeverityHigh,
					Description: fmt.Sprintf("Form field %q reflects a database error when injected.", field),
					Module:      m.Name(),
					Tag:         "CWE-89",
					Evidence: map[string]string{
						"page":    pageURL,
						"action":  form.Action,
						"field":   field,
						"payload": errorPayloads[0],
						"pattern": pattern,
					},
				})
				continue
			}
		}

		// Time-based: inject a sleep and compare against baseline.
		if baseline < 0 {
			continue
		}
		for _, tmpl := range timePayloads {
			if probes >= m.maxProbes {
				break
			}
			payload := fmt.Sprintf(tmpl, m.sleepSecs)
			_, elapsed, err := m.submit(ctx, tc, form, fields, field, payload)
			probes++
			if err != nil {
				continue
			}
			delta := elapsed - baseline
			if delta >= m.threshold {
				findings = append(findings, core.Finding{
					Title:       "Time-based SQL injection",
					Severity:    core.SeverityHigh,
					Description: fmt.Sprintf("Form field %q delays the response when a sleep payload is injected.", field),
					Module:      m.Name(),
					Tag:         "CWE-89",
					Evidence: map[string]string{
						"page":     pageURL,
						"action":   form.Action,
						"field":    field,
						"payload":  payload,
						"baseline": baseline.String(),
						"delta":    delta.String(),
					},
				})
				break
			}
		}
	}
	return findings
}

// measureBaseline submits the form with benign values and returns the
// slowest observed latency, or -1 when the form cannot be submitted.
func (m *SQLInjection) measureBaseline(ctx context.Context, tc *core.TestContext, form core.Form, fields []string) time.Duration {
	worst := time.Duration(-1)
	for i := 0; i < m.baselines; i++ {
		_, elapsed, err := m.submit(ctx, tc, form, fields, "", "")
		if err != nil {
			continue
		}
		if elapsed > worst {
			worst = elapsed
		}
	}
	return worst
}

// submit sends the form with benign values in every field except target,
// which receives the payload. It returns wall-clock latency for the
// request, bypassing the cache so timing is real.
func (m *SQLInjection) submit(ctx context.Context, tc *core.TestContext, form core.Form, fields []string, target, payload string) (*core.FetchResult, time.Duration, error) {
	values := url.Values{}
	for _, field := range fields {
		if field == target {
			values.Set(field, "test"+payload)
		} else {
			values.Set(field, "test")
		}
	}

	req := &core.Request{
		Method: form.Method,
		URL:    form.Action,
		Headers: map[string]string{
			"Content-Type": "application/x-www-form-urlencoded",
		},
		Body:    []byte(values.Encode()),
		NoCache: true,
	}
	if form.Method == http.MethodGet {
		probe, err := url.Parse(form.Action)
		if err != nil {
			return nil, 0, err
		}
		probe.RawQuery = values.Encode()
		req = &core.Request{Method: http.MethodGet, URL: probe.String(), Headers: req.Headers, NoCache: true}
	}

	start := time.Now()
	res, err := tc.Fetcher.Fetch(ctx, req)
	elapsed := time.Since(start)
	if err != nil {
		return nil, elapsed, err
	}
	return res, elapsed, nil
}

// injectableFields returns the names of form fields worth probing, in
// stable order.
func injectableFields(form core.Form) []string {
	var fields []string
	for _, f := range form.Fields {
		switch f.Type {
		case "submit", "button", "image", "reset", "file", "checkbox", "radio", "hidden":
			continue
		}
		fields = append(fields, f.Name)
	}
	sort.Strings(fields)
	return fields
}

func matchSQLError(body string) string {
	for _, pattern := range sqlErrorPatterns {
		if pattern.MatchString(body) {
			return pattern.String()
		}
	}
	return ""
}

func sortedParams(q url.Values) []string {
	params := make([]string, 0, len(q))
	for param := range q {
		params = append(params, param)
	}
	sort.Strings(params)
	return params
}
