package core

import (
	"net/http"
	"net/url"
	"time"

	"github.com/webaudit/webaudit/utils"
)

// Severity classifies how serious a finding is.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
	SeverityInfo     Severity = "info"
)

// Severities lists all severity levels from most to least severe.
var Severities = []Severity{
	SeverityCritical, SeverityHigh, SeverityMedium, SeverityLow, SeverityInfo,
}

// Valid reports whether s is one of the five enumerated severities.
func (s Severity) Valid() bool {
	switch s {
	case SeverityCritical, SeverityHigh, SeverityMedium, SeverityLow, SeverityInfo:
		return true
	}
	return false
}

// FormField is a single input discovered in an HTML form.
type FormField struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// Form is an HTML form discovered on a crawled page.
type Form struct {
	Action string      `json:"action"`
	Method string      `json:"method"`
	Fields []FormField `json:"fields,omitempty"`
}

// CrawledPage is one unique page discovered during the crawl. URL is the
// normalized identity; a page is created exactly once per scan and is
// immutable once handed to the test engine.
type CrawledPage struct {
	URL       string        `json:"url"`
	Status    int           `json:"status"`
	Headers   http.Header   `json:"headers,omitempty"`
	Body      []byte        `json:"-"`
	Forms     []Form        `json:"forms,omitempty"`
	Links     []string      `json:"links,omitempty"`
	Depth     int           `json:"depth"`
	FetchTime time.Duration `json:"fetch_time"`
	Error     string        `json:"error,omitempty"`
}

// APIEndpoint is an API call signature discovered in page content. Page is
// the crawled page whose content revealed the endpoint.
type APIEndpoint struct {
	Method      string `json:"method"`
	Path        string `json:"path"`
	ContentType string `json:"content_type,omitempty"`
	Source      string `json:"source"`
	Page        string `json:"page"`
}

// TestContext is the read-only bundle handed to every module. It is built
// once per scan; modules must not mutate it or anything it references.
type TestContext struct {
	Target    string
	BaseURL   *url.URL
	Pages     []*CrawledPage
	Endpoints []APIEndpoint
	Config    *utils.Config
	Fetcher   *Fetcher
	Session   map[string]string
}

// Finding is a single reported issue. Immutable once emitted.
type Finding struct {
	Title       string            `json:"title"`
	Severity    Severity          `json:"severity"`
	Description string            `json:"description"`
	Evidence    map[string]string `json:"evidence,omitempty"`
	Module      string            `json:"module"`
	Tag         string            `json:"tag,omitempty"`
}

// ModuleStatus tracks a module invocation through its lifecycle.
type ModuleStatus string

const (
	StatusPending ModuleStatus = "pending"
	StatusRunning ModuleStatus = "running"
	StatusPassed  ModuleStatus = "passed"
	StatusFailed  ModuleStatus = "failed"
	StatusError   ModuleStatus = "error"
)

// ModuleResult is the outcome of one module invocation attempt. A failure
// is surfaced as StatusError, never as a missing result.
type ModuleResult struct {
	Module    string       `json:"module"`
	Category  string       `json:"category"`
	Status    ModuleStatus `json:"status"`
	Findings  []Finding    `json:"findings,omitempty"`
	StartedAt time.Time    `json:"started_at"`
	EndedAt   time.Time    `json:"ended_at"`
	Error     string       `json:"error,omitempty"`
}

// ScanStatus is the overall engine state for a scan.
type ScanStatus string

const (
	ScanCreated     ScanStatus = "created"
	ScanCrawling    ScanStatus = "crawling"
	ScanTesting     ScanStatus = "testing"
	ScanAggregating ScanStatus = "aggregating"
	ScanCompleted   ScanStatus = "completed"
	ScanFailed      ScanStatus = "failed"
)

// ScanResult is the sole output artifact of a scan. It is finalized by the
// engine and handed immutable to external consumers.
type ScanResult struct {
	ID            string             `json:"id"`
	Target        string             `json:"target"`
	StartedAt     time.Time          `json:"started_at"`
	EndedAt       time.Time          `json:"ended_at"`
	Pages         []*CrawledPage     `json:"pages"`
	Endpoints     []APIEndpoint      `json:"endpoints,omitempty"`
	ModuleResults []*ModuleResult    `json:"module_results"`
	Summary       map[Severity]int   `json:"summary"`
	Status        ScanStatus         `json:"status"`
}

// ComputeSummary tallies finding counts by severity across all module
// results.
func (r *ScanResult) ComputeSummary() {
	summary := make(map[Severity]int, len(Severities))
	for _, sev := range Severities {
		summary[sev] = 0
	}
	for _, mr := range r.ModuleResults {
		for _, f := range mr.Findings {
			summary[f.Severity]++
		}
	}
	r.Summary = summary
}

// TotalFindings returns the number of findings across all modules.
func (r *ScanResult) TotalFindings() int {
	total := 0
	for _, n := range r.Summary {
		total += n
	}
	return total
}
