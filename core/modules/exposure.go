package modules

import (
	"context"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/webaudit/webaudit/core"
	"github.com/webaudit/webaudit/utils"
)

// sensitivePaths are probed relative to the target origin. Each carries a
// content marker that must appear in a 200 response before the hit counts,
// which filters out catch-all handlers.
var sensitivePaths = []struct {
	path     string
	marker   string
	severity core.Severity
	title    string
}{
	{"/.env", "=", core.SeverityCritical, "Environment file exposed"},
	{"/.git/config", "[core]", core.SeverityCritical, "Git repository exposed"},
	{"/.git/HEAD", "ref:", core.SeverityCritical, "Git repository exposed"},
	{"/wp-config.php", "DB_", core.SeverityCritical, "WordPress configuration exposed"},
	{"/config.json", "{", core.SeverityMedium, "Configuration file exposed"},
	{"/appsettings.json", "{", core.SeverityMedium, "Configuration file exposed"},
	{"/docker-compose.yml", "services", core.SeverityMedium, "Docker compose file exposed"},
	{"/phpinfo.php", "phpinfo", core.SeverityHigh, "phpinfo page exposed"},
	{"/server-status", "Apache", core.SeverityMedium, "Apache server-status exposed"},
	{"/.DS_Store", "", core.SeverityLow, "Directory metadata exposed"},
	{"/backup.sql", "INSERT", core.SeverityCritical, "Database dump exposed"},
	{"/dump.sql", "INSERT", core.SeverityCritical, "Database dump exposed"},
}

// adminKeywords flag discovered pages that look like management surfaces.
var adminKeywords = []string{
	"admin", "administrator", "wp-admin", "dashboard",
	"phpmyadmin", "adminer", "cpanel", "console", "manager",
}

// ExposedFiles probes for well-known sensitive files under the target
// origin and flags management surfaces found during the crawl.
type ExposedFiles struct{}

func NewExposedFiles() *ExposedFiles {
	return &ExposedFiles{}
}

func (m *ExposedFiles) Name() string                       { return "exposure" }
func (m *ExposedFiles) Category() string                   { return "exposure" }
func (m *ExposedFiles) Initialize(cfg *utils.Config) error { return nil }

func (m *ExposedFiles) Run(ctx context.Context, tc *core.TestContext) (*core.ModuleResult, error) {
	result := &core.ModuleResult{
		Module:    m.Name(),
		Category:  m.Category(),
		StartedAt: time.Now(),
	}

	origin := tc.BaseURL.Scheme + "://" + tc.BaseURL.Host

	// The probes are independent, so they fan out over a bounded pool.
	// Findings are sorted afterwards to keep the output order stable.
	pool := utils.NewWorkerPool(ctx, tc.Config.Scan.ConcurrentRequests, 0, 0)
	var mu sync.Mutex
	for _, probe := range sensitivePaths {
		probe := probe
		pool.Submit(func() error {
			res, err := tc.Fetcher.Get(ctx, origin+probe.path)
			if err != nil || res.StatusCode != 200 {
				return nil
			}
			if probe.marker != "" && !strings.Contains(string(res.Body), probe.marker) {
				return nil
			}
			mu.Lock()
			defer mu.Unlock()
			result.Findings = append(result.Findings, core.Finding{
				Title:       probe.title,
				Severity:    probe.severity,
				Description: "The file is readable by anonymous clients and typically contains secrets or internals.",
				Module:      m.Name(),
				Tag:         "CWE-538",
				Evidence: map[string]string{
					"url":    origin + probe.path,
					"status": "200",
				},
			})
			return nil
		})
	}
	pool.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	sort.Slice(result.Findings, func(i, j int) bool {
		return result.Findings[i].Evidence["url"] < result.Findings[j].Evidence["url"]
	})

	// Management surfaces already reachable through the crawl.
	seen := make(map[string]bool)
	for _, page := range tc.Pages {
		if page.Error != "" {
			continue
		}
		parsed, err := url.Parse(page.URL)
		if err != nil {
			continue
		}
		pathLower := strings.ToLower(parsed.Path)
		for _, keyword := range adminKeywords {
			if strings.Contains(pathLower, keyword) && !seen[page.URL] {
				seen[page.URL] = true
				result.Findings = append(result.Findings, core.Finding{
					Title:       "Management interface reachable",
					Severity:    core.SeverityLow,
					Description: "An administrative or authentication surface is linked from public pages.",
					Module:      m.Name(),
					Tag:         "CWE-200",
					Evidence: map[string]string{
						"url":     page.URL,
						"keyword": keyword,
					},
				})
				break
			}
		}
	}

	result.EndedAt = time.Now()
	return result, nil
}
