package core

import (
	"context"
	"mime"
	"net/http"
	"net/url"
	"path"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/webaudit/webaudit/utils"
)

// Crawler performs a breadth-first discovery of the target site through the
// shared fetcher. Every page is identified by its normalized URL and fetched
// at most once per scan.
type Crawler struct {
	fetcher *Fetcher
	cfg     *utils.Config
	logger  *utils.Logger

	baseURL *url.URL
	robots  *robotsRules

	mu       sync.Mutex
	visited  map[string]bool
	reserved int
	pages    []*CrawledPage

	wg    sync.WaitGroup
	queue chan crawlTask
}

type crawlTask struct {
	url   string
	depth int
}

// CrawlResult is the immutable site graph handed to the test engine.
type CrawlResult struct {
	Pages     []*CrawledPage `json:"pages"`
	Endpoints []APIEndpoint  `json:"endpoints,omitempty"`
}

func NewCrawler(fetcher *Fetcher, cfg *utils.Config, logger *utils.Logger) *Crawler {
	return &Crawler{
		fetcher: fetcher,
		cfg:     cfg,
		logger:  logger,
		visited: make(map[string]bool),
	}
}

// Crawl walks the target site breadth-first up to the configured depth and
// page limits. Out-of-scope and robots-disallowed URLs are recorded as links
// on the pages that reference them but never fetched. When ctx expires the
// partial graph gathered so far is returned.
func (c *Crawler) Crawl(ctx context.Context, target string) (*CrawlResult, error) {
	start := utils.NormalizeURL(target)
	if start == "" {
		return nil, NewSetupError("invalid target URL: %s", target)
	}
	base, err := url.Parse(start)
	if err != nil {
		return nil, NewSetupError("invalid target URL: %s", target)
	}
	c.baseURL = base

	if c.cfg.Scan.RespectRobots {
		c.robots = fetchRobots(ctx, c.fetcher, base, c.cfg.Scan.UserAgent)
		c.logger.Debug("robots.txt loaded: %d disallow rules", len(c.robots.disallow))
	}

	c.logger.Info("Crawling %s (depth %d, max %d pages)", start, c.cfg.Scan.Depth, c.cfg.Scan.MaxPages)

	// Every enqueue reserves a page slot first, so at most MaxPages tasks
	// ever enter the queue and sends never block. The start URL goes
	// through the same robots gate as every discovered link.
	c.queue = make(chan crawlTask, c.cfg.Scan.MaxPages)
	if c.fetchable(start) {
		c.enqueue(start, 0)
	} else {
		c.logger.Warning("Target %s is disallowed by robots.txt, nothing to crawl", start)
	}

	workers := c.cfg.Scan.ConcurrentRequests
	if workers < 1 {
		workers = 1
	}
	var workerWG sync.WaitGroup
	for i := 0; i < workers; i++ {
		workerWG.Add(1)
		go func() {
			defer workerWG.Done()
			c.worker(ctx)
		}()
	}

	// The queue drains when every reserved task has been processed and
	// produced no further reservations.
	go func() {
		c.wg.Wait()
		close(c.queue)
	}()
	workerWG.Wait()

	c.mu.Lock()
	pages := c.pages
	c.mu.Unlock()

	sort.Slice(pages, func(i, j int) bool {
		if pages[i].Depth != pages[j].Depth {
			return pages[i].Depth < pages[j].Depth
		}
		return pages[i].URL < pages[j].URL
	})

	endpoints := collectEndpoints(pages, base)
	c.logger.Info("Crawl complete: %d pages, %d API endpoints", len(pages), len(endpoints))

	return &CrawlResult{Pages: pages, Endpoints: endpoints}, nil
}

func (c *Crawler) worker(ctx context.Context) {
	for task := range c.queue {
		if ctx.Err() == nil {
			c.process(ctx, task)
		}
		c.wg.Done()
	}
}

// enqueue claims the URL and a page slot. It is a no-op for URLs already
// seen, past the page budget, or too deep.
func (c *Crawler) enqueue(normURL string, depth int) {
	if depth > c.cfg.Scan.Depth {
		return
	}
	c.mu.Lock()
	if c.visited[normURL] || c.reserved >= c.cfg.Scan.MaxPages {
		c.mu.Unlock()
		return
	}
	c.visited[normURL] = true
	c.reserved++
	c.mu.Unlock()

	c.wg.Add(1)
	c.queue <- crawlTask{url: normURL, depth: depth}
}

func (c *Crawler) process(ctx context.Context, task crawlTask) {
	page := &CrawledPage{URL: task.url, Depth: task.depth}

	result, err := c.fetcher.Fetch(ctx, &Request{
		Method: http.MethodGet,
		URL:    task.url,
		Render: c.cfg.JavaScript.Enable,
	})
	if err != nil {
		c.logger.Debug("Failed to fetch %s: %v", task.url, err)
		page.Error = err.Error()
		c.addPage(page)
		return
	}

	page.Status = result.StatusCode
	page.Headers = result.Headers
	page.Body = result.Body
	page.FetchTime = result.Duration

	if isHTML(result.Headers) {
		pageURL, _ := url.Parse(task.url)
		links, forms := extractContent(string(result.Body), pageURL)
		page.Forms = forms
		page.Links = utils.RemoveDuplicates(links)

		for _, link := range page.Links {
			if c.fetchable(link) {
				c.enqueue(link, task.depth+1)
			}
		}
	}

	c.addPage(page)
}

func (c *Crawler) addPage(page *CrawledPage) {
	c.mu.Lock()
	c.pages = append(c.pages, page)
	c.mu.Unlock()
}

// fetchable reports whether a discovered link may itself be crawled:
// in scope and not blocked by robots rules.
func (c *Crawler) fetchable(link string) bool {
	parsed, err := url.Parse(link)
	if err != nil {
		return false
	}
	if !c.inScope(parsed.Hostname()) {
		return false
	}
	if c.robots != nil && !c.robots.Allowed(parsed.Path) {
		c.logger.Debug("Skipping %s: disallowed by robots.txt", link)
		return false
	}
	return true
}

// inScope allows the target's own host plus any configured allowed domains,
// including their subdomains.
func (c *Crawler) inScope(host string) bool {
	if strings.EqualFold(host, c.baseURL.Hostname()) {
		return true
	}
	for _, domain := range c.cfg.Scan.AllowedDomains {
		if strings.EqualFold(host, domain) || strings.HasSuffix(strings.ToLower(host), "."+strings.ToLower(domain)) {
			return true
		}
	}
	return false
}

func isHTML(headers http.Header) bool {
	ct := headers.Get("Content-Type")
	return ct == "" || strings.Contains(ct, "text/html") || strings.Contains(ct, "application/xhtml")
}

// apiPatterns match API call signatures embedded in page JavaScript. The
// last capture group is always the URL.
var apiPatterns = []struct {
	source string
	regex  *regexp.Regexp
}{
	{"fetch", regexp.MustCompile(`fetch\(["']([^"']+)["']`)},
	{"axios", regexp.MustCompile(`axios\.(get|post|put|delete)\(["']([^"']+)["']`)},
	{"ajax", regexp.MustCompile(`\.ajax\([^)]*url:\s*["']([^"']+)["']`)},
	{"xhr", regexp.MustCompile(`\.open\(["'](GET|POST|PUT|DELETE)["'],\s*["']([^"']+)["']`)},
	{"const", regexp.MustCompile(`API_URL\s*=\s*["']([^"']+)["']`)},
}

// collectEndpoints scans page bodies for API call signatures and returns
// them deduplicated by method and path, in sorted order. Pages arrive
// sorted, so the recorded discovering page is stable across runs.
func collectEndpoints(pages []*CrawledPage, base *url.URL) []APIEndpoint {
	// Endpoints the crawler itself fetched carry an authoritative
	// content type in their response headers.
	fetchedCT := make(map[string]string, len(pages))
	for _, page := range pages {
		if ct, _, err := mime.ParseMediaType(page.Headers.Get("Content-Type")); err == nil && ct != "" {
			fetchedCT[page.URL] = ct
		}
	}

	seen := make(map[string]APIEndpoint)
	for _, page := range pages {
		if len(page.Body) == 0 {
			continue
		}
		body := string(page.Body)
		for _, p := range apiPatterns {
			for _, match := range p.regex.FindAllStringSubmatch(body, -1) {
				endpoint := match[len(match)-1]
				method := http.MethodGet
				if len(match) > 2 {
					method = strings.ToUpper(match[1])
				}
				if !strings.HasPrefix(endpoint, "http") {
					endpoint = utils.ResolveURL(endpoint, base)
				}
				endpoint = utils.NormalizeURL(endpoint)
				if endpoint == "" {
					continue
				}
				key := method + " " + endpoint
				if _, ok := seen[key]; !ok {
					seen[key] = APIEndpoint{
						Method:      method,
						Path:        endpoint,
						ContentType: endpointContentType(endpoint, fetchedCT),
						Source:      p.source,
						Page:        page.URL,
					}
				}
			}
		}
	}

	endpoints := make([]APIEndpoint, 0, len(seen))
	for _, ep := range seen {
		endpoints = append(endpoints, ep)
	}
	sort.Slice(endpoints, func(i, j int) bool {
		if endpoints[i].Path != endpoints[j].Path {
			return endpoints[i].Path < endpoints[j].Path
		}
		return endpoints[i].Method < endpoints[j].Method
	})
	return endpoints
}

// endpointContentType resolves an endpoint's content type from the crawl
// when the endpoint was itself fetched as a page, falling back to its URL
// extension.
func endpointContentType(endpoint string, fetchedCT map[string]string) string {
	if ct, ok := fetchedCT[endpoint]; ok {
		return ct
	}
	parsed, err := url.Parse(endpoint)
	if err != nil {
		return ""
	}
	if ext := path.Ext(parsed.Path); ext != "" {
		if ct, _, err := mime.ParseMediaType(mime.TypeByExtension(ext)); err == nil {
			return ct
		}
	}
	return ""
}
