package core

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"time"

	"github.com/webaudit/webaudit/utils"
)

// Request is one logical fetch. URL may be relative-free raw form; identity
// and cache keying use its normalized form.
type Request struct {
	Method  string
	URL     string
	Headers map[string]string
	Body    []byte
	// Render requests a browser-rendered fetch when the transport
	// supports it.
	Render bool
	// NoCache skips both the cache lookup and the write-through, so the
	// response latency reflects a real round trip.
	NoCache bool
}

// FetchResult is the outcome of a successful fetch.
type FetchResult struct {
	StatusCode int           `json:"status_code"`
	Headers    http.Header   `json:"headers"`
	Body       []byte        `json:"body"`
	FinalURL   string        `json:"final_url"`
	Duration   time.Duration `json:"-"`
	FromCache  bool          `json:"-"`
}

// Transport is the injected network capability. TLS, DNS and headless
// rendering live behind this boundary, not in the core.
type Transport interface {
	RoundTrip(ctx context.Context, req *Request) (*FetchResult, error)
}

// Fetcher is the single choke point for all crawler and module network
// activity: cache consult, rate limiting, timeout, retry with exponential
// backoff, and write-through caching all happen here, which makes them
// effective system-wide rather than per-caller.
type Fetcher struct {
	transport Transport
	cache     CacheStore
	limiter   Limiter
	cfg       *utils.Config
	logger    *utils.Logger
}

// NewFetcher wires a fetcher. cache and limiter may be nil to disable the
// respective stage.
func NewFetcher(transport Transport, cache CacheStore, limiter Limiter, cfg *utils.Config, logger *utils.Logger) *Fetcher {
	return &Fetcher{
		transport: transport,
		cache:     cache,
		limiter:   limiter,
		cfg:       cfg,
		logger:    logger,
	}
}

// Get is shorthand for a GET fetch.
func (f *Fetcher) Get(ctx context.Context, rawURL string) (*FetchResult, error) {
	return f.Fetch(ctx, &Request{Method: http.MethodGet, URL: rawURL})
}

// Fetch performs one logical request. Cache hits return without touching
// the limiter or the network. Rate-limit waits are bounded by the
// configured max queue time; exceeding it degrades to a FetchError.
func (f *Fetcher) Fetch(ctx context.Context, req *Request) (*FetchResult, error) {
	if req.Method == "" {
		req.Method = http.MethodGet
	}

	normalized := utils.NormalizeURL(req.URL)
	if normalized == "" {
		return nil, &FetchError{URL: req.URL, Attempt: 0, Err: errInvalidURL}
	}

	key := CacheKey(req.Method, normalized, req.Headers)

	if f.cacheable(req) {
		if cached, ok := f.cache.Get(key); ok {
			if result := decodeCached(cached); result != nil {
				f.logger.Debug("Cache hit for %s", normalized)
				result.FromCache = true
				return result, nil
			}
			f.cache.Delete(key)
		}
	}

	if f.limiter != nil {
		host := hostOf(normalized)
		waitCtx, cancel := context.WithTimeout(ctx, time.Duration(f.cfg.RateLimit.MaxQueueWait)*time.Second)
		err := f.limiter.Wait(waitCtx, host)
		cancel()
		if err != nil {
			if ctx.Err() != nil {
				return nil, &FetchError{URL: normalized, Attempt: 0, Err: ctx.Err()}
			}
			return nil, &FetchError{URL: normalized, Attempt: 0, Err: ErrRateLimited}
		}
	}

	result, err := f.doWithRetry(ctx, req)
	if err != nil {
		return nil, err
	}

	if f.cacheable(req) && result.StatusCode >= 200 && result.StatusCode < 400 {
		if data := encodeCached(result); data != nil {
			f.cache.Set(key, data, time.Duration(f.cfg.Cache.TTL)*time.Second)
		}
	}

	return result, nil
}

func (f *Fetcher) cacheable(req *Request) bool {
	return f.cache != nil && f.cfg.Cache.Enabled && !req.NoCache &&
		req.Method == http.MethodGet && len(req.Body) == 0
}

func (f *Fetcher) doWithRetry(ctx context.Context, req *Request) (*FetchResult, error) {
	attempts := f.cfg.Scan.Retries + 1
	backoff := time.Duration(f.cfg.Scan.BackoffDelay) * time.Millisecond

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		reqCtx, cancel := context.WithTimeout(ctx, f.cfg.RequestTimeout())
		start := time.Now()
		result, err := f.transport.RoundTrip(reqCtx, req)
		cancel()

		if err == nil && !transientStatus(result.StatusCode) {
			result.Duration = time.Since(start)
			f.reportSuccess()
			return result, nil
		}

		if err != nil {
			lastErr = err
		} else {
			lastErr = &statusError{code: result.StatusCode}
			if result.StatusCode == http.StatusTooManyRequests ||
				result.StatusCode == http.StatusServiceUnavailable {
				f.reportBackoff()
			}
		}

		if ctx.Err() != nil {
			return nil, &FetchError{URL: req.URL, Attempt: attempt, Err: ctx.Err()}
		}

		if attempt < attempts {
			f.logger.Debug("Retrying %s (attempt %d/%d): %v", req.URL, attempt, attempts, lastErr)
			select {
			case <-ctx.Done():
				return nil, &FetchError{URL: req.URL, Attempt: attempt, Err: ctx.Err()}
			case <-time.After(backoff):
			}
			backoff *= 2
		}
	}

	return nil, &FetchError{URL: req.URL, Attempt: attempts, Err: lastErr}
}

func (f *Fetcher) reportBackoff() {
	if fb, ok := f.limiter.(FeedbackLimiter); ok {
		fb.OnBackoff()
	}
}

func (f *Fetcher) reportSuccess() {
	if fb, ok := f.limiter.(FeedbackLimiter); ok {
		fb.OnSuccess()
	}
}

// transientStatus marks responses worth retrying. 429 is handled as
// transient so the adaptive limiter can slow down and retry.
func transientStatus(code int) bool {
	return code >= 500 || code == http.StatusTooManyRequests
}

type statusError struct {
	code int
}

func (e *statusError) Error() string {
	return fmt.Sprintf("HTTP %d %s", e.code, http.StatusText(e.code))
}

func hostOf(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	return parsed.Host
}

func encodeCached(result *FetchResult) []byte {
	data, err := json.Marshal(result)
	if err != nil {
		return nil
	}
	return data
}

func decodeCached(data []byte) *FetchResult {
	var result FetchResult
	if err := json.Unmarshal(data, &result); err != nil {
		return nil
	}
	return &result
}

// HTTPTransport is the default plain-HTTP network capability.
type HTTPTransport struct {
	client    *http.Client
	userAgent string
	headers   map[string]string
	cookies   map[string]string
}

// NewHTTPTransport builds the default transport from scan configuration:
// cookie jar, optional proxy, redirect policy and custom headers/cookies.
func NewHTTPTransport(cfg *utils.Config) *HTTPTransport {
	jar, _ := cookiejar.New(nil)

	transport := &http.Transport{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
	}

	if cfg.Scan.Proxy != "" {
		if proxy, err := url.Parse(cfg.Scan.Proxy); err == nil {
			transport.Proxy = http.ProxyURL(proxy)
			transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
		}
	}

	client := &http.Client{
		Timeout:   cfg.RequestTimeout(),
		Jar:       jar,
		Transport: transport,
	}
	if !cfg.Scan.FollowRedirects {
		client.CheckRedirect = func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		}
	}

	t := &HTTPTransport{
		client:    client,
		userAgent: cfg.Scan.UserAgent,
		headers:   cfg.Scan.CustomHeaders,
		cookies:   cfg.Scan.CustomCookies,
	}

	if cfg.Scan.Auth.Username != "" {
		if t.headers == nil {
			t.headers = make(map[string]string)
		}
		auth := cfg.Scan.Auth.Username + ":" + cfg.Scan.Auth.Password
		t.headers["Authorization"] = "Basic " + base64.StdEncoding.EncodeToString([]byte(auth))
	}

	return t
}

func (t *HTTPTransport) RoundTrip(ctx context.Context, req *Request) (*FetchResult, error) {
	var body io.Reader
	if len(req.Body) > 0 {
		body = bytes.NewReader(req.Body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.URL, body)
	if err != nil {
		return nil, err
	}

	httpReq.Header.Set("User-Agent", t.userAgent)
	for k, v := range t.headers {
		httpReq.Header.Set(k, v)
	}
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}
	for name, value := range t.cookies {
		httpReq.AddCookie(&http.Cookie{Name: name, Value: value})
	}

	resp, err := t.client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, err
	}

	return &FetchResult{
		StatusCode: resp.StatusCode,
		Headers:    resp.Header,
		Body:       respBody,
		FinalURL:   resp.Request.URL.String(),
	}, nil
}

// maxBodySize caps response bodies to keep page records bounded.
const maxBodySize = 5 << 20
