package core

import (
	"context"
	"net/http"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"

	"github.com/webaudit/webaudit/utils"
)

// BrowserTransport renders pages in headless Chrome before returning their
// DOM, so single-page applications expose the same surface as static HTML.
// Non-render requests fall through to a plain HTTP transport.
type BrowserTransport struct {
	fallback Transport
	cfg      *utils.Config
	logger   *utils.Logger
}

func NewBrowserTransport(fallback Transport, cfg *utils.Config, logger *utils.Logger) *BrowserTransport {
	return &BrowserTransport{
		fallback: fallback,
		cfg:      cfg,
		logger:   logger,
	}
}

func (b *BrowserTransport) RoundTrip(ctx context.Context, req *Request) (*FetchResult, error) {
	if !req.Render || req.Method != http.MethodGet {
		return b.fallback.RoundTrip(ctx, req)
	}
	return b.render(ctx, req.URL)
}

func (b *BrowserTransport) render(ctx context.Context, rawURL string) (*FetchResult, error) {
	userAgent := b.cfg.JavaScript.UserAgent
	if userAgent == "" {
		userAgent = b.cfg.Scan.UserAgent
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.UserAgent(userAgent),
		chromedp.Flag("headless", b.cfg.JavaScript.Headless),
		chromedp.WindowSize(b.cfg.JavaScript.ViewportWidth, b.cfg.JavaScript.ViewportHeight),
	)

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	defer cancelAlloc()

	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)
	defer cancelBrowser()

	browserCtx, cancelTimeout := context.WithTimeout(browserCtx,
		time.Duration(b.cfg.JavaScript.Timeout)*time.Second)
	defer cancelTimeout()

	status := http.StatusOK
	headers := make(http.Header)

	// The navigation response carries the page's real status and headers.
	chromedp.ListenTarget(browserCtx, func(ev interface{}) {
		if resp, ok := ev.(*network.EventResponseReceived); ok {
			if resp.Type == network.ResourceTypeDocument && resp.Response.URL == rawURL {
				status = int(resp.Response.Status)
				for k, v := range resp.Response.Headers {
					if s, ok := v.(string); ok {
						headers.Set(k, s)
					}
				}
			}
		}
	})

	var html string
	tasks := chromedp.Tasks{
		network.Enable(),
		chromedp.Navigate(rawURL),
		chromedp.WaitReady("body"),
	}
	if b.cfg.JavaScript.WaitFor > 0 {
		tasks = append(tasks, chromedp.Sleep(time.Duration(b.cfg.JavaScript.WaitFor)*time.Second))
	}
	tasks = append(tasks, chromedp.OuterHTML("html", &html))

	if err := chromedp.Run(browserCtx, tasks); err != nil {
		return nil, err
	}

	if headers.Get("Content-Type") == "" {
		headers.Set("Content-Type", "text/html; charset=utf-8")
	}

	return &FetchResult{
		StatusCode: status,
		Headers:    headers,
		Body:       []byte(html),
		FinalURL:   rawURL,
	}, nil
}
