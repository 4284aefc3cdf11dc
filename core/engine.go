package core

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/webaudit/webaudit/utils"
)

// Engine orchestrates a full assessment: crawl, module resolution, module
// execution and aggregation. One Engine runs one scan at a time.
type Engine struct {
	fetcher  *Fetcher
	registry *Registry
	hooks    *Hooks
	cfg      *utils.Config
	logger   *utils.Logger
	progress *utils.ProgressTracker

	mu     sync.Mutex
	status ScanStatus
}

func NewEngine(fetcher *Fetcher, registry *Registry, hooks *Hooks, cfg *utils.Config, logger *utils.Logger) *Engine {
	if hooks == nil {
		hooks = NewHooks(logger)
	}
	return &Engine{
		fetcher:  fetcher,
		registry: registry,
		hooks:    hooks,
		cfg:      cfg,
		logger:   logger,
		status:   ScanCreated,
	}
}

// SetProgress attaches a console progress tracker. Optional.
func (e *Engine) SetProgress(p *utils.ProgressTracker) {
	e.progress = p
}

// Status returns the engine's current scan state.
func (e *Engine) Status() ScanStatus {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.status
}

func (e *Engine) setStatus(s ScanStatus) {
	e.mu.Lock()
	e.status = s
	e.mu.Unlock()
}

// Scan runs the full pipeline against target. It returns an error only for
// setup failures detected before any work is scheduled; once crawling
// starts, every lower-level failure is recorded as data in the result.
func (e *Engine) Scan(ctx context.Context, target string) (*ScanResult, error) {
	result := &ScanResult{
		ID:        newScanID(),
		Target:    target,
		StartedAt: time.Now(),
		Status:    ScanCreated,
	}

	modules, failedInit, err := e.validate(target)
	if err != nil {
		e.setStatus(ScanFailed)
		result.Status = ScanFailed
		return result, err
	}

	if deadline := e.cfg.ScanDeadline(); deadline > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, deadline)
		defer cancel()
	}

	e.setStatus(ScanCrawling)
	result.Status = ScanCrawling
	crawler := NewCrawler(e.fetcher, e.cfg, e.logger)
	graph, err := crawler.Crawl(ctx, target)
	if err != nil {
		e.setStatus(ScanFailed)
		result.Status = ScanFailed
		return result, err
	}
	result.Pages = graph.Pages
	result.Endpoints = graph.Endpoints

	tc := &TestContext{
		Target:    target,
		BaseURL:   mustParseBase(target),
		Pages:     graph.Pages,
		Endpoints: graph.Endpoints,
		Config:    e.cfg,
		Fetcher:   e.fetcher,
		Session:   make(map[string]string),
	}
	e.hooks.runPre(tc)

	e.setStatus(ScanTesting)
	result.Status = ScanTesting
	moduleResults := e.runModules(ctx, modules, tc)

	e.setStatus(ScanAggregating)
	result.Status = ScanAggregating
	for i := range failedInit {
		moduleResults = append(moduleResults, &failedInit[i])
	}
	result.ModuleResults = moduleResults
	result.EndedAt = time.Now()
	result.ComputeSummary()
	result.Status = ScanCompleted
	e.setStatus(ScanCompleted)

	e.hooks.runPost(result)
	return result, nil
}

// validate performs all configuration-time checks. Everything that can
// fail the scan outright fails here, before a single request is sent.
func (e *Engine) validate(target string) ([]Module, []ModuleResult, error) {
	parsed, err := url.Parse(target)
	if err != nil || parsed.Host == "" || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return nil, nil, NewSetupError("target must be an absolute http(s) URL, got %q", target)
	}
	if utils.IsBlacklisted(target, e.cfg.Safety.BlacklistedIPs) {
		return nil, nil, NewSetupError("target %s resolves to a blacklisted address", parsed.Hostname())
	}
	if !utils.IsWhitelisted(target, e.cfg.Safety.WhitelistedDomains) {
		return nil, nil, NewSetupError("target %s is not in the whitelisted domains", parsed.Hostname())
	}

	modules, failedInit, err := e.registry.Resolve(e.cfg)
	if err != nil {
		return nil, nil, err
	}
	if len(modules) == 0 && len(failedInit) == 0 {
		return nil, nil, NewSetupError("no modules selected")
	}
	return modules, failedInit, nil
}

// runModules executes the resolved modules and returns one result per
// module in resolution order regardless of execution interleaving.
func (e *Engine) runModules(ctx context.Context, modules []Module, tc *TestContext) []*ModuleResult {
	results := make([]*ModuleResult, len(modules))

	if e.progress != nil {
		e.progress.AddTask("modules", len(modules))
	}

	parallel := e.cfg.Execution.Mode == "parallel"
	concurrency := e.cfg.Execution.Concurrency
	if concurrency < 1 {
		concurrency = 1
	}
	if !parallel {
		concurrency = 1
	}

	sem := make(chan struct{}, concurrency)
	// Exclusive modules hold the write side so nothing else overlaps
	// their timing measurements.
	var exclusive sync.RWMutex
	var wg sync.WaitGroup

	for i, m := range modules {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, m Module) {
			defer wg.Done()
			defer func() { <-sem }()

			if ex, ok := m.(Exclusive); ok && ex.Exclusive() {
				exclusive.Lock()
				defer exclusive.Unlock()
			} else {
				exclusive.RLock()
				defer exclusive.RUnlock()
			}

			results[i] = e.runModule(ctx, m, tc)
			if e.progress != nil {
				e.progress.IncrementTask("modules", 1)
			}
		}(i, m)
	}
	wg.Wait()

	if e.progress != nil {
		e.progress.CompleteTask("modules")
	}
	return results
}

// runModule executes one module with its own timeout and panic isolation.
// A panic or error becomes a StatusError result; the module never takes
// down its siblings.
func (e *Engine) runModule(ctx context.Context, m Module, tc *TestContext) (result *ModuleResult) {
	started := time.Now()
	e.logger.Debug("Running module %s", m.Name())

	if timeout := e.cfg.Execution.ModuleTimeout; timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(timeout)*time.Second)
		defer cancel()
	}

	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("Module %s panicked: %v", m.Name(), r)
			result = &ModuleResult{
				Module:    m.Name(),
				Category:  m.Category(),
				Status:    StatusError,
				StartedAt: started,
				EndedAt:   time.Now(),
				Error:     fmt.Sprintf("panic: %v", r),
			}
		}
	}()

	mr, err := m.Run(ctx, tc)
	if err != nil {
		return &ModuleResult{
			Module:    m.Name(),
			Category:  m.Category(),
			Status:    StatusError,
			StartedAt: started,
			EndedAt:   time.Now(),
			Error:     (&ModuleError{Module: m.Name(), Err: err}).Error(),
		}
	}
	if mr == nil {
		mr = &ModuleResult{Module: m.Name(), Category: m.Category()}
	}
	if mr.StartedAt.IsZero() {
		mr.StartedAt = started
	}
	if mr.EndedAt.IsZero() {
		mr.EndedAt = time.Now()
	}
	if mr.Status == "" || mr.Status == StatusPending || mr.Status == StatusRunning {
		if len(mr.Findings) > 0 {
			mr.Status = StatusFailed
		} else {
			mr.Status = StatusPassed
		}
	}
	return mr
}

func mustParseBase(target string) *url.URL {
	u, err := url.Parse(utils.NormalizeURL(target))
	if err != nil {
		return &url.URL{}
	}
	return u
}

func newScanID() string {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		return fmt.Sprintf("scan-%d", time.Now().UnixNano())
	}
	return "scan-" + hex.EncodeToString(buf)
}
