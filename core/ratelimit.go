package core

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/webaudit/webaudit/utils"
)

// Limiter throttles requests per key. The key is typically the target host,
// so a scan spanning several origins throttles each independently. All
// implementations are safe for concurrent callers.
type Limiter interface {
	// Allow reports whether a request for key may proceed right now,
	// consuming quota when it may.
	Allow(key string) bool

	// Wait blocks until a request for key may proceed or ctx is done.
	Wait(ctx context.Context, key string) error
}

// FeedbackLimiter is implemented by limiters that adapt to observed
// backoff signals from the fetcher.
type FeedbackLimiter interface {
	Limiter
	OnBackoff()
	OnSuccess()
}

// NewLimiter builds a limiter from configuration. Strategies: token_bucket,
// fixed_window, sliding_window, adaptive (wrapping the configured base
// strategy, token_bucket when unset).
func NewLimiter(cfg *utils.Config) (Limiter, error) {
	max := cfg.RateLimit.MaxRequests
	window := time.Duration(cfg.RateLimit.Window) * time.Second

	build := func(strategy string) (Limiter, error) {
		switch strings.ToLower(strategy) {
		case "token_bucket":
			return NewTokenBucket(max, float64(max)/window.Seconds()), nil
		case "fixed_window":
			return NewFixedWindow(max, window), nil
		case "sliding_window":
			return NewSlidingWindow(max, window), nil
		default:
			return nil, fmt.Errorf("unknown rate limit strategy %q", strategy)
		}
	}

	if strings.ToLower(cfg.RateLimit.Strategy) == "adaptive" {
		base := cfg.RateLimit.Base
		if base == "" {
			base = "token_bucket"
		}
		inner, err := build(base)
		if err != nil {
			return nil, err
		}
		return NewAdaptive(inner), nil
	}

	return build(cfg.RateLimit.Strategy)
}

// waitLoop polls allow, sleeping the strategy's suggested wait between
// attempts, until the request may proceed or the context ends.
func waitLoop(ctx context.Context, allow func() bool, waitTime func() time.Duration) error {
	var timer *time.Timer
	for {
		if allow() {
			return nil
		}

		d := waitTime()
		if d <= 0 {
			d = 5 * time.Millisecond
		}

		if timer == nil {
			timer = time.NewTimer(d)
			defer timer.Stop()
		} else {
			timer.Reset(d)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// scalable lets the adaptive wrapper shrink or grow a strategy's effective
// limit without knowing its internals.
type scalable interface {
	setScale(factor float64)
}

// TokenBucket refills tokens at a fixed rate per key; a request consumes
// one token when available.
type TokenBucket struct {
	mu       sync.Mutex
	capacity float64
	refill   float64 // tokens per second
	scaleF   float64
	buckets  map[string]*bucket
}

type bucket struct {
	tokens float64
	last   time.Time
}

func NewTokenBucket(capacity int, refillPerSecond float64) *TokenBucket {
	if capacity < 1 {
		capacity = 1
	}
	if refillPerSecond <= 0 {
		refillPerSecond = 1
	}
	return &TokenBucket{
		capacity: float64(capacity),
		refill:   refillPerSecond,
		scaleF:   1.0,
		buckets:  make(map[string]*bucket),
	}
}

func (t *TokenBucket) setScale(factor float64) {
	t.mu.Lock()
	t.scaleF = factor
	t.mu.Unlock()
}

func (t *TokenBucket) take(key string) (ok bool, wait time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()

	b, exists := t.buckets[key]
	now := time.Now()
	if !exists {
		b = &bucket{tokens: t.capacity * t.scaleF, last: now}
		t.buckets[key] = b
	}

	rate := t.refill * t.scaleF
	capacity := t.capacity * t.scaleF
	if capacity < 1 {
		capacity = 1
	}

	b.tokens += now.Sub(b.last).Seconds() * rate
	b.last = now
	if b.tokens > capacity {
		b.tokens = capacity
	}

	if b.tokens >= 1 {
		b.tokens--
		return true, 0
	}
	return false, time.Duration((1 - b.tokens) / rate * float64(time.Second))
}

func (t *TokenBucket) Allow(key string) bool {
	ok, _ := t.take(key)
	return ok
}

func (t *TokenBucket) Wait(ctx context.Context, key string) error {
	var wait time.Duration
	return waitLoop(ctx,
		func() bool {
			ok, w := t.take(key)
			wait = w
			return ok
		},
		func() time.Duration { return wait },
	)
}

// FixedWindow counts requests per key inside a wall-clock window that
// resets atomically at the boundary.
type FixedWindow struct {
	mu      sync.Mutex
	max     int
	window  time.Duration
	scaleF  float64
	windows map[string]*fixedWin
}

type fixedWin struct {
	start time.Time
	count int
}

func NewFixedWindow(max int, window time.Duration) *FixedWindow {
	if max < 1 {
		max = 1
	}
	if window <= 0 {
		window = time.Second
	}
	return &FixedWindow{
		max:     max,
		window:  window,
		scaleF:  1.0,
		windows: make(map[string]*fixedWin),
	}
}

func (f *FixedWindow) setScale(factor float64) {
	f.mu.Lock()
	f.scaleF = factor
	f.mu.Unlock()
}

func (f *FixedWindow) effectiveMax() int {
	max := int(float64(f.max) * f.scaleF)
	if max < 1 {
		max = 1
	}
	return max
}

func (f *FixedWindow) take(key string) (ok bool, wait time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()

	now := time.Now()
	w, exists := f.windows[key]
	if !exists || now.Sub(w.start) >= f.window {
		w = &fixedWin{start: now}
		f.windows[key] = w
	}

	if w.count < f.effectiveMax() {
		w.count++
		return true, 0
	}
	return false, w.start.Add(f.window).Sub(now)
}

func (f *FixedWindow) Allow(key string) bool {
	ok, _ := f.take(key)
	return ok
}

func (f *FixedWindow) Wait(ctx context.Context, key string) error {
	var wait time.Duration
	return waitLoop(ctx,
		func() bool {
			ok, w := f.take(key)
			wait = w
			return ok
		},
		func() time.Duration { return wait },
	)
}

// SlidingWindow keeps a time-ordered log of request timestamps per key,
// which avoids the boundary burst a fixed window permits.
type SlidingWindow struct {
	mu     sync.Mutex
	max    int
	window time.Duration
	scaleF float64
	logs   map[string][]time.Time
}

func NewSlidingWindow(max int, window time.Duration) *SlidingWindow {
	if max < 1 {
		max = 1
	}
	if window <= 0 {
		window = time.Second
	}
	return &SlidingWindow{
		max:    max,
		window: window,
		scaleF: 1.0,
		logs:   make(map[string][]time.Time),
	}
}

func (s *SlidingWindow) setScale(factor float64) {
	s.mu.Lock()
	s.scaleF = factor
	s.mu.Unlock()
}

func (s *SlidingWindow) take(key string) (ok bool, wait time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	cutoff := now.Add(-s.window)

	log := s.logs[key]
	pruned := log[:0]
	for _, t := range log {
		if t.After(cutoff) {
			pruned = append(pruned, t)
		}
	}

	max := int(float64(s.max) * s.scaleF)
	if max < 1 {
		max = 1
	}

	if len(pruned) < max {
		s.logs[key] = append(pruned, now)
		return true, 0
	}
	s.logs[key] = pruned
	return false, pruned[0].Add(s.window).Sub(now)
}

func (s *SlidingWindow) Allow(key string) bool {
	ok, _ := s.take(key)
	return ok
}

func (s *SlidingWindow) Wait(ctx context.Context, key string) error {
	var wait time.Duration
	return waitLoop(ctx,
		func() bool {
			ok, w := s.take(key)
			wait = w
			return ok
		},
		func() time.Duration { return wait },
	)
}

// Adaptive wraps another strategy and shrinks its effective limit when the
// fetcher reports backoff responses (429/503, repeated failures), growing
// it back slowly under sustained success.
type Adaptive struct {
	inner Limiter

	mu        sync.Mutex
	factor    float64
	minFactor float64
	shrink    float64
	regrow    float64
}

func NewAdaptive(inner Limiter) *Adaptive {
	return &Adaptive{
		inner:     inner,
		factor:    1.0,
		minFactor: 0.1,
		shrink:    1.5,
		regrow:    1.05,
	}
}

func (a *Adaptive) apply() {
	if s, ok := a.inner.(scalable); ok {
		s.setScale(a.factor)
	}
}

// OnBackoff shrinks the effective limit.
func (a *Adaptive) OnBackoff() {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.factor /= a.shrink
	if a.factor < a.minFactor {
		a.factor = a.minFactor
	}
	a.apply()
}

// OnSuccess slowly restores the limit towards its configured value.
func (a *Adaptive) OnSuccess() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.factor >= 1.0 {
		return
	}
	a.factor *= a.regrow
	if a.factor > 1.0 {
		a.factor = 1.0
	}
	a.apply()
}

func (a *Adaptive) Allow(key string) bool {
	return a.inner.Allow(key)
}

func (a *Adaptive) Wait(ctx context.Context, key string) error {
	return a.inner.Wait(ctx, key)
}
