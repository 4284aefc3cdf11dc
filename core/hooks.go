package core

import (
	"github.com/webaudit/webaudit/utils"
)

// PreScanHook runs after crawling, before any module executes. Hooks may
// inspect the context and stash session data but must not mutate pages.
type PreScanHook func(tc *TestContext) error

// PostScanHook runs after aggregation with the finished scan result.
type PostScanHook func(result *ScanResult)

// Hooks holds the registered extension points for a scan. A panicking or
// failing hook is logged and skipped; it never takes the scan down.
type Hooks struct {
	pre    []PreScanHook
	post   []PostScanHook
	logger *utils.Logger
}

func NewHooks(logger *utils.Logger) *Hooks {
	return &Hooks{logger: logger}
}

func (h *Hooks) OnPreScan(hook PreScanHook) {
	h.pre = append(h.pre, hook)
}

func (h *Hooks) OnPostScan(hook PostScanHook) {
	h.post = append(h.post, hook)
}

func (h *Hooks) runPre(tc *TestContext) {
	for i, hook := range h.pre {
		h.invoke("pre-scan", i, func() error { return hook(tc) })
	}
}

func (h *Hooks) runPost(result *ScanResult) {
	for i, hook := range h.post {
		h.invoke("post-scan", i, func() error {
			hook(result)
			return nil
		})
	}
}

func (h *Hooks) invoke(stage string, index int, fn func() error) {
	defer func() {
		if r := recover(); r != nil {
			h.logger.Warning("%s hook %d panicked: %v", stage, index, r)
		}
	}()
	if err := fn(); err != nil {
		h.logger.Warning("%s hook %d failed: %v", stage, index, err)
	}
}
