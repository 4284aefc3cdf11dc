package core

import (
	"errors"
	"fmt"
)

// Error taxonomy. Everything below the scan level is recovered locally and
// recorded as data on the page or module result; only SetupError aborts a
// scan, and only before any work is scheduled.
var (
	// ErrRateLimited marks a fetch abandoned because the rate limiter's
	// maximum queue wait was exceeded.
	ErrRateLimited = errors.New("rate limit queue wait exceeded")

	// ErrCacheMiss is the internal miss signal between cache tiers.
	ErrCacheMiss = errors.New("cache miss")

	errInvalidURL = errors.New("URL is not fetchable")
)

// SetupError is fatal: the scan could not begin (invalid target, broken
// configuration).
type SetupError struct {
	Reason string
}

func (e *SetupError) Error() string {
	return "setup: " + e.Reason
}

// NewSetupError builds a SetupError with a formatted reason.
func NewSetupError(format string, args ...interface{}) *SetupError {
	return &SetupError{Reason: fmt.Sprintf(format, args...)}
}

// IsSetupError reports whether err is a configuration-time failure.
func IsSetupError(err error) bool {
	var se *SetupError
	return errors.As(err, &se)
}

// ModuleError is a per-module failure, recorded on the module's result
// with StatusError. Other modules continue unaffected.
type ModuleError struct {
	Module string
	Err    error
}

func (e *ModuleError) Error() string {
	return fmt.Sprintf("module %s: %v", e.Module, e.Err)
}

func (e *ModuleError) Unwrap() error {
	return e.Err
}

// FetchError is a terminal per-page failure. It is recorded on the
// CrawledPage, never propagated to abort the scan.
type FetchError struct {
	URL     string
	Attempt int
	Err     error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s failed after %d attempts: %v", e.URL, e.Attempt, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}
