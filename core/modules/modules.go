// Package modules contains the built-in assessment modules. Each module
// inspects the crawled site graph and probes the target through the shared
// fetcher, reporting findings with severity and evidence.
package modules

import (
	"github.com/webaudit/webaudit/core"
)

// All returns one instance of every built-in module, in the order they are
// registered and reported.
func All() []core.Module {
	return []core.Module{
		NewSecurityHeaders(),
		NewExposedFiles(),
		NewSQLInjection(),
		NewReflectedXSS(),
		NewOpenRedirect(),
		NewPerformance(),
		NewSEO(),
		NewAccessibility(),
	}
}

// RegisterAll registers every built-in module into the registry.
func RegisterAll(r *core.Registry) {
	for _, m := range All() {
		r.Register(m)
	}
}
