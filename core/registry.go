package core

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/webaudit/webaudit/utils"
)

// Module is one assessment unit. Modules receive a read-only TestContext
// and report findings through their ModuleResult; they never talk to the
// network except through the context's fetcher.
type Module interface {
	Name() string
	Category() string
	Initialize(cfg *utils.Config) error
	Run(ctx context.Context, tc *TestContext) (*ModuleResult, error)
}

// Exclusive is an optional marker for modules that must not run
// concurrently with any other module, typically because their timing
// measurements are sensitive to load.
type Exclusive interface {
	Exclusive() bool
}

// profiles map a profile name to the module categories it includes.
// An empty slice means every category.
var profiles = map[string][]string{
	"quick":    {"headers", "exposure"},
	"security": {"injection", "xss", "headers", "exposure", "redirect"},
	"content":  {"seo", "accessibility", "performance"},
	"full":     {},
}

// Registry holds all known modules keyed by name.
type Registry struct {
	modules map[string]Module
	order   []string
	logger  *utils.Logger
}

func NewRegistry(logger *utils.Logger) *Registry {
	return &Registry{
		modules: make(map[string]Module),
		logger:  logger,
	}
}

// Register adds a module under its name. Registering a duplicate name is a
// programming error and panics.
func (r *Registry) Register(m Module) {
	name := m.Name()
	if _, exists := r.modules[name]; exists {
		panic("duplicate module registration: " + name)
	}
	r.modules[name] = m
	r.order = append(r.order, name)
}

// Get returns the module registered under name.
func (r *Registry) Get(name string) (Module, bool) {
	m, ok := r.modules[name]
	return m, ok
}

// Names returns all registered module names in registration order.
func (r *Registry) Names() []string {
	names := make([]string, len(r.order))
	copy(names, r.order)
	return names
}

// Resolve selects and initializes the modules a scan will run, honoring the
// configured profile and explicit enable list. Resolution order is stable:
// explicit list order when given, registration order otherwise. A module
// whose Initialize fails is reported as an error result and excluded from
// the run set rather than aborting the scan.
func (r *Registry) Resolve(cfg *utils.Config) ([]Module, []ModuleResult, error) {
	var names []string
	if len(cfg.Modules.Enabled) > 0 {
		for _, name := range cfg.Modules.Enabled {
			if _, ok := r.modules[name]; !ok {
				return nil, nil, NewSetupError(fmt.Sprintf("unknown module %q (have: %v)", name, r.sortedNames()))
			}
			names = append(names, name)
		}
	} else {
		categories, ok := profiles[cfg.Modules.Profile]
		if !ok {
			return nil, nil, NewSetupError(fmt.Sprintf("unknown profile %q", cfg.Modules.Profile))
		}
		for _, name := range r.order {
			if len(categories) == 0 || utils.StringInSlice(r.modules[name].Category(), categories) {
				names = append(names, name)
			}
		}
	}

	var selected []Module
	var failed []ModuleResult
	for _, name := range names {
		m := r.modules[name]
		if err := m.Initialize(cfg); err != nil {
			r.logger.Warning("Module %s failed to initialize: %v", name, err)
			now := time.Now()
			failed = append(failed, ModuleResult{
				Module:    name,
				Category:  m.Category(),
				Status:    StatusError,
				StartedAt: now,
				EndedAt:   now,
				Error:     (&ModuleError{Module: name, Err: err}).Error(),
			})
			continue
		}
		selected = append(selected, m)
	}

	return selected, failed, nil
}

func (r *Registry) sortedNames() []string {
	names := r.Names()
	sort.Strings(names)
	return names
}
