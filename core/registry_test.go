package core

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/webaudit/webaudit/utils"
)

// fakeModule is a configurable stand-in used across registry and engine
// tests.
type fakeModule struct {
	name      string
	category  string
	initErr   error
	runErr    error
	panicMsg  string
	exclusive bool
	findings  []Finding
	sleep     time.Duration
	ran       chan string
}

func (m *fakeModule) Name() string     { return m.name }
func (m *fakeModule) Category() string { return m.category }
func (m *fakeModule) Exclusive() bool  { return m.exclusive }

func (m *fakeModule) Initialize(cfg *utils.Config) error { return m.initErr }

func (m *fakeModule) Run(ctx context.Context, tc *TestContext) (*ModuleResult, error) {
	if m.ran != nil {
		m.ran <- m.name
	}
	if m.sleep > 0 {
		select {
		case <-time.After(m.sleep):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if m.panicMsg != "" {
		panic(m.panicMsg)
	}
	if m.runErr != nil {
		return nil, m.runErr
	}
	return &ModuleResult{
		Module:   m.name,
		Category: m.category,
		Findings: m.findings,
	}, nil
}

func TestRegistryRegisterAndGet(t *testing.T) {
	r := NewRegistry(utils.NewLogger(false))
	r.Register(&fakeModule{name: "alpha", category: "headers"})

	m, ok := r.Get("alpha")
	require.True(t, ok)
	assert.Equal(t, "alpha", m.Name())

	_, ok = r.Get("missing")
	assert.False(t, ok)
}

func TestRegistryDuplicatePanics(t *testing.T) {
	r := NewRegistry(utils.NewLogger(false))
	r.Register(&fakeModule{name: "alpha", category: "headers"})
	assert.Panics(t, func() {
		r.Register(&fakeModule{name: "alpha", category: "xss"})
	})
}

func TestRegistryResolveProfile(t *testing.T) {
	r := NewRegistry(utils.NewLogger(false))
	r.Register(&fakeModule{name: "headers", category: "headers"})
	r.Register(&fakeModule{name: "sqli", category: "injection"})
	r.Register(&fakeModule{name: "seo", category: "seo"})

	cfg := utils.DefaultConfig()
	cfg.Modules.Profile = "quick"
	selected, failed, err := r.Resolve(&cfg)
	require.NoError(t, err)
	assert.Empty(t, failed)
	require.Len(t, selected, 1)
	assert.Equal(t, "headers", selected[0].Name())

	cfg.Modules.Profile = "full"
	selected, _, err = r.Resolve(&cfg)
	require.NoError(t, err)
	assert.Len(t, selected, 3)
}

func TestRegistryResolveExplicitList(t *testing.T) {
	r := NewRegistry(utils.NewLogger(false))
	r.Register(&fakeModule{name: "a", category: "headers"})
	r.Register(&fakeModule{name: "b", category: "xss"})

	cfg := utils.DefaultConfig()
	cfg.Modules.Enabled = []string{"b", "a"}
	selected, _, err := r.Resolve(&cfg)
	require.NoError(t, err)
	require.Len(t, selected, 2)
	assert.Equal(t, "b", selected[0].Name(), "explicit list order is preserved")
	assert.Equal(t, "a", selected[1].Name())
}

func TestRegistryResolveUnknownModule(t *testing.T) {
	r := NewRegistry(utils.NewLogger(false))
	r.Register(&fakeModule{name: "a", category: "headers"})

	cfg := utils.DefaultConfig()
	cfg.Modules.Enabled = []string{"nope"}
	_, _, err := r.Resolve(&cfg)
	require.Error(t, err)
	assert.True(t, IsSetupError(err))
}

func TestRegistryResolveUnknownProfile(t *testing.T) {
	r := NewRegistry(utils.NewLogger(false))
	r.Register(&fakeModule{name: "a", category: "headers"})

	cfg := utils.DefaultConfig()
	cfg.Modules.Profile = "enterprise"
	_, _, err := r.Resolve(&cfg)
	require.Error(t, err)
	assert.True(t, IsSetupError(err))
}

func TestRegistryResolveInitFailureExcluded(t *testing.T) {
	r := NewRegistry(utils.NewLogger(false))
	r.Register(&fakeModule{name: "good", category: "headers"})
	r.Register(&fakeModule{name: "bad", category: "headers", initErr: errors.New("missing credential")})

	cfg := utils.DefaultConfig()
	selected, failed, err := r.Resolve(&cfg)
	require.NoError(t, err)

	require.Len(t, selected, 1)
	assert.Equal(t, "good", selected[0].Name())

	require.Len(t, failed, 1)
	assert.Equal(t, "bad", failed[0].Module)
	assert.Equal(t, StatusError, failed[0].Status)
	assert.Contains(t, failed[0].Error, "missing credential")
}
