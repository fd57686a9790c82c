// Package e2e drives complete planning runs through the graph with
// scripted model, tool and geocoder collaborators and a real on-disk
// memory store.
package e2e

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/tripwright/tripwright/pkg/agent"
	"github.com/tripwright/tripwright/pkg/config"
	"github.com/tripwright/tripwright/pkg/llm"
	"github.com/tripwright/tripwright/pkg/memory"
	"github.com/tripwright/tripwright/pkg/models"
)

// App wires a Runner over test collaborators for one scenario.
type App struct {
	Settings *config.Settings
	Runner   *agent.Runner
	LLM      *ScriptedLLM
	Store    *memory.DualStore
	Tools    *ToolRecorder

	t *testing.T
}

type appConfig struct {
	failingTools []string
	geocode      agent.GeocodeFunc
	settings     func(*config.Settings)
}

// AppOption configures the test app.
type AppOption func(*appConfig)

// WithFailingTools makes the named tools error on every call.
func WithFailingTools(names ...string) AppOption {
	return func(c *appConfig) { c.failingTools = names }
}

// WithGeocode installs a scripted geocoder. The default app runs with
// geocoding disabled, which grounds places by name.
func WithGeocode(fn agent.GeocodeFunc) AppOption {
	return func(c *appConfig) { c.geocode = fn }
}

// WithSettings mutates the default settings before the runner is built.
func WithSettings(fn func(*config.Settings)) AppOption {
	return func(c *appConfig) { c.settings = fn }
}

func newApp(t *testing.T, opts ...AppOption) *App {
	t.Helper()
	cfg := appConfig{}
	for _, o := range opts {
		o(&cfg)
	}

	dir := t.TempDir()
	settings := &config.Settings{
		RuntimeDir:     dir,
		UserID:         "e2e_user",
		TelemetryMode:  "minimal",
		MaxGraphIters:  20,
		EvalThreshold:  3.5,
		MaxToolRetries: 1,
	}
	if cfg.settings != nil {
		cfg.settings(settings)
	}

	store, err := memory.Open(filepath.Join(dir, "memory"), settings.UserID)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	client := NewScriptedLLM()
	registry, recorder := recordedRegistry(cfg.failingTools...)

	runner := &agent.Runner{
		Settings: settings,
		Memory:   store,
		Tools:    registry,
		Geocode:  cfg.geocode,
		NewLLM: func(_ llm.Observability) (llm.Client, error) {
			return client, nil
		},
	}
	return &App{
		Settings: settings,
		Runner:   runner,
		LLM:      client,
		Store:    store,
		Tools:    recorder,
		t:        t,
	}
}

// Run executes one full graph invocation for the query and returns the
// final state together with the run handle for finalization checks.
func (a *App) Run(query string) (*models.TripState, *agent.Run) {
	a.t.Helper()
	run, err := a.Runner.NewRun(uuid.NewString())
	require.NoError(a.t, err)

	state := &models.TripState{
		RunID:     run.ID,
		UserID:    a.Settings.UserID,
		UserQuery: query,
	}
	out, err := run.Invoke(context.Background(), state, nil)
	require.NoError(a.t, err)
	return out, run
}

// SeedUserMemory persists long-term documents before the run.
func (a *App) SeedUserMemory(entries ...memory.Entry) {
	a.t.Helper()
	for _, e := range entries {
		_, err := a.Store.AddUser(context.Background(), e)
		require.NoError(a.t, err)
	}
}

// UserDocs returns the persisted user-scope documents matching the query.
func (a *App) UserDocs(query string) []memory.Hit {
	a.t.Helper()
	hits, err := a.Store.Search(context.Background(), memory.Query{
		Query:       query,
		K:           20,
		IncludeUser: true,
	})
	require.NoError(a.t, err)
	return hits
}
