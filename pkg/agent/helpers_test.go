package agent

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/tripwright/tripwright/pkg/config"
	"github.com/tripwright/tripwright/pkg/llm"
	"github.com/tripwright/tripwright/pkg/memory"
	"github.com/tripwright/tripwright/pkg/tools"
)

// scriptedLLM returns canned responses keyed by the request's node tag.
type scriptedLLM struct {
	mu        sync.Mutex
	responses map[string]string
	errs      map[string]error
	calls     []llm.Request
}

func (s *scriptedLLM) InvokeText(_ context.Context, req llm.Request) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, req)
	key := req.Tags["node"]
	if err := s.errs[key]; err != nil {
		return "", err
	}
	if resp, ok := s.responses[key]; ok {
		return resp, nil
	}
	return "", fmt.Errorf("scripted llm: no response for node %q", key)
}

func (s *scriptedLLM) Model() string { return "scripted" }

func (s *scriptedLLM) callCount(node string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.calls {
		if c.Tags["node"] == node {
			n++
		}
	}
	return n
}

// stubMemory is an in-memory Store with scripted search results.
type stubMemory struct {
	mu          sync.Mutex
	sessionDocs []memory.Entry
	userDocs    []memory.Entry
	hits        []memory.Hit
	searchErr   error
	addErr      error
}

func (m *stubMemory) AddSession(_ context.Context, e memory.Entry) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.addErr != nil {
		return "", m.addErr
	}
	m.sessionDocs = append(m.sessionDocs, e)
	return fmt.Sprintf("session-%d", len(m.sessionDocs)), nil
}

func (m *stubMemory) AddUser(_ context.Context, e memory.Entry) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.addErr != nil {
		return "", m.addErr
	}
	m.userDocs = append(m.userDocs, e)
	return fmt.Sprintf("user-%d", len(m.userDocs)), nil
}

func (m *stubMemory) Search(_ context.Context, q memory.Query) ([]memory.Hit, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.searchErr != nil {
		return nil, m.searchErr
	}
	k := q.K
	if k <= 0 {
		k = 5
	}
	if len(m.hits) > k {
		return m.hits[:k], nil
	}
	return m.hits, nil
}

var errToolDown = errors.New("api temporarily down")

// stubRegistry wires deterministic tool outputs, with optional per-tool
// failures.
func stubRegistry(failing ...string) *tools.Registry {
	down := make(map[string]bool, len(failing))
	for _, name := range failing {
		down[name] = true
	}
	r := tools.NewRegistry()
	for _, name := range []string{
		tools.ToolFlightsSearchLinks,
		tools.ToolHotelsSearchLinks,
		tools.ToolThingsToDoLinks,
		tools.ToolDistanceAndTime,
		tools.ToolWeatherSummary,
	} {
		name := name
		r.Register(name, func(_ context.Context, args map[string]any) (map[string]any, error) {
			if down[name] {
				return nil, errToolDown
			}
			return map[string]any{
				"summary": "Links for " + name,
				"links": []map[string]string{
					{"label": name, "url": "https://example.com/" + name},
				},
			}, nil
		})
	}
	return r
}

func testSettings(runtimeDir string) *config.Settings {
	return &config.Settings{
		RuntimeDir:     runtimeDir,
		UserID:         "test_user",
		TelemetryMode:  "minimal",
		MaxGraphIters:  20,
		EvalThreshold:  3.5,
		MaxToolRetries: 1,
	}
}

func testDeps(runtimeDir string) (*Deps, *scriptedLLM, *stubMemory) {
	client := &scriptedLLM{responses: map[string]string{}, errs: map[string]error{}}
	mem := &stubMemory{}
	return &Deps{
		Settings: testSettings(runtimeDir),
		LLM:      client,
		Memory:   mem,
		Tools:    stubRegistry(),
	}, client, mem
}
