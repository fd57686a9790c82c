package e2e

import (
	"context"
	"fmt"
	"sync"

	"github.com/tripwright/tripwright/pkg/llm"
)

// ScriptedLLM implements llm.Client with canned responses routed by the
// request's node tag. Unscripted nodes error so scenarios fail loudly
// when the graph takes an unexpected path.
type ScriptedLLM struct {
	mu        sync.Mutex
	responses map[string]string
	errs      map[string]error
	calls     []llm.Request
}

// NewScriptedLLM creates an empty scripted client.
func NewScriptedLLM() *ScriptedLLM {
	return &ScriptedLLM{
		responses: make(map[string]string),
		errs:      make(map[string]error),
	}
}

// Script registers the response returned for the named node.
func (s *ScriptedLLM) Script(node, text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.responses[node] = text
}

// Fail makes the named node's calls return err.
func (s *ScriptedLLM) Fail(node string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errs[node] = err
}

// InvokeText implements llm.Client.
func (s *ScriptedLLM) InvokeText(_ context.Context, req llm.Request) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, req)
	node := req.Tags["node"]
	if err := s.errs[node]; err != nil {
		return "", err
	}
	if resp, ok := s.responses[node]; ok {
		return resp, nil
	}
	return "", fmt.Errorf("scripted llm: no response for node %q", node)
}

// Model implements llm.Client.
func (s *ScriptedLLM) Model() string { return "scripted" }

// Calls returns how many requests the named node issued.
func (s *ScriptedLLM) Calls(node string) int {
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
