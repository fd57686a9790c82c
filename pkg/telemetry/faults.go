package telemetry

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/tripwright/tripwright/pkg/models"
)

// ToolTimeoutError marks an injected timeout inside a tool call.
type ToolTimeoutError struct {
	ToolName string
}

func (e *ToolTimeoutError) Error() string {
	return fmt.Sprintf("injected tool timeout for '%s'", e.ToolName)
}

// ToolFailureError marks an injected generic tool failure.
type ToolFailureError struct {
	ToolName string
}

func (e *ToolFailureError) Error() string {
	return fmt.Sprintf("injected tool error for '%s'", e.ToolName)
}

// LLMFailureError marks an injected model failure at a pipeline stage.
type LLMFailureError struct {
	Stage string
}

func (e *LLMFailureError) Error() string {
	return fmt.Sprintf("injected llm failure at stage '%s'", e.Stage)
}

// Bad retrieval modes.
const (
	RetrievalEmpty   = "empty"
	RetrievalGarbage = "garbage"
)

// FaultConfig selects which fault sites may fire. Probability 0 means 1.0,
// Sleep 0 means 5s, RetrievalMode "" means "empty".
type FaultConfig struct {
	ToolTimeout   bool
	ToolError     bool
	BadRetrieval  bool
	LLMError      bool
	Seed          int64
	Probability   float64
	Sleep         time.Duration
	RetrievalMode string
}

// FaultInjector deterministically injects failures at fixed sites for
// resilience experiments. A site fires when it is enabled and the seeded
// PRNG draws below the configured probability. The injector only returns
// errors or sentinel values; it never alters real inputs.
type FaultInjector struct {
	mu          sync.Mutex
	rng         *rand.Rand
	cfg         FaultConfig
	probability float64
	sleep       time.Duration
	mode        string
}

// NewFaultInjector builds an injector with its own seeded PRNG so repeated
// runs with the same seed fire identically.
func NewFaultInjector(cfg FaultConfig) *FaultInjector {
	probability := cfg.Probability
	if probability == 0 {
		probability = 1.0
	}
	sleep := cfg.Sleep
	if sleep == 0 {
		sleep = 5 * time.Second
	}
	mode := cfg.RetrievalMode
	if mode == "" {
		mode = RetrievalEmpty
	}
	return &FaultInjector{
		rng:         rand.New(rand.NewSource(cfg.Seed)),
		cfg:         cfg,
		probability: probability,
		sleep:       sleep,
		mode:        mode,
	}
}

// Enabled reports whether any site is switched on.
func (i *FaultInjector) Enabled() bool {
	return i.cfg.ToolTimeout || i.cfg.ToolError || i.cfg.BadRetrieval || i.cfg.LLMError
}

// MaybeToolTimeout sleeps and returns a ToolTimeoutError when the timeout
// site fires. The sleep respects ctx cancellation.
func (i *FaultInjector) MaybeToolTimeout(ctx context.Context, toolName string) error {
	if !i.shouldFail(i.cfg.ToolTimeout) {
		return nil
	}
	select {
	case <-time.After(i.sleep):
	case <-ctx.Done():
		return ctx.Err()
	}
	return &ToolTimeoutError{ToolName: toolName}
}

// MaybeToolError returns a ToolFailureError when the tool error site fires.
func (i *FaultInjector) MaybeToolError(toolName string) error {
	if !i.shouldFail(i.cfg.ToolError) {
		return nil
	}
	return &ToolFailureError{ToolName: toolName}
}

// MaybeBadRetrieval returns a degraded retrieval result when the site
// fires: an empty hit list in "empty" mode, or a single off-topic document
// in "garbage" mode. The boolean reports whether injection happened.
func (i *FaultInjector) MaybeBadRetrieval(query string) ([]models.ContextHit, bool) {
	if !i.shouldFail(i.cfg.BadRetrieval) {
		return nil, false
	}
	if i.mode == RetrievalGarbage {
		return []models.ContextHit{{
			ID:       "bad_retrieval_1",
			Text:     fmt.Sprintf("Injected unrelated content for query: %s", query),
			Metadata: map[string]any{"type": "injected"},
			Distance: 0.99,
		}}, true
	}
	return []models.ContextHit{}, true
}

// MaybeLLMError returns an LLMFailureError when the LLM site fires.
func (i *FaultInjector) MaybeLLMError(stage string) error {
	if !i.shouldFail(i.cfg.LLMError) {
		return nil
	}
	return &LLMFailureError{Stage: stage}
}

func (i *FaultInjector) shouldFail(enabled bool) bool {
	if !enabled {
		return false
	}
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.rng.Float64() < i.probability
}
