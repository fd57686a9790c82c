// Package chaos wraps the tool registry with configurable per-tool
// failure injection for resilience experiments, and checks run state
// for structural inconsistencies afterwards.
package chaos

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/tripwright/tripwright/pkg/config"
	"github.com/tripwright/tripwright/pkg/telemetry"
	"github.com/tripwright/tripwright/pkg/tools"
)

// Failure modes accepted in a scenario's tool chaos config.
const (
	ModeError   = "error"
	ModeTimeout = "timeout"
	ModeSlow    = "slow"
)

// InjectedError marks a chaos-injected tool failure.
type InjectedError struct {
	ToolName string
	Mode     string
	Message  string
}

func (e *InjectedError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = "injected failure"
	}
	return fmt.Sprintf("chaos[%s] %s: %s", e.Mode, e.ToolName, msg)
}

// Wrap builds a registry where every configured tool may fail before
// delegating to the base implementation. Draws come from a seeded PRNG
// so repeated runs with the same seed inject identically. Injected
// failures are recorded against the tracker when one is attached.
func Wrap(base *tools.Registry, cfgs map[string]config.ToolChaos, seed int64, tracker *telemetry.FailureTracker) *tools.Registry {
	if len(cfgs) == 0 {
		return base
	}
	rng := rand.New(rand.NewSource(seed))
	var mu sync.Mutex

	wrapped := tools.NewRegistry()
	for _, name := range base.Names() {
		name := name
		cfg, hasChaos := cfgs[name]
		wrapped.Register(name, func(ctx context.Context, args map[string]any) (map[string]any, error) {
			if hasChaos {
				mu.Lock()
				fire := rng.Float64() < cfg.FailureProbability
				mu.Unlock()
				if fire {
					if err := inject(ctx, name, cfg, tracker); err != nil {
						return nil, err
					}
				}
			}
			return base.Call(ctx, name, args)
		})
	}
	return wrapped
}

func inject(ctx context.Context, name string, cfg config.ToolChaos, tracker *telemetry.FailureTracker) error {
	mode := cfg.FailureMode
	if mode == "" {
		mode = ModeError
	}

	if mode == ModeSlow || mode == ModeTimeout {
		delay := time.Duration(cfg.LatencyMultiplier * float64(time.Second))
		if delay > 0 {
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		if mode == ModeSlow {
			return nil
		}
	}

	err := &InjectedError{ToolName: name, Mode: mode, Message: cfg.ExceptionMessage}
	if tracker != nil {
		severity := telemetry.SeverityHigh
		category := telemetry.CategoryTool
		if mode == ModeTimeout {
			category = telemetry.CategoryNetwork
		}
		tracker.RecordFailure(telemetry.Failure{
			Category:     category,
			Severity:     severity,
			GraphNode:    "tool_execution",
			ErrorType:    "InjectedError",
			ErrorMessage: err.Error(),
			ToolName:     name,
			ContextData:  map[string]any{"failure_mode": mode, "injection_type": "chaos"},
			Tags:         []string{"chaos-injected", mode},
		})
	}
	return err
}
