// Package agent implements the travel-planning workflow: the graph
// nodes (context retrieval, intent parsing, validation, planning, tool
// execution, triage, response shaping, calendar export, evaluation,
// memory writing) and the runner that wires them into the graph engine
// with per-run telemetry.
package agent

import (
	"context"

	"github.com/tripwright/tripwright/pkg/config"
	"github.com/tripwright/tripwright/pkg/llm"
	"github.com/tripwright/tripwright/pkg/memory"
	"github.com/tripwright/tripwright/pkg/telemetry"
	"github.com/tripwright/tripwright/pkg/tools"
)

// Graph node names.
const (
	NodeContextController = "context_controller"
	NodeIntentParser      = "intent_parser"
	NodeValidator         = "validator"
	NodeBrainPlanner      = "brain_planner"
	NodeOrchestrator      = "orchestrator"
	NodeExecutor          = "executor"
	NodeIssueTriage       = "issue_triage"
	NodeEvaluateStep      = "evaluate_step"
	NodeResponder         = "responder"
	NodeExportICS         = "export_ics"
	NodeEvaluateFinal     = "evaluate_final"
	NodeMemoryWriter      = "memory_writer"
)

// GeocodeFunc resolves one place string. A nil function disables geocode
// grounding in the validator.
type GeocodeFunc func(ctx context.Context, place string) (*tools.GeocodeResult, error)

// Deps carries every collaborator the nodes need. The runner assembles
// one Deps per run so telemetry stays scoped to that run.
type Deps struct {
	Settings *config.Settings
	LLM      llm.Client
	Memory   memory.Store
	Tools    *tools.Registry
	Geocode  GeocodeFunc

	Metrics    *telemetry.MetricsCollector
	Controller *telemetry.Controller
	Tracker    *telemetry.FailureTracker
	Faults     *telemetry.FaultInjector
	Logger     *telemetry.Logger
}

func (d *Deps) trace(event string, data map[string]any, lc *telemetry.LogContext) {
	if d.Controller != nil {
		d.Controller.Trace(event, data, lc)
	}
}

func (d *Deps) recordFailure(f telemetry.Failure) {
	if d.Tracker != nil {
		d.Tracker.RecordFailure(f)
	}
}

func (d *Deps) maxIters() int {
	if d.Settings == nil || d.Settings.MaxGraphIters <= 0 {
		return 20
	}
	return d.Settings.MaxGraphIters
}

func (d *Deps) maxToolRetries() int {
	if d.Settings == nil || d.Settings.MaxToolRetries < 0 {
		return 1
	}
	return d.Settings.MaxToolRetries
}

func (d *Deps) evalThreshold() float64 {
	if d.Settings == nil || d.Settings.EvalThreshold == 0 {
		return 3.5
	}
	return d.Settings.EvalThreshold
}

func (d *Deps) runtimeDir() string {
	if d.Settings == nil || d.Settings.RuntimeDir == "" {
		return "./runtime"
	}
	return d.Settings.RuntimeDir
}
