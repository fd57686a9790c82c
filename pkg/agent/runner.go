package agent

import (
	"context"
	"fmt"
	"time"

	"github.com/tripwright/tripwright/pkg/config"
	"github.com/tripwright/tripwright/pkg/eval"
	"github.com/tripwright/tripwright/pkg/graph"
	"github.com/tripwright/tripwright/pkg/llm"
	"github.com/tripwright/tripwright/pkg/memory"
	"github.com/tripwright/tripwright/pkg/models"
	"github.com/tripwright/tripwright/pkg/telemetry"
	"github.com/tripwright/tripwright/pkg/tools"
)

// Runner builds per-run graphs over shared long-lived collaborators.
// The memory store and tool registry live for the whole process; the
// telemetry pieces are created fresh for every run.
type Runner struct {
	Settings *config.Settings
	Memory   memory.Store
	Tools    *tools.Registry
	Geocode  GeocodeFunc

	// NewLLM overrides model client construction. Tests and the
	// experiment harness substitute scripted clients here.
	NewLLM func(obs llm.Observability) (llm.Client, error)
}

// Run is one planning run: its graph, dependencies and run-scoped
// telemetry. Re-invoking the same Run continues the clarifying-question
// loop under the same run id.
type Run struct {
	ID         string
	Deps       *Deps
	Graph      *graph.Graph
	Metrics    *telemetry.MetricsCollector
	Controller *telemetry.Controller
	Tracker    *telemetry.FailureTracker
}

// NewRun assembles the telemetry stack, the model client and the graph
// for one run.
func (r *Runner) NewRun(runID string) (*Run, error) {
	settings := r.Settings
	if settings == nil {
		return nil, fmt.Errorf("runner: nil settings")
	}

	metrics := telemetry.NewMetricsCollector(settings.RuntimeDir, runID, settings.UserID)
	controller, err := telemetry.NewController(settings.RuntimeDir, runID, settings.UserID, telemetry.ControllerOptions{
		Mode: settings.TelemetryMode,
	})
	if err != nil {
		return nil, fmt.Errorf("create telemetry controller: %w", err)
	}
	tracker, err := telemetry.NewFailureTracker(settings.RuntimeDir, runID, settings.UserID)
	if err != nil {
		return nil, fmt.Errorf("create failure tracker: %w", err)
	}

	var faults *telemetry.FaultInjector
	if settings.SimulateToolTimeout || settings.SimulateToolError || settings.SimulateBadRetrieval || settings.SimulateLLMError {
		faults = telemetry.NewFaultInjector(telemetry.FaultConfig{
			ToolTimeout:  settings.SimulateToolTimeout,
			ToolError:    settings.SimulateToolError,
			BadRetrieval: settings.SimulateBadRetrieval,
			LLMError:     settings.SimulateLLMError,
			Seed:         settings.FailureSeed,
		})
	}

	obs := llm.Observability{
		Metrics:    metrics,
		Controller: controller,
		Tracker:    tracker,
		Faults:     faults,
	}
	var client llm.Client
	if r.NewLLM != nil {
		client, err = r.NewLLM(obs)
	} else {
		client, err = llm.NewClient(settings, obs)
	}
	if err != nil {
		return nil, fmt.Errorf("create llm client: %w", err)
	}

	deps := &Deps{
		Settings:   settings,
		LLM:        client,
		Memory:     r.Memory,
		Tools:      r.Tools,
		Geocode:    r.Geocode,
		Metrics:    metrics,
		Controller: controller,
		Tracker:    tracker,
		Faults:     faults,
		Logger:     telemetry.GetLogger("agent").WithTracker(tracker),
	}
	g, err := BuildGraph(deps)
	if err != nil {
		return nil, err
	}
	return &Run{
		ID:         runID,
		Deps:       deps,
		Graph:      g,
		Metrics:    metrics,
		Controller: controller,
		Tracker:    tracker,
	}, nil
}

// BuildGraph wires the node functions and routers into the engine.
func BuildGraph(d *Deps) (*graph.Graph, error) {
	g := graph.New()
	nodes := []struct {
		name string
		fn   graph.NodeFunc
	}{
		{NodeContextController, d.contextController},
		{NodeIntentParser, d.intentParser},
		{NodeValidator, d.validator},
		{NodeBrainPlanner, d.brainPlanner},
		{NodeOrchestrator, d.orchestrator},
		{NodeExecutor, d.executor},
		{NodeIssueTriage, d.issueTriage},
		{NodeEvaluateStep, d.evaluateStep},
		{NodeResponder, d.responder},
		{NodeExportICS, d.exportICS},
		{NodeEvaluateFinal, d.evaluateFinal},
		{NodeMemoryWriter, d.memoryWriter},
	}
	for _, n := range nodes {
		if err := g.AddNode(n.name, d.instrument(n.name, n.fn)); err != nil {
			return nil, err
		}
	}

	g.SetEntryPoint(NodeContextController)
	g.AddEdge(NodeContextController, NodeIntentParser)
	g.AddConditionalEdge(NodeIntentParser, func(s *models.TripState) string {
		if s.NeedsUserInput {
			return graph.End
		}
		return NodeValidator
	})
	g.AddConditionalEdge(NodeValidator, func(s *models.TripState) string {
		if s.NeedsUserInput {
			return graph.End
		}
		return NodeBrainPlanner
	})
	g.AddEdge(NodeBrainPlanner, NodeOrchestrator)
	g.AddConditionalEdge(NodeOrchestrator, func(s *models.TripState) string {
		if s.TerminationReason == models.TerminationFinalized || s.TerminationReason == models.TerminationMaxIters {
			return NodeResponder
		}
		return NodeExecutor
	})
	g.AddConditionalEdge(NodeExecutor, func(s *models.TripState) string {
		if s.NeedsTriage {
			return NodeIssueTriage
		}
		return NodeEvaluateStep
	})
	g.AddEdge(NodeEvaluateStep, NodeOrchestrator)
	g.AddConditionalEdge(NodeIssueTriage, func(s *models.TripState) string {
		if s.NeedsUserInput {
			return graph.End
		}
		return NodeOrchestrator
	})
	g.AddEdge(NodeResponder, NodeExportICS)
	g.AddEdge(NodeExportICS, NodeEvaluateFinal)
	g.AddEdge(NodeEvaluateFinal, NodeMemoryWriter)
	g.AddEdge(NodeMemoryWriter, graph.End)
	return g, nil
}

// RecursionLimit returns the transition budget for one invocation. The
// engine counts node transitions, not plan steps, so the budget sits
// comfortably above the orchestrator's loop cap.
func (r *Run) RecursionLimit() int {
	limit := r.Deps.maxIters() * 10
	if limit < 200 {
		limit = 200
	}
	return limit
}

// Invoke executes the graph once. A fatal node or engine error marks
// the state with termination_reason "error" and is returned to the
// caller; the state stays consistent for finalization.
func (r *Run) Invoke(ctx context.Context, state *models.TripState, onEvent func(graph.Event)) (*models.TripState, error) {
	lc := &telemetry.LogContext{RunID: r.ID, UserID: state.UserID}
	if r.Deps.Logger != nil {
		r.Deps.Logger.Info("Run started", "run_start", lc, map[string]any{
			"model": r.Deps.LLM.Model(),
		})
	}

	out, err := r.Graph.Stream(ctx, state, graph.RunOptions{RecursionLimit: r.RecursionLimit()}, onEvent)
	if out == nil {
		out = state
	}
	if err != nil {
		out.TerminationReason = models.TerminationError
		out.Error = err.Error()
		if r.Deps.Logger != nil {
			r.Deps.Logger.Error("Run failed", "run_error", lc, map[string]any{"error": err.Error()})
		}
		r.Deps.trace("run_error", map[string]any{"error": err.Error()}, lc)
		return out, err
	}
	if r.Deps.Logger != nil {
		r.Deps.Logger.Info("Run ended", "run_end", lc, nil)
	}
	return out, nil
}

// Finalize records the run's output metrics and appends the summary
// record to metrics.jsonl, returning the record and the file path.
func (r *Run) Finalize(state *models.TripState) (map[string]any, string, error) {
	answer := state.FinalAnswer
	r.Metrics.Set("output_link_count", len(eval.ExtractLinks(answer)))

	constraints := state.EnsureConstraints()
	if constraints.StartDate != "" && constraints.EndDate != "" {
		ds, errS := time.Parse("2006-01-02", constraints.StartDate)
		de, errE := time.Parse("2006-01-02", constraints.EndDate)
		if errS == nil && errE == nil {
			days := int(de.Sub(ds).Hours() / 24)
			if days < 0 {
				days = -days
			}
			r.Metrics.Set("output_itinerary_days", days+1)
		}
	}
	r.Metrics.Set("ics_path", state.ICSPath)
	r.Metrics.Set("ics_event_count", state.ICSEventCount)

	status := "unknown"
	if state.Evaluation != nil {
		status = state.Evaluation.OverallStatus
		r.Metrics.Set("eval_overall_status", state.Evaluation.OverallStatus)
		r.Metrics.Set("eval_hard_gates", state.Evaluation.HardGates)
		r.Metrics.Set("eval_rubric_scores", state.Evaluation.RubricScores)
	}
	if state.TerminationReason == models.TerminationError {
		status = "error"
	}

	record := r.Metrics.FinalizeRecord(status, string(state.TerminationReason))
	path, err := r.Metrics.Write(record)
	if err != nil {
		return record, "", err
	}
	return record, path, nil
}
