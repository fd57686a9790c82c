package agent

import (
	"context"
	"fmt"
	"os"

	"github.com/tripwright/tripwright/pkg/eval"
	"github.com/tripwright/tripwright/pkg/models"
)

// evaluateStep applies shallow per-step checks after the executor. A
// TOOL_CALL step must have produced a matching tool result unless it
// was raised to triage. Findings are recorded as issues; this node
// never alters control flow.
func (d *Deps) evaluateStep(ctx context.Context, state *models.TripState) (*models.TripState, error) {
	step := state.CurrentStep
	if step == nil || step.ID == "" {
		return state, nil
	}
	ok := true
	if step.StepType == models.StepToolCall {
		ok = false
		for _, r := range state.ToolResults {
			if r.StepID == step.ID {
				ok = true
				break
			}
		}
		if !ok {
			state.AppendIssue(models.Issue{
				Kind:     models.IssueEvaluationFail,
				Severity: models.SeverityMinor,
				Node:     NodeEvaluateStep,
				StepID:   step.ID,
				Message:  fmt.Sprintf("Step '%s' finished without a matching tool result.", step.Title),
			})
		}
	}
	if d.Logger != nil {
		d.Logger.Info("Step evaluated", "eval_step", logContext(state, NodeEvaluateStep), map[string]any{
			"ok": ok,
		})
	}
	return state, nil
}

// evaluateFinal scores the final answer against the hard gates and
// rubric. A failed status records an issue but never alters control
// flow; the run still ends through the memory writer.
func (d *Deps) evaluateFinal(ctx context.Context, state *models.TripState) (*models.TripState, error) {
	state.CurrentStep = &models.PlanStep{StepType: models.StepEvaluateFinal, Title: "Evaluate final response"}

	var icsBytes []byte
	if state.ICSPath != "" {
		if b, err := os.ReadFile(state.ICSPath); err == nil {
			icsBytes = b
		}
	}

	result := eval.EvaluateFinal(state.EnsureConstraints(), state.FinalAnswer, icsBytes, d.evalThreshold())
	state.Evaluation = result
	if result.OverallStatus == models.EvalFailed {
		state.AppendIssue(models.Issue{
			Kind:     models.IssueEvaluationFail,
			Severity: models.SeverityMajor,
			Node:     NodeEvaluateFinal,
			Message:  "Final output failed one or more hard gates.",
			Details: map[string]any{
				"hard_gates":    result.HardGates,
				"rubric_scores": result.RubricScores,
			},
		})
	}
	if d.Logger != nil {
		d.Logger.Info("Final evaluation completed", "eval_final", logContext(state, NodeEvaluateFinal), map[string]any{
			"overall_status": result.OverallStatus,
			"hard_gates":     result.HardGates,
			"rubric":         result.RubricScores,
		})
	}
	return state, nil
}
