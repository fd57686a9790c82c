package agent

import (
	"context"
	"fmt"

	"github.com/tripwright/tripwright/pkg/models"
)

// issueTriage resolves the pending issue raised by the executor. Tool
// failures never go back to the user: the failed step is skipped with a
// note and the run continues with best-effort output. Blocking issues
// set needs_user_input upstream and never reach this node.
func (d *Deps) issueTriage(ctx context.Context, state *models.TripState) (*models.TripState, error) {
	state.CurrentStep = &models.PlanStep{StepType: models.StepEvaluateStep, Title: "Issue triage: decide skip/ask/retry"}

	pending := state.PendingIssue
	if pending == nil {
		state.NeedsTriage = false
		return state, nil
	}

	if idx := state.StepIndex(pending.StepID); idx >= 0 {
		// Direct assignment: the step is blocked and MarkDone only
		// transitions out of pending.
		state.Plan[idx].Status = models.StepDone
		state.Plan[idx].Notes += "\nSkipped due to tool failure."
	}

	state.NeedsTriage = false
	state.PendingIssue = nil
	state.AppendWarning(fmt.Sprintf("Skipped step due to issue (%s): %s", pending.Kind, pending.Message))
	d.trace("triage", map[string]any{
		"issue_kind": string(pending.Kind),
		"step_id":    pending.StepID,
		"decision":   "skip",
	}, logContext(state, NodeIssueTriage))
	return state, nil
}
