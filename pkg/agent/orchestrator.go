package agent

import (
	"context"

	"github.com/tripwright/tripwright/pkg/models"
)

// orchestrator drives the execute loop: it picks the next pending plan
// step, raises timeout_risk when the iteration budget is nearly spent,
// and terminates the loop at the budget or when no pending step remains.
func (d *Deps) orchestrator(ctx context.Context, state *models.TripState) (*models.TripState, error) {
	state.LoopIterations++
	maxIters := d.maxIters()

	if float64(state.LoopIterations) >= 0.8*float64(maxIters) {
		state.SetSignal(models.SignalTimeoutRisk, true)
	}
	if state.LoopIterations >= maxIters {
		state.CurrentStep = nil
		state.CurrentStepIndex = len(state.Plan)
		state.TerminationReason = models.TerminationMaxIters
		d.trace("orchestrate", map[string]any{
			"iteration":   state.LoopIterations,
			"termination": string(models.TerminationMaxIters),
		}, logContext(state, NodeOrchestrator))
		return state, nil
	}

	idx, step := state.FirstPendingStep()
	if step == nil {
		state.CurrentStep = nil
		state.CurrentStepIndex = len(state.Plan)
		state.TerminationReason = models.TerminationFinalized
		d.trace("orchestrate", map[string]any{
			"iteration":   state.LoopIterations,
			"termination": string(models.TerminationFinalized),
		}, logContext(state, NodeOrchestrator))
		return state, nil
	}

	copied := *step
	state.CurrentStep = &copied
	state.CurrentStepIndex = idx
	return state, nil
}
