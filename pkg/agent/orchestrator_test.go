package agent

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tripwright/tripwright/pkg/models"
)

func TestOrchestratorPicksFirstPendingStep(t *testing.T) {
	d, _, _ := testDeps(t.TempDir())
	state := &models.TripState{RunID: "r1", UserID: "u1"}
	first := models.NewPlanStep("flights", models.StepToolCall)
	first.Status = models.StepDone
	second := models.NewPlanStep("hotels", models.StepToolCall)
	third := models.NewPlanStep("synth", models.StepSynthesize)
	state.Plan = []models.PlanStep{first, second, third}

	out, err := d.orchestrator(context.Background(), state)
	require.NoError(t, err)
	assert.Equal(t, 1, out.LoopIterations)
	assert.Equal(t, 1, out.CurrentStepIndex)
	require.NotNil(t, out.CurrentStep)
	assert.Equal(t, second.ID, out.CurrentStep.ID)
	assert.Empty(t, out.TerminationReason)
}

func TestOrchestratorFinalizesWithoutPendingSteps(t *testing.T) {
	d, _, _ := testDeps(t.TempDir())
	done := models.NewPlanStep("flights", models.StepToolCall)
	done.Status = models.StepDone
	state := &models.TripState{RunID: "r1", Plan: []models.PlanStep{done}}

	out, err := d.orchestrator(context.Background(), state)
	require.NoError(t, err)
	assert.Equal(t, models.TerminationFinalized, out.TerminationReason)
	assert.Nil(t, out.CurrentStep)
	assert.Equal(t, len(out.Plan), out.CurrentStepIndex)
}

func TestOrchestratorIterationBudget(t *testing.T) {
	d, _, _ := testDeps(t.TempDir())
	d.Settings.MaxGraphIters = 10
	pending := models.NewPlanStep("flights", models.StepToolCall)
	state := &models.TripState{RunID: "r1", Plan: []models.PlanStep{pending}, LoopIterations: 9}

	out, err := d.orchestrator(context.Background(), state)
	require.NoError(t, err)
	assert.Equal(t, 10, out.LoopIterations)
	assert.Equal(t, models.TerminationMaxIters, out.TerminationReason)
	assert.Nil(t, out.CurrentStep)
	assert.Equal(t, len(out.Plan), out.CurrentStepIndex)
	assert.True(t, out.Signal(models.SignalTimeoutRisk))
}

func TestOrchestratorTimeoutRiskAtEightyPercent(t *testing.T) {
	d, _, _ := testDeps(t.TempDir())
	d.Settings.MaxGraphIters = 10
	pending := models.NewPlanStep("flights", models.StepToolCall)
	state := &models.TripState{RunID: "r1", Plan: []models.PlanStep{pending}, LoopIterations: 7}

	out, err := d.orchestrator(context.Background(), state)
	require.NoError(t, err)
	assert.Equal(t, 8, out.LoopIterations)
	assert.True(t, out.Signal(models.SignalTimeoutRisk))
	assert.Empty(t, out.TerminationReason)

	state = &models.TripState{RunID: "r1", Plan: []models.PlanStep{models.NewPlanStep("x", models.StepToolCall)}, LoopIterations: 5}
	out, err = d.orchestrator(context.Background(), state)
	require.NoError(t, err)
	assert.False(t, out.Signal(models.SignalTimeoutRisk))
}

func TestOrchestratorIterationsStrictlyIncrease(t *testing.T) {
	d, _, _ := testDeps(t.TempDir())
	state := &models.TripState{RunID: "r1", Plan: []models.PlanStep{models.NewPlanStep("x", models.StepToolCall)}}
	prev := 0
	for i := 0; i < 5; i++ {
		out, err := d.orchestrator(context.Background(), state)
		require.NoError(t, err)
		assert.Greater(t, out.LoopIterations, prev)
		prev = out.LoopIterations
	}
}
