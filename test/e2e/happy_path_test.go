package e2e

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tripwright/tripwright/pkg/eval"
	"github.com/tripwright/tripwright/pkg/models"
)

func TestHappyPathProducesGoodItinerary(t *testing.T) {
	app := newApp(t)
	scriptTokyoTrip(app.LLM)

	out, run := app.Run("Trip to Tokyo from SFO 2026-04-01 to 2026-04-05, 2 travelers, interests ramen gardens.")

	assert.Equal(t, models.TerminationFinalized, out.TerminationReason)
	assert.False(t, out.NeedsUserInput)
	for _, step := range out.Plan {
		assert.Equal(t, models.StepDone, step.Status, step.Title)
	}

	require.NotEmpty(t, out.ICSPath)
	assert.Equal(t, 5, out.ICSEventCount)
	assert.Equal(t, 5, countVEvents(t, out.ICSPath))

	require.NotNil(t, out.Evaluation)
	for _, gate := range []string{
		eval.GateConstraintCompleteness,
		eval.GateNoFabricatedFacts,
		eval.GateLinkValidity,
		eval.GateCalendarExport,
		eval.GateSafetyDisclaimer,
	} {
		assert.True(t, out.Evaluation.HardGates[gate], gate)
	}
	assert.Equal(t, models.EvalGood, out.Evaluation.OverallStatus)

	var avg float64
	for _, v := range out.Evaluation.RubricScores {
		avg += v
	}
	avg /= float64(len(out.Evaluation.RubricScores))
	assert.GreaterOrEqual(t, avg, 3.5)

	record, path, err := run.Finalize(out)
	require.NoError(t, err)
	assert.FileExists(t, path)
	assert.Equal(t, "finalized", record["termination_reason"])

	assert.NotEmpty(t, app.UserDocs("Trip summary"), "trip summary persisted to user memory")
}
