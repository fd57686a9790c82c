package agent

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tripwright/tripwright/pkg/memory"
	"github.com/tripwright/tripwright/pkg/models"
	"github.com/tripwright/tripwright/pkg/tools"
)

func executorState(step models.PlanStep) *models.TripState {
	copied := step
	return &models.TripState{
		RunID:            "r1",
		UserID:           "u1",
		UserQuery:        "Trip to Tokyo from SFO 2026-04-01 to 2026-04-05",
		Plan:             []models.PlanStep{step},
		CurrentStep:      &copied,
		CurrentStepIndex: 0,
	}
}

func TestExecutorToolCallSuccess(t *testing.T) {
	d, _, _ := testDeps(t.TempDir())
	step := models.NewPlanStep("flights", models.StepToolCall)
	step.ToolName = tools.ToolFlightsSearchLinks
	step.ToolArgs = map[string]any{"origin": "SFO", "destination": "Tokyo", "start_date": "2026-04-01"}

	out, err := d.executor(context.Background(), executorState(step))
	require.NoError(t, err)
	assert.Equal(t, models.StepDone, out.Plan[0].Status)
	require.Len(t, out.ToolResults, 1)
	assert.Equal(t, step.ID, out.ToolResults[0].StepID)
	assert.Equal(t, tools.ToolFlightsSearchLinks, out.ToolResults[0].ToolName)
	assert.NotEmpty(t, out.ToolResults[0].Links)
	assert.False(t, out.NeedsTriage)
}

func TestExecutorToolCallRetriesThenRaisesIssue(t *testing.T) {
	d, _, _ := testDeps(t.TempDir())
	d.Tools = stubRegistry(tools.ToolFlightsSearchLinks)
	d.Settings.MaxToolRetries = 1

	step := models.NewPlanStep("flights", models.StepToolCall)
	step.ToolName = tools.ToolFlightsSearchLinks

	out, err := d.executor(context.Background(), executorState(step))
	require.NoError(t, err)
	assert.Equal(t, models.StepBlocked, out.Plan[0].Status)
	assert.True(t, out.NeedsTriage)
	require.NotNil(t, out.PendingIssue)
	assert.Equal(t, models.IssueToolError, out.PendingIssue.Kind)
	assert.Equal(t, models.SeverityMajor, out.PendingIssue.Severity)
	assert.Contains(t, out.PendingIssue.Message, "after 2 attempt(s)")
	assert.True(t, out.Signal(models.SignalToolError))
	assert.Empty(t, out.ToolResults)
}

func TestExecutorToolSeverityMinorForSecondaryTools(t *testing.T) {
	d, _, _ := testDeps(t.TempDir())
	d.Tools = stubRegistry(tools.ToolWeatherSummary)

	step := models.NewPlanStep("weather", models.StepToolCall)
	step.ToolName = tools.ToolWeatherSummary

	out, err := d.executor(context.Background(), executorState(step))
	require.NoError(t, err)
	require.NotNil(t, out.PendingIssue)
	assert.Equal(t, models.SeverityMinor, out.PendingIssue.Severity)
}

func TestExecutorRetrieveContext(t *testing.T) {
	d, _, mem := testDeps(t.TempDir())
	mem.hits = []memory.Hit{
		{ID: "h1", Text: "User interests: ramen", Distance: 0.1},
		{ID: "h2", Text: "Home origin: SFO", Distance: 0.2},
	}
	step := models.NewPlanStep("recall", models.StepRetrieveContext)

	out, err := d.executor(context.Background(), executorState(step))
	require.NoError(t, err)
	assert.Equal(t, models.StepDone, out.Plan[0].Status)
	require.Len(t, out.ContextHits, 2)
	assert.Equal(t, "h1", out.ContextHits[0].ID)
}

func TestExecutorRetrieveContextWithoutMemory(t *testing.T) {
	d, _, _ := testDeps(t.TempDir())
	d.Memory = nil
	step := models.NewPlanStep("recall", models.StepRetrieveContext)

	out, err := d.executor(context.Background(), executorState(step))
	require.NoError(t, err)
	assert.Equal(t, models.StepBlocked, out.Plan[0].Status)
	assert.True(t, out.NeedsTriage)
	require.NotNil(t, out.PendingIssue)
	assert.True(t, out.Signal(models.SignalMemoryUnavailable))
}

func TestExecutorSynthesize(t *testing.T) {
	d, client, _ := testDeps(t.TempDir())
	client.responses["executor"] = "# Trip plan\n\n## Summary\nTokyo in spring.\n\n## Day-by-day\n## Day 1: Arrival\n## Day 2 - Ramen crawl\n### Day 3\n"
	step := models.NewPlanStep("synthesize", models.StepSynthesize)
	state := executorState(step)
	state.ToolResults = []models.ToolResult{{StepID: "s1", ToolName: "flights_search_links", Summary: "ok"}}

	out, err := d.executor(context.Background(), state)
	require.NoError(t, err)
	assert.Equal(t, models.StepDone, out.Plan[0].Status)
	assert.Contains(t, out.FinalAnswer, "Tokyo in spring")
	assert.Equal(t, []string{"Arrival", "Ramen crawl", "Day 3"}, out.ItineraryDayTitles)
}

func TestExecutorSynthesizeLLMErrorIsFatal(t *testing.T) {
	d, client, _ := testDeps(t.TempDir())
	client.errs["executor"] = errToolDown
	step := models.NewPlanStep("synthesize", models.StepSynthesize)

	_, err := d.executor(context.Background(), executorState(step))
	require.Error(t, err)
}

func TestExecutorNoCurrentStepIsNoop(t *testing.T) {
	d, _, _ := testDeps(t.TempDir())
	state := &models.TripState{RunID: "r1"}

	out, err := d.executor(context.Background(), state)
	require.NoError(t, err)
	assert.Empty(t, out.ToolResults)
}

func TestExtractDayTitlesCap(t *testing.T) {
	answer := ""
	for i := 1; i <= 30; i++ {
		answer += "## Day " + string(rune('0'+i%10)) + ": x\n"
	}
	titles := extractDayTitles(answer)
	assert.Len(t, titles, maxDayTitles)
}

func TestCompactContextTruncates(t *testing.T) {
	long := make([]byte, 400)
	for i := range long {
		long[i] = 'a'
	}
	hits := []models.ContextHit{{Text: string(long)}}
	compact := compactContext(hits)
	require.Len(t, compact, 1)
	text := compact[0]["text"].(string)
	assert.Equal(t, 300+len("…"), len(text))
	assert.Contains(t, text, "…")
}
