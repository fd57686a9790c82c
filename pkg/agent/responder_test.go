package agent

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tripwright/tripwright/pkg/models"
)

func responderState() *models.TripState {
	return &models.TripState{
		RunID:  "r1",
		UserID: "u1",
		Constraints: &models.TripConstraints{
			Origin:       "SFO",
			Destinations: []string{"Tokyo"},
			StartDate:    "2026-04-01",
			EndDate:      "2026-04-05",
			BudgetUSD:    3000,
			Travelers:    2,
			Interests:    []string{"ramen", "gardens"},
		},
	}
}

func TestResponderBuildsSkeletonFromEmptyAnswer(t *testing.T) {
	d, _, _ := testDeps(t.TempDir())
	out, err := d.responder(context.Background(), responderState())
	require.NoError(t, err)

	for _, sec := range requiredSections {
		assert.Contains(t, out.FinalAnswer, "## "+sec, "missing section %s", sec)
	}
	assert.Equal(t, 1, strings.Count(out.FinalAnswer, Disclaimer))
	assert.Contains(t, out.FinalAnswer, "https://www.google.com/travel/flights")
	assert.Contains(t, out.FinalAnswer, "booking.com")
}

func TestResponderDisclaimerExactlyOnce(t *testing.T) {
	d, _, _ := testDeps(t.TempDir())
	state := responderState()
	state.FinalAnswer = "## Summary\nA plan.\n" + Disclaimer + "\n\nMore text.\n" + Disclaimer + "\n"

	out, err := d.responder(context.Background(), state)
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(out.FinalAnswer, Disclaimer))
}

func TestResponderNormalizesHeadings(t *testing.T) {
	got := normalizeHeadings("**Summary**\nA trip.\n\nFlights\n---\nSome flights.")
	assert.Contains(t, got, "## Summary")
	assert.Contains(t, got, "## Flights")
	assert.NotContains(t, got, "---")
}

func TestResponderAppendsMissingAssumptionTokens(t *testing.T) {
	d, _, _ := testDeps(t.TempDir())
	state := responderState()
	state.Constraints.BudgetUSD = 0
	state.Constraints.Travelers = 0

	out, err := d.responder(context.Background(), state)
	require.NoError(t, err)
	assert.Contains(t, out.FinalAnswer, "- budget: not provided")
	assert.Contains(t, out.FinalAnswer, "- travelers: not provided")
}

func TestResponderPrefersToolLinks(t *testing.T) {
	d, _, _ := testDeps(t.TempDir())
	state := responderState()
	state.ToolResults = []models.ToolResult{{
		StepID:   "s1",
		ToolName: "flights_search_links",
		Summary:  "Flight search links.",
		Links:    []map[string]string{{"label": "Custom Flights", "url": "https://example.com/custom"}},
	}}

	out, err := d.responder(context.Background(), state)
	require.NoError(t, err)
	assert.Contains(t, out.FinalAnswer, "https://example.com/custom")
}

func TestResponderUnavailableNote(t *testing.T) {
	d, _, _ := testDeps(t.TempDir())
	state := responderState()
	state.ToolResults = []models.ToolResult{{
		StepID:   "s1",
		ToolName: "flights_search_links",
		Summary:  "Live offers unavailable for this route. Use search links.",
	}}

	out, err := d.responder(context.Background(), state)
	require.NoError(t, err)
	assert.Contains(t, out.FinalAnswer, "Live offers unavailable")
}

func TestResponderStripsPrices(t *testing.T) {
	d, _, _ := testDeps(t.TempDir())
	state := responderState()
	state.FinalAnswer = "## Summary\nFlights for $499 round trip, hotel 120 USD nightly, fare around 300.\n"

	out, err := d.responder(context.Background(), state)
	require.NoError(t, err)
	assert.NotContains(t, out.FinalAnswer, "$499")
	assert.NotContains(t, out.FinalAnswer, "120 USD")
	assert.Contains(t, out.FinalAnswer, "[price omitted]")
}

func TestResponderBudgetLineSurvivesPriceStripping(t *testing.T) {
	body := budgetFallback(&models.TripConstraints{BudgetUSD: 3000, Travelers: 2})
	assert.Contains(t, body, "~3,000 for 2 traveler(s)")
	assert.Contains(t, body, "(~1,500 per traveler)")
	assert.NotContains(t, body, "$")
	assert.Equal(t, body, stripPrices(body), "stripping is a no-op on the budget text")

	d, _, _ := testDeps(t.TempDir())
	out, err := d.responder(context.Background(), responderState())
	require.NoError(t, err)
	assert.Contains(t, out.FinalAnswer, "~3,000 for 2 traveler(s)")
	assert.NotContains(t, out.FinalAnswer, "[[")
}

func TestResponderIdempotent(t *testing.T) {
	d, _, _ := testDeps(t.TempDir())
	state := responderState()
	state.FinalAnswer = "## Summary\nA Tokyo trip.\n\n## Day-by-day\n- Day 1: Arrival.\n"

	once, err := d.responder(context.Background(), state)
	require.NoError(t, err)
	first := once.FinalAnswer

	twice, err := d.responder(context.Background(), once)
	require.NoError(t, err)
	assert.Equal(t, first, twice.FinalAnswer)
}

func TestResponderMultiDestinationSubheadings(t *testing.T) {
	d, _, _ := testDeps(t.TempDir())
	state := responderState()
	state.Constraints.Destinations = []string{"Rome", "Florence"}

	out, err := d.responder(context.Background(), state)
	require.NoError(t, err)
	assert.Contains(t, out.FinalAnswer, "### SFO → Rome")
	assert.Contains(t, out.FinalAnswer, "### SFO → Florence")
}

func TestResponderMultiDestinationPrefersLegToolResults(t *testing.T) {
	d, _, _ := testDeps(t.TempDir())
	state := responderState()
	state.Constraints.Destinations = []string{"Rome", "Florence"}

	flightsStep := models.NewPlanStep("Search flights to Rome", models.StepToolCall)
	flightsStep.ToolName = "flights_search_links"
	flightsStep.ToolArgs = map[string]any{"origin": "SFO", "destination": "Rome"}
	hotelsStep := models.NewPlanStep("Search hotels in Rome", models.StepToolCall)
	hotelsStep.ToolName = "hotels_search_links"
	hotelsStep.ToolArgs = map[string]any{"destination": "rome"}
	state.Plan = []models.PlanStep{flightsStep, hotelsStep}

	state.ToolResults = []models.ToolResult{
		{
			StepID:   flightsStep.ID,
			ToolName: "flights_search_links",
			Links:    []map[string]string{{"label": "Rome flights", "url": "https://example.com/rome-flights"}},
			Data: map[string]any{"top_results": []map[string]string{
				{"label": "Best Rome fare", "url": "https://example.com/rome-top"},
			}},
		},
		{
			StepID:   hotelsStep.ID,
			ToolName: "hotels_search_links",
			Links:    []map[string]string{{"label": "Rome hotels", "url": "https://example.com/rome-hotels"}},
		},
	}

	out, err := d.responder(context.Background(), state)
	require.NoError(t, err)
	answer := out.FinalAnswer

	// The Rome legs carry the tool results, including top results.
	assert.Contains(t, answer, "https://example.com/rome-flights")
	assert.Contains(t, answer, "https://example.com/rome-top")
	assert.Contains(t, answer, "https://example.com/rome-hotels")
	assert.Contains(t, answer, "Top 5 results:")

	// The uncovered Florence legs fall back to the deterministic links.
	romeLeg := strings.Index(answer, "### SFO → Rome")
	florenceLeg := strings.Index(answer, "### SFO → Florence")
	require.Greater(t, romeLeg, -1)
	require.Greater(t, florenceLeg, -1)
	assert.Less(t, romeLeg, strings.Index(answer, "https://example.com/rome-flights"))
	assert.Contains(t, answer[florenceLeg:], "Google Flights")
	romeFlights := answer[romeLeg:florenceLeg]
	assert.NotContains(t, romeFlights, "Google Flights")
}

func TestResponderDayByDayFallbackRange(t *testing.T) {
	body := dayByDayFallback("2026-04-01", "2026-04-05", "Tokyo")
	assert.Contains(t, body, "- Day 1 (2026-04-01)")
	assert.Contains(t, body, "- Day 5 (2026-04-05)")
	assert.NotContains(t, body, "Remaining days")

	long := dayByDayFallback("2026-04-01", "2026-04-20", "Tokyo")
	assert.Contains(t, long, "- Day 10 (2026-04-10)")
	assert.Contains(t, long, "Remaining days: follow a similar pattern (total 20 days).")

	generic := dayByDayFallback("", "", "Tokyo")
	assert.Contains(t, generic, "- Day 1: Arrival")
	assert.Contains(t, generic, "- Day 5: Flexible day + departure.")
}

func TestSectionHelpers(t *testing.T) {
	answer := "## Summary\nBody one.\n\n## Flights\nOld flights.\n\n## Lodging\nHotels.\n"
	assert.Equal(t, "Body one.", getSectionBody(answer, "Summary"))
	assert.Equal(t, "Old flights.", getSectionBody(answer, "Flights"))

	updated := setSection(answer, "Flights", "New flights.")
	assert.Contains(t, updated, "## Flights\nNew flights.")
	assert.NotContains(t, updated, "Old flights.")
	assert.Contains(t, updated, "Hotels.")

	appended := setSection(answer, "Weather", "Sunny.")
	assert.Contains(t, appended, "## Weather\nSunny.")
}

func TestSectionSpanKeepsSubheadingsInBody(t *testing.T) {
	answer := "## Flights\n### SFO → Rome\n- [x](https://example.com)\n\n## Lodging\nHotels.\n"
	body := getSectionBody(answer, "Flights")
	assert.Contains(t, body, "### SFO → Rome")
	assert.NotContains(t, body, "Hotels.")
}
