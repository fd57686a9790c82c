package eval

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tripwright/tripwright/pkg/models"
	"github.com/tripwright/tripwright/pkg/tools"
)

const disclaimer = "Note: Visa/health requirements vary; verify with official sources (this is not legal advice)."

func fullConstraints() *models.TripConstraints {
	return &models.TripConstraints{
		Origin:       "SFO",
		Destinations: []string{"Kyoto"},
		StartDate:    "2026-04-01",
		EndDate:      "2026-04-03",
		BudgetUSD:    2000,
		Travelers:    2,
		Interests:    []string{"temples", "ramen"},
	}
}

func goodAnswer() string {
	var b strings.Builder
	b.WriteString("# Kyoto Trip\n\n")
	b.WriteString("## Summary\nA 2026-04-01 to 2026-04-03 trip to Kyoto with temples and ramen.\n\n")
	b.WriteString("## Assumptions\n- None outstanding.\n\n")
	b.WriteString("## Flights\n- [Google Flights](https://www.google.com/travel/flights?q=x)\n\n")
	b.WriteString("## Lodging\n- [Booking.com](https://www.booking.com/searchresults.html?ss=x)\n\n")
	b.WriteString("## Day-by-day\n")
	b.WriteString("### Day 1: Arrival\n- morning: temples walk at 9:00\n- afternoon: ramen in Pontocho\n")
	b.WriteString("### Day 2: East side\n- morning: Ginkaku-ji\n- evening: Gion at 18:30\n\n")
	b.WriteString("## Transit\n- Use the subway; typical travel time is short.\n\n")
	b.WriteString("## Weather\n- Forecast highs are mild.\n\n")
	b.WriteString("## Budget\n- Use filters on the linked sites to match your budget.\n\n")
	b.WriteString("## Calendar\n- Exported itinerary.ics\n\n")
	b.WriteString(disclaimer + "\n")
	return b.String()
}

func goodICS(t *testing.T) []byte {
	t.Helper()
	res, err := tools.BuildItineraryICS("Kyoto Trip", "2026-04-01", "2026-04-03", nil)
	require.NoError(t, err)
	return res.Bytes
}

func TestEvaluateFinalGood(t *testing.T) {
	res := EvaluateFinal(fullConstraints(), goodAnswer(), goodICS(t), 3.5)

	for gate, ok := range res.HardGates {
		assert.True(t, ok, "gate %s", gate)
	}
	assert.Equal(t, models.EvalGood, res.OverallStatus)
	assert.Equal(t, 5.0, res.RubricScores[AxisCompleteness])
	assert.GreaterOrEqual(t, res.RubricScores[AxisCoherence], 5.0)
	require.NotEmpty(t, res.Notes)
	assert.Contains(t, res.Notes[len(res.Notes)-1], "threshold 3.50")
}

func TestFabricatedPriceFailsGate(t *testing.T) {
	tests := []struct {
		name   string
		answer string
		ok     bool
	}{
		{name: "dollar amount", answer: "Flights from $450 round trip", ok: false},
		{name: "usd prefix", answer: "Hotel is USD 120 per night", ok: false},
		{name: "usd suffix", answer: "about 120 USD per night", ok: false},
		{name: "price near digit", answer: "the price is around 300 for two", ok: false},
		{name: "digit near fare", answer: "expect 2 stops and a fare to match", ok: false},
		{name: "generic price talk", answer: "prices may change; check prices on the site", ok: true},
		{name: "no prices", answer: "a relaxed walk through the old town", ok: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.ok, NoFabricatedPrices(tt.answer))
		})
	}
}

func TestEvaluateFinalFailsOnBadGate(t *testing.T) {
	answer := goodAnswer() + "\nRound trip from $450.\n"
	res := EvaluateFinal(fullConstraints(), answer, goodICS(t), 3.5)
	assert.False(t, res.HardGates[GateNoFabricatedFacts])
	assert.Equal(t, models.EvalFailed, res.OverallStatus)
	assert.Contains(t, res.Notes[0], "hard gates failed")
}

func TestConstraintCompletenessGate(t *testing.T) {
	c := &models.TripConstraints{Destinations: []string{"Kyoto"}, StartDate: "2026-04-01", EndDate: "2026-04-03"}

	covered := "## Assumptions\n- origin assumed to be your nearest hub\n- budget flexible\n- travelers: assuming 1\n"
	assert.True(t, EvaluateFinal(c, covered, goodICS(t), 3.5).HardGates[GateConstraintCompleteness])

	missingBudget := "## Assumptions\n- origin assumed\n- travelers: 1\n"
	assert.False(t, EvaluateFinal(c, missingBudget, goodICS(t), 3.5).HardGates[GateConstraintCompleteness])

	noSection := "origin budget travelers mentioned without the heading"
	assert.False(t, EvaluateFinal(c, noSection, goodICS(t), 3.5).HardGates[GateConstraintCompleteness])

	// Nothing missing means the gate passes without an Assumptions section.
	assert.True(t, EvaluateFinal(fullConstraints(), "bare", goodICS(t), 3.5).HardGates[GateConstraintCompleteness])
}

func TestLinkValidityGate(t *testing.T) {
	res := EvaluateFinal(fullConstraints(), "see http:// broken", goodICS(t), 3.5)
	assert.True(t, res.HardGates[GateLinkValidity], "text without parsable URLs has nothing to fail")

	res = EvaluateFinal(fullConstraints(), "see https://www.google.com/maps and https://booking.com/x", goodICS(t), 3.5)
	assert.True(t, res.HardGates[GateLinkValidity])
}

func TestCalendarGate(t *testing.T) {
	c := fullConstraints()
	assert.False(t, EvaluateFinal(c, goodAnswer(), nil, 3.5).HardGates[GateCalendarExport])
	assert.False(t, EvaluateFinal(c, goodAnswer(), []byte("garbage"), 3.5).HardGates[GateCalendarExport])
	assert.True(t, EvaluateFinal(c, goodAnswer(), goodICS(t), 3.5).HardGates[GateCalendarExport])
}

func TestDisclaimerGate(t *testing.T) {
	res := EvaluateFinal(fullConstraints(), "no disclaimer here", goodICS(t), 3.5)
	assert.False(t, res.HardGates[GateSafetyDisclaimer])

	res = EvaluateFinal(fullConstraints(), disclaimer, goodICS(t), 3.5)
	assert.True(t, res.HardGates[GateSafetyDisclaimer])
}

func TestRelevanceScore(t *testing.T) {
	noInterests := &models.TripConstraints{}
	assert.Equal(t, 3.5, EvaluateFinal(noInterests, "x", nil, 3.5).RubricScores[AxisRelevance])

	c := &models.TripConstraints{Interests: []string{"temples", "ramen"}}
	full := EvaluateFinal(c, "temples and ramen everywhere", nil, 3.5).RubricScores[AxisRelevance]
	assert.Equal(t, 5.0, full)
	half := EvaluateFinal(c, "temples only", nil, 3.5).RubricScores[AxisRelevance]
	assert.Equal(t, 3.5, half)
	none := EvaluateFinal(c, "neither", nil, 3.5).RubricScores[AxisRelevance]
	assert.Equal(t, 2.0, none)
}

func TestCoherencePenalties(t *testing.T) {
	c := fullConstraints()
	missingAll := EvaluateFinal(c, "a trip somewhere", nil, 3.5).RubricScores[AxisCoherence]
	assert.Equal(t, 1.0, missingAll, "minus 2 for destination, minus 1 per date")
}

func TestNeedsWorkStatus(t *testing.T) {
	// All gates pass but the thin answer scores under the threshold.
	thin := "## Assumptions\n- none\n" + disclaimer
	res := EvaluateFinal(fullConstraints(), thin+" Kyoto 2026-04-01 2026-04-03", goodICS(t), 4.9)
	for gate, ok := range res.HardGates {
		require.True(t, ok, "gate %s", gate)
	}
	assert.Equal(t, models.EvalNeedsWork, res.OverallStatus)
}

func TestBudgetScore(t *testing.T) {
	assert.Equal(t, 1.5, BudgetScore(fullConstraints(), "no mention"))
	assert.Equal(t, 4.0, BudgetScore(fullConstraints(), "stay within budget"))
	assert.Equal(t, 3.0, BudgetScore(&models.TripConstraints{}, "stay within budget"))
}
