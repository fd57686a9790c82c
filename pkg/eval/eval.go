// Package eval scores a finished itinerary. Five hard gates protect the
// links-only contract (no fabricated prices, valid links, a working
// calendar export, disclosed assumptions, a safety disclaimer); a
// five-axis rubric grades answer quality against a configurable
// threshold.
package eval

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/tripwright/tripwright/pkg/models"
	"github.com/tripwright/tripwright/pkg/tools"
)

// RequiredSections are the headings a complete answer carries.
var RequiredSections = []string{
	"Summary",
	"Assumptions",
	"Flights",
	"Lodging",
	"Day-by-day",
	"Transit",
	"Weather",
	"Budget",
	"Calendar",
}

// Hard gate names.
const (
	GateConstraintCompleteness = "constraint_completeness"
	GateNoFabricatedFacts      = "no_fabricated_real_time_facts"
	GateLinkValidity           = "link_validity_format"
	GateCalendarExport         = "calendar_export_correctness"
	GateSafetyDisclaimer       = "safety_clarity_disclaimer"
)

// Rubric axis names.
const (
	AxisRelevance    = "relevance"
	AxisFeasibility  = "feasibility"
	AxisCompleteness = "completeness"
	AxisSpecificity  = "specificity"
	AxisCoherence    = "coherence"
)

var (
	urlRE           = regexp.MustCompile(`https?://[^\s)>"]+`)
	priceRE         = regexp.MustCompile(`(?i)(\$\s?\d+|USD\s?\d+|\d+\s?USD)`)
	timeMentionRE   = regexp.MustCompile(`(?i)\b(\d{1,2}:\d{2}|morning|afternoon|evening)\b`)
	bulletRE        = regexp.MustCompile(`(?m)^\s*[-*]\s+`)
	priceBeforeNum  = regexp.MustCompile(`\b(price|prices|cost|costs|fare|fares)\b.{0,25}\d`)
	numBeforePrice  = regexp.MustCompile(`\d.{0,25}\b(price|prices|cost|costs|fare|fares)\b`)
)

// EvaluateFinal runs all hard gates and rubric axes over the final
// answer and calendar bytes.
func EvaluateFinal(constraints *models.TripConstraints, finalAnswer string, icsBytes []byte, evalThreshold float64) *models.EvaluationResult {
	if constraints == nil {
		constraints = &models.TripConstraints{}
	}
	links := ExtractLinks(finalAnswer)

	hardGates := map[string]bool{
		GateConstraintCompleteness: assumptionsCoverMissing(constraints, finalAnswer),
		GateNoFabricatedFacts:      NoFabricatedPrices(finalAnswer),
		GateLinkValidity:           linksValid(links),
		GateCalendarExport:         calendarOK(icsBytes, constraints),
		GateSafetyDisclaimer:       hasSafetyDisclaimer(finalAnswer),
	}

	rubricScores := map[string]float64{
		AxisRelevance:    relevanceScore(constraints, finalAnswer),
		AxisFeasibility:  feasibilityScore(finalAnswer),
		AxisCompleteness: sectionScore(finalAnswer),
		AxisSpecificity:  specificityScore(finalAnswer),
		AxisCoherence:    coherenceScore(constraints, finalAnswer),
	}

	var avg float64
	for _, v := range rubricScores {
		avg += v
	}
	avg /= float64(len(rubricScores))

	allGates := true
	for _, ok := range hardGates {
		allGates = allGates && ok
	}

	status := models.EvalFailed
	switch {
	case allGates && avg >= evalThreshold:
		status = models.EvalGood
	case allGates:
		status = models.EvalNeedsWork
	}

	var notes []string
	if !allGates {
		notes = append(notes, "One or more hard gates failed.")
	}
	notes = append(notes, fmt.Sprintf("Average rubric score: %.2f (threshold %.2f).", avg, evalThreshold))

	return &models.EvaluationResult{
		HardGates:     hardGates,
		RubricScores:  rubricScores,
		OverallStatus: status,
		Notes:         notes,
	}
}

// ExtractLinks returns every http(s) URL in the text.
func ExtractLinks(text string) []string {
	return urlRE.FindAllString(text, -1)
}

func linksValid(links []string) bool {
	for _, link := range links {
		u, err := url.Parse(link)
		if err != nil {
			return false
		}
		if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return false
		}
	}
	return true
}

func sectionScore(answer string) float64 {
	lower := strings.ToLower(answer)
	found := 0
	for _, sec := range RequiredSections {
		if strings.Contains(lower, strings.ToLower(sec)) {
			found++
		}
	}
	return 5.0 * float64(found) / float64(len(RequiredSections))
}

func specificityScore(answer string) float64 {
	timeMentions := len(timeMentionRE.FindAllString(answer, -1))
	bullets := len(bulletRE.FindAllString(answer, -1))
	score := minF(2.5, float64(timeMentions)/6.0*2.5)
	score += minF(2.5, float64(bullets)/20.0*2.5)
	return clamp(score, 0, 5)
}

func coherenceScore(constraints *models.TripConstraints, answer string) float64 {
	score := 5.0
	lower := strings.ToLower(answer)
	if len(constraints.Destinations) > 0 {
		hit := false
		for _, d := range constraints.Destinations {
			if d != "" && strings.Contains(lower, strings.ToLower(d)) {
				hit = true
				break
			}
		}
		if !hit {
			score -= 2.0
		}
	}
	if constraints.StartDate != "" && !strings.Contains(answer, constraints.StartDate) {
		score -= 1.0
	}
	if constraints.EndDate != "" && !strings.Contains(answer, constraints.EndDate) {
		score -= 1.0
	}
	return clamp(score, 0, 5)
}

func relevanceScore(constraints *models.TripConstraints, answer string) float64 {
	if len(constraints.Interests) == 0 {
		return 3.5
	}
	lower := strings.ToLower(answer)
	hits := 0
	for _, interest := range constraints.Interests {
		if interest != "" && strings.Contains(lower, strings.ToLower(interest)) {
			hits++
		}
	}
	denom := len(constraints.Interests)
	if denom > 5 {
		denom = 5
	}
	if denom < 1 {
		denom = 1
	}
	return clamp(2.0+3.0*float64(hits)/float64(denom), 0, 5)
}

func feasibilityScore(answer string) float64 {
	lower := strings.ToLower(answer)
	if strings.Contains(lower, "travel time") || strings.Contains(lower, "transit") || strings.Contains(lower, "distance") {
		return 4.0
	}
	return 3.0
}

// BudgetScore grades the budget treatment on its own axis. Kept exported
// for experiment reporting even though the rubric average excludes it.
func BudgetScore(constraints *models.TripConstraints, answer string) float64 {
	if !strings.Contains(strings.ToLower(answer), "budget") {
		return 1.5
	}
	if constraints != nil && constraints.BudgetUSD > 0 {
		return 4.0
	}
	return 3.0
}

func assumptionsCoverMissing(constraints *models.TripConstraints, answer string) bool {
	missing := constraints.MissingTokens()
	if len(missing) == 0 {
		return true
	}
	lower := strings.ToLower(answer)
	if !strings.Contains(lower, "assumptions") {
		return false
	}
	for _, token := range missing {
		if !strings.Contains(lower, token) {
			return false
		}
	}
	return true
}

// NoFabricatedPrices reports whether the answer is free of numeric
// pricing claims, including "price"/"cost"/"fare" wording within 25
// characters of a digit.
func NoFabricatedPrices(answer string) bool {
	if priceRE.MatchString(answer) {
		return false
	}
	lower := strings.ToLower(answer)
	if priceBeforeNum.MatchString(lower) {
		return false
	}
	if numBeforePrice.MatchString(lower) {
		return false
	}
	return true
}

func calendarOK(icsBytes []byte, constraints *models.TripConstraints) bool {
	if len(icsBytes) == 0 {
		return false
	}
	events, err := tools.CountICSEvents(icsBytes)
	if err != nil || events == 0 {
		return false
	}
	if constraints.StartDate != "" && constraints.EndDate != "" {
		ds, err1 := time.Parse("2006-01-02", constraints.StartDate)
		de, err2 := time.Parse("2006-01-02", constraints.EndDate)
		if err1 != nil || err2 != nil {
			return false
		}
		days := int(de.Sub(ds).Hours() / 24)
		if days < 0 {
			days = -days
		}
		days++
		want := days
		if want > 1 {
			want = 1
		}
		return events >= want
	}
	return true
}

func hasSafetyDisclaimer(answer string) bool {
	lower := strings.ToLower(answer)
	return strings.Contains(lower, "verify with official sources") || strings.Contains(lower, "not legal advice")
}

func minF(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
