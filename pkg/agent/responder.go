package agent

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/tripwright/tripwright/pkg/models"
	"github.com/tripwright/tripwright/pkg/tools"
)

// Disclaimer enforced exactly once in every final answer.
const Disclaimer = "Note: Visa/health requirements vary; verify with official sources (this is not legal advice)."

var (
	urlInTextRE       = regexp.MustCompile(`https?://`)
	boldLineRE        = regexp.MustCompile(`^\s*\*\*(.+?)\*\*\s*$`)
	setextUnderlineRE = regexp.MustCompile(`^\s*[-=]{3,}\s*$`)
	sectionBoundaryRE = regexp.MustCompile(`(?m)^##[ \t]`)
	currencyTokenRE   = regexp.MustCompile(`(?i)(\$\s?\d+|USD\s?\d+|\d+\s?USD)`)
	priceBeforeNumRE  = regexp.MustCompile(`(?i)(?:price|prices|cost|fare)[^\n]{0,25}?\d`)
	numBeforePriceRE  = regexp.MustCompile(`(?i)\d[^\n]{0,25}?(?:price|prices|cost|fare)`)
	unavailableNoteRE = regexp.MustCompile(`(?i)(Live offers unavailable[^.]*(?:\.[^.]*)?)`)
	disclaimerRE      = regexp.MustCompile(regexp.QuoteMeta(Disclaimer) + `\s*`)
)

var requiredSections = []string{"Summary", "Flights", "Lodging", "Day-by-day", "Transit", "Weather", "Budget", "Calendar"}

var usPrinter = message.NewPrinter(language.AmericanEnglish)

// responder shapes the draft answer into the final links-only response:
// normalized ATX headings, the disclaimer exactly once, every required
// section present and filled (tool results preferred, deterministic link
// builders otherwise), missing constraints surfaced under Assumptions,
// and all price-like tokens stripped. Running it on its own output is a
// no-op.
func (d *Deps) responder(ctx context.Context, state *models.TripState) (*models.TripState, error) {
	state.CurrentStep = &models.PlanStep{StepType: models.StepRespond, Title: "Compose final response"}
	constraints := state.EnsureConstraints()
	answer := strings.TrimSpace(state.FinalAnswer)

	destination := constraints.PrimaryDestination()
	if destination == "" {
		destination = "your destination"
	}
	origin := constraints.Origin
	startDate := constraints.StartDate
	endDate := constraints.EndDate

	if answer == "" {
		answer = fmt.Sprintf("# Trip plan\n\n## Summary\nPlanning trip to %s.\n", destination)
	}

	answer = disclaimerRE.ReplaceAllString(answer, "")
	answer = normalizeHeadings(answer)

	missing := constraints.MissingTokens()
	if !strings.Contains(strings.ToLower(answer), "assumptions") {
		answer += "\n## Assumptions\n"
	}
	if len(missing) > 0 && strings.Contains(strings.ToLower(answer), "## assumptions") {
		lower := strings.ToLower(answer)
		for _, token := range missing {
			if !strings.Contains(lower, token) {
				answer += fmt.Sprintf("- %s: not provided\n", token)
			}
		}
	}

	toolLinks := map[string][]map[string]string{}
	toolSummaries := map[string]string{}
	toolTopResults := map[string][]map[string]string{}
	for _, tr := range state.ToolResults {
		toolLinks[tr.ToolName] = tr.Links
		toolSummaries[tr.ToolName] = strings.TrimSpace(tr.Summary)
		if top, ok := tr.Data["top_results"]; ok {
			toolTopResults[tr.ToolName] = linksField(map[string]any{"links": top})
		}
	}

	defaults := buildDefaultLinks(origin, destination, startDate, endDate)

	for _, sec := range requiredSections {
		if !strings.Contains(strings.ToLower(answer), strings.ToLower(sec)) {
			answer += fmt.Sprintf("\n## %s\n", sec)
		}
	}

	multi := len(constraints.Destinations) > 1

	// Flights
	flightsBody := getSectionBody(answer, "Flights")
	if multi {
		answer = setSection(answer, "Flights", multiLegBody(constraints, func(dest string) string {
			tr := toolResultForDestination(state, tools.ToolFlightsSearchLinks, dest)
			return legBody(tr, buildDefaultLinks(origin, dest, startDate, endDate)["flights"])
		}))
	} else {
		links := toolLinks[tools.ToolFlightsSearchLinks]
		if len(links) == 0 {
			links = defaults["flights"]
		}
		top := toolTopResults[tools.ToolFlightsSearchLinks]
		note := extractUnavailableNote(toolSummaries[tools.ToolFlightsSearchLinks])
		if len(top) > 0 || len(links) > 0 || strings.Contains(strings.ToLower(flightsBody), "not available") || !urlInTextRE.MatchString(flightsBody) {
			var pieces []string
			if note != "" && len(top) == 0 {
				pieces = append(pieces, "- "+note)
			}
			if len(top) > 0 {
				pieces = append(pieces, "Top 5 results:\n"+linksMarkdown(top))
			}
			if len(links) > 0 {
				pieces = append(pieces, "Search links:\n"+linksMarkdown(links))
			}
			if len(pieces) > 0 {
				answer = setSection(answer, "Flights", strings.Join(pieces, "\n\n"))
			} else {
				answer = setSection(answer, "Flights", "- Provide `origin` and `start_date` to generate flight search links.")
			}
		}
	}

	// Lodging
	lodgingBody := getSectionBody(answer, "Lodging")
	if multi {
		answer = setSection(answer, "Lodging", multiLegBody(constraints, func(dest string) string {
			tr := toolResultForDestination(state, tools.ToolHotelsSearchLinks, dest)
			return legBody(tr, buildDefaultLinks(origin, dest, startDate, endDate)["lodging"])
		}))
	} else {
		links := toolLinks[tools.ToolHotelsSearchLinks]
		if len(links) == 0 {
			links = defaults["lodging"]
		}
		top := toolTopResults[tools.ToolHotelsSearchLinks]
		note := extractUnavailableNote(toolSummaries[tools.ToolHotelsSearchLinks])
		if len(top) > 0 || len(links) > 0 || strings.Contains(strings.ToLower(lodgingBody), "not available") || !urlInTextRE.MatchString(lodgingBody) {
			var pieces []string
			if note != "" && len(top) == 0 {
				pieces = append(pieces, "- "+note)
			}
			if len(top) > 0 {
				pieces = append(pieces, "Top 5 results:\n"+linksMarkdown(top))
			}
			if len(links) > 0 {
				pieces = append(pieces, "Search links:\n"+linksMarkdown(links))
			}
			if len(pieces) > 0 {
				answer = setSection(answer, "Lodging", strings.Join(pieces, "\n\n"))
			} else {
				answer = setSection(answer, "Lodging", "- Provide `start_date` and `end_date` to generate lodging search links.")
			}
		}
	}

	// Things to do
	thingsBody := getSectionBody(answer, "Things to do")
	if thingsBody == "" || strings.Contains(strings.ToLower(thingsBody), "not available") {
		links := toolLinks[tools.ToolThingsToDoLinks]
		if len(links) == 0 {
			links = defaults["things"]
		}
		if len(links) > 0 {
			answer = setSection(answer, "Things to do", linksMarkdown(links))
		}
	}

	// Weather
	weatherBody := getSectionBody(answer, "Weather")
	if weatherBody == "" || strings.Contains(strings.ToLower(weatherBody), "not available") {
		summary := toolSummaries[tools.ToolWeatherSummary]
		links := toolLinks[tools.ToolWeatherSummary]
		if len(links) == 0 {
			links = defaults["weather"]
		}
		var pieces []string
		if summary != "" {
			pieces = append(pieces, "- "+summary)
		}
		if len(links) > 0 {
			pieces = append(pieces, linksMarkdown(links))
		}
		if len(pieces) == 0 {
			pieces = append(pieces, "- Seasonal guidance: check typical weather for your dates.")
		}
		answer = setSection(answer, "Weather", strings.Join(pieces, "\n"))
	}

	// Transit
	transitBody := getSectionBody(answer, "Transit")
	if transitBody == "" || strings.Contains(strings.ToLower(transitBody), "not available") {
		answer = setSection(answer, "Transit",
			"- Use Google Maps for live routing.\n- Prefer public transit/walking in city centers; rideshare/taxi late night.\n- Build buffer time for traffic and station navigation.")
	}

	// Day-by-day
	dayBody := getSectionBody(answer, "Day-by-day")
	if dayBody == "" || strings.Contains(strings.ToLower(dayBody), "not available") {
		answer = setSection(answer, "Day-by-day", dayByDayFallback(startDate, endDate, destination))
	}

	// Budget
	budgetBody := getSectionBody(answer, "Budget")
	if budgetBody == "" || strings.Contains(strings.ToLower(budgetBody), "not available") {
		answer = setSection(answer, "Budget", budgetFallback(constraints))
	}

	// Calendar
	calBody := getSectionBody(answer, "Calendar")
	if calBody == "" || strings.Contains(strings.ToLower(calBody), "not available") {
		if startDate != "" && endDate != "" {
			answer = setSection(answer, "Calendar", "- An `.ics` itinerary calendar will be exported after this response.")
		} else {
			answer = setSection(answer, "Calendar", "- Provide `start_date` and `end_date` to export an `.ics` calendar.")
		}
	}

	answer = stripPrices(answer)
	answer = strings.TrimSpace(answer) + "\n\n" + Disclaimer
	state.FinalAnswer = strings.TrimSpace(answer) + "\n"
	return state, nil
}

// sectionSpan returns the byte span of a level-2 "## Title" heading and
// its body, ending before the next level-2 heading. Deeper headings
// (###) stay inside the body.
func sectionSpan(answer, title string) (int, int, bool) {
	headingRE := regexp.MustCompile(`(?m)^##[ \t]+` + regexp.QuoteMeta(title) + `[ \t]*$`)
	loc := headingRE.FindStringIndex(answer)
	if loc == nil {
		return 0, 0, false
	}
	rest := answer[loc[1]:]
	if next := sectionBoundaryRE.FindStringIndex(rest); next != nil {
		return loc[0], loc[1] + next[0], true
	}
	return loc[0], len(answer), true
}

func getSectionBody(answer, title string) string {
	start, end, ok := sectionSpan(answer, title)
	if !ok {
		return ""
	}
	lines := strings.SplitN(answer[start:end], "\n", 2)
	if len(lines) < 2 {
		return ""
	}
	return strings.TrimSpace(lines[1])
}

func setSection(answer, title, body string) string {
	block := fmt.Sprintf("## %s\n%s\n", title, strings.TrimSpace(body))
	start, end, ok := sectionSpan(answer, title)
	if !ok {
		return strings.TrimRight(answer, "\n ") + "\n\n" + block
	}
	return answer[:start] + block + answer[end:]
}

// normalizeHeadings converts bold-only lines and setext underlines into
// ATX "## Title" headings so section matching is consistent.
func normalizeHeadings(answer string) string {
	lines := strings.Split(answer, "\n")
	var out []string
	for i := 0; i < len(lines); i++ {
		line := strings.TrimRight(lines[i], " \t")
		nextLine := ""
		if i+1 < len(lines) {
			nextLine = strings.TrimSpace(lines[i+1])
		}

		if m := boldLineRE.FindStringSubmatch(line); m != nil {
			title := strings.TrimSpace(m[1])
			if title != "" {
				out = append(out, "## "+title)
				if setextUnderlineRE.MatchString(nextLine) {
					i++
				}
				continue
			}
		}

		if strings.TrimSpace(line) != "" && i+1 < len(lines) && setextUnderlineRE.MatchString(nextLine) {
			out = append(out, "## "+strings.TrimSpace(line))
			i++
			continue
		}

		out = append(out, line)
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}

func extractUnavailableNote(summary string) string {
	if summary == "" {
		return ""
	}
	if m := unavailableNoteRE.FindStringSubmatch(summary); m != nil {
		return strings.TrimSpace(m[1])
	}
	if strings.Contains(strings.ToLower(summary), "unavailable") {
		return strings.TrimSpace(summary)
	}
	return ""
}

func linksMarkdown(links []map[string]string) string {
	var out []string
	for _, l := range links {
		label := l["label"]
		if label == "" {
			label = "Link"
		}
		if u := l["url"]; u != "" {
			out = append(out, fmt.Sprintf("- [%s](%s)", label, u))
		}
	}
	return strings.Join(out, "\n")
}

// multiLegBody renders one "### Origin → Destination" sub-heading per
// destination leg.
func multiLegBody(constraints *models.TripConstraints, build func(dest string) string) string {
	origin := constraints.Origin
	if origin == "" {
		origin = "Origin"
	}
	var pieces []string
	for _, dest := range constraints.Destinations {
		body := build(dest)
		if body == "" {
			continue
		}
		pieces = append(pieces, fmt.Sprintf("### %s → %s\n%s", origin, dest, body))
	}
	if len(pieces) == 0 {
		return "- Provide `origin` and dates to generate search links."
	}
	return strings.Join(pieces, "\n\n")
}

// legBody renders one leg's links, preferring the leg's own tool result
// and falling back to the deterministic builders.
func legBody(tr *models.ToolResult, defaults []map[string]string) string {
	var pieces []string
	if tr != nil {
		note := extractUnavailableNote(strings.TrimSpace(tr.Summary))
		var top []map[string]string
		if t, ok := tr.Data["top_results"]; ok {
			top = linksField(map[string]any{"links": t})
		}
		if note != "" && len(top) == 0 {
			pieces = append(pieces, "- "+note)
		}
		if len(top) > 0 {
			pieces = append(pieces, "Top 5 results:\n"+linksMarkdown(top))
		}
		if len(tr.Links) > 0 {
			pieces = append(pieces, "Search links:\n"+linksMarkdown(tr.Links))
		}
	}
	if len(pieces) == 0 && len(defaults) > 0 {
		pieces = append(pieces, linksMarkdown(defaults))
	}
	return strings.Join(pieces, "\n\n")
}

// toolResultForDestination matches a tool result to a leg through the
// destination argument of the plan step that produced it.
func toolResultForDestination(state *models.TripState, toolName, dest string) *models.ToolResult {
	want := strings.TrimSpace(dest)
	for i := range state.ToolResults {
		tr := &state.ToolResults[i]
		if tr.ToolName != toolName {
			continue
		}
		idx := state.StepIndex(tr.StepID)
		if idx < 0 {
			continue
		}
		got := strings.TrimSpace(stringField(state.Plan[idx].ToolArgs, "destination"))
		if strings.EqualFold(got, want) {
			return tr
		}
	}
	return nil
}

// buildDefaultLinks builds the deterministic fallback links keyed on
// origin, destination and dates.
func buildDefaultLinks(origin, destination, startDate, endDate string) map[string][]map[string]string {
	dest := destination
	if dest == "" {
		dest = "destination"
	}
	links := map[string][]map[string]string{"flights": {}, "lodging": {}, "things": {}, "weather": {}}
	if origin != "" && destination != "" && startDate != "" {
		query := fmt.Sprintf("flights from %s to %s %s", origin, dest, startDate)
		links["flights"] = []map[string]string{
			{"label": "Google Flights", "url": "https://www.google.com/travel/flights?q=" + url.QueryEscape(fmt.Sprintf("Flights from %s to %s on %s", origin, dest, startDate))},
			{"label": "Skyscanner", "url": "https://www.skyscanner.com/transport/flights/?q=" + url.QueryEscape(fmt.Sprintf("Skyscanner flights %s %s %s", origin, dest, startDate))},
			{"label": "Kayak", "url": "https://www.google.com/search?q=" + url.QueryEscape("site:kayak.com "+query)},
			{"label": "Expedia", "url": "https://www.google.com/search?q=" + url.QueryEscape("site:expedia.com "+query)},
			{"label": "Momondo", "url": "https://www.google.com/search?q=" + url.QueryEscape("site:momondo.com "+query)},
		}
	}
	if destination != "" && startDate != "" && endDate != "" {
		stay := fmt.Sprintf("hotels in %s %s to %s", dest, startDate, endDate)
		links["lodging"] = []map[string]string{
			{"label": "Booking.com", "url": "https://www.booking.com/searchresults.html?ss=" + url.QueryEscape(fmt.Sprintf("Hotels in %s %s to %s", dest, startDate, endDate))},
			{"label": "Hotels.com", "url": "https://www.google.com/search?q=" + url.QueryEscape("site:hotels.com "+stay)},
			{"label": "Expedia", "url": "https://www.google.com/search?q=" + url.QueryEscape("site:expedia.com "+stay)},
			{"label": "Airbnb", "url": "https://www.airbnb.com/s/" + url.QueryEscape(dest) + "/homes"},
			{"label": "Google Maps (hotels)", "url": "https://www.google.com/maps/search/?api=1&query=" + url.QueryEscape("Hotels in "+dest)},
		}
	}
	if destination != "" {
		links["things"] = []map[string]string{
			{"label": "Google Maps (things to do)", "url": "https://www.google.com/maps/search/?api=1&query=" + url.QueryEscape("Things to do in "+dest)},
		}
		q := dest + " weather"
		if startDate != "" {
			q = fmt.Sprintf("%s weather %s", dest, startDate)
		}
		links["weather"] = []map[string]string{
			{"label": "Weather search", "url": "https://www.google.com/search?q=" + url.QueryEscape(q)},
		}
	}
	return links
}

func dayByDayFallback(startDate, endDate, destination string) string {
	start, errS := time.Parse("2006-01-02", startDate)
	end, errE := time.Parse("2006-01-02", endDate)
	var lines []string
	if errS == nil && errE == nil {
		if end.Before(start) {
			start, end = end, start
		}
		days := int(end.Sub(start).Hours()/24) + 1
		maxDays := days
		if maxDays > 10 {
			maxDays = 10
		}
		for i := 0; i < maxDays; i++ {
			cur := start.AddDate(0, 0, i)
			lines = append(lines, fmt.Sprintf("- Day %d (%s): Morning / Afternoon / Evening activities in %s.", i+1, cur.Format("2006-01-02"), destination))
		}
		if days > maxDays {
			lines = append(lines, fmt.Sprintf("- Remaining days: follow a similar pattern (total %d days).", days))
		}
	} else {
		lines = []string{
			fmt.Sprintf("- Day 1: Arrival + neighborhood walk + street food in %s.", destination),
			"- Day 2: Top sights + museum/garden + evening market.",
			"- Day 3: Day trip or nature walk + local cuisine.",
			"- Day 4: Cultural highlights + shopping + relax.",
			"- Day 5: Flexible day + departure.",
		}
	}
	return strings.Join(lines, "\n")
}

func budgetFallback(constraints *models.TripConstraints) string {
	const split = "flights 35–55%, lodging 25–40%, food+activities 15–30%, local transit 5–10%"
	if constraints.BudgetUSD > 0 {
		travelers := constraints.Travelers
		if travelers < 1 {
			travelers = 1
		}
		per := constraints.BudgetUSD / float64(travelers)
		// Phrased to survive price stripping verbatim: no currency token
		// and no price word near the digits.
		return usPrinter.Sprintf("- Total budget (provided, USD): ~%.0f for %d traveler(s) (~%.0f per traveler).\n", constraints.BudgetUSD, travelers, per) +
			fmt.Sprintf("- Heuristic split: %s.\n- No live prices; use the links above to validate.", split)
	}
	return fmt.Sprintf("- Heuristic split: %s.\n- If you share a budget, I can tailor the itinerary and tradeoffs.", split)
}

// stripPrices removes currency tokens and price-word collocations,
// iterating to a fixed point so a second pass is a no-op.
func stripPrices(answer string) string {
	for {
		next := currencyTokenRE.ReplaceAllString(answer, "[price omitted]")
		next = priceBeforeNumRE.ReplaceAllString(next, "[price omitted]")
		next = numBeforePriceRE.ReplaceAllString(next, "[price omitted]")
		if next == answer {
			return next
		}
		answer = next
	}
}
