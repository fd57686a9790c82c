package agent

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/tripwright/tripwright/pkg/llm"
	"github.com/tripwright/tripwright/pkg/models"
)

const intentSystemPrompt = `You are a travel assistant. Extract trip constraints from the user's request.
Return ONLY valid JSON matching this schema:
{
  "origin": string|null,
  "destinations": string[],
  "start_date": "YYYY-MM-DD"|null,
  "end_date": "YYYY-MM-DD"|null,
  "budget_usd": number|null,
  "travelers": integer|null,
  "interests": string[],
  "pace": "relaxed"|"balanced"|"packed"|null,
  "notes": string[]
}
If a field is unknown, use null or empty list.
`

var (
	isoDateRE       = regexp.MustCompile(`\b(\d{4}-\d{2}-\d{2})\b`)
	originRE        = regexp.MustCompile(`(?i)\b(?:flying from|departing from|from)\s+([A-Za-z][A-Za-z .'-]{0,40}?)(?:\s+to\s|\s+on\s|\s+\d|[,.;\n]|$)`)
	destinationRE   = regexp.MustCompile(`(?i)\b(?:travel|trip|going|visit)\w*\s+to\s+([A-Za-z][A-Za-z .'-]{0,40}?)(?:\s+from\s|\s+on\s|\s+\d|[,.;\n]|$)`)
	travelersRE     = regexp.MustCompile(`(?i)\b(\d+)\s*(?:travelers?|people|pax)\b`)
	budgetRE        = regexp.MustCompile(`(?i)budget[^0-9$]*\$?\s*([0-9][0-9,]*)`)
	paceRE          = regexp.MustCompile(`(?i)\b(relaxed|balanced|packed)\b`)
	interestsListRE = regexp.MustCompile(`(?i)\b(?:interests?:?|i like)\s+([^.\n;]+)`)
)

// intentParser extracts trip constraints from the user query via the
// LLM, repairs gaps heuristically from the raw text, applies pending
// overrides, and asks for clarification when core fields stay missing.
func (d *Deps) intentParser(ctx context.Context, state *models.TripState) (*models.TripState, error) {
	state.CurrentStep = &models.PlanStep{StepType: models.StepIntentParse, Title: "Parse intent and constraints"}
	state.NeedsUserInput = false
	state.ClarifyingQuestions = nil

	constraints := &models.TripConstraints{}
	raw, err := d.LLM.InvokeText(ctx, llm.Request{
		System:  intentSystemPrompt,
		User:    state.UserQuery,
		Context: logContext(state, NodeIntentParser),
		Tags:    map[string]string{"node": "intent_parser"},
	})
	if err != nil {
		state.AppendWarning("Intent LLM unavailable; extracting constraints heuristically.")
	} else if payload, ok := llm.ExtractJSONObject(raw); ok {
		if llm.ValidateConstraints(payload) == nil {
			constraints = constraintsFromPayload(payload)
		}
	}

	heuristicFill(constraints, state.UserQuery)
	applyOverrides(constraints, state.ConstraintOverrides)
	state.ConstraintOverrides = nil
	state.Constraints = constraints

	d.trace("intent_parse", map[string]any{
		"constraints":  constraints,
		"missing_core": constraints.MissingCore(),
	}, logContext(state, NodeIntentParser))

	if missing := constraints.MissingCore(); len(missing) > 0 {
		questions := clarifyingQuestions(constraints)
		if len(questions) > 4 {
			questions = questions[:4]
		}
		state.AskUser(questions...)
		return state, nil
	}
	return state, nil
}

func clarifyingQuestions(c *models.TripConstraints) []string {
	var qs []string
	if len(c.Destinations) == 0 {
		qs = append(qs, "Where do you want to travel (destination city/country)?")
	}
	if c.StartDate == "" {
		qs = append(qs, "What is your start date? (YYYY-MM-DD)")
	}
	if c.EndDate == "" {
		qs = append(qs, "What is your end date? (YYYY-MM-DD)")
	}
	if c.Origin == "" {
		qs = append(qs, "What city/airport are you departing from?")
	}
	if c.Travelers == 0 {
		qs = append(qs, "How many travelers?")
	}
	if c.BudgetUSD == 0 {
		qs = append(qs, "What is your approximate budget in USD (flight + lodging + activities)?")
	}
	return qs
}

// constraintsFromPayload coerces a schema-validated JSON object into
// typed constraints.
func constraintsFromPayload(payload map[string]any) *models.TripConstraints {
	c := &models.TripConstraints{}
	c.Origin = stringField(payload, "origin")
	c.Destinations = stringsField(payload, "destinations")
	c.StartDate = stringField(payload, "start_date")
	c.EndDate = stringField(payload, "end_date")
	c.BudgetUSD = floatField(payload, "budget_usd")
	c.Travelers = intField(payload, "travelers")
	c.Interests = stringsField(payload, "interests")
	c.Pace = stringField(payload, "pace")
	c.Notes = stringsField(payload, "notes")
	return c
}

// heuristicFill extracts still-missing fields from the raw query text.
// Every fill appends a provenance note.
func heuristicFill(c *models.TripConstraints, userQuery string) {
	dates := isoDateRE.FindAllString(userQuery, -1)
	if c.StartDate == "" && len(dates) >= 1 {
		c.StartDate = dates[0]
		c.AddNote("Filled start_date from user text (heuristic).")
	}
	if c.EndDate == "" && len(dates) >= 2 {
		c.EndDate = dates[1]
		c.AddNote("Filled end_date from user text (heuristic).")
	}
	if c.Origin == "" {
		if m := originRE.FindStringSubmatch(userQuery); m != nil {
			c.Origin = strings.TrimSpace(m[1])
			c.AddNote("Filled origin from user text (heuristic).")
		}
	}
	if len(c.Destinations) == 0 {
		if m := destinationRE.FindStringSubmatch(userQuery); m != nil {
			c.Destinations = []string{strings.TrimSpace(m[1])}
			c.AddNote("Filled destination from user text (heuristic).")
		}
	}
	if c.Travelers == 0 {
		if m := travelersRE.FindStringSubmatch(userQuery); m != nil {
			if n, err := strconv.Atoi(m[1]); err == nil && n > 0 {
				c.Travelers = n
				c.AddNote("Filled travelers from user text (heuristic).")
			}
		}
	}
	if c.BudgetUSD == 0 {
		if m := budgetRE.FindStringSubmatch(userQuery); m != nil {
			raw := strings.ReplaceAll(m[1], ",", "")
			if v, err := strconv.ParseFloat(raw, 64); err == nil && v > 0 {
				c.BudgetUSD = v
				c.AddNote("Filled budget from user text (heuristic).")
			}
		}
	}
	if c.Pace == "" {
		if m := paceRE.FindStringSubmatch(userQuery); m != nil {
			c.Pace = strings.ToLower(m[1])
			c.AddNote("Filled pace from user text (heuristic).")
		}
	}
	if len(c.Interests) == 0 {
		if m := interestsListRE.FindStringSubmatch(userQuery); m != nil {
			if interests := splitInterests(m[1]); len(interests) > 0 {
				c.Interests = interests
				c.AddNote("Filled interests from user text (heuristic).")
			}
		}
	}
}

func splitInterests(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	var parts []string
	if strings.Contains(raw, ",") {
		parts = strings.Split(raw, ",")
	} else {
		parts = strings.Fields(raw)
	}
	var out []string
	for _, p := range parts {
		p = strings.TrimSpace(strings.Trim(p, "."))
		if len(p) >= 4 && strings.EqualFold(p[:4], "and ") {
			p = strings.TrimSpace(p[4:])
		}
		if p == "" || strings.EqualFold(p, "and") {
			continue
		}
		out = append(out, p)
	}
	return out
}

// applyOverrides folds user-supplied answers into the constraints with
// best-effort type coercion.
func applyOverrides(c *models.TripConstraints, overrides map[string]any) {
	if len(overrides) == 0 {
		return
	}
	for key, value := range overrides {
		switch key {
		case "origin":
			if s := coerceString(value); s != "" {
				c.Origin = s
			}
		case "destinations":
			if list := coerceStrings(value); len(list) > 0 {
				c.Destinations = list
			}
		case "start_date":
			if s := coerceString(value); s != "" {
				c.StartDate = s
			}
		case "end_date":
			if s := coerceString(value); s != "" {
				c.EndDate = s
			}
		case "budget_usd":
			if v := coerceFloat(value); v > 0 {
				c.BudgetUSD = v
			}
		case "travelers":
			if n := coerceInt(value); n > 0 {
				c.Travelers = n
			}
		case "interests":
			if list := coerceStrings(value); len(list) > 0 {
				c.Interests = list
			}
		case "pace":
			if s := strings.ToLower(coerceString(value)); s == models.PaceRelaxed || s == models.PaceBalanced || s == models.PacePacked {
				c.Pace = s
			}
		}
	}
	c.AddNote("Applied user-provided overrides.")
}

func stringField(m map[string]any, key string) string {
	if s, ok := m[key].(string); ok {
		return strings.TrimSpace(s)
	}
	return ""
}

func stringsField(m map[string]any, key string) []string {
	raw, ok := m[key].([]any)
	if !ok {
		return nil
	}
	var out []string
	for _, item := range raw {
		if s, ok := item.(string); ok && strings.TrimSpace(s) != "" {
			out = append(out, strings.TrimSpace(s))
		}
	}
	return out
}

func floatField(m map[string]any, key string) float64 {
	switch v := m[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	}
	return 0
}

func intField(m map[string]any, key string) int {
	switch v := m[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	}
	return 0
}

func coerceString(v any) string {
	switch s := v.(type) {
	case string:
		return strings.TrimSpace(s)
	case fmt.Stringer:
		return strings.TrimSpace(s.String())
	}
	return ""
}

func coerceStrings(v any) []string {
	switch list := v.(type) {
	case []string:
		return list
	case []any:
		var out []string
		for _, item := range list {
			if s := coerceString(item); s != "" {
				out = append(out, s)
			}
		}
		return out
	case string:
		return splitInterests(list)
	}
	return nil
}

func coerceFloat(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	case string:
		raw := strings.ReplaceAll(strings.TrimPrefix(strings.TrimSpace(n), "$"), ",", "")
		if f, err := strconv.ParseFloat(raw, 64); err == nil {
			return f
		}
	}
	return 0
}

func coerceInt(v any) int {
	switch n := v.(type) {
	case int:
		return n
	case float64:
		return int(n)
	case string:
		if i, err := strconv.Atoi(strings.TrimSpace(n)); err == nil {
			return i
		}
	}
	return 0
}
