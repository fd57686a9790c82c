package agent

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"
	"unicode"

	"github.com/tripwright/tripwright/pkg/models"
)

var (
	iataRE         = regexp.MustCompile(`^[A-Za-z]{3}$`)
	consonantRunRE = regexp.MustCompile(`(?i)[bcdfghjklmnpqrstvwxyz]{6,}`)
)

// validator grounds and sanity-checks the parsed constraints before
// planning: date validity, memory reconciliation, required core fields
// and geocode grounding of places. Blocking problems put the run into
// the asked_user posture.
func (d *Deps) validator(ctx context.Context, state *models.TripState) (*models.TripState, error) {
	state.CurrentStep = &models.PlanStep{StepType: models.StepPlanRefine, Title: "Validate inputs and resolve conflicts"}
	state.PendingDisambiguation = nil
	state.PendingConflict = nil
	state.PendingFixup = nil

	constraints := state.EnsureConstraints()
	userQuery := state.UserQuery

	// Dates still missing after intent parsing can come from the raw text.
	dates := isoDateRE.FindAllString(userQuery, -1)
	if constraints.StartDate == "" && len(dates) >= 1 {
		constraints.StartDate = dates[0]
		constraints.AddNote("Filled start_date from user text.")
	}
	if constraints.EndDate == "" && len(dates) >= 2 {
		constraints.EndDate = dates[1]
		constraints.AddNote("Filled end_date from user text.")
	}

	ds, dsOK := parseISODate(constraints.StartDate)
	de, deOK := parseISODate(constraints.EndDate)
	if constraints.StartDate != "" && !dsOK {
		d.askForDateFixup(state, "start_date", constraints.StartDate)
		return state, nil
	}
	if constraints.EndDate != "" && !deOK {
		d.askForDateFixup(state, "end_date", constraints.EndDate)
		return state, nil
	}
	if dsOK && deOK && de.Before(ds) {
		constraints.StartDate, constraints.EndDate = constraints.EndDate, constraints.StartDate
		constraints.AddNote("Swapped start/end dates because end_date was earlier than start_date.")
	}

	d.reconcileMemory(state, constraints)

	var missingCore []string
	if len(constraints.Destinations) == 0 {
		missingCore = append(missingCore, "destination")
	}
	if constraints.Origin == "" {
		missingCore = append(missingCore, "origin")
	}
	if constraints.StartDate == "" {
		missingCore = append(missingCore, "start date")
	}
	if constraints.EndDate == "" {
		missingCore = append(missingCore, "end date")
	}
	if len(missingCore) > 0 {
		state.AppendIssue(models.Issue{
			Kind:             models.IssueValidationError,
			Severity:         models.SeverityBlocking,
			Node:             NodeValidator,
			Message:          fmt.Sprintf("Missing core fields: %s.", strings.Join(missingCore, ", ")),
			SuggestedActions: []string{"provide_missing_core_fields"},
			Details:          map[string]any{"missing": missingCore},
		})
		state.PendingFixup = map[string]any{"kind": "missing_core", "missing": missingCore}
		limit := len(missingCore)
		if limit > 4 {
			limit = 4
		}
		questions := make([]string, 0, limit)
		for _, m := range missingCore[:limit] {
			questions = append(questions, fmt.Sprintf("Please provide %s.", m))
		}
		state.AskUser(questions...)
		return state, nil
	}

	grounded := &models.GroundedPlaces{}
	if constraints.Origin != "" {
		place, stop := d.groundPlace(ctx, state, "origin", constraints.Origin)
		if stop {
			return state, nil
		}
		grounded.Origin = place
	}
	for _, dest := range constraints.Destinations {
		dest = strings.TrimSpace(dest)
		if dest == "" {
			continue
		}
		place, stop := d.groundPlace(ctx, state, "destinations", dest)
		if stop {
			return state, nil
		}
		if place != nil {
			grounded.Destinations = append(grounded.Destinations, *place)
		}
	}

	state.GroundedPlaces = grounded
	state.NeedsUserInput = false
	state.ClarifyingQuestions = nil
	d.trace("validated_constraints", map[string]any{
		"constraints":     constraints,
		"grounded_places": grounded,
		"warnings":        state.ValidationWarnings,
	}, logContext(state, NodeValidator))
	return state, nil
}

func (d *Deps) askForDateFixup(state *models.TripState, field, value string) {
	display := strings.ReplaceAll(field, "_", " ")
	state.AppendIssue(models.Issue{
		Kind:             models.IssueValidationError,
		Severity:         models.SeverityBlocking,
		Node:             NodeValidator,
		Message:          fmt.Sprintf("Invalid %s '%s'. Expected YYYY-MM-DD.", field, value),
		SuggestedActions: []string{"provide_" + field + "_iso"},
	})
	state.PendingFixup = map[string]any{"field": field}
	state.AskUser(fmt.Sprintf("Your %s looks invalid. Please provide %s as YYYY-MM-DD.", display, display))
}

// reconcileMemory folds remembered origin/interests into the
// constraints, resolving conflicts deterministically and never asking
// the user.
func (d *Deps) reconcileMemory(state *models.TripState, constraints *models.TripConstraints) {
	memOrigin, memInterests := memoryProfileFields(state.ContextHits)

	if memOrigin != "" {
		switch {
		case constraints.Origin == "":
			constraints.Origin = memOrigin
			constraints.AddNote("Filled origin from memory.")
		case !strings.EqualFold(strings.TrimSpace(constraints.Origin), strings.TrimSpace(memOrigin)):
			if queryMentions(state.UserQuery, constraints.Origin) {
				state.AppendWarning(fmt.Sprintf(
					"Saved origin '%s' differs from request '%s'; using request origin.", memOrigin, constraints.Origin))
			} else {
				state.AppendWarning(fmt.Sprintf(
					"Saved origin '%s' differs from parsed origin '%s'; using saved origin.", memOrigin, constraints.Origin))
				constraints.Origin = memOrigin
				constraints.AddNote("Overrode origin with memory (request did not explicitly specify origin).")
			}
		}
	}

	if len(memInterests) > 0 {
		if len(constraints.Interests) == 0 {
			constraints.Interests = memInterests
			constraints.AddNote("Filled interests from memory.")
		} else if !sameFoldSet(constraints.Interests, memInterests) {
			state.AppendWarning(fmt.Sprintf(
				"Saved interests %v differ from request %v; using request interests.",
				sortedLower(memInterests), sortedLower(constraints.Interests)))
		}
	}
}

// groundPlace resolves one place via IATA bypass or the geocoder. The
// second return value is true when the run must stop for user input.
func (d *Deps) groundPlace(ctx context.Context, state *models.TripState, field, raw string) (*models.PlaceCandidate, bool) {
	if iataRE.MatchString(strings.TrimSpace(raw)) {
		return &models.PlaceCandidate{IATA: strings.ToUpper(strings.TrimSpace(raw))}, false
	}
	if d.Geocode == nil {
		return &models.PlaceCandidate{Name: raw}, false
	}

	g, err := d.Geocode(ctx, raw)
	if err != nil {
		state.AppendWarning(fmt.Sprintf("Unable to geocode %s '%s': %v", fieldNoun(field), raw, err))
		if suspiciousPlaceName(raw) {
			state.AppendIssue(models.Issue{
				Kind:             models.IssueValidationError,
				Severity:         models.SeverityBlocking,
				Node:             NodeValidator,
				Message:          fmt.Sprintf("Couldn't validate %s '%s' (geocoding unavailable) and it looks invalid.", fieldNoun(field), raw),
				SuggestedActions: []string{"provide_valid_" + fieldNoun(field)},
				Details:          map[string]any{fieldNoun(field): raw, "error": err.Error()},
			})
			state.AskUser(fmt.Sprintf(
				"I couldn't validate your %s '%s'. Please provide a real place (e.g. 'San Francisco, US' or an IATA code like SFO).",
				fieldNoun(field), raw))
			return nil, true
		}
		return &models.PlaceCandidate{Name: raw}, false
	}

	if g.Ambiguous {
		options, candidates := disambiguationOptions(g.Candidates)
		state.AppendIssue(models.Issue{
			Kind:             models.IssueValidationError,
			Severity:         models.SeverityBlocking,
			Node:             NodeValidator,
			Message:          fmt.Sprintf("%s '%s' is ambiguous.", titleWord(fieldNoun(field)), raw),
			SuggestedActions: []string{"disambiguate_" + fieldNoun(field)},
			Details:          map[string]any{"candidates": candidates},
		})
		state.PendingDisambiguation = &models.PendingDisambiguation{
			Field:      field,
			RawValue:   raw,
			Options:    options,
			Candidates: candidates,
		}
		numbered := make([]string, 0, len(options))
		for i, o := range options {
			numbered = append(numbered, fmt.Sprintf("%d) %s", i+1, o))
		}
		state.AskUser(fmt.Sprintf("Your %s '%s' is ambiguous. Reply with 1-%d. Options: %s",
			fieldNoun(field), raw, len(options), strings.Join(numbered, "; ")))
		return nil, true
	}

	if g.Best == nil && len(g.Candidates) == 0 {
		state.AppendIssue(models.Issue{
			Kind:             models.IssueValidationError,
			Severity:         models.SeverityBlocking,
			Node:             NodeValidator,
			Message:          fmt.Sprintf("%s '%s' could not be found.", titleWord(fieldNoun(field)), raw),
			SuggestedActions: []string{"provide_valid_" + fieldNoun(field)},
			Details:          map[string]any{fieldNoun(field): raw},
		})
		state.PendingFixup = map[string]any{"field": field}
		state.AskUser(fmt.Sprintf(
			"I couldn't find your %s '%s'. Please provide a real place (e.g. 'Bangkok, Thailand').", fieldNoun(field), raw))
		return nil, true
	}

	if g.AutopickedReason != "" {
		state.AppendWarning(fmt.Sprintf("Auto-picked '%s' for '%s' (%s).", g.Best.Name, raw, g.AutopickedReason))
	}
	return g.Best, false
}

func disambiguationOptions(candidates []models.PlaceCandidate) ([]string, []models.PlaceCandidate) {
	limit := len(candidates)
	if limit > 3 {
		limit = 3
	}
	top := candidates[:limit]
	options := make([]string, 0, limit)
	for _, c := range top {
		options = append(options, strings.TrimSpace(fmt.Sprintf("%s, %s %s", c.Name, c.Admin1, c.Country)))
	}
	return options, top
}

func fieldNoun(field string) string {
	if field == "destinations" {
		return "destination"
	}
	return field
}

func memoryProfileFields(hits []models.ContextHit) (origin string, interests []string) {
	for _, hit := range hits {
		docType, _ := hit.Metadata["type"].(string)
		lower := strings.ToLower(hit.Text)
		if docType == "profile" && origin == "" && strings.HasPrefix(lower, "home origin:") {
			origin = strings.TrimSpace(hit.Text[strings.Index(hit.Text, ":")+1:])
		}
		if docType == "preference" && interests == nil && strings.HasPrefix(lower, "user interests:") {
			raw := hit.Text[strings.Index(hit.Text, ":")+1:]
			for _, part := range strings.Split(raw, ",") {
				if p := strings.TrimSpace(part); p != "" {
					interests = append(interests, p)
				}
			}
		}
	}
	return origin, interests
}

func queryMentions(userQuery, value string) bool {
	if value == "" {
		return false
	}
	return strings.Contains(strings.ToLower(userQuery), strings.ToLower(value))
}

func sameFoldSet(a, b []string) bool {
	as := map[string]struct{}{}
	for _, x := range a {
		if x = strings.TrimSpace(x); x != "" {
			as[strings.ToLower(x)] = struct{}{}
		}
	}
	bs := map[string]struct{}{}
	for _, x := range b {
		if x = strings.TrimSpace(x); x != "" {
			bs[strings.ToLower(x)] = struct{}{}
		}
	}
	if len(as) != len(bs) {
		return false
	}
	for k := range as {
		if _, ok := bs[k]; !ok {
			return false
		}
	}
	return true
}

func sortedLower(list []string) []string {
	out := make([]string, 0, len(list))
	for _, x := range list {
		if x = strings.TrimSpace(x); x != "" {
			out = append(out, strings.ToLower(x))
		}
	}
	sort.Strings(out)
	return out
}

func titleWord(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func parseISODate(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// suspiciousPlaceName flags inputs that are likely gibberish. Used only
// when geocoding is unavailable, to avoid confidently planning a trip to
// a keyboard mash.
func suspiciousPlaceName(name string) bool {
	s := strings.TrimSpace(name)
	if s == "" {
		return true
	}
	for _, r := range s {
		if unicode.IsDigit(r) {
			return true
		}
	}
	if consonantRunRE.MatchString(s) {
		return true
	}
	tokenLike := !strings.ContainsAny(s, " ,-")
	if tokenLike && len(s) >= 10 {
		letters := 0
		vowels := 0
		for _, r := range strings.ToLower(s) {
			if unicode.IsLetter(r) {
				letters++
				if strings.ContainsRune("aeiou", r) {
					vowels++
				}
			}
		}
		if letters > 0 && float64(vowels)/float64(letters) < 0.20 {
			return true
		}
	}
	return false
}
