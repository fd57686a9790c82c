package agent

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/tripwright/tripwright/pkg/llm"
	"github.com/tripwright/tripwright/pkg/models"
	"github.com/tripwright/tripwright/pkg/tools"
)

const maxPlanSteps = 12

var allowedPlanTools = map[string]struct{}{
	tools.ToolFlightsSearchLinks: {},
	tools.ToolHotelsSearchLinks:  {},
	tools.ToolThingsToDoLinks:    {},
	tools.ToolWeatherSummary:     {},
	tools.ToolDistanceAndTime:    {},
}

var allowedPlanStepTypes = map[models.StepType]struct{}{
	models.StepRetrieveContext: {},
	models.StepToolCall:        {},
	models.StepSynthesize:      {},
}

const plannerSystemPrompt = `You are the planning brain for a links-only travel agent.

You MUST:
1) Decompose the user's travel request into steps.
2) Select tools (from the allowlist) and their arguments.
3) Optionally add RETRIEVE_CONTEXT steps if additional memory retrieval is needed.

RULES:
- No booking. No live prices/availability. Provide search links and an itinerary.
- Output MUST be only valid JSON matching the schema.
- Keep the plan short (<= 12 steps).

Allowed step types: RETRIEVE_CONTEXT, TOOL_CALL, SYNTHESIZE
Allowed tools:
- flights_search_links(origin, destination, start_date)
- hotels_search_links(destination, start_date, end_date, neighborhood=null)
- things_to_do_links(destination, interests=list)
- weather_summary(destination, start_date, end_date)
- distance_and_time(origin, destination, mode="driving")

Schema:
{
  "plan": [
    {
      "title": "string",
      "step_type": "RETRIEVE_CONTEXT|TOOL_CALL|SYNTHESIZE",
      "tool_name": "string|null",
      "tool_args": { ... } | null,
      "notes": "short rationale (1-2 sentences)"
    }
  ]
}
`

// brainPlanner asks the LLM to decompose the request into tool steps.
// Invalid or empty output falls back to the deterministic planner.
func (d *Deps) brainPlanner(ctx context.Context, state *models.TripState) (*models.TripState, error) {
	state.CurrentStep = &models.PlanStep{StepType: models.StepPlanDraft, Title: "Brain planner: decompose and select tools"}

	prompt := map[string]any{
		"user_query":         state.UserQuery,
		"constraints":        state.Constraints,
		"grounded_places":    state.GroundedPlaces,
		"context_hits_count": len(state.ContextHits),
		"policy": map[string]any{
			"links_only":     true,
			"no_live_prices": true,
		},
	}
	promptJSON, _ := json.Marshal(prompt)

	var steps []models.PlanStep
	raw, err := d.LLM.InvokeText(ctx, llm.Request{
		System:  plannerSystemPrompt,
		User:    string(promptJSON),
		Context: logContext(state, NodeBrainPlanner),
		Tags:    map[string]string{"node": "brain_planner"},
	})
	if err == nil {
		if payload, ok := llm.ExtractJSONObject(raw); ok && llm.ValidatePlan(payload) == nil {
			if items, ok := payload["plan"].([]any); ok {
				steps = planStepsFromItems(items)
			}
		}
	}

	if len(steps) == 0 {
		state.SetSignal(models.SignalPlanningError, true)
		state.AppendIssue(models.Issue{
			Kind:             models.IssuePlanningError,
			Severity:         models.SeverityMajor,
			Node:             NodeBrainPlanner,
			Message:          "Brain planner returned invalid or empty plan JSON; falling back to deterministic planner.",
			SuggestedActions: []string{"fallback_planner"},
		})
		d.trace("plan_fallback", map[string]any{"reason": "invalid_plan_json"}, logContext(state, NodeBrainPlanner))
		return d.fallbackPlanner(state), nil
	}

	steps = expandMultiDestination(steps, state.EnsureConstraints())
	state.Plan = steps
	state.CurrentStepIndex = 0
	if state.ToolResults == nil {
		state.ToolResults = []models.ToolResult{}
	}
	d.trace("plan", map[string]any{"steps": len(steps)}, logContext(state, NodeBrainPlanner))
	return state, nil
}

// planStepsFromItems filters schema-validated plan items down to the
// allowed step types and tools, capping length.
func planStepsFromItems(items []any) []models.PlanStep {
	var steps []models.PlanStep
	for _, item := range items {
		if len(steps) >= maxPlanSteps {
			break
		}
		it, ok := item.(map[string]any)
		if !ok {
			continue
		}
		stepType := models.StepType(stringField(it, "step_type"))
		if _, ok := allowedPlanStepTypes[stepType]; !ok {
			continue
		}
		toolName := stringField(it, "tool_name")
		if stepType == models.StepToolCall {
			if _, ok := allowedPlanTools[toolName]; !ok {
				continue
			}
		} else {
			toolName = ""
		}
		title := stringField(it, "title")
		if title == "" {
			title = "Step"
		}
		step := models.NewPlanStep(title, stepType)
		step.ToolName = toolName
		if args, ok := it["tool_args"].(map[string]any); ok {
			step.ToolArgs = args
		}
		step.Notes = stringField(it, "notes")
		steps = append(steps, step)
	}
	return steps
}

// expandMultiDestination replaces a single flights or hotels step with
// one copy per destination when the plan covers fewer destinations than
// the constraints name. Ordering of surrounding steps is preserved.
func expandMultiDestination(steps []models.PlanStep, constraints *models.TripConstraints) []models.PlanStep {
	if len(constraints.Destinations) <= 1 {
		return steps
	}
	for _, toolName := range []string{tools.ToolFlightsSearchLinks, tools.ToolHotelsSearchLinks} {
		unique := map[string]struct{}{}
		firstIdx := -1
		for i, s := range steps {
			if s.StepType != models.StepToolCall || s.ToolName != toolName {
				continue
			}
			if firstIdx < 0 {
				firstIdx = i
			}
			if dest := stringField(s.ToolArgs, "destination"); dest != "" {
				unique[dest] = struct{}{}
			}
		}
		if firstIdx < 0 || len(unique) >= len(constraints.Destinations) {
			continue
		}

		template := steps[firstIdx]
		expanded := make([]models.PlanStep, 0, len(constraints.Destinations))
		for _, dest := range constraints.Destinations {
			copyStep := models.NewPlanStep(fmt.Sprintf("%s (%s)", template.Title, dest), models.StepToolCall)
			copyStep.ToolName = toolName
			copyStep.Notes = template.Notes
			args := make(map[string]any, len(template.ToolArgs)+1)
			for k, v := range template.ToolArgs {
				args[k] = v
			}
			args["destination"] = dest
			copyStep.ToolArgs = args
			expanded = append(expanded, copyStep)
		}

		out := make([]models.PlanStep, 0, len(steps)+len(expanded)-1)
		out = append(out, steps[:firstIdx]...)
		out = append(out, expanded...)
		out = append(out, steps[firstIdx+1:]...)
		steps = out
		if len(steps) > maxPlanSteps {
			steps = steps[:maxPlanSteps]
		}
	}
	return steps
}

// fallbackPlanner emits the deterministic links-only plan for the
// primary destination.
func (d *Deps) fallbackPlanner(state *models.TripState) *models.TripState {
	state.CurrentStep = &models.PlanStep{StepType: models.StepPlanDraft, Title: "Draft plan steps"}
	constraints := state.EnsureConstraints()
	destination := constraints.PrimaryDestination()

	var steps []models.PlanStep
	if destination != "" {
		flights := models.NewPlanStep("Get flight search links", models.StepToolCall)
		flights.ToolName = tools.ToolFlightsSearchLinks
		flights.ToolArgs = map[string]any{
			"origin":      constraints.Origin,
			"destination": destination,
			"start_date":  constraints.StartDate,
		}
		hotels := models.NewPlanStep("Get hotel search links", models.StepToolCall)
		hotels.ToolName = tools.ToolHotelsSearchLinks
		hotels.ToolArgs = map[string]any{
			"destination": destination,
			"start_date":  constraints.StartDate,
			"end_date":    constraints.EndDate,
		}
		things := models.NewPlanStep("Get things-to-do discovery links", models.StepToolCall)
		things.ToolName = tools.ToolThingsToDoLinks
		things.ToolArgs = map[string]any{
			"destination": destination,
			"interests":   constraints.Interests,
		}
		weather := models.NewPlanStep("Get weather summary", models.StepToolCall)
		weather.ToolName = tools.ToolWeatherSummary
		weather.ToolArgs = map[string]any{
			"destination": destination,
			"start_date":  constraints.StartDate,
			"end_date":    constraints.EndDate,
		}
		steps = append(steps, flights, hotels, things, weather)
	}
	steps = append(steps, models.NewPlanStep("Synthesize itinerary and recommendations", models.StepSynthesize))

	steps = expandMultiDestination(steps, constraints)
	state.Plan = steps
	state.ToolResults = []models.ToolResult{}
	state.CurrentStepIndex = 0
	return state
}
