package agent

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/tripwright/tripwright/pkg/memory"
	"github.com/tripwright/tripwright/pkg/models"
)

// memoryWriter persists what later runs should remember: stable user
// preferences and a trip summary in the user scope, raw tool outputs in
// the session scope. Write failures degrade to warnings; the run always
// ends normally past this node.
func (d *Deps) memoryWriter(ctx context.Context, state *models.TripState) (*models.TripState, error) {
	state.CurrentStep = &models.PlanStep{StepType: models.StepWriteMemory, Title: "Write memory summaries"}
	if d.Memory == nil {
		state.AppendWarning("Memory unavailable; skipping memory writes.")
		return state, nil
	}
	constraints := state.EnsureConstraints()

	if len(constraints.Interests) > 0 {
		d.writeUserDoc(ctx, state, "User interests: "+strings.Join(constraints.Interests, ", "), memory.DocPreference)
	}
	if constraints.Origin != "" {
		d.writeUserDoc(ctx, state, "Home origin: "+constraints.Origin, memory.DocProfile)
	}

	summary := map[string]any{
		"query":       state.UserQuery,
		"constraints": constraints,
		"evaluation":  state.Evaluation,
	}
	if summaryJSON, err := json.Marshal(summary); err == nil {
		d.writeUserDoc(ctx, state, "Trip summary: "+string(summaryJSON), memory.DocTripSummary)
	}

	for _, tr := range state.ToolResults {
		trJSON, err := json.Marshal(tr)
		if err != nil {
			continue
		}
		if _, err := d.Memory.AddSession(ctx, memory.Entry{
			Text:    "Tool output: " + string(trJSON),
			RunID:   state.RunID,
			DocType: memory.DocToolOutput,
		}); err != nil {
			state.AppendWarning("Memory write failed: " + err.Error())
			continue
		}
		if d.Metrics != nil {
			d.Metrics.Inc("memory_written_session_docs", 1)
		}
	}
	return state, nil
}

func (d *Deps) writeUserDoc(ctx context.Context, state *models.TripState, text, docType string) {
	if _, err := d.Memory.AddUser(ctx, memory.Entry{
		Text:    text,
		RunID:   state.RunID,
		DocType: docType,
	}); err != nil {
		state.AppendWarning("Memory write failed: " + err.Error())
		return
	}
	if d.Metrics != nil {
		d.Metrics.Inc("memory_written_user_docs", 1)
	}
}
