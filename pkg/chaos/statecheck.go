package chaos

import (
	"fmt"

	"github.com/tripwright/tripwright/pkg/models"
)

var validStepStatuses = map[models.StepStatus]struct{}{
	models.StepPending: {},
	models.StepDone:    {},
	models.StepBlocked: {},
}

// ConsistencyErrors checks a post-run state for structural damage. A
// healthy run returns an empty list. The index may equal len(plan)
// after termination; anything beyond that is an error.
func ConsistencyErrors(s *models.TripState) []string {
	var errs []string

	seen := make(map[string]struct{}, len(s.Plan))
	for _, step := range s.Plan {
		if step.ID == "" {
			errs = append(errs, "plan step with empty id")
			continue
		}
		if _, dup := seen[step.ID]; dup {
			errs = append(errs, fmt.Sprintf("duplicate plan step id: %s", step.ID))
		}
		seen[step.ID] = struct{}{}
		if _, ok := validStepStatuses[step.Status]; !ok {
			errs = append(errs, fmt.Sprintf("invalid step status %q on step %s", step.Status, step.ID))
		}
	}

	if s.CurrentStepIndex < 0 || s.CurrentStepIndex > len(s.Plan) {
		errs = append(errs, fmt.Sprintf("current_step_index %d out of range [0, %d]", s.CurrentStepIndex, len(s.Plan)))
	}
	if s.CurrentStep != nil && s.CurrentStep.ID != "" && s.CurrentStepIndex < len(s.Plan) {
		if s.Plan[s.CurrentStepIndex].ID != s.CurrentStep.ID {
			errs = append(errs, "current_step does not match plan[current_step_index]")
		}
	}

	for _, r := range s.ToolResults {
		if _, ok := seen[r.StepID]; !ok {
			errs = append(errs, fmt.Sprintf("tool result references unknown step: %s", r.StepID))
		}
	}

	if s.NeedsUserInput {
		if len(s.ClarifyingQuestions) == 0 {
			errs = append(errs, "needs_user_input without clarifying questions")
		}
		if s.TerminationReason != models.TerminationAskedUser {
			errs = append(errs, fmt.Sprintf("needs_user_input with termination_reason %q", s.TerminationReason))
		}
	}

	return errs
}
