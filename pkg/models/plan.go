package models

import "github.com/google/uuid"

// StepType identifies the kind of work a plan step performs.
// RETRIEVE_CONTEXT, TOOL_CALL and SYNTHESIZE are plannable; the remaining
// values are display-only markers used by the CLI status view.
type StepType string

const (
	StepAskUser         StepType = "ASK_USER"
	StepIntentParse     StepType = "INTENT_PARSE"
	StepRetrieveContext StepType = "RETRIEVE_CONTEXT"
	StepPlanDraft       StepType = "PLAN_DRAFT"
	StepPlanRefine      StepType = "PLAN_REFINE"
	StepToolCall        StepType = "TOOL_CALL"
	StepSynthesize      StepType = "SYNTHESIZE"
	StepEvaluateStep    StepType = "EVALUATE_STEP"
	StepEvaluateFinal   StepType = "EVALUATE_FINAL"
	StepRespond         StepType = "RESPOND"
	StepWriteMemory     StepType = "WRITE_MEMORY"
	StepExportICS       StepType = "EXPORT_ICS"
)

// StepStatus is the lifecycle state of a plan step. Transitions are
// monotonic: pending -> done or pending -> blocked, never out of a
// terminal state.
type StepStatus string

const (
	StepPending StepStatus = "pending"
	StepDone    StepStatus = "done"
	StepBlocked StepStatus = "blocked"
)

// PlanStep is an atomic unit of work in the agent's plan.
type PlanStep struct {
	ID       string         `json:"id"`
	Title    string         `json:"title"`
	StepType StepType       `json:"step_type"`
	ToolName string         `json:"tool_name,omitempty"`
	ToolArgs map[string]any `json:"tool_args,omitempty"`
	Status   StepStatus     `json:"status"`
	Notes    string         `json:"notes,omitempty"`
}

// NewPlanStep creates a pending step with a fresh id.
func NewPlanStep(title string, stepType StepType) PlanStep {
	return PlanStep{
		ID:       uuid.New().String(),
		Title:    title,
		StepType: stepType,
		Status:   StepPending,
	}
}

// MarkDone transitions the step to done. Terminal states are sticky; a
// step already done or blocked is left untouched.
func (s *PlanStep) MarkDone(note string) {
	if s.Status != StepPending {
		return
	}
	s.Status = StepDone
	if note != "" {
		s.Notes = note
	}
}

// MarkBlocked transitions the step to blocked. No-op unless pending.
func (s *PlanStep) MarkBlocked(note string) {
	if s.Status != StepPending {
		return
	}
	s.Status = StepBlocked
	if note != "" {
		s.Notes = note
	}
}

// ToolResult records one successful tool invocation for a plan step.
type ToolResult struct {
	StepID   string            `json:"step_id"`
	ToolName string            `json:"tool_name"`
	Data     map[string]any    `json:"data"`
	Summary  string            `json:"summary"`
	Links    []map[string]string `json:"links"`
}
