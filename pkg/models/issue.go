package models

// IssueKind classifies what went wrong.
type IssueKind string

const (
	IssueValidationError IssueKind = "validation_error"
	IssueConflict        IssueKind = "conflict"
	IssueToolError       IssueKind = "tool_error"
	IssuePlanningError   IssueKind = "planning_error"
	IssueEvaluationFail  IssueKind = "evaluation_fail"
)

// IssueSeverity ranks how much an issue disrupts the run. Blocking issues
// stop the run pending user input; major and minor issues are triaged.
type IssueSeverity string

const (
	SeverityBlocking IssueSeverity = "blocking"
	SeverityMajor    IssueSeverity = "major"
	SeverityMinor    IssueSeverity = "minor"
)

// Issue is a structured problem record appended to state by nodes.
// Issues are append-only; triage resolves them by mutating the referenced
// step, never by removing the record.
type Issue struct {
	Kind             IssueKind      `json:"kind"`
	Severity         IssueSeverity  `json:"severity"`
	Node             string         `json:"node"`
	StepID           string         `json:"step_id,omitempty"`
	ToolName         string         `json:"tool_name,omitempty"`
	Message          string         `json:"message"`
	SuggestedActions []string       `json:"suggested_actions,omitempty"`
	Details          map[string]any `json:"details,omitempty"`
}
