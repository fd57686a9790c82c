package models

// Overall evaluation statuses.
const (
	EvalGood      = "good"
	EvalNeedsWork = "needs_work"
	EvalFailed    = "failed"
)

// EvaluationResult is the outcome of the final answer evaluation:
// boolean hard gates plus a 0-5 rubric per axis. It never changes the
// run's control flow.
type EvaluationResult struct {
	HardGates     map[string]bool    `json:"hard_gates"`
	RubricScores  map[string]float64 `json:"rubric_scores"`
	OverallStatus string             `json:"overall_status"`
	Notes         []string           `json:"notes,omitempty"`
}

// GatesPass reports whether every hard gate is true.
func (e *EvaluationResult) GatesPass() bool {
	for _, ok := range e.HardGates {
		if !ok {
			return false
		}
	}
	return true
}

// RubricAverage returns the mean rubric score, 0 when empty.
func (e *EvaluationResult) RubricAverage() float64 {
	if len(e.RubricScores) == 0 {
		return 0
	}
	var sum float64
	for _, v := range e.RubricScores {
		sum += v
	}
	return sum / float64(len(e.RubricScores))
}
