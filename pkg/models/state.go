package models

// TerminationReason records why the orchestration loop stopped.
type TerminationReason string

const (
	TerminationFinalized TerminationReason = "finalized"
	TerminationMaxIters  TerminationReason = "max_iters"
	TerminationAskedUser TerminationReason = "asked_user"
	TerminationError     TerminationReason = "error"
)

// Signal names watched by the telemetry controller for escalation.
const (
	SignalToolError         = "tool_error"
	SignalBadRetrieval      = "bad_retrieval"
	SignalNoResults         = "no_results"
	SignalTimeoutRisk       = "timeout_risk"
	SignalPlanningError     = "planning_error"
	SignalMemoryUnavailable = "memory_unavailable"
	SignalNodeError         = "node_error"
)

// Message is one chat-history entry carried across runs by the driver.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ContextHit is one memory search result attached to state.
type ContextHit struct {
	ID       string         `json:"id"`
	Text     string         `json:"text"`
	Metadata map[string]any `json:"metadata"`
	Distance float64        `json:"distance"`
}

// TripState is the single mutable record passed between graph nodes.
// Nodes mutate it in place; the driver creates it at run start and
// consumes it at the sink. All fields except RunID, UserID and UserQuery
// are optional at entry.
type TripState struct {
	RunID  string `json:"run_id"`
	UserID string `json:"user_id"`

	Messages  []Message `json:"messages,omitempty"`
	UserQuery string    `json:"user_query"`

	Constraints         *TripConstraints `json:"constraints,omitempty"`
	ConstraintOverrides map[string]any   `json:"constraint_overrides,omitempty"`

	ContextHits    []ContextHit    `json:"context_hits,omitempty"`
	GroundedPlaces *GroundedPlaces `json:"grounded_places,omitempty"`

	Plan             []PlanStep `json:"plan,omitempty"`
	CurrentNode      string     `json:"current_node,omitempty"`
	CurrentStep      *PlanStep  `json:"current_step,omitempty"`
	CurrentStepIndex int        `json:"current_step_index"`
	LoopIterations   int        `json:"loop_iterations"`

	ToolResults []ToolResult `json:"tool_results,omitempty"`

	Issues       []Issue `json:"issues,omitempty"`
	PendingIssue *Issue  `json:"pending_issue,omitempty"`
	NeedsTriage  bool    `json:"needs_triage,omitempty"`

	ValidationWarnings    []string               `json:"validation_warnings,omitempty"`
	ResolvedConflicts     []string               `json:"resolved_conflicts,omitempty"`
	PendingDisambiguation *PendingDisambiguation `json:"pending_disambiguation,omitempty"`
	PendingFixup          map[string]any         `json:"pending_fixup,omitempty"`
	PendingConflict       map[string]any         `json:"pending_conflict,omitempty"`

	NeedsUserInput      bool     `json:"needs_user_input,omitempty"`
	ClarifyingQuestions []string `json:"clarifying_questions,omitempty"`

	FinalAnswer       string   `json:"final_answer,omitempty"`
	ItineraryDayTitles []string `json:"itinerary_day_titles,omitempty"`
	ICSPath           string   `json:"ics_path,omitempty"`
	ICSEventCount     int      `json:"ics_event_count,omitempty"`

	Evaluation        *EvaluationResult `json:"evaluation,omitempty"`
	TerminationReason TerminationReason `json:"termination_reason,omitempty"`
	Error             string            `json:"error,omitempty"`

	Signals map[string]bool `json:"signals,omitempty"`
}

// EnsureConstraints returns the constraints, allocating empty ones first
// if needed.
func (s *TripState) EnsureConstraints() *TripConstraints {
	if s.Constraints == nil {
		s.Constraints = &TripConstraints{}
	}
	return s.Constraints
}

// SetSignal raises (or clears) a named signal flag.
func (s *TripState) SetSignal(name string, v bool) {
	if s.Signals == nil {
		s.Signals = make(map[string]bool)
	}
	s.Signals[name] = v
}

// Signal reports whether a named signal is raised.
func (s *TripState) Signal(name string) bool {
	return s.Signals[name]
}

// AnySignal reports whether any signal is raised. The selective telemetry
// mode escalates on the first true signal.
func (s *TripState) AnySignal() bool {
	for _, v := range s.Signals {
		if v {
			return true
		}
	}
	return false
}

// AppendIssue records an issue; issues are append-only.
func (s *TripState) AppendIssue(issue Issue) {
	s.Issues = append(s.Issues, issue)
}

// AppendWarning records a non-blocking validation warning.
func (s *TripState) AppendWarning(msg string) {
	s.ValidationWarnings = append(s.ValidationWarnings, msg)
}

// StepIndex returns the plan index of the step with the given id, or -1.
func (s *TripState) StepIndex(id string) int {
	for i := range s.Plan {
		if s.Plan[i].ID == id {
			return i
		}
	}
	return -1
}

// FirstPendingStep returns the index and a pointer to the first step whose
// status is pending, in plan order, or (-1, nil).
func (s *TripState) FirstPendingStep() (int, *PlanStep) {
	for i := range s.Plan {
		if s.Plan[i].Status == StepPending {
			return i, &s.Plan[i]
		}
	}
	return -1, nil
}

// AskUser puts the run into the asked_user terminal posture with the
// given clarifying questions.
func (s *TripState) AskUser(questions ...string) {
	s.ClarifyingQuestions = append(s.ClarifyingQuestions, questions...)
	s.NeedsUserInput = true
	s.TerminationReason = TerminationAskedUser
}
