package telemetry

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// FailureCategory classifies where a failure originated.
type FailureCategory string

const (
	CategoryLLM        FailureCategory = "llm"
	CategoryTool       FailureCategory = "tool"
	CategoryMemory     FailureCategory = "memory"
	CategoryNetwork    FailureCategory = "network"
	CategoryValidation FailureCategory = "validation"
	CategoryState      FailureCategory = "state"
	CategoryExport     FailureCategory = "export"
	CategoryEvaluation FailureCategory = "evaluation"
	CategoryUnknown    FailureCategory = "unknown"
)

// FailureSeverity ranks how badly a failure hurt the run.
type FailureSeverity string

const (
	SeverityLow      FailureSeverity = "low"
	SeverityMedium   FailureSeverity = "medium"
	SeverityHigh     FailureSeverity = "high"
	SeverityCritical FailureSeverity = "critical"
)

// FailureRecord captures one failure with enough context to reconstruct the
// run afterwards.
type FailureRecord struct {
	FailureID      string          `json:"failure_id"`
	Timestamp      string          `json:"timestamp"`
	RunID          string          `json:"run_id"`
	UserID         string          `json:"user_id"`
	Category       FailureCategory `json:"category"`
	Severity       FailureSeverity `json:"severity"`
	GraphNode      string          `json:"graph_node"`
	StepID         string          `json:"step_id,omitempty"`
	StepType       string          `json:"step_type,omitempty"`
	StepTitle      string          `json:"step_title,omitempty"`
	ErrorType      string          `json:"error_type"`
	ErrorMessage   string          `json:"error_message"`
	ErrorTraceback string          `json:"error_traceback,omitempty"`
	ToolName       string          `json:"tool_name,omitempty"`
	LLMModel       string          `json:"llm_model,omitempty"`
	LatencyMS      float64         `json:"latency_ms"`
	AttemptNumber  int             `json:"attempt_number"`
	WasRecovered   bool            `json:"was_recovered"`
	RecoveryAction string          `json:"recovery_action,omitempty"`
	ContextData    map[string]any  `json:"context_data"`
	Tags           []string        `json:"tags"`
}

// Failure describes a failure being recorded. Category, Severity, GraphNode,
// ErrorType and ErrorMessage identify the event; the rest is optional
// context.
type Failure struct {
	Category     FailureCategory
	Severity     FailureSeverity
	GraphNode    string
	ErrorType    string
	ErrorMessage string
	StepID       string
	StepType     string
	StepTitle    string
	ToolName     string
	LLMModel     string
	LatencyMS    float64
	Traceback    string
	ContextData  map[string]any
	Tags         []string
}

// FailureSummary aggregates one run's failures.
type FailureSummary struct {
	RunID         string         `json:"run_id"`
	TotalFailures int            `json:"total_failures"`
	BySeverity    map[string]int `json:"by_severity"`
	ByCategory    map[string]int `json:"by_category"`
	ByNode        map[string]int `json:"by_node"`
	RecoveryRate  float64        `json:"recovery_rate"`
	LogFile       string         `json:"log_file"`
}

// FailureTracker is the per-run failure registry. Every record is appended
// to logs/failures_<run>.jsonl and mirrored as a condensed entry into
// logs/combined_<run>.jsonl, where normal log events land as well.
type FailureTracker struct {
	mu           sync.Mutex
	runID        string
	userID       string
	failureCount int
	failures     []*FailureRecord
	failurePath  string
	combinedPath string
}

// NewFailureTracker creates the failure registry for one run.
func NewFailureTracker(runtimeDir, runID, userID string) (*FailureTracker, error) {
	logsDir := filepath.Join(runtimeDir, "logs")
	if err := os.MkdirAll(logsDir, 0o755); err != nil {
		return nil, fmt.Errorf("create logs dir: %w", err)
	}
	return &FailureTracker{
		runID:        runID,
		userID:       userID,
		failurePath:  filepath.Join(logsDir, fmt.Sprintf("failures_%s.jsonl", runID)),
		combinedPath: filepath.Join(logsDir, fmt.Sprintf("combined_%s.jsonl", runID)),
	}, nil
}

// RunID returns the run this tracker belongs to.
func (t *FailureTracker) RunID() string { return t.runID }

// UserID returns the user the run belongs to.
func (t *FailureTracker) UserID() string { return t.userID }

// FailureLogPath returns the per-run failure log location.
func (t *FailureTracker) FailureLogPath() string { return t.failurePath }

// CombinedLogPath returns the per-run combined log location.
func (t *FailureTracker) CombinedLogPath() string { return t.combinedPath }

// RecordFailure registers a failure and writes it to the failure and
// combined logs. The returned record can later be passed to MarkRecovered.
func (t *FailureTracker) RecordFailure(f Failure) *FailureRecord {
	t.mu.Lock()
	defer t.mu.Unlock()

	if f.Category == "" {
		f.Category = CategoryUnknown
	}
	if f.Severity == "" {
		f.Severity = SeverityMedium
	}
	rec := &FailureRecord{
		FailureID:      fmt.Sprintf("failure_%s_%03d", t.runID, t.failureCount),
		Timestamp:      utcNow(),
		RunID:          t.runID,
		UserID:         t.userID,
		Category:       f.Category,
		Severity:       f.Severity,
		GraphNode:      f.GraphNode,
		StepID:         f.StepID,
		StepType:       f.StepType,
		StepTitle:      f.StepTitle,
		ErrorType:      f.ErrorType,
		ErrorMessage:   f.ErrorMessage,
		ErrorTraceback: f.Traceback,
		ToolName:       f.ToolName,
		LLMModel:       f.LLMModel,
		LatencyMS:      f.LatencyMS,
		AttemptNumber:  1,
		ContextData:    f.ContextData,
		Tags:           f.Tags,
	}
	if rec.ContextData == nil {
		rec.ContextData = map[string]any{}
	}
	if rec.Tags == nil {
		rec.Tags = []string{}
	}
	t.failureCount++
	t.failures = append(t.failures, rec)
	t.writeFailureLocked(rec, "failure_recorded")
	return rec
}

// MarkRecovered flags a previously recorded failure as recovered and logs
// the recovery action taken.
func (t *FailureTracker) MarkRecovered(rec *FailureRecord, recoveryAction string) {
	if rec == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	rec.WasRecovered = true
	rec.RecoveryAction = recoveryAction
	t.writeFailureLocked(rec, "failure_recovered")
}

// TotalFailures returns the number of recorded failures.
func (t *FailureTracker) TotalFailures() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.failures)
}

// Summary aggregates recorded failures by severity, category and node.
// RecoveryRate is a percentage.
func (t *FailureTracker) Summary() FailureSummary {
	t.mu.Lock()
	defer t.mu.Unlock()

	s := FailureSummary{
		RunID:         t.runID,
		TotalFailures: len(t.failures),
		BySeverity:    map[string]int{},
		ByCategory:    map[string]int{},
		ByNode:        map[string]int{},
		LogFile:       t.failurePath,
	}
	recovered := 0
	for _, f := range t.failures {
		s.BySeverity[string(f.Severity)]++
		s.ByCategory[string(f.Category)]++
		s.ByNode[f.GraphNode]++
		if f.WasRecovered {
			recovered++
		}
	}
	if len(t.failures) > 0 {
		s.RecoveryRate = float64(recovered) / float64(len(t.failures)) * 100
	}
	return s
}

// GenerateReport renders a console-readable failure report for the run.
func (t *FailureTracker) GenerateReport() string {
	summary := t.Summary()

	t.mu.Lock()
	timeline := make([]*FailureRecord, len(t.failures))
	copy(timeline, t.failures)
	t.mu.Unlock()
	sort.SliceStable(timeline, func(i, j int) bool {
		return timeline[i].Timestamp < timeline[j].Timestamp
	})

	banner := strings.Repeat("=", 70)
	var b strings.Builder
	fmt.Fprintf(&b, "\n%s\n", banner)
	b.WriteString("FAILURE REPORT\n")
	fmt.Fprintf(&b, "%s\n", banner)
	fmt.Fprintf(&b, "Run ID: %s\n", t.runID)
	fmt.Fprintf(&b, "User ID: %s\n", t.userID)
	fmt.Fprintf(&b, "Total Failures: %d\n\n", summary.TotalFailures)

	b.WriteString("SUMMARY BY SEVERITY:\n")
	for _, k := range sortedKeys(summary.BySeverity) {
		fmt.Fprintf(&b, "  %s: %d\n", strings.ToUpper(k), summary.BySeverity[k])
	}

	b.WriteString("\nSUMMARY BY CATEGORY:\n")
	for _, k := range sortedKeys(summary.ByCategory) {
		fmt.Fprintf(&b, "  %s: %d\n", strings.ToUpper(k), summary.ByCategory[k])
	}

	b.WriteString("\nSUMMARY BY NODE:\n")
	for _, k := range sortedKeys(summary.ByNode) {
		fmt.Fprintf(&b, "  %s: %d\n", k, summary.ByNode[k])
	}

	fmt.Fprintf(&b, "\nRECOVERY RATE: %.1f%%\n", summary.RecoveryRate)

	b.WriteString("\nFAILURES IN TIMELINE ORDER:\n")
	b.WriteString(strings.Repeat("-", 70) + "\n")
	for i, f := range timeline {
		fmt.Fprintf(&b, "\n%d. [%s]\n", i+1, f.FailureID)
		fmt.Fprintf(&b, "   Time: %s\n", f.Timestamp)
		fmt.Fprintf(&b, "   Severity: %s\n", strings.ToUpper(string(f.Severity)))
		fmt.Fprintf(&b, "   Category: %s\n", f.Category)
		fmt.Fprintf(&b, "   Node: %s\n", f.GraphNode)
		if f.StepTitle != "" {
			fmt.Fprintf(&b, "   Step: %s\n", f.StepTitle)
		}
		fmt.Fprintf(&b, "   Error: %s\n", f.ErrorType)
		fmt.Fprintf(&b, "   Message: %s\n", f.ErrorMessage)
		if f.ToolName != "" {
			fmt.Fprintf(&b, "   Tool: %s\n", f.ToolName)
		}
		fmt.Fprintf(&b, "   Latency: %.2fms\n", f.LatencyMS)
		if f.WasRecovered {
			fmt.Fprintf(&b, "   Recovery: %s\n", f.RecoveryAction)
		}
		if len(f.Tags) > 0 {
			fmt.Fprintf(&b, "   Tags: %s\n", strings.Join(f.Tags, ", "))
		}
	}

	fmt.Fprintf(&b, "\n%s\n", banner)
	fmt.Fprintf(&b, "Log file: %s\n", t.failurePath)
	fmt.Fprintf(&b, "%s\n", banner)
	return b.String()
}

// writeFailureLocked appends the full record to the failure log and a
// condensed entry to the combined log. Callers hold t.mu.
func (t *FailureTracker) writeFailureLocked(rec *FailureRecord, event string) {
	line, err := json.Marshal(rec)
	if err != nil {
		return
	}
	if err := appendLine(t.failurePath, line); err != nil {
		fmt.Fprintf(os.Stderr, "warning: failed to write failure log: %v\n", err)
		return
	}
	t.writeCombinedLocked(map[string]any{
		"timestamp":  utcNow(),
		"level":      "ERROR",
		"module":     "telemetry.failure_tracker",
		"message":    "Failure tracker event",
		"run_id":     t.runID,
		"user_id":    t.userID,
		"graph_node": rec.GraphNode,
		"step_id":    nullable(rec.StepID),
		"step_type":  nullable(rec.StepType),
		"step_title": nullable(rec.StepTitle),
		"event":      event,
		"kind":       "failure",
		"data": map[string]any{
			"failure_id":      rec.FailureID,
			"category":        rec.Category,
			"severity":        rec.Severity,
			"error_type":      rec.ErrorType,
			"error_message":   rec.ErrorMessage,
			"tool_name":       nullable(rec.ToolName),
			"step_id":         nullable(rec.StepID),
			"step_type":       nullable(rec.StepType),
			"step_title":      nullable(rec.StepTitle),
			"latency_ms":      rec.LatencyMS,
			"was_recovered":   rec.WasRecovered,
			"recovery_action": nullable(rec.RecoveryAction),
			"tags":            rec.Tags,
		},
	})
}

func (t *FailureTracker) appendCombined(payload map[string]any) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.writeCombinedLocked(payload)
}

func (t *FailureTracker) writeCombinedLocked(payload map[string]any) {
	line, err := json.Marshal(payload)
	if err != nil {
		return
	}
	_ = appendLine(t.combinedPath, line)
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
