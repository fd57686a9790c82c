package telemetry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestTracker(t *testing.T) *FailureTracker {
	t.Helper()
	tracker, err := NewFailureTracker(t.TempDir(), "run-42", "user-1")
	require.NoError(t, err)
	return tracker
}

func TestFailureIDsAreSequential(t *testing.T) {
	tracker := newTestTracker(t)

	first := tracker.RecordFailure(Failure{
		Category:     CategoryTool,
		Severity:     SeverityHigh,
		GraphNode:    "executor",
		ErrorType:    "ToolTimeoutError",
		ErrorMessage: "injected tool timeout for 'flights_search_links'",
	})
	second := tracker.RecordFailure(Failure{
		Category:     CategoryLLM,
		Severity:     SeverityMedium,
		GraphNode:    "brain_planner",
		ErrorType:    "LLMFailureError",
		ErrorMessage: "injected llm failure at stage 'planner'",
	})

	assert.Equal(t, "failure_run-42_000", first.FailureID)
	assert.Equal(t, "failure_run-42_001", second.FailureID)
	assert.Equal(t, 2, tracker.TotalFailures())
}

func TestRecordFailureWritesBothLogs(t *testing.T) {
	tracker := newTestTracker(t)

	tracker.RecordFailure(Failure{
		Category:     CategoryTool,
		Severity:     SeverityHigh,
		GraphNode:    "executor",
		ErrorType:    "ToolFailureError",
		ErrorMessage: "boom",
		ToolName:     "hotels_search_links",
		StepID:       "step-1",
		LatencyMS:    12.5,
		Tags:         []string{"tool:hotels_search_links"},
	})

	failures := readJSONLines(t, tracker.FailureLogPath())
	require.Len(t, failures, 1)
	assert.Equal(t, "failure_run-42_000", failures[0]["failure_id"])
	assert.Equal(t, "tool", failures[0]["category"])
	assert.Equal(t, "executor", failures[0]["graph_node"])
	assert.Equal(t, "hotels_search_links", failures[0]["tool_name"])
	assert.Equal(t, float64(1), failures[0]["attempt_number"])

	combined := readJSONLines(t, tracker.CombinedLogPath())
	require.Len(t, combined, 1)
	assert.Equal(t, "failure", combined[0]["kind"])
	assert.Equal(t, "failure_recorded", combined[0]["event"])
	assert.Equal(t, "ERROR", combined[0]["level"])
	data := combined[0]["data"].(map[string]any)
	assert.Equal(t, "boom", data["error_message"])
}

func TestMarkRecoveredAppendsRecoveryEntry(t *testing.T) {
	tracker := newTestTracker(t)

	rec := tracker.RecordFailure(Failure{
		Category:     CategoryTool,
		Severity:     SeverityHigh,
		GraphNode:    "executor",
		ErrorType:    "ToolTimeoutError",
		ErrorMessage: "timeout",
	})
	tracker.MarkRecovered(rec, "skipped step and continued")

	failures := readJSONLines(t, tracker.FailureLogPath())
	require.Len(t, failures, 2)
	assert.Equal(t, false, failures[0]["was_recovered"])
	assert.Equal(t, true, failures[1]["was_recovered"])
	assert.Equal(t, "skipped step and continued", failures[1]["recovery_action"])

	combined := readJSONLines(t, tracker.CombinedLogPath())
	require.Len(t, combined, 2)
	assert.Equal(t, "failure_recovered", combined[1]["event"])
}

func TestSummaryAggregatesFailures(t *testing.T) {
	tracker := newTestTracker(t)

	rec := tracker.RecordFailure(Failure{
		Category: CategoryTool, Severity: SeverityHigh,
		GraphNode: "executor", ErrorType: "ToolTimeoutError", ErrorMessage: "t",
	})
	tracker.RecordFailure(Failure{
		Category: CategoryMemory, Severity: SeverityLow,
		GraphNode: "context_controller", ErrorType: "MemoryUnavailable", ErrorMessage: "m",
	})
	tracker.MarkRecovered(rec, "triaged")

	summary := tracker.Summary()
	assert.Equal(t, "run-42", summary.RunID)
	assert.Equal(t, 2, summary.TotalFailures)
	assert.Equal(t, map[string]int{"high": 1, "low": 1}, summary.BySeverity)
	assert.Equal(t, map[string]int{"tool": 1, "memory": 1}, summary.ByCategory)
	assert.Equal(t, map[string]int{"executor": 1, "context_controller": 1}, summary.ByNode)
	assert.InDelta(t, 50.0, summary.RecoveryRate, 0.001)
}

func TestSummaryEmptyTracker(t *testing.T) {
	tracker := newTestTracker(t)

	summary := tracker.Summary()
	assert.Zero(t, summary.TotalFailures)
	assert.Zero(t, summary.RecoveryRate)
}

func TestGenerateReportListsFailures(t *testing.T) {
	tracker := newTestTracker(t)

	rec := tracker.RecordFailure(Failure{
		Category:     CategoryTool,
		Severity:     SeverityHigh,
		GraphNode:    "executor",
		ErrorType:    "ToolTimeoutError",
		ErrorMessage: "injected tool timeout for 'flights_search_links'",
		ToolName:     "flights_search_links",
		StepTitle:    "Find flight options",
		LatencyMS:    104.2,
		Tags:         []string{"injected"},
	})
	tracker.MarkRecovered(rec, "skipped step")

	report := tracker.GenerateReport()
	assert.Contains(t, report, "FAILURE REPORT")
	assert.Contains(t, report, "Run ID: run-42")
	assert.Contains(t, report, "Total Failures: 1")
	assert.Contains(t, report, "HIGH: 1")
	assert.Contains(t, report, "TOOL: 1")
	assert.Contains(t, report, "executor: 1")
	assert.Contains(t, report, "RECOVERY RATE: 100.0%")
	assert.Contains(t, report, "[failure_run-42_000]")
	assert.Contains(t, report, "Step: Find flight options")
	assert.Contains(t, report, "Tool: flights_search_links")
	assert.Contains(t, report, "Recovery: skipped step")
	assert.Contains(t, report, "Tags: injected")
}

func TestRecordFailureDefaultsUnknownCategory(t *testing.T) {
	tracker := newTestTracker(t)

	rec := tracker.RecordFailure(Failure{
		GraphNode:    "responder",
		ErrorType:    "errorString",
		ErrorMessage: "unclassified",
	})

	assert.Equal(t, CategoryUnknown, rec.Category)
	assert.Equal(t, SeverityMedium, rec.Severity)
}
