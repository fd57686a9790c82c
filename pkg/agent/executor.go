package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/tripwright/tripwright/pkg/llm"
	"github.com/tripwright/tripwright/pkg/memory"
	"github.com/tripwright/tripwright/pkg/models"
	"github.com/tripwright/tripwright/pkg/telemetry"
	"github.com/tripwright/tripwright/pkg/tools"
)

const maxDayTitles = 21

const synthSystemPrompt = `You are a travel planner. Using the constraints and tool results, produce a structured plan:
- High-level summary
- Assumptions (explicitly list missing constraints)
- Flights (links-only)
- Lodging (links-only)
- Day-by-day itinerary
- Transit notes
- Weather
- Budget estimate (heuristic; do not claim live prices)
- Calendar export note
Style: be concise, use bullets, and avoid long paragraphs.
Include this disclaimer line exactly once:
"Note: Visa/health requirements vary; verify with official sources (this is not legal advice)."
`

var dayTitleRE = regexp.MustCompile(`(?im)^#+\s*Day\s*(\d+)\s*[:\-]?\s*(.*)$`)

// executor runs the current plan step: memory retrieval, a tool call
// with bounded retries, or the synthesis of the draft answer. Tool
// failures never end the run here; they are raised to issue triage.
func (d *Deps) executor(ctx context.Context, state *models.TripState) (*models.TripState, error) {
	step := state.CurrentStep
	if step == nil || step.ID == "" {
		return state, nil
	}
	idx := state.CurrentStepIndex
	if idx < 0 || idx >= len(state.Plan) {
		return state, nil
	}

	switch step.StepType {
	case models.StepRetrieveContext:
		return d.executeRetrieve(ctx, state, step, idx)
	case models.StepToolCall:
		if step.ToolName != "" {
			return d.executeTool(ctx, state, step, idx)
		}
	}
	return d.executeSynthesize(ctx, state, idx)
}

func (d *Deps) executeRetrieve(ctx context.Context, state *models.TripState, step *models.PlanStep, idx int) (*models.TripState, error) {
	if d.Memory == nil {
		issue := models.Issue{
			Kind:     models.IssueToolError,
			Severity: models.SeverityMajor,
			Node:     NodeExecutor,
			StepID:   step.ID,
			Message:  "Memory store not available for RETRIEVE_CONTEXT step.",
		}
		state.AppendIssue(issue)
		state.PendingIssue = &issue
		state.NeedsTriage = true
		state.SetSignal(models.SignalMemoryUnavailable, true)
		state.Plan[idx].Status = models.StepBlocked
		return state, nil
	}

	query := state.UserQuery
	if q := stringField(step.ToolArgs, "query"); q != "" {
		query = q
	}

	started := time.Now()
	hits, err := d.Memory.Search(ctx, memory.Query{
		Query:          query,
		K:              memoryRetrievalK,
		IncludeSession: true,
		IncludeUser:    true,
	})
	elapsedMS := float64(time.Since(started)) / float64(time.Millisecond)
	if err != nil {
		issue := models.Issue{
			Kind:     models.IssueToolError,
			Severity: models.SeverityMajor,
			Node:     NodeExecutor,
			StepID:   step.ID,
			Message:  fmt.Sprintf("Memory search failed: %v", err),
		}
		state.AppendIssue(issue)
		state.PendingIssue = &issue
		state.NeedsTriage = true
		state.SetSignal(models.SignalMemoryUnavailable, true)
		state.Plan[idx].Status = models.StepBlocked
		d.recordFailure(telemetry.Failure{
			Category:     telemetry.CategoryMemory,
			Severity:     telemetry.SeverityMedium,
			GraphNode:    NodeExecutor,
			ErrorType:    "memory_search",
			ErrorMessage: err.Error(),
		})
		return state, nil
	}

	if d.Metrics != nil {
		d.Metrics.Inc("rag_retrievals", 1)
		d.Metrics.ObserveMS("rag_retrieval_latency_ms", elapsedMS)
		d.Metrics.Set("memory_retrieval_hits", len(hits))
	}
	if d.Logger != nil {
		d.Logger.Info("RAG retrieval completed", "rag_retrieve", logContext(state, NodeExecutor), map[string]any{
			"latency_ms": elapsedMS,
			"hits":       len(hits),
		})
	}
	contextHits := make([]models.ContextHit, 0, len(hits))
	for _, h := range hits {
		contextHits = append(contextHits, models.ContextHit{ID: h.ID, Text: h.Text, Metadata: h.Metadata, Distance: h.Distance})
	}
	state.ContextHits = contextHits
	state.Plan[idx].Status = models.StepDone
	return state, nil
}

func (d *Deps) executeTool(ctx context.Context, state *models.TripState, step *models.PlanStep, idx int) (*models.TripState, error) {
	toolName := step.ToolName
	maxRetries := d.maxToolRetries()

	var out map[string]any
	var lastErr error
	attempts := 0
	for attempts <= maxRetries {
		attempts++
		started := time.Now()
		if d.Metrics != nil {
			d.Metrics.Inc("tool_calls", 1)
		}
		out, lastErr = d.callTool(ctx, toolName, step.ToolArgs)
		elapsedMS := float64(time.Since(started)) / float64(time.Millisecond)
		if d.Metrics != nil {
			d.Metrics.ObserveMS(fmt.Sprintf("tool_latency_ms.%s", toolName), elapsedMS)
		}
		if lastErr == nil {
			if d.Logger != nil {
				d.Logger.Info("Tool call completed", "tool_result", logContext(state, NodeExecutor), map[string]any{
					"tool_name":  toolName,
					"latency_ms": elapsedMS,
					"attempt":    attempts,
				})
			}
			break
		}
		willRetry := attempts <= maxRetries
		if d.Metrics != nil {
			d.Metrics.Inc("tool_errors", 1)
			if willRetry {
				d.Metrics.Inc("tool_retries", 1)
			}
		}
		if d.Logger != nil {
			logFn := d.Logger.Warn
			if !willRetry {
				logFn = d.Logger.Error
			}
			logFn("Tool call failed", "tool_error", logContext(state, NodeExecutor), map[string]any{
				"tool_name":  toolName,
				"latency_ms": elapsedMS,
				"error":      lastErr.Error(),
				"attempt":    attempts,
				"will_retry": willRetry,
			})
		}
	}

	if lastErr == nil && out != nil {
		state.ToolResults = append(state.ToolResults, models.ToolResult{
			StepID:   step.ID,
			ToolName: toolName,
			Data:     out,
			Summary:  stringField(out, "summary"),
			Links:    linksField(out),
		})
		state.Plan[idx].Status = models.StepDone
		return state, nil
	}

	severity := models.SeverityMinor
	if toolName == tools.ToolFlightsSearchLinks || toolName == tools.ToolHotelsSearchLinks {
		severity = models.SeverityMajor
	}
	issue := models.Issue{
		Kind:             models.IssueToolError,
		Severity:         severity,
		Node:             NodeExecutor,
		StepID:           step.ID,
		ToolName:         toolName,
		Message:          fmt.Sprintf("Tool '%s' failed after %d attempt(s): %v", toolName, attempts, lastErr),
		SuggestedActions: []string{"retry", "skip", "modify_inputs"},
		Details:          map[string]any{"tool_args": step.ToolArgs, "attempts": attempts},
	}
	state.AppendIssue(issue)
	state.PendingIssue = &issue
	state.NeedsTriage = true
	state.SetSignal(models.SignalToolError, true)
	state.Plan[idx].Status = models.StepBlocked
	d.recordFailure(telemetry.Failure{
		Category:     telemetry.CategoryTool,
		Severity:     telemetry.SeverityMedium,
		GraphNode:    NodeExecutor,
		ErrorType:    fmt.Sprintf("%T", lastErr),
		ErrorMessage: fmt.Sprint(lastErr),
		ToolName:     toolName,
	})
	return state, nil
}

// callTool runs one attempt through the registry, with the tool fault
// sites firing before the real call.
func (d *Deps) callTool(ctx context.Context, name string, args map[string]any) (map[string]any, error) {
	if d.Faults != nil {
		if err := d.Faults.MaybeToolTimeout(ctx, name); err != nil {
			return nil, err
		}
		if err := d.Faults.MaybeToolError(name); err != nil {
			return nil, err
		}
	}
	if d.Tools == nil {
		return nil, tools.ErrUnknownTool
	}
	return d.Tools.Call(ctx, name, args)
}

func (d *Deps) executeSynthesize(ctx context.Context, state *models.TripState, idx int) (*models.TripState, error) {
	constraintsJSON, _ := json.Marshal(state.EnsureConstraints())
	hitsJSON, _ := json.Marshal(compactContext(state.ContextHits))
	resultsJSON, _ := json.Marshal(compactToolResults(state.ToolResults))

	prompt := fmt.Sprintf(
		"User query: %s\n\nConstraints (JSON): %s\n\nContext hits (compact): %s\n\nTool results (compact): %s\n\nWrite the final response in Markdown with the required sections.",
		state.UserQuery, constraintsJSON, hitsJSON, resultsJSON,
	)
	answer, err := d.LLM.InvokeText(ctx, llm.Request{
		System:  synthSystemPrompt,
		User:    prompt,
		Context: logContext(state, NodeExecutor),
		Tags:    map[string]string{"node": "executor", "kind": "synthesize"},
	})
	if err != nil {
		return nil, fmt.Errorf("synthesize: %w", err)
	}
	state.FinalAnswer = answer
	state.ItineraryDayTitles = extractDayTitles(answer)
	state.Plan[idx].Status = models.StepDone
	return state, nil
}

// extractDayTitles pulls "Day N" heading titles out of the draft answer
// for the calendar export, capped at three weeks of days.
func extractDayTitles(answer string) []string {
	var titles []string
	for _, m := range dayTitleRE.FindAllStringSubmatch(answer, -1) {
		title := strings.TrimSpace(m[2])
		if title == "" {
			title = "Day " + m[1]
		}
		titles = append(titles, title)
		if len(titles) >= maxDayTitles {
			break
		}
	}
	return titles
}

func compactToolResults(results []models.ToolResult) []map[string]any {
	compact := make([]map[string]any, 0, len(results))
	for _, r := range results {
		if len(compact) >= 12 {
			break
		}
		links := r.Links
		if len(links) > 5 {
			links = links[:5]
		}
		compact = append(compact, map[string]any{
			"tool_name": r.ToolName,
			"summary":   r.Summary,
			"links":     links,
		})
	}
	return compact
}

func compactContext(hits []models.ContextHit) []map[string]any {
	compact := make([]map[string]any, 0, len(hits))
	for _, h := range hits {
		if len(compact) >= 5 {
			break
		}
		text := h.Text
		if len(text) > 300 {
			text = text[:300] + "…"
		}
		compact = append(compact, map[string]any{"text": text, "metadata": h.Metadata})
	}
	return compact
}

// linksField extracts the links list from a tool result map, accepting
// both the registry's typed slices and JSON-decoded generics.
func linksField(out map[string]any) []map[string]string {
	switch links := out["links"].(type) {
	case []map[string]string:
		return links
	case []any:
		converted := make([]map[string]string, 0, len(links))
		for _, item := range links {
			switch link := item.(type) {
			case map[string]string:
				converted = append(converted, link)
			case map[string]any:
				m := make(map[string]string, len(link))
				for k, v := range link {
					if s, ok := v.(string); ok {
						m[k] = s
					}
				}
				converted = append(converted, m)
			}
		}
		return converted
	}
	return nil
}
