package agent

import (
	"context"

	"github.com/tripwright/tripwright/pkg/memory"
	"github.com/tripwright/tripwright/pkg/models"
	"github.com/tripwright/tripwright/pkg/telemetry"
)

const memoryRetrievalK = 5

// contextController seeds the run with memory context for the user
// query. Retrieval failures degrade to an empty context rather than
// ending the run.
func (d *Deps) contextController(ctx context.Context, state *models.TripState) (*models.TripState, error) {
	state.CurrentStep = &models.PlanStep{StepType: models.StepRetrieveContext, Title: "Retrieve memory context"}

	hits, err := d.retrieveContext(ctx, state.UserQuery, state)
	if err != nil {
		state.SetSignal(models.SignalMemoryUnavailable, true)
		state.AppendWarning("Memory unavailable; continuing without stored context.")
		d.recordFailure(telemetry.Failure{
			Category:     telemetry.CategoryMemory,
			Severity:     telemetry.SeverityMedium,
			GraphNode:    NodeContextController,
			ErrorType:    "memory_search",
			ErrorMessage: err.Error(),
		})
		hits = nil
	}

	if d.Metrics != nil {
		d.Metrics.Set("memory_retrieval_k", memoryRetrievalK)
		d.Metrics.Set("memory_retrieval_hits", len(hits))
	}
	state.ContextHits = hits
	return state, nil
}

// retrieveContext searches both memory scopes, honoring the bad
// retrieval fault site.
func (d *Deps) retrieveContext(ctx context.Context, query string, state *models.TripState) ([]models.ContextHit, error) {
	if d.Faults != nil {
		if hits, injected := d.Faults.MaybeBadRetrieval(query); injected {
			state.SetSignal(models.SignalBadRetrieval, true)
			return hits, nil
		}
	}
	if d.Memory == nil {
		return nil, memory.ErrUnavailable
	}
	found, err := d.Memory.Search(ctx, memory.Query{
		Query:          query,
		K:              memoryRetrievalK,
		IncludeSession: true,
		IncludeUser:    true,
	})
	if err != nil {
		return nil, err
	}
	hits := make([]models.ContextHit, 0, len(found))
	for _, h := range found {
		hits = append(hits, models.ContextHit{ID: h.ID, Text: h.Text, Metadata: h.Metadata, Distance: h.Distance})
	}
	return hits, nil
}
