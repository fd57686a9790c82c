package agent

import (
	"context"
	"fmt"
	"time"

	"github.com/tripwright/tripwright/pkg/graph"
	"github.com/tripwright/tripwright/pkg/models"
	"github.com/tripwright/tripwright/pkg/telemetry"
)

// logContext builds a telemetry context from the state's current step.
func logContext(state *models.TripState, graphNode string) *telemetry.LogContext {
	lc := &telemetry.LogContext{
		RunID:     state.RunID,
		UserID:    state.UserID,
		GraphNode: graphNode,
	}
	if state.CurrentStep != nil {
		lc.StepType = string(state.CurrentStep.StepType)
		lc.StepID = state.CurrentStep.ID
		lc.StepTitle = state.CurrentStep.Title
	}
	return lc
}

// instrument wraps a node with enter/exit/error telemetry, per-node
// latency metrics and signal-driven escalation of the controller.
func (d *Deps) instrument(nodeName string, fn graph.NodeFunc) graph.NodeFunc {
	return func(ctx context.Context, state *models.TripState) (*models.TripState, error) {
		state.CurrentNode = nodeName
		lc := logContext(state, nodeName)
		if d.Logger != nil {
			d.Logger.Info("Node enter", "node_enter", lc, nil)
		}
		if d.Metrics != nil {
			d.Metrics.Inc("graph_node_transitions", 1)
		}

		started := time.Now()
		out, err := fn(ctx, state)
		elapsedMS := float64(time.Since(started)) / float64(time.Millisecond)
		if d.Metrics != nil {
			d.Metrics.ObserveMS(fmt.Sprintf("node_latency_ms.%s", nodeName), elapsedMS)
		}

		if err != nil {
			state.SetSignal(models.SignalNodeError, true)
			if d.Metrics != nil {
				d.Metrics.Inc("graph_node_errors", 1)
			}
			if d.Logger != nil {
				d.Logger.Error("Node error", "node_error", lc, map[string]any{
					"latency_ms": elapsedMS,
					"error":      err.Error(),
				})
			}
			if d.Controller != nil {
				d.Controller.MaybeEscalate(state.Signals)
			}
			return nil, err
		}

		result := out
		if result == nil {
			result = state
		}
		if d.Logger != nil {
			d.Logger.Info("Node exit", "node_exit", logContext(result, nodeName), map[string]any{
				"latency_ms": elapsedMS,
			})
		}
		if d.Controller != nil {
			d.Controller.MaybeEscalate(result.Signals)
		}
		return result, nil
	}
}
