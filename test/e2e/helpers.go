package e2e

import (
	"context"
	"errors"
	"os"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tripwright/tripwright/pkg/agent"
	"github.com/tripwright/tripwright/pkg/tools"
)

var errToolDown = errors.New("api temporarily down")

// ToolRecorder counts tool invocations by name.
type ToolRecorder struct {
	mu    sync.Mutex
	calls map[string]int
}

// Calls returns how many times the named tool ran, retries included.
func (r *ToolRecorder) Calls(name string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls[name]
}

func (r *ToolRecorder) record(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls[name]++
}

// recordedRegistry builds a registry of deterministic link tools that
// count their calls, with optional always-failing tools.
func recordedRegistry(failing ...string) (*tools.Registry, *ToolRecorder) {
	down := make(map[string]bool, len(failing))
	for _, name := range failing {
		down[name] = true
	}
	recorder := &ToolRecorder{calls: map[string]int{}}

	r := tools.NewRegistry()
	for _, name := range []string{
		tools.ToolFlightsSearchLinks,
		tools.ToolHotelsSearchLinks,
		tools.ToolThingsToDoLinks,
		tools.ToolDistanceAndTime,
		tools.ToolWeatherSummary,
	} {
		name := name
		r.Register(name, func(_ context.Context, args map[string]any) (map[string]any, error) {
			recorder.record(name)
			if down[name] {
				return nil, errToolDown
			}
			return map[string]any{
				"summary": "Links for " + name,
				"links": []map[string]string{
					{"label": name, "url": "https://example.com/" + name},
				},
			}, nil
		})
	}
	return r, recorder
}

// scriptedGeocode resolves places from a fixed table; unknown places
// error as if the service were unreachable.
func scriptedGeocode(results map[string]*tools.GeocodeResult) agent.GeocodeFunc {
	return func(_ context.Context, place string) (*tools.GeocodeResult, error) {
		if g, ok := results[place]; ok {
			return g, nil
		}
		return nil, errors.New("geocoding unavailable")
	}
}

// scriptTokyoTrip loads the canned responses for a complete Tokyo run:
// parsed constraints, a three-step plan and a synthesized draft.
func scriptTokyoTrip(client *ScriptedLLM) {
	client.Script("intent_parser", `{
		"origin": "SFO", "destinations": ["Tokyo"],
		"start_date": "2026-04-01", "end_date": "2026-04-05",
		"travelers": 2, "interests": ["ramen", "gardens"],
		"pace": "balanced", "notes": []
	}`)
	client.Script("brain_planner", `{"plan": [
		{"title": "Search flights", "step_type": "TOOL_CALL", "tool_name": "flights_search_links",
		 "tool_args": {"origin": "SFO", "destination": "Tokyo", "start_date": "2026-04-01"}},
		{"title": "Search hotels", "step_type": "TOOL_CALL", "tool_name": "hotels_search_links",
		 "tool_args": {"destination": "Tokyo", "start_date": "2026-04-01", "end_date": "2026-04-05"}},
		{"title": "Write the plan", "step_type": "SYNTHESIZE"}
	]}`)
	client.Script("executor", tokyoDraft)
}

const tokyoDraft = "## Summary\nFive days in Tokyo (2026-04-01 to 2026-04-05) built around ramen and gardens.\n\n" +
	"## Day-by-day\n- Day 1: Arrival, Shinjuku gyoen gardens.\n- Day 2: Ramen crawl in Shibuya.\n" +
	"- Day 3: Day trip to Kamakura.\n- Day 4: Museums and markets.\n- Day 5: Departure.\n\n" +
	"## Transit\n- Use the JR Pass for transit between districts.\n"

// countVEvents reads the exported calendar and counts its events.
func countVEvents(t *testing.T, path string) int {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return strings.Count(string(data), "BEGIN:VEVENT")
}
