package telemetry

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestController(t *testing.T, opts ControllerOptions) *Controller {
	t.Helper()
	c, err := NewController(t.TempDir(), "run-1", "user-1", opts)
	require.NoError(t, err)
	return c
}

func TestControllerMinimalModeFiltersEvents(t *testing.T) {
	c := newTestController(t, ControllerOptions{Mode: ModeMinimal})

	c.Trace("node_enter", nil, nil)
	c.Trace("plan", map[string]any{"steps": 4}, nil)
	c.Trace("llm_error", nil, nil)

	entries := readJSONLines(t, c.TracePath())
	require.Len(t, entries, 2)
	assert.Equal(t, "plan", entries[0]["event"])
	assert.Equal(t, "llm_error", entries[1]["event"])
}

func TestControllerDetailedModeWritesEverything(t *testing.T) {
	c := newTestController(t, ControllerOptions{Mode: ModeDetailed})

	c.Trace("node_enter", nil, nil)
	c.Trace("node_exit", nil, nil)

	entries := readJSONLines(t, c.TracePath())
	assert.Len(t, entries, 2)
}

func TestControllerSelectiveBuffersUntilSignal(t *testing.T) {
	c := newTestController(t, ControllerOptions{Mode: ModeSelective})

	c.Trace("node_enter", nil, nil)
	c.Trace("plan", nil, nil)
	assert.False(t, fileExists(c.TracePath()))

	c.MaybeEscalate(map[string]bool{"timeout_risk": false})
	assert.False(t, c.Escalated())
	assert.False(t, fileExists(c.TracePath()))

	c.MaybeEscalate(map[string]bool{"tool_error": true})
	require.True(t, c.Escalated())

	entries := readJSONLines(t, c.TracePath())
	require.Len(t, entries, 2)
	assert.Equal(t, "node_enter", entries[0]["event"])
	assert.Equal(t, "plan", entries[1]["event"])

	// After escalation the controller writes through.
	c.Trace("tool_result", nil, nil)
	entries = readJSONLines(t, c.TracePath())
	assert.Len(t, entries, 3)
}

func TestControllerSelectiveBufferKeepsNewestEvents(t *testing.T) {
	c := newTestController(t, ControllerOptions{Mode: ModeSelective, BufferSize: 2})

	c.Trace("first", nil, nil)
	c.Trace("second", nil, nil)
	c.Trace("third", nil, nil)
	c.MaybeEscalate(map[string]bool{"tool_error": true})

	entries := readJSONLines(t, c.TracePath())
	require.Len(t, entries, 2)
	assert.Equal(t, "second", entries[0]["event"])
	assert.Equal(t, "third", entries[1]["event"])
}

func TestControllerEscalationHappensOnce(t *testing.T) {
	c := newTestController(t, ControllerOptions{Mode: ModeSelective})

	c.Trace("plan", nil, nil)
	c.MaybeEscalate(map[string]bool{"tool_error": true})
	c.MaybeEscalate(map[string]bool{"no_results": true})

	entries := readJSONLines(t, c.TracePath())
	assert.Len(t, entries, 1)
}

func TestControllerMinimalModeIgnoresEscalation(t *testing.T) {
	c := newTestController(t, ControllerOptions{Mode: ModeMinimal})

	c.MaybeEscalate(map[string]bool{"tool_error": true})
	assert.False(t, c.Escalated())
}

func TestControllerSanitizesPayloads(t *testing.T) {
	c := newTestController(t, ControllerOptions{Mode: ModeDetailed, MaxChars: 10})

	c.Trace("tool_result", map[string]any{
		"api_key": "sk-secret",
		"summary": strings.Repeat("x", 40),
	}, nil)

	entries := readJSONLines(t, c.TracePath())
	require.Len(t, entries, 1)
	data := entries[0]["data"].(map[string]any)
	assert.Equal(t, "[REDACTED]", data["api_key"])
	assert.Equal(t, strings.Repeat("x", 9)+"…", data["summary"])
}

func TestControllerEventLevels(t *testing.T) {
	c := newTestController(t, ControllerOptions{Mode: ModeDetailed})

	c.Trace("tool_error", nil, nil)
	c.Trace("plan", nil, nil)

	entries := readJSONLines(t, c.TracePath())
	require.Len(t, entries, 2)
	assert.Equal(t, "ERROR", entries[0]["level"])
	assert.Equal(t, "INFO", entries[1]["level"])
}

func TestControllerUsesNodeAsComponent(t *testing.T) {
	c := newTestController(t, ControllerOptions{Mode: ModeDetailed})

	c.Trace("tool_result", nil, &LogContext{GraphNode: "executor", StepID: "s1"})
	c.Trace("run_start", nil, nil)

	entries := readJSONLines(t, c.TracePath())
	require.Len(t, entries, 2)
	assert.Equal(t, "executor", entries[0]["component"])
	assert.Equal(t, "s1", entries[0]["step_id"])
	assert.Equal(t, "telemetry", entries[1]["component"])
	assert.Nil(t, entries[1]["graph_node"])
}

func TestNormalizeMode(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: "DETAILED", want: ModeDetailed},
		{in: " selective ", want: ModeSelective},
		{in: "minimal", want: ModeMinimal},
		{in: "", want: ModeMinimal},
		{in: "bogus", want: ModeMinimal},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, normalizeMode(tt.in))
		})
	}
}
