package telemetry

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsCountersAndTimers(t *testing.T) {
	m := NewMetricsCollector(t.TempDir(), "run-1", "user-1")

	m.Inc("llm_calls", 1)
	m.Inc("llm_calls", 2)
	m.Inc("tool_errors", 1)
	m.ObserveMS("tool_latency_ms.flights_search_links", 10.567)
	m.ObserveMS("tool_latency_ms.flights_search_links", 20.123)

	assert.Equal(t, 3, m.Counter("llm_calls"))
	assert.Equal(t, 1, m.Counter("tool_errors"))
	assert.Equal(t, 0, m.Counter("never_touched"))

	record := m.FinalizeRecord("good", "finalized")
	counters := record["counters"].(map[string]int)
	assert.Equal(t, 3, counters["llm_calls"])

	timers := record["timers_ms"].(map[string][]float64)
	assert.Equal(t, []float64{10.57, 20.12}, timers["tool_latency_ms.flights_search_links"])
}

func TestFinalizeRecordShape(t *testing.T) {
	m := NewMetricsCollector(t.TempDir(), "run-1", "user-1")
	m.Set("ics_path", "/tmp/x.ics")
	m.Set("output_link_count", 12)

	record := m.FinalizeRecord("good", "finalized")

	assert.Equal(t, "run-1", record["run_id"])
	assert.Equal(t, "user-1", record["user_id"])
	assert.Equal(t, "good", record["status"])
	assert.Equal(t, "finalized", record["termination_reason"])
	assert.Equal(t, "/tmp/x.ics", record["ics_path"])
	assert.Equal(t, 12, record["output_link_count"])
	assert.NotEmpty(t, record["timestamp"])
	assert.GreaterOrEqual(t, record["total_latency_ms"].(float64), 0.0)
}

func TestFinalizeRecordNullTerminationReason(t *testing.T) {
	m := NewMetricsCollector(t.TempDir(), "run-1", "user-1")

	record := m.FinalizeRecord("error", "")
	assert.Nil(t, record["termination_reason"])
}

func TestMetricsWriteAppends(t *testing.T) {
	dir := t.TempDir()
	m := NewMetricsCollector(dir, "run-1", "user-1")

	path, err := m.Write(m.FinalizeRecord("good", "finalized"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "metrics", "metrics.jsonl"), path)

	_, err = m.Write(m.FinalizeRecord("error", "error"))
	require.NoError(t, err)

	entries := readJSONLines(t, path)
	require.Len(t, entries, 2)
	assert.Equal(t, "good", entries[0]["status"])
	assert.Equal(t, "error", entries[1]["status"])
}

func TestStartTimerRecordsElapsed(t *testing.T) {
	m := NewMetricsCollector(t.TempDir(), "run-1", "user-1")

	stop := m.StartTimer("node_latency_ms.executor")
	time.Sleep(5 * time.Millisecond)
	stop()

	record := m.FinalizeRecord("good", "finalized")
	timers := record["timers_ms"].(map[string][]float64)
	samples := timers["node_latency_ms.executor"]
	require.Len(t, samples, 1)
	assert.GreaterOrEqual(t, samples[0], 1.0)
}
