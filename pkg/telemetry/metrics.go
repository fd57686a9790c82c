package telemetry

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// MetricsCollector accumulates per-run counters, timer samples and run-level
// fields, and appends one summary record to metrics/metrics.jsonl at run
// end.
type MetricsCollector struct {
	mu         sync.Mutex
	runtimeDir string
	runID      string
	userID     string
	startedAt  time.Time
	counters   map[string]int
	timersMS   map[string][]float64
	fields     map[string]any
}

// NewMetricsCollector starts a collector for one run.
func NewMetricsCollector(runtimeDir, runID, userID string) *MetricsCollector {
	return &MetricsCollector{
		runtimeDir: runtimeDir,
		runID:      runID,
		userID:     userID,
		startedAt:  time.Now(),
		counters:   make(map[string]int),
		timersMS:   make(map[string][]float64),
		fields:     make(map[string]any),
	}
}

// Inc adds n to a counter.
func (m *MetricsCollector) Inc(key string, n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counters[key] += n
}

// ObserveMS appends one duration sample in milliseconds.
func (m *MetricsCollector) ObserveMS(key string, ms float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.timersMS[key] = append(m.timersMS[key], ms)
}

// Set records a run-level field included verbatim in the summary record.
func (m *MetricsCollector) Set(key string, value any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fields[key] = value
}

// Counter returns the current value of a counter.
func (m *MetricsCollector) Counter(key string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counters[key]
}

// Field returns a run-level field previously stored with Set, or nil.
func (m *MetricsCollector) Field(key string) any {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.fields[key]
}

// StartTimer returns a stop function that records the elapsed time under
// key. Use with defer around the timed section.
func (m *MetricsCollector) StartTimer(key string) func() {
	start := time.Now()
	return func() {
		m.ObserveMS(key, float64(time.Since(start).Nanoseconds())/1e6)
	}
}

// FinalizeRecord assembles the run summary record. Latencies are rounded to
// two decimals; run-level fields are merged in at the top level.
func (m *MetricsCollector) FinalizeRecord(status, terminationReason string) map[string]any {
	m.mu.Lock()
	defer m.mu.Unlock()

	totalMS := float64(time.Since(m.startedAt).Nanoseconds()) / 1e6
	counters := make(map[string]int, len(m.counters))
	for k, v := range m.counters {
		counters[k] = v
	}
	timers := make(map[string][]float64, len(m.timersMS))
	for k, samples := range m.timersMS {
		rounded := make([]float64, len(samples))
		for i, v := range samples {
			rounded[i] = round2(v)
		}
		timers[k] = rounded
	}

	record := map[string]any{
		"timestamp":          utcNow(),
		"run_id":             m.runID,
		"user_id":            m.userID,
		"status":             status,
		"termination_reason": nullable(terminationReason),
		"total_latency_ms":   round2(totalMS),
		"counters":           counters,
		"timers_ms":          timers,
	}
	for k, v := range m.fields {
		record[k] = v
	}
	return record
}

// Write appends the record to metrics/metrics.jsonl and returns the path.
func (m *MetricsCollector) Write(record map[string]any) (string, error) {
	metricsDir := filepath.Join(m.runtimeDir, "metrics")
	if err := os.MkdirAll(metricsDir, 0o755); err != nil {
		return "", fmt.Errorf("create metrics dir: %w", err)
	}
	path := filepath.Join(metricsDir, "metrics.jsonl")
	line, err := json.Marshal(record)
	if err != nil {
		return "", fmt.Errorf("marshal metrics record: %w", err)
	}
	if err := appendLine(path, line); err != nil {
		return "", fmt.Errorf("append metrics record: %w", err)
	}
	return path, nil
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
