package telemetry

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/tripwright/tripwright/pkg/masking"
)

// Telemetry tiers.
const (
	ModeMinimal   = "minimal"
	ModeDetailed  = "detailed"
	ModeSelective = "selective"
)

const defaultBufferSize = 50

// minimalEvents always reach the trace log in minimal mode, alongside any
// event whose name ends in _error.
var minimalEvents = map[string]struct{}{
	"intent_parse":          {},
	"validated_constraints": {},
	"plan":                  {},
	"plan_fallback":         {},
	"tool_result":           {},
	"synth_result":          {},
	"final_answer":          {},
	"eval_final":            {},
	"export_ics":            {},
	"issue_triage":          {},
	"run_error":             {},
}

// Controller decides which trace events reach logs/trace.jsonl. Minimal mode
// writes only allow-listed business events plus *_error events. Detailed
// mode writes everything. Selective mode buffers events until a failure
// signal escalates the run, then flushes the buffer in arrival order and
// writes through for the rest of the run.
type Controller struct {
	mu         sync.Mutex
	runID      string
	userID     string
	mode       string
	maxChars   int
	bufferSize int
	buffer     []map[string]any
	escalated  bool
	tracePath  string
}

// ControllerOptions tune a Controller. Zero values select minimal mode with
// the default payload and buffer limits.
type ControllerOptions struct {
	Mode       string
	MaxChars   int
	BufferSize int
}

// NewController creates the trace writer for one run.
func NewController(runtimeDir, runID, userID string, opts ControllerOptions) (*Controller, error) {
	logsDir := filepath.Join(runtimeDir, "logs")
	if err := os.MkdirAll(logsDir, 0o755); err != nil {
		return nil, fmt.Errorf("create logs dir: %w", err)
	}
	maxChars := opts.MaxChars
	if maxChars == 0 {
		maxChars = masking.DefaultMaxChars
	}
	bufferSize := opts.BufferSize
	if bufferSize <= 0 {
		bufferSize = defaultBufferSize
	}
	return &Controller{
		runID:      runID,
		userID:     userID,
		mode:       normalizeMode(opts.Mode),
		maxChars:   maxChars,
		bufferSize: bufferSize,
		tracePath:  filepath.Join(logsDir, "trace.jsonl"),
	}, nil
}

// SetMode switches the tier for subsequent events.
func (c *Controller) SetMode(mode string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.mode = normalizeMode(mode)
}

// Mode returns the active tier.
func (c *Controller) Mode() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mode
}

// Escalated reports whether a selective run has flipped to write-through.
func (c *Controller) Escalated() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.escalated
}

// TracePath returns the trace log location.
func (c *Controller) TracePath() string {
	return c.tracePath
}

// MaybeEscalate flips a selective controller to write-through when any
// signal is true. Buffered events are flushed in arrival order; escalation
// happens at most once per run.
func (c *Controller) MaybeEscalate(signals map[string]bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.mode != ModeSelective || c.escalated {
		return
	}
	fired := false
	for _, v := range signals {
		if v {
			fired = true
			break
		}
	}
	if !fired {
		return
	}
	c.escalated = true
	for _, payload := range c.buffer {
		c.write(payload)
	}
	c.buffer = nil
}

// Trace records one event. Payload data is redacted and truncated before it
// is buffered or written. Events containing "error" are logged at ERROR.
func (c *Controller) Trace(event string, data map[string]any, lc *LogContext) {
	level := "INFO"
	if strings.Contains(event, "error") {
		level = "ERROR"
	}
	payload := map[string]any{
		"timestamp": utcNow(),
		"level":     level,
		"module":    "telemetry",
		"event":     event,
		"message":   event,
		"run_id":    c.runID,
		"user_id":   c.userID,
		"component": "telemetry",
	}
	if lc != nil {
		if lc.GraphNode != "" {
			payload["component"] = lc.GraphNode
		}
		payload["graph_node"] = nullable(lc.GraphNode)
		payload["step_type"] = nullable(lc.StepType)
		payload["step_id"] = nullable(lc.StepID)
		payload["step_title"] = nullable(lc.StepTitle)
	} else {
		payload["graph_node"] = nil
		payload["step_type"] = nil
		payload["step_id"] = nil
		payload["step_title"] = nil
	}
	if data != nil {
		payload["data"] = masking.Sanitize(data, c.maxChars)
	} else {
		payload["data"] = nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	switch {
	case c.mode == ModeMinimal:
		if _, ok := minimalEvents[event]; !ok && !strings.HasSuffix(event, "_error") {
			return
		}
		c.write(payload)
	case c.mode == ModeDetailed || c.escalated:
		c.write(payload)
	case c.mode == ModeSelective:
		c.buffer = append(c.buffer, payload)
		if len(c.buffer) > c.bufferSize {
			c.buffer = c.buffer[len(c.buffer)-c.bufferSize:]
		}
	}
}

func (c *Controller) write(payload map[string]any) {
	line, err := json.Marshal(payload)
	if err != nil {
		return
	}
	_ = appendLine(c.tracePath, line)
}

func normalizeMode(mode string) string {
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case ModeDetailed:
		return ModeDetailed
	case ModeSelective:
		return ModeSelective
	default:
		return ModeMinimal
	}
}

func appendLine(path string, line []byte) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = f.Write(append(line, '\n'))
	return err
}
