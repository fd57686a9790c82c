package config

import (
	"errors"
	"fmt"
	"os"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"
)

var (
	// ErrScenarioNotFound indicates the scenario file does not exist.
	ErrScenarioNotFound = errors.New("scenario file not found")
	// ErrInvalidScenario indicates the scenario file could not be parsed.
	ErrInvalidScenario = errors.New("invalid scenario file")
)

// Scenario drives one experiment sweep: which telemetry modes to compare,
// which queries to run, and which faults to inject on the escalation pass.
type Scenario struct {
	Name        string               `yaml:"name"`
	Description string               `yaml:"description"`
	Modes       []string             `yaml:"modes"`
	Queries     []string             `yaml:"queries"`
	Faults      ScenarioFaults       `yaml:"faults"`
	Tools       map[string]ToolChaos `yaml:"tools"`
}

// ScenarioFaults selects fault-injection sites applied on the last
// (selective) pass of the sweep.
type ScenarioFaults struct {
	ToolTimeout  bool    `yaml:"tool_timeout"`
	ToolError    bool    `yaml:"tool_error"`
	BadRetrieval bool    `yaml:"bad_retrieval"`
	LLMError     bool    `yaml:"llm_error"`
	Probability  float64 `yaml:"probability"`
	Seed         int64   `yaml:"seed"`
}

// ToolChaos configures per-tool failure behavior for the chaos registry.
type ToolChaos struct {
	FailureMode        string  `yaml:"failure_mode"`
	FailureProbability float64 `yaml:"failure_probability"`
	ExceptionMessage   string  `yaml:"exception_message"`
	LatencyMultiplier  float64 `yaml:"latency_multiplier"`
}

// DefaultScenario returns the built-in telemetry comparison sweep: all
// three modes over four representative queries, with tool timeouts and bad
// retrieval injected on the selective pass.
func DefaultScenario() *Scenario {
	return &Scenario{
		Name:        "telemetry-comparison",
		Description: "Compare log volume and latency across telemetry modes.",
		Modes:       []string{"minimal", "detailed", "selective"},
		Queries: []string{
			"Plan a trip to Paris for 2 people, $3000 budget, 2026-03-01 to 2026-03-10.",
			"I want to visit Rome and Florence, 1 week, art museums, moderate pace.",
			"Find me a beach vacation in July, 4 travelers, $5000.",
			"Show me a trip to Tokyo with food tours and anime spots.",
		},
		Faults: ScenarioFaults{
			ToolTimeout:  true,
			BadRetrieval: true,
			Probability:  1.0,
			Seed:         42,
		},
	}
}

// LoadScenario reads a scenario file, expands {{.VAR}} references from the
// environment, and merges the result over the built-in defaults so partial
// files only override what they name.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrScenarioNotFound, path)
		}
		return nil, err
	}

	data = ExpandEnv(data)

	var loaded Scenario
	if err := yaml.Unmarshal(data, &loaded); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidScenario, err)
	}

	merged := DefaultScenario()
	if err := mergo.Merge(merged, &loaded, mergo.WithOverride); err != nil {
		return nil, fmt.Errorf("merge scenario config: %w", err)
	}
	return merged, nil
}
