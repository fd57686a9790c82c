package llm

import (
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// constraintsSchema validates intent-parser output before it is trusted.
const constraintsSchema = `{
  "type": "object",
  "properties": {
    "origin": {"type": ["string", "null"]},
    "destinations": {"type": "array", "items": {"type": "string"}},
    "start_date": {"type": ["string", "null"], "pattern": "^\\d{4}-\\d{2}-\\d{2}$"},
    "end_date": {"type": ["string", "null"], "pattern": "^\\d{4}-\\d{2}-\\d{2}$"},
    "budget_usd": {"type": ["number", "null"]},
    "travelers": {"type": ["integer", "null"]},
    "interests": {"type": "array", "items": {"type": "string"}},
    "pace": {"type": ["string", "null"], "enum": ["relaxed", "balanced", "packed", null]},
    "notes": {"type": "array", "items": {"type": "string"}}
  }
}`

// planSchema validates brain-planner output. Item-level filtering (step
// types, tool allow-list) happens after validation.
const planSchema = `{
  "type": "object",
  "required": ["plan"],
  "properties": {
    "plan": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["title", "step_type"],
        "properties": {
          "title": {"type": "string"},
          "step_type": {"type": "string"},
          "tool_name": {"type": ["string", "null"]},
          "tool_args": {"type": ["object", "null"]},
          "notes": {"type": ["string", "null"]}
        }
      }
    }
  }
}`

var (
	compiledConstraints = mustCompile("constraints.json", constraintsSchema)
	compiledPlan        = mustCompile("plan.json", planSchema)
)

func mustCompile(name, schema string) *jsonschema.Schema {
	var doc any
	if err := json.Unmarshal([]byte(schema), &doc); err != nil {
		panic(fmt.Sprintf("unmarshal %s: %v", name, err))
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource(name, doc); err != nil {
		panic(fmt.Sprintf("add resource %s: %v", name, err))
	}
	return c.MustCompile(name)
}

// ValidateConstraints checks a parsed intent payload against the trip
// constraints schema.
func ValidateConstraints(payload map[string]any) error {
	if err := compiledConstraints.Validate(anyPayload(payload)); err != nil {
		return fmt.Errorf("constraints schema: %w", err)
	}
	return nil
}

// ValidatePlan checks a parsed planner payload against the plan schema.
func ValidatePlan(payload map[string]any) error {
	if err := compiledPlan.Validate(anyPayload(payload)); err != nil {
		return fmt.Errorf("plan schema: %w", err)
	}
	return nil
}

// anyPayload round-trips the map so integer-valued fields validate the
// same regardless of how the caller produced them.
func anyPayload(payload map[string]any) any {
	raw, err := json.Marshal(payload)
	if err != nil {
		return payload
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return payload
	}
	return doc
}
