package autonomy

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// planSchema describes the plan the decision service must return.
const planSchema = `{
  "type": "object",
  "required": ["tasks"],
  "properties": {
    "tasks": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["title"],
        "properties": {
          "title":      {"type": "string", "minLength": 1},
          "details":    {"type": "string"},
          "department": {"type": "string"},
          "tool":       {"type": "string"},
          "payload":    {"type": "object"},
          "importance": {"type": "integer", "minimum": 1, "maximum": 5}
        }
      }
    }
  }
}`

// PlannedTask is one task proposed by the decision service.
type PlannedTask struct {
	Title      string          `json:"title"`
	Details    string          `json:"details"`
	Department string          `json:"department"`
	Tool       string          `json:"tool"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	Importance int             `json:"importance"`
}

// PlanParser extracts and validates a plan from free text.
type PlanParser struct {
	schema *jsonschema.Schema
}

// NewPlanParser compiles the plan schema.
func NewPlanParser() (*PlanParser, error) {
	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(planSchema))
	if err != nil {
		return nil, fmt.Errorf("unmarshal plan schema: %w", err)
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource("plan.json", doc); err != nil {
		return nil, fmt.Errorf("add plan schema: %w", err)
	}
	schema, err := c.Compile("plan.json")
	if err != nil {
		return nil, fmt.Errorf("compile plan schema: %w", err)
	}
	return &PlanParser{schema: schema}, nil
}

// Parse returns the tasks in text. The JSON may be wrapped in prose or a
// fenced block, and a bare array of tasks is accepted.
func (p *PlanParser) Parse(text string) ([]PlannedTask, error) {
	raw := extractJSON(text)
	if raw == "" {
		return nil, fmt.Errorf("no JSON found in plan")
	}
	if strings.HasPrefix(raw, "[") {
		raw = `{"tasks":` + raw + `}`
	}
	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("invalid plan JSON: %w", err)
	}
	if err := p.schema.Validate(doc); err != nil {
		return nil, fmt.Errorf("plan failed validation: %w", err)
	}
	var plan struct {
		Tasks []PlannedTask `json:"tasks"`
	}
	if err := json.Unmarshal([]byte(raw), &plan); err != nil {
		return nil, fmt.Errorf("decode plan: %w", err)
	}
	for i := range plan.Tasks {
		if plan.Tasks[i].Importance == 0 {
			plan.Tasks[i].Importance = 3
		}
	}
	return plan.Tasks, nil
}

// extractJSON finds a JSON object or array in text.
func extractJSON(text string) string {
	if idx := strings.Index(text, "```json"); idx >= 0 {
		start := idx + len("```json")
		if end := strings.Index(text[start:], "```"); end >= 0 {
			if candidate := strings.TrimSpace(text[start : start+end]); candidate != "" {
				return candidate
			}
		}
	}
	if idx := strings.Index(text, "```"); idx >= 0 {
		start := idx + 3
		if end := strings.Index(text[start:], "```"); end >= 0 {
			if candidate := strings.TrimSpace(text[start : start+end]); json.Valid([]byte(candidate)) {
				return candidate
			}
		}
	}
	for i := 0; i < len(text); i++ {
		if text[i] == '{' || text[i] == '[' {
			if candidate := extractBalanced(text[i:]); candidate != "" && json.Valid([]byte(candidate)) {
				return candidate
			}
		}
	}
	return ""
}

// extractBalanced returns the balanced JSON value at the start of s.
func extractBalanced(s string) string {
	var open, close byte
	switch s[0] {
	case '{':
		open, close = '{', '}'
	case '[':
		open, close = '[', ']'
	default:
		return ""
	}
	depth := 0
	inString := false
	escaped := false
	for i := 0; i < len(s); i++ {
		ch := s[i]
		if escaped {
			escaped = false
			continue
		}
		if ch == '\\' && inString {
			escaped = true
			continue
		}
		if ch == '"' {
			inString = !inString
			continue
		}
		if inString {
			continue
		}
		if ch == open {
			depth++
		} else if ch == close {
			depth--
			if depth == 0 {
				return s[:i+1]
			}
		}
	}
	return ""
}

func compactJSON(raw json.RawMessage) json.RawMessage {
	if len(bytes.TrimSpace(raw)) == 0 {
		return json.RawMessage("{}")
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return json.RawMessage("{}")
	}
	return buf.Bytes()
}
