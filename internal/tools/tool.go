// Package tools decodes task tool tags into typed specs and executes them.
package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Tool tags as stored on tasks.
const (
	ToolAgent     = "agent"
	ToolWebIngest = "web_ingest"
)

// ErrUnknownTool is returned when a task names a tool nobody handles.
var ErrUnknownTool = errors.New("unknown tool")

// Spec is one of AgentTask, WebIngestTask or UnknownTask.
type Spec interface {
	// Tool returns the tag the spec was decoded from.
	Tool() string
	isSpec()
}

// AgentTask asks a department agent to act on Input.
type AgentTask struct {
	Department string `json:"department"`
	Role       string `json:"role"`
	Name       string `json:"name"`
	Input      string `json:"input"`
}

// WebIngestTask fetches a page and remembers its text.
type WebIngestTask struct {
	URL        string   `json:"url"`
	Tags       []string `json:"tags"`
	Department string   `json:"department"`
}

// UnknownTask keeps the raw payload of a tool with no handler.
type UnknownTask struct {
	Name    string
	Payload json.RawMessage
}

func (AgentTask) Tool() string     { return ToolAgent }
func (WebIngestTask) Tool() string { return ToolWebIngest }
func (u UnknownTask) Tool() string { return u.Name }

func (AgentTask) isSpec()     {}
func (WebIngestTask) isSpec() {}
func (UnknownTask) isSpec()   {}

// Decode turns a task's tool tag and payload into a Spec. fallbackDept and
// details fill an agent task's department and input when the payload leaves
// them out. A payload that does not parse for a known tool decodes as
// UnknownTask.
func Decode(tool string, payload json.RawMessage, fallbackDept, details string) Spec {
	tag := normalizeTag(tool)
	if len(bytes.TrimSpace(payload)) == 0 {
		payload = json.RawMessage("{}")
	}
	switch tag {
	case ToolAgent:
		var t AgentTask
		if err := json.Unmarshal(payload, &t); err != nil {
			return UnknownTask{Name: tool, Payload: payload}
		}
		if t.Department == "" {
			t.Department = fallbackDept
		}
		if t.Role == "" {
			t.Role = "Director"
		}
		if t.Input == "" {
			t.Input = details
		}
		return t
	case ToolWebIngest:
		var t WebIngestTask
		if err := json.Unmarshal(payload, &t); err != nil || strings.TrimSpace(t.URL) == "" {
			return UnknownTask{Name: tool, Payload: payload}
		}
		if t.Department == "" {
			t.Department = fallbackDept
		}
		return t
	default:
		return UnknownTask{Name: tool, Payload: payload}
	}
}

func normalizeTag(tool string) string {
	tag := strings.ToLower(strings.TrimSpace(tool))
	switch tag {
	case "", "agent", "department_agent", "generic_agent", "delegate":
		return ToolAgent
	case "web_ingest", "web-ingest", "ingest_url", "web":
		return ToolWebIngest
	}
	return tag
}

// AgentInvoker runs a department agent turn.
type AgentInvoker interface {
	InvokeAgent(ctx context.Context, department, role, name, input string) (string, error)
}

// Ingester fetches and remembers web content.
type Ingester interface {
	Ingest(ctx context.Context, t WebIngestTask) (string, error)
}

// Executor dispatches specs to their handlers.
type Executor struct {
	agents AgentInvoker
	web    Ingester
}

// NewExecutor creates an executor. A nil handler makes its tool fail.
func NewExecutor(agents AgentInvoker, web Ingester) *Executor {
	return &Executor{agents: agents, web: web}
}

// Execute runs one spec and returns its result text.
func (e *Executor) Execute(ctx context.Context, spec Spec) (string, error) {
	switch t := spec.(type) {
	case AgentTask:
		if e.agents == nil {
			return "", fmt.Errorf("agent tool: no invoker configured")
		}
		return e.agents.InvokeAgent(ctx, t.Department, t.Role, t.Name, t.Input)
	case WebIngestTask:
		if e.web == nil {
			return "", fmt.Errorf("web ingest tool: no ingester configured")
		}
		return e.web.Ingest(ctx, t)
	case UnknownTask:
		return "", fmt.Errorf("%w: %s", ErrUnknownTool, t.Name)
	default:
		return "", fmt.Errorf("%w: %T", ErrUnknownTool, spec)
	}
}
