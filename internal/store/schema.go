package store

import (
	"encoding/json"
	"time"
)

// Logical tables.
const (
	TableMemory         = "memory"
	TableLongTermMemory = "long_term_memory"
	TableDepartments    = "departments"
	TableStaff          = "staff"
	TableReportingLines = "reporting_lines"
	TableGoals          = "goals"
	TableTasks          = "tasks"
	TableAutonomyPolicy = "autonomy_policy"
	TableKPIs           = "kpis"
	TableRnDProjects    = "rnd_projects"
	TableRnDExperiments = "rnd_experiments"
	TableRnDKnowledge   = "rnd_knowledge"
)

// Staff roles and statuses.
const (
	RoleDirector = "Director"
	RoleEmployee = "Employee"

	StaffActive   = "active"
	StaffInactive = "inactive"
)

// Goal statuses.
const (
	GoalActive    = "active"
	GoalDone      = "done"
	GoalCancelled = "cancelled"
)

// Task statuses. Tasks only move from queued to done or failed.
const (
	TaskQueued = "queued"
	TaskDone   = "done"
	TaskFailed = "failed"
)

// Autonomy modes.
const (
	ModeOff       = "off"
	ModeApprovals = "approvals"
	ModeAutopilot = "autopilot"
)

// R&D statuses.
const (
	ProjectActive = "active"
	ProjectClosed = "closed"

	ExperimentPlanned = "planned"
	ExperimentRunning = "running"
	ExperimentDone    = "done"
)

// MemoryRecord is one short-term activity log entry. Append-only.
type MemoryRecord struct {
	ID         string    `json:"id,omitempty"`
	Context    string    `json:"context"`
	Decision   string    `json:"decision"`
	Source     string    `json:"source"`
	Department string    `json:"department,omitempty"`
	Actor      string    `json:"actor,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// LongTermMemory is a durable, embedding-indexed note. Immutable once written.
type LongTermMemory struct {
	ID         string    `json:"id,omitempty"`
	Content    string    `json:"content"`
	Embedding  []float32 `json:"embedding,omitempty"`
	Tags       []string  `json:"tags"`
	Importance int       `json:"importance"`
	Source     string    `json:"source"`
	Department string    `json:"department,omitempty"`
	Actor      string    `json:"actor,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// MemoryMatch is a long-term memory returned by a similarity search.
type MemoryMatch struct {
	LongTermMemory
	Similarity float64 `json:"similarity"`
	Score      float64 `json:"score"`
}

// Department is keyed by its unique name.
type Department struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	SlackChannelID string    `json:"slack_channel_id,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// StaffMember is unique per (name, role, department_id).
type StaffMember struct {
	ID               string    `json:"id"`
	Name             string    `json:"name"`
	Role             string    `json:"role"`
	DepartmentID     string    `json:"department_id"`
	Status           string    `json:"status"`
	AgentEndpointURL string    `json:"agent_endpoint_url"`
	CreatedAt        time.Time `json:"created_at"`
}

// ReportingLine is a directed manager -> report edge.
type ReportingLine struct {
	ID        string    `json:"id"`
	ManagerID string    `json:"manager_id"`
	ReportID  string    `json:"report_id"`
	CreatedAt time.Time `json:"created_at"`
}

// Goal is read by the autonomy loop, lowest priority number first.
type Goal struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Priority    int       `json:"priority"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
}

// Task is a unit of work dispatched to a tool.
type Task struct {
	ID         string          `json:"id"`
	Title      string          `json:"title"`
	Details    string          `json:"details"`
	Department string          `json:"department,omitempty"`
	Assignee   string          `json:"assignee,omitempty"`
	Tool       string          `json:"tool"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	Importance int             `json:"importance"`
	Status     string          `json:"status"`
	Result     string          `json:"result,omitempty"`
	Error      string          `json:"error,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// AutonomyPolicy gates the autonomy loop. There is at most one row.
type AutonomyPolicy struct {
	ID               string    `json:"id,omitempty"`
	Mode             string    `json:"mode"`
	RiskTolerance    int       `json:"risk_tolerance"`
	AutoDelegate     bool      `json:"auto_delegate"`
	MaxParallelTasks int       `json:"max_parallel_tasks"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// DefaultPolicy is used when no policy row exists.
func DefaultPolicy() AutonomyPolicy {
	return AutonomyPolicy{Mode: ModeOff, RiskTolerance: 2, AutoDelegate: false, MaxParallelTasks: 3}
}

// KPI is a recorded business signal.
type KPI struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Value      float64   `json:"value"`
	Unit       string    `json:"unit,omitempty"`
	RecordedAt time.Time `json:"recorded_at"`
}

// RnDProject is unique per (department_id, title).
type RnDProject struct {
	ID           string    `json:"id"`
	DepartmentID string    `json:"department_id"`
	Title        string    `json:"title"`
	Hypothesis   string    `json:"hypothesis"`
	Status       string    `json:"status"`
	CreatedAt    time.Time `json:"created_at"`
}

// RnDExperiment is unique per (project_id, title).
type RnDExperiment struct {
	ID        string    `json:"id"`
	ProjectID string    `json:"project_id"`
	Title     string    `json:"title"`
	Method    string    `json:"method"`
	Status    string    `json:"status"`
	Result    string    `json:"result,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// RnDKnowledge is an append-only research finding.
type RnDKnowledge struct {
	ID        string    `json:"id"`
	ProjectID string    `json:"project_id"`
	Content   string    `json:"content"`
	Source    string    `json:"source"`
	CreatedAt time.Time `json:"created_at"`
}
