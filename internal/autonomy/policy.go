// Package autonomy implements the policy-gated plan, queue, execute and
// report cycle, plus the policy, goal and task operations that feed it.
package autonomy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/suzieq/ceo-office/internal/store"
)

// ErrInvalidMode is returned for a mode outside off, approvals, autopilot.
var ErrInvalidMode = errors.New("invalid autonomy mode")

// ValidMode reports whether mode is a known policy mode.
func ValidMode(mode string) bool {
	switch mode {
	case store.ModeOff, store.ModeApprovals, store.ModeAutopilot:
		return true
	}
	return false
}

// Policies reads and updates the autonomy policy, goals and tasks.
type Policies struct {
	store *store.Store
}

// NewPolicies creates the policy operations over st.
func NewPolicies(st *store.Store) *Policies {
	return &Policies{store: st}
}

// Get returns the stored policy, or the defaults when there is none.
func (p *Policies) Get(ctx context.Context) (store.AutonomyPolicy, error) {
	pol, err := p.store.GetPolicy(ctx)
	if err != nil {
		if errors.Is(err, store.ErrNotConfigured) {
			return store.DefaultPolicy(), nil
		}
		return store.AutonomyPolicy{}, fmt.Errorf("get policy: %w", err)
	}
	if pol == nil {
		return store.DefaultPolicy(), nil
	}
	return *pol, nil
}

// SetMode changes only the mode.
func (p *Policies) SetMode(ctx context.Context, mode string) (store.AutonomyPolicy, error) {
	mode = strings.ToLower(strings.TrimSpace(mode))
	if !ValidMode(mode) {
		return store.AutonomyPolicy{}, fmt.Errorf("%w: %q", ErrInvalidMode, mode)
	}
	pol, err := p.Get(ctx)
	if err != nil {
		return store.AutonomyPolicy{}, err
	}
	pol.Mode = mode
	return p.save(ctx, pol)
}

// PolicyPatch holds the fields to change; nil leaves a field unchanged.
type PolicyPatch struct {
	Mode             *string `json:"mode,omitempty"`
	RiskTolerance    *int    `json:"risk_tolerance,omitempty"`
	AutoDelegate     *bool   `json:"auto_delegate,omitempty"`
	MaxParallelTasks *int    `json:"max_parallel_tasks,omitempty"`
}

// SetPolicy applies patch to the current policy and upserts the row.
func (p *Policies) SetPolicy(ctx context.Context, patch PolicyPatch) (store.AutonomyPolicy, error) {
	pol, err := p.Get(ctx)
	if err != nil {
		return store.AutonomyPolicy{}, err
	}
	if patch.Mode != nil {
		mode := strings.ToLower(strings.TrimSpace(*patch.Mode))
		if !ValidMode(mode) {
			return store.AutonomyPolicy{}, fmt.Errorf("%w: %q", ErrInvalidMode, mode)
		}
		pol.Mode = mode
	}
	if patch.RiskTolerance != nil {
		pol.RiskTolerance = clamp(*patch.RiskTolerance, 1, 5)
	}
	if patch.AutoDelegate != nil {
		pol.AutoDelegate = *patch.AutoDelegate
	}
	if patch.MaxParallelTasks != nil {
		if *patch.MaxParallelTasks < 1 {
			return store.AutonomyPolicy{}, fmt.Errorf("%w: max_parallel_tasks must be at least 1", store.ErrInvalid)
		}
		pol.MaxParallelTasks = *patch.MaxParallelTasks
	}
	return p.save(ctx, pol)
}

func (p *Policies) save(ctx context.Context, pol store.AutonomyPolicy) (store.AutonomyPolicy, error) {
	saved, err := p.store.SavePolicy(ctx, pol)
	if err != nil {
		return store.AutonomyPolicy{}, fmt.Errorf("save policy: %w", err)
	}
	return *saved, nil
}

// AddGoal creates an active goal. Priority is clamped to [1,5].
func (p *Policies) AddGoal(ctx context.Context, title, description string, priority int) (*store.Goal, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, fmt.Errorf("%w: goal title required", store.ErrInvalid)
	}
	if priority == 0 {
		priority = 3
	}
	g, err := p.store.InsertGoal(ctx, store.Goal{
		Title:       title,
		Description: strings.TrimSpace(description),
		Priority:    clamp(priority, 1, 5),
		Status:      store.GoalActive,
	})
	if err != nil {
		return nil, fmt.Errorf("add goal: %w", err)
	}
	return g, nil
}

// ActiveGoals returns active goals, highest priority (lowest number) first.
func (p *Policies) ActiveGoals(ctx context.Context) ([]store.Goal, error) {
	return p.store.ListGoals(ctx, store.GoalActive)
}

// SetGoalStatus marks a goal done or cancelled, or reactivates it.
func (p *Policies) SetGoalStatus(ctx context.Context, id, status string) error {
	switch status {
	case store.GoalActive, store.GoalDone, store.GoalCancelled:
	default:
		return fmt.Errorf("%w: goal status %q", store.ErrInvalid, status)
	}
	return p.store.SetGoalStatus(ctx, id, status)
}

// TaskInput describes a task created by command or API.
type TaskInput struct {
	Title      string          `json:"title"`
	Details    string          `json:"details"`
	Department string          `json:"department"`
	Assignee   string          `json:"assignee"`
	Tool       string          `json:"tool"`
	Payload    json.RawMessage `json:"payload"`
	Importance int             `json:"importance"`
}

// AddTask queues a task.
func (p *Policies) AddTask(ctx context.Context, in TaskInput) (*store.Task, error) {
	in.Title = strings.TrimSpace(in.Title)
	if in.Title == "" {
		return nil, fmt.Errorf("%w: task title required", store.ErrInvalid)
	}
	if in.Importance == 0 {
		in.Importance = 3
	}
	if in.Tool == "" {
		in.Tool = "agent"
	}
	t, err := p.store.InsertTask(ctx, store.Task{
		Title:      in.Title,
		Details:    strings.TrimSpace(in.Details),
		Department: strings.TrimSpace(in.Department),
		Assignee:   strings.TrimSpace(in.Assignee),
		Tool:       in.Tool,
		Payload:    compactJSON(in.Payload),
		Importance: clamp(in.Importance, 1, 5),
	})
	if err != nil {
		return nil, fmt.Errorf("add task: %w", err)
	}
	return t, nil
}

// QueuedTasks returns up to limit queued tasks, oldest first.
func (p *Policies) QueuedTasks(ctx context.Context, limit int) ([]store.Task, error) {
	return p.store.ListTasks(ctx, store.TaskQueued, limit)
}

// Tasks lists tasks by status; an empty status lists all, newest first.
func (p *Policies) Tasks(ctx context.Context, status string, limit int) ([]store.Task, error) {
	return p.store.ListTasks(ctx, status, limit)
}

// RecordKPI stores a business signal for planning.
func (p *Policies) RecordKPI(ctx context.Context, name string, value float64, unit string) error {
	return p.store.InsertKPI(ctx, store.KPI{Name: name, Value: value, Unit: unit})
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
