package autonomy

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/suzieq/ceo-office/internal/bus"
	"github.com/suzieq/ceo-office/internal/config"
	"github.com/suzieq/ceo-office/internal/effort"
	"github.com/suzieq/ceo-office/internal/memory"
	"github.com/suzieq/ceo-office/internal/provider"
	"github.com/suzieq/ceo-office/internal/store"
	"github.com/suzieq/ceo-office/internal/telemetry"
	"github.com/suzieq/ceo-office/internal/tools"
)

// Tick outcomes.
const (
	OutcomeRan  = "ran"
	OutcomeOff  = "off"
	OutcomeBusy = "busy"
)

// Executor runs one decoded task.
type Executor interface {
	Execute(ctx context.Context, spec tools.Spec) (string, error)
}

// Notifier queues an outbound message.
type Notifier interface {
	Notify(ctx context.Context, msg *bus.OutboundMessage) error
}

// TaskOutcome is the result of executing one task in a tick.
type TaskOutcome struct {
	ID     string `json:"id"`
	Title  string `json:"title"`
	Tool   string `json:"tool"`
	Status string `json:"status"`
	Result string `json:"result,omitempty"`
	Error  string `json:"error,omitempty"`
}

// TickResult reports one cycle.
type TickResult struct {
	Mode     string        `json:"mode"`
	Skipped  string        `json:"skipped,omitempty"`
	Planned  []store.Task  `json:"planned"`
	Executed []TaskOutcome `json:"executed"`
	Summary  string        `json:"summary,omitempty"`
}

// Loop runs the autonomy cycle.
type Loop struct {
	store    *store.Store
	policies *Policies
	brain    provider.Brain
	executor Executor
	notifier Notifier
	parser   *PlanParser
	cfg      config.AutonomyConfig
	tel      *telemetry.Provider

	mu sync.Mutex
}

// LoopOptions holds the collaborators of a Loop. Notifier and Telemetry may
// be nil.
type LoopOptions struct {
	Store     *store.Store
	Brain     provider.Brain
	Executor  Executor
	Notifier  Notifier
	Telemetry *telemetry.Provider
	Config    config.AutonomyConfig
}

// NewLoop creates a loop.
func NewLoop(opts LoopOptions) (*Loop, error) {
	parser, err := NewPlanParser()
	if err != nil {
		return nil, err
	}
	cfg := opts.Config
	if cfg.ExecuteBatch <= 0 {
		cfg.ExecuteBatch = 5
	}
	if cfg.PlanMaxTasks <= 0 {
		cfg.PlanMaxTasks = 10
	}
	if cfg.KPILimit <= 0 {
		cfg.KPILimit = 20
	}
	if cfg.MemoryLimit <= 0 {
		cfg.MemoryLimit = 20
	}
	return &Loop{
		store:    opts.Store,
		policies: NewPolicies(opts.Store),
		brain:    opts.Brain,
		executor: opts.Executor,
		notifier: opts.Notifier,
		parser:   parser,
		cfg:      cfg,
		tel:      opts.Telemetry,
	}, nil
}

// Policies returns the policy operations the loop reads.
func (l *Loop) Policies() *Policies {
	return l.policies
}

// Tick runs one cycle. A tick already running in this process makes the
// call return immediately with Skipped set to "busy".
func (l *Loop) Tick(ctx context.Context) (*TickResult, error) {
	if !l.mu.TryLock() {
		l.metrics().RecordTick(ctx, OutcomeBusy)
		return &TickResult{Skipped: OutcomeBusy}, nil
	}
	defer l.mu.Unlock()

	ctx, span := l.tel.StartSpan(ctx, "autonomy.tick")
	defer span.End()

	pol, err := l.policies.Get(ctx)
	if err != nil {
		l.metrics().RecordTick(ctx, "error")
		return nil, err
	}
	if pol.Mode == store.ModeOff {
		l.metrics().RecordTick(ctx, OutcomeOff)
		return &TickResult{Mode: pol.Mode, Skipped: OutcomeOff, Planned: []store.Task{}, Executed: []TaskOutcome{}}, nil
	}

	res := &TickResult{Mode: pol.Mode, Planned: []store.Task{}, Executed: []TaskOutcome{}}

	planned, err := l.plan(ctx, pol)
	if err != nil {
		slog.Warn("Autonomy planning failed", "error", err)
	}
	capN := pol.MaxParallelTasks
	if capN <= 0 || capN > l.cfg.PlanMaxTasks {
		capN = l.cfg.PlanMaxTasks
	}
	if len(planned) > capN {
		planned = planned[:capN]
	}
	for _, pt := range planned {
		t, err := l.policies.AddTask(ctx, TaskInput{
			Title:      pt.Title,
			Details:    pt.Details,
			Department: pt.Department,
			Tool:       pt.Tool,
			Payload:    pt.Payload,
			Importance: pt.Importance,
		})
		if err != nil {
			slog.Warn("Failed to queue planned task", "title", pt.Title, "error", err)
			continue
		}
		res.Planned = append(res.Planned, *t)
	}

	queued, err := l.policies.QueuedTasks(ctx, l.cfg.ExecuteBatch)
	if err != nil {
		slog.Warn("Failed to list queued tasks", "error", err)
	}
	for _, t := range queued {
		res.Executed = append(res.Executed, l.execute(ctx, t))
	}

	res.Summary = l.summarize(ctx, pol, res)
	l.metrics().RecordTick(ctx, OutcomeRan)
	slog.Info("Autonomy tick complete", "mode", pol.Mode, "planned", len(res.Planned), "executed", len(res.Executed))
	return res, nil
}

// plan asks the decision service for candidate tasks. Any failure yields
// no tasks.
func (l *Loop) plan(ctx context.Context, pol store.AutonomyPolicy) ([]PlannedTask, error) {
	goals, err := l.policies.ActiveGoals(ctx)
	if err != nil {
		return nil, fmt.Errorf("load goals: %w", err)
	}
	kpis, err := l.store.RecentKPIs(ctx, l.cfg.KPILimit)
	if err != nil {
		slog.Warn("Failed to load KPIs", "error", err)
	}
	recent, err := l.store.RecentMemory(ctx, l.cfg.MemoryLimit)
	if err != nil {
		slog.Warn("Failed to load recent memory", "error", err)
	}

	prompt := planPrompt(pol, goals, kpis, recent, min(pol.MaxParallelTasks, l.cfg.PlanMaxTasks))
	start := time.Now()
	out, err := l.brain.Decide(ctx, prompt)
	l.metrics().RecordBrainCall(ctx, start, err)
	if err != nil {
		return nil, fmt.Errorf("decide plan: %w", err)
	}
	tasks, err := l.parser.Parse(out)
	if err != nil {
		return nil, err
	}
	return tasks, nil
}

func planPrompt(pol store.AutonomyPolicy, goals []store.Goal, kpis []store.KPI, recent []store.MemoryRecord, maxTasks int) string {
	if maxTasks <= 0 {
		maxTasks = 1
	}
	var sb strings.Builder
	sb.WriteString("You are Suzie Q, the CEO agent, planning the next actions for the company.\n")
	fmt.Fprintf(&sb, "Autonomy mode: %s. Risk tolerance: %d of 5. Auto delegate: %t.\n", pol.Mode, pol.RiskTolerance, pol.AutoDelegate)
	if pol.Mode == store.ModeApprovals {
		sb.WriteString("Tasks will be reviewed by a human; prefer reversible, low-risk work.\n")
	}

	sb.WriteString("\nActive goals (highest priority first):\n")
	if len(goals) == 0 {
		sb.WriteString("- none\n")
	}
	for _, g := range goals {
		fmt.Fprintf(&sb, "- [P%d] %s", g.Priority, g.Title)
		if g.Description != "" {
			fmt.Fprintf(&sb, ": %s", g.Description)
		}
		sb.WriteByte('\n')
	}

	sb.WriteString("\nRecent KPIs:\n")
	if len(kpis) == 0 {
		sb.WriteString("- none\n")
	}
	for _, k := range kpis {
		fmt.Fprintf(&sb, "- %s = %g%s (%s)\n", k.Name, k.Value, k.Unit, k.RecordedAt.Format(time.DateOnly))
	}

	if len(recent) > 0 {
		sb.WriteString("\nRecent activity:\n")
		for _, r := range recent {
			fmt.Fprintf(&sb, "- %s -> %s\n", memory.Clip(r.Context, 160), memory.Clip(r.Decision, 160))
		}
	}

	fmt.Fprintf(&sb, "\nReturn JSON only: {\"tasks\":[{\"title\":\"...\",\"details\":\"...\",\"department\":\"...\",\"tool\":\"agent|web_ingest\",\"payload\":{},\"importance\":1-5}]} with at most %d tasks.\n", maxTasks)
	return sb.String()
}

// execute runs one queued task and records its final status. Panics are
// recovered so one task cannot abort the batch.
func (l *Loop) execute(ctx context.Context, t store.Task) (out TaskOutcome) {
	out = TaskOutcome{ID: t.ID, Title: t.Title, Tool: t.Tool}
	ctx, span := l.tel.StartSpan(ctx, "autonomy.task",
		telemetry.AttrTaskID.String(t.ID),
		telemetry.AttrTool.String(t.Tool),
	)
	defer span.End()

	var (
		result string
		err    error
	)
	func() {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("task panicked: %v", r)
			}
		}()
		spec := tools.Decode(t.Tool, t.Payload, t.Department, taskInput(t))
		result, err = l.executor.Execute(ctx, spec)
	}()

	if err != nil {
		out.Status = store.TaskFailed
		out.Error = err.Error()
		slog.Warn("Autonomy task failed", "task", t.ID, "tool", t.Tool, "error", err)
	} else {
		out.Status = store.TaskDone
		out.Result = result
	}
	if ferr := l.store.FinishTask(ctx, t.ID, out.Status, out.Result, out.Error); ferr != nil {
		slog.Warn("Failed to record task status", "task", t.ID, "status", out.Status, "error", ferr)
	}
	l.metrics().RecordTask(ctx, out.Status)
	return out
}

func taskInput(t store.Task) string {
	if t.Details != "" {
		return t.Details
	}
	return t.Title
}

// summarize produces the tick summary, logs it and notifies. Every step is
// best-effort.
func (l *Loop) summarize(ctx context.Context, pol store.AutonomyPolicy, res *TickResult) string {
	var facts strings.Builder
	fmt.Fprintf(&facts, "Mode %s. Planned %d task(s):\n", pol.Mode, len(res.Planned))
	for _, t := range res.Planned {
		fmt.Fprintf(&facts, "- %s [%s]\n", t.Title, t.Tool)
	}
	fmt.Fprintf(&facts, "Executed %d task(s):\n", len(res.Executed))
	for _, e := range res.Executed {
		line := e.Result
		if e.Status == store.TaskFailed {
			line = e.Error
		}
		fmt.Fprintf(&facts, "- %s: %s (%s)\n", e.Title, e.Status, memory.Clip(line, 200))
	}

	summary := facts.String()
	start := time.Now()
	out, err := l.brain.Decide(ctx, "Summarize this autonomy cycle for the CEO in a few sentences:\n"+summary)
	l.metrics().RecordBrainCall(ctx, start, err)
	if err != nil {
		slog.Warn("Autonomy summary failed", "error", err)
	} else if strings.TrimSpace(out) != "" {
		summary = strings.TrimSpace(out)
	}

	effort.Do(ctx, "autonomy.log", func(ctx context.Context) error {
		return l.store.AppendMemory(ctx, store.MemoryRecord{
			Context:  "[autonomy] tick",
			Decision: summary,
			Source:   "autonomy",
		})
	})
	if l.notifier != nil && l.cfg.NotifyTarget != "" {
		effort.Do(ctx, "autonomy.notify", func(ctx context.Context) error {
			return l.notifier.Notify(ctx, &bus.OutboundMessage{
				Channel: l.cfg.NotifyChannel,
				ChatID:  l.cfg.NotifyTarget,
				Content: "Autonomy update: " + summary,
			})
		})
	}
	return summary
}

func (l *Loop) metrics() *telemetry.Metrics {
	if l.tel == nil {
		return nil
	}
	return l.tel.Metrics
}
