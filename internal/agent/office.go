// Package agent implements the office: the CEO chat turn, department agent
// invocation, the daily report, the slash-command interpreter and the
// inbound worker that drives them from the message bus.
package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/suzieq/ceo-office/internal/autonomy"
	"github.com/suzieq/ceo-office/internal/bus"
	"github.com/suzieq/ceo-office/internal/effort"
	"github.com/suzieq/ceo-office/internal/memory"
	"github.com/suzieq/ceo-office/internal/org"
	"github.com/suzieq/ceo-office/internal/provider"
	"github.com/suzieq/ceo-office/internal/store"
	"github.com/suzieq/ceo-office/internal/telemetry"
)

// Greeting is the reply when the decision service cannot be reached.
const Greeting = "Hi, I'm Suzie Q. I'm having trouble thinking right now. Please try again shortly."

// DefaultDepartment is used for agent calls that name no department.
const DefaultDepartment = "Executive"

const reportWindow = 200

// ErrEmptyInput is returned when an agent is invoked without input.
var ErrEmptyInput = fmt.Errorf("%w: input required", store.ErrInvalid)

// Notifier queues an outbound message.
type Notifier interface {
	Notify(ctx context.Context, msg *bus.OutboundMessage) error
}

// Office ties the decision service, memory and organization together.
type Office struct {
	bus      *bus.MessageBus
	notifier Notifier
	brain    provider.Brain
	memory   *memory.Service
	builder  *org.Builder
	research *org.Research
	loop     *autonomy.Loop
	tel      *telemetry.Provider

	reportChannel string
	reportTarget  string
	workerTimeout time.Duration
}

// Options holds the office's collaborators. Notifier defaults to Bus.
type Options struct {
	Bus       *bus.MessageBus
	Notifier  Notifier
	Brain     provider.Brain
	Memory    *memory.Service
	Builder   *org.Builder
	Research  *org.Research
	Loop      *autonomy.Loop
	Telemetry *telemetry.Provider

	// ReportChannel and ReportTarget address the daily report.
	ReportChannel string
	ReportTarget  string
	WorkerTimeout time.Duration
}

// NewOffice creates an office.
func NewOffice(opts Options) *Office {
	n := opts.Notifier
	if n == nil && opts.Bus != nil {
		n = opts.Bus
	}
	timeout := opts.WorkerTimeout
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	channel := opts.ReportChannel
	if channel == "" {
		channel = "slack"
	}
	return &Office{
		bus:           opts.Bus,
		notifier:      n,
		brain:         opts.Brain,
		memory:        opts.Memory,
		builder:       opts.Builder,
		research:      opts.Research,
		loop:          opts.Loop,
		tel:           opts.Telemetry,
		reportChannel: channel,
		reportTarget:  opts.ReportTarget,
		workerTimeout: timeout,
	}
}

// Chat answers one message as the CEO. It never fails: a decision service
// error yields Greeting. The reply is delivered to the originating chat and
// logged, both best-effort.
func (o *Office) Chat(ctx context.Context, msg *bus.InboundMessage) string {
	ctx, span := o.tel.StartSpan(ctx, "office.chat", telemetry.AttrSource.String(msg.Channel))
	defer span.End()

	text := strings.TrimSpace(msg.Content)
	prompt := "You are Suzie Q (CEO). Respond concisely. Input: " + text
	if mem := o.memory.ContextFor(ctx, text, o.memory.ChatOptions()); mem != "" {
		prompt += "\n\n" + mem
	}

	reply, err := o.decide(ctx, prompt)
	if err != nil {
		slog.Warn("Decision service failed, sending greeting", "channel", msg.Channel, "error", err)
		reply = Greeting
	}

	o.reply(ctx, msg, reply)
	o.log(ctx, store.MemoryRecord{
		Context:  text,
		Decision: reply,
		Source:   msg.Channel,
		Actor:    msg.SenderID,
	})
	return reply
}

// InvokeAgent runs one department agent turn. Unlike Chat, a decision
// service failure is returned.
func (o *Office) InvokeAgent(ctx context.Context, department, role, name, input string) (string, error) {
	department = strings.TrimSpace(department)
	if department == "" {
		department = DefaultDepartment
	}
	role = strings.TrimSpace(role)
	if role == "" {
		role = store.RoleDirector
	}
	name = strings.TrimSpace(name)
	if name == "" {
		name = o.builder.DirectorName(department)
	}
	input = strings.TrimSpace(input)
	if input == "" {
		return "", ErrEmptyInput
	}

	ctx, span := o.tel.StartSpan(ctx, "office.invoke_agent",
		telemetry.AttrDepartment.String(department),
		telemetry.AttrRole.String(role),
	)
	defer span.End()

	prompt := fmt.Sprintf("You are an AI %s for the %s department named %s. Be specialized and concise. Input: %s",
		role, department, name, input)
	if mem := o.memory.ContextFor(ctx, input, o.memory.AgentOptions(department)); mem != "" {
		prompt += "\n\n" + mem
	}

	out, err := o.decide(ctx, prompt)
	if err != nil {
		return "", fmt.Errorf("%s %s: %w", department, role, err)
	}
	o.log(ctx, store.MemoryRecord{
		Context:    fmt.Sprintf("[%s/%s] %s", department, role, input),
		Decision:   out,
		Source:     "agent",
		Department: department,
		Actor:      name,
	})
	return out, nil
}

// DailyReport summarizes the recent activity log and sends it to the CEO
// channel.
func (o *Office) DailyReport(ctx context.Context) (string, error) {
	rows, err := o.memory.Recent(ctx, reportWindow)
	if err != nil {
		return "", fmt.Errorf("load activity: %w", err)
	}

	var sb strings.Builder
	sb.WriteString("Summarize the last 24 hours of Suzie Q operations into an executive report with KPIs and next actions.\n")
	if len(rows) == 0 {
		sb.WriteString("No activity recorded. Summarize recent activity.\n")
	}
	for _, r := range rows {
		fmt.Fprintf(&sb, "- Context: %s\n  Decision: %s\n", memory.Clip(r.Context, 200), memory.Clip(r.Decision, 200))
	}

	report, err := o.decide(ctx, sb.String())
	if err != nil {
		return "", fmt.Errorf("daily report: %w", err)
	}
	if o.reportTarget != "" {
		o.notify(ctx, &bus.OutboundMessage{
			Channel: o.reportChannel,
			ChatID:  o.reportTarget,
			Content: "Daily CEO Report:\n" + report,
		})
	}
	o.log(ctx, store.MemoryRecord{
		Context:  "[system] daily-report",
		Decision: report,
		Source:   "cron",
	})
	return report, nil
}

// Tick runs one autonomy cycle.
func (o *Office) Tick(ctx context.Context) (*autonomy.TickResult, error) {
	if o.loop == nil {
		return nil, errors.New("autonomy loop not configured")
	}
	return o.loop.Tick(ctx)
}

func (o *Office) decide(ctx context.Context, prompt string) (string, error) {
	start := time.Now()
	out, err := o.brain.Decide(ctx, prompt)
	if o.tel != nil {
		o.tel.Metrics.RecordBrainCall(ctx, start, err)
	}
	return out, err
}

func (o *Office) reply(ctx context.Context, msg *bus.InboundMessage, content string) {
	if msg.ChatID == "" || content == "" {
		return
	}
	o.notify(ctx, &bus.OutboundMessage{
		Channel:  msg.Channel,
		ChatID:   msg.ChatID,
		ThreadID: msg.ThreadID,
		Content:  content,
	})
}

func (o *Office) notify(ctx context.Context, msg *bus.OutboundMessage) {
	if o.notifier == nil {
		return
	}
	effort.Do(ctx, "notify."+msg.Channel, func(ctx context.Context) error {
		return o.notifier.Notify(ctx, msg)
	})
}

func (o *Office) log(ctx context.Context, rec store.MemoryRecord) {
	effort.Do(ctx, "memory.log", func(ctx context.Context) error {
		return o.memory.Log(ctx, rec)
	})
}
