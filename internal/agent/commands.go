package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/suzieq/ceo-office/internal/autonomy"
	"github.com/suzieq/ceo-office/internal/bus"
	"github.com/suzieq/ceo-office/internal/memory"
	"github.com/suzieq/ceo-office/internal/store"
)

// HelpText lists the slash commands.
const HelpText = `Commands:
  hire <department>[: name, name...]   build or extend a department
  fire <staff-id>                      deactivate a staff member
  remember <text>                      store a long-term note
  recall <query>                       search long-term memory
  goal [list | done <id> | <1-5> <title> | <title>]
  task [list | <title>]                queue a task
  mode <off|approvals|autopilot>       set the autonomy mode
  policy                               show the autonomy policy
  tick                                 run one autonomy cycle
  report                               send the daily report
  rnd [team size]                      bootstrap the R&D department
  help                                 show this message`

// Command interprets one slash command. msg.Command holds the command name
// and msg.Content its arguments.
func (o *Office) Command(ctx context.Context, msg *bus.InboundMessage) (string, error) {
	name, args := splitCommand(msg.Command, msg.Content)
	switch name {
	case "hire":
		return o.cmdHire(ctx, msg, args)
	case "fire":
		m, err := o.builder.Deactivate(ctx, args)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("Deactivated %s (%s).", m.Name, m.Role), nil
	case "remember":
		m, err := o.memory.Remember(ctx, memory.RememberInput{
			Content: args,
			Source:  msg.Channel,
			Actor:   msg.SenderID,
		})
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("Remembered (importance %d).", m.Importance), nil
	case "recall":
		return o.cmdRecall(ctx, args)
	case "goal":
		return o.cmdGoal(ctx, args)
	case "task":
		return o.cmdTask(ctx, args)
	case "mode":
		pol, err := o.loop.Policies().SetMode(ctx, args)
		if err != nil {
			return "", err
		}
		return "Autonomy mode is now " + pol.Mode + ".", nil
	case "policy":
		pol, err := o.loop.Policies().Get(ctx)
		if err != nil {
			return "", err
		}
		return formatPolicy(pol), nil
	case "tick":
		res, err := o.Tick(ctx)
		if err != nil {
			return "", err
		}
		if res.Skipped != "" {
			return "Autonomy tick skipped: " + res.Skipped + ".", nil
		}
		return fmt.Sprintf("Planned %d, executed %d.\n%s", len(res.Planned), len(res.Executed), res.Summary), nil
	case "report":
		return o.DailyReport(ctx)
	case "rnd":
		size := 0
		if args != "" {
			n, err := strconv.Atoi(args)
			if err != nil {
				return "", fmt.Errorf("%w: team size must be a number", store.ErrInvalid)
			}
			size = n
		}
		team, err := o.builder.BootstrapRnD(ctx, size)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("R&D ready: %s with %d scientists.", team.Director.Name, len(team.Employees)), nil
	case "help", "":
		return HelpText, nil
	default:
		return "Unknown command " + strconv.Quote(name) + ".\n" + HelpText, nil
	}
}

// splitCommand normalizes "/hire", "hire" or "/suzieq hire" forms into a
// command name and its argument text.
func splitCommand(command, content string) (string, string) {
	name := strings.ToLower(strings.TrimPrefix(strings.TrimSpace(command), "/"))
	args := strings.TrimSpace(content)
	if name == "" || name == "suzieq" || name == "suzie" {
		first, rest, _ := strings.Cut(args, " ")
		name = strings.ToLower(strings.TrimPrefix(first, "/"))
		args = strings.TrimSpace(rest)
	}
	return name, args
}

func (o *Office) cmdHire(ctx context.Context, msg *bus.InboundMessage, args string) (string, error) {
	dept, names := parseHire(args)
	channel := ""
	if msg.Channel == "slack" {
		channel = msg.ChatID
	}
	team, err := o.builder.BuildOrGet(ctx, dept, names, channel)
	if err != nil {
		return "", err
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s is staffed. Director: %s.", team.Department.Name, team.Director.Name)
	if len(team.Employees) > 0 {
		staff := make([]string, len(team.Employees))
		for i, e := range team.Employees {
			staff[i] = e.Name
		}
		fmt.Fprintf(&sb, " Employees: %s.", strings.Join(staff, ", "))
	}
	return sb.String(), nil
}

// parseHire accepts "Sales: Ana, Ben" or "Sales Ana Ben".
func parseHire(args string) (string, []string) {
	if dept, rest, ok := strings.Cut(args, ":"); ok {
		return strings.TrimSpace(dept), splitNames(rest)
	}
	dept, rest, _ := strings.Cut(strings.TrimSpace(args), " ")
	return dept, splitNames(rest)
}

func splitNames(s string) []string {
	sep := func(r rune) bool { return r == ',' }
	if !strings.Contains(s, ",") {
		sep = func(r rune) bool { return r == ' ' || r == '\t' }
	}
	var out []string
	for _, n := range strings.FieldsFunc(s, sep) {
		if n = strings.TrimSpace(n); n != "" {
			out = append(out, n)
		}
	}
	return out
}

func (o *Office) cmdRecall(ctx context.Context, query string) (string, error) {
	if query == "" {
		return "", fmt.Errorf("%w: recall needs a query", store.ErrInvalid)
	}
	matches, err := o.memory.RecallRanked(ctx, query, o.memory.ChatOptions())
	if err != nil {
		slog.Warn("Recall failed", "error", err)
		return "Recall failed, try again later.", nil
	}
	if o.tel != nil {
		o.tel.Metrics.RecordRecall(ctx, len(matches))
	}
	if len(matches) == 0 {
		return "Nothing relevant in memory.", nil
	}
	var sb strings.Builder
	for i, m := range matches {
		fmt.Fprintf(&sb, "%d. %s (score %.2f)\n", i+1, m.Content, m.Score)
	}
	return strings.TrimRight(sb.String(), "\n"), nil
}

func (o *Office) cmdGoal(ctx context.Context, args string) (string, error) {
	p := o.loop.Policies()
	first, rest, _ := strings.Cut(args, " ")
	switch strings.ToLower(first) {
	case "", "list":
		goals, err := p.ActiveGoals(ctx)
		if err != nil {
			return "", err
		}
		if len(goals) == 0 {
			return "No active goals.", nil
		}
		var sb strings.Builder
		for _, g := range goals {
			fmt.Fprintf(&sb, "[P%d] %s (%s)\n", g.Priority, g.Title, g.ID)
		}
		return strings.TrimRight(sb.String(), "\n"), nil
	case "done", "cancel":
		status := store.GoalDone
		if strings.EqualFold(first, "cancel") {
			status = store.GoalCancelled
		}
		id := strings.TrimSpace(rest)
		if err := p.SetGoalStatus(ctx, id, status); err != nil {
			return "", err
		}
		return fmt.Sprintf("Goal %s marked %s.", id, status), nil
	}
	priority := 0
	title := args
	if n, err := strconv.Atoi(first); err == nil {
		priority = n
		title = rest
	}
	g, err := p.AddGoal(ctx, title, "", priority)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Goal added at priority %d: %s.", g.Priority, g.Title), nil
}

func (o *Office) cmdTask(ctx context.Context, args string) (string, error) {
	p := o.loop.Policies()
	if args == "" || strings.EqualFold(args, "list") {
		tasks, err := p.QueuedTasks(ctx, 20)
		if err != nil {
			return "", err
		}
		if len(tasks) == 0 {
			return "No queued tasks.", nil
		}
		var sb strings.Builder
		for _, t := range tasks {
			fmt.Fprintf(&sb, "- %s [%s] (%s)\n", t.Title, t.Tool, t.ID)
		}
		return strings.TrimRight(sb.String(), "\n"), nil
	}
	t, err := p.AddTask(ctx, autonomy.TaskInput{Title: args, Details: args})
	if err != nil {
		return "", err
	}
	return "Task queued: " + t.Title + ".", nil
}

func formatPolicy(p store.AutonomyPolicy) string {
	return fmt.Sprintf("Mode: %s\nRisk tolerance: %d\nAuto delegate: %t\nMax parallel tasks: %d",
		p.Mode, p.RiskTolerance, p.AutoDelegate, p.MaxParallelTasks)
}
