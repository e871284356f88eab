package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/suzieq/ceo-office/internal/agent"
	"github.com/suzieq/ceo-office/internal/autonomy"
	"github.com/suzieq/ceo-office/internal/bus"
	"github.com/suzieq/ceo-office/internal/channels"
	"github.com/suzieq/ceo-office/internal/config"
	"github.com/suzieq/ceo-office/internal/gateway"
	"github.com/suzieq/ceo-office/internal/memory"
	"github.com/suzieq/ceo-office/internal/org"
	"github.com/suzieq/ceo-office/internal/provider"
	"github.com/suzieq/ceo-office/internal/scheduler"
	"github.com/suzieq/ceo-office/internal/store"
	"github.com/suzieq/ceo-office/internal/telemetry"
	"github.com/suzieq/ceo-office/internal/tools"
)

const busCapacity = 256

// app is one fully wired office. Every command builds its own.
type app struct {
	cfg       *config.Config
	store     *store.Store
	bus       *bus.MessageBus
	telemetry *telemetry.Provider
	memory    *memory.Service
	builder   *org.Builder
	research  *org.Research
	policies  *autonomy.Policies
	loop      *autonomy.Loop
	office    *agent.Office
	channels  []channels.Channel
}

// officeInvoker lets the tool executor reach the office, which is built
// after the loop that owns the executor.
type officeInvoker struct {
	office *agent.Office
}

func (i *officeInvoker) InvokeAgent(ctx context.Context, department, role, name, input string) (string, error) {
	if i.office == nil {
		return "", errors.New("office not ready")
	}
	return i.office.InvokeAgent(ctx, department, role, name, input)
}

func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	setupLogging(cfg.Log, logWriter())

	tp, err := telemetry.Init(ctx, cfg.Telemetry)
	if err != nil {
		slog.Warn("Telemetry disabled", "error", err)
		tp = telemetry.Noop()
	}

	st, err := store.Open(cfg)
	if err != nil {
		_ = tp.Shutdown(ctx)
		return nil, fmt.Errorf("open store: %w", err)
	}

	brain, err := provider.NewBrain(cfg.Brain)
	if err != nil {
		st.Close()
		_ = tp.Shutdown(ctx)
		return nil, fmt.Errorf("brain: %w", err)
	}
	if p, ok := brain.(*provider.OpenAIProvider); ok {
		slog.Info("Decision service ready", "kind", "openai", "model", p.DefaultModel())
	} else {
		slog.Info("Decision service ready", "kind", "http", "url", cfg.Brain.URL)
	}
	embedder := provider.NewEmbedder(cfg.Embedding)
	if embedder == nil {
		slog.Info("Embeddings disabled, long-term memory will not be searchable")
	}

	a := &app{
		cfg:       cfg,
		store:     st,
		bus:       bus.NewMessageBus(busCapacity),
		telemetry: tp,
	}
	a.memory = memory.NewService(st, embedder, provider.NewBrainScorer(brain), cfg.Recall)
	a.builder = org.NewBuilder(st, cfg.Server.PublicURL)
	a.research = org.NewResearch(st, a.builder, a.memory)

	invoker := &officeInvoker{}
	executor := tools.NewExecutor(invoker, tools.NewWebIngester(a.memory, cfg.Server.RequestTimeout, cfg.Autonomy.WebIngestLimit))
	a.loop, err = autonomy.NewLoop(autonomy.LoopOptions{
		Store:     st,
		Brain:     brain,
		Executor:  executor,
		Notifier:  a.bus,
		Telemetry: tp,
		Config:    cfg.Autonomy,
	})
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("autonomy loop: %w", err)
	}
	a.policies = a.loop.Policies()

	a.office = agent.NewOffice(agent.Options{
		Bus:           a.bus,
		Brain:         brain,
		Memory:        a.memory,
		Builder:       a.builder,
		Research:      a.research,
		Loop:          a.loop,
		Telemetry:     tp,
		ReportChannel: cfg.Autonomy.NotifyChannel,
		ReportTarget:  reportTarget(cfg),
		WorkerTimeout: cfg.Server.WorkerTimeout,
	})
	invoker.office = a.office

	a.channels = []channels.Channel{
		channels.NewSlackChannel(cfg.Slack),
		channels.NewTelegramChannel(cfg.Telegram),
		channels.NewKafkaChannel(cfg.Kafka),
	}
	channels.Attach(a.bus, a.channels...)
	return a, nil
}

func reportTarget(cfg *config.Config) string {
	if cfg.Autonomy.NotifyTarget != "" {
		return cfg.Autonomy.NotifyTarget
	}
	return cfg.Slack.CEOChannelID
}

// gateway builds the HTTP server over the app.
func (a *app) gateway() *gateway.Server {
	return gateway.New(gateway.Options{
		Office:   a.office,
		Bus:      a.bus,
		Memory:   a.memory,
		Builder:  a.builder,
		Research: a.research,
		Policies: a.policies,
		Store:    a.store,
		Config:   a.cfg,
	})
}

// scheduler registers the periodic jobs.
func (a *app) scheduler() (*scheduler.Scheduler, error) {
	s := scheduler.New(a.cfg.Scheduler)
	if err := s.Add(scheduler.JobAutonomyTick, a.cfg.Scheduler.AutonomyCron, scheduler.CategoryLLM, func(ctx context.Context) error {
		res, err := a.office.Tick(ctx)
		if err != nil {
			return err
		}
		if res.Skipped != "" {
			slog.Debug("Autonomy tick skipped", "reason", res.Skipped)
		}
		return nil
	}); err != nil {
		return nil, err
	}
	if err := s.Add(scheduler.JobDailyReport, a.cfg.Scheduler.DailyReportCron, scheduler.CategoryLLM, func(ctx context.Context) error {
		_, err := a.office.DailyReport(ctx)
		return err
	}); err != nil {
		return nil, err
	}
	return s, nil
}

// flush delivers notifications queued by a one-shot command.
func (a *app) flush(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	a.bus.Drain(ctx)
}

// Close releases the store, channels and telemetry.
func (a *app) Close() {
	for _, ch := range a.channels {
		if err := ch.Close(); err != nil {
			slog.Warn("Channel close failed", "channel", ch.Name(), "error", err)
		}
	}
	if err := a.store.Close(); err != nil {
		slog.Warn("Store close failed", "error", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.telemetry.Shutdown(ctx); err != nil {
		slog.Warn("Telemetry shutdown failed", "error", err)
	}
}

// withApp builds an app, runs fn and flushes outbound notifications.
func withApp(ctx context.Context, fn func(a *app) error) error {
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()
	err = fn(a)
	a.flush(ctx)
	return err
}
