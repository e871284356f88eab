package agent

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/suzieq/ceo-office/internal/autonomy"
	"github.com/suzieq/ceo-office/internal/bus"
	"github.com/suzieq/ceo-office/internal/config"
	"github.com/suzieq/ceo-office/internal/memory"
	"github.com/suzieq/ceo-office/internal/org"
	"github.com/suzieq/ceo-office/internal/provider"
	"github.com/suzieq/ceo-office/internal/store"
	"github.com/suzieq/ceo-office/internal/tools"
)

type recordingBrain struct {
	mu      sync.Mutex
	prompts []string
	reply   string
	err     error
}

func (b *recordingBrain) Decide(ctx context.Context, prompt string) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.prompts = append(b.prompts, prompt)
	return b.reply, b.err
}

func (b *recordingBrain) last() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.prompts) == 0 {
		return ""
	}
	return b.prompts[len(b.prompts)-1]
}

// launchEmbedder maps text onto a single "launch" axis so any two notes
// about launches are similar.
type launchEmbedder struct{}

func (launchEmbedder) Embed(ctx context.Context, req *provider.EmbeddingRequest) (*provider.EmbeddingResponse, error) {
	v := []float32{0.1, 0.1}
	if strings.Contains(strings.ToLower(req.Input), "launch") {
		v[0] = 1
	} else {
		v[1] = 1
	}
	return &provider.EmbeddingResponse{Vector: v}, nil
}

type recordingNotifier struct {
	mu   sync.Mutex
	msgs []*bus.OutboundMessage
}

func (r *recordingNotifier) Notify(ctx context.Context, msg *bus.OutboundMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, msg)
	return nil
}

type fixture struct {
	office   *Office
	brain    *recordingBrain
	notifier *recordingNotifier
	store    *store.Store
	memory   *memory.Service
	bus      *bus.MessageBus
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	backend, err := store.OpenSQLite(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	st := store.New(backend)
	t.Cleanup(func() { _ = st.Close() })

	f := &fixture{
		brain:    &recordingBrain{reply: "On it."},
		notifier: &recordingNotifier{},
		store:    st,
		bus:      bus.NewMessageBus(10),
	}
	f.memory = memory.NewService(st, launchEmbedder{}, nil, config.DefaultConfig().Recall)
	builder := org.NewBuilder(st, "https://office.example")
	loop, err := autonomy.NewLoop(autonomy.LoopOptions{
		Store:    st,
		Brain:    f.brain,
		Executor: tools.NewExecutor(nil, nil),
	})
	if err != nil {
		t.Fatal(err)
	}
	f.office = NewOffice(Options{
		Bus:           f.bus,
		Notifier:      f.notifier,
		Brain:         f.brain,
		Memory:        f.memory,
		Builder:       builder,
		Research:      org.NewResearch(st, builder, f.memory),
		Loop:          loop,
		ReportChannel: "slack",
		ReportTarget:  "C-CEO",
		WorkerTimeout: 5 * time.Second,
	})
	return f
}

func (f *fixture) sent() []*bus.OutboundMessage {
	f.notifier.mu.Lock()
	defer f.notifier.mu.Unlock()
	return append([]*bus.OutboundMessage(nil), f.notifier.msgs...)
}

func TestChatUsesMemoryAndReplies(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if _, err := f.memory.Remember(ctx, memory.RememberInput{Content: "The launch is on Friday", Importance: 4}); err != nil {
		t.Fatal(err)
	}

	reply := f.office.Chat(ctx, &bus.InboundMessage{
		Channel:  "telegram",
		ChatID:   "42",
		SenderID: "u1",
		Content:  "When is the launch?",
	})
	if reply != "On it." {
		t.Fatalf("unexpected reply %q", reply)
	}
	prompt := f.brain.last()
	if !strings.HasPrefix(prompt, "You are Suzie Q (CEO). Respond concisely. Input: When is the launch?") {
		t.Errorf("unexpected prompt %q", prompt)
	}
	if !strings.Contains(prompt, "The launch is on Friday") {
		t.Errorf("prompt missing recalled memory: %q", prompt)
	}

	sent := f.sent()
	if len(sent) != 1 || sent[0].Channel != "telegram" || sent[0].ChatID != "42" || sent[0].Content != "On it." {
		t.Errorf("unexpected delivery %+v", sent)
	}
	logged, err := f.memory.Recent(ctx, 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(logged) != 1 || logged[0].Context != "When is the launch?" || logged[0].Decision != "On it." || logged[0].Source != "telegram" {
		t.Errorf("unexpected log %+v", logged)
	}
}

func TestChatBrainFailureSendsGreeting(t *testing.T) {
	f := newFixture(t)
	f.brain.err = errors.New("service unavailable")

	reply := f.office.Chat(context.Background(), &bus.InboundMessage{Channel: "slack", ChatID: "C1", Content: "hello"})
	if reply != Greeting {
		t.Fatalf("expected greeting, got %q", reply)
	}
	if sent := f.sent(); len(sent) != 1 || sent[0].Content != Greeting {
		t.Errorf("greeting not delivered: %+v", sent)
	}
}

func TestInvokeAgent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	out, err := f.office.InvokeAgent(ctx, "Sales", "Employee", "Ana", "draft a pitch")
	if err != nil {
		t.Fatal(err)
	}
	if out != "On it." {
		t.Errorf("unexpected output %q", out)
	}
	want := "You are an AI Employee for the Sales department named Ana. Be specialized and concise. Input: draft a pitch"
	if !strings.HasPrefix(f.brain.last(), want) {
		t.Errorf("unexpected prompt %q", f.brain.last())
	}
	logged, _ := f.memory.Recent(ctx, 5)
	if len(logged) != 1 || logged[0].Department != "Sales" || logged[0].Actor != "Ana" {
		t.Errorf("unexpected log %+v", logged)
	}

	if _, err := f.office.InvokeAgent(ctx, "Sales", "", "", "  "); !errors.Is(err, store.ErrInvalid) {
		t.Errorf("expected ErrInvalid for empty input, got %v", err)
	}

	f.brain.err = errors.New("down")
	if _, err := f.office.InvokeAgent(ctx, "Sales", "", "", "anything"); err == nil {
		t.Error("expected decision service error to surface")
	}
}

func TestDailyReport(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if err := f.memory.Log(ctx, store.MemoryRecord{Context: "signed Acme", Decision: "celebrate", Source: "slack"}); err != nil {
		t.Fatal(err)
	}
	f.brain.reply = "Great day."

	report, err := f.office.DailyReport(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if report != "Great day." {
		t.Errorf("unexpected report %q", report)
	}
	prompt := f.brain.last()
	if !strings.Contains(prompt, "- Context: signed Acme\n  Decision: celebrate") {
		t.Errorf("report prompt missing activity: %q", prompt)
	}
	if !strings.HasPrefix(prompt, "Summarize the last 24 hours") || !strings.Contains(prompt, "KPIs and next actions") {
		t.Errorf("unexpected report instruction: %q", prompt)
	}
	sent := f.sent()
	if len(sent) != 1 || sent[0].ChatID != "C-CEO" || sent[0].Content != "Daily CEO Report:\nGreat day." {
		t.Errorf("unexpected delivery %+v", sent)
	}
	logged, _ := f.memory.Recent(ctx, 1)
	if len(logged) != 1 || logged[0].Context != "[system] daily-report" || logged[0].Source != "cron" {
		t.Errorf("unexpected log %+v", logged)
	}
}

func TestCommands(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	run := func(command, content string) string {
		t.Helper()
		out, err := f.office.Command(ctx, &bus.InboundMessage{
			Kind: bus.KindCommand, Channel: "slack", ChatID: "C1", SenderID: "U1",
			Command: command, Content: content,
		})
		if err != nil {
			t.Fatalf("%s %s: %v", command, content, err)
		}
		return out
	}

	if out := run("/hire", "Sales: Ana, Ben"); !strings.Contains(out, "Director Sales") || !strings.Contains(out, "Ana, Ben") {
		t.Errorf("unexpected hire reply %q", out)
	}
	dept, err := f.store.FindDepartment(ctx, "Sales")
	if err != nil || dept == nil || dept.SlackChannelID != "C1" {
		t.Errorf("expected department bound to channel, got %+v %v", dept, err)
	}
	if out := run("/suzieq", "goal 1 Double revenue"); !strings.Contains(out, "priority 1") {
		t.Errorf("unexpected goal reply %q", out)
	}
	if out := run("goal", "list"); !strings.Contains(out, "Double revenue") {
		t.Errorf("unexpected goal list %q", out)
	}
	if out := run("task", "Research competitors"); !strings.Contains(out, "Task queued") {
		t.Errorf("unexpected task reply %q", out)
	}
	if out := run("mode", "autopilot"); !strings.Contains(out, "autopilot") {
		t.Errorf("unexpected mode reply %q", out)
	}
	if out := run("policy", ""); !strings.Contains(out, "Mode: autopilot") {
		t.Errorf("unexpected policy reply %q", out)
	}
	if out := run("remember", "The launch slipped a week"); !strings.Contains(out, "Remembered") {
		t.Errorf("unexpected remember reply %q", out)
	}
	if out := run("recall", "launch date"); !strings.Contains(out, "launch slipped") {
		t.Errorf("unexpected recall reply %q", out)
	}
	if out := run("rnd", "3"); !strings.Contains(out, "Chief Scientist with 3 scientists") {
		t.Errorf("unexpected rnd reply %q", out)
	}
	if out := run("dance", ""); !strings.Contains(out, "Unknown command") {
		t.Errorf("unexpected reply %q", out)
	}

	if _, err := f.office.Command(ctx, &bus.InboundMessage{Command: "mode", Content: "yolo"}); !errors.Is(err, autonomy.ErrInvalidMode) {
		t.Errorf("expected ErrInvalidMode, got %v", err)
	}
	if _, err := f.office.Command(ctx, &bus.InboundMessage{Command: "fire", Content: "missing-id"}); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

type failingEmbedder struct{}

func (failingEmbedder) Embed(ctx context.Context, req *provider.EmbeddingRequest) (*provider.EmbeddingResponse, error) {
	return nil, errors.New("embeddings API 500: upstream https://internal.example/v1 key=sk-INTERNAL")
}

func TestHandleReportsCommandFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.office.Handle(ctx, &bus.InboundMessage{
		Kind: bus.KindCommand, Channel: "slack", ChatID: "C1", Command: "mode", Content: "yolo",
	})
	sent := f.sent()
	if len(sent) != 1 || !strings.HasPrefix(sent[0].Content, "Command failed:") || !strings.Contains(sent[0].Content, "yolo") {
		t.Fatalf("expected the invalid mode to be echoed, got %+v", sent)
	}
}

func TestHandleHidesUpstreamErrors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.office.memory = memory.NewService(f.store, failingEmbedder{}, nil, config.DefaultConfig().Recall)
	f.brain.err = errors.New("brain 502 from https://internal.example/decide")

	f.office.Handle(ctx, &bus.InboundMessage{
		Kind: bus.KindCommand, Channel: "slack", ChatID: "C1", Command: "recall", Content: "launch",
	})
	f.office.Handle(ctx, &bus.InboundMessage{
		Kind: bus.KindCommand, Channel: "slack", ChatID: "C1", Command: "report",
	})

	sent := f.sent()
	if len(sent) != 2 {
		t.Fatalf("expected two replies, got %+v", sent)
	}
	if sent[0].Content != "Recall failed, try again later." {
		t.Errorf("unexpected recall reply %q", sent[0].Content)
	}
	if sent[1].Content != genericFailure {
		t.Errorf("unexpected report reply %q", sent[1].Content)
	}
	for _, m := range sent {
		if strings.Contains(m.Content, "internal.example") || strings.Contains(m.Content, "sk-") {
			t.Errorf("reply leaks internals: %q", m.Content)
		}
	}
}

func TestRunConsumesBus(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.office.Run(ctx) }()

	if err := f.bus.PublishInbound(&bus.InboundMessage{Kind: bus.KindChat, Channel: "slack", ChatID: "C9", Content: "hi"}); err != nil {
		t.Fatal(err)
	}
	deadline := time.Now().Add(2 * time.Second)
	for len(f.sent()) == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run returned %v", err)
	}
	if sent := f.sent(); len(sent) != 1 || sent[0].ChatID != "C9" {
		t.Fatalf("expected one reply, got %+v", sent)
	}
}

func TestSplitCommand(t *testing.T) {
	tests := []struct {
		command, content string
		name, args       string
	}{
		{"/hire", "Sales Ana", "hire", "Sales Ana"},
		{"/suzieq", "recall launch plans", "recall", "launch plans"},
		{"", "/help", "help", ""},
		{"TICK", "", "tick", ""},
	}
	for _, tt := range tests {
		name, args := splitCommand(tt.command, tt.content)
		if name != tt.name || args != tt.args {
			t.Errorf("splitCommand(%q, %q) = %q, %q", tt.command, tt.content, name, args)
		}
	}
}
