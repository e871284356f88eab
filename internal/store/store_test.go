package store

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func newTestStore(t *testing.T) (*Store, *SQLiteBackend) {
	t.Helper()
	b, err := OpenSQLite(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { b.Close() })
	return New(b, WithTimeout(5*time.Second)), b
}

func TestAppendAndRecentMemory(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)

	for i, ctxText := range []string{"first", "second", "third"} {
		err := s.AppendMemory(ctx, MemoryRecord{
			Context:   ctxText,
			Decision:  "ok",
			Source:    "slack",
			Timestamp: base.Add(time.Duration(i) * time.Minute),
		})
		if err != nil {
			t.Fatalf("append %s: %v", ctxText, err)
		}
	}

	got, err := s.RecentMemory(ctx, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 records, got %d", len(got))
	}
	if got[0].Context != "third" || got[1].Context != "second" {
		t.Errorf("expected newest first, got %q, %q", got[0].Context, got[1].Context)
	}
	if got[0].ID == "" {
		t.Error("expected generated id")
	}
	if !got[0].Timestamp.Equal(base.Add(2 * time.Minute)) {
		t.Errorf("timestamp round trip: got %v", got[0].Timestamp)
	}
}

func TestMatchMemoriesSQLite(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	mems := []LongTermMemory{
		{Content: "pricing plan", Embedding: []float32{1, 0, 0}, Importance: 5, Department: "Sales", CreatedAt: now.Add(-time.Hour)},
		{Content: "pricing draft", Embedding: []float32{0.9, 0.1, 0}, Importance: 1, Department: "Sales", CreatedAt: now.Add(-60 * 24 * time.Hour)},
		{Content: "lunch menu", Embedding: []float32{0, 0, 1}, Importance: 5, Department: "Sales", CreatedAt: now},
		{Content: "marketing pricing", Embedding: []float32{1, 0, 0}, Importance: 3, Department: "Marketing", CreatedAt: now},
		{Content: "no vector", Importance: 3, CreatedAt: now},
	}
	for _, m := range mems {
		if _, err := s.InsertLongTerm(ctx, m); err != nil {
			t.Fatalf("insert %q: %v", m.Content, err)
		}
	}

	got, err := s.MatchMemories(ctx, MatchQuery{
		Embedding:     []float32{1, 0, 0},
		Count:         5,
		MinSimilarity: 0.2,
		Department:    "Sales",
		Ranked:        true,
		HalfLifeDays:  14,
		Alpha:         0.15,
		Beta:          0.10,
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 Sales matches above floor, got %d: %+v", len(got), got)
	}
	if got[0].Content != "pricing plan" {
		t.Errorf("expected pricing plan first, got %q", got[0].Content)
	}
	for _, m := range got {
		if m.Similarity < 0.2 {
			t.Errorf("%q below floor", m.Content)
		}
		if m.Department != "Sales" {
			t.Errorf("%q leaked from %s", m.Content, m.Department)
		}
		if m.Embedding != nil {
			t.Errorf("embedding should not be returned")
		}
	}

	global, err := s.MatchMemories(ctx, MatchQuery{Embedding: []float32{1, 0, 0}, Count: 10, MinSimilarity: 0.2})
	if err != nil {
		t.Fatal(err)
	}
	if len(global) != 3 {
		t.Fatalf("expected 3 global matches, got %d", len(global))
	}
	if global[0].Score != global[0].Similarity {
		t.Error("unranked score should equal similarity")
	}
}

func TestCreateDepartmentConflictRefetches(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	first, err := s.CreateDepartment(ctx, Department{Name: "Ops"})
	if err != nil {
		t.Fatal(err)
	}
	second, err := s.CreateDepartment(ctx, Department{Name: "Ops"})
	if err != nil {
		t.Fatalf("conflict should resolve by re-fetch, got %v", err)
	}
	if first.ID != second.ID {
		t.Errorf("expected same department id, got %s and %s", first.ID, second.ID)
	}
	all, err := s.ListDepartments(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 1 {
		t.Errorf("expected one department row, got %d", len(all))
	}
}

// silentBackend never echoes inserted rows.
type silentBackend struct {
	*SQLiteBackend
}

func (b silentBackend) InsertReturning(ctx context.Context, table string, row Row) (Row, error) {
	return nil, b.Insert(ctx, table, row)
}

func TestCreateRecoversRowWhenNotEchoed(t *testing.T) {
	_, sqliteBackend := newTestStore(t)
	s := New(silentBackend{sqliteBackend})
	ctx := context.Background()

	dept, err := s.CreateDepartment(ctx, Department{Name: "R&D"})
	if err != nil {
		t.Fatal(err)
	}
	project, err := s.CreateProject(ctx, RnDProject{DepartmentID: dept.ID, Title: "Vector search", Hypothesis: "faster recall"})
	if err != nil {
		t.Fatalf("expected recovery by natural key, got %v", err)
	}
	if project.ID == "" || project.Title != "Vector search" || project.Status != ProjectActive {
		t.Errorf("unexpected recovered project %+v", project)
	}
}

func TestFinishTaskOnlyFromQueued(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	task, err := s.InsertTask(ctx, Task{
		Title:      "Research competitors",
		Tool:       "web_ingest",
		Payload:    json.RawMessage(`{"url":"https://example.com"}`),
		Importance: 3,
		Status:     TaskDone,
	})
	if err != nil {
		t.Fatal(err)
	}
	if task.Status != TaskQueued {
		t.Fatalf("new tasks must be queued, got %s", task.Status)
	}
	var payload map[string]string
	if err := json.Unmarshal(task.Payload, &payload); err != nil || payload["url"] != "https://example.com" {
		t.Errorf("payload did not survive storage: %s", task.Payload)
	}

	if err := s.FinishTask(ctx, task.ID, TaskFailed, "", "boom"); err != nil {
		t.Fatal(err)
	}
	if err := s.FinishTask(ctx, task.ID, TaskDone, "late", ""); !errors.Is(err, ErrNotFound) {
		t.Fatalf("finished task must not transition again, got %v", err)
	}
	if err := s.FinishTask(ctx, task.ID, TaskQueued, "", ""); !errors.Is(err, ErrInvalid) {
		t.Fatalf("expected invalid status error, got %v", err)
	}

	tasks, err := s.ListTasks(ctx, TaskFailed, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(tasks) != 1 || tasks[0].Error != "boom" {
		t.Fatalf("expected one failed task with error, got %+v", tasks)
	}
}

func TestListGoalsByPriority(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	for _, g := range []Goal{
		{Title: "low", Priority: 5},
		{Title: "top", Priority: 1},
		{Title: "mid", Priority: 3},
		{Title: "old", Priority: 2, Status: GoalDone},
	} {
		if _, err := s.InsertGoal(ctx, g); err != nil {
			t.Fatal(err)
		}
	}
	goals, err := s.ListGoals(ctx, GoalActive)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"top", "mid", "low"}
	if len(goals) != len(want) {
		t.Fatalf("expected %d active goals, got %d", len(want), len(goals))
	}
	for i, title := range want {
		if goals[i].Title != title {
			t.Errorf("position %d: got %s want %s", i, goals[i].Title, title)
		}
	}
}

func TestSavePolicyUpserts(t *testing.T) {
	s, b := newTestStore(t)
	ctx := context.Background()

	if p, err := s.GetPolicy(ctx); err != nil || p != nil {
		t.Fatalf("expected no policy, got %+v, %v", p, err)
	}
	p := DefaultPolicy()
	p.Mode = ModeAutopilot
	if _, err := s.SavePolicy(ctx, p); err != nil {
		t.Fatal(err)
	}
	p.Mode = ModeApprovals
	p.AutoDelegate = true
	p.MaxParallelTasks = 7
	if _, err := s.SavePolicy(ctx, p); err != nil {
		t.Fatal(err)
	}

	got, err := s.GetPolicy(ctx)
	if err != nil || got == nil {
		t.Fatalf("get policy: %v", err)
	}
	if got.Mode != ModeApprovals || !got.AutoDelegate || got.MaxParallelTasks != 7 {
		t.Errorf("policy not patched: %+v", got)
	}
	var n int
	if err := b.DB().QueryRow(`SELECT COUNT(*) FROM autonomy_policy`).Scan(&n); err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("expected a single policy row, got %d", n)
	}
}

func TestUnconfiguredStoreDegrades(t *testing.T) {
	s := New(nil)
	ctx := context.Background()

	if s.Configured() {
		t.Fatal("nil backend should be unconfigured")
	}
	if err := s.AppendMemory(ctx, MemoryRecord{Context: "hi"}); err != nil {
		t.Errorf("insert should be a no-op, got %v", err)
	}
	if recs, err := s.RecentMemory(ctx, 10); err != nil || len(recs) != 0 {
		t.Errorf("select should be empty, got %v, %v", recs, err)
	}
	if m, err := s.MatchMemories(ctx, MatchQuery{Embedding: []float32{1}}); err != nil || len(m) != 0 {
		t.Errorf("match should be empty, got %v, %v", m, err)
	}
	if _, err := s.CreateDepartment(ctx, Department{Name: "Ops"}); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("expected ErrNotConfigured, got %v", err)
	}
	if err := s.SetStaffStatus(ctx, "x", StaffInactive); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("expected ErrNotConfigured, got %v", err)
	}
}

// flakyBackend fails the first n selects.
type flakyBackend struct {
	NopBackend
	failures int32
	err      error
	calls    atomic.Int32
}

func (f *flakyBackend) Select(context.Context, string, Query) ([]Row, error) {
	if f.calls.Add(1) <= f.failures {
		return nil, f.err
	}
	return []Row{{"id": "d1", "name": "Ops"}}, nil
}

func TestSelectRetriesOnceOnTransientFailure(t *testing.T) {
	ctx := context.Background()

	f := &flakyBackend{failures: 1, err: errors.New("connection reset")}
	d, err := New(f).FindDepartment(ctx, "Ops")
	if err != nil || d == nil || d.ID != "d1" {
		t.Fatalf("expected recovery after one retry, got %+v, %v", d, err)
	}
	if f.calls.Load() != 2 {
		t.Errorf("expected 2 calls, got %d", f.calls.Load())
	}

	f = &flakyBackend{failures: 2, err: errors.New("connection reset")}
	if _, err := New(f).FindDepartment(ctx, "Ops"); err == nil {
		t.Fatal("expected failure after second attempt")
	}
	if f.calls.Load() != 2 {
		t.Errorf("expected exactly 2 calls, got %d", f.calls.Load())
	}

	f = &flakyBackend{failures: 1, err: &APIError{Status: 400, Message: "bad filter"}}
	if _, err := New(f).FindDepartment(ctx, "Ops"); err == nil {
		t.Fatal("client errors are not retried")
	}
	if f.calls.Load() != 1 {
		t.Errorf("expected 1 call for client error, got %d", f.calls.Load())
	}
}

func TestSQLiteRejectsUnknownColumns(t *testing.T) {
	_, b := newTestStore(t)
	ctx := context.Background()
	_, err := b.Select(ctx, TableDepartments, Query{Where: []Filter{Eq("name; DROP TABLE staff", "x")}})
	if !errors.Is(err, ErrInvalid) {
		t.Fatalf("expected ErrInvalid, got %v", err)
	}
	if _, err := b.Select(ctx, "nope", Query{}); !errors.Is(err, ErrInvalid) {
		t.Fatalf("expected ErrInvalid for unknown table, got %v", err)
	}
}

func TestRankedMatchUsesStoreClock(t *testing.T) {
	b, err := OpenSQLite(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { b.Close() })
	written := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	s := New(b, WithClock(func() time.Time { return written }))
	ctx := context.Background()

	if _, err := s.InsertLongTerm(ctx, LongTermMemory{Content: "old note", Embedding: []float32{1, 0}, Importance: 1, CreatedAt: written}); err != nil {
		t.Fatal(err)
	}
	got, err := s.MatchMemories(ctx, MatchQuery{Embedding: []float32{1, 0}, Count: 1, Ranked: true, HalfLifeDays: 1, Beta: 1})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 {
		t.Fatalf("expected one match, got %d", len(got))
	}
	// At the store's clock the note is brand new, so recency adds the full beta.
	if bonus := got[0].Score - got[0].Similarity; bonus < 0.99 {
		t.Errorf("recency measured against the wrong clock: bonus %.4f", bonus)
	}
}

func TestInMemorySQLiteEnforcesForeignKeys(t *testing.T) {
	s, _ := newTestStore(t)
	_, err := s.CreateStaff(context.Background(), StaffMember{Name: "Ghost", Role: RoleEmployee, DepartmentID: "no-such-department"})
	if err == nil {
		t.Fatal("expected foreign key violation")
	}
}
