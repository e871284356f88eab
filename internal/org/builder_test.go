package org

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/suzieq/ceo-office/internal/memory"
	"github.com/suzieq/ceo-office/internal/store"
)

func newTestStore(t *testing.T) (*store.Store, *store.SQLiteBackend) {
	t.Helper()
	b, err := store.OpenSQLite(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { b.Close() })
	return store.New(b, store.WithTimeout(5*time.Second)), b
}

func countRows(t *testing.T, b *store.SQLiteBackend, table string) int {
	t.Helper()
	var n int
	if err := b.DB().QueryRow("SELECT COUNT(*) FROM " + table).Scan(&n); err != nil {
		t.Fatal(err)
	}
	return n
}

func TestBuildOrGetIsIdempotent(t *testing.T) {
	st, db := newTestStore(t)
	b := NewBuilder(st, "https://office.example.com/")
	ctx := context.Background()

	first, err := b.BuildOrGet(ctx, "Marketing", []string{"Ana", "Ben"}, "C123")
	if err != nil {
		t.Fatal(err)
	}
	second, err := b.BuildOrGet(ctx, "Marketing", []string{"Ana", "Ben"}, "C123")
	if err != nil {
		t.Fatal(err)
	}

	if first.Department.ID != second.Department.ID || first.Director.ID != second.Director.ID {
		t.Fatalf("expected identical ids, got %+v and %+v", first, second)
	}
	for i := range first.Employees {
		if first.Employees[i].ID != second.Employees[i].ID {
			t.Errorf("employee %d id changed", i)
		}
	}
	if first.Director.Name != "Director Marketing" {
		t.Errorf("unexpected director name %q", first.Director.Name)
	}
	if first.Department.SlackChannelID != "C123" {
		t.Errorf("channel not recorded: %+v", first.Department)
	}
	if want := "https://office.example.com/agents/marketing/employee/Ana"; first.Employees[0].AgentEndpointURL != want {
		t.Errorf("endpoint = %q, want %q", first.Employees[0].AgentEndpointURL, want)
	}

	for table, want := range map[string]int{
		store.TableDepartments:    1,
		store.TableStaff:          3,
		store.TableReportingLines: 2,
	} {
		if got := countRows(t, db, table); got != want {
			t.Errorf("%s rows = %d, want %d", table, got, want)
		}
	}
}

func TestBuildOrGetAddsOnlyNewEmployee(t *testing.T) {
	st, db := newTestStore(t)
	b := NewBuilder(st, "http://localhost:8080")
	ctx := context.Background()

	if _, err := b.BuildOrGet(ctx, "Sales", []string{"Ana", "Ben"}, ""); err != nil {
		t.Fatal(err)
	}
	team, err := b.BuildOrGet(ctx, "Sales", []string{"Ana", "Ben", "Cara"}, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(team.Employees) != 3 {
		t.Fatalf("expected 3 employees, got %d", len(team.Employees))
	}
	if got := countRows(t, db, store.TableStaff); got != 4 {
		t.Errorf("staff rows = %d, want 4", got)
	}
	if got := countRows(t, db, store.TableReportingLines); got != 3 {
		t.Errorf("reporting lines = %d, want 3", got)
	}
}

func TestBuildOrGetDefaultsAndDedupes(t *testing.T) {
	st, _ := newTestStore(t)
	b := NewBuilder(st, "http://localhost:8080")
	ctx := context.Background()

	team, err := b.BuildOrGet(ctx, "customer success", nil, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(team.Employees) != DefaultTeamSize {
		t.Fatalf("expected %d placeholder employees, got %d", DefaultTeamSize, len(team.Employees))
	}
	if team.Employees[0].Name != "Customer Success Employee 1" || team.Employees[4].Name != "Customer Success Employee 5" {
		t.Errorf("unexpected placeholder names %q..%q", team.Employees[0].Name, team.Employees[4].Name)
	}
	if team.Director.Name != "Director Customer Success" {
		t.Errorf("unexpected director %q", team.Director.Name)
	}

	team, err = b.BuildOrGet(ctx, "Ops", []string{" Ana ", "Ana", ""}, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(team.Employees) != 1 || team.Employees[0].Name != "Ana" {
		t.Errorf("expected one trimmed employee, got %+v", team.Employees)
	}
}

func TestBuildOrGetRejectsEmptyDepartment(t *testing.T) {
	st, _ := newTestStore(t)
	if _, err := NewBuilder(st, "").BuildOrGet(context.Background(), "  ", nil, ""); !errors.Is(err, ErrInvalidDepartment) {
		t.Fatalf("expected ErrInvalidDepartment, got %v", err)
	}
}

// failingStaffBackend rejects inserting one staff name.
type failingStaffBackend struct {
	*store.SQLiteBackend
	name string
}

func (f failingStaffBackend) InsertReturning(ctx context.Context, table string, row store.Row) (store.Row, error) {
	if table == store.TableStaff && row["name"] == f.name {
		return nil, errors.New("insert rejected")
	}
	return f.SQLiteBackend.InsertReturning(ctx, table, row)
}

func TestBuildOrGetReportsFailingStepAndRetries(t *testing.T) {
	_, sqliteBackend := newTestStore(t)
	failing := store.New(failingStaffBackend{SQLiteBackend: sqliteBackend, name: "Ben"})
	ctx := context.Background()

	_, err := NewBuilder(failing, "").BuildOrGet(ctx, "Finance", []string{"Ana", "Ben"}, "")
	var buildErr *BuildError
	if !errors.As(err, &buildErr) || buildErr.Step != "employee:Ben" {
		t.Fatalf("expected BuildError at employee:Ben, got %v", err)
	}

	// Earlier rows are kept and a retry completes without duplicates.
	healthy := store.New(sqliteBackend)
	team, err := NewBuilder(healthy, "").BuildOrGet(ctx, "Finance", []string{"Ana", "Ben"}, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(team.Employees) != 2 {
		t.Fatalf("expected 2 employees after retry, got %d", len(team.Employees))
	}
	if got := countRows(t, sqliteBackend, store.TableStaff); got != 3 {
		t.Errorf("staff rows = %d, want 3", got)
	}
	if got := countRows(t, sqliteBackend, store.TableReportingLines); got != 2 {
		t.Errorf("reporting lines = %d, want 2", got)
	}
}

func TestConcurrentBuildsDoNotDuplicate(t *testing.T) {
	st, db := newTestStore(t)
	b := NewBuilder(st, "")
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make(chan error, 4)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := b.BuildOrGet(ctx, "Legal", []string{"Dana"}, ""); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Errorf("concurrent build failed: %v", err)
	}
	if got := countRows(t, db, store.TableDepartments); got != 1 {
		t.Errorf("departments = %d, want 1", got)
	}
	if got := countRows(t, db, store.TableStaff); got != 2 {
		t.Errorf("staff = %d, want 2", got)
	}
	if got := countRows(t, db, store.TableReportingLines); got != 1 {
		t.Errorf("reporting lines = %d, want 1", got)
	}
}

func TestBuildWithoutStoreFails(t *testing.T) {
	_, err := NewBuilder(store.New(nil), "").BuildOrGet(context.Background(), "Ops", nil, "")
	if !errors.Is(err, store.ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
}

func TestDeactivateAndRoster(t *testing.T) {
	st, _ := newTestStore(t)
	b := NewBuilder(st, "")
	ctx := context.Background()

	team, err := b.BuildOrGet(ctx, "Support", []string{"Ana", "Ben"}, "")
	if err != nil {
		t.Fatal(err)
	}
	fired, err := b.Deactivate(ctx, team.Employees[0].ID)
	if err != nil {
		t.Fatal(err)
	}
	if fired.Name != "Ana" || fired.Status != store.StaffInactive {
		t.Errorf("unexpected deactivated member %+v", fired)
	}
	roster, err := b.Roster(ctx, "Support")
	if err != nil {
		t.Fatal(err)
	}
	if roster.Director == nil || roster.Director.ID != team.Director.ID {
		t.Fatalf("expected director in roster, got %+v", roster.Director)
	}
	if len(roster.Employees) != 1 || roster.Employees[0].Name != "Ben" {
		t.Errorf("expected only Ben active, got %+v", roster.Employees)
	}
	if roster.ReportingLines != 2 {
		t.Errorf("reporting lines are kept on deactivation, got %d", roster.ReportingLines)
	}

	if _, err := b.Deactivate(ctx, ""); !errors.Is(err, store.ErrInvalid) {
		t.Errorf("empty id: expected ErrInvalid, got %v", err)
	}
	if _, err := b.Deactivate(ctx, "missing"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("unknown id: expected ErrNotFound, got %v", err)
	}
	if _, err := NewBuilder(store.New(nil), "").Deactivate(ctx, "x"); !errors.Is(err, store.ErrNotConfigured) {
		t.Errorf("no store: expected ErrNotConfigured, got %v", err)
	}
	if _, err := b.Roster(ctx, "Nowhere"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("unknown department: expected ErrNotFound, got %v", err)
	}
}

func TestSlug(t *testing.T) {
	tests := map[string]string{
		"Marketing":        "marketing",
		"R&D":              "r-and-d",
		" Customer  Care ": "customer-care",
		"Director":         "director",
	}
	for in, want := range tests {
		if got := Slug(in); got != want {
			t.Errorf("Slug(%q) = %q, want %q", in, got, want)
		}
	}
}

type recordingMemory struct {
	inputs []memory.RememberInput
}

func (r *recordingMemory) Remember(ctx context.Context, in memory.RememberInput) (*store.LongTermMemory, error) {
	r.inputs = append(r.inputs, in)
	return &store.LongTermMemory{Content: in.Content}, nil
}

func TestBootstrapRnDClampsTeamSize(t *testing.T) {
	st, _ := newTestStore(t)
	b := NewBuilder(st, "")
	ctx := context.Background()

	team, err := b.BootstrapRnD(ctx, 50)
	if err != nil {
		t.Fatal(err)
	}
	if len(team.Employees) != MaxRnDTeamSize {
		t.Errorf("expected %d scientists, got %d", MaxRnDTeamSize, len(team.Employees))
	}
	if team.Director.Name != RnDDirector || team.Department.Name != RnDDepartment {
		t.Errorf("unexpected R&D team %+v", team)
	}
	if !strings.HasPrefix(team.Employees[0].Name, RnDEmployee) {
		t.Errorf("unexpected scientist name %q", team.Employees[0].Name)
	}

	small, err := b.BootstrapRnD(ctx, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(small.Employees) != MinRnDTeamSize || small.Director.ID != team.Director.ID {
		t.Errorf("expected clamp to %d and same director", MinRnDTeamSize)
	}
}

func TestResearchUpsertsByNaturalKey(t *testing.T) {
	st, db := newTestStore(t)
	mem := &recordingMemory{}
	r := NewResearch(st, NewBuilder(st, ""), mem)
	ctx := context.Background()

	p1, err := r.CreateProject(ctx, "Agent memory", "ranking helps")
	if err != nil {
		t.Fatal(err)
	}
	p2, err := r.CreateProject(ctx, "Agent memory", "")
	if err != nil {
		t.Fatal(err)
	}
	if p1.ID != p2.ID {
		t.Fatalf("expected same project, got %s and %s", p1.ID, p2.ID)
	}

	e1, err := r.AddExperiment(ctx, p1.ID, "Half-life sweep", "grid")
	if err != nil {
		t.Fatal(err)
	}
	e2, err := r.AddExperiment(ctx, p1.ID, "Half-life sweep", "grid")
	if err != nil {
		t.Fatal(err)
	}
	if e1.ID != e2.ID || e1.Status != store.ExperimentPlanned {
		t.Fatalf("unexpected experiments %+v %+v", e1, e2)
	}

	if _, err := r.RecordKnowledge(ctx, p1.ID, "14 days works best", ""); err != nil {
		t.Fatal(err)
	}
	if len(mem.inputs) != 1 || mem.inputs[0].Department != RnDDepartment || mem.inputs[0].Source != "rnd" {
		t.Errorf("finding not remembered: %+v", mem.inputs)
	}
	if got := countRows(t, db, store.TableRnDProjects); got != 1 {
		t.Errorf("projects = %d, want 1", got)
	}

	projects, err := r.Projects(ctx)
	if err != nil || len(projects) != 1 {
		t.Errorf("expected one project listed, got %v, %v", projects, err)
	}

	if _, err := r.CreateProject(ctx, " ", ""); !errors.Is(err, store.ErrInvalid) {
		t.Errorf("expected ErrInvalid for empty title, got %v", err)
	}
	if _, err := r.AddExperiment(ctx, "no-such-project", "Sweep", ""); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("experiment on unknown project: expected ErrNotFound, got %v", err)
	}
	if _, err := r.RecordKnowledge(ctx, "no-such-project", "finding", ""); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("knowledge on unknown project: expected ErrNotFound, got %v", err)
	}
	if got := countRows(t, db, store.TableRnDExperiments); got != 1 {
		t.Errorf("experiments = %d, want 1", got)
	}
}
