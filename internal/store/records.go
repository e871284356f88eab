package store

import (
	"context"
	"fmt"
	"strings"
)

// ---------------------------------------------------------------------------
// Short-term memory
// ---------------------------------------------------------------------------

// AppendMemory writes a short-term log entry. With no store configured this
// is a no-op.
func (s *Store) AppendMemory(ctx context.Context, rec MemoryRecord) error {
	if rec.ID == "" {
		rec.ID = newLogID()
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = s.Now()
	}
	return insert(ctx, s, TableMemory, rec)
}

// RecentMemory returns the newest log entries first.
func (s *Store) RecentMemory(ctx context.Context, limit int) ([]MemoryRecord, error) {
	return selectAll[MemoryRecord](ctx, s, TableMemory, Query{
		Order: []Order{{Column: "timestamp", Desc: true}},
		Limit: limit,
	})
}

// ---------------------------------------------------------------------------
// Long-term memory
// ---------------------------------------------------------------------------

// InsertLongTerm stores a long-term memory record.
func (s *Store) InsertLongTerm(ctx context.Context, m LongTermMemory) (LongTermMemory, error) {
	if m.ID == "" {
		m.ID = newLogID()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = s.Now()
	}
	if m.Tags == nil {
		m.Tags = []string{}
	}
	return m, insert(ctx, s, TableLongTermMemory, m)
}

// MatchMemories runs a similarity search, retrying once on transient
// failure.
func (s *Store) MatchMemories(ctx context.Context, q MatchQuery) ([]MemoryMatch, error) {
	if len(q.Embedding) == 0 {
		return nil, nil
	}
	if q.Now.IsZero() {
		q.Now = s.Now()
	}
	var out []MemoryMatch
	err := s.retryOnce(ctx, "match memories", func(ctx context.Context) error {
		var err error
		out, err = s.backend.MatchMemories(ctx, q)
		return err
	})
	return out, err
}

// ---------------------------------------------------------------------------
// Organization
// ---------------------------------------------------------------------------

// FindDepartment looks a department up by exact name. Returns nil when absent.
func (s *Store) FindDepartment(ctx context.Context, name string) (*Department, error) {
	return selectOne[Department](ctx, s, TableDepartments, Eq("name", name))
}

// CreateDepartment inserts a department, resolving races by name.
func (s *Store) CreateDepartment(ctx context.Context, d Department) (*Department, error) {
	if d.ID == "" {
		d.ID = newID()
	}
	if d.CreatedAt.IsZero() {
		d.CreatedAt = s.Now()
	}
	return createOrFetch(ctx, s, TableDepartments, &d, Eq("name", d.Name))
}

// ListDepartments returns all departments by name.
func (s *Store) ListDepartments(ctx context.Context) ([]Department, error) {
	return selectAll[Department](ctx, s, TableDepartments, Query{
		Order: []Order{{Column: "name"}},
	})
}

// FindStaff looks a staff member up by its uniqueness key.
func (s *Store) FindStaff(ctx context.Context, name, role, departmentID string) (*StaffMember, error) {
	return selectOne[StaffMember](ctx, s, TableStaff,
		Eq("name", name), Eq("role", role), Eq("department_id", departmentID))
}

// GetStaff looks a staff member up by id. Returns ErrNotFound for an
// unknown id.
func (s *Store) GetStaff(ctx context.Context, id string) (*StaffMember, error) {
	m, err := selectOne[StaffMember](ctx, s, TableStaff, Eq("id", id))
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, fmt.Errorf("%w: staff %s", ErrNotFound, id)
	}
	return m, nil
}

// CreateStaff inserts a staff member, resolving races by (name, role,
// department_id).
func (s *Store) CreateStaff(ctx context.Context, m StaffMember) (*StaffMember, error) {
	if m.ID == "" {
		m.ID = newID()
	}
	if m.Status == "" {
		m.Status = StaffActive
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = s.Now()
	}
	return createOrFetch(ctx, s, TableStaff, &m,
		Eq("name", m.Name), Eq("role", m.Role), Eq("department_id", m.DepartmentID))
}

// ListStaff returns staff in a department, optionally filtered by role.
func (s *Store) ListStaff(ctx context.Context, departmentID, role string) ([]StaffMember, error) {
	where := []Filter{Eq("department_id", departmentID)}
	if role != "" {
		where = append(where, Eq("role", role))
	}
	return selectAll[StaffMember](ctx, s, TableStaff, Query{
		Where: where,
		Order: []Order{{Column: "created_at"}, {Column: "name"}},
	})
}

// SetStaffStatus changes a staff member's status. Returns ErrNotFound when
// no row matched.
func (s *Store) SetStaffStatus(ctx context.Context, id, status string) error {
	n, err := update(ctx, s, TableStaff, []Filter{Eq("id", id)}, Row{"status": status})
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("staff %s: %w", id, ErrNotFound)
	}
	return nil
}

// FindReportingLine returns the manager -> report edge, or nil.
func (s *Store) FindReportingLine(ctx context.Context, managerID, reportID string) (*ReportingLine, error) {
	return selectOne[ReportingLine](ctx, s, TableReportingLines,
		Eq("manager_id", managerID), Eq("report_id", reportID))
}

// CreateReportingLine inserts an edge, resolving races by its endpoints.
func (s *Store) CreateReportingLine(ctx context.Context, l ReportingLine) (*ReportingLine, error) {
	if l.ID == "" {
		l.ID = newID()
	}
	if l.CreatedAt.IsZero() {
		l.CreatedAt = s.Now()
	}
	return createOrFetch(ctx, s, TableReportingLines, &l,
		Eq("manager_id", l.ManagerID), Eq("report_id", l.ReportID))
}

// ReportingLines lists the edges out of a manager.
func (s *Store) ReportingLines(ctx context.Context, managerID string) ([]ReportingLine, error) {
	return selectAll[ReportingLine](ctx, s, TableReportingLines, Query{
		Where: []Filter{Eq("manager_id", managerID)},
		Order: []Order{{Column: "created_at"}},
	})
}

// ---------------------------------------------------------------------------
// Goals and tasks
// ---------------------------------------------------------------------------

// InsertGoal stores a goal.
func (s *Store) InsertGoal(ctx context.Context, g Goal) (*Goal, error) {
	if g.ID == "" {
		g.ID = newID()
	}
	if g.Status == "" {
		g.Status = GoalActive
	}
	if g.CreatedAt.IsZero() {
		g.CreatedAt = s.Now()
	}
	return createOrFetch(ctx, s, TableGoals, &g, Eq("id", g.ID))
}

// ListGoals returns goals with the given status, lowest priority number
// first. An empty status lists everything.
func (s *Store) ListGoals(ctx context.Context, status string) ([]Goal, error) {
	q := Query{Order: []Order{{Column: "priority"}, {Column: "created_at"}}}
	if status != "" {
		q.Where = []Filter{Eq("status", status)}
	}
	return selectAll[Goal](ctx, s, TableGoals, q)
}

// SetGoalStatus changes a goal's status.
func (s *Store) SetGoalStatus(ctx context.Context, id, status string) error {
	n, err := update(ctx, s, TableGoals, []Filter{Eq("id", id)}, Row{"status": status})
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("goal %s: %w", id, ErrNotFound)
	}
	return nil
}

// InsertTask stores a task in the queued state.
func (s *Store) InsertTask(ctx context.Context, t Task) (*Task, error) {
	if t.ID == "" {
		t.ID = newID()
	}
	t.Status = TaskQueued
	now := s.Now()
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	t.UpdatedAt = t.CreatedAt
	if len(t.Payload) == 0 {
		t.Payload = []byte("{}")
	}
	return createOrFetch(ctx, s, TableTasks, &t, Eq("id", t.ID))
}

// ListTasks returns tasks with the given status, oldest first. An empty
// status lists everything newest first.
func (s *Store) ListTasks(ctx context.Context, status string, limit int) ([]Task, error) {
	q := Query{Limit: limit}
	if status != "" {
		q.Where = []Filter{Eq("status", status)}
		q.Order = []Order{{Column: "created_at"}, {Column: "id"}}
	} else {
		q.Order = []Order{{Column: "created_at", Desc: true}}
	}
	return selectAll[Task](ctx, s, TableTasks, q)
}

// FinishTask moves a queued task to done or failed. A task that already
// left the queue is never touched again; that case returns ErrNotFound.
func (s *Store) FinishTask(ctx context.Context, id, status, result, errText string) error {
	if status != TaskDone && status != TaskFailed {
		return fmt.Errorf("%w: task status %q", ErrInvalid, status)
	}
	patch := Row{"status": status, "updated_at": s.Now()}
	if result != "" {
		patch["result"] = result
	}
	if errText != "" {
		patch["error"] = errText
	}
	n, err := update(ctx, s, TableTasks, []Filter{Eq("id", id), Eq("status", TaskQueued)}, patch)
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("queued task %s: %w", id, ErrNotFound)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Autonomy policy
// ---------------------------------------------------------------------------

// GetPolicy returns the policy row, or nil when none exists.
func (s *Store) GetPolicy(ctx context.Context) (*AutonomyPolicy, error) {
	rows, err := selectAll[AutonomyPolicy](ctx, s, TableAutonomyPolicy, Query{
		Order: []Order{{Column: "updated_at", Desc: true}},
		Limit: 1,
	})
	if err != nil || len(rows) == 0 {
		return nil, err
	}
	return &rows[0], nil
}

// SavePolicy patches the existing policy row, or inserts one.
func (s *Store) SavePolicy(ctx context.Context, p AutonomyPolicy) (*AutonomyPolicy, error) {
	p.UpdatedAt = s.Now()
	existing, err := s.GetPolicy(ctx)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		p.ID = existing.ID
		patch := Row{
			"mode":               p.Mode,
			"risk_tolerance":     p.RiskTolerance,
			"auto_delegate":      p.AutoDelegate,
			"max_parallel_tasks": p.MaxParallelTasks,
			"updated_at":         p.UpdatedAt,
		}
		if _, err := update(ctx, s, TableAutonomyPolicy, []Filter{Eq("id", existing.ID)}, patch); err != nil {
			return nil, err
		}
		return &p, nil
	}
	if p.ID == "" {
		p.ID = newID()
	}
	return createOrFetch(ctx, s, TableAutonomyPolicy, &p, Eq("id", p.ID))
}

// ---------------------------------------------------------------------------
// KPIs
// ---------------------------------------------------------------------------

// InsertKPI records a KPI value.
func (s *Store) InsertKPI(ctx context.Context, k KPI) error {
	if k.ID == "" {
		k.ID = newLogID()
	}
	if k.RecordedAt.IsZero() {
		k.RecordedAt = s.Now()
	}
	k.Name = strings.TrimSpace(k.Name)
	if k.Name == "" {
		return fmt.Errorf("%w: kpi name required", ErrInvalid)
	}
	return insert(ctx, s, TableKPIs, k)
}

// RecentKPIs returns the newest KPI records first.
func (s *Store) RecentKPIs(ctx context.Context, limit int) ([]KPI, error) {
	return selectAll[KPI](ctx, s, TableKPIs, Query{
		Order: []Order{{Column: "recorded_at", Desc: true}},
		Limit: limit,
	})
}

// ---------------------------------------------------------------------------
// R&D
// ---------------------------------------------------------------------------

// FindProject looks a project up by (department_id, title).
func (s *Store) FindProject(ctx context.Context, departmentID, title string) (*RnDProject, error) {
	return selectOne[RnDProject](ctx, s, TableRnDProjects,
		Eq("department_id", departmentID), Eq("title", title))
}

// GetProject looks a project up by id. Returns ErrNotFound for an unknown
// id.
func (s *Store) GetProject(ctx context.Context, id string) (*RnDProject, error) {
	p, err := selectOne[RnDProject](ctx, s, TableRnDProjects, Eq("id", id))
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, fmt.Errorf("%w: project %s", ErrNotFound, id)
	}
	return p, nil
}

// CreateProject inserts a project, recovering it by natural key.
func (s *Store) CreateProject(ctx context.Context, p RnDProject) (*RnDProject, error) {
	if p.ID == "" {
		p.ID = newID()
	}
	if p.Status == "" {
		p.Status = ProjectActive
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = s.Now()
	}
	return createOrFetch(ctx, s, TableRnDProjects, &p,
		Eq("department_id", p.DepartmentID), Eq("title", p.Title))
}

// ListProjects lists a department's projects.
func (s *Store) ListProjects(ctx context.Context, departmentID string) ([]RnDProject, error) {
	return selectAll[RnDProject](ctx, s, TableRnDProjects, Query{
		Where: []Filter{Eq("department_id", departmentID)},
		Order: []Order{{Column: "created_at"}},
	})
}

// FindExperiment looks an experiment up by (project_id, title).
func (s *Store) FindExperiment(ctx context.Context, projectID, title string) (*RnDExperiment, error) {
	return selectOne[RnDExperiment](ctx, s, TableRnDExperiments,
		Eq("project_id", projectID), Eq("title", title))
}

// CreateExperiment inserts an experiment, recovering it by natural key.
func (s *Store) CreateExperiment(ctx context.Context, e RnDExperiment) (*RnDExperiment, error) {
	if e.ID == "" {
		e.ID = newID()
	}
	if e.Status == "" {
		e.Status = ExperimentPlanned
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.Now()
	}
	return createOrFetch(ctx, s, TableRnDExperiments, &e,
		Eq("project_id", e.ProjectID), Eq("title", e.Title))
}

// InsertKnowledge appends a research finding.
func (s *Store) InsertKnowledge(ctx context.Context, k RnDKnowledge) (*RnDKnowledge, error) {
	if k.ID == "" {
		k.ID = newLogID()
	}
	if k.CreatedAt.IsZero() {
		k.CreatedAt = s.Now()
	}
	return createOrFetch(ctx, s, TableRnDKnowledge, &k, Eq("id", k.ID))
}
