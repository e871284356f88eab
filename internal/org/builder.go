// Package org materializes the simulated organization: departments, their
// director, employees and the reporting lines between them.
package org

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/suzieq/ceo-office/internal/store"
)

// DefaultTeamSize is the number of placeholder employees created when a
// build names none.
const DefaultTeamSize = 5

// ErrInvalidDepartment rejects an empty department name.
var ErrInvalidDepartment = errors.New("org: department name is required")

// BuildError names the build step that failed. Rows created by earlier
// steps are kept; rerunning the build picks them up again.
type BuildError struct {
	Step string
	Err  error
}

func (e *BuildError) Error() string {
	return fmt.Sprintf("org build failed at %s: %v", e.Step, e.Err)
}

func (e *BuildError) Unwrap() error { return e.Err }

// Team is the result of a build.
type Team struct {
	Department store.Department    `json:"department"`
	Director   store.StaffMember   `json:"director"`
	Employees  []store.StaffMember `json:"employees"`
}

// Roster is a department with its active staff and reporting line count.
type Roster struct {
	Department     store.Department    `json:"department"`
	Director       *store.StaffMember  `json:"director,omitempty"`
	Employees      []store.StaffMember `json:"employees"`
	ReportingLines int                 `json:"reporting_lines"`
}

// Builder creates org entities idempotently: every level is looked up
// before it is inserted, and a uniqueness conflict resolves to the row that
// won the race.
type Builder struct {
	store     *store.Store
	publicURL string
}

// NewBuilder creates a builder. publicURL prefixes generated agent
// endpoint references.
func NewBuilder(st *store.Store, publicURL string) *Builder {
	return &Builder{
		store:     st,
		publicURL: strings.TrimRight(publicURL, "/"),
	}
}

// TitleCase upper-cases the first letter of every word and leaves the rest
// alone, so acronyms survive.
func TitleCase(s string) string {
	// A Caser is stateful; build one per call.
	return cases.Title(language.English, cases.NoLower).String(strings.TrimSpace(s))
}

// DirectorName is the deterministic director name for a department.
func (b *Builder) DirectorName(department string) string {
	return "Director " + TitleCase(department)
}

// BuildOrGet ensures the department, its director, the named employees and
// one reporting line per employee exist. With no names, DefaultTeamSize
// placeholder employees are used. Calling it again with the same arguments
// returns the same identifiers and creates nothing.
func (b *Builder) BuildOrGet(ctx context.Context, department string, employees []string, channel string) (*Team, error) {
	department = strings.TrimSpace(department)
	if department == "" {
		return nil, ErrInvalidDepartment
	}
	names := dedupe(employees)
	if len(names) == 0 {
		names = placeholderNames(TitleCase(department)+" Employee", DefaultTeamSize)
	}
	return b.build(ctx, department, b.DirectorName(department), names, channel)
}

func (b *Builder) build(ctx context.Context, department, directorName string, employees []string, channel string) (*Team, error) {
	ctx, span := otel.Tracer("suzieq").Start(ctx, "org.build")
	span.SetAttributes(attribute.String("suzieq.department", department), attribute.Int("suzieq.employees", len(employees)))
	defer span.End()

	if !b.store.Configured() {
		return nil, &BuildError{Step: "department", Err: store.ErrNotConfigured}
	}

	dept, err := b.ensureDepartment(ctx, department, channel)
	if err != nil {
		return nil, &BuildError{Step: "department", Err: err}
	}
	director, err := b.ensureStaff(ctx, dept, directorName, store.RoleDirector)
	if err != nil {
		return nil, &BuildError{Step: "director", Err: err}
	}

	team := &Team{Department: *dept, Director: *director}
	for _, name := range employees {
		emp, err := b.ensureStaff(ctx, dept, name, store.RoleEmployee)
		if err != nil {
			return nil, &BuildError{Step: "employee:" + name, Err: err}
		}
		if err := b.ensureReportingLine(ctx, director.ID, emp.ID); err != nil {
			return nil, &BuildError{Step: "reporting_line:" + name, Err: err}
		}
		team.Employees = append(team.Employees, *emp)
	}

	slog.Info("Org team ready", "department", dept.Name, "director", director.Name, "employees", len(team.Employees))
	return team, nil
}

func (b *Builder) ensureDepartment(ctx context.Context, name, channel string) (*store.Department, error) {
	existing, err := b.store.FindDepartment(ctx, name)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}
	return b.store.CreateDepartment(ctx, store.Department{Name: name, SlackChannelID: channel})
}

func (b *Builder) ensureStaff(ctx context.Context, dept *store.Department, name, role string) (*store.StaffMember, error) {
	existing, err := b.store.FindStaff(ctx, name, role, dept.ID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}
	return b.store.CreateStaff(ctx, store.StaffMember{
		Name:             name,
		Role:             role,
		DepartmentID:     dept.ID,
		Status:           store.StaffActive,
		AgentEndpointURL: b.EndpointURL(dept.Name, role, name),
	})
}

func (b *Builder) ensureReportingLine(ctx context.Context, managerID, reportID string) error {
	existing, err := b.store.FindReportingLine(ctx, managerID, reportID)
	if err != nil {
		return err
	}
	if existing != nil {
		return nil
	}
	_, err = b.store.CreateReportingLine(ctx, store.ReportingLine{ManagerID: managerID, ReportID: reportID})
	return err
}

// EndpointURL is the gateway address at which a staff member answers.
func (b *Builder) EndpointURL(department, role, name string) string {
	return fmt.Sprintf("%s/agents/%s/%s/%s", b.publicURL, Slug(department), Slug(role), url.PathEscape(name))
}

// Deactivate soft-deletes a staff member.
func (b *Builder) Deactivate(ctx context.Context, staffID string) (*store.StaffMember, error) {
	staffID = strings.TrimSpace(staffID)
	if staffID == "" {
		return nil, fmt.Errorf("%w: staff id is required", store.ErrInvalid)
	}
	if !b.store.Configured() {
		return nil, store.ErrNotConfigured
	}
	member, err := b.store.GetStaff(ctx, staffID)
	if err != nil {
		return nil, err
	}
	if err := b.store.SetStaffStatus(ctx, staffID, store.StaffInactive); err != nil {
		return nil, err
	}
	member.Status = store.StaffInactive
	slog.Info("Staff deactivated", "staff_id", staffID, "name", member.Name, "role", member.Role)
	return member, nil
}

// Roster returns a department with its active staff. Returns
// store.ErrNotFound for an unknown department.
func (b *Builder) Roster(ctx context.Context, department string) (*Roster, error) {
	department = strings.TrimSpace(department)
	if department == "" {
		return nil, ErrInvalidDepartment
	}
	dept, err := b.store.FindDepartment(ctx, department)
	if err != nil {
		return nil, err
	}
	if dept == nil {
		return nil, fmt.Errorf("department %q: %w", department, store.ErrNotFound)
	}
	staff, err := b.store.ListStaff(ctx, dept.ID, "")
	if err != nil {
		return nil, err
	}
	r := &Roster{Department: *dept, Employees: []store.StaffMember{}}
	for i := range staff {
		m := staff[i]
		if m.Status != store.StaffActive {
			continue
		}
		if m.Role == store.RoleDirector {
			r.Director = &m
			continue
		}
		r.Employees = append(r.Employees, m)
	}
	if r.Director != nil {
		lines, err := b.store.ReportingLines(ctx, r.Director.ID)
		if err != nil {
			return nil, err
		}
		r.ReportingLines = len(lines)
	}
	return r, nil
}

// Slug lower-cases s and joins its words with dashes.
func Slug(s string) string {
	var sb strings.Builder
	dash := false
	for _, r := range strings.ToLower(strings.TrimSpace(s)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			sb.WriteRune(r)
			dash = false
		case r == '&':
			if sb.Len() > 0 && !dash {
				sb.WriteByte('-')
			}
			sb.WriteString("and-")
			dash = true
		default:
			if sb.Len() > 0 && !dash {
				sb.WriteByte('-')
				dash = true
			}
		}
	}
	return strings.Trim(sb.String(), "-")
}

func dedupe(names []string) []string {
	seen := make(map[string]bool, len(names))
	out := make([]string, 0, len(names))
	for _, n := range names {
		n = strings.TrimSpace(n)
		if n == "" || seen[n] {
			continue
		}
		seen[n] = true
		out = append(out, n)
	}
	return out
}

func placeholderNames(prefix string, n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("%s %d", prefix, i+1)
	}
	return out
}
