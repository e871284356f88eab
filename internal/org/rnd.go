package org

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/suzieq/ceo-office/internal/memory"
	"github.com/suzieq/ceo-office/internal/store"
)

const (
	RnDDepartment  = "R&D"
	RnDDirector    = "Chief Scientist"
	RnDEmployee    = "Research Scientist"
	MinRnDTeamSize = 2
	MaxRnDTeamSize = 12
)

// BootstrapRnD builds the research department with teamSize scientists,
// clamped to [MinRnDTeamSize, MaxRnDTeamSize].
func (b *Builder) BootstrapRnD(ctx context.Context, teamSize int) (*Team, error) {
	teamSize = min(max(teamSize, MinRnDTeamSize), MaxRnDTeamSize)
	return b.build(ctx, RnDDepartment, RnDDirector, placeholderNames(RnDEmployee, teamSize), "")
}

// Rememberer stores findings in long-term memory.
type Rememberer interface {
	Remember(ctx context.Context, in memory.RememberInput) (*store.LongTermMemory, error)
}

// Research manages R&D projects, experiments and findings. Projects and
// experiments are upserted by their natural keys.
type Research struct {
	store   *store.Store
	builder *Builder
	memory  Rememberer
}

// NewResearch creates the research service. mem may be nil.
func NewResearch(st *store.Store, builder *Builder, mem Rememberer) *Research {
	return &Research{store: st, builder: builder, memory: mem}
}

// CreateProject returns the project titled title in the R&D department,
// creating the department and project as needed.
func (r *Research) CreateProject(ctx context.Context, title, hypothesis string) (*store.RnDProject, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, fmt.Errorf("%w: project title is required", store.ErrInvalid)
	}
	dept, err := r.department(ctx)
	if err != nil {
		return nil, err
	}
	existing, err := r.store.FindProject(ctx, dept.ID, title)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}
	p, err := r.store.CreateProject(ctx, store.RnDProject{
		DepartmentID: dept.ID,
		Title:        title,
		Hypothesis:   strings.TrimSpace(hypothesis),
	})
	if err != nil {
		return nil, fmt.Errorf("create project: %w", err)
	}
	slog.Info("R&D project ready", "project", p.Title, "id", p.ID)
	return p, nil
}

// AddExperiment returns the experiment titled title under projectID,
// creating it as needed.
func (r *Research) AddExperiment(ctx context.Context, projectID, title, method string) (*store.RnDExperiment, error) {
	title = strings.TrimSpace(title)
	if projectID == "" || title == "" {
		return nil, fmt.Errorf("%w: project id and experiment title are required", store.ErrInvalid)
	}
	if _, err := r.store.GetProject(ctx, projectID); err != nil {
		return nil, err
	}
	existing, err := r.store.FindExperiment(ctx, projectID, title)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}
	e, err := r.store.CreateExperiment(ctx, store.RnDExperiment{
		ProjectID: projectID,
		Title:     title,
		Method:    strings.TrimSpace(method),
	})
	if err != nil {
		return nil, fmt.Errorf("create experiment: %w", err)
	}
	return e, nil
}

// RecordKnowledge appends a finding to a project and remembers it in
// long-term memory under the R&D department.
func (r *Research) RecordKnowledge(ctx context.Context, projectID, content, source string) (*store.RnDKnowledge, error) {
	content = strings.TrimSpace(content)
	if projectID == "" || content == "" {
		return nil, fmt.Errorf("%w: project id and content are required", store.ErrInvalid)
	}
	if _, err := r.store.GetProject(ctx, projectID); err != nil {
		return nil, err
	}
	if source == "" {
		source = "rnd"
	}
	k, err := r.store.InsertKnowledge(ctx, store.RnDKnowledge{ProjectID: projectID, Content: content, Source: source})
	if err != nil {
		return nil, fmt.Errorf("record knowledge: %w", err)
	}
	if r.memory != nil {
		if _, err := r.memory.Remember(ctx, memory.RememberInput{
			Content:    content,
			Tags:       []string{"rnd", projectID},
			Source:     source,
			Department: RnDDepartment,
		}); err != nil {
			slog.Warn("Failed to remember R&D finding", "project_id", projectID, "error", err)
		}
	}
	return k, nil
}

// Projects lists the R&D department's projects.
func (r *Research) Projects(ctx context.Context) ([]store.RnDProject, error) {
	dept, err := r.store.FindDepartment(ctx, RnDDepartment)
	if err != nil || dept == nil {
		return nil, err
	}
	return r.store.ListProjects(ctx, dept.ID)
}

func (r *Research) department(ctx context.Context) (*store.Department, error) {
	dept, err := r.store.FindDepartment(ctx, RnDDepartment)
	if err != nil {
		return nil, err
	}
	if dept != nil {
		return dept, nil
	}
	if !r.store.Configured() {
		return nil, store.ErrNotConfigured
	}
	return r.builder.ensureDepartment(ctx, RnDDepartment, "")
}
