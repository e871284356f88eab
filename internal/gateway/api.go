package gateway

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/suzieq/ceo-office/internal/autonomy"
	"github.com/suzieq/ceo-office/internal/memory"
	"github.com/suzieq/ceo-office/internal/org"
	"github.com/suzieq/ceo-office/internal/store"
)

// ---------------------------------------------------------------------------
// Agent endpoints and cron triggers
// ---------------------------------------------------------------------------

type agentRequest struct {
	Text    string `json:"text"`
	Context string `json:"context"`
	Input   string `json:"input"`
}

func (s *Server) handleAgent(w http.ResponseWriter, r *http.Request) {
	var req agentRequest
	if !decode(w, r, &req) {
		return
	}
	input := req.Text
	if input == "" {
		input = req.Context
	}
	if input == "" {
		input = req.Input
	}
	department := s.departmentForSlug(r, r.PathValue("dept"))
	role := roleForSlug(r.PathValue("role"))
	name := r.PathValue("name")

	out, err := s.office.InvokeAgent(r.Context(), department, role, name, input)
	if err != nil {
		fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":         true,
		"agent":      name,
		"dept":       department,
		"department": department,
		"role":       role,
		"name":       name,
		"decision":   out,
		"output":     out,
	})
}

// departmentForSlug maps an endpoint slug back to the stored department
// name, falling back to a title-cased form of the slug.
func (s *Server) departmentForSlug(r *http.Request, slug string) string {
	if depts, err := s.store.ListDepartments(r.Context()); err == nil {
		for _, d := range depts {
			if org.Slug(d.Name) == slug {
				return d.Name
			}
		}
	}
	return org.TitleCase(strings.ReplaceAll(slug, "-", " "))
}

func roleForSlug(slug string) string {
	switch slug {
	case "director", "":
		return store.RoleDirector
	case "employee":
		return store.RoleEmployee
	default:
		return org.TitleCase(strings.ReplaceAll(slug, "-", " "))
	}
}

func (s *Server) handleDailyReport(w http.ResponseWriter, r *http.Request) {
	report, err := s.office.DailyReport(r.Context())
	if err != nil {
		fail(w, err)
		return
	}
	writeOK(w, "report", report)
}

func (s *Server) handleTick(w http.ResponseWriter, r *http.Request) {
	res, err := s.office.Tick(r.Context())
	if err != nil {
		fail(w, err)
		return
	}
	writeOK(w, "result", res)
}

// ---------------------------------------------------------------------------
// Organization
// ---------------------------------------------------------------------------

type hireRequest struct {
	Department string   `json:"department"`
	Employees  []string `json:"employees"`
	Channel    string   `json:"channel"`
}

func (s *Server) handleHire(w http.ResponseWriter, r *http.Request) {
	var req hireRequest
	if !decode(w, r, &req) {
		return
	}
	team, err := s.builder.BuildOrGet(r.Context(), req.Department, req.Employees, req.Channel)
	if err != nil {
		fail(w, err)
		return
	}
	writeOK(w, "team", team)
}

func (s *Server) handleRoster(w http.ResponseWriter, r *http.Request) {
	roster, err := s.builder.Roster(r.Context(), r.PathValue("department"))
	if err != nil {
		fail(w, err)
		return
	}
	writeOK(w, "roster", roster)
}

func (s *Server) handleDeactivate(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	m, err := s.builder.Deactivate(r.Context(), id)
	if err != nil {
		fail(w, err)
		return
	}
	writeOK(w, "staff", m)
}

func (s *Server) handleRnDBootstrap(w http.ResponseWriter, r *http.Request) {
	var req struct {
		TeamSize int `json:"team_size"`
	}
	if r.ContentLength != 0 && !decode(w, r, &req) {
		return
	}
	team, err := s.builder.BootstrapRnD(r.Context(), req.TeamSize)
	if err != nil {
		fail(w, err)
		return
	}
	writeOK(w, "team", team)
}

func (s *Server) handleListProjects(w http.ResponseWriter, r *http.Request) {
	projects, err := s.research.Projects(r.Context())
	if err != nil {
		fail(w, err)
		return
	}
	writeOK(w, "projects", projects)
}

func (s *Server) handleCreateProject(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Title      string `json:"title"`
		Hypothesis string `json:"hypothesis"`
	}
	if !decode(w, r, &req) {
		return
	}
	p, err := s.research.CreateProject(r.Context(), req.Title, req.Hypothesis)
	if err != nil {
		fail(w, err)
		return
	}
	writeOK(w, "project", p)
}

func (s *Server) handleAddExperiment(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Title  string `json:"title"`
		Method string `json:"method"`
	}
	if !decode(w, r, &req) {
		return
	}
	e, err := s.research.AddExperiment(r.Context(), r.PathValue("id"), req.Title, req.Method)
	if err != nil {
		fail(w, err)
		return
	}
	writeOK(w, "experiment", e)
}

func (s *Server) handleRecordKnowledge(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Content string `json:"content"`
		Source  string `json:"source"`
	}
	if !decode(w, r, &req) {
		return
	}
	k, err := s.research.RecordKnowledge(r.Context(), r.PathValue("id"), req.Content, req.Source)
	if err != nil {
		fail(w, err)
		return
	}
	writeOK(w, "knowledge", k)
}

// ---------------------------------------------------------------------------
// Memory
// ---------------------------------------------------------------------------

func (s *Server) handleRemember(w http.ResponseWriter, r *http.Request) {
	var req memory.RememberInput
	if !decode(w, r, &req) {
		return
	}
	if req.Source == "" {
		req.Source = "api"
	}
	m, err := s.memory.Remember(r.Context(), req)
	if err != nil {
		fail(w, err)
		return
	}
	writeOK(w, "memory", m)
}

type recallRequest struct {
	Query         string   `json:"query"`
	Ranked        *bool    `json:"ranked"`
	Department    string   `json:"department"`
	Limit         int      `json:"limit"`
	MinSimilarity *float64 `json:"min_similarity"`
}

func (s *Server) handleRecall(w http.ResponseWriter, r *http.Request) {
	var req recallRequest
	if !decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		fail(w, fmt.Errorf("%w: query is required", store.ErrInvalid))
		return
	}

	opts := s.memory.ChatOptions()
	if req.Department != "" {
		opts = s.memory.AgentOptions(req.Department)
	}
	if req.Limit > 0 {
		opts.Limit = req.Limit
	}
	if req.MinSimilarity != nil {
		opts.MinSimilarity = *req.MinSimilarity
	}

	var (
		matches []store.MemoryMatch
		err     error
	)
	if req.Ranked == nil || *req.Ranked {
		matches, err = s.memory.RecallRanked(r.Context(), req.Query, opts)
	} else {
		matches, err = s.memory.Recall(r.Context(), req.Query, opts.Options)
	}
	if err != nil {
		fail(w, err)
		return
	}
	if matches == nil {
		matches = []store.MemoryMatch{}
	}
	writeOK(w, "matches", matches)
}

func (s *Server) handleRecent(w http.ResponseWriter, r *http.Request) {
	rows, err := s.memory.Recent(r.Context(), queryInt(r, "limit", 50))
	if err != nil {
		fail(w, err)
		return
	}
	writeOK(w, "memory", rows)
}

// ---------------------------------------------------------------------------
// Autonomy
// ---------------------------------------------------------------------------

func (s *Server) handleListGoals(w http.ResponseWriter, r *http.Request) {
	goals, err := s.policies.ActiveGoals(r.Context())
	if err != nil {
		fail(w, err)
		return
	}
	writeOK(w, "goals", goals)
}

func (s *Server) handleAddGoal(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Title       string `json:"title"`
		Description string `json:"description"`
		Priority    int    `json:"priority"`
	}
	if !decode(w, r, &req) {
		return
	}
	g, err := s.policies.AddGoal(r.Context(), req.Title, req.Description, req.Priority)
	if err != nil {
		fail(w, err)
		return
	}
	writeOK(w, "goal", g)
}

func (s *Server) handleGoalStatus(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Status string `json:"status"`
	}
	if !decode(w, r, &req) {
		return
	}
	if err := s.policies.SetGoalStatus(r.Context(), r.PathValue("id"), req.Status); err != nil {
		fail(w, err)
		return
	}
	writeOK(w, "status", req.Status)
}

func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	tasks, err := s.policies.Tasks(r.Context(), r.URL.Query().Get("status"), queryInt(r, "limit", 50))
	if err != nil {
		fail(w, err)
		return
	}
	writeOK(w, "tasks", tasks)
}

func (s *Server) handleAddTask(w http.ResponseWriter, r *http.Request) {
	var req autonomy.TaskInput
	if !decode(w, r, &req) {
		return
	}
	t, err := s.policies.AddTask(r.Context(), req)
	if err != nil {
		fail(w, err)
		return
	}
	writeOK(w, "task", t)
}

func (s *Server) handleGetPolicy(w http.ResponseWriter, r *http.Request) {
	p, err := s.policies.Get(r.Context())
	if err != nil {
		fail(w, err)
		return
	}
	writeOK(w, "policy", p)
}

func (s *Server) handleSetPolicy(w http.ResponseWriter, r *http.Request) {
	var patch autonomy.PolicyPatch
	if !decode(w, r, &patch) {
		return
	}
	p, err := s.policies.SetPolicy(r.Context(), patch)
	if err != nil {
		fail(w, err)
		return
	}
	writeOK(w, "policy", p)
}

func (s *Server) handleRecordKPI(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name  string      `json:"name"`
		Value json.Number `json:"value"`
		Unit  string      `json:"unit"`
	}
	if !decode(w, r, &req) {
		return
	}
	v, err := req.Value.Float64()
	if err != nil {
		fail(w, fmt.Errorf("%w: value must be a number", store.ErrInvalid))
		return
	}
	if err := s.policies.RecordKPI(r.Context(), req.Name, v, req.Unit); err != nil {
		fail(w, err)
		return
	}
	writeOK(w, "name", req.Name)
}
