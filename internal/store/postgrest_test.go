package store

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestPostgRESTSelectBuildsQuery(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/rest/v1/staff" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("apikey") != "svc" || r.Header.Get("Authorization") != "Bearer svc" {
			t.Errorf("missing auth headers: %v", r.Header)
		}
		q := r.URL.Query()
		if q.Get("department_id") != "eq.d1" || q.Get("role") != "eq.Employee" {
			t.Errorf("unexpected filters %s", r.URL.RawQuery)
		}
		if q.Get("order") != "created_at.asc,name.asc" {
			t.Errorf("unexpected order %q", q.Get("order"))
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `[{"id":"s1","name":"Ana","role":"Employee","department_id":"d1","status":"active","created_at":"2026-01-01T00:00:00Z"}]`)
	}))
	defer srv.Close()

	s := New(NewPostgRESTBackend(srv.URL, "svc", time.Second))
	staff, err := s.ListStaff(context.Background(), "d1", RoleEmployee)
	if err != nil {
		t.Fatal(err)
	}
	if len(staff) != 1 || staff[0].Name != "Ana" {
		t.Fatalf("unexpected staff %+v", staff)
	}
}

func TestPostgRESTConflictMapsToErrConflict(t *testing.T) {
	var posts, gets int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost:
			posts++
			if r.Header.Get("Prefer") != "return=representation" {
				t.Errorf("expected representation preference, got %q", r.Header.Get("Prefer"))
			}
			w.WriteHeader(http.StatusConflict)
			_, _ = io.WriteString(w, `{"code":"23505","message":"duplicate key value violates unique constraint"}`)
		case http.MethodGet:
			gets++
			if r.URL.Query().Get("name") != "eq.Marketing" {
				t.Errorf("expected natural key lookup, got %s", r.URL.RawQuery)
			}
			_, _ = io.WriteString(w, `[{"id":"existing","name":"Marketing","created_at":"2026-01-01T00:00:00Z"}]`)
		}
	}))
	defer srv.Close()

	s := New(NewPostgRESTBackend(srv.URL, "svc", time.Second))
	d, err := s.CreateDepartment(context.Background(), Department{Name: "Marketing"})
	if err != nil {
		t.Fatal(err)
	}
	if d.ID != "existing" {
		t.Errorf("expected re-fetched row, got %+v", d)
	}
	if posts != 1 || gets != 1 {
		t.Errorf("expected one insert and one lookup, got %d/%d", posts, gets)
	}
}

func TestPostgRESTEmptyRepresentationFallsBack(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost:
			w.WriteHeader(http.StatusCreated)
			_, _ = io.WriteString(w, `[]`)
		case http.MethodGet:
			_, _ = io.WriteString(w, `[{"id":"p1","department_id":"d1","title":"Agents","status":"active","created_at":"2026-01-01T00:00:00Z"}]`)
		}
	}))
	defer srv.Close()

	s := New(NewPostgRESTBackend(srv.URL, "svc", time.Second))
	p, err := s.CreateProject(context.Background(), RnDProject{DepartmentID: "d1", Title: "Agents"})
	if err != nil {
		t.Fatal(err)
	}
	if p.ID != "p1" {
		t.Errorf("expected recovered project p1, got %s", p.ID)
	}
}

func TestPostgRESTMatchRanked(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/rest/v1/rpc/match_long_term_memory_ranked" {
			t.Errorf("unexpected rpc path %s", r.URL.Path)
		}
		var args map[string]any
		if err := json.NewDecoder(r.Body).Decode(&args); err != nil {
			t.Fatal(err)
		}
		for _, k := range []string{"query_embedding", "match_count", "min_cosine_similarity", "department_filter", "half_life_days", "alpha", "beta"} {
			if _, ok := args[k]; !ok {
				t.Errorf("missing rpc argument %s", k)
			}
		}
		if args["department_filter"] != nil {
			t.Errorf("empty department should be null, got %v", args["department_filter"])
		}
		_, _ = io.WriteString(w, `[{"id":"m1","content":"launch plan","importance":4,"similarity":0.8,"score":0.95,"created_at":"2026-01-01T00:00:00Z"}]`)
	}))
	defer srv.Close()

	s := New(NewPostgRESTBackend(srv.URL, "svc", time.Second))
	got, err := s.MatchMemories(context.Background(), MatchQuery{
		Embedding: []float32{0.1, 0.2}, Count: 3, MinSimilarity: 0.2, Ranked: true,
		HalfLifeDays: 14, Alpha: 0.15, Beta: 0.1,
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].Content != "launch plan" || got[0].Score != 0.95 {
		t.Fatalf("unexpected matches %+v", got)
	}
}

func TestPostgRESTServerErrorIsRetried(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			http.Error(w, "upstream timeout", http.StatusBadGateway)
			return
		}
		_, _ = io.WriteString(w, `[]`)
	}))
	defer srv.Close()

	s := New(NewPostgRESTBackend(srv.URL, "svc", time.Second))
	recs, err := s.RecentMemory(context.Background(), 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 0 || calls != 2 {
		t.Errorf("expected empty result after one retry, got %d records and %d calls", len(recs), calls)
	}
}

func TestPostgRESTClientErrorSurfaces(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{"code":"PGRST100","message":"failed to parse filter"}`)
	}))
	defer srv.Close()

	s := New(NewPostgRESTBackend(srv.URL, "svc", time.Second))
	_, err := s.RecentMemory(context.Background(), 5)
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Status != http.StatusBadRequest {
		t.Fatalf("expected APIError 400, got %v", err)
	}
	if !strings.Contains(err.Error(), "failed to parse filter") {
		t.Errorf("error should carry the server message: %v", err)
	}
}

func TestPostgRESTSchemaEmbedded(t *testing.T) {
	for _, want := range []string{"match_long_term_memory_ranked", "unique (name, role, department_id)", "unique (manager_id, report_id)"} {
		if !strings.Contains(PostgRESTSchema, want) {
			t.Errorf("schema missing %q", want)
		}
	}
}
