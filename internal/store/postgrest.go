package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// PostgRESTBackend talks to a Supabase/PostgREST endpoint. Similarity search
// runs server side through the match_long_term_memory RPCs defined in
// postgrest_schema.sql.
type PostgRESTBackend struct {
	baseURL    string
	serviceKey string
	httpClient *http.Client
}

// NewPostgRESTBackend creates a backend for the project at baseURL.
func NewPostgRESTBackend(baseURL, serviceKey string, timeout time.Duration) *PostgRESTBackend {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &PostgRESTBackend{
		baseURL:    strings.TrimRight(baseURL, "/") + "/rest/v1",
		serviceKey: serviceKey,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Insert implements Backend.
func (b *PostgRESTBackend) Insert(ctx context.Context, table string, row Row) error {
	_, err := b.do(ctx, http.MethodPost, "/"+table, nil, row, "return=minimal")
	return err
}

// InsertReturning implements Backend. Row level security may hide the
// inserted row, in which case nil is returned.
func (b *PostgRESTBackend) InsertReturning(ctx context.Context, table string, row Row) (Row, error) {
	body, err := b.do(ctx, http.MethodPost, "/"+table, nil, row, "return=representation")
	if err != nil {
		return nil, err
	}
	rows, err := decodeRows(body)
	if err != nil || len(rows) == 0 {
		return nil, err
	}
	return rows[0], nil
}

// Select implements Backend.
func (b *PostgRESTBackend) Select(ctx context.Context, table string, q Query) ([]Row, error) {
	params := url.Values{}
	params.Set("select", "*")
	addFilters(params, q.Where)
	if len(q.Order) > 0 {
		terms := make([]string, 0, len(q.Order))
		for _, o := range q.Order {
			dir := "asc"
			if o.Desc {
				dir = "desc"
			}
			terms = append(terms, o.Column+"."+dir)
		}
		params.Set("order", strings.Join(terms, ","))
	}
	if q.Limit > 0 {
		params.Set("limit", fmt.Sprint(q.Limit))
	}
	body, err := b.do(ctx, http.MethodGet, "/"+table, params, nil, "")
	if err != nil {
		return nil, err
	}
	return decodeRows(body)
}

// Update implements Backend.
func (b *PostgRESTBackend) Update(ctx context.Context, table string, where []Filter, patch Row) (int, error) {
	if len(where) == 0 {
		return 0, fmt.Errorf("%w: refusing unfiltered update of %s", ErrInvalid, table)
	}
	params := url.Values{}
	addFilters(params, where)
	body, err := b.do(ctx, http.MethodPatch, "/"+table, params, patch, "return=representation")
	if err != nil {
		return 0, err
	}
	rows, err := decodeRows(body)
	return len(rows), err
}

// MatchMemories implements Backend through the server-side procedures.
func (b *PostgRESTBackend) MatchMemories(ctx context.Context, q MatchQuery) ([]MemoryMatch, error) {
	fn := "match_long_term_memory"
	args := map[string]any{
		"query_embedding":       q.Embedding,
		"match_count":           q.Count,
		"min_cosine_similarity": q.MinSimilarity,
		"department_filter":     nullable(q.Department),
	}
	if q.Ranked {
		fn = "match_long_term_memory_ranked"
		args["half_life_days"] = q.HalfLifeDays
		args["alpha"] = q.Alpha
		args["beta"] = q.Beta
	}
	body, err := b.do(ctx, http.MethodPost, "/rpc/"+fn, nil, args, "")
	if err != nil {
		return nil, err
	}
	var out []MemoryMatch
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("decode %s: %w", fn, err)
	}
	for i := range out {
		if !q.Ranked && out[i].Score == 0 {
			out[i].Score = out[i].Similarity
		}
	}
	return out, nil
}

// Close implements Backend.
func (b *PostgRESTBackend) Close() error { return nil }

func (b *PostgRESTBackend) do(ctx context.Context, method, path string, params url.Values, payload any, prefer string) ([]byte, error) {
	endpoint := b.baseURL + path
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}
	var reader io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("%w: marshal body: %v", ErrInvalid, err)
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("apikey", b.serviceKey)
	req.Header.Set("Authorization", "Bearer "+b.serviceKey)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if prefer != "" {
		req.Header.Set("Prefer", prefer)
	}

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= 300 {
		return nil, apiError(resp.StatusCode, body)
	}
	return body, nil
}

func apiError(status int, body []byte) error {
	var pgErr struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	}
	_ = json.Unmarshal(body, &pgErr)
	e := &APIError{Status: status, Code: pgErr.Code, Message: pgErr.Message}
	if e.Message == "" {
		e.Message = strings.TrimSpace(string(body))
	}
	// 23505 is unique_violation.
	if status == http.StatusConflict || pgErr.Code == "23505" {
		return fmt.Errorf("%w: %v", ErrConflict, e)
	}
	return e
}

func decodeRows(body []byte) ([]Row, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, nil
	}
	var rows []Row
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, fmt.Errorf("decode rows: %w", err)
	}
	return rows, nil
}

func addFilters(params url.Values, where []Filter) {
	for _, f := range where {
		params.Add(f.Column, "eq."+filterValue(f.Value))
	}
}

func filterValue(v any) string {
	switch x := v.(type) {
	case time.Time:
		return x.UTC().Format(time.RFC3339Nano)
	case string:
		return x
	default:
		return fmt.Sprint(x)
	}
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
