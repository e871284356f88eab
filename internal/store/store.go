// Package store is the memory store adapter. A Backend speaks generic rows
// (SQLite locally, PostgREST for Supabase, or nothing at all when the store
// is unconfigured); Store layers typed records, per-call timeouts, a single
// retry for reads and insert-and-return recovery on top.
package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

var (
	// ErrConflict reports a uniqueness violation. Callers re-fetch.
	ErrConflict = errors.New("store: unique constraint conflict")
	// ErrNotConfigured is returned by operations that cannot run without a
	// store. Retrying does not help.
	ErrNotConfigured = errors.New("store: not configured")
	// ErrNotFound is returned when a natural-key lookup finds nothing.
	ErrNotFound = errors.New("store: not found")
	// ErrInvalid wraps malformed queries and rows.
	ErrInvalid = errors.New("store: invalid request")
)

// Row is one record as a column -> value map.
type Row map[string]any

// Filter is an equality predicate.
type Filter struct {
	Column string
	Value  any
}

// Eq builds a Filter.
func Eq(column string, value any) Filter {
	return Filter{Column: column, Value: value}
}

// Order is one ORDER BY term.
type Order struct {
	Column string
	Desc   bool
}

// Query is a filtered, ordered, limited select.
type Query struct {
	Where []Filter
	Order []Order
	Limit int
}

// MatchQuery parameterizes a long-term memory similarity search.
type MatchQuery struct {
	Embedding     []float32
	Count         int
	MinSimilarity float64
	Department    string
	// Ranked selects the importance/recency weighted policy.
	Ranked       bool
	HalfLifeDays float64
	Alpha        float64
	Beta         float64
	// Now is the reference time for recency. Store.MatchMemories fills it
	// from the store clock; remote backends rank with their own clock.
	Now time.Time
}

// Backend is the storage driver contract.
type Backend interface {
	Insert(ctx context.Context, table string, row Row) error
	// InsertReturning returns the stored row, or nil when the backend does
	// not echo it.
	InsertReturning(ctx context.Context, table string, row Row) (Row, error)
	Select(ctx context.Context, table string, q Query) ([]Row, error)
	// Update applies patch to every row matching where and reports how many
	// rows changed.
	Update(ctx context.Context, table string, where []Filter, patch Row) (int, error)
	MatchMemories(ctx context.Context, q MatchQuery) ([]MemoryMatch, error)
	Close() error
}

// APIError is a non-2xx response from a remote store.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("store api %d (%s): %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("store api %d: %s", e.Status, e.Message)
}

// Store is the typed facade every component uses.
type Store struct {
	backend Backend
	timeout time.Duration
	now     func() time.Time
}

// Option customizes a Store.
type Option func(*Store)

// WithTimeout bounds every backend call.
func WithTimeout(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// New wraps a backend. A nil backend behaves as unconfigured.
func New(b Backend, opts ...Option) *Store {
	if b == nil {
		b = NopBackend{}
	}
	s := &Store{
		backend: b,
		timeout: 10 * time.Second,
		now:     func() time.Time { return time.Now().UTC() },
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Configured reports whether a real backend is attached.
func (s *Store) Configured() bool {
	_, nop := s.backend.(NopBackend)
	return !nop
}

// Close releases the backend.
func (s *Store) Close() error {
	return s.backend.Close()
}

// Now returns the store clock in UTC.
func (s *Store) Now() time.Time {
	return s.now().UTC()
}

func (s *Store) call(ctx context.Context, fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return fn(ctx)
}

// retryOnce runs fn with a bounded timeout and retries once on a transient
// failure.
func (s *Store) retryOnce(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	err := s.call(ctx, fn)
	if err == nil || !transient(err) || ctx.Err() != nil {
		return err
	}
	slog.Warn("Store call failed, retrying once", "op", op, "error", err)
	if err := s.call(ctx, fn); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func transient(err error) bool {
	switch {
	case errors.Is(err, ErrConflict), errors.Is(err, ErrNotConfigured),
		errors.Is(err, ErrInvalid), errors.Is(err, ErrNotFound),
		errors.Is(err, context.Canceled):
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status >= 500 || apiErr.Status == http.StatusTooManyRequests ||
			apiErr.Status == http.StatusRequestTimeout
	}
	return true
}

func newID() string {
	return uuid.NewString()
}

// newLogID returns a time-sortable id for log rows.
func newLogID() string {
	return ulid.Make().String()
}

// toRow converts a record to a Row through its JSON form.
func toRow(v any) (Row, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("%w: encode row: %v", ErrInvalid, err)
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var row Row
	if err := dec.Decode(&row); err != nil {
		return nil, fmt.Errorf("%w: encode row: %v", ErrInvalid, err)
	}
	return row, nil
}

// fromRow decodes a Row into a record.
func fromRow(row Row, out any) error {
	data, err := json.Marshal(row)
	if err != nil {
		return fmt.Errorf("decode row: %w", err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode row: %w", err)
	}
	return nil
}

func insert(ctx context.Context, s *Store, table string, v any) error {
	row, err := toRow(v)
	if err != nil {
		return err
	}
	return s.call(ctx, func(ctx context.Context) error {
		return s.backend.Insert(ctx, table, row)
	})
}

func selectAll[T any](ctx context.Context, s *Store, table string, q Query) ([]T, error) {
	var rows []Row
	err := s.retryOnce(ctx, "select "+table, func(ctx context.Context) error {
		var err error
		rows, err = s.backend.Select(ctx, table, q)
		return err
	})
	if err != nil {
		return nil, err
	}
	out := make([]T, 0, len(rows))
	for _, r := range rows {
		var v T
		if err := fromRow(r, &v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// selectOne returns the first match or nil.
func selectOne[T any](ctx context.Context, s *Store, table string, where ...Filter) (*T, error) {
	rows, err := selectAll[T](ctx, s, table, Query{Where: where, Limit: 1})
	if err != nil || len(rows) == 0 {
		return nil, err
	}
	return &rows[0], nil
}

// createOrFetch inserts v and returns the stored row. When the backend does
// not echo the row, or a concurrent writer already created it, the row is
// recovered by its natural key.
func createOrFetch[T any](ctx context.Context, s *Store, table string, v *T, key ...Filter) (*T, error) {
	row, err := toRow(v)
	if err != nil {
		return nil, err
	}
	var stored Row
	err = s.call(ctx, func(ctx context.Context) error {
		var err error
		stored, err = s.backend.InsertReturning(ctx, table, row)
		return err
	})
	switch {
	case err == nil && stored != nil:
		var out T
		if err := fromRow(stored, &out); err != nil {
			return nil, err
		}
		return &out, nil
	case err == nil:
		slog.Debug("Store did not echo inserted row, re-querying", "table", table)
	case errors.Is(err, ErrConflict):
		slog.Info("Store insert lost a uniqueness race, re-fetching", "table", table)
	default:
		return nil, fmt.Errorf("insert %s: %w", table, err)
	}

	got, err := selectOne[T](ctx, s, table, key...)
	if err != nil {
		return nil, fmt.Errorf("recover %s: %w", table, err)
	}
	if got == nil {
		return nil, fmt.Errorf("recover %s: %w", table, ErrNotFound)
	}
	return got, nil
}

func update(ctx context.Context, s *Store, table string, where []Filter, patch Row) (int, error) {
	var n int
	err := s.retryOnce(ctx, "update "+table, func(ctx context.Context) error {
		var err error
		n, err = s.backend.Update(ctx, table, where, patch)
		return err
	})
	return n, err
}
