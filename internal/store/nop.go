package store

import "context"

// NopBackend stands in when no store is configured: inserts are dropped,
// selects come back empty, and anything that needs a stored row fails with
// ErrNotConfigured.
type NopBackend struct{}

// Insert implements Backend.
func (NopBackend) Insert(context.Context, string, Row) error { return nil }

// InsertReturning implements Backend.
func (NopBackend) InsertReturning(context.Context, string, Row) (Row, error) {
	return nil, ErrNotConfigured
}

// Select implements Backend.
func (NopBackend) Select(context.Context, string, Query) ([]Row, error) { return nil, nil }

// Update implements Backend.
func (NopBackend) Update(context.Context, string, []Filter, Row) (int, error) {
	return 0, ErrNotConfigured
}

// MatchMemories implements Backend.
func (NopBackend) MatchMemories(context.Context, MatchQuery) ([]MemoryMatch, error) {
	return nil, nil
}

// Close implements Backend.
func (NopBackend) Close() error { return nil }
