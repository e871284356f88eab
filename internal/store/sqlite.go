package store

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/suzieq/ceo-office/internal/recall"
)

// timeLayout keeps stored timestamps lexically sortable.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// SQLiteBackend stores everything in a local SQLite database. Similarity
// search runs in Go over the stored embeddings.
type SQLiteBackend struct {
	db  *sql.DB
	now func() time.Time
}

// OpenSQLite opens or creates a database at path. ":memory:" opens a
// private in-memory database.
func OpenSQLite(path string) (*SQLiteBackend, error) {
	var dsn string
	if path == ":memory:" {
		dsn = ":memory:?_pragma=foreign_keys(1)"
	} else {
		if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
		dsn = "file:" + path + "?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if path == ":memory:" {
		// Every connection would otherwise see its own empty database.
		db.SetMaxOpenConns(1)
	}
	b, err := NewSQLiteBackend(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return b, nil
}

// NewSQLiteBackend applies the schema to an open database.
func NewSQLiteBackend(db *sql.DB) (*SQLiteBackend, error) {
	if _, err := db.Exec(SQLiteSchema); err != nil {
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &SQLiteBackend{db: db, now: func() time.Time { return time.Now().UTC() }}, nil
}

// DB exposes the underlying handle.
func (b *SQLiteBackend) DB() *sql.DB { return b.db }

// Close closes the database.
func (b *SQLiteBackend) Close() error { return b.db.Close() }

// Insert implements Backend.
func (b *SQLiteBackend) Insert(ctx context.Context, table string, row Row) error {
	cols, err := tableColumns(table)
	if err != nil {
		return err
	}
	names := make([]string, 0, len(row))
	args := make([]any, 0, len(row))
	for _, c := range cols {
		v, ok := row[c.name]
		if !ok || v == nil {
			continue
		}
		arg, err := toSQL(c, v)
		if err != nil {
			return err
		}
		names = append(names, c.name)
		args = append(args, arg)
	}
	if len(names) == 0 {
		return fmt.Errorf("%w: empty row for %s", ErrInvalid, table)
	}
	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", table,
		strings.Join(names, ", "), strings.TrimSuffix(strings.Repeat("?, ", len(names)), ", "))
	if _, err := b.db.ExecContext(ctx, query, args...); err != nil {
		return classifySQLite(err)
	}
	return nil
}

// InsertReturning implements Backend. Rows always carry their id, so the
// stored row is read back by it.
func (b *SQLiteBackend) InsertReturning(ctx context.Context, table string, row Row) (Row, error) {
	if err := b.Insert(ctx, table, row); err != nil {
		return nil, err
	}
	id, ok := row["id"]
	if !ok {
		return nil, nil
	}
	rows, err := b.Select(ctx, table, Query{Where: []Filter{Eq("id", id)}, Limit: 1})
	if err != nil || len(rows) == 0 {
		return nil, err
	}
	return rows[0], nil
}

// Select implements Backend.
func (b *SQLiteBackend) Select(ctx context.Context, table string, q Query) ([]Row, error) {
	cols, err := tableColumns(table)
	if err != nil {
		return nil, err
	}
	where, args, err := whereClause(cols, q.Where)
	if err != nil {
		return nil, err
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "SELECT %s FROM %s%s", columnList(cols), table, where)
	if len(q.Order) > 0 {
		terms := make([]string, 0, len(q.Order))
		for _, o := range q.Order {
			if _, ok := findColumn(cols, o.Column); !ok {
				return nil, fmt.Errorf("%w: unknown order column %s.%s", ErrInvalid, table, o.Column)
			}
			dir := "ASC"
			if o.Desc {
				dir = "DESC"
			}
			terms = append(terms, o.Column+" "+dir)
		}
		sb.WriteString(" ORDER BY " + strings.Join(terms, ", "))
	}
	if q.Limit > 0 {
		sb.WriteString(" LIMIT ?")
		args = append(args, q.Limit)
	}

	rows, err := b.db.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, classifySQLite(err)
	}
	defer rows.Close()
	return scanRows(rows, cols)
}

// Update implements Backend.
func (b *SQLiteBackend) Update(ctx context.Context, table string, where []Filter, patch Row) (int, error) {
	cols, err := tableColumns(table)
	if err != nil {
		return 0, err
	}
	if len(patch) == 0 {
		return 0, fmt.Errorf("%w: empty patch for %s", ErrInvalid, table)
	}
	sets := make([]string, 0, len(patch))
	args := make([]any, 0, len(patch)+len(where))
	for _, c := range cols {
		v, ok := patch[c.name]
		if !ok {
			continue
		}
		arg, err := toSQL(c, v)
		if err != nil {
			return 0, err
		}
		sets = append(sets, c.name+" = ?")
		args = append(args, arg)
	}
	if len(sets) != len(patch) {
		return 0, fmt.Errorf("%w: unknown column in patch for %s", ErrInvalid, table)
	}
	clause, whereArgs, err := whereClause(cols, where)
	if err != nil {
		return 0, err
	}
	args = append(args, whereArgs...)
	res, err := b.db.ExecContext(ctx, "UPDATE "+table+" SET "+strings.Join(sets, ", ")+clause, args...)
	if err != nil {
		return 0, classifySQLite(err)
	}
	n, err := res.RowsAffected()
	return int(n), err
}

// MatchMemories implements Backend by scoring every stored embedding with
// the recall package.
func (b *SQLiteBackend) MatchMemories(ctx context.Context, q MatchQuery) ([]MemoryMatch, error) {
	query := Query{}
	if q.Department != "" {
		query.Where = []Filter{Eq("department", q.Department)}
	}
	rows, err := b.Select(ctx, TableLongTermMemory, query)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]LongTermMemory, len(rows))
	cands := make([]recall.Candidate, 0, len(rows))
	for _, r := range rows {
		var m LongTermMemory
		if err := fromRow(r, &m); err != nil {
			return nil, err
		}
		byID[m.ID] = m
		cands = append(cands, recall.Candidate{
			ID:         m.ID,
			Content:    m.Content,
			Embedding:  m.Embedding,
			Importance: m.Importance,
			Department: m.Department,
			CreatedAt:  m.CreatedAt,
		})
	}

	p := recall.Params{
		Limit:         q.Count,
		MinSimilarity: q.MinSimilarity,
		Department:    q.Department,
		HalfLifeDays:  q.HalfLifeDays,
		Alpha:         q.Alpha,
		Beta:          q.Beta,
	}
	var scored []recall.Scored
	if q.Ranked {
		now := q.Now
		if now.IsZero() {
			now = b.now()
		}
		scored = recall.Rank(q.Embedding, cands, p, now)
	} else {
		scored = recall.Nearest(q.Embedding, cands, p)
	}
	out := make([]MemoryMatch, 0, len(scored))
	for _, s := range scored {
		m := byID[s.ID]
		m.Embedding = nil
		out = append(out, MemoryMatch{LongTermMemory: m, Similarity: s.Similarity, Score: s.Score})
	}
	return out, nil
}

func tableColumns(table string) ([]column, error) {
	cols, ok := sqliteTables[table]
	if !ok {
		return nil, fmt.Errorf("%w: unknown table %s", ErrInvalid, table)
	}
	return cols, nil
}

func findColumn(cols []column, name string) (column, bool) {
	for _, c := range cols {
		if c.name == name {
			return c, true
		}
	}
	return column{}, false
}

func columnList(cols []column) string {
	names := make([]string, len(cols))
	for i, c := range cols {
		names[i] = c.name
	}
	return strings.Join(names, ", ")
}

func whereClause(cols []column, where []Filter) (string, []any, error) {
	if len(where) == 0 {
		return "", nil, nil
	}
	terms := make([]string, 0, len(where))
	args := make([]any, 0, len(where))
	for _, f := range where {
		c, ok := findColumn(cols, f.Column)
		if !ok {
			return "", nil, fmt.Errorf("%w: unknown filter column %s", ErrInvalid, f.Column)
		}
		arg, err := toSQL(c, f.Value)
		if err != nil {
			return "", nil, err
		}
		terms = append(terms, c.name+" = ?")
		args = append(args, arg)
	}
	return " WHERE " + strings.Join(terms, " AND "), args, nil
}

func scanRows(rows *sql.Rows, cols []column) ([]Row, error) {
	var out []Row
	for rows.Next() {
		dest := make([]any, len(cols))
		for i, c := range cols {
			switch c.kind {
			case kindInt, kindBool:
				dest[i] = new(sql.NullInt64)
			case kindReal:
				dest[i] = new(sql.NullFloat64)
			case kindVector:
				dest[i] = new([]byte)
			default:
				dest[i] = new(sql.NullString)
			}
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, err
		}
		row := make(Row, len(cols))
		for i, c := range cols {
			switch v := dest[i].(type) {
			case *sql.NullInt64:
				if !v.Valid {
					continue
				}
				if c.kind == kindBool {
					row[c.name] = v.Int64 != 0
				} else {
					row[c.name] = v.Int64
				}
			case *sql.NullFloat64:
				if v.Valid {
					row[c.name] = v.Float64
				}
			case *[]byte:
				if len(*v) > 0 {
					row[c.name] = decodeFloat32s(*v)
				}
			case *sql.NullString:
				if !v.Valid {
					continue
				}
				if c.kind == kindJSON {
					row[c.name] = json.RawMessage(v.String)
				} else {
					row[c.name] = v.String
				}
			}
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// toSQL converts a row value into a driver argument for the column.
func toSQL(c column, v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	bad := func() error {
		return fmt.Errorf("%w: column %s cannot hold %T", ErrInvalid, c.name, v)
	}
	switch c.kind {
	case kindText:
		switch x := v.(type) {
		case string:
			return x, nil
		case json.Number:
			return x.String(), nil
		case fmt.Stringer:
			return x.String(), nil
		}
		return nil, bad()
	case kindInt:
		switch x := v.(type) {
		case int:
			return int64(x), nil
		case int64:
			return x, nil
		case float64:
			return int64(x), nil
		case json.Number:
			if i, err := x.Int64(); err == nil {
				return i, nil
			}
			f, err := x.Float64()
			if err != nil {
				return nil, bad()
			}
			return int64(f), nil
		}
		return nil, bad()
	case kindReal:
		switch x := v.(type) {
		case float64:
			return x, nil
		case int:
			return float64(x), nil
		case json.Number:
			f, err := x.Float64()
			if err != nil {
				return nil, bad()
			}
			return f, nil
		}
		return nil, bad()
	case kindBool:
		if x, ok := v.(bool); ok {
			if x {
				return int64(1), nil
			}
			return int64(0), nil
		}
		return nil, bad()
	case kindJSON:
		switch x := v.(type) {
		case json.RawMessage:
			return string(x), nil
		case string:
			return x, nil
		}
		data, err := json.Marshal(v)
		if err != nil {
			return nil, bad()
		}
		return string(data), nil
	case kindVector:
		switch x := v.(type) {
		case []float32:
			return encodeFloat32s(x), nil
		case []any:
			vec := make([]float32, len(x))
			for i, e := range x {
				switch n := e.(type) {
				case json.Number:
					f, err := n.Float64()
					if err != nil {
						return nil, bad()
					}
					vec[i] = float32(f)
				case float64:
					vec[i] = float32(n)
				default:
					return nil, bad()
				}
			}
			return encodeFloat32s(vec), nil
		}
		return nil, bad()
	case kindTime:
		switch x := v.(type) {
		case time.Time:
			return x.UTC().Format(timeLayout), nil
		case string:
			t, err := time.Parse(time.RFC3339Nano, x)
			if err != nil {
				return nil, bad()
			}
			return t.UTC().Format(timeLayout), nil
		}
		return nil, bad()
	}
	return nil, bad()
}

func classifySQLite(err error) error {
	var se *sqlite.Error
	if errors.As(err, &se) {
		switch se.Code() {
		case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
			return fmt.Errorf("%w: %v", ErrConflict, err)
		}
	}
	if strings.Contains(err.Error(), "UNIQUE constraint failed") {
		return fmt.Errorf("%w: %v", ErrConflict, err)
	}
	return err
}

// encodeFloat32s converts a float32 slice to little-endian bytes.
func encodeFloat32s(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// decodeFloat32s converts little-endian bytes back to a float32 slice.
func decodeFloat32s(b []byte) []float32 {
	if len(b)%4 != 0 {
		return nil
	}
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v
}
