// Package executor runs serialized queries through database/sql and
// rebuilds projected rows into tuples.
package executor

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/bawdo/querytree/nodes"
	"github.com/bawdo/querytree/projections"
	"github.com/bawdo/querytree/visitors"
)

// Queryer is the read side of *sql.DB, *sql.Tx and *sql.Conn.
type Queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// Execer is the write side of *sql.DB, *sql.Tx and *sql.Conn.
type Execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// ErrNotExecer is returned by Exec when the connection cannot run
// statements.
var ErrNotExecer = errors.New("executor: connection does not implement ExecContext")

// DefaultMaxRows caps raw result sets.
const DefaultMaxRows = 1000

// Option configures an Executor.
type Option func(*Executor)

// WithLogger sets the logger. Queries are logged at debug level.
func WithLogger(l *slog.Logger) Option {
	return func(e *Executor) {
		if l != nil {
			e.log = l
		}
	}
}

// WithMaxRows caps the rows Query collects. Zero or less means no cap.
func WithMaxRows(n int) Option {
	return func(e *Executor) { e.maxRows = n }
}

// Executor renders metadata with one serializer and runs it on q.
type Executor struct {
	q       Queryer
	s       *visitors.Serializer
	log     *slog.Logger
	maxRows int
}

// New returns an Executor. s must bind parameters; inlined literals are for
// display only.
func New(q Queryer, s *visitors.Serializer, opts ...Option) *Executor {
	e := &Executor{q: q, s: s, log: slog.New(slog.DiscardHandler), maxRows: DefaultMaxRows}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Serializer returns the serializer queries are rendered with.
func (e *Executor) Serializer() *visitors.Serializer { return e.s }

// Result is a raw result set.
type Result struct {
	Columns   []string
	Rows      [][]any
	Truncated bool
}

// Query renders md and returns the raw rows.
func (e *Executor) Query(ctx context.Context, md *nodes.QueryMetadata) (*Result, error) {
	st, err := e.s.Serialize(md, false)
	if err != nil {
		return nil, err
	}
	return e.QuerySQL(ctx, st.SQL, st.Params)
}

// QuerySQL runs already rendered SQL.
func (e *Executor) QuerySQL(ctx context.Context, query string, params []any) (*Result, error) {
	start := time.Now()
	e.log.DebugContext(ctx, "query", "sql", query, "params", len(params))

	rows, err := e.q.QueryContext(ctx, query, params...)
	if err != nil {
		e.log.ErrorContext(ctx, "query failed", "sql", query, "error", err)
		return nil, fmt.Errorf("query: %w", err)
	}
	defer func() { _ = rows.Close() }()

	res, err := scanRows(rows, e.maxRows)
	if err != nil {
		return nil, err
	}
	e.log.DebugContext(ctx, "query done",
		"rows", len(res.Rows), "truncated", res.Truncated, "elapsed", time.Since(start))
	return res, nil
}

func scanRows(rows *sql.Rows, maxRows int) (*Result, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("columns: %w", err)
	}
	res := &Result{Columns: columns}
	for rows.Next() {
		if maxRows > 0 && len(res.Rows) >= maxRows {
			res.Truncated = true
			break
		}
		vals := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		res.Rows = append(res.Rows, vals)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return res, nil
}

// Fetch runs md and shapes each row by its projection. A factory
// projection yields its reconstructed values, with skipped rows dropped. A
// single-column projection yields the column values. Otherwise each row is
// returned as []any.
func (e *Executor) Fetch(ctx context.Context, md *nodes.QueryMetadata) ([]any, error) {
	res, err := e.Query(ctx, md)
	if err != nil {
		return nil, err
	}
	switch p := md.Projection().(type) {
	case *nodes.Factory:
		out, err := projections.ReconstructAll(p, res.Rows)
		if err != nil {
			return nil, fmt.Errorf("fetch: %w", err)
		}
		return out, nil
	case nil:
	default:
		if path, ok := p.(*nodes.Path); !ok || !path.IsEntity() {
			out := make([]any, len(res.Rows))
			for i, row := range res.Rows {
				if len(row) != 1 {
					return nil, &projections.RowSizeError{Factory: "scalar", Want: 1, Got: len(row)}
				}
				out[i] = row[0]
			}
			return out, nil
		}
	}
	out := make([]any, len(res.Rows))
	for i, row := range res.Rows {
		out[i] = row
	}
	return out, nil
}

// Count runs the row count form of md.
func (e *Executor) Count(ctx context.Context, md *nodes.QueryMetadata) (int64, error) {
	st, err := e.s.Serialize(md, true)
	if err != nil {
		return 0, err
	}
	e.log.DebugContext(ctx, "count", "sql", st.SQL, "params", len(st.Params))
	rows, err := e.q.QueryContext(ctx, st.SQL, st.Params...)
	if err != nil {
		return 0, fmt.Errorf("count: %w", err)
	}
	defer func() { _ = rows.Close() }()
	var n int64
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return 0, fmt.Errorf("count: %w", err)
		}
		return 0, fmt.Errorf("count: %w", sql.ErrNoRows)
	}
	if err := rows.Scan(&n); err != nil {
		return 0, fmt.Errorf("count: scan: %w", err)
	}
	return n, rows.Err()
}

// Exec runs a rendered statement and returns the affected row count.
func (e *Executor) Exec(ctx context.Context, query string, params []any) (int64, error) {
	x, ok := e.q.(Execer)
	if !ok {
		return 0, ErrNotExecer
	}
	e.log.DebugContext(ctx, "exec", "sql", query, "params", len(params))
	r, err := x.ExecContext(ctx, query, params...)
	if err != nil {
		e.log.ErrorContext(ctx, "exec failed", "sql", query, "error", err)
		return 0, fmt.Errorf("exec: %w", err)
	}
	n, err := r.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return n, nil
}
