// Package sqlsrc reads rows from a database/sql table. Pushed filters are
// rendered into the WHERE clause as far as SQL can express them; the full
// filter is still applied to every row returned.
package sqlsrc

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/wbrown/janus-rowflow/rowflow"
	"github.com/wbrown/janus-rowflow/rowflow/enumerator"
	"github.com/wbrown/janus-rowflow/rowflow/executor"
	"github.com/wbrown/janus-rowflow/rowflow/query"
	"github.com/wbrown/janus-rowflow/rowflow/source"
)

// DefaultKey is sqlite's implicit row key
const DefaultKey = "rowid"

var ErrInvalidTable = errors.New("invalid table name")

// Source serves one table under an alias. Row ids derive from the table
// name and the key column, so the same stored row keeps its id across
// queries.
type Source struct {
	db      *sql.DB
	table   string
	alias   string
	key     string
	builder *rowflow.RowBuilder
}

// Option configures a Source
type Option func(*Source)

// WithKey names the column that identifies rows
func WithKey(column string) Option {
	return func(s *Source) { s.key = column }
}

func New(db *sql.DB, table, alias string, opts ...Option) (*Source, error) {
	if table == "" || strings.ContainsRune(table, 0) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidTable, table)
	}
	s := &Source{db: db, table: table, alias: alias, key: DefaultKey, builder: rowflow.NewRowBuilder()}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *Source) Aliases() []string { return []string{s.alias} }

// Statement renders the SELECT issued for q and its arguments
func (s *Source) Statement(q query.PushdownQuery) (string, []any) {
	stmt := "SELECT " + quote(s.key) + ", * FROM " + quote(s.table)
	f := q.Filter()
	if query.IsTrue(f) {
		return stmt, nil
	}
	w := &where{alias: s.alias}
	cond := w.render(f)
	if cond == "1" {
		return stmt, nil
	}
	return stmt + " WHERE " + cond, w.args
}

func (s *Source) Rows(ec *executor.Context, q query.PushdownQuery) enumerator.Enumerable[*rowflow.Row] {
	stmt, args := s.Statement(q)
	batchSize := ec.BatchSize()
	rows := enumerator.FromBatches(func() enumerator.Batcher[*rowflow.Row] {
		return &reader{src: s, ec: ec, stmt: stmt, args: args, batchSize: batchSize}
	})
	observed := source.Observe(ec, source.Filter(rows, q), s.alias, "sql", q)
	return source.Finish(ec, s.builder, observed, q)
}

// reader runs the query on its first fetch and then returns up to
// batchSize rows per fetch from the open result set
type reader struct {
	src       *Source
	ec        *executor.Context
	stmt      string
	args      []any
	batchSize int

	rows   *sql.Rows
	names  []string
	values []any
	done   bool
}

func (r *reader) open(ctx context.Context) error {
	r.ec.Logger().Debug("sql scan", "table", r.src.table, "query", r.stmt)
	rows, err := r.src.db.QueryContext(ctx, r.stmt, r.args...)
	if err != nil {
		return fmt.Errorf("query %s: %w", r.src.table, err)
	}
	cols, err := rows.Columns()
	if err != nil {
		_ = rows.Close()
		return fmt.Errorf("query %s: %w", r.src.table, err)
	}
	r.rows = rows
	// the first column is the key
	r.names = make([]string, len(cols)-1)
	for i, c := range cols[1:] {
		r.names[i] = source.Qualify(r.src.alias, c)
	}
	r.values = make([]any, len(cols))
	return nil
}

func (r *reader) Fetch(ctx context.Context) ([]*rowflow.Row, bool, error) {
	if r.done {
		return nil, false, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	if r.rows == nil {
		if err := r.open(ctx); err != nil {
			return nil, false, err
		}
	}

	dest := make([]any, len(r.values))
	for i := range dest {
		dest[i] = &r.values[i]
	}
	batch := make([]*rowflow.Row, 0, r.batchSize)
	for len(batch) < r.batchSize && r.rows.Next() {
		if err := r.rows.Scan(dest...); err != nil {
			return nil, false, fmt.Errorf("scan %s: %w", r.src.table, err)
		}
		vals := make([]rowflow.Value, len(r.names))
		for i := range vals {
			vals[i] = rowflow.ValueOf(r.values[i+1])
		}
		id := rowflow.RowIDFromKey(fmt.Sprintf("%s/%v", r.src.table, r.values[0]))
		batch = append(batch, r.src.builder.NewRowValues(id, r.names, vals))
	}
	if len(batch) < r.batchSize {
		r.done = true
		if err := r.rows.Err(); err != nil {
			return nil, false, fmt.Errorf("read %s: %w", r.src.table, err)
		}
	}
	if err := r.ec.CheckScan(len(batch)); err != nil {
		return nil, false, err
	}
	return batch, !r.done, nil
}

func (r *reader) Close() error {
	if r.rows == nil {
		return nil
	}
	return r.rows.Close()
}
