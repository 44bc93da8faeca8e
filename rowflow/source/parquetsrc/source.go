// Package parquetsrc reads rows from flat parquet files. Each fetched batch
// is one ReadRows chunk; row groups whose column bounds rule out a pushed
// range or comparison are skipped without being read.
package parquetsrc

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/parquet-go/parquet-go"

	"github.com/wbrown/janus-rowflow/rowflow"
	"github.com/wbrown/janus-rowflow/rowflow/enumerator"
	"github.com/wbrown/janus-rowflow/rowflow/executor"
	"github.com/wbrown/janus-rowflow/rowflow/query"
	"github.com/wbrown/janus-rowflow/rowflow/source"
)

var ErrUnsupportedSchema = errors.New("unsupported parquet schema")

// column describes one leaf of a flat schema
type column struct {
	name  string // qualified field name
	kind  rowflow.Kind
	scale int64 // nanoseconds per timestamp unit
}

func (c column) value(v parquet.Value) rowflow.Value {
	if v.IsNull() {
		return rowflow.Null()
	}
	switch v.Kind() {
	case parquet.Boolean:
		return rowflow.Bool(v.Boolean())
	case parquet.Int32:
		return rowflow.Int(int64(v.Int32()))
	case parquet.Int64:
		if c.kind == rowflow.KindTime {
			return rowflow.Time(time.Unix(0, v.Int64()*c.scale).UTC())
		}
		return rowflow.Int(v.Int64())
	case parquet.Float:
		return rowflow.Float(float64(v.Float()))
	case parquet.Double:
		return rowflow.Float(v.Double())
	case parquet.ByteArray, parquet.FixedLenByteArray:
		if c.kind == rowflow.KindString {
			return rowflow.String(string(v.ByteArray()))
		}
		return rowflow.Bytes(bytes.Clone(v.ByteArray()))
	}
	return rowflow.Null()
}

// Source serves one parquet file under an alias. Every enumeration opens
// the file on its own.
type Source struct {
	path    string
	alias   string
	columns []column
	index   map[string]int // qualified field -> leaf column
	builder *rowflow.RowBuilder
}

// Open reads the schema of the file at path
func Open(path, alias string) (*Source, error) {
	f, pf, err := openFile(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	s := &Source{path: path, alias: alias, index: make(map[string]int), builder: rowflow.NewRowBuilder()}
	schema := pf.Schema()
	for i, path := range schema.Columns() {
		leaf, ok := schema.Lookup(path...)
		if !ok || len(path) != 1 || leaf.MaxRepetitionLevel > 0 {
			return nil, fmt.Errorf("%w: column %s is nested or repeated", ErrUnsupportedSchema, strings.Join(path, "."))
		}
		c, err := describe(source.Qualify(alias, path[0]), leaf.Node.Type())
		if err != nil {
			return nil, err
		}
		s.columns = append(s.columns, c)
		s.index[c.name] = i
	}
	return s, nil
}

func describe(name string, t parquet.Type) (column, error) {
	c := column{name: name}
	lt := t.LogicalType()
	switch t.Kind() {
	case parquet.Boolean:
		c.kind = rowflow.KindBool
	case parquet.Int32:
		c.kind = rowflow.KindInt
	case parquet.Int64:
		c.kind = rowflow.KindInt
		if lt != nil && lt.Timestamp != nil {
			c.kind = rowflow.KindTime
			switch unit := lt.Timestamp.Unit; {
			case unit.Millis != nil:
				c.scale = int64(time.Millisecond)
			case unit.Micros != nil:
				c.scale = int64(time.Microsecond)
			default:
				c.scale = 1
			}
		}
	case parquet.Float, parquet.Double:
		c.kind = rowflow.KindFloat
	case parquet.ByteArray, parquet.FixedLenByteArray:
		c.kind = rowflow.KindBytes
		if lt != nil && lt.UTF8 != nil {
			c.kind = rowflow.KindString
		}
	default:
		return c, fmt.Errorf("%w: column %s has type %s", ErrUnsupportedSchema, name, t)
	}
	return c, nil
}

func openFile(path string) (*os.File, *parquet.File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open file: %w", err)
	}
	stat, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, nil, fmt.Errorf("failed to get file stats: %w", err)
	}
	pf, err := parquet.OpenFile(f, stat.Size())
	if err != nil {
		f.Close()
		return nil, nil, fmt.Errorf("failed to open parquet file: %w", err)
	}
	return f, pf, nil
}

func (s *Source) Aliases() []string { return []string{s.alias} }

// Fields lists the qualified field names in schema order
func (s *Source) Fields() []string {
	names := make([]string, len(s.columns))
	for i, c := range s.columns {
		names[i] = c.name
	}
	return names
}

func (s *Source) Rows(ec *executor.Context, q query.PushdownQuery) enumerator.Enumerable[*rowflow.Row] {
	batchSize := ec.BatchSize()
	rows := enumerator.FromBatches(func() enumerator.Batcher[*rowflow.Row] {
		return &reader{src: s, ec: ec, filter: q.Filter(), batchSize: batchSize}
	})
	observed := source.Observe(ec, source.Filter(rows, q), s.alias, "parquet", q)
	return source.Finish(ec, s.builder, observed, q)
}

// reader walks the row groups in file order. Row ids derive from the file
// path and the row's position in the file.
type reader struct {
	src       *Source
	ec        *executor.Context
	filter    query.Predicate
	batchSize int

	file    *os.File
	groups  []parquet.RowGroup
	group   int
	base    int64 // file position of the current group's first row
	read    int64 // rows read from the current group
	rows    parquet.Rows
	buf     []parquet.Row
	skipped int
}

func (r *reader) Fetch(ctx context.Context) ([]*rowflow.Row, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	if r.file == nil {
		f, pf, err := openFile(r.src.path)
		if err != nil {
			return nil, false, err
		}
		r.file, r.groups = f, pf.RowGroups()
		r.buf = make([]parquet.Row, r.batchSize)
	}

	for r.rows == nil {
		if r.group >= len(r.groups) {
			r.ec.Logger().Debug("parquet scan done", "file", r.src.path, "row_groups", len(r.groups), "skipped", r.skipped)
			return nil, false, nil
		}
		rg := r.groups[r.group]
		if r.src.excludes(rg, r.filter) {
			r.skipped++
			r.next()
			continue
		}
		r.rows = rg.Rows()
	}

	n, err := r.rows.ReadRows(r.buf)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, false, fmt.Errorf("read %s: %w", r.src.path, err)
	}
	batch := make([]*rowflow.Row, n)
	for i, row := range r.buf[:n] {
		batch[i] = r.src.row(row, r.base+r.read+int64(i))
	}
	r.read += int64(n)
	if errors.Is(err, io.EOF) || r.read >= r.groups[r.group].NumRows() {
		if cerr := r.rows.Close(); cerr != nil {
			return nil, false, cerr
		}
		r.rows = nil
		r.next()
	}
	if err := r.ec.CheckScan(n); err != nil {
		return nil, false, err
	}
	return batch, true, nil
}

// next moves to the following row group
func (r *reader) next() {
	r.base += r.groups[r.group].NumRows()
	r.read = 0
	r.group++
}

func (r *reader) Close() error {
	var err error
	if r.rows != nil {
		err = r.rows.Close()
		r.rows = nil
	}
	if r.file != nil {
		if cerr := r.file.Close(); err == nil {
			err = cerr
		}
		r.file = nil
	}
	return err
}

func (s *Source) row(pr parquet.Row, pos int64) *rowflow.Row {
	names := make([]string, len(s.columns))
	values := make([]rowflow.Value, len(s.columns))
	for i, c := range s.columns {
		names[i] = c.name
	}
	for _, v := range pr {
		if i := v.Column(); i >= 0 && i < len(s.columns) {
			values[i] = s.columns[i].value(v)
		}
	}
	id := rowflow.RowIDFromKey(fmt.Sprintf("%s/%d", s.path, pos))
	return s.builder.NewRowValues(id, names, values)
}
