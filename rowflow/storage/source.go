package storage

import (
	"bytes"
	"context"
	"fmt"
	"sync"

	"github.com/dgraph-io/badger/v4"

	"github.com/wbrown/janus-rowflow/rowflow"
	"github.com/wbrown/janus-rowflow/rowflow/codec"
	"github.com/wbrown/janus-rowflow/rowflow/enumerator"
	"github.com/wbrown/janus-rowflow/rowflow/executor"
	"github.com/wbrown/janus-rowflow/rowflow/query"
	"github.com/wbrown/janus-rowflow/rowflow/source"
)

// TableSource serves a table's rows with column names qualified by alias
type TableSource struct {
	table   *Table
	alias   string
	builder *rowflow.RowBuilder

	mu    sync.Mutex
	names map[string]string // column -> qualified field
}

// Source serves the table under alias
func (t *Table) Source(alias string) *TableSource {
	return &TableSource{table: t, alias: alias, builder: rowflow.NewRowBuilder(), names: make(map[string]string)}
}

func (s *TableSource) Aliases() []string { return []string{s.alias} }

// Access reports how a filter would be read: "index:<column>" or "scan"
func (s *TableSource) Access(q query.PushdownQuery) string {
	return planScan(q.Filter(), s.alias, s.table.indexed).access()
}

func (s *TableSource) Rows(ec *executor.Context, q query.PushdownQuery) enumerator.Enumerable[*rowflow.Row] {
	plan := planScan(q.Filter(), s.alias, s.table.indexed)
	batchSize := ec.BatchSize()
	rows := enumerator.FromBatches(func() enumerator.Batcher[*rowflow.Row] {
		r := &tableReader{src: s, ec: ec, batchSize: batchSize, plan: plan}
		if plan.column == "" {
			prefix := s.table.rowPrefix()
			r.plan.spans = []span{{lo: prefix, hi: codec.PrefixEnd(prefix)}}
		} else {
			r.prefix = s.table.indexPrefix(plan.column)
		}
		if len(r.plan.spans) > 0 {
			r.next = r.key(r.plan.spans[0].lo)
		}
		return r
	})
	observed := source.Observe(ec, source.Filter(rows, q), s.alias, plan.access(), q)
	return source.Finish(ec, s.builder, observed, q)
}

// qualify rebuilds a stored row with alias-qualified field names
func (s *TableSource) qualify(stored *rowflow.Row) *rowflow.Row {
	cols := stored.Fields()
	names := make([]string, len(cols))
	values := make([]rowflow.Value, len(cols))
	s.mu.Lock()
	for i, col := range cols {
		name, ok := s.names[col]
		if !ok {
			name = source.Qualify(s.alias, col)
			s.names[col] = name
		}
		names[i] = name
		values[i] = stored.At(i)
	}
	s.mu.Unlock()
	return s.builder.NewRowValues(stored.ID(), names, values)
}

// tableReader walks the plan's spans, one read transaction per batch. For
// an index plan the keys are index entries and rows are fetched by the id
// each entry ends with.
type tableReader struct {
	src       *TableSource
	ec        *executor.Context
	batchSize int
	plan      scanPlan
	prefix    []byte // index prefix, nil for a primary scan

	spanIdx int
	next    []byte // first key not yet read in the current span
	decoder *rowflow.RowBuilder
}

func (r *tableReader) key(value []byte) []byte {
	if r.prefix == nil {
		return value
	}
	return append(bytes.Clone(r.prefix), value...)
}

func (r *tableReader) Fetch(ctx context.Context) ([]*rowflow.Row, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	if r.decoder == nil {
		r.decoder = rowflow.NewRowBuilder()
	}
	batch := make([]*rowflow.Row, 0, r.batchSize)
	err := r.src.table.db.db.View(func(txn *badger.Txn) error {
		for r.spanIdx < len(r.plan.spans) && len(batch) < r.batchSize {
			done, err := r.readSpan(txn, &batch)
			if err != nil {
				return err
			}
			if !done {
				return nil
			}
			r.spanIdx++
			if r.spanIdx < len(r.plan.spans) {
				r.next = r.key(r.plan.spans[r.spanIdx].lo)
			}
		}
		return nil
	})
	if err != nil {
		return nil, false, fmt.Errorf("scan %s: %w", r.src.table.name, err)
	}
	if err := r.ec.CheckScan(len(batch)); err != nil {
		return nil, false, err
	}
	return batch, r.spanIdx < len(r.plan.spans), nil
}

// readSpan reads from r.next until the span ends or the batch is full.
// It reports whether the span is used up.
func (r *tableReader) readSpan(txn *badger.Txn, batch *[]*rowflow.Row) (bool, error) {
	end := r.key(r.plan.spans[r.spanIdx].hi)
	opts := badger.DefaultIteratorOptions
	opts.PrefetchSize = r.batchSize
	opts.PrefetchValues = r.prefix == nil
	it := txn.NewIterator(opts)
	defer it.Close()

	for it.Seek(r.next); it.Valid(); it.Next() {
		k := it.Item().Key()
		if bytes.Compare(k, end) >= 0 {
			return true, nil
		}
		if len(*batch) == r.batchSize {
			return false, nil
		}
		row, err := r.load(txn, it.Item())
		if err != nil {
			return false, err
		}
		*batch = append(*batch, r.src.qualify(row))
		// the smallest key after k
		r.next = append(bytes.Clone(k), 0)
	}
	return true, nil
}

func (r *tableReader) load(txn *badger.Txn, item *badger.Item) (*rowflow.Row, error) {
	if r.prefix != nil {
		k := item.Key()
		var id rowflow.RowID
		copy(id[:], k[len(k)-len(id):])
		var err error
		if item, err = txn.Get(r.src.table.rowKey(id)); err != nil {
			return nil, fmt.Errorf("index entry for row %s: %w", id, err)
		}
	}
	var row *rowflow.Row
	err := item.Value(func(val []byte) error {
		var err error
		row, err = codec.DecodeStoredRow(r.decoder, val)
		return err
	})
	return row, err
}

func (r *tableReader) Close() error { return nil }
