package source

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/wbrown/janus-rowflow/rowflow"
	"github.com/wbrown/janus-rowflow/rowflow/enumerator"
	"github.com/wbrown/janus-rowflow/rowflow/executor"
	"github.com/wbrown/janus-rowflow/rowflow/query"
)

// Memory serves rows held in memory under a single alias. It reads in
// batches of the context's batch size so it behaves like any remote reader.
type Memory struct {
	alias   string
	rows    []*rowflow.Row
	builder *rowflow.RowBuilder
	scanned atomic.Int64
}

// NewMemory builds a source from records. Unqualified field names are
// qualified with the alias; row ids derive from the alias and position.
func NewMemory(alias string, records []map[string]any) *Memory {
	b := rowflow.NewRowBuilder()
	rows := make([]*rowflow.Row, len(records))
	for i, rec := range records {
		fields := make(map[string]any, len(rec))
		for k, v := range rec {
			fields[Qualify(alias, k)] = v
		}
		rows[i] = b.NewRow(rowflow.RowIDFromKey(fmt.Sprintf("%s/%d", alias, i)), fields)
	}
	return &Memory{alias: alias, rows: rows, builder: b}
}

// NewMemoryRows serves already built rows as-is
func NewMemoryRows(alias string, rows []*rowflow.Row) *Memory {
	return &Memory{alias: alias, rows: rows, builder: rowflow.NewRowBuilder()}
}

// Qualify prefixes an unqualified field name with an alias
func Qualify(alias, field string) string {
	if strings.Contains(field, ".") {
		return field
	}
	return alias + "." + field
}

func (m *Memory) Aliases() []string { return []string{m.alias} }

// Len is the number of rows held
func (m *Memory) Len() int { return len(m.rows) }

// Scanned is the number of rows read over all enumerations
func (m *Memory) Scanned() int64 { return m.scanned.Load() }

func (m *Memory) Rows(ec *executor.Context, q query.PushdownQuery) enumerator.Enumerable[*rowflow.Row] {
	batchSize := ec.BatchSize()
	rows := enumerator.FromBatches(func() enumerator.Batcher[*rowflow.Row] {
		pos := 0
		return enumerator.BatchFunc[*rowflow.Row](func(ctx context.Context) ([]*rowflow.Row, bool, error) {
			if err := ctx.Err(); err != nil {
				return nil, false, err
			}
			end := min(pos+batchSize, len(m.rows))
			batch := m.rows[pos:end]
			pos = end
			m.scanned.Add(int64(len(batch)))
			if err := ec.CheckScan(len(batch)); err != nil {
				return nil, false, err
			}
			return batch, pos < len(m.rows), nil
		})
	})
	scanned := Observe(ec, Filter(rows, q), m.alias, "memory", q)
	return Finish(ec, m.builder, scanned, q)
}
