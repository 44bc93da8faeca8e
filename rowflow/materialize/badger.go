package materialize

import (
	"context"
	"encoding/binary"
	"fmt"
	"slices"
	"sync"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	"github.com/wbrown/janus-rowflow/rowflow"
	"github.com/wbrown/janus-rowflow/rowflow/codec"
	"github.com/wbrown/janus-rowflow/rowflow/enumerator"
)

// DefaultBatchSize is the number of rows read per batch from a spilled
// collection
const DefaultBatchSize = 256

// BadgerPolicy spills materialized rows into a badger database. Rows are
// encoded with codec.EncodeRow and keyed by collection prefix and position,
// so a collection's memory footprint is its key prefix and, once sorted,
// its permutation.
type BadgerPolicy struct {
	db        *badger.DB
	batchSize int
	builder   *rowflow.RowBuilder
}

// OpenBadgerPolicy opens (or creates) a spill database in dir. An empty dir
// keeps the database in memory.
func OpenBadgerPolicy(dir string, batchSize int) (*BadgerPolicy, error) {
	opts := badger.DefaultOptions(dir)
	if dir == "" {
		opts = opts.WithInMemory(true)
	}
	opts.Logger = nil
	opts.DetectConflicts = false

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open spill store: %w", err)
	}
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &BadgerPolicy{db: db, batchSize: batchSize, builder: rowflow.NewRowBuilder()}, nil
}

func (p *BadgerPolicy) Name() string { return "badger" }

// Close closes the spill database; collections must be closed first
func (p *BadgerPolicy) Close() error { return p.db.Close() }

func (p *BadgerPolicy) Materialize(ctx context.Context, src enumerator.Enumerable[*rowflow.Row]) (Collection, error) {
	id := uuid.New()
	c := &badgerCollection{policy: p, prefix: id[:]}

	wb := p.db.NewWriteBatch()
	err := enumerator.ForEach(ctx, src, func(row *rowflow.Row) error {
		key := c.key(c.count)
		c.count++
		return wb.Set(key, codec.EncodeRow(row))
	})
	if err != nil {
		wb.Cancel()
		_ = p.db.DropPrefix(c.prefix)
		return nil, err
	}
	if err := wb.Flush(); err != nil {
		_ = p.db.DropPrefix(c.prefix)
		return nil, fmt.Errorf("failed to spill rows: %w", err)
	}
	return c, nil
}

type badgerCollection struct {
	policy *BadgerPolicy
	prefix []byte
	count  int

	mu     sync.RWMutex
	perm   []int // position -> stored slot; nil while unsorted
	closed bool
}

func (c *badgerCollection) key(slot int) []byte {
	return binary.BigEndian.AppendUint64(slices.Clip(c.prefix), uint64(slot))
}

func (c *badgerCollection) Count() int { return c.count }

// snapshot returns the permutation in effect; Sort replaces it, never
// mutates it
func (c *badgerCollection) snapshot() ([]int, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return nil, ErrClosed
	}
	return c.perm, nil
}

func slotOf(perm []int, pos int) int {
	if perm == nil {
		return pos
	}
	return perm[pos]
}

func (c *badgerCollection) At(i int) (*rowflow.Row, error) {
	if i < 0 || i >= c.count {
		return nil, fmt.Errorf("row %d out of range [0, %d)", i, c.count)
	}
	perm, err := c.snapshot()
	if err != nil {
		return nil, err
	}
	var row *rowflow.Row
	err = c.policy.db.View(func(txn *badger.Txn) error {
		row, err = c.get(txn, slotOf(perm, i))
		return err
	})
	return row, err
}

func (c *badgerCollection) get(txn *badger.Txn, slot int) (*rowflow.Row, error) {
	item, err := txn.Get(c.key(slot))
	if err != nil {
		return nil, fmt.Errorf("spilled row %d: %w", slot, err)
	}
	var row *rowflow.Row
	err = item.Value(func(val []byte) error {
		row, err = codec.DecodeStoredRow(c.policy.builder, val)
		return err
	})
	return row, err
}

func (c *badgerCollection) Enumerate() enumerator.Enumerator[*rowflow.Row] {
	return c.EnumerateFrom(0).Enumerate()
}

func (c *badgerCollection) EnumerateFrom(offset int) enumerator.Enumerable[*rowflow.Row] {
	return enumerator.FromBatches(func() enumerator.Batcher[*rowflow.Row] {
		return &spillReader{c: c, pos: min(max(offset, 0), c.count)}
	})
}

// spillReader reads one batch per read transaction
type spillReader struct {
	c       *badgerCollection
	pos     int
	perm    []int
	started bool
}

func (r *spillReader) Fetch(ctx context.Context) ([]*rowflow.Row, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	perm, err := r.c.snapshot()
	if err != nil {
		return nil, false, err
	}
	if !r.started {
		r.perm, r.started = perm, true
	}
	end := min(r.pos+r.c.policy.batchSize, r.c.count)
	if end <= r.pos {
		return nil, false, nil
	}
	batch := make([]*rowflow.Row, 0, end-r.pos)

	err = r.c.policy.db.View(func(txn *badger.Txn) error {
		if r.perm != nil {
			for pos := r.pos; pos < end; pos++ {
				row, err := r.c.get(txn, r.perm[pos])
				if err != nil {
					return err
				}
				batch = append(batch, row)
			}
			return nil
		}

		opts := badger.DefaultIteratorOptions
		opts.Prefix = r.c.prefix
		opts.PrefetchSize = end - r.pos
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek(r.c.key(r.pos)); it.ValidForPrefix(r.c.prefix) && len(batch) < end-r.pos; it.Next() {
			err := it.Item().Value(func(val []byte) error {
				row, err := codec.DecodeStoredRow(r.c.policy.builder, val)
				if err != nil {
					return err
				}
				batch = append(batch, row)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	r.pos = end
	return batch, r.pos < r.c.count, nil
}

func (r *spillReader) Close() error { return nil }

// Sort decodes the rows once to compute a stable permutation. Only the
// permutation stays in memory afterwards.
func (c *badgerCollection) Sort(cmp func(a, b *rowflow.Row) int) error {
	rows, err := enumerator.ToSlice[*rowflow.Row](context.Background(), c)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	order := make([]int, len(rows))
	for i := range order {
		order[i] = i
	}
	slices.SortStableFunc(order, func(a, b int) int { return cmp(rows[a], rows[b]) })

	perm := make([]int, len(order))
	for i, pos := range order {
		perm[i] = slotOf(c.perm, pos)
	}
	c.perm = perm
	return nil
}

func (c *badgerCollection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	c.perm = nil
	return c.policy.db.DropPrefix(c.prefix)
}
