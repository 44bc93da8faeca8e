// Package storage keeps tables of rows in a badger database and serves
// them as row sources. Each table has a primary keyspace of encoded rows
// and one secondary index per indexed column, so pushed filters on an
// indexed column become key range scans.
package storage

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/dgraph-io/badger/v4"

	"github.com/wbrown/janus-rowflow/rowflow"
	"github.com/wbrown/janus-rowflow/rowflow/codec"
)

var (
	ErrTableExists = errors.New("table already exists")
	ErrNoSuchTable = errors.New("no such table")
	ErrInvalidName = errors.New("invalid table or column name")
)

// Keyspace prefixes
const (
	prefixMeta  = 'm'
	prefixRow   = 'r'
	prefixIndex = 'i'
)

// DB is a badger-backed table store
type DB struct {
	db *badger.DB

	mu     sync.RWMutex
	tables map[string]*Table
}

// Open opens (or creates) a store in dir. An empty dir keeps the database
// in memory.
func Open(dir string) (*DB, error) {
	opts := badger.DefaultOptions(dir)
	if dir == "" {
		opts = opts.WithInMemory(true)
	}
	opts.Logger = nil
	opts.DetectConflicts = false
	opts.NumCompactors = 4
	opts.ValueThreshold = 1 << 10 // small rows stay in the LSM tree

	bdb, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	db := &DB{db: bdb, tables: make(map[string]*Table)}
	if err := db.loadTables(); err != nil {
		_ = bdb.Close()
		return nil, err
	}
	return db, nil
}

func (db *DB) Close() error { return db.db.Close() }

// loadTables reads the table definitions written by CreateTable
func (db *DB) loadTables() error {
	return db.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte{prefixMeta}
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			name := string(item.Key()[1:])
			err := item.Value(func(val []byte) error {
				var indexed []string
				if len(val) > 0 {
					indexed = strings.Split(string(val), "\x00")
				}
				db.tables[name] = newTable(db, name, indexed)
				return nil
			})
			if err != nil {
				return fmt.Errorf("failed to load table %s: %w", name, err)
			}
		}
		return nil
	})
}

func validName(name string) bool {
	return name != "" && !strings.ContainsAny(name, "\x00.")
}

// CreateTable defines a table with secondary indexes on the given columns
func (db *DB) CreateTable(name string, indexed ...string) (*Table, error) {
	if !validName(name) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	for _, col := range indexed {
		if !validName(col) {
			return nil, fmt.Errorf("%w: %q", ErrInvalidName, col)
		}
	}

	db.mu.Lock()
	defer db.mu.Unlock()
	if _, ok := db.tables[name]; ok {
		return nil, fmt.Errorf("%w: %s", ErrTableExists, name)
	}
	indexed = slices.Compact(slices.Sorted(slices.Values(indexed)))
	err := db.db.Update(func(txn *badger.Txn) error {
		return txn.Set(append([]byte{prefixMeta}, name...), []byte(strings.Join(indexed, "\x00")))
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create table %s: %w", name, err)
	}
	t := newTable(db, name, indexed)
	db.tables[name] = t
	return t, nil
}

// Table returns a previously created table
func (db *DB) Table(name string) (*Table, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	t, ok := db.tables[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoSuchTable, name)
	}
	return t, nil
}

// Tables lists table names in order
func (db *DB) Tables() []string {
	db.mu.RLock()
	defer db.mu.RUnlock()
	names := make([]string, 0, len(db.tables))
	for name := range db.tables {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Table is a named set of rows with unqualified column names
type Table struct {
	db      *DB
	name    string
	indexed []string
	builder *rowflow.RowBuilder
}

func newTable(db *DB, name string, indexed []string) *Table {
	return &Table{db: db, name: name, indexed: indexed, builder: rowflow.NewRowBuilder()}
}

func (t *Table) Name() string { return t.name }

// Indexed lists the columns carrying a secondary index
func (t *Table) Indexed() []string { return slices.Clone(t.indexed) }

// rowPrefix is r<table>\x00; a row key appends its 16 byte id
func (t *Table) rowPrefix() []byte {
	return append(append([]byte{prefixRow}, t.name...), 0)
}

func (t *Table) rowKey(id rowflow.RowID) []byte {
	return append(t.rowPrefix(), id[:]...)
}

// indexPrefix is i<table>\x00<column>\x00; an entry appends the
// order-preserving value key and the row id
func (t *Table) indexPrefix(col string) []byte {
	b := append([]byte{prefixIndex}, t.name...)
	b = append(append(b, 0), col...)
	return append(b, 0)
}

func (t *Table) indexKey(col string, v rowflow.Value, id rowflow.RowID) []byte {
	return append(codec.AppendKey(t.indexPrefix(col), v), id[:]...)
}

// Insert stores records as new rows and returns their ids. Column names
// must be unqualified.
func (t *Table) Insert(records []map[string]any) ([]rowflow.RowID, error) {
	rows := make([]*rowflow.Row, len(records))
	for i, rec := range records {
		for col := range rec {
			if !validName(col) {
				return nil, fmt.Errorf("%w: %q", ErrInvalidName, col)
			}
		}
		rows[i] = t.builder.NewRow(rowflow.NewRowID(), rec)
	}
	if err := t.InsertRows(rows); err != nil {
		return nil, err
	}
	ids := make([]rowflow.RowID, len(rows))
	for i, r := range rows {
		ids[i] = r.ID()
	}
	return ids, nil
}

// InsertRows stores already built rows under their own ids, which must not
// be stored yet
func (t *Table) InsertRows(rows []*rowflow.Row) error {
	wb := t.db.db.NewWriteBatch()
	for _, r := range rows {
		if err := t.write(wb, r); err != nil {
			wb.Cancel()
			return err
		}
	}
	if err := wb.Flush(); err != nil {
		return fmt.Errorf("failed to insert into %s: %w", t.name, err)
	}
	return nil
}

func (t *Table) write(wb *badger.WriteBatch, r *rowflow.Row) error {
	if err := wb.Set(t.rowKey(r.ID()), codec.EncodeRow(r)); err != nil {
		return fmt.Errorf("failed to write row: %w", err)
	}
	for _, col := range t.indexed {
		// a missing column is indexed as null
		v, _ := r.Get(col)
		if err := wb.Set(t.indexKey(col, v, r.ID()), nil); err != nil {
			return fmt.Errorf("failed to write %s index: %w", col, err)
		}
	}
	return nil
}

// Count is the number of stored rows
func (t *Table) Count() (int, error) {
	n := 0
	err := t.db.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = t.rowPrefix()
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			n++
		}
		return nil
	})
	return n, err
}
