package rowflow

import (
	"strings"
	"sync"
)

// FieldSet is an interned, ordered list of field names shared by every row
// built with the same fields
type FieldSet struct {
	names []string
	index map[string]int
}

func newFieldSet(names []string) *FieldSet {
	fs := &FieldSet{
		names: names,
		index: make(map[string]int, len(names)),
	}
	for i, n := range names {
		if _, dup := fs.index[n]; !dup {
			fs.index[n] = i
		}
	}
	return fs
}

// Names returns the field names in order. The slice must not be modified.
func (fs *FieldSet) Names() []string { return fs.names }

// Len returns the number of fields
func (fs *FieldSet) Len() int { return len(fs.names) }

// Index returns the position of a field or -1
func (fs *FieldSet) Index(name string) int {
	if i, ok := fs.index[name]; ok {
		return i
	}
	return -1
}

// fieldIntern caches field sets by their joined names.
// Uses sync.Map for lock-free concurrent reads.
type fieldIntern struct {
	cache sync.Map // map[string]*FieldSet
}

func internKey(names []string) string {
	return strings.Join(names, "\x00")
}

func (fi *fieldIntern) intern(names []string) *FieldSet {
	key := internKey(names)

	// Fast path: load existing (lock-free)
	if val, ok := fi.cache.Load(key); ok {
		return val.(*FieldSet)
	}

	// Slow path: copy the names so callers can reuse their slice
	owned := make([]string, len(names))
	copy(owned, names)
	actual, _ := fi.cache.LoadOrStore(key, newFieldSet(owned))
	return actual.(*FieldSet)
}

// combinedLayout describes how a joined row is assembled from two field sets
type combinedLayout struct {
	fields *FieldSet
	// rightPos[i] is the output position of the right side's i-th field, or -1
	// when the left side already provides that name
	rightPos []int
}

type layoutKey struct {
	left, right *FieldSet
}
