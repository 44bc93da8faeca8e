package rowflow

import (
	"fmt"
	"slices"
	"sync"
)

// RowBuilder creates and combines rows. It interns field sets so the many
// rows produced by one reader or one join share a single field layout.
//
// A RowBuilder is safe for concurrent use.
type RowBuilder struct {
	fields  fieldIntern
	layouts sync.Map // map[layoutKey]*combinedLayout
}

// NewRowBuilder creates an empty builder
func NewRowBuilder() *RowBuilder {
	return &RowBuilder{}
}

// NewRow builds a row from reader-supplied pairs. Field order is sorted by
// name so equal field sets intern to the same layout regardless of map order.
func (b *RowBuilder) NewRow(id RowID, fields map[string]any) *Row {
	names := make([]string, 0, len(fields))
	for n := range fields {
		names = append(names, n)
	}
	slices.Sort(names)

	values := make([]Value, len(names))
	for i, n := range names {
		values[i] = ValueOf(fields[n])
	}
	return &Row{
		id:     id,
		fields: b.fields.intern(names),
		values: values,
		owner:  b,
	}
}

// NewRowValues builds a row with an explicit field order. It panics when
// names and values differ in length, which is a programming error.
func (b *RowBuilder) NewRowValues(id RowID, names []string, values []Value) *Row {
	if len(names) != len(values) {
		panic(fmt.Sprintf("rowflow: %d names for %d values", len(names), len(values)))
	}
	owned := make([]Value, len(values))
	copy(owned, values)
	return &Row{
		id:     id,
		fields: b.fields.intern(names),
		values: owned,
		owner:  b,
	}
}

// Attach returns r when this builder already owns it, and an owned copy
// sharing this builder's interned field set otherwise. Attach is idempotent.
func (b *RowBuilder) Attach(r *Row) *Row {
	if r == nil || r.owner == b {
		return r
	}
	return &Row{
		id:     r.id,
		fields: b.fields.intern(r.fields.Names()),
		values: r.values, // rows are immutable, the value slice can be shared
		owner:  b,
	}
}

// Combine joins two rows:
//   - both absent: absent
//   - one absent: the other, owned by this builder
//   - otherwise a new row with the union of fields (left wins on a name
//     clash) and an id derived from both ids
func (b *RowBuilder) Combine(left, right *Row) *Row {
	switch {
	case left == nil && right == nil:
		return nil
	case left == nil:
		return b.Attach(right)
	case right == nil:
		return b.Attach(left)
	}

	layout := b.layout(left.fields, right.fields)
	values := make([]Value, layout.fields.Len())
	copy(values, left.values)
	for i, pos := range layout.rightPos {
		if pos >= 0 {
			values[pos] = right.values[i]
		}
	}
	return &Row{
		id:     CombineIDs(left.id, right.id),
		fields: layout.fields,
		values: values,
		owner:  b,
	}
}

// layout returns the cached combined layout for a pair of field sets
func (b *RowBuilder) layout(left, right *FieldSet) *combinedLayout {
	key := layoutKey{left: left, right: right}
	if val, ok := b.layouts.Load(key); ok {
		return val.(*combinedLayout)
	}

	names := make([]string, 0, left.Len()+right.Len())
	names = append(names, left.Names()...)
	rightPos := make([]int, right.Len())
	for i, n := range right.Names() {
		if left.Index(n) >= 0 {
			rightPos[i] = -1
			continue
		}
		rightPos[i] = len(names)
		names = append(names, n)
	}

	layout := &combinedLayout{
		fields:   b.fields.intern(names),
		rightPos: rightPos,
	}
	actual, _ := b.layouts.LoadOrStore(key, layout)
	return actual.(*combinedLayout)
}
