package rowflow

import (
	"fmt"
	"strings"
)

// Row is an immutable mapping from source-alias-qualified field names to
// values plus a unique id. A nil *Row is the absent row produced by outer
// joins; reading any field of it yields Null.
type Row struct {
	id     RowID
	fields *FieldSet
	values []Value
	owner  *RowBuilder
}

// ID returns the row's identity
func (r *Row) ID() RowID {
	if r == nil {
		return RowID{}
	}
	return r.id
}

// Get returns a field value and whether the field exists
func (r *Row) Get(name string) (Value, bool) {
	if r == nil {
		return Null(), false
	}
	i := r.fields.Index(name)
	if i < 0 {
		return Null(), false
	}
	return r.values[i], true
}

// Value returns a field value, Null when the field is absent
func (r *Row) Value(name string) Value {
	v, _ := r.Get(name)
	return v
}

// Fields returns the field names in order. The slice must not be modified.
func (r *Row) Fields() []string {
	if r == nil {
		return nil
	}
	return r.fields.Names()
}

// FieldSet returns the interned field set
func (r *Row) FieldSet() *FieldSet {
	if r == nil {
		return nil
	}
	return r.fields
}

// Len returns the number of fields
func (r *Row) Len() int {
	if r == nil {
		return 0
	}
	return len(r.values)
}

// At returns the i-th value in field order
func (r *Row) At(i int) Value {
	if r == nil || i < 0 || i >= len(r.values) {
		return Null()
	}
	return r.values[i]
}

// Owner returns the builder that owns this row
func (r *Row) Owner() *RowBuilder {
	if r == nil {
		return nil
	}
	return r.owner
}

// Map returns a fresh name to Go value map
func (r *Row) Map() map[string]any {
	if r == nil {
		return nil
	}
	m := make(map[string]any, len(r.values))
	for i, n := range r.fields.Names() {
		m[n] = r.values[i].Any()
	}
	return m
}

// Equal compares field names and values, ignoring ids
func (r *Row) Equal(o *Row) bool {
	if r == nil || o == nil {
		return r == nil && o == nil
	}
	if r.Len() != o.Len() {
		return false
	}
	for i, n := range r.fields.Names() {
		ov, ok := o.Get(n)
		if !ok || !r.values[i].Equal(ov) {
			return false
		}
	}
	return true
}

func (r *Row) String() string {
	if r == nil {
		return "Row(absent)"
	}
	var sb strings.Builder
	sb.WriteString("Row{")
	for i, n := range r.fields.Names() {
		if i > 0 {
			sb.WriteString(", ")
		}
		fmt.Fprintf(&sb, "%s: %s", n, r.values[i])
	}
	sb.WriteString("}")
	return sb.String()
}
