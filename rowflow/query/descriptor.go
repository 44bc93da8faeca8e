package query

import (
	"slices"
	"strconv"
	"strings"

	"github.com/wbrown/janus-rowflow/rowflow"
)

// OrderBy is one entry of an order list
type OrderBy struct {
	Expr       ValueExpr
	Descending bool
}

// Asc and Desc are shorthands for ordering on a field
func Asc(field string) OrderBy  { return OrderBy{Expr: F(field)} }
func Desc(field string) OrderBy { return OrderBy{Expr: F(field), Descending: true} }

func (o OrderBy) String() string {
	if o.Descending {
		return o.Expr.String() + " desc"
	}
	return o.Expr.String() + " asc"
}

// RowComparer builds a three-way row comparison from an order list using
// the total value order. An empty list treats all rows as equal.
func RowComparer(order []OrderBy) func(a, b *rowflow.Row) int {
	return func(a, b *rowflow.Row) int {
		for _, o := range order {
			c := rowflow.Compare(o.Expr.Eval(a), o.Expr.Eval(b))
			if c != 0 {
				if o.Descending {
					return -c
				}
				return c
			}
		}
		return 0
	}
}

// PushdownQuery is the immutable query descriptor handed to every row
// source: requested fields, filter tree, order list, wildcard aliases and an
// optional row limit. All With* methods return a modified copy.
type PushdownQuery struct {
	fields    []string
	filter    Predicate
	order     []OrderBy
	wildcards []string
	limit     int
	hasLimit  bool
}

// New returns an unrestricted descriptor
func New() PushdownQuery {
	return PushdownQuery{filter: True}
}

// All is the unrestricted descriptor
var All = New()

// Fields returns the explicitly requested fields. Empty means every field.
func (q PushdownQuery) Fields() []string { return slices.Clone(q.fields) }

// Filter returns the filter tree, never nil
func (q PushdownQuery) Filter() Predicate {
	if q.filter == nil {
		return True
	}
	return q.filter
}

// OrderBy returns the order list
func (q PushdownQuery) OrderBy() []OrderBy { return slices.Clone(q.order) }

// Wildcards returns the aliases whose fields are all requested
func (q PushdownQuery) Wildcards() []string { return slices.Clone(q.wildcards) }

// Limit returns the row limit, if any
func (q PushdownQuery) Limit() (int, bool) { return q.limit, q.hasLimit }

func (q PushdownQuery) WithFields(fields ...string) PushdownQuery {
	q.fields = slices.Clone(fields)
	return q
}

func (q PushdownQuery) WithFilter(p Predicate) PushdownQuery {
	if p == nil {
		p = True
	}
	q.filter = p
	return q
}

// AndFilter narrows the filter with additional conjuncts
func (q PushdownQuery) AndFilter(terms ...Predicate) PushdownQuery {
	q.filter = AndOf(append([]Predicate{q.Filter()}, terms...)...)
	return q
}

func (q PushdownQuery) WithOrder(order ...OrderBy) PushdownQuery {
	q.order = slices.Clone(order)
	return q
}

func (q PushdownQuery) WithWildcards(aliases ...string) PushdownQuery {
	q.wildcards = slices.Clone(aliases)
	return q
}

func (q PushdownQuery) WithLimit(n int) PushdownQuery {
	q.limit, q.hasLimit = n, true
	return q
}

func (q PushdownQuery) WithoutLimit() PushdownQuery {
	q.limit, q.hasLimit = 0, false
	return q
}

// WithExtraFields adds fields to an explicit field list. A descriptor that
// requests every field is returned unchanged.
func (q PushdownQuery) WithExtraFields(fields ...string) PushdownQuery {
	if len(q.fields) == 0 {
		return q
	}
	out := slices.Clone(q.fields)
	for _, f := range fields {
		if !slices.Contains(out, f) {
			out = append(out, f)
		}
	}
	q.fields = out
	return q
}

// Restrict produces the descriptor a child source covering only the given
// aliases should receive:
//   - fields of other aliases are dropped; no remaining field means all fields
//   - filter conjuncts that mention other aliases are dropped
//   - the order list keeps its longest prefix over the given aliases
//   - the row limit is dropped, since the parent may still discard rows
func (q PushdownQuery) Restrict(aliases []string) PushdownQuery {
	set := AliasSet(aliases)
	out := PushdownQuery{filter: True}

	for _, f := range q.fields {
		if set[AliasOf(f)] {
			out.fields = append(out.fields, f)
		}
	}
	for _, w := range q.wildcards {
		if set[w] {
			out.wildcards = append(out.wildcards, w)
		}
	}

	inside, _ := Split(q.Filter(), aliases)
	out.filter = inside

	for _, o := range q.order {
		if !onlyAliases(o.Expr.Fields(), set) {
			break
		}
		out.order = append(out.order, o)
	}
	return out
}

// Project keeps the requested fields and the fields of wildcard aliases.
// A descriptor without fields or wildcards keeps the row unchanged.
func (q PushdownQuery) Project(b *rowflow.RowBuilder, row *rowflow.Row) *rowflow.Row {
	if row == nil || (len(q.fields) == 0 && len(q.wildcards) == 0) {
		return row
	}
	wild := AliasSet(q.wildcards)
	var names []string
	var values []rowflow.Value
	for _, f := range q.fields {
		names = append(names, f)
		values = append(values, row.Value(f))
	}
	for i, f := range row.Fields() {
		if wild[AliasOf(f)] && !slices.Contains(q.fields, f) {
			names = append(names, f)
			values = append(values, row.At(i))
		}
	}
	return b.NewRowValues(row.ID(), names, values)
}

func (q PushdownQuery) String() string {
	var sb strings.Builder
	sb.WriteString("select ")
	var sel []string
	sel = append(sel, q.fields...)
	for _, w := range q.wildcards {
		sel = append(sel, w+".*")
	}
	if len(sel) == 0 {
		sel = []string{"*"}
	}
	sb.WriteString(strings.Join(sel, ", "))
	if !IsTrue(q.filter) {
		sb.WriteString(" where ")
		sb.WriteString(q.filter.String())
	}
	if len(q.order) > 0 {
		parts := make([]string, len(q.order))
		for i, o := range q.order {
			parts[i] = o.String()
		}
		sb.WriteString(" order by ")
		sb.WriteString(strings.Join(parts, ", "))
	}
	if q.hasLimit {
		sb.WriteString(" limit ")
		sb.WriteString(strconv.Itoa(q.limit))
	}
	return sb.String()
}
