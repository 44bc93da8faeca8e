package sqlsrc

import (
	"strings"

	"github.com/wbrown/janus-rowflow/rowflow"
	"github.com/wbrown/janus-rowflow/rowflow/query"
)

// where renders a filter as a WHERE clause that accepts at least every row
// the filter accepts. Stored values whose type class differs from a
// constant's are let through, since comparisons coerce strings and ranges
// pass other kinds. Parts with no SQL form become TRUE. The source always
// applies the full filter to what the database returns.
type where struct {
	alias string
	args  []any
}

func (w *where) render(p query.Predicate) string {
	switch p := p.(type) {
	case query.Bool:
		if p {
			return "1"
		}
		return "0"
	case query.And:
		return w.join(p.Terms, " AND ")
	case query.Or:
		return w.join(p.Terms, " OR ")
	case query.Not:
		return w.not(p.Term)
	case query.Comparison:
		return w.comparison(p)
	case query.Range:
		return w.rangeOf(p)
	}
	return "1"
}

func (w *where) join(terms []query.Predicate, sep string) string {
	parts := make([]string, len(terms))
	for i, t := range terms {
		parts[i] = w.render(t)
	}
	return "(" + strings.Join(parts, sep) + ")"
}

// column resolves a field of this source to a quoted column name
func (w *where) column(e query.ValueExpr) (string, bool) {
	f, ok := e.(query.Field)
	if !ok || f.Alias() != w.alias {
		return "", false
	}
	return quote(strings.TrimPrefix(f.Name, w.alias+".")), true
}

// bind adds a constant as a query argument. Only numbers and strings are
// bound; other kinds are stored in driver-specific forms.
func (w *where) bind(v rowflow.Value) (string, []string, bool) {
	switch v.Kind() {
	case rowflow.KindInt, rowflow.KindFloat:
		w.args = append(w.args, v.Any())
		return "?", []string{"'integer'", "'real'"}, true
	case rowflow.KindString:
		w.args = append(w.args, v.Any())
		return "?", []string{"'text'"}, true
	}
	return "", nil, false
}

// operand orients col OP const
func (w *where) operand(c query.Comparison) (string, rowflow.CompareOp, rowflow.Value, bool) {
	if col, ok := w.column(c.Left); ok {
		if k, ok := c.Right.(query.Const); ok {
			return col, c.Op, k.Value, true
		}
	}
	if col, ok := w.column(c.Right); ok {
		if k, ok := c.Left.(query.Const); ok {
			return col, c.Op.Flip(), k.Value, true
		}
	}
	return "", "", rowflow.Value{}, false
}

func (w *where) comparison(c query.Comparison) string {
	col, op, v, ok := w.operand(c)
	if !ok {
		return "1"
	}
	return w.test(col, op, v)
}

// test renders col OP v
func (w *where) test(col string, op rowflow.CompareOp, v rowflow.Value) string {
	if v.IsNull() {
		// null equals only null and orders against nothing
		switch op {
		case rowflow.OpEQ:
			return col + " IS NULL"
		case rowflow.OpNE:
			return col + " IS NOT NULL"
		}
		return "0"
	}
	arg, types, ok := w.bind(v)
	switch {
	case !ok && op == rowflow.OpNE:
		return "1"
	case !ok:
		return col + " IS NOT NULL"
	case op == rowflow.OpEQ:
		return col + " = " + arg
	case op == rowflow.OpNE:
		return notEqual(col, arg, types)
	}
	return "(" + col + " IS NOT NULL AND (typeof(" + col + ") NOT IN (" + strings.Join(types, ", ") + ") OR " +
		col + " " + string(op) + " " + arg + "))"
}

// notEqual holds for nulls and for stored values of another type class,
// which are never structurally equal to the constant
func notEqual(col, arg string, types []string) string {
	return "(" + col + " IS NULL OR typeof(" + col + ") NOT IN (" + strings.Join(types, ", ") + ") OR " +
		col + " <> " + arg + ")"
}

func (w *where) rangeOf(r query.Range) string {
	col, ok := w.column(r.Key)
	if !ok {
		return "1"
	}
	var bounds []string
	var types []string
	for _, b := range []struct {
		has, inclusive bool
		v              rowflow.Value
		op             string
	}{{r.HasMin, r.MinInclusive, r.Min, ">"}, {r.HasMax, r.MaxInclusive, r.Max, "<"}} {
		if !b.has {
			continue
		}
		arg, ts, ok := w.bind(b.v)
		if !ok {
			bounds = nil
			break
		}
		op := b.op
		if b.inclusive {
			op += "="
		}
		bounds = append(bounds, col+" "+op+" "+arg)
		types = ts
	}
	if len(bounds) == 0 {
		return col + " IS NOT NULL"
	}
	return "(" + col + " IS NOT NULL AND (typeof(" + col + ") NOT IN (" + strings.Join(types, ", ") + ") OR (" +
		strings.Join(bounds, " AND ") + ")))"
}

// not pushes a negation down to equality tests, whose complement is
// another equality test
func (w *where) not(p query.Predicate) string {
	switch p := p.(type) {
	case query.Bool:
		return w.render(!p)
	case query.Not:
		return w.render(p.Term)
	case query.And:
		negated := make([]query.Predicate, len(p.Terms))
		for i, t := range p.Terms {
			negated[i] = query.Not{Term: t}
		}
		return w.render(query.Or{Terms: negated})
	case query.Or:
		negated := make([]query.Predicate, len(p.Terms))
		for i, t := range p.Terms {
			negated[i] = query.Not{Term: t}
		}
		return w.render(query.And{Terms: negated})
	case query.Comparison:
		col, op, v, ok := w.operand(p)
		if !ok || (op != rowflow.OpEQ && op != rowflow.OpNE) {
			break
		}
		if op == rowflow.OpEQ {
			return w.test(col, rowflow.OpNE, v)
		}
		return w.test(col, rowflow.OpEQ, v)
	}
	return "1"
}

func quote(ident string) string {
	return `"` + strings.ReplaceAll(ident, `"`, `""`) + `"`
}
