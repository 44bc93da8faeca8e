package query

import (
	"fmt"
	"strings"

	"github.com/wbrown/janus-rowflow/rowflow"
)

// Predicate represents a boolean condition evaluated against rows
type Predicate interface {
	// Match evaluates the predicate. Comparisons that cannot be decided
	// (ordering a null, incompatible kinds) are false, never an error.
	Match(row *rowflow.Row) bool

	// Fields returns all fields needed to evaluate this predicate
	Fields() []string

	String() string
}

// Bool is a constant predicate
type Bool bool

const (
	True  Bool = true
	False Bool = false
)

func (b Bool) Match(*rowflow.Row) bool { return bool(b) }
func (b Bool) Fields() []string        { return nil }

func (b Bool) String() string {
	if b {
		return "true"
	}
	return "false"
}

// Comparison implements comparison predicates such as l.k = r.k or x.age >= 21
type Comparison struct {
	Op    rowflow.CompareOp
	Left  ValueExpr
	Right ValueExpr
}

// Cmp builds a comparison, validating the operator string
func Cmp(left ValueExpr, op string, right ValueExpr) (Comparison, error) {
	parsed, err := rowflow.ParseOp(op)
	if err != nil {
		return Comparison{}, err
	}
	return Comparison{Op: parsed, Left: left, Right: right}, nil
}

// Eq is shorthand for an equality comparison
func Eq(left, right ValueExpr) Comparison {
	return Comparison{Op: rowflow.OpEQ, Left: left, Right: right}
}

func (c Comparison) Match(row *rowflow.Row) bool {
	return rowflow.Evaluate(c.Op, c.Left.Eval(row), c.Right.Eval(row))
}

func (c Comparison) Fields() []string {
	fields := c.Left.Fields()
	return append(fields[:len(fields):len(fields)], c.Right.Fields()...)
}

func (c Comparison) String() string {
	return fmt.Sprintf("%s %s %s", c.Left, c.Op, c.Right)
}

// Flipped returns the same comparison with operands swapped
func (c Comparison) Flipped() Comparison {
	return Comparison{Op: c.Op.Flip(), Left: c.Right, Right: c.Left}
}

// And is a conjunction
type And struct {
	Terms []Predicate
}

func (a And) Match(row *rowflow.Row) bool {
	for _, t := range a.Terms {
		if !t.Match(row) {
			return false
		}
	}
	return true
}

func (a And) Fields() []string { return collectFields(a.Terms) }

func (a And) String() string { return joinTerms(a.Terms, " and ") }

// Or is a disjunction
type Or struct {
	Terms []Predicate
}

func (o Or) Match(row *rowflow.Row) bool {
	for _, t := range o.Terms {
		if t.Match(row) {
			return true
		}
	}
	return false
}

func (o Or) Fields() []string { return collectFields(o.Terms) }

func (o Or) String() string { return joinTerms(o.Terms, " or ") }

// Not negates a predicate
type Not struct {
	Term Predicate
}

func (n Not) Match(row *rowflow.Row) bool { return !n.Term.Match(row) }
func (n Not) Fields() []string            { return n.Term.Fields() }
func (n Not) String() string              { return "not (" + n.Term.String() + ")" }

// Func adapts a Go function into a predicate. Fields lists what it reads so
// descriptor restriction can route it.
type Func struct {
	Name   string
	Reads  []string
	Filter func(*rowflow.Row) bool
}

func (f Func) Match(row *rowflow.Row) bool { return f.Filter(row) }
func (f Func) Fields() []string            { return f.Reads }
func (f Func) String() string              { return f.Name + "(" + strings.Join(f.Reads, ", ") + ")" }

func collectFields(terms []Predicate) []string {
	var fields []string
	seen := make(map[string]bool)
	for _, t := range terms {
		for _, f := range t.Fields() {
			if !seen[f] {
				seen[f] = true
				fields = append(fields, f)
			}
		}
	}
	return fields
}

func joinTerms(terms []Predicate, sep string) string {
	parts := make([]string, len(terms))
	for i, t := range terms {
		switch t.(type) {
		case And, Or:
			parts[i] = "(" + t.String() + ")"
		default:
			parts[i] = t.String()
		}
	}
	return strings.Join(parts, sep)
}

// Conjuncts flattens nested And nodes. A nil predicate has no conjuncts.
func Conjuncts(p Predicate) []Predicate {
	switch v := p.(type) {
	case nil:
		return nil
	case And:
		var out []Predicate
		for _, t := range v.Terms {
			out = append(out, Conjuncts(t)...)
		}
		return out
	case Bool:
		if v {
			return nil
		}
	}
	return []Predicate{p}
}

// Disjuncts flattens nested Or nodes
func Disjuncts(p Predicate) []Predicate {
	switch v := p.(type) {
	case nil:
		return []Predicate{True}
	case Or:
		var out []Predicate
		for _, t := range v.Terms {
			out = append(out, Disjuncts(t)...)
		}
		return out
	}
	return []Predicate{p}
}

// AndOf builds a simplified conjunction: true terms vanish, any false term
// makes the whole conjunction false, a single term is returned as-is.
func AndOf(terms ...Predicate) Predicate {
	var kept []Predicate
	for _, t := range terms {
		for _, c := range Conjuncts(t) {
			if b, ok := c.(Bool); ok {
				if !b {
					return False
				}
				continue
			}
			kept = append(kept, c)
		}
	}
	switch len(kept) {
	case 0:
		return True
	case 1:
		return kept[0]
	}
	return And{Terms: kept}
}

// OrOf builds a simplified disjunction: false terms vanish, any true term
// makes the whole disjunction true, a single term is returned as-is.
func OrOf(terms ...Predicate) Predicate {
	var kept []Predicate
	for _, t := range terms {
		if t == nil {
			return True
		}
		for _, d := range Disjuncts(t) {
			if b, ok := d.(Bool); ok {
				if b {
					return True
				}
				continue
			}
			kept = append(kept, d)
		}
	}
	switch len(kept) {
	case 0:
		return False
	case 1:
		return kept[0]
	}
	return Or{Terms: kept}
}

// Split partitions the conjuncts of p into those that only reference the
// given aliases and the rest
func Split(p Predicate, aliases []string) (inside, rest Predicate) {
	set := AliasSet(aliases)
	var in, out []Predicate
	for _, c := range Conjuncts(p) {
		if onlyAliases(c.Fields(), set) {
			in = append(in, c)
		} else {
			out = append(out, c)
		}
	}
	return AndOf(in...), AndOf(out...)
}

// IsTrue reports whether p is nil or the constant true
func IsTrue(p Predicate) bool {
	if p == nil {
		return true
	}
	b, ok := p.(Bool)
	return ok && bool(b)
}

// IsFalse reports whether p is the constant false
func IsFalse(p Predicate) bool {
	b, ok := p.(Bool)
	return ok && !bool(b)
}
