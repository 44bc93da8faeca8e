package query

import (
	"fmt"
	"strings"

	"github.com/wbrown/janus-rowflow/rowflow"
)

// ValueExpr produces a value from a row
type ValueExpr interface {
	// Eval returns the value of this expression for the row. Absent rows and
	// missing fields evaluate to Null.
	Eval(row *rowflow.Row) rowflow.Value

	// Fields returns every qualified field name the expression reads
	Fields() []string

	String() string
}

// Field references a source-alias-qualified field such as "orders.customer_id"
type Field struct {
	Name string
}

// F is shorthand for Field{Name: name}
func F(name string) Field { return Field{Name: name} }

func (f Field) Eval(row *rowflow.Row) rowflow.Value { return row.Value(f.Name) }
func (f Field) Fields() []string                    { return []string{f.Name} }
func (f Field) String() string                      { return f.Name }

// Alias returns the source alias part of the name
func (f Field) Alias() string { return AliasOf(f.Name) }

// Const is a literal value
type Const struct {
	Value rowflow.Value
}

// C wraps a Go value as a constant expression
func C(v any) Const { return Const{Value: rowflow.ValueOf(v)} }

func (c Const) Eval(*rowflow.Row) rowflow.Value { return c.Value }
func (c Const) Fields() []string                { return nil }

func (c Const) String() string {
	if s, ok := c.Value.AsString(); ok {
		return fmt.Sprintf("%q", s)
	}
	return c.Value.String()
}

// AliasOf returns the alias prefix of a qualified field name, "" when unqualified
func AliasOf(name string) string {
	if i := strings.IndexByte(name, '.'); i >= 0 {
		return name[:i]
	}
	return ""
}

// AliasesOf collects the distinct aliases of the given field names in order
func AliasesOf(fields []string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, f := range fields {
		a := AliasOf(f)
		if !seen[a] {
			seen[a] = true
			out = append(out, a)
		}
	}
	return out
}

// onlyAliases reports whether every field belongs to one of the aliases
func onlyAliases(fields []string, aliases map[string]bool) bool {
	for _, f := range fields {
		if !aliases[AliasOf(f)] {
			return false
		}
	}
	return true
}

// AliasSet builds a lookup set from alias names
func AliasSet(aliases []string) map[string]bool {
	set := make(map[string]bool, len(aliases))
	for _, a := range aliases {
		set[a] = true
	}
	return set
}

// References reports whether fields only mention the given aliases
func References(fields []string, aliases []string) bool {
	return onlyAliases(fields, AliasSet(aliases))
}
