package rowflow

import (
	"errors"
	"fmt"
)

// ErrInvalidOperator is returned when a comparison operator is not one of = != < <= > >=
var ErrInvalidOperator = errors.New("invalid comparison operator")

// CompareOp represents comparison operators
type CompareOp string

const (
	OpEQ  CompareOp = "="
	OpNE  CompareOp = "!="
	OpLT  CompareOp = "<"
	OpLTE CompareOp = "<="
	OpGT  CompareOp = ">"
	OpGTE CompareOp = ">="
)

// ParseOp validates an operator string. "==" and "<>" are accepted as aliases.
func ParseOp(s string) (CompareOp, error) {
	switch s {
	case "=", "==":
		return OpEQ, nil
	case "!=", "<>":
		return OpNE, nil
	case "<":
		return OpLT, nil
	case "<=":
		return OpLTE, nil
	case ">":
		return OpGT, nil
	case ">=":
		return OpGTE, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidOperator, s)
}

// Valid reports whether op is one of the six supported operators
func (op CompareOp) Valid() bool {
	switch op {
	case OpEQ, OpNE, OpLT, OpLTE, OpGT, OpGTE:
		return true
	}
	return false
}

// Flip returns the operator that holds when the operands are swapped,
// so that (a op b) == (b op.Flip() a).
func (op CompareOp) Flip() CompareOp {
	switch op {
	case OpLT:
		return OpGT
	case OpLTE:
		return OpGTE
	case OpGT:
		return OpLT
	case OpGTE:
		return OpLTE
	}
	return op
}

// Relational reports whether op is an ordering comparison
func (op CompareOp) Relational() bool {
	switch op {
	case OpLT, OpLTE, OpGT, OpGTE:
		return true
	}
	return false
}

// Holds interprets a three-way comparison result under op
func (op CompareOp) Holds(cmp int) bool {
	switch op {
	case OpEQ:
		return cmp == 0
	case OpNE:
		return cmp != 0
	case OpLT:
		return cmp < 0
	case OpLTE:
		return cmp <= 0
	case OpGT:
		return cmp > 0
	case OpGTE:
		return cmp >= 0
	}
	return false
}
