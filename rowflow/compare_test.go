package rowflow

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompareTotalOrder(t *testing.T) {
	ordered := []Value{
		Null(),
		Bool(false),
		Bool(true),
		Int(-3),
		Float(-2.5),
		Int(0),
		Float(0.5),
		Int(7),
		String("a"),
		String("b"),
		Time(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)),
		Bytes([]byte{0x01}),
	}
	for i := range ordered {
		for j := range ordered {
			got := Compare(ordered[i], ordered[j])
			switch {
			case i < j:
				assert.Equal(t, -1, got, "%s vs %s", ordered[i], ordered[j])
			case i > j:
				assert.Equal(t, 1, got, "%s vs %s", ordered[i], ordered[j])
			default:
				assert.Equal(t, 0, got)
			}
		}
	}
}

func TestEvaluate(t *testing.T) {
	tests := []struct {
		name  string
		op    CompareOp
		left  Value
		right Value
		want  bool
	}{
		{"int eq", OpEQ, Int(2), Int(2), true},
		{"int float eq", OpEQ, Int(2), Float(2.0), true},
		{"int lt", OpLT, Int(1), Int(2), true},
		{"string gte", OpGTE, String("b"), String("a"), true},
		{"null eq null", OpEQ, Null(), Null(), true},
		{"null ne null", OpNE, Null(), Null(), false},
		{"null eq int", OpEQ, Null(), Int(1), false},
		{"null ne int", OpNE, Null(), Int(1), true},
		{"null never orders", OpLTE, Null(), Int(1), false},
		{"null never orders against null", OpGTE, Null(), Null(), false},
		{"string vs int eq is structural", OpEQ, String("2"), Int(2), false},
		{"string vs int ne is structural", OpNE, String("2"), Int(2), true},
		{"string coerced for ordering", OpLT, String("2"), Int(10), true},
		{"string coerced on the right", OpGT, Int(10), String("9"), true},
		{"float string against int", OpGT, String("2.5"), Int(2), true},
		{"float string keeps its fraction", OpLTE, String("2.5"), Int(2), false},
		{"float string is not equal after coercion", OpGTE, Int(2), String("2.5"), false},
		{"zero fraction string", OpLTE, String("2.0"), Int(2), true},
		{"uncoercible string is false", OpLT, String("abc"), Int(10), false},
		{"uncoercible string is false reversed", OpGTE, String("abc"), Int(10), false},
		{"bool vs int is false", OpLT, Bool(true), Int(10), false},
		{"time coerced", OpLT, String("2024-01-01T00:00:00Z"), Time(time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Evaluate(tt.op, tt.left, tt.right))
		})
	}
}

func TestCoerceStringToInt(t *testing.T) {
	tests := []struct {
		in   string
		want Value
	}{
		{"7", Int(7)},
		{"-3", Int(-3)},
		{"2.5", Float(2.5)},
		{"-0.25", Float(-0.25)},
		{"1e3", Float(1000)},
	}
	for _, tt := range tests {
		got, ok := Coerce(String(tt.in), KindInt)
		require.True(t, ok, tt.in)
		assert.Equal(t, tt.want.Kind(), got.Kind(), tt.in)
		assert.Equal(t, 0, Compare(tt.want, got), tt.in)
	}
	_, ok := Coerce(String("seven"), KindInt)
	assert.False(t, ok)
}

func TestEvaluateFlipSymmetry(t *testing.T) {
	values := []Value{Int(1), Int(5), Float(2.5), String("3"), String("x"), Null(), Bool(true)}
	ops := []CompareOp{OpEQ, OpNE, OpLT, OpLTE, OpGT, OpGTE}
	for _, a := range values {
		for _, b := range values {
			for _, op := range ops {
				assert.Equal(t, Evaluate(op, a, b), Evaluate(op.Flip(), b, a), "%s %s %s", a, op, b)
			}
		}
	}
}

func TestParseOp(t *testing.T) {
	for _, s := range []string{"=", "==", "!=", "<>", "<", "<=", ">", ">="} {
		op, err := ParseOp(s)
		assert.NoError(t, err)
		assert.True(t, op.Valid())
	}
	_, err := ParseOp("=~")
	assert.ErrorIs(t, err, ErrInvalidOperator)
}

func TestValueOf(t *testing.T) {
	assert.Equal(t, KindInt, ValueOf(3).Kind())
	assert.Equal(t, KindInt, ValueOf(int32(3)).Kind())
	assert.Equal(t, KindFloat, ValueOf(float32(1.5)).Kind())
	assert.Equal(t, KindString, ValueOf("x").Kind())
	assert.Equal(t, KindNull, ValueOf(nil).Kind())
	assert.Equal(t, KindBytes, ValueOf([]byte("ab")).Kind())
	assert.True(t, ValueOf(Int(4)).Equal(Int(4)))
}
