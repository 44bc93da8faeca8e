package codec

import (
	"bytes"
	"math"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wbrown/janus-rowflow/rowflow"
)

func sampleValues() []rowflow.Value {
	return []rowflow.Value{
		rowflow.Null(),
		rowflow.Bool(false),
		rowflow.Bool(true),
		rowflow.Int(math.MinInt64 / 2),
		rowflow.Float(-2.5),
		rowflow.Int(-1),
		rowflow.Int(0),
		rowflow.Float(0.5),
		rowflow.Int(1),
		rowflow.Int(1 << 40),
		rowflow.Float(math.Inf(1)),
		rowflow.String(""),
		rowflow.String("a"),
		rowflow.String("a\x00"),
		rowflow.String("a\x00b"),
		rowflow.String("ab"),
		rowflow.String("b"),
		rowflow.Time(time.Date(1999, 12, 31, 0, 0, 0, 0, time.UTC)),
		rowflow.Time(time.Date(2024, 1, 2, 3, 4, 5, 6, time.UTC)),
		rowflow.Bytes([]byte{0}),
		rowflow.Bytes([]byte{0, 1}),
		rowflow.Bytes([]byte{1}),
	}
}

func TestValueRoundTrip(t *testing.T) {
	var buf []byte
	values := sampleValues()
	for _, v := range values {
		buf = AppendValue(buf, v)
	}
	for _, want := range values {
		got, n, err := ReadValue(buf)
		require.NoError(t, err)
		assert.True(t, want.Equal(got), "want %s got %s", want, got)
		buf = buf[n:]
	}
	assert.Empty(t, buf)
}

func TestReadValueCorrupt(t *testing.T) {
	for _, data := range [][]byte{
		nil,
		{byte(rowflow.KindInt), 1, 2},
		{byte(rowflow.KindString), 5, 'a'},
		{byte(rowflow.KindBool)},
		{0x7F},
	} {
		_, _, err := ReadValue(data)
		assert.ErrorIs(t, err, ErrCorrupt)
	}
}

func TestRowRoundTrip(t *testing.T) {
	b := rowflow.NewRowBuilder()
	row := b.NewRow(rowflow.RowIDFromKey("orders/1"), map[string]any{
		"o.id":    1,
		"o.total": 12.5,
		"o.note":  "rush",
		"o.at":    time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
		"o.gone":  nil,
	})

	stored := EncodeRow(row)
	got, err := DecodeStoredRow(rowflow.NewRowBuilder(), stored)
	require.NoError(t, err)
	assert.Equal(t, row.ID(), got.ID())
	assert.Equal(t, row.Fields(), got.Fields())
	assert.True(t, row.Equal(got))

	raw := AppendRow(nil, row)
	_, err = DecodeRow(b, raw[:len(raw)-1])
	assert.Error(t, err)
	_, err = DecodeRow(b, append(raw, 0))
	assert.ErrorIs(t, err, ErrCorrupt)
	_, err = DecodeStoredRow(b, []byte("not snappy"))
	assert.ErrorIs(t, err, ErrCorrupt)
}

func TestKeyOrderMatchesCompare(t *testing.T) {
	values := sampleValues()
	keys := make([][]byte, len(values))
	for i, v := range values {
		keys[i] = AppendKey(nil, v)
	}
	for i := range values {
		for j := range values {
			want := rowflow.Compare(values[i], values[j])
			got := bytes.Compare(keys[i], keys[j])
			assert.Equal(t, sign(want), sign(got), "%s vs %s", values[i], values[j])
		}
	}

	// the shuffled keys sort back into value order
	shuffled := [][]byte{keys[5], keys[0], keys[20], keys[12], keys[3], keys[17]}
	sort.Slice(shuffled, func(a, b int) bool { return bytes.Compare(shuffled[a], shuffled[b]) < 0 })
	assert.Equal(t, [][]byte{keys[0], keys[3], keys[5], keys[12], keys[17], keys[20]}, shuffled)
}

func TestKeyIsSelfDelimiting(t *testing.T) {
	// "a" followed by a suffix must still sort before "ab"
	a := append(AppendKey(nil, rowflow.String("a")), 0xFF, 0xFF)
	ab := AppendKey(nil, rowflow.String("ab"))
	assert.Negative(t, bytes.Compare(a, ab))
}

func TestKindBounds(t *testing.T) {
	for _, v := range sampleValues() {
		k := AppendKey(nil, v)
		assert.True(t, bytes.Compare(KindStart(v.Kind()), k) <= 0)
		assert.Negative(t, bytes.Compare(k, KindEnd(v.Kind())))
	}
}

func TestPrefixEnd(t *testing.T) {
	assert.Equal(t, []byte{1, 3}, PrefixEnd([]byte{1, 2}))
	assert.Equal(t, []byte{2}, PrefixEnd([]byte{1, 0xFF}))
	assert.Nil(t, PrefixEnd([]byte{0xFF, 0xFF}))
}

func sign(c int) int {
	switch {
	case c < 0:
		return -1
	case c > 0:
		return 1
	}
	return 0
}
