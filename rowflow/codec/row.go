package codec

import (
	"encoding/binary"
	"fmt"

	"github.com/golang/snappy"
	"github.com/google/uuid"

	"github.com/wbrown/janus-rowflow/rowflow"
)

// AppendRow appends a row as: 16 byte id, uvarint field count, then per
// field a uvarint-prefixed name and the tagged value
func AppendRow(buf []byte, row *rowflow.Row) []byte {
	id := row.ID()
	buf = append(buf, id[:]...)
	buf = binary.AppendUvarint(buf, uint64(row.Len()))
	for i, name := range row.Fields() {
		buf = binary.AppendUvarint(buf, uint64(len(name)))
		buf = append(buf, name...)
		buf = AppendValue(buf, row.At(i))
	}
	return buf
}

// DecodeRow rebuilds a row through the builder, keeping the stored field
// order
func DecodeRow(b *rowflow.RowBuilder, data []byte) (*rowflow.Row, error) {
	if len(data) < 16 {
		return nil, fmt.Errorf("%w: row shorter than its id", ErrCorrupt)
	}
	id, err := uuid.FromBytes(data[:16])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	data = data[16:]

	count, n := binary.Uvarint(data)
	if n <= 0 || count > uint64(len(data)) {
		return nil, fmt.Errorf("%w: bad field count", ErrCorrupt)
	}
	data = data[n:]

	names := make([]string, count)
	values := make([]rowflow.Value, count)
	for i := range names {
		l, n := binary.Uvarint(data)
		if n <= 0 || uint64(len(data)-n) < l {
			return nil, fmt.Errorf("%w: bad field name", ErrCorrupt)
		}
		names[i] = string(data[n : n+int(l)])
		data = data[n+int(l):]

		v, used, err := ReadValue(data)
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", names[i], err)
		}
		values[i] = v
		data = data[used:]
	}
	if len(data) != 0 {
		return nil, fmt.Errorf("%w: %d trailing bytes", ErrCorrupt, len(data))
	}
	return b.NewRowValues(id, names, values), nil
}

// EncodeRow encodes and snappy-compresses a row for storage
func EncodeRow(row *rowflow.Row) []byte {
	return snappy.Encode(nil, AppendRow(nil, row))
}

// DecodeStoredRow reverses EncodeRow
func DecodeStoredRow(b *rowflow.RowBuilder, data []byte) (*rowflow.Row, error) {
	raw, err := snappy.Decode(nil, data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	return DecodeRow(b, raw)
}
