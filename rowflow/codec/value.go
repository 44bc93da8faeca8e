// Package codec encodes rows and values for the badger-backed table store
// and spill files. Encoding is driven by the value tag; no reflection is
// involved.
package codec

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/wbrown/janus-rowflow/rowflow"
)

// ErrCorrupt is returned for truncated or malformed input
var ErrCorrupt = errors.New("codec: corrupt data")

// AppendValue appends the tagged encoding of v: one kind byte followed by a
// fixed 8 byte payload for numbers and times, one byte for bools, and a
// uvarint length prefix for strings and bytes.
func AppendValue(buf []byte, v rowflow.Value) []byte {
	buf = append(buf, byte(v.Kind()))
	switch v.Kind() {
	case rowflow.KindBool:
		b, _ := v.AsBool()
		if b {
			return append(buf, 1)
		}
		return append(buf, 0)
	case rowflow.KindInt:
		i, _ := v.AsInt()
		return binary.BigEndian.AppendUint64(buf, uint64(i))
	case rowflow.KindFloat:
		f, _ := v.AsFloat()
		return binary.BigEndian.AppendUint64(buf, math.Float64bits(f))
	case rowflow.KindTime:
		t, _ := v.AsTime()
		return binary.BigEndian.AppendUint64(buf, uint64(t.UnixNano()))
	case rowflow.KindString:
		s, _ := v.AsString()
		buf = binary.AppendUvarint(buf, uint64(len(s)))
		return append(buf, s...)
	case rowflow.KindBytes:
		b, _ := v.AsBytes()
		buf = binary.AppendUvarint(buf, uint64(len(b)))
		return append(buf, b...)
	}
	return buf
}

// ReadValue decodes one value and returns the number of bytes consumed
func ReadValue(data []byte) (rowflow.Value, int, error) {
	if len(data) < 1 {
		return rowflow.Null(), 0, ErrCorrupt
	}
	kind := rowflow.Kind(data[0])
	body := data[1:]
	switch kind {
	case rowflow.KindNull:
		return rowflow.Null(), 1, nil
	case rowflow.KindBool:
		if len(body) < 1 {
			return rowflow.Null(), 0, ErrCorrupt
		}
		return rowflow.Bool(body[0] != 0), 2, nil
	case rowflow.KindInt, rowflow.KindFloat, rowflow.KindTime:
		if len(body) < 8 {
			return rowflow.Null(), 0, fmt.Errorf("%w: %s value needs 8 bytes, got %d", ErrCorrupt, kind, len(body))
		}
		bits := binary.BigEndian.Uint64(body)
		switch kind {
		case rowflow.KindInt:
			return rowflow.Int(int64(bits)), 9, nil
		case rowflow.KindFloat:
			return rowflow.Float(math.Float64frombits(bits)), 9, nil
		}
		return rowflow.Time(time.Unix(0, int64(bits)).UTC()), 9, nil
	case rowflow.KindString, rowflow.KindBytes:
		n, size := binary.Uvarint(body)
		if size <= 0 || uint64(len(body)-size) < n {
			return rowflow.Null(), 0, fmt.Errorf("%w: bad %s length", ErrCorrupt, kind)
		}
		payload := body[size : size+int(n)]
		used := 1 + size + int(n)
		if kind == rowflow.KindString {
			return rowflow.String(string(payload)), used, nil
		}
		return rowflow.Bytes(payload), used, nil
	}
	return rowflow.Null(), 0, fmt.Errorf("%w: unknown kind %d", ErrCorrupt, kind)
}
