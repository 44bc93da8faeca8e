package codec

import (
	"encoding/binary"
	"math"

	"github.com/wbrown/janus-rowflow/rowflow"
)

// Key class bytes. Their order is the order of rowflow.Compare, with both
// numeric kinds sharing one class.
const (
	keyNull byte = iota + 1
	keyBool
	keyNumber
	keyString
	keyTime
	keyBytes
)

// AppendKey appends an order-preserving encoding of v: bytes.Compare on two
// encodings agrees with rowflow.Compare on the values, except that integers
// beyond 2^53 may tie with their nearest float. Strings and byte slices are
// escaped and terminated so the encoding can be followed by more key parts.
func AppendKey(buf []byte, v rowflow.Value) []byte {
	switch v.Kind() {
	case rowflow.KindNull:
		return append(buf, keyNull)
	case rowflow.KindBool:
		b, _ := v.AsBool()
		if b {
			return append(buf, keyBool, 1)
		}
		return append(buf, keyBool, 0)
	case rowflow.KindInt, rowflow.KindFloat:
		f, _ := v.Number()
		return binary.BigEndian.AppendUint64(append(buf, keyNumber), sortableFloat(f))
	case rowflow.KindString:
		s, _ := v.AsString()
		return appendEscaped(append(buf, keyString), []byte(s))
	case rowflow.KindTime:
		t, _ := v.AsTime()
		return binary.BigEndian.AppendUint64(append(buf, keyTime), uint64(t.UnixNano())^(1<<63))
	case rowflow.KindBytes:
		b, _ := v.AsBytes()
		return appendEscaped(append(buf, keyBytes), b)
	}
	return buf
}

// KindStart and KindEnd bound the keys of every value in v's kind class
func KindStart(k rowflow.Kind) []byte { return []byte{classOf(k)} }
func KindEnd(k rowflow.Kind) []byte   { return []byte{classOf(k) + 1} }

func classOf(k rowflow.Kind) byte {
	switch k {
	case rowflow.KindBool:
		return keyBool
	case rowflow.KindInt, rowflow.KindFloat:
		return keyNumber
	case rowflow.KindString:
		return keyString
	case rowflow.KindTime:
		return keyTime
	case rowflow.KindBytes:
		return keyBytes
	}
	return keyNull
}

// sortableFloat flips the bits of a float so unsigned order matches numeric
// order
func sortableFloat(f float64) uint64 {
	if f == 0 {
		f = 0 // fold -0 into +0
	}
	bits := math.Float64bits(f)
	if bits&(1<<63) != 0 {
		return ^bits
	}
	return bits | 1<<63
}

// appendEscaped writes 0x00 as 0x00 0xFF and terminates with 0x00 0x01
func appendEscaped(buf, b []byte) []byte {
	for _, c := range b {
		if c == 0 {
			buf = append(buf, 0, 0xFF)
			continue
		}
		buf = append(buf, c)
	}
	return append(buf, 0, 1)
}

// PrefixEnd returns the smallest key greater than every key starting with
// prefix, or nil when prefix is all 0xFF and no such key exists
func PrefixEnd(prefix []byte) []byte {
	end := make([]byte, len(prefix))
	copy(end, prefix)
	for i := len(end) - 1; i >= 0; i-- {
		if end[i] < 0xFF {
			end[i]++
			return end[:i+1]
		}
	}
	return nil
}
