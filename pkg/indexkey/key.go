/*
Package indexkey builds the byte-sortable composite keys the document
store's secondary indexes are keyed by, and decomposes a predicate
tree into the range scans (plus any leftover in-memory filter) that
can answer it: a separator-delimited run of per-field encodings
followed by the object id, with equality prefixes narrowing the key
range and anything that can't be expressed as a range (neq, multi-value
"in" spanning non-adjacent values) left as a residual filter evaluated
per candidate.

Key layout: [part_1][0x00 0x00][part_2][0x00 0x00]...[part_n][0x00 0x00][object_id].
Within a part, any literal 0x00 byte is escaped as 0x00 0xFF so a
part's own content can never be confused with the two-byte terminator.
*/
package indexkey

import (
	"bytes"
	"encoding/binary"
	"math"

	"github.com/cuemby/strata/pkg/dataunit"
	"github.com/cuemby/strata/pkg/dataunit/objectid"
	"github.com/cuemby/strata/pkg/serr"
)

const (
	sep        byte = 0x00
	escapeByte byte = 0xFF
)

// Key is an encoded, byte-sortable composite index key.
type Key []byte

// escapePart appends raw, escaped and separator-terminated, to dst.
func escapePart(dst []byte, raw []byte) []byte {
	for _, b := range raw {
		if b == sep {
			dst = append(dst, sep, escapeByte)
		} else {
			dst = append(dst, b)
		}
	}
	return append(dst, sep, sep)
}

// EncodeValue renders v (of value type t) as raw, pre-escape bytes
// ordered so that byte comparison matches the value's natural
// ordering: signed integers get their sign bit flipped, floats get the
// standard IEEE-754 sortable transform, and everything else is already
// sortable in its big-endian/raw form.
func EncodeValue(t dataunit.ValueType, v any) ([]byte, error) {
	switch t {
	case dataunit.TypeBool:
		b := v.(bool)
		if b {
			return []byte{1}, nil
		}
		return []byte{0}, nil
	case dataunit.TypeInt8:
		return []byte{flipSign8(uint8(v.(int8)))}, nil
	case dataunit.TypeInt16:
		return beUint16(flipSign16(uint16(v.(int16)))), nil
	case dataunit.TypeInt32, dataunit.TypeEnum:
		return beUint32(flipSign32(uint32(v.(int32)))), nil
	case dataunit.TypeInt64:
		return beUint64(flipSign64(uint64(v.(int64)))), nil
	case dataunit.TypeUint8:
		return []byte{v.(uint8)}, nil
	case dataunit.TypeUint16:
		return beUint16(v.(uint16)), nil
	case dataunit.TypeUint32:
		return beUint32(v.(uint32)), nil
	case dataunit.TypeUint64:
		return beUint64(v.(uint64)), nil
	case dataunit.TypeFloat32:
		return beUint32(sortableFloat32(v.(float32))), nil
	case dataunit.TypeFloat64:
		return beUint64(sortableFloat64(v.(float64))), nil
	case dataunit.TypeString, dataunit.TypeFixedString:
		return []byte(v.(string)), nil
	case dataunit.TypeBytes:
		return v.([]byte), nil
	case dataunit.TypeObjectID:
		id := v.(objectid.ID)
		return id.Bytes(), nil
	case dataunit.TypeDate:
		d := v.(dataunit.Date)
		return beUint32(flipSign32(uint32(int32(d.Year*10000 + d.Month*100 + d.Day)))), nil
	case dataunit.TypeTime:
		tm := v.(dataunit.Time)
		return beUint32(flipSign32(uint32(int32(tm.Hour*3600 + tm.Minute*60 + tm.Second)))), nil
	case dataunit.TypeDateTime:
		dt := v.(dataunit.DateTime)
		return beUint64(flipSign64(uint64(dt.Unix))), nil
	default:
		return nil, serr.New(serr.Unsupported, "indexkey: value type %s cannot be an index key part", t)
	}
}

func flipSign8(v uint8) byte    { return v ^ 0x80 }
func flipSign16(v uint16) uint16 { return v ^ 0x8000 }
func flipSign32(v uint32) uint32 { return v ^ 0x80000000 }
func flipSign64(v uint64) uint64 { return v ^ 0x8000000000000000 }

func beUint16(v uint16) []byte { b := make([]byte, 2); binary.BigEndian.PutUint16(b, v); return b }
func beUint32(v uint32) []byte { b := make([]byte, 4); binary.BigEndian.PutUint32(b, v); return b }
func beUint64(v uint64) []byte { b := make([]byte, 8); binary.BigEndian.PutUint64(b, v); return b }

func sortableFloat32(f float32) uint32 {
	bits := math.Float32bits(f)
	if bits&0x80000000 != 0 {
		return ^bits
	}
	return bits | 0x80000000
}

func sortableFloat64(f float64) uint64 {
	bits := math.Float64bits(f)
	if bits&0x8000000000000000 != 0 {
		return ^bits
	}
	return bits | 0x8000000000000000
}

// Encode builds a composite key from a sequence of (type, value) parts
// followed by the owning object's id. Each part is escaped and
// separator-terminated so equal-length-prefix keys still compare
// correctly against longer ones.
func Encode(parts []TypedValue, id objectid.ID) (Key, error) {
	var out []byte
	for _, p := range parts {
		raw, err := EncodeValue(p.Type, p.Value)
		if err != nil {
			return nil, err
		}
		out = escapePart(out, raw)
	}
	out = append(out, id.Bytes()...)
	return out, nil
}

// Prefix builds a key containing only parts, with no object id and no
// trailing separator beyond the parts' own terminators — used as a
// cursor.Seek() lower bound for a range that fixes a leading run of
// fields to exact values.
func Prefix(parts []TypedValue) (Key, error) {
	var out []byte
	for _, p := range parts {
		raw, err := EncodeValue(p.Type, p.Value)
		if err != nil {
			return nil, err
		}
		out = escapePart(out, raw)
	}
	return out, nil
}

// PrefixUpperBound returns the smallest key greater than every key
// with prefix p, by incrementing p's last byte (carrying as needed).
// An all-0xff prefix has no finite upper bound and returns ok=false,
// meaning the scan should run to the end of the table instead.
func PrefixUpperBound(p Key) (Key, bool) {
	out := append(Key(nil), p...)
	for i := len(out) - 1; i >= 0; i-- {
		if out[i] != 0xff {
			out[i]++
			return out[:i+1], true
		}
	}
	return nil, false
}

// TypedValue pairs a scalar value with the dataunit type it must be
// encoded as; callers build these from field descriptors rather than
// from a raw Go value's dynamic type, since, e.g., an int32 enum and a
// TypeInt32 field share a Go type but might one day diverge.
type TypedValue struct {
	Type  dataunit.ValueType
	Value any
}

// HasPrefix reports whether k starts with prefix — a thin wrapper kept
// here so callers don't need to import "bytes" just for this one check.
func HasPrefix(k, prefix Key) bool { return bytes.HasPrefix(k, prefix) }
