/*
Package wire implements the tag-prefixed wire codec for data units: each field emits (tag, wire-type) followed by a
length-delimited or fixed-width payload; repeated fields emit each
element independently (no packed-repeated encoding, so two readers
built at different library versions can still make progress field by
field).

Serialization is deterministic given field-set membership but is not
byte-for-byte canonical across library versions — field order follows
Unit.Tags() (ascending tag order), not declaration order, and equality
is defined by (tag → value) mapping rather than by bytes.
*/
package wire

import (
	"encoding/binary"
	"math"

	"github.com/cuemby/strata/pkg/dataunit"
	"github.com/cuemby/strata/pkg/dataunit/objectid"
	"github.com/cuemby/strata/pkg/serr"
)

type wireType byte

const (
	wireVarint wireType = 0
	wireFixed32 wireType = 1
	wireFixed64 wireType = 2
	wireBytes wireType = 3
)

func putVarint(dst []byte, v uint64) []byte {
	for v >= 0x80 {
		dst = append(dst, byte(v)|0x80)
		v >>= 7
	}
	return append(dst, byte(v))
}

func takeVarint(b []byte) (uint64, []byte, error) {
	var v uint64
	var shift uint
	for i := 0; i < len(b); i++ {
		c := b[i]
		v |= uint64(c&0x7f) << shift
		if c < 0x80 {
			return v, b[i+1:], nil
		}
		shift += 7
		if shift >= 64 {
			return 0, nil, serr.New(serr.ParseFailed, "wire: varint overflow")
		}
	}
	return 0, nil, serr.New(serr.ParseFailed, "wire: truncated varint")
}

func zigzag(v int64) uint64 { return uint64((v << 1) ^ (v >> 63)) }
func unzigzag(v uint64) int64 {
	return int64(v>>1) ^ -int64(v&1)
}

func writeHeader(dst []byte, tag uint32, wt wireType) []byte {
	return putVarint(dst, (uint64(tag)<<3)|uint64(wt))
}

func takeHeader(b []byte) (tag uint32, wt wireType, rest []byte, err error) {
	v, rest, err := takeVarint(b)
	if err != nil {
		return 0, 0, nil, err
	}
	return uint32(v >> 3), wireType(v & 0x7), rest, nil
}

func wireTypeOf(t dataunit.ValueType) wireType {
	switch t {
	case dataunit.TypeFloat32:
		return wireFixed32
	case dataunit.TypeFloat64:
		return wireFixed64
	case dataunit.TypeString, dataunit.TypeBytes, dataunit.TypeFixedString,
		dataunit.TypeObjectID, dataunit.TypeUnit, dataunit.TypeDateRange:
		return wireBytes
	default:
		return wireVarint
	}
}

// Serialize encodes u into its wire form.
func Serialize(u *dataunit.Unit) ([]byte, error) {
	var out []byte
	for _, tag := range u.Tags() {
		f, ok := u.Schema().ByTag(tag)
		if !ok {
			continue
		}
		var err error
		out, err = encodeField(out, f, u)
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

func encodeField(out []byte, f *dataunit.FieldDescriptor, u *dataunit.Unit) ([]byte, error) {
	wt := wireTypeOf(f.Type)
	if f.Repeated {
		if f.Type == dataunit.TypeUnit {
			elems, _ := u.GetRepeatedUnit(f.Tag)
			for _, e := range elems {
				out = writeHeader(out, f.Tag, wt)
				payload, err := Serialize(e)
				if err != nil {
					return nil, err
				}
				out = putVarint(out, uint64(len(payload)))
				out = append(out, payload...)
			}
			return out, nil
		}
		elems, _ := u.GetRepeated(f.Tag)
		for _, e := range elems {
			var err error
			out, err = encodeScalar(out, f, e)
			if err != nil {
				return nil, err
			}
		}
		return out, nil
	}
	if f.Type == dataunit.TypeUnit {
		nested, ok := u.GetUnit(f.Tag)
		if !ok {
			return out, nil
		}
		out = writeHeader(out, f.Tag, wt)
		payload, err := Serialize(nested)
		if err != nil {
			return nil, err
		}
		out = putVarint(out, uint64(len(payload)))
		out = append(out, payload...)
		return out, nil
	}
	v, ok := u.Get(f.Tag)
	if !ok {
		return out, nil
	}
	return encodeScalar(out, f, v)
}

func encodeScalar(out []byte, f *dataunit.FieldDescriptor, v any) ([]byte, error) {
	wt := wireTypeOf(f.Type)
	out = writeHeader(out, f.Tag, wt)
	switch f.Type {
	case dataunit.TypeBool:
		b := uint64(0)
		if v.(bool) {
			b = 1
		}
		out = putVarint(out, b)
	case dataunit.TypeInt8:
		out = putVarint(out, zigzag(int64(v.(int8))))
	case dataunit.TypeInt16:
		out = putVarint(out, zigzag(int64(v.(int16))))
	case dataunit.TypeInt32:
		out = putVarint(out, zigzag(int64(v.(int32))))
	case dataunit.TypeInt64:
		out = putVarint(out, zigzag(v.(int64)))
	case dataunit.TypeUint8:
		out = putVarint(out, uint64(v.(uint8)))
	case dataunit.TypeUint16:
		out = putVarint(out, uint64(v.(uint16)))
	case dataunit.TypeUint32:
		out = putVarint(out, uint64(v.(uint32)))
	case dataunit.TypeUint64:
		out = putVarint(out, v.(uint64))
	case dataunit.TypeEnum:
		out = putVarint(out, zigzag(int64(v.(int32))))
	case dataunit.TypeFloat32:
		var b [4]byte
		binary.BigEndian.PutUint32(b[:], math.Float32bits(v.(float32)))
		out = append(out, b[:]...)
	case dataunit.TypeFloat64:
		var b [8]byte
		binary.BigEndian.PutUint64(b[:], math.Float64bits(v.(float64)))
		out = append(out, b[:]...)
	case dataunit.TypeString:
		s := v.(string)
		out = putVarint(out, uint64(len(s)))
		out = append(out, s...)
	case dataunit.TypeFixedString:
		s := v.(string)
		if f.FixedLen > 0 && len(s) > f.FixedLen {
			s = s[:f.FixedLen]
		}
		out = putVarint(out, uint64(len(s)))
		out = append(out, s...)
	case dataunit.TypeBytes:
		b := v.([]byte)
		out = putVarint(out, uint64(len(b)))
		out = append(out, b...)
	case dataunit.TypeObjectID:
		id := v.(objectid.ID)
		out = putVarint(out, uint64(objectid.Size))
		out = append(out, id.Bytes()...)
	case dataunit.TypeDate:
		d := v.(dataunit.Date)
		out = putVarint(out, zigzag(int64(packedDate(d))))
	case dataunit.TypeTime:
		t := v.(dataunit.Time)
		out = putVarint(out, zigzag(int64(packedTime(t))))
	case dataunit.TypeDateTime:
		dt := v.(dataunit.DateTime)
		out = putVarint(out, zigzag(dt.Unix))
	case dataunit.TypeDateRange:
		r := v.(dataunit.DateRange)
		var body []byte
		body = putVarint(body, zigzag(int64(packedDate(r.Begin))))
		body = putVarint(body, zigzag(int64(packedDate(r.End))))
		out = putVarint(out, uint64(len(body)))
		out = append(out, body...)
	default:
		return nil, serr.New(serr.SerializeFailed, "wire: unsupported field type %s", f.Type)
	}
	return out, nil
}

// packedDate/packedTime re-derive the same packing dataunit.Date/Time use
// internally; dataunit doesn't export its packed() helpers, so wire
// recomputes the (documented) packing directly from the public fields.
func packedDate(d dataunit.Date) int32 {
	return int32(d.Year*10000 + d.Month*100 + d.Day)
}

func packedTime(t dataunit.Time) int32 {
	return int32(t.Hour*3600 + t.Minute*60 + t.Second)
}

func unpackDate(v int32) dataunit.Date {
	return dataunit.Date{Year: int(v / 10000), Month: int((v / 100) % 100), Day: int(v % 100)}
}

func unpackTime(v int32) dataunit.Time {
	return dataunit.Time{Hour: int(v / 3600), Minute: int((v / 60) % 60), Second: int(v % 60)}
}

// Parse decodes data into a fresh Unit for schema, returning
// field_required_missing if a required field never appears.
func Parse(schema *dataunit.Schema, data []byte, opts ...dataunit.Option) (*dataunit.Unit, error) {
	u := dataunit.New(schema, opts...)
	rest := data
	for len(rest) > 0 {
		tag, wt, next, err := takeHeader(rest)
		if err != nil {
			return nil, serr.Wrap(serr.ParseFailed, err, "wire: reading field header")
		}
		rest = next
		f, ok := schema.ByTag(tag)
		if !ok {
			// Unknown field: skip it using the wire type to determine length,
			// preserving forward-compatibility with producers on a newer schema.
			rest, err = skipUnknown(rest, wt)
			if err != nil {
				return nil, err
			}
			continue
		}
		rest, err = decodeAndAssign(u, f, rest)
		if err != nil {
			return nil, err
		}
	}
	if err := u.Validate(); err != nil {
		return nil, err
	}
	return u, nil
}

func skipUnknown(b []byte, wt wireType) ([]byte, error) {
	switch wt {
	case wireVarint:
		_, rest, err := takeVarint(b)
		return rest, err
	case wireFixed32:
		if len(b) < 4 {
			return nil, serr.New(serr.ParseFailed, "wire: truncated fixed32")
		}
		return b[4:], nil
	case wireFixed64:
		if len(b) < 8 {
			return nil, serr.New(serr.ParseFailed, "wire: truncated fixed64")
		}
		return b[8:], nil
	case wireBytes:
		n, rest, err := takeVarint(b)
		if err != nil {
			return nil, err
		}
		if uint64(len(rest)) < n {
			return nil, serr.New(serr.ParseFailed, "wire: truncated length-delimited field")
		}
		return rest[n:], nil
	default:
		return nil, serr.New(serr.ParseFailed, "wire: unknown wire type %d", wt)
	}
}

func decodeAndAssign(u *dataunit.Unit, f *dataunit.FieldDescriptor, b []byte) ([]byte, error) {
	if f.Type == dataunit.TypeUnit {
		n, rest, err := takeVarint(b)
		if err != nil {
			return nil, err
		}
		if uint64(len(rest)) < n {
			return nil, serr.New(serr.ParseFailed, "wire: truncated nested unit for field %q", f.Name)
		}
		nested, err := Parse(f.NestedSchema, rest[:n])
		if err != nil {
			return nil, serr.Wrap(serr.ParseFailed, err, "wire: parsing nested field %q", f.Name)
		}
		if f.Repeated {
			elems, _ := u.GetRepeatedUnit(f.Tag)
			_ = u.SetRepeatedUnit(f.Tag, append(elems, nested))
		} else {
			_ = u.SetUnit(f.Tag, nested)
		}
		return rest[n:], nil
	}

	v, rest, err := decodeScalar(f, b)
	if err != nil {
		return nil, err
	}
	if f.Repeated {
		if err := u.AppendScalar(f.Tag, v); err != nil {
			return nil, err
		}
		return rest, nil
	}
	if err := u.Set(f.Tag, v); err != nil {
		return nil, err
	}
	return rest, nil
}

func decodeScalar(f *dataunit.FieldDescriptor, b []byte) (any, []byte, error) {
	switch f.Type {
	case dataunit.TypeBool:
		v, rest, err := takeVarint(b)
		return v != 0, rest, err
	case dataunit.TypeInt8:
		v, rest, err := takeVarint(b)
		return int8(unzigzag(v)), rest, err
	case dataunit.TypeInt16:
		v, rest, err := takeVarint(b)
		return int16(unzigzag(v)), rest, err
	case dataunit.TypeInt32:
		v, rest, err := takeVarint(b)
		return int32(unzigzag(v)), rest, err
	case dataunit.TypeInt64:
		v, rest, err := takeVarint(b)
		return unzigzag(v), rest, err
	case dataunit.TypeUint8:
		v, rest, err := takeVarint(b)
		return uint8(v), rest, err
	case dataunit.TypeUint16:
		v, rest, err := takeVarint(b)
		return uint16(v), rest, err
	case dataunit.TypeUint32:
		v, rest, err := takeVarint(b)
		return uint32(v), rest, err
	case dataunit.TypeUint64:
		v, rest, err := takeVarint(b)
		return v, rest, err
	case dataunit.TypeEnum:
		v, rest, err := takeVarint(b)
		return int32(unzigzag(v)), rest, err
	case dataunit.TypeFloat32:
		if len(b) < 4 {
			return nil, nil, serr.New(serr.ParseFailed, "wire: truncated float32")
		}
		return math.Float32frombits(binary.BigEndian.Uint32(b[:4])), b[4:], nil
	case dataunit.TypeFloat64:
		if len(b) < 8 {
			return nil, nil, serr.New(serr.ParseFailed, "wire: truncated float64")
		}
		return math.Float64frombits(binary.BigEndian.Uint64(b[:8])), b[8:], nil
	case dataunit.TypeString, dataunit.TypeFixedString:
		n, rest, err := takeVarint(b)
		if err != nil {
			return nil, nil, err
		}
		if uint64(len(rest)) < n {
			return nil, nil, serr.New(serr.ParseFailed, "wire: truncated string")
		}
		return string(rest[:n]), rest[n:], nil
	case dataunit.TypeBytes:
		n, rest, err := takeVarint(b)
		if err != nil {
			return nil, nil, err
		}
		if uint64(len(rest)) < n {
			return nil, nil, serr.New(serr.ParseFailed, "wire: truncated bytes")
		}
		cp := append([]byte(nil), rest[:n]...)
		return cp, rest[n:], nil
	case dataunit.TypeObjectID:
		n, rest, err := takeVarint(b)
		if err != nil {
			return nil, nil, err
		}
		if n != uint64(objectid.Size) || uint64(len(rest)) < n {
			return nil, nil, serr.New(serr.ParseFailed, "wire: bad object id length %d", n)
		}
		id, err := objectid.FromBytes(rest[:n])
		if err != nil {
			return nil, nil, serr.Wrap(serr.ParseFailed, err, "wire: decoding object id")
		}
		return id, rest[n:], nil
	case dataunit.TypeDate:
		v, rest, err := takeVarint(b)
		if err != nil {
			return nil, nil, err
		}
		return unpackDate(int32(unzigzag(v))), rest, nil
	case dataunit.TypeTime:
		v, rest, err := takeVarint(b)
		if err != nil {
			return nil, nil, err
		}
		return unpackTime(int32(unzigzag(v))), rest, nil
	case dataunit.TypeDateTime:
		v, rest, err := takeVarint(b)
		if err != nil {
			return nil, nil, err
		}
		return dataunit.DateTime{Unix: unzigzag(v)}, rest, nil
	case dataunit.TypeDateRange:
		n, rest, err := takeVarint(b)
		if err != nil {
			return nil, nil, err
		}
		if uint64(len(rest)) < n {
			return nil, nil, serr.New(serr.ParseFailed, "wire: truncated date range")
		}
		body := rest[:n]
		bv, body, err := takeVarint(body)
		if err != nil {
			return nil, nil, err
		}
		ev, _, err := takeVarint(body)
		if err != nil {
			return nil, nil, err
		}
		return dataunit.DateRange{Begin: unpackDate(int32(unzigzag(bv))), End: unpackDate(int32(unzigzag(ev)))}, rest[n:], nil
	default:
		return nil, nil, serr.New(serr.ParseFailed, "wire: unsupported field type %s", f.Type)
	}
}
