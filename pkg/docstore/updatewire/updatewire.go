/*
Package updatewire implements the update-request wire form: a sequence
of path-addressed operations (set, unset, inc, push, pop, append_to,
prepend_to, erase_element, plus the resize/clear helpers used to grow
or empty a repeated field outright) that the document store and, in
coalescing mode, the producer queue replay against a
staged *dataunit.Unit. Each operation carries its own value-type tag so
Decode never needs the target schema to parse the bytes — only Apply
does, since that's where the path is resolved against a real Unit.
*/
package updatewire

import (
	"encoding/binary"
	"math"

	"github.com/cuemby/strata/pkg/dataunit"
	"github.com/cuemby/strata/pkg/dataunit/objectid"
	"github.com/cuemby/strata/pkg/dataunit/path"
	"github.com/cuemby/strata/pkg/dataunit/wire"
	"github.com/cuemby/strata/pkg/serr"
)

// Kind is an update-request operator.
type Kind byte

const (
	KindSet Kind = iota
	KindUnset
	KindAppend
	KindResize
	KindClear
	KindInc
	KindPush
	KindPop
	KindPrependTo
	KindEraseElement
)

// Op is one path-addressed operation. Value is used by
// Set/Append/Push/PrependTo; N is used by Resize/EraseElement/Inc (as a
// signed delta).
type Op struct {
	Path string
	Kind Kind
	Value any
	Type dataunit.ValueType // value type tag for Set/Append/Push/PrependTo, ignored otherwise
	N int
}

// Request is an ordered sequence of operations applied left to right.
type Request []Op

// Apply replays r against u in order.
func (r Request) Apply(u *dataunit.Unit) error {
	for _, op := range r {
		p, err := path.Parse(op.Path)
		if err != nil {
			return err
		}
		switch op.Kind {
		case KindSet:
			if err := path.Set(u, p, op.Value); err != nil {
				return err
			}
		case KindUnset:
			if err := path.Unset(u, p); err != nil {
				return err
			}
		case KindAppend:
			if err := path.Append(u, p, op.Value); err != nil {
				return err
			}
		case KindResize:
			if err := path.Resize(u, p, op.N); err != nil {
				return err
			}
		case KindClear:
			if err := path.Clear(u, p); err != nil {
				return err
			}
		case KindInc:
			if err := path.Increment(u, p, int64(op.N)); err != nil {
				return err
			}
		case KindPush, KindPrependTo:
			if op.Kind == KindPush {
				if err := path.Append(u, p, op.Value); err != nil {
					return err
				}
			} else if err := path.Prepend(u, p, op.Value); err != nil {
				return err
			}
		case KindPop:
			if _, _, err := path.Pop(u, p); err != nil {
				return err
			}
		case KindEraseElement:
			if err := path.EraseElement(u, p, op.N); err != nil {
				return err
			}
		default:
			return serr.New(serr.Unsupported, "updatewire: unknown operator %d", op.Kind)
		}
	}
	return nil
}

// ApplyToWire parses data against schema, replays r against the
// resulting Unit, and re-serializes it — the parse/apply/serialize
// sequence every read-modify-write caller (the document store's
// ApplyUpdate, the producer queue's create/update coalescing) needs,
// pulled out once so neither has to hand-rub it.
func ApplyToWire(schema *dataunit.Schema, data []byte, r Request) ([]byte, error) {
	u, err := wire.Parse(schema, data)
	if err != nil {
		return nil, serr.Wrap(serr.ParseFailed, err, "updatewire: parsing document for update")
	}
	if err := r.Apply(u); err != nil {
		return nil, err
	}
	out, err := wire.Serialize(u)
	if err != nil {
		return nil, serr.Wrap(serr.SerializeFailed, err, "updatewire: re-serializing updated document")
	}
	return out, nil
}

// Encode serializes r to its wire form: a count-prefixed sequence of
// (kind, path, [type, value] | [n]) records.
func Encode(r Request) ([]byte, error) {
	var buf []byte
	buf = putUvarint(buf, uint64(len(r)))
	for _, op := range r {
		buf = append(buf, byte(op.Kind))
		buf = putBytes(buf, []byte(op.Path))
		switch op.Kind {
		case KindSet, KindAppend, KindPush, KindPrependTo:
			buf = append(buf, byte(op.Type))
			enc, err := encodeValue(op.Type, op.Value)
			if err != nil {
				return nil, err
			}
			buf = putBytes(buf, enc)
		case KindResize, KindEraseElement, KindInc:
			buf = putUvarint(buf, uint64(int64(op.N)))
		}
	}
	return buf, nil
}

// Decode parses an update-request payload produced by Encode.
func Decode(data []byte) (Request, error) {
	n, data, err := takeUvarint(data)
	if err != nil {
		return nil, err
	}
	req := make(Request, 0, n)
	for i := uint64(0); i < n; i++ {
		if len(data) < 1 {
			return nil, serr.New(serr.ParseFailed, "updatewire: truncated operator")
		}
		kind := Kind(data[0])
		data = data[1:]
		pathBytes, rest, err := takeBytes(data)
		if err != nil {
			return nil, err
		}
		data = rest
		op := Op{Path: string(pathBytes), Kind: kind}
		switch kind {
		case KindSet, KindAppend, KindPush, KindPrependTo:
			if len(data) < 1 {
				return nil, serr.New(serr.ParseFailed, "updatewire: truncated value type")
			}
			op.Type = dataunit.ValueType(data[0])
			data = data[1:]
			enc, rest, err := takeBytes(data)
			if err != nil {
				return nil, err
			}
			data = rest
			v, err := decodeValue(op.Type, enc)
			if err != nil {
				return nil, err
			}
			op.Value = v
		case KindResize, KindEraseElement, KindInc:
			nv, rest, err := takeUvarint(data)
			if err != nil {
				return nil, err
			}
			data = rest
			op.N = int(int64(nv))
		}
		req = append(req, op)
	}
	return req, nil
}

func putUvarint(dst []byte, v uint64) []byte {
	var tmp [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(tmp[:], v)
	return append(dst, tmp[:n]...)
}

func takeUvarint(data []byte) (uint64, []byte, error) {
	v, n := binary.Uvarint(data)
	if n <= 0 {
		return 0, nil, serr.New(serr.ParseFailed, "updatewire: malformed varint")
	}
	return v, data[n:], nil
}

func putBytes(dst, b []byte) []byte {
	dst = putUvarint(dst, uint64(len(b)))
	return append(dst, b...)
}

func takeBytes(data []byte) ([]byte, []byte, error) {
	n, rest, err := takeUvarint(data)
	if err != nil {
		return nil, nil, err
	}
	if uint64(len(rest)) < n {
		return nil, nil, serr.New(serr.ParseFailed, "updatewire: truncated bytes field")
	}
	return rest[:n], rest[n:], nil
}

func encodeValue(t dataunit.ValueType, v any) ([]byte, error) {
	switch t {
	case dataunit.TypeBool:
		if v.(bool) {
			return []byte{1}, nil
		}
		return []byte{0}, nil
	case dataunit.TypeInt8:
		return []byte{byte(v.(int8))}, nil
	case dataunit.TypeInt16:
		return beUint(uint64(uint16(v.(int16))), 2), nil
	case dataunit.TypeInt32, dataunit.TypeEnum:
		return beUint(uint64(uint32(v.(int32))), 4), nil
	case dataunit.TypeInt64:
		return beUint(uint64(v.(int64)), 8), nil
	case dataunit.TypeUint8:
		return []byte{v.(uint8)}, nil
	case dataunit.TypeUint16:
		return beUint(uint64(v.(uint16)), 2), nil
	case dataunit.TypeUint32:
		return beUint(uint64(v.(uint32)), 4), nil
	case dataunit.TypeUint64:
		return beUint(v.(uint64), 8), nil
	case dataunit.TypeFloat32:
		return beUint(uint64(math.Float32bits(v.(float32))), 4), nil
	case dataunit.TypeFloat64:
		return beUint(math.Float64bits(v.(float64)), 8), nil
	case dataunit.TypeString, dataunit.TypeFixedString:
		return []byte(v.(string)), nil
	case dataunit.TypeBytes:
		return v.([]byte), nil
	case dataunit.TypeObjectID:
		id := v.(objectid.ID)
		return id.Bytes(), nil
	case dataunit.TypeDate:
		d := v.(dataunit.Date)
		return beUint(uint64(uint32(d.Year*10000+d.Month*100+d.Day)), 4), nil
	case dataunit.TypeTime:
		tm := v.(dataunit.Time)
		return beUint(uint64(uint32(tm.Hour*3600+tm.Minute*60+tm.Second)), 4), nil
	case dataunit.TypeDateTime:
		dt := v.(dataunit.DateTime)
		return beUint(uint64(dt.Unix), 8), nil
	default:
		return nil, serr.New(serr.Unsupported, "updatewire: value type %s cannot be encoded", t)
	}
}

func decodeValue(t dataunit.ValueType, b []byte) (any, error) {
	switch t {
	case dataunit.TypeBool:
		return len(b) > 0 && b[0] != 0, nil
	case dataunit.TypeInt8:
		return int8(b[0]), nil
	case dataunit.TypeInt16:
		return int16(beGet(b, 2)), nil
	case dataunit.TypeInt32:
		return int32(beGet(b, 4)), nil
	case dataunit.TypeEnum:
		return int32(beGet(b, 4)), nil
	case dataunit.TypeInt64:
		return int64(beGet(b, 8)), nil
	case dataunit.TypeUint8:
		return b[0], nil
	case dataunit.TypeUint16:
		return uint16(beGet(b, 2)), nil
	case dataunit.TypeUint32:
		return uint32(beGet(b, 4)), nil
	case dataunit.TypeUint64:
		return beGet(b, 8), nil
	case dataunit.TypeFloat32:
		return math.Float32frombits(uint32(beGet(b, 4))), nil
	case dataunit.TypeFloat64:
		return math.Float64frombits(beGet(b, 8)), nil
	case dataunit.TypeString, dataunit.TypeFixedString:
		return string(b), nil
	case dataunit.TypeBytes:
		return append([]byte(nil), b...), nil
	case dataunit.TypeObjectID:
		return objectid.FromBytes(b)
	case dataunit.TypeDate:
		packed := int32(beGet(b, 4))
		return dataunit.Date{Year: int(packed / 10000), Month: int((packed / 100) % 100), Day: int(packed % 100)}, nil
	case dataunit.TypeTime:
		packed := int32(beGet(b, 4))
		return dataunit.Time{Hour: int(packed / 3600), Minute: int((packed / 60) % 60), Second: int(packed % 60)}, nil
	case dataunit.TypeDateTime:
		return dataunit.DateTime{Unix: int64(beGet(b, 8))}, nil
	default:
		return nil, serr.New(serr.Unsupported, "updatewire: value type %s cannot be decoded", t)
	}
}

func beUint(v uint64, n int) []byte {
	b := make([]byte, n)
	for i := 0; i < n; i++ {
		b[n-1-i] = byte(v >> (8 * i))
	}
	return b
}

func beGet(b []byte, n int) uint64 {
	var v uint64
	for i := 0; i < n; i++ {
		v = v<<8 | uint64(b[i])
	}
	return v
}
