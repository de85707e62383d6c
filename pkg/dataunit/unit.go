package dataunit

import (
	"reflect"

	"github.com/cuemby/strata/pkg/dataunit/objectid"
	"github.com/cuemby/strata/pkg/serr"
)

// fieldVal holds exactly one of the four shapes a field's contents can
// take: a single scalar, a single nested unit, a repeated scalar vector,
// or a repeated (always-external) vector of nested units.
type fieldVal struct {
	scalar any
	nested *Unit
	repeatedScalar []any
	repeatedNested []*Unit
}

// Unit is a typed record: a Schema plus a sparse tag→value map. Only
// fields that have been explicitly set are present in the map; absent
// fields read back as (nil, false) from Get unless they carry a
// default, in which case the default surfaces instead.
type Unit struct {
	schema *Schema
	values map[uint32]fieldVal
	alloc Allocator
}

// Option configures a new Unit.
type Option func(*Unit)

// WithAllocatorFactory selects the allocation strategy.
func WithAllocatorFactory(f AllocatorFactory) Option {
	return func(u *Unit) { u.alloc = f.New() }
}

// New creates an empty unit for schema.
func New(schema *Schema, opts ...Option) *Unit {
	u := &Unit{schema: schema, values: make(map[uint32]fieldVal, len(schema.Fields))}
	for _, o := range opts {
		o(u)
	}
	if u.alloc == nil {
		u.alloc = DefaultAllocatorFactory{}.New()
	}
	return u
}

// Schema returns the unit's schema.
func (u *Unit) Schema() *Schema { return u.schema }

func (u *Unit) descriptor(tag uint32) (*FieldDescriptor, error) {
	f, ok := u.schema.ByTag(tag)
	if !ok {
		return nil, serr.New(serr.InvalidType, "dataunit: schema %q has no field with tag %d", u.schema.Name, tag)
	}
	return f, nil
}

// checkScalarType validates that v's Go type matches what ft expects.
func checkScalarType(ft ValueType, v any) error {
	ok := false
	switch ft {
	case TypeBool:
		_, ok = v.(bool)
	case TypeInt8:
		_, ok = v.(int8)
	case TypeInt16:
		_, ok = v.(int16)
	case TypeInt32:
		_, ok = v.(int32)
	case TypeInt64:
		_, ok = v.(int64)
	case TypeUint8:
		_, ok = v.(uint8)
	case TypeUint16:
		_, ok = v.(uint16)
	case TypeUint32:
		_, ok = v.(uint32)
	case TypeUint64:
		_, ok = v.(uint64)
	case TypeFloat32:
		_, ok = v.(float32)
	case TypeFloat64:
		_, ok = v.(float64)
	case TypeString, TypeFixedString:
		_, ok = v.(string)
	case TypeBytes:
		_, ok = v.([]byte)
	case TypeEnum:
		_, ok = v.(int32)
	case TypeObjectID:
		_, ok = v.(objectid.ID)
	case TypeDate:
		_, ok = v.(Date)
	case TypeTime:
		_, ok = v.(Time)
	case TypeDateTime:
		_, ok = v.(DateTime)
	case TypeDateRange:
		_, ok = v.(DateRange)
	default:
		ok = false
	}
	if !ok {
		return serr.New(serr.InvalidType, "dataunit: value of Go type %s is not valid for field type %s", reflect.TypeOf(v), ft)
	}
	return nil
}

// Set assigns a scalar value to a non-repeated, non-unit field.
func (u *Unit) Set(tag uint32, v any) error {
	f, err := u.descriptor(tag)
	if err != nil {
		return err
	}
	if f.Repeated {
		return serr.New(serr.InvalidType, "dataunit: field %q is repeated, use SetRepeated", f.Name)
	}
	if f.Type == TypeUnit {
		return serr.New(serr.InvalidType, "dataunit: field %q is a nested unit, use SetUnit", f.Name)
	}
	if err := checkScalarType(f.Type, v); err != nil {
		return err
	}
	u.values[tag] = fieldVal{scalar: v}
	return nil
}

// SetByName is Set addressed by field name.
func (u *Unit) SetByName(name string, v any) error {
	f, ok := u.schema.ByName(name)
	if !ok {
		return serr.New(serr.InvalidType, "dataunit: schema %q has no field %q", u.schema.Name, name)
	}
	return u.Set(f.Tag, v)
}

// Get reads a scalar field. If unset but the descriptor carries a
// Default, the default is returned with ok=true.
func (u *Unit) Get(tag uint32) (any, bool) {
	if fv, ok := u.values[tag]; ok {
		return fv.scalar, true
	}
	if f, ok := u.schema.ByTag(tag); ok && f.Default != nil {
		return f.Default, true
	}
	return nil, false
}

// GetByName is Get addressed by field name.
func (u *Unit) GetByName(name string) (any, bool) {
	f, ok := u.schema.ByName(name)
	if !ok {
		return nil, false
	}
	return u.Get(f.Tag)
}

// SetUnit assigns a nested unit to a non-repeated TypeUnit field.
func (u *Unit) SetUnit(tag uint32, v *Unit) error {
	f, err := u.descriptor(tag)
	if err != nil {
		return err
	}
	if f.Repeated || f.Type != TypeUnit {
		return serr.New(serr.InvalidType, "dataunit: field %q is not a singular nested unit field", f.Name)
	}
	u.values[tag] = fieldVal{nested: v}
	return nil
}

// GetUnit reads a nested single-unit field.
func (u *Unit) GetUnit(tag uint32) (*Unit, bool) {
	fv, ok := u.values[tag]
	if !ok || fv.nested == nil {
		return nil, false
	}
	return fv.nested, true
}

// SetRepeated assigns a repeated scalar field.
func (u *Unit) SetRepeated(tag uint32, vs []any) error {
	f, err := u.descriptor(tag)
	if err != nil {
		return err
	}
	if !f.Repeated || f.Type == TypeUnit {
		return serr.New(serr.InvalidType, "dataunit: field %q is not a repeated scalar field", f.Name)
	}
	for _, v := range vs {
		if err := checkScalarType(f.Type, v); err != nil {
			return err
		}
	}
	cp := append([]any(nil), vs...)
	u.values[tag] = fieldVal{repeatedScalar: cp}
	return nil
}

// GetRepeated reads a repeated scalar field.
func (u *Unit) GetRepeated(tag uint32) ([]any, bool) {
	fv, ok := u.values[tag]
	if !ok || fv.repeatedScalar == nil {
		return nil, false
	}
	return fv.repeatedScalar, true
}

// SetRepeatedUnit assigns a repeated (always-external) nested-unit field.
func (u *Unit) SetRepeatedUnit(tag uint32, vs []*Unit) error {
	f, err := u.descriptor(tag)
	if err != nil {
		return err
	}
	if !f.Repeated || f.Type != TypeUnit {
		return serr.New(serr.InvalidType, "dataunit: field %q is not a repeated nested-unit field", f.Name)
	}
	cp := append([]*Unit(nil), vs...)
	u.values[tag] = fieldVal{repeatedNested: cp}
	return nil
}

// GetRepeatedUnit reads a repeated nested-unit field.
func (u *Unit) GetRepeatedUnit(tag uint32) ([]*Unit, bool) {
	fv, ok := u.values[tag]
	if !ok || fv.repeatedNested == nil {
		return nil, false
	}
	return fv.repeatedNested, true
}

// AppendScalar appends one element to a repeated scalar field, creating
// it if necessary. Used by the update-request "push"/"append_to"
// operators.
func (u *Unit) AppendScalar(tag uint32, v any) error {
	f, err := u.descriptor(tag)
	if err != nil {
		return err
	}
	if !f.Repeated || f.Type == TypeUnit {
		return serr.New(serr.InvalidType, "dataunit: field %q is not a repeated scalar field", f.Name)
	}
	if err := checkScalarType(f.Type, v); err != nil {
		return err
	}
	fv := u.values[tag]
	fv.repeatedScalar = append(fv.repeatedScalar, v)
	u.values[tag] = fv
	return nil
}

// PrependScalar inserts one element at the front of a repeated scalar
// field. Used by the "prepend_to" update operator.
func (u *Unit) PrependScalar(tag uint32, v any) error {
	f, err := u.descriptor(tag)
	if err != nil {
		return err
	}
	if !f.Repeated || f.Type == TypeUnit {
		return serr.New(serr.InvalidType, "dataunit: field %q is not a repeated scalar field", f.Name)
	}
	if err := checkScalarType(f.Type, v); err != nil {
		return err
	}
	fv := u.values[tag]
	fv.repeatedScalar = append([]any{v}, fv.repeatedScalar...)
	u.values[tag] = fv
	return nil
}

// PopScalar removes and returns the last element of a repeated scalar
// field. Used by the "pop" update operator.
func (u *Unit) PopScalar(tag uint32) (any, error) {
	fv, ok := u.values[tag]
	if !ok || len(fv.repeatedScalar) == 0 {
		return nil, serr.New(serr.ValidationFailed, "dataunit: field tag %d has no elements to pop", tag)
	}
	n := len(fv.repeatedScalar)
	v := fv.repeatedScalar[n-1]
	fv.repeatedScalar = fv.repeatedScalar[:n-1]
	u.values[tag] = fv
	return v, nil
}

// EraseElement removes the element at index from a repeated scalar
// field. Used by the "erase_element" update operator.
func (u *Unit) EraseElement(tag uint32, index int) error {
	fv, ok := u.values[tag]
	if !ok || index < 0 || index >= len(fv.repeatedScalar) {
		return serr.New(serr.ValidationFailed, "dataunit: field tag %d index %d out of range", tag, index)
	}
	fv.repeatedScalar = append(fv.repeatedScalar[:index], fv.repeatedScalar[index+1:]...)
	u.values[tag] = fv
	return nil
}

// Increment adds delta to an integer-typed scalar field, treating an
// unset field as zero. Used by the "inc" update operator; any other
// field type rejects it outright.
func (u *Unit) Increment(tag uint32, delta int64) error {
	f, err := u.descriptor(tag)
	if err != nil {
		return err
	}
	if f.Repeated || f.Type == TypeUnit {
		return serr.New(serr.InvalidType, "dataunit: field %q is not a scalar integer field", f.Name)
	}
	cur, has := u.Get(tag)
	switch f.Type {
	case TypeInt8:
		var base int8
		if has {
			base = cur.(int8)
		}
		u.values[tag] = fieldVal{scalar: base + int8(delta)}
	case TypeInt16:
		var base int16
		if has {
			base = cur.(int16)
		}
		u.values[tag] = fieldVal{scalar: base + int16(delta)}
	case TypeInt32:
		var base int32
		if has {
			base = cur.(int32)
		}
		u.values[tag] = fieldVal{scalar: base + int32(delta)}
	case TypeInt64:
		var base int64
		if has {
			base = cur.(int64)
		}
		u.values[tag] = fieldVal{scalar: base + delta}
	case TypeUint8:
		var base uint8
		if has {
			base = cur.(uint8)
		}
		u.values[tag] = fieldVal{scalar: base + uint8(delta)}
	case TypeUint16:
		var base uint16
		if has {
			base = cur.(uint16)
		}
		u.values[tag] = fieldVal{scalar: base + uint16(delta)}
	case TypeUint32:
		var base uint32
		if has {
			base = cur.(uint32)
		}
		u.values[tag] = fieldVal{scalar: base + uint32(delta)}
	case TypeUint64:
		var base uint64
		if has {
			base = cur.(uint64)
		}
		u.values[tag] = fieldVal{scalar: base + uint64(delta)}
	default:
		return serr.New(serr.InvalidType, "dataunit: inc is only valid on integer fields, field %q is %s", f.Name, f.Type)
	}
	return nil
}

// Unset removes a field's value (scalar or nested, repeated or not).
func (u *Unit) Unset(tag uint32) {
	delete(u.values, tag)
}

// Has reports whether tag carries an explicit (non-default) value.
func (u *Unit) Has(tag uint32) bool {
	_, ok := u.values[tag]
	return ok
}

// Tags returns the wire tags of every explicitly-set field, in
// ascending order, convenient for index-diffing and wire encoding.
func (u *Unit) Tags() []uint32 {
	tags := make([]uint32, 0, len(u.values))
	for t := range u.values {
		tags = append(tags, t)
	}
	for i := 1; i < len(tags); i++ {
		for j := i; j > 0 && tags[j-1] > tags[j]; j-- {
			tags[j-1], tags[j] = tags[j], tags[j-1]
		}
	}
	return tags
}

// Validate checks that every required field is present, either as an
// explicit value or via Default. It returns field_required_missing for
// the first such field in schema declaration order.
func (u *Unit) Validate() error {
	for _, f := range u.schema.Fields {
		if !f.Required {
			continue
		}
		if f.Repeated {
			fv, ok := u.values[f.Tag]
			if !ok || (len(fv.repeatedScalar) == 0 && len(fv.repeatedNested) == 0) {
				return serr.Field(serr.FieldRequiredMissing, f.Name, "dataunit: required field %q missing", f.Name)
			}
			continue
		}
		if f.Type == TypeUnit {
			if _, ok := u.GetUnit(f.Tag); !ok {
				return serr.Field(serr.FieldRequiredMissing, f.Name, "dataunit: required field %q missing", f.Name)
			}
			continue
		}
		if _, ok := u.Get(f.Tag); !ok {
			return serr.Field(serr.FieldRequiredMissing, f.Name, "dataunit: required field %q missing", f.Name)
		}
	}
	return nil
}

// Equal compares two units by (tag → value) mapping rather than by
// wire bytes mapping,
// not bytes").
func (u *Unit) Equal(other *Unit) bool {
	if other == nil || u.schema.Name != other.schema.Name {
		return false
	}
	if len(u.values) != len(other.values) {
		return false
	}
	for tag, fv := range u.values {
		ov, ok := other.values[tag]
		if !ok {
			return false
		}
		if !fieldValEqual(fv, ov) {
			return false
		}
	}
	return true
}

func fieldValEqual(a, b fieldVal) bool {
	if a.nested != nil || b.nested != nil {
		if a.nested == nil || b.nested == nil {
			return false
		}
		return a.nested.Equal(b.nested)
	}
	if a.repeatedScalar != nil || b.repeatedScalar != nil {
		if len(a.repeatedScalar) != len(b.repeatedScalar) {
			return false
		}
		for i := range a.repeatedScalar {
			if !reflect.DeepEqual(a.repeatedScalar[i], b.repeatedScalar[i]) {
				return false
			}
		}
		return true
	}
	if a.repeatedNested != nil || b.repeatedNested != nil {
		if len(a.repeatedNested) != len(b.repeatedNested) {
			return false
		}
		for i := range a.repeatedNested {
			if !a.repeatedNested[i].Equal(b.repeatedNested[i]) {
				return false
			}
		}
		return true
	}
	return reflect.DeepEqual(a.scalar, b.scalar)
}
