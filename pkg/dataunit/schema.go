package dataunit

import "github.com/cuemby/strata/pkg/serr"

// ValueType enumerates the value types a field descriptor may declare
//. There is no virtual dispatch on field values: every
// operation that must branch on type does so through a visitor
// switch over this enum.
type ValueType int

const (
	TypeBool ValueType = iota
	TypeInt8
	TypeInt16
	TypeInt32
	TypeInt64
	TypeUint8
	TypeUint16
	TypeUint32
	TypeUint64
	TypeFloat32
	TypeFloat64
	TypeString
	TypeBytes
	TypeFixedString
	TypeEnum
	TypeUnit
	TypeObjectID
	TypeDate
	TypeTime
	TypeDateTime
	TypeDateRange
)

func (t ValueType) String() string {
	switch t {
	case TypeBool:
		return "bool"
	case TypeInt8:
		return "int8"
	case TypeInt16:
		return "int16"
	case TypeInt32:
		return "int32"
	case TypeInt64:
		return "int64"
	case TypeUint8:
		return "uint8"
	case TypeUint16:
		return "uint16"
	case TypeUint32:
		return "uint32"
	case TypeUint64:
		return "uint64"
	case TypeFloat32:
		return "float32"
	case TypeFloat64:
		return "float64"
	case TypeString:
		return "string"
	case TypeBytes:
		return "bytes"
	case TypeFixedString:
		return "fixed_string"
	case TypeEnum:
		return "enum"
	case TypeUnit:
		return "unit"
	case TypeObjectID:
		return "object_id"
	case TypeDate:
		return "date"
	case TypeTime:
		return "time"
	case TypeDateTime:
		return "datetime"
	case TypeDateRange:
		return "date_range"
	default:
		return "unknown"
	}
}

// scalarTypes is the set of types that may carry a Default value:
// defaults apply only to scalar, string, and enum fields.
func (t ValueType) isScalarDefaultable() bool {
	switch t {
	case TypeUnit:
		return false
	default:
		return true
	}
}

// FieldDescriptor describes one field of a Schema: its wire tag, name,
// value type, cardinality and required/default rules.
type FieldDescriptor struct {
	Tag uint32
	Name string
	Type ValueType
	Repeated bool
	Required bool

	// Default holds the zero-or-user-supplied default. Only meaningful
	// when Type is scalar, string, fixed string or enum and !Repeated.
	Default any

	// Embedded distinguishes, for a repeated field, whether the parent
	// owns its elements by value (embedded) or holds shared references
	// (external). Nested-unit repeated fields are always external
	// regardless of this flag; Embedded only has meaning
	// for non-unit repeated fields in this implementation (byte/string
	// vectors are always embedded copies, kept here for documentation
	// parity with the spec rather than behavior divergence).
	Embedded bool

	// NestedSchema is set when Type == TypeUnit.
	NestedSchema *Schema

	// FixedLen is the declared capacity when Type == TypeFixedString.
	FixedLen int
}

// Field is a convenience constructor for a required/optional scalar
// field descriptor.
func Field(tag uint32, name string, t ValueType) *FieldDescriptor {
	return &FieldDescriptor{Tag: tag, Name: name, Type: t}
}

// WithRequired marks the field required and returns it for chaining.
func (f *FieldDescriptor) WithRequired() *FieldDescriptor {
	f.Required = true
	return f
}

// WithRepeated marks the field repeated. Nested-unit fields are always
// external once repeated.
func (f *FieldDescriptor) WithRepeated() *FieldDescriptor {
	f.Repeated = true
	if f.Type == TypeUnit {
		f.Embedded = false
	}
	return f
}

// WithDefault attaches a default value; it is validated in NewSchema.
func (f *FieldDescriptor) WithDefault(v any) *FieldDescriptor {
	f.Default = v
	return f
}

// WithNested attaches the nested schema for a TypeUnit field.
func (f *FieldDescriptor) WithNested(s *Schema) *FieldDescriptor {
	f.NestedSchema = s
	return f
}

// WithFixedLen sets the declared capacity for a TypeFixedString field.
func (f *FieldDescriptor) WithFixedLen(n int) *FieldDescriptor {
	f.FixedLen = n
	return f
}

// Schema is a compile/registration-time description of a data unit's
// fields: tag, name, type, cardinality, required flag and default
//.
type Schema struct {
	Name string
	Fields []*FieldDescriptor

	byTag map[uint32]*FieldDescriptor
	byName map[string]*FieldDescriptor
}

// NewSchema validates and builds a Schema. Tags and names must each be
// unique within the unit; a default on a nested or repeated field is a
// schema error.
func NewSchema(name string, fields ...*FieldDescriptor) (*Schema, error) {
	s := &Schema{
		Name: name,
		Fields: fields,
		byTag: make(map[uint32]*FieldDescriptor, len(fields)),
		byName: make(map[string]*FieldDescriptor, len(fields)),
	}
	for _, f := range fields {
		if _, dup := s.byTag[f.Tag]; dup {
			return nil, serr.New(serr.ValidationFailed, "dataunit: duplicate field tag %d in schema %q", f.Tag, name)
		}
		if _, dup := s.byName[f.Name]; dup {
			return nil, serr.New(serr.ValidationFailed, "dataunit: duplicate field name %q in schema %q", f.Name, name)
		}
		if f.Default != nil {
			if f.Repeated || !f.Type.isScalarDefaultable() {
				return nil, serr.New(serr.ValidationFailed,
					"dataunit: field %q.%s: default is only valid on scalar/string/enum fields", name, f.Name)
			}
		}
		if f.Type == TypeUnit && f.NestedSchema == nil {
			return nil, serr.New(serr.ValidationFailed, "dataunit: field %q.%s: nested unit field missing NestedSchema", name, f.Name)
		}
		if f.Type == TypeFixedString && f.FixedLen <= 0 {
			return nil, serr.New(serr.ValidationFailed, "dataunit: field %q.%s: fixed string field missing FixedLen", name, f.Name)
		}
		s.byTag[f.Tag] = f
		s.byName[f.Name] = f
	}
	return s, nil
}

// ByTag looks up a field descriptor by wire tag.
func (s *Schema) ByTag(tag uint32) (*FieldDescriptor, bool) {
	f, ok := s.byTag[tag]
	return f, ok
}

// ByName looks up a field descriptor by name.
func (s *Schema) ByName(name string) (*FieldDescriptor, bool) {
	f, ok := s.byName[name]
	return f, ok
}
