/*
Package path implements bracket-notation path addressing into a data
unit: "root[field-a][index][field-b]" walks from the root
unit through a nested-unit field, optionally an element index into a
repeated nested-unit field, and so on to a leaf field. It backs partial
updates in the producer/query paths, where a caller names a field deep
inside a unit without materializing every intermediate *dataunit.Unit
by hand.

Size/clear operations silently no-op when aimed at a field that
doesn't support them (e.g. Resize on a scalar field) rather than
erroring: an update-request operator is a no-op on a field it
doesn't apply to.
*/
package path

import (
	"strconv"
	"strings"

	"github.com/cuemby/strata/pkg/dataunit"
	"github.com/cuemby/strata/pkg/dataunit/objectid"
	"github.com/cuemby/strata/pkg/serr"
)

// Segment is one bracketed path component: either a field name or an
// element index into the preceding repeated field.
type Segment struct {
	Field string
	Index int
	IsIndex bool
}

// Path is a parsed sequence of path segments.
type Path []Segment

// Parse reads bracket-notation path text such as "root[address][0][city]"
// or the bracket-only form "[address][0][city]". A leading run of
// characters before the first '[' is treated as a root label and
// discarded.
func Parse(s string) (Path, error) {
	i := strings.IndexByte(s, '[')
	if i < 0 {
		if s == "" {
			return nil, serr.New(serr.ParseFailed, "path: empty path")
		}
		return Path{{Field: s}}, nil
	}
	rest := s[i:]
	var segs Path
	for len(rest) > 0 {
		if rest[0] != '[' {
			return nil, serr.New(serr.ParseFailed, "path: expected '[' in %q", s)
		}
		close := strings.IndexByte(rest, ']')
		if close < 0 {
			return nil, serr.New(serr.ParseFailed, "path: unterminated '[' in %q", s)
		}
		token := rest[1:close]
		if token == "" {
			return nil, serr.New(serr.ParseFailed, "path: empty segment in %q", s)
		}
		if n, err := strconv.Atoi(token); err == nil {
			segs = append(segs, Segment{Index: n, IsIndex: true})
		} else {
			segs = append(segs, Segment{Field: token})
		}
		rest = rest[close+1:]
	}
	if len(segs) == 0 {
		return nil, serr.New(serr.ParseFailed, "path: no segments in %q", s)
	}
	return segs, nil
}

func (p Path) String() string {
	var b strings.Builder
	for _, s := range p {
		b.WriteByte('[')
		if s.IsIndex {
			b.WriteString(strconv.Itoa(s.Index))
		} else {
			b.WriteString(s.Field)
		}
		b.WriteByte(']')
	}
	return b.String()
}

// resolver walks all but the final field segment of a path, returning
// the unit and field descriptor the final segment applies to.
type resolver struct {
	autoCreate bool
}

func (r resolver) descend(u *dataunit.Unit, segs Path) (*dataunit.Unit, *dataunit.FieldDescriptor, error) {
	if len(segs) == 0 {
		return nil, nil, serr.New(serr.ParseFailed, "path: path has no field segment")
	}
	head := segs[0]
	if head.IsIndex {
		return nil, nil, serr.New(serr.ParseFailed, "path: path cannot start with an index segment")
	}
	f, ok := u.Schema().ByName(head.Field)
	if !ok {
		return nil, nil, serr.New(serr.NotFound, "path: schema %q has no field %q", u.Schema().Name, head.Field)
	}
	if len(segs) == 1 {
		return u, f, nil
	}
	if f.Type != dataunit.TypeUnit {
		return nil, nil, serr.New(serr.InvalidType, "path: field %q is not a nested unit, cannot descend further", head.Field)
	}

	next := segs[1:]
	if f.Repeated {
		if len(next) == 0 || !next[0].IsIndex {
			return nil, nil, serr.New(serr.ParseFailed, "path: repeated field %q requires an index segment", head.Field)
		}
		idx := next[0].Index
		elems, _ := u.GetRepeatedUnit(f.Tag)
		if idx < 0 {
			return nil, nil, serr.New(serr.ValidationFailed, "path: negative index %d on field %q", idx, head.Field)
		}
		if idx >= len(elems) {
			if !r.autoCreate {
				return nil, nil, serr.New(serr.NotFound, "path: index %d out of range on field %q", idx, head.Field)
			}
			for len(elems) <= idx {
				elems = append(elems, dataunit.New(f.NestedSchema))
			}
			if err := u.SetRepeatedUnit(f.Tag, elems); err != nil {
				return nil, nil, err
			}
		}
		child := elems[idx]
		rest := next[1:]
		if len(rest) == 0 {
			return nil, nil, serr.New(serr.ParseFailed, "path: path ends on an index segment, expected a trailing field")
		}
		return r.descend(child, rest)
	}

	child, ok := u.GetUnit(f.Tag)
	if !ok {
		if !r.autoCreate {
			return nil, nil, serr.New(serr.NotFound, "path: field %q is unset", head.Field)
		}
		child = dataunit.New(f.NestedSchema)
		if err := u.SetUnit(f.Tag, child); err != nil {
			return nil, nil, err
		}
	}
	return r.descend(child, next)
}

// Get reads the value addressed by p, descending through nested and
// repeated-nested unit fields without creating anything missing along
// the way.
func Get(u *dataunit.Unit, p Path) (any, bool, error) {
	owner, f, err := (resolver{autoCreate: false}).descend(u, p)
	if err != nil {
		return nil, false, err
	}
	if f.Type == dataunit.TypeUnit {
		if f.Repeated {
			v, ok := owner.GetRepeatedUnit(f.Tag)
			return v, ok, nil
		}
		v, ok := owner.GetUnit(f.Tag)
		return v, ok, nil
	}
	if f.Repeated {
		v, ok := owner.GetRepeated(f.Tag)
		return v, ok, nil
	}
	v, ok := owner.Get(f.Tag)
	return v, ok, nil
}

// Set assigns a scalar value at p, auto-creating intermediate nested
// units (and, for repeated-nested steps, default-constructing elements
// up to the addressed index) as it descends.
func Set(u *dataunit.Unit, p Path, v any) error {
	owner, f, err := (resolver{autoCreate: true}).descend(u, p)
	if err != nil {
		return err
	}
	if f.Repeated {
		return serr.New(serr.InvalidType, "path: field %q is repeated, use Append/Resize", f.Name)
	}
	if f.Type == dataunit.TypeUnit {
		nested, ok := v.(*dataunit.Unit)
		if !ok {
			return serr.New(serr.InvalidType, "path: field %q expects a *dataunit.Unit value", f.Name)
		}
		return owner.SetUnit(f.Tag, nested)
	}
	return owner.Set(f.Tag, v)
}

// Unset clears the field addressed by p. A missing intermediate unit
// along the way makes this a silent no-op, since there is nothing to
// unset.
func Unset(u *dataunit.Unit, p Path) error {
	owner, f, err := (resolver{autoCreate: false}).descend(u, p)
	if err != nil {
		if serr.Is(err, serr.NotFound) {
			return nil
		}
		return err
	}
	owner.Unset(f.Tag)
	return nil
}

// Append adds v to the end of the repeated field addressed by p,
// auto-creating intermediate nested units as needed. Applied to a
// non-repeated field it is a no-op.
func Append(u *dataunit.Unit, p Path, v any) error {
	owner, f, err := (resolver{autoCreate: true}).descend(u, p)
	if err != nil {
		return err
	}
	if !f.Repeated {
		return nil
	}
	if f.Type == dataunit.TypeUnit {
		nested, ok := v.(*dataunit.Unit)
		if !ok {
			return serr.New(serr.InvalidType, "path: field %q expects a *dataunit.Unit element", f.Name)
		}
		elems, _ := owner.GetRepeatedUnit(f.Tag)
		return owner.SetRepeatedUnit(f.Tag, append(elems, nested))
	}
	return owner.AppendScalar(f.Tag, v)
}

// Resize grows or truncates the repeated scalar field addressed by p
// to exactly n elements, default-constructing (zero value fill) any
// newly added slots. A no-op on non-repeated fields.
func Resize(u *dataunit.Unit, p Path, n int) error {
	owner, f, err := (resolver{autoCreate: true}).descend(u, p)
	if err != nil {
		return err
	}
	if !f.Repeated || n < 0 {
		return nil
	}
	if f.Type == dataunit.TypeUnit {
		elems, _ := owner.GetRepeatedUnit(f.Tag)
		switch {
		case n <= len(elems):
			return owner.SetRepeatedUnit(f.Tag, elems[:n])
		default:
			for len(elems) < n {
				elems = append(elems, dataunit.New(f.NestedSchema))
			}
			return owner.SetRepeatedUnit(f.Tag, elems)
		}
	}
	elems, _ := owner.GetRepeated(f.Tag)
	switch {
	case n <= len(elems):
		return owner.SetRepeated(f.Tag, elems[:n])
	default:
		zero := zeroValue(f.Type)
		for len(elems) < n {
			elems = append(elems, zero)
		}
		return owner.SetRepeated(f.Tag, elems)
	}
}

// Prepend inserts v at the front of the repeated field addressed by p,
// auto-creating intermediate nested units as needed. Applied to a
// non-repeated field it is a no-op.
func Prepend(u *dataunit.Unit, p Path, v any) error {
	owner, f, err := (resolver{autoCreate: true}).descend(u, p)
	if err != nil {
		return err
	}
	if !f.Repeated {
		return nil
	}
	if f.Type == dataunit.TypeUnit {
		nested, ok := v.(*dataunit.Unit)
		if !ok {
			return serr.New(serr.InvalidType, "path: field %q expects a *dataunit.Unit element", f.Name)
		}
		elems, _ := owner.GetRepeatedUnit(f.Tag)
		return owner.SetRepeatedUnit(f.Tag, append([]*dataunit.Unit{nested}, elems...))
	}
	return owner.PrependScalar(f.Tag, v)
}

// Pop removes and returns the last element of the repeated scalar field
// addressed by p. A no-op (returning nil, false) on a non-repeated or
// empty field.
func Pop(u *dataunit.Unit, p Path) (any, bool, error) {
	owner, f, err := (resolver{autoCreate: false}).descend(u, p)
	if err != nil {
		if serr.Is(err, serr.NotFound) {
			return nil, false, nil
		}
		return nil, false, err
	}
	if !f.Repeated || f.Type == dataunit.TypeUnit {
		return nil, false, nil
	}
	elems, ok := owner.GetRepeated(f.Tag)
	if !ok || len(elems) == 0 {
		return nil, false, nil
	}
	v, err := owner.PopScalar(f.Tag)
	if err != nil {
		return nil, false, err
	}
	return v, true, nil
}

// EraseElement removes the element at index from the repeated scalar
// field addressed by p. A no-op on a non-repeated field or an index
// out of range.
func EraseElement(u *dataunit.Unit, p Path, index int) error {
	owner, f, err := (resolver{autoCreate: false}).descend(u, p)
	if err != nil {
		if serr.Is(err, serr.NotFound) {
			return nil
		}
		return err
	}
	if !f.Repeated || f.Type == dataunit.TypeUnit {
		return nil
	}
	elems, ok := owner.GetRepeated(f.Tag)
	if !ok || index < 0 || index >= len(elems) {
		return nil
	}
	return owner.EraseElement(f.Tag, index)
}

// Increment adds delta to the integer scalar field addressed by p,
// auto-creating intermediate nested units as needed. Applied to a
// repeated or non-integer field, it returns the same error
// *dataunit.Unit.Increment would.
func Increment(u *dataunit.Unit, p Path, delta int64) error {
	owner, f, err := (resolver{autoCreate: true}).descend(u, p)
	if err != nil {
		return err
	}
	return owner.Increment(f.Tag, delta)
}

// Reserve is a capacity hint. Go slices grow automatically, so unlike
// the arena-backed original there is no distinct reservation step;
// Reserve is kept as a named no-op so callers porting update-request
// sequences don't need a special case for it.
func Reserve(*dataunit.Unit, Path, int) error { return nil }

// Clear empties the repeated field addressed by p; afterwards Get
// reports the field as unset (ok=false). A no-op on non-repeated fields.
func Clear(u *dataunit.Unit, p Path) error {
	owner, f, err := (resolver{autoCreate: false}).descend(u, p)
	if err != nil {
		if serr.Is(err, serr.NotFound) {
			return nil
		}
		return err
	}
	if !f.Repeated {
		return nil
	}
	if f.Type == dataunit.TypeUnit {
		return owner.SetRepeatedUnit(f.Tag, nil)
	}
	return owner.SetRepeated(f.Tag, nil)
}

func zeroValue(t dataunit.ValueType) any {
	switch t {
	case dataunit.TypeBool:
		return false
	case dataunit.TypeInt8:
		return int8(0)
	case dataunit.TypeInt16:
		return int16(0)
	case dataunit.TypeInt32:
		return int32(0)
	case dataunit.TypeInt64:
		return int64(0)
	case dataunit.TypeUint8:
		return uint8(0)
	case dataunit.TypeUint16:
		return uint16(0)
	case dataunit.TypeUint32:
		return uint32(0)
	case dataunit.TypeUint64:
		return uint64(0)
	case dataunit.TypeFloat32:
		return float32(0)
	case dataunit.TypeFloat64:
		return float64(0)
	case dataunit.TypeString, dataunit.TypeFixedString:
		return ""
	case dataunit.TypeBytes:
		return []byte{}
	case dataunit.TypeEnum:
		return int32(0)
	case dataunit.TypeObjectID:
		return objectid.Nil
	case dataunit.TypeDate:
		return dataunit.Date{}
	case dataunit.TypeTime:
		return dataunit.Time{}
	case dataunit.TypeDateTime:
		return dataunit.DateTime{}
	case dataunit.TypeDateRange:
		return dataunit.DateRange{}
	default:
		return nil
	}
}
