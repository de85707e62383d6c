package indexkey

import (
	"sort"

	"github.com/cuemby/strata/pkg/dataunit"
	"github.com/cuemby/strata/pkg/serr"
)

// Op is a predicate comparison operator.
type Op int

const (
	OpEq Op = iota
	OpNeq
	OpGt
	OpGte
	OpLt
	OpLte
	OpIn
	OpNin
)

// Interval is the operand shape for a between-style range predicate.
type Interval struct {
	Low, High any
}

// Predicate constrains one field of an index. Operand is a scalar for
// Eq/Neq/Gt/Gte/Lt/Lte, an Interval for a range expressed as a single
// operand, or a []any for In/Nin.
type Predicate struct {
	Field   string
	Op      Op
	Operand any
}

// IndexSpec describes one secondary index's ordered fields, in the
// order they appear in the composite key.
type IndexSpec struct {
	Name   string
	Fields []dataunit.FieldDescriptor
}

// NewIndexSpec builds an IndexSpec by looking fieldNames up in schema,
// in the order given — that order becomes the composite key's field
// order. Nested-unit and repeated fields can't be key parts and are
// rejected: indexes are declared over scalar fields only.
func NewIndexSpec(name string, schema *dataunit.Schema, fieldNames ...string) (*IndexSpec, error) {
	spec := &IndexSpec{Name: name, Fields: make([]dataunit.FieldDescriptor, 0, len(fieldNames))}
	for _, fn := range fieldNames {
		f, ok := schema.ByName(fn)
		if !ok {
			return nil, serr.New(serr.ValidationFailed, "indexkey: schema %q has no field %q for index %q", schema.Name, fn, name)
		}
		if f.Repeated || f.Type == dataunit.TypeUnit {
			return nil, serr.New(serr.ValidationFailed, "indexkey: field %q cannot be an index key part (repeated or nested unit)", fn)
		}
		spec.Fields = append(spec.Fields, *f)
	}
	return spec, nil
}

// Range is a single contiguous [Low, High] scan over a table, either
// bound expressed as an inclusive key or left open.
type Range struct {
	Low, High         Key
	LowInclusive      bool
	HighInclusive     bool
	// HighOpen marks that High has no finite bound (scan to table end).
	HighOpen bool
}

// Plan is the result of decomposing a predicate set against an index:
// zero or more disjoint key ranges to scan (unioned, e.g. from an "in"
// operand), plus any predicates that couldn't be expressed as a key
// range and must be re-checked against each candidate record's fields.
type Plan struct {
	Ranges   []Range
	Residual []Predicate
}

// Decompose builds a scan Plan for spec given preds. preds need not
// cover every field, and may be given in any order; Decompose matches
// them against spec.Fields by name.
//
// Algorithm (mirrors the RocksDB plugin's key-prefix walk): fields are
// consumed in index order. Consecutive leading Eq predicates become a
// fixed key prefix shared by every output range. The first
// non-equality predicate on the next field determines the range
// bound(s) for that field (Gt/Gte/Lt/Lte narrow one side; In/Eq-set
// produce one range per value; Interval narrows both sides). Every
// predicate after that point — and every Neq/Nin anywhere — cannot be
// expressed as a contiguous key range and is returned as a residual
// filter for the caller to apply to each scanned record.
func Decompose(spec *IndexSpec, preds []Predicate) (*Plan, error) {
	byField := make(map[string]Predicate, len(preds))
	for _, p := range preds {
		if _, dup := byField[p.Field]; dup {
			return nil, serr.New(serr.ValidationFailed, "indexkey: more than one predicate on field %q", p.Field)
		}
		byField[p.Field] = p
	}

	var prefix []TypedValue
	var boundField *dataunit.FieldDescriptor
	var boundPred Predicate
	consumed := map[string]bool{}

	for i := range spec.Fields {
		f := &spec.Fields[i]
		p, ok := byField[f.Name]
		if !ok {
			break // no constraint on this field or anything after it in this pass
		}
		if p.Op == OpEq {
			prefix = append(prefix, TypedValue{Type: f.Type, Value: p.Operand})
			consumed[f.Name] = true
			continue
		}
		if p.Op == OpNeq || p.Op == OpNin {
			// Never a boundable predicate: leave it (and every field
			// after it) out of the key range entirely, so it falls
			// through to the residual pass below unconsumed.
			break
		}
		boundField = f
		boundPred = p
		consumed[f.Name] = true
		break
	}

	plan := &Plan{}
	for _, p := range preds {
		if !consumed[p.Field] || p.Op == OpNeq || p.Op == OpNin {
			plan.Residual = append(plan.Residual, p)
		}
	}
	sort.Slice(plan.Residual, func(i, j int) bool { return plan.Residual[i].Field < plan.Residual[j].Field })

	if boundField == nil {
		prefixKey, err := Prefix(prefix)
		if err != nil {
			return nil, err
		}
		upper, ok := PrefixUpperBound(prefixKey)
		r := Range{Low: prefixKey, LowInclusive: true}
		if ok {
			r.High, r.HighInclusive = upper, false
		} else {
			r.HighOpen = true
		}
		plan.Ranges = append(plan.Ranges, r)
		return plan, nil
	}

	ranges, err := boundRanges(prefix, *boundField, boundPred)
	if err != nil {
		return nil, err
	}
	plan.Ranges = ranges
	return plan, nil
}

func boundRanges(prefix []TypedValue, f dataunit.FieldDescriptor, p Predicate) ([]Range, error) {
	switch p.Op {
	case OpEq:
		key, err := Prefix(append(append([]TypedValue(nil), prefix...), TypedValue{Type: f.Type, Value: p.Operand}))
		if err != nil {
			return nil, err
		}
		upper, ok := PrefixUpperBound(key)
		r := Range{Low: key, LowInclusive: true}
		if ok {
			r.High, r.HighInclusive = upper, false
		} else {
			r.HighOpen = true
		}
		return []Range{r}, nil

	case OpIn:
		values, ok := p.Operand.([]any)
		if !ok {
			return nil, serr.New(serr.ValidationFailed, "indexkey: %q: in operand must be a slice", p.Field)
		}
		ranges := make([]Range, 0, len(values))
		for _, v := range values {
			parts := append(append([]TypedValue(nil), prefix...), TypedValue{Type: f.Type, Value: v})
			key, err := Prefix(parts)
			if err != nil {
				return nil, err
			}
			upper, okUp := PrefixUpperBound(key)
			r := Range{Low: key, LowInclusive: true}
			if okUp {
				r.High, r.HighInclusive = upper, false
			} else {
				r.HighOpen = true
			}
			ranges = append(ranges, r)
		}
		return ranges, nil

	case OpGt, OpGte, OpLt, OpLte:
		return scalarBoundRange(prefix, f, p.Op, p.Operand)

	default:
		if interval, ok := p.Operand.(Interval); ok {
			return intervalRange(prefix, f, interval)
		}
		return nil, serr.New(serr.Unsupported, "indexkey: operator %d not supported as a bounding predicate", p.Op)
	}
}

func scalarBoundRange(prefix []TypedValue, f dataunit.FieldDescriptor, op Op, v any) ([]Range, error) {
	prefixKey, err := Prefix(prefix)
	if err != nil {
		return nil, err
	}
	valKey, err := Prefix(append(append([]TypedValue(nil), prefix...), TypedValue{Type: f.Type, Value: v}))
	if err != nil {
		return nil, err
	}
	switch op {
	case OpGt:
		// Keys for the value itself extend valKey with the object id,
		// so the scan starts past all of them.
		low, _ := PrefixUpperBound(valKey)
		upper, ok := PrefixUpperBound(prefixKey)
		r := Range{Low: low, LowInclusive: true}
		if ok {
			r.High, r.HighInclusive = upper, false
		} else {
			r.HighOpen = true
		}
		return []Range{r}, nil
	case OpGte:
		upper, ok := PrefixUpperBound(prefixKey)
		r := Range{Low: valKey, LowInclusive: true}
		if ok {
			r.High, r.HighInclusive = upper, false
		} else {
			r.HighOpen = true
		}
		return []Range{r}, nil
	case OpLt:
		return []Range{{Low: prefixKey, LowInclusive: true, High: valKey, HighInclusive: false}}, nil
	case OpLte:
		upper, _ := PrefixUpperBound(valKey)
		return []Range{{Low: prefixKey, LowInclusive: true, High: upper, HighInclusive: false}}, nil
	default:
		return nil, serr.New(serr.Unsupported, "indexkey: op %d is not a scalar bound", op)
	}
}

func intervalRange(prefix []TypedValue, f dataunit.FieldDescriptor, iv Interval) ([]Range, error) {
	lowKey, err := Prefix(append(append([]TypedValue(nil), prefix...), TypedValue{Type: f.Type, Value: iv.Low}))
	if err != nil {
		return nil, err
	}
	highKey, err := Prefix(append(append([]TypedValue(nil), prefix...), TypedValue{Type: f.Type, Value: iv.High}))
	if err != nil {
		return nil, err
	}
	upper, _ := PrefixUpperBound(highKey)
	return []Range{{Low: lowKey, LowInclusive: true, High: upper, HighInclusive: false}}, nil
}
