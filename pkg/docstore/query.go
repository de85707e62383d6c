package docstore

import (
	"bytes"
	"context"
	"time"

	"github.com/cuemby/strata/pkg/dataunit"
	"github.com/cuemby/strata/pkg/dataunit/objectid"
	"github.com/cuemby/strata/pkg/dataunit/wire"
	"github.com/cuemby/strata/pkg/docstore/updatewire"
	"github.com/cuemby/strata/pkg/indexkey"
	"github.com/cuemby/strata/pkg/kvstore"
	"github.com/cuemby/strata/pkg/serr"
)

// Query names the index to scan and the predicates to decompose
// against it.
type Query struct {
	Index string
	Predicates []indexkey.Predicate
	Limit int // 0 means unbounded

	// TimePointFilter, if non-zero, excludes documents whose model
	// declares a TTLField that is set and already expired as of this
	// instant — an "as of" filter evaluated at query time, independent
	// of the backend's own asynchronous TTL sweep (which may not have
	// run yet).
	TimePointFilter time.Time
}

// expired reports whether u's model TTL field is set and before
// q.TimePointFilter.
func (q Query) expired(m *Model, u *dataunit.Unit) bool {
	if q.TimePointFilter.IsZero() || m.TTLField == "" {
		return false
	}
	f, ok := m.Schema.ByName(m.TTLField)
	if !ok {
		return false
	}
	v, has := u.Get(f.Tag)
	if !has {
		return false
	}
	dt := v.(dataunit.DateTime)
	return dt.Unix != 0 && time.Unix(dt.Unix, 0).Before(q.TimePointFilter)
}

// planFor decomposes q against modelName's named index, scoped to
// topic via the synthetic leading topicField (see topicScopedSpec):
// every range planFor returns is already topic-bounded, so scanRange
// never has to cross into another topic's key space.
func planFor(m *Model, topic string, q Query) (*indexkey.IndexSpec, *indexkey.Plan, error) {
	idx, ok := m.Index(q.Index)
	if !ok {
		return nil, nil, serr.New(serr.NotFound, "docstore: model %q has no index %q", m.Name, q.Index)
	}
	spec := topicScopedSpec(idx)
	preds := make([]indexkey.Predicate, 0, len(q.Predicates)+1)
	preds = append(preds, topicPredicate(topic))
	preds = append(preds, q.Predicates...)
	plan, err := indexkey.Decompose(spec, preds)
	if err != nil {
		return nil, nil, err
	}
	return idx, plan, nil
}

// Find decomposes q against model's named index into a Plan, scans the
// resulting key ranges in the given partition and topic, applies q's
// residual (non-key-range) predicates and TimePointFilter in memory,
// and returns the matching documents in index order.
func (s *Store) Find(ctx context.Context, modelName, topic, partition string, q Query) ([]*dataunit.Unit, error) {
	m, err := s.model(modelName)
	if err != nil {
		return nil, err
	}
	idx, plan, err := planFor(m, topic, q)
	if err != nil {
		return nil, err
	}

	var out []*dataunit.Unit
	err = s.db.View(ctx, func(tx kvstore.Tx) error {
		primary := primaryBucket(m.Name, partition)
		index := indexBucket(m.Name, partition, idx.Name)
		c, err := tx.Cursor(index)
		if err != nil {
			return err
		}
		defer c.Close()

		for _, r := range plan.Ranges {
			if err := scanRange(c, r, func(idKey []byte) (bool, error) {
				id, err := objectid.FromBytes(idKey)
				if err != nil {
					return true, err
				}
				primaryKey, err := primaryKeyBytes(topic, id)
				if err != nil {
					return true, err
				}
				data, found, err := tx.Get(primary, primaryKey)
				if err != nil {
					return true, err
				}
				if !found {
					return true, nil // index entry outlived its document (race with a concurrent delete)
				}
				u, err := wire.Parse(m.Schema, data)
				if err != nil {
					return true, err
				}
				if !matchesResidual(u, plan.Residual) || q.expired(m, u) {
					return true, nil
				}
				out = append(out, u)
				if q.Limit > 0 && len(out) >= q.Limit {
					return false, nil
				}
				return true, nil
			}); err != nil {
				return err
			}
			if q.Limit > 0 && len(out) >= q.Limit {
				break
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Row pairs a matched document with its primary key, for callers that
// need to Update/Delete what Find found (Find alone only returns
// parsed documents since most callers address records by a business
// key, not the generated object id).
type Row struct {
	ID objectid.ID
	Doc *dataunit.Unit
}

// FindRows is Find but also returns each match's object id, for
// callers (the producer queue's dequeue and coalesce lookups) that
// need to Update or Delete what they found.
func (s *Store) FindRows(ctx context.Context, modelName, topic, partition string, q Query) ([]Row, error) {
	m, err := s.model(modelName)
	if err != nil {
		return nil, err
	}
	idx, plan, err := planFor(m, topic, q)
	if err != nil {
		return nil, err
	}

	var out []Row
	err = s.db.View(ctx, func(tx kvstore.Tx) error {
		primary := primaryBucket(m.Name, partition)
		index := indexBucket(m.Name, partition, idx.Name)
		c, err := tx.Cursor(index)
		if err != nil {
			return err
		}
		defer c.Close()

		for _, r := range plan.Ranges {
			if err := scanRange(c, r, func(idKey []byte) (bool, error) {
				id, err := objectid.FromBytes(idKey)
				if err != nil {
					return true, err
				}
				primaryKey, err := primaryKeyBytes(topic, id)
				if err != nil {
					return true, err
				}
				data, found, err := tx.Get(primary, primaryKey)
				if err != nil {
					return true, err
				}
				if !found {
					return true, nil
				}
				u, err := wire.Parse(m.Schema, data)
				if err != nil {
					return true, err
				}
				if !matchesResidual(u, plan.Residual) || q.expired(m, u) {
					return true, nil
				}
				out = append(out, Row{ID: id, Doc: u})
				if q.Limit > 0 && len(out) >= q.Limit {
					return false, nil
				}
				return true, nil
			}); err != nil {
				return err
			}
			if q.Limit > 0 && len(out) >= q.Limit {
				break
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// FindOne is Find narrowed to its first match, the find_one operation.
// It forces Limit to 1 regardless of what the caller set.
func (s *Store) FindOne(ctx context.Context, modelName, topic, partition string, q Query) (*dataunit.Unit, bool, error) {
	q.Limit = 1
	docs, err := s.Find(ctx, modelName, topic, partition, q)
	if err != nil {
		return nil, false, err
	}
	if len(docs) == 0 {
		return nil, false, nil
	}
	return docs[0], true, nil
}

// FindAll is Find over an unpartitioned model's single partition, the
// find_all operation.
func (s *Store) FindAll(ctx context.Context, modelName, topic string, q Query) ([]*dataunit.Unit, error) {
	return s.Find(ctx, modelName, topic, defaultPartitionKey, q)
}

// FindAllPartitioned runs q against every partition named, concatenating
// matches in partition order — find_all_partitioned, the day-partitioned
// counterpart to FindAll. Callers typically supply ListDatePartitions'
// result, optionally narrowed to a date range first.
func (s *Store) FindAllPartitioned(ctx context.Context, modelName, topic string, partitions []string, q Query) ([]*dataunit.Unit, error) {
	var out []*dataunit.Unit
	for _, part := range partitions {
		docs, err := s.Find(ctx, modelName, topic, part, q)
		if err != nil {
			return nil, err
		}
		out = append(out, docs...)
		if q.Limit > 0 && len(out) >= q.Limit {
			return out[:q.Limit], nil
		}
	}
	return out, nil
}

// DeleteMany deletes every document q matches in one transaction,
// returning the count removed — the delete_many operation.
func (s *Store) DeleteMany(ctx context.Context, modelName, topic, partition string, q Query) (int, error) {
	rows, err := s.FindRows(ctx, modelName, topic, partition, q)
	if err != nil {
		return 0, err
	}
	if len(rows) == 0 {
		return 0, nil
	}
	err = s.Transaction(ctx, func(tx *Tx) error {
		for _, r := range rows {
			if err := tx.Delete(modelName, topic, partition, r.ID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return len(rows), nil
}

// UpdateMany applies req to every document q matches, returning the
// count updated — the update_many operation.
func (s *Store) UpdateMany(ctx context.Context, modelName, topic, partition string, q Query, req updatewire.Request) (int, error) {
	rows, err := s.FindRows(ctx, modelName, topic, partition, q)
	if err != nil {
		return 0, err
	}
	for _, r := range rows {
		if _, _, err := s.ApplyUpdate(ctx, modelName, topic, partition, r.ID, req); err != nil {
			return 0, err
		}
	}
	return len(rows), nil
}

// FindUpdateCreate finds q's first match and applies req to it; if
// nothing matches, it calls create to build a fresh document and
// inserts that instead — the find_update_create (upsert) operation.
// created reports which branch ran.
func (s *Store) FindUpdateCreate(ctx context.Context, modelName, topic, partition string, q Query, req updatewire.Request, create func() (*dataunit.Unit, error)) (id objectid.ID, created bool, err error) {
	row, found, err := func() (Row, bool, error) {
		q.Limit = 1
		rows, err := s.FindRows(ctx, modelName, topic, partition, q)
		if err != nil || len(rows) == 0 {
			return Row{}, false, err
		}
		return rows[0], true, nil
	}()
	if err != nil {
		return objectid.Nil, false, err
	}
	if found {
		if _, _, err := s.ApplyUpdate(ctx, modelName, topic, partition, row.ID, req); err != nil {
			return objectid.Nil, false, err
		}
		return row.ID, false, nil
	}
	u, err := create()
	if err != nil {
		return objectid.Nil, false, err
	}
	if err := req.Apply(u); err != nil {
		return objectid.Nil, false, err
	}
	id, err = s.Create(ctx, modelName, topic, u)
	if err != nil {
		return objectid.Nil, false, err
	}
	return id, true, nil
}

// Count is Find without materializing matched documents' residual
// filter requires parsing the record to check, so Count still reads
// the primary bucket when plan.Residual is non-empty or a
// TimePointFilter is set; when neither applies, Count only walks the
// index and never touches the primary bucket.
func (s *Store) Count(ctx context.Context, modelName, topic, partition string, q Query) (int, error) {
	m, err := s.model(modelName)
	if err != nil {
		return 0, err
	}
	idx, plan, err := planFor(m, topic, q)
	if err != nil {
		return 0, err
	}
	needsRecord := len(plan.Residual) > 0 || !q.TimePointFilter.IsZero()

	n := 0
	err = s.db.View(ctx, func(tx kvstore.Tx) error {
		primary := primaryBucket(m.Name, partition)
		index := indexBucket(m.Name, partition, idx.Name)
		c, err := tx.Cursor(index)
		if err != nil {
			return err
		}
		defer c.Close()

		for _, r := range plan.Ranges {
			if err := scanRange(c, r, func(idKey []byte) (bool, error) {
				if needsRecord {
					id, err := objectid.FromBytes(idKey)
					if err != nil {
						return true, err
					}
					primaryKey, err := primaryKeyBytes(topic, id)
					if err != nil {
						return true, err
					}
					data, found, err := tx.Get(primary, primaryKey)
					if err != nil {
						return true, err
					}
					if !found {
						return true, nil
					}
					u, err := wire.Parse(m.Schema, data)
					if err != nil {
						return true, err
					}
					if !matchesResidual(u, plan.Residual) || q.expired(m, u) {
						return true, nil
					}
				}
				n++
				return true, nil
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return n, nil
}

// scanRange walks c from r.Low forward, invoking visit(indexValue) for
// each entry while the key stays within r's upper bound. visit returns
// false to stop the scan early (used for Limit).
func scanRange(c kvstore.Cursor, r indexkey.Range, visit func(value []byte) (bool, error)) error {
	k, v, err := c.Seek(r.Low)
	if err != nil {
		return err
	}
	if k != nil && !r.LowInclusive && bytes.Equal(k, r.Low) {
		k, v, err = c.Next()
		if err != nil {
			return err
		}
	}
	for k != nil {
		if !r.HighOpen {
			cmp := bytes.Compare(k, r.High)
			if cmp > 0 || (cmp == 0 && !r.HighInclusive) {
				break
			}
		}
		cont, err := visit(v)
		if err != nil {
			return err
		}
		if !cont {
			return nil
		}
		k, v, err = c.Next()
		if err != nil {
			return err
		}
	}
	return nil
}

// matchesResidual re-checks predicates that couldn't be folded into
// the key-range scan.
func matchesResidual(u *dataunit.Unit, preds []indexkey.Predicate) bool {
	for _, p := range preds {
		f, ok := u.Schema().ByName(p.Field)
		if !ok {
			return false
		}
		v, has := u.Get(f.Tag)
		if !has {
			v = zeroValue(f.Type)
		}
		if !evalPredicate(v, p) {
			return false
		}
	}
	return true
}

func evalPredicate(v any, p indexkey.Predicate) bool {
	switch p.Op {
	case indexkey.OpEq:
		return compareValues(v, p.Operand) == 0
	case indexkey.OpNeq:
		return compareValues(v, p.Operand) != 0
	case indexkey.OpGt:
		return compareValues(v, p.Operand) > 0
	case indexkey.OpGte:
		return compareValues(v, p.Operand) >= 0
	case indexkey.OpLt:
		return compareValues(v, p.Operand) < 0
	case indexkey.OpLte:
		return compareValues(v, p.Operand) <= 0
	case indexkey.OpIn:
		vals, _ := p.Operand.([]any)
		for _, want := range vals {
			if compareValues(v, want) == 0 {
				return true
			}
		}
		return false
	case indexkey.OpNin:
		vals, _ := p.Operand.([]any)
		for _, want := range vals {
			if compareValues(v, want) == 0 {
				return false
			}
		}
		return true
	default:
		if iv, ok := p.Operand.(indexkey.Interval); ok {
			return compareValues(v, iv.Low) >= 0 && compareValues(v, iv.High) <= 0
		}
		return false
	}
}

// compareValues compares two field values of the same underlying type,
// returning <0, 0, >0. Only the scalar types usable as predicate
// operands need to be handled here.
func compareValues(a, b any) int {
	switch av := a.(type) {
	case int8:
		return cmpInt(int64(av), int64(b.(int8)))
	case int16:
		return cmpInt(int64(av), int64(b.(int16)))
	case int32:
		return cmpInt(int64(av), int64(b.(int32)))
	case int64:
		return cmpInt(av, b.(int64))
	case uint8:
		return cmpUint(uint64(av), uint64(b.(uint8)))
	case uint16:
		return cmpUint(uint64(av), uint64(b.(uint16)))
	case uint32:
		return cmpUint(uint64(av), uint64(b.(uint32)))
	case uint64:
		return cmpUint(av, b.(uint64))
	case float32:
		return cmpFloat(float64(av), float64(b.(float32)))
	case float64:
		return cmpFloat(av, b.(float64))
	case string:
		bv := b.(string)
		switch {
		case av < bv:
			return -1
		case av > bv:
			return 1
		default:
			return 0
		}
	case bool:
		bv := b.(bool)
		if av == bv {
			return 0
		}
		if !av && bv {
			return -1
		}
		return 1
	case dataunit.DateTime:
		return cmpInt(av.Unix, b.(dataunit.DateTime).Unix)
	default:
		return 0
	}
}

func cmpInt(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func cmpUint(a, b uint64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func cmpFloat(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}
