package docstore

import (
	"context"
	"encoding/binary"
	"time"

	"github.com/cuemby/strata/pkg/dataunit"
	"github.com/cuemby/strata/pkg/dataunit/objectid"
	"github.com/cuemby/strata/pkg/dataunit/wire"
	"github.com/cuemby/strata/pkg/docstore/updatewire"
	"github.com/cuemby/strata/pkg/indexkey"
	"github.com/cuemby/strata/pkg/kvstore"
	"github.com/cuemby/strata/pkg/metrics"
	"github.com/cuemby/strata/pkg/serr"
	"github.com/cuemby/strata/pkg/strlog"
)

// observe records a document operation's outcome and latency.
func observe(modelName, operation string, timer *metrics.Timer, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	metrics.DocumentOperationsTotal.WithLabelValues(modelName, operation, status).Inc()
	timer.ObserveDurationVec(metrics.DocumentOperationDuration, modelName, operation)
}

// TTLRegistrar is implemented by kvstore backends that support
// expiring keys outside of the document's own fields (pkg/kvstore/boltkv.Store
// does). Backends that don't implement it simply never purge TTL'd
// documents automatically — callers still read the TTL field on Find
// and can filter expired-but-not-yet-swept documents themselves.
type TTLRegistrar interface {
	ExpireAt(table string, key []byte, t time.Time)
	CancelExpiry(table string, key []byte)
}

// Store is a schema-driven document store over one kvstore.DB. Every
// document lives under a caller-supplied topic: the primary key and
// every secondary index key are prefixed with topic, so two producers
// posting to different topics never share a key range even within the
// same model and partition.
type Store struct {
	db kvstore.DB
	ttl TTLRegistrar // nil if db doesn't support registered expiry
	log strlog.Logger
	models map[string]*Model
}

// New creates a Store over db. If db also implements TTLRegistrar,
// Store registers TTL'd writes with it automatically.
func New(db kvstore.DB, opts ...Option) *Store {
	s := &Store{db: db, log: strlog.Nop(), models: map[string]*Model{}}
	if reg, ok := db.(TTLRegistrar); ok {
		s.ttl = reg
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Option configures a Store at construction.
type Option func(*Store)

// WithLogger attaches a logger for diagnostics.
func WithLogger(l strlog.Logger) Option { return func(s *Store) { s.log = l } }

// EnsureModel validates m and provisions its default partition's
// bucket set (primary, every secondary index, and the topic
// registry), plus the model-wide date-partition registry.
func (s *Store) EnsureModel(ctx context.Context, m *Model) error {
	if err := m.Validate(); err != nil {
		return err
	}
	s.models[m.Name] = m
	if err := s.db.EnsureBucket(ctx, datePartitionsBucket(m.Name)); err != nil {
		return err
	}
	if m.Partition != PartitionNone {
		return nil // partitions are provisioned lazily by first write, see ensurePartitionBuckets
	}
	return s.ensurePartitionBuckets(ctx, m, defaultPartitionKey)
}

func (s *Store) ensurePartitionBuckets(ctx context.Context, m *Model, partition string) error {
	if err := s.db.EnsureBucket(ctx, primaryBucket(m.Name, partition)); err != nil {
		return err
	}
	if err := s.db.EnsureBucket(ctx, topicsBucket(m.Name, partition)); err != nil {
		return err
	}
	for _, idx := range m.Indexes {
		if err := s.db.EnsureBucket(ctx, indexBucket(m.Name, partition, idx.Name)); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) model(name string) (*Model, error) {
	m, ok := s.models[name]
	if !ok {
		return nil, serr.New(serr.NotFound, "docstore: model %q is not registered, call EnsureModel first", name)
	}
	return m, nil
}

// topicField is a synthetic leading field prepended to every model's
// key layout, ahead of its declared primary/secondary key parts. It
// never appears in any schema; Decompose only ever sees it bound by a
// single Eq predicate (topicPredicate), so it always collapses into
// the fixed key prefix and never leaks into a residual filter.
var topicField = dataunit.FieldDescriptor{Name: "__topic", Type: dataunit.TypeString}

func topicPredicate(topic string) indexkey.Predicate {
	return indexkey.Predicate{Field: topicField.Name, Op: indexkey.OpEq, Operand: topic}
}

// topicScopedSpec prepends topicField to idx's fields, producing the
// IndexSpec Decompose actually plans against.
func topicScopedSpec(idx *indexkey.IndexSpec) *indexkey.IndexSpec {
	fields := make([]dataunit.FieldDescriptor, 0, len(idx.Fields)+1)
	fields = append(fields, topicField)
	fields = append(fields, idx.Fields...)
	return &indexkey.IndexSpec{Name: idx.Name, Fields: fields}
}

// primaryKeyBytes builds the topic-prefixed primary key for id,
// reusing indexkey's sortable encoding rather than a bespoke layout.
func primaryKeyBytes(topic string, id objectid.ID) (indexkey.Key, error) {
	return indexkey.Encode([]indexkey.TypedValue{{Type: dataunit.TypeString, Value: topic}}, id)
}

// Create assigns a fresh object id (if u doesn't already carry a
// primary key field — this module treats the object id as always
// generated, never user-supplied), validates u against its schema,
// and writes it plus every secondary index entry, topic-scoped, in
// one transaction.
func (s *Store) Create(ctx context.Context, modelName, topic string, u *dataunit.Unit) (id objectid.ID, err error) {
	timer := metrics.NewTimer()
	defer func() { observe(modelName, "create", timer, err) }()

	m, err := s.model(modelName)
	if err != nil {
		return objectid.Nil, err
	}
	if err := u.Validate(); err != nil {
		return objectid.Nil, err
	}
	id = objectid.New()
	part, err := partitionKey(m, u)
	if err != nil {
		return objectid.Nil, err
	}
	if err := s.ensurePartitionBuckets(ctx, m, part); err != nil {
		return objectid.Nil, err
	}
	key, err := primaryKeyBytes(topic, id)
	if err != nil {
		return objectid.Nil, err
	}
	data, err := wire.Serialize(u)
	if err != nil {
		return objectid.Nil, serr.Wrap(serr.SerializeFailed, err, "docstore: serializing %q document", modelName)
	}

	err = s.withRetry(ctx, func(tx kvstore.RwTx) error {
		if err := tx.Put(primaryBucket(m.Name, part), key, data); err != nil {
			return serr.Wrap(serr.BackendWrite, err, "docstore: writing %q document", modelName)
		}
		if err := s.putIndexEntries(tx, m, part, topic, id, u); err != nil {
			return err
		}
		return bumpTopic(tx, m.Name, part, topic, 1)
	})
	if err != nil {
		return objectid.Nil, err
	}
	s.registerTTL(m, part, topic, id, u)
	s.log.Debug("document created", "model", modelName, "topic", topic, "object_id", id.String())
	return id, nil
}

func (s *Store) putIndexEntries(tx kvstore.RwTx, m *Model, part, topic string, id objectid.ID, u *dataunit.Unit) error {
	for _, idx := range m.Indexes {
		key, err := indexKeyFor(idx, topic, id, u)
		if err != nil {
			return err
		}
		if err := tx.Put(indexBucket(m.Name, part, idx.Name), key, id.Bytes()); err != nil {
			return serr.Wrap(serr.BackendWrite, err, "docstore: writing index %q entry", idx.Name)
		}
	}
	return nil
}

func (s *Store) deleteIndexEntries(tx kvstore.RwTx, m *Model, part, topic string, id objectid.ID, u *dataunit.Unit) error {
	for _, idx := range m.Indexes {
		key, err := indexKeyFor(idx, topic, id, u)
		if err != nil {
			return err
		}
		if err := tx.Delete(indexBucket(m.Name, part, idx.Name), key); err != nil {
			return serr.Wrap(serr.BackendWrite, err, "docstore: deleting index %q entry", idx.Name)
		}
	}
	return nil
}

func indexKeyFor(idx *indexkey.IndexSpec, topic string, id objectid.ID, u *dataunit.Unit) (indexkey.Key, error) {
	parts := make([]indexkey.TypedValue, 0, len(idx.Fields)+1)
	parts = append(parts, indexkey.TypedValue{Type: dataunit.TypeString, Value: topic})
	for _, f := range idx.Fields {
		v, _ := u.Get(f.Tag) // absent/defaulted fields encode as the type's zero value
		if v == nil {
			v = zeroValue(f.Type)
		}
		parts = append(parts, indexkey.TypedValue{Type: f.Type, Value: v})
	}
	return indexkey.Encode(parts, id)
}

// bumpTopic adds delta to topic's live-document refcount in model's
// per-partition topic registry, deleting the entry once it reaches
// zero so ListModelTopics never reports a topic with no documents.
func bumpTopic(tx kvstore.RwTx, modelName, partition, topic string, delta int64) error {
	bucket := topicsBucket(modelName, partition)
	key := []byte(topic)
	var cur int64
	v, ok, err := tx.Get(bucket, key)
	if err != nil {
		return serr.Wrap(serr.BackendRead, err, "docstore: reading topic registry")
	}
	if ok {
		cur = int64(binary.BigEndian.Uint64(v))
	}
	next := cur + delta
	if next <= 0 {
		return tx.Delete(bucket, key)
	}
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, uint64(next))
	return tx.Put(bucket, key, buf)
}

// ListModelTopics returns every topic with at least one live document
// of modelName in partition.
func (s *Store) ListModelTopics(ctx context.Context, modelName, partition string) ([]string, error) {
	m, err := s.model(modelName)
	if err != nil {
		return nil, err
	}
	var topics []string
	err = s.db.View(ctx, func(tx kvstore.Tx) error {
		c, err := tx.Cursor(topicsBucket(m.Name, partition))
		if err != nil {
			return err
		}
		defer c.Close()
		for k, _, err := c.First(); k != nil; k, _, err = c.Next() {
			if err != nil {
				return err
			}
			topics = append(topics, string(k))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return topics, nil
}

func (s *Store) registerTTL(m *Model, part, topic string, id objectid.ID, u *dataunit.Unit) {
	if s.ttl == nil || m.TTLField == "" {
		return
	}
	f, _ := m.Schema.ByName(m.TTLField)
	v, ok := u.Get(f.Tag)
	if !ok {
		return
	}
	dt := v.(dataunit.DateTime)
	key, err := primaryKeyBytes(topic, id)
	if err != nil {
		return
	}
	s.ttl.ExpireAt(primaryBucket(m.Name, part), key, time.Unix(dt.Unix, 0))
}

func (s *Store) cancelTTL(m *Model, part, topic string, id objectid.ID) {
	if s.ttl == nil {
		return
	}
	key, err := primaryKeyBytes(topic, id)
	if err != nil {
		return
	}
	s.ttl.CancelExpiry(primaryBucket(m.Name, part), key)
}

// readOptions configures a single Read call.
type readOptions struct {
	forUpdate bool
}

// ReadOption configures Store.Read.
type ReadOption func(*readOptions)

// WithForUpdate runs the read inside a write transaction instead of a
// read-only one, holding the backend's write lock across the read so a
// caller can follow up with an Update it knows is based on a
// consistent snapshot.
func WithForUpdate() ReadOption { return func(o *readOptions) { o.forUpdate = true } }

// Read fetches a document by id from partition under topic (use
// defaultPartitionKey via ReadDefault for unpartitioned models).
func (s *Store) Read(ctx context.Context, modelName, topic, partition string, id objectid.ID, opts ...ReadOption) (u *dataunit.Unit, err error) {
	timer := metrics.NewTimer()
	defer func() { observe(modelName, "read", timer, err) }()

	var o readOptions
	for _, opt := range opts {
		opt(&o)
	}

	m, err := s.model(modelName)
	if err != nil {
		return nil, err
	}
	key, err := primaryKeyBytes(topic, id)
	if err != nil {
		return nil, err
	}
	read := func(tx kvstore.Tx) error {
		data, ok, err := tx.Get(primaryBucket(m.Name, partition), key)
		if err != nil {
			return serr.Wrap(serr.BackendRead, err, "docstore: reading %q document", modelName)
		}
		if !ok {
			return serr.New(serr.NotFound, "docstore: %q document %s not found", modelName, id)
		}
		parsed, err := wire.Parse(m.Schema, data)
		if err != nil {
			return serr.Wrap(serr.ParseFailed, err, "docstore: parsing %q document", modelName)
		}
		u = parsed
		return nil
	}
	if o.forUpdate {
		err = s.db.Update(ctx, func(tx kvstore.RwTx) error { return read(tx) })
	} else {
		err = s.db.View(ctx, read)
	}
	if err != nil {
		return nil, err
	}
	return u, nil
}

// ReadDefault reads from an unpartitioned model's single partition.
func (s *Store) ReadDefault(ctx context.Context, modelName, topic string, id objectid.ID) (*dataunit.Unit, error) {
	return s.Read(ctx, modelName, topic, defaultPartitionKey, id)
}

// Update replaces the document at id with next, re-deriving index
// entries: any index entry whose value changed is deleted and
// rewritten, and the document is re-validated before the write commits.
// Partition and topic are not recomputed — a document does not move
// between partitions or topics on update.
func (s *Store) Update(ctx context.Context, modelName, topic, partition string, id objectid.ID, next *dataunit.Unit) (err error) {
	timer := metrics.NewTimer()
	defer func() { observe(modelName, "update", timer, err) }()

	m, err := s.model(modelName)
	if err != nil {
		return err
	}
	if err := next.Validate(); err != nil {
		return err
	}
	key, err := primaryKeyBytes(topic, id)
	if err != nil {
		return err
	}
	data, err := wire.Serialize(next)
	if err != nil {
		return serr.Wrap(serr.SerializeFailed, err, "docstore: serializing %q document", modelName)
	}

	return s.withRetry(ctx, func(tx kvstore.RwTx) error {
		old, ok, err := tx.Get(primaryBucket(m.Name, partition), key)
		if err != nil {
			return serr.Wrap(serr.BackendRead, err, "docstore: reading %q document for update", modelName)
		}
		if !ok {
			return serr.New(serr.NotFound, "docstore: %q document %s not found", modelName, id)
		}
		oldUnit, err := wire.Parse(m.Schema, old)
		if err != nil {
			return serr.Wrap(serr.ParseFailed, err, "docstore: parsing previous %q document", modelName)
		}
		if err := s.deleteIndexEntries(tx, m, partition, topic, id, oldUnit); err != nil {
			return err
		}
		if err := tx.Put(primaryBucket(m.Name, partition), key, data); err != nil {
			return serr.Wrap(serr.BackendWrite, err, "docstore: writing %q document", modelName)
		}
		return s.putIndexEntries(tx, m, partition, topic, id, next)
	})
}

// ApplyUpdate replays req against the document at id and writes the
// result back, returning both the pre- and post-update documents so
// callers (outbox coalescing, ReadUpdate) can inspect either without a
// second round trip.
func (s *Store) ApplyUpdate(ctx context.Context, modelName, topic, partition string, id objectid.ID, req updatewire.Request) (before, after *dataunit.Unit, err error) {
	m, err := s.model(modelName)
	if err != nil {
		return nil, nil, err
	}
	key, err := primaryKeyBytes(topic, id)
	if err != nil {
		return nil, nil, err
	}

	err = s.withRetry(ctx, func(tx kvstore.RwTx) error {
		old, ok, err := tx.Get(primaryBucket(m.Name, partition), key)
		if err != nil {
			return serr.Wrap(serr.BackendRead, err, "docstore: reading %q document for update", modelName)
		}
		if !ok {
			return serr.New(serr.NotFound, "docstore: %q document %s not found", modelName, id)
		}
		oldUnit, err := wire.Parse(m.Schema, old)
		if err != nil {
			return serr.Wrap(serr.ParseFailed, err, "docstore: parsing previous %q document", modelName)
		}
		before = oldUnit
		newData, err := updatewire.ApplyToWire(m.Schema, old, req)
		if err != nil {
			return err
		}
		newUnit, err := wire.Parse(m.Schema, newData)
		if err != nil {
			return serr.Wrap(serr.ParseFailed, err, "docstore: parsing updated %q document", modelName)
		}
		if err := newUnit.Validate(); err != nil {
			return err
		}
		if err := s.deleteIndexEntries(tx, m, partition, topic, id, oldUnit); err != nil {
			return err
		}
		if err := tx.Put(primaryBucket(m.Name, partition), key, newData); err != nil {
			return serr.Wrap(serr.BackendWrite, err, "docstore: writing %q document", modelName)
		}
		if err := s.putIndexEntries(tx, m, partition, topic, id, newUnit); err != nil {
			return err
		}
		after = newUnit
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return before, after, nil
}

// ReadUpdate applies req to the document at id and returns either the
// pre- or post-update form, the read_update operation's one-round-trip
// read-modify-write.
func (s *Store) ReadUpdate(ctx context.Context, modelName, topic, partition string, id objectid.ID, req updatewire.Request, returnAfter bool) (*dataunit.Unit, error) {
	before, after, err := s.ApplyUpdate(ctx, modelName, topic, partition, id, req)
	if err != nil {
		return nil, err
	}
	if returnAfter {
		return after, nil
	}
	return before, nil
}

// Delete removes a document and its index entries.
func (s *Store) Delete(ctx context.Context, modelName, topic, partition string, id objectid.ID) (err error) {
	timer := metrics.NewTimer()
	defer func() { observe(modelName, "delete", timer, err) }()

	m, err := s.model(modelName)
	if err != nil {
		return err
	}
	key, err := primaryKeyBytes(topic, id)
	if err != nil {
		return err
	}
	err = s.withRetry(ctx, func(tx kvstore.RwTx) error {
		old, ok, err := tx.Get(primaryBucket(m.Name, partition), key)
		if err != nil {
			return serr.Wrap(serr.BackendRead, err, "docstore: reading %q document for delete", modelName)
		}
		if !ok {
			return serr.New(serr.NotFound, "docstore: %q document %s not found", modelName, id)
		}
		oldUnit, err := wire.Parse(m.Schema, old)
		if err != nil {
			return serr.Wrap(serr.ParseFailed, err, "docstore: parsing %q document for delete", modelName)
		}
		if err := s.deleteIndexEntries(tx, m, partition, topic, id, oldUnit); err != nil {
			return err
		}
		if err := tx.Delete(primaryBucket(m.Name, partition), key); err != nil {
			return err
		}
		return bumpTopic(tx, m.Name, partition, topic, -1)
	})
	if err != nil {
		return err
	}
	s.cancelTTL(m, partition, topic, id)
	return nil
}

// DropPartition removes an entire partition's bucket set (primary,
// topic registry and every secondary index) in one step — the fast
// path for retiring an expired time partition instead of deleting key
// by key.
func (s *Store) DropPartition(ctx context.Context, modelName, partition string) error {
	m, err := s.model(modelName)
	if err != nil {
		return err
	}
	return s.db.Update(ctx, func(tx kvstore.RwTx) error {
		if err := tx.DropBucket(primaryBucket(m.Name, partition)); err != nil {
			return err
		}
		if err := tx.DropBucket(topicsBucket(m.Name, partition)); err != nil {
			return err
		}
		for _, idx := range m.Indexes {
			if err := tx.DropBucket(indexBucket(m.Name, partition, idx.Name)); err != nil {
				return err
			}
		}
		return nil
	})
}

// AddDatePartitions provisions each day key in days (see
// PartitionKeyForDay) as a bucket set for a PartitionByDay model and
// records it in the model's date-partition registry, so a later
// ListDatePartitions/DeleteDatePartitions admin call can enumerate it
// without scanning every possible day.
func (s *Store) AddDatePartitions(ctx context.Context, modelName string, days []string) error {
	m, err := s.model(modelName)
	if err != nil {
		return err
	}
	for _, day := range days {
		if err := s.ensurePartitionBuckets(ctx, m, day); err != nil {
			return err
		}
	}
	return s.db.Update(ctx, func(tx kvstore.RwTx) error {
		bucket := datePartitionsBucket(m.Name)
		for _, day := range days {
			if err := tx.Put(bucket, []byte(day), []byte{1}); err != nil {
				return serr.Wrap(serr.BackendWrite, err, "docstore: registering date partition %q", day)
			}
		}
		return nil
	})
}

// ListDatePartitions returns every day key registered for modelName,
// in ascending calendar order (YYYYMMDD strings already sort that
// way lexically).
func (s *Store) ListDatePartitions(ctx context.Context, modelName string) ([]string, error) {
	m, err := s.model(modelName)
	if err != nil {
		return nil, err
	}
	var days []string
	err = s.db.View(ctx, func(tx kvstore.Tx) error {
		c, err := tx.Cursor(datePartitionsBucket(m.Name))
		if err != nil {
			return err
		}
		defer c.Close()
		for k, _, err := c.First(); k != nil; k, _, err = c.Next() {
			if err != nil {
				return err
			}
			days = append(days, string(k))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return days, nil
}

// DeleteDatePartitions drops every registered day partition strictly
// before cutoff (a day key, see PartitionKeyForDay) and removes them
// from the registry — the bulk-retention counterpart to DropPartition,
// used to age out a day-partitioned model's oldest data in one call.
func (s *Store) DeleteDatePartitions(ctx context.Context, modelName, cutoff string) error {
	days, err := s.ListDatePartitions(ctx, modelName)
	if err != nil {
		return err
	}
	m, err := s.model(modelName)
	if err != nil {
		return err
	}
	for _, day := range days {
		if day >= cutoff {
			continue
		}
		if err := s.DropPartition(ctx, modelName, day); err != nil {
			return err
		}
		err := s.db.Update(ctx, func(tx kvstore.RwTx) error {
			return tx.Delete(datePartitionsBucket(m.Name), []byte(day))
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// Transaction runs fn in a single read-write transaction spanning
// multiple Store operations, retried once on a backend conflict before
// the error surfaces to the caller.
func (s *Store) Transaction(ctx context.Context, fn func(tx *Tx) error) error {
	return s.withRetry(ctx, func(rw kvstore.RwTx) error {
		return fn(&Tx{store: s, rw: rw})
	})
}

// withRetry runs fn in a write transaction, retrying exactly once if
// the backend reports a write conflict.
func (s *Store) withRetry(ctx context.Context, fn func(tx kvstore.RwTx) error) error {
	err := s.db.Update(ctx, fn)
	if err != nil && serr.Is(err, serr.BackendConflict) {
		err = s.db.Update(ctx, fn)
	}
	return err
}

// Tx is a document-store handle bound to one in-flight transaction,
// handed to Store.Transaction callbacks.
type Tx struct {
	store *Store
	rw kvstore.RwTx
}

// Create writes u within the enclosing transaction.
func (t *Tx) Create(modelName, topic string, u *dataunit.Unit) (objectid.ID, error) {
	m, err := t.store.model(modelName)
	if err != nil {
		return objectid.Nil, err
	}
	if err := u.Validate(); err != nil {
		return objectid.Nil, err
	}
	id := objectid.New()
	part, err := partitionKey(m, u)
	if err != nil {
		return objectid.Nil, err
	}
	key, err := primaryKeyBytes(topic, id)
	if err != nil {
		return objectid.Nil, err
	}
	data, err := wire.Serialize(u)
	if err != nil {
		return objectid.Nil, serr.Wrap(serr.SerializeFailed, err, "docstore: serializing %q document", modelName)
	}
	if err := t.rw.Put(primaryBucket(m.Name, part), key, data); err != nil {
		return objectid.Nil, serr.Wrap(serr.BackendWrite, err, "docstore: writing %q document", modelName)
	}
	if err := t.store.putIndexEntries(t.rw, m, part, topic, id, u); err != nil {
		return objectid.Nil, err
	}
	if err := bumpTopic(t.rw, m.Name, part, topic, 1); err != nil {
		return objectid.Nil, err
	}
	return id, nil
}

// Delete removes a document and its index entries within the
// enclosing transaction.
func (t *Tx) Delete(modelName, topic, partition string, id objectid.ID) error {
	m, err := t.store.model(modelName)
	if err != nil {
		return err
	}
	key, err := primaryKeyBytes(topic, id)
	if err != nil {
		return err
	}
	data, ok, err := t.rw.Get(primaryBucket(m.Name, partition), key)
	if err != nil {
		return serr.Wrap(serr.BackendRead, err, "docstore: reading %q document for delete", modelName)
	}
	if !ok {
		return serr.New(serr.NotFound, "docstore: %q document %s not found", modelName, id)
	}
	oldUnit, err := wire.Parse(m.Schema, data)
	if err != nil {
		return serr.Wrap(serr.ParseFailed, err, "docstore: parsing %q document for delete", modelName)
	}
	if err := t.store.deleteIndexEntries(t.rw, m, partition, topic, id, oldUnit); err != nil {
		return err
	}
	if err := t.rw.Delete(primaryBucket(m.Name, partition), key); err != nil {
		return err
	}
	return bumpTopic(t.rw, m.Name, partition, topic, -1)
}

// Read fetches a document within the enclosing transaction.
func (t *Tx) Read(modelName, topic, partition string, id objectid.ID) (*dataunit.Unit, error) {
	m, err := t.store.model(modelName)
	if err != nil {
		return nil, err
	}
	key, err := primaryKeyBytes(topic, id)
	if err != nil {
		return nil, err
	}
	data, ok, err := t.rw.Get(primaryBucket(m.Name, partition), key)
	if err != nil {
		return nil, serr.Wrap(serr.BackendRead, err, "docstore: reading %q document", modelName)
	}
	if !ok {
		return nil, serr.New(serr.NotFound, "docstore: %q document %s not found", modelName, id)
	}
	return wire.Parse(m.Schema, data)
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
