/*
Package outbox implements the producer/message queue:
a document-store-backed queue of outbound messages, one per mutation a
producer wants a remote peer to observe, dequeued in per-topic FIFO
order and replayed through a pluggable Transport. Posting follows three
rules: a Create is rejected if the producer already has an in-queue
message for the same object id; an Update folds into an in-queue
Create's staged payload instead of appending a new message; a Delete
removes every in-queue message for the object id and appends itself.

The dequeue loop follows a poll → claim oldest → deliver → mark idiom
built on pkg/docstore and pkg/taskrt instead of a SQL poller.
*/
package outbox

import (
	"context"
	"time"

	"github.com/cuemby/strata/pkg/dataunit"
	"github.com/cuemby/strata/pkg/dataunit/objectid"
	"github.com/cuemby/strata/pkg/docstore"
	"github.com/cuemby/strata/pkg/docstore/updatewire"
	"github.com/cuemby/strata/pkg/indexkey"
	"github.com/cuemby/strata/pkg/metrics"
	"github.com/cuemby/strata/pkg/serr"
	"github.com/cuemby/strata/pkg/strlog"
	"github.com/cuemby/strata/pkg/taskrt"
)

// modelName is the docstore collection backing every Queue.
const modelName = "outbox_message"

// defaultPartition is the single partition an unpartitioned model
// writes to (docstore's own internal default, repeated here since
// Store's Read/Update/Delete take the partition string explicitly).
const defaultPartition = "_default"

// defaultTopic is the storage topic outbox_message rows are written
// under. The queue's own Message.Topic is a producer/consumer routing
// concept (which remote peer's FIFO a message belongs to); the
// document store's topic is a physical key-range dimension, and every
// producer's queue lives in the one same key range regardless of
// which remote topic its messages target.
const defaultTopic = "_default"

// Op identifies the mutation a queued message represents.
type Op int32

const (
	OpCreate Op = iota
	OpUpdate
	OpDelete
)

func (o Op) String() string {
	switch o {
	case OpCreate:
		return "create"
	case OpUpdate:
		return "update"
	case OpDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// Outcome is what a Transport reports after attempting delivery.
type Outcome int

const (
	// OutcomeSent means the message was delivered; it is removed from
	// the queue.
	OutcomeSent Outcome = iota
	// OutcomeRetry means delivery failed transiently; the message is
	// retried after RetryInterval.
	OutcomeRetry
	// OutcomeFatal means delivery failed permanently; the message is
	// marked failed and left for an admin operation to inspect/remove.
	OutcomeFatal
)

// Message is one queued entry.
type Message struct {
	Producer string
	Topic string
	Position objectid.ID // producer-position, strictly increasing per (producer, topic)
	ObjectID objectid.ID
	ObjectType string
	Op Op
	Payload []byte // object content for create/delete, encoded updatewire.Request for update
	NotifyPayload []byte
	ExpireAt time.Time // zero means the message never expires
	Failed bool
	ErrorMessage string
}

// Transport delivers one message to its remote peer.
type Transport interface {
	Send(ctx context.Context, msg *Message) (Outcome, error)
}

// Notifier observes message lifecycle transitions.
type Notifier interface {
	Sent(msg *Message)
	Failed(msg *Message, reason string)
}

// Option configures a Queue at construction.
type Option func(*Queue)

// WithRetryInterval overrides the default backoff between a retryable
// send failure and the next attempt.
func WithRetryInterval(d time.Duration) Option { return func(q *Queue) { q.retryInterval = d } }

// WithDefaultTTL sets the expiry horizon applied to a posted message
// when the caller doesn't supply one. Zero (the default) means posted
// messages never expire unless the caller says so.
func WithDefaultTTL(d time.Duration) Option { return func(q *Queue) { q.defaultTTL = d } }

// WithNotifier attaches a lifecycle observer.
func WithNotifier(n Notifier) Option { return func(q *Queue) { q.notifier = n } }

// WithLogger attaches a logger for diagnostics.
func WithLogger(l strlog.Logger) Option { return func(q *Queue) { q.log = l } }

// Queue is a per-store producer queue. One Queue instance is normally
// shared by every producer writing through the same transport.
type Queue struct {
	store *docstore.Store
	rt *taskrt.Runtime
	transport Transport
	notifier Notifier
	schema *dataunit.Schema
	model *docstore.Model

	retryInterval time.Duration
	defaultTTL time.Duration

	log strlog.Logger

	jobs *topicJobs
}

// New builds a Queue. Call EnsureModel before posting anything.
func New(store *docstore.Store, rt *taskrt.Runtime, transport Transport, opts ...Option) (*Queue, error) {
	schema, err := dataunit.NewSchema(modelName,
		dataunit.Field(1, "producer", dataunit.TypeString).WithRequired(),
		dataunit.Field(2, "topic", dataunit.TypeString).WithRequired(),
		dataunit.Field(3, "position", dataunit.TypeObjectID).WithRequired(),
		dataunit.Field(4, "object_id", dataunit.TypeObjectID).WithRequired(),
		dataunit.Field(5, "object_type", dataunit.TypeString).WithRequired(),
		dataunit.Field(6, "op", dataunit.TypeEnum).WithRequired(),
		dataunit.Field(7, "payload", dataunit.TypeBytes),
		dataunit.Field(8, "notify_payload", dataunit.TypeBytes),
		dataunit.Field(9, "expire_at", dataunit.TypeDateTime),
		dataunit.Field(10, "failed", dataunit.TypeBool),
		dataunit.Field(11, "error_message", dataunit.TypeString),
	)
	if err != nil {
		return nil, err
	}
	byDequeue, err := indexkey.NewIndexSpec("by_dequeue", schema, "topic", "failed", "position")
	if err != nil {
		return nil, err
	}
	byCoalesce, err := indexkey.NewIndexSpec("by_coalesce", schema, "producer", "topic", "object_id")
	if err != nil {
		return nil, err
	}

	q := &Queue{
		store: store,
		rt: rt,
		transport: transport,
		schema: schema,
		model: &docstore.Model{Name: modelName, Schema: schema, Indexes: []*indexkey.IndexSpec{byDequeue, byCoalesce}},
		retryInterval: 5 * time.Second,
		log: strlog.Nop(),
		jobs: newTopicJobs(),
	}
	for _, o := range opts {
		o(q)
	}
	return q, nil
}

// EnsureModel provisions the queue's backing collection.
func (q *Queue) EnsureModel(ctx context.Context) error {
	return q.store.EnsureModel(ctx, q.model)
}

// Create posts a create message for objID, carrying the new object's
// serialized content as payload. It is rejected if the producer
// already has any in-queue message for objID on topic.
func (q *Queue) Create(ctx context.Context, producer, topic, objectType string, objID objectid.ID, payload, notifyPayload []byte) error {
	existing, err := q.findCoalesceTarget(ctx, producer, topic, objID)
	if err != nil {
		return err
	}
	if existing != nil {
		return serr.New(serr.DuplicateObjectID,
			"outbox: producer %q already has an in-queue message for object %s on topic %q", producer, objID, topic)
	}
	return q.append(ctx, producer, topic, objectType, OpCreate, objID, payload, notifyPayload)
}

// Update posts an update. schema describes the object's own content
// (needed only when an in-queue Create is found: the staged payload
// must be parsed, patched and re-serialized with the same schema the
// caller used to build it). If an in-queue Create for the same object
// still exists, req is applied directly to its staged payload and no
// new message is appended. Otherwise an Update
// message carrying req's encoded form is appended.
func (q *Queue) Update(ctx context.Context, producer, topic, objectType string, schema *dataunit.Schema, objID objectid.ID, req updatewire.Request, notifyPayload []byte) error {
	row, err := q.findCoalesceTarget(ctx, producer, topic, objID)
	if err != nil {
		return err
	}
	if row != nil {
		msg, err := fromUnit(row.Doc)
		if err != nil {
			return err
		}
		if msg.Op == OpCreate {
			return q.coalesceOntoCreate(ctx, schema, *row, msg, req)
		}
	}
	payload, err := updatewire.Encode(req)
	if err != nil {
		return serr.Wrap(serr.SerializeFailed, err, "outbox: encoding update request")
	}
	return q.append(ctx, producer, topic, objectType, OpUpdate, objID, payload, notifyPayload)
}

// Delete removes every in-queue message the producer has for objID on
// topic and appends the delete, all within one backend transaction
//.
func (q *Queue) Delete(ctx context.Context, producer, topic, objectType string, objID objectid.ID, notifyPayload []byte) error {
	err := q.store.Transaction(ctx, func(tx *docstore.Tx) error {
		rows, err := q.store.FindRows(ctx, modelName, defaultTopic, defaultPartition, docstore.Query{
			Index: "by_coalesce",
			Predicates: []indexkey.Predicate{
				{Field: "producer", Op: indexkey.OpEq, Operand: producer},
				{Field: "topic", Op: indexkey.OpEq, Operand: topic},
				{Field: "object_id", Op: indexkey.OpEq, Operand: objID},
			},
		})
		if err != nil {
			return err
		}
		for _, r := range rows {
			if err := tx.Delete(modelName, defaultTopic, defaultPartition, r.ID); err != nil {
				return err
			}
		}
		msg := &Message{
			Producer: producer, Topic: topic, Position: objectid.New(),
			ObjectID: objID, ObjectType: objectType, Op: OpDelete,
			NotifyPayload: notifyPayload,
		}
		if q.defaultTTL > 0 {
			msg.ExpireAt = time.Now().Add(q.defaultTTL)
		}
		u, err := toUnit(q.schema, msg)
		if err != nil {
			return err
		}
		_, err = tx.Create(modelName, defaultTopic, u)
		return err
	})
	if err != nil {
		return err
	}
	q.triggerDequeue(ctx, topic)
	return nil
}

// coalesceOntoCreate parses the staged Create's payload against
// schema, replays req against it, re-serializes, and writes the result
// back into the same message in place — the literal "apply the update
// to its payload" rule.
func (q *Queue) coalesceOntoCreate(ctx context.Context, schema *dataunit.Schema, row docstore.Row, msg *Message, req updatewire.Request) error {
	data, err := updatewire.ApplyToWire(schema, msg.Payload, req)
	if err != nil {
		return err
	}
	msg.Payload = data
	u, err := toUnit(q.schema, msg)
	if err != nil {
		return err
	}
	return q.store.Update(ctx, modelName, defaultTopic, defaultPartition, row.ID, u)
}

func (q *Queue) append(ctx context.Context, producer, topic, objectType string, op Op, objID objectid.ID, payload, notifyPayload []byte) error {
	msg := &Message{
		Producer: producer, Topic: topic, Position: objectid.New(),
		ObjectID: objID, ObjectType: objectType, Op: op,
		Payload: payload, NotifyPayload: notifyPayload,
	}
	if q.defaultTTL > 0 {
		msg.ExpireAt = time.Now().Add(q.defaultTTL)
	}
	u, err := toUnit(q.schema, msg)
	if err != nil {
		return err
	}
	_, err = q.store.Create(ctx, modelName, defaultTopic, u)
	if err != nil {
		return err
	}
	metrics.OutboxMessagesEnqueued.WithLabelValues(topic, op.String()).Inc()
	q.triggerDequeue(ctx, topic)
	return nil
}

func (q *Queue) findCoalesceTarget(ctx context.Context, producer, topic string, objID objectid.ID) (*docstore.Row, error) {
	rows, err := q.store.FindRows(ctx, modelName, defaultTopic, defaultPartition, docstore.Query{
		Index: "by_coalesce",
		Predicates: []indexkey.Predicate{
			{Field: "producer", Op: indexkey.OpEq, Operand: producer},
			{Field: "topic", Op: indexkey.OpEq, Operand: topic},
			{Field: "object_id", Op: indexkey.OpEq, Operand: objID},
		},
		Limit: 1,
	})
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

func toUnit(schema *dataunit.Schema, m *Message) (*dataunit.Unit, error) {
	u := dataunit.New(schema)
	sets := []struct {
		name string
		val any
	}{
		{"producer", m.Producer},
		{"topic", m.Topic},
		{"position", m.Position},
		{"object_id", m.ObjectID},
		{"object_type", m.ObjectType},
		{"op", int32(m.Op)},
		{"failed", m.Failed},
	}
	for _, s := range sets {
		if err := u.SetByName(s.name, s.val); err != nil {
			return nil, err
		}
	}
	if m.Payload != nil {
		if err := u.SetByName("payload", m.Payload); err != nil {
			return nil, err
		}
	}
	if m.NotifyPayload != nil {
		if err := u.SetByName("notify_payload", m.NotifyPayload); err != nil {
			return nil, err
		}
	}
	if !m.ExpireAt.IsZero() {
		if err := u.SetByName("expire_at", dataunit.DateTime{Unix: m.ExpireAt.Unix()}); err != nil {
			return nil, err
		}
	}
	if m.ErrorMessage != "" {
		if err := u.SetByName("error_message", m.ErrorMessage); err != nil {
			return nil, err
		}
	}
	return u, nil
}

func fromUnit(u *dataunit.Unit) (*Message, error) {
	m := &Message{}
	get := func(name string) (any, bool) { return u.GetByName(name) }

	if v, ok := get("producer"); ok {
		m.Producer = v.(string)
	}
	if v, ok := get("topic"); ok {
		m.Topic = v.(string)
	}
	if v, ok := get("position"); ok {
		m.Position = v.(objectid.ID)
	}
	if v, ok := get("object_id"); ok {
		m.ObjectID = v.(objectid.ID)
	}
	if v, ok := get("object_type"); ok {
		m.ObjectType = v.(string)
	}
	if v, ok := get("op"); ok {
		m.Op = Op(v.(int32))
	}
	if v, ok := get("payload"); ok {
		m.Payload = v.([]byte)
	}
	if v, ok := get("notify_payload"); ok {
		m.NotifyPayload = v.([]byte)
	}
	if v, ok := get("expire_at"); ok {
		dt := v.(dataunit.DateTime)
		if dt.Unix != 0 {
			m.ExpireAt = time.Unix(dt.Unix, 0)
		}
	}
	if v, ok := get("failed"); ok {
		m.Failed = v.(bool)
	}
	if v, ok := get("error_message"); ok {
		m.ErrorMessage = v.(string)
	}
	return m, nil
}
