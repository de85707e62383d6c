/*
Package docclient is the async facade in front of pkg/docstore: every
document-store call is posted onto a worker thread and the result
delivered through a callback rather than blocking the caller. Client
picks the worker via a ThreadMode (Caller/Default/Mapped): ModeCaller
runs the call inline, ModeDefault posts every call onto one fixed
worker, and ModeMapped posts each call onto the worker named by its
storage topic (optionally remapped by TopicFunc), so a topic's
operations stay strictly ordered relative to each other on one worker.
*/
package docclient

import (
	"context"

	"github.com/cuemby/strata/pkg/dataunit"
	"github.com/cuemby/strata/pkg/dataunit/objectid"
	"github.com/cuemby/strata/pkg/docstore"
	"github.com/cuemby/strata/pkg/serr"
	"github.com/cuemby/strata/pkg/taskrt"
)

// ThreadMode selects how a Client maps a call onto a taskrt worker.
type ThreadMode int

const (
	// ModeCaller runs the operation synchronously on the calling
	// goroutine — no posting, callback invoked before the call returns.
	ModeCaller ThreadMode = iota
	// ModeDefault posts every call to one fixed worker topic,
	// serializing all of this Client's operations relative to each
	// other regardless of the storage topic they carry.
	ModeDefault
	// ModeMapped posts each call onto the worker named by its own
	// storage topic, optionally remapped through Client.TopicFunc, so
	// different topics' operations are independent FIFO streams.
	ModeMapped
)

// TopicFunc remaps a call's storage topic onto a worker-routing key,
// used in ModeMapped. Defaults to the identity function.
type TopicFunc func(topic string) string

// Callback receives an async operation's result. err is nil on success.
type Callback func(err error)

// Client wraps a *docstore.Store with the async call-then-callback
// shape, choosing a worker per ThreadMode.
type Client struct {
	store *docstore.Store
	rt *taskrt.Runtime
	mode ThreadMode
	defaultTop string
	topicFn TopicFunc
}

// Option configures a Client.
type Option func(*Client)

// WithDefaultTopic sets the worker topic used in ModeDefault. Defaults
// to "docclient".
func WithDefaultTopic(topic string) Option { return func(c *Client) { c.defaultTop = topic } }

// WithTopicFunc sets the storage-topic→worker remapping used in
// ModeMapped. Defaults to the identity function (one worker per
// storage topic).
func WithTopicFunc(fn TopicFunc) Option { return func(c *Client) { c.topicFn = fn } }

// New builds a Client over store, posting work through rt under mode.
// rt may be nil only when mode is ModeCaller.
func New(store *docstore.Store, rt *taskrt.Runtime, mode ThreadMode, opts ...Option) *Client {
	c := &Client{
		store: store,
		rt: rt,
		mode: mode,
		defaultTop: "docclient",
		topicFn: func(topic string) string { return topic },
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *Client) worker(topic string) string {
	switch c.mode {
	case ModeMapped:
		return c.topicFn(topic)
	default:
		return c.defaultTop
	}
}

func (c *Client) run(ctx context.Context, topic string, fn func()) {
	if c.mode == ModeCaller {
		fn()
		return
	}
	c.rt.Submit(ctx, c.worker(topic), func(context.Context) { fn() })
}

// Create mirrors AsyncClient::createObject: posts the create and
// delivers the assigned id (or error) to cb.
func (c *Client) Create(ctx context.Context, model, topic string, u *dataunit.Unit, cb func(objectid.ID, error)) {
	c.run(ctx, topic, func() {
		id, err := c.store.Create(ctx, model, topic, u)
		cb(id, err)
	})
}

// Read mirrors AsyncClient::readObject.
func (c *Client) Read(ctx context.Context, model, topic, partition string, id objectid.ID, cb func(*dataunit.Unit, error)) {
	c.run(ctx, topic, func() {
		u, err := c.store.Read(ctx, model, topic, partition, id)
		cb(u, err)
	})
}

// Update mirrors AsyncClient::updateObject.
func (c *Client) Update(ctx context.Context, model, topic, partition string, id objectid.ID, next *dataunit.Unit, cb Callback) {
	c.run(ctx, topic, func() {
		cb(c.store.Update(ctx, model, topic, partition, id, next))
	})
}

// Delete mirrors AsyncClient::deleteObject.
func (c *Client) Delete(ctx context.Context, model, topic, partition string, id objectid.ID, cb Callback) {
	c.run(ctx, topic, func() {
		cb(c.store.Delete(ctx, model, topic, partition, id))
	})
}

// Find mirrors AsyncClient::find.
func (c *Client) Find(ctx context.Context, model, topic, partition string, q docstore.Query, cb func([]*dataunit.Unit, error)) {
	c.run(ctx, topic, func() {
		docs, err := c.store.Find(ctx, model, topic, partition, q)
		cb(docs, err)
	})
}

// Count mirrors AsyncClient::count.
func (c *Client) Count(ctx context.Context, model, topic, partition string, q docstore.Query, cb func(int, error)) {
	c.run(ctx, topic, func() {
		n, err := c.store.Count(ctx, model, topic, partition, q)
		cb(n, err)
	})
}

// Registry is a set of Clients sharded by topic/shard key, used when
// different models (or different partitions of the same model) are
// served by distinct storage backends.
type Registry struct {
	clients map[string]*Client
	fallback *Client
}

// NewRegistry builds an empty Registry. fallback serves any shard key
// with no explicit registration.
func NewRegistry(fallback *Client) *Registry {
	return &Registry{clients: map[string]*Client{}, fallback: fallback}
}

// Register binds shard to client, overriding the fallback for that key.
func (r *Registry) Register(shard string, client *Client) {
	r.clients[shard] = client
}

// Client resolves shard to its registered Client, or the fallback.
func (r *Registry) Client(shard string) (*Client, error) {
	if c, ok := r.clients[shard]; ok {
		return c, nil
	}
	if r.fallback != nil {
		return r.fallback, nil
	}
	return nil, serr.New(serr.NotFound, "docclient: no client registered for shard %q and no fallback set", shard)
}
