/*
Package boltkv adapts go.etcd.io/bbolt to the pkg/kvstore interfaces,
the way pkg/storage/boltdb.go opened and managed buckets for the
original node/service/container state store — same bolt.Open/Update/
View/ForEach idiom, generalized from a fixed set of named buckets to
arbitrary caller-named tables so the document store can provision one
bucket pair per (collection, partition).

bbolt has no built-in TTL or background compaction, unlike the
RocksDB compaction-filter TTL the original backend relied on (spec
§3.2); Store runs a periodic sweep goroutine instead (see Store.runTTLSweep)
and documents that tradeoff rather than pretending the gap away.
*/
package boltkv

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/cuemby/strata/pkg/kvstore"
	"github.com/cuemby/strata/pkg/serr"
	"github.com/cuemby/strata/pkg/strlog"
)

// Store is the bbolt-backed kvstore.DB implementation.
type Store struct {
	db     *bolt.DB
	log    strlog.Logger
	ttl    *ttlIndex
	stopCh chan struct{}
}

// Option configures a Store at open time.
type Option func(*Store)

// WithTTLSweepInterval overrides the default TTL sweep period.
func WithTTLSweepInterval(d time.Duration) Option {
	return func(s *Store) { s.ttl.interval = d }
}

// WithLogger attaches a logger used for sweep diagnostics.
func WithLogger(l strlog.Logger) Option {
	return func(s *Store) { s.log = l }
}

// Open opens (creating if necessary) a bbolt file at dataDir/name.
func Open(dataDir, name string, opts ...Option) (*Store, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, serr.Wrap(serr.BackendWrite, err, "boltkv: creating data directory %q", dataDir)
	}
	db, err := bolt.Open(filepath.Join(dataDir, name), 0o600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, serr.Wrap(serr.BackendWrite, err, "boltkv: opening %q", name)
	}
	s := &Store{
		db:     db,
		log:    strlog.Nop(),
		ttl:    &ttlIndex{interval: time.Minute, expiry: make(map[ttlKey]time.Time)},
		stopCh: make(chan struct{}),
	}
	for _, o := range opts {
		o(s)
	}
	go s.runTTLSweep()
	return s, nil
}

func (s *Store) Close() error {
	close(s.stopCh)
	return s.db.Close()
}

func (s *Store) EnsureBucket(_ context.Context, table string) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(table))
		return err
	})
	if err != nil {
		return serr.Wrap(serr.BackendDDL, err, "boltkv: creating bucket %q", table)
	}
	return nil
}

func (s *Store) Buckets(_ context.Context) ([]string, error) {
	var names []string
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.ForEach(func(name []byte, _ *bolt.Bucket) error {
			names = append(names, string(name))
			return nil
		})
	})
	if err != nil {
		return nil, serr.Wrap(serr.BackendRead, err, "boltkv: listing buckets")
	}
	return names, nil
}

func (s *Store) View(_ context.Context, fn func(tx kvstore.Tx) error) error {
	return s.db.View(func(btx *bolt.Tx) error {
		return fn(&tx{btx: btx})
	})
}

func (s *Store) Update(_ context.Context, fn func(tx kvstore.RwTx) error) error {
	err := s.db.Update(func(btx *bolt.Tx) error {
		return fn(&rwTx{tx: tx{btx: btx}})
	})
	if err != nil {
		return serr.Wrap(serr.BackendWrite, err, "boltkv: write transaction")
	}
	return nil
}

// ExpireAt registers a key in table to be deleted once the TTL sweep
// runs past t. Called by docstore after writing a document whose model
// declares a time-to-live field.
func (s *Store) ExpireAt(table string, key []byte, t time.Time) {
	s.ttl.set(table, key, t)
}

// CancelExpiry removes any pending expiry for key, used when a
// document's TTL is cleared or the document is deleted outright.
func (s *Store) CancelExpiry(table string, key []byte) {
	s.ttl.cancel(table, key)
}

func (s *Store) runTTLSweep() {
	t := time.NewTicker(s.ttl.interval)
	defer t.Stop()
	for {
		select {
		case <-s.stopCh:
			return
		case now := <-t.C:
			s.sweepOnce(now)
		}
	}
}

func (s *Store) sweepOnce(now time.Time) {
	due := s.ttl.due(now)
	if len(due) == 0 {
		return
	}
	err := s.db.Update(func(btx *bolt.Tx) error {
		for _, k := range due {
			b := btx.Bucket([]byte(k.table))
			if b == nil {
				continue
			}
			if err := b.Delete(k.key); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		s.log.Error("boltkv: ttl sweep failed", "error", err)
		return
	}
	for _, k := range due {
		s.ttl.cancel(k.table, k.key)
	}
}

// tx is the read-only kvstore.Tx adapter over a *bolt.Tx.
type tx struct{ btx *bolt.Tx }

func (t *tx) Has(table string, key []byte) (bool, error) {
	b := t.btx.Bucket([]byte(table))
	if b == nil {
		return false, nil
	}
	return b.Get(key) != nil, nil
}

func (t *tx) Get(table string, key []byte) ([]byte, bool, error) {
	b := t.btx.Bucket([]byte(table))
	if b == nil {
		return nil, false, nil
	}
	v := b.Get(key)
	if v == nil {
		return nil, false, nil
	}
	cp := append([]byte(nil), v...)
	return cp, true, nil
}

func (t *tx) Cursor(table string) (kvstore.Cursor, error) {
	b := t.btx.Bucket([]byte(table))
	if b == nil {
		return nil, serr.New(serr.NotFound, "boltkv: no such bucket %q", table)
	}
	return &cursor{c: b.Cursor()}, nil
}

// rwTx is the read-write kvstore.RwTx adapter.
type rwTx struct{ tx }

func (t *rwTx) Put(table string, key, value []byte) error {
	b, err := t.btx.CreateBucketIfNotExists([]byte(table))
	if err != nil {
		return err
	}
	return b.Put(key, value)
}

func (t *rwTx) Delete(table string, key []byte) error {
	b := t.btx.Bucket([]byte(table))
	if b == nil {
		return nil
	}
	return b.Delete(key)
}

func (t *rwTx) DropBucket(table string) error {
	err := t.btx.DeleteBucket([]byte(table))
	if err == bolt.ErrBucketNotFound {
		return nil
	}
	return err
}

func (t *rwTx) RwCursor(table string) (kvstore.RwCursor, error) {
	b, err := t.btx.CreateBucketIfNotExists([]byte(table))
	if err != nil {
		return nil, err
	}
	return &rwCursor{cursor: cursor{c: b.Cursor()}}, nil
}

// cursor adapts *bolt.Cursor to kvstore.Cursor. bbolt keys/values are
// only valid until the next cursor move or end of transaction, so
// every returned slice is copied.
type cursor struct{ c *bolt.Cursor }

func copyKV(k, v []byte) ([]byte, []byte) {
	if k == nil {
		return nil, nil
	}
	ck := append([]byte(nil), k...)
	if v == nil {
		return ck, nil
	}
	return ck, append([]byte(nil), v...)
}

func (c *cursor) First() ([]byte, []byte, error) { k, v := copyKV(c.c.First()); return k, v, nil }
func (c *cursor) Last() ([]byte, []byte, error)  { k, v := copyKV(c.c.Last()); return k, v, nil }
func (c *cursor) Next() ([]byte, []byte, error)  { k, v := copyKV(c.c.Next()); return k, v, nil }
func (c *cursor) Prev() ([]byte, []byte, error)  { k, v := copyKV(c.c.Prev()); return k, v, nil }

func (c *cursor) Seek(seek []byte) ([]byte, []byte, error) {
	k, v := c.c.Seek(seek)
	ck, cv := copyKV(k, v)
	return ck, cv, nil
}

func (c *cursor) Close() {}

type rwCursor struct{ cursor }

func (c *rwCursor) Put(k, v []byte) error    { return c.c.Bucket().Put(k, v) }
func (c *rwCursor) Delete(k []byte) error {
	// bbolt cursors delete at the current position only; re-seek to k
	// first so callers can delete by key without separately walking
	// there (kvstore.RwCursor.Delete takes an explicit key, unlike
	// bbolt's DeleteCurrent-at-cursor-position).
	cur, _ := c.c.Seek(k)
	if !bytes.Equal(cur, k) {
		return nil
	}
	return c.c.Delete()
}

type ttlKey struct {
	table string
	key   string
}

type ttlDue struct {
	table string
	key   []byte
}

// ttlIndex tracks pending expirations in memory; it does not survive a
// restart, so a crash between writing a TTL'd document and the next
// sweep can leave it un-expiring until a future write refreshes it.
// Acceptable for this module's scope, which doesn't guarantee durable
// scheduling for TTL expiry.
type ttlIndex struct {
	mu       sync.Mutex
	interval time.Duration
	expiry   map[ttlKey]time.Time
}

func (t *ttlIndex) set(table string, key []byte, at time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.expiry[ttlKey{table, string(key)}] = at
}

func (t *ttlIndex) cancel(table string, key []byte) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.expiry, ttlKey{table, string(key)})
}

func (t *ttlIndex) due(now time.Time) []ttlDue {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []ttlDue
	for k, at := range t.expiry {
		if !at.After(now) {
			out = append(out, ttlDue{table: k.table, key: []byte(k.key)})
		}
	}
	return out
}
