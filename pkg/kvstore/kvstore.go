/*
Package kvstore declares the ordered key-value abstraction the document
store is built on: a table ("bucket"/"column family")
namespace, byte-sortable keys, and cursor-based range iteration. It is
deliberately narrow compared to a full MDBX/RocksDB surface — just
enough to carry composite index-key range scans, per-partition column
families, and read/write transactions — modeled on erigon-lib's kv.Tx /
kv.Cursor split (github.com/ledgerwatch/erigon-lib/kv), adapted down
from multi-table-type DupSort semantics to the single ordered-byte-key
shape this module needs.

A concrete backend lives in a sibling package (pkg/kvstore/boltkv for
bbolt); docstore, outbox and access depend only on this package so a
different backend can be swapped in without touching them.
*/
package kvstore

import "context"

// DB is a handle to an open store. Every read or write happens inside
// a transaction obtained via View or Update.
type DB interface {
	// View runs fn in a read-only transaction. The Tx passed to fn must
	// not be used after fn returns.
	View(ctx context.Context, fn func(tx Tx) error) error

	// Update runs fn in a read-write transaction, committed if fn
	// returns nil and rolled back otherwise.
	Update(ctx context.Context, fn func(tx RwTx) error) error

	// EnsureBucket creates table if it doesn't already exist. Table
	// creation happens outside of caller-visible transactions so that
	// partition rollover
	// can provision a new pair without taking a write lock on existing
	// data.
	EnsureBucket(ctx context.Context, table string) error

	// Buckets lists every existing table name, used by partition admin
	// to discover and prune expired column families.
	Buckets(ctx context.Context) ([]string, error)

	Close() error
}

// Tx is a read-only view over one or more tables.
type Tx interface {
	// Has reports whether key exists in table.
	Has(table string, key []byte) (bool, error)

	// Get returns the value for key in table, or ok=false if absent.
	// The returned slice is only valid for the lifetime of the
	// transaction; callers that need to keep it must copy.
	Get(table string, key []byte) (value []byte, ok bool, err error)

	// Cursor opens a cursor over table for ordered iteration.
	Cursor(table string) (Cursor, error)
}

// RwTx is a read-write transaction.
type RwTx interface {
	Tx

	Put(table string, key, value []byte) error
	Delete(table string, key []byte) error

	// RwCursor opens a cursor that can also mutate the table it walks.
	RwCursor(table string) (RwCursor, error)

	// DropBucket removes table and everything in it, used to retire an
	// expired time partition in one step instead of deleting key by key.
	DropBucket(table string) error
}

// Cursor walks a table's keys in ascending byte order.
type Cursor interface {
	First() (k, v []byte, err error)
	// Seek positions at the first key >= seek.
	Seek(seek []byte) (k, v []byte, err error)
	Next() (k, v []byte, err error)
	Prev() (k, v []byte, err error)
	Last() (k, v []byte, err error)
	Close()
}

// RwCursor is a Cursor that can also write and delete keys in the table
// it walks; Put and Delete take an explicit key.
type RwCursor interface {
	Cursor
	Put(k, v []byte) error
	Delete(k []byte) error
}
