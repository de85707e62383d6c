/*
Package stream is the abstract data-stream interface every concrete
transport in this module implements: an object that is prepared
before use, read from and written to, and closed exactly once,
expressed as context-scoped, blocking calls returning (n int, err
error) rather than a callback-driven channel.
*/
package stream

import (
	"context"
	"io"
	"sync"

	"github.com/cuemby/strata/pkg/serr"
)

// Stream is a data stream that must be prepared before Read/Write and
// closed exactly once.
type Stream interface {
	Prepare(ctx context.Context) error
	io.Reader
	io.Writer
	io.Closer
	IsOpen() bool
	IsClosed() bool
}

// State tracks the open/closed bookkeeping every Stream implementation
// needs (original's WithPrepareCloseFlags: m_closed/m_destroying),
// guarded by a mutex since streams are typically shared across a
// caller goroutine and a background reader/writer.
type State struct {
	mu sync.Mutex
	opened bool
	closed bool
}

// MarkPrepared records that Prepare succeeded; calling it twice is a
// no-op, matching the original's "if already open, reset() first"
// prepare() contract simplified to idempotent preparation.
func (s *State) MarkPrepared() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.opened = true
	s.closed = false
}

// MarkClosed records a close; returns false if the stream was already
// closed, so callers (Close implementations) can no-op a second close
// instead of double-releasing resources.
func (s *State) MarkClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.closed = true
	return true
}

func (s *State) IsOpen() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.opened && !s.closed
}

func (s *State) IsClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// IsActive reports whether the stream is prepared and not yet closed.
func (s *State) IsActive() bool { return s.IsOpen() }

// ErrNotPrepared is returned by Read/Write implementations invoked
// before Prepare.
var ErrNotPrepared = serr.New(serr.Unsupported, "stream: not prepared")

// Chain proxies writes/reads to a next stream in a pipeline, the Go
// analogue of the original's StreamChain: a stage that doesn't own the
// underlying transport itself, just forwards to whatever is plugged
// into it.
type Chain struct {
	mu sync.RWMutex
	writeFn func(p []byte) (int, error)
	readFn func(p []byte) (int, error)
}

// SetWriteNext installs the next stage's write function.
func (c *Chain) SetWriteNext(fn func(p []byte) (int, error)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.writeFn = fn
}

// SetReadNext installs the next stage's read function.
func (c *Chain) SetReadNext(fn func(p []byte) (int, error)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.readFn = fn
}

func (c *Chain) WriteNext(p []byte) (int, error) {
	c.mu.RLock()
	fn := c.writeFn
	c.mu.RUnlock()
	if fn == nil {
		return 0, serr.New(serr.Unsupported, "stream: no next write stage")
	}
	return fn(p)
}

func (c *Chain) ReadNext(p []byte) (int, error) {
	c.mu.RLock()
	fn := c.readFn
	c.mu.RUnlock()
	if fn == nil {
		return 0, serr.New(serr.Unsupported, "stream: no next read stage")
	}
	return fn(p)
}
