/*
Package udpnet is a UDP transport built as a pkg/stream.Stream over
net.UDPConn: bind, send, and receive datagrams through the same
prepare/read/write/close shape every other stream implementation uses.
*/
package udpnet

import (
	"context"
	"net"
	"time"

	"github.com/cuemby/strata/pkg/serr"
	"github.com/cuemby/strata/pkg/stream"
)

// Channel is a bound UDP socket exposed as a stream.Stream. Read/Write
// operate against whichever peer address was last used to send to, or
// (server mode) the address the most recent datagram arrived from —
// mirroring the original's UdpServer, which replies to "the last
// client heard from" unless told otherwise via WriteTo.
type Channel struct {
	stream.State
	conn *net.UDPConn
	peer *net.UDPAddr
}

// Listen binds a UDP socket at addr (server mode — addr typically has
// a port and no host, e.g. ":11511").
func Listen(addr string) (*Channel, error) {
	laddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, serr.Wrap(serr.ConfigInvalid, err, "udpnet: resolving listen address %q", addr)
	}
	conn, err := net.ListenUDP("udp", laddr)
	if err != nil {
		return nil, serr.Wrap(serr.TransportFatal, err, "udpnet: binding %q", addr)
	}
	return &Channel{conn: conn}, nil
}

// Dial creates a UDP socket pointed at a fixed peer (client mode).
func Dial(addr string) (*Channel, error) {
	raddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, serr.Wrap(serr.ConfigInvalid, err, "udpnet: resolving peer address %q", addr)
	}
	conn, err := net.DialUDP("udp", nil, raddr)
	if err != nil {
		return nil, serr.Wrap(serr.TransportFatal, err, "udpnet: dialing %q", addr)
	}
	return &Channel{conn: conn, peer: raddr}, nil
}

// Prepare marks the channel ready for use. The socket is already
// bound/connected by Listen/Dial, so this only flips the stream.State
// bookkeeping — unlike the original, where prepare() performs the
// actual bind.
func (c *Channel) Prepare(_ context.Context) error {
	c.MarkPrepared()
	return nil
}

// Read receives one datagram into p, recording its sender as the peer
// subsequent Write calls reply to (server mode's "last client heard
// from" behavior).
func (c *Channel) Read(p []byte) (int, error) {
	if !c.IsOpen() {
		return 0, stream.ErrNotPrepared
	}
	n, addr, err := c.conn.ReadFromUDP(p)
	if err != nil {
		return n, serr.Wrap(serr.TransportRetryable, err, "udpnet: read")
	}
	c.peer = addr
	return n, nil
}

// Write sends p as a single datagram to the current peer (the dialed
// address in client mode, or the last sender in server mode).
func (c *Channel) Write(p []byte) (int, error) {
	if !c.IsOpen() {
		return 0, stream.ErrNotPrepared
	}
	if c.peer == nil {
		return 0, serr.New(serr.Unsupported, "udpnet: no peer to write to yet")
	}
	var n int
	var err error
	if c.conn.RemoteAddr() != nil {
		// A dialed socket is connected; WriteToUDP is refused on it.
		n, err = c.conn.Write(p)
	} else {
		n, err = c.conn.WriteToUDP(p, c.peer)
	}
	if err != nil {
		return n, serr.Wrap(serr.TransportRetryable, err, "udpnet: write")
	}
	return n, nil
}

// WriteTo sends p to an explicit peer, bypassing the "last sender"
// tracking — used by a server replying to more than one client.
func (c *Channel) WriteTo(p []byte, addr *net.UDPAddr) (int, error) {
	if !c.IsOpen() {
		return 0, stream.ErrNotPrepared
	}
	n, err := c.conn.WriteToUDP(p, addr)
	if err != nil {
		return n, serr.Wrap(serr.TransportRetryable, err, "udpnet: write to %s", addr)
	}
	return n, nil
}

// LocalAddr reports the bound local address.
func (c *Channel) LocalAddr() net.Addr { return c.conn.LocalAddr() }

// SetReadDeadline bounds how long Read blocks waiting for a datagram.
func (c *Channel) SetReadDeadline(t time.Time) error { return c.conn.SetReadDeadline(t) }

// Close releases the socket. A second Close is a no-op.
func (c *Channel) Close() error {
	if !c.MarkClosed() {
		return nil
	}
	return c.conn.Close()
}
