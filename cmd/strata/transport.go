package main

import (
	"context"
	"encoding/binary"

	"github.com/cuemby/strata/pkg/buffer"
	"github.com/cuemby/strata/pkg/outbox"
	"github.com/cuemby/strata/pkg/udpnet"
)

// udpTransport is the outbox.Transport used by `strata serve` when
// --peer-addr is set: one long-lived UDP socket, dialed once at
// startup, delivering every message as a single length-prefixed
// datagram, used as the serve command's default producer transport.
//
// UDP gives no delivery acknowledgement, so Send reports OutcomeSent
// on any successful write — the remote peer's own application-level
// ack, if any, is outside this transport's concern — and OutcomeRetry
// on a write error, since a dropped/unreachable socket is usually
// transient on a LAN.
type udpTransport struct {
	ch *udpnet.Channel
}

func newUDPTransport(peerAddr string) (*udpTransport, error) {
	ch, err := udpnet.Dial(peerAddr)
	if err != nil {
		return nil, err
	}
	if err := ch.Prepare(context.Background()); err != nil {
		return nil, err
	}
	return &udpTransport{ch: ch}, nil
}

// encodeMessage packs the fields a peer needs to apply the mutation:
// topic, object id and payload, each length-prefixed, with op as a
// single byte between object id and payload, so the reader doesn't
// need the producer queue's schema to parse it.
func encodeMessage(msg *outbox.Message) []byte {
	buf := buffer.New(64 + len(msg.Payload))
	writeString(buf, msg.Topic)
	writeString(buf, msg.ObjectID.String())
	buf.AppendByte(byte(msg.Op))
	writeBytes(buf, msg.Payload)
	return buf.Bytes()
}

func writeString(buf *buffer.Buffer, s string) { writeBytes(buf, []byte(s)) }

func writeBytes(buf *buffer.Buffer, p []byte) {
	var lenPrefix [4]byte
	binary.BigEndian.PutUint32(lenPrefix[:], uint32(len(p)))
	buf.Append(lenPrefix[:])
	buf.Append(p)
}

func (t *udpTransport) Send(ctx context.Context, msg *outbox.Message) (outbox.Outcome, error) {
	datagram := encodeMessage(msg)
	if _, err := t.ch.Write(datagram); err != nil {
		return outbox.OutcomeRetry, err
	}
	return outbox.OutcomeSent, nil
}

func (t *udpTransport) Close() error { return t.ch.Close() }

// nopTransport is used when --peer-addr is left unset: messages queue
// and immediately report sent, useful for running a store/checker
// without a configured remote peer.
type nopTransport struct{}

func (nopTransport) Send(ctx context.Context, msg *outbox.Message) (outbox.Outcome, error) {
	return outbox.OutcomeSent, nil
}
