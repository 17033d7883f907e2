// Package transport declares the cluster transport this engine consumes as
// an external collaborator: session creation, framed message send, and
// notification masks. The transport itself (session multiplexing, priority
// queues, wire-level framing below our message codec) is out of scope —
// this package is the seam, not an implementation.
// Grounded on the shape of jiva's rpc.Wire plus rpc.Client/Server's
// split of "send a framed message" from "drive a connection's event loop".
package transport

import (
	"time"

	"github.com/jiva-cluster/ccrpc/wire"
)

// EventMask selects which low-level events a session delivers to its
// handler. NotifyDealer corresponds to the "peer ready to read" event,
// used by the data streamer to implement back-pressure.
type EventMask uint32

const (
	EventNone EventMask = 0
	// NotifyDealer requests delivery of "peer ready to read" events.
	NotifyDealer EventMask = 1 << 0
)

// Priority is the transport-level send priority class.
type Priority int

const (
	PriorityHigh Priority = iota // control frames, errors
	PriorityMid                  // replies
	PriorityLow                  // bulk data
)

// Handler receives inbound messages and lifecycle events for one session.
// Implementations live in initiator/responder; the transport never
// interprets message contents, only opcodes needed for dispatch framing.
type Handler interface {
	// OnMessage is invoked once per inbound frame, in FIFO order, with the
	// frame's header already parsed and its payload copied into a
	// contiguous buffer (so the transport's own buffer can be reused
	// immediately after the first inbound frame is handled).
	OnMessage(h wire.Header, payload []byte)
	// OnPeerReady fires when NotifyDealer is set and the peer has data to
	// deliver; this is the pull-side signal the data streamer waits on.
	OnPeerReady()
	// OnClose fires exactly once when the session transitions to closed,
	// whether locally or peer-initiated.
	OnClose()
}

// Session is the opaque per-operation channel this engine is handed or
// asked to create. All methods are safe to call from the owning event
// thread only — there is no cross-thread synchronization inside Session.
type Session interface {
	// Bind installs handler as the recipient of this session's events.
	Bind(handler Handler) error
	// SetEvents selects which events future OnPeerReady/OnMessage
	// deliveries correspond to.
	SetEvents(mask EventMask)
	// Send transmits one framed message. A non-nil error is a
	// transport-level failure; the caller must close the session and
	// surface an error to its own caller.
	Send(opcode wire.Opcode, payload []byte, deadline time.Time, priority Priority) error
	// Close is idempotent and safe to race with a peer-initiated close.
	Close() error
	// PeerID identifies the remote node this session talks to, used by
	// the sequence registry and by peer-death fan-out.
	PeerID() string
}

// Dealer creates new outbound sessions to a named peer. The initiator state
// machine is this package's only direct caller of CreateSession.
type Dealer interface {
	CreateSession(peer string, handler Handler, mask EventMask) (Session, error)
}
