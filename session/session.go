// Package session is the thin shim over the cluster transport: bind a
// handler, send a framed block at a priority, set the notification mask,
// close idempotently. Grounded on jiva's
// rpc.Wire (the single place rpc/client.go and rpc/server.go funnel all
// reads and writes through) generalized to the transport.Session
// collaborator interface instead of a raw net.Conn.
package session

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/jiva-cluster/ccrpc/transport"
	"github.com/jiva-cluster/ccrpc/wire"
)

// Adapter wraps a transport.Session with the idempotent-close and
// logging discipline every state machine in this engine relies on.
type Adapter struct {
	ID      string
	raw     transport.Session
	closed  atomic.Bool
	closeMu sync.Mutex
}

// Wrap adapts an existing transport.Session. id is used only for log
// correlation (grounded on google/uuid, which jiva's sibling repos
// use for connection identifiers where jiva itself uses a bare
// peer address string).
func Wrap(raw transport.Session) *Adapter {
	return &Adapter{ID: uuid.NewString(), raw: raw}
}

// Bind installs handler as the session's event recipient.
func (a *Adapter) Bind(handler transport.Handler) error {
	return a.raw.Bind(handler)
}

// SetEvents updates which low-level notifications the session delivers.
func (a *Adapter) SetEvents(mask transport.EventMask) {
	a.raw.SetEvents(mask)
}

// Send transmits one framed message at the given priority. A non-nil
// return is a transport-level failure; the caller must then close the
// session and surface an error — Send does not close on
// the caller's behalf, since some failures (e.g. during CACHE_OP_RESULT)
// need the caller to run cleanup first.
func (a *Adapter) Send(opcode wire.Opcode, payload []byte, deadline time.Time, priority transport.Priority) error {
	if a.closed.Load() {
		return errClosedSession
	}
	if err := a.raw.Send(opcode, payload, deadline, priority); err != nil {
		logrus.Errorf("session %s: send %s failed: %v", a.ID, opcode, err)
		return err
	}
	return nil
}

// Close is idempotent and safe to call from multiple terminal paths; only
// the first call reaches the underlying transport.
func (a *Adapter) Close() error {
	if !a.closed.CompareAndSwap(false, true) {
		return nil
	}
	a.closeMu.Lock()
	defer a.closeMu.Unlock()
	return a.raw.Close()
}

// Closed reports whether Close has already run.
func (a *Adapter) Closed() bool {
	return a.closed.Load()
}

// PeerID identifies the remote node, used by the sequence registry.
func (a *Adapter) PeerID() string {
	return a.raw.PeerID()
}

type sessionError string

func (e sessionError) Error() string { return string(e) }

const errClosedSession = sessionError("session: send on closed session")
