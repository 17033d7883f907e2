// Package initiator implements the do_op path: an
// OPENING → AWAITING_REPLY → (STREAMING | COMPLETE) → CLOSED state machine
// that issues a cache operation to a peer and feeds the reply and any
// subsequent data frames back to the caller. Grounded on jiva's
// rpc.Client (openebs-archive-jiva rpc/client.go): operation() there
// allocates a sequence number, sends, and blocks on a per-op timeout
// channel; this package generalizes that into an explicit state enum
// driven by session callbacks instead of a blocking select, since a single
// event thread here serves many concurrent ops.
package initiator

import (
	"sync"
	"time"

	"github.com/jiva-cluster/ccrpc/cachevc"
	"github.com/jiva-cluster/ccrpc/session"
	"github.com/jiva-cluster/ccrpc/streamer"
	"github.com/jiva-cluster/ccrpc/wire"
)

// State is the initiator record's position in its do_op state machine.
type State int

const (
	StateOpening State = iota
	StateAwaitingReply
	StateStreaming
	StateComplete
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateOpening:
		return "OPENING"
	case StateAwaitingReply:
		return "AWAITING_REPLY"
	case StateStreaming:
		return "STREAMING"
	case StateComplete:
		return "COMPLETE"
	case StateClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

// Caller is the surrounding engine's continuation: the set of terminal and
// streaming events an initiator record can deliver. Exactly one terminal
// event fires per op unless the caller cancels first.
type Caller interface {
	OnOpenRead(vc cachevc.VC, info cachevc.OpenInfo, httpInfo cachevc.HTTPInfo)
	OnOpenReadFailed(reason int32)
	OnOpenWrite(vc cachevc.VC)
	OnOpenWriteFailed(reason int32)
	OnRemoveComplete(err error)
	OnLinkComplete(err error)
	OnDerefComplete(err error)
	OnUpdateComplete(err error)
	// OnReadData delivers one chunk of a streamed read; eos is true on the
	// final delivery (which may carry zero bytes for an empty object).
	OnReadData(data []byte, eos bool)
	OnTimeout()
	OnError(err error)
}

// Action is the caller-visible handle returned by DoOp, used to cancel.
type Action struct {
	rec *Record
}

// Cancel marks the op cancelled. The session keeps draining but no further
// caller callbacks are made; resources free at the op's natural
// termination.
func (a *Action) Cancel() {
	a.rec.mu.Lock()
	a.rec.cancelled = true
	a.rec.mu.Unlock()
}

// Record is the initiator-side operation record.
type Record struct {
	mu sync.Mutex

	Seq      uint32
	Opcode   wire.Opcode
	FragType wire.FragType
	Digest   wire.Digest
	Peer     string

	caller    Caller
	sess      *session.Adapter
	state     State
	cancelled bool
	deadline  time.Time

	// completedOK records whether this op's terminal outcome was success,
	// for the sequence registry's journal reconciliation on close.
	completedOK bool

	// writeVC is set when a read-failed reply carries a salvaged write
	// token; the record hands this to the reuse cache on success.
	writeVC cachevc.VC

	stream *streamer.Streamer

	// declaredNBytes, writeStarted and pendingHTTPInfo support the
	// write-producer role: the caller pushes bytes in via the VC
	// returned from OnOpenWrite/the reuse cache, and the record paces
	// WRITE_BEGIN/WRITE_DONE/CLOSE frames out over the session.
	declaredNBytes  int64
	writeStarted    bool
	pendingHTTPInfo *cachevc.HTTPInfo

	engine *Engine
}

func (r *Record) setState(s State) {
	r.mu.Lock()
	r.state = s
	r.mu.Unlock()
}

func (r *Record) getState() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

func (r *Record) isCancelled() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cancelled
}

func (r *Record) setOutcome(ok bool) {
	r.mu.Lock()
	r.completedOK = ok
	r.mu.Unlock()
}

func (r *Record) outcome() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.completedOK
}
