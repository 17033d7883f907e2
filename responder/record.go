// Package responder implements the cache_op dispatch path: a
// DISPATCH → CACHE_OPEN → REPLY → (SMALL_DONE|STREAM_READ|STREAM_WRITE) →
// CLOSED state machine that unmarshals an inbound request, drives the
// local cache VC, and streams the result back across the session.
// Grounded on jiva's rpc.Server (openebs-archive-jiva rpc/server.go):
// Handle()'s readWrite loop dispatches by msg.Type to handleRead/
// handleWrite/etc and always replies; this package generalizes that
// single-local-disk dispatch into one that goes through the cachevc.Engine
// collaborator and can stream large objects instead of replying in one
// shot.
package responder

import (
	"sync"
	"time"

	"github.com/jiva-cluster/ccrpc/cachevc"
	"github.com/jiva-cluster/ccrpc/session"
	"github.com/jiva-cluster/ccrpc/streamer"
	"github.com/jiva-cluster/ccrpc/wire"
)

// State is the responder record's position in its dispatch state machine.
type State int

const (
	StateDispatch State = iota
	StateCacheOpen
	StateReply
	StateSmallDone
	StateStreamRead
	StateStreamWrite
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateDispatch:
		return "DISPATCH"
	case StateCacheOpen:
		return "CACHE_OPEN"
	case StateReply:
		return "REPLY"
	case StateSmallDone:
		return "SMALL_DONE"
	case StateStreamRead:
		return "STREAM_READ"
	case StateStreamWrite:
		return "STREAM_WRITE"
	case StateClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

// Record is the responder-side operation record. One Record
// backs exactly one inbound session; it is bound as that session's
// transport.Handler and also implements cachevc.Continuation to receive
// the local cache engine's asynchronous callback.
type Record struct {
	mu sync.Mutex

	engine *Engine
	sess   *session.Adapter

	state State

	Opcode   wire.Opcode
	FragType wire.FragType
	Digest   wire.Digest
	Seq      uint32
	Hostname string
	PinTime  time.Duration
	Overwrite bool

	httpRequest  []byte
	lookupConfig []byte

	vc     cachevc.VC
	action cachevc.Action
	stream *streamer.Streamer

	// pendingHTTP records the header bytes most recently pushed to the VC
	// via WRITE_BEGIN or HEADER_ONLY_UPDATE.
	pendingHTTP *cachevc.HTTPInfo

	// writeDeclared is the total byte count the peer declared on
	// WRITE_BEGIN.
	writeDeclared int64

	// linkPrevDigest carries LINK's second digest across the first-frame
	// parse to the dispatch call.
	linkPrevDigest wire.Digest

	// salvaging is set while a read-failed open is being retried as a
	// write, the migrate-on-demand branch.
	salvaging      bool
	readFailReason int32

	inlineBuf []byte
	replySent bool
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
