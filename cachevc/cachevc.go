// Package cachevc declares the local cache engine this RPC core drives as a
// client: open_read/open_write/remove/link/deref and the VC-level
// do_io_read/do_io_write/do_io_close operations. The cache engine itself
// is out of scope here; this package is the seam the responder
// state machine calls through. Grounded on jiva's types.Backend /
// types.ReaderWriterAt collaborator interfaces (openebs-archive-jiva
// types/types.go), generalized from a disk-backed replica to an
// HTTP-object cache fragment.
package cachevc

import (
	"time"

	"github.com/jiva-cluster/ccrpc/wire"
)

// HTTPInfo is the marshaled HTTP request/response-header blob a responder
// attaches to or reads from a VC for HTTP fragments. Its internal layout
// is opaque to this engine — marshaling is an external collaborator.
type HTTPInfo struct {
	Bytes []byte
}

// LookupConfig is the opaque request-matching configuration (conditional
// headers, vary rules) fed to open_read for HTTP fragments.
type LookupConfig struct {
	Bytes []byte
}

// OpenInfo carries the metadata a successful open hands back: total object
// size (for the small-fragment fast path) and whether another writer
// currently holds the object open.
type OpenInfo struct {
	Size        int64
	BeingWritten bool
}

// Action represents a pending asynchronous cache call; Cancel aborts the
// callback if it hasn't fired yet.
type Action interface {
	Cancel()
}

// Continuation receives the outcome of an asynchronous open/remove/link/
// deref call. Exactly one of (vc, err) is meaningful: err set means the
// call failed and vc is nil.
type Continuation interface {
	HandleOpenRead(vc VC, info OpenInfo, err error)
	HandleOpenWrite(vc VC, err error)
	HandleRemove(err error)
	HandleLink(err error)
	HandleDeref(err error)
}

// Engine is the local cache collaborator.
type Engine interface {
	OpenRead(cont Continuation, digest wire.Digest, frag wire.FragType, hostname string) Action
	OpenReadHTTP(cont Continuation, digest wire.Digest, info HTTPInfo, lookup LookupConfig, frag wire.FragType, hostname string) Action
	OpenWrite(cont Continuation, digest wire.Digest, frag wire.FragType, overwrite bool, pinTime time.Duration, hostname string) Action
	Remove(cont Continuation, digest wire.Digest, frag wire.FragType, hostname string) Action
	Link(cont Continuation, digest, prevDigest wire.Digest, frag wire.FragType) Action
	Deref(cont Continuation, digest wire.Digest, frag wire.FragType) Action
}

// IOCompletion receives VC-level I/O events: bytes moved, end of stream, or
// an error. This is the local analog of the wire data-frame vocabulary.
// OnReadReady delivers one chunk at a time so the responder can forward it
// as a READ_DONE frame without buffering the whole object; OnEOS marks the
// last chunk having already been delivered via OnReadReady.
type IOCompletion interface {
	OnReadReady(data []byte)
	OnWriteComplete(nbytes int64)
	OnEOS()
	OnError(err error)
}

// VC is a caller-visible handle to a local cache object, read or write.
type VC interface {
	DoIORead(completion IOCompletion, nbytes int64) error
	DoIOPRead(completion IOCompletion, nbytes int64, offset int64) error
	DoIOWrite(completion IOCompletion, data []byte) error
	DoIOClose(reason error) error
	SetHTTPInfo(info HTTPInfo) error
	GetHTTPInfo() (HTTPInfo, bool)
	Reenable()
}
