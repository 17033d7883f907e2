// Package streamer implements the shared data-plane sub-state-machine used
// by both the initiator (as a read consumer / write producer) and the
// responder (as a read producer / write consumer). It enforces a
// back-pressure discipline where the receiver side only accepts the next
// chunk after explicitly re-enabling, and the session's event mask mirrors
// that readiness so the transport behaves as a pull rather than a push.
// Session I/O is assumed FIFO, so a reenable is never expected to race a
// data frame for the same stream.
//
// Grounded on jiva's rpc.Client/Server pair, which drives exactly
// one outstanding op per sequence number at a time over a bufio-backed
// wire (openebs-archive-jiva rpc/client.go, rpc/server.go); this package
// generalizes that single-shot request/response into a multi-chunk stream
// with an explicit reenable instead of an implicit "one reply per request".
package streamer

import (
	"fmt"

	"github.com/jiva-cluster/ccrpc/transport"
)

// Streamer tracks cumulative bytes against a declared total and the
// expect-next latch. It is not goroutine-safe by itself — callers run it
// under whatever per-record serialization their state machine already
// uses, since event delivery is serialized on the record's mutex.
type Streamer struct {
	declared  int64
	delivered int64
	// expectNext is true when the consumer side has signaled it is ready
	// for the next chunk (a reenable for reads, local VIO reenable for
	// writes). A data frame arriving while this is false is a protocol
	// violation.
	expectNext bool
}

// New builds a Streamer for a stream declared to carry exactly declared
// bytes in total.
func New(declared int64) *Streamer {
	return &Streamer{declared: declared, expectNext: true}
}

// ErrUnexpectedChunk is returned by Accept when a chunk arrives while the
// streamer was not expecting one — a FIFO-ordering violation that should
// never happen with a correct peer.
type ErrUnexpectedChunk struct {
	Delivered, Declared int64
}

func (e *ErrUnexpectedChunk) Error() string {
	return fmt.Sprintf("streamer: unexpected chunk while not expecting one (delivered=%d declared=%d)", e.Delivered, e.Declared)
}

// ErrOverrun is returned by Accept when cumulative delivered bytes would
// exceed the declared total.
type ErrOverrun struct {
	Delivered, Declared int64
}

func (e *ErrOverrun) Error() string {
	return fmt.Sprintf("streamer: byte overrun: delivered=%d exceeds declared=%d", e.Delivered, e.Declared)
}

// Accept records a chunk of n bytes having arrived. It clears the
// expect-next latch (the caller must Reenable before the next chunk is
// valid) and reports whether the stream has now delivered its full
// declared length.
func (s *Streamer) Accept(n int64) (done bool, err error) {
	if !s.expectNext {
		return false, &ErrUnexpectedChunk{Delivered: s.delivered, Declared: s.declared}
	}
	s.expectNext = false
	s.delivered += n
	if s.delivered > s.declared {
		return false, &ErrOverrun{Delivered: s.delivered, Declared: s.declared}
	}
	return s.delivered == s.declared, nil
}

// Reenable signals readiness for the next chunk.
func (s *Streamer) Reenable() {
	s.expectNext = true
}

// ExpectingNext reports the current latch state.
func (s *Streamer) ExpectingNext() bool {
	return s.expectNext
}

// Delivered returns cumulative bytes accepted so far.
func (s *Streamer) Delivered() int64 {
	return s.delivered
}

// Declared returns the total the stream was opened with.
func (s *Streamer) Declared() int64 {
	return s.declared
}

// Done reports whether delivered has reached declared.
func (s *Streamer) Done() bool {
	return s.delivered >= s.declared
}

// DesiredMask returns the session event mask this streamer wants applied:
// NotifyDealer while expecting the next chunk, none otherwise. Callers
// apply this to their session via Session.SetEvents after every state
// transition, converting push into pull.
func (s *Streamer) DesiredMask() transport.EventMask {
	if s.expectNext {
		return transport.NotifyDealer
	}
	return transport.EventNone
}
