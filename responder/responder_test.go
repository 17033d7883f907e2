package responder

import (
	"bytes"
	"sync"
	"testing"
	"time"

	"github.com/jiva-cluster/ccrpc/cachevc"
	"github.com/jiva-cluster/ccrpc/transport"
	"github.com/jiva-cluster/ccrpc/wire"
)

type fakeSession struct {
	mu      sync.Mutex
	handler transport.Handler
	sent    []sentFrame
	closed  bool
}

type sentFrame struct {
	opcode  wire.Opcode
	payload []byte
}

func (s *fakeSession) Bind(h transport.Handler) error {
	s.mu.Lock()
	s.handler = h
	s.mu.Unlock()
	return nil
}
func (s *fakeSession) SetEvents(transport.EventMask) {}
func (s *fakeSession) Send(opcode wire.Opcode, payload []byte, deadline time.Time, priority transport.Priority) error {
	s.mu.Lock()
	s.sent = append(s.sent, sentFrame{opcode, payload})
	s.mu.Unlock()
	return nil
}
func (s *fakeSession) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}
func (s *fakeSession) PeerID() string { return "peer-a" }

func (s *fakeSession) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *fakeSession) lastSent() (wire.Opcode, []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.sent) == 0 {
		return wire.OpNone, nil
	}
	f := s.sent[len(s.sent)-1]
	return f.opcode, f.payload
}

// fakeCacheEngine is a synchronous cachevc.Engine stub: every method
// invokes the appropriate Continuation callback immediately with
// caller-supplied results, rather than exercising real storage.
type fakeCacheEngine struct {
	openReadVC   cachevc.VC
	openReadInfo cachevc.OpenInfo
	openReadErr  error

	openWriteVC  cachevc.VC
	openWriteErr error

	removeErr error
	linkErr   error
	derefErr  error
}

type noopAction struct{}

func (noopAction) Cancel() {}

func (f *fakeCacheEngine) OpenRead(cont cachevc.Continuation, digest wire.Digest, frag wire.FragType, hostname string) cachevc.Action {
	cont.HandleOpenRead(f.openReadVC, f.openReadInfo, f.openReadErr)
	return noopAction{}
}
func (f *fakeCacheEngine) OpenReadHTTP(cont cachevc.Continuation, digest wire.Digest, info cachevc.HTTPInfo, lookup cachevc.LookupConfig, frag wire.FragType, hostname string) cachevc.Action {
	cont.HandleOpenRead(f.openReadVC, f.openReadInfo, f.openReadErr)
	return noopAction{}
}
func (f *fakeCacheEngine) OpenWrite(cont cachevc.Continuation, digest wire.Digest, frag wire.FragType, overwrite bool, pinTime time.Duration, hostname string) cachevc.Action {
	cont.HandleOpenWrite(f.openWriteVC, f.openWriteErr)
	return noopAction{}
}
func (f *fakeCacheEngine) Remove(cont cachevc.Continuation, digest wire.Digest, frag wire.FragType, hostname string) cachevc.Action {
	cont.HandleRemove(f.removeErr)
	return noopAction{}
}
func (f *fakeCacheEngine) Link(cont cachevc.Continuation, digest, prevDigest wire.Digest, frag wire.FragType) cachevc.Action {
	cont.HandleLink(f.linkErr)
	return noopAction{}
}
func (f *fakeCacheEngine) Deref(cont cachevc.Continuation, digest wire.Digest, frag wire.FragType) cachevc.Action {
	cont.HandleDeref(f.derefErr)
	return noopAction{}
}

// fakeVC is a cachevc.VC stub whose DoIORead synchronously delivers all of
// readData in a single OnReadReady call (it never calls OnEOS), matching
// the small-object fast path.
// closeCalls counts DoIOClose invocations rather than latching a bool, so
// tests can assert a VC was closed exactly once. If deferWrite is set,
// DoIOWrite stashes its completion instead of firing it, so a test can
// hold a write "in flight" and probe the streamer's gate.
type fakeVC struct {
	readData   []byte
	closeCalls int

	deferWrite   bool
	pendingWrite cachevc.IOCompletion
}

func (v *fakeVC) DoIORead(completion cachevc.IOCompletion, nbytes int64) error {
	completion.OnReadReady(v.readData)
	return nil
}
func (v *fakeVC) DoIOPRead(completion cachevc.IOCompletion, nbytes int64, offset int64) error {
	completion.OnReadReady(v.readData)
	return nil
}
func (v *fakeVC) DoIOWrite(completion cachevc.IOCompletion, data []byte) error {
	if v.deferWrite {
		v.pendingWrite = completion
		return nil
	}
	completion.OnWriteComplete(int64(len(data)))
	return nil
}
func (v *fakeVC) DoIOClose(reason error) error {
	v.closeCalls++
	return nil
}
func (v *fakeVC) SetHTTPInfo(cachevc.HTTPInfo) error    { return nil }
func (v *fakeVC) GetHTTPInfo() (cachevc.HTTPInfo, bool) { return cachevc.HTTPInfo{}, false }
func (v *fakeVC) Reenable()                             {}

func acceptOn(t *testing.T, e *Engine) *fakeSession {
	t.Helper()
	sess := &fakeSession{}
	if err := e.Accept(sess); err != nil {
		t.Fatal(err)
	}
	return sess
}

func deliverShort(t *testing.T, sess *fakeSession, m *wire.ShortMsg) {
	t.Helper()
	var buf bytes.Buffer
	if err := wire.EncodeShort(&buf, m); err != nil {
		t.Fatal(err)
	}
	h, body := splitHeader(t, buf.Bytes())
	sess.mu.Lock()
	handler := sess.handler
	sess.mu.Unlock()
	handler.OnMessage(h, body)
}

func deliverFrame(t *testing.T, sess *fakeSession, f *wire.DataFrame) {
	t.Helper()
	var buf bytes.Buffer
	if err := wire.EncodeDataFrame(&buf, f); err != nil {
		t.Fatal(err)
	}
	h, body := splitHeader(t, buf.Bytes())
	sess.mu.Lock()
	handler := sess.handler
	sess.mu.Unlock()
	handler.OnMessage(h, body)
}

func splitHeader(t *testing.T, buf []byte) (wire.Header, []byte) {
	t.Helper()
	r := bytes.NewReader(buf)
	h, err := wire.ReadHeader(r)
	if err != nil {
		t.Fatal(err)
	}
	rest := make([]byte, r.Len())
	if _, err := r.Read(rest); err != nil && r.Len() > 0 {
		t.Fatal(err)
	}
	return h, rest
}

func TestOpenReadSmallObjectInlineFastPath(t *testing.T) {
	vc := &fakeVC{readData: []byte("hello")}
	cache := &fakeCacheEngine{openReadVC: vc, openReadInfo: cachevc.OpenInfo{Size: 5}}
	e := &Engine{Cache: cache, SmallFragmentThreshold: 1 << 20}
	sess := acceptOn(t, e)

	deliverShort(t, sess, &wire.ShortMsg{
		Header: wire.Header{Version: wire.ProtocolVersion, Opcode: wire.OpOpenRead},
		Digest: wire.Digest{1},
		Seq:    1,
		NBytes: 5,
	})

	opcode, payload := sess.lastSent()
	if opcode != wire.OpCacheOpResult {
		t.Fatalf("last sent opcode = %s, want CACHE_OP_RESULT", opcode)
	}
	h, body := splitHeader(t, payload)
	reply, err := wire.DecodeReply(bytes.NewReader(body), h)
	if err != nil {
		t.Fatal(err)
	}
	if reply.Result != wire.ResultOpenRead {
		t.Fatalf("Result = %v, want ResultOpenRead", reply.Result)
	}
	if string(reply.Data) != "hello" {
		t.Fatalf("Data = %q, want hello", reply.Data)
	}
	if vc.closeCalls != 1 {
		t.Fatalf("DoIOClose called %d times, want exactly 1", vc.closeCalls)
	}
	if !sess.isClosed() {
		t.Fatal("expected the session to close once the record terminates")
	}
}

func TestRemoveSuccessSendsReplyAndCloses(t *testing.T) {
	cache := &fakeCacheEngine{}
	e := &Engine{Cache: cache}
	sess := acceptOn(t, e)

	deliverShort(t, sess, &wire.ShortMsg{
		Header: wire.Header{Version: wire.ProtocolVersion, Opcode: wire.OpRemove},
		Digest: wire.Digest{2},
		Seq:    2,
	})

	opcode, payload := sess.lastSent()
	if opcode != wire.OpCacheOpResult {
		t.Fatalf("last sent opcode = %s, want CACHE_OP_RESULT", opcode)
	}
	h, body := splitHeader(t, payload)
	reply, err := wire.DecodeReply(bytes.NewReader(body), h)
	if err != nil {
		t.Fatal(err)
	}
	if reply.Result != wire.ResultRemove {
		t.Fatalf("Result = %v, want ResultRemove", reply.Result)
	}
	if !sess.isClosed() {
		t.Fatal("expected session to close after REMOVE completes")
	}
}

func TestRemoveFailureReportsReason(t *testing.T) {
	cache := &fakeCacheEngine{removeErr: errShortRead}
	e := &Engine{Cache: cache}
	sess := acceptOn(t, e)

	deliverShort(t, sess, &wire.ShortMsg{
		Header: wire.Header{Version: wire.ProtocolVersion, Opcode: wire.OpRemove},
		Digest: wire.Digest{3},
		Seq:    3,
	})

	_, payload := sess.lastSent()
	h, body := splitHeader(t, payload)
	reply, err := wire.DecodeReply(bytes.NewReader(body), h)
	if err != nil {
		t.Fatal(err)
	}
	if reply.Result != wire.ResultRemoveFailed {
		t.Fatalf("Result = %v, want ResultRemoveFailed", reply.Result)
	}
	if reply.Reason == 0 {
		t.Fatal("expected a non-zero failure reason")
	}
}

func TestDoUpdateAlwaysSucceeds(t *testing.T) {
	cache := &fakeCacheEngine{}
	e := &Engine{Cache: cache}
	sess := acceptOn(t, e)

	deliverShort(t, sess, &wire.ShortMsg{
		Header: wire.Header{Version: wire.ProtocolVersion, Opcode: wire.OpUpdate},
		Digest: wire.Digest{4},
		Seq:    4,
	})

	_, payload := sess.lastSent()
	h, body := splitHeader(t, payload)
	reply, err := wire.DecodeReply(bytes.NewReader(body), h)
	if err != nil {
		t.Fatal(err)
	}
	if reply.Result != wire.ResultUpdate {
		t.Fatalf("Result = %v, want ResultUpdate", reply.Result)
	}
}

func TestOpenWriteStreamThenCloseCompletes(t *testing.T) {
	vc := &fakeVC{}
	cache := &fakeCacheEngine{openWriteVC: vc}
	e := &Engine{Cache: cache}
	sess := acceptOn(t, e)

	deliverShort(t, sess, &wire.ShortMsg{
		Header: wire.Header{Version: wire.ProtocolVersion, Opcode: wire.OpOpenWrite},
		Digest: wire.Digest{5},
		Seq:    5,
	})

	opcode, payload := sess.lastSent()
	if opcode != wire.OpCacheOpResult {
		t.Fatalf("last sent opcode = %s, want CACHE_OP_RESULT", opcode)
	}
	h, body := splitHeader(t, payload)
	reply, err := wire.DecodeReply(bytes.NewReader(body), h)
	if err != nil {
		t.Fatal(err)
	}
	if reply.Result != wire.ResultOpenWrite {
		t.Fatalf("Result = %v, want ResultOpenWrite", reply.Result)
	}

	deliverFrame(t, sess, &wire.DataFrame{
		Header: wire.Header{Version: wire.ProtocolVersion, Opcode: wire.OpWriteBegin},
		Seq:    5,
		NBytes: 4,
	})
	deliverFrame(t, sess, &wire.DataFrame{
		Header: wire.Header{Version: wire.ProtocolVersion, Opcode: wire.OpWriteDone},
		Seq:    5,
		NBytes: 4,
		Data:   []byte("data"),
	})
	deliverFrame(t, sess, &wire.DataFrame{
		Header: wire.Header{Version: wire.ProtocolVersion, Opcode: wire.OpClose},
		Seq:    5,
		NBytes: 4,
	})

	if vc.closeCalls != 1 {
		t.Fatalf("DoIOClose called %d times, want exactly 1", vc.closeCalls)
	}
	if !sess.isClosed() {
		t.Fatal("expected the session to close once the write completes")
	}
}

func TestWriteCloseWithShortDeliveryFailsWithoutDoubleClose(t *testing.T) {
	vc := &fakeVC{}
	cache := &fakeCacheEngine{openWriteVC: vc}
	e := &Engine{Cache: cache}
	sess := acceptOn(t, e)

	deliverShort(t, sess, &wire.ShortMsg{
		Header: wire.Header{Version: wire.ProtocolVersion, Opcode: wire.OpOpenWrite},
		Digest: wire.Digest{7},
		Seq:    7,
	})

	deliverFrame(t, sess, &wire.DataFrame{
		Header: wire.Header{Version: wire.ProtocolVersion, Opcode: wire.OpWriteBegin},
		Seq:    7,
		NBytes: 4,
	})
	// CLOSE arrives after only 0 of the declared 4 bytes were delivered.
	deliverFrame(t, sess, &wire.DataFrame{
		Header: wire.Header{Version: wire.ProtocolVersion, Opcode: wire.OpClose},
		Seq:    7,
		NBytes: 0,
	})

	if vc.closeCalls != 1 {
		t.Fatalf("DoIOClose called %d times, want exactly 1 even on a short-delivery close", vc.closeCalls)
	}
	opcode, _ := sess.lastSent()
	if opcode != wire.OpError {
		t.Fatalf("last sent opcode = %s, want ERROR for a short-delivery CLOSE", opcode)
	}
	if !sess.isClosed() {
		t.Fatal("expected the session to close after the short-delivery failure")
	}
}

func TestWriteDoneRejectsChunkBeforePriorOneReenables(t *testing.T) {
	vc := &fakeVC{deferWrite: true}
	cache := &fakeCacheEngine{openWriteVC: vc}
	e := &Engine{Cache: cache}
	sess := acceptOn(t, e)

	deliverShort(t, sess, &wire.ShortMsg{
		Header: wire.Header{Version: wire.ProtocolVersion, Opcode: wire.OpOpenWrite},
		Digest: wire.Digest{8},
		Seq:    8,
	})
	deliverFrame(t, sess, &wire.DataFrame{
		Header: wire.Header{Version: wire.ProtocolVersion, Opcode: wire.OpWriteBegin},
		Seq:    8,
		NBytes: 8,
	})
	// The first chunk's DoIOWrite is held in flight (deferWrite), so the
	// streamer's expect-next latch stays cleared: the held completion never
	// calls back through onWriteChunkComplete in this test.
	deliverFrame(t, sess, &wire.DataFrame{
		Header: wire.Header{Version: wire.ProtocolVersion, Opcode: wire.OpWriteDone},
		Seq:    8,
		NBytes: 4,
		Data:   []byte("data"),
	})
	// A second chunk arriving before the first is acknowledged violates the
	// expect-next gate and must be rejected, not handed to the VC.
	deliverFrame(t, sess, &wire.DataFrame{
		Header: wire.Header{Version: wire.ProtocolVersion, Opcode: wire.OpWriteDone},
		Seq:    8,
		NBytes: 4,
		Data:   []byte("more"),
	})
	opcode, _ := sess.lastSent()
	if opcode != wire.OpError {
		t.Fatalf("last sent opcode = %s, want ERROR for a chunk arriving before reenable", opcode)
	}
	if !sess.isClosed() {
		t.Fatal("expected the session to close after the protocol violation")
	}
}

func TestMigrateOnDemandSalvageReportsOriginalFailure(t *testing.T) {
	writeVC := &fakeVC{}
	cache := &fakeCacheEngine{
		openReadErr: errShortRead,
		openWriteVC: writeVC,
	}
	e := &Engine{Cache: cache, MigrateOnDemand: true}
	sess := acceptOn(t, e)

	deliverShort(t, sess, &wire.ShortMsg{
		Header: wire.Header{Version: wire.ProtocolVersion, Opcode: wire.OpOpenRead},
		Digest: wire.Digest{6},
		Seq:    6,
	})

	opcode, payload := sess.lastSent()
	if opcode != wire.OpCacheOpResult {
		t.Fatalf("last sent opcode = %s, want CACHE_OP_RESULT", opcode)
	}
	h, body := splitHeader(t, payload)
	reply, err := wire.DecodeReply(bytes.NewReader(body), h)
	if err != nil {
		t.Fatal(err)
	}
	if reply.Result != wire.ResultOpenReadFailed {
		t.Fatalf("Result = %v, want ResultOpenReadFailed (the salvage path still reports the read failure)", reply.Result)
	}
	if reply.WriteToken == 0 {
		t.Fatal("expected a non-zero write token from the salvaged write VC")
	}
}

func TestUnknownOpcodeSendsAbortAndCloses(t *testing.T) {
	cache := &fakeCacheEngine{}
	e := &Engine{Cache: cache}
	sess := acceptOn(t, e)

	var buf bytes.Buffer
	if err := wire.WriteHeader(&buf, wire.Header{Version: wire.ProtocolVersion, Opcode: wire.OpNone}); err != nil {
		t.Fatal(err)
	}
	h, err := wire.ReadHeader(bytes.NewReader(buf.Bytes()))
	if err != nil {
		t.Fatal(err)
	}
	sess.mu.Lock()
	handler := sess.handler
	sess.mu.Unlock()
	handler.OnMessage(h, nil)

	opcode, _ := sess.lastSent()
	if opcode != wire.OpAbort {
		t.Fatalf("last sent opcode = %s, want ABORT", opcode)
	}
	if !sess.isClosed() {
		t.Fatal("expected session to close after a protocol error")
	}
}
