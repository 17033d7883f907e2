package initiator

import (
	"bytes"
	"io"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/jiva-cluster/ccrpc/cachevc"
	"github.com/jiva-cluster/ccrpc/reusecache"
	"github.com/jiva-cluster/ccrpc/streamer"
	"github.com/jiva-cluster/ccrpc/transport"
	"github.com/jiva-cluster/ccrpc/wire"
)

// OnMessage implements transport.Handler. It is the single dispatch point:
// an explicit state enum per record with a single dispatch function that
// matches (state, event) → state', replacing jiva's
// continuation-handler-swap style (rpc.Client.handleResponse).
func (r *Record) OnMessage(h wire.Header, payload []byte) {
	r.mu.Lock()
	state := r.state
	r.mu.Unlock()

	reader := bytes.NewReader(payload)
	switch h.Opcode {
	case wire.OpCacheOpResult:
		reply, err := wire.DecodeReply(reader, h)
		if err != nil {
			r.fail(err)
			return
		}
		r.handleReply(reply)
	case wire.OpReadDone:
		if state != StateStreaming {
			logrus.Warnf("initiator: READ_DONE for seq %d outside STREAMING (state=%s)", r.Seq, state)
			return
		}
		f, err := wire.DecodeDataFrame(reader, h)
		if err != nil {
			r.fail(err)
			return
		}
		r.handleReadDone(f)
	case wire.OpError, wire.OpAbort:
		f, _ := wire.DecodeDataFrame(reader, h)
		r.handleRemoteAbort(f)
	default:
		logrus.Warnf("initiator: unexpected opcode %s for seq %d in state %s", h.Opcode, r.Seq, state)
	}
}

// OnPeerReady implements transport.Handler. The initiator is a pure
// control/data consumer on the read path and a producer on the write
// path; neither role needs peer-ready notifications under this protocol's
// division of responsibility (the responder is the one pulling), so this
// is a no-op kept only to satisfy the interface.
func (r *Record) OnPeerReady() {}

// OnClose implements transport.Handler: the terminal event for every path
// through this record once the session itself closes.
func (r *Record) OnClose() {
	r.setState(StateClosed)
	r.engine.Registry.Remove(r.Peer, r.Seq, r.outcome(), nil)
	r.engine.Liveness.Disarm(r.Peer, r.Seq)
}

func (r *Record) fail(err error) {
	logrus.Errorf("initiator: seq %d to %s failed: %v", r.Seq, r.Peer, err)
	if !r.isCancelled() {
		r.caller.OnError(err)
	}
	r.setOutcome(false)
	r.setState(StateComplete)
	_ = r.sess.Close()
}

// handleReply is the reply-handling branch: success open,
// read-failed-with-salvaged-write-token, or plain failure.
func (r *Record) handleReply(reply *wire.ReplyMsg) {
	// A late reply after the deadline fired is dropped silently — no
	// double callback.
	r.mu.Lock()
	timedOut := r.state == StateComplete
	r.mu.Unlock()
	if timedOut {
		logrus.Debugf("initiator: dropping late reply for seq %d (already timed out)", r.Seq)
		_ = r.sess.Close()
		return
	}

	r.engine.Liveness.Disarm(r.Peer, r.Seq)

	switch {
	case reply.Result == wire.ResultOpenRead:
		r.handleOpenReadReply(reply)
	case reply.Result == wire.ResultOpenWrite:
		r.handleOpenWriteReply(reply)
	case reply.Result == wire.ResultOpenReadFailed && reply.WriteToken != 0:
		r.handleReadFailedWriteSalvaged(reply)
	case reply.Result.Failed():
		r.deliverFailure(reply)
	default:
		// REMOVE/LINK/DEREF success.
		r.deliverCacheOpSuccess(reply)
		r.setOutcome(true)
		r.setState(StateComplete)
		_ = r.sess.Close()
	}
}

// fastPathInlined reports whether a reply carried the whole (possibly
// empty) object inline rather than switching to streaming. This engine
// signals that with FlagFinal on the reply header — resolving the open
// question of how to disambiguate "empty large object" from "empty small
// object" with a header flag rather than inferring it from DataLen alone.
func fastPathInlined(reply *wire.ReplyMsg) bool {
	return reply.Header.Flags&wire.FlagFinal != 0
}

func (r *Record) handleOpenReadReply(reply *wire.ReplyMsg) {
	info := cachevc.OpenInfo{Size: int64(reply.DataLen)}
	httpInfo := cachevc.HTTPInfo{Bytes: reply.HTTPInfo}

	if fastPathInlined(reply) {
		if !r.isCancelled() {
			r.caller.OnOpenRead(nil, info, httpInfo)
			r.caller.OnReadData(reply.Data, true)
		}
		r.setOutcome(true)
		r.setState(StateComplete)
		_ = r.sess.Close()
		return
	}

	// Large-object path: the reply carried no data; switch to STREAMING
	// and await READ_DONE frames. The initiator issues READ_BEGIN to
	// start the flow.
	r.stream = streamer.New(info.Size)
	r.setState(StateStreaming)
	if !r.isCancelled() {
		r.caller.OnOpenRead(nil, info, httpInfo)
	}
	r.sess.SetEvents(transport.NotifyDealer)
	frame := &wire.DataFrame{
		Header: wire.Header{Version: wire.ProtocolVersion, Opcode: wire.OpReadBegin},
		Seq:    r.Seq,
		Offset: 0,
		NBytes: info.Size,
	}
	if err := r.sess.Send(wire.OpReadBegin, encodeFrame(frame), time.Time{}, transport.PriorityHigh); err != nil {
		r.fail(err)
	}
}

func (r *Record) handleOpenWriteReply(reply *wire.ReplyMsg) {
	r.setState(StateStreaming)
	r.stream = streamer.New(0) // declared stays 0; only Delivered() is read on this side, for the CLOSE frame.
	if !r.isCancelled() {
		r.caller.OnOpenWrite(&localWriteVC{rec: r})
	}
}

// handleReadFailedWriteSalvaged implements the migrate-on-demand salvage
// path: the remote read failed but the responder opened a write in its
// place; the initiator converts its cluster-read VC to a write VC and
// publishes it into the reuse cache.
func (r *Record) handleReadFailedWriteSalvaged(reply *wire.ReplyMsg) {
	r.writeVC = &remoteWriteVC{rec: r, token: reply.WriteToken}
	reason := reply.Reason
	var d reusecache.Digest
	copy(d[:], r.Digest[:])
	r.insertIntoReuseCache(d, reason, 0)
}

// insertIntoReuseCache publishes the salvaged write VC. Unlike every other
// reply branch, this one does NOT close the session on success: the
// session now belongs to the reuse-cache entry, kept alive until a later
// local open-write pulls it out or the sweeper purges it
// (reusecache.Cache.sweepOnce, which calls Close(true) on the
// VC, which in turn closes this record's session).
func (r *Record) insertIntoReuseCache(d reusecache.Digest, reason int32, attempt int) {
	if res := r.engine.ReuseCache.Insert(d, r.writeVC.(reusecache.VC)); res == reusecache.InsertRetry {
		if attempt >= maxReuseCacheInsertRetries {
			logrus.Errorf("initiator: giving up inserting salvaged write VC for %x after %d retries", d, attempt)
			if !r.isCancelled() {
				r.caller.OnOpenReadFailed(reason)
			}
			r.setOutcome(false)
			r.setState(StateComplete)
			_ = r.sess.Close()
			return
		}
		time.AfterFunc(reuseCacheInsertRetryDelay, func() {
			r.insertIntoReuseCache(d, reason, attempt+1)
		})
		return
	}
	// Deliver the original caller's OPEN_READ_FAILED; the salvage is an
	// internal side effect, not something the caller observes directly.
	if !r.isCancelled() {
		r.caller.OnOpenReadFailed(reason)
	}
	r.setState(StateStreaming)
}

const (
	maxReuseCacheInsertRetries = 5
	reuseCacheInsertRetryDelay = 5 * time.Millisecond
)

func (r *Record) deliverFailure(reply *wire.ReplyMsg) {
	if r.isCancelled() {
		r.setOutcome(false)
		r.setState(StateComplete)
		_ = r.sess.Close()
		return
	}
	switch reply.Result {
	case wire.ResultOpenReadFailed:
		r.caller.OnOpenReadFailed(reply.Reason)
	case wire.ResultOpenWriteFailed:
		r.caller.OnOpenWriteFailed(reply.Reason)
	case wire.ResultRemoveFailed:
		r.caller.OnRemoveComplete(&opFailedError{reply.Reason})
	case wire.ResultLinkFailed:
		r.caller.OnLinkComplete(&opFailedError{reply.Reason})
	case wire.ResultDerefFailed:
		r.caller.OnDerefComplete(&opFailedError{reply.Reason})
	case wire.ResultUpdateFailed:
		r.caller.OnUpdateComplete(&opFailedError{reply.Reason})
	}
	r.setOutcome(false)
	r.setState(StateComplete)
	_ = r.sess.Close()
}

func (r *Record) deliverCacheOpSuccess(reply *wire.ReplyMsg) {
	if r.isCancelled() {
		return
	}
	switch r.Opcode {
	case wire.OpRemove:
		r.caller.OnRemoveComplete(nil)
	case wire.OpLink:
		r.caller.OnLinkComplete(nil)
	case wire.OpDeref:
		r.caller.OnDerefComplete(nil)
	case wire.OpUpdate:
		r.caller.OnUpdateComplete(nil)
	}
}

func (r *Record) handleReadDone(f *wire.DataFrame) {
	done, err := r.stream.Accept(int64(len(f.Data)))
	if err != nil {
		r.fail(err)
		return
	}
	if !r.isCancelled() {
		r.caller.OnReadData(f.Data, done)
	}
	if done {
		r.setOutcome(true)
		r.setState(StateComplete)
		_ = r.sess.Close()
		return
	}
	r.stream.Reenable()
	r.sess.SetEvents(r.stream.DesiredMask())
	reenable := &wire.DataFrame{
		Header: wire.Header{Version: wire.ProtocolVersion, Opcode: wire.OpReadReenable},
		Seq:    r.Seq,
	}
	if err := r.sess.Send(wire.OpReadReenable, encodeFrame(reenable), time.Time{}, transport.PriorityHigh); err != nil {
		r.fail(err)
	}
}

func (r *Record) handleRemoteAbort(f *wire.DataFrame) {
	var errCode int32
	if f != nil {
		errCode = f.ErrCode
	}
	if !r.isCancelled() {
		r.caller.OnError(&opFailedError{errCode})
	}
	r.setOutcome(false)
	r.setState(StateComplete)
	_ = r.sess.Close()
}

func (e *Engine) handleTimeout(rec *Record) {
	rec.mu.Lock()
	alreadyTerminal := rec.state == StateComplete || rec.state == StateClosed
	if !alreadyTerminal {
		rec.state = StateComplete
		rec.completedOK = false
	}
	rec.mu.Unlock()
	if alreadyTerminal {
		return
	}
	logrus.Warnf("initiator: op timeout for seq %d to %s", rec.Seq, rec.Peer)
	if e.Stats != nil {
		e.Stats.IncTimeouts()
	}
	if !rec.isCancelled() {
		rec.caller.OnTimeout()
	}
	// The record lingers until the session actually closes or a late
	// reply arrives and is dropped. We still ask the session to close now;
	// OnClose/late-reply handling are idempotent.
	_ = rec.sess.Close()
}

type opFailedError struct {
	reason int32
}

func (e *opFailedError) Error() string {
	return "cache op failed, reason=" + strconv.Itoa(int(e.reason))
}

var errNotReadable = &opFailedError{reason: -1}

func encodeFrame(f *wire.DataFrame) []byte {
	b, err := wire.EncodeToBytes(func(w io.Writer) error {
		return wire.EncodeDataFrame(w, f)
	})
	if err != nil {
		logrus.Errorf("initiator: failed to encode %s frame: %v", f.Header.Opcode, err)
		return nil
	}
	return b
}
