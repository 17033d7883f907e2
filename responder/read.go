package responder

import (
	"io"
	"sync/atomic"

	"github.com/jiva-cluster/ccrpc/cachevc"
	"github.com/jiva-cluster/ccrpc/streamer"
	"github.com/jiva-cluster/ccrpc/transport"
	"github.com/jiva-cluster/ccrpc/wire"
)

// openRead dispatches an OPEN_READ/OPEN_READ_LONG request to the local
// cache engine. httpReq/lookupCfg are nil for generic fragments.
func (r *Record) openRead(httpReq, lookupCfg []byte) {
	r.httpRequest = httpReq
	r.lookupConfig = lookupCfg
	r.setState(StateCacheOpen)
	if r.FragType == wire.FragHTTP {
		r.action = r.engine.Cache.OpenReadHTTP(r, r.Digest,
			cachevc.HTTPInfo{Bytes: httpReq}, cachevc.LookupConfig{Bytes: lookupCfg},
			r.FragType, r.Hostname)
		return
	}
	r.action = r.engine.Cache.OpenRead(r, r.Digest, r.FragType, r.Hostname)
}

// HandleOpenRead implements cachevc.Continuation. A failure triggers the
// migrate-on-demand salvage branch when enabled: the responder silently
// retries the digest as an OPEN_WRITE so the initiator's reuse cache can
// adopt the session with no further RPC.
func (r *Record) HandleOpenRead(vc cachevc.VC, info cachevc.OpenInfo, err error) {
	if err != nil {
		if r.engine.Stats != nil {
			r.engine.Stats.IncOpenReadFailures()
		}
		if r.engine.MigrateOnDemand {
			r.mu.Lock()
			r.salvaging = true
			r.readFailReason = errorReason(err)
			r.mu.Unlock()
			r.action = r.engine.Cache.OpenWrite(r, r.Digest, r.FragType, true, 0, r.Hostname)
			return
		}
		r.replyOpenReadFailed(errorReason(err))
		return
	}
	if r.engine.Stats != nil {
		r.engine.Stats.IncOpenReads()
	}
	r.vc = vc
	r.stream = streamer.New(info.Size)

	small := info.Size <= r.engine.SmallFragmentThreshold && !info.BeingWritten
	if small {
		r.setState(StateSmallDone)
		if info.Size == 0 {
			r.finishInlineRead(nil)
			return
		}
		if err := vc.DoIORead(r, info.Size); err != nil {
			r.failRead(err)
		}
		return
	}

	r.setState(StateStreamRead)
	reply := &wire.ReplyMsg{Result: wire.ResultOpenRead, DataLen: uint32(info.Size)}
	if httpInfo, ok := vc.GetHTTPInfo(); ok && len(httpInfo.Bytes) > 0 {
		reply.HdrLen = uint32(len(httpInfo.Bytes))
		reply.HTTPInfo = httpInfo.Bytes
	}
	r.sendReply(reply)
}

func (r *Record) replyOpenReadFailed(reason int32) {
	r.sendReply(&wire.ReplyMsg{Result: wire.ResultOpenReadFailed, Reason: reason})
	r.terminate()
}

func (r *Record) finishInlineRead(data []byte) {
	reply := &wire.ReplyMsg{
		Result:  wire.ResultOpenRead,
		DataLen: uint32(len(data)),
		Data:    data,
	}
	reply.Header.Flags |= wire.FlagFinal
	if httpInfo, ok := r.vc.GetHTTPInfo(); ok && len(httpInfo.Bytes) > 0 {
		reply.HdrLen = uint32(len(httpInfo.Bytes))
		reply.HTTPInfo = httpInfo.Bytes
	}
	r.sendReply(reply)
	r.terminate()
}

// readChunkSize bounds each DoIOPRead call on the large-object streaming
// path; the actual chunk size on the wire is whatever the cache engine
// hands back via OnReadReady, which may be smaller.
const readChunkSize = 64 << 10

// handleReadStreamFrame dispatches READ_BEGIN/READ_REENABLE frames on an
// already-open streaming read.
func (r *Record) handleReadStreamFrame(h wire.Header, reader io.Reader) {
	f, err := wire.DecodeDataFrame(reader, h)
	if err != nil {
		r.failRead(err)
		return
	}
	switch h.Opcode {
	case wire.OpReadBegin:
		r.pumpRead(f.Offset)
	case wire.OpReadReenable:
		r.stream.Reenable()
		r.pumpRead(r.stream.Delivered())
	default:
		r.failRead(&unknownOpcodeError{h.Opcode})
	}
}

func (r *Record) pumpRead(offset int64) {
	remaining := r.stream.Declared() - offset
	if remaining <= 0 {
		return
	}
	n := remaining
	if n > readChunkSize {
		n = readChunkSize
	}
	if err := r.vc.DoIOPRead(r, n, offset); err != nil {
		r.failRead(err)
	}
}

// OnReadReady implements cachevc.IOCompletion for the read path: every
// chunk the local VC hands back is either accumulated (small fast path) or
// forwarded immediately as a READ_DONE frame (streaming path).
func (r *Record) OnReadReady(data []byte) {
	switch r.getState() {
	case StateSmallDone:
		r.inlineBuf = append(r.inlineBuf, data...)
		done, err := r.stream.Accept(int64(len(data)))
		if err != nil {
			r.failRead(err)
			return
		}
		if done {
			r.finishInlineRead(r.inlineBuf)
			return
		}
		// The inline path drives DoIORead as a single call; each chunk it
		// hands back is accepted immediately, no wire reenable needed.
		r.stream.Reenable()
	case StateStreamRead:
		done, err := r.stream.Accept(int64(len(data)))
		if err != nil {
			r.failRead(err)
			return
		}
		frame := &wire.DataFrame{Seq: r.Seq, NBytes: int64(len(data)), Data: data}
		if r.sendFrame(wire.OpReadDone, encodeFrameOp(frame, wire.OpReadDone), transport.PriorityLow) != nil {
			return
		}
		if done {
			r.terminate()
		}
	}
}

func encodeFrameOp(f *wire.DataFrame, op wire.Opcode) []byte {
	f.Header.Version = wire.ProtocolVersion
	f.Header.Opcode = op
	return encodeFrame(f)
}

// OnEOS implements cachevc.IOCompletion: the cache engine ran out of data
// before the declared size was reached, a storage-layer inconsistency the
// responder has no choice but to treat as a read failure.
func (r *Record) OnEOS() {
	if r.getState() == StateStreamWrite {
		return
	}
	r.failRead(errShortRead)
}

// OnWriteComplete implements cachevc.IOCompletion for the write path; see
// write.go.
func (r *Record) OnWriteComplete(nbytes int64) {
	r.onWriteChunkComplete(nbytes)
}

// OnError implements cachevc.IOCompletion for both paths.
func (r *Record) OnError(err error) {
	switch r.getState() {
	case StateStreamWrite:
		r.failWrite(err)
	default:
		r.failRead(err)
	}
}

func (r *Record) failRead(err error) {
	if !r.replySent {
		r.replyOpenReadFailed(errorReason(err))
		return
	}
	r.sendAbort()
	r.terminate()
}

func (r *Record) sendAbort() {
	frame := &wire.DataFrame{Seq: r.Seq, ErrCode: errorReason(errShortRead)}
	_ = r.sendFrame(wire.OpError, encodeFrameOp(frame, wire.OpError), transport.PriorityHigh)
}

type shortReadError struct{}

func (shortReadError) Error() string { return "responder: short read from local cache" }

var errShortRead = shortReadError{}

var writeTokenCounter int64

// errorReason maps an error to the wire's signed int32 reason code. This
// engine has no shared error-code registry with the cache engine (an
// external collaborator), so every distinct error is mapped to a small
// negative sentinel rather than attempting to preserve cause detail across
// the wire.
func errorReason(err error) int32 {
	if err == nil {
		return 0
	}
	return -1
}

func (r *Record) nextWriteToken() uint64 {
	return uint64(atomic.AddInt64(&writeTokenCounter, 1))
}
