package responder

import (
	"io"

	"github.com/sirupsen/logrus"

	"github.com/jiva-cluster/ccrpc/cachevc"
	"github.com/jiva-cluster/ccrpc/streamer"
	"github.com/jiva-cluster/ccrpc/transport"
	"github.com/jiva-cluster/ccrpc/wire"
)

// openWrite dispatches an OPEN_WRITE/OPEN_WRITE_LONG request. overwrite
// mirrors the initiator's DataWord bit from the do_op wire encoding.
func (r *Record) openWrite(overwrite bool) {
	r.setState(StateCacheOpen)
	r.Overwrite = overwrite
	r.action = r.engine.Cache.OpenWrite(r, r.Digest, r.FragType, overwrite, r.PinTime, r.Hostname)
}

// HandleOpenWrite implements cachevc.Continuation. It is reached on two
// distinct paths: a genuine OPEN_WRITE, and the migrate-on-demand retry
// issued by HandleOpenRead after a failed read — in the latter case the
// reply reports the ORIGINAL read failure plus a salvage token, never a
// plain OPEN_WRITE success.
func (r *Record) HandleOpenWrite(vc cachevc.VC, err error) {
	r.mu.Lock()
	salvaging := r.salvaging
	reason := r.readFailReason
	r.mu.Unlock()

	if err != nil {
		if r.engine.Stats != nil {
			r.engine.Stats.IncOpenWriteFailures()
		}
		if salvaging {
			r.replyOpenReadFailed(reason)
			return
		}
		r.sendReply(&wire.ReplyMsg{Result: wire.ResultOpenWriteFailed, Reason: errorReason(err)})
		r.terminate()
		return
	}

	if r.engine.Stats != nil {
		r.engine.Stats.IncOpenWrites()
	}
	r.vc = vc
	r.stream = streamer.New(0)
	r.setState(StateStreamWrite)

	if salvaging {
		r.sendReply(&wire.ReplyMsg{
			Result:     wire.ResultOpenReadFailed,
			Reason:     reason,
			WriteToken: r.nextWriteToken(),
		})
		return
	}
	r.sendReply(&wire.ReplyMsg{Result: wire.ResultOpenWrite})
}

// handleWriteStreamFrame dispatches WRITE_BEGIN/WRITE_DONE/
// HEADER_ONLY_UPDATE/CLOSE frames on an already-open write.
func (r *Record) handleWriteStreamFrame(h wire.Header, reader io.Reader) {
	f, err := wire.DecodeDataFrame(reader, h)
	if err != nil {
		r.failWrite(err)
		return
	}
	switch h.Opcode {
	case wire.OpWriteBegin:
		r.stream = streamer.New(f.NBytes)
		r.writeDeclared = f.NBytes
		if f.HdrLen > 0 {
			info := cachevc.HTTPInfo{Bytes: f.HTTPInfo}
			r.pendingHTTP = &info
			if err := r.vc.SetHTTPInfo(info); err != nil {
				r.failWrite(err)
			}
		}
	case wire.OpWriteDone:
		if len(f.Data) == 0 {
			return
		}
		if _, err := r.stream.Accept(int64(len(f.Data))); err != nil {
			r.failWrite(err)
			return
		}
		if err := r.vc.DoIOWrite(r, f.Data); err != nil {
			r.failWrite(err)
		}
	case wire.OpHeaderOnlyUpdate:
		info := cachevc.HTTPInfo{Bytes: f.HTTPInfo}
		r.pendingHTTP = &info
		if err := r.vc.SetHTTPInfo(info); err != nil {
			r.failWrite(err)
		}
	case wire.OpClose:
		r.finishWrite(f.NBytes)
	default:
		r.failWrite(&unknownOpcodeError{h.Opcode})
	}
}

func (r *Record) onWriteChunkComplete(nbytes int64) {
	if r.stream != nil {
		r.stream.Reenable()
		r.sess.SetEvents(r.stream.DesiredMask())
	}
}

// finishWrite reconciles CLOSE's declared final byte count against what the
// streamer actually accepted. On a match it terminates the record; on a
// mismatch it sends ERROR first. Either way terminate makes the single
// DoIOClose call. declaredFinal is the
// initiator's own accounting and is logged on mismatch but not otherwise
// consulted, since r.stream.Delivered() is this side's authoritative count.
func (r *Record) finishWrite(declaredFinal int64) {
	if r.stream != nil && !r.stream.Done() {
		logrus.Errorf("responder: seq %d CLOSE with delivered=%d declared=%d (peer reported %d); failing write",
			r.Seq, r.stream.Delivered(), r.stream.Declared(), declaredFinal)
		r.failWrite(&shortWriteError{Delivered: r.stream.Delivered(), Declared: r.stream.Declared()})
		return
	}
	r.terminate()
}

type shortWriteError struct {
	Delivered, Declared int64
}

func (e *shortWriteError) Error() string {
	return "responder: write closed short of declared length"
}

func (r *Record) failWrite(err error) {
	frame := &wire.DataFrame{Seq: r.Seq, ErrCode: errorReason(err)}
	_ = r.sendFrame(wire.OpError, encodeFrameOp(frame, wire.OpError), transport.PriorityHigh)
	r.terminate()
}
