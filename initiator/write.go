package initiator

import (
	"time"

	"github.com/jiva-cluster/ccrpc/cachevc"
	"github.com/jiva-cluster/ccrpc/streamer"
	"github.com/jiva-cluster/ccrpc/transport"
	"github.com/jiva-cluster/ccrpc/wire"
)

// localWriteVC is handed to the caller on a fresh OPEN_WRITE/OPEN_WRITE_LONG
// reply: the caller's record now becomes a producer. It streams
// WRITE_BEGIN/WRITE_DONE/CLOSE over the record's session as the caller
// pushes bytes.
type localWriteVC struct {
	rec *Record
}

func (v *localWriteVC) DoIORead(cachevc.IOCompletion, int64) error         { return errNotReadable }
func (v *localWriteVC) DoIOPRead(cachevc.IOCompletion, int64, int64) error { return errNotReadable }

func (v *localWriteVC) DoIOWrite(completion cachevc.IOCompletion, data []byte) error {
	return v.rec.writeChunk(completion, data)
}

func (v *localWriteVC) DoIOClose(reason error) error {
	return v.rec.closeWrite(reason)
}

func (v *localWriteVC) SetHTTPInfo(info cachevc.HTTPInfo) error {
	v.rec.pendingHTTPInfo = &info
	return nil
}

func (v *localWriteVC) GetHTTPInfo() (cachevc.HTTPInfo, bool) { return cachevc.HTTPInfo{}, false }
func (v *localWriteVC) Reenable()                             {}

// remoteWriteVC is the salvaged write VC the reuse cache stores: the same
// underlying session as a failed read, now repurposed as a write
// producer for a later local caller, with no new RPC negotiation.
type remoteWriteVC struct {
	rec   *Record
	token uint64
}

func (v *remoteWriteVC) DoIORead(cachevc.IOCompletion, int64) error        { return errNotReadable }
func (v *remoteWriteVC) DoIOPRead(cachevc.IOCompletion, int64, int64) error { return errNotReadable }

func (v *remoteWriteVC) DoIOWrite(completion cachevc.IOCompletion, data []byte) error {
	return v.rec.writeChunk(completion, data)
}

func (v *remoteWriteVC) DoIOClose(reason error) error {
	return v.rec.closeWrite(reason)
}

func (v *remoteWriteVC) SetHTTPInfo(info cachevc.HTTPInfo) error {
	v.rec.pendingHTTPInfo = &info
	return nil
}

func (v *remoteWriteVC) GetHTTPInfo() (cachevc.HTTPInfo, bool) { return cachevc.HTTPInfo{}, false }
func (v *remoteWriteVC) Reenable()                             {}

// Close implements reusecache.VC: the sweeper closes
// the salvaged VC with allowRemoteClose=true, which for a VC that was
// never actually written to just tears down the idle session.
func (v *remoteWriteVC) Close(allowRemoteClose bool) error {
	return v.rec.closeWrite(nil)
}

// writeChunk implements the producer half of the write path: the first
// chunk triggers WRITE_BEGIN (with the declared total size and,
// if set, the HTTP info for HEADER_ONLY_UPDATE-style header attachment)
// ahead of its data, and every non-empty chunk, the first included, is
// sent as a WRITE_DONE frame.
func (r *Record) writeChunk(completion cachevc.IOCompletion, data []byte) error {
	if r.stream == nil {
		r.stream = streamer.New(r.declaredNBytes)
	}
	if !r.writeStarted {
		r.writeStarted = true
		begin := &wire.DataFrame{
			Header: wire.Header{Version: wire.ProtocolVersion, Opcode: wire.OpWriteBegin},
			Seq:    r.Seq,
			NBytes: r.declaredNBytes,
		}
		if r.pendingHTTPInfo != nil {
			begin.HdrLen = uint32(len(r.pendingHTTPInfo.Bytes))
			begin.HTTPInfo = r.pendingHTTPInfo.Bytes
		}
		if err := r.sess.Send(wire.OpWriteBegin, encodeFrame(begin), time.Time{}, transport.PriorityHigh); err != nil {
			if completion != nil {
				completion.OnError(err)
			}
			return err
		}
	}
	if len(data) == 0 {
		if completion != nil {
			completion.OnWriteComplete(0)
		}
		return nil
	}
	done := &wire.DataFrame{
		Header: wire.Header{Version: wire.ProtocolVersion, Opcode: wire.OpWriteDone},
		Seq:    r.Seq,
		NBytes: int64(len(data)),
		Data:   data,
	}
	if err := r.sess.Send(wire.OpWriteDone, encodeFrame(done), time.Time{}, transport.PriorityLow); err != nil {
		if completion != nil {
			completion.OnError(err)
		}
		return err
	}
	_, _ = r.stream.Accept(int64(len(data)))
	r.stream.Reenable()
	if completion != nil {
		completion.OnWriteComplete(int64(len(data)))
	}
	return nil
}

// closeWrite sends the final CLOSE(final_nbytes) frame and tears the
// session down. reason is currently advisory only: this protocol has no
// initiator-side write-abort wire shape, since the original caller of
// do_io_close on a write VC is expected to have already written
// everything it intends to.
func (r *Record) closeWrite(reason error) error {
	nbytes := int64(0)
	if r.stream != nil {
		nbytes = r.stream.Delivered()
	}
	closeFrame := &wire.DataFrame{
		Header: wire.Header{Version: wire.ProtocolVersion, Opcode: wire.OpClose},
		Seq:    r.Seq,
		NBytes: nbytes,
	}
	err := r.sess.Send(wire.OpClose, encodeFrame(closeFrame), time.Time{}, transport.PriorityHigh)
	r.setOutcome(err == nil && reason == nil)
	r.setState(StateComplete)
	_ = r.sess.Close()
	return err
}
