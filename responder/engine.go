package responder

import (
	"bytes"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/jiva-cluster/ccrpc/cachevc"
	"github.com/jiva-cluster/ccrpc/clusterstats"
	"github.com/jiva-cluster/ccrpc/internal/faultinject"
	"github.com/jiva-cluster/ccrpc/session"
	"github.com/jiva-cluster/ccrpc/transport"
	"github.com/jiva-cluster/ccrpc/wire"
)

// Engine owns the local cache collaborator and the knobs that control
// fast-path selection and migrate-on-demand salvage.
type Engine struct {
	Cache cachevc.Engine

	MigrateOnDemand       bool
	SmallFragmentThreshold int64

	Stats *clusterstats.Counters
}

// Accept binds a fresh, not-yet-dispatched Record to a newly arrived
// session. jiva's analog is replica/rpc.Server.ListenAndServe
// handing each accepted net.Conn to rpc.NewServer — here every inbound
// operation gets its own logical session instead of one long-lived
// connection multiplexing many.
func (e *Engine) Accept(raw transport.Session) error {
	faultinject.AddOpTimeout()
	rec := &Record{engine: e, state: StateDispatch}
	rec.sess = session.Wrap(raw)
	return rec.sess.Bind(rec)
}

// OnMessage implements transport.Handler. The first inbound frame on a
// fresh Record carries the whole request (short/short-2/long shape); it is
// parsed, the record is populated, and the opcode is dispatched to the
// local cache engine. Subsequent frames are data-plane frames routed to
// the read/write stream handlers.
func (r *Record) OnMessage(h wire.Header, payload []byte) {
	if r.getState() == StateDispatch {
		r.dispatchFirstFrame(h, payload)
		return
	}
	r.dispatchStreamFrame(h, payload)
}

func (r *Record) dispatchFirstFrame(h wire.Header, payload []byte) {
	reader := bytes.NewReader(payload)
	r.Opcode = h.Opcode
	switch h.Opcode {
	case wire.OpOpenRead:
		m, err := wire.DecodeShort(reader, h)
		if err != nil {
			r.protocolError(err)
			return
		}
		r.populateFromShort(m)
		r.openRead(nil, nil)
	case wire.OpOpenReadLong:
		m, err := wire.DecodeLong(reader, h)
		if err != nil {
			r.protocolError(err)
			return
		}
		httpReq, lookup := wire.SplitTrailer(m.Trailer)
		r.Seq, r.Digest, r.FragType, r.Hostname = m.Seq, m.Digest, m.FragType, string(m.Hostname)
		r.openRead(httpReq, lookup)
	case wire.OpOpenWrite:
		m, err := wire.DecodeShort(reader, h)
		if err != nil {
			r.protocolError(err)
			return
		}
		r.populateFromShort(m)
		overwrite := m.DataWord&1 != 0
		r.PinTime = time.Duration(m.DataWord >> 1)
		r.openWrite(overwrite)
	case wire.OpOpenWriteLong:
		m, err := wire.DecodeLong(reader, h)
		if err != nil {
			r.protocolError(err)
			return
		}
		r.Seq, r.Digest, r.FragType, r.Hostname = m.Seq, m.Digest, m.FragType, string(m.Hostname)
		r.openWrite(true)
	case wire.OpRemove:
		m, err := wire.DecodeShort(reader, h)
		if err != nil {
			r.protocolError(err)
			return
		}
		r.populateFromShort(m)
		r.doRemove()
	case wire.OpLink:
		m, err := wire.DecodeShort2(reader, h)
		if err != nil {
			r.protocolError(err)
			return
		}
		r.Seq, r.Digest, r.FragType = m.Seq, m.Digest, m.FragType
		r.linkPrevDigest = m.DigestPrev
		r.doLink()
	case wire.OpDeref:
		m, err := wire.DecodeShort(reader, h)
		if err != nil {
			r.protocolError(err)
			return
		}
		r.populateFromShort(m)
		r.doDeref()
	case wire.OpUpdate:
		m, err := wire.DecodeShort(reader, h)
		if err != nil {
			r.protocolError(err)
			return
		}
		r.populateFromShort(m)
		r.doUpdate()
	default:
		logrus.Errorf("responder: unknown opcode %s on dispatch", h.Opcode)
		r.protocolError(&unknownOpcodeError{h.Opcode})
	}
}

func (r *Record) populateFromShort(m *wire.ShortMsg) {
	r.Seq, r.Digest, r.FragType, r.Hostname = m.Seq, m.Digest, m.FragType, string(m.Hostname)
}


type unknownOpcodeError struct{ op wire.Opcode }

func (e *unknownOpcodeError) Error() string { return "responder: unknown opcode " + e.op.String() }

// protocolError handles a fatal protocol error by sending ABORT and
// closing the session.
func (r *Record) protocolError(err error) {
	logrus.Errorf("responder: protocol error for seq %d: %v", r.Seq, err)
	frame := &wire.DataFrame{
		Header: wire.Header{Version: wire.ProtocolVersion, Opcode: wire.OpAbort},
		Seq:    r.Seq,
	}
	_ = r.sess.Send(wire.OpAbort, encodeFrame(frame), time.Time{}, transport.PriorityHigh)
	r.setState(StateClosed)
	_ = r.sess.Close()
}

func (r *Record) dispatchStreamFrame(h wire.Header, payload []byte) {
	reader := bytes.NewReader(payload)
	switch r.Opcode {
	case wire.OpOpenRead, wire.OpOpenReadLong:
		r.handleReadStreamFrame(h, reader)
	case wire.OpOpenWrite, wire.OpOpenWriteLong:
		r.handleWriteStreamFrame(h, reader)
	default:
		logrus.Warnf("responder: unexpected stream frame %s for opcode %s", h.Opcode, r.Opcode)
	}
}

// OnPeerReady implements transport.Handler: fired when NotifyDealer is set
// and the peer (the initiator) has a frame ready. The responder uses this
// purely as a wakeup; the actual frame still arrives via OnMessage.
func (r *Record) OnPeerReady() {}

// OnClose implements transport.Handler: guarantees the local cache VC is
// closed on every terminal path, whether the close originated locally
// (terminate) or from the peer.
func (r *Record) OnClose() {
	r.terminate()
}
