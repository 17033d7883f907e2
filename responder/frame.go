package responder

import (
	"io"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/jiva-cluster/ccrpc/transport"
	"github.com/jiva-cluster/ccrpc/wire"
)

func encodeFrame(f *wire.DataFrame) []byte {
	b, err := wire.EncodeToBytes(func(w io.Writer) error {
		return wire.EncodeDataFrame(w, f)
	})
	if err != nil {
		logrus.Errorf("responder: failed to encode %s frame: %v", f.Header.Opcode, err)
		return nil
	}
	return b
}

func encodeReply(m *wire.ReplyMsg) []byte {
	b, err := wire.EncodeToBytes(func(w io.Writer) error {
		return wire.EncodeReply(w, m)
	})
	if err != nil {
		logrus.Errorf("responder: failed to encode reply: %v", err)
		return nil
	}
	return b
}

// sendFrame wraps Session.Send with the responder's consistent failure
// handling: any transport error is fatal to the record, tearing it down.
func (r *Record) sendFrame(opcode wire.Opcode, payload []byte, priority transport.Priority) error {
	if err := r.sess.Send(opcode, payload, time.Time{}, priority); err != nil {
		logrus.Errorf("responder: send %s for seq %d failed: %v", opcode, r.Seq, err)
		r.terminate()
		return err
	}
	return nil
}

// sendReply sends a CACHE_OP_RESULT reply and latches replySent so a later
// failure on the same record knows a reply has already committed the
// record to one outcome: at most one reply per op.
func (r *Record) sendReply(m *wire.ReplyMsg) error {
	m.Seq = r.Seq
	m.Header.Version = wire.ProtocolVersion
	err := r.sendFrame(wire.OpCacheOpResult, encodeReply(m), transport.PriorityMid)
	r.mu.Lock()
	r.replySent = true
	r.mu.Unlock()
	return err
}

// terminate closes the session and the local VC (if any) and marks the
// record closed. Idempotent with session.Adapter.Close and with OnClose.
func (r *Record) terminate() {
	r.mu.Lock()
	vc := r.vc
	action := r.action
	alreadyClosed := r.state == StateClosed
	r.state = StateClosed
	r.mu.Unlock()
	if alreadyClosed {
		return
	}
	if vc != nil {
		_ = vc.DoIOClose(nil)
	} else if action != nil {
		action.Cancel()
	}
	_ = r.sess.Close()
}
