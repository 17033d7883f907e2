package initiator

import (
	"bytes"
	"io"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/jiva-cluster/ccrpc/cachevc"
	"github.com/jiva-cluster/ccrpc/clusterstats"
	"github.com/jiva-cluster/ccrpc/internal/faultinject"
	"github.com/jiva-cluster/ccrpc/liveness"
	"github.com/jiva-cluster/ccrpc/reusecache"
	"github.com/jiva-cluster/ccrpc/seqreg"
	"github.com/jiva-cluster/ccrpc/session"
	"github.com/jiva-cluster/ccrpc/transport"
	"github.com/jiva-cluster/ccrpc/wire"
)

// Engine owns every outstanding initiator record and the collaborators
// do_op needs: a dealer to create sessions, the sequence registry, the
// write-VC reuse cache, and the liveness tracker that arms per-op
// deadlines. One Engine is shared by every caller on a node, matching
// jiva's single package-level rpc.Client per replica connection,
// generalized to many concurrent peers.
type Engine struct {
	Dealer         transport.Dealer
	Registry       *seqreg.Registry
	ReuseCache     *reusecache.Cache
	Liveness       *liveness.Tracker
	Peers          *liveness.PeerTable
	Clock          func() time.Time
	ClusterTimeout time.Duration

	Stats *clusterstats.Counters
}

// NewEngine wires peer-death fan-out: when Peers reports a peer dead, every
// outstanding record targeting it is failed with a peer-gone error and its
// session closed.
func NewEngine(dealer transport.Dealer, registry *seqreg.Registry, reuse *reusecache.Cache, live *liveness.Tracker, peers *liveness.PeerTable, clusterTimeout time.Duration) *Engine {
	e := &Engine{
		Dealer:         dealer,
		Registry:       registry,
		ReuseCache:     reuse,
		Liveness:       live,
		Peers:          peers,
		ClusterTimeout: clusterTimeout,
	}
	peers.OnPeerDead(e.failAllForPeer)
	return e
}

func (e *Engine) failAllForPeer(peer string) {
	faultinject.AddPeerDeathDelay()
	for _, entry := range e.Registry.FailPeer(peer) {
		rec, ok := entry.Initiator.(*Record)
		if !ok {
			continue
		}
		if e.Stats != nil {
			e.Stats.IncPeerDeaths()
		}
		e.Liveness.Disarm(rec.Peer, rec.Seq)
		rec.mu.Lock()
		terminal := rec.state == StateComplete || rec.state == StateClosed
		if !terminal {
			rec.state = StateComplete
			rec.completedOK = false
		}
		rec.mu.Unlock()
		if terminal {
			continue
		}
		if !rec.isCancelled() {
			rec.caller.OnError(errPeerGone)
		}
		_ = rec.sess.Close()
	}
}

type peerGoneError struct{}

func (peerGoneError) Error() string { return "cluster: peer is gone" }

var errPeerGone = peerGoneError{}

// DoOpArgs carries the opcode-specific arguments do_op needs to build the
// wire message; which fields matter depends on Opcode.
type DoOpArgs struct {
	Digest     wire.Digest
	PrevDigest wire.Digest // LINK only
	FragType   wire.FragType
	Hostname   string
	NBytes     int64
	PinTime    time.Duration
	Overwrite  bool
	// HTTPRequest/LookupConfig are opaque marshaled blobs for the LONG
	// opcodes; this engine never parses them.
	HTTPRequest  []byte
	LookupConfig []byte
}

// DoOp builds a request for opcode against peer, issues it, and returns
// the caller-visible Action. If the send fails at the transport level, the
// session is closed and DoOp returns (nil, err) — the caller sees no
// action and no further callback.
func (e *Engine) DoOp(caller Caller, peer string, opcode wire.Opcode, args DoOpArgs) (*Action, error) {
	rec := &Record{
		Opcode:   opcode,
		FragType: args.FragType,
		Digest:   args.Digest,
		Peer:     peer,
		caller:   caller,
		engine:   e,
		state:    StateOpening,
	}
	seq := e.Registry.NextSeq()
	rec.Seq = seq
	rec.declaredNBytes = args.NBytes

	sess, err := e.Dealer.CreateSession(peer, rec, transport.EventNone)
	if err != nil {
		logrus.Errorf("initiator: create session to %s failed: %v", peer, err)
		return nil, err
	}
	rec.sess = session.Wrap(sess)

	payload, sendOpcode, err := e.buildRequest(rec, args)
	if err != nil {
		_ = rec.sess.Close()
		return nil, err
	}

	deadline := e.now().Add(e.ClusterTimeout)
	rec.deadline = deadline

	// The record enters AWAITING_REPLY, is registered and has its timer
	// armed before the request goes out, so a reply handled before Send
	// returns finds it ready.
	rec.setState(StateAwaitingReply)
	e.Registry.Insert(&seqreg.Entry{
		Peer: peer, Seq: seq, Initiator: rec, Deadline: deadline,
		Op: sampleOpFor(opcode), Size: args.NBytes,
	}, nil)
	e.Liveness.Arm(peer, seq, deadline, func() {
		e.handleTimeout(rec)
	})

	if err := rec.sess.Send(sendOpcode, payload, deadline, transport.PriorityHigh); err != nil {
		rec.setState(StateClosed)
		e.Liveness.Disarm(peer, seq)
		e.Registry.Remove(peer, seq, false, nil)
		_ = rec.sess.Close()
		return nil, err
	}

	return &Action{rec: rec}, nil
}

// OpenWrite is the local-write entry point: before issuing
// an OPEN_WRITE/OPEN_WRITE_LONG RPC, check the write-VC reuse cache for a
// VC already salvaged for this digest. A hit resolves locally with no
// round trip; a miss (or retry, treated the same as a miss here since the
// caller doesn't need to distinguish) falls through to the normal DoOp
// path.
func (e *Engine) OpenWrite(caller Caller, peer string, opcode wire.Opcode, args DoOpArgs) (*Action, error) {
	var d reusecache.Digest
	copy(d[:], args.Digest[:])
	if vc, res := e.ReuseCache.Lookup(d); res == reusecache.Hit {
		if e.Stats != nil {
			e.Stats.IncReuseCacheHits()
		}
		caller.OnOpenWrite(vc.(cachevc.VC))
		return nil, nil
	}
	if e.Stats != nil {
		e.Stats.IncReuseCacheMisses()
	}
	return e.DoOp(caller, peer, opcode, args)
}

func (e *Engine) now() time.Time {
	if e.Clock != nil {
		return e.Clock()
	}
	return time.Now()
}

// sampleOpFor classifies opcode for the sequence registry's sparse-tools
// journal entry, mirroring jiva's rpc.Client switch on message type.
func sampleOpFor(opcode wire.Opcode) seqreg.SampleOp {
	switch opcode {
	case wire.OpOpenRead, wire.OpOpenReadLong:
		return seqreg.SampleOpRead
	case wire.OpOpenWrite, wire.OpOpenWriteLong:
		return seqreg.SampleOpWrite
	case wire.OpRemove:
		return seqreg.SampleOpRemove
	case wire.OpLink:
		return seqreg.SampleOpLink
	case wire.OpDeref:
		return seqreg.SampleOpDeref
	default:
		return seqreg.SampleOpUpdate
	}
}

// buildRequest selects the wire shape from the opcode and serializes it,
// matching jiva's "fills the header in place" description, minus
// the in-place mutation (Go favors a fresh buffer per send).
func (e *Engine) buildRequest(rec *Record, args DoOpArgs) ([]byte, wire.Opcode, error) {
	var buf bytes.Buffer
	switch rec.Opcode {
	case wire.OpOpenRead, wire.OpOpenWrite, wire.OpRemove, wire.OpUpdate:
		m := &wire.ShortMsg{
			Header:     wire.Header{Version: wire.ProtocolVersion, Opcode: rec.Opcode},
			Digest:     rec.Digest,
			Seq:        rec.Seq,
			NBytes:     args.NBytes,
			FragType:   rec.FragType,
			Hostname:   []byte(args.Hostname),
		}
		if rec.Opcode == wire.OpOpenWrite {
			if args.Overwrite {
				m.DataWord = 1
			}
			m.DataWord |= int64(args.PinTime) << 1
		}
		if err := wire.EncodeShort(&buf, m); err != nil {
			return nil, 0, err
		}
	case wire.OpOpenReadLong, wire.OpOpenWriteLong:
		m := &wire.LongMsg{
			Header:   wire.Header{Version: wire.ProtocolVersion, Opcode: rec.Opcode},
			Digest:   rec.Digest,
			Seq:      rec.Seq,
			NBytes:   args.NBytes,
			PinTime:  int64(args.PinTime),
			FragType: rec.FragType,
			Hostname: []byte(args.Hostname),
			Trailer:  wire.MarshalTrailer(args.HTTPRequest, args.LookupConfig),
		}
		if err := wire.EncodeLong(&buf, m); err != nil {
			return nil, 0, err
		}
	case wire.OpLink:
		m := &wire.Short2Msg{
			Header:     wire.Header{Version: wire.ProtocolVersion, Opcode: wire.OpLink},
			Digest:     rec.Digest,
			DigestPrev: args.PrevDigest,
			Seq:        rec.Seq,
			FragType:   rec.FragType,
		}
		if err := wire.EncodeShort2(&buf, m); err != nil {
			return nil, 0, err
		}
	case wire.OpDeref:
		m := &wire.ShortMsg{
			Header:   wire.Header{Version: wire.ProtocolVersion, Opcode: wire.OpDeref},
			Digest:   rec.Digest,
			Seq:      rec.Seq,
			FragType: rec.FragType,
		}
		if err := wire.EncodeShort(&buf, m); err != nil {
			return nil, 0, err
		}
	default:
		return nil, 0, io.ErrUnexpectedEOF
	}
	return buf.Bytes(), rec.Opcode, nil
}

