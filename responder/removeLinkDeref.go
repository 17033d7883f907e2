package responder

import "github.com/jiva-cluster/ccrpc/wire"

func (r *Record) doRemove() {
	r.setState(StateCacheOpen)
	r.action = r.engine.Cache.Remove(r, r.Digest, r.FragType, r.Hostname)
}

// HandleRemove implements cachevc.Continuation.
func (r *Record) HandleRemove(err error) {
	if r.engine.Stats != nil {
		r.engine.Stats.IncRemoves()
	}
	if err != nil {
		r.sendReply(&wire.ReplyMsg{Result: wire.ResultRemoveFailed, Reason: errorReason(err)})
	} else {
		r.sendReply(&wire.ReplyMsg{Result: wire.ResultRemove})
	}
	r.terminate()
}

func (r *Record) doLink() {
	r.setState(StateCacheOpen)
	r.action = r.engine.Cache.Link(r, r.Digest, r.linkPrevDigest, r.FragType)
}

// HandleLink implements cachevc.Continuation.
func (r *Record) HandleLink(err error) {
	if r.engine.Stats != nil {
		r.engine.Stats.IncLinks()
	}
	if err != nil {
		r.sendReply(&wire.ReplyMsg{Result: wire.ResultLinkFailed, Reason: errorReason(err)})
	} else {
		r.sendReply(&wire.ReplyMsg{Result: wire.ResultLink})
	}
	r.terminate()
}

func (r *Record) doDeref() {
	r.setState(StateCacheOpen)
	r.action = r.engine.Cache.Deref(r, r.Digest, r.FragType)
}

// HandleDeref implements cachevc.Continuation.
func (r *Record) HandleDeref(err error) {
	if r.engine.Stats != nil {
		r.engine.Stats.IncDerefs()
	}
	if err != nil {
		r.sendReply(&wire.ReplyMsg{Result: wire.ResultDerefFailed, Reason: errorReason(err)})
	} else {
		r.sendReply(&wire.ReplyMsg{Result: wire.ResultDeref})
	}
	r.terminate()
}

// doUpdate resolves an open question about UPDATE's semantics: rather than
// leave it unimplemented, it is treated as a metadata-only touch (pin time,
// recency) that the local cache engine seam has no dedicated method for —
// there is nothing to call through cachevc.Engine for it, so it always
// succeeds once dispatched. A real cache engine would wire this to whatever
// keeps an object's pin time current.
func (r *Record) doUpdate() {
	r.setState(StateReply)
	r.sendReply(&wire.ReplyMsg{Result: wire.ResultUpdate})
	r.terminate()
}
