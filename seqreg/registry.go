// Package seqreg tracks outstanding initiator operations keyed by
// (peer, sequence number) so a late or duplicate reply can be matched back
// to its caller, and so a dead peer's operations can all be failed at once.
// Grounded on jiva's rpc.Client.messages map (openebs-archive-jiva
// rpc/client.go), generalized from a single-peer map into the striped,
// multi-peer, try-lock-only table a concurrent cluster needs.
package seqreg

import (
	"hash/fnv"
	"sync"
	"sync/atomic"
	"time"

	journal "github.com/openebs/sparse-tools/stats"
	"github.com/sirupsen/logrus"
)

// numBuckets must be a power of two; it bounds contention, not capacity.
const numBuckets = 64

// SampleOp classifies an outstanding operation for the sparse-tools
// journal, mirroring jiva's rpc.OpRead/OpWrite/... local enum that gets
// cast to journal.SampleOp on InsertPendingOp.
type SampleOp int

const (
	SampleOpRead SampleOp = iota
	SampleOpWrite
	SampleOpRemove
	SampleOpLink
	SampleOpDeref
	SampleOpUpdate
)

// Entry is the minimal shape the registry needs from an initiator record:
// enough to look it up and to fail it on peer death or timeout. Callers
// embed *Entry or satisfy it with their own operation record type.
type Entry struct {
	Peer string
	Seq  uint32
	// Initiator is the caller-visible continuation; the registry never
	// dereferences it, only hands it back to the owner on lookup/remove.
	Initiator interface{}
	Deadline  time.Time

	// Op and Size classify the operation for the sparse-tools journal;
	// Insert reports the pending op under these, and Remove/FailPeer
	// retire it.
	Op   SampleOp
	Size int64

	journalID journal.OpID
}

type bucket struct {
	mu      sync.Mutex
	entries map[key]*Entry
}

type key struct {
	peer string
	seq  uint32
}

// Registry is the striped sequence-number table. Zero value is not usable;
// use New.
type Registry struct {
	buckets     [numBuckets]*bucket
	seq         uint32 // atomic fetch-add counter, process-local
	retryPeriod time.Duration
	scheduler   Scheduler
}

// Scheduler abstracts "retry this closure after a delay" so the registry
// never blocks an event thread on a failed try-lock; it reschedules
// instead. Production code wires this to the event-thread's timer queue,
// tests wire it to something synchronous.
type Scheduler interface {
	ScheduleAfter(d time.Duration, fn func())
}

// TimeScheduler is a Scheduler backed by time.AfterFunc, suitable for a
// standalone process with one event loop per goroutine.
type TimeScheduler struct{}

func (TimeScheduler) ScheduleAfter(d time.Duration, fn func()) {
	time.AfterFunc(d, fn)
}

// New builds a Registry whose try-lock failures are retried after
// retryPeriod (≈10ms is a reasonable default).
func New(retryPeriod time.Duration, sched Scheduler) *Registry {
	r := &Registry{retryPeriod: retryPeriod, scheduler: sched}
	for i := range r.buckets {
		r.buckets[i] = &bucket{entries: make(map[key]*Entry)}
	}
	return r
}

func bucketIndex(peer string, seq uint32) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(peer))
	var seqBytes [4]byte
	seqBytes[0] = byte(seq)
	seqBytes[1] = byte(seq >> 8)
	seqBytes[2] = byte(seq >> 16)
	seqBytes[3] = byte(seq >> 24)
	_, _ = h.Write(seqBytes[:])
	return int(h.Sum32() & (numBuckets - 1))
}

// NextSeq returns a monotone, process-local, non-zero sequence number.
// Zero is reserved for "no reply expected"; the atomic fetch-add retries
// on the rare wraparound landing on zero.
func (r *Registry) NextSeq() uint32 {
	for {
		v := atomic.AddUint32(&r.seq, 1)
		if v != 0 {
			return v
		}
	}
}

// Insert adds an entry, retrying on lock contention via the scheduler.
// done, if non-nil, is called after the entry is actually inserted —
// useful for tests that need to observe completion without blocking.
func (r *Registry) Insert(e *Entry, done func()) {
	r.tryInsert(e, done, 0)
}

func (r *Registry) tryInsert(e *Entry, done func(), attempt int) {
	b := r.buckets[bucketIndex(e.Peer, e.Seq)]
	if !b.mu.TryLock() {
		r.scheduler.ScheduleAfter(r.retryPeriod, func() { r.tryInsert(e, done, attempt+1) })
		return
	}
	e.journalID = journal.InsertPendingOp(time.Now(), e.Peer, journal.SampleOp(e.Op), int(e.Size))
	b.entries[key{e.Peer, e.Seq}] = e
	b.mu.Unlock()
	if done != nil {
		done()
	}
}

// Lookup returns the entry for (peer, seq), or nil if absent. Lock
// contention is retried transparently; Lookup always eventually calls cb
// exactly once with the result (possibly nil).
func (r *Registry) Lookup(peer string, seq uint32, cb func(*Entry)) {
	r.tryLookup(peer, seq, cb)
}

func (r *Registry) tryLookup(peer string, seq uint32, cb func(*Entry)) {
	b := r.buckets[bucketIndex(peer, seq)]
	if !b.mu.TryLock() {
		r.scheduler.ScheduleAfter(r.retryPeriod, func() { r.tryLookup(peer, seq, cb) })
		return
	}
	e := b.entries[key{peer, seq}]
	b.mu.Unlock()
	cb(e)
}

// Remove deletes the entry for (peer, seq) if present and retires its
// sparse-tools journal pending op, reporting success per the op's outcome.
func (r *Registry) Remove(peer string, seq uint32, success bool, done func()) {
	r.tryRemove(peer, seq, success, done)
}

func (r *Registry) tryRemove(peer string, seq uint32, success bool, done func()) {
	b := r.buckets[bucketIndex(peer, seq)]
	if !b.mu.TryLock() {
		r.scheduler.ScheduleAfter(r.retryPeriod, func() { r.tryRemove(peer, seq, success, done) })
		return
	}
	k := key{peer, seq}
	if e, ok := b.entries[k]; ok {
		journal.RemovePendingOp(e.journalID, success)
		delete(b.entries, k)
	}
	b.mu.Unlock()
	if done != nil {
		done()
	}
}

// FailPeer walks every bucket removing and returning entries targeting
// peer, for the caller to fail with a peer-gone error. This is the
// broadcast-removal path peer death requires. It blocks briefly on each
// bucket's mutex rather than try-locking, since peer death is rare and
// must be exhaustive.
func (r *Registry) FailPeer(peer string) []*Entry {
	var dead []*Entry
	for _, b := range r.buckets {
		b.mu.Lock()
		for k, e := range b.entries {
			if k.peer == peer {
				journal.RemovePendingOp(e.journalID, false)
				dead = append(dead, e)
				delete(b.entries, k)
			}
		}
		b.mu.Unlock()
	}
	if len(dead) > 0 {
		logrus.Infof("seqreg: failed %d outstanding op(s) for dead peer %s", len(dead), peer)
	}
	return dead
}

// Len reports the total number of outstanding entries, for stats/tests.
func (r *Registry) Len() int {
	n := 0
	for _, b := range r.buckets {
		b.mu.Lock()
		n += len(b.entries)
		b.mu.Unlock()
	}
	return n
}
