// Package liveness implements per-request deadlines and peer-death
// fan-out. Grounded on jiva's rpc.Client.operation
// (openebs-archive-jiva rpc/client.go), which races a per-op timer against
// a completion channel; this package generalizes that single-goroutine
// select into a shared timer table so many concurrent ops on one event
// thread can each carry their own deadline without blocking on each
// other.
package liveness

import (
	"sync"
	"time"
)

// Tracker arms and disarms per-(peer,seq) timeout callbacks.
type Tracker struct {
	mu      sync.Mutex
	timers  map[timerKey]*time.Timer
}

type timerKey struct {
	peer string
	seq  uint32
}

// NewTracker builds an empty Tracker.
func NewTracker() *Tracker {
	return &Tracker{timers: make(map[timerKey]*time.Timer)}
}

// Arm schedules fn to run at deadline unless Disarm is called first. Firing
// always delivers a user-visible failure; disarming only suppresses the
// callback, it never cancels the record itself.
func (t *Tracker) Arm(peer string, seq uint32, deadline time.Time, fn func()) {
	k := timerKey{peer, seq}
	timer := time.AfterFunc(time.Until(deadline), func() {
		t.mu.Lock()
		delete(t.timers, k)
		t.mu.Unlock()
		fn()
	})
	t.mu.Lock()
	if old, ok := t.timers[k]; ok {
		old.Stop()
	}
	t.timers[k] = timer
	t.mu.Unlock()
}

// Disarm cancels a pending timeout callback, if any (e.g. because the
// reply arrived in time).
func (t *Tracker) Disarm(peer string, seq uint32) {
	k := timerKey{peer, seq}
	t.mu.Lock()
	timer, ok := t.timers[k]
	if ok {
		delete(t.timers, k)
	}
	t.mu.Unlock()
	if ok {
		timer.Stop()
	}
}

// PeerTable is the minimal membership-adjacent state peer-death fan-out
// needs a source for: which peers are currently considered up. Ring
// hashing / ownership itself stays out of scope — this only answers "is
// peer X alive right now".
type PeerTable struct {
	mu   sync.RWMutex
	up   map[string]bool
	subs []func(peer string)
}

// NewPeerTable builds an empty table; all peers are assumed up until
// marked otherwise.
func NewPeerTable() *PeerTable {
	return &PeerTable{up: make(map[string]bool)}
}

// OnPeerDead registers a callback invoked with the peer ID whenever
// MarkDead is called for it. Used by the initiator engine to trigger
// Registry.FailPeer.
func (p *PeerTable) OnPeerDead(fn func(peer string)) {
	p.mu.Lock()
	p.subs = append(p.subs, fn)
	p.mu.Unlock()
}

// MarkUp records that peer is reachable.
func (p *PeerTable) MarkUp(peer string) {
	p.mu.Lock()
	p.up[peer] = true
	p.mu.Unlock()
}

// MarkDead records that peer is unreachable and fans the event out to
// every registered subscriber, so every record targeting the peer is
// failed.
func (p *PeerTable) MarkDead(peer string) {
	p.mu.Lock()
	p.up[peer] = false
	subs := append([]func(string){}, p.subs...)
	p.mu.Unlock()
	for _, fn := range subs {
		fn(peer)
	}
}

// IsUp reports whether peer is currently considered reachable.
func (p *PeerTable) IsUp(peer string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	up, known := p.up[peer]
	return !known || up
}

// Snapshot returns a copy of the current peer/up-state map, used by the
// stats/debug HTTP surface to report cluster membership.
func (p *PeerTable) Snapshot() map[string]bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make(map[string]bool, len(p.up))
	for k, v := range p.up {
		out[k] = v
	}
	return out
}
