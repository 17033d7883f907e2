// Package reusecache implements the per-node write-VC reuse cache: when a
// remote open-read fails but the responder manages to open a write VC in
// its place, the initiator salvages that write VC here, keyed by content
// digest, so a subsequent local open-write for the same digest resolves
// without a round trip. Grounded on jiva's bucketed, per-bucket
// locked maps (rpc.Client.messages generalized to a fixed hash table) and
// on the ticker-driven sweep in replica/rpc's Server.Handle, repurposed
// here into a two-pass generational purge instead of a ping-timeout check.
package reusecache

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// numBuckets is a power of two; entries are bucketed by digest hash.
const numBuckets = 256

// LookupResult is the three-way outcome a lookup can report.
type LookupResult int

const (
	Miss LookupResult = iota
	Hit
	Retry
)

// InsertResult mirrors LookupResult for insert, which has no "miss".
type InsertResult int

const (
	Inserted InsertResult = iota
	InsertRetry
)

// VC is the minimal shape a salvaged write handle must support: the cache
// needs only to close it on purge, with the same "allow remote close"
// semantics the local cache VC close path uses.
type VC interface {
	Close(allowRemoteClose bool) error
}

type entry struct {
	vc     VC
	marked bool
}

type bucket struct {
	mu      sync.Mutex
	entries map[Digest]*entry
}

// Digest aliases the wire package's content key without importing it
// directly, so this package stays usable standalone; callers pass
// wire.Digest values, which satisfy this exactly since it's also [16]byte.
type Digest [16]byte

// Cache is the fixed-width reuse table. Zero value is not usable; use New.
type Cache struct {
	buckets      [numBuckets]*bucket
	scanInterval time.Duration
	stopCh       chan struct{}
	stopped      sync.Once

	hits, misses, purged int64
	statsMu               sync.Mutex
}

// New builds a Cache and starts its background sweeper. Call Stop to halt
// it during shutdown.
func New(scanInterval time.Duration) *Cache {
	c := &Cache{scanInterval: scanInterval, stopCh: make(chan struct{})}
	for i := range c.buckets {
		c.buckets[i] = &bucket{entries: make(map[Digest]*entry)}
	}
	go c.sweepLoop()
	return c
}

func (c *Cache) bucket(d Digest) *bucket {
	var h uint32
	for _, b := range d {
		h = h*31 + uint32(b)
	}
	return c.buckets[h&(numBuckets-1)]
}

// Lookup removes and returns the entry for d on a hit. A concurrent lookup
// for the same digest can never also hit, since the entry is removed
// atomically with the bucket lock held for the duration of the check.
func (c *Cache) Lookup(d Digest) (VC, LookupResult) {
	b := c.bucket(d)
	if !b.mu.TryLock() {
		return nil, Retry
	}
	defer b.mu.Unlock()
	e, ok := b.entries[d]
	if !ok {
		c.statsMu.Lock()
		c.misses++
		c.statsMu.Unlock()
		return nil, Miss
	}
	delete(b.entries, d)
	c.statsMu.Lock()
	c.hits++
	c.statsMu.Unlock()
	return e.vc, Hit
}

// Insert publishes vc under d. At most one entry per digest is kept; a
// second insert for the same digest before the first is looked up or
// purged replaces it (and the caller is responsible for closing whichever
// VC it displaced).
func (c *Cache) Insert(d Digest, vc VC) InsertResult {
	b := c.bucket(d)
	if !b.mu.TryLock() {
		return InsertRetry
	}
	defer b.mu.Unlock()
	b.entries[d] = &entry{vc: vc}
	return Inserted
}

func (c *Cache) sweepLoop() {
	ticker := time.NewTicker(c.scanInterval)
	defer ticker.Stop()
	for {
		select {
		case <-c.stopCh:
			return
		case <-ticker.C:
			c.sweepOnce()
		}
	}
}

// sweepOnce implements the two-pass generational purge: an unmarked entry
// is marked; a marked entry (meaning it survived a full interval without a
// hit) is closed with allowRemoteClose=true and freed. A bucket whose lock
// can't be acquired is skipped this round and is next visited on the
// following tick, a full scan interval later; there is no shorter back-off.
func (c *Cache) sweepOnce() {
	var purged int
	for _, b := range c.buckets {
		if !b.mu.TryLock() {
			continue
		}
		for d, e := range b.entries {
			if e.marked {
				if err := e.vc.Close(true); err != nil {
					logrus.Errorf("reusecache: error closing purged VC for digest %x: %v", d, err)
				}
				delete(b.entries, d)
				purged++
			} else {
				e.marked = true
			}
		}
		b.mu.Unlock()
	}
	if purged > 0 {
		c.statsMu.Lock()
		c.purged += int64(purged)
		c.statsMu.Unlock()
		logrus.Debugf("reusecache: purged %d stale entries", purged)
	}
}

// Stop halts the background sweeper. Idempotent.
func (c *Cache) Stop() {
	c.stopped.Do(func() { close(c.stopCh) })
}

// Stats returns cumulative hit/miss/purge counters; nothing in this module
// exports them to /metrics.
func (c *Cache) Stats() (hits, misses, purged int64) {
	c.statsMu.Lock()
	defer c.statsMu.Unlock()
	return c.hits, c.misses, c.purged
}
