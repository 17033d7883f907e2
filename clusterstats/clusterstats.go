// Package clusterstats tracks process-wide counters for the cache-cluster
// RPC engine and exposes them through a periodic journal flush, grounded on
// jiva's sync/sync.go progress reporting (openebs-archive-jiva
// sync/sync.go logs transfer counters on a ticker): counters are
// periodically snapshotted to a journal file so a crash doesn't lose the
// last interval's numbers, and on each flush jiva's
// github.com/openebs/sparse-tools/stats pending-op table is dumped to the
// log the same way rpc.Client does on timeout (rpc/client.go's commented
// "flush automatically upon timeout" call site).
package clusterstats

import (
	"encoding/json"
	"os"
	"sync/atomic"
	"time"

	journal "github.com/openebs/sparse-tools/stats"
	"github.com/sirupsen/logrus"
)

// journalDumpLimit bounds how many pending ops PrintLimited logs per flush.
const journalDumpLimit = 1000

// Counters holds every process-wide stat this node reports. All fields are
// accessed only through the atomic helpers below.
type Counters struct {
	OpenReads        int64
	OpenReadFailures int64
	OpenWrites       int64
	OpenWriteFailures int64
	Removes          int64
	Links            int64
	Derefs           int64
	Timeouts         int64
	PeerDeaths       int64
	ReuseCacheHits   int64
	ReuseCacheMisses int64
	BytesRead        int64
	BytesWritten     int64

	journalPath string
	stopCh      chan struct{}
}

// New builds a Counters set that periodically flushes a JSON snapshot to
// journalPath (empty disables flushing). Grounded on jiva's
// sparse-tools journal write cadence.
func New(journalPath string, flushInterval time.Duration) *Counters {
	c := &Counters{journalPath: journalPath, stopCh: make(chan struct{})}
	if journalPath != "" && flushInterval > 0 {
		go c.flushLoop(flushInterval)
	}
	return c
}

func (c *Counters) flushLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := c.flush(); err != nil {
				logrus.Errorf("clusterstats: journal flush failed: %v", err)
			}
		case <-c.stopCh:
			return
		}
	}
}

// Stop halts the background flush loop; safe to call at most once.
func (c *Counters) Stop() {
	close(c.stopCh)
}

// Snapshot is the JSON-serializable view flushed to the journal and served
// from the stats HTTP surface.
type Snapshot struct {
	OpenReads         int64 `json:"open_reads"`
	OpenReadFailures  int64 `json:"open_read_failures"`
	OpenWrites        int64 `json:"open_writes"`
	OpenWriteFailures int64 `json:"open_write_failures"`
	Removes           int64 `json:"removes"`
	Links             int64 `json:"links"`
	Derefs            int64 `json:"derefs"`
	Timeouts          int64 `json:"timeouts"`
	PeerDeaths        int64 `json:"peer_deaths"`
	ReuseCacheHits    int64 `json:"reuse_cache_hits"`
	ReuseCacheMisses  int64 `json:"reuse_cache_misses"`
	BytesRead         int64 `json:"bytes_read"`
	BytesWritten      int64 `json:"bytes_written"`
}

// Snapshot reads every counter under atomic load.
func (c *Counters) Snapshot() Snapshot {
	return Snapshot{
		OpenReads:         atomic.LoadInt64(&c.OpenReads),
		OpenReadFailures:  atomic.LoadInt64(&c.OpenReadFailures),
		OpenWrites:        atomic.LoadInt64(&c.OpenWrites),
		OpenWriteFailures: atomic.LoadInt64(&c.OpenWriteFailures),
		Removes:           atomic.LoadInt64(&c.Removes),
		Links:             atomic.LoadInt64(&c.Links),
		Derefs:            atomic.LoadInt64(&c.Derefs),
		Timeouts:          atomic.LoadInt64(&c.Timeouts),
		PeerDeaths:        atomic.LoadInt64(&c.PeerDeaths),
		ReuseCacheHits:    atomic.LoadInt64(&c.ReuseCacheHits),
		ReuseCacheMisses:  atomic.LoadInt64(&c.ReuseCacheMisses),
		BytesRead:         atomic.LoadInt64(&c.BytesRead),
		BytesWritten:      atomic.LoadInt64(&c.BytesWritten),
	}
}

func (c *Counters) flush() error {
	journal.PrintLimited(journalDumpLimit)
	if c.journalPath == "" {
		return nil
	}
	b, err := json.Marshal(c.Snapshot())
	if err != nil {
		return err
	}
	tmp := c.journalPath + ".tmp"
	if err := os.WriteFile(tmp, b, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, c.journalPath)
}

func (c *Counters) IncOpenReads()         { atomic.AddInt64(&c.OpenReads, 1) }
func (c *Counters) IncOpenReadFailures()  { atomic.AddInt64(&c.OpenReadFailures, 1) }
func (c *Counters) IncOpenWrites()        { atomic.AddInt64(&c.OpenWrites, 1) }
func (c *Counters) IncOpenWriteFailures() { atomic.AddInt64(&c.OpenWriteFailures, 1) }
func (c *Counters) IncRemoves()           { atomic.AddInt64(&c.Removes, 1) }
func (c *Counters) IncLinks()             { atomic.AddInt64(&c.Links, 1) }
func (c *Counters) IncDerefs()            { atomic.AddInt64(&c.Derefs, 1) }
func (c *Counters) IncTimeouts()          { atomic.AddInt64(&c.Timeouts, 1) }
func (c *Counters) IncPeerDeaths()        { atomic.AddInt64(&c.PeerDeaths, 1) }
func (c *Counters) IncReuseCacheHits()    { atomic.AddInt64(&c.ReuseCacheHits, 1) }
func (c *Counters) IncReuseCacheMisses()  { atomic.AddInt64(&c.ReuseCacheMisses, 1) }
func (c *Counters) AddBytesRead(n int64)    { atomic.AddInt64(&c.BytesRead, n) }
func (c *Counters) AddBytesWritten(n int64) { atomic.AddInt64(&c.BytesWritten, n) }
