package clusterstats

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestIncrementsReflectInSnapshot(t *testing.T) {
	c := New("", 0)
	defer c.Stop()

	c.IncOpenReads()
	c.IncOpenReads()
	c.IncOpenReadFailures()
	c.IncTimeouts()
	c.IncPeerDeaths()
	c.IncReuseCacheHits()
	c.IncReuseCacheMisses()
	c.AddBytesRead(1024)
	c.AddBytesWritten(512)

	snap := c.Snapshot()
	if snap.OpenReads != 2 {
		t.Errorf("OpenReads = %d, want 2", snap.OpenReads)
	}
	if snap.OpenReadFailures != 1 {
		t.Errorf("OpenReadFailures = %d, want 1", snap.OpenReadFailures)
	}
	if snap.Timeouts != 1 || snap.PeerDeaths != 1 {
		t.Errorf("Timeouts/PeerDeaths = %d/%d, want 1/1", snap.Timeouts, snap.PeerDeaths)
	}
	if snap.ReuseCacheHits != 1 || snap.ReuseCacheMisses != 1 {
		t.Errorf("ReuseCacheHits/Misses = %d/%d, want 1/1", snap.ReuseCacheHits, snap.ReuseCacheMisses)
	}
	if snap.BytesRead != 1024 || snap.BytesWritten != 512 {
		t.Errorf("BytesRead/Written = %d/%d, want 1024/512", snap.BytesRead, snap.BytesWritten)
	}
}

func TestFlushWritesJournalFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "stats.json")
	c := New(path, 0)
	defer c.Stop()

	c.IncLinks()
	c.IncDerefs()
	c.IncRemoves()

	if err := c.flush(); err != nil {
		t.Fatal(err)
	}

	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var got Snapshot
	if err := json.Unmarshal(b, &got); err != nil {
		t.Fatal(err)
	}
	if got.Links != 1 || got.Derefs != 1 || got.Removes != 1 {
		t.Fatalf("journaled snapshot = %+v, want Links=1 Derefs=1 Removes=1", got)
	}

	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Fatal("expected the .tmp file to be renamed away, not left behind")
	}
}

func TestFlushLoopRunsOnTicker(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "stats.json")
	c := New(path, 20*time.Millisecond)
	defer c.Stop()

	c.IncOpenWrites()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if b, err := os.ReadFile(path); err == nil {
			var got Snapshot
			if json.Unmarshal(b, &got) == nil && got.OpenWrites == 1 {
				return
			}
		}
		time.Sleep(25 * time.Millisecond)
	}
	t.Fatal("journal file never reflected the counter within the deadline")
}

func TestFlushWithEmptyPathIsNoop(t *testing.T) {
	c := New("", 0)
	defer c.Stop()
	if err := c.flush(); err != nil {
		t.Fatalf("flush with empty journalPath should be a no-op, got %v", err)
	}
}
