package liveness

import (
	"testing"
	"time"
)

func TestArmFiresAtDeadline(t *testing.T) {
	tr := NewTracker()
	fired := make(chan struct{})
	tr.Arm("peer-a", 1, time.Now().Add(10*time.Millisecond), func() { close(fired) })

	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("timeout callback did not fire")
	}
}

func TestDisarmSuppressesCallback(t *testing.T) {
	tr := NewTracker()
	fired := make(chan struct{})
	tr.Arm("peer-a", 1, time.Now().Add(50*time.Millisecond), func() { close(fired) })
	tr.Disarm("peer-a", 1)

	select {
	case <-fired:
		t.Fatal("callback fired despite Disarm")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestArmReplacesPriorTimer(t *testing.T) {
	tr := NewTracker()
	var firstFired, secondFired bool
	done := make(chan struct{})

	tr.Arm("peer-a", 1, time.Now().Add(time.Hour), func() { firstFired = true })
	tr.Arm("peer-a", 1, time.Now().Add(10*time.Millisecond), func() {
		secondFired = true
		close(done)
	})

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("replacement timer never fired")
	}
	if firstFired {
		t.Fatal("the replaced timer fired")
	}
	if !secondFired {
		t.Fatal("the replacement timer should have fired")
	}
}

func TestPeerTableIsUpDefaultsTrue(t *testing.T) {
	p := NewPeerTable()
	if !p.IsUp("unknown") {
		t.Fatal("an unseen peer should be assumed up")
	}
}

func TestPeerTableMarkDeadFansOutAndSnapshot(t *testing.T) {
	p := NewPeerTable()
	p.MarkUp("peer-a")

	var notified string
	done := make(chan struct{})
	p.OnPeerDead(func(peer string) {
		notified = peer
		close(done)
	})

	p.MarkDead("peer-a")
	<-done

	if notified != "peer-a" {
		t.Fatalf("OnPeerDead callback got %q, want peer-a", notified)
	}
	if p.IsUp("peer-a") {
		t.Fatal("peer-a should be down after MarkDead")
	}

	snap := p.Snapshot()
	if up, ok := snap["peer-a"]; !ok || up {
		t.Fatalf("Snapshot()[peer-a] = %v, %v, want false, true", up, ok)
	}
}
