package streamer

import (
	"testing"

	"github.com/jiva-cluster/ccrpc/transport"
)

func TestAcceptAccumulatesAndCompletes(t *testing.T) {
	s := New(10)
	done, err := s.Accept(4)
	if err != nil {
		t.Fatal(err)
	}
	if done {
		t.Fatal("stream reported done before reaching declared length")
	}
	if s.Delivered() != 4 {
		t.Fatalf("Delivered() = %d, want 4", s.Delivered())
	}

	s.Reenable()
	done, err = s.Accept(6)
	if err != nil {
		t.Fatal(err)
	}
	if !done {
		t.Fatal("expected done once delivered reaches declared")
	}
	if !s.Done() {
		t.Fatal("Done() should report true")
	}
}

func TestAcceptWithoutReenableIsUnexpectedChunk(t *testing.T) {
	s := New(10)
	if _, err := s.Accept(4); err != nil {
		t.Fatal(err)
	}
	// expectNext is now false; a second Accept without Reenable is a
	// FIFO-ordering violation.
	_, err := s.Accept(1)
	if _, ok := err.(*ErrUnexpectedChunk); !ok {
		t.Fatalf("expected *ErrUnexpectedChunk, got %v", err)
	}
}

func TestAcceptOverrun(t *testing.T) {
	s := New(5)
	_, err := s.Accept(10)
	if _, ok := err.(*ErrOverrun); !ok {
		t.Fatalf("expected *ErrOverrun, got %v", err)
	}
}

func TestDesiredMaskTracksExpectNext(t *testing.T) {
	s := New(10)
	if s.DesiredMask() != transport.NotifyDealer {
		t.Fatalf("expected NotifyDealer while expecting next chunk")
	}
	if _, err := s.Accept(3); err != nil {
		t.Fatal(err)
	}
	if s.DesiredMask() != transport.EventNone {
		t.Fatalf("expected EventNone once a chunk is consumed and not yet reenabled")
	}
	s.Reenable()
	if s.DesiredMask() != transport.NotifyDealer {
		t.Fatalf("expected NotifyDealer again after Reenable")
	}
}

func TestExpectingNextReflectsLatch(t *testing.T) {
	s := New(10)
	if !s.ExpectingNext() {
		t.Fatal("new Streamer should start expecting the first chunk")
	}
	if _, err := s.Accept(1); err != nil {
		t.Fatal(err)
	}
	if s.ExpectingNext() {
		t.Fatal("ExpectingNext should be false immediately after Accept")
	}
}
