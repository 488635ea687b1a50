package transport

import (
	"container/heap"
	"testing"
	"time"

	"github.com/ramses-rf/gateway/internal/ramses"
)

// S6: the real commandHeap used by Transport orders strictly by priority,
// FIFO within a band — the same invariant ramses.command_test.go checks
// against its own package-local heap, exercised here against the queue the
// engine actually runs.
func TestCommandHeap_PriorityOrder(t *testing.T) {
	ctl, err := ramses.ParseAddress("01:145038")
	if err != nil {
		t.Fatalf("ParseAddress: %v", err)
	}

	mk := func(prio int) *ramses.Command {
		cmd, err := ramses.NewCommand(ramses.VerbRequest, ctl, "12B0", "00",
			ramses.WithQoS(ramses.QoS{Priority: prio, Retries: 1, Timeout: time.Second}))
		if err != nil {
			t.Fatalf("NewCommand: %v", err)
		}
		return cmd
	}

	lowest := mk(ramses.PriorityLowest)
	highest := mk(ramses.PriorityHighest)
	defaultA := mk(ramses.PriorityDefault)
	defaultB := mk(ramses.PriorityDefault)

	h := &commandHeap{lowest, highest, defaultA, defaultB}
	heap.Init(h)

	want := []*ramses.Command{highest, defaultA, defaultB, lowest}
	for i, w := range want {
		got := heap.Pop(h).(*ramses.Command)
		if got != w {
			t.Fatalf("pop[%d] = %p, want %p", i, got, w)
		}
	}
}

func TestCommandHeap_PushPopMaintainsLen(t *testing.T) {
	ctl, err := ramses.ParseAddress("01:145038")
	if err != nil {
		t.Fatalf("ParseAddress: %v", err)
	}
	h := &commandHeap{}
	heap.Init(h)

	for i := 0; i < 3; i++ {
		cmd, err := ramses.NewCommand(ramses.VerbRequest, ctl, "12B0", "00")
		if err != nil {
			t.Fatalf("NewCommand: %v", err)
		}
		heap.Push(h, cmd)
	}
	if h.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", h.Len())
	}
	heap.Pop(h)
	if h.Len() != 2 {
		t.Fatalf("Len() after pop = %d, want 2", h.Len())
	}
}
