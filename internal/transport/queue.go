package transport

import (
	"container/heap"

	"github.com/ramses-rf/gateway/internal/ramses"
)

// commandHeap is a priority queue of *ramses.Command ordered by
// Command.Less: lower QoS.Priority value first, ties broken by creation
// order (FIFO within a priority band) — §4.1, §8 laws 2 & 3.
//
// container/heap is the idiomatic stdlib building block for a priority
// queue in Go; none of the retrieved example repos wire a third-party
// priority-queue library, so this stays on the standard library (see
// DESIGN.md).
type commandHeap []*ramses.Command

func (h commandHeap) Len() int            { return len(h) }
func (h commandHeap) Less(i, j int) bool  { return h[i].Less(h[j]) }
func (h commandHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *commandHeap) Push(x any)         { *h = append(*h, x.(*ramses.Command)) }
func (h *commandHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return item
}

var _ = heap.Interface(&commandHeap{})
