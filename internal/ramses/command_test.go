package ramses

import (
	"container/heap"
	"testing"
	"time"
)

func mustAddr(t *testing.T, s string) Address {
	t.Helper()
	a, err := ParseAddress(s)
	if err != nil {
		t.Fatalf("ParseAddress(%q): %v", s, err)
	}
	return a
}

// S1: TX/RX header derivation for a zone-setpoint command.
func TestCommandHeaders_ZoneSetpoint(t *testing.T) {
	ctl := mustAddr(t, "01:145038")
	cmd, err := NewCommand(VerbWrite, ctl, "2309", "0107D0")
	if err != nil {
		t.Fatalf("NewCommand: %v", err)
	}

	if got, want := cmd.TxHeader(), " W|01:145038|2309|01"; got != want {
		t.Errorf("TxHeader() = %q, want %q", got, want)
	}
	if got, want := cmd.RxHeader(), " I|01:145038|2309|01"; got != want {
		t.Errorf("RxHeader() = %q, want %q", got, want)
	}
}

// S5: zone_mode with a temporary override encodes setpoint, mode byte,
// the FFFFFF filler, and the until timestamp.
func TestZoneMode_TemporaryOverride(t *testing.T) {
	ctl := mustAddr(t, "01:145038")
	until := time.Date(2026, time.March, 5, 14, 30, 0, 0, time.UTC)

	cmd, err := ZoneMode(ctl, 0x01, ModeTemporaryOverride, 20.0, until)
	if err != nil {
		t.Fatalf("ZoneMode: %v", err)
	}

	want := "01" + EncodeTemp(20.0) + "04FFFFFF" + DtmToHex(until)
	if cmd.PayloadHex != want {
		t.Errorf("payload = %q, want %q", cmd.PayloadHex, want)
	}
	if cmd.Code != "2349" || cmd.Verb != VerbWrite {
		t.Errorf("code/verb = %q/%q, want 2349/%q", cmd.Code, cmd.Verb, VerbWrite)
	}
}

func TestZoneMode_TemporaryOverrideRequiresUntil(t *testing.T) {
	ctl := mustAddr(t, "01:145038")
	if _, err := ZoneMode(ctl, 0x01, ModeTemporaryOverride, 20.0, time.Time{}); err == nil {
		t.Fatal("expected an error when until is zero for temporary_override")
	}
}

// S6: command ordering — higher-priority commands transmit first; ties
// within a priority band preserve enqueue (FIFO) order.
func TestCommandOrdering(t *testing.T) {
	ctl := mustAddr(t, "01:145038")

	a, err := NewCommand(VerbRequest, ctl, "12B0", "00", WithQoS(QoS{Priority: PriorityDefault, Retries: 1, Timeout: time.Second}))
	if err != nil {
		t.Fatalf("NewCommand(A): %v", err)
	}
	b, err := NewCommand(VerbRequest, ctl, "12B0", "00", WithQoS(QoS{Priority: PriorityHigh, Retries: 1, Timeout: time.Second}))
	if err != nil {
		t.Fatalf("NewCommand(B): %v", err)
	}
	c, err := NewCommand(VerbRequest, ctl, "12B0", "00", WithQoS(QoS{Priority: PriorityHigh, Retries: 1, Timeout: time.Second}))
	if err != nil {
		t.Fatalf("NewCommand(C): %v", err)
	}

	h := &testHeap{a, b, c}
	heap.Init(h)

	var order []string
	for h.Len() > 0 {
		cmd := heap.Pop(h).(*Command)
		switch cmd {
		case a:
			order = append(order, "A")
		case b:
			order = append(order, "B")
		case c:
			order = append(order, "C")
		}
	}

	want := []string{"B", "C", "A"}
	if len(order) != len(want) {
		t.Fatalf("order = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("order = %v, want %v", order, want)
		}
	}
}

// testHeap is a minimal container/heap.Interface wrapper for *Command,
// mirroring transport's commandHeap without importing the transport
// package (which would create an import cycle).
type testHeap []*Command

func (h testHeap) Len() int            { return len(h) }
func (h testHeap) Less(i, j int) bool  { return h[i].Less(h[j]) }
func (h testHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *testHeap) Push(x any)         { *h = append(*h, x.(*Command)) }
func (h *testHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}
