package driver

import (
	"context"
	"encoding/hex"
	"strings"
	"testing"
	"time"

	"github.com/ramses-rf/gateway/internal/ramses"
	"github.com/ramses-rf/gateway/internal/transport"
)

// fakeSink answers outbound 0418 RQs synchronously, inline with Write, so
// tests don't need to race a background goroutine against callback
// registration.
type fakeSink struct {
	ctl       ramses.Address
	transport *transport.Transport
	// onRQ, if set, supplies the reply to each 0418 request; when nil,
	// requests go unanswered.
	onRQ func(logIdx int) (respCode string, respHex string)
}

func (s *fakeSink) Write(line string) error {
	pkt, err := ramses.ParsePacket(line, time.Now())
	if err != nil {
		return err
	}
	if s.onRQ == nil || pkt.Code != "0418" {
		return nil
	}
	logIdx := int(pkt.Payload[2])
	_, respHex := s.onRQ(logIdx)

	raw, err := hex.DecodeString(respHex)
	if err != nil {
		return err
	}
	replyPkt := ramses.Packet{
		Verb:    ramses.VerbResponse,
		Src:     s.ctl,
		Dst:     ramses.HGI,
		Ctx:     ramses.NoAddress,
		Code:    "0418",
		Payload: raw,
		DTM:     time.Now(),
	}
	msg, err := ramses.DecodeMessage(replyPkt)
	if err != nil {
		return err
	}
	s.transport.OnMessage(&msg)
	return nil
}

func entryHex(logIdx int) string {
	// A syntactically valid, non-null 0418 entry: byte[2] = log_idx, padded
	// to the 24-byte fault-log entry width.
	b := make([]byte, 24)
	b[2] = byte(logIdx)
	return strings.ToUpper(hex.EncodeToString(b))
}

// S2: a null-RP at log_idx=0 completes the transaction immediately with no
// entries, and log_idx=1 is never requested.
func TestFaultLog_NullTerminatorAtFirstEntry(t *testing.T) {
	ctl := mustAddr(t, "01:145038")

	requested := []int{}
	sink := &fakeSink{ctl: ctl, onRQ: func(logIdx int) (string, string) {
		requested = append(requested, logIdx)
		return "RP", ramses.Code0418NullRP
	}}
	tr := transport.New(sink)
	sink.transport = tr

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	go tr.Run(ctx)
	defer tr.Close()

	fl := NewFaultLog(tr, ctl)
	entries, err := fl.Fetch(ctx)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("entries = %v, want empty", entries)
	}
	if len(requested) != 1 || requested[0] != 0 {
		t.Errorf("requested = %v, want [0] only", requested)
	}
}

// Three real entries followed by the null terminator: all three are
// collected, in order, and the transaction then completes.
func TestFaultLog_CollectsEntriesUntilNull(t *testing.T) {
	ctl := mustAddr(t, "01:145038")

	var tr *transport.Transport
	sink := &fakeSink{ctl: ctl, onRQ: func(logIdx int) (string, string) {
		if logIdx >= 3 {
			return "RP", ramses.Code0418NullRP
		}
		return "RP", entryHex(logIdx)
	}}
	tr = transport.New(sink)
	sink.transport = tr

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	go tr.Run(ctx)
	defer tr.Close()

	fl := NewFaultLog(tr, ctl)
	entries, err := fl.Fetch(ctx)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("entries = %v, want 3", entries)
	}
	for i := 0; i < 3; i++ {
		if _, ok := entries[i]; !ok {
			t.Errorf("missing entry for log_idx=%d", i)
		}
	}
}

func mustAddr(t *testing.T, s string) ramses.Address {
	t.Helper()
	a, err := ramses.ParseAddress(s)
	if err != nil {
		t.Fatalf("ParseAddress(%q): %v", s, err)
	}
	return a
}
