package transport

import (
	"testing"
	"time"

	"github.com/ramses-rf/gateway/internal/ramses"
)

// §8 law 4: a dispatched callback fires at most once, even if dispatch
// (or a subsequent expiry sweep) is attempted again for the same header.
func TestCallbackRegistry_AtMostOnce(t *testing.T) {
	r := newCallbackRegistry()
	var calls int
	r.register("hdr", &registeredCallback{fn: func(*ramses.Message) { calls++ }})

	if ok := r.dispatch("hdr", &ramses.Message{}); !ok {
		t.Fatal("first dispatch: want ok=true")
	}
	if ok := r.dispatch("hdr", &ramses.Message{}); ok {
		t.Fatal("second dispatch: want ok=false (already consumed)")
	}
	if calls != 1 {
		t.Fatalf("calls = %d, want 1", calls)
	}
}

// A daemon callback survives dispatch and fires again on subsequent
// messages — the Null-RP sentinel pattern used by the fault-log driver.
func TestCallbackRegistry_DaemonSurvivesDispatch(t *testing.T) {
	r := newCallbackRegistry()
	var calls int
	r.register("daemon-hdr", &registeredCallback{daemon: true, fn: func(*ramses.Message) { calls++ }})

	r.dispatch("daemon-hdr", &ramses.Message{})
	r.dispatch("daemon-hdr", &ramses.Message{})

	if calls != 2 {
		t.Fatalf("calls = %d, want 2 (daemon callback must not be consumed)", calls)
	}
	if _, ok := r.callbacks["daemon-hdr"]; !ok {
		t.Fatal("daemon callback was removed from the registry")
	}
}

// expire fires exactly the callbacks whose deadline has passed, with the
// nil expiry sentinel, and removes non-daemon entries.
func TestCallbackRegistry_ExpireSweepsPastDeadline(t *testing.T) {
	r := newCallbackRegistry()
	now := time.Now()

	var expiredMsg *ramses.Message
	gotCall := false
	r.register("expired", &registeredCallback{deadline: now.Add(-time.Second), fn: func(m *ramses.Message) {
		gotCall = true
		expiredMsg = m
	}})

	var notYetCalls int
	r.register("not-yet", &registeredCallback{deadline: now.Add(time.Hour), fn: func(*ramses.Message) { notYetCalls++ }})

	r.expire(now)

	if !gotCall || expiredMsg != nil {
		t.Fatalf("expired callback: gotCall=%v msg=%v, want called with nil", gotCall, expiredMsg)
	}
	if notYetCalls != 0 {
		t.Fatalf("not-yet callback fired %d times, want 0", notYetCalls)
	}
	if _, ok := r.callbacks["expired"]; ok {
		t.Fatal("expired callback was not removed")
	}
	if _, ok := r.callbacks["not-yet"]; !ok {
		t.Fatal("not-yet callback was removed prematurely")
	}
}

// expireHeader forces immediate expiry regardless of deadline — used when a
// command's retries are exhausted.
func TestCallbackRegistry_ExpireHeaderForcesImmediate(t *testing.T) {
	r := newCallbackRegistry()
	called := false
	r.register("hdr", &registeredCallback{deadline: time.Now().Add(time.Hour), fn: func(*ramses.Message) { called = true }})

	r.expireHeader("hdr")

	if !called {
		t.Fatal("expireHeader did not invoke the callback")
	}
	if _, ok := r.callbacks["hdr"]; ok {
		t.Fatal("expireHeader did not remove the callback")
	}
}
