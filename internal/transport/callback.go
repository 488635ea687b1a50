package transport

import (
	"sync"
	"time"

	"github.com/ramses-rf/gateway/internal/ramses"
)

// registeredCallback is a callback entry keyed by correlation header: §4.2,
// §9 ("callbacks as {fn, deadline?, daemon}").
type registeredCallback struct {
	fn       func(*ramses.Message)
	deadline time.Time
	daemon   bool
	fired    bool // at-most-once guard (§8 law 4)
}

// callbackRegistry is the single-threaded-by-contract map of correlation
// header -> callback. It is guarded by a mutex because, unlike the source's
// cooperative single-threaded event loop, the Go runtime dispatches inbound
// reads and the outbound loop on separate goroutines — a direct analogue of
// the teacher's own pendingLock around its pending-transaction maps.
type callbackRegistry struct {
	mu        sync.Mutex
	callbacks map[string]*registeredCallback
}

func newCallbackRegistry() *callbackRegistry {
	return &callbackRegistry{callbacks: make(map[string]*registeredCallback)}
}

// register installs a callback for header, replacing (and discarding) any
// earlier registration for the same header. A zero deadline means the
// periodic expire sweep never fires it; per-command registrations made by
// Transport.execute and daemon registrations both use a zero deadline.
func (r *callbackRegistry) register(header string, cb *registeredCallback) {
	if header == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.callbacks[header] = cb
}

func (r *callbackRegistry) unregister(header string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.callbacks, header)
}

// dispatch invokes the callback registered for header (if any) with msg,
// deregistering it unless it is a daemon. Returns whether a callback fired.
//
// §4.2 inbound dispatch step 2; §8 law 4 (at-most-once).
func (r *callbackRegistry) dispatch(header string, msg *ramses.Message) bool {
	r.mu.Lock()
	cb, ok := r.callbacks[header]
	if ok && !cb.daemon {
		delete(r.callbacks, header)
	}
	r.mu.Unlock()

	if !ok || cb.fired {
		return false
	}
	if !cb.daemon {
		cb.fired = true
	}
	if cb.fn != nil {
		cb.fn(msg)
	}
	return true
}

// expireHeader forces immediate expiry of header's callback, regardless of
// its deadline — used when a command's retries are exhausted and there is
// no reason to wait for the periodic sweep.
func (r *callbackRegistry) expireHeader(header string) {
	if header == "" {
		return
	}
	r.mu.Lock()
	cb, ok := r.callbacks[header]
	if ok && !cb.daemon {
		delete(r.callbacks, header)
	}
	r.mu.Unlock()

	if !ok || cb.fired {
		return
	}
	if !cb.daemon {
		cb.fired = true
	}
	if cb.fn != nil {
		cb.fn(nil)
	}
}

// expire sweeps callbacks whose deadline has passed, invoking each exactly
// once with nil (the expiry sentinel) per §4.2 step 5 / §8 law 4.
func (r *callbackRegistry) expire(now time.Time) {
	r.mu.Lock()
	var expired []*registeredCallback
	for header, cb := range r.callbacks {
		if cb.deadline.IsZero() || now.Before(cb.deadline) {
			continue
		}
		if !cb.daemon {
			delete(r.callbacks, header)
		}
		if !cb.fired {
			if !cb.daemon {
				cb.fired = true
			}
			expired = append(expired, cb)
		}
	}
	r.mu.Unlock()

	for _, cb := range expired {
		if cb.fn != nil {
			cb.fn(nil)
		}
	}
}
