// Package transport implements the QoS command/response engine: the
// prioritised outbound queue, retries, timeouts, response correlation, and
// callback dispatch described in §4.2 of the spec.
package transport

import (
	"container/heap"
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/davecgh/go-spew/spew"

	"github.com/ramses-rf/gateway/internal/ramses"
)

// Sink is the wire the Transport writes serialized commands to. The
// gateway package supplies a concrete Sink backed by a serial port or TCP
// bridge; the transport itself has no opinion about the physical medium
// (§1: the serial/TCP transport is an external collaborator).
type Sink interface {
	Write(line string) error
}

// Transport is the QoS engine of §4.2: a single-consumer outbound loop over
// a priority queue, and an inbound dispatch pipeline that correlates
// replies to callbacks before forwarding every message to Subscribers
// (the device/system/zone topology).
type Transport struct {
	sink Sink

	mu       sync.Mutex
	cond     *sync.Cond
	queue    commandHeap
	inFlight *ramses.Command // the command currently on the wire, if any

	callbacks *callbackRegistry

	subsMu      sync.Mutex
	subscribers []func(*ramses.Message)

	latencyMu sync.Mutex
	latency   map[string]*LatencyStats

	metrics *metrics

	closeOnce sync.Once
	closed    chan struct{}
}

// New returns a Transport that writes outbound commands to sink.
func New(sink Sink) *Transport {
	t := &Transport{
		sink:      sink,
		callbacks: newCallbackRegistry(),
		latency:   make(map[string]*LatencyStats),
		metrics:   newMetrics(),
		closed:    make(chan struct{}),
	}
	t.cond = sync.NewCond(&t.mu)
	return t
}

// Subscribe registers fn to receive every inbound message after response
// correlation has been attempted (§4.2 step 3: "forward the message to the
// topology layer").
func (t *Transport) Subscribe(fn func(*ramses.Message)) {
	t.subsMu.Lock()
	defer t.subsMu.Unlock()
	t.subscribers = append(t.subscribers, fn)
}

// Send enqueues cmd for transmission (non-blocking) and returns immediately.
func (t *Transport) Send(cmd *ramses.Command) {
	t.mu.Lock()
	heap.Push(&t.queue, cmd)
	t.metrics.queueDepth.Set(float64(len(t.queue)))
	t.cond.Signal()
	t.mu.Unlock()
}

// Close stops the outbound loop started by Run.
func (t *Transport) Close() {
	t.closeOnce.Do(func() {
		close(t.closed)
		t.mu.Lock()
		t.cond.Broadcast()
		t.mu.Unlock()
	})
}

// Run drives the single-consumer outbound loop of §4.2 until ctx is done or
// Close is called. It also runs the expiry sweep for callback deadlines.
func (t *Transport) Run(ctx context.Context) {
	go t.expiryLoop(ctx)
	go func() {
		<-ctx.Done()
		t.mu.Lock()
		t.cond.Broadcast()
		t.mu.Unlock()
	}()

	for {
		cmd := t.popNext(ctx)
		if cmd == nil {
			return // ctx done or closed
		}
		t.execute(ctx, cmd)
	}
}

// popNext blocks until a command is available, ctx is done, or Close is
// called — the "outbound loop, step 1: pop highest-priority command".
func (t *Transport) popNext(ctx context.Context) *ramses.Command {
	t.mu.Lock()
	defer t.mu.Unlock()

	for len(t.queue) == 0 {
		select {
		case <-ctx.Done():
			return nil
		case <-t.closed:
			return nil
		default:
		}
		t.cond.Wait()
	}
	cmd := heap.Pop(&t.queue).(*ramses.Command)
	t.metrics.queueDepth.Set(float64(len(t.queue)))
	return cmd
}

// execute performs steps 2-5 of §4.2's outbound loop for one command:
// register callback, transmit, retry on silence, expire on final timeout.
func (t *Transport) execute(ctx context.Context, cmd *ramses.Command) {
	rxHeader := cmd.RxHeader()
	attemptTimeout := cmd.QoS.Timeout
	if cmd.Callback != nil && cmd.Callback.Timeout > 0 {
		attemptTimeout = cmd.Callback.Timeout
	}
	if attemptTimeout <= 0 {
		attemptTimeout = 500 * time.Millisecond
	}

	doneCh := make(chan *ramses.Message, 1)
	var regCB *registeredCallback
	if rxHeader != "" {
		// Registered even without a Callback, so that a reply stops retries.
		regCB = &registeredCallback{
			fn: func(m *ramses.Message) {
				select {
				case doneCh <- m:
				default:
				}
				if cmd.Callback != nil && cmd.Callback.Fn != nil {
					cmd.Callback.Fn(m)
				}
			},
			daemon: cmd.Callback != nil && cmd.Callback.Daemon,
		}
		t.callbacks.register(rxHeader, regCB)
	}

	start := time.Now()
	retries := cmd.QoS.Retries
	for {
		t.transmit(cmd)

		select {
		case msg := <-doneCh:
			if msg != nil {
				t.sampleLatency(cmd, time.Since(start))
			}
			return
		case <-time.After(attemptTimeout):
			if retries <= 0 {
				t.expireNow(rxHeader)
				return
			}
			retries--
			t.metrics.retriesTotal.WithLabelValues(cmd.Code).Inc()
			slog.Debug("transport: retrying", "cmd", cmd, "retries_left", retries)
		case <-ctx.Done():
			return
		case <-t.closed:
			return
		}
	}
}

// expireNow forces immediate expiry of header's callback (used when retries
// are exhausted, rather than waiting for the periodic sweep).
func (t *Transport) expireNow(header string) {
	if header == "" {
		return
	}
	t.callbacks.expireHeader(header)
	t.metrics.callbackExpiredTotal.Inc()
}

func (t *Transport) transmit(cmd *ramses.Command) {
	line := cmd.String()
	if err := t.sink.Write(line); err != nil {
		slog.Error("transport: write failed", "err", err, "cmd", cmd)
		return
	}
	slog.Debug("transport: tx", "cmd", cmd)
}

// expiryLoop periodically sweeps the callback registry for deadlines that
// have passed without a matching reply. Only registrations that carry a
// deadline are swept: execute registers per-command callbacks without one
// and expires them itself once retries are exhausted (§4.2 step 5), and
// RegisterDaemonCallback registrations (e.g. the 0418 null-RP handler)
// carry none either.
func (t *Transport) expiryLoop(ctx context.Context) {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.closed:
			return
		case now := <-ticker.C:
			t.callbacks.expire(now)
		}
	}
}

// RegisterDaemonCallback installs a long-lived callback for header that
// survives invocation — used by the fault-log driver for the 0418 null-RP
// sentinel (§4.2's "Null-RP sentinel" note) and is otherwise identical to
// the per-command registration path.
func (t *Transport) RegisterDaemonCallback(header string, fn func(*ramses.Message)) {
	t.callbacks.register(header, &registeredCallback{fn: fn, daemon: true})
}

// UnregisterCallback removes any callback registered for header.
func (t *Transport) UnregisterCallback(header string) {
	t.callbacks.unregister(header)
}

// OnMessage is the inbound pipeline entry point (§4.2): it computes the
// message's correlation header, dispatches to a matching callback if any,
// then forwards the message to every topology subscriber.
func (t *Transport) OnMessage(msg *ramses.Message) {
	header := ramses.MessageHeader(*msg)
	t.callbacks.dispatch(header, msg)

	t.subsMu.Lock()
	subs := append([]func(*ramses.Message){}, t.subscribers...)
	t.subsMu.Unlock()
	for _, fn := range subs {
		fn(msg)
	}
}

func (t *Transport) sampleLatency(cmd *ramses.Command, d time.Duration) {
	key := cmd.Verb + "|" + cmd.Code
	t.latencyMu.Lock()
	ls, ok := t.latency[key]
	if !ok {
		ls = NewLatencyStats(key)
		t.latency[key] = ls
	}
	t.latencyMu.Unlock()
	ls.Sample(d)
	t.metrics.roundTrip.WithLabelValues(cmd.Code).Observe(d.Seconds())
}

// Stats reports the min/mean/max round-trip time per (verb, code), for
// human consumption — the same role as the teacher's Client.Stats().
func (t *Transport) Stats() string {
	t.latencyMu.Lock()
	defer t.latencyMu.Unlock()
	out := ""
	for _, ls := range t.latency {
		out += ls.String()
	}
	return out
}

// String renders internal queue/callback state for debugging, in the
// teacher's spew-based style (lwl.Client.String()).
func (t *Transport) String() string {
	t.mu.Lock()
	qlen := len(t.queue)
	t.mu.Unlock()
	return spew.Sprintf("transport.Transport(\n  queue_depth: %v\n)\n", qlen)
}
