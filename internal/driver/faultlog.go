// Package driver implements the stateful multi-fragment transactions
// layered on top of the transport's QoS engine: fault-log enumeration
// (0418) and schedule fetch/put (0404), per §4.3 and §4.4.
package driver

import (
	"context"
	"sync"
	"time"

	"github.com/ramses-rf/gateway/internal/ramses"
	"github.com/ramses-rf/gateway/internal/transport"
)

// DefaultFaultLogLimit is the default number of entries FaultLog.Fetch will
// collect before stopping, per §4.3.
const DefaultFaultLogLimit = 11

// MaxFaultLogLimit is the protocol's practical upper bound on log_idx.
const MaxFaultLogLimit = 0x3C

// FaultLogEntry is one decoded fault-log record, with the log_idx key
// stripped (it is the map key in FaultLog.Fetch's result).
type FaultLogEntry = map[string]any

// FaultLog sequentially harvests a controller's fault log via RQ/RP 0418:
// request log_idx=0, on each reply store the entry and request log_idx+1,
// until the null-RP sentinel, the configured limit, or a timeout.
//
// Grounded on the source project's FaultLog class (evohome_rf/command.py).
type FaultLog struct {
	transport *transport.Transport
	ctl       ramses.Address
	limit     int
	nullHeader string

	mu       sync.Mutex
	entries  map[int]FaultLogEntry
	done     chan struct{}
	doneOnce sync.Once
}

// NewFaultLog returns a FaultLog driver for ctl, talking over t.
func NewFaultLog(t *transport.Transport, ctl ramses.Address) *FaultLog {
	return &FaultLog{
		transport: t,
		ctl:       ctl,
		limit:     DefaultFaultLogLimit,
		nullHeader: ramses.MessageHeader(ramses.Message{
			Verb:   ramses.VerbResponse,
			Src:    ctl,
			Dst:    ramses.HGI,
			Code:   "0418",
			RawHex: ramses.Code0418NullRP,
		}),
	}
}

// SetLimit overrides DefaultFaultLogLimit, clamped to MaxFaultLogLimit.
func (f *FaultLog) SetLimit(n int) {
	if n > MaxFaultLogLimit {
		n = MaxFaultLogLimit
	}
	f.limit = n
}

// Fetch runs one fault-log transaction to completion, or until ctx is
// cancelled (the transaction timeout is the caller's responsibility, per
// §4.3's "≈ 2·TIMER_LONG_TIMEOUT" — the gateway layer sizes ctx).
func (f *FaultLog) Fetch(ctx context.Context) (map[int]FaultLogEntry, error) {
	f.mu.Lock()
	f.entries = make(map[int]FaultLogEntry)
	f.done = make(chan struct{})
	f.doneOnce = sync.Once{}
	f.mu.Unlock()

	f.transport.RegisterDaemonCallback(f.nullHeader, f.onNullRP)
	defer f.transport.UnregisterCallback(f.nullHeader)

	if err := f.requestEntry(0); err != nil {
		return nil, err
	}

	select {
	case <-f.done:
		f.mu.Lock()
		defer f.mu.Unlock()
		return f.entries, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (f *FaultLog) requestEntry(logIdx int) error {
	cmd, err := ramses.RQFaultLogEntry(f.ctl, logIdx, f.onEntry)
	if err != nil {
		return err
	}
	f.transport.Send(cmd)
	return nil
}

// onNullRP fires when the controller reports "no more entries" (§4.2's
// Null-RP sentinel, §8 scenario S2).
func (f *FaultLog) onNullRP(*ramses.Message) {
	f.finish()
}

func (f *FaultLog) onEntry(msg *ramses.Message) {
	if msg == nil {
		// Callback expired without a reply: the transaction cannot make
		// further progress, so stop with whatever was already collected.
		f.finish()
		return
	}

	logIdxAny, ok := msg.Payload.Fields["log_idx"]
	if !ok {
		f.finish()
		return
	}
	logIdx := logIdxAny.(int)

	entry := make(FaultLogEntry, len(msg.Payload.Fields)-1)
	for k, v := range msg.Payload.Fields {
		if k == "log_idx" {
			continue
		}
		entry[k] = v
	}

	f.mu.Lock()
	f.entries[logIdx] = entry
	collected := len(f.entries)
	f.mu.Unlock()

	if collected >= f.limit {
		f.finish()
		return
	}
	f.requestEntry(logIdx + 1)
}

func (f *FaultLog) finish() {
	f.doneOnce.Do(func() { close(f.done) })
}

// TransactionTimeout is the default ctx budget a caller should give Fetch,
// per §4.3's "≈ 2·TIMER_LONG_TIMEOUT" (TIMER_LONG_TIMEOUT mirrors the
// source project's 60s constant).
const TransactionTimeout = 2 * 60 * time.Second
