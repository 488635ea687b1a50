package driver

import (
	"context"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ramses-rf/gateway/internal/ramses"
	"github.com/ramses-rf/gateway/internal/transport"
)

// fiveMinutes is the fragment staleness window of §4.4 step 5.
const fiveMinutes = 5 * time.Minute

// ZoneLock serializes schedule transactions within one system: only one
// zone's fetch/put may be in flight at a time (§4.4's zone_lock_idx).
type ZoneLock struct {
	mu     sync.Mutex
	holder string
}

// Acquire blocks until the lock is free (or ctx is done), then takes it for
// zoneIdx.
func (l *ZoneLock) Acquire(ctx context.Context, zoneIdx string) error {
	for {
		l.mu.Lock()
		if l.holder == "" {
			l.holder = zoneIdx
			l.mu.Unlock()
			return nil
		}
		l.mu.Unlock()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(100 * time.Millisecond):
		}
	}
}

// Release frees the lock, regardless of who holds it — schedule transactions
// always release on every exit path (§4.4 Failure).
func (l *ZoneLock) Release() {
	l.mu.Lock()
	l.holder = ""
	l.mu.Unlock()
}

// ScheduleDriver implements the fetch/put fragment protocol of §4.4.
type ScheduleDriver struct {
	transport *transport.Transport
	ctl       ramses.Address
	lock      *ZoneLock
}

// NewScheduleDriver returns a ScheduleDriver for ctl, serializing every
// transaction through lock (one ZoneLock per system).
func NewScheduleDriver(t *transport.Transport, ctl ramses.Address, lock *ZoneLock) *ScheduleDriver {
	return &ScheduleDriver{transport: t, ctl: ctl, lock: lock}
}

type rxFragment struct {
	hex string
	dtm time.Time
}

// Fetch retrieves zoneIdx's schedule, per §4.4's Fetch algorithm. Returns an
// empty Schedule (no error) if the controller reports frag_total == 255
// ("no schedule").
func (d *ScheduleDriver) Fetch(ctx context.Context, zoneIdx string) (*ramses.Schedule, error) {
	if err := d.lock.Acquire(ctx, zoneIdx); err != nil {
		return nil, err
	}
	defer d.lock.Release()

	var (
		mu         sync.Mutex
		frags      = make([]*rxFragment, 1)
		noSchedule bool
		failed     error
		done       = make(chan struct{})
		doneOnce   sync.Once
	)
	finish := func() { doneOnce.Do(func() { close(done) }) }

	var request func(fragCnt int)
	request = func(fragCnt int) {
		mu.Lock()
		fragIdx := -1
		for i, f := range frags {
			if f == nil {
				fragIdx = i
				break
			}
		}
		mu.Unlock()
		if fragIdx < 0 {
			finish()
			return
		}

		cmd, err := ramses.RQScheduleFragment(d.ctl, zoneIdx, fragIdx+1, fragCnt, func(msg *ramses.Message) {
			if msg == nil {
				mu.Lock()
				failed = fmt.Errorf("driver: schedule fetch: fragment %d timed out", fragIdx+1)
				mu.Unlock()
				finish()
				return
			}

			fragTotal, _ := msg.Payload.Fields["frag_total"].(int)
			fragIndex, _ := msg.Payload.Fields["frag_index"].(int)
			fragment, _ := msg.Payload.Fields["fragment"].(string)

			mu.Lock()
			if fragTotal == 255 {
				noSchedule = true
				mu.Unlock()
				finish()
				return
			}
			if fragTotal != len(frags) {
				resized := make([]*rxFragment, fragTotal)
				copy(resized, frags)
				frags = resized
			}
			if fragIndex >= 1 && fragIndex <= len(frags) {
				frags[fragIndex-1] = &rxFragment{hex: fragment, dtm: msg.DTM}
			}
			for i, f := range frags {
				if f != nil && msg.DTM.Sub(f.dtm) > fiveMinutes {
					frags[i] = nil
				}
			}
			missing := false
			for _, f := range frags {
				if f == nil {
					missing = true
					break
				}
			}
			total := len(frags)
			mu.Unlock()

			if missing {
				request(total)
			} else {
				finish()
			}
		})
		if err != nil {
			mu.Lock()
			failed = err
			mu.Unlock()
			finish()
			return
		}
		d.transport.Send(cmd)
	}

	request(0)

	select {
	case <-done:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	mu.Lock()
	defer mu.Unlock()
	if failed != nil {
		return nil, failed
	}
	if noSchedule {
		return &ramses.Schedule{ZoneIdx: zoneIdx}, nil
	}

	var blob strings.Builder
	for _, f := range frags {
		if f == nil {
			return nil, fmt.Errorf("driver: schedule fetch: incomplete fragment set")
		}
		blob.WriteString(f.hex)
	}
	raw, err := hex.DecodeString(blob.String())
	if err != nil {
		return nil, fmt.Errorf("driver: schedule fetch: %w", err)
	}
	sched, err := ramses.DecodeSchedule(raw)
	if err != nil {
		// Corrupt deflate yields an empty schedule rather than a hard
		// failure, per §4.4's Failure clause.
		return &ramses.Schedule{ZoneIdx: zoneIdx}, nil
	}
	return sched, nil
}

// Put uploads sched to the controller, per §4.4's Put algorithm: deflate,
// split into fragments, send sequentially, advancing on each reply.
func (d *ScheduleDriver) Put(ctx context.Context, sched *ramses.Schedule) error {
	if err := d.lock.Acquire(ctx, sched.ZoneIdx); err != nil {
		return err
	}
	defer d.lock.Release()

	frags, err := ramses.EncodeSchedule(sched)
	if err != nil {
		return fmt.Errorf("driver: schedule put: %w", err)
	}
	if len(frags) == 0 {
		return fmt.Errorf("driver: schedule put: empty schedule")
	}

	var (
		failed   error
		done     = make(chan struct{})
		doneOnce sync.Once
	)
	finish := func() { doneOnce.Do(func() { close(done) }) }

	var send func(idx int)
	send = func(idx int) {
		cmd, err := ramses.WScheduleFragment(d.ctl, sched.ZoneIdx, idx+1, len(frags), frags[idx], func(msg *ramses.Message) {
			if msg == nil {
				failed = fmt.Errorf("driver: schedule put: fragment %d timed out", idx+1)
				finish()
				return
			}
			fragIndex, _ := msg.Payload.Fields["frag_index"].(int)
			fragTotal, _ := msg.Payload.Fields["frag_total"].(int)
			if fragIndex < fragTotal {
				send(fragIndex)
			} else {
				finish()
			}
		})
		if err != nil {
			failed = err
			finish()
			return
		}
		d.transport.Send(cmd)
	}

	send(0)

	select {
	case <-done:
		return failed
	case <-ctx.Done():
		return ctx.Err()
	}
}
