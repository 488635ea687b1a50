package topology

import (
	"sync"
	"time"

	"github.com/ramses-rf/gateway/internal/ramses"
)

// Topology is the process-lifetime registry of every device and system
// discovered on the bus (§3 Lifecycle: created lazily, never deleted). It
// subscribes to the transport's inbound message stream and drives §4.5/§4.6.
type Topology struct {
	mu      sync.Mutex
	devices map[string]*Device
	systems map[string]*System
}

// New returns an empty Topology.
func New() *Topology {
	return &Topology{
		devices: make(map[string]*Device),
		systems: make(map[string]*System),
	}
}

func (t *Topology) device(addr ramses.Address) *Device {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.deviceLocked(addr)
}

func (t *Topology) deviceLocked(addr ramses.Address) *Device {
	key := addr.String()
	d, ok := t.devices[key]
	if !ok {
		d = newDevice(addr)
		t.devices[key] = d
	}
	return d
}

// System returns (creating if absent) the System modelling the controller
// at ctlAddr.
func (t *Topology) System(ctlAddr ramses.Address) *System {
	t.mu.Lock()
	defer t.mu.Unlock()
	key := ctlAddr.String()
	if sys, ok := t.systems[key]; ok {
		return sys
	}
	ctl := t.deviceLocked(ctlAddr)
	sys := newSystem(ctl)
	t.systems[key] = sys
	ctl.SetController(sys)
	return sys
}

// Systems returns every known system.
func (t *Topology) Systems() []*System {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]*System, 0, len(t.systems))
	for _, sys := range t.systems {
		out = append(out, sys)
	}
	return out
}

// DeviceAddrs returns the address of every device seen on the bus so far,
// in no particular order (§3 Lifecycle: devices are never forgotten).
func (t *Topology) DeviceAddrs() []ramses.Address {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]ramses.Address, 0, len(t.devices))
	for _, d := range t.devices {
		out = append(out, d.Addr)
	}
	return out
}

// devicesWithZoneSensorCapability returns every device eligible as a
// candidate zone sensor for sys, per §4.6 step 4: belonging to sys or no
// system yet, of a sensor-capable type, with a temperature reading newer
// than since.
func (t *Topology) devicesWithZoneSensorCapability(sys *System, since time.Time) []*Device {
	t.mu.Lock()
	all := make([]*Device, 0, len(t.devices))
	for _, d := range t.devices {
		all = append(all, d)
	}
	t.mu.Unlock()

	var out []*Device
	for _, d := range all {
		if !d.HasZoneSensorCapability() {
			continue
		}
		if c := d.Controller(); c != nil && c != sys {
			continue
		}
		_, at, ok := d.Temperature()
		if !ok || !at.After(since) {
			continue
		}
		out = append(out, d)
	}
	return out
}

// OnMessage is the Topology's entry point into the transport's inbound
// pipeline (§4.2 step 3: "forward the message to the topology layer").
// It resolves which system (if any) this message concerns, enforces
// cross-system isolation, and dispatches to System.Update.
func (t *Topology) OnMessage(msg *ramses.Message) {
	srcDev := t.device(msg.Src)
	srcDev.RecordMessage(msg)
	if !msg.Dst.IsNone() {
		t.device(msg.Dst)
	}

	var sys *System
	switch {
	case msg.Src.Type == ramses.DeviceTypeController:
		sys = t.System(msg.Src)
	case msg.Dst.Type == ramses.DeviceTypeController:
		sys = t.System(msg.Dst)
	default:
		sys = srcDev.Controller()
	}
	if sys == nil {
		return
	}

	// Cross-system isolation (§4.5): a device already bound to a different
	// system is not allowed to feed this one.
	if c := srcDev.Controller(); c != nil && c != sys {
		return
	}

	prev := sys.swapPrev(msg)
	sys.Update(t, msg, prev)
}
