package topology

import (
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/ramses-rf/gateway/internal/ramses"
)

// System is the 1:1 model of a controller device and everything it owns:
// zones, DHW, boiler control, and the passively-discovered fault log (§3).
type System struct {
	Controller *Device

	mu            sync.Mutex
	dhw           *Zone
	boilerControl *Device
	zones         []*Zone
	zoneByIdx     map[string]*Zone
	faultLog      map[int]map[string]any
	lastMsgByCode map[string]*ramses.Message

	syncRemain time.Duration // from the most recent 1F09
	syncKnown  bool          // whether a 1F09 has ever been observed
}

func newSystem(ctl *Device) *System {
	return &System{
		Controller:    ctl,
		zoneByIdx:     make(map[string]*Zone),
		faultLog:      make(map[int]map[string]any),
		lastMsgByCode: make(map[string]*ramses.Message),
	}
}

// Zone returns (creating if absent) the zone at idx, per §3's lazy-creation
// lifecycle. idx == DHWZoneIdx returns the DHW pseudo-zone.
func (s *System) Zone(idx string) *Zone {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.zoneLocked(idx)
}

func (s *System) zoneLocked(idx string) *Zone {
	if z, ok := s.zoneByIdx[idx]; ok {
		return z
	}
	z := newZone(idx)
	s.zoneByIdx[idx] = z
	if idx == DHWZoneIdx {
		s.dhw = z
	} else {
		s.zones = append(s.zones, z)
		sort.Slice(s.zones, func(i, j int) bool { return s.zones[i].Idx < s.zones[j].Idx })
	}
	return z
}

// DHW returns this system's DHW zone, or nil if not yet discovered.
func (s *System) DHW() *Zone {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dhw
}

// Zones returns zones in idx order (§3: "zone_by_idx is consistent with the
// zones sequence").
func (s *System) Zones() []*Zone {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Zone, len(s.zones))
	copy(out, s.zones)
	return out
}

// BoilerControl returns the device discovered to be the heat relay, if any.
func (s *System) BoilerControl() *Device {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.boilerControl
}

// setBoilerControl assigns the heat relay. Once set, sticky: conflicting
// reassignment is rejected and logged (§4.6).
func (s *System) setBoilerControl(dev *Device) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.boilerControl == nil {
		s.boilerControl = dev
		return
	}
	if s.boilerControl != dev {
		slog.Warn("topology: rejected conflicting boiler_control reassignment",
			"system", s.Controller.Addr, "current", s.boilerControl.Addr, "attempted", dev.Addr)
	}
}

// FaultLog returns a snapshot of the passively-recorded fault log entries
// (§4.5: "0418 I/RP -> record in fault_log").
func (s *System) FaultLog() map[int]map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[int]map[string]any, len(s.faultLog))
	for k, v := range s.faultLog {
		out[k] = v
	}
	return out
}

// swapPrev records msg as the most recent message of its code seen by this
// system, returning whatever message previously held that slot — the
// "small sliding window" of §4.5.
func (s *System) swapPrev(msg *ramses.Message) *ramses.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev := s.lastMsgByCode[msg.Code]
	s.lastMsgByCode[msg.Code] = msg
	return prev
}

// Update eavesdrops one inbound message addressed to or from this system's
// controller, maintaining fault log, boiler control, DHW sensor, and
// zone/sensor bindings (§4.5, §4.6). prev is the previous message this
// system saw carrying the same code (the "small sliding window").
func (s *System) Update(t *Topology, msg *ramses.Message, prev *ramses.Message) {
	switch {
	case msg.Code == "0418" && (msg.Verb == ramses.VerbInfo || msg.Verb == ramses.VerbResponse):
		s.recordFaultLogEntry(msg)

	case msg.Code == "1F09":
		if secs, ok := msg.Payload.Get("remaining_seconds").(float64); ok {
			s.mu.Lock()
			s.syncRemain = time.Duration(secs * float64(time.Second))
			s.syncKnown = true
			s.mu.Unlock()
		}

	case msg.Code == "30C9" && msg.Payload.IsArray():
		s.discoverZoneSensors(t, msg, prev)

	case msg.Code == "3220" && msg.Verb == ramses.VerbRequest:
		s.discoverHeatRelayFrom3220(t, msg)

	case msg.Code == "3EF0" && msg.Verb == ramses.VerbRequest:
		s.discoverHeatRelayFrom3EF0(t, msg)

	case msg.Code == "3B00" && msg.Verb == ramses.VerbInfo && prev != nil:
		s.discoverHeatRelayFrom3B00(t, msg, prev)

	case msg.Code == "3EF1" && msg.Verb == ramses.VerbRequest:
		s.noteHeatRelayHint(t, msg)

	case msg.Code == "10A0" && msg.Verb == ramses.VerbResponse:
		s.discoverDHWSensor(t, msg)
	}
}

func (s *System) recordFaultLogEntry(msg *ramses.Message) {
	logIdxAny, ok := msg.Payload.Fields["log_idx"]
	if !ok {
		return
	}
	logIdx := logIdxAny.(int)
	entry := make(map[string]any, len(msg.Payload.Fields)-1)
	for k, v := range msg.Payload.Fields {
		if k != "log_idx" {
			entry[k] = v
		}
	}
	s.mu.Lock()
	s.faultLog[logIdx] = entry
	s.mu.Unlock()
}

// discoverHeatRelayFrom3220 implements §4.6 rule 1: 3220 RQ controller->10:.
func (s *System) discoverHeatRelayFrom3220(t *Topology, msg *ramses.Message) {
	if msg.Src != s.Controller.Addr || msg.Dst.Type != ramses.DeviceTypeOTB {
		return
	}
	dev := s.deviceFor(t, msg.Dst)
	s.setBoilerControl(dev)
}

// discoverHeatRelayFrom3EF0 implements §4.6 rule 2: 3EF0 RQ controller->{10,13}.
func (s *System) discoverHeatRelayFrom3EF0(t *Topology, msg *ramses.Message) {
	if msg.Src != s.Controller.Addr {
		return
	}
	if msg.Dst.Type != ramses.DeviceTypeOTB && msg.Dst.Type != ramses.DeviceTypeTPI {
		return
	}
	dev := s.deviceFor(t, msg.Dst)
	s.setBoilerControl(dev)
}

// discoverHeatRelayFrom3B00 implements §4.6 rule 3: a 13: I/3B00 followed by
// the controller's own I/3B00, correlated as one TPI cycle exchange.
func (s *System) discoverHeatRelayFrom3B00(t *Topology, this, prev *ramses.Message) {
	if prev.Code != this.Code || prev.Verb != this.Verb {
		return
	}
	if this.Src != s.Controller.Addr || prev.Src.Type != ramses.DeviceTypeTPI {
		return
	}
	dev := s.deviceFor(t, prev.Src)
	s.setBoilerControl(dev)
}

// noteHeatRelayHint records §4.5's weaker "3EF1 RQ with dst.type in {10,13}"
// role signal — it associates the device with this system without the
// stickiness/authority of a full boiler_control assignment.
func (s *System) noteHeatRelayHint(t *Topology, msg *ramses.Message) {
	if msg.Dst.Type != ramses.DeviceTypeOTB && msg.Dst.Type != ramses.DeviceTypeTPI {
		return
	}
	s.deviceFor(t, msg.Dst)
}

// discoverDHWSensor implements §4.6's DHW-sensor rule: 10A0 RP controller->07:.
func (s *System) discoverDHWSensor(t *Topology, msg *ramses.Message) {
	if msg.Src != s.Controller.Addr || msg.Dst.Type != ramses.DeviceTypeDHWSensor {
		return
	}
	dev := s.deviceFor(t, msg.Dst)
	dhw := s.Zone(DHWZoneIdx)
	dhw.BindSensor(dev)
}

// deviceFor resolves addr through the topology's shared device registry and
// records this system as its controller.
func (s *System) deviceFor(t *Topology, addr ramses.Address) *Device {
	dev := t.device(addr)
	dev.SetController(s)
	return dev
}
