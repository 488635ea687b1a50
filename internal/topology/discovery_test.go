package topology

import (
	"testing"
	"time"

	"github.com/ramses-rf/gateway/internal/ramses"
)

func mustAddr(t *testing.T, s string) ramses.Address {
	t.Helper()
	a, err := ramses.ParseAddress(s)
	if err != nil {
		t.Fatalf("ParseAddress(%q): %v", s, err)
	}
	return a
}

// S4: a 13: I/3B00 immediately followed by the controller's own I/3B00
// binds the TPI device as boiler_control.
func TestDiscoverHeatRelayFrom3B00(t *testing.T) {
	topo := New()
	ctl := mustAddr(t, "01:145038")
	tpi := mustAddr(t, "13:237335")

	t0 := time.Now()
	first := &ramses.Message{Src: tpi, Dst: ctl, Verb: ramses.VerbInfo, Code: "3B00", DTM: t0}
	second := &ramses.Message{Src: ctl, Dst: ramses.NoAddress, Verb: ramses.VerbInfo, Code: "3B00", DTM: t0.Add(time.Millisecond)}

	topo.OnMessage(first)
	topo.OnMessage(second)

	sys := topo.System(ctl)
	bc := sys.BoilerControl()
	if bc == nil || bc.Addr != tpi {
		t.Fatalf("BoilerControl() = %v, want %v", bc, tpi)
	}
}

// A lone controller I/3B00 with no preceding TPI message never assigns a
// boiler_control (prev is nil on the system's first 3B00 sighting).
func TestDiscoverHeatRelayFrom3B00_NoPrecedingTPI(t *testing.T) {
	topo := New()
	ctl := mustAddr(t, "01:145038")

	topo.OnMessage(&ramses.Message{Src: ctl, Dst: ramses.NoAddress, Verb: ramses.VerbInfo, Code: "3B00", DTM: time.Now()})

	sys := topo.System(ctl)
	if bc := sys.BoilerControl(); bc != nil {
		t.Fatalf("BoilerControl() = %v, want nil", bc)
	}
}

// §4.6 rule 1: an RQ/3220 from the controller to an OTB assigns boiler_control.
func TestDiscoverHeatRelayFrom3220(t *testing.T) {
	topo := New()
	ctl := mustAddr(t, "01:145038")
	otb := mustAddr(t, "10:052052")

	topo.OnMessage(&ramses.Message{Src: ctl, Dst: otb, Verb: ramses.VerbRequest, Code: "3220", DTM: time.Now()})

	sys := topo.System(ctl)
	if bc := sys.BoilerControl(); bc == nil || bc.Addr != otb {
		t.Fatalf("BoilerControl() = %v, want %v", bc, otb)
	}
}

// Once set, boiler_control is sticky: a conflicting rediscovery is rejected.
func TestBoilerControl_StickyOnConflict(t *testing.T) {
	topo := New()
	ctl := mustAddr(t, "01:145038")
	tpi := mustAddr(t, "13:237335")
	otherTPI := mustAddr(t, "13:900001")

	t0 := time.Now()
	topo.OnMessage(&ramses.Message{Src: tpi, Dst: ctl, Verb: ramses.VerbInfo, Code: "3B00", DTM: t0})
	topo.OnMessage(&ramses.Message{Src: ctl, Dst: ramses.NoAddress, Verb: ramses.VerbInfo, Code: "3B00", DTM: t0.Add(time.Millisecond)})

	sys := topo.System(ctl)
	first := sys.BoilerControl()
	if first == nil || first.Addr != tpi {
		t.Fatalf("BoilerControl() = %v, want %v", first, tpi)
	}

	// Attempt to assign a different TPI via the 3EF0 rule; it must be rejected.
	topo.OnMessage(&ramses.Message{Src: ctl, Dst: otherTPI, Verb: ramses.VerbRequest, Code: "3EF0", DTM: t0.Add(2 * time.Millisecond)})

	if still := sys.BoilerControl(); still != first {
		t.Fatalf("BoilerControl() changed to %v, want unchanged %v", still, first)
	}
}

// §4.6 DHW-sensor rule: 10A0 RP controller->07: binds the DHW zone's sensor.
func TestDiscoverDHWSensor(t *testing.T) {
	topo := New()
	ctl := mustAddr(t, "01:145038")
	dhwSensor := mustAddr(t, "07:030741")

	topo.OnMessage(&ramses.Message{Src: ctl, Dst: dhwSensor, Verb: ramses.VerbResponse, Code: "10A0", DTM: time.Now()})

	sys := topo.System(ctl)
	dhw := sys.DHW()
	if dhw == nil {
		t.Fatal("DHW() = nil, want a zone")
	}
	if sensor := dhw.Sensor(); sensor == nil || sensor.Addr != dhwSensor {
		t.Fatalf("DHW sensor = %v, want %v", sensor, dhwSensor)
	}
}

// Zone/sensor matching (§4.6): a 30C9 array reporting a unique temperature
// change for a sensorless zone, matched against exactly one candidate
// device reporting the same temperature, binds that device as the zone's
// sensor.
func TestDiscoverZoneSensors_UniqueTemperatureMatch(t *testing.T) {
	topo := New()
	ctl := mustAddr(t, "01:145038")
	trv := mustAddr(t, "04:111111")

	t0 := time.Now()

	// A 1F09 must be observed at least once before zone/sensor matching
	// runs at all (discoverZoneSensors requires a known sync cycle to
	// judge staleness against).
	topo.OnMessage(&ramses.Message{
		Src: ctl, Dst: ramses.NoAddress, Verb: ramses.VerbInfo, Code: "1F09", DTM: t0,
		Payload: ramses.Payload{Fields: map[string]any{"remaining_seconds": 600.0}},
	})

	first30C9 := &ramses.Message{
		Src: ctl, Dst: ramses.NoAddress, Verb: ramses.VerbInfo, Code: "30C9", DTM: t0,
		Payload: ramses.Payload{Array: []map[string]any{
			{"zone_idx": "00", "temperature": 21.0},
		}},
	}
	topo.OnMessage(first30C9)

	// The candidate's self-reported temperature must be observed after the
	// controller's first array (devicesWithZoneSensorCapability filters on
	// "newer than the previous round's timestamp").
	topo.OnMessage(&ramses.Message{
		Src: trv, Dst: ramses.NoAddress, Verb: ramses.VerbInfo, Code: "30C9", DTM: t0.Add(500 * time.Millisecond),
		Payload: ramses.Payload{Array: []map[string]any{
			{"zone_idx": "00", "temperature": 19.5},
		}},
	})

	second30C9 := &ramses.Message{
		Src: ctl, Dst: ramses.NoAddress, Verb: ramses.VerbInfo, Code: "30C9", DTM: t0.Add(time.Second),
		Payload: ramses.Payload{Array: []map[string]any{
			{"zone_idx": "00", "temperature": 19.5},
		}},
	}
	topo.OnMessage(second30C9)

	sys := topo.System(ctl)
	zone := sys.Zone("00")
	if sensor := zone.Sensor(); sensor == nil || sensor.Addr != trv {
		t.Fatalf("zone 00 sensor = %v, want %v", sensor, trv)
	}
}

// Zone/sensor matching must not run at all until a 1F09 has been observed
// for this system — there is no sync cycle yet to judge staleness against,
// so a candidate must not be matched even though its temperature lines up.
func TestDiscoverZoneSensors_SkippedBeforeAny1F09(t *testing.T) {
	topo := New()
	ctl := mustAddr(t, "01:145038")
	trv := mustAddr(t, "04:111111")

	t0 := time.Now()

	topo.OnMessage(&ramses.Message{
		Src: ctl, Dst: ramses.NoAddress, Verb: ramses.VerbInfo, Code: "30C9", DTM: t0,
		Payload: ramses.Payload{Array: []map[string]any{
			{"zone_idx": "00", "temperature": 21.0},
		}},
	})
	topo.OnMessage(&ramses.Message{
		Src: trv, Dst: ramses.NoAddress, Verb: ramses.VerbInfo, Code: "30C9", DTM: t0.Add(500 * time.Millisecond),
		Payload: ramses.Payload{Array: []map[string]any{
			{"zone_idx": "00", "temperature": 19.5},
		}},
	})
	topo.OnMessage(&ramses.Message{
		Src: ctl, Dst: ramses.NoAddress, Verb: ramses.VerbInfo, Code: "30C9", DTM: t0.Add(time.Second),
		Payload: ramses.Payload{Array: []map[string]any{
			{"zone_idx": "00", "temperature": 19.5},
		}},
	})

	sys := topo.System(ctl)
	zone := sys.Zone("00")
	if sensor := zone.Sensor(); sensor != nil {
		t.Fatalf("zone 00 sensor = %v, want nil (no 1F09 observed yet)", sensor)
	}
}

// A TRV's self-reported 30C9 always decodes via the real codec to a
// single-entry Array, never a Fields mapping (decodeZoneTempArray has no
// special case for one entry). RecordMessage must still pick up its
// temperature from wire traffic decoded the ordinary way, not just from a
// hand-built Fields payload.
func TestRecordMessage_SingleEntry30C9FromRealCodec(t *testing.T) {
	trv := mustAddr(t, "04:111111")

	pkt := ramses.Packet{
		Verb:    ramses.VerbInfo,
		Src:     trv,
		Dst:     ramses.NoAddress,
		Ctx:     trv,
		Code:    "30C9",
		Payload: []byte{0x00, 0x07, 0x9E}, // zone_idx 00, 19.5C
	}
	line := "045 " + pkt.String()

	parsed, err := ramses.ParsePacket(line, time.Now())
	if err != nil {
		t.Fatalf("ParsePacket(%q): %v", line, err)
	}
	msg, err := ramses.DecodeMessage(parsed)
	if err != nil {
		t.Fatalf("DecodeMessage: %v", err)
	}
	if !msg.Payload.IsArray() {
		t.Fatalf("decoded 30C9 payload is not an Array: %+v", msg.Payload)
	}

	dev := newDevice(trv)
	dev.RecordMessage(&msg)

	temp, _, ok := dev.Temperature()
	if !ok {
		t.Fatal("Temperature() ok = false, want true")
	}
	if temp != 19.5 {
		t.Errorf("Temperature() = %v, want 19.5", temp)
	}
}
