package ramses

import (
	"fmt"
	"strings"
	"time"
)

// Zone mode values for ZoneMode/DHWMode (§4.1 constructors).
const (
	ModeFollowSchedule    = "follow_schedule"
	ModeAdvancedOverride  = "advanced_override"
	ModePermanentOverride = "permanent_override"
	ModeCountdownOverride = "countdown_override"
	ModeTemporaryOverride = "temporary_override"
)

var modeByte = map[string]byte{
	ModeFollowSchedule:    0x00,
	ModeAdvancedOverride:  0x01,
	ModePermanentOverride: 0x02,
	ModeCountdownOverride: 0x03,
	ModeTemporaryOverride: 0x04,
}

func zoneIdxHex(idx int) string {
	return fmt.Sprintf("%02X", idx)
}

// ZoneSetpoint builds a 2309 command (zone target temperature): §4.1.
func ZoneSetpoint(ctl Address, zoneIdx int, setpoint float64) (*Command, error) {
	if err := validateZoneIdx(zoneIdx); err != nil {
		return nil, err
	}
	if err := validateRange("setpoint", setpoint, 5, 35); err != nil {
		return nil, err
	}
	payload := zoneIdxHex(zoneIdx) + EncodeTemp(setpoint)
	return NewCommand(VerbWrite, ctl, "2309", payload)
}

// ZoneMode builds a 2349 command. setpoint/until are only meaningful for
// ModeTemporaryOverride and ModeAdvancedOverride; pass 0/zero-time
// otherwise. Matches scenario S5: payload = zone_idx | temp | mode |
// FFFFFF | until.
func ZoneMode(ctl Address, zoneIdx int, mode string, setpoint float64, until time.Time) (*Command, error) {
	if err := validateZoneIdx(zoneIdx); err != nil {
		return nil, err
	}
	mb, ok := modeByte[mode]
	if !ok {
		return nil, &ValidationError{Field: "mode", Value: mode, Msg: "unknown zone mode"}
	}
	if mode == ModeTemporaryOverride && until.IsZero() {
		return nil, &ValidationError{Field: "until", Value: until, Msg: "required for temporary_override"}
	}
	payload := zoneIdxHex(zoneIdx) + EncodeTemp(setpoint) + fmt.Sprintf("%02X", mb) + "FFFFFF"
	if !until.IsZero() {
		payload += DtmToHex(until)
	}
	return NewCommand(VerbWrite, ctl, "2349", payload)
}

// ZoneName builds a 0004 command setting a zone's display name (ASCII,
// NUL-padded to 20 bytes, per the protocol's fixed-width name field).
func ZoneName(ctl Address, zoneIdx int, name string) (*Command, error) {
	if err := validateZoneIdx(zoneIdx); err != nil {
		return nil, err
	}
	if len(name) > 20 {
		return nil, &ValidationError{Field: "name", Value: name, Msg: "longer than 20 characters"}
	}
	padded := name + strings.Repeat("\x00", 20-len(name))
	payload := zoneIdxHex(zoneIdx) + hexUpper([]byte(padded))
	return NewCommand(VerbWrite, ctl, "0004", payload)
}

// ZoneConfig builds a 000A command: zone min/max setpoint limits.
func ZoneConfig(ctl Address, zoneIdx int, minTemp, maxTemp float64) (*Command, error) {
	if err := validateZoneIdx(zoneIdx); err != nil {
		return nil, err
	}
	if err := validateRange("min_temp", minTemp, 5, 30); err != nil {
		return nil, err
	}
	if err := validateRange("max_temp", maxTemp, 5, 35); err != nil {
		return nil, err
	}
	if minTemp > maxTemp {
		return nil, &ValidationError{Field: "min_temp", Value: minTemp, Msg: "must be <= max_temp"}
	}
	payload := zoneIdxHex(zoneIdx) + "00" + EncodeTemp(minTemp) + EncodeTemp(maxTemp)
	return NewCommand(VerbWrite, ctl, "000A", payload)
}

// DHWParams builds a 10A0 command: DHW setpoint, overrun (minutes),
// re-heat differential.
func DHWParams(ctl Address, setpoint float64, overrunMins int, differential float64) (*Command, error) {
	if err := validateRange("setpoint", setpoint, 30, 85); err != nil {
		return nil, err
	}
	if err := validateRange("overrun", float64(overrunMins), 0, 10); err != nil {
		return nil, err
	}
	payload := "00" + EncodeTemp(setpoint) + fmt.Sprintf("%02X", overrunMins) + EncodeTemp(differential)
	return NewCommand(VerbWrite, ctl, "10A0", payload)
}

// DHWMode builds a 1F41 command setting the DHW operating mode.
func DHWMode(ctl Address, mode string, until time.Time) (*Command, error) {
	mb, ok := modeByte[mode]
	if !ok {
		return nil, &ValidationError{Field: "mode", Value: mode, Msg: "unknown DHW mode"}
	}
	payload := "00" + fmt.Sprintf("%02X", mb)
	if !until.IsZero() {
		payload += DtmToHex(until) + "01"
	} else {
		payload += "FFFFFFFFFFFF00"
	}
	return NewCommand(VerbWrite, ctl, "1F41", payload)
}

// MixValveParams builds a 1030 command for a mixing-valve zone actuator.
func MixValveParams(ctl Address, zoneIdx int, maxFlowTemp, pumpRunTime, actuatorRunTime, minFlowTemp float64) (*Command, error) {
	if err := validateZoneIdx(zoneIdx); err != nil {
		return nil, err
	}
	for _, v := range []struct {
		name string
		val  float64
		lo   float64
		hi   float64
	}{
		{"max_flow_temp", maxFlowTemp, 0, 99},
		{"pump_run_time", pumpRunTime, 0, 99},
		{"actuator_run_time", actuatorRunTime, 0, 240},
		{"min_flow_temp", minFlowTemp, 0, 50},
	} {
		if err := validateRange(v.name, v.val, v.lo, v.hi); err != nil {
			return nil, err
		}
	}
	payload := zoneIdxHex(zoneIdx) +
		fmt.Sprintf("%02X", int(maxFlowTemp)) +
		fmt.Sprintf("%02X", int(pumpRunTime)) +
		fmt.Sprintf("%02X", int(actuatorRunTime)) +
		fmt.Sprintf("%02X", int(minFlowTemp))
	return NewCommand(VerbWrite, ctl, "1030", payload)
}

// SystemMode builds a 2E04 command. If until is zero, the mode is set
// indefinitely; otherwise it reverts to auto at that time.
func SystemMode(ctl Address, mode int, until time.Time) (*Command, error) {
	if err := validateOneOf("mode", mode, 0, 1, 2, 3, 4, 5, 6, 7); err != nil {
		return nil, err
	}
	payload := fmt.Sprintf("%02X", mode)
	if until.IsZero() {
		payload += "FFFFFFFFFFFF00"
	} else {
		payload += DtmToHex(until) + "01"
	}
	return NewCommand(VerbWrite, ctl, "2E04", payload)
}

// SystemTime builds a 313F command synchronising the controller's clock.
func SystemTime(ctl Address, t time.Time) (*Command, error) {
	payload := DtmToHex(t)
	return NewCommand(VerbWrite, ctl, "313F", payload)
}

// TPIParams builds a 1100 command: boiler cycle-rate/min-on/min-off/
// proportional-band parameters. cycle_rate is cycles/hour and must be one
// of {3, 6, 9, 12}.
func TPIParams(ctl Address, cycleRate, minOnMins, minOffMins, proportionalBand int) (*Command, error) {
	if err := validateOneOf("cycle_rate", cycleRate, 3, 6, 9, 12); err != nil {
		return nil, err
	}
	if err := validateRange("min_on", float64(minOnMins), 1, 5); err != nil {
		return nil, err
	}
	if err := validateRange("min_off", float64(minOffMins), 1, 5); err != nil {
		return nil, err
	}
	payload := "FC" +
		fmt.Sprintf("%02X", cycleRate) +
		fmt.Sprintf("%02X", minOnMins) +
		fmt.Sprintf("%02X", minOffMins) +
		fmt.Sprintf("%02X", proportionalBand)
	return NewCommand(VerbWrite, ctl, "1100", payload)
}

// RQDeviceClass builds a 000C device-class discovery request, used by the
// discovery state machine to hunt for the HTG relay / DHW sensor / zone
// actuators (§4.6).
func RQDeviceClass(ctl Address, deviceClassHex string) (*Command, error) {
	return NewCommand(VerbRequest, ctl, "000C", deviceClassHex)
}

// RQZoneType builds a 0005 zone-type discovery request.
func RQZoneType(ctl Address, zoneTypeHex string) (*Command, error) {
	return NewCommand(VerbRequest, ctl, "0005", "00"+zoneTypeHex)
}

// RQFaultLogEntry builds a 0418 request for one fault-log entry, per §4.3's
// sequential pull. fn is invoked exactly once with the matching reply (or
// nil on expiry).
func RQFaultLogEntry(ctl Address, logIdx int, fn func(*Message)) (*Command, error) {
	payload := fmt.Sprintf("%06X", logIdx)
	return NewCommand(VerbRequest, ctl, "0418", payload,
		WithCallback(Callback{Fn: fn, Timeout: time.Second}))
}

// scheduleMarker returns the 0404 zone-vs-DHW marker bytes for zoneIdx.
func scheduleMarker(zoneIdx string) string {
	if strings.EqualFold(zoneIdx, "FA") {
		return "23000800"
	}
	return "20000800"
}

// RQScheduleFragment builds a 0404 request for the fragIdx'th (1-based)
// schedule fragment out of fragCnt known so far (§4.4 step 3). fragCnt is 0
// on the very first request, when the total fragment count is still
// unknown.
func RQScheduleFragment(ctl Address, zoneIdx string, fragIdx, fragCnt int, fn func(*Message)) (*Command, error) {
	payload := strings.ToUpper(zoneIdx) + scheduleMarker(zoneIdx) + fmt.Sprintf("%02X%02X", fragIdx, fragCnt)
	return NewCommand(VerbRequest, ctl, "0404", payload,
		WithCallback(Callback{Fn: fn, Timeout: time.Second}))
}

// WScheduleFragment builds a 0404 write of one outbound schedule fragment,
// per §4.4's Put algorithm. fragHex is this fragment's payload, already
// hex-encoded (at most 82 hex chars, per scheduleFragLenHexChars). The wire
// layout mirrors the RP layout decode0404 parses (zone_idx, marker,
// frag_index, frag_total, fragment), so the same decoder can parse the
// echoed reply.
func WScheduleFragment(ctl Address, zoneIdx string, fragIdx, fragCnt int, fragHex string, fn func(*Message)) (*Command, error) {
	payload := strings.ToUpper(zoneIdx) + scheduleMarker(zoneIdx) +
		fmt.Sprintf("%02X%02X", fragIdx, fragCnt) + strings.ToUpper(fragHex)
	return NewCommand(VerbWrite, ctl, "0404", payload,
		WithCallback(Callback{Fn: fn, Timeout: 3 * time.Second}))
}
