package ramses

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"strings"
)

type payloadDecoder func(raw []byte) (Payload, error)

// payloadDecoders maps code -> decoder. Codes with no entry decode to an
// empty Fields mapping (§9: only codes the engine/drivers/topology actually
// inspect need rich typing).
var payloadDecoders = map[string]payloadDecoder{
	"30C9": decodeZoneTempArray,
	"1F09": decode1F09,
	"10A0": decode10A0,
	"1260": decode1260,
	"0418": decode0418,
	"0404": decode0404,
	"000C": decode000C,
	"0005": decode0005,
	"000A": decodeZoneConfigArray,
	"2309": decodeZoneSetpointArray,
}

// decodeTemp decodes a big-endian signed fixed-point temperature (1/100 °C),
// the encoding every °C-valued field in the protocol shares. 0x7FFF denotes
// "no value".
func decodeTemp(b []byte) (float64, bool) {
	if len(b) != 2 {
		return 0, false
	}
	v := int16(binary.BigEndian.Uint16(b))
	if uint16(v) == 0x7FFF {
		return 0, false
	}
	return float64(v) / 100.0, true
}

// encodeTemp is the inverse of decodeTemp.
func encodeTemp(c float64) []byte {
	v := int16(c * 100)
	b := make([]byte, 2)
	binary.BigEndian.PutUint16(b, uint16(v))
	return b
}

func hexUpper(b []byte) string {
	return strings.ToUpper(hex.EncodeToString(b))
}

// decodeZoneTempArray decodes 30C9: a sequence of 3-byte {zone_idx, temp}
// entries, the periodic synchronisation broadcast of per-zone temperature.
func decodeZoneTempArray(raw []byte) (Payload, error) {
	if len(raw)%3 != 0 {
		return Payload{}, fmt.Errorf("ramses: 30C9: payload length %d not a multiple of 3", len(raw))
	}
	var entries []map[string]any
	for i := 0; i+3 <= len(raw); i += 3 {
		zoneIdx := hexUpper(raw[i : i+1])
		temp, ok := decodeTemp(raw[i+1 : i+3])
		entry := map[string]any{"zone_idx": zoneIdx}
		if ok {
			entry["temperature"] = temp
		} else {
			entry["temperature"] = nil
		}
		entries = append(entries, entry)
	}
	return Payload{Array: entries}, nil
}

// decodeZoneConfigArray decodes 000A: a sequence of 6-byte zone config
// entries {zone_idx, flags, min_temp, max_temp}.
func decodeZoneConfigArray(raw []byte) (Payload, error) {
	const width = 6
	if len(raw)%width != 0 {
		return Payload{}, fmt.Errorf("ramses: 000A: payload length %d not a multiple of %d", len(raw), width)
	}
	var entries []map[string]any
	for i := 0; i+width <= len(raw); i += width {
		minT, _ := decodeTemp(raw[i+2 : i+4])
		maxT, _ := decodeTemp(raw[i+4 : i+6])
		entries = append(entries, map[string]any{
			"zone_idx": hexUpper(raw[i : i+1]),
			"flags":    raw[i+1],
			"min_temp": minT,
			"max_temp": maxT,
		})
	}
	return Payload{Array: entries}, nil
}

// decodeZoneSetpointArray decodes 2309: a sequence of 3-byte
// {zone_idx, setpoint} entries.
func decodeZoneSetpointArray(raw []byte) (Payload, error) {
	if len(raw)%3 != 0 {
		return Payload{}, fmt.Errorf("ramses: 2309: payload length %d not a multiple of 3", len(raw))
	}
	var entries []map[string]any
	for i := 0; i+3 <= len(raw); i += 3 {
		sp, ok := decodeTemp(raw[i+1 : i+3])
		entry := map[string]any{"zone_idx": hexUpper(raw[i : i+1])}
		if ok {
			entry["setpoint"] = sp
		}
		entries = append(entries, entry)
	}
	return Payload{Array: entries}, nil
}

// decode1F09 decodes the system-sync beacon: direction marker + remaining
// time (in quarter-seconds) until the next cycle.
func decode1F09(raw []byte) (Payload, error) {
	if len(raw) < 3 {
		return Payload{}, fmt.Errorf("ramses: 1F09: payload too short: %d", len(raw))
	}
	quarterSecs := binary.BigEndian.Uint16(raw[1:3])
	return Payload{Fields: map[string]any{
		"direction":        raw[0],
		"remaining_seconds": float64(quarterSecs) / 4.0,
	}}, nil
}

// decode10A0 decodes DHW params: {dhw_idx, setpoint, overrun, differential}.
func decode10A0(raw []byte) (Payload, error) {
	if len(raw) < 6 {
		return Payload{}, fmt.Errorf("ramses: 10A0: payload too short: %d", len(raw))
	}
	setpoint, _ := decodeTemp(raw[1:3])
	diff, _ := decodeTemp(raw[4:6])
	return Payload{Fields: map[string]any{
		"dhw_idx":      hexUpper(raw[0:1]),
		"setpoint":     setpoint,
		"overrun":      raw[3],
		"differential": diff,
	}}, nil
}

// decode1260 decodes a DHW sensor's own temperature broadcast.
func decode1260(raw []byte) (Payload, error) {
	if len(raw) < 3 {
		return Payload{}, fmt.Errorf("ramses: 1260: payload too short: %d", len(raw))
	}
	temp, ok := decodeTemp(raw[1:3])
	f := map[string]any{"dhw_idx": hexUpper(raw[0:1])}
	if ok {
		f["temperature"] = temp
	}
	return Payload{Fields: f}, nil
}

// decode0418 decodes a fault-log entry. The sentinel "no more entries"
// payload (Code0418NullRP) decodes to an empty mapping so driver code can
// treat it as falsy, mirroring the source project's `if not msg.payload`
// completion check.
func decode0418(raw []byte) (Payload, error) {
	if hexUpper(raw) == Code0418NullRP {
		return Payload{Fields: map[string]any{}}, nil
	}
	if len(raw) < 3 {
		return Payload{}, fmt.Errorf("ramses: 0418: payload too short: %d", len(raw))
	}
	return Payload{Fields: map[string]any{
		"log_idx": int(raw[2]),
		"raw":     hexUpper(raw),
	}}, nil
}

// decode0404 decodes one schedule fragment. Byte layout:
//
//	[0]     zone_idx (FA for DHW)
//	[1:5]   marker: 20 00 08 00 (zone) or 23 00 08 00 (DHW)
//	[5]     frag_index (1-based)
//	[6]     frag_total (255 == "no schedule")
//	[7:]    fragment payload, hex
func decode0404(raw []byte) (Payload, error) {
	if len(raw) < 7 {
		return Payload{}, fmt.Errorf("ramses: 0404: payload too short: %d", len(raw))
	}
	return Payload{Fields: map[string]any{
		"zone_idx":    hexUpper(raw[0:1]),
		"frag_index":  int(raw[5]),
		"frag_total":  int(raw[6]),
		"fragment":    hexUpper(raw[7:]),
	}}, nil
}

// decode000C decodes a device-class discovery exchange: {zone_idx, device_class}.
func decode000C(raw []byte) (Payload, error) {
	if len(raw) < 2 {
		return Payload{}, fmt.Errorf("ramses: 000C: payload too short: %d", len(raw))
	}
	return Payload{Fields: map[string]any{
		"zone_idx":      hexUpper(raw[0:1]),
		"device_class":  hexUpper(raw[1:2]),
	}}, nil
}

// decode0005 decodes a zone-type discovery exchange: {zone_idx, zone_type}.
func decode0005(raw []byte) (Payload, error) {
	if len(raw) < 2 {
		return Payload{}, fmt.Errorf("ramses: 0005: payload too short: %d", len(raw))
	}
	return Payload{Fields: map[string]any{
		"zone_idx":  hexUpper(raw[0:1]),
		"zone_type": hexUpper(raw[1:2]),
	}}, nil
}
