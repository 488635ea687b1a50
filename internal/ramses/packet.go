package ramses

import (
	"encoding/hex"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"
)

// Packet is a raw framed line of the RAMSES-II wire protocol:
//
//	045 RP --- 01:145038 07:030741 --:------ 10A0 006 0018380003E8
//
// rssi(3) verb(2) "---" src(9) dst(9) ctx(9) code(4) len(3) payload(hex)
type Packet struct {
	RSSI    string // empty for locally-originated commands
	Verb    string
	Src     Address
	Dst     Address
	Ctx     Address
	Code    string
	Payload []byte // decoded from hex
	DTM     time.Time
}

// PayloadHex returns the payload re-encoded as uppercase hex.
func (p Packet) PayloadHex() string {
	return strings.ToUpper(hex.EncodeToString(p.Payload))
}

// ParsePacket decodes one line of wire traffic. dtm is the arrival
// timestamp to stamp onto the packet (monotonic per the spec's §3
// requirement that packets carry one).
func ParsePacket(line string, dtm time.Time) (Packet, error) {
	line = strings.TrimRight(line, "\r\n")

	// Commands we transmit ourselves have no RSSI prefix; inbound traffic
	// from the gateway always does. Normalise by left-padding so the fixed
	// column offsets below line up either way.
	hasRSSI := len(line) > 3 && line[3] == ' ' && isDigits(line[0:3])
	if !hasRSSI {
		line = "000 " + line
	}

	if len(line) < 50 {
		return Packet{}, fmt.Errorf("ramses: packet too short: %q", line)
	}

	verb := line[4:6]
	switch verb {
	case VerbInfo, VerbRequest, VerbResponse, VerbWrite:
	default:
		return Packet{}, fmt.Errorf("ramses: invalid verb %q", verb)
	}

	src, err := ParseAddress(line[11:20])
	if err != nil {
		return Packet{}, fmt.Errorf("ramses: src: %w", err)
	}
	dst, err := ParseAddress(line[21:30])
	if err != nil {
		return Packet{}, fmt.Errorf("ramses: dst: %w", err)
	}
	ctx, err := ParseAddress(line[31:40])
	if err != nil {
		return Packet{}, fmt.Errorf("ramses: ctx: %w", err)
	}

	code := line[41:45]
	wantLen, err := strconv.Atoi(strings.TrimSpace(line[46:49]))
	if err != nil {
		return Packet{}, fmt.Errorf("ramses: bad length field: %w", err)
	}

	payloadHex := line[50:]
	payload, err := hex.DecodeString(payloadHex)
	if err != nil {
		return Packet{}, fmt.Errorf("ramses: bad payload hex: %w", err)
	}
	if len(payload) != wantLen {
		return Packet{}, fmt.Errorf("ramses: payload length mismatch: header says %d, got %d", wantLen, len(payload))
	}

	return Packet{
		RSSI:    strings.TrimSpace(line[0:3]),
		Verb:    verb,
		Src:     src,
		Dst:     dst,
		Ctx:     ctx,
		Code:    code,
		Payload: payload,
		DTM:     dtm,
	}, nil
}

// String renders the packet in wire form, omitting the RSSI prefix (used
// both for re-logging inbound traffic and for outbound command framing).
func (p Packet) String() string {
	return fmt.Sprintf("%s --- %s %s %s %s %03d %s",
		p.Verb, p.Src, p.Dst, p.Ctx, p.Code, len(p.Payload), p.PayloadHex())
}

// LogValue implements slog.LogValuer.
func (p Packet) LogValue() slog.Value {
	return slog.StringValue(p.String())
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
