package ramses

import (
	"log/slog"
	"time"
)

// Payload is a tagged variant: a message payload is either a single mapping
// (per-code schema) or an ordered sequence of per-zone/per-entry mappings
// (e.g. 30C9, 000A, 2309 arrays), per §9's "dynamic payload typing" note.
type Payload struct {
	Fields map[string]any
	Array  []map[string]any
}

// IsArray reports whether this payload decoded to an ordered sequence.
func (p Payload) IsArray() bool {
	return p.Array != nil
}

// Get fetches a field from a non-array payload, or nil if absent/array.
func (p Payload) Get(key string) any {
	if p.Fields == nil {
		return nil
	}
	return p.Fields[key]
}

// Temperature extracts a self-reported temperature regardless of which
// shape this payload decoded to. 1260 (DHW) decodes to Fields; 30C9 always
// decodes to an Array (§9), even for a single-entry self-report, so a
// one-entry array is read the same way a Fields mapping would be.
func (p Payload) Temperature() (float64, bool) {
	if p.Array != nil {
		if len(p.Array) != 1 {
			return 0, false
		}
		t, ok := p.Array[0]["temperature"].(float64)
		return t, ok
	}
	t, ok := p.Get("temperature").(float64)
	return t, ok
}

// Message is a decoded Packet: typed payload plus the envelope fields
// downstream consumers (topology, drivers, transport) need.
type Message struct {
	Src     Address
	Dst     Address
	Verb    string
	Code    string
	Payload Payload
	DTM     time.Time

	RawHex string // the undecoded payload, hex, uppercase (used for header derivation)
}

// LogValue implements slog.LogValuer.
func (m Message) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("verb", m.Verb),
		slog.Any("src", m.Src),
		slog.Any("dst", m.Dst),
		slog.String("code", m.Code),
	)
}

// DecodeMessage decodes a parsed Packet's payload per its code's schema.
// Codes with no specific decoder fall back to an empty mapping; this is
// intentional — the QoS engine and drivers only need the codes they
// themselves inspect to be richly typed, everything else just needs to be
// routable by (verb, src, dst, code).
func DecodeMessage(p Packet) (Message, error) {
	msg := Message{
		Src:    p.Src,
		Dst:    p.Dst,
		Verb:   p.Verb,
		Code:   p.Code,
		DTM:    p.DTM,
		RawHex: p.PayloadHex(),
	}

	decoder, ok := payloadDecoders[p.Code]
	if !ok {
		msg.Payload = Payload{Fields: map[string]any{}}
		return msg, nil
	}

	payload, err := decoder(p.Payload)
	if err != nil {
		return Message{}, err
	}
	msg.Payload = payload
	return msg, nil
}
