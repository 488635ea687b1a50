package ramses

import (
	"encoding/hex"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/rs/xid"
)

// payloadHexRE is the wire grammar a command's payload must satisfy before
// it may be enqueued: an even number of uppercase hex digits.
var payloadHexRE = regexp.MustCompile(`^([0-9A-F]{2})*$`)

const maxPayloadHexLen = 96

// QoS carries the per-command quality-of-service parameters: §4.1.
type QoS struct {
	Priority int
	Retries  int
	Timeout  time.Duration
}

// Callback describes what to do when a Command's reply (or its expiry)
// arrives: §4.2, §9.
type Callback struct {
	Fn      func(*Message)
	Timeout time.Duration
	Daemon  bool
}

// Command is an outbound request: §3.
type Command struct {
	Verb       string
	FromAddr   Address
	DestAddr   Address
	Code       string
	PayloadHex string

	QoS      QoS
	Callback *Callback

	tiebreak xid.ID // monotonic, sortable creation-order tiebreaker
}

// NewCommand builds and validates a Command, applying the default QoS for
// its code/verb combination (§4.1) unless overridden by opts.
func NewCommand(verb string, dest Address, code, payloadHex string, opts ...func(*Command)) (*Command, error) {
	c := &Command{
		Verb:       verb,
		FromAddr:   HGI,
		DestAddr:   dest,
		Code:       code,
		PayloadHex: strings.ToUpper(payloadHex),
		QoS:        defaultQoS(verb, code),
		tiebreak:   xid.New(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// WithFromAddr overrides the default HGI origin address.
func WithFromAddr(a Address) func(*Command) { return func(c *Command) { c.FromAddr = a } }

// WithQoS overrides the default QoS.
func WithQoS(q QoS) func(*Command) { return func(c *Command) { c.QoS = q } }

// WithCallback registers a reply callback.
func WithCallback(cb Callback) func(*Command) { return func(c *Command) { c.Callback = &cb } }

// defaultQoS implements §4.1's per-code QoS table.
func defaultQoS(verb, code string) QoS {
	q := QoS{Priority: PriorityDefault, Retries: 3, Timeout: 500 * time.Millisecond}

	switch {
	case (code == "0016" || code == "1F09") && verb == VerbRequest:
		q.Priority, q.Retries = PriorityHigh, 5
	case code == "0404" && (verb == VerbRequest || verb == VerbWrite):
		q.Priority, q.Timeout = PriorityHigh, 300*time.Millisecond
	case code == "0418" && verb == VerbRequest:
		q.Priority, q.Retries = PriorityLow, 3
	}
	return q
}

// Validate checks the invariants of §3: a known verb, a 4-character code,
// payload hex length and wire grammar. The priority value is not checked.
func (c *Command) Validate() error {
	switch c.Verb {
	case VerbInfo, VerbRequest, VerbResponse, VerbWrite:
	default:
		return &ValidationError{Field: "verb", Value: c.Verb, Msg: "unrecognised verb"}
	}
	if len(c.Code) != 4 {
		return &ValidationError{Field: "code", Value: c.Code, Msg: "must be 4 hex digits"}
	}
	if len(c.PayloadHex) > maxPayloadHexLen {
		return &ValidationError{Field: "payload", Value: len(c.PayloadHex), Msg: fmt.Sprintf("exceeds %d hex chars", maxPayloadHexLen)}
	}
	if !payloadHexRE.MatchString(c.PayloadHex) {
		return &ValidationError{Field: "payload", Value: c.PayloadHex, Msg: "not valid hex"}
	}
	return nil
}

// Packet renders this Command as the Packet that would be transmitted.
func (c *Command) Packet() Packet {
	raw, _ := hex.DecodeString(c.PayloadHex)
	return Packet{
		Verb:    c.Verb,
		Src:     c.FromAddr,
		Dst:     c.DestAddr,
		Ctx:     NoAddress,
		Code:    c.Code,
		Payload: raw,
	}
}

// String renders the command in wire form (no RSSI prefix), per §6.
func (c *Command) String() string {
	return c.Packet().String()
}

// LogValue implements slog.LogValuer.
func (c *Command) LogValue() slog.Value {
	return slog.StringValue(c.String())
}

// Less implements the total order of §4.1: lower priority value wins;
// ties broken by creation order (FIFO within a priority band). This is the
// ordering container/heap needs.
func (c *Command) Less(other *Command) bool {
	if c.QoS.Priority != other.QoS.Priority {
		return c.QoS.Priority < other.QoS.Priority
	}
	return c.tiebreak.Compare(other.tiebreak) < 0
}

// TxHeader returns this command's correlation header, derivable purely from
// (verb, dest, code, payload) per §3 / §8 law 1.
func (c *Command) TxHeader() string {
	return pktHeader(c.Verb, peerAddr(c.FromAddr, c.DestAddr), c.Code, c.PayloadHex)
}

// RxHeader returns the header a matching reply would carry, or "" if this
// code has no reply at all (§3: 0001, 7FFF are fire-and-forget).
func (c *Command) RxHeader() string {
	if CodesWithoutRXHeader[c.Code] {
		return ""
	}
	verb := rxVerb(c.Verb)
	return pktHeader(verb, peerAddr(c.FromAddr, c.DestAddr), c.Code, c.PayloadHex)
}

// MessageHeader returns the correlation header of an inbound/decoded
// message, using the same rules as Command headers (§3, §8 law 1).
func MessageHeader(m Message) string {
	if CodesWithoutRXHeader[m.Code] {
		return ""
	}
	return pktHeader(m.Verb, peerAddr(m.Src, m.Dst), m.Code, m.RawHex)
}

func rxVerb(verb string) string {
	switch verb {
	case VerbRequest:
		return VerbResponse
	case VerbWrite:
		return VerbInfo
	default:
		return verb
	}
}

// peerAddr returns whichever of src/dst is not the gateway itself — "the
// gateway's counterparty" of §3's RX header definition.
func peerAddr(src, dst Address) Address {
	if src.Type == DeviceTypeHGI {
		return dst
	}
	return src
}

// pktHeader implements the §3 TX/RX header derivation rules.
func pktHeader(verb string, peer Address, code, payloadHex string) string {
	header := strings.Join([]string{verb, peer.String(), code}, "|")

	switch {
	case code == "0005" || code == "000C":
		if len(payloadHex) >= 4 {
			return header + "|" + payloadHex[:4]
		}
		return header
	case code == "0404":
		if len(payloadHex) >= 12 {
			return header + "|" + payloadHex[0:2] + payloadHex[10:12]
		}
		return header
	case code == "0418":
		if payloadHex == Code0418NullRP {
			return header
		}
		if len(payloadHex) >= 6 {
			return header + "|" + payloadHex[4:6]
		}
		return header
	case CodesSansDomainID[code]:
		return header
	default:
		if len(payloadHex) >= 2 {
			return header + "|" + payloadHex[0:2]
		}
		return header
	}
}

