package ramses

// MaxZones is the largest number of heating zones a controller supports.
const MaxZones = 12

// Verb values, per the wire grammar in §6 of the spec.
const (
	VerbInfo     = " I"
	VerbRequest  = "RQ"
	VerbResponse = "RP"
	VerbWrite    = " W"
)

// Priority constants: lower numeric value sorts as higher priority.
const (
	PriorityHighest = 0
	PriorityHigh    = 2
	PriorityDefault = 4
	PriorityLow     = 6
	PriorityLowest  = 8
)

// CodesSansDomainID lists codes whose payload carries no leading
// domain/zone id byte, so their correlation header has no context suffix.
var CodesSansDomainID = map[string]bool{
	"0001": true,
	"0002": true,
	"0008": true,
	"0009": true,
	"0016": true,
	"1F09": true,
	"1FC9": true,
	"313F": true,
	"2E04": true,
	"7FFF": true,
}

// CodesWithoutRXHeader lists codes that are fire-and-forget: no reply is
// ever correlated to them, so they have no RX header at all.
var CodesWithoutRXHeader = map[string]bool{
	"0001": true,
	"7FFF": true,
}

// Code0418NullRP is the fixed payload (hex, uppercase) a controller sends as
// the RP to an RQ/0418 when there is no fault log entry at the requested
// index — the "end of log" sentinel. Preserved verbatim from the schema
// table of the source project: a 0418 payload is 24 bytes (48 hex chars);
// the null entry is all-zero except for a 0xFF marker in the log_idx field
// (byte 2) indicating "no such index".
const Code0418NullRP = "0000FF000000000000000000000000000000000000000000"
