package ramses

import (
	"encoding/binary"
	"fmt"
	"time"
)

// EncodeTemp renders a Celsius value as the protocol's big-endian
// fixed-point hex (1/100 °C), exported for Command constructors.
func EncodeTemp(c float64) string {
	return hexUpper(encodeTemp(c))
}

// DtmToHex renders a timestamp the way system-time/until fields expect it:
// minute, hour, day, month, then a little-endian 2-byte year.
func DtmToHex(t time.Time) string {
	b := make([]byte, 6)
	b[0] = byte(t.Minute())
	b[1] = byte(t.Hour())
	b[2] = byte(t.Day())
	b[3] = byte(t.Month())
	binary.LittleEndian.PutUint16(b[4:6], uint16(t.Year()))
	return hexUpper(b)
}

// ValidationError is returned by Command constructors when an argument is
// out of the protocol's allowed range. It is a caller bug, per §7.
type ValidationError struct {
	Field string
	Value any
	Msg   string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("ramses: invalid %s (%v): %s", e.Field, e.Value, e.Msg)
}

func validateRange(field string, v, lo, hi float64) error {
	if v < lo || v > hi {
		return &ValidationError{Field: field, Value: v, Msg: fmt.Sprintf("must be in [%g, %g]", lo, hi)}
	}
	return nil
}

func validateOneOf(field string, v int, allowed ...int) error {
	for _, a := range allowed {
		if v == a {
			return nil
		}
	}
	return &ValidationError{Field: field, Value: v, Msg: fmt.Sprintf("must be one of %v", allowed)}
}

func validateZoneIdx(idx int) error {
	if idx < 0 || idx >= MaxZones {
		return &ValidationError{Field: "zone_idx", Value: idx, Msg: fmt.Sprintf("must be in [0, %d)", MaxZones)}
	}
	return nil
}
