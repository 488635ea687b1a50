// Package ramses implements the wire-level grammar of the RAMSES-II radio
// protocol: addresses, framed packets, typed message payloads, and the
// outbound Command type with its QoS/header derivation rules.
package ramses

import (
	"fmt"
	"log/slog"
	"regexp"
)

// Device type codes with a defined role in the system model.
const (
	DeviceTypeController  = "01" // CTL: the heating system master
	DeviceTypeDHWSensor   = "07"
	DeviceTypeUFHCtl      = "02"
	DeviceTypeOTB         = "10" // OpenTherm bridge
	DeviceTypeTPI         = "13" // TPI relay / heat relay
	DeviceTypeHGI         = "18" // the USB gateway
)

// DeviceHasZoneSensor lists device types that can act as a zone's temperature
// sensor, per §4.6's zone/sensor matching step.
var DeviceHasZoneSensor = map[string]bool{
	"01": true, // a controller can be its own zone's sensor
	"03": true,
	"04": true, // TRV
	"12": true,
	"22": true, // generic sensor
	"34": true,
}

var addrRE = regexp.MustCompile(`^[0-9]{2}:[0-9]{6}$`)

// NoAddress is the sentinel "--:------" address meaning "not present".
var NoAddress = Address{}

// HGI is the default address of this host's own gateway device. It is
// overridden at runtime once the real HGI serial is discovered/configured.
var HGI = Address{Type: DeviceTypeHGI, ID: "730256"}

// Address identifies a device by its 2-digit type and 6-digit serial.
// The zero value is the "no address" sentinel.
type Address struct {
	Type string
	ID   string
}

// ParseAddress parses a 9-character address field ("01:145038" or
// "--:------").
func ParseAddress(s string) (Address, error) {
	if s == "--:------" {
		return NoAddress, nil
	}
	if !addrRE.MatchString(s) {
		return Address{}, fmt.Errorf("ramses: invalid address %q", s)
	}
	return Address{Type: s[0:2], ID: s[3:9]}, nil
}

// IsNone reports whether a is the "no address" sentinel.
func (a Address) IsNone() bool {
	return a == NoAddress
}

// String renders the address in wire form.
func (a Address) String() string {
	if a.IsNone() {
		return "--:------"
	}
	return fmt.Sprintf("%s:%s", a.Type, a.ID)
}

// LogValue implements slog.LogValuer.
func (a Address) LogValue() slog.Value {
	return slog.StringValue(a.String())
}
