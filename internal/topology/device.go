// Package topology maintains the in-memory device/system/zone model fed by
// the transport's inbound message stream (§3, §4.5, §4.6): it has no wire
// knowledge of its own, only what parsed Messages tell it.
package topology

import (
	"sync"
	"time"

	"github.com/ramses-rf/gateway/internal/ramses"
)

// Device is any addressable node seen on the bus: a controller, sensor,
// actuator, or the gateway itself. Devices are created lazily on first
// sighting and live for the process lifetime (§3 Lifecycle).
type Device struct {
	Addr ramses.Address
	Type string

	mu          sync.Mutex
	controller  *System
	zone        *Zone
	lastMsg     map[string]*ramses.Message
	temperature *float64
	tempAt      time.Time
}

func newDevice(addr ramses.Address) *Device {
	return &Device{
		Addr:    addr,
		Type:    addr.Type,
		lastMsg: make(map[string]*ramses.Message),
	}
}

// Controller returns the system this device belongs to, or nil if unknown.
func (d *Device) Controller() *System {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.controller
}

// SetController records which system this device belongs to. Once set it is
// not overwritten with a conflicting value.
func (d *Device) SetController(s *System) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.controller == nil {
		d.controller = s
	}
}

// Zone returns the zone this device is bound to as a sensor/actuator, if any.
func (d *Device) Zone() *Zone {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.zone
}

// bindZone sets this device's zone, unless it is already bound (monotone
// binding, §3's "not silently replaced" invariant).
func (d *Device) bindZone(z *Zone) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.zone != nil {
		return d.zone == z
	}
	d.zone = z
	return true
}

// RecordMessage remembers the most recent message of msg's code seen from
// this device, returning the previous one (the "small sliding window" of
// §4.5).
func (d *Device) RecordMessage(msg *ramses.Message) (prev *ramses.Message) {
	d.mu.Lock()
	defer d.mu.Unlock()
	prev = d.lastMsg[msg.Code]
	d.lastMsg[msg.Code] = msg

	// A controller's 30C9 array lists its zones' temperatures, not a reading
	// of its own, so it never sets the controller's temperature.
	if d.Type == ramses.DeviceTypeController && msg.Payload.IsArray() {
		return prev
	}
	if t, ok := msg.Payload.Temperature(); ok {
		d.temperature = &t
		d.tempAt = msg.DTM
	}
	return prev
}

// Temperature returns this device's last-known self-reported temperature
// (from 1260/30C9), and when it was observed.
func (d *Device) Temperature() (float64, time.Time, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.temperature == nil {
		return 0, time.Time{}, false
	}
	return *d.temperature, d.tempAt, true
}

// HasZoneSensorCapability reports whether this device's type is one that
// can plausibly act as a zone temperature sensor (§3's DEVICE_HAS_ZONE_SENSOR).
func (d *Device) HasZoneSensorCapability() bool {
	return ramses.DeviceHasZoneSensor[d.Type]
}
