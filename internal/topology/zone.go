package topology

import "sync"

// DHWZoneIdx is the reserved domain id for the DHW "zone" (§3).
const DHWZoneIdx = "FA"

// Zone is one heating zone (or, with idx == DHWZoneIdx, the DHW circuit).
type Zone struct {
	Idx string

	mu        sync.Mutex
	zoneType  string
	sensor    *Device
	actuators []*Device
	schedule  any // *ramses.Schedule once fetched; typed any to avoid an import cycle with driver
}

func newZone(idx string) *Zone {
	return &Zone{Idx: idx}
}

// Sensor returns this zone's bound temperature sensor, if any.
func (z *Zone) Sensor() *Device {
	z.mu.Lock()
	defer z.mu.Unlock()
	return z.sensor
}

// BindSensor binds dev as this zone's sensor, unless one is already bound
// (§3: "not silently replaced"). Returns whether dev ended up as the bound
// sensor (true even if it already was).
func (z *Zone) BindSensor(dev *Device) bool {
	z.mu.Lock()
	alreadyBound := z.sensor != nil
	if !alreadyBound {
		z.sensor = dev
	}
	bound := z.sensor
	z.mu.Unlock()

	if bound != dev {
		return false
	}
	return dev.bindZone(z)
}

// ZoneType returns the zone's discovered type code (e.g. from 0005), if any.
func (z *Zone) ZoneType() string {
	z.mu.Lock()
	defer z.mu.Unlock()
	return z.zoneType
}

// SetZoneType records the zone's type, first-write-wins.
func (z *Zone) SetZoneType(t string) {
	z.mu.Lock()
	defer z.mu.Unlock()
	if z.zoneType == "" {
		z.zoneType = t
	}
}

// AddActuator records dev as one of this zone's actuators (e.g. a TRV or
// mixing valve), if not already present.
func (z *Zone) AddActuator(dev *Device) {
	z.mu.Lock()
	defer z.mu.Unlock()
	for _, a := range z.actuators {
		if a == dev {
			return
		}
	}
	z.actuators = append(z.actuators, dev)
}

// Schedule returns the last schedule fetched for this zone, if any.
func (z *Zone) Schedule() any {
	z.mu.Lock()
	defer z.mu.Unlock()
	return z.schedule
}

// SetSchedule records sched as this zone's last-known schedule.
func (z *Zone) SetSchedule(sched any) {
	z.mu.Lock()
	defer z.mu.Unlock()
	z.schedule = sched
}
