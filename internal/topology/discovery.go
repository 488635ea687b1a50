package topology

import "github.com/ramses-rf/gateway/internal/ramses"

// discoverZoneSensors implements §4.6's zone/sensor matching, run on every
// controller 30C9 array. prev is the previous 30C9 message this system saw
// (System.swapPrev's sliding window).
func (s *System) discoverZoneSensors(t *Topology, msg *ramses.Message, prev *ramses.Message) {
	s.mu.Lock()
	syncRemain, syncKnown := s.syncRemain, s.syncKnown
	s.mu.Unlock()

	if prev == nil {
		return // step 1: require prev_30c9
	}
	// No 1F09 has ever been observed for this system: there is no sync
	// cycle to judge staleness against, so treat prev as uncorrelated and
	// skip, matching the original's "secs is None -> return" (never falls
	// through to matching).
	if !syncKnown {
		return
	}
	if msg.DTM.After(prev.DTM.Add(syncRemain)) {
		return // step 1: stale relative to the sync cycle
	}

	prevTemps := zoneTemps(prev)
	curTemps := zoneTemps(msg)

	// step 2: changed = {zone_idx: temperature} for zones whose temp changed.
	changed := make(map[string]float64)
	for idx, temp := range curTemps {
		if old, ok := prevTemps[idx]; !ok || old != temp {
			changed[idx] = temp
		}
	}
	if len(changed) == 0 {
		return
	}

	// step 3: testable_zones — sensorless zones whose changed temp is unique
	// among this round's changed values and non-null.
	valueCounts := make(map[float64]int)
	for _, t := range changed {
		valueCounts[t]++
	}
	testableZones := make(map[string]float64)
	for idx, temp := range changed {
		zone := s.Zone(idx)
		if zone.Sensor() != nil {
			continue
		}
		if valueCounts[temp] != 1 {
			continue
		}
		testableZones[idx] = temp
	}

	// step 4: testable_sensors — candidate devices anywhere in the topology.
	testableSensors := t.devicesWithZoneSensorCapability(s, prev.DTM)

	matched := make(map[string]bool)
	for idx, temp := range testableZones {
		var candidates []*Device
		for _, dev := range testableSensors {
			devTemp, _, ok := dev.Temperature()
			if !ok || devTemp != temp {
				continue
			}
			zone := dev.Zone()
			if zone != nil && zone.Idx != idx {
				continue
			}
			candidates = append(candidates, dev)
		}
		if len(candidates) == 1 {
			s.Zone(idx).BindSensor(candidates[0])
			matched[idx] = true
		}
	}

	// step 6: exclusion — exactly one zone remains sensorless overall, its
	// idx is in changed, and no candidate matched it this round -> bind the
	// controller itself as its sensor.
	var sensorless []*Zone
	for _, z := range s.Zones() {
		if z.Sensor() == nil {
			sensorless = append(sensorless, z)
		}
	}
	if len(sensorless) == 1 {
		z := sensorless[0]
		if _, inChanged := changed[z.Idx]; inChanged && !matched[z.Idx] {
			z.BindSensor(s.Controller)
		}
	}
}

// zoneTemps flattens a 30C9 array message into {zone_idx: temperature},
// dropping entries with no reading.
func zoneTemps(msg *ramses.Message) map[string]float64 {
	out := make(map[string]float64)
	for _, entry := range msg.Payload.Array {
		idx, _ := entry["zone_idx"].(string)
		temp, ok := entry["temperature"].(float64)
		if idx == "" || !ok {
			continue
		}
		out[idx] = temp
	}
	return out
}
