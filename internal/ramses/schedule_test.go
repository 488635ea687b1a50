package ramses

import (
	"encoding/hex"
	"reflect"
	"testing"
)

// EncodeSchedule/DecodeSchedule must round-trip: what gets split into
// fragments and deflated should inflate back to the same switchpoints.
func TestScheduleRoundTrip(t *testing.T) {
	sched := &Schedule{
		ZoneIdx: "00",
		Days: []DaySchedule{
			{DayOfWeek: 0, Switchpoints: []Switchpoint{
				{TimeOfDay: "06:30", HeatSetpoint: 19.5},
				{TimeOfDay: "22:00", HeatSetpoint: 16.0},
			}},
			{DayOfWeek: 1, Switchpoints: []Switchpoint{
				{TimeOfDay: "07:00", HeatSetpoint: 20.0},
			}},
		},
	}

	frags, err := EncodeSchedule(sched)
	if err != nil {
		t.Fatalf("EncodeSchedule: %v", err)
	}
	if len(frags) == 0 {
		t.Fatal("EncodeSchedule produced no fragments")
	}
	for i, f := range frags {
		if i < len(frags)-1 && len(f) != scheduleFragLenHexChars {
			t.Errorf("fragment %d length = %d, want %d (only the last fragment may be short)", i, len(f), scheduleFragLenHexChars)
		}
	}

	blob := ""
	for _, f := range frags {
		blob += f
	}
	raw, err := hex.DecodeString(blob)
	if err != nil {
		t.Fatalf("decode reassembled blob: %v", err)
	}

	got, err := DecodeSchedule(raw)
	if err != nil {
		t.Fatalf("DecodeSchedule: %v", err)
	}
	if got.ZoneIdx != sched.ZoneIdx {
		t.Errorf("ZoneIdx = %q, want %q", got.ZoneIdx, sched.ZoneIdx)
	}
	if !reflect.DeepEqual(got.Days, sched.Days) {
		t.Errorf("Days = %+v, want %+v", got.Days, sched.Days)
	}
}

func TestDecodeSchedule_RejectsNonDeflateInput(t *testing.T) {
	if _, err := DecodeSchedule([]byte{0x00, 0x01, 0x02}); err == nil {
		t.Fatal("expected an error for non-deflate input")
	}
}
