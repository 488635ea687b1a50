package ramses

import (
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"io"
	"sort"
)

// Switchpoint is one scheduled setpoint change within a day, per §4.4's
// decode format.
type Switchpoint struct {
	TimeOfDay    string // "HH:MM"
	HeatSetpoint float64
}

// DaySchedule is one day-of-week's ordered switchpoints.
type DaySchedule struct {
	DayOfWeek    int
	Switchpoints []Switchpoint
}

// Schedule is a zone's (or DHW's) full weekly schedule, decoded from its
// 0404 fragments.
type Schedule struct {
	ZoneIdx string
	Days    []DaySchedule
}

// scheduleFragLenHexChars is the per-fragment wire width used when splitting
// a deflated schedule blob for transmission (§4.4 Put).
const scheduleFragLenHexChars = 82

// DecodeSchedule inflates a zlib-compressed switchpoint blob (the
// hex-decoded concatenation of every 0404 fragment's payload) into a
// Schedule.
//
// Wire format: 20 bytes per switchpoint, little-endian:
// byte 4 = zone_idx, byte 8 = day_of_week, bytes 12-13 = minute_of_day,
// bytes 16-17 = setpoint_centidegrees. The remaining bytes are padding
// reserved by the source project's struct layout.
func DecodeSchedule(raw []byte) (*Schedule, error) {
	zr, err := zlib.NewReader(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("ramses: schedule: invalid deflate stream: %w", err)
	}
	defer zr.Close()
	decompressed, err := io.ReadAll(zr)
	if err != nil {
		return nil, fmt.Errorf("ramses: schedule: decompress failed: %w", err)
	}
	if len(decompressed)%20 != 0 {
		return nil, fmt.Errorf("ramses: schedule: decompressed length %d not a multiple of 20", len(decompressed))
	}

	var zoneIdx byte
	byDay := map[int][]Switchpoint{}
	var dayOrder []int
	seen := map[int]bool{}

	for i := 0; i+20 <= len(decompressed); i += 20 {
		entry := decompressed[i : i+20]
		zoneIdx = entry[4]
		day := int(entry[8])
		minuteOfDay := binary.LittleEndian.Uint16(entry[12:14])
		centiTemp := binary.LittleEndian.Uint16(entry[16:18])

		sp := Switchpoint{
			TimeOfDay:    fmt.Sprintf("%02d:%02d", minuteOfDay/60, minuteOfDay%60),
			HeatSetpoint: float64(centiTemp) / 100.0,
		}
		byDay[day] = append(byDay[day], sp)
		if !seen[day] {
			seen[day] = true
			dayOrder = append(dayOrder, day)
		}
	}
	sort.Ints(dayOrder)

	sched := &Schedule{ZoneIdx: hexUpper([]byte{zoneIdx})}
	for _, day := range dayOrder {
		sched.Days = append(sched.Days, DaySchedule{DayOfWeek: day, Switchpoints: byDay[day]})
	}
	return sched, nil
}

// EncodeSchedule is the inverse of DecodeSchedule: it packs a Schedule into
// a deflated blob (level 9) and splits the resulting hex into
// scheduleFragLenHexChars-wide fragments ready for WScheduleFragment, per
// §4.4's Put algorithm.
//
// Go's compress/zlib does not expose a custom window-bits knob the way the
// source project's wbits=14 does; the standard 32K window still produces a
// valid, independently-decodable zlib stream, so this is a safe
// approximation (see DESIGN.md).
func EncodeSchedule(s *Schedule) ([]string, error) {
	zoneIdxByte, err := hexByte(s.ZoneIdx)
	if err != nil {
		return nil, fmt.Errorf("ramses: schedule: invalid zone_idx %q: %w", s.ZoneIdx, err)
	}

	var buf bytes.Buffer
	zw, err := zlib.NewWriterLevel(&buf, zlib.BestCompression)
	if err != nil {
		return nil, err
	}
	for _, day := range s.Days {
		for _, sp := range day.Switchpoints {
			var h, m int
			if _, err := fmt.Sscanf(sp.TimeOfDay, "%02d:%02d", &h, &m); err != nil {
				return nil, fmt.Errorf("ramses: schedule: invalid time_of_day %q: %w", sp.TimeOfDay, err)
			}
			entry := make([]byte, 20)
			entry[4] = zoneIdxByte
			entry[8] = byte(day.DayOfWeek)
			binary.LittleEndian.PutUint16(entry[12:14], uint16(h*60+m))
			binary.LittleEndian.PutUint16(entry[16:18], uint16(sp.HeatSetpoint*100))
			if _, err := zw.Write(entry); err != nil {
				return nil, err
			}
		}
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}

	blob := hexUpper(buf.Bytes())
	var frags []string
	for i := 0; i < len(blob); i += scheduleFragLenHexChars {
		end := i + scheduleFragLenHexChars
		if end > len(blob) {
			end = len(blob)
		}
		frags = append(frags, blob[i:end])
	}
	return frags, nil
}

func hexByte(s string) (byte, error) {
	b, err := hex.DecodeString(s)
	if err != nil || len(b) != 1 {
		return 0, fmt.Errorf("not a single hex byte: %q", s)
	}
	return b[0], nil
}
