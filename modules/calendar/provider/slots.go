package provider

import (
	"sort"
	"time"

	"calendar-engine/core/constants"
	"calendar-engine/modules/calendar/entity"
)

// GenerateSlots walks the window in fixed steps and keeps every
// candidate whose end fits inside the window without touching a busy
// interval.
func GenerateSlots(windowStart, windowEnd time.Time, busy []entity.TimeSlot, durationMinutes int) []entity.TimeSlot {
	step := time.Duration(constants.SlotStepMinutes) * time.Minute
	duration := time.Duration(durationMinutes) * time.Minute

	slots := []entity.TimeSlot{}
	for candStart := windowStart; candStart.Before(windowEnd); candStart = candStart.Add(step) {
		candEnd := candStart.Add(duration)
		if candEnd.After(windowEnd) {
			break
		}
		if !overlapsAny(candStart, candEnd, busy) {
			slots = append(slots, entity.NewTimeSlot(candStart, candEnd))
		}
	}
	return slots
}

func overlapsAny(start, end time.Time, busy []entity.TimeSlot) bool {
	for _, b := range busy {
		if start.Before(b.End) && end.After(b.Start) {
			return true
		}
	}
	return false
}

// MergeBusy sorts and coalesces overlapping or touching busy intervals
// so the slot walk checks each candidate against a minimal list.
func MergeBusy(busy []entity.TimeSlot) []entity.TimeSlot {
	if len(busy) <= 1 {
		return busy
	}

	sorted := make([]entity.TimeSlot, len(busy))
	copy(sorted, busy)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Start.Before(sorted[j].Start)
	})

	merged := []entity.TimeSlot{sorted[0]}
	for _, b := range sorted[1:] {
		last := &merged[len(merged)-1]
		if !b.Start.After(last.End) {
			if b.End.After(last.End) {
				last.End = b.End
			}
			continue
		}
		merged = append(merged, b)
	}
	return merged
}
