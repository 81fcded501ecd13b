package appointment

import (
	"sort"

	"github.com/hackgods/clinic-scheduling-engine/internal/apperr"
)

const DefaultSlotDuration = 30

var ErrInvalidSlotDuration = apperr.New(apperr.Validation, "invalid_slot_duration", "slot_duration must be one of 15, 30, 45, 60")

func ValidSlotDuration(minutes int) bool {
	switch minutes {
	case 15, 30, 45, 60:
		return true
	}
	return false
}

// GenerateSlots partitions each interval into duration-long slots and marks the ones
// that overlap a live appointment as booked. A trailing piece shorter than duration
// is dropped, so an interval of L minutes yields exactly L/duration slots.
func GenerateSlots(intervals []WorkInterval, booked []Appointment, duration int) ([]Slot, SlotSummary) {
	sorted := make([]WorkInterval, 0, len(intervals))
	for _, w := range intervals {
		if w.Active && w.StartTime < w.EndTime {
			sorted = append(sorted, w)
		}
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].StartTime < sorted[j].StartTime })

	step := TimeOfDay(duration)
	slots := []Slot{}
	var summary SlotSummary

	for _, w := range sorted {
		for start := w.StartTime; start+step <= w.EndTime; start += step {
			end := start + step
			status := SlotAvailable
			for i := range booked {
				if booked[i].Live() && booked[i].Overlaps(start, end) {
					status = SlotBooked
					break
				}
			}

			slots = append(slots, Slot{StartTime: start, EndTime: end, Status: status})
			summary.Total++
			if status == SlotBooked {
				summary.Booked++
			} else {
				summary.Available++
			}
		}
	}

	return slots, summary
}
