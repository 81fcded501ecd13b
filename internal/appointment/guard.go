package appointment

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-scheduling-engine/internal/apperr"
)

var (
	ErrSlotConflict        = apperr.New(apperr.Conflict, "slot_conflict", "requested time overlaps an existing appointment")
	ErrOutsideWorkingHours = apperr.New(apperr.Conflict, "outside_working_hours", "requested time is outside the doctor's working hours")
)

// guard decides whether [start,end) is bookable for the doctor on date. Callers that
// go on to insert must hold the doctor-day lock for the whole check-then-insert.
func (s *Service) guard(ctx context.Context, doctorID uuid.UUID, date time.Time, start, end TimeOfDay) error {
	intervals, err := s.repo.ListWorkIntervals(ctx, doctorID, date)
	if err != nil {
		return fmt.Errorf("load work intervals: %w", err)
	}

	inside := false
	for _, w := range intervals {
		if w.Active && w.Contains(start, end) {
			inside = true
			break
		}
	}
	if !inside {
		return ErrOutsideWorkingHours
	}

	existing, err := s.repo.ListLiveAppointments(ctx, doctorID, date)
	if err != nil {
		return fmt.Errorf("load appointments: %w", err)
	}
	for i := range existing {
		if existing[i].Live() && existing[i].Overlaps(start, end) {
			return ErrSlotConflict
		}
	}

	return nil
}

// lockKey is shared by the distributed lock and the database advisory lock.
func lockKey(doctorID uuid.UUID, date time.Time) string {
	return fmt.Sprintf("lock:booking:%s:%s", doctorID, date.Format(time.DateOnly))
}
