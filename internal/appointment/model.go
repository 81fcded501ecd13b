package appointment

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// TimeOfDay is a wall-clock time with minute precision, stored as minutes since midnight.
type TimeOfDay int

const MinutesPerDay TimeOfDay = 24 * 60

func NewTimeOfDay(hour, minute int) TimeOfDay {
	return TimeOfDay(hour*60 + minute)
}

// ParseTimeOfDay accepts "HH:MM" (and "HH:MM:SS" with zero seconds).
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	for _, layout := range []string{"15:04", "15:04:05"} {
		t, err := time.Parse(layout, s)
		if err != nil {
			continue
		}
		if t.Second() != 0 {
			break
		}
		return NewTimeOfDay(t.Hour(), t.Minute()), nil
	}
	return 0, fmt.Errorf("invalid time %q, expected HH:MM", s)
}

func (t TimeOfDay) Hour() int   { return int(t) / 60 }
func (t TimeOfDay) Minute() int { return int(t) % 60 }

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour(), t.Minute())
}

func (t TimeOfDay) Valid() bool { return t >= 0 && t <= MinutesPerDay }

func (t TimeOfDay) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

func (t *TimeOfDay) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	parsed, err := ParseTimeOfDay(s)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// Overlaps implements the half-open interval test [aStart,aEnd) ∩ [bStart,bEnd) ≠ ∅.
func Overlaps(aStart, aEnd, bStart, bEnd TimeOfDay) bool {
	return aStart < bEnd && bStart < aEnd
}

type WorkInterval struct {
	ID        uuid.UUID  `json:"id"`
	DoctorID  uuid.UUID  `json:"doctor_id"`
	Date      time.Time  `json:"date"`
	StartTime TimeOfDay  `json:"start_time"`
	EndTime   TimeOfDay  `json:"end_time"`
	RoomID    *uuid.UUID `json:"room_id,omitempty"`
	Active    bool       `json:"active"`
}

// Contains reports whether [start,end) lies entirely inside the interval.
func (w WorkInterval) Contains(start, end TimeOfDay) bool {
	return w.StartTime <= start && end <= w.EndTime
}

func (w WorkInterval) Minutes() int { return int(w.EndTime - w.StartTime) }

type Appointment struct {
	ID           uuid.UUID
	DoctorID     uuid.UUID
	PatientID    uuid.UUID
	SpecialtyID  *uuid.UUID
	RoomID       *uuid.UUID
	ServiceID    *uuid.UUID
	Date         time.Time
	StartTime    TimeOfDay
	EndTime      TimeOfDay
	Status       Status
	Reason       string
	CancelReason *string
	ConfirmedAt  *time.Time
	ConfirmedBy  *uuid.UUID
	CheckedInAt  *time.Time
	CompletedAt  *time.Time
	ServicePrice *int64
	TotalPrice   *int64
	CreatedBy    *uuid.UUID
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Live appointments occupy their interval; cancelled ones do not.
func (a *Appointment) Live() bool { return a.Status != StatusCancelled }

func (a *Appointment) Overlaps(start, end TimeOfDay) bool {
	return Overlaps(a.StartTime, a.EndTime, start, end)
}

type SlotStatus string

const (
	SlotAvailable SlotStatus = "available"
	SlotBooked    SlotStatus = "booked"
)

type Slot struct {
	StartTime TimeOfDay  `json:"start_time"`
	EndTime   TimeOfDay  `json:"end_time"`
	Status    SlotStatus `json:"status"`
}

type SlotSummary struct {
	Total     int `json:"total"`
	Available int `json:"available"`
	Booked    int `json:"booked"`
}

// SlotGrid is the available-slots answer for one doctor and date.
type SlotGrid struct {
	DoctorID      uuid.UUID      `json:"doctor_id"`
	Date          time.Time      `json:"date"`
	SlotDuration  int            `json:"slot_duration"`
	WorkIntervals []WorkInterval `json:"work_intervals"`
	Slots         []Slot         `json:"slots"`
	Summary       SlotSummary    `json:"summary"`
}

type Availability struct {
	Available bool
	Message   string
}

// StatusChange describes one compare-and-swap transition and the stamps that go with it.
type StatusChange struct {
	To           Status
	At           time.Time
	By           *uuid.UUID
	RoomID       *uuid.UUID
	CancelReason string
	TotalPrice   *int64
}

type EventLog struct {
	ID            int64
	EventType     string
	AppointmentID *uuid.UUID
	Payload       []byte
	CreatedAt     time.Time
}

// CreateRequest is the input of every booking path.
type CreateRequest struct {
	DoctorID    uuid.UUID
	PatientID   uuid.UUID // staff bookings on behalf of a patient
	SpecialtyID *uuid.UUID
	RoomID      *uuid.UUID
	ServiceID   *uuid.UUID
	Date        time.Time
	StartTime   TimeOfDay
	EndTime     TimeOfDay
	Reason      string

	// Guest bookings identify the patient by contact details instead of an id.
	GuestName  string
	GuestPhone string
	GuestEmail string
}
