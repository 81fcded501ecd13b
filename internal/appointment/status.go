package appointment

import (
	"encoding/json"
	"fmt"
)

// Status is the appointment lifecycle state. The numeric values are the stored codes.
//
//	PENDING → CONFIRMED → CHECKED_IN → COMPLETED
//	PENDING | CONFIRMED → CANCELLED
type Status int

const (
	StatusPending Status = iota
	StatusConfirmed
	StatusCheckedIn
	StatusCompleted
	StatusCancelled
)

var statusNames = [...]string{
	StatusPending:   "pending",
	StatusConfirmed: "confirmed",
	StatusCheckedIn: "checked_in",
	StatusCompleted: "completed",
	StatusCancelled: "cancelled",
}

// transitions[from][to] is true when the lifecycle allows from → to.
var transitions = [...][5]bool{
	StatusPending:   {StatusConfirmed: true, StatusCancelled: true},
	StatusConfirmed: {StatusCheckedIn: true, StatusCancelled: true},
	StatusCheckedIn: {StatusCompleted: true},
	StatusCompleted: {},
	StatusCancelled: {},
}

func (s Status) Valid() bool { return s >= StatusPending && s <= StatusCancelled }

func (s Status) String() string {
	if !s.Valid() {
		return fmt.Sprintf("status(%d)", int(s))
	}
	return statusNames[s]
}

func (s Status) CanTransitionTo(to Status) bool {
	return s.Valid() && to.Valid() && transitions[s][to]
}

func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

func ParseStatus(v string) (Status, error) {
	for i, name := range statusNames {
		if name == v {
			return Status(i), nil
		}
	}
	return 0, fmt.Errorf("unknown status %q", v)
}

func (s Status) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s *Status) UnmarshalJSON(b []byte) error {
	var name string
	if err := json.Unmarshal(b, &name); err != nil {
		return err
	}
	parsed, err := ParseStatus(name)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}
