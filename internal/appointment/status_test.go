package appointment

import (
	"encoding/json"
	"testing"
)

func TestStatusTransitions(t *testing.T) {
	allowed := map[[2]Status]bool{
		{StatusPending, StatusConfirmed}:   true,
		{StatusPending, StatusCancelled}:   true,
		{StatusConfirmed, StatusCheckedIn}: true,
		{StatusConfirmed, StatusCancelled}: true,
		{StatusCheckedIn, StatusCompleted}: true,
	}

	all := []Status{StatusPending, StatusConfirmed, StatusCheckedIn, StatusCompleted, StatusCancelled}
	for _, from := range all {
		for _, to := range all {
			want := allowed[[2]Status{from, to}]
			if got := from.CanTransitionTo(to); got != want {
				t.Errorf("%s -> %s: expected %v, got %v", from, to, want, got)
			}
		}
	}
}

func TestStatusTerminal(t *testing.T) {
	for _, s := range []Status{StatusCompleted, StatusCancelled} {
		if !s.Terminal() {
			t.Errorf("expected %s to be terminal", s)
		}
	}
	for _, s := range []Status{StatusPending, StatusConfirmed, StatusCheckedIn} {
		if s.Terminal() {
			t.Errorf("expected %s not to be terminal", s)
		}
	}
}

func TestStatusCodesAreStable(t *testing.T) {
	codes := map[Status]int{
		StatusPending:   0,
		StatusConfirmed: 1,
		StatusCheckedIn: 2,
		StatusCompleted: 3,
		StatusCancelled: 4,
	}
	for s, code := range codes {
		if int(s) != code {
			t.Errorf("%s: expected code %d, got %d", s, code, int(s))
		}
	}
}

func TestStatusOutOfRange(t *testing.T) {
	bad := Status(9)
	if bad.Valid() {
		t.Fatal("expected status 9 to be invalid")
	}
	if bad.CanTransitionTo(StatusCancelled) || StatusPending.CanTransitionTo(bad) {
		t.Fatal("invalid statuses must not transition")
	}
	if bad.String() != "status(9)" {
		t.Errorf("unexpected string %q", bad.String())
	}
}

func TestStatusJSON(t *testing.T) {
	b, err := json.Marshal(StatusCheckedIn)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(b) != `"checked_in"` {
		t.Errorf("expected \"checked_in\", got %s", b)
	}

	var s Status
	if err := json.Unmarshal([]byte(`"cancelled"`), &s); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if s != StatusCancelled {
		t.Errorf("expected cancelled, got %s", s)
	}
	if err := json.Unmarshal([]byte(`"done"`), &s); err == nil {
		t.Error("expected error for unknown status")
	}
}
