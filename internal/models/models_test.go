package models

import (
	"testing"
	"time"
)

func TestCanTransition(t *testing.T) {
	cases := []struct {
		from, to AppointmentStatus
		want     bool
	}{
		{StatusPending, StatusConfirmed, true},
		{StatusPending, StatusCancelled, true},
		{StatusPending, StatusCompleted, false},
		{StatusConfirmed, StatusCancelled, true},
		{StatusConfirmed, StatusRescheduled, true},
		{StatusConfirmed, StatusCompleted, true},
		{StatusConfirmed, StatusPending, false},
		{StatusCancelled, StatusConfirmed, false},
		{StatusRescheduled, StatusConfirmed, false},
		{StatusCompleted, StatusCancelled, false},
	}

	for _, tc := range cases {
		if got := CanTransition(tc.from, tc.to); got != tc.want {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", tc.from, tc.to, got, tc.want)
		}
	}
}

func TestStatusActive(t *testing.T) {
	for _, s := range []AppointmentStatus{StatusPending, StatusConfirmed} {
		if !s.Active() {
			t.Errorf("%s should be active", s)
		}
		if s.Terminal() {
			t.Errorf("%s should not be terminal", s)
		}
	}
	for _, s := range []AppointmentStatus{StatusCancelled, StatusRescheduled, StatusCompleted} {
		if s.Active() {
			t.Errorf("%s should not be active", s)
		}
		if !s.Terminal() {
			t.Errorf("%s should be terminal", s)
		}
	}
}

func TestAppointmentOverlaps(t *testing.T) {
	base := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	appt := Appointment{Start: base, End: base.Add(time.Hour)}

	if !appt.Overlaps(base.Add(30*time.Minute), base.Add(90*time.Minute)) {
		t.Error("expected overlap with a straddling interval")
	}
	// Touching boundaries do not overlap.
	if appt.Overlaps(base.Add(time.Hour), base.Add(2*time.Hour)) {
		t.Error("back-to-back intervals should not overlap")
	}
	if appt.Overlaps(base.Add(-time.Hour), base) {
		t.Error("interval ending at the start should not overlap")
	}
}

func TestProviderLeaveCovers(t *testing.T) {
	leave := ProviderLeave{
		ProviderID: "prov-1",
		StartDate:  time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC),
		EndDate:    time.Date(2026, 3, 4, 0, 0, 0, 0, time.UTC),
		Approved:   true,
	}

	if !leave.Covers(time.Date(2026, 3, 2, 15, 0, 0, 0, time.UTC)) {
		t.Error("start date should be covered regardless of time of day")
	}
	if !leave.Covers(time.Date(2026, 3, 4, 0, 0, 0, 0, time.UTC)) {
		t.Error("end date is inclusive")
	}
	if leave.Covers(time.Date(2026, 3, 5, 0, 0, 0, 0, time.UTC)) {
		t.Error("day after the leave should not be covered")
	}

	leave.Approved = false
	if leave.Covers(time.Date(2026, 3, 3, 0, 0, 0, 0, time.UTC)) {
		t.Error("unapproved leave should not block anything")
	}
}
