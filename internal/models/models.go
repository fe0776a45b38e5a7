package models

import (
	"time"
)

// TemplateKind describes how a schedule template hands out its capacity.
type TemplateKind string

const (
	// TemplateDedicated: one provider, one appointment per slot.
	TemplateDedicated TemplateKind = "dedicated"
	// TemplateShared: several providers share the same slot grid.
	TemplateShared TemplateKind = "shared"
	// TemplatePool: a pool of interchangeable resources, capacity > 1.
	TemplatePool TemplateKind = "pool"
)

// TemplateWindow is one recurring weekly working window.
// DayOfWeek follows the 0=Sunday..6=Saturday convention.
type TemplateWindow struct {
	DayOfWeek int    `db:"day_of_week"`
	StartTime string `db:"start_time"` // "08:30"
	EndTime   string `db:"end_time"`   // "16:30"
}

// ScheduleTemplate is a recurring weekly availability pattern.
// Templates are created by an external admin surface; this core only reads them.
type ScheduleTemplate struct {
	ID                         string       `db:"id"`
	Name                       string       `db:"name"`
	Kind                       TemplateKind `db:"template_type"`
	MaxConcurrentSlots         int          `db:"max_concurrent_slots"`
	RequiresProviderAssignment bool         `db:"requires_provider_assignment"`
	Timezone                   string       `db:"timezone"`
	Windows                    []TemplateWindow
}

// ProviderAssignment links a provider to a shared/pool template.
type ProviderAssignment struct {
	TemplateID    string `db:"template_id"`
	ProviderID    string `db:"provider_id"`
	IsPrimary     bool   `db:"is_primary"`
	CanAutoAssign bool   `db:"can_auto_assign"`
	Priority      int    `db:"priority"`
}

// OverrideScope distinguishes template-local from tenant-wide overrides.
type OverrideScope string

const (
	ScopeTemplate OverrideScope = "template"
	ScopeGlobal   OverrideScope = "global"
)

// DateOverride is a date-specific exception to a template's weekly pattern:
// either fully closed or with custom hours replacing the default windows.
type DateOverride struct {
	ID            string        `db:"id"`
	Scope         OverrideScope `db:"scope"`
	TemplateID    *string       `db:"template_id"` // nil for global scope
	Date          time.Time     `db:"date"`
	IsUnavailable bool          `db:"is_unavailable"`
	CustomStart   *string       `db:"custom_start_time"` // "09:00"
	CustomEnd     *string       `db:"custom_end_time"`
	Reason        string        `db:"reason"`
}

// Holiday is a tenant-wide closed date, unless an override says otherwise.
type Holiday struct {
	Date     time.Time `db:"date"`
	Name     string    `db:"name"`
	Source   string    `db:"source"`
	IsActive bool      `db:"is_active"`
}

// ProviderLeave blocks a provider from auto-assignment and candidate lists
// for the covered dates.
type ProviderLeave struct {
	ProviderID string    `db:"provider_id"`
	StartDate  time.Time `db:"start_date"`
	EndDate    time.Time `db:"end_date"`
	Approved   bool      `db:"is_approved"`
}

// Covers reports whether the approved leave covers the given date (inclusive).
func (l ProviderLeave) Covers(date time.Time) bool {
	d := dateOnly(date)
	return l.Approved && !d.Before(dateOnly(l.StartDate)) && !d.After(dateOnly(l.EndDate))
}

func dateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// ServiceDefinition is a bookable service bound to a template.
type ServiceDefinition struct {
	ID                  string `db:"id"`
	Name                string `db:"name"`
	TemplateID          string `db:"template_id"`
	DurationMinutes     int    `db:"duration_minutes"`
	BufferBeforeMinutes int    `db:"buffer_before_minutes"`
	BufferAfterMinutes  int    `db:"buffer_after_minutes"`
	MinNoticeHours      int    `db:"min_notice_hours"`
	MaxAdvanceDays      int    `db:"max_advance_days"`
	MaxBookingsPerDay   *int   `db:"max_bookings_per_day"` // nil = uncapped
}

// Duration returns the appointment duration.
func (s ServiceDefinition) Duration() time.Duration {
	return time.Duration(s.DurationMinutes) * time.Minute
}

// AppointmentStatus is the lifecycle state of an appointment.
type AppointmentStatus string

const (
	StatusPending     AppointmentStatus = "pending"
	StatusConfirmed   AppointmentStatus = "confirmed"
	StatusCancelled   AppointmentStatus = "cancelled"
	StatusRescheduled AppointmentStatus = "rescheduled"
	StatusCompleted   AppointmentStatus = "completed"
)

// Active reports whether the status still holds slot capacity.
func (s AppointmentStatus) Active() bool {
	return s == StatusPending || s == StatusConfirmed
}

// Terminal reports whether no further transition is allowed.
func (s AppointmentStatus) Terminal() bool {
	switch s {
	case StatusCancelled, StatusRescheduled, StatusCompleted:
		return true
	}
	return false
}

// CanTransition validates a status transition:
// pending -> confirmed -> {cancelled, rescheduled, completed}.
func CanTransition(from, to AppointmentStatus) bool {
	switch from {
	case StatusPending:
		return to == StatusConfirmed || to == StatusCancelled
	case StatusConfirmed:
		return to == StatusCancelled || to == StatusRescheduled || to == StatusCompleted
	case StatusCancelled, StatusRescheduled, StatusCompleted:
		return false
	}
	return false
}

// Contact is who the appointment is for.
type Contact struct {
	Name  string `db:"guest_name"`
	Email string `db:"guest_email"`
	Phone string `db:"guest_phone"`
}

// Appointment is one row of the booking ledger. Rows are append-only:
// cancel/reschedule/complete flip the status, nothing is ever deleted.
type Appointment struct {
	ID               string            `db:"id"`
	TenantID         string            `db:"tenant_id"`
	ServiceID        string            `db:"service_id"`
	ProviderID       *string           `db:"provider_id"`
	Start            time.Time         `db:"start_time"`
	End              time.Time         `db:"end_time"`
	Status           AppointmentStatus `db:"status"`
	BookingReference string            `db:"booking_reference"`
	Contact          Contact
	Notes            string     `db:"notes"`
	RescheduledFrom  *string    `db:"rescheduled_from_id"`
	RescheduleCount  int        `db:"reschedule_count"`
	CancelledAt      *time.Time `db:"cancelled_at"`
	CancelledBy      string     `db:"cancelled_by"`
	CancelReason     string     `db:"cancellation_reason"`
	CreatedAt        time.Time  `db:"created_at"`
	UpdatedAt        time.Time  `db:"updated_at"`
}

// Overlaps reports whether the appointment overlaps [start, end).
func (a Appointment) Overlaps(start, end time.Time) bool {
	return a.Start.Before(end) && a.End.After(start)
}
