// Package storage defines the tenant-scoped repository contract the booking
// core runs against. Tenancy is a capability handed out per request, never
// ambient session state.
package storage

import (
	"context"
	"errors"
	"time"

	"booking-service/internal/models"
)

// ErrTransient marks store failures worth retrying (lock waits, deadlocks,
// serialization aborts). The booking manager retries these a bounded number
// of times before surfacing ErrUnavailable.
var ErrTransient = errors.New("transient storage error")

// ErrDuplicateReference means the generated booking reference collided;
// the caller generates a fresh one and retries.
var ErrDuplicateReference = errors.New("duplicate booking reference")

// TenantStore hands out repositories bound to one tenant.
type TenantStore interface {
	Scoped(tenantID string) Repository
}

// Repository is the per-tenant read/write surface. Read models (templates,
// services, overrides, holidays, provider assignments/leave) are maintained
// by external collaborators; this core owns only the appointment ledger.
type Repository interface {
	// Read models.
	Service(ctx context.Context, serviceID string) (*models.ServiceDefinition, error)
	Template(ctx context.Context, templateID string) (*models.ScheduleTemplate, error)
	TemplateOverride(ctx context.Context, templateID string, date time.Time) (*models.DateOverride, error)
	GlobalOverride(ctx context.Context, date time.Time) (*models.DateOverride, error)
	HolidayOn(ctx context.Context, date time.Time) (*models.Holiday, error)
	Assignments(ctx context.Context, templateID string) ([]models.ProviderAssignment, error)
	LeavesOn(ctx context.Context, date time.Time) ([]models.ProviderLeave, error)

	// Ledger reads.
	ActiveForTemplateOn(ctx context.Context, templateID string, date time.Time) ([]models.Appointment, error)
	CountActiveForServiceOn(ctx context.Context, serviceID string, date time.Time) (int, error)
	AppointmentByReference(ctx context.Context, reference string) (*models.Appointment, error)

	// Ledger writes. Appointment rows are append-only: status flips, no
	// deletes.
	//
	// InsertAppointmentIfCapacity counts active appointments overlapping the
	// new one (per provider when perProvider is set) and inserts only while
	// the count stays below capacity, in a single statement, so the
	// check-then-insert cannot be split by a concurrent writer.
	InsertAppointmentIfCapacity(ctx context.Context, appt *models.Appointment, templateID string, capacity int, perProvider bool) error
	MarkCancelled(ctx context.Context, reference string, at time.Time, by, reason string) error
	MarkCompleted(ctx context.Context, reference string, at time.Time) error
	// Reschedule flips the original to rescheduled and inserts the
	// replacement (capacity-checked) in one transaction.
	Reschedule(ctx context.Context, originalID string, replacement *models.Appointment, templateID string, capacity int, perProvider bool) error
}
