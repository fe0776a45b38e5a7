// Package storagetest provides an in-memory Repository for exercising the
// availability and booking logic without a database.
package storagetest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"booking-service/internal/models"
	"booking-service/internal/storage"
	"booking-service/pkg/response"
)

// Fake is a single-tenant in-memory store. The zero value is not usable;
// call New.
type Fake struct {
	mu sync.Mutex

	Services              map[string]*models.ServiceDefinition
	Templates             map[string]*models.ScheduleTemplate
	TemplateOverrides     map[string]*models.DateOverride
	GlobalOverrides       map[string]*models.DateOverride
	Holidays              map[string]*models.Holiday
	AssignmentsByTemplate map[string][]models.ProviderAssignment
	Leaves                []models.ProviderLeave
	Appointments          []*models.Appointment

	// LookupErr, when set, fails every override/holiday/assignment lookup.
	LookupErr error
	// TransientFailures makes the next N writes fail with ErrTransient.
	TransientFailures int

	LastTenant string
}

func New() *Fake {
	return &Fake{
		Services:              make(map[string]*models.ServiceDefinition),
		Templates:             make(map[string]*models.ScheduleTemplate),
		TemplateOverrides:     make(map[string]*models.DateOverride),
		GlobalOverrides:       make(map[string]*models.DateOverride),
		Holidays:              make(map[string]*models.Holiday),
		AssignmentsByTemplate: make(map[string][]models.ProviderAssignment),
	}
}

func (f *Fake) Scoped(tenantID string) storage.Repository {
	f.mu.Lock()
	f.LastTenant = tenantID
	f.mu.Unlock()
	return f
}

func dateKey(date time.Time) string {
	return date.Format("2006-01-02")
}

// OverrideKey builds the map key for a template-scoped override.
func OverrideKey(templateID string, date time.Time) string {
	return fmt.Sprintf("%s|%s", templateID, dateKey(date))
}

func (f *Fake) Service(_ context.Context, serviceID string) (*models.ServiceDefinition, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	svc, ok := f.Services[serviceID]
	if !ok {
		return nil, response.ErrNotFound
	}
	return svc, nil
}

func (f *Fake) Template(_ context.Context, templateID string) (*models.ScheduleTemplate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	tpl, ok := f.Templates[templateID]
	if !ok {
		return nil, response.ErrNotFound
	}
	return tpl, nil
}

func (f *Fake) TemplateOverride(_ context.Context, templateID string, date time.Time) (*models.DateOverride, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.LookupErr != nil {
		return nil, f.LookupErr
	}
	ov, ok := f.TemplateOverrides[OverrideKey(templateID, date)]
	if !ok {
		return nil, response.ErrNotFound
	}
	return ov, nil
}

func (f *Fake) GlobalOverride(_ context.Context, date time.Time) (*models.DateOverride, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.LookupErr != nil {
		return nil, f.LookupErr
	}
	ov, ok := f.GlobalOverrides[dateKey(date)]
	if !ok {
		return nil, response.ErrNotFound
	}
	return ov, nil
}

func (f *Fake) HolidayOn(_ context.Context, date time.Time) (*models.Holiday, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.LookupErr != nil {
		return nil, f.LookupErr
	}
	h, ok := f.Holidays[dateKey(date)]
	if !ok || !h.IsActive {
		return nil, response.ErrNotFound
	}
	return h, nil
}

func (f *Fake) Assignments(_ context.Context, templateID string) ([]models.ProviderAssignment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.LookupErr != nil {
		return nil, f.LookupErr
	}
	return f.AssignmentsByTemplate[templateID], nil
}

func (f *Fake) LeavesOn(_ context.Context, date time.Time) ([]models.ProviderLeave, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.LookupErr != nil {
		return nil, f.LookupErr
	}

	var out []models.ProviderLeave
	for _, l := range f.Leaves {
		if l.Covers(date) {
			out = append(out, l)
		}
	}
	return out, nil
}

func sameDay(t, date time.Time) bool {
	return t.Year() == date.Year() && t.YearDay() == date.YearDay()
}

func (f *Fake) ActiveForTemplateOn(_ context.Context, templateID string, date time.Time) ([]models.Appointment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []models.Appointment
	for _, a := range f.Appointments {
		if !a.Status.Active() || !sameDay(a.Start, date) {
			continue
		}
		svc, ok := f.Services[a.ServiceID]
		if !ok || svc.TemplateID != templateID {
			continue
		}
		out = append(out, *a)
	}
	return out, nil
}

func (f *Fake) CountActiveForServiceOn(_ context.Context, serviceID string, date time.Time) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	n := 0
	for _, a := range f.Appointments {
		if a.Status.Active() && a.ServiceID == serviceID && sameDay(a.Start, date) {
			n++
		}
	}
	return n, nil
}

func (f *Fake) AppointmentByReference(_ context.Context, reference string) (*models.Appointment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.byReferenceLocked(reference)
}

func (f *Fake) byReferenceLocked(reference string) (*models.Appointment, error) {
	for _, a := range f.Appointments {
		if a.BookingReference == reference {
			cp := *a
			return &cp, nil
		}
	}
	return nil, response.ErrNotFound
}

func (f *Fake) InsertAppointmentIfCapacity(_ context.Context, appt *models.Appointment, templateID string, capacity int, perProvider bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.insertLocked(appt, templateID, capacity, perProvider)
}

func (f *Fake) insertLocked(appt *models.Appointment, templateID string, capacity int, perProvider bool) error {
	if f.TransientFailures > 0 {
		f.TransientFailures--
		return storage.ErrTransient
	}

	for _, a := range f.Appointments {
		if a.BookingReference == appt.BookingReference {
			return storage.ErrDuplicateReference
		}
	}

	count := 0
	for _, a := range f.Appointments {
		if !a.Status.Active() || !a.Overlaps(appt.Start, appt.End) {
			continue
		}
		svc, ok := f.Services[a.ServiceID]
		if !ok || svc.TemplateID != templateID {
			continue
		}
		if perProvider {
			if a.ProviderID != nil && appt.ProviderID != nil && *a.ProviderID == *appt.ProviderID {
				count++
			}
			continue
		}
		count++
	}
	if count >= capacity {
		return response.ErrConflict
	}

	cp := *appt
	f.Appointments = append(f.Appointments, &cp)
	return nil
}

func (f *Fake) MarkCancelled(_ context.Context, reference string, at time.Time, by, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, a := range f.Appointments {
		if a.BookingReference == reference && a.Status.Active() {
			a.Status = models.StatusCancelled
			a.CancelledAt = &at
			a.CancelledBy = by
			a.CancelReason = reason
			a.UpdatedAt = at
			return nil
		}
	}
	return response.ErrConflict
}

func (f *Fake) MarkCompleted(_ context.Context, reference string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, a := range f.Appointments {
		if a.BookingReference == reference && a.Status == models.StatusConfirmed {
			a.Status = models.StatusCompleted
			a.UpdatedAt = at
			return nil
		}
	}
	return response.ErrConflict
}

func (f *Fake) Reschedule(_ context.Context, originalID string, replacement *models.Appointment, templateID string, capacity int, perProvider bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	var orig *models.Appointment
	for _, a := range f.Appointments {
		if a.ID == originalID {
			orig = a
			break
		}
	}
	if orig == nil || orig.Status != models.StatusConfirmed {
		return response.ErrConflict
	}

	if err := f.insertLocked(replacement, templateID, capacity, perProvider); err != nil {
		return err
	}

	orig.Status = models.StatusRescheduled
	orig.UpdatedAt = replacement.CreatedAt
	return nil
}
