// Package booking owns the appointment ledger transitions: create, cancel,
// reschedule, complete. Commits are serialized per contention key with a
// redis lock and re-validated against live availability, so an earlier
// availability response is never trusted at commit time.
package booking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"booking-service/internal/availability"
	"booking-service/internal/idempotency"
	"booking-service/internal/lock"
	"booking-service/internal/metrics"
	"booking-service/internal/models"
	"booking-service/internal/storage"
	"booking-service/pkg/response"
	"booking-service/pkg/sl"
)

// Quoter re-derives the validity of one concrete slot at commit time.
type Quoter interface {
	Quote(ctx context.Context, tenant, serviceID string, start time.Time, providerID *string, now time.Time) (*availability.SlotView, *models.ServiceDefinition, *models.ScheduleTemplate, error)
}

// Config bounds the manager's commit behavior.
type Config struct {
	// GuardWindow is the minimum lead time before the appointment start for
	// cancel and reschedule.
	GuardWindow time.Duration
	LockTTL     time.Duration
	// CommitRetries bounds retries on transient store failures before the
	// request is answered with ErrUnavailable.
	CommitRetries int
	RetryBackoff  time.Duration
}

type Manager struct {
	log    *slog.Logger
	store  storage.TenantStore
	quoter Quoter
	locker lock.Locker
	idem   idempotency.Store
	cfg    Config

	now func() time.Time
}

func NewManager(log *slog.Logger, store storage.TenantStore, quoter Quoter, locker lock.Locker, idem idempotency.Store, cfg Config) *Manager {
	return &Manager{
		log:    log,
		store:  store,
		quoter: quoter,
		locker: locker,
		idem:   idem,
		cfg:    cfg,
		now:    time.Now,
	}
}

// CreateRequest carries everything needed to book one slot.
type CreateRequest struct {
	ServiceID        string
	Start            time.Time
	ProviderID       *string
	Contact          models.Contact
	Notes            string
	IdempotencyToken string
}

// Create books a slot. With an idempotency token, a repeated request returns
// the appointment booked the first time instead of creating another one.
func (m *Manager) Create(ctx context.Context, tenant string, req CreateRequest) (*models.Appointment, error) {
	const op = "booking.Manager.Create"

	repo := m.store.Scoped(tenant)

	if req.IdempotencyToken != "" {
		fresh, ref, err := m.idem.Acquire(ctx, tenant, req.IdempotencyToken)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		if !fresh {
			metrics.IncIdempotentReplay()
			m.log.Info("idempotent replay", slog.String("reference", ref))
			return repo.AppointmentByReference(ctx, ref)
		}
	}

	appt, err := m.create(ctx, tenant, repo, req)
	if err != nil {
		if req.IdempotencyToken != "" {
			if relErr := m.idem.Release(ctx, tenant, req.IdempotencyToken); relErr != nil {
				m.log.Error("failed to release idempotency token", sl.Err(relErr))
			}
		}
		metrics.IncBookingCreated("rejected")
		return nil, err
	}

	if req.IdempotencyToken != "" {
		if err := m.idem.Complete(ctx, tenant, req.IdempotencyToken, appt.BookingReference); err != nil {
			m.log.Error("failed to complete idempotency token", sl.Err(err))
		}
	}
	metrics.IncBookingCreated("created")

	return appt, nil
}

func (m *Manager) create(ctx context.Context, tenant string, repo storage.Repository, req CreateRequest) (*models.Appointment, error) {
	const op = "booking.Manager.create"

	now := m.now()

	svc, err := repo.Service(ctx, req.ServiceID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	key := contentionKey(tenant, svc.TemplateID, req.ProviderID, req.Start)
	ok, err := m.locker.Lock(ctx, key, m.cfg.LockTTL)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if !ok {
		return nil, fmt.Errorf("%s: %w", op, response.ErrLocked)
	}
	defer func() {
		if err := m.locker.Unlock(context.WithoutCancel(ctx), key); err != nil {
			m.log.Error("failed to unlock contention key", sl.Err(err), slog.String("key", key))
		}
	}()

	slot, _, tpl, err := m.quoter.Quote(ctx, tenant, req.ServiceID, req.Start, req.ProviderID, now)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if !slot.Available {
		return nil, fmt.Errorf("%s: %w", op, response.ErrConflict)
	}

	providerID, err := m.resolveProvider(ctx, repo, tpl, slot, req.ProviderID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	capacity := tpl.MaxConcurrentSlots
	perProvider := providerID != nil
	if perProvider {
		capacity = 1
	}

	appt := &models.Appointment{
		ID:         uuid.NewString(),
		TenantID:   tenant,
		ServiceID:  svc.ID,
		ProviderID: providerID,
		Start:      slot.Start,
		End:        slot.End,
		Status:     models.StatusConfirmed,
		Contact:    req.Contact,
		Notes:      req.Notes,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	err = m.commit(ctx, func() error {
		return repo.InsertAppointmentIfCapacity(ctx, appt, tpl.ID, capacity, perProvider)
	}, appt)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	m.log.Info("booking created",
		slog.String("reference", appt.BookingReference),
		slog.String("service_id", appt.ServiceID),
		slog.Time("start", appt.Start),
	)

	return appt, nil
}

// commit runs fn under the retry policy: fresh reference on a reference
// collision, bounded backoff on transient store failures, ErrUnavailable once
// the budget runs out.
func (m *Manager) commit(ctx context.Context, fn func() error, appt *models.Appointment) error {
	appt.BookingReference = NewReference()

	var err error
	for attempt := 0; attempt <= m.cfg.CommitRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(m.cfg.RetryBackoff * time.Duration(attempt)):
			}
		}

		err = fn()
		switch {
		case err == nil:
			return nil
		case errors.Is(err, storage.ErrDuplicateReference):
			appt.BookingReference = NewReference()
		case errors.Is(err, storage.ErrTransient):
			m.log.Warn("transient commit failure, retrying", sl.Err(err), slog.Int("attempt", attempt))
		default:
			return err
		}
	}

	return fmt.Errorf("commit retries exhausted: %w", response.ErrUnavailable)
}

// resolveProvider picks the provider the appointment is written under. A
// named provider must be assigned to the template and not on leave; without
// one, the first eligible candidate open to auto-assignment wins.
func (m *Manager) resolveProvider(ctx context.Context, repo storage.Repository, tpl *models.ScheduleTemplate, slot *availability.SlotView, requested *string) (*string, error) {
	if requested != nil {
		leaves, err := repo.LeavesOn(ctx, slot.Start)
		if err != nil {
			return nil, err
		}
		for _, l := range leaves {
			if l.ProviderID == *requested && l.Covers(slot.Start) {
				return nil, fmt.Errorf("provider %s is on leave: %w", *requested, response.ErrPolicyViolation)
			}
		}
	}

	if !tpl.RequiresProviderAssignment {
		return requested, nil
	}

	assignments, err := repo.Assignments(ctx, tpl.ID)
	if err != nil {
		return nil, err
	}

	autoOK := make(map[string]bool, len(assignments))
	assigned := make(map[string]bool, len(assignments))
	for _, a := range assignments {
		assigned[a.ProviderID] = true
		autoOK[a.ProviderID] = a.CanAutoAssign
	}

	if requested != nil {
		if !assigned[*requested] {
			return nil, fmt.Errorf("provider %s not assigned to template: %w", *requested, response.ErrPolicyViolation)
		}
		return requested, nil
	}

	// Candidates arrive primaries and higher priority first.
	for _, id := range slot.CandidateProviderIDs {
		if autoOK[id] {
			return &id, nil
		}
	}

	return nil, fmt.Errorf("no provider available for auto-assignment: %w", response.ErrPolicyViolation)
}

// Get returns the appointment behind a booking reference.
func (m *Manager) Get(ctx context.Context, tenant, reference string) (*models.Appointment, error) {
	const op = "booking.Manager.Get"

	appt, err := m.store.Scoped(tenant).AppointmentByReference(ctx, reference)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return appt, nil
}

// Cancel flips an active appointment to cancelled. Inside the guard window
// before the start the cancellation is refused.
func (m *Manager) Cancel(ctx context.Context, tenant, reference, by, reason string) (*models.Appointment, error) {
	const op = "booking.Manager.Cancel"

	repo := m.store.Scoped(tenant)
	now := m.now()

	appt, err := repo.AppointmentByReference(ctx, reference)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if !models.CanTransition(appt.Status, models.StatusCancelled) {
		return nil, fmt.Errorf("%s: %w", op, response.ErrConflict)
	}
	if now.Add(m.cfg.GuardWindow).After(appt.Start) {
		return nil, fmt.Errorf("%s: %w", op, response.ErrPolicyViolation)
	}

	if err := repo.MarkCancelled(ctx, reference, now, by, reason); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	metrics.IncBookingCancelled()

	m.log.Info("booking cancelled", slog.String("reference", reference), slog.String("by", by))

	return repo.AppointmentByReference(ctx, reference)
}

// Reschedule moves a confirmed appointment to a new slot. The original row
// stays in the ledger as rescheduled; the replacement is a new appointment
// linked back to it.
func (m *Manager) Reschedule(ctx context.Context, tenant, reference string, newStart time.Time, providerID *string) (*models.Appointment, error) {
	const op = "booking.Manager.Reschedule"

	repo := m.store.Scoped(tenant)
	now := m.now()

	orig, err := repo.AppointmentByReference(ctx, reference)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if !models.CanTransition(orig.Status, models.StatusRescheduled) {
		return nil, fmt.Errorf("%s: %w", op, response.ErrConflict)
	}
	if now.Add(m.cfg.GuardWindow).After(orig.Start) {
		return nil, fmt.Errorf("%s: %w", op, response.ErrPolicyViolation)
	}

	if providerID == nil {
		providerID = orig.ProviderID
	}

	svc, err := repo.Service(ctx, orig.ServiceID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	key := contentionKey(tenant, svc.TemplateID, providerID, newStart)
	ok, err := m.locker.Lock(ctx, key, m.cfg.LockTTL)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if !ok {
		return nil, fmt.Errorf("%s: %w", op, response.ErrLocked)
	}
	defer func() {
		if err := m.locker.Unlock(context.WithoutCancel(ctx), key); err != nil {
			m.log.Error("failed to unlock contention key", sl.Err(err), slog.String("key", key))
		}
	}()

	slot, _, tpl, err := m.quoter.Quote(ctx, tenant, orig.ServiceID, newStart, providerID, now)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if !slot.Available {
		return nil, fmt.Errorf("%s: %w", op, response.ErrConflict)
	}

	providerID, err = m.resolveProvider(ctx, repo, tpl, slot, providerID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	capacity := tpl.MaxConcurrentSlots
	perProvider := providerID != nil
	if perProvider {
		capacity = 1
	}

	replacement := &models.Appointment{
		ID:              uuid.NewString(),
		TenantID:        tenant,
		ServiceID:       orig.ServiceID,
		ProviderID:      providerID,
		Start:           slot.Start,
		End:             slot.End,
		Status:          models.StatusConfirmed,
		Contact:         orig.Contact,
		Notes:           orig.Notes,
		RescheduledFrom: &orig.ID,
		RescheduleCount: orig.RescheduleCount + 1,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	err = m.commit(ctx, func() error {
		return repo.Reschedule(ctx, orig.ID, replacement, tpl.ID, capacity, perProvider)
	}, replacement)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	metrics.IncBookingRescheduled()

	m.log.Info("booking rescheduled",
		slog.String("from", reference),
		slog.String("to", replacement.BookingReference),
		slog.Time("start", replacement.Start),
	)

	return replacement, nil
}

// Complete flips a confirmed appointment that has started to completed.
func (m *Manager) Complete(ctx context.Context, tenant, reference string) (*models.Appointment, error) {
	const op = "booking.Manager.Complete"

	repo := m.store.Scoped(tenant)
	now := m.now()

	appt, err := repo.AppointmentByReference(ctx, reference)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if !models.CanTransition(appt.Status, models.StatusCompleted) {
		return nil, fmt.Errorf("%s: %w", op, response.ErrConflict)
	}
	if now.Before(appt.Start) {
		return nil, fmt.Errorf("%s: %w", op, response.ErrPolicyViolation)
	}

	if err := repo.MarkCompleted(ctx, reference, now); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return repo.AppointmentByReference(ctx, reference)
}

// contentionKey identifies the unit two bookings can race on: the provider
// when one is named, otherwise the whole template, at one start time.
func contentionKey(tenant, templateID string, providerID *string, start time.Time) string {
	owner := templateID
	if providerID != nil {
		owner = *providerID
	}
	return fmt.Sprintf("%s:%s:%s", tenant, owner, start.UTC().Format(time.RFC3339))
}
