// Package availability composes the schedule template, date exceptions, slot
// generation and the booking ledger into a capacity-annotated slot list.
package availability

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"booking-service/internal/models"
	"booking-service/internal/schedule"
	"booking-service/internal/slots"
	"booking-service/internal/storage"
	"booking-service/pkg/response"
	"booking-service/pkg/sl"
)

// SlotView is one candidate slot annotated with live capacity.
type SlotView struct {
	Start                time.Time
	End                  time.Time
	Available            bool
	RemainingCapacity    int
	CandidateProviderIDs []string
}

// DayAvailability is the calculator's result for one service/date.
type DayAvailability struct {
	Date       time.Time
	ServiceID  string
	TemplateID string
	Rule       schedule.Rule
	Slots      []SlotView
}

// Calculator derives bookable slots. It never mutates state: the result is a
// pure function of the sources and the supplied clock value, which makes the
// read path safe at any isolation level.
type Calculator struct {
	log   *slog.Logger
	store storage.TenantStore

	// sourceTimeout caps exception lookups; an expired or failed lookup
	// closes the day instead of blocking the booking path.
	sourceTimeout time.Duration
}

func NewCalculator(log *slog.Logger, store storage.TenantStore, sourceTimeout time.Duration) *Calculator {
	return &Calculator{
		log:           log,
		store:         store,
		sourceTimeout: sourceTimeout,
	}
}

// Slots computes the bookable slots of a service on a date. providerID narrows
// counting to one provider (dedicated semantics, capacity 1). now is explicit
// so callers and tests control the notice/advance arithmetic.
func (c *Calculator) Slots(ctx context.Context, tenant, serviceID string, date time.Time, providerID *string, now time.Time) (*DayAvailability, error) {
	const op = "availability.Calculator.Slots"

	repo := c.store.Scoped(tenant)

	svc, err := repo.Service(ctx, serviceID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	tpl, err := repo.Template(ctx, svc.TemplateID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	// Slot arithmetic happens in the template's timezone.
	if loc, locErr := time.LoadLocation(tpl.Timezone); locErr == nil {
		date = time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, loc)
	}

	day := &DayAvailability{Date: date, ServiceID: svc.ID, TemplateID: tpl.ID}

	plan, ok := c.resolveDay(ctx, repo, tpl, date)
	day.Rule = plan.Rule
	if !ok || plan.Closed {
		return day, nil
	}

	candidates := slots.Generate(plan.Windows, svc.Duration(),
		time.Duration(svc.BufferBeforeMinutes)*time.Minute,
		time.Duration(svc.BufferAfterMinutes)*time.Minute)
	candidates = filterByPolicy(candidates, svc, now)
	if len(candidates) == 0 {
		return day, nil
	}

	booked, err := repo.ActiveForTemplateOn(ctx, tpl.ID, date)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	dayCapReached, err := c.dayCapReached(ctx, repo, svc, date)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	assignments, leaves := c.providerPool(ctx, repo, tpl, date)

	for _, slot := range candidates {
		view := SlotView{Start: slot.Start, End: slot.End}

		capacity := tpl.MaxConcurrentSlots
		count := 0
		for _, appt := range booked {
			if !appt.Overlaps(slot.Start, slot.End) {
				continue
			}
			if providerID != nil {
				if appt.ProviderID != nil && *appt.ProviderID == *providerID {
					count++
				}
				continue
			}
			count++
		}
		if providerID != nil {
			// A named provider can serve one appointment at a time.
			capacity = 1
		}

		view.RemainingCapacity = capacity - count
		if view.RemainingCapacity < 0 {
			view.RemainingCapacity = 0
		}
		view.Available = count < capacity && !dayCapReached

		if tpl.RequiresProviderAssignment {
			view.CandidateProviderIDs = eligibleProviders(assignments, leaves, booked, slot, date)
			if providerID == nil && len(view.CandidateProviderIDs) == 0 {
				view.Available = false
			}
		}

		day.Slots = append(day.Slots, view)
	}

	return day, nil
}

// Quote re-derives the validity of one concrete slot. The booking manager
// calls it at commit time under the contention lock, never trusting an
// earlier availability snapshot.
func (c *Calculator) Quote(ctx context.Context, tenant, serviceID string, start time.Time, providerID *string, now time.Time) (*SlotView, *models.ServiceDefinition, *models.ScheduleTemplate, error) {
	const op = "availability.Calculator.Quote"

	svc, err := c.store.Scoped(tenant).Service(ctx, serviceID)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("%s: %w", op, err)
	}

	if violatesPolicy(start, svc, now) {
		return nil, nil, nil, fmt.Errorf("%s: %w", op, response.ErrPolicyViolation)
	}

	date := time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, start.Location())

	day, err := c.Slots(ctx, tenant, serviceID, date, providerID, now)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("%s: %w", op, err)
	}

	tpl, err := c.store.Scoped(tenant).Template(ctx, svc.TemplateID)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("%s: %w", op, err)
	}

	for i := range day.Slots {
		if day.Slots[i].Start.Equal(start) {
			return &day.Slots[i], svc, tpl, nil
		}
	}

	// Closed day, off-grid time, or all slots filtered: nothing to book here.
	return nil, nil, nil, fmt.Errorf("%s: %w", op, response.ErrConflict)
}

// resolveDay looks up the date exceptions under the source timeout and
// resolves precedence. A failed lookup fails closed.
func (c *Calculator) resolveDay(ctx context.Context, repo storage.Repository, tpl *models.ScheduleTemplate, date time.Time) (schedule.DayPlan, bool) {
	lookupCtx := ctx
	if c.sourceTimeout > 0 {
		var cancel context.CancelFunc
		lookupCtx, cancel = context.WithTimeout(ctx, c.sourceTimeout)
		defer cancel()
	}

	var src schedule.DaySources
	var err error

	if src.TemplateOverride, err = repo.TemplateOverride(lookupCtx, tpl.ID, date); err != nil && !errors.Is(err, response.ErrNotFound) {
		c.log.Warn("template override lookup failed, closing day", sl.Err(err), slog.String("template_id", tpl.ID))
		return schedule.DayPlan{Closed: true}, false
	}

	if src.GlobalOverride, err = repo.GlobalOverride(lookupCtx, date); err != nil && !errors.Is(err, response.ErrNotFound) {
		c.log.Warn("global override lookup failed, closing day", sl.Err(err))
		return schedule.DayPlan{Closed: true}, false
	}

	if src.Holiday, err = repo.HolidayOn(lookupCtx, date); err != nil && !errors.Is(err, response.ErrNotFound) {
		c.log.Warn("holiday lookup failed, closing day", sl.Err(err))
		return schedule.DayPlan{Closed: true}, false
	}

	plan, err := schedule.ResolveDay(tpl, src, date)
	if err != nil {
		c.log.Warn("day resolution failed, closing day", sl.Err(err), slog.String("template_id", tpl.ID))
		return schedule.DayPlan{Closed: true}, false
	}

	return plan, true
}

func (c *Calculator) dayCapReached(ctx context.Context, repo storage.Repository, svc *models.ServiceDefinition, date time.Time) (bool, error) {
	if svc.MaxBookingsPerDay == nil {
		return false, nil
	}

	n, err := repo.CountActiveForServiceOn(ctx, svc.ID, date)
	if err != nil {
		return false, err
	}

	return n >= *svc.MaxBookingsPerDay, nil
}

// providerPool loads assignments and leave under the source timeout. Failure
// yields an empty pool, which renders assignment-requiring slots unavailable.
func (c *Calculator) providerPool(ctx context.Context, repo storage.Repository, tpl *models.ScheduleTemplate, date time.Time) ([]models.ProviderAssignment, []models.ProviderLeave) {
	if !tpl.RequiresProviderAssignment {
		return nil, nil
	}

	lookupCtx := ctx
	if c.sourceTimeout > 0 {
		var cancel context.CancelFunc
		lookupCtx, cancel = context.WithTimeout(ctx, c.sourceTimeout)
		defer cancel()
	}

	assignments, err := repo.Assignments(lookupCtx, tpl.ID)
	if err != nil {
		c.log.Warn("assignment lookup failed, treating pool as empty", sl.Err(err), slog.String("template_id", tpl.ID))
		return nil, nil
	}

	leaves, err := repo.LeavesOn(lookupCtx, date)
	if err != nil {
		c.log.Warn("leave lookup failed, treating pool as empty", sl.Err(err))
		return nil, nil
	}

	return assignments, leaves
}

// eligibleProviders returns assigned providers who are not on leave and have
// no active appointment overlapping the slot, primaries and higher priority
// first.
func eligibleProviders(assignments []models.ProviderAssignment, leaves []models.ProviderLeave, booked []models.Appointment, slot slots.Slot, date time.Time) []string {
	onLeave := make(map[string]bool, len(leaves))
	for _, l := range leaves {
		if l.Covers(date) {
			onLeave[l.ProviderID] = true
		}
	}

	busy := make(map[string]bool)
	for _, appt := range booked {
		if appt.ProviderID != nil && appt.Overlaps(slot.Start, slot.End) {
			busy[*appt.ProviderID] = true
		}
	}

	eligible := make([]models.ProviderAssignment, 0, len(assignments))
	for _, a := range assignments {
		if onLeave[a.ProviderID] || busy[a.ProviderID] {
			continue
		}
		eligible = append(eligible, a)
	}

	sort.SliceStable(eligible, func(i, j int) bool {
		if eligible[i].IsPrimary != eligible[j].IsPrimary {
			return eligible[i].IsPrimary
		}
		if eligible[i].Priority != eligible[j].Priority {
			return eligible[i].Priority > eligible[j].Priority
		}
		return eligible[i].ProviderID < eligible[j].ProviderID
	})

	ids := make([]string, 0, len(eligible))
	for _, a := range eligible {
		ids = append(ids, a.ProviderID)
	}

	return ids
}

func filterByPolicy(candidates []slots.Slot, svc *models.ServiceDefinition, now time.Time) []slots.Slot {
	out := candidates[:0]
	for _, s := range candidates {
		if !violatesPolicy(s.Start, svc, now) {
			out = append(out, s)
		}
	}
	return out
}

// violatesPolicy checks the min-notice / max-advance bounds for a start time.
func violatesPolicy(start time.Time, svc *models.ServiceDefinition, now time.Time) bool {
	earliest := now.Add(time.Duration(svc.MinNoticeHours) * time.Hour)
	if start.Before(earliest) {
		return true
	}

	if svc.MaxAdvanceDays > 0 {
		latest := now.AddDate(0, 0, svc.MaxAdvanceDays)
		if start.After(latest) {
			return true
		}
	}

	return false
}
