// Package recurrence expands a weekly pattern into concrete booking dates and
// books each occurrence independently.
package recurrence

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"booking-service/internal/booking"
	"booking-service/internal/models"
	"booking-service/pkg/response"
	"booking-service/pkg/sl"
)

// Creator books a single occurrence.
type Creator interface {
	Create(ctx context.Context, tenant string, req booking.CreateRequest) (*models.Appointment, error)
}

// Pattern is a weekly recurrence: the given weekdays (0=Sunday..6=Saturday)
// at the anchor's time of day, for the given number of weeks.
type Pattern struct {
	Anchor   time.Time
	Weekdays []int
	Weeks    int
}

// Occurrence is the outcome of booking one expanded date. Failures carry the
// error; the rest of the series is unaffected.
type Occurrence struct {
	Start       time.Time
	Appointment *models.Appointment
	Err         error
}

// Expand lists the concrete start times of the pattern in chronological
// order. For each weekday, the first occurrence is the next date on or after
// the anchor falling on that weekday.
func Expand(p Pattern) ([]time.Time, error) {
	if p.Weeks <= 0 {
		return nil, fmt.Errorf("weeks must be positive: %w", response.ErrValidation)
	}
	if len(p.Weekdays) == 0 {
		return nil, fmt.Errorf("no weekdays given: %w", response.ErrValidation)
	}

	seen := make(map[int]bool, len(p.Weekdays))
	var out []time.Time

	for _, wd := range p.Weekdays {
		if wd < 0 || wd > 6 {
			return nil, fmt.Errorf("weekday %d out of range: %w", wd, response.ErrValidation)
		}
		if seen[wd] {
			continue
		}
		seen[wd] = true

		daysAhead := wd - int(p.Anchor.Weekday())
		if daysAhead < 0 {
			daysAhead += 7
		}

		for week := 0; week < p.Weeks; week++ {
			out = append(out, p.Anchor.AddDate(0, 0, daysAhead+7*week))
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })

	return out, nil
}

type Expander struct {
	log     *slog.Logger
	creator Creator
}

func NewExpander(log *slog.Logger, creator Creator) *Expander {
	return &Expander{log: log, creator: creator}
}

// Run books every occurrence of the pattern. Each occurrence succeeds or
// fails on its own; a full slot on one date never rolls back the others.
func (e *Expander) Run(ctx context.Context, tenant string, p Pattern, req booking.CreateRequest) ([]Occurrence, error) {
	const op = "recurrence.Expander.Run"

	starts, err := Expand(p)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	out := make([]Occurrence, 0, len(starts))
	for i, start := range starts {
		occReq := req
		occReq.Start = start
		if req.IdempotencyToken != "" {
			occReq.IdempotencyToken = fmt.Sprintf("%s:%d", req.IdempotencyToken, i)
		}

		appt, err := e.creator.Create(ctx, tenant, occReq)
		if err != nil {
			e.log.Warn("recurring occurrence failed", sl.Err(err), slog.Time("start", start))
		}
		out = append(out, Occurrence{Start: start, Appointment: appt, Err: err})
	}

	return out, nil
}
