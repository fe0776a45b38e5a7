package recurrence

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"booking-service/internal/booking"
	"booking-service/internal/models"
	"booking-service/pkg/response"
)

var anchor = time.Date(2026, 3, 2, 14, 0, 0, 0, time.UTC) // Monday 14:00

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestExpandMondayAnchor(t *testing.T) {
	// Monday and Wednesday for three weeks from a Monday anchor.
	starts, err := Expand(Pattern{Anchor: anchor, Weekdays: []int{1, 3}, Weeks: 3})
	require.NoError(t, err)

	require.Len(t, starts, 6)

	want := []time.Time{
		anchor,                  // Mon Mar 2
		anchor.AddDate(0, 0, 2), // Wed Mar 4
		anchor.AddDate(0, 0, 7),
		anchor.AddDate(0, 0, 9),
		anchor.AddDate(0, 0, 14),
		anchor.AddDate(0, 0, 16),
	}
	for i, w := range want {
		assert.True(t, starts[i].Equal(w), "occurrence %d: got %v, want %v", i, starts[i], w)
	}
}

func TestExpandWeekdayBeforeAnchor(t *testing.T) {
	// Sunday (0) from a Monday anchor lands on the following Sunday, not the
	// day before.
	starts, err := Expand(Pattern{Anchor: anchor, Weekdays: []int{0}, Weeks: 1})
	require.NoError(t, err)

	require.Len(t, starts, 1)
	assert.Equal(t, time.Sunday, starts[0].Weekday())
	assert.True(t, starts[0].Equal(anchor.AddDate(0, 0, 6)))
}

func TestExpandKeepsTimeOfDay(t *testing.T) {
	starts, err := Expand(Pattern{Anchor: anchor, Weekdays: []int{3}, Weeks: 2})
	require.NoError(t, err)

	for _, s := range starts {
		assert.Equal(t, 14, s.Hour())
		assert.Equal(t, 0, s.Minute())
	}
}

func TestExpandDeduplicatesWeekdays(t *testing.T) {
	starts, err := Expand(Pattern{Anchor: anchor, Weekdays: []int{1, 1, 1}, Weeks: 2})
	require.NoError(t, err)

	assert.Len(t, starts, 2)
}

func TestExpandValidation(t *testing.T) {
	_, err := Expand(Pattern{Anchor: anchor, Weekdays: []int{1}, Weeks: 0})
	assert.ErrorIs(t, err, response.ErrValidation)

	_, err = Expand(Pattern{Anchor: anchor, Weekdays: nil, Weeks: 2})
	assert.ErrorIs(t, err, response.ErrValidation)

	_, err = Expand(Pattern{Anchor: anchor, Weekdays: []int{7}, Weeks: 2})
	assert.ErrorIs(t, err, response.ErrValidation)
}

type fakeCreator struct {
	failAt time.Time
	calls  []booking.CreateRequest
}

func (f *fakeCreator) Create(_ context.Context, _ string, req booking.CreateRequest) (*models.Appointment, error) {
	f.calls = append(f.calls, req)
	if req.Start.Equal(f.failAt) {
		return nil, response.ErrConflict
	}
	return &models.Appointment{
		ID:               "id-" + req.Start.Format("0102"),
		ServiceID:        req.ServiceID,
		Start:            req.Start,
		End:              req.Start.Add(time.Hour),
		Status:           models.StatusConfirmed,
		BookingReference: "BK-" + req.Start.Format("0102"),
	}, nil
}

func TestRunPartialFailure(t *testing.T) {
	creator := &fakeCreator{failAt: anchor.AddDate(0, 0, 7)}
	exp := NewExpander(discardLogger(), creator)

	occ, err := exp.Run(context.Background(), "clinic-north", Pattern{
		Anchor:   anchor,
		Weekdays: []int{1},
		Weeks:    3,
	}, booking.CreateRequest{ServiceID: "svc-1"})
	require.NoError(t, err)

	require.Len(t, occ, 3)
	assert.NoError(t, occ[0].Err)
	assert.ErrorIs(t, occ[1].Err, response.ErrConflict)
	assert.Nil(t, occ[1].Appointment)
	assert.NoError(t, occ[2].Err, "a full slot on one date must not stop later occurrences")
}

func TestRunDerivesPerOccurrenceTokens(t *testing.T) {
	creator := &fakeCreator{}
	exp := NewExpander(discardLogger(), creator)

	_, err := exp.Run(context.Background(), "clinic-north", Pattern{
		Anchor:   anchor,
		Weekdays: []int{1},
		Weeks:    2,
	}, booking.CreateRequest{ServiceID: "svc-1", IdempotencyToken: "tok"})
	require.NoError(t, err)

	require.Len(t, creator.calls, 2)
	assert.Equal(t, "tok:0", creator.calls[0].IdempotencyToken)
	assert.Equal(t, "tok:1", creator.calls[1].IdempotencyToken)
	assert.NotEqual(t, creator.calls[0].Start, creator.calls[1].Start)
}
