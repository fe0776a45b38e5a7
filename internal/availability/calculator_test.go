package availability

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"booking-service/internal/models"
	"booking-service/internal/storage/storagetest"
	"booking-service/pkg/response"
)

const tenant = "clinic-north"

var (
	monday = time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	// Seven o'clock on the day itself: with 4h notice, slots before 11:00
	// are out of reach.
	now = time.Date(2026, 3, 2, 7, 0, 0, 0, time.UTC)
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func poolFixture() *storagetest.Fake {
	f := storagetest.New()

	f.Templates["tpl-1"] = &models.ScheduleTemplate{
		ID:                 "tpl-1",
		Kind:               models.TemplatePool,
		MaxConcurrentSlots: 2,
		Timezone:           "UTC",
		Windows: []models.TemplateWindow{
			{DayOfWeek: 1, StartTime: "08:00", EndTime: "18:00"},
		},
	}
	f.Services["svc-1"] = &models.ServiceDefinition{
		ID:              "svc-1",
		Name:            "consultation",
		TemplateID:      "tpl-1",
		DurationMinutes: 60,
		MinNoticeHours:  4,
		MaxAdvanceDays:  30,
	}

	return f
}

func activeAppt(ref string, providerID *string, start time.Time) *models.Appointment {
	return &models.Appointment{
		ID:               "id-" + ref,
		TenantID:         tenant,
		ServiceID:        "svc-1",
		ProviderID:       providerID,
		Start:            start,
		End:              start.Add(time.Hour),
		Status:           models.StatusConfirmed,
		BookingReference: ref,
	}
}

func slotAt(t *testing.T, day *DayAvailability, hhmm string) *SlotView {
	t.Helper()

	for i := range day.Slots {
		if day.Slots[i].Start.Format("15:04") == hhmm {
			return &day.Slots[i]
		}
	}
	t.Fatalf("no slot at %s (have %d slots)", hhmm, len(day.Slots))
	return nil
}

func TestSlotsMinNoticeFiltersMorning(t *testing.T) {
	f := poolFixture()
	calc := NewCalculator(discardLogger(), f, time.Second)

	day, err := calc.Slots(context.Background(), tenant, "svc-1", monday, nil, now)
	require.NoError(t, err)

	// 08:00..17:00 grid minus everything before 11:00.
	require.Len(t, day.Slots, 7)
	assert.Equal(t, "11:00", day.Slots[0].Start.Format("15:04"))
	assert.Equal(t, "17:00", day.Slots[6].Start.Format("15:04"))
	assert.Equal(t, "weekly_pattern", string(day.Rule))
}

func TestSlotsMaxAdvanceCutsOff(t *testing.T) {
	f := poolFixture()
	calc := NewCalculator(discardLogger(), f, time.Second)

	farMonday := monday.AddDate(0, 0, 7*6) // 42 days out, past the 30-day bound
	day, err := calc.Slots(context.Background(), tenant, "svc-1", farMonday, nil, now)
	require.NoError(t, err)

	assert.Empty(t, day.Slots)
}

func TestSlotsCapacityAnnotation(t *testing.T) {
	f := poolFixture()
	f.Appointments = append(f.Appointments,
		activeAppt("BK-ONE", nil, monday.Add(13*time.Hour)),
		activeAppt("BK-TWO", nil, monday.Add(13*time.Hour)),
		activeAppt("BK-SIX", nil, monday.Add(12*time.Hour)),
	)
	calc := NewCalculator(discardLogger(), f, time.Second)

	day, err := calc.Slots(context.Background(), tenant, "svc-1", monday, nil, now)
	require.NoError(t, err)

	full := slotAt(t, day, "13:00")
	assert.False(t, full.Available)
	assert.Equal(t, 0, full.RemainingCapacity)

	half := slotAt(t, day, "12:00")
	assert.True(t, half.Available)
	assert.Equal(t, 1, half.RemainingCapacity)

	free := slotAt(t, day, "14:00")
	assert.True(t, free.Available)
	assert.Equal(t, 2, free.RemainingCapacity)
}

func TestSlotsCancelledBookingFreesCapacity(t *testing.T) {
	f := poolFixture()
	a := activeAppt("BK-GONE", nil, monday.Add(13*time.Hour))
	a.Status = models.StatusCancelled
	f.Appointments = append(f.Appointments, a)
	calc := NewCalculator(discardLogger(), f, time.Second)

	day, err := calc.Slots(context.Background(), tenant, "svc-1", monday, nil, now)
	require.NoError(t, err)

	assert.Equal(t, 2, slotAt(t, day, "13:00").RemainingCapacity)
}

func TestSlotsNamedProviderHasUnitCapacity(t *testing.T) {
	f := poolFixture()
	p1, p2 := "prov-1", "prov-2"
	f.Appointments = append(f.Appointments,
		activeAppt("BK-ONE", &p1, monday.Add(13*time.Hour)),
		activeAppt("BK-TWO", &p2, monday.Add(14*time.Hour)),
	)
	calc := NewCalculator(discardLogger(), f, time.Second)

	day, err := calc.Slots(context.Background(), tenant, "svc-1", monday, &p1, now)
	require.NoError(t, err)

	// prov-1 is booked at 13:00; prov-2's booking at 14:00 does not count
	// against prov-1.
	assert.False(t, slotAt(t, day, "13:00").Available)
	assert.True(t, slotAt(t, day, "14:00").Available)
	assert.Equal(t, 1, slotAt(t, day, "14:00").RemainingCapacity)
}

func TestSlotsDayCapClosesEverything(t *testing.T) {
	f := poolFixture()
	limit := 1
	f.Services["svc-1"].MaxBookingsPerDay = &limit
	f.Appointments = append(f.Appointments, activeAppt("BK-ONE", nil, monday.Add(13*time.Hour)))
	calc := NewCalculator(discardLogger(), f, time.Second)

	day, err := calc.Slots(context.Background(), tenant, "svc-1", monday, nil, now)
	require.NoError(t, err)

	require.NotEmpty(t, day.Slots)
	for _, s := range day.Slots {
		assert.False(t, s.Available, "slot %v should be unavailable under the day cap", s.Start)
	}
}

func TestSlotsProviderCandidates(t *testing.T) {
	f := poolFixture()
	tpl := f.Templates["tpl-1"]
	tpl.Kind = models.TemplateShared
	tpl.RequiresProviderAssignment = true
	f.AssignmentsByTemplate["tpl-1"] = []models.ProviderAssignment{
		{TemplateID: "tpl-1", ProviderID: "prov-1", IsPrimary: true, CanAutoAssign: true},
		{TemplateID: "tpl-1", ProviderID: "prov-2", Priority: 5, CanAutoAssign: true},
		{TemplateID: "tpl-1", ProviderID: "prov-3", Priority: 1, CanAutoAssign: true},
	}
	f.Leaves = append(f.Leaves, models.ProviderLeave{
		ProviderID: "prov-2",
		StartDate:  monday,
		EndDate:    monday,
		Approved:   true,
	})
	p3 := "prov-3"
	f.Appointments = append(f.Appointments, activeAppt("BK-ONE", &p3, monday.Add(13*time.Hour)))

	calc := NewCalculator(discardLogger(), f, time.Second)

	day, err := calc.Slots(context.Background(), tenant, "svc-1", monday, nil, now)
	require.NoError(t, err)

	// Primary first, then by priority; prov-2 is on leave all day.
	assert.Equal(t, []string{"prov-1", "prov-3"}, slotAt(t, day, "12:00").CandidateProviderIDs)
	// prov-3 is busy at 13:00.
	assert.Equal(t, []string{"prov-1"}, slotAt(t, day, "13:00").CandidateProviderIDs)
}

func TestSlotsNoCandidatesMeansUnavailable(t *testing.T) {
	f := poolFixture()
	f.Templates["tpl-1"].RequiresProviderAssignment = true

	calc := NewCalculator(discardLogger(), f, time.Second)

	day, err := calc.Slots(context.Background(), tenant, "svc-1", monday, nil, now)
	require.NoError(t, err)

	require.NotEmpty(t, day.Slots)
	for _, s := range day.Slots {
		assert.False(t, s.Available)
	}
}

func TestSlotsTemplateOverrideReplacesHours(t *testing.T) {
	f := poolFixture()
	start, end := "12:00", "15:00"
	f.TemplateOverrides[storagetest.OverrideKey("tpl-1", monday)] = &models.DateOverride{
		Scope:       models.ScopeTemplate,
		Date:        monday,
		CustomStart: &start,
		CustomEnd:   &end,
	}
	f.Holidays[monday.Format("2006-01-02")] = &models.Holiday{Date: monday, Name: "Founders Day", IsActive: true}
	calc := NewCalculator(discardLogger(), f, time.Second)

	day, err := calc.Slots(context.Background(), tenant, "svc-1", monday, nil, now)
	require.NoError(t, err)

	// Custom hours replace the weekly pattern and beat the holiday.
	assert.Equal(t, "template_override", string(day.Rule))
	require.Len(t, day.Slots, 3)
	assert.Equal(t, "12:00", day.Slots[0].Start.Format("15:04"))
	assert.Equal(t, "14:00", day.Slots[2].Start.Format("15:04"))
}

func TestSlotsHolidayClosesDay(t *testing.T) {
	f := poolFixture()
	f.Holidays[monday.Format("2006-01-02")] = &models.Holiday{Date: monday, Name: "Founders Day", IsActive: true}
	calc := NewCalculator(discardLogger(), f, time.Second)

	day, err := calc.Slots(context.Background(), tenant, "svc-1", monday, nil, now)
	require.NoError(t, err)

	assert.Empty(t, day.Slots)
	assert.Equal(t, "holiday", string(day.Rule))
}

func TestSlotsFailsClosedOnLookupError(t *testing.T) {
	f := poolFixture()
	f.LookupErr = errors.New("source down")
	calc := NewCalculator(discardLogger(), f, time.Second)

	day, err := calc.Slots(context.Background(), tenant, "svc-1", monday, nil, now)
	require.NoError(t, err)

	assert.Empty(t, day.Slots)
}

func TestSlotsUnknownService(t *testing.T) {
	calc := NewCalculator(discardLogger(), poolFixture(), time.Second)

	_, err := calc.Slots(context.Background(), tenant, "svc-missing", monday, nil, now)
	assert.ErrorIs(t, err, response.ErrNotFound)
}

func TestQuote(t *testing.T) {
	f := poolFixture()
	calc := NewCalculator(discardLogger(), f, time.Second)

	t.Run("valid slot", func(t *testing.T) {
		slot, svc, tpl, err := calc.Quote(context.Background(), tenant, "svc-1", monday.Add(12*time.Hour), nil, now)
		require.NoError(t, err)
		assert.True(t, slot.Available)
		assert.Equal(t, "svc-1", svc.ID)
		assert.Equal(t, "tpl-1", tpl.ID)
	})

	t.Run("inside notice window", func(t *testing.T) {
		_, _, _, err := calc.Quote(context.Background(), tenant, "svc-1", monday.Add(8*time.Hour), nil, now)
		assert.ErrorIs(t, err, response.ErrPolicyViolation)
	})

	t.Run("off-grid start", func(t *testing.T) {
		_, _, _, err := calc.Quote(context.Background(), tenant, "svc-1", monday.Add(12*time.Hour+30*time.Minute), nil, now)
		assert.ErrorIs(t, err, response.ErrConflict)
	})

	t.Run("closed day", func(t *testing.T) {
		sunday := monday.AddDate(0, 0, 6)
		_, _, _, err := calc.Quote(context.Background(), tenant, "svc-1", sunday.Add(12*time.Hour), nil, now)
		assert.ErrorIs(t, err, response.ErrConflict)
	})
}
