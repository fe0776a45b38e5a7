package slots

import (
	"testing"
	"time"
)

var day = time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC) // a Monday

func window(t *testing.T, start, end string) Window {
	t.Helper()

	w, err := WindowOnDate(day, start, end)
	if err != nil {
		t.Fatalf("WindowOnDate(%s, %s): %v", start, end, err)
	}
	return w
}

func at(t *testing.T, hhmm string) time.Time {
	t.Helper()

	ts, err := ParseTimeOnDate(day, hhmm)
	if err != nil {
		t.Fatalf("ParseTimeOnDate(%s): %v", hhmm, err)
	}
	return ts
}

func TestGenerate(t *testing.T) {
	cases := []struct {
		name       string
		windows    []Window
		duration   time.Duration
		bufBefore  time.Duration
		bufAfter   time.Duration
		wantStarts []string
	}{
		{
			name:       "hour slots fill the window",
			windows:    []Window{window(t, "09:00", "12:00")},
			duration:   time.Hour,
			wantStarts: []string{"09:00", "10:00", "11:00"},
		},
		{
			name:       "trailing remainder shorter than a slot is dropped",
			windows:    []Window{window(t, "09:00", "10:30")},
			duration:   time.Hour,
			wantStarts: []string{"09:00"},
		},
		{
			name:       "buffers consume window but not slot duration",
			windows:    []Window{window(t, "09:00", "12:00")},
			duration:   50 * time.Minute,
			bufBefore:  5 * time.Minute,
			bufAfter:   5 * time.Minute,
			wantStarts: []string{"09:05", "10:05", "11:05"},
		},
		{
			name:       "windows are not merged across a gap",
			windows:    []Window{window(t, "09:00", "11:00"), window(t, "13:00", "15:00")},
			duration:   time.Hour,
			wantStarts: []string{"09:00", "10:00", "13:00", "14:00"},
		},
		{
			name:       "window shorter than the block yields nothing",
			windows:    []Window{window(t, "09:00", "09:45")},
			duration:   40 * time.Minute,
			bufBefore:  5 * time.Minute,
			bufAfter:   5 * time.Minute,
			wantStarts: nil,
		},
		{
			name:       "zero duration yields nothing",
			windows:    []Window{window(t, "09:00", "12:00")},
			duration:   0,
			wantStarts: nil,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Generate(tc.windows, tc.duration, tc.bufBefore, tc.bufAfter)

			if len(got) != len(tc.wantStarts) {
				t.Fatalf("got %d slots, want %d", len(got), len(tc.wantStarts))
			}

			for i, s := range got {
				want := at(t, tc.wantStarts[i])
				if !s.Start.Equal(want) {
					t.Errorf("slot %d starts at %v, want %v", i, s.Start, want)
				}
				if !s.End.Equal(s.Start.Add(tc.duration)) {
					t.Errorf("slot %d ends at %v, want %v", i, s.End, s.Start.Add(tc.duration))
				}
			}
		})
	}
}

func TestGenerateSorted(t *testing.T) {
	got := Generate([]Window{window(t, "13:00", "15:00"), window(t, "09:00", "11:00")}, time.Hour, 0, 0)

	for i := 1; i < len(got); i++ {
		if got[i].Start.Before(got[i-1].Start) {
			t.Fatalf("slots out of order at %d: %v before %v", i, got[i].Start, got[i-1].Start)
		}
	}
}

func TestParseTimeOnDate(t *testing.T) {
	if _, err := ParseTimeOnDate(day, "25:00"); err == nil {
		t.Error("expected error for hour out of range")
	}
	if _, err := ParseTimeOnDate(day, "0900"); err == nil {
		t.Error("expected error for missing separator")
	}

	ts, err := ParseTimeOnDate(day, "08:30")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ts.Hour() != 8 || ts.Minute() != 30 {
		t.Errorf("got %v, want 08:30 on %v", ts, day)
	}
}

func TestWindowOnDateRejectsInverted(t *testing.T) {
	if _, err := WindowOnDate(day, "12:00", "09:00"); err == nil {
		t.Error("expected error for end before start")
	}
}
