// Package slots expands working windows into fixed-duration candidate
// appointment start times. Generation is pure: no clock, no store.
package slots

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Window is a contiguous working interval on a single date.
type Window struct {
	Start time.Time
	End   time.Time
}

// Slot is one candidate appointment. Start/End cover the service itself;
// the buffers around it are consumed from the window but not exposed.
type Slot struct {
	Start time.Time
	End   time.Time
}

// Generate expands each window independently into slots of the given service
// duration, reserving bufBefore/bufAfter around every appointment. Windows
// shorter than bufBefore+duration+bufAfter yield nothing. Windows are never
// merged: a lunch gap between two windows stays a gap.
func Generate(windows []Window, duration, bufBefore, bufAfter time.Duration) []Slot {
	if duration <= 0 {
		return nil
	}

	block := bufBefore + duration + bufAfter

	var out []Slot
	for _, w := range windows {
		if !w.End.After(w.Start) {
			continue
		}
		for cursor := w.Start; !cursor.Add(block).After(w.End); cursor = cursor.Add(block) {
			start := cursor.Add(bufBefore)
			out = append(out, Slot{Start: start, End: start.Add(duration)})
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })

	return out
}

// ParseTimeOnDate resolves "HH:MM" onto the given date in its location.
func ParseTimeOnDate(date time.Time, timeStr string) (time.Time, error) {
	parts := strings.Split(timeStr, ":")
	if len(parts) < 2 {
		return time.Time{}, fmt.Errorf("invalid time format: %s", timeStr)
	}

	hour, err := strconv.Atoi(parts[0])
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid hour: %w", err)
	}

	minute, err := strconv.Atoi(parts[1])
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid minute: %w", err)
	}

	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return time.Time{}, fmt.Errorf("time out of range: %s", timeStr)
	}

	return time.Date(date.Year(), date.Month(), date.Day(), hour, minute, 0, 0, date.Location()), nil
}

// WindowOnDate builds a Window from "HH:MM" bounds on the given date.
func WindowOnDate(date time.Time, startStr, endStr string) (Window, error) {
	start, err := ParseTimeOnDate(date, startStr)
	if err != nil {
		return Window{}, fmt.Errorf("parse start: %w", err)
	}

	end, err := ParseTimeOnDate(date, endStr)
	if err != nil {
		return Window{}, fmt.Errorf("parse end: %w", err)
	}

	if !end.After(start) {
		return Window{}, fmt.Errorf("window end %s not after start %s", endStr, startStr)
	}

	return Window{Start: start, End: end}, nil
}
