// Package schedule decides which working windows apply to a template on a
// concrete date, folding date overrides and holidays into the weekly pattern.
package schedule

import (
	"fmt"
	"time"

	"booking-service/internal/models"
	"booking-service/internal/slots"
)

// Rule names which layer decided the day plan.
type Rule string

const (
	RuleTemplateOverride Rule = "template_override"
	RuleGlobalOverride   Rule = "global_override"
	RuleHoliday          Rule = "holiday"
	RuleWeeklyPattern    Rule = "weekly_pattern"
)

// DayPlan is the resolved working plan for one template on one date.
type DayPlan struct {
	Windows []slots.Window
	Closed  bool
	Rule    Rule
	Reason  string
}

// DaySources carries the date-specific exceptions looked up for a date.
// Either override pointer may be nil; Holiday is nil when the date is not a
// holiday.
type DaySources struct {
	TemplateOverride *models.DateOverride
	GlobalOverride   *models.DateOverride
	Holiday          *models.Holiday
}

// ResolveDay applies the fixed precedence: a template-scoped override beats a
// global override, which beats a holiday, which beats the template's weekly
// windows. An unavailable override closes the day regardless of holiday
// status; custom hours replace (not extend) the weekly windows.
func ResolveDay(tpl *models.ScheduleTemplate, src DaySources, date time.Time) (DayPlan, error) {
	if ov := src.TemplateOverride; ov != nil {
		return overridePlan(ov, RuleTemplateOverride, date)
	}

	if ov := src.GlobalOverride; ov != nil {
		return overridePlan(ov, RuleGlobalOverride, date)
	}

	if h := src.Holiday; h != nil && h.IsActive {
		return DayPlan{Closed: true, Rule: RuleHoliday, Reason: h.Name}, nil
	}

	windows, err := weeklyWindows(tpl, date)
	if err != nil {
		return DayPlan{}, err
	}

	return DayPlan{Windows: windows, Closed: len(windows) == 0, Rule: RuleWeeklyPattern}, nil
}

func overridePlan(ov *models.DateOverride, rule Rule, date time.Time) (DayPlan, error) {
	if ov.IsUnavailable {
		return DayPlan{Closed: true, Rule: rule, Reason: ov.Reason}, nil
	}

	if ov.CustomStart == nil || ov.CustomEnd == nil {
		// Override row without hours carries no schedule change.
		return DayPlan{Closed: true, Rule: rule, Reason: "override without custom hours"}, nil
	}

	w, err := slots.WindowOnDate(date, *ov.CustomStart, *ov.CustomEnd)
	if err != nil {
		return DayPlan{}, fmt.Errorf("override custom hours: %w", err)
	}

	return DayPlan{Windows: []slots.Window{w}, Rule: rule, Reason: ov.Reason}, nil
}

func weeklyWindows(tpl *models.ScheduleTemplate, date time.Time) ([]slots.Window, error) {
	weekday := int(date.Weekday()) // 0=Sunday, matching stored day_of_week

	var windows []slots.Window
	for _, tw := range tpl.Windows {
		if tw.DayOfWeek != weekday {
			continue
		}

		w, err := slots.WindowOnDate(date, tw.StartTime, tw.EndTime)
		if err != nil {
			return nil, fmt.Errorf("template %s window: %w", tpl.ID, err)
		}

		windows = append(windows, w)
	}

	return windows, nil
}
