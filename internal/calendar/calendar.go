/* Copyright (c) 2025 JiraCounter authors
 * SPDX-License-Identifier: BSD-3-Clause */

// Package calendar answers "how many working minutes lie between two
// instants" under a business calendar. A Clock is immutable after
// construction and safe for concurrent use.
package calendar

import (
    "time"

    "github.com/AndrzejSwistowski/jiracounter/internal/config"
)

type Clock struct {
    startHour int
    endHour   int
    weekdays  map[time.Weekday]bool
    extra     map[string]bool
}

func NewClock(cfg config.CalendarConfig) *Clock {
    extra := map[string]bool{}
    for _, d := range cfg.ExtraHolidays { extra[d] = true }
    return &Clock{
        startHour: cfg.WorkStartHour,
        endHour:   cfg.WorkEndHour,
        weekdays:  cfg.WeekdaySet(),
        extra:     extra,
    }
}

// MinutesPerDay is the capacity of one full working day.
func (c *Clock) MinutesPerDay() int { return (c.endHour - c.startHour) * 60 }

// IsHoliday reports whether the date of t is a public holiday or one of the
// configured extra holidays. The table is computed per year, no lookups
// outside the process.
func (c *Clock) IsHoliday(t time.Time) bool {
    if c.extra[t.Format("2006-01-02")] { return true }
    return isPolishHoliday(t)
}

// IsWorkingDay = configured weekday and not a holiday.
func (c *Clock) IsWorkingDay(t time.Time) bool {
    return c.weekdays[t.Weekday()] && !c.IsHoliday(t)
}

// WorkingMinutesBetween counts whole working minutes from start to end.
// Never negative. When both instants fall on the same calendar date the
// raw minute difference is returned with no working-hours, weekend, or
// holiday restriction: same-day work counts fully no matter when it
// happened. Multi-day spans count only minutes inside the work window on
// working days, clipping the first and last day to the window.
func (c *Clock) WorkingMinutesBetween(start, end time.Time) int {
    if end.Before(start) { return 0 }
    end = end.In(start.Location())

    if sameDate(start, end) {
        return int(end.Sub(start).Minutes())
    }

    total := 0
    loc := start.Location()
    lastY, lastM, lastD := end.Date()
    lastDate := time.Date(lastY, lastM, lastD, 0, 0, 0, 0, loc)
    y, m, d := start.Date()
    for day := time.Date(y, m, d, 0, 0, 0, 0, loc); !day.After(lastDate); day = day.AddDate(0, 0, 1) {
        if !c.IsWorkingDay(day) { continue }
        winStart := time.Date(day.Year(), day.Month(), day.Day(), c.startHour, 0, 0, 0, loc)
        winEnd := time.Date(day.Year(), day.Month(), day.Day(), c.endHour, 0, 0, 0, loc)
        s := winStart
        if start.After(winStart) { s = start }
        e := winEnd
        if end.Before(winEnd) { e = end }
        if e.After(s) { total += int(e.Sub(s).Minutes()) }
    }
    return total
}

// WorkingMinutesSince counts working minutes from t to asOf.
func (c *Clock) WorkingMinutesSince(t, asOf time.Time) int {
    return c.WorkingMinutesBetween(t, asOf)
}

// WorkingDays converts working minutes to whole working days.
func (c *Clock) WorkingDays(minutes int) int {
    if minutes <= 0 { return 0 }
    return minutes / c.MinutesPerDay()
}

func sameDate(a, b time.Time) bool {
    y1, m1, d1 := a.Date()
    y2, m2, d2 := b.Date()
    return y1 == y2 && m1 == m2 && d1 == d2
}
