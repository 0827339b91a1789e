package calendar

import (
    "fmt"
    "strings"
)

const (
    minutesPerHour = 60
    minutesPerWorkDay = 480
    minutesPerWorkWeek = 5 * minutesPerWorkDay
)

// FormatWorkingMinutes renders working minutes as a human period, in units
// of working weeks (5 days), working days (8 hours), hours and minutes.
// Exact single units carry the expansion, e.g. "1 working day (8 hours)".
func FormatWorkingMinutes(minutes int) string {
    if minutes <= 0 { return "0 minutes" }

    weeks := minutes / minutesPerWorkWeek
    rem := minutes % minutesPerWorkWeek
    days := rem / minutesPerWorkDay
    rem = rem % minutesPerWorkDay
    hours := rem / minutesPerHour
    mins := rem % minutesPerHour

    var parts []string
    if weeks > 0 {
        if weeks == 1 && rem == 0 && days == 0 {
            return "1 working week (5 days)"
        }
        parts = append(parts, plural(weeks, "working week"))
    }
    if days > 0 {
        if weeks == 0 && days == 1 && rem == 0 {
            return "1 working day (8 hours)"
        }
        parts = append(parts, plural(days, "working day"))
    }
    if hours > 0 { parts = append(parts, plural(hours, "hour")) }
    if mins > 0 { parts = append(parts, plural(mins, "minute")) }
    if len(parts) == 0 { return "0 minutes" }
    return strings.Join(parts, " ")
}

func plural(n int, unit string) string {
    if n == 1 { return fmt.Sprintf("1 %s", unit) }
    return fmt.Sprintf("%d %ss", n, unit)
}
