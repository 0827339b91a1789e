package calendar

import "time"

// isPolishHoliday reports whether the date of t is a Polish public holiday.
// Fixed dates plus the Easter-derived ones (Easter Monday, Corpus Christi),
// computed per year.
func isPolishHoliday(t time.Time) bool {
    _, m, d := t.Date()
    switch {
    case m == time.January && (d == 1 || d == 6): // New Year, Epiphany
        return true
    case m == time.May && (d == 1 || d == 3): // Labour Day, Constitution Day
        return true
    case m == time.August && d == 15: // Assumption Day
        return true
    case m == time.November && (d == 1 || d == 11): // All Saints, Independence Day
        return true
    case m == time.December && (d == 25 || d == 26): // Christmas, Boxing Day
        return true
    }
    easter := easterSunday(t.Year())
    for _, offset := range []int{0, 1, 60} { // Easter Sunday, Easter Monday, Corpus Christi
        h := easter.AddDate(0, 0, offset)
        if h.Month() == m && h.Day() == d { return true }
    }
    return false
}

// easterSunday computes Gregorian Easter via the anonymous computus.
func easterSunday(year int) time.Time {
    a := year % 19
    b := year / 100
    c := year % 100
    d := b / 4
    e := b % 4
    f := (b + 8) / 25
    g := (b - f + 1) / 3
    h := (19*a + b - d - g + 15) % 30
    i := c / 4
    k := c % 4
    l := (32 + 2*e + 2*i - h - k) % 7
    m := (a + 11*h + 22*l) / 451
    month := (h + l - 7*m + 114) / 31
    day := (h+l-7*m+114)%31 + 1
    return time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
}
