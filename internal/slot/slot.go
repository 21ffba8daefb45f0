// Package slot defines the (date, half-hour) coordinates of the occupancy grid.
package slot

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	// DateLayout is the canonical calendar-date form used throughout the system.
	DateLayout = "2006-01-02"

	// TicksPerHour is the number of grid ticks in one hour.
	TicksPerHour = 2

	// TicksPerDay is the number of grid ticks in one day.
	TicksPerDay = 24 * TicksPerHour
)

// DateKey is a calendar date in YYYY-MM-DD form. The string form sorts
// in calendar order, so DateKey values compare directly.
type DateKey string

// ParseDate validates and canonicalizes a YYYY-MM-DD date string.
func ParseDate(s string) (DateKey, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return "", fmt.Errorf("invalid date %q: %w", s, err)
	}
	return DateKey(t.Format(DateLayout)), nil
}

// DateOf converts a time.Time to its DateKey.
func DateOf(t time.Time) DateKey {
	return DateKey(t.Format(DateLayout))
}

// Time returns the midnight time.Time for the date in UTC.
func (d DateKey) Time() time.Time {
	t, _ := time.Parse(DateLayout, string(d))
	return t
}

// Next returns the following calendar day.
func (d DateKey) Next() DateKey {
	return DateOf(d.Time().AddDate(0, 0, 1))
}

// Tick is a half-hour index since midnight, domain 0..47. Integer tick
// arithmetic replaces fractional-hour stepping so interval loops
// terminate exactly and slot equality is exact.
type Tick int

// ParseHour converts an "HH:MM" string to the tick of the half hour
// containing it (floor-to-half-hour).
func ParseHour(s string) (Tick, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 2 {
		return 0, fmt.Errorf("invalid hour format: %q", s)
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, fmt.Errorf("invalid hour in %q: %w", s, err)
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, fmt.Errorf("invalid minute in %q: %w", s, err)
	}
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return 0, fmt.Errorf("hour %q out of range", s)
	}
	return Tick(hour*TicksPerHour + minute/30), nil
}

// TickFromHours converts a fractional hour count (e.g. 18.5) to a tick,
// flooring to the half hour.
func TickFromHours(hours float64) Tick {
	return Tick(int(hours * TicksPerHour))
}

// Hours returns the tick as fractional hours, the form the JSON
// boundary and the hour picker speak.
func (t Tick) Hours() float64 {
	return float64(t) / TicksPerHour
}

// String formats the tick as "HH:MM".
func (t Tick) String() string {
	return fmt.Sprintf("%02d:%02d", int(t)/TicksPerHour, (int(t)%TicksPerHour)*30)
}

// Valid reports whether the tick lies inside a single day.
func (t Tick) Valid() bool {
	return t >= 0 && t < TicksPerDay
}

// DurationTicks converts a duration in whole or half hours to grid
// ticks, flooring odd fractions to the half hour.
func DurationTicks(hours float64) int {
	return int(hours * TicksPerHour)
}

// Key is one (date, half-hour) coordinate in the occupancy grid.
type Key struct {
	Date DateKey
	Tick Tick
}

// Window is an inclusive calendar-date range supplied by the date-range
// collaborator.
type Window struct {
	Min DateKey
	Max DateKey
}

// Contains reports whether the date falls inside the window.
func (w Window) Contains(d DateKey) bool {
	return d >= w.Min && d <= w.Max
}

// Days returns every calendar day from Min to Max inclusive. An
// inverted window yields nothing.
func (w Window) Days() []DateKey {
	var days []DateKey
	for d := w.Min; d <= w.Max; d = d.Next() {
		days = append(days, d)
	}
	return days
}

// Len returns the number of days in the window, zero when inverted.
func (w Window) Len() int {
	if w.Min > w.Max {
		return 0
	}
	return int(w.Max.Time().Sub(w.Min.Time()).Hours()/24) + 1
}
