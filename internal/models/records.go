// Package models holds the wire-level record types shared by the widget
// core, the HTTP client and the reference backend.
package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"osteria/internal/slot"
)

// Repeat kinds. Only daily repetition is expanded; unknown kinds are
// skipped, never rejected.
const (
	RepeatNone  = ""
	RepeatDaily = "daily"
)

var (
	ErrMissingDate  = errors.New("record has no date")
	ErrMissingHour  = errors.New("record has no hour")
	ErrMissingTable = errors.New("record has no table")
	ErrBadDuration  = errors.New("record has non-positive duration")
)

// TableID identifies a physical table. IDs are compared by canonical
// string form; numeric strings are coerced to their integer form so
// "07" and 7 name the same table, matching the UI's attribute coercion.
type TableID string

// ParseTableID canonicalizes a raw identifier.
func ParseTableID(s string) TableID {
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return TableID(strconv.FormatInt(n, 10))
	}
	return TableID(s)
}

// Numeric reports whether the ID is an integer identifier, and its value.
func (t TableID) Numeric() (int64, bool) {
	n, err := strconv.ParseInt(string(t), 10, 64)
	return n, err == nil
}

// UnmarshalJSON accepts either a JSON number or a string.
func (t *TableID) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*t = ParseTableID(s)
		return nil
	}
	var n int64
	if err := json.Unmarshal(data, &n); err == nil {
		*t = TableID(strconv.FormatInt(n, 10))
		return nil
	}
	return fmt.Errorf("table id %s is neither string nor integer", data)
}

// MarshalJSON renders numeric IDs as JSON numbers, mirroring the
// source collections where tables are plain integers.
func (t TableID) MarshalJSON() ([]byte, error) {
	if n, ok := t.Numeric(); ok {
		return json.Marshal(n)
	}
	return json.Marshal(string(t))
}

// Record is one occupancy fact as it travels on the wire: a persisted
// reservation or a restaurant event. Repeating events carry no date.
type Record struct {
	ID       int64   `json:"id,omitempty"`
	Date     string  `json:"date,omitempty"`
	Hour     string  `json:"hour"`
	Duration float64 `json:"duration"`
	Table    TableID `json:"table"`
	Repeat   string  `json:"repeat,omitempty"`
}

// Interval is a record's occupancy interval resolved to grid units.
type Interval struct {
	Date  slot.DateKey
	Start slot.Tick
	Ticks int
}

// Repeating reports whether the record is a repeating event.
func (r Record) Repeating() bool {
	return r.Repeat != RepeatNone
}

// ResolveInterval validates the record and resolves its occupancy
// interval. Repeating records have no intrinsic date and resolve with
// an empty Date; the expander supplies one per window day.
func (r Record) ResolveInterval() (Interval, error) {
	if r.Table == "" {
		return Interval{}, ErrMissingTable
	}
	if r.Hour == "" {
		return Interval{}, ErrMissingHour
	}
	if r.Duration <= 0 {
		return Interval{}, ErrBadDuration
	}
	start, err := slot.ParseHour(r.Hour)
	if err != nil {
		return Interval{}, err
	}

	iv := Interval{Start: start, Ticks: slot.DurationTicks(r.Duration)}
	if r.Repeating() {
		return iv, nil
	}

	if r.Date == "" {
		return Interval{}, ErrMissingDate
	}
	iv.Date, err = slot.ParseDate(r.Date)
	if err != nil {
		return Interval{}, err
	}
	return iv, nil
}

// Batches groups the three record collections one ingestion pass
// consumes: persisted reservations, current events and repeating
// events.
type Batches struct {
	Bookings      []Record `json:"bookings"`
	EventsCurrent []Record `json:"events_current"`
	EventsRepeat  []Record `json:"events_repeat"`
}

// Reservation is a persisted table reservation: an occupancy record
// plus the guest details collected by the booking form.
type Reservation struct {
	Record
	People     int       `json:"ppl"`
	Starters   []string  `json:"starters,omitempty"`
	Phone      string    `json:"phone"`
	Address    string    `json:"address"`
	ExternalID string    `json:"external_id,omitempty"`
	CreatedAt  time.Time `json:"created_at,omitempty"`
}
