package layout

import (
	"fmt"
	"time"
)

// WeekStart selects which weekday occupies the first grid column.
type WeekStart int

const (
	WeekStartSunday WeekStart = iota
	WeekStartMonday
)

// ParseWeekStart maps the config week_start value to a WeekStart.
// Unknown values fall back to Sunday.
func ParseWeekStart(s string) WeekStart {
	if s == "monday" {
		return WeekStartMonday
	}
	return WeekStartSunday
}

// Day is one cell descriptor of the week grid. Descriptors are produced
// fresh per render and never persisted.
type Day struct {
	// DateKey is the canonical YYYY-MM-DD bucketing key, derived from
	// local calendar components.
	DateKey string `json:"dateKey"`

	Year  int `json:"year"`
	Month int `json:"month"`
	// DayOfMonth is the day number shown in the cell header.
	DayOfMonth int `json:"day"`

	// WeekdayIndex is the column index, 0 = configured week start.
	WeekdayIndex int `json:"weekdayIndex"`

	IsSunday   bool `json:"isSunday"`
	IsSaturday bool `json:"isSaturday"`
	IsWeekend  bool `json:"isWeekend"`
}

// DateKey formats t's local calendar date as YYYY-MM-DD. The key is built
// from calendar components, never from a UTC-shifted string conversion, so
// events near midnight stay on the right day.
func DateKey(t time.Time) string {
	y, m, d := t.Date()
	return fmt.Sprintf("%04d-%02d-%02d", y, int(m), d)
}

// BuildWeeks produces weekCount consecutive weeks of 7 day descriptors,
// starting at the beginning of the week containing anchor. Pure and
// deterministic.
func BuildWeeks(anchor time.Time, weekCount int, ws WeekStart) [][]Day {
	if weekCount <= 0 {
		return nil
	}

	offset := int(anchor.Weekday())
	if ws == WeekStartMonday {
		offset = (offset + 6) % 7
	}

	y, m, d := anchor.Date()
	// time.Date normalizes out-of-range days, carrying month and year.
	current := time.Date(y, m, d-offset, 0, 0, 0, 0, anchor.Location())

	weeks := make([][]Day, 0, weekCount)
	for w := 0; w < weekCount; w++ {
		days := make([]Day, 0, 7)
		for i := 0; i < 7; i++ {
			cy, cm, cd := current.Date()
			wd := current.Weekday()
			days = append(days, Day{
				DateKey:      DateKey(current),
				Year:         cy,
				Month:        int(cm),
				DayOfMonth:   cd,
				WeekdayIndex: i,
				IsSunday:     wd == time.Sunday,
				IsSaturday:   wd == time.Saturday,
				IsWeekend:    wd == time.Sunday || wd == time.Saturday,
			})
			current = time.Date(cy, cm, cd+1, 0, 0, 0, 0, current.Location())
		}
		weeks = append(weeks, days)
	}

	return weeks
}
