package layout

import (
	"strings"
	"time"

	"famcal/internal/model"
)

// holidayMarker identifies holiday feeds by calendar ID substring.
const holidayMarker = "holiday"

// DayCell is one fully rendered grid cell: the day descriptor, its ordered
// events and the weather entry, if any.
type DayCell struct {
	Day

	IsToday   bool `json:"isToday"`
	IsHoliday bool `json:"isHoliday"`

	Weather *model.WeatherDay `json:"weather,omitempty"`
	Events  []EventView       `json:"events"`
}

// Grid is the rendered rolling calendar.
type Grid struct {
	Weeks [][]DayCell `json:"weeks"`
}

// BuildGrid lays the event list and weather map out on a weekCount×7 grid
// anchored at now's week. It is pure: the same inputs always produce the
// same grid, and nothing is retained between renders.
func BuildGrid(now time.Time, weekCount int, ws WeekStart, events []model.Event, weather map[string]model.WeatherDay) Grid {
	weeks := BuildWeeks(now, weekCount, ws)
	buckets := BucketByDay(events)
	todayKey := DateKey(now)

	out := make([][]DayCell, 0, len(weeks))
	for _, week := range weeks {
		cells := make([]DayCell, 0, len(week))
		for _, day := range week {
			views := DayEvents(buckets, day.DateKey, day.WeekdayIndex == 0)

			cell := DayCell{
				Day:     day,
				IsToday: day.DateKey == todayKey,
				Events:  views,
			}
			for _, v := range views {
				if strings.Contains(v.SourceID, holidayMarker) {
					cell.IsHoliday = true
					break
				}
			}
			if w, ok := weather[day.DateKey]; ok {
				entry := w
				cell.Weather = &entry
			}
			cells = append(cells, cell)
		}
		out = append(out, cells)
	}

	return Grid{Weeks: out}
}
