package layout

import (
	"reflect"
	"testing"
	"time"

	"famcal/internal/model"
)

func TestBuildGridShapeAndWeather(t *testing.T) {
	now := dt(2024, time.June, 12, 14, 30)
	events := []model.Event{
		{ID: "e1", Start: dt(2024, time.June, 12, 9, 0), End: dt(2024, time.June, 12, 10, 0)},
	}
	weather := map[string]model.WeatherDay{
		"2024-06-12": {DateKey: "2024-06-12", Weather: "晴れ", Code: "100", Emoji: "☀️"},
	}

	grid := BuildGrid(now, 4, WeekStartSunday, events, weather)

	if len(grid.Weeks) != 4 {
		t.Fatalf("expected 4 weeks, got %d", len(grid.Weeks))
	}

	var today *DayCell
	withWeather := 0
	for i := range grid.Weeks {
		for j := range grid.Weeks[i] {
			cell := &grid.Weeks[i][j]
			if cell.IsToday {
				today = cell
			}
			if cell.Weather != nil {
				withWeather++
			}
		}
	}

	if today == nil || today.DateKey != "2024-06-12" {
		t.Fatalf("today cell not marked")
	}
	if len(today.Events) != 1 || today.Events[0].ID != "e1" {
		t.Errorf("today's event missing: %+v", today.Events)
	}
	// The weather map is sparse; only the single provided day carries it.
	if withWeather != 1 {
		t.Errorf("expected exactly 1 weather cell, got %d", withWeather)
	}
	if today.Weather == nil || today.Weather.Emoji != "☀️" {
		t.Errorf("weather not merged onto today: %+v", today.Weather)
	}
}

func TestBuildGridHolidayTint(t *testing.T) {
	now := date(2024, time.June, 12)
	events := []model.Event{
		{
			ID:       "h1",
			Title:    "海の日",
			Start:    date(2024, time.June, 12),
			End:      date(2024, time.June, 13),
			AllDay:   true,
			SourceID: "ja.japanese#holiday@group.v.calendar.google.com",
		},
	}

	grid := BuildGrid(now, 4, WeekStartSunday, events, nil)

	for _, week := range grid.Weeks {
		for _, cell := range week {
			want := cell.DateKey == "2024-06-12"
			if cell.IsHoliday != want {
				t.Errorf("%s: IsHoliday = %v, want %v", cell.DateKey, cell.IsHoliday, want)
			}
		}
	}
}

func TestBuildGridDeterministic(t *testing.T) {
	now := dt(2024, time.June, 12, 8, 0)
	events := []model.Event{
		{ID: "a", Start: date(2024, time.June, 10), End: date(2024, time.June, 14), AllDay: true},
		{ID: "b", Start: dt(2024, time.June, 12, 9, 0), End: dt(2024, time.June, 12, 10, 0)},
	}
	weather := map[string]model.WeatherDay{
		"2024-06-13": {DateKey: "2024-06-13", Code: "200", Emoji: "☁️"},
	}

	first := BuildGrid(now, 4, WeekStartSunday, events, weather)
	second := BuildGrid(now, 4, WeekStartSunday, events, weather)

	if !reflect.DeepEqual(first, second) {
		t.Errorf("grid rendering is not deterministic")
	}
}

func TestBuildGridSpanContinuityAcrossWeeks(t *testing.T) {
	now := date(2024, time.June, 12)
	// Occupies 06-13 through 06-18, crossing the 06-15/06-16 row break.
	ev := model.Event{
		ID:     "wrap",
		Start:  date(2024, time.June, 13),
		End:    date(2024, time.June, 19),
		AllDay: true,
	}

	grid := BuildGrid(now, 4, WeekStartSunday, []model.Event{ev}, nil)

	days := 0
	for _, week := range grid.Weeks {
		for _, cell := range week {
			for _, v := range cell.Events {
				if v.ID != "wrap" {
					continue
				}
				days++
				if !v.IsMultiDay {
					t.Errorf("%s: span not marked multi-day", cell.DateKey)
				}
				if v.IsSpanStart != (cell.DateKey == "2024-06-13") {
					t.Errorf("%s: IsSpanStart = %v", cell.DateKey, v.IsSpanStart)
				}
				if v.IsSpanEnd != (cell.DateKey == "2024-06-18") {
					t.Errorf("%s: IsSpanEnd = %v", cell.DateKey, v.IsSpanEnd)
				}
			}
		}
	}
	if days != 6 {
		t.Errorf("span should appear on 6 grid days, got %d", days)
	}
}
