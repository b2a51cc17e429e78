package layout

import (
	"testing"
	"time"

	"famcal/internal/model"
)

func TestMultiDaySortsFirst(t *testing.T) {
	// One multi-day event and one timed 08:00 event share 06-10; the
	// multi-day bar must render first.
	events := []model.Event{
		{ID: "t", Start: dt(2024, time.June, 10, 8, 0), End: dt(2024, time.June, 10, 9, 0)},
		{ID: "m", Start: date(2024, time.June, 10), End: date(2024, time.June, 12), AllDay: true},
	}
	buckets := BucketByDay(events)

	views := DayEvents(buckets, "2024-06-10", false)
	if len(views) != 2 {
		t.Fatalf("expected 2 views, got %d", len(views))
	}
	if views[0].ID != "m" || !views[0].IsMultiDay {
		t.Errorf("multi-day event should sort first, got order %s, %s", views[0].ID, views[1].ID)
	}
	if views[0].RenderOrder != 0 || views[1].RenderOrder != 1 {
		t.Errorf("render order not positional: %d, %d", views[0].RenderOrder, views[1].RenderOrder)
	}
}

func TestAllDayBeforeTimedThenByStart(t *testing.T) {
	events := []model.Event{
		{ID: "late", Start: dt(2024, time.June, 10, 15, 0), End: dt(2024, time.June, 10, 16, 0)},
		{ID: "early", Start: dt(2024, time.June, 10, 7, 0), End: dt(2024, time.June, 10, 8, 0)},
		{ID: "allday", Start: date(2024, time.June, 10), End: date(2024, time.June, 11), AllDay: true},
	}
	buckets := BucketByDay(events)

	views := DayEvents(buckets, "2024-06-10", false)
	got := []string{views[0].ID, views[1].ID, views[2].ID}
	want := []string{"allday", "early", "late"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("order = %v, want %v", got, want)
		}
	}
}

// TestOrderingLaw checks the sort contract pairwise: within one day, any
// event before another is either multi-day over single-day, or shares
// multi-day status and wins on the all-day-then-start-time key.
func TestOrderingLaw(t *testing.T) {
	events := []model.Event{
		{ID: "m1", Start: date(2024, time.June, 9), End: date(2024, time.June, 12), AllDay: true},
		{ID: "m2", Start: dt(2024, time.June, 10, 12, 0), End: dt(2024, time.June, 11, 12, 0)},
		{ID: "a1", Start: date(2024, time.June, 10), End: date(2024, time.June, 11), AllDay: true},
		{ID: "t1", Start: dt(2024, time.June, 10, 9, 30), End: dt(2024, time.June, 10, 10, 0)},
		{ID: "t2", Start: dt(2024, time.June, 10, 6, 0), End: dt(2024, time.June, 10, 7, 0)},
	}
	buckets := BucketByDay(events)

	views := DayEvents(buckets, "2024-06-10", false)
	for i := 0; i < len(views); i++ {
		for j := i + 1; j < len(views); j++ {
			a, b := views[i], views[j]
			if a.IsMultiDay && !b.IsMultiDay {
				continue
			}
			if a.IsMultiDay != b.IsMultiDay {
				t.Fatalf("%s (single-day) sorted before %s (multi-day)", a.ID, b.ID)
			}
			if a.AllDay && !b.AllDay {
				continue
			}
			if a.AllDay != b.AllDay {
				t.Fatalf("%s (timed) sorted before %s (all-day)", a.ID, b.ID)
			}
			if a.Start.After(b.Start) {
				t.Fatalf("%s starts after %s but sorted first", a.ID, b.ID)
			}
		}
	}
}

func TestLaneKeys(t *testing.T) {
	events := []model.Event{
		{ID: "Xspan", Start: date(2024, time.June, 10), End: date(2024, time.June, 13), AllDay: true},
		{ID: "t1", Start: dt(2024, time.June, 10, 9, 0), End: dt(2024, time.June, 10, 10, 0)},
		{ID: "t2", Start: dt(2024, time.June, 11, 9, 0), End: dt(2024, time.June, 11, 10, 0)},
	}
	buckets := BucketByDay(events)

	// The multi-day bar keeps the same lane on every day it spans,
	// independent of each day's sort.
	for _, key := range []string{"2024-06-10", "2024-06-11", "2024-06-12"} {
		views := DayEvents(buckets, key, false)
		found := false
		for _, v := range views {
			if v.ID == "Xspan" {
				found = true
				if v.LaneKey != int('X') {
					t.Errorf("%s: lane = %d, want %d", key, v.LaneKey, int('X'))
				}
			} else if v.LaneKey < singleDayLaneBase {
				t.Errorf("%s: single-day event %s in multi-day lane space (%d)", key, v.ID, v.LaneKey)
			}
		}
		if !found {
			t.Fatalf("%s: span missing", key)
		}
	}
}

func TestTimeAndTitleSuppression(t *testing.T) {
	events := []model.Event{
		// Timed event spanning two days: time label only on the start day.
		{ID: "m", Start: dt(2024, time.June, 10, 18, 0), End: dt(2024, time.June, 11, 9, 0)},
		// Plain timed event: always shows its time.
		{ID: "t", Start: dt(2024, time.June, 10, 9, 0), End: dt(2024, time.June, 10, 10, 0)},
		// All-day event: never shows a time.
		{ID: "a", Start: date(2024, time.June, 10), End: date(2024, time.June, 11), AllDay: true},
	}
	buckets := BucketByDay(events)

	byID := func(views []EventView, id string) EventView {
		for _, v := range views {
			if v.ID == id {
				return v
			}
		}
		t.Fatalf("event %s not found", id)
		return EventView{}
	}

	day1 := DayEvents(buckets, "2024-06-10", false)
	day2 := DayEvents(buckets, "2024-06-11", false)

	if v := byID(day1, "m"); !v.ShowTime || !v.ShowTitle {
		t.Errorf("span start should show time and title: %+v", v)
	}
	if v := byID(day2, "m"); v.ShowTime || v.ShowTitle {
		t.Errorf("span continuation should suppress time and title: %+v", v)
	}
	if v := byID(day1, "t"); !v.ShowTime {
		t.Errorf("plain timed event should show its time")
	}
	if v := byID(day1, "a"); v.ShowTime || !v.ShowTitle {
		t.Errorf("all-day event should show title without time: %+v", v)
	}
}

func TestTitleReappearsAtWeekStartColumn(t *testing.T) {
	// A bar crossing the grid's row break gets its label again in the
	// first column of the new week.
	ev := model.Event{
		ID:     "wrap",
		Start:  date(2024, time.June, 13),
		End:    date(2024, time.June, 19), // exclusive; occupies 13..18
		AllDay: true,
	}
	buckets := BucketByDay([]model.Event{ev})

	// 2024-06-16 is a Sunday, the first column of the next week row.
	views := DayEvents(buckets, "2024-06-16", true)
	if len(views) != 1 || !views[0].ShowTitle {
		t.Errorf("title should reappear at week-start column: %+v", views)
	}

	views = DayEvents(buckets, "2024-06-15", false)
	if len(views) != 1 || views[0].ShowTitle {
		t.Errorf("interior day should suppress title: %+v", views)
	}
}
