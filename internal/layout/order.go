package layout

import (
	"sort"

	"famcal/internal/model"
)

// singleDayLaneBase keeps single-day lanes clear of the multi-day lane
// space (multi-day lanes are byte values, at most 255).
const singleDayLaneBase = 1000

// EventView is the day-local, per-render view of one event.
type EventView struct {
	model.Event

	IsMultiDay  bool `json:"isMultiDay"`
	IsSpanStart bool `json:"isStart"`
	IsSpanEnd   bool `json:"isEnd"`

	// RenderOrder is the position within the day cell after sorting.
	RenderOrder int `json:"order"`

	// LaneKey places multi-day bars at a consistent horizontal lane on
	// every day they span. It is derived from the event ID, so it is
	// best-effort: two multi-day events whose IDs share a first byte
	// share a lane.
	LaneKey int `json:"lane"`

	// ShowTime is set on a timed event's first visible occurrence.
	ShowTime bool `json:"showTime"`
	// ShowTitle is set on a span's start day and again at the first
	// column of each week the bar crosses, since the bar breaks at the
	// grid's row boundary.
	ShowTitle bool `json:"showTitle"`
}

// DayEvents builds the ordered event views for one day cell.
// isWeekStartColumn is true when dateKey renders in the first column of a
// grid row.
func DayEvents(buckets map[string][]model.Event, dateKey string, isWeekStartColumn bool) []EventView {
	events := buckets[dateKey]
	if len(events) == 0 {
		return nil
	}

	views := make([]EventView, 0, len(events))
	for _, ev := range events {
		span := Classify(buckets, ev.ID, dateKey)
		views = append(views, EventView{
			Event:       ev,
			IsMultiDay:  span.MultiDay,
			IsSpanStart: span.Start,
			IsSpanEnd:   span.End,
		})
	}

	orderDayEvents(views, isWeekStartColumn)
	return views
}

// orderDayEvents sorts views in place into the render order contract:
// multi-day spans first, then all-day events, then timed events by start
// time. It then assigns RenderOrder, LaneKey and the label suppression
// flags.
func orderDayEvents(views []EventView, isWeekStartColumn bool) {
	sort.SliceStable(views, func(i, j int) bool {
		a, b := views[i], views[j]
		if a.IsMultiDay != b.IsMultiDay {
			return a.IsMultiDay
		}
		if a.AllDay != b.AllDay {
			return a.AllDay
		}
		return a.Start.Before(b.Start)
	})

	for i := range views {
		v := &views[i]
		v.RenderOrder = i

		if v.IsMultiDay {
			if len(v.ID) > 0 {
				v.LaneKey = int(v.ID[0])
			}
		} else {
			v.LaneKey = singleDayLaneBase + i
		}

		v.ShowTime = !v.AllDay && (!v.IsMultiDay || v.IsSpanStart)
		v.ShowTitle = !v.IsMultiDay || v.IsSpanStart || isWeekStartColumn
	}
}
